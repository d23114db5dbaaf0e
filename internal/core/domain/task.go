package domain

import "time"

// Task names understood by the dispatcher.
const (
	TaskProcessRuleRun = "rules.process_run"
	TaskSyncStudents   = "connectors.sync_students"
)

// Task is one unit of background work.
type Task struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Args       map[string]string `json:"args"`
	EnqueuedAt time.Time         `json:"enqueued_at"`
}
