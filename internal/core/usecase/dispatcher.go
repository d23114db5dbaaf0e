package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/atvirokodosprendimai/precheck/internal/core/domain"
	"github.com/atvirokodosprendimai/precheck/internal/core/ports"
	"github.com/atvirokodosprendimai/precheck/internal/telemetry"
)

// TaskHandler executes one task. Handlers must tolerate redelivery.
type TaskHandler func(ctx context.Context, task domain.Task) error

// Dispatcher hands tasks to the queue when one is configured and falls back
// to running them inline when it is absent or rejects the task.
type Dispatcher struct {
	queue   ports.TaskQueue
	metrics *telemetry.Metrics
	logger  *slog.Logger
	now     func() time.Time

	mu       sync.RWMutex
	handlers map[string]TaskHandler
}

func NewDispatcher(queue ports.TaskQueue, metrics *telemetry.Metrics, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		queue:    queue,
		metrics:  metrics,
		logger:   logger.With("component", "dispatcher"),
		now:      time.Now,
		handlers: make(map[string]TaskHandler),
	}
}

func (d *Dispatcher) Register(name string, h TaskHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[name] = h
}

// Dispatch never fails. Inline execution runs on a context detached from
// ctx's cancellation so a finished request does not abort the task.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, args map[string]string) string {
	task := domain.Task{ID: domain.NewID(), Name: name, Args: args, EnqueuedAt: d.now().UTC()}

	if d.queue != nil {
		err := d.queue.Enqueue(ctx, task)
		if err == nil {
			d.metrics.RecordDispatch(name, "queued")
			d.logger.Debug("task queued", "task", name, "task_id", task.ID)
			return task.ID
		}
		d.logger.Warn("task queue unavailable, running inline", "task", name, "task_id", task.ID, "error", err)
	}

	d.metrics.RecordDispatch(name, "inline")
	if err := d.Execute(context.WithoutCancel(ctx), task); err != nil {
		d.logger.Error("inline task failed", "task", name, "task_id", task.ID, "error", err)
	}
	return task.ID
}

// Execute runs the registered handler for task. Workers call it directly.
func (d *Dispatcher) Execute(ctx context.Context, task domain.Task) error {
	d.mu.RLock()
	h, ok := d.handlers[task.Name]
	d.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no handler registered for task %q", task.Name)
	}
	return h(ctx, task)
}
