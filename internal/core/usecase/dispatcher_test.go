package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/atvirokodosprendimai/precheck/internal/core/domain"
)

type stubQueue struct {
	err   error
	tasks []domain.Task
}

func (q *stubQueue) Enqueue(_ context.Context, task domain.Task) error {
	if q.err != nil {
		return q.err
	}
	q.tasks = append(q.tasks, task)
	return nil
}

func TestDispatchUsesQueueWhenAvailable(t *testing.T) {
	q := &stubQueue{}
	d := NewDispatcher(q, nil, nil)
	ran := false
	d.Register("t", func(context.Context, domain.Task) error { ran = true; return nil })

	id := d.Dispatch(context.Background(), "t", map[string]string{"k": "v"})
	if ran {
		t.Fatal("handler should not run inline when queue accepts the task")
	}
	if len(q.tasks) != 1 || q.tasks[0].ID != id || q.tasks[0].Args["k"] != "v" {
		t.Fatalf("unexpected queued tasks: %+v", q.tasks)
	}
}

func TestDispatchFallsBackInlineOnQueueError(t *testing.T) {
	q := &stubQueue{err: errors.New("connection refused")}
	d := NewDispatcher(q, nil, nil)
	var got domain.Task
	d.Register("t", func(_ context.Context, task domain.Task) error { got = task; return nil })

	id := d.Dispatch(context.Background(), "t", map[string]string{"run_id": "r1"})
	if got.ID != id || got.Args["run_id"] != "r1" {
		t.Fatalf("expected inline execution, got %+v", got)
	}
}

func TestDispatchWithoutQueueRunsInlineAndSwallowsErrors(t *testing.T) {
	d := NewDispatcher(nil, nil, nil)
	calls := 0
	d.Register("t", func(context.Context, domain.Task) error { calls++; return errors.New("boom") })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Dispatch(ctx, "t", nil)
	if calls != 1 {
		t.Fatalf("expected one inline call, got %d", calls)
	}
}

func TestExecuteUnknownTask(t *testing.T) {
	d := NewDispatcher(nil, nil, nil)
	if err := d.Execute(context.Background(), domain.Task{Name: "missing"}); err == nil {
		t.Fatal("expected error for unregistered task")
	}
}
