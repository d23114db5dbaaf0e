package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/atvirokodosprendimai/precheck/internal/core/domain"
)

type triggerStub struct {
	calls []string
	err   error
}

func (s *triggerStub) Trigger(_ context.Context, tenantID string, actor domain.Actor, ruleVersionID string, _ json.RawMessage) (domain.RuleRun, error) {
	s.calls = append(s.calls, tenantID+"|"+actor.Label()+"|"+ruleVersionID)
	if s.err != nil {
		return domain.RuleRun{}, s.err
	}
	return domain.RuleRun{ID: "run-1", TenantID: tenantID}, nil
}

func TestParseRunSchedule(t *testing.T) {
	got, err := ParseRunSchedule("district-1 = 0 6 * * 1-5")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.TenantID != "district-1" || got.Spec != "0 6 * * 1-5" {
		t.Fatalf("unexpected schedule %+v", got)
	}

	for _, bad := range []string{"", "district-1", "=0 6 * * *", "district-1=every day", "bad tenant!=0 6 * * *"} {
		if _, err := ParseRunSchedule(bad); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("%q: expected validation error, got %v", bad, err)
		}
	}
}

func TestSchedulerRegistersAndFires(t *testing.T) {
	stub := &triggerStub{}
	s := NewScheduler(stub, []RunSchedule{{TenantID: "district-1", Spec: "@hourly"}, {TenantID: "district-2", Spec: "0 6 * * *"}}, quietLogger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()
	if s.Entries() != 2 {
		t.Fatalf("expected 2 entries, got %d", s.Entries())
	}

	s.fire(ctx, s.schedules[0])
	if len(stub.calls) != 1 || stub.calls[0] != "district-1|scheduler|" {
		t.Fatalf("unexpected trigger calls %v", stub.calls)
	}

	stub.err = errors.New("db down")
	s.fire(ctx, s.schedules[1])
	if len(stub.calls) != 2 {
		t.Fatalf("expected failed trigger to be attempted, got %v", stub.calls)
	}
}

func TestSchedulerWithoutSchedulesIsIdle(t *testing.T) {
	s := NewScheduler(&triggerStub{}, nil, quietLogger)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if s.Entries() != 0 {
		t.Fatalf("expected no entries, got %d", s.Entries())
	}
	s.Stop()
}
