package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/atvirokodosprendimai/precheck/internal/core/domain"
)

// RunSchedule triggers a full-catalog run for a tenant on a cron spec.
type RunSchedule struct {
	TenantID string
	Spec     string
}

// ParseRunSchedule reads "tenant=cron spec", e.g. "district-1=0 6 * * 1-5".
func ParseRunSchedule(s string) (RunSchedule, error) {
	tenant, spec, ok := strings.Cut(s, "=")
	tenant, spec = strings.TrimSpace(tenant), strings.TrimSpace(spec)
	if !ok || tenant == "" || spec == "" {
		return RunSchedule{}, domain.Invalid("run schedule %q must look like tenant=cron", s)
	}
	if err := domain.ValidateID("tenant", tenant); err != nil {
		return RunSchedule{}, err
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return RunSchedule{}, domain.WrapInvalid(fmt.Sprintf("invalid cron schedule %q", spec), err)
	}
	return RunSchedule{TenantID: tenant, Spec: spec}, nil
}

type runTrigger interface {
	Trigger(ctx context.Context, tenantID string, actor domain.Actor, ruleVersionID string, scope json.RawMessage) (domain.RuleRun, error)
}

var schedulerActor = domain.Actor{Name: "scheduler"}

// Scheduler fires rule runs on their cron schedules.
type Scheduler struct {
	runs      runTrigger
	schedules []RunSchedule
	cron      *cron.Cron
	logger    *slog.Logger

	mu      sync.Mutex
	running bool
}

func NewScheduler(runs runTrigger, schedules []RunSchedule, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		runs:      runs,
		schedules: schedules,
		cron:      cron.New(),
		logger:    logger.With("component", "scheduler"),
	}
}

// Start registers every schedule and starts the cron loop. It stops when ctx
// is done. With no schedules it does nothing.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.schedules) == 0 {
		s.logger.Info("no run schedules configured")
		return nil
	}
	for _, sc := range s.schedules {
		sc := sc
		if _, err := s.cron.AddFunc(sc.Spec, func() { s.fire(ctx, sc) }); err != nil {
			return fmt.Errorf("schedule runs for %s: %w", sc.TenantID, err)
		}
	}
	s.cron.Start()
	s.running = true
	s.logger.Info("scheduler started", "schedules", len(s.schedules))

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

func (s *Scheduler) fire(ctx context.Context, sc RunSchedule) {
	run, err := s.runs.Trigger(ctx, sc.TenantID, schedulerActor, "", nil)
	if err != nil {
		s.logger.Error("scheduled run failed to start", "tenant_id", sc.TenantID, "error", err)
		return
	}
	s.logger.Info("scheduled run triggered", "tenant_id", sc.TenantID, "run_id", run.ID)
}

// Stop halts the cron loop and waits for in-flight triggers.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}
