package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/atvirokodosprendimai/precheck/internal/core/domain"
	"github.com/atvirokodosprendimai/precheck/internal/core/ports"
	"github.com/atvirokodosprendimai/precheck/internal/core/rules"
	"github.com/atvirokodosprendimai/precheck/internal/telemetry"
)

// RunOrchestrator drives rule runs through pending → running → success|failed.
// Results of each rule are committed in their own transaction, so a failing
// rule leaves the results of earlier rules in place.
type RunOrchestrator struct {
	store    ports.Store
	dispatch *Dispatcher
	metrics  *telemetry.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

func NewRunOrchestrator(store ports.Store, dispatch *Dispatcher, metrics *telemetry.Metrics, logger *slog.Logger) *RunOrchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	o := &RunOrchestrator{
		store:    store,
		dispatch: dispatch,
		metrics:  metrics,
		logger:   logger.With("component", "run_orchestrator"),
		now:      time.Now,
	}
	if dispatch != nil {
		dispatch.Register(domain.TaskProcessRuleRun, o.handleTask)
	}
	return o
}

// Trigger creates a pending run and hands it to the dispatcher. The returned
// run reflects the state at creation.
func (o *RunOrchestrator) Trigger(ctx context.Context, tenantID string, actor domain.Actor, ruleVersionID string, scope json.RawMessage) (domain.RuleRun, error) {
	if err := domain.ValidateID("tenant", tenantID); err != nil {
		return domain.RuleRun{}, err
	}
	if len(scope) > 0 && !json.Valid(scope) {
		return domain.RuleRun{}, domain.Invalid("scope must be valid json")
	}

	run := domain.RuleRun{
		ID:            domain.NewID(),
		TenantID:      tenantID,
		RuleVersionID: ruleVersionID,
		InitiatedBy:   actor.Label(),
		Status:        domain.RunPending,
		Scope:         scope,
		CreatedAt:     o.now().UTC(),
	}

	err := o.store.Write(ctx, func(tx ports.Tx) error {
		if ruleVersionID != "" {
			if _, err := visibleVersion(tx, tenantID, ruleVersionID); err != nil {
				return err
			}
		}
		if err := tx.Runs().Create(run); err != nil {
			return err
		}
		meta := map[string]any{}
		if ruleVersionID != "" {
			meta["rule_version_id"] = ruleVersionID
		}
		return appendAudit(tx, tenantID, actor, domain.ActionRuleRunTrigger, "RuleRun", run.ID, meta, run.CreatedAt)
	})
	if err != nil {
		return domain.RuleRun{}, err
	}

	if o.dispatch != nil {
		o.dispatch.Dispatch(ctx, domain.TaskProcessRuleRun, map[string]string{
			"tenant_id": tenantID,
			"run_id":    run.ID,
		})
	}
	return run, nil
}

func (o *RunOrchestrator) handleTask(ctx context.Context, task domain.Task) error {
	_, err := o.Process(ctx, task.Args["tenant_id"], task.Args["run_id"])
	return err
}

// Process evaluates a pending run. A run in any other state is a conflict.
func (o *RunOrchestrator) Process(ctx context.Context, tenantID, runID string) (domain.RunOutcome, error) {
	var run domain.RuleRun
	err := o.store.Write(ctx, func(tx ports.Tx) error {
		var err error
		run, err = tx.Runs().Get(tenantID, runID)
		if err != nil {
			return err
		}
		if run.Status != domain.RunPending {
			return domain.Conflict("Rule run %s is %s", run.ID, run.Status)
		}
		return tx.Runs().MarkRunning(run.ID, o.now())
	})
	if err != nil {
		return domain.RunOutcome{RunID: runID}, err
	}

	started := time.Now()
	logger := o.logger.With("tenant_id", tenantID, "run_id", runID)
	logger.Info("rule run started")

	// A started run always reaches success or failed, even if the caller
	// goes away.
	runCtx := context.WithoutCancel(ctx)
	outcome, runErr := o.execute(runCtx, run)
	outcome.RunID = run.ID

	status := domain.RunSuccess
	lastError := ""
	if runErr != nil {
		status = domain.RunFailed
		lastError = runErr.Error()
	}
	outcome.Status = status

	finishErr := o.store.Write(runCtx, func(tx ports.Tx) error {
		return tx.Runs().Finish(run.ID, status, o.now(), outcome.Violations, lastError)
	})
	o.metrics.RecordRun(string(status), time.Since(started))

	if runErr != nil {
		logger.Error("rule run failed", "rules", outcome.Rules, "violations", outcome.Violations, "error", runErr)
		if finishErr != nil {
			logger.Error("mark rule run failed", "error", finishErr)
		}
		return outcome, fmt.Errorf("process rule run %s: %w", run.ID, runErr)
	}
	if finishErr != nil {
		return outcome, fmt.Errorf("finish rule run %s: %w", run.ID, finishErr)
	}
	logger.Info("rule run finished", "rules", outcome.Rules, "violations", outcome.Violations)
	return outcome, nil
}

func (o *RunOrchestrator) execute(ctx context.Context, run domain.RuleRun) (domain.RunOutcome, error) {
	var outcome domain.RunOutcome

	var versions []domain.RuleVersion
	err := o.store.Read(ctx, func(tx ports.Tx) error {
		var err error
		versions, err = resolveRules(tx, run)
		return err
	})
	if err != nil {
		return outcome, err
	}

	for _, v := range versions {
		body, err := rules.Parse(v.DSL)
		if err != nil {
			return outcome, fmt.Errorf("rule %s: %w", v.Code, err)
		}
		pred, err := rules.Compile(body)
		if err != nil {
			return outcome, fmt.Errorf("rule %s: %w", v.Code, err)
		}

		var found int
		err = o.store.Write(ctx, func(tx ports.Tx) error {
			students, err := tx.Students().List(run.TenantID, 0)
			if err != nil {
				return err
			}
			records := make([]rules.Record, 0, len(students))
			for _, st := range students {
				records = append(records, studentRecord(st))
			}

			now := o.now().UTC()
			violations := rules.Evaluate(pred, records)
			results := make([]domain.RuleResult, 0, len(violations))
			for _, viol := range violations {
				details, err := json.Marshal(viol.Snapshot)
				if err != nil {
					return fmt.Errorf("marshal snapshot: %w", err)
				}
				results = append(results, domain.RuleResult{
					ID:         domain.NewID(),
					RuleRunID:  run.ID,
					TenantID:   run.TenantID,
					SchoolID:   viol.SchoolID,
					RuleCode:   v.Code,
					EntityType: v.AppliesTo,
					EntityID:   viol.EntityID,
					Severity:   v.Severity,
					Status:     domain.ResultOpen,
					Message:    rules.Describe(body, viol.Snapshot, v.Title),
					Details:    details,
					CreatedAt:  now,
				})
			}
			found = len(results)
			return tx.Results().Insert(results)
		})
		if err != nil {
			return outcome, fmt.Errorf("rule %s: %w", v.Code, err)
		}

		outcome.Rules++
		outcome.Violations += found
		o.metrics.RecordRuleEvaluated()
		o.metrics.RecordViolations(string(v.Severity), found)
	}
	return outcome, nil
}

// resolveRules returns the enabled versions a run evaluates: the bound
// version alone, or every version visible to the tenant.
func resolveRules(tx ports.Tx, run domain.RuleRun) ([]domain.RuleVersion, error) {
	if run.RuleVersionID != "" {
		v, err := visibleVersion(tx, run.TenantID, run.RuleVersionID)
		if err != nil {
			return nil, err
		}
		if !v.Enabled {
			return nil, nil
		}
		return []domain.RuleVersion{v}, nil
	}

	all, err := tx.Rules().Visible(run.TenantID)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, v := range all {
		if v.Enabled {
			out = append(out, v)
		}
	}
	return out, nil
}

func visibleVersion(tx ports.Tx, tenantID, id string) (domain.RuleVersion, error) {
	if err := domain.ValidateID("rule version", id); err != nil {
		return domain.RuleVersion{}, domain.NotFound("Rule version not found")
	}
	v, err := tx.Rules().Get(id)
	if err != nil {
		return domain.RuleVersion{}, err
	}
	if !v.Global() && v.TenantID != tenantID {
		return domain.RuleVersion{}, domain.NotFound("Rule version not found")
	}
	return v, nil
}

func studentRecord(s domain.Student) rules.Record {
	r := rules.Record{
		"id":                s.ID,
		"school_id":         s.SchoolID,
		"sis_id":            s.SISID,
		"first_name":        s.FirstName,
		"last_name":         s.LastName,
		"grade_level":       nil,
		"enrollment_status": s.EnrollmentStatus,
		"ell_status":        s.ELLStatus,
		"idea_flag":         s.IDEAFlag,
	}
	if s.GradeLevel != nil {
		r["grade_level"] = *s.GradeLevel
	}
	return r
}

// Get returns one run.
func (o *RunOrchestrator) Get(ctx context.Context, tenantID, runID string) (domain.RuleRun, error) {
	var run domain.RuleRun
	err := o.store.Read(ctx, func(tx ports.Tx) error {
		var err error
		run, err = tx.Runs().Get(tenantID, runID)
		return err
	})
	return run, err
}

func (o *RunOrchestrator) List(ctx context.Context, tenantID string, limit int) ([]domain.RuleRun, error) {
	var runs []domain.RuleRun
	err := o.store.Read(ctx, func(tx ports.Tx) error {
		var err error
		runs, err = tx.Runs().List(tenantID, limit)
		return err
	})
	return runs, err
}

func (o *RunOrchestrator) Results(ctx context.Context, filter domain.ResultFilter) ([]domain.RuleResult, error) {
	if filter.Limit <= 0 || filter.Limit > 1000 {
		filter.Limit = 1000
	}
	var out []domain.RuleResult
	err := o.store.Read(ctx, func(tx ports.Tx) error {
		var err error
		out, err = tx.Results().List(filter)
		return err
	})
	return out, err
}
