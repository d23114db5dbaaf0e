package usecase

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"sort"
	"time"

	"github.com/atvirokodosprendimai/precheck/internal/core/domain"
	"github.com/atvirokodosprendimai/precheck/internal/core/ports"
)

const districtName = "District"

var exportHeader = []string{
	"exception_id",
	"rule_result_id",
	"status",
	"rationale",
	"due_date",
	"severity",
	"rule_message",
}

// ReportService produces read-side reports: the exception export and the
// per-school readiness scores.
type ReportService struct {
	store ports.Store
	now   func() time.Time
}

func NewReportService(store ports.Store) *ReportService {
	return &ReportService{store: store, now: time.Now}
}

// ExportExceptions renders every exception of the tenant as CSV joined with
// its rule result. The export itself is audited.
func (s *ReportService) ExportExceptions(ctx context.Context, tenantID string, actor domain.Actor) ([]byte, int, error) {
	var buf bytes.Buffer
	rows := 0
	err := s.store.Write(ctx, func(tx ports.Tx) error {
		buf.Reset()
		exceptions, err := tx.Exceptions().List(tenantID, 0)
		if err != nil {
			return err
		}
		ids := make([]string, 0, len(exceptions))
		for _, e := range exceptions {
			ids = append(ids, e.RuleResultID)
		}
		results, err := tx.Results().GetMany(tenantID, ids)
		if err != nil {
			return err
		}

		w := csv.NewWriter(&buf)
		if err := w.Write(exportHeader); err != nil {
			return err
		}
		rows = 0
		for _, e := range exceptions {
			res, ok := results[e.RuleResultID]
			if !ok {
				continue
			}
			due := ""
			if e.DueDate != nil {
				due = e.DueDate.UTC().Format(time.RFC3339)
			}
			record := []string{e.ID, e.RuleResultID, string(e.Status), e.Rationale, due, string(res.Severity), res.Message}
			if err := w.Write(record); err != nil {
				return err
			}
			rows++
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return fmt.Errorf("write export: %w", err)
		}
		return appendAudit(tx, tenantID, actor, domain.ActionExportExceptions, "ExceptionRecord", "", map[string]any{"rows": rows}, s.now().UTC())
	})
	if err != nil {
		return nil, 0, err
	}
	return buf.Bytes(), rows, nil
}

// Readiness scores each school by its open results: every error costs 20
// points and every warning 10, floored at zero. Results without a school are
// reported under "District".
func (s *ReportService) Readiness(ctx context.Context, tenantID string) ([]domain.ReadinessDetail, error) {
	var (
		open    []domain.RuleResult
		schools []domain.School
	)
	err := s.store.Read(ctx, func(tx ports.Tx) error {
		var err error
		if _, err = tx.Tenants().Get(tenantID); err != nil {
			return err
		}
		open, err = tx.Results().List(domain.ResultFilter{TenantID: tenantID, Status: domain.ResultOpen})
		if err != nil {
			return err
		}
		schools, err = tx.Schools().List(tenantID)
		return err
	})
	if err != nil {
		return nil, err
	}

	names := make(map[string]string, len(schools))
	for _, sc := range schools {
		names[sc.ID] = sc.Name
	}

	totals := map[string]*domain.ReadinessDetail{}
	for _, r := range open {
		d, ok := totals[r.SchoolID]
		if !ok {
			d = &domain.ReadinessDetail{SchoolID: r.SchoolID, SchoolName: districtName, Category: "Overall"}
			if r.SchoolID != "" {
				d.SchoolName = names[r.SchoolID]
			}
			totals[r.SchoolID] = d
		}
		switch r.Severity {
		case domain.SeverityError:
			d.OpenErrors++
		case domain.SeverityWarning:
			d.OpenWarnings++
		}
	}

	out := make([]domain.ReadinessDetail, 0, len(totals))
	for _, d := range totals {
		d.Score = max(0, 100-20*d.OpenErrors-10*d.OpenWarnings)
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool {
		if (out[i].SchoolID == "") != (out[j].SchoolID == "") {
			return out[i].SchoolID == ""
		}
		if out[i].SchoolName != out[j].SchoolName {
			return out[i].SchoolName < out[j].SchoolName
		}
		return out[i].SchoolID < out[j].SchoolID
	})
	return out, nil
}
