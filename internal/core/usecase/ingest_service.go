package usecase

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/atvirokodosprendimai/precheck/internal/core/domain"
	"github.com/atvirokodosprendimai/precheck/internal/core/ports"
	"github.com/atvirokodosprendimai/precheck/internal/telemetry"
)

const defaultSyncSchool = "North High School"

// IngestService loads students from CSV uploads and the PowerSchool sample
// connector.
type IngestService struct {
	store      ports.Store
	dispatch   *Dispatcher
	metrics    *telemetry.Metrics
	logger     *slog.Logger
	samplePath string
	now        func() time.Time
}

func NewIngestService(store ports.Store, dispatch *Dispatcher, metrics *telemetry.Metrics, logger *slog.Logger, samplePath string) *IngestService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &IngestService{
		store:      store,
		dispatch:   dispatch,
		metrics:    metrics,
		logger:     logger.With("component", "ingest"),
		samplePath: samplePath,
		now:        time.Now,
	}
	if dispatch != nil {
		dispatch.Register(domain.TaskSyncStudents, s.handleSync)
	}
	return s
}

// ImportCSV upserts one student per row, committing each row separately.
// Row failures are collected as "Row N: ..." and do not stop the batch.
func (s *IngestService) ImportCSV(ctx context.Context, tenantID string, actor domain.Actor, mapping domain.StudentMapping, r io.Reader) (domain.ImportResult, error) {
	if err := validateMapping(mapping); err != nil {
		return domain.ImportResult{}, err
	}

	raw, err := io.ReadAll(r)
	if err != nil {
		return domain.ImportResult{}, fmt.Errorf("read csv: %w", err)
	}
	raw = bytes.TrimPrefix(raw, []byte("\ufeff"))

	reader := csv.NewReader(bytes.NewReader(raw))
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return domain.ImportResult{}, domain.Invalid("CSV file has no header row")
	}
	if err != nil {
		return domain.ImportResult{}, domain.WrapInvalid("invalid csv", err)
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.TrimSpace(h)] = i
	}
	var missing []string
	for _, col := range mapping.Columns() {
		if _, ok := index[col]; !ok && !slices.Contains(missing, col) {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return domain.ImportResult{}, domain.Invalid("CSV missing required column(s): %s", strings.Join(missing, ", "))
	}

	batch := domain.IngestBatch{
		ID:        domain.NewID(),
		TenantID:  tenantID,
		Source:    domain.IngestCSV,
		Status:    domain.IngestPending,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.Write(ctx, func(tx ports.Tx) error { return tx.Ingest().Create(batch) }); err != nil {
		return domain.ImportResult{}, err
	}

	result := domain.ImportResult{BatchID: batch.ID, Errors: []string{}}
	for n := 1; ; n++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err == nil {
			var in domain.StudentInput
			in, err = studentFromRow(row, index, mapping)
			if err == nil {
				var created bool
				err = s.store.Write(ctx, func(tx ports.Tx) error {
					var err error
					_, created, err = upsertStudent(tx, tenantID, in, s.now())
					return err
				})
				if err == nil {
					result.RowsProcessed++
					if created {
						result.StudentsCreated++
					} else {
						result.StudentsUpdated++
					}
					s.metrics.RecordImportRow(string(domain.IngestCSV), "ok")
					continue
				}
			}
		}
		result.Errors = append(result.Errors, fmt.Sprintf("Row %d: %s", n, rowError(err)))
		s.metrics.RecordImportRow(string(domain.IngestCSV), "error")
	}

	batch.RowsIngested = result.RowsProcessed
	batch.Errors = result.Errors
	batch.Status = domain.IngestSuccess
	if len(result.Errors) > 0 {
		batch.Status = domain.IngestFailed
	}
	finished := s.now().UTC()
	batch.FinishedAt = &finished

	err = s.store.Write(ctx, func(tx ports.Tx) error {
		if err := tx.Ingest().Finish(batch); err != nil {
			return err
		}
		return appendAudit(tx, tenantID, actor, domain.ActionStudentImport, "IngestBatch", batch.ID, map[string]any{
			"source":  batch.Source,
			"rows":    result.RowsProcessed,
			"created": result.StudentsCreated,
			"updated": result.StudentsUpdated,
			"errors":  len(result.Errors),
		}, finished)
	})
	if err != nil {
		return result, err
	}
	s.logger.Info("csv import finished", "tenant_id", tenantID, "batch_id", batch.ID, "rows", result.RowsProcessed, "errors", len(result.Errors))
	return result, nil
}

func rowError(err error) string {
	var de *domain.Error
	if errors.As(err, &de) {
		return de.Error()
	}
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return pe.Err.Error()
	}
	return err.Error()
}

func studentFromRow(row []string, index map[string]int, m domain.StudentMapping) (domain.StudentInput, error) {
	cell := func(col string) string {
		i, ok := index[col]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}
	flag := func(col string) *bool {
		if col == "" {
			return nil
		}
		v := isTruthy(cell(col))
		return &v
	}

	gradeText := cell(m.GradeLevel)
	grade, err := strconv.Atoi(gradeText)
	if err != nil {
		return domain.StudentInput{}, domain.Invalid("Grade level '%s' is not a valid integer", gradeText)
	}
	in := domain.StudentInput{
		SISID:      cell(m.SISID),
		FirstName:  cell(m.FirstName),
		LastName:   cell(m.LastName),
		GradeLevel: grade,
		SchoolName: cell(m.SchoolName),
		ELLStatus:  flag(m.ELLStatus),
		IDEAFlag:   flag(m.IDEAFlag),
	}
	if m.EnrollmentStatus != "" {
		in.EnrollmentStatus = cell(m.EnrollmentStatus)
	}
	in = normalizeStudent(in)
	return in, in.Validate()
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y":
		return true
	}
	return false
}

// TriggerSync queues a connector sync for tenantID and returns the task id.
func (s *IngestService) TriggerSync(ctx context.Context, tenantID string, actor domain.Actor) (string, error) {
	err := s.store.Write(ctx, func(tx ports.Tx) error {
		return appendAudit(tx, tenantID, actor, domain.ActionConnectorSync, "Connector", "powerschool", nil, s.now().UTC())
	})
	if err != nil {
		return "", err
	}
	if s.dispatch == nil {
		_, err := s.SyncStudents(ctx, tenantID)
		return "", err
	}
	return s.dispatch.Dispatch(ctx, domain.TaskSyncStudents, map[string]string{"tenant_id": tenantID}), nil
}

func (s *IngestService) handleSync(ctx context.Context, task domain.Task) error {
	_, err := s.SyncStudents(ctx, task.Args["tenant_id"])
	return err
}

type sampleStudent struct {
	SISID            string `json:"sis_id"`
	FirstName        string `json:"first_name"`
	LastName         string `json:"last_name"`
	GradeLevel       *int   `json:"grade_level"`
	EnrollmentStatus string `json:"enrollment_status"`
	SchoolName       string `json:"school_name"`
	ELLStatus        *bool  `json:"ell_status"`
	IDEAFlag         *bool  `json:"idea_flag"`
}

// SyncStudents loads the connector's sample export and upserts every student
// in a single transaction. The batch is marked failed if anything goes wrong.
func (s *IngestService) SyncStudents(ctx context.Context, tenantID string) (domain.ImportResult, error) {
	batch := domain.IngestBatch{
		ID:        domain.NewID(),
		TenantID:  tenantID,
		Source:    domain.IngestPowerSchool,
		Status:    domain.IngestPending,
		CreatedAt: s.now().UTC(),
	}
	err := s.store.Write(ctx, func(tx ports.Tx) error {
		if _, err := tx.Tenants().Get(tenantID); err != nil {
			return err
		}
		return tx.Ingest().Create(batch)
	})
	if err != nil {
		return domain.ImportResult{}, err
	}

	result := domain.ImportResult{BatchID: batch.ID, Errors: []string{}}
	syncErr := s.syncSample(ctx, tenantID, &result)

	finished := s.now().UTC()
	batch.FinishedAt = &finished
	batch.RowsIngested = result.RowsProcessed
	batch.Status = domain.IngestSuccess
	if syncErr != nil {
		batch.Status = domain.IngestFailed
		batch.RowsIngested = 0
		batch.Errors = []string{syncErr.Error()}
		result.Errors = batch.Errors
	}
	if err := s.store.Write(ctx, func(tx ports.Tx) error { return tx.Ingest().Finish(batch) }); err != nil {
		return result, err
	}
	if syncErr != nil {
		s.logger.Error("connector sync failed", "tenant_id", tenantID, "batch_id", batch.ID, "error", syncErr)
		return result, fmt.Errorf("sync students: %w", syncErr)
	}
	s.logger.Info("connector sync finished", "tenant_id", tenantID, "batch_id", batch.ID, "rows", result.RowsProcessed)
	return result, nil
}

func (s *IngestService) syncSample(ctx context.Context, tenantID string, result *domain.ImportResult) error {
	if s.samplePath == "" {
		return errors.New("no connector sample configured")
	}
	raw, err := os.ReadFile(s.samplePath)
	if err != nil {
		return fmt.Errorf("read connector sample: %w", err)
	}
	var entries []sampleStudent
	if err := json.Unmarshal(raw, &entries); err != nil {
		return fmt.Errorf("decode connector sample: %w", err)
	}

	created, updated := 0, 0
	err = s.store.Write(ctx, func(tx ports.Tx) error {
		created, updated = 0, 0
		now := s.now()
		for _, e := range entries {
			in := domain.StudentInput{
				SISID:            e.SISID,
				FirstName:        e.FirstName,
				LastName:         e.LastName,
				EnrollmentStatus: e.EnrollmentStatus,
				SchoolName:       e.SchoolName,
				ELLStatus:        e.ELLStatus,
				IDEAFlag:         e.IDEAFlag,
			}
			if e.GradeLevel != nil {
				in.GradeLevel = *e.GradeLevel
			}
			if strings.TrimSpace(in.SchoolName) == "" {
				in.SchoolName = defaultSyncSchool
			}
			in = normalizeStudent(in)
			if err := in.Validate(); err != nil {
				return err
			}
			_, ok, err := upsertStudent(tx, tenantID, in, now)
			if err != nil {
				return err
			}
			if ok {
				created++
			} else {
				updated++
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	result.RowsProcessed = len(entries)
	result.StudentsCreated = created
	result.StudentsUpdated = updated
	for range entries {
		s.metrics.RecordImportRow(string(domain.IngestPowerSchool), "ok")
	}
	return nil
}

func validateMapping(m domain.StudentMapping) error {
	for _, col := range []string{m.SISID, m.FirstName, m.LastName, m.GradeLevel, m.SchoolName} {
		if strings.TrimSpace(col) == "" {
			return domain.Invalid("Invalid mapping JSON")
		}
	}
	return nil
}
