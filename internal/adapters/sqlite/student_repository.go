package sqlite

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/atvirokodosprendimai/precheck/internal/core/domain"
)

type schoolRepo struct{ tx *gorm.DB }

func (r schoolRepo) FindOrCreate(tenantID, name string, now time.Time) (domain.School, error) {
	name = strings.TrimSpace(name)
	var m schoolModel
	err := r.tx.Where("tenant_id = ? AND lower(name) = lower(?)", tenantID, name).First(&m).Error
	switch {
	case err == nil:
		return toSchool(m), nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return domain.School{}, fmt.Errorf("find school: %w", err)
	}

	m = schoolModel{ID: domain.NewID(), TenantID: tenantID, Name: name, CreatedAt: now.UTC()}
	if err := r.tx.Create(&m).Error; err != nil {
		return domain.School{}, fmt.Errorf("create school: %w", err)
	}
	return toSchool(m), nil
}

func (r schoolRepo) List(tenantID string) ([]domain.School, error) {
	var rows []schoolModel
	if err := r.tx.Where("tenant_id = ?", tenantID).Order("name ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list schools: %w", err)
	}
	out := make([]domain.School, 0, len(rows))
	for _, m := range rows {
		out = append(out, toSchool(m))
	}
	return out, nil
}

func toSchool(m schoolModel) domain.School {
	return domain.School{ID: m.ID, TenantID: m.TenantID, Name: m.Name, CreatedAt: m.CreatedAt}
}

type studentRepo struct{ tx *gorm.DB }

func (r studentRepo) Upsert(tenantID, schoolID string, in domain.StudentInput, now time.Time) (domain.Student, bool, error) {
	now = now.UTC()
	grade := in.GradeLevel
	status := strings.TrimSpace(in.EnrollmentStatus)
	if status == "" {
		status = "active"
	}

	var m studentModel
	err := r.tx.Where("tenant_id = ? AND sis_id = ?", tenantID, in.SISID).First(&m).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		m = studentModel{
			ID:               domain.NewID(),
			TenantID:         tenantID,
			SchoolID:         schoolID,
			SISID:            in.SISID,
			FirstName:        in.FirstName,
			LastName:         in.LastName,
			GradeLevel:       &grade,
			EnrollmentStatus: status,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if in.ELLStatus != nil {
			m.ELLStatus = *in.ELLStatus
		}
		if in.IDEAFlag != nil {
			m.IDEAFlag = *in.IDEAFlag
		}
		if err := r.tx.Create(&m).Error; err != nil {
			return domain.Student{}, false, fmt.Errorf("create student: %w", err)
		}
		return toStudent(m), true, nil
	case err != nil:
		return domain.Student{}, false, fmt.Errorf("find student: %w", err)
	}

	m.SchoolID = schoolID
	m.FirstName = in.FirstName
	m.LastName = in.LastName
	m.GradeLevel = &grade
	m.EnrollmentStatus = status
	if in.ELLStatus != nil {
		m.ELLStatus = *in.ELLStatus
	}
	if in.IDEAFlag != nil {
		m.IDEAFlag = *in.IDEAFlag
	}
	m.UpdatedAt = now
	if err := r.tx.Save(&m).Error; err != nil {
		return domain.Student{}, false, fmt.Errorf("update student: %w", err)
	}
	return toStudent(m), false, nil
}

func (r studentRepo) List(tenantID string, limit int) ([]domain.Student, error) {
	var rows []studentModel
	q := r.tx.Where("tenant_id = ?", tenantID).Order("sis_id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	out := make([]domain.Student, 0, len(rows))
	for _, m := range rows {
		out = append(out, toStudent(m))
	}
	return out, nil
}

func toStudent(m studentModel) domain.Student {
	return domain.Student{
		ID:               m.ID,
		TenantID:         m.TenantID,
		SchoolID:         m.SchoolID,
		SISID:            m.SISID,
		FirstName:        m.FirstName,
		LastName:         m.LastName,
		GradeLevel:       m.GradeLevel,
		EnrollmentStatus: m.EnrollmentStatus,
		ELLStatus:        m.ELLStatus,
		IDEAFlag:         m.IDEAFlag,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

type ingestRepo struct{ tx *gorm.DB }

func (r ingestRepo) Create(b domain.IngestBatch) error {
	m := ingestBatchModel{
		ID:        b.ID,
		TenantID:  b.TenantID,
		Source:    string(b.Source),
		Status:    string(b.Status),
		CreatedAt: b.CreatedAt.UTC(),
	}
	if err := r.tx.Create(&m).Error; err != nil {
		return fmt.Errorf("create ingest batch: %w", err)
	}
	return nil
}

func (r ingestRepo) Finish(b domain.IngestBatch) error {
	errs := b.Errors
	if errs == nil {
		errs = []string{}
	}
	res := r.tx.Model(&ingestBatchModel{}).Where("id = ?", b.ID).Updates(map[string]any{
		"status":        string(b.Status),
		"rows_ingested": b.RowsIngested,
		"errors":        mustJSON(errs),
		"finished_at":   b.FinishedAt,
	})
	if res.Error != nil {
		return fmt.Errorf("finish ingest batch: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.NotFound("Ingest batch not found")
	}
	return nil
}
