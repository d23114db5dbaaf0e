package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/atvirokodosprendimai/precheck/internal/core/domain"
	"github.com/atvirokodosprendimai/precheck/internal/core/ports"
)

// DirectoryService manages the tenant's people: users and students.
type DirectoryService struct {
	store ports.Store
	now   func() time.Time
}

func NewDirectoryService(store ports.Store) *DirectoryService {
	return &DirectoryService{store: store, now: time.Now}
}

func (s *DirectoryService) CreateUser(ctx context.Context, u domain.User) (domain.User, error) {
	u.Email = strings.TrimSpace(strings.ToLower(u.Email))
	if u.Role == "" {
		u.Role = domain.RoleReviewer
	}
	if err := u.Validate(); err != nil {
		return domain.User{}, err
	}
	u.ID = domain.NewID()
	u.CreatedAt = s.now().UTC()
	err := s.store.Write(ctx, func(tx ports.Tx) error {
		return tx.Users().Create(u)
	})
	if err != nil {
		return domain.User{}, err
	}
	return u, nil
}

func (s *DirectoryService) GetUser(ctx context.Context, tenantID, id string) (domain.User, error) {
	if err := domain.ValidateID("user", id); err != nil {
		return domain.User{}, domain.NotFound("User not found")
	}
	var u domain.User
	err := s.store.Read(ctx, func(tx ports.Tx) error {
		var err error
		u, err = tx.Users().Get(tenantID, id)
		return err
	})
	return u, err
}

func (s *DirectoryService) ListUsers(ctx context.Context, tenantID string) ([]domain.User, error) {
	var out []domain.User
	err := s.store.Read(ctx, func(tx ports.Tx) error {
		var err error
		out, err = tx.Users().List(tenantID)
		return err
	})
	return out, err
}

// UpsertStudent creates or updates a student keyed by sis_id, creating the
// school on first sight. It reports whether the student was created.
func (s *DirectoryService) UpsertStudent(ctx context.Context, tenantID string, in domain.StudentInput) (domain.Student, bool, error) {
	in = normalizeStudent(in)
	if err := in.Validate(); err != nil {
		return domain.Student{}, false, err
	}
	var (
		st      domain.Student
		created bool
	)
	err := s.store.Write(ctx, func(tx ports.Tx) error {
		var err error
		st, created, err = upsertStudent(tx, tenantID, in, s.now())
		return err
	})
	return st, created, err
}

func (s *DirectoryService) ListStudents(ctx context.Context, tenantID string, limit int) ([]domain.Student, error) {
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	var out []domain.Student
	err := s.store.Read(ctx, func(tx ports.Tx) error {
		var err error
		out, err = tx.Students().List(tenantID, limit)
		return err
	})
	return out, err
}

func (s *DirectoryService) ListSchools(ctx context.Context, tenantID string) ([]domain.School, error) {
	var out []domain.School
	err := s.store.Read(ctx, func(tx ports.Tx) error {
		var err error
		out, err = tx.Schools().List(tenantID)
		return err
	})
	return out, err
}

func upsertStudent(tx ports.Tx, tenantID string, in domain.StudentInput, now time.Time) (domain.Student, bool, error) {
	school, err := tx.Schools().FindOrCreate(tenantID, in.SchoolName, now)
	if err != nil {
		return domain.Student{}, false, err
	}
	return tx.Students().Upsert(tenantID, school.ID, in, now)
}

func normalizeStudent(in domain.StudentInput) domain.StudentInput {
	in.SISID = strings.TrimSpace(in.SISID)
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.SchoolName = strings.TrimSpace(in.SchoolName)
	in.EnrollmentStatus = strings.TrimSpace(in.EnrollmentStatus)
	if in.EnrollmentStatus == "" {
		in.EnrollmentStatus = "active"
	}
	return in
}
