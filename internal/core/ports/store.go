package ports

import (
	"context"
	"time"

	"github.com/atvirokodosprendimai/precheck/internal/core/domain"
)

// Store is the unit of work. Every repository reached through Tx shares the
// same database transaction, which commits when fn returns nil.
type Store interface {
	Read(ctx context.Context, fn func(Tx) error) error
	Write(ctx context.Context, fn func(Tx) error) error
}

type Tx interface {
	Tenants() TenantRepository
	Users() UserRepository
	Schools() SchoolRepository
	Students() StudentRepository
	Rules() RuleRepository
	Runs() RunRepository
	Results() ResultRepository
	Exceptions() ExceptionRepository
	Evidence() EvidenceRepository
	Audit() AuditRepository
	Ingest() IngestRepository
}

type TenantRepository interface {
	Ensure(t domain.Tenant) error
	Get(id string) (domain.Tenant, error)
}

type UserRepository interface {
	Create(u domain.User) error
	Get(tenantID, id string) (domain.User, error)
	List(tenantID string) ([]domain.User, error)
}

type SchoolRepository interface {
	// FindOrCreate matches an existing school by case-insensitive name.
	FindOrCreate(tenantID, name string, now time.Time) (domain.School, error)
	List(tenantID string) ([]domain.School, error)
}

type StudentRepository interface {
	Upsert(tenantID, schoolID string, in domain.StudentInput, now time.Time) (domain.Student, bool, error)
	// List returns students ordered by sis_id. limit <= 0 returns all.
	List(tenantID string, limit int) ([]domain.Student, error)
}

type RuleRepository interface {
	Create(v domain.RuleVersion) error
	Get(id string) (domain.RuleVersion, error)
	// Visible returns tenant-owned and global versions ordered by code.
	Visible(tenantID string) ([]domain.RuleVersion, error)
	// UpsertGlobal inserts or refreshes a global version keyed by code.
	UpsertGlobal(v domain.RuleVersion) (bool, error)
}

type RunRepository interface {
	Create(r domain.RuleRun) error
	Get(tenantID, id string) (domain.RuleRun, error)
	List(tenantID string, limit int) ([]domain.RuleRun, error)
	MarkRunning(id string, at time.Time) error
	Finish(id string, status domain.RunStatus, at time.Time, violations int, lastError string) error
}

type ResultRepository interface {
	Insert(results []domain.RuleResult) error
	Get(tenantID, id string) (domain.RuleResult, error)
	GetMany(tenantID string, ids []string) (map[string]domain.RuleResult, error)
	List(filter domain.ResultFilter) ([]domain.RuleResult, error)
}

type ExceptionRepository interface {
	Create(e domain.ExceptionRecord) error
	Get(tenantID, id string) (domain.ExceptionRecord, error)
	GetMany(tenantID string, ids []string) ([]domain.ExceptionRecord, error)
	ExistsForResult(resultID string) (bool, error)
	Update(e domain.ExceptionRecord) error
	List(tenantID string, limit int) ([]domain.ExceptionRecord, error)
	AddMemo(m domain.ExceptionMemo) (domain.ExceptionMemo, error)
	ListMemos(tenantID, exceptionID string) ([]domain.ExceptionMemo, error)
}

type EvidenceRepository interface {
	CreatePacket(p domain.EvidencePacket) error
	GetPacket(tenantID, id string) (domain.EvidencePacket, error)
	ListPackets(tenantID string, limit int) ([]domain.EvidencePacket, error)
}

// AuditRepository is append-only. Append also queues the entry for outbound
// delivery in the same transaction.
type AuditRepository interface {
	Append(e domain.AuditEntry) (domain.AuditEntry, error)
	List(filter domain.AuditFilter) ([]domain.AuditEntry, error)
}

type IngestRepository interface {
	Create(b domain.IngestBatch) error
	Finish(b domain.IngestBatch) error
}
