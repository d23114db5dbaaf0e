package sqlite

import (
	"time"

	"gorm.io/datatypes"
)

type tenantModel struct {
	ID        string    `gorm:"column:id;primaryKey"`
	Name      string    `gorm:"column:name;not null"`
	Timezone  string    `gorm:"column:timezone;not null"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

func (tenantModel) TableName() string { return "tenants" }

type userModel struct {
	ID          string    `gorm:"column:id;primaryKey"`
	TenantID    string    `gorm:"column:tenant_id;not null"`
	Email       string    `gorm:"column:email;not null"`
	DisplayName string    `gorm:"column:display_name;not null"`
	Role        string    `gorm:"column:role;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;not null"`
}

func (userModel) TableName() string { return "users" }

type schoolModel struct {
	ID        string    `gorm:"column:id;primaryKey"`
	TenantID  string    `gorm:"column:tenant_id;not null"`
	Name      string    `gorm:"column:name;not null"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

func (schoolModel) TableName() string { return "schools" }

type studentModel struct {
	ID               string    `gorm:"column:id;primaryKey"`
	TenantID         string    `gorm:"column:tenant_id;not null"`
	SchoolID         string    `gorm:"column:school_id;not null"`
	SISID            string    `gorm:"column:sis_id;not null"`
	FirstName        string    `gorm:"column:first_name;not null"`
	LastName         string    `gorm:"column:last_name;not null"`
	GradeLevel       *int      `gorm:"column:grade_level"`
	EnrollmentStatus string    `gorm:"column:enrollment_status;not null"`
	ELLStatus        bool      `gorm:"column:ell_status;not null"`
	IDEAFlag         bool      `gorm:"column:idea_flag;not null"`
	CreatedAt        time.Time `gorm:"column:created_at;not null"`
	UpdatedAt        time.Time `gorm:"column:updated_at;not null"`
}

func (studentModel) TableName() string { return "students" }

type ruleVersionModel struct {
	ID          string         `gorm:"column:id;primaryKey"`
	TenantID    *string        `gorm:"column:tenant_id"`
	Code        string         `gorm:"column:code;not null"`
	Title       string         `gorm:"column:title;not null"`
	Severity    string         `gorm:"column:severity;not null"`
	AppliesTo   string         `gorm:"column:applies_to;not null"`
	DSL         datatypes.JSON `gorm:"column:dsl;not null"`
	Remediation string         `gorm:"column:remediation;not null"`
	Enabled     bool           `gorm:"column:enabled;not null"`
	CreatedAt   time.Time      `gorm:"column:created_at;not null"`
	UpdatedAt   time.Time      `gorm:"column:updated_at;not null"`
}

func (ruleVersionModel) TableName() string { return "rule_versions" }

type ruleRunModel struct {
	ID            string         `gorm:"column:id;primaryKey"`
	TenantID      string         `gorm:"column:tenant_id;not null"`
	RuleVersionID *string        `gorm:"column:rule_version_id"`
	InitiatedBy   string         `gorm:"column:initiated_by;not null"`
	Status        string         `gorm:"column:status;not null"`
	Scope         datatypes.JSON `gorm:"column:scope"`
	Violations    int            `gorm:"column:violations;not null"`
	LastError     string         `gorm:"column:last_error;not null"`
	StartedAt     *time.Time     `gorm:"column:started_at"`
	FinishedAt    *time.Time     `gorm:"column:finished_at"`
	CreatedAt     time.Time      `gorm:"column:created_at;not null"`
}

func (ruleRunModel) TableName() string { return "rule_runs" }

type ruleResultModel struct {
	ID         string         `gorm:"column:id;primaryKey"`
	RuleRunID  string         `gorm:"column:rule_run_id;not null"`
	TenantID   string         `gorm:"column:tenant_id;not null"`
	SchoolID   *string        `gorm:"column:school_id"`
	RuleCode   string         `gorm:"column:rule_code;not null"`
	EntityType string         `gorm:"column:entity_type;not null"`
	EntityID   string         `gorm:"column:entity_id;not null"`
	Severity   string         `gorm:"column:severity;not null"`
	Status     string         `gorm:"column:status;not null"`
	Message    string         `gorm:"column:message;not null"`
	Details    datatypes.JSON `gorm:"column:details"`
	CreatedAt  time.Time      `gorm:"column:created_at;not null"`
}

func (ruleResultModel) TableName() string { return "rule_results" }

type exceptionModel struct {
	ID           string     `gorm:"column:id;primaryKey"`
	TenantID     string     `gorm:"column:tenant_id;not null"`
	RuleResultID string     `gorm:"column:rule_result_id;not null"`
	OwnerUserID  *string    `gorm:"column:owner_user_id"`
	Status       string     `gorm:"column:status;not null"`
	Rationale    string     `gorm:"column:rationale;not null"`
	DueDate      *time.Time `gorm:"column:due_date"`
	ApprovedBy   *string    `gorm:"column:approved_by"`
	ApprovedAt   *time.Time `gorm:"column:approved_at"`
	CreatedAt    time.Time  `gorm:"column:created_at;not null"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;not null"`
}

func (exceptionModel) TableName() string { return "exceptions" }

type exceptionMemoModel struct {
	ID          int64     `gorm:"column:id;primaryKey;autoIncrement"`
	TenantID    string    `gorm:"column:tenant_id;not null"`
	ExceptionID string    `gorm:"column:exception_id;not null"`
	Title       string    `gorm:"column:title;not null"`
	BodyMD      string    `gorm:"column:body_md;not null"`
	GeneratedBy string    `gorm:"column:generated_by;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;not null"`
}

func (exceptionMemoModel) TableName() string { return "exception_memos" }

type evidencePacketModel struct {
	ID          string    `gorm:"column:id;primaryKey"`
	TenantID    string    `gorm:"column:tenant_id;not null"`
	Name        string    `gorm:"column:name;not null"`
	Description string    `gorm:"column:description;not null"`
	ArchiveURI  string    `gorm:"column:archive_uri;not null"`
	SHA256      string    `gorm:"column:sha256;not null"`
	CreatedBy   string    `gorm:"column:created_by;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;not null"`
}

func (evidencePacketModel) TableName() string { return "evidence_packets" }

type evidenceItemModel struct {
	ID          string    `gorm:"column:id;primaryKey"`
	TenantID    string    `gorm:"column:tenant_id;not null"`
	PacketID    *string   `gorm:"column:packet_id"`
	ExceptionID *string   `gorm:"column:exception_id"`
	Kind        string    `gorm:"column:kind;not null"`
	Title       string    `gorm:"column:title;not null"`
	URI         string    `gorm:"column:uri;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;not null"`
}

func (evidenceItemModel) TableName() string { return "evidence_items" }

type auditLogModel struct {
	ID         int64          `gorm:"column:id;primaryKey;autoIncrement"`
	TenantID   string         `gorm:"column:tenant_id;not null"`
	Actor      string         `gorm:"column:actor;not null"`
	ActorUser  *string        `gorm:"column:actor_user"`
	Action     string         `gorm:"column:action;not null"`
	EntityType string         `gorm:"column:entity_type;not null"`
	EntityID   string         `gorm:"column:entity_id;not null"`
	Metadata   datatypes.JSON `gorm:"column:metadata"`
	OccurredAt time.Time      `gorm:"column:occurred_at;not null"`
}

func (auditLogModel) TableName() string { return "audit_logs" }

type outboxEventModel struct {
	ID            int64      `gorm:"column:id;primaryKey;autoIncrement"`
	EventID       string     `gorm:"column:event_id;not null"`
	TenantID      string     `gorm:"column:tenant_id;not null"`
	Topic         string     `gorm:"column:topic;not null"`
	PayloadJSON   string     `gorm:"column:payload_json;not null"`
	Status        string     `gorm:"column:status;not null"`
	Attempts      int        `gorm:"column:attempts;not null"`
	NextAttemptAt time.Time  `gorm:"column:next_attempt_at;not null"`
	LastError     string     `gorm:"column:last_error;not null"`
	CreatedAt     time.Time  `gorm:"column:created_at;not null"`
	DispatchedAt  *time.Time `gorm:"column:dispatched_at"`
}

func (outboxEventModel) TableName() string { return "outbox_events" }

type ingestBatchModel struct {
	ID           string         `gorm:"column:id;primaryKey"`
	TenantID     string         `gorm:"column:tenant_id;not null"`
	Source       string         `gorm:"column:source;not null"`
	Status       string         `gorm:"column:status;not null"`
	RowsIngested int            `gorm:"column:rows_ingested;not null"`
	Errors       datatypes.JSON `gorm:"column:errors"`
	CreatedAt    time.Time      `gorm:"column:created_at;not null"`
	FinishedAt   *time.Time     `gorm:"column:finished_at"`
}

func (ingestBatchModel) TableName() string { return "ingest_batches" }
