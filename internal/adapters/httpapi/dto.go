package httpapi

import (
	"encoding/json"

	"github.com/atvirokodosprendimai/precheck/internal/core/domain"
)

type ruleVersionResponse struct {
	ID          string          `json:"id"`
	TenantID    *string         `json:"tenant_id"`
	Code        string          `json:"code"`
	Title       string          `json:"title"`
	Severity    string          `json:"severity"`
	AppliesTo   string          `json:"applies_to"`
	DSL         json.RawMessage `json:"dsl"`
	Remediation string          `json:"remediation"`
	Enabled     bool            `json:"enabled"`
	CreatedAt   string          `json:"created_at"`
	UpdatedAt   string          `json:"updated_at"`
}

func ruleVersionDTO(v domain.RuleVersion) ruleVersionResponse {
	out := ruleVersionResponse{
		ID:          v.ID,
		Code:        v.Code,
		Title:       v.Title,
		Severity:    string(v.Severity),
		AppliesTo:   string(v.AppliesTo),
		DSL:         v.DSL,
		Remediation: v.Remediation,
		Enabled:     v.Enabled,
		CreatedAt:   formatTime(v.CreatedAt),
		UpdatedAt:   formatTime(v.UpdatedAt),
	}
	if !v.Global() {
		tenant := v.TenantID
		out.TenantID = &tenant
	}
	return out
}

type runResponse struct {
	ID            string          `json:"id"`
	TenantID      string          `json:"tenant_id"`
	RuleVersionID string          `json:"rule_version_id,omitempty"`
	InitiatedBy   string          `json:"initiated_by,omitempty"`
	Status        string          `json:"status"`
	Scope         json.RawMessage `json:"scope,omitempty"`
	Violations    int             `json:"violations"`
	LastError     string          `json:"last_error,omitempty"`
	StartedAt     *string         `json:"started_at"`
	FinishedAt    *string         `json:"finished_at"`
	CreatedAt     string          `json:"created_at"`
}

func runDTO(r domain.RuleRun) runResponse {
	return runResponse{
		ID:            r.ID,
		TenantID:      r.TenantID,
		RuleVersionID: r.RuleVersionID,
		InitiatedBy:   r.InitiatedBy,
		Status:        string(r.Status),
		Scope:         r.Scope,
		Violations:    r.Violations,
		LastError:     r.LastError,
		StartedAt:     formatTimePtr(r.StartedAt),
		FinishedAt:    formatTimePtr(r.FinishedAt),
		CreatedAt:     formatTime(r.CreatedAt),
	}
}

type resultResponse struct {
	ID         string          `json:"id"`
	RuleRunID  string          `json:"rule_run_id"`
	SchoolID   string          `json:"school_id,omitempty"`
	RuleCode   string          `json:"rule_code"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Severity   string          `json:"severity"`
	Status     string          `json:"status"`
	Message    string          `json:"message"`
	Details    json.RawMessage `json:"details,omitempty"`
	CreatedAt  string          `json:"created_at"`
}

func resultDTO(r domain.RuleResult) resultResponse {
	return resultResponse{
		ID:         r.ID,
		RuleRunID:  r.RuleRunID,
		SchoolID:   r.SchoolID,
		RuleCode:   r.RuleCode,
		EntityType: string(r.EntityType),
		EntityID:   r.EntityID,
		Severity:   string(r.Severity),
		Status:     string(r.Status),
		Message:    r.Message,
		Details:    r.Details,
		CreatedAt:  formatTime(r.CreatedAt),
	}
}

type exceptionResponse struct {
	ID           string  `json:"id"`
	RuleResultID string  `json:"rule_result_id"`
	OwnerUserID  string  `json:"owner_user_id,omitempty"`
	Status       string  `json:"status"`
	Rationale    string  `json:"rationale"`
	DueDate      *string `json:"due_date"`
	ApprovedBy   string  `json:"approved_by,omitempty"`
	ApprovedAt   *string `json:"approved_at"`
	CreatedAt    string  `json:"created_at"`
	UpdatedAt    string  `json:"updated_at"`
}

func exceptionDTO(e domain.ExceptionRecord) exceptionResponse {
	return exceptionResponse{
		ID:           e.ID,
		RuleResultID: e.RuleResultID,
		OwnerUserID:  e.OwnerUserID,
		Status:       string(e.Status),
		Rationale:    e.Rationale,
		DueDate:      formatTimePtr(e.DueDate),
		ApprovedBy:   e.ApprovedBy,
		ApprovedAt:   formatTimePtr(e.ApprovedAt),
		CreatedAt:    formatTime(e.CreatedAt),
		UpdatedAt:    formatTime(e.UpdatedAt),
	}
}

type memoResponse struct {
	ID          int64  `json:"id"`
	ExceptionID string `json:"exception_id"`
	Title       string `json:"title"`
	BodyMD      string `json:"body_md"`
	GeneratedBy string `json:"generated_by"`
	CreatedAt   string `json:"created_at"`
}

func memoDTO(m domain.ExceptionMemo) memoResponse {
	return memoResponse{
		ID:          m.ID,
		ExceptionID: m.ExceptionID,
		Title:       m.Title,
		BodyMD:      m.BodyMD,
		GeneratedBy: m.GeneratedBy,
		CreatedAt:   formatTime(m.CreatedAt),
	}
}

type packetItemResponse struct {
	ID          string `json:"id"`
	ExceptionID string `json:"exception_id,omitempty"`
	Kind        string `json:"kind"`
	Title       string `json:"title"`
	URI         string `json:"uri"`
}

type packetResponse struct {
	ID          string               `json:"id"`
	Name        string               `json:"name"`
	Description string               `json:"description"`
	ArchiveURI  string               `json:"archive_uri"`
	SHA256      string               `json:"sha256"`
	CreatedBy   string               `json:"created_by,omitempty"`
	CreatedAt   string               `json:"created_at"`
	Items       []packetItemResponse `json:"items"`
}

func packetDTO(p domain.EvidencePacket) packetResponse {
	items := make([]packetItemResponse, 0, len(p.Items))
	for _, it := range p.Items {
		items = append(items, packetItemResponse{
			ID:          it.ID,
			ExceptionID: it.ExceptionID,
			Kind:        string(it.Kind),
			Title:       it.Title,
			URI:         it.URI,
		})
	}
	return packetResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		ArchiveURI:  p.ArchiveURI,
		SHA256:      p.SHA256,
		CreatedBy:   p.CreatedBy,
		CreatedAt:   formatTime(p.CreatedAt),
		Items:       items,
	}
}

type studentResponse struct {
	ID               string `json:"id"`
	SchoolID         string `json:"school_id"`
	SISID            string `json:"sis_id"`
	FirstName        string `json:"first_name"`
	LastName         string `json:"last_name"`
	GradeLevel       *int   `json:"grade_level"`
	EnrollmentStatus string `json:"enrollment_status"`
	ELLStatus        bool   `json:"ell_status"`
	IDEAFlag         bool   `json:"idea_flag"`
	UpdatedAt        string `json:"updated_at"`
}

func studentDTO(s domain.Student) studentResponse {
	return studentResponse{
		ID:               s.ID,
		SchoolID:         s.SchoolID,
		SISID:            s.SISID,
		FirstName:        s.FirstName,
		LastName:         s.LastName,
		GradeLevel:       s.GradeLevel,
		EnrollmentStatus: s.EnrollmentStatus,
		ELLStatus:        s.ELLStatus,
		IDEAFlag:         s.IDEAFlag,
		UpdatedAt:        formatTime(s.UpdatedAt),
	}
}

type schoolResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
}

func schoolDTO(s domain.School) schoolResponse {
	return schoolResponse{ID: s.ID, Name: s.Name, CreatedAt: formatTime(s.CreatedAt)}
}

type userResponse struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
	CreatedAt   string `json:"created_at"`
}

func userDTO(u domain.User) userResponse {
	return userResponse{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		Role:        string(u.Role),
		CreatedAt:   formatTime(u.CreatedAt),
	}
}

func mapSlice[T, R any](in []T, fn func(T) R) []R {
	out := make([]R, 0, len(in))
	for _, v := range in {
		out = append(out, fn(v))
	}
	return out
}
