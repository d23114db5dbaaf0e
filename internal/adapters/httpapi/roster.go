package httpapi

import (
	"net/http"
	"strconv"

	"github.com/atvirokodosprendimai/precheck/internal/core/domain"
	"github.com/atvirokodosprendimai/precheck/internal/core/usecase"
)

type upsertStudentRequest struct {
	SISID            string `json:"sis_id"`
	FirstName        string `json:"first_name"`
	LastName         string `json:"last_name"`
	GradeLevel       int    `json:"grade_level"`
	EnrollmentStatus string `json:"enrollment_status"`
	SchoolName       string `json:"school_name"`
	ELLStatus        *bool  `json:"ell_status"`
	IDEAFlag         *bool  `json:"idea_flag"`
}

type createUserRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

func (h *Handler) upsertStudent(w http.ResponseWriter, r *http.Request) {
	var req upsertStudentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	student, created, err := h.svc.Directory.UpsertStudent(r.Context(), tenantIDFromContext(r.Context()), domain.StudentInput{
		SISID:            req.SISID,
		FirstName:        req.FirstName,
		LastName:         req.LastName,
		GradeLevel:       req.GradeLevel,
		EnrollmentStatus: req.EnrollmentStatus,
		SchoolName:       req.SchoolName,
		ELLStatus:        req.ELLStatus,
		IDEAFlag:         req.IDEAFlag,
	})
	if err != nil {
		handleDomainError(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, studentDTO(student))
}

func (h *Handler) listStudents(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	students, err := h.svc.Directory.ListStudents(r.Context(), tenantIDFromContext(r.Context()), limit)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": mapSlice(students, studentDTO)})
}

func (h *Handler) listSchools(w http.ResponseWriter, r *http.Request) {
	schools, err := h.svc.Directory.ListSchools(r.Context(), tenantIDFromContext(r.Context()))
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": mapSlice(schools, schoolDTO)})
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := h.svc.Directory.CreateUser(r.Context(), domain.User{
		TenantID:    tenantIDFromContext(r.Context()),
		Email:       req.Email,
		DisplayName: req.DisplayName,
		Role:        domain.Role(req.Role),
	})
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, userDTO(user))
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.svc.Directory.ListUsers(r.Context(), tenantIDFromContext(r.Context()))
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": mapSlice(users, userDTO)})
}

// importStudentsCSV takes a multipart form with a "file" part and a
// "mapping" field holding the column mapping JSON.
func (h *Handler) importStudentsCSV(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeError(w, http.StatusBadRequest, "multipart form required")
		return
	}
	mapping, err := usecase.ParseMapping([]byte(r.FormValue("mapping")))
	if err != nil {
		handleDomainError(w, err)
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	result, err := h.svc.Ingest.ImportCSV(r.Context(), tenantIDFromContext(r.Context()), actorFromContext(r.Context()), mapping, file)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, result)
}

func (h *Handler) syncPowerSchool(w http.ResponseWriter, r *http.Request) {
	taskID, err := h.svc.Ingest.TriggerSync(r.Context(), tenantIDFromContext(r.Context()), actorFromContext(r.Context()))
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued", "task_id": taskID})
}

func (h *Handler) exportExceptions(w http.ResponseWriter, r *http.Request) {
	data, _, err := h.svc.Reports.ExportExceptions(r.Context(), tenantIDFromContext(r.Context()), actorFromContext(r.Context()))
	if err != nil {
		handleDomainError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename=exceptions.csv")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		h.logger.Error("write export", "error", err)
	}
}

func (h *Handler) readiness(w http.ResponseWriter, r *http.Request) {
	details, err := h.svc.Reports.Readiness(r.Context(), tenantIDFromContext(r.Context()))
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": details})
}

func (h *Handler) listAudit(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	filter := domain.AuditFilter{
		TenantID:   tenantIDFromContext(r.Context()),
		EntityType: q.Get("entity_type"),
		EntityID:   q.Get("entity_id"),
		Action:     q.Get("action"),
		Limit:      limit,
	}
	if raw := q.Get("before_id"); raw != "" {
		before, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "before_id must be integer")
			return
		}
		filter.BeforeID = before
	}
	entries, err := h.svc.Audit.List(r.Context(), filter)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": entries})
}
