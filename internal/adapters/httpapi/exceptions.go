package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/atvirokodosprendimai/precheck/internal/core/domain"
	"github.com/atvirokodosprendimai/precheck/internal/core/usecase"
)

type createExceptionRequest struct {
	RuleResultID string  `json:"rule_result_id"`
	OwnerUserID  string  `json:"owner_user_id"`
	Rationale    string  `json:"rationale"`
	DueDate      *string `json:"due_date"`
}

type updateExceptionRequest struct {
	Status      *string `json:"status"`
	OwnerUserID *string `json:"owner_user_id"`
	Rationale   *string `json:"rationale"`
	DueDate     *string `json:"due_date"`
	Approved    bool    `json:"approved"`
}

type createMemoRequest struct {
	Title       string `json:"title"`
	BodyMD      string `json:"body_md"`
	GeneratedBy string `json:"generated_by"`
}

func optionalDate(raw *string) (*time.Time, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	t, err := parseDate(*raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (h *Handler) createException(w http.ResponseWriter, r *http.Request) {
	var req createExceptionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	due, err := optionalDate(req.DueDate)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	rec, err := h.svc.Exceptions.Create(r.Context(), tenantIDFromContext(r.Context()), actorFromContext(r.Context()), usecase.ExceptionInput{
		RuleResultID: req.RuleResultID,
		OwnerUserID:  req.OwnerUserID,
		Rationale:    req.Rationale,
		DueDate:      due,
	})
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, exceptionDTO(rec))
}

func (h *Handler) listExceptions(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	recs, err := h.svc.Exceptions.List(r.Context(), tenantIDFromContext(r.Context()), limit)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": mapSlice(recs, exceptionDTO)})
}

func (h *Handler) getException(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.Exceptions.Get(r.Context(), tenantIDFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exceptionDTO(rec))
}

func (h *Handler) updateException(w http.ResponseWriter, r *http.Request) {
	var req updateExceptionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	due, err := optionalDate(req.DueDate)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	rec, err := h.svc.Exceptions.Update(r.Context(), tenantIDFromContext(r.Context()), actorFromContext(r.Context()), chi.URLParam(r, "id"), domain.ExceptionUpdate{
		Status:      req.Status,
		OwnerUserID: req.OwnerUserID,
		Rationale:   req.Rationale,
		DueDate:     due,
		Approved:    req.Approved,
	})
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exceptionDTO(rec))
}

func (h *Handler) addMemo(w http.ResponseWriter, r *http.Request) {
	var req createMemoRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	memo, err := h.svc.Exceptions.AddMemo(r.Context(), tenantIDFromContext(r.Context()), actorFromContext(r.Context()), chi.URLParam(r, "id"), usecase.MemoInput{
		Title:       req.Title,
		BodyMD:      req.BodyMD,
		GeneratedBy: req.GeneratedBy,
	})
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, memoDTO(memo))
}

func (h *Handler) listMemos(w http.ResponseWriter, r *http.Request) {
	memos, err := h.svc.Exceptions.ListMemos(r.Context(), tenantIDFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": mapSlice(memos, memoDTO)})
}
