package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/atvirokodosprendimai/precheck/internal/core/domain"
	"github.com/atvirokodosprendimai/precheck/internal/core/usecase"
)

type createRuleVersionRequest struct {
	Code        string          `json:"code"`
	Title       string          `json:"title"`
	Severity    string          `json:"severity"`
	AppliesTo   string          `json:"applies_to"`
	DSL         json.RawMessage `json:"dsl"`
	Remediation string          `json:"remediation"`
	Enabled     *bool           `json:"enabled"`
}

type triggerRunRequest struct {
	RuleVersionID string          `json:"rule_version_id"`
	Scope         json.RawMessage `json:"scope"`
}

func (h *Handler) listRuleVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := h.svc.Catalog.List(r.Context(), tenantIDFromContext(r.Context()))
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": mapSlice(versions, ruleVersionDTO)})
}

func (h *Handler) createRuleVersion(w http.ResponseWriter, r *http.Request) {
	var req createRuleVersionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	version, err := h.svc.Catalog.Create(r.Context(), tenantIDFromContext(r.Context()), actorFromContext(r.Context()), usecase.RuleVersionInput{
		Code:        req.Code,
		Title:       req.Title,
		Severity:    req.Severity,
		AppliesTo:   req.AppliesTo,
		DSL:         req.DSL,
		Remediation: req.Remediation,
		Enabled:     req.Enabled,
	})
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ruleVersionDTO(version))
}

func (h *Handler) triggerRun(w http.ResponseWriter, r *http.Request) {
	var req triggerRunRequest
	if r.ContentLength != 0 {
		if !decodeJSON(w, r, &req) {
			return
		}
	}
	run, err := h.svc.Runs.Trigger(r.Context(), tenantIDFromContext(r.Context()), actorFromContext(r.Context()), req.RuleVersionID, req.Scope)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, runDTO(run))
}

func (h *Handler) listRuns(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	runs, err := h.svc.Runs.List(r.Context(), tenantIDFromContext(r.Context()), limit)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": mapSlice(runs, runDTO)})
}

func (h *Handler) getRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.svc.Runs.Get(r.Context(), tenantIDFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, runDTO(run))
}

func (h *Handler) listResults(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	filter := domain.ResultFilter{
		TenantID:  tenantIDFromContext(r.Context()),
		RuleRunID: r.URL.Query().Get("rule_run_id"),
		Limit:     limit,
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, err := domain.ParseResultStatus(raw)
		if err != nil {
			handleDomainError(w, err)
			return
		}
		filter.Status = status
	}
	results, err := h.svc.Runs.Results(r.Context(), filter)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": mapSlice(results, resultDTO)})
}
