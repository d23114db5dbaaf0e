package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/atvirokodosprendimai/precheck/internal/core/domain"
	"github.com/atvirokodosprendimai/precheck/internal/core/usecase"
)

const timeFormat = "2006-01-02T15:04:05.999999999Z07:00"

type ctxKey string

const (
	tenantIDCtxKey ctxKey = "tenant_id"
	apiActorCtxKey ctxKey = "api_actor"
	apiRoleCtxKey  ctxKey = "api_role"
)

const (
	maxJSONBodySize = 1 << 20
	maxUploadSize   = 10 << 20
)

// Services are the use cases the API exposes.
type Services struct {
	Auth       *usecase.AuthService
	Catalog    *usecase.CatalogService
	Runs       *usecase.RunOrchestrator
	Exceptions *usecase.ExceptionService
	Evidence   *usecase.EvidenceService
	Ingest     *usecase.IngestService
	Directory  *usecase.DirectoryService
	Reports    *usecase.ReportService
	Audit      *usecase.AuditService
}

type Handler struct {
	svc     Services
	metrics http.Handler
	logger  *slog.Logger
}

// NewHandler builds the API. metrics may be nil to omit /metrics.
func NewHandler(svc Services, metrics http.Handler, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, metrics: metrics, logger: logger.With("component", "http")}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	r.Get("/healthz", h.healthz)
	r.Get("/openapi.json", h.openapi)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}

	r.Group(func(pr chi.Router) {
		pr.Use(h.requireAPIKey)

		pr.Get("/v1/rules/versions", h.listRuleVersions)
		pr.Get("/v1/rules/runs", h.listRuns)
		pr.Get("/v1/rules/runs/{id}", h.getRun)
		pr.Get("/v1/rules/results", h.listResults)

		pr.Get("/v1/exceptions", h.listExceptions)
		pr.Get("/v1/exceptions/{id}", h.getException)
		pr.Get("/v1/exceptions/{id}/memos", h.listMemos)

		pr.Get("/v1/evidence/packets", h.listPackets)
		pr.Get("/v1/evidence/packets/{id}", h.getPacket)
		pr.Get("/v1/evidence/packets/{id}/verify", h.verifyPacket)

		pr.Get("/v1/schools", h.listSchools)
		pr.Get("/v1/students", h.listStudents)
		pr.Get("/v1/users", h.listUsers)
		pr.Get("/v1/readiness", h.readiness)
		pr.Get("/v1/audit", h.listAudit)

		pr.Group(func(wr chi.Router) {
			wr.Use(requireRole(domain.RoleAdmin, domain.RoleReviewer))
			wr.Post("/v1/rules/runs", h.triggerRun)
			wr.Post("/v1/exceptions", h.createException)
			wr.Patch("/v1/exceptions/{id}", h.updateException)
			wr.Post("/v1/exceptions/{id}/memos", h.addMemo)
			wr.Post("/v1/evidence/packets", h.createPacket)
			wr.Post("/v1/students", h.upsertStudent)
			wr.Post("/v1/import/students/csv", h.importStudentsCSV)
			wr.Get("/v1/exports/exceptions.csv", h.exportExceptions)
		})

		pr.Group(func(ar chi.Router) {
			ar.Use(requireRole(domain.RoleAdmin))
			ar.Post("/v1/rules/versions", h.createRuleVersion)
			ar.Post("/v1/users", h.createUser)
			ar.Post("/v1/connectors/powerschool/sync", h.syncPowerSchool)
		})
	})

	return r
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) openapi(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, openapiSpec())
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)
		h.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"elapsed", time.Since(started),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// requireAPIKey resolves the tenant and actor from X-API-Key or a bearer
// token. Keys bound to a user carry that user's role; unbound keys act as
// admin service keys.
func (h *Handler) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimSpace(r.Header.Get("X-API-Key"))
		if token == "" {
			auth := strings.TrimSpace(r.Header.Get("Authorization"))
			if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
				token = strings.TrimSpace(auth[7:])
			}
		}

		apiKey, err := h.svc.Auth.Authenticate(r.Context(), token)
		if err != nil {
			if errors.Is(err, usecase.ErrUnauthorized) {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			h.logger.Error("authenticate", "error", err)
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}

		role := domain.RoleAdmin
		if apiKey.UserID != "" && h.svc.Directory != nil {
			user, err := h.svc.Directory.GetUser(r.Context(), apiKey.TenantID, apiKey.UserID)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			role = user.Role
		}

		ctx := context.WithValue(r.Context(), tenantIDCtxKey, apiKey.TenantID)
		ctx = context.WithValue(ctx, apiActorCtxKey, usecase.ActorFor(apiKey))
		ctx = context.WithValue(ctx, apiRoleCtxKey, role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requireRole(allowed ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, _ := r.Context().Value(apiRoleCtxKey).(domain.Role)
			for _, a := range allowed {
				if role == a {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, http.StatusForbidden, "Insufficient permissions")
		})
	}
}

func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be integer")
			return 0, false
		}
		limit = parsed
	}
	return limit, true
}

// decodeJSON reads exactly one JSON value into dst, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodySize)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	if err := ensureEOF(decoder); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		slog.Error("encode json response", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(data, '\n')); err != nil {
		slog.Error("write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}

func handleDomainError(w http.ResponseWriter, err error) {
	var de *domain.Error
	if !errors.As(err, &de) {
		slog.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	switch de.Code {
	case domain.CodeValidation:
		writeError(w, http.StatusBadRequest, de.Error())
	case domain.CodeNotFound:
		writeError(w, http.StatusNotFound, de.Error())
	case domain.CodeConflict:
		writeError(w, http.StatusConflict, de.Error())
	default:
		slog.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func ensureEOF(decoder *json.Decoder) error {
	var extra json.RawMessage
	if err := decoder.Decode(&extra); err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}
	return errors.New("extra json tokens")
}

func tenantIDFromContext(ctx context.Context) string {
	tenant, _ := ctx.Value(tenantIDCtxKey).(string)
	return tenant
}

func actorFromContext(ctx context.Context) domain.Actor {
	actor, _ := ctx.Value(apiActorCtxKey).(domain.Actor)
	return actor
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

// parseDate accepts a calendar date or an RFC 3339 timestamp.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, domain.Invalid("due_date must be YYYY-MM-DD or RFC 3339")
	}
	return t, nil
}
