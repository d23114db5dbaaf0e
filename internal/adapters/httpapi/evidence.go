package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/atvirokodosprendimai/precheck/internal/core/usecase"
)

type createPacketRequest struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	ExceptionIDs []string `json:"exception_ids"`
}

func (h *Handler) createPacket(w http.ResponseWriter, r *http.Request) {
	var req createPacketRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	packet, err := h.svc.Evidence.Build(r.Context(), tenantIDFromContext(r.Context()), actorFromContext(r.Context()), usecase.PacketRequest{
		Name:         req.Name,
		Description:  req.Description,
		ExceptionIDs: req.ExceptionIDs,
	})
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, packetDTO(packet))
}

func (h *Handler) listPackets(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	packets, err := h.svc.Evidence.List(r.Context(), tenantIDFromContext(r.Context()), limit)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": mapSlice(packets, packetDTO)})
}

func (h *Handler) getPacket(w http.ResponseWriter, r *http.Request) {
	packet, err := h.svc.Evidence.Get(r.Context(), tenantIDFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, packetDTO(packet))
}

func (h *Handler) verifyPacket(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.Evidence.Verify(r.Context(), tenantIDFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
