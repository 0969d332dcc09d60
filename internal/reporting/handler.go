package reporting

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/unistock-erp/unistock-erp/internal/platform/httpx"
	"github.com/unistock-erp/unistock-erp/internal/shared"
)

// Handler manages reporting endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers reporting routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/reports", func(r chi.Router) {
		r.Get("/warehouses/{id}/summary", h.warehouseSummary)
		r.Get("/rooms/{id}/summary", h.roomSummary)
		r.Get("/expiring", h.expiring)
	})
}

func (h *Handler) warehouseSummary(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.E(shared.KindAuthorization, "identitas aktor tidak ditemukan"))
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, shared.E(shared.KindValidation, "id gudang tidak valid"))
		return
	}
	rows, err := h.service.WarehouseSummary(r.Context(), actor, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": rows})
}

func (h *Handler) roomSummary(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.E(shared.KindAuthorization, "identitas aktor tidak ditemukan"))
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, shared.E(shared.KindValidation, "id ruangan tidak valid"))
		return
	}
	rows, err := h.service.RoomSummary(r.Context(), actor, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": rows})
}

func (h *Handler) expiring(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.E(shared.KindAuthorization, "identitas aktor tidak ditemukan"))
		return
	}
	within := 30 * 24 * time.Hour
	if raw := r.URL.Query().Get("days"); raw != "" {
		if days, err := strconv.Atoi(raw); err == nil && days > 0 {
			within = time.Duration(days) * 24 * time.Hour
		}
	}
	rows, err := h.service.ExpiringBatches(r.Context(), actor, within)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": rows})
}
