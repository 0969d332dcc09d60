package usage

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/unistock-erp/unistock-erp/internal/platform/httpx"
	"github.com/unistock-erp/unistock-erp/internal/shared"
)

// Handler manages usage report endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoutes registers usage routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/usage-reports", func(r chi.Router) {
		r.Post("/", h.create)
		r.Get("/", h.list)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.show)
			r.Delete("/", h.remove)
		})
	})
}

type reportPayload struct {
	RoomID int64             `json:"room_id" validate:"required"`
	Notes  string            `json:"notes"`
	Lines  []usageLineInput  `json:"lines" validate:"required,min=1,dive"`
}

type usageLineInput struct {
	ConsumableID int64           `json:"consumable_id" validate:"required"`
	Qty          decimal.Decimal `json:"qty" validate:"required"`
}

type reportResponse struct {
	ID        uuid.UUID   `json:"id"`
	Code      string      `json:"code"`
	RoomID    int64       `json:"room_id"`
	UnitID    int64       `json:"unit_id"`
	Notes     string      `json:"notes,omitempty"`
	Details   []detailDTO `json:"details,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

type detailDTO struct {
	ID           int64           `json:"id"`
	ConsumableID int64           `json:"consumable_id"`
	Qty          decimal.Decimal `json:"qty"`
}

func toResponse(report Report, details []Detail) reportResponse {
	resp := reportResponse{
		ID:        report.ID,
		Code:      report.Code,
		RoomID:    report.RoomID,
		UnitID:    report.UnitID,
		Notes:     report.Notes,
		CreatedAt: report.CreatedAt,
	}
	for _, detail := range details {
		resp.Details = append(resp.Details, detailDTO{
			ID: detail.ID, ConsumableID: detail.ConsumableID, Qty: detail.Qty,
		})
	}
	return resp
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.E(shared.KindAuthorization, "identitas aktor tidak ditemukan"))
		return
	}
	var payload reportPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.RespondError(w, shared.E(shared.KindValidation, "payload tidak dapat dibaca"))
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.RespondError(w, shared.WrapE(shared.KindValidation, err, "payload tidak lengkap"))
		return
	}
	input := ReportInput{RoomID: payload.RoomID, Notes: payload.Notes}
	for _, line := range payload.Lines {
		input.Lines = append(input.Lines, LineInput{ConsumableID: line.ConsumableID, Qty: line.Qty})
	}
	report, err := h.service.Report(r.Context(), actor, input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("usage reported",
		slog.String("code", report.Code), slog.Int64("actor_id", actor.ID))
	httpx.JSON(w, http.StatusCreated, toResponse(report, nil))
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.E(shared.KindAuthorization, "identitas aktor tidak ditemukan"))
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, shared.E(shared.KindValidation, "id laporan tidak valid"))
		return
	}
	report, details, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(report, details))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.E(shared.KindAuthorization, "identitas aktor tidak ditemukan"))
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	reports, err := h.service.ListForActor(r.Context(), actor, limit)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]reportResponse, 0, len(reports))
	for _, report := range reports {
		out = append(out, toResponse(report, nil))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": out})
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.E(shared.KindAuthorization, "identitas aktor tidak ditemukan"))
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, shared.E(shared.KindValidation, "id laporan tidak valid"))
		return
	}
	if err := h.service.Delete(r.Context(), actor, id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
