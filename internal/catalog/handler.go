package catalog

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/unistock-erp/unistock-erp/internal/platform/httpx"
	"github.com/unistock-erp/unistock-erp/internal/shared"
	"github.com/unistock-erp/unistock-erp/internal/stock"
)

// Handler manages catalog endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoutes registers catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/consumables", func(r chi.Router) {
		r.Post("/", h.create)
		r.Get("/", h.list)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.show)
			r.Put("/", h.update)
			r.Delete("/", h.remove)
		})
	})
}

type consumablePayload struct {
	Name      string          `json:"name" validate:"required"`
	SKU       string          `json:"sku"`
	Unit      string          `json:"unit" validate:"required"`
	MinStock  decimal.Decimal `json:"min_stock"`
	HasExpiry bool            `json:"has_expiry"`
}

type consumableResponse struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	SKU       string          `json:"sku"`
	Unit      string          `json:"unit"`
	MinStock  decimal.Decimal `json:"min_stock"`
	HasExpiry bool            `json:"has_expiry"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func toResponse(item stock.Consumable) consumableResponse {
	return consumableResponse{
		ID:        item.ID,
		Name:      item.Name,
		SKU:       item.SKU,
		Unit:      item.Unit,
		MinStock:  item.MinStock,
		HasExpiry: item.HasExpiry,
		CreatedAt: item.CreatedAt,
		UpdatedAt: item.UpdatedAt,
	}
}

func (h *Handler) decodePayload(r *http.Request) (ConsumableInput, error) {
	var payload consumablePayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		return ConsumableInput{}, shared.E(shared.KindValidation, "payload tidak dapat dibaca")
	}
	if err := h.validate.Struct(payload); err != nil {
		return ConsumableInput{}, shared.WrapE(shared.KindValidation, err, "payload tidak lengkap")
	}
	return ConsumableInput{
		Name: payload.Name, SKU: payload.SKU, Unit: payload.Unit,
		MinStock: payload.MinStock, HasExpiry: payload.HasExpiry,
	}, nil
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.E(shared.KindAuthorization, "identitas aktor tidak ditemukan"))
		return
	}
	input, err := h.decodePayload(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	item, err := h.service.Create(r.Context(), actor, input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("consumable created",
		slog.String("sku", item.SKU), slog.Int64("actor_id", actor.ID))
	httpx.JSON(w, http.StatusCreated, toResponse(item))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.E(shared.KindAuthorization, "identitas aktor tidak ditemukan"))
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, shared.E(shared.KindValidation, "id barang tidak valid"))
		return
	}
	input, err := h.decodePayload(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	item, err := h.service.Update(r.Context(), actor, id, input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(item))
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.E(shared.KindAuthorization, "identitas aktor tidak ditemukan"))
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, shared.E(shared.KindValidation, "id barang tidak valid"))
		return
	}
	if err := h.service.Delete(r.Context(), actor, id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, shared.E(shared.KindValidation, "id barang tidak valid"))
		return
	}
	item, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(item))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	items, err := h.service.List(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]consumableResponse, 0, len(items))
	for _, item := range items {
		out = append(out, toResponse(item))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": out})
}
