package opname

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

// Handler manages stock opname endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoutes registers opname routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/opname", func(r chi.Router) {
		r.Post("/reconcile", h.reconcile)
		r.Get("/count-sheet", h.countSheet)
		r.Get("/adjustments", h.adjustments)
	})
}

type reconcilePayload struct {
	LineID      int64                `json:"line_id" validate:"required"`
	PhysicalQty decimal.Decimal      `json:"physical_qty"`
	Type        stock.AdjustmentType `json:"type" validate:"required"`
	Reason      string               `json:"reason"`
}

type adjustmentResponse struct {
	ID           int64                `json:"id"`
	WarehouseID  int64                `json:"warehouse_id"`
	ConsumableID int64                `json:"consumable_id"`
	BatchNo      *string              `json:"batch_no,omitempty"`
	Delta        decimal.Decimal      `json:"delta"`
	Type         stock.AdjustmentType `json:"type"`
	Reason       string               `json:"reason,omitempty"`
	ActorID      int64                `json:"actor_id"`
	OccurredAt   time.Time            `json:"occurred_at"`
	Applied      bool                 `json:"applied"`
}

func (h *Handler) reconcile(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.E(shared.KindAuthorization, "identitas aktor tidak ditemukan"))
		return
	}
	var payload reconcilePayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.RespondError(w, shared.E(shared.KindValidation, "payload tidak dapat dibaca"))
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.RespondError(w, shared.WrapE(shared.KindValidation, err, "payload tidak lengkap"))
		return
	}
	adjustment, applied, err := h.service.Reconcile(r.Context(), actor, ReconcileInput{
		LineID:      payload.LineID,
		PhysicalQty: payload.PhysicalQty,
		Type:        payload.Type,
		Reason:      payload.Reason,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if !applied {
		httpx.JSON(w, http.StatusOK, adjustmentResponse{Applied: false})
		return
	}
	httpx.JSON(w, http.StatusOK, adjustmentResponse{
		ID:           adjustment.ID,
		WarehouseID:  adjustment.WarehouseID,
		ConsumableID: adjustment.ConsumableID,
		BatchNo:      adjustment.BatchNo,
		Delta:        adjustment.Delta,
		Type:         adjustment.Type,
		Reason:       adjustment.Reason,
		ActorID:      adjustment.ActorID,
		OccurredAt:   adjustment.At,
		Applied:      true,
	})
}

func (h *Handler) countSheet(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.E(shared.KindAuthorization, "identitas aktor tidak ditemukan"))
		return
	}
	warehouseID, err := strconv.ParseInt(r.URL.Query().Get("warehouse_id"), 10, 64)
	if err != nil || warehouseID <= 0 {
		httpx.RespondError(w, shared.E(shared.KindValidation, "parameter warehouse_id wajib diisi"))
		return
	}
	consumableID, _ := strconv.ParseInt(r.URL.Query().Get("consumable_id"), 10, 64)
	lines, err := h.service.CountSheet(r.Context(), actor, warehouseID, consumableID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]countSheetLine, 0, len(lines))
	for _, line := range lines {
		out = append(out, countSheetLine{
			ID:           line.ID,
			WarehouseID:  line.WarehouseID,
			ConsumableID: line.ConsumableID,
			Qty:          line.Qty,
			BatchNo:      line.BatchNo,
			ExpiresAt:    line.ExpiresAt,
			ReceivedAt:   line.ReceivedAt,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": out})
}

type countSheetLine struct {
	ID           int64           `json:"id"`
	WarehouseID  int64           `json:"warehouse_id"`
	ConsumableID int64           `json:"consumable_id"`
	Qty          decimal.Decimal `json:"qty"`
	BatchNo      *string         `json:"batch_no,omitempty"`
	ExpiresAt    *time.Time      `json:"expires_at,omitempty"`
	ReceivedAt   time.Time       `json:"received_at"`
}

func (h *Handler) adjustments(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.E(shared.KindAuthorization, "identitas aktor tidak ditemukan"))
		return
	}
	warehouseID, err := strconv.ParseInt(r.URL.Query().Get("warehouse_id"), 10, 64)
	if err != nil || warehouseID <= 0 {
		httpx.RespondError(w, shared.E(shared.KindValidation, "parameter warehouse_id wajib diisi"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	adjustments, err := h.service.Adjustments(r.Context(), actor, warehouseID, limit)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]adjustmentResponse, 0, len(adjustments))
	for _, adjustment := range adjustments {
		out = append(out, adjustmentResponse{
			ID:           adjustment.ID,
			WarehouseID:  adjustment.WarehouseID,
			ConsumableID: adjustment.ConsumableID,
			BatchNo:      adjustment.BatchNo,
			Delta:        adjustment.Delta,
			Type:         adjustment.Type,
			Reason:       adjustment.Reason,
			ActorID:      adjustment.ActorID,
			OccurredAt:   adjustment.At,
			Applied:      true,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": out})
}
