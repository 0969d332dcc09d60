package procurement

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

// Handler manages procurement endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoutes registers procurement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/procurements", func(r chi.Router) {
		r.Post("/", h.create)
		r.Get("/", h.list)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.show)
			r.Put("/", h.edit)
			r.Post("/approve", h.approve)
			r.Post("/reject", h.reject)
			r.Post("/receive", h.receive)
		})
	})
}

type procurementPayload struct {
	Notes string                 `json:"notes"`
	Lines []procurementLineInput `json:"lines" validate:"required,min=1,dive"`
}

type procurementLineInput struct {
	ConsumableID int64           `json:"consumable_id" validate:"required"`
	WarehouseID  int64           `json:"warehouse_id" validate:"required"`
	Qty          decimal.Decimal `json:"qty" validate:"required"`
}

type procurementResponse struct {
	ID           uuid.UUID     `json:"id"`
	Code         string        `json:"code"`
	RequesterID  int64         `json:"requester_id"`
	Status       Status        `json:"status"`
	Notes        string        `json:"notes,omitempty"`
	RejectReason string        `json:"reject_reason,omitempty"`
	Lines        []procLineDTO `json:"lines,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

type procLineDTO struct {
	ID           int64            `json:"id"`
	ConsumableID int64            `json:"consumable_id"`
	WarehouseID  int64            `json:"warehouse_id"`
	Qty          decimal.Decimal  `json:"qty"`
	ReceivedQty  *decimal.Decimal `json:"received_qty,omitempty"`
	Condition    *Condition       `json:"condition,omitempty"`
	BatchNo      *string          `json:"batch_no,omitempty"`
	ExpiresAt    *time.Time       `json:"expires_at,omitempty"`
}

func toResponse(proc Procurement, lines []Line) procurementResponse {
	resp := procurementResponse{
		ID:           proc.ID,
		Code:         proc.Code,
		RequesterID:  proc.RequesterID,
		Status:       proc.Status,
		Notes:        proc.Notes,
		RejectReason: proc.RejectReason,
		CreatedAt:    proc.CreatedAt,
		UpdatedAt:    proc.UpdatedAt,
	}
	for _, line := range lines {
		resp.Lines = append(resp.Lines, procLineDTO{
			ID:           line.ID,
			ConsumableID: line.ConsumableID,
			WarehouseID:  line.WarehouseID,
			Qty:          line.Qty,
			ReceivedQty:  line.ReceivedQty,
			Condition:    line.Condition,
			BatchNo:      line.BatchNo,
			ExpiresAt:    line.ExpiresAt,
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
	input, err := h.decodePayload(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	proc, err := h.service.Create(r.Context(), actor, input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("procurement created",
		slog.String("code", proc.Code), slog.Int64("actor_id", actor.ID))
	httpx.JSON(w, http.StatusCreated, toResponse(proc, nil))
}

func (h *Handler) edit(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.E(shared.KindAuthorization, "identitas aktor tidak ditemukan"))
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, shared.E(shared.KindValidation, "id pengadaan tidak valid"))
		return
	}
	input, err := h.decodePayload(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	proc, err := h.service.Edit(r.Context(), actor, id, input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(proc, nil))
}

func (h *Handler) decodePayload(r *http.Request) (CreateInput, error) {
	var payload procurementPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		return CreateInput{}, shared.E(shared.KindValidation, "payload tidak dapat dibaca")
	}
	if err := h.validate.Struct(payload); err != nil {
		return CreateInput{}, shared.WrapE(shared.KindValidation, err, "payload tidak lengkap")
	}
	input := CreateInput{Notes: payload.Notes}
	for _, line := range payload.Lines {
		input.Lines = append(input.Lines, LineInput{
			ConsumableID: line.ConsumableID, WarehouseID: line.WarehouseID, Qty: line.Qty,
		})
	}
	return input, nil
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.E(shared.KindAuthorization, "identitas aktor tidak ditemukan"))
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, shared.E(shared.KindValidation, "id pengadaan tidak valid"))
		return
	}
	proc, lines, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(proc, lines))
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
	procs, err := h.service.ListForActor(r.Context(), actor, limit)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]procurementResponse, 0, len(procs))
	for _, proc := range procs {
		out = append(out, toResponse(proc, nil))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": out})
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.E(shared.KindAuthorization, "identitas aktor tidak ditemukan"))
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, shared.E(shared.KindValidation, "id pengadaan tidak valid"))
		return
	}
	proc, err := h.service.Approve(r.Context(), actor, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(proc, nil))
}

type rejectPayload struct {
	Reason string `json:"reason" validate:"required"`
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.E(shared.KindAuthorization, "identitas aktor tidak ditemukan"))
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, shared.E(shared.KindValidation, "id pengadaan tidak valid"))
		return
	}
	var payload rejectPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.RespondError(w, shared.E(shared.KindValidation, "payload tidak dapat dibaca"))
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.RespondError(w, shared.E(shared.KindValidation, "alasan penolakan wajib diisi"))
		return
	}
	proc, err := h.service.Reject(r.Context(), actor, id, payload.Reason)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(proc, nil))
}

type receivePayload struct {
	Lines map[int64]receiptLineInput `json:"lines" validate:"required,min=1"`
}

type receiptLineInput struct {
	ReceivedQty decimal.Decimal `json:"received_qty"`
	Condition   Condition       `json:"condition" validate:"required"`
	BatchNo     *string         `json:"batch_no"`
	ExpiresAt   *time.Time      `json:"expires_at"`
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.E(shared.KindAuthorization, "identitas aktor tidak ditemukan"))
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, shared.E(shared.KindValidation, "id pengadaan tidak valid"))
		return
	}
	var payload receivePayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.RespondError(w, shared.E(shared.KindValidation, "payload tidak dapat dibaca"))
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.RespondError(w, shared.WrapE(shared.KindValidation, err, "payload tidak lengkap"))
		return
	}
	input := ReceiveInput{Lines: make(map[int64]ReceiptLine, len(payload.Lines))}
	for lineID, line := range payload.Lines {
		input.Lines[lineID] = ReceiptLine{
			ReceivedQty: line.ReceivedQty,
			Condition:   line.Condition,
			BatchNo:     line.BatchNo,
			ExpiresAt:   line.ExpiresAt,
		}
	}
	proc, err := h.service.Receive(r.Context(), actor, id, input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("goods receipt posted",
		slog.String("code", proc.Code), slog.Int64("actor_id", actor.ID))
	httpx.JSON(w, http.StatusOK, toResponse(proc, nil))
}
