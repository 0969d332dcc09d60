package requests

import (
	"context"
	"errors"
	"io"
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

// Handler manages requisition endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoutes registers requisition routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/requests", func(r chi.Router) {
		r.Post("/", h.create)
		r.Get("/", h.list)
		r.Post("/pickup", h.completePickup)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.show)
			r.Post("/approve", h.approve)
			r.Post("/reject", h.reject)
			r.Delete("/", h.cancel)
			r.Post("/process", h.startProcessing)
			r.Post("/ready", h.markReady)
		})
	})
}

type createRequestPayload struct {
	RoomID      int64              `json:"room_id" validate:"required"`
	WarehouseID int64              `json:"warehouse_id" validate:"required"`
	Lines       []requestLineInput `json:"lines" validate:"required,min=1,dive"`
}

type requestLineInput struct {
	ConsumableID int64           `json:"consumable_id" validate:"required"`
	Qty          decimal.Decimal `json:"qty" validate:"required"`
}

type requestResponse struct {
	ID           uuid.UUID      `json:"id"`
	Code         string         `json:"code"`
	RequesterID  int64          `json:"requester_id"`
	RoomID       int64          `json:"room_id"`
	UnitID       int64          `json:"unit_id"`
	FacultyID    int64          `json:"faculty_id"`
	WarehouseID  int64          `json:"warehouse_id"`
	Status       Status         `json:"status"`
	RejectReason string         `json:"reject_reason,omitempty"`
	Lines        []lineResponse `json:"lines,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

type lineResponse struct {
	ID           int64            `json:"id"`
	ConsumableID int64            `json:"consumable_id"`
	QtyRequested decimal.Decimal  `json:"qty_requested"`
	QtyApproved  *decimal.Decimal `json:"qty_approved,omitempty"`
}

func toResponse(req Request, lines []Line) requestResponse {
	resp := requestResponse{
		ID:           req.ID,
		Code:         req.Code,
		RequesterID:  req.RequesterID,
		RoomID:       req.RoomID,
		UnitID:       req.UnitID,
		FacultyID:    req.FacultyID,
		WarehouseID:  req.WarehouseID,
		Status:       req.Status,
		RejectReason: req.RejectReason,
		CreatedAt:    req.CreatedAt,
		UpdatedAt:    req.UpdatedAt,
	}
	for _, line := range lines {
		resp.Lines = append(resp.Lines, lineResponse{
			ID:           line.ID,
			ConsumableID: line.ConsumableID,
			QtyRequested: line.QtyRequested,
			QtyApproved:  line.QtyApproved,
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
	var payload createRequestPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.RespondError(w, shared.E(shared.KindValidation, "payload tidak dapat dibaca"))
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.RespondError(w, shared.WrapE(shared.KindValidation, err, "payload tidak lengkap"))
		return
	}
	input := CreateInput{RoomID: payload.RoomID, WarehouseID: payload.WarehouseID}
	for _, line := range payload.Lines {
		input.Lines = append(input.Lines, LineInput{ConsumableID: line.ConsumableID, Qty: line.Qty})
	}
	req, err := h.service.Create(r.Context(), actor, input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("requisition created",
		slog.String("code", req.Code), slog.Int64("actor_id", actor.ID))
	httpx.JSON(w, http.StatusCreated, toResponse(req, nil))
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.E(shared.KindAuthorization, "identitas aktor tidak ditemukan"))
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, shared.E(shared.KindValidation, "id permintaan tidak valid"))
		return
	}
	req, lines, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(req, lines))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.E(shared.KindAuthorization, "identitas aktor tidak ditemukan"))
		return
	}
	limit := parseLimit(r.URL.Query().Get("limit"))
	reqs, err := h.service.ListForActor(r.Context(), actor, limit)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]requestResponse, 0, len(reqs))
	for _, req := range reqs {
		out = append(out, toResponse(req, nil))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": out})
}

type approvePayload struct {
	ApprovedQty map[int64]decimal.Decimal `json:"approved_qty"`
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.E(shared.KindAuthorization, "identitas aktor tidak ditemukan"))
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, shared.E(shared.KindValidation, "id permintaan tidak valid"))
		return
	}
	var payload approvePayload
	if err := httpx.DecodeJSON(r, &payload); err != nil && !errors.Is(err, io.EOF) {
		httpx.RespondError(w, shared.E(shared.KindValidation, "payload tidak dapat dibaca"))
		return
	}
	req, err := h.service.Approve(r.Context(), actor, id, ApproveInput{ApprovedQty: payload.ApprovedQty})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(req, nil))
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
		httpx.RespondError(w, shared.E(shared.KindValidation, "id permintaan tidak valid"))
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
	req, err := h.service.Reject(r.Context(), actor, id, payload.Reason)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(req, nil))
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.E(shared.KindAuthorization, "identitas aktor tidak ditemukan"))
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, shared.E(shared.KindValidation, "id permintaan tidak valid"))
		return
	}
	if err := h.service.Cancel(r.Context(), actor, id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) startProcessing(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.StartProcessing)
}

func (h *Handler) markReady(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.MarkReady)
}

type pickupPayload struct {
	Token string `json:"token" validate:"required"`
}

func (h *Handler) completePickup(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.E(shared.KindAuthorization, "identitas aktor tidak ditemukan"))
		return
	}
	var payload pickupPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.RespondError(w, shared.E(shared.KindValidation, "payload tidak dapat dibaca"))
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.RespondError(w, shared.E(shared.KindValidation, "token pengambilan wajib diisi"))
		return
	}
	req, err := h.service.CompletePickup(r.Context(), actor, payload.Token)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(req, nil))
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn func(context.Context, shared.Actor, uuid.UUID) (Request, error)) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.E(shared.KindAuthorization, "identitas aktor tidak ditemukan"))
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, shared.E(shared.KindValidation, "id permintaan tidak valid"))
		return
	}
	req, err := fn(r.Context(), actor, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(req, nil))
}

func parseLimit(raw string) int {
	if raw == "" {
		return 50
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 50
	}
	return limit
}
