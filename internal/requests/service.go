package requests

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/unistock-erp/unistock-erp/internal/shared"
	"github.com/unistock-erp/unistock-erp/internal/stock"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id uuid.UUID) (Request, []Line, error)
	GetRoom(ctx context.Context, roomID int64) (Room, error)
	GetConsumable(ctx context.Context, id int64) (stock.Consumable, error)
	ListByUnit(ctx context.Context, unitID int64, limit int) ([]Request, error)
	ListByFaculty(ctx context.Context, facultyID int64, limit int) ([]Request, error)
	ListByWarehouse(ctx context.Context, warehouseID int64, statuses []Status, limit int) ([]Request, error)
}

// TxRepository exposes the transactional operations used by the service. The
// Ledger is bound to the same transaction so stock effects commit with the
// status change.
type TxRepository interface {
	Insert(ctx context.Context, req Request) error
	InsertLine(ctx context.Context, line Line) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status, rejectReason string) error
	SetLineApprovedQty(ctx context.Context, lineID int64, qty decimal.Decimal) error
	Delete(ctx context.Context, id uuid.UUID) error
	RecordApproval(ctx context.Context, log shared.ApprovalLog) error
	AppendAudit(ctx context.Context, log shared.AuditLog) error
	Ledger() stock.Ledger
}

// StockPort exposes the read-only availability check used at creation.
type StockPort interface {
	AggregateQty(ctx context.Context, warehouseID, consumableID int64) (decimal.Decimal, error)
}

// Service drives the requisition state machine. Stock is verified at creation
// but only moved at pickup; a multi-day approval cycle holds no reservation.
type Service struct {
	repo        RepositoryPort
	stocks      StockPort
	engine      *stock.Engine
	idempotency *shared.IdempotencyStore
	invalidator CacheInvalidator
	logger      *slog.Logger
}

// CacheInvalidator bumps report caches after a committed stock movement.
type CacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

// NewService constructs the request service.
func NewService(repo RepositoryPort, stocks StockPort, engine *stock.Engine, idem *shared.IdempotencyStore, invalidator CacheInvalidator, logger *slog.Logger) *Service {
	return &Service{repo: repo, stocks: stocks, engine: engine, idempotency: idem, invalidator: invalidator, logger: logger}
}

func (s *Service) bumpReportCache(ctx context.Context) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.Invalidate(ctx); err != nil && s.logger != nil {
		s.logger.Warn("report cache bump failed", slog.Any("error", err))
	}
}

// CreateInput describes a new requisition.
type CreateInput struct {
	RoomID      int64
	WarehouseID int64
	Lines       []LineInput
}

// LineInput is one requested consumable.
type LineInput struct {
	ConsumableID int64
	Qty          decimal.Decimal
}

// Create validates the destination room and warehouse availability, then
// persists the request. No stock is reserved; availability is a point-in-time
// check only.
func (s *Service) Create(ctx context.Context, actor shared.Actor, input CreateInput) (Request, error) {
	if err := shared.Authorize(actor, shared.ActionRequestCreate, shared.Scope{}); err != nil {
		return Request{}, err
	}
	if len(input.Lines) == 0 {
		return Request{}, shared.E(shared.KindValidation, "permintaan membutuhkan minimal satu baris")
	}
	if input.WarehouseID == 0 {
		return Request{}, shared.E(shared.KindValidation, "gudang tujuan wajib diisi")
	}
	room, err := s.repo.GetRoom(ctx, input.RoomID)
	if err != nil {
		return Request{}, err
	}
	if room.UnitID != actor.UnitID {
		return Request{}, shared.E(shared.KindValidation, "ruangan bukan milik unit aktor")
	}
	for _, line := range input.Lines {
		if line.ConsumableID == 0 || line.Qty.Sign() <= 0 {
			return Request{}, shared.E(shared.KindValidation, "kuantitas baris harus lebih dari nol")
		}
		if _, err := s.repo.GetConsumable(ctx, line.ConsumableID); err != nil {
			return Request{}, err
		}
		available, err := s.stocks.AggregateQty(ctx, input.WarehouseID, line.ConsumableID)
		if err != nil {
			return Request{}, err
		}
		if available.LessThan(line.Qty) {
			return Request{}, shared.E(shared.KindInsufficientStock,
				"stok gudang tidak mencukupi untuk barang %d: tersedia %s, diminta %s",
				line.ConsumableID, available.String(), line.Qty.String())
		}
	}

	status := StatusPendingUnit
	if actor.Role == shared.RoleUnitAdmin {
		// Unit admins skip their own approval tier.
		status = StatusPendingFaculty
	}
	req := Request{
		ID:          uuid.New(),
		Code:        generateCode("REQ"),
		RequesterID: actor.ID,
		RoomID:      room.ID,
		UnitID:      room.UnitID,
		FacultyID:   room.FacultyID,
		WarehouseID: input.WarehouseID,
		Status:      status,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.Insert(ctx, req); err != nil {
			return err
		}
		for _, line := range input.Lines {
			if err := tx.InsertLine(ctx, Line{RequestID: req.ID, ConsumableID: line.ConsumableID, QtyRequested: line.Qty}); err != nil {
				return err
			}
		}
		if err := tx.RecordApproval(ctx, shared.ApprovalLog{
			Module: "REQUEST", RefID: req.ID, ActorID: actor.ID,
			Action: shared.ApprovalSubmit, Note: fmt.Sprintf("Permintaan %s diajukan", req.Code),
		}); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, shared.AuditLog{
			ActorID: actor.ID, Action: "CREATE", Entity: "requests", EntityID: req.ID.String(),
			NewValue: map[string]any{"code": req.Code, "status": string(req.Status), "warehouse_id": req.WarehouseID, "room_id": req.RoomID},
		})
	})
	if err != nil {
		return Request{}, err
	}
	return req, nil
}

// ApproveInput optionally caps per-line quantities at approval time. Keys are
// line ids; omitted lines keep their requested quantity.
type ApproveInput struct {
	ApprovedQty map[int64]decimal.Decimal
}

// Approve advances one approval tier. Neither tier moves stock; these are
// authorization gates only.
func (s *Service) Approve(ctx context.Context, actor shared.Actor, id uuid.UUID, input ApproveInput) (Request, error) {
	req, lines, err := s.repo.Get(ctx, id)
	if err != nil {
		return Request{}, err
	}
	var next Status
	switch req.Status {
	case StatusPendingUnit:
		if err := shared.Authorize(actor, shared.ActionRequestApproveUnit, shared.Scope{UnitID: req.UnitID}); err != nil {
			return Request{}, err
		}
		next = StatusPendingFaculty
	case StatusPendingFaculty:
		if err := shared.Authorize(actor, shared.ActionRequestApproveFaculty, shared.Scope{FacultyID: req.FacultyID}); err != nil {
			return Request{}, err
		}
		next = StatusApproved
	default:
		return Request{}, shared.E(shared.KindInvalidState, "permintaan berstatus %s tidak dapat disetujui", req.Status)
	}
	byID := make(map[int64]Line, len(lines))
	for _, line := range lines {
		byID[line.ID] = line
	}
	for lineID, qty := range input.ApprovedQty {
		line, ok := byID[lineID]
		if !ok {
			return Request{}, shared.E(shared.KindNotFound, "baris %d bukan bagian dari permintaan ini", lineID)
		}
		if qty.Sign() <= 0 || qty.GreaterThan(line.QtyRequested) {
			return Request{}, shared.E(shared.KindValidation, "kuantitas disetujui harus antara nol dan kuantitas diminta")
		}
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateStatus(ctx, id, next, ""); err != nil {
			return err
		}
		for lineID, qty := range input.ApprovedQty {
			if err := tx.SetLineApprovedQty(ctx, lineID, qty); err != nil {
				return err
			}
		}
		if err := tx.RecordApproval(ctx, shared.ApprovalLog{
			Module: "REQUEST", RefID: id, ActorID: actor.ID,
			Action: shared.ApprovalApprove, Note: fmt.Sprintf("Permintaan %s disetujui", req.Code),
		}); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, shared.AuditLog{
			ActorID: actor.ID, Action: "UPDATE", Entity: "requests", EntityID: id.String(),
			OldValue: map[string]any{"status": string(req.Status)},
			NewValue: map[string]any{"status": string(next)},
		})
	})
	if err != nil {
		return Request{}, err
	}
	req.Status = next
	return req, nil
}

// Reject terminates the request at either approval tier. A non-empty reason is
// required; nothing was reserved so there is no stock effect.
func (s *Service) Reject(ctx context.Context, actor shared.Actor, id uuid.UUID, reason string) (Request, error) {
	if reason == "" {
		return Request{}, shared.E(shared.KindValidation, "alasan penolakan wajib diisi")
	}
	req, _, err := s.repo.Get(ctx, id)
	if err != nil {
		return Request{}, err
	}
	switch req.Status {
	case StatusPendingUnit:
		if err := shared.Authorize(actor, shared.ActionRequestApproveUnit, shared.Scope{UnitID: req.UnitID}); err != nil {
			return Request{}, err
		}
	case StatusPendingFaculty:
		if err := shared.Authorize(actor, shared.ActionRequestApproveFaculty, shared.Scope{FacultyID: req.FacultyID}); err != nil {
			return Request{}, err
		}
	default:
		return Request{}, shared.E(shared.KindInvalidState, "permintaan berstatus %s tidak dapat ditolak", req.Status)
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateStatus(ctx, id, StatusRejected, reason); err != nil {
			return err
		}
		if err := tx.RecordApproval(ctx, shared.ApprovalLog{
			Module: "REQUEST", RefID: id, ActorID: actor.ID,
			Action: shared.ApprovalReject, Note: reason,
		}); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, shared.AuditLog{
			ActorID: actor.ID, Action: "UPDATE", Entity: "requests", EntityID: id.String(),
			OldValue: map[string]any{"status": string(req.Status)},
			NewValue: map[string]any{"status": string(StatusRejected), "reason": reason},
		})
	})
	if err != nil {
		return Request{}, err
	}
	req.Status = StatusRejected
	req.RejectReason = reason
	return req, nil
}

// Cancel deletes a request still waiting on the unit tier. Allowed for the
// requester and for unit admins of the same unit.
func (s *Service) Cancel(ctx context.Context, actor shared.Actor, id uuid.UUID) error {
	req, _, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if req.Status != StatusPendingUnit {
		return shared.E(shared.KindInvalidState, "permintaan berstatus %s tidak dapat dibatalkan", req.Status)
	}
	if err := shared.Authorize(actor, shared.ActionRequestCancel, shared.Scope{UnitID: req.UnitID}); err != nil {
		return err
	}
	if actor.Role == shared.RoleUnitStaff && actor.ID != req.RequesterID {
		return shared.E(shared.KindAuthorization, "hanya pemohon yang dapat membatalkan permintaan ini")
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.Delete(ctx, id); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, shared.AuditLog{
			ActorID: actor.ID, Action: "DELETE", Entity: "requests", EntityID: id.String(),
			OldValue: map[string]any{"code": req.Code, "status": string(req.Status)},
		})
	})
}

// StartProcessing marks the warehouse as working on an approved request.
// Operational marker only, no stock effect.
func (s *Service) StartProcessing(ctx context.Context, actor shared.Actor, id uuid.UUID) (Request, error) {
	return s.advance(ctx, actor, id, StatusApproved, StatusProcessing)
}

// MarkReady signals the goods are packed and waiting for pickup.
func (s *Service) MarkReady(ctx context.Context, actor shared.Actor, id uuid.UUID) (Request, error) {
	return s.advance(ctx, actor, id, StatusProcessing, StatusReadyToPickup)
}

func (s *Service) advance(ctx context.Context, actor shared.Actor, id uuid.UUID, from, to Status) (Request, error) {
	req, _, err := s.repo.Get(ctx, id)
	if err != nil {
		return Request{}, err
	}
	if err := shared.Authorize(actor, shared.ActionRequestFulfill, shared.Scope{WarehouseID: req.WarehouseID}); err != nil {
		return Request{}, err
	}
	if req.Status != from {
		return Request{}, shared.E(shared.KindInvalidState, "permintaan berstatus %s, bukan %s", req.Status, from)
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateStatus(ctx, id, to, ""); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, shared.AuditLog{
			ActorID: actor.ID, Action: "UPDATE", Entity: "requests", EntityID: id.String(),
			OldValue: map[string]any{"status": string(from)},
			NewValue: map[string]any{"status": string(to)},
		})
	})
	if err != nil {
		return Request{}, err
	}
	req.Status = to
	return req, nil
}

// CompletePickup finalizes fulfillment against a scanned pickup token. This is
// the only transition that moves stock: every line is debited from the
// warehouse aggregate and credited to the destination room in one transaction.
// If any line comes up short the whole completion rolls back and the request
// stays READY_TO_PICKUP.
func (s *Service) CompletePickup(ctx context.Context, actor shared.Actor, token string) (Request, error) {
	id, err := uuid.Parse(token)
	if err != nil {
		return Request{}, shared.E(shared.KindValidation, "token pengambilan tidak valid")
	}
	req, lines, err := s.repo.Get(ctx, id)
	if err != nil {
		return Request{}, err
	}
	if err := shared.Authorize(actor, shared.ActionRequestFulfill, shared.Scope{WarehouseID: req.WarehouseID}); err != nil {
		return Request{}, err
	}
	if req.Status != StatusReadyToPickup {
		return Request{}, shared.E(shared.KindInvalidState, "permintaan berstatus %s belum siap diambil", req.Status)
	}
	key := fmt.Sprintf("REQ-PICKUP:%s", id)
	insertedKey := false
	if s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, key, "requests"); err != nil {
			return Request{}, err
		}
		insertedKey = true
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		led := tx.Ledger()
		for _, line := range lines {
			qty := line.FulfillQty()
			if err := s.engine.DecrementBatch(ctx, led, actor.ID, req.WarehouseID, line.ConsumableID, qty); err != nil {
				return err
			}
			if err := s.engine.IncrementRoom(ctx, led, actor.ID, req.RoomID, line.ConsumableID, qty); err != nil {
				return err
			}
		}
		if err := tx.UpdateStatus(ctx, id, StatusCompleted, ""); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, shared.AuditLog{
			ActorID: actor.ID, Action: "UPDATE", Entity: "requests", EntityID: id.String(),
			OldValue: map[string]any{"status": string(StatusReadyToPickup)},
			NewValue: map[string]any{"status": string(StatusCompleted)},
		})
	})
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, key)
		}
		if s.logger != nil {
			s.logger.Warn("pickup completion failed",
				slog.String("request_id", id.String()), slog.Any("error", err))
		}
		return Request{}, err
	}
	s.bumpReportCache(ctx)
	req.Status = StatusCompleted
	return req, nil
}

// Get returns a request with its lines, visibility-scoped to the actor.
func (s *Service) Get(ctx context.Context, actor shared.Actor, id uuid.UUID) (Request, []Line, error) {
	req, lines, err := s.repo.Get(ctx, id)
	if err != nil {
		return Request{}, nil, err
	}
	if !visible(actor, req) {
		return Request{}, nil, shared.E(shared.KindNotFound, "permintaan tidak ditemukan")
	}
	return req, lines, nil
}

// ListForActor returns the requests relevant to the actor's scope.
func (s *Service) ListForActor(ctx context.Context, actor shared.Actor, limit int) ([]Request, error) {
	switch actor.Role {
	case shared.RoleWarehouseStaff:
		return s.repo.ListByWarehouse(ctx, actor.WarehouseID,
			[]Status{StatusApproved, StatusProcessing, StatusReadyToPickup}, limit)
	case shared.RoleUnitStaff, shared.RoleUnitAdmin:
		return s.repo.ListByUnit(ctx, actor.UnitID, limit)
	case shared.RoleFacultyAdmin:
		return s.repo.ListByFaculty(ctx, actor.FacultyID, limit)
	case shared.RoleSuperAdmin:
		return s.repo.ListByFaculty(ctx, 0, limit)
	}
	return nil, shared.E(shared.KindAuthorization, "peran %s tidak memiliki daftar permintaan", actor.Role)
}

func visible(actor shared.Actor, req Request) bool {
	switch actor.Role {
	case shared.RoleSuperAdmin:
		return true
	case shared.RoleFacultyAdmin:
		return actor.FacultyID == req.FacultyID
	case shared.RoleUnitAdmin, shared.RoleUnitStaff:
		return actor.UnitID == req.UnitID
	case shared.RoleWarehouseStaff:
		return actor.WarehouseID == req.WarehouseID
	}
	return false
}

func generateCode(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}
