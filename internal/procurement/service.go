package procurement

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

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id uuid.UUID) (Procurement, []Line, error)
	GetConsumable(ctx context.Context, id int64) (stock.Consumable, error)
	List(ctx context.Context, limit int) ([]Procurement, error)
	ListByWarehouse(ctx context.Context, warehouseID int64, limit int) ([]Procurement, error)
}

// TxRepository exposes the transactional operations used by the service.
type TxRepository interface {
	Insert(ctx context.Context, proc Procurement) error
	InsertLine(ctx context.Context, line Line) error
	DeleteLines(ctx context.Context, procurementID uuid.UUID) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status, rejectReason string) error
	SetLineReceipt(ctx context.Context, lineID int64, receivedQty decimal.Decimal, condition Condition, batchNo *string, expiresAt *time.Time) error
	RecordApproval(ctx context.Context, log shared.ApprovalLog) error
	AppendAudit(ctx context.Context, log shared.AuditLog) error
	Ledger() stock.Ledger
}

// Service orchestrates the restock workflow. Creation, editing and approval
// are pure bookkeeping; goods receipt is the only operation that credits the
// warehouse ledger.
type Service struct {
	repo        RepositoryPort
	engine      *stock.Engine
	idempotency *shared.IdempotencyStore
	invalidator CacheInvalidator
	logger      *slog.Logger
}

// CacheInvalidator bumps report caches after a committed stock movement.
type CacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

// NewService constructs the procurement service.
func NewService(repo RepositoryPort, engine *stock.Engine, idem *shared.IdempotencyStore, invalidator CacheInvalidator, logger *slog.Logger) *Service {
	return &Service{repo: repo, engine: engine, idempotency: idem, invalidator: invalidator, logger: logger}
}

func (s *Service) bumpReportCache(ctx context.Context) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.Invalidate(ctx); err != nil && s.logger != nil {
		s.logger.Warn("report cache bump failed", slog.Any("error", err))
	}
}

// CreateInput describes a new restock proposal.
type CreateInput struct {
	Notes string
	Lines []LineInput
}

// LineInput is one proposed restock item.
type LineInput struct {
	ConsumableID int64
	WarehouseID  int64
	Qty          decimal.Decimal
}

// Create persists a proposal. Pure bookkeeping, no stock effect.
func (s *Service) Create(ctx context.Context, actor shared.Actor, input CreateInput) (Procurement, error) {
	if err := shared.Authorize(actor, shared.ActionProcurementCreate, shared.Scope{}); err != nil {
		return Procurement{}, err
	}
	if err := s.validateLines(ctx, actor, input.Lines); err != nil {
		return Procurement{}, err
	}
	proc := Procurement{
		ID:          uuid.New(),
		Code:        generateCode("PROC"),
		RequesterID: actor.ID,
		Status:      StatusPending,
		Notes:       input.Notes,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.Insert(ctx, proc); err != nil {
			return err
		}
		for _, line := range input.Lines {
			if err := tx.InsertLine(ctx, Line{
				ProcurementID: proc.ID, ConsumableID: line.ConsumableID,
				WarehouseID: line.WarehouseID, Qty: line.Qty,
			}); err != nil {
				return err
			}
		}
		if err := tx.RecordApproval(ctx, shared.ApprovalLog{
			Module: "PROCUREMENT", RefID: proc.ID, ActorID: actor.ID,
			Action: shared.ApprovalSubmit, Note: fmt.Sprintf("Pengadaan %s diajukan", proc.Code),
		}); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, shared.AuditLog{
			ActorID: actor.ID, Action: "CREATE", Entity: "procurements", EntityID: proc.ID.String(),
			NewValue: map[string]any{"code": proc.Code, "status": string(proc.Status)},
		})
	})
	if err != nil {
		return Procurement{}, err
	}
	return proc, nil
}

// Edit replaces the line items of a proposal still open for revision. Only
// the creator may edit; a rejected proposal returns to PENDING.
func (s *Service) Edit(ctx context.Context, actor shared.Actor, id uuid.UUID, input CreateInput) (Procurement, error) {
	if err := shared.Authorize(actor, shared.ActionProcurementEdit, shared.Scope{}); err != nil {
		return Procurement{}, err
	}
	proc, _, err := s.repo.Get(ctx, id)
	if err != nil {
		return Procurement{}, err
	}
	if actor.ID != proc.RequesterID {
		return Procurement{}, shared.E(shared.KindAuthorization, "hanya pembuat yang dapat mengubah pengadaan ini")
	}
	if proc.Status != StatusPending && proc.Status != StatusRejected {
		return Procurement{}, shared.E(shared.KindInvalidState, "pengadaan berstatus %s tidak dapat diubah", proc.Status)
	}
	if err := s.validateLines(ctx, actor, input.Lines); err != nil {
		return Procurement{}, err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.DeleteLines(ctx, id); err != nil {
			return err
		}
		for _, line := range input.Lines {
			if err := tx.InsertLine(ctx, Line{
				ProcurementID: id, ConsumableID: line.ConsumableID,
				WarehouseID: line.WarehouseID, Qty: line.Qty,
			}); err != nil {
				return err
			}
		}
		if err := tx.UpdateStatus(ctx, id, StatusPending, ""); err != nil {
			return err
		}
		if err := tx.RecordApproval(ctx, shared.ApprovalLog{
			Module: "PROCUREMENT", RefID: id, ActorID: actor.ID,
			Action: shared.ApprovalSubmit, Note: fmt.Sprintf("Pengadaan %s direvisi", proc.Code),
		}); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, shared.AuditLog{
			ActorID: actor.ID, Action: "UPDATE", Entity: "procurements", EntityID: id.String(),
			OldValue: map[string]any{"status": string(proc.Status)},
			NewValue: map[string]any{"status": string(StatusPending), "notes": input.Notes},
		})
	})
	if err != nil {
		return Procurement{}, err
	}
	proc.Status = StatusPending
	proc.RejectReason = ""
	proc.Notes = input.Notes
	return proc, nil
}

// Approve gates the proposal. No stock effect.
func (s *Service) Approve(ctx context.Context, actor shared.Actor, id uuid.UUID) (Procurement, error) {
	return s.decide(ctx, actor, id, StatusApproved, "")
}

// Reject terminates the proposal pending revision. A non-empty reason is
// required.
func (s *Service) Reject(ctx context.Context, actor shared.Actor, id uuid.UUID, reason string) (Procurement, error) {
	if reason == "" {
		return Procurement{}, shared.E(shared.KindValidation, "alasan penolakan wajib diisi")
	}
	return s.decide(ctx, actor, id, StatusRejected, reason)
}

func (s *Service) decide(ctx context.Context, actor shared.Actor, id uuid.UUID, to Status, reason string) (Procurement, error) {
	if err := shared.Authorize(actor, shared.ActionProcurementApprove, shared.Scope{}); err != nil {
		return Procurement{}, err
	}
	proc, _, err := s.repo.Get(ctx, id)
	if err != nil {
		return Procurement{}, err
	}
	if proc.Status != StatusPending {
		return Procurement{}, shared.E(shared.KindInvalidState, "pengadaan berstatus %s tidak menunggu persetujuan", proc.Status)
	}
	action := shared.ApprovalApprove
	note := fmt.Sprintf("Pengadaan %s disetujui", proc.Code)
	if to == StatusRejected {
		action = shared.ApprovalReject
		note = reason
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateStatus(ctx, id, to, reason); err != nil {
			return err
		}
		if err := tx.RecordApproval(ctx, shared.ApprovalLog{
			Module: "PROCUREMENT", RefID: id, ActorID: actor.ID, Action: action, Note: note,
		}); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, shared.AuditLog{
			ActorID: actor.ID, Action: "UPDATE", Entity: "procurements", EntityID: id.String(),
			OldValue: map[string]any{"status": string(proc.Status)},
			NewValue: map[string]any{"status": string(to)},
		})
	})
	if err != nil {
		return Procurement{}, err
	}
	proc.Status = to
	proc.RejectReason = reason
	return proc, nil
}

// ReceiptLine records what physically arrived for one procurement line.
type ReceiptLine struct {
	ReceivedQty decimal.Decimal
	Condition   Condition
	BatchNo     *string
	ExpiresAt   *time.Time
}

// ReceiveInput maps procurement line ids to their receipt records. Every line
// of the proposal must be present.
type ReceiveInput struct {
	Lines map[int64]ReceiptLine
}

// Receive performs goods receipt with per-line QC. Only GOOD lines credit the
// warehouse ledger; each credited line becomes a fresh batch row even when the
// batch number repeats. Any validation failure aborts the whole receipt and
// the proposal stays APPROVED.
func (s *Service) Receive(ctx context.Context, actor shared.Actor, id uuid.UUID, input ReceiveInput) (Procurement, error) {
	if err := shared.Authorize(actor, shared.ActionProcurementReceive, shared.Scope{}); err != nil {
		return Procurement{}, err
	}
	proc, lines, err := s.repo.Get(ctx, id)
	if err != nil {
		return Procurement{}, err
	}
	if proc.Status != StatusApproved {
		return Procurement{}, shared.E(shared.KindInvalidState, "pengadaan berstatus %s belum dapat diterima", proc.Status)
	}
	for lineID := range input.Lines {
		found := false
		for _, line := range lines {
			if line.ID == lineID {
				found = true
				break
			}
		}
		if !found {
			return Procurement{}, shared.E(shared.KindNotFound, "baris %d bukan bagian dari pengadaan ini", lineID)
		}
	}
	for _, line := range lines {
		receipt, ok := input.Lines[line.ID]
		if !ok {
			return Procurement{}, shared.E(shared.KindValidation, "baris %d belum memiliki catatan penerimaan", line.ID)
		}
		if actor.Role == shared.RoleWarehouseStaff && line.WarehouseID != actor.WarehouseID {
			return Procurement{}, shared.E(shared.KindAuthorization, "gudang tidak sesuai dengan penugasan aktor")
		}
		if receipt.ReceivedQty.Sign() < 0 {
			return Procurement{}, shared.E(shared.KindValidation, "kuantitas diterima tidak boleh negatif")
		}
		if !ValidCondition(receipt.Condition) {
			return Procurement{}, shared.E(shared.KindValidation, "kondisi %s tidak dikenal", receipt.Condition)
		}
		item, err := s.repo.GetConsumable(ctx, line.ConsumableID)
		if err != nil {
			return Procurement{}, err
		}
		if item.HasExpiry && (receipt.BatchNo == nil || *receipt.BatchNo == "" || receipt.ExpiresAt == nil) {
			return Procurement{}, shared.E(shared.KindValidation,
				"barang %s wajib memiliki nomor batch dan tanggal kedaluwarsa", item.Name)
		}
	}

	key := fmt.Sprintf("PROC-RECEIVE:%s", id)
	insertedKey := false
	if s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, key, "procurements"); err != nil {
			return Procurement{}, err
		}
		insertedKey = true
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		led := tx.Ledger()
		for _, line := range lines {
			receipt := input.Lines[line.ID]
			if err := tx.SetLineReceipt(ctx, line.ID, receipt.ReceivedQty, receipt.Condition, receipt.BatchNo, receipt.ExpiresAt); err != nil {
				return err
			}
			if receipt.Condition != ConditionGood || receipt.ReceivedQty.Sign() == 0 {
				continue
			}
			if err := s.engine.IncrementBatch(ctx, led, actor.ID, line.WarehouseID, line.ConsumableID,
				receipt.ReceivedQty, receipt.BatchNo, receipt.ExpiresAt); err != nil {
				return err
			}
		}
		if err := tx.UpdateStatus(ctx, id, StatusCompleted, ""); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, shared.AuditLog{
			ActorID: actor.ID, Action: "UPDATE", Entity: "procurements", EntityID: id.String(),
			OldValue: map[string]any{"status": string(StatusApproved)},
			NewValue: map[string]any{"status": string(StatusCompleted)},
		})
	})
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, key)
		}
		if s.logger != nil {
			s.logger.Warn("goods receipt failed",
				slog.String("procurement_id", id.String()), slog.Any("error", err))
		}
		return Procurement{}, err
	}
	s.bumpReportCache(ctx)
	proc.Status = StatusCompleted
	return proc, nil
}

// Get returns a proposal with its lines, visibility-scoped to the actor.
func (s *Service) Get(ctx context.Context, actor shared.Actor, id uuid.UUID) (Procurement, []Line, error) {
	proc, lines, err := s.repo.Get(ctx, id)
	if err != nil {
		return Procurement{}, nil, err
	}
	if !visible(actor, lines) {
		return Procurement{}, nil, shared.E(shared.KindNotFound, "pengadaan tidak ditemukan")
	}
	return proc, lines, nil
}

// ListForActor returns the proposals relevant to the actor's scope.
func (s *Service) ListForActor(ctx context.Context, actor shared.Actor, limit int) ([]Procurement, error) {
	switch actor.Role {
	case shared.RoleWarehouseStaff:
		return s.repo.ListByWarehouse(ctx, actor.WarehouseID, limit)
	case shared.RoleFacultyAdmin, shared.RoleSuperAdmin:
		return s.repo.List(ctx, limit)
	}
	return nil, shared.E(shared.KindAuthorization, "peran %s tidak memiliki daftar pengadaan", actor.Role)
}

func (s *Service) validateLines(ctx context.Context, actor shared.Actor, lines []LineInput) error {
	if len(lines) == 0 {
		return shared.E(shared.KindValidation, "pengadaan membutuhkan minimal satu baris")
	}
	for _, line := range lines {
		if line.ConsumableID == 0 || line.WarehouseID == 0 || line.Qty.Sign() <= 0 {
			return shared.E(shared.KindValidation, "kuantitas baris harus lebih dari nol")
		}
		if actor.Role == shared.RoleWarehouseStaff && line.WarehouseID != actor.WarehouseID {
			return shared.E(shared.KindAuthorization, "gudang tidak sesuai dengan penugasan aktor")
		}
		if _, err := s.repo.GetConsumable(ctx, line.ConsumableID); err != nil {
			return err
		}
	}
	return nil
}

func visible(actor shared.Actor, lines []Line) bool {
	switch actor.Role {
	case shared.RoleSuperAdmin, shared.RoleFacultyAdmin:
		return true
	case shared.RoleWarehouseStaff:
		for _, line := range lines {
			if line.WarehouseID == actor.WarehouseID {
				return true
			}
		}
	}
	return false
}

func generateCode(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}
