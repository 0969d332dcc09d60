package stock

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/unistock-erp/unistock-erp/internal/shared"
)

// Ledger exposes the transaction-scoped quantity tables to the engine. Each
// workflow repository binds an implementation to its own open transaction, so
// every engine call composes atomically with the caller's other writes. The
// engine itself never begins or commits transactions.
type Ledger interface {
	// WarehouseLinesForUpdate locks and returns every batch line of
	// (warehouse, consumable) ordered by id.
	WarehouseLinesForUpdate(ctx context.Context, warehouseID, consumableID int64) ([]WarehouseLine, error)
	// WarehouseLineForUpdate locks a single batch line by id.
	WarehouseLineForUpdate(ctx context.Context, lineID int64) (WarehouseLine, error)
	InsertWarehouseLine(ctx context.Context, line WarehouseLine) (int64, error)
	SetWarehouseLineQty(ctx context.Context, lineID int64, qty decimal.Decimal) error
	// RoomLineForUpdate locks the (room, consumable) row; found=false when absent.
	RoomLineForUpdate(ctx context.Context, roomID, consumableID int64) (RoomLine, bool, error)
	UpsertRoomLine(ctx context.Context, roomID, consumableID int64, qty decimal.Decimal) error
	InsertAdjustment(ctx context.Context, adj Adjustment) (int64, error)
	// AppendAudit writes an audit row through the same transaction.
	AppendAudit(ctx context.Context, log shared.AuditLog) error
}

// ErrLineNotFound is returned by Ledger implementations for a missing batch line.
var ErrLineNotFound = shared.E(shared.KindNotFound, "baris stok tidak ditemukan")

// Engine implements the primitive stock movements shared by every workflow.
type Engine struct{}

// NewEngine constructs Engine.
func NewEngine() *Engine {
	return &Engine{}
}

// DecrementBatch removes qty from the (warehouse, consumable) aggregate. All
// batch lines are locked up front and the sum is re-checked inside the
// transaction, so a concurrent decrement cannot drive the aggregate negative.
// Lines drain in insertion order, not FEFO; near-expiry batches are not
// preferred. Opname operates on a specific line instead when batch precision
// matters.
func (e *Engine) DecrementBatch(ctx context.Context, led Ledger, actorID, warehouseID, consumableID int64, qty decimal.Decimal) error {
	if qty.Sign() <= 0 {
		return shared.E(shared.KindValidation, "kuantitas harus lebih dari nol")
	}
	lines, err := led.WarehouseLinesForUpdate(ctx, warehouseID, consumableID)
	if err != nil {
		return err
	}
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.Qty)
	}
	if total.LessThan(qty) {
		return shared.E(shared.KindInsufficientStock,
			"stok gudang tidak mencukupi: tersedia %s, diminta %s", total.String(), qty.String())
	}
	remaining := qty
	for _, line := range lines {
		if remaining.Sign() == 0 {
			break
		}
		take := decimal.Min(line.Qty, remaining)
		if take.Sign() == 0 {
			continue
		}
		if err := led.SetWarehouseLineQty(ctx, line.ID, line.Qty.Sub(take)); err != nil {
			return err
		}
		remaining = remaining.Sub(take)
	}
	return led.AppendAudit(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   "STOCK_OUT",
		Entity:   "warehouse_stock",
		EntityID: aggregateID(warehouseID, consumableID),
		OldValue: map[string]any{"qty": total.String()},
		NewValue: map[string]any{"qty": total.Sub(qty).String()},
	})
}

// IncrementBatch records a received lot as a fresh batch line. Lines are never
// merged, even when the batch number already exists; each receipt keeps its
// own expiry and received timestamp.
func (e *Engine) IncrementBatch(ctx context.Context, led Ledger, actorID, warehouseID, consumableID int64, qty decimal.Decimal, batchNo *string, expiresAt *time.Time) error {
	if qty.Sign() <= 0 {
		return shared.E(shared.KindValidation, "kuantitas harus lebih dari nol")
	}
	line := WarehouseLine{
		WarehouseID:  warehouseID,
		ConsumableID: consumableID,
		Qty:          qty,
		BatchNo:      batchNo,
		ExpiresAt:    expiresAt,
		ReceivedAt:   time.Now().UTC(),
	}
	id, err := led.InsertWarehouseLine(ctx, line)
	if err != nil {
		return err
	}
	newVal := map[string]any{"qty": qty.String(), "line_id": id}
	if batchNo != nil {
		newVal["batch_no"] = *batchNo
	}
	if expiresAt != nil {
		newVal["expires_at"] = expiresAt.Format("2006-01-02")
	}
	return led.AppendAudit(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   "STOCK_IN",
		Entity:   "warehouse_stock",
		EntityID: aggregateID(warehouseID, consumableID),
		NewValue: newVal,
	})
}

// DecrementRoom debits the room ledger, failing when the row is missing or
// short.
func (e *Engine) DecrementRoom(ctx context.Context, led Ledger, actorID, roomID, consumableID int64, qty decimal.Decimal) error {
	if qty.Sign() <= 0 {
		return shared.E(shared.KindValidation, "kuantitas harus lebih dari nol")
	}
	line, found, err := led.RoomLineForUpdate(ctx, roomID, consumableID)
	if err != nil {
		return err
	}
	current := decimal.Zero
	if found {
		current = line.Qty
	}
	if current.LessThan(qty) {
		return shared.E(shared.KindInsufficientStock,
			"stok ruangan tidak mencukupi: tersedia %s, diminta %s", current.String(), qty.String())
	}
	next := current.Sub(qty)
	if err := led.UpsertRoomLine(ctx, roomID, consumableID, next); err != nil {
		return err
	}
	return led.AppendAudit(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   "ROOM_STOCK_OUT",
		Entity:   "room_stock",
		EntityID: aggregateID(roomID, consumableID),
		OldValue: map[string]any{"qty": current.String()},
		NewValue: map[string]any{"qty": next.String()},
	})
}

// IncrementRoom credits the room ledger, creating the row when absent.
func (e *Engine) IncrementRoom(ctx context.Context, led Ledger, actorID, roomID, consumableID int64, qty decimal.Decimal) error {
	if qty.Sign() <= 0 {
		return shared.E(shared.KindValidation, "kuantitas harus lebih dari nol")
	}
	line, found, err := led.RoomLineForUpdate(ctx, roomID, consumableID)
	if err != nil {
		return err
	}
	current := decimal.Zero
	if found {
		current = line.Qty
	}
	next := current.Add(qty)
	if err := led.UpsertRoomLine(ctx, roomID, consumableID, next); err != nil {
		return err
	}
	return led.AppendAudit(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   "ROOM_STOCK_IN",
		Entity:   "room_stock",
		EntityID: aggregateID(roomID, consumableID),
		OldValue: map[string]any{"qty": current.String()},
		NewValue: map[string]any{"qty": next.String()},
	})
}

// Reconcile sets a batch line to the physically counted quantity. The delta is
// recomputed here from the locked row, never trusted from the caller, so a
// stale preview in the UI cannot corrupt the ledger. A zero delta is a pure
// no-op: no adjustment, no audit row.
func (e *Engine) Reconcile(ctx context.Context, led Ledger, actor shared.Actor, lineID int64, physical decimal.Decimal, adjType AdjustmentType, reason string) (Adjustment, bool, error) {
	if physical.Sign() < 0 {
		return Adjustment{}, false, shared.E(shared.KindValidation, "kuantitas fisik tidak boleh negatif")
	}
	if !ValidAdjustmentType(adjType) {
		return Adjustment{}, false, shared.E(shared.KindValidation, "jenis penyesuaian %s tidak dikenal", adjType)
	}
	line, err := led.WarehouseLineForUpdate(ctx, lineID)
	if err != nil {
		return Adjustment{}, false, err
	}
	if actor.Role == shared.RoleWarehouseStaff && actor.WarehouseID != line.WarehouseID {
		return Adjustment{}, false, shared.E(shared.KindAuthorization, "baris stok berada di gudang lain")
	}
	delta := physical.Sub(line.Qty)
	if delta.Sign() == 0 {
		return Adjustment{}, false, nil
	}
	if err := led.SetWarehouseLineQty(ctx, lineID, physical); err != nil {
		return Adjustment{}, false, err
	}
	adj := Adjustment{
		WarehouseID:  line.WarehouseID,
		ConsumableID: line.ConsumableID,
		BatchNo:      line.BatchNo,
		Delta:        delta,
		Type:         adjType,
		Reason:       reason,
		ActorID:      actor.ID,
		At:           time.Now().UTC(),
	}
	adjID, err := led.InsertAdjustment(ctx, adj)
	if err != nil {
		return Adjustment{}, false, err
	}
	adj.ID = adjID
	err = led.AppendAudit(ctx, shared.AuditLog{
		ActorID:  actor.ID,
		Action:   "STOCK_OPNAME",
		Entity:   "warehouse_stock",
		EntityID: fmt.Sprintf("line:%d", lineID),
		OldValue: map[string]any{"qty": line.Qty.String()},
		NewValue: map[string]any{"qty": physical.String(), "delta": delta.String(), "type": string(adjType)},
	})
	if err != nil {
		return Adjustment{}, false, err
	}
	return adj, true, nil
}

func aggregateID(locationID, consumableID int64) string {
	return fmt.Sprintf("%d:%d", locationID, consumableID)
}
