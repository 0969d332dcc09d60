package stock

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/unistock-erp/unistock-erp/internal/shared"
)

type memoryLedger struct {
	warehouseLines map[int64]WarehouseLine
	roomLines      map[string]RoomLine
	adjustments    []Adjustment
	audits         []shared.AuditLog
	nextID         int64
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{
		warehouseLines: make(map[int64]WarehouseLine),
		roomLines:      make(map[string]RoomLine),
	}
}

func (l *memoryLedger) roomKey(roomID, consumableID int64) string {
	return fmt.Sprintf("%d:%d", roomID, consumableID)
}

func (l *memoryLedger) WarehouseLinesForUpdate(ctx context.Context, warehouseID, consumableID int64) ([]WarehouseLine, error) {
	var lines []WarehouseLine
	for id := int64(1); id <= l.nextID; id++ {
		line, ok := l.warehouseLines[id]
		if ok && line.WarehouseID == warehouseID && line.ConsumableID == consumableID {
			lines = append(lines, line)
		}
	}
	return lines, nil
}

func (l *memoryLedger) WarehouseLineForUpdate(ctx context.Context, lineID int64) (WarehouseLine, error) {
	line, ok := l.warehouseLines[lineID]
	if !ok {
		return WarehouseLine{}, ErrLineNotFound
	}
	return line, nil
}

func (l *memoryLedger) InsertWarehouseLine(ctx context.Context, line WarehouseLine) (int64, error) {
	l.nextID++
	line.ID = l.nextID
	l.warehouseLines[line.ID] = line
	return line.ID, nil
}

func (l *memoryLedger) SetWarehouseLineQty(ctx context.Context, lineID int64, qty decimal.Decimal) error {
	line := l.warehouseLines[lineID]
	line.Qty = qty
	l.warehouseLines[lineID] = line
	return nil
}

func (l *memoryLedger) RoomLineForUpdate(ctx context.Context, roomID, consumableID int64) (RoomLine, bool, error) {
	line, ok := l.roomLines[l.roomKey(roomID, consumableID)]
	return line, ok, nil
}

func (l *memoryLedger) UpsertRoomLine(ctx context.Context, roomID, consumableID int64, qty decimal.Decimal) error {
	key := l.roomKey(roomID, consumableID)
	line, ok := l.roomLines[key]
	if !ok {
		line = RoomLine{RoomID: roomID, ConsumableID: consumableID}
	}
	line.Qty = qty
	l.roomLines[key] = line
	return nil
}

func (l *memoryLedger) InsertAdjustment(ctx context.Context, adj Adjustment) (int64, error) {
	l.nextID++
	adj.ID = l.nextID
	l.adjustments = append(l.adjustments, adj)
	return adj.ID, nil
}

func (l *memoryLedger) AppendAudit(ctx context.Context, log shared.AuditLog) error {
	l.audits = append(l.audits, log)
	return nil
}

func (l *memoryLedger) aggregate(warehouseID, consumableID int64) decimal.Decimal {
	total := decimal.Zero
	for _, line := range l.warehouseLines {
		if line.WarehouseID == warehouseID && line.ConsumableID == consumableID {
			total = total.Add(line.Qty)
		}
	}
	return total
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestDecrementBatchDrainsAcrossLots(t *testing.T) {
	led := newMemoryLedger()
	eng := NewEngine()
	ctx := context.Background()

	require.NoError(t, eng.IncrementBatch(ctx, led, 1, 10, 5, dec("4"), strPtr("B-01"), nil))
	require.NoError(t, eng.IncrementBatch(ctx, led, 1, 10, 5, dec("6"), strPtr("B-02"), nil))

	require.NoError(t, eng.DecrementBatch(ctx, led, 1, 10, 5, dec("7")))
	require.True(t, led.aggregate(10, 5).Equal(dec("3")))

	// First lot fully drained, remainder taken from the second.
	first, _ := led.WarehouseLineForUpdate(ctx, 1)
	second, _ := led.WarehouseLineForUpdate(ctx, 2)
	require.True(t, first.Qty.IsZero())
	require.True(t, second.Qty.Equal(dec("3")))
}

func TestDecrementBatchInsufficientLeavesLedgerUntouched(t *testing.T) {
	led := newMemoryLedger()
	eng := NewEngine()
	ctx := context.Background()

	require.NoError(t, eng.IncrementBatch(ctx, led, 1, 10, 5, dec("2"), nil, nil))

	err := eng.DecrementBatch(ctx, led, 1, 10, 5, dec("8"))
	require.Error(t, err)
	require.Equal(t, shared.KindInsufficientStock, shared.KindOf(err))
	require.True(t, led.aggregate(10, 5).Equal(dec("2")))
}

func TestIncrementBatchNeverMergesLots(t *testing.T) {
	led := newMemoryLedger()
	eng := NewEngine()
	ctx := context.Background()

	require.NoError(t, eng.IncrementBatch(ctx, led, 1, 10, 5, dec("4"), strPtr("B-01"), nil))
	require.NoError(t, eng.IncrementBatch(ctx, led, 1, 10, 5, dec("4"), strPtr("B-01"), nil))

	lines, err := led.WarehouseLinesForUpdate(ctx, 10, 5)
	require.NoError(t, err)
	require.Len(t, lines, 2)
}

func TestRoomDebitCreditRoundTrip(t *testing.T) {
	led := newMemoryLedger()
	eng := NewEngine()
	ctx := context.Background()

	require.NoError(t, eng.IncrementRoom(ctx, led, 1, 7, 5, dec("10")))
	require.NoError(t, eng.DecrementRoom(ctx, led, 1, 7, 5, dec("4")))
	require.NoError(t, eng.IncrementRoom(ctx, led, 1, 7, 5, dec("4")))

	line, found, err := led.RoomLineForUpdate(ctx, 7, 5)
	require.NoError(t, err)
	require.True(t, found)
	require.True(t, line.Qty.Equal(dec("10")))
}

func TestDecrementRoomInsufficient(t *testing.T) {
	led := newMemoryLedger()
	eng := NewEngine()
	ctx := context.Background()

	err := eng.DecrementRoom(ctx, led, 1, 7, 5, dec("1"))
	require.Error(t, err)
	require.Equal(t, shared.KindInsufficientStock, shared.KindOf(err))
}

func TestReconcileZeroDeltaIsNoOp(t *testing.T) {
	led := newMemoryLedger()
	eng := NewEngine()
	ctx := context.Background()
	actor := shared.Actor{ID: 9, Role: shared.RoleWarehouseStaff, WarehouseID: 10}

	require.NoError(t, eng.IncrementBatch(ctx, led, 9, 10, 5, dec("20"), strPtr("B-01"), nil))
	auditCount := len(led.audits)

	_, applied, err := eng.Reconcile(ctx, led, actor, 1, dec("20"), AdjustStockOpname, "cek rutin")
	require.NoError(t, err)
	require.False(t, applied)
	require.Empty(t, led.adjustments)
	require.Len(t, led.audits, auditCount)
}

func TestReconcileAppliesSignedDelta(t *testing.T) {
	led := newMemoryLedger()
	eng := NewEngine()
	ctx := context.Background()
	actor := shared.Actor{ID: 9, Role: shared.RoleWarehouseStaff, WarehouseID: 10}

	require.NoError(t, eng.IncrementBatch(ctx, led, 9, 10, 5, dec("20"), strPtr("B-01"), nil))

	adj, applied, err := eng.Reconcile(ctx, led, actor, 1, dec("17"), AdjustStockOpname, "selisih hitung")
	require.NoError(t, err)
	require.True(t, applied)
	require.True(t, adj.Delta.Equal(dec("-3")))
	require.Len(t, led.adjustments, 1)

	line, _ := led.WarehouseLineForUpdate(ctx, 1)
	require.True(t, line.Qty.Equal(dec("17")))
}

func TestReconcileCrossWarehouseDenied(t *testing.T) {
	led := newMemoryLedger()
	eng := NewEngine()
	ctx := context.Background()
	actor := shared.Actor{ID: 9, Role: shared.RoleWarehouseStaff, WarehouseID: 99}

	require.NoError(t, eng.IncrementBatch(ctx, led, 9, 10, 5, dec("20"), nil, nil))

	_, _, err := eng.Reconcile(ctx, led, actor, 1, dec("10"), AdjustStockOpname, "salah gudang")
	require.Error(t, err)
	require.Equal(t, shared.KindAuthorization, shared.KindOf(err))
}

func TestReconcileMissingLine(t *testing.T) {
	led := newMemoryLedger()
	eng := NewEngine()
	actor := shared.Actor{ID: 9, Role: shared.RoleSuperAdmin}

	_, _, err := eng.Reconcile(context.Background(), led, actor, 404, dec("10"), AdjustStockOpname, "")
	require.Error(t, err)
	require.Equal(t, shared.KindNotFound, shared.KindOf(err))
}

func strPtr(s string) *string { return &s }
