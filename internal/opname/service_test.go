package opname

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/unistock-erp/unistock-erp/internal/shared"
	"github.com/unistock-erp/unistock-erp/internal/stock"
)

type memoryStocks struct {
	lines       map[int64]stock.WarehouseLine
	adjustments []stock.Adjustment
	audits      []shared.AuditLog
	nextID      int64
}

func newMemoryStocks() *memoryStocks {
	return &memoryStocks{lines: make(map[int64]stock.WarehouseLine)}
}

func (m *memoryStocks) WithTx(ctx context.Context, fn func(context.Context, stock.Ledger) error) error {
	return fn(ctx, (*memoryStockLedger)(m))
}

func (m *memoryStocks) ListWarehouseLines(ctx context.Context, warehouseID, consumableID int64) ([]stock.WarehouseLine, error) {
	var out []stock.WarehouseLine
	for id := int64(1); id <= m.nextID; id++ {
		line, ok := m.lines[id]
		if ok && line.WarehouseID == warehouseID && (consumableID == 0 || line.ConsumableID == consumableID) {
			out = append(out, line)
		}
	}
	return out, nil
}

func (m *memoryStocks) ListAdjustments(ctx context.Context, warehouseID int64, limit int) ([]stock.Adjustment, error) {
	var out []stock.Adjustment
	for _, adjustment := range m.adjustments {
		if adjustment.WarehouseID == warehouseID {
			out = append(out, adjustment)
		}
	}
	return out, nil
}

func (m *memoryStocks) seedLine(warehouseID, consumableID int64, qty string) int64 {
	m.nextID++
	m.lines[m.nextID] = stock.WarehouseLine{
		ID: m.nextID, WarehouseID: warehouseID, ConsumableID: consumableID,
		Qty: decimal.RequireFromString(qty),
	}
	return m.nextID
}

type memoryStockLedger memoryStocks

func (l *memoryStockLedger) WarehouseLinesForUpdate(ctx context.Context, warehouseID, consumableID int64) ([]stock.WarehouseLine, error) {
	return (*memoryStocks)(l).ListWarehouseLines(ctx, warehouseID, consumableID)
}

func (l *memoryStockLedger) WarehouseLineForUpdate(ctx context.Context, lineID int64) (stock.WarehouseLine, error) {
	line, ok := l.lines[lineID]
	if !ok {
		return stock.WarehouseLine{}, stock.ErrLineNotFound
	}
	return line, nil
}

func (l *memoryStockLedger) InsertWarehouseLine(ctx context.Context, line stock.WarehouseLine) (int64, error) {
	l.nextID++
	line.ID = l.nextID
	l.lines[line.ID] = line
	return line.ID, nil
}

func (l *memoryStockLedger) SetWarehouseLineQty(ctx context.Context, lineID int64, qty decimal.Decimal) error {
	line := l.lines[lineID]
	line.Qty = qty
	l.lines[lineID] = line
	return nil
}

func (l *memoryStockLedger) RoomLineForUpdate(ctx context.Context, roomID, consumableID int64) (stock.RoomLine, bool, error) {
	return stock.RoomLine{}, false, nil
}

func (l *memoryStockLedger) UpsertRoomLine(ctx context.Context, roomID, consumableID int64, qty decimal.Decimal) error {
	return nil
}

func (l *memoryStockLedger) InsertAdjustment(ctx context.Context, adjustment stock.Adjustment) (int64, error) {
	l.nextID++
	adjustment.ID = l.nextID
	l.adjustments = append(l.adjustments, adjustment)
	return adjustment.ID, nil
}

func (l *memoryStockLedger) AppendAudit(ctx context.Context, log shared.AuditLog) error {
	l.audits = append(l.audits, log)
	return nil
}

var petugasGudang = shared.Actor{ID: 41, Role: shared.RoleWarehouseStaff, WarehouseID: 3}

func TestReconcileAppliesSignedDelta(t *testing.T) {
	stocks := newMemoryStocks()
	lineID := stocks.seedLine(3, 5, "12")
	svc := NewService(stocks, stock.NewEngine(), nil, nil)

	adjustment, applied, err := svc.Reconcile(context.Background(), petugasGudang, ReconcileInput{
		LineID:      lineID,
		PhysicalQty: decimal.RequireFromString("9"),
		Type:        stock.AdjustStockOpname,
		Reason:      "selisih hitung fisik",
	})
	require.NoError(t, err)
	require.True(t, applied)
	require.True(t, adjustment.Delta.Equal(decimal.RequireFromString("-3")))
	require.True(t, stocks.lines[lineID].Qty.Equal(decimal.RequireFromString("9")))
}

func TestReconcileZeroDeltaIsNoOp(t *testing.T) {
	stocks := newMemoryStocks()
	lineID := stocks.seedLine(3, 5, "12")
	svc := NewService(stocks, stock.NewEngine(), nil, nil)

	_, applied, err := svc.Reconcile(context.Background(), petugasGudang, ReconcileInput{
		LineID:      lineID,
		PhysicalQty: decimal.RequireFromString("12"),
		Type:        stock.AdjustStockOpname,
	})
	require.NoError(t, err)
	require.False(t, applied)
	require.Empty(t, stocks.adjustments)
}

type countingInvalidator struct {
	bumps int
}

func (c *countingInvalidator) Invalidate(ctx context.Context) error {
	c.bumps++
	return nil
}

func TestReconcileBumpsReportCacheOnlyWhenApplied(t *testing.T) {
	stocks := newMemoryStocks()
	lineID := stocks.seedLine(3, 5, "12")
	inv := &countingInvalidator{}
	svc := NewService(stocks, stock.NewEngine(), inv, nil)
	ctx := context.Background()

	_, applied, err := svc.Reconcile(ctx, petugasGudang, ReconcileInput{
		LineID:      lineID,
		PhysicalQty: decimal.RequireFromString("12"),
		Type:        stock.AdjustStockOpname,
	})
	require.NoError(t, err)
	require.False(t, applied)
	require.Zero(t, inv.bumps)

	_, applied, err = svc.Reconcile(ctx, petugasGudang, ReconcileInput{
		LineID:      lineID,
		PhysicalQty: decimal.RequireFromString("9"),
		Type:        stock.AdjustStockOpname,
		Reason:      "selisih hitung fisik",
	})
	require.NoError(t, err)
	require.True(t, applied)
	require.Equal(t, 1, inv.bumps)
}

func TestReconcileRejectsUnknownType(t *testing.T) {
	stocks := newMemoryStocks()
	lineID := stocks.seedLine(3, 5, "12")
	svc := NewService(stocks, stock.NewEngine(), nil, nil)

	_, _, err := svc.Reconcile(context.Background(), petugasGudang, ReconcileInput{
		LineID:      lineID,
		PhysicalQty: decimal.RequireFromString("9"),
		Type:        stock.AdjustmentType("SHRINKAGE"),
	})
	require.Equal(t, shared.KindValidation, shared.KindOf(err))
}

func TestReconcileDeniedForUnitRoles(t *testing.T) {
	stocks := newMemoryStocks()
	lineID := stocks.seedLine(3, 5, "12")
	svc := NewService(stocks, stock.NewEngine(), nil, nil)

	staf := shared.Actor{ID: 42, Role: shared.RoleUnitStaff, UnitID: 1}
	_, _, err := svc.Reconcile(context.Background(), staf, ReconcileInput{
		LineID:      lineID,
		PhysicalQty: decimal.RequireFromString("9"),
		Type:        stock.AdjustStockOpname,
	})
	require.Equal(t, shared.KindAuthorization, shared.KindOf(err))
}

func TestCountSheetScopedToOwnWarehouse(t *testing.T) {
	stocks := newMemoryStocks()
	stocks.seedLine(3, 5, "12")
	stocks.seedLine(4, 5, "7")
	svc := NewService(stocks, stock.NewEngine(), nil, nil)

	lines, err := svc.CountSheet(context.Background(), petugasGudang, 3, 0)
	require.NoError(t, err)
	require.Len(t, lines, 1)

	_, err = svc.CountSheet(context.Background(), petugasGudang, 4, 0)
	require.Equal(t, shared.KindAuthorization, shared.KindOf(err))
}
