package procurement

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/unistock-erp/unistock-erp/internal/shared"
	"github.com/unistock-erp/unistock-erp/internal/stock"
)

type memoryProcState struct {
	procs          map[uuid.UUID]Procurement
	lines          map[uuid.UUID][]Line
	warehouseLines map[int64]stock.WarehouseLine
	approvals      []shared.ApprovalLog
	audits         []shared.AuditLog
	nextID         int64
}

func newMemoryProcState() *memoryProcState {
	return &memoryProcState{
		procs:          make(map[uuid.UUID]Procurement),
		lines:          make(map[uuid.UUID][]Line),
		warehouseLines: make(map[int64]stock.WarehouseLine),
	}
}

func (s *memoryProcState) clone() *memoryProcState {
	c := newMemoryProcState()
	for k, v := range s.procs {
		c.procs[k] = v
	}
	for k, v := range s.lines {
		c.lines[k] = append([]Line(nil), v...)
	}
	for k, v := range s.warehouseLines {
		c.warehouseLines[k] = v
	}
	c.approvals = append([]shared.ApprovalLog(nil), s.approvals...)
	c.audits = append([]shared.AuditLog(nil), s.audits...)
	c.nextID = s.nextID
	return c
}

type memoryProcRepo struct {
	state *memoryProcState
	items map[int64]stock.Consumable
}

func newMemoryProcRepo() *memoryProcRepo {
	return &memoryProcRepo{state: newMemoryProcState(), items: make(map[int64]stock.Consumable)}
}

func (r *memoryProcRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	working := r.state.clone()
	if err := fn(ctx, &memoryProcTx{state: working}); err != nil {
		return err
	}
	r.state = working
	return nil
}

func (r *memoryProcRepo) Get(ctx context.Context, id uuid.UUID) (Procurement, []Line, error) {
	proc, ok := r.state.procs[id]
	if !ok {
		return Procurement{}, nil, shared.E(shared.KindNotFound, "pengadaan tidak ditemukan")
	}
	return proc, append([]Line(nil), r.state.lines[id]...), nil
}

func (r *memoryProcRepo) GetConsumable(ctx context.Context, id int64) (stock.Consumable, error) {
	item, ok := r.items[id]
	if !ok {
		return stock.Consumable{}, shared.E(shared.KindNotFound, "barang tidak ditemukan")
	}
	return item, nil
}

func (r *memoryProcRepo) List(ctx context.Context, limit int) ([]Procurement, error) {
	var out []Procurement
	for _, proc := range r.state.procs {
		out = append(out, proc)
	}
	return out, nil
}

func (r *memoryProcRepo) ListByWarehouse(ctx context.Context, warehouseID int64, limit int) ([]Procurement, error) {
	var out []Procurement
	for id, proc := range r.state.procs {
		for _, line := range r.state.lines[id] {
			if line.WarehouseID == warehouseID {
				out = append(out, proc)
				break
			}
		}
	}
	return out, nil
}

func (r *memoryProcRepo) warehouseQty(warehouseID, consumableID int64) decimal.Decimal {
	total := decimal.Zero
	for _, line := range r.state.warehouseLines {
		if line.WarehouseID == warehouseID && line.ConsumableID == consumableID {
			total = total.Add(line.Qty)
		}
	}
	return total
}

func (r *memoryProcRepo) batchCount(warehouseID, consumableID int64) int {
	n := 0
	for _, line := range r.state.warehouseLines {
		if line.WarehouseID == warehouseID && line.ConsumableID == consumableID {
			n++
		}
	}
	return n
}

type memoryProcTx struct {
	state *memoryProcState
}

func (tx *memoryProcTx) Insert(ctx context.Context, proc Procurement) error {
	tx.state.procs[proc.ID] = proc
	return nil
}

func (tx *memoryProcTx) InsertLine(ctx context.Context, line Line) error {
	tx.state.nextID++
	line.ID = tx.state.nextID
	tx.state.lines[line.ProcurementID] = append(tx.state.lines[line.ProcurementID], line)
	return nil
}

func (tx *memoryProcTx) DeleteLines(ctx context.Context, procurementID uuid.UUID) error {
	delete(tx.state.lines, procurementID)
	return nil
}

func (tx *memoryProcTx) UpdateStatus(ctx context.Context, id uuid.UUID, status Status, rejectReason string) error {
	proc := tx.state.procs[id]
	proc.Status = status
	proc.RejectReason = rejectReason
	tx.state.procs[id] = proc
	return nil
}

func (tx *memoryProcTx) SetLineReceipt(ctx context.Context, lineID int64, receivedQty decimal.Decimal, condition Condition, batchNo *string, expiresAt *time.Time) error {
	for procID, lines := range tx.state.lines {
		for i, line := range lines {
			if line.ID == lineID {
				q := receivedQty
				c := condition
				lines[i].ReceivedQty = &q
				lines[i].Condition = &c
				lines[i].BatchNo = batchNo
				lines[i].ExpiresAt = expiresAt
				tx.state.lines[procID] = lines
				return nil
			}
		}
	}
	return shared.E(shared.KindNotFound, "baris tidak ditemukan")
}

func (tx *memoryProcTx) RecordApproval(ctx context.Context, log shared.ApprovalLog) error {
	tx.state.approvals = append(tx.state.approvals, log)
	return nil
}

func (tx *memoryProcTx) AppendAudit(ctx context.Context, log shared.AuditLog) error {
	tx.state.audits = append(tx.state.audits, log)
	return nil
}

func (tx *memoryProcTx) Ledger() stock.Ledger {
	return &memoryProcLedger{state: tx.state}
}

type memoryProcLedger struct {
	state *memoryProcState
}

func (l *memoryProcLedger) WarehouseLinesForUpdate(ctx context.Context, warehouseID, consumableID int64) ([]stock.WarehouseLine, error) {
	var lines []stock.WarehouseLine
	for id := int64(1); id <= l.state.nextID; id++ {
		line, ok := l.state.warehouseLines[id]
		if ok && line.WarehouseID == warehouseID && line.ConsumableID == consumableID {
			lines = append(lines, line)
		}
	}
	return lines, nil
}

func (l *memoryProcLedger) WarehouseLineForUpdate(ctx context.Context, lineID int64) (stock.WarehouseLine, error) {
	line, ok := l.state.warehouseLines[lineID]
	if !ok {
		return stock.WarehouseLine{}, stock.ErrLineNotFound
	}
	return line, nil
}

func (l *memoryProcLedger) InsertWarehouseLine(ctx context.Context, line stock.WarehouseLine) (int64, error) {
	l.state.nextID++
	line.ID = l.state.nextID
	l.state.warehouseLines[line.ID] = line
	return line.ID, nil
}

func (l *memoryProcLedger) SetWarehouseLineQty(ctx context.Context, lineID int64, qty decimal.Decimal) error {
	line := l.state.warehouseLines[lineID]
	line.Qty = qty
	l.state.warehouseLines[lineID] = line
	return nil
}

func (l *memoryProcLedger) RoomLineForUpdate(ctx context.Context, roomID, consumableID int64) (stock.RoomLine, bool, error) {
	return stock.RoomLine{}, false, nil
}

func (l *memoryProcLedger) UpsertRoomLine(ctx context.Context, roomID, consumableID int64, qty decimal.Decimal) error {
	return nil
}

func (l *memoryProcLedger) InsertAdjustment(ctx context.Context, adj stock.Adjustment) (int64, error) {
	l.state.nextID++
	return l.state.nextID, nil
}

func (l *memoryProcLedger) AppendAudit(ctx context.Context, log shared.AuditLog) error {
	l.state.audits = append(l.state.audits, log)
	return nil
}

var (
	gudangStaff  = shared.Actor{ID: 21, Role: shared.RoleWarehouseStaff, WarehouseID: 3}
	dekanat      = shared.Actor{ID: 22, Role: shared.RoleFacultyAdmin, FacultyID: 1}
	adminPusat   = shared.Actor{ID: 23, Role: shared.RoleSuperAdmin}
	strOf        = func(s string) *string { return &s }
	timeOf       = func(t time.Time) *time.Time { return &t }
	expirySample = time.Date(2027, 3, 1, 0, 0, 0, 0, time.UTC)
)

func newProcService(repo *memoryProcRepo) *Service {
	return NewService(repo, stock.NewEngine(), nil, nil, nil)
}

func seedProcRepo() *memoryProcRepo {
	repo := newMemoryProcRepo()
	repo.items[5] = stock.Consumable{ID: 5, Name: "Alkohol 70%", Unit: "liter", HasExpiry: true}
	repo.items[6] = stock.Consumable{ID: 6, Name: "Kertas A4", Unit: "rim"}
	return repo
}

func createPending(t *testing.T, svc *Service, lines []LineInput) Procurement {
	t.Helper()
	proc, err := svc.Create(context.Background(), gudangStaff, CreateInput{Notes: "restock rutin", Lines: lines})
	require.NoError(t, err)
	require.Equal(t, StatusPending, proc.Status)
	return proc
}

func TestReceiveCreditsOnlyGoodLines(t *testing.T) {
	repo := seedProcRepo()
	svc := newProcService(repo)
	ctx := context.Background()

	proc := createPending(t, svc, []LineInput{
		{ConsumableID: 5, WarehouseID: 3, Qty: decimal.RequireFromString("20")},
		{ConsumableID: 6, WarehouseID: 3, Qty: decimal.RequireFromString("50")},
	})
	_, err := svc.Approve(ctx, dekanat, proc.ID)
	require.NoError(t, err)

	_, lines, err := repo.Get(ctx, proc.ID)
	require.NoError(t, err)
	require.Len(t, lines, 2)

	got, err := svc.Receive(ctx, gudangStaff, proc.ID, ReceiveInput{Lines: map[int64]ReceiptLine{
		lines[0].ID: {ReceivedQty: decimal.RequireFromString("18"), Condition: ConditionGood,
			BatchNo: strOf("B-2027-03"), ExpiresAt: timeOf(expirySample)},
		lines[1].ID: {ReceivedQty: decimal.RequireFromString("50"), Condition: ConditionDamaged},
	}})
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, got.Status)

	require.True(t, repo.warehouseQty(3, 5).Equal(decimal.RequireFromString("18")))
	require.True(t, repo.warehouseQty(3, 6).IsZero())
}

func TestReceiveNeverMergesRepeatedBatchNumbers(t *testing.T) {
	repo := seedProcRepo()
	svc := newProcService(repo)
	ctx := context.Background()

	for range 2 {
		proc := createPending(t, svc, []LineInput{
			{ConsumableID: 5, WarehouseID: 3, Qty: decimal.RequireFromString("10")},
		})
		_, err := svc.Approve(ctx, dekanat, proc.ID)
		require.NoError(t, err)
		_, lines, err := repo.Get(ctx, proc.ID)
		require.NoError(t, err)
		_, err = svc.Receive(ctx, gudangStaff, proc.ID, ReceiveInput{Lines: map[int64]ReceiptLine{
			lines[0].ID: {ReceivedQty: decimal.RequireFromString("10"), Condition: ConditionGood,
				BatchNo: strOf("B-REPEAT"), ExpiresAt: timeOf(expirySample)},
		}})
		require.NoError(t, err)
	}

	require.Equal(t, 2, repo.batchCount(3, 5))
	require.True(t, repo.warehouseQty(3, 5).Equal(decimal.RequireFromString("20")))
}

func TestReceiveRequiresBatchAndExpiryForExpirableItems(t *testing.T) {
	repo := seedProcRepo()
	svc := newProcService(repo)
	ctx := context.Background()

	proc := createPending(t, svc, []LineInput{
		{ConsumableID: 5, WarehouseID: 3, Qty: decimal.RequireFromString("10")},
	})
	_, err := svc.Approve(ctx, dekanat, proc.ID)
	require.NoError(t, err)
	_, lines, err := repo.Get(ctx, proc.ID)
	require.NoError(t, err)

	_, err = svc.Receive(ctx, gudangStaff, proc.ID, ReceiveInput{Lines: map[int64]ReceiptLine{
		lines[0].ID: {ReceivedQty: decimal.RequireFromString("10"), Condition: ConditionGood,
			BatchNo: strOf("B-TANPA-ED")},
	}})
	require.Error(t, err)
	require.Equal(t, shared.KindValidation, shared.KindOf(err))

	// The whole receipt aborts: status unchanged, nothing credited.
	got, _, err := repo.Get(ctx, proc.ID)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, got.Status)
	require.True(t, repo.warehouseQty(3, 5).IsZero())
}

func TestReceiveOnlyFromApproved(t *testing.T) {
	repo := seedProcRepo()
	svc := newProcService(repo)
	ctx := context.Background()

	proc := createPending(t, svc, []LineInput{
		{ConsumableID: 6, WarehouseID: 3, Qty: decimal.RequireFromString("5")},
	})
	_, lines, err := repo.Get(ctx, proc.ID)
	require.NoError(t, err)

	_, err = svc.Receive(ctx, gudangStaff, proc.ID, ReceiveInput{Lines: map[int64]ReceiptLine{
		lines[0].ID: {ReceivedQty: decimal.RequireFromString("5"), Condition: ConditionGood},
	}})
	require.Equal(t, shared.KindInvalidState, shared.KindOf(err))
}

func TestEditResetsRejectedToPending(t *testing.T) {
	repo := seedProcRepo()
	svc := newProcService(repo)
	ctx := context.Background()

	proc := createPending(t, svc, []LineInput{
		{ConsumableID: 6, WarehouseID: 3, Qty: decimal.RequireFromString("5")},
	})
	_, err := svc.Reject(ctx, dekanat, proc.ID, "Anggaran belum tersedia")
	require.NoError(t, err)

	edited, err := svc.Edit(ctx, gudangStaff, proc.ID, CreateInput{Notes: "volume dikurangi", Lines: []LineInput{
		{ConsumableID: 6, WarehouseID: 3, Qty: decimal.RequireFromString("3")},
	}})
	require.NoError(t, err)
	require.Equal(t, StatusPending, edited.Status)
	require.Empty(t, edited.RejectReason)

	_, lines, err := repo.Get(ctx, proc.ID)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	require.True(t, lines[0].Qty.Equal(decimal.RequireFromString("3")))
}

func TestEditDeniedForNonCreatorAndWrongState(t *testing.T) {
	repo := seedProcRepo()
	svc := newProcService(repo)
	ctx := context.Background()

	proc := createPending(t, svc, []LineInput{
		{ConsumableID: 6, WarehouseID: 3, Qty: decimal.RequireFromString("5")},
	})

	otherStaff := shared.Actor{ID: 88, Role: shared.RoleWarehouseStaff, WarehouseID: 3}
	_, err := svc.Edit(ctx, otherStaff, proc.ID, CreateInput{Lines: []LineInput{
		{ConsumableID: 6, WarehouseID: 3, Qty: decimal.RequireFromString("4")},
	}})
	require.Equal(t, shared.KindAuthorization, shared.KindOf(err))

	_, err = svc.Approve(ctx, adminPusat, proc.ID)
	require.NoError(t, err)
	_, err = svc.Edit(ctx, gudangStaff, proc.ID, CreateInput{Lines: []LineInput{
		{ConsumableID: 6, WarehouseID: 3, Qty: decimal.RequireFromString("4")},
	}})
	require.Equal(t, shared.KindInvalidState, shared.KindOf(err))
}

func TestCreateScopedToOwnWarehouse(t *testing.T) {
	repo := seedProcRepo()
	svc := newProcService(repo)

	_, err := svc.Create(context.Background(), gudangStaff, CreateInput{Lines: []LineInput{
		{ConsumableID: 6, WarehouseID: 9, Qty: decimal.RequireFromString("5")},
	}})
	require.Equal(t, shared.KindAuthorization, shared.KindOf(err))
}

func TestRejectRequiresNonEmptyReason(t *testing.T) {
	repo := seedProcRepo()
	svc := newProcService(repo)
	ctx := context.Background()

	proc := createPending(t, svc, []LineInput{
		{ConsumableID: 6, WarehouseID: 3, Qty: decimal.RequireFromString("5")},
	})
	_, err := svc.Reject(ctx, dekanat, proc.ID, "")
	require.Equal(t, shared.KindValidation, shared.KindOf(err))
}
