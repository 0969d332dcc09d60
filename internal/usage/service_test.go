package usage

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/unistock-erp/unistock-erp/internal/shared"
	"github.com/unistock-erp/unistock-erp/internal/stock"
)

type memoryUsageState struct {
	reports   map[uuid.UUID]Report
	details   map[uuid.UUID][]Detail
	roomLines map[string]stock.RoomLine
	audits    []shared.AuditLog
	nextID    int64
}

func newMemoryUsageState() *memoryUsageState {
	return &memoryUsageState{
		reports:   make(map[uuid.UUID]Report),
		details:   make(map[uuid.UUID][]Detail),
		roomLines: make(map[string]stock.RoomLine),
	}
}

func (s *memoryUsageState) clone() *memoryUsageState {
	c := newMemoryUsageState()
	for k, v := range s.reports {
		c.reports[k] = v
	}
	for k, v := range s.details {
		c.details[k] = append([]Detail(nil), v...)
	}
	for k, v := range s.roomLines {
		c.roomLines[k] = v
	}
	c.audits = append([]shared.AuditLog(nil), s.audits...)
	c.nextID = s.nextID
	return c
}

type memoryUsageRepo struct {
	state *memoryUsageState
	rooms map[int64]Room
	items map[int64]stock.Consumable
}

func newMemoryUsageRepo() *memoryUsageRepo {
	return &memoryUsageRepo{
		state: newMemoryUsageState(),
		rooms: make(map[int64]Room),
		items: make(map[int64]stock.Consumable),
	}
}

func (r *memoryUsageRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	working := r.state.clone()
	if err := fn(ctx, &memoryUsageTx{state: working}); err != nil {
		return err
	}
	r.state = working
	return nil
}

func (r *memoryUsageRepo) Get(ctx context.Context, id uuid.UUID) (Report, []Detail, error) {
	report, ok := r.state.reports[id]
	if !ok {
		return Report{}, nil, shared.E(shared.KindNotFound, "laporan tidak ditemukan")
	}
	return report, append([]Detail(nil), r.state.details[id]...), nil
}

func (r *memoryUsageRepo) GetRoom(ctx context.Context, roomID int64) (Room, error) {
	room, ok := r.rooms[roomID]
	if !ok {
		return Room{}, shared.E(shared.KindNotFound, "ruangan tidak ditemukan")
	}
	return room, nil
}

func (r *memoryUsageRepo) GetConsumable(ctx context.Context, id int64) (stock.Consumable, error) {
	item, ok := r.items[id]
	if !ok {
		return stock.Consumable{}, shared.E(shared.KindNotFound, "barang tidak ditemukan")
	}
	return item, nil
}

func (r *memoryUsageRepo) ListByUnit(ctx context.Context, unitID int64, limit int) ([]Report, error) {
	var out []Report
	for _, report := range r.state.reports {
		if unitID == 0 || report.UnitID == unitID {
			out = append(out, report)
		}
	}
	return out, nil
}

func (r *memoryUsageRepo) seedRoomStock(roomID, consumableID int64, qty string) {
	r.state.roomLines[fmt.Sprintf("%d:%d", roomID, consumableID)] = stock.RoomLine{
		RoomID: roomID, ConsumableID: consumableID, Qty: decimal.RequireFromString(qty),
	}
}

func (r *memoryUsageRepo) roomQty(roomID, consumableID int64) decimal.Decimal {
	line, ok := r.state.roomLines[fmt.Sprintf("%d:%d", roomID, consumableID)]
	if !ok {
		return decimal.Zero
	}
	return line.Qty
}

func (r *memoryUsageRepo) auditActions(entity string) []string {
	var out []string
	for _, log := range r.state.audits {
		if log.Entity == entity {
			out = append(out, log.Action)
		}
	}
	return out
}

type memoryUsageTx struct {
	state *memoryUsageState
}

func (tx *memoryUsageTx) Insert(ctx context.Context, report Report) error {
	tx.state.reports[report.ID] = report
	return nil
}

func (tx *memoryUsageTx) InsertDetail(ctx context.Context, detail Detail) error {
	tx.state.nextID++
	detail.ID = tx.state.nextID
	tx.state.details[detail.ReportID] = append(tx.state.details[detail.ReportID], detail)
	return nil
}

func (tx *memoryUsageTx) Delete(ctx context.Context, id uuid.UUID) error {
	delete(tx.state.reports, id)
	delete(tx.state.details, id)
	return nil
}

func (tx *memoryUsageTx) AppendAudit(ctx context.Context, log shared.AuditLog) error {
	tx.state.audits = append(tx.state.audits, log)
	return nil
}

func (tx *memoryUsageTx) Ledger() stock.Ledger {
	return &memoryUsageLedger{state: tx.state}
}

type memoryUsageLedger struct {
	state *memoryUsageState
}

func (l *memoryUsageLedger) WarehouseLinesForUpdate(ctx context.Context, warehouseID, consumableID int64) ([]stock.WarehouseLine, error) {
	return nil, nil
}

func (l *memoryUsageLedger) WarehouseLineForUpdate(ctx context.Context, lineID int64) (stock.WarehouseLine, error) {
	return stock.WarehouseLine{}, stock.ErrLineNotFound
}

func (l *memoryUsageLedger) InsertWarehouseLine(ctx context.Context, line stock.WarehouseLine) (int64, error) {
	return 0, nil
}

func (l *memoryUsageLedger) SetWarehouseLineQty(ctx context.Context, lineID int64, qty decimal.Decimal) error {
	return nil
}

func (l *memoryUsageLedger) RoomLineForUpdate(ctx context.Context, roomID, consumableID int64) (stock.RoomLine, bool, error) {
	line, ok := l.state.roomLines[fmt.Sprintf("%d:%d", roomID, consumableID)]
	return line, ok, nil
}

func (l *memoryUsageLedger) UpsertRoomLine(ctx context.Context, roomID, consumableID int64, qty decimal.Decimal) error {
	key := fmt.Sprintf("%d:%d", roomID, consumableID)
	line, ok := l.state.roomLines[key]
	if !ok {
		line = stock.RoomLine{RoomID: roomID, ConsumableID: consumableID}
	}
	line.Qty = qty
	l.state.roomLines[key] = line
	return nil
}

func (l *memoryUsageLedger) InsertAdjustment(ctx context.Context, adj stock.Adjustment) (int64, error) {
	l.state.nextID++
	return l.state.nextID, nil
}

func (l *memoryUsageLedger) AppendAudit(ctx context.Context, log shared.AuditLog) error {
	l.state.audits = append(l.state.audits, log)
	return nil
}

var (
	labStaff  = shared.Actor{ID: 31, Role: shared.RoleUnitStaff, UnitID: 1, FacultyID: 1}
	kepalaLab = shared.Actor{ID: 32, Role: shared.RoleUnitAdmin, UnitID: 1, FacultyID: 1}
)

func seedUsageRepo() *memoryUsageRepo {
	repo := newMemoryUsageRepo()
	repo.rooms[100] = Room{ID: 100, UnitID: 1, FacultyID: 1, Name: "Lab Mikrobiologi"}
	repo.items[5] = stock.Consumable{ID: 5, Name: "Cawan petri", Unit: "pcs"}
	repo.items[6] = stock.Consumable{ID: 6, Name: "Media agar", Unit: "botol"}
	repo.seedRoomStock(100, 5, "10")
	repo.seedRoomStock(100, 6, "2")
	return repo
}

func TestReportDebitsRoomStock(t *testing.T) {
	repo := seedUsageRepo()
	svc := NewService(repo, stock.NewEngine(), nil, nil)

	report, err := svc.Report(context.Background(), labStaff, ReportInput{
		RoomID: 100,
		Lines:  []LineInput{{ConsumableID: 5, Qty: decimal.RequireFromString("4")}},
	})
	require.NoError(t, err)
	require.True(t, repo.roomQty(100, 5).Equal(decimal.RequireFromString("6")))

	_, details, err := repo.Get(context.Background(), report.ID)
	require.NoError(t, err)
	require.Len(t, details, 1)
}

func TestReportAbortsWithoutPartialDebit(t *testing.T) {
	repo := seedUsageRepo()
	svc := NewService(repo, stock.NewEngine(), nil, nil)

	// Second line exceeds room stock; first line must not be debited.
	_, err := svc.Report(context.Background(), labStaff, ReportInput{
		RoomID: 100,
		Lines: []LineInput{
			{ConsumableID: 5, Qty: decimal.RequireFromString("4")},
			{ConsumableID: 6, Qty: decimal.RequireFromString("3")},
		},
	})
	require.Error(t, err)
	require.Equal(t, shared.KindInsufficientStock, shared.KindOf(err))
	require.True(t, repo.roomQty(100, 5).Equal(decimal.RequireFromString("10")))
	require.True(t, repo.roomQty(100, 6).Equal(decimal.RequireFromString("2")))
}

func TestReportRejectsForeignRoom(t *testing.T) {
	repo := seedUsageRepo()
	repo.rooms[200] = Room{ID: 200, UnitID: 9, FacultyID: 1}
	svc := NewService(repo, stock.NewEngine(), nil, nil)

	_, err := svc.Report(context.Background(), labStaff, ReportInput{
		RoomID: 200,
		Lines:  []LineInput{{ConsumableID: 5, Qty: decimal.RequireFromString("1")}},
	})
	require.Equal(t, shared.KindValidation, shared.KindOf(err))
}

func TestDeleteRecreditsAndKeepsCreateAudit(t *testing.T) {
	repo := seedUsageRepo()
	svc := NewService(repo, stock.NewEngine(), nil, nil)
	ctx := context.Background()

	report, err := svc.Report(ctx, labStaff, ReportInput{
		RoomID: 100,
		Lines:  []LineInput{{ConsumableID: 5, Qty: decimal.RequireFromString("4")}},
	})
	require.NoError(t, err)
	require.True(t, repo.roomQty(100, 5).Equal(decimal.RequireFromString("6")))

	require.NoError(t, svc.Delete(ctx, labStaff, report.ID))
	require.True(t, repo.roomQty(100, 5).Equal(decimal.RequireFromString("10")))

	_, _, err = repo.Get(ctx, report.ID)
	require.Equal(t, shared.KindNotFound, shared.KindOf(err))
	require.Equal(t, []string{"CREATE", "DELETE"}, repo.auditActions("usage_reports"))
}

func TestDeleteDeniedForOtherStaffAllowedForUnitAdmin(t *testing.T) {
	repo := seedUsageRepo()
	svc := NewService(repo, stock.NewEngine(), nil, nil)
	ctx := context.Background()

	report, err := svc.Report(ctx, labStaff, ReportInput{
		RoomID: 100,
		Lines:  []LineInput{{ConsumableID: 5, Qty: decimal.RequireFromString("2")}},
	})
	require.NoError(t, err)

	otherStaff := shared.Actor{ID: 99, Role: shared.RoleUnitStaff, UnitID: 1, FacultyID: 1}
	err = svc.Delete(ctx, otherStaff, report.ID)
	require.Equal(t, shared.KindAuthorization, shared.KindOf(err))

	require.NoError(t, svc.Delete(ctx, kepalaLab, report.ID))
}

func TestUnitAdminCannotFileReports(t *testing.T) {
	repo := seedUsageRepo()
	svc := NewService(repo, stock.NewEngine(), nil, nil)

	_, err := svc.Report(context.Background(), kepalaLab, ReportInput{
		RoomID: 100,
		Lines:  []LineInput{{ConsumableID: 5, Qty: decimal.RequireFromString("1")}},
	})
	require.Equal(t, shared.KindAuthorization, shared.KindOf(err))
}
