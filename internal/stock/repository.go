package stock

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/unistock-erp/unistock-erp/internal/platform/db"
	"github.com/unistock-erp/unistock-erp/internal/shared"
)

// Repository persists the quantity ledgers in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes the callback inside a repeatable-read transaction with a
// Ledger bound to it. Used by flows that only touch the ledger (opname).
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, Ledger) error) error {
	if r == nil {
		return errors.New("stock repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewLedger(tx))
	})
}

// AggregateQty sums all batch lines of (warehouse, consumable) without
// locking. Used for the read-only availability check at request creation.
func (r *Repository) AggregateQty(ctx context.Context, warehouseID, consumableID int64) (decimal.Decimal, error) {
	var qty decimal.Decimal
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(qty), 0) FROM warehouse_stock
WHERE warehouse_id=$1 AND consumable_id=$2`, warehouseID, consumableID).Scan(&qty)
	if err != nil {
		return decimal.Zero, err
	}
	return qty, nil
}

// ListWarehouseLines returns the batch lines of a warehouse, optionally
// filtered by consumable, ordered by received time.
func (r *Repository) ListWarehouseLines(ctx context.Context, warehouseID, consumableID int64) ([]WarehouseLine, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, warehouse_id, consumable_id, qty, batch_no, expires_at, received_at
FROM warehouse_stock
WHERE warehouse_id=$1 AND ($2 = 0 OR consumable_id=$2)
ORDER BY received_at ASC, id ASC`, warehouseID, consumableID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanWarehouseLines(rows)
}

// ListRoomLines returns the room ledger rows for one room.
func (r *Repository) ListRoomLines(ctx context.Context, roomID int64) ([]RoomLine, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, room_id, consumable_id, qty, updated_at
FROM room_stock WHERE room_id=$1 ORDER BY consumable_id ASC`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []RoomLine
	for rows.Next() {
		var line RoomLine
		if err := rows.Scan(&line.ID, &line.RoomID, &line.ConsumableID, &line.Qty, &line.UpdatedAt); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// ExpiringBatches lists non-empty batch lines whose expiry falls within the
// window. Consumed by the expiry scan job and the reporting endpoint.
func (r *Repository) ExpiringBatches(ctx context.Context, within time.Duration) ([]WarehouseLine, error) {
	cutoff := time.Now().Add(within)
	rows, err := r.pool.Query(ctx, `SELECT id, warehouse_id, consumable_id, qty, batch_no, expires_at, received_at
FROM warehouse_stock
WHERE expires_at IS NOT NULL AND expires_at <= $1 AND qty > 0
ORDER BY expires_at ASC, id ASC`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanWarehouseLines(rows)
}

// ListAdjustments returns opname adjustments for a warehouse, newest first.
func (r *Repository) ListAdjustments(ctx context.Context, warehouseID int64, limit int) ([]Adjustment, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT id, warehouse_id, consumable_id, batch_no, delta, adj_type, reason, actor_id, occurred_at
FROM stock_adjustments WHERE warehouse_id=$1 ORDER BY occurred_at DESC, id DESC LIMIT $2`, warehouseID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var adjs []Adjustment
	for rows.Next() {
		var adj Adjustment
		var adjType string
		if err := rows.Scan(&adj.ID, &adj.WarehouseID, &adj.ConsumableID, &adj.BatchNo, &adj.Delta, &adjType, &adj.Reason, &adj.ActorID, &adj.At); err != nil {
			return nil, err
		}
		adj.Type = AdjustmentType(adjType)
		adjs = append(adjs, adj)
	}
	return adjs, rows.Err()
}

// pgLedger implements Ledger over an open pgx transaction.
type pgLedger struct {
	tx pgx.Tx
}

// NewLedger binds a Ledger to the caller's transaction. Workflow repositories
// hand this to the engine so ledger effects share their atomicity.
func NewLedger(tx pgx.Tx) Ledger {
	return &pgLedger{tx: tx}
}

func (l *pgLedger) WarehouseLinesForUpdate(ctx context.Context, warehouseID, consumableID int64) ([]WarehouseLine, error) {
	rows, err := l.tx.Query(ctx, `SELECT id, warehouse_id, consumable_id, qty, batch_no, expires_at, received_at
FROM warehouse_stock
WHERE warehouse_id=$1 AND consumable_id=$2
ORDER BY id ASC
FOR UPDATE`, warehouseID, consumableID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanWarehouseLines(rows)
}

func (l *pgLedger) WarehouseLineForUpdate(ctx context.Context, lineID int64) (WarehouseLine, error) {
	var line WarehouseLine
	err := l.tx.QueryRow(ctx, `SELECT id, warehouse_id, consumable_id, qty, batch_no, expires_at, received_at
FROM warehouse_stock WHERE id=$1 FOR UPDATE`, lineID).
		Scan(&line.ID, &line.WarehouseID, &line.ConsumableID, &line.Qty, &line.BatchNo, &line.ExpiresAt, &line.ReceivedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return WarehouseLine{}, ErrLineNotFound
		}
		return WarehouseLine{}, err
	}
	return line, nil
}

func (l *pgLedger) InsertWarehouseLine(ctx context.Context, line WarehouseLine) (int64, error) {
	var id int64
	err := l.tx.QueryRow(ctx, `INSERT INTO warehouse_stock (warehouse_id, consumable_id, qty, batch_no, expires_at, received_at)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
		line.WarehouseID, line.ConsumableID, line.Qty, line.BatchNo, line.ExpiresAt, line.ReceivedAt).Scan(&id)
	return id, err
}

func (l *pgLedger) SetWarehouseLineQty(ctx context.Context, lineID int64, qty decimal.Decimal) error {
	_, err := l.tx.Exec(ctx, `UPDATE warehouse_stock SET qty=$2 WHERE id=$1`, lineID, qty)
	return err
}

func (l *pgLedger) RoomLineForUpdate(ctx context.Context, roomID, consumableID int64) (RoomLine, bool, error) {
	var line RoomLine
	err := l.tx.QueryRow(ctx, `SELECT id, room_id, consumable_id, qty, updated_at
FROM room_stock WHERE room_id=$1 AND consumable_id=$2 FOR UPDATE`, roomID, consumableID).
		Scan(&line.ID, &line.RoomID, &line.ConsumableID, &line.Qty, &line.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RoomLine{}, false, nil
		}
		return RoomLine{}, false, err
	}
	return line, true, nil
}

func (l *pgLedger) UpsertRoomLine(ctx context.Context, roomID, consumableID int64, qty decimal.Decimal) error {
	_, err := l.tx.Exec(ctx, `INSERT INTO room_stock (room_id, consumable_id, qty, updated_at)
VALUES ($1,$2,$3,NOW())
ON CONFLICT (room_id, consumable_id) DO UPDATE SET qty=EXCLUDED.qty, updated_at=NOW()`, roomID, consumableID, qty)
	return err
}

func (l *pgLedger) InsertAdjustment(ctx context.Context, adj Adjustment) (int64, error) {
	var id int64
	err := l.tx.QueryRow(ctx, `INSERT INTO stock_adjustments (warehouse_id, consumable_id, batch_no, delta, adj_type, reason, actor_id, occurred_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id`,
		adj.WarehouseID, adj.ConsumableID, adj.BatchNo, adj.Delta, string(adj.Type), adj.Reason, adj.ActorID, adj.At).Scan(&id)
	return id, err
}

func (l *pgLedger) AppendAudit(ctx context.Context, log shared.AuditLog) error {
	return shared.RecordAudit(ctx, l.tx, log)
}

func scanWarehouseLines(rows pgx.Rows) ([]WarehouseLine, error) {
	var lines []WarehouseLine
	for rows.Next() {
		var line WarehouseLine
		if err := rows.Scan(&line.ID, &line.WarehouseID, &line.ConsumableID, &line.Qty, &line.BatchNo, &line.ExpiresAt, &line.ReceivedAt); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}
