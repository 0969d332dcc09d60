package reporting

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/unistock-erp/unistock-erp/internal/shared"
)

// Repository runs the aggregation queries against PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WarehouseSummary aggregates batch lines per consumable for one warehouse.
// Catalog items with no stock still appear with zero quantity so the
// below-minimum flag covers never-stocked items.
func (r *Repository) WarehouseSummary(ctx context.Context, warehouseID int64) ([]SummaryRow, error) {
	rows, err := r.pool.Query(ctx, `SELECT c.id, c.name, c.unit, COALESCE(SUM(w.qty), 0), c.min_stock, MIN(w.expires_at)
FROM consumables c
LEFT JOIN warehouse_stock w ON w.consumable_id = c.id AND w.warehouse_id = $1 AND w.qty > 0
GROUP BY c.id, c.name, c.unit, c.min_stock
ORDER BY c.name ASC`, warehouseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SummaryRow
	for rows.Next() {
		var row SummaryRow
		if err := rows.Scan(&row.ConsumableID, &row.Name, &row.Unit, &row.Qty, &row.MinStock, &row.EarliestBatch); err != nil {
			return nil, err
		}
		row.BelowMin = row.Qty.LessThan(row.MinStock)
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// RoomSummary lists the room ledger with catalog names attached.
func (r *Repository) RoomSummary(ctx context.Context, roomID int64) ([]RoomRow, error) {
	rows, err := r.pool.Query(ctx, `SELECT c.id, c.name, c.unit, s.qty
FROM room_stock s
JOIN consumables c ON c.id = s.consumable_id
WHERE s.room_id = $1 AND s.qty > 0
ORDER BY c.name ASC`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RoomRow
	for rows.Next() {
		var row RoomRow
		if err := rows.Scan(&row.ConsumableID, &row.Name, &row.Unit, &row.Qty); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// RoomUnit resolves the owning unit of a room for scope checks.
func (r *Repository) RoomUnit(ctx context.Context, roomID int64) (int64, error) {
	var unitID int64
	err := r.pool.QueryRow(ctx, `SELECT unit_id FROM rooms WHERE id=$1`, roomID).Scan(&unitID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, shared.E(shared.KindNotFound, "ruangan tidak ditemukan")
		}
		return 0, err
	}
	return unitID, nil
}

// ExpiringBatches lists non-empty batches whose expiry falls inside the
// window.
func (r *Repository) ExpiringBatches(ctx context.Context, within time.Duration) ([]ExpiryRow, error) {
	cutoff := time.Now().Add(within)
	rows, err := r.pool.Query(ctx, `SELECT w.id, w.warehouse_id, w.consumable_id, c.name, w.qty, w.batch_no, w.expires_at
FROM warehouse_stock w
JOIN consumables c ON c.id = w.consumable_id
WHERE w.expires_at IS NOT NULL AND w.expires_at <= $1 AND w.qty > 0
ORDER BY w.expires_at ASC, w.id ASC`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ExpiryRow
	for rows.Next() {
		var row ExpiryRow
		if err := rows.Scan(&row.LineID, &row.WarehouseID, &row.ConsumableID, &row.Name, &row.Qty, &row.BatchNo, &row.ExpiresAt); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// WarehouseIDs lists every warehouse for cache warmup.
func (r *Repository) WarehouseIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM warehouses ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}
