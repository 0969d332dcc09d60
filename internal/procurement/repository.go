package procurement

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/unistock-erp/unistock-erp/internal/platform/db"
	"github.com/unistock-erp/unistock-erp/internal/shared"
	"github.com/unistock-erp/unistock-erp/internal/stock"
)

// Repository persists procurements in PostgreSQL.
type Repository struct {
	pool      *pgxpool.Pool
	approvals *shared.ApprovalRecorder
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool, logger *slog.Logger) *Repository {
	return &Repository{pool: pool, approvals: shared.NewApprovalRecorder(pool, logger)}
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("procurement repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx, approvals: r.approvals})
	})
}

// Get loads a proposal header and its lines.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Procurement, []Line, error) {
	var proc Procurement
	err := r.pool.QueryRow(ctx, `SELECT id, code, requester_id, status, COALESCE(notes, ''), COALESCE(reject_reason, ''), created_at, updated_at
FROM procurements WHERE id=$1`, id).
		Scan(&proc.ID, &proc.Code, &proc.RequesterID, &proc.Status, &proc.Notes, &proc.RejectReason, &proc.CreatedAt, &proc.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Procurement{}, nil, shared.E(shared.KindNotFound, "pengadaan tidak ditemukan")
		}
		return Procurement{}, nil, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, procurement_id, consumable_id, warehouse_id, qty, received_qty, condition, batch_no, expires_at
FROM procurement_lines WHERE procurement_id=$1 ORDER BY id ASC`, id)
	if err != nil {
		return Procurement{}, nil, err
	}
	defer rows.Close()
	var lines []Line
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.ProcurementID, &line.ConsumableID, &line.WarehouseID,
			&line.Qty, &line.ReceivedQty, &line.Condition, &line.BatchNo, &line.ExpiresAt); err != nil {
			return Procurement{}, nil, err
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return Procurement{}, nil, err
	}
	return proc, lines, nil
}

// GetConsumable loads a catalog item for validation at the receipt boundary.
func (r *Repository) GetConsumable(ctx context.Context, id int64) (stock.Consumable, error) {
	var item stock.Consumable
	err := r.pool.QueryRow(ctx, `SELECT id, name, COALESCE(sku, ''), unit, min_stock, has_expiry, created_at, updated_at
FROM consumables WHERE id=$1`, id).
		Scan(&item.ID, &item.Name, &item.SKU, &item.Unit, &item.MinStock, &item.HasExpiry, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return stock.Consumable{}, shared.E(shared.KindNotFound, "barang tidak ditemukan")
		}
		return stock.Consumable{}, err
	}
	return item, nil
}

// List returns the newest proposals across all warehouses.
func (r *Repository) List(ctx context.Context, limit int) ([]Procurement, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, code, requester_id, status, COALESCE(notes, ''), COALESCE(reject_reason, ''), created_at, updated_at
FROM procurements ORDER BY created_at DESC LIMIT $1`, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	return scanProcurements(rows)
}

// ListByWarehouse returns proposals with at least one line targeting the
// warehouse.
func (r *Repository) ListByWarehouse(ctx context.Context, warehouseID int64, limit int) ([]Procurement, error) {
	rows, err := r.pool.Query(ctx, `SELECT p.id, p.code, p.requester_id, p.status, COALESCE(p.notes, ''), COALESCE(p.reject_reason, ''), p.created_at, p.updated_at
FROM procurements p
WHERE EXISTS (SELECT 1 FROM procurement_lines l WHERE l.procurement_id = p.id AND l.warehouse_id = $1)
ORDER BY p.created_at DESC LIMIT $2`, warehouseID, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	return scanProcurements(rows)
}

func scanProcurements(rows pgx.Rows) ([]Procurement, error) {
	defer rows.Close()
	var out []Procurement
	for rows.Next() {
		var proc Procurement
		if err := rows.Scan(&proc.ID, &proc.Code, &proc.RequesterID, &proc.Status, &proc.Notes,
			&proc.RejectReason, &proc.CreatedAt, &proc.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, proc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

type txRepository struct {
	tx        pgx.Tx
	approvals *shared.ApprovalRecorder
}

func (r *txRepository) Insert(ctx context.Context, proc Procurement) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO procurements (id, code, requester_id, status, notes, created_at, updated_at)
VALUES ($1, $2, $3, $4, NULLIF($5, ''), now(), now())`,
		proc.ID, proc.Code, proc.RequesterID, proc.Status, proc.Notes)
	return err
}

func (r *txRepository) InsertLine(ctx context.Context, line Line) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO procurement_lines (procurement_id, consumable_id, warehouse_id, qty)
VALUES ($1, $2, $3, $4)`,
		line.ProcurementID, line.ConsumableID, line.WarehouseID, line.Qty)
	return err
}

func (r *txRepository) DeleteLines(ctx context.Context, procurementID uuid.UUID) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM procurement_lines WHERE procurement_id=$1`, procurementID)
	return err
}

func (r *txRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status Status, rejectReason string) error {
	_, err := r.tx.Exec(ctx, `UPDATE procurements SET status=$2, reject_reason=NULLIF($3, ''), updated_at=now() WHERE id=$1`,
		id, status, rejectReason)
	return err
}

func (r *txRepository) SetLineReceipt(ctx context.Context, lineID int64, receivedQty decimal.Decimal, condition Condition, batchNo *string, expiresAt *time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE procurement_lines SET received_qty=$2, condition=$3, batch_no=$4, expires_at=$5 WHERE id=$1`,
		lineID, receivedQty, condition, batchNo, expiresAt)
	return err
}

func (r *txRepository) RecordApproval(ctx context.Context, log shared.ApprovalLog) error {
	return r.approvals.RecordTx(ctx, r.tx, log)
}

func (r *txRepository) AppendAudit(ctx context.Context, log shared.AuditLog) error {
	return shared.RecordAudit(ctx, r.tx, log)
}

func (r *txRepository) Ledger() stock.Ledger {
	return stock.NewLedger(r.tx)
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 200 {
		return 50
	}
	return limit
}
