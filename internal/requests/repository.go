package requests

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/unistock-erp/unistock-erp/internal/platform/db"
	"github.com/unistock-erp/unistock-erp/internal/shared"
	"github.com/unistock-erp/unistock-erp/internal/stock"
)

// Repository persists requests in PostgreSQL.
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
		return errors.New("requests repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx, approvals: r.approvals})
	})
}

// Get loads a request header and its lines.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Request, []Line, error) {
	var req Request
	err := r.pool.QueryRow(ctx, `SELECT id, code, requester_id, room_id, unit_id, faculty_id, warehouse_id, status, COALESCE(reject_reason, ''), created_at, updated_at
FROM requests WHERE id=$1`, id).
		Scan(&req.ID, &req.Code, &req.RequesterID, &req.RoomID, &req.UnitID, &req.FacultyID, &req.WarehouseID, &req.Status, &req.RejectReason, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Request{}, nil, shared.E(shared.KindNotFound, "permintaan tidak ditemukan")
		}
		return Request{}, nil, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, request_id, consumable_id, qty_requested, qty_approved
FROM request_lines WHERE request_id=$1 ORDER BY id ASC`, id)
	if err != nil {
		return Request{}, nil, err
	}
	defer rows.Close()
	var lines []Line
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.RequestID, &line.ConsumableID, &line.QtyRequested, &line.QtyApproved); err != nil {
			return Request{}, nil, err
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return Request{}, nil, err
	}
	return req, lines, nil
}

// GetRoom loads the destination room with its unit and faculty.
func (r *Repository) GetRoom(ctx context.Context, roomID int64) (Room, error) {
	var room Room
	err := r.pool.QueryRow(ctx, `SELECT r.id, r.unit_id, u.faculty_id, r.name
FROM rooms r JOIN units u ON u.id = r.unit_id WHERE r.id=$1`, roomID).
		Scan(&room.ID, &room.UnitID, &room.FacultyID, &room.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Room{}, shared.E(shared.KindNotFound, "ruangan tidak ditemukan")
		}
		return Room{}, err
	}
	return room, nil
}

// GetConsumable loads a catalog item by id.
func (r *Repository) GetConsumable(ctx context.Context, id int64) (stock.Consumable, error) {
	var c stock.Consumable
	err := r.pool.QueryRow(ctx, `SELECT id, name, COALESCE(sku, ''), unit, min_stock, has_expiry, created_at, updated_at
FROM consumables WHERE id=$1`, id).
		Scan(&c.ID, &c.Name, &c.SKU, &c.Unit, &c.MinStock, &c.HasExpiry, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return stock.Consumable{}, shared.E(shared.KindNotFound, "barang tidak ditemukan")
		}
		return stock.Consumable{}, err
	}
	return c, nil
}

// ListByUnit lists requests of one unit, newest first.
func (r *Repository) ListByUnit(ctx context.Context, unitID int64, limit int) ([]Request, error) {
	return r.list(ctx, `SELECT id, code, requester_id, room_id, unit_id, faculty_id, warehouse_id, status, COALESCE(reject_reason, ''), created_at, updated_at
FROM requests WHERE unit_id=$1 ORDER BY created_at DESC LIMIT $2`, unitID, clampLimit(limit))
}

// ListByFaculty lists requests of one faculty; zero lists all faculties.
func (r *Repository) ListByFaculty(ctx context.Context, facultyID int64, limit int) ([]Request, error) {
	return r.list(ctx, `SELECT id, code, requester_id, room_id, unit_id, faculty_id, warehouse_id, status, COALESCE(reject_reason, ''), created_at, updated_at
FROM requests WHERE ($1 = 0 OR faculty_id=$1) ORDER BY created_at DESC LIMIT $2`, facultyID, clampLimit(limit))
}

// ListByWarehouse lists the warehouse fulfillment queue.
func (r *Repository) ListByWarehouse(ctx context.Context, warehouseID int64, statuses []Status, limit int) ([]Request, error) {
	states := make([]string, 0, len(statuses))
	for _, s := range statuses {
		states = append(states, string(s))
	}
	return r.list(ctx, `SELECT id, code, requester_id, room_id, unit_id, faculty_id, warehouse_id, status, COALESCE(reject_reason, ''), created_at, updated_at
FROM requests WHERE warehouse_id=$1 AND status = ANY($2) ORDER BY updated_at ASC LIMIT $3`, warehouseID, states, clampLimit(limit))
}

func (r *Repository) list(ctx context.Context, query string, args ...any) ([]Request, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var reqs []Request
	for rows.Next() {
		var req Request
		if err := rows.Scan(&req.ID, &req.Code, &req.RequesterID, &req.RoomID, &req.UnitID, &req.FacultyID, &req.WarehouseID, &req.Status, &req.RejectReason, &req.CreatedAt, &req.UpdatedAt); err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	return reqs, rows.Err()
}

type txRepository struct {
	tx        pgx.Tx
	approvals *shared.ApprovalRecorder
}

func (r *txRepository) Insert(ctx context.Context, req Request) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO requests (id, code, requester_id, room_id, unit_id, faculty_id, warehouse_id, status, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW(),NOW())`,
		req.ID, req.Code, req.RequesterID, req.RoomID, req.UnitID, req.FacultyID, req.WarehouseID, string(req.Status))
	return err
}

func (r *txRepository) InsertLine(ctx context.Context, line Line) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO request_lines (request_id, consumable_id, qty_requested, qty_approved)
VALUES ($1,$2,$3,$4)`, line.RequestID, line.ConsumableID, line.QtyRequested, line.QtyApproved)
	return err
}

func (r *txRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status Status, rejectReason string) error {
	_, err := r.tx.Exec(ctx, `UPDATE requests SET status=$2, reject_reason=NULLIF($3, ''), updated_at=NOW() WHERE id=$1`,
		id, string(status), rejectReason)
	return err
}

func (r *txRepository) SetLineApprovedQty(ctx context.Context, lineID int64, qty decimal.Decimal) error {
	_, err := r.tx.Exec(ctx, `UPDATE request_lines SET qty_approved=$2 WHERE id=$1`, lineID, qty)
	return err
}

func (r *txRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM requests WHERE id=$1`, id)
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
