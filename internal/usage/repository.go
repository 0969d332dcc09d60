package usage

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/unistock-erp/unistock-erp/internal/platform/db"
	"github.com/unistock-erp/unistock-erp/internal/shared"
	"github.com/unistock-erp/unistock-erp/internal/stock"
)

// Repository persists usage reports in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("usage repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// Get loads a report header and its details.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Report, []Detail, error) {
	var report Report
	err := r.pool.QueryRow(ctx, `SELECT id, code, reporter_id, room_id, unit_id, faculty_id, COALESCE(notes, ''), created_at
FROM usage_reports WHERE id=$1`, id).
		Scan(&report.ID, &report.Code, &report.ReporterID, &report.RoomID, &report.UnitID, &report.FacultyID, &report.Notes, &report.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Report{}, nil, shared.E(shared.KindNotFound, "laporan tidak ditemukan")
		}
		return Report{}, nil, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, report_id, consumable_id, qty
FROM usage_details WHERE report_id=$1 ORDER BY id ASC`, id)
	if err != nil {
		return Report{}, nil, err
	}
	defer rows.Close()
	var details []Detail
	for rows.Next() {
		var detail Detail
		if err := rows.Scan(&detail.ID, &detail.ReportID, &detail.ConsumableID, &detail.Qty); err != nil {
			return Report{}, nil, err
		}
		details = append(details, detail)
	}
	if err := rows.Err(); err != nil {
		return Report{}, nil, err
	}
	return report, details, nil
}

// GetRoom loads the reporting room with its unit and faculty.
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

// GetConsumable loads a catalog item.
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

// ListByUnit returns the newest reports of one unit, or all units when unitID
// is zero.
func (r *Repository) ListByUnit(ctx context.Context, unitID int64, limit int) ([]Report, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `SELECT id, code, reporter_id, room_id, unit_id, faculty_id, COALESCE(notes, ''), created_at
FROM usage_reports WHERE ($1 = 0 OR unit_id = $1) ORDER BY created_at DESC LIMIT $2`, unitID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Report
	for rows.Next() {
		var report Report
		if err := rows.Scan(&report.ID, &report.Code, &report.ReporterID, &report.RoomID, &report.UnitID,
			&report.FacultyID, &report.Notes, &report.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, report)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) Insert(ctx context.Context, report Report) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO usage_reports (id, code, reporter_id, room_id, unit_id, faculty_id, notes, created_at)
VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), now())`,
		report.ID, report.Code, report.ReporterID, report.RoomID, report.UnitID, report.FacultyID, report.Notes)
	return err
}

func (r *txRepository) InsertDetail(ctx context.Context, detail Detail) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO usage_details (report_id, consumable_id, qty)
VALUES ($1, $2, $3)`, detail.ReportID, detail.ConsumableID, detail.Qty)
	return err
}

// Delete removes the report; details cascade with it.
func (r *txRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM usage_reports WHERE id=$1`, id)
	return err
}

func (r *txRepository) AppendAudit(ctx context.Context, log shared.AuditLog) error {
	return shared.RecordAudit(ctx, r.tx, log)
}

func (r *txRepository) Ledger() stock.Ledger {
	return stock.NewLedger(r.tx)
}
