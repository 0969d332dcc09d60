package usage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/unistock-erp/unistock-erp/internal/shared"
	"github.com/unistock-erp/unistock-erp/internal/stock"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id uuid.UUID) (Report, []Detail, error)
	GetRoom(ctx context.Context, roomID int64) (Room, error)
	GetConsumable(ctx context.Context, id int64) (stock.Consumable, error)
	ListByUnit(ctx context.Context, unitID int64, limit int) ([]Report, error)
}

// TxRepository exposes the transactional operations used by the service.
type TxRepository interface {
	Insert(ctx context.Context, report Report) error
	InsertDetail(ctx context.Context, detail Detail) error
	Delete(ctx context.Context, id uuid.UUID) error
	AppendAudit(ctx context.Context, log shared.AuditLog) error
	Ledger() stock.Ledger
}

// Service records room consumption against the room ledger. A report debits
// at creation and re-credits on deletion; room stock never goes negative.
type Service struct {
	repo        RepositoryPort
	engine      *stock.Engine
	invalidator CacheInvalidator
	logger      *slog.Logger
}

// CacheInvalidator bumps report caches after a committed stock movement.
type CacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

// NewService constructs the usage service.
func NewService(repo RepositoryPort, engine *stock.Engine, invalidator CacheInvalidator, logger *slog.Logger) *Service {
	return &Service{repo: repo, engine: engine, invalidator: invalidator, logger: logger}
}

func (s *Service) bumpReportCache(ctx context.Context) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.Invalidate(ctx); err != nil && s.logger != nil {
		s.logger.Warn("report cache bump failed", slog.Any("error", err))
	}
}

// ReportInput describes a new usage report.
type ReportInput struct {
	RoomID int64
	Notes  string
	Lines  []LineInput
}

// LineInput is one consumed quantity.
type LineInput struct {
	ConsumableID int64
	Qty          decimal.Decimal
}

// Report validates every line against the room ledger before any debit, then
// debits all lines and persists the report in one transaction. The first
// insufficient line aborts the whole report with no partial debit.
func (s *Service) Report(ctx context.Context, actor shared.Actor, input ReportInput) (Report, error) {
	if err := shared.Authorize(actor, shared.ActionUsageReport, shared.Scope{}); err != nil {
		return Report{}, err
	}
	if len(input.Lines) == 0 {
		return Report{}, shared.E(shared.KindValidation, "laporan membutuhkan minimal satu baris")
	}
	room, err := s.repo.GetRoom(ctx, input.RoomID)
	if err != nil {
		return Report{}, err
	}
	if room.UnitID != actor.UnitID {
		return Report{}, shared.E(shared.KindValidation, "ruangan bukan milik unit aktor")
	}
	for _, line := range input.Lines {
		if line.ConsumableID == 0 || line.Qty.Sign() <= 0 {
			return Report{}, shared.E(shared.KindValidation, "kuantitas baris harus lebih dari nol")
		}
		if _, err := s.repo.GetConsumable(ctx, line.ConsumableID); err != nil {
			return Report{}, err
		}
	}
	report := Report{
		ID:         uuid.New(),
		Code:       generateCode("USE"),
		ReporterID: actor.ID,
		RoomID:     room.ID,
		UnitID:     room.UnitID,
		FacultyID:  room.FacultyID,
		Notes:      input.Notes,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		led := tx.Ledger()
		// Scan phase: lock and verify every room line before touching any.
		for _, line := range input.Lines {
			current, found, err := led.RoomLineForUpdate(ctx, room.ID, line.ConsumableID)
			if err != nil {
				return err
			}
			if !found || current.Qty.LessThan(line.Qty) {
				available := decimal.Zero
				if found {
					available = current.Qty
				}
				return shared.E(shared.KindInsufficientStock,
					"stok ruangan tidak mencukupi untuk barang %d: tersedia %s, dipakai %s",
					line.ConsumableID, available.String(), line.Qty.String())
			}
		}
		for _, line := range input.Lines {
			if err := s.engine.DecrementRoom(ctx, led, actor.ID, room.ID, line.ConsumableID, line.Qty); err != nil {
				return err
			}
		}
		if err := tx.Insert(ctx, report); err != nil {
			return err
		}
		for _, line := range input.Lines {
			if err := tx.InsertDetail(ctx, Detail{ReportID: report.ID, ConsumableID: line.ConsumableID, Qty: line.Qty}); err != nil {
				return err
			}
		}
		return tx.AppendAudit(ctx, shared.AuditLog{
			ActorID: actor.ID, Action: "CREATE", Entity: "usage_reports", EntityID: report.ID.String(),
			NewValue: map[string]any{"code": report.Code, "room_id": report.RoomID},
		})
	})
	if err != nil {
		return Report{}, err
	}
	s.bumpReportCache(ctx)
	return report, nil
}

// Delete reverses a usage report: every detail quantity is credited back to
// the room ledger, then the report and its details are removed. The original
// CREATE audit entry stays; a DELETE entry is appended.
func (s *Service) Delete(ctx context.Context, actor shared.Actor, id uuid.UUID) error {
	report, details, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := shared.Authorize(actor, shared.ActionUsageDelete, shared.Scope{UnitID: report.UnitID}); err != nil {
		return err
	}
	if actor.Role == shared.RoleUnitStaff && actor.ID != report.ReporterID {
		return shared.E(shared.KindAuthorization, "hanya pelapor yang dapat menghapus laporan ini")
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		led := tx.Ledger()
		for _, detail := range details {
			if err := s.engine.IncrementRoom(ctx, led, actor.ID, report.RoomID, detail.ConsumableID, detail.Qty); err != nil {
				return err
			}
		}
		if err := tx.Delete(ctx, id); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, shared.AuditLog{
			ActorID: actor.ID, Action: "DELETE", Entity: "usage_reports", EntityID: id.String(),
			OldValue: map[string]any{"code": report.Code, "room_id": report.RoomID},
		})
	})
	if err != nil {
		return err
	}
	s.bumpReportCache(ctx)
	return nil
}

// Get returns a report with its details, visibility-scoped to the actor.
func (s *Service) Get(ctx context.Context, actor shared.Actor, id uuid.UUID) (Report, []Detail, error) {
	report, details, err := s.repo.Get(ctx, id)
	if err != nil {
		return Report{}, nil, err
	}
	if !visible(actor, report) {
		return Report{}, nil, shared.E(shared.KindNotFound, "laporan tidak ditemukan")
	}
	return report, details, nil
}

// ListForActor returns the reports of the actor's unit.
func (s *Service) ListForActor(ctx context.Context, actor shared.Actor, limit int) ([]Report, error) {
	switch actor.Role {
	case shared.RoleUnitStaff, shared.RoleUnitAdmin:
		return s.repo.ListByUnit(ctx, actor.UnitID, limit)
	case shared.RoleSuperAdmin:
		return s.repo.ListByUnit(ctx, 0, limit)
	}
	return nil, shared.E(shared.KindAuthorization, "peran %s tidak memiliki daftar laporan pemakaian", actor.Role)
}

func visible(actor shared.Actor, report Report) bool {
	switch actor.Role {
	case shared.RoleSuperAdmin:
		return true
	case shared.RoleFacultyAdmin:
		return actor.FacultyID == report.FacultyID
	case shared.RoleUnitAdmin, shared.RoleUnitStaff:
		return actor.UnitID == report.UnitID
	}
	return false
}

func generateCode(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}
