// Package reporting builds stock-level summaries for dashboards.
package reporting

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/unistock-erp/unistock-erp/internal/shared"
)

// SummaryRow is one consumable's position at a warehouse.
type SummaryRow struct {
	ConsumableID  int64            `json:"consumable_id"`
	Name          string           `json:"name"`
	Unit          string           `json:"unit"`
	Qty           decimal.Decimal  `json:"qty"`
	MinStock      decimal.Decimal  `json:"min_stock"`
	BelowMin      bool             `json:"below_min"`
	EarliestBatch *time.Time       `json:"earliest_expiry,omitempty"`
}

// RoomRow is one consumable's position in a room.
type RoomRow struct {
	ConsumableID int64           `json:"consumable_id"`
	Name         string          `json:"name"`
	Unit         string          `json:"unit"`
	Qty          decimal.Decimal `json:"qty"`
}

// ExpiryRow is one batch approaching its expiry date.
type ExpiryRow struct {
	LineID       int64           `json:"line_id"`
	WarehouseID  int64           `json:"warehouse_id"`
	ConsumableID int64           `json:"consumable_id"`
	Name         string          `json:"name"`
	Qty          decimal.Decimal `json:"qty"`
	BatchNo      *string         `json:"batch_no,omitempty"`
	ExpiresAt    time.Time       `json:"expires_at"`
}

// ReadPort describes the aggregation queries used by Service.
type ReadPort interface {
	WarehouseSummary(ctx context.Context, warehouseID int64) ([]SummaryRow, error)
	RoomSummary(ctx context.Context, roomID int64) ([]RoomRow, error)
	RoomUnit(ctx context.Context, roomID int64) (int64, error)
	ExpiringBatches(ctx context.Context, within time.Duration) ([]ExpiryRow, error)
	WarehouseIDs(ctx context.Context) ([]int64, error)
}

// Service answers reporting queries behind the versioned cache.
type Service struct {
	reads  ReadPort
	cache  *Cache
	logger *slog.Logger
}

// NewService constructs the reporting service.
func NewService(reads ReadPort, cache *Cache, logger *slog.Logger) *Service {
	return &Service{reads: reads, cache: cache, logger: logger}
}

// WarehouseSummary returns per-consumable aggregates for one warehouse,
// flagging items below their minimum stock.
func (s *Service) WarehouseSummary(ctx context.Context, actor shared.Actor, warehouseID int64) ([]SummaryRow, error) {
	if err := shared.Authorize(actor, shared.ActionReportingView, shared.Scope{WarehouseID: s.warehouseScope(actor, warehouseID)}); err != nil {
		return nil, err
	}
	key, err := s.cache.BuildKey(ctx, keyWarehouseSummary(warehouseID)...)
	if err != nil {
		return nil, err
	}
	var rows []SummaryRow
	err = s.cache.FetchJSON(ctx, key, &rows, func(ctx context.Context) (any, error) {
		return s.reads.WarehouseSummary(ctx, warehouseID)
	})
	return rows, err
}

// RoomSummary returns the room ledger with catalog names attached.
func (s *Service) RoomSummary(ctx context.Context, actor shared.Actor, roomID int64) ([]RoomRow, error) {
	unitID, err := s.reads.RoomUnit(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if err := shared.Authorize(actor, shared.ActionReportingView, shared.Scope{UnitID: s.unitScope(actor, unitID)}); err != nil {
		return nil, err
	}
	key, err := s.cache.BuildKey(ctx, keyRoomSummary(roomID)...)
	if err != nil {
		return nil, err
	}
	var rows []RoomRow
	err = s.cache.FetchJSON(ctx, key, &rows, func(ctx context.Context) (any, error) {
		return s.reads.RoomSummary(ctx, roomID)
	})
	return rows, err
}

// ExpiringBatches lists batches expiring within the window, never cached:
// the result drives operational decisions and staleness is worse than the
// query cost.
func (s *Service) ExpiringBatches(ctx context.Context, actor shared.Actor, within time.Duration) ([]ExpiryRow, error) {
	if err := shared.Authorize(actor, shared.ActionReportingView, shared.Scope{}); err != nil {
		return nil, err
	}
	if within <= 0 {
		within = 30 * 24 * time.Hour
	}
	rows, err := s.reads.ExpiringBatches(ctx, within)
	if err != nil {
		return nil, err
	}
	if actor.Role == shared.RoleWarehouseStaff {
		scoped := rows[:0]
		for _, row := range rows {
			if row.WarehouseID == actor.WarehouseID {
				scoped = append(scoped, row)
			}
		}
		rows = scoped
	}
	return rows, nil
}

// Warm precomputes every warehouse summary concurrently. Used by the
// background warmup job after a cache bump.
func (s *Service) Warm(ctx context.Context) error {
	ids, err := s.reads.WarehouseIDs(ctx)
	if err != nil {
		return err
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, id := range ids {
		g.Go(func() error {
			key, err := s.cache.BuildKey(ctx, keyWarehouseSummary(id)...)
			if err != nil {
				return err
			}
			var rows []SummaryRow
			return s.cache.FetchJSON(ctx, key, &rows, func(ctx context.Context) (any, error) {
				return s.reads.WarehouseSummary(ctx, id)
			})
		})
	}
	if err := g.Wait(); err != nil {
		if s.logger != nil {
			s.logger.Warn("summary warmup incomplete", slog.Any("error", err))
		}
		return err
	}
	return nil
}

// Invalidate bumps the cache version after ledger mutations.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Bump(ctx)
}

// warehouseScope returns the scope to enforce: warehouse staff are pinned to
// their own warehouse, other roles read any.
func (s *Service) warehouseScope(actor shared.Actor, warehouseID int64) int64 {
	if actor.Role == shared.RoleWarehouseStaff {
		return warehouseID
	}
	return 0
}

func (s *Service) unitScope(actor shared.Actor, unitID int64) int64 {
	if actor.Role == shared.RoleUnitAdmin || actor.Role == shared.RoleUnitStaff {
		return unitID
	}
	return 0
}
