// Package opname reconciles physical counts against the warehouse ledger.
package opname

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/unistock-erp/unistock-erp/internal/shared"
	"github.com/unistock-erp/unistock-erp/internal/stock"
)

// StockPort describes the ledger access used by Service.
type StockPort interface {
	WithTx(ctx context.Context, fn func(context.Context, stock.Ledger) error) error
	ListWarehouseLines(ctx context.Context, warehouseID, consumableID int64) ([]stock.WarehouseLine, error)
	ListAdjustments(ctx context.Context, warehouseID int64, limit int) ([]stock.Adjustment, error)
}

// Service drives stock opname. The delta is always recomputed server-side
// from the locked system quantity; a stale client preview never decides the
// outcome.
type Service struct {
	stocks      StockPort
	engine      *stock.Engine
	invalidator CacheInvalidator
	logger      *slog.Logger
}

// CacheInvalidator bumps report caches after a committed stock movement.
type CacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

// NewService constructs the opname service.
func NewService(stocks StockPort, engine *stock.Engine, invalidator CacheInvalidator, logger *slog.Logger) *Service {
	return &Service{stocks: stocks, engine: engine, invalidator: invalidator, logger: logger}
}

func (s *Service) bumpReportCache(ctx context.Context) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.Invalidate(ctx); err != nil && s.logger != nil {
		s.logger.Warn("report cache bump failed", slog.Any("error", err))
	}
}

// ReconcileInput describes one counted batch line.
type ReconcileInput struct {
	LineID      int64
	PhysicalQty decimal.Decimal
	Type        stock.AdjustmentType
	Reason      string
}

// Reconcile sets one batch line to its counted quantity and records the
// signed delta as an immutable adjustment. A zero delta is a pure no-op with
// applied=false.
func (s *Service) Reconcile(ctx context.Context, actor shared.Actor, input ReconcileInput) (stock.Adjustment, bool, error) {
	if err := shared.Authorize(actor, shared.ActionOpname, shared.Scope{}); err != nil {
		return stock.Adjustment{}, false, err
	}
	if !stock.ValidAdjustmentType(input.Type) {
		return stock.Adjustment{}, false, shared.E(shared.KindValidation, "jenis penyesuaian %s tidak dikenal", input.Type)
	}
	var (
		adjustment stock.Adjustment
		applied    bool
	)
	err := s.stocks.WithTx(ctx, func(ctx context.Context, led stock.Ledger) error {
		var err error
		adjustment, applied, err = s.engine.Reconcile(ctx, led, actor, input.LineID, input.PhysicalQty, input.Type, input.Reason)
		return err
	})
	if err != nil {
		return stock.Adjustment{}, false, err
	}
	if applied {
		s.bumpReportCache(ctx)
	}
	if applied && s.logger != nil {
		s.logger.Info("stock opname applied",
			slog.Int64("line_id", input.LineID),
			slog.String("delta", adjustment.Delta.String()),
			slog.Int64("actor_id", actor.ID))
	}
	return adjustment, applied, nil
}

// CountSheet lists the batch lines of the actor's warehouse for a physical
// count.
func (s *Service) CountSheet(ctx context.Context, actor shared.Actor, warehouseID, consumableID int64) ([]stock.WarehouseLine, error) {
	if err := shared.Authorize(actor, shared.ActionOpname, shared.Scope{WarehouseID: warehouseID}); err != nil {
		return nil, err
	}
	return s.stocks.ListWarehouseLines(ctx, warehouseID, consumableID)
}

// Adjustments lists the reconciliation history of one warehouse.
func (s *Service) Adjustments(ctx context.Context, actor shared.Actor, warehouseID int64, limit int) ([]stock.Adjustment, error) {
	if err := shared.Authorize(actor, shared.ActionOpname, shared.Scope{WarehouseID: warehouseID}); err != nil {
		return nil, err
	}
	return s.stocks.ListAdjustments(ctx, warehouseID, limit)
}
