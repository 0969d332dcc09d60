// Package catalog manages the consumable master data.
package catalog

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/unistock-erp/unistock-erp/internal/shared"
	"github.com/unistock-erp/unistock-erp/internal/stock"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	Insert(ctx context.Context, item stock.Consumable) (stock.Consumable, error)
	Update(ctx context.Context, item stock.Consumable) error
	Delete(ctx context.Context, id int64) error
	Get(ctx context.Context, id int64) (stock.Consumable, error)
	List(ctx context.Context, search string, limit int) ([]stock.Consumable, error)
}

// AuditPort records catalog mutations.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service manages the consumable catalog. The hasExpiry flag set here decides
// what goods receipt later demands for the item.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	logger *slog.Logger
}

// NewService constructs the catalog service.
func NewService(repo RepositoryPort, audit AuditPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, audit: audit, logger: logger}
}

// ConsumableInput describes a catalog entry.
type ConsumableInput struct {
	Name      string
	SKU       string
	Unit      string
	MinStock  decimal.Decimal
	HasExpiry bool
}

func (in ConsumableInput) validate() error {
	if in.Name == "" || in.Unit == "" {
		return shared.E(shared.KindValidation, "nama dan satuan wajib diisi")
	}
	if in.MinStock.Sign() < 0 {
		return shared.E(shared.KindValidation, "stok minimum tidak boleh negatif")
	}
	return nil
}

// Create adds a consumable to the catalog.
func (s *Service) Create(ctx context.Context, actor shared.Actor, input ConsumableInput) (stock.Consumable, error) {
	if err := shared.Authorize(actor, shared.ActionCatalogManage, shared.Scope{}); err != nil {
		return stock.Consumable{}, err
	}
	if err := input.validate(); err != nil {
		return stock.Consumable{}, err
	}
	item, err := s.repo.Insert(ctx, stock.Consumable{
		Name: input.Name, SKU: input.SKU, Unit: input.Unit,
		MinStock: input.MinStock, HasExpiry: input.HasExpiry,
	})
	if err != nil {
		return stock.Consumable{}, err
	}
	s.recordAudit(ctx, actor, "CREATE", item.ID, nil, map[string]any{"name": item.Name, "sku": item.SKU})
	return item, nil
}

// Update replaces the catalog entry attributes.
func (s *Service) Update(ctx context.Context, actor shared.Actor, id int64, input ConsumableInput) (stock.Consumable, error) {
	if err := shared.Authorize(actor, shared.ActionCatalogManage, shared.Scope{}); err != nil {
		return stock.Consumable{}, err
	}
	if err := input.validate(); err != nil {
		return stock.Consumable{}, err
	}
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return stock.Consumable{}, err
	}
	updated := current
	updated.Name = input.Name
	updated.SKU = input.SKU
	updated.Unit = input.Unit
	updated.MinStock = input.MinStock
	updated.HasExpiry = input.HasExpiry
	if err := s.repo.Update(ctx, updated); err != nil {
		return stock.Consumable{}, err
	}
	s.recordAudit(ctx, actor, "UPDATE", id,
		map[string]any{"name": current.Name, "sku": current.SKU},
		map[string]any{"name": updated.Name, "sku": updated.SKU})
	return updated, nil
}

// Delete removes a consumable. Items referenced by stock lines or workflow
// lines fail with a constraint error instead of cascading.
func (s *Service) Delete(ctx context.Context, actor shared.Actor, id int64) error {
	if err := shared.Authorize(actor, shared.ActionCatalogManage, shared.Scope{}); err != nil {
		return err
	}
	item, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, actor, "DELETE", id, map[string]any{"name": item.Name, "sku": item.SKU}, nil)
	return nil
}

// Get loads one catalog entry.
func (s *Service) Get(ctx context.Context, id int64) (stock.Consumable, error) {
	return s.repo.Get(ctx, id)
}

// List searches the catalog by name or SKU.
func (s *Service) List(ctx context.Context, search string, limit int) ([]stock.Consumable, error) {
	return s.repo.List(ctx, search, limit)
}

func (s *Service) recordAudit(ctx context.Context, actor shared.Actor, action string, id int64, oldValue, newValue map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID: actor.ID, Action: action, Entity: "consumables",
		EntityID: formatID(id), OldValue: oldValue, NewValue: newValue,
	}); err != nil && s.logger != nil {
		s.logger.Warn("catalog audit failed", slog.Any("error", err))
	}
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
