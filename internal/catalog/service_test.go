package catalog

import (
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/unistock-erp/unistock-erp/internal/shared"
	"github.com/unistock-erp/unistock-erp/internal/stock"
)

type memoryCatalogRepo struct {
	items      map[int64]stock.Consumable
	referenced map[int64]bool
	nextID     int64
}

func newMemoryCatalogRepo() *memoryCatalogRepo {
	return &memoryCatalogRepo{items: make(map[int64]stock.Consumable), referenced: make(map[int64]bool)}
}

func (r *memoryCatalogRepo) Insert(ctx context.Context, item stock.Consumable) (stock.Consumable, error) {
	for _, existing := range r.items {
		if item.SKU != "" && existing.SKU == item.SKU {
			return stock.Consumable{}, shared.E(shared.KindConstraint, "SKU %s sudah terdaftar", item.SKU)
		}
	}
	r.nextID++
	item.ID = r.nextID
	r.items[item.ID] = item
	return item, nil
}

func (r *memoryCatalogRepo) Update(ctx context.Context, item stock.Consumable) error {
	if _, ok := r.items[item.ID]; !ok {
		return shared.E(shared.KindNotFound, "barang tidak ditemukan")
	}
	r.items[item.ID] = item
	return nil
}

func (r *memoryCatalogRepo) Delete(ctx context.Context, id int64) error {
	if _, ok := r.items[id]; !ok {
		return shared.E(shared.KindNotFound, "barang tidak ditemukan")
	}
	if r.referenced[id] {
		return shared.E(shared.KindConstraint, "barang masih digunakan oleh stok atau transaksi")
	}
	delete(r.items, id)
	return nil
}

func (r *memoryCatalogRepo) Get(ctx context.Context, id int64) (stock.Consumable, error) {
	item, ok := r.items[id]
	if !ok {
		return stock.Consumable{}, shared.E(shared.KindNotFound, "barang tidak ditemukan")
	}
	return item, nil
}

func (r *memoryCatalogRepo) List(ctx context.Context, search string, limit int) ([]stock.Consumable, error) {
	var out []stock.Consumable
	for _, item := range r.items {
		if search == "" || strings.Contains(strings.ToLower(item.Name), strings.ToLower(search)) {
			out = append(out, item)
		}
	}
	return out, nil
}

type memoryAudit struct {
	logs []shared.AuditLog
}

func (a *memoryAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

var pengelola = shared.Actor{ID: 51, Role: shared.RoleWarehouseStaff, WarehouseID: 3}

func TestCreateUpdateDeleteLifecycle(t *testing.T) {
	repo := newMemoryCatalogRepo()
	audit := &memoryAudit{}
	svc := NewService(repo, audit, nil)
	ctx := context.Background()

	item, err := svc.Create(ctx, pengelola, ConsumableInput{
		Name: "Tisu laboratorium", SKU: "TSU-01", Unit: "pak",
		MinStock: decimal.RequireFromString("5"),
	})
	require.NoError(t, err)
	require.NotZero(t, item.ID)

	updated, err := svc.Update(ctx, pengelola, item.ID, ConsumableInput{
		Name: "Tisu laboratorium", SKU: "TSU-01", Unit: "pak",
		MinStock: decimal.RequireFromString("10"), HasExpiry: true,
	})
	require.NoError(t, err)
	require.True(t, updated.HasExpiry)

	require.NoError(t, svc.Delete(ctx, pengelola, item.ID))
	_, err = svc.Get(ctx, item.ID)
	require.Equal(t, shared.KindNotFound, shared.KindOf(err))

	require.Len(t, audit.logs, 3)
	require.Equal(t, []string{"CREATE", "UPDATE", "DELETE"},
		[]string{audit.logs[0].Action, audit.logs[1].Action, audit.logs[2].Action})
}

func TestDeleteReferencedItemFailsWithConstraint(t *testing.T) {
	repo := newMemoryCatalogRepo()
	svc := NewService(repo, &memoryAudit{}, nil)
	ctx := context.Background()

	item, err := svc.Create(ctx, pengelola, ConsumableInput{Name: "Spidol", SKU: "SPD-01", Unit: "pcs"})
	require.NoError(t, err)
	repo.referenced[item.ID] = true

	err = svc.Delete(ctx, pengelola, item.ID)
	require.Equal(t, shared.KindConstraint, shared.KindOf(err))
	_, err = svc.Get(ctx, item.ID)
	require.NoError(t, err)
}

func TestCatalogManageDeniedForUnitRoles(t *testing.T) {
	svc := NewService(newMemoryCatalogRepo(), &memoryAudit{}, nil)

	staf := shared.Actor{ID: 52, Role: shared.RoleUnitStaff, UnitID: 1}
	_, err := svc.Create(context.Background(), staf, ConsumableInput{Name: "X", SKU: "X", Unit: "pcs"})
	require.Equal(t, shared.KindAuthorization, shared.KindOf(err))
}

func TestCreateAllowsMissingSKU(t *testing.T) {
	svc := NewService(newMemoryCatalogRepo(), &memoryAudit{}, nil)
	ctx := context.Background()

	first, err := svc.Create(ctx, pengelola, ConsumableInput{Name: "Kertas saring", Unit: "lembar"})
	require.NoError(t, err)
	require.Empty(t, first.SKU)

	// Uniqueness only binds items that actually carry a SKU.
	second, err := svc.Create(ctx, pengelola, ConsumableInput{Name: "Kapas", Unit: "gulung"})
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)
}

func TestCreateValidatesRequiredFields(t *testing.T) {
	svc := NewService(newMemoryCatalogRepo(), &memoryAudit{}, nil)

	_, err := svc.Create(context.Background(), pengelola, ConsumableInput{Name: "", SKU: "A", Unit: "pcs"})
	require.Equal(t, shared.KindValidation, shared.KindOf(err))

	_, err = svc.Create(context.Background(), pengelola, ConsumableInput{
		Name: "A", SKU: "A", Unit: "pcs", MinStock: decimal.RequireFromString("-1"),
	})
	require.Equal(t, shared.KindValidation, shared.KindOf(err))
}
