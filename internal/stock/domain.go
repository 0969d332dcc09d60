package stock

import (
	"time"

	"github.com/shopspring/decimal"
)

// Consumable is a catalog item moved through the ledgers.
type Consumable struct {
	ID        int64
	Name      string
	SKU       string
	Unit      string
	MinStock  decimal.Decimal
	HasExpiry bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// WarehouseLine is one batch row of the warehouse ledger. Multiple lines may
// exist for the same (warehouse, consumable), one per received lot.
type WarehouseLine struct {
	ID           int64
	WarehouseID  int64
	ConsumableID int64
	Qty          decimal.Decimal
	BatchNo      *string
	ExpiresAt    *time.Time
	ReceivedAt   time.Time
}

// RoomLine is one row of the room ledger, keyed by (room, consumable).
type RoomLine struct {
	ID           int64
	RoomID       int64
	ConsumableID int64
	Qty          decimal.Decimal
	UpdatedAt    time.Time
}

// AdjustmentType enumerates reason codes for opname deltas.
type AdjustmentType string

const (
	AdjustStockOpname AdjustmentType = "STOCK_OPNAME"
	AdjustDamage      AdjustmentType = "DAMAGE"
	AdjustLoss        AdjustmentType = "LOSS"
	AdjustCorrection  AdjustmentType = "CORRECTION"
)

// ValidAdjustmentType reports whether t is a known reason code.
func ValidAdjustmentType(t AdjustmentType) bool {
	switch t {
	case AdjustStockOpname, AdjustDamage, AdjustLoss, AdjustCorrection:
		return true
	}
	return false
}

// Adjustment is the immutable record produced by stock opname. Never updated
// or deleted once written.
type Adjustment struct {
	ID           int64
	WarehouseID  int64
	ConsumableID int64
	BatchNo      *string
	Delta        decimal.Decimal
	Type         AdjustmentType
	Reason       string
	ActorID      int64
	At           time.Time
}
