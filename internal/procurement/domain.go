package procurement

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status enumerates the restock proposal lifecycle.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusApproved  Status = "APPROVED"
	StatusRejected  Status = "REJECTED"
	StatusCompleted Status = "COMPLETED"
)

// Condition tags the physical state of a received line. Only GOOD lines
// credit warehouse stock.
type Condition string

const (
	ConditionGood       Condition = "GOOD"
	ConditionDamaged    Condition = "DAMAGED"
	ConditionIncomplete Condition = "INCOMPLETE"
)

// ValidCondition reports whether c is a known condition tag.
func ValidCondition(c Condition) bool {
	switch c {
	case ConditionGood, ConditionDamaged, ConditionIncomplete:
		return true
	}
	return false
}

// Procurement is a restock proposal. No stock moves until goods receipt.
type Procurement struct {
	ID           uuid.UUID
	Code         string
	RequesterID  int64
	Status       Status
	Notes        string
	RejectReason string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Line is one proposed restock item targeting a specific warehouse. The
// receipt fields stay nil until goods receipt records them.
type Line struct {
	ID            int64
	ProcurementID uuid.UUID
	ConsumableID  int64
	WarehouseID   int64
	Qty           decimal.Decimal
	ReceivedQty   *decimal.Decimal
	Condition     *Condition
	BatchNo       *string
	ExpiresAt     *time.Time
}
