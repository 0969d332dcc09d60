package requests

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status enumerates the requisition lifecycle.
type Status string

const (
	StatusPendingUnit    Status = "PENDING_UNIT"
	StatusPendingFaculty Status = "PENDING_FACULTY"
	StatusApproved       Status = "APPROVED"
	StatusProcessing     Status = "PROCESSING"
	StatusReadyToPickup  Status = "READY_TO_PICKUP"
	StatusCompleted      Status = "COMPLETED"
	StatusRejected       Status = "REJECTED"
)

// Request is a requisition for consumables from one warehouse to one room.
// The request id doubles as the pickup token presented at the warehouse.
type Request struct {
	ID           uuid.UUID
	Code         string
	RequesterID  int64
	RoomID       int64
	UnitID       int64
	FacultyID    int64
	WarehouseID  int64
	Status       Status
	RejectReason string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Line is one requested consumable. QtyApproved stays nil until an approver
// caps it; fulfillment falls back to QtyRequested.
type Line struct {
	ID           int64
	RequestID    uuid.UUID
	ConsumableID int64
	QtyRequested decimal.Decimal
	QtyApproved  *decimal.Decimal
}

// FulfillQty returns the quantity pickup will actually move.
func (l Line) FulfillQty() decimal.Decimal {
	if l.QtyApproved != nil {
		return *l.QtyApproved
	}
	return l.QtyRequested
}

// Room is the destination reference consulted for unit/faculty scoping.
type Room struct {
	ID        int64
	UnitID    int64
	FacultyID int64
	Name      string
}
