package usage

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Report groups the consumption of one room at one point in time. Details are
// cascade-deleted with their report.
type Report struct {
	ID         uuid.UUID
	Code       string
	ReporterID int64
	RoomID     int64
	UnitID     int64
	FacultyID  int64
	Notes      string
	CreatedAt  time.Time
}

// Detail is one consumed quantity of one consumable.
type Detail struct {
	ID           int64
	ReportID     uuid.UUID
	ConsumableID int64
	Qty          decimal.Decimal
}

// Room is the reporting location consulted for unit scoping.
type Room struct {
	ID        int64
	UnitID    int64
	FacultyID int64
	Name      string
}
