package inventory

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nusantara-erp/ledger-core/internal/shared"
)

// MovementType enumerates supported stock movements. The sign of the stored
// quantity is implied by the type.
type MovementType string

const (
	MovementTransferIn     MovementType = "transfer_in"
	MovementTransferOut    MovementType = "transfer_out"
	MovementManufactureIn  MovementType = "manufacture_in"
	MovementManufactureOut MovementType = "manufacture_out"
	MovementAdjustmentIn   MovementType = "adjustment_in"
	MovementAdjustmentOut  MovementType = "adjustment_out"
	MovementReturnIn       MovementType = "return_in"
	MovementReturnOut      MovementType = "return_out"
)

// Sign returns +1 for inbound types, -1 for outbound, 0 for unknown.
func (t MovementType) Sign() float64 {
	switch t {
	case MovementTransferIn, MovementManufactureIn, MovementAdjustmentIn, MovementReturnIn:
		return 1
	case MovementTransferOut, MovementManufactureOut, MovementAdjustmentOut, MovementReturnOut:
		return -1
	}
	return 0
}

// StockKey identifies one derived stock aggregate.
type StockKey struct {
	ProductID   int64
	WarehouseID int64
	RackID      *int64
}

// Movement is one immutable row of the stock ledger. Corrections are new
// offsetting movements, never edits.
type Movement struct {
	ID          int64
	ProductID   int64
	WarehouseID int64
	RackID      *int64
	Type        MovementType
	Qty         float64
	Value       decimal.Decimal
	SourceKind  string
	SourceID    int64
	OccurredAt  time.Time
	CreatedBy   int64
	Metadata    map[string]any
	CreatedAt   time.Time
}

// Stock is the derived aggregate per key. qty_available always equals the
// signed sum of all movements for the key.
type Stock struct {
	ProductID    int64
	WarehouseID  int64
	RackID       *int64
	QtyAvailable float64
	QtyReserved  float64
	UpdatedAt    time.Time
}

// MovementInput describes a request to record one movement. Qty is always
// positive; the type decides the direction.
type MovementInput struct {
	ProductID   int64
	WarehouseID int64
	RackID      *int64
	Type        MovementType
	Qty         float64
	Value       decimal.Decimal
	SourceKind  string
	SourceID    int64
	OccurredAt  time.Time
	ActorID     int64
	Metadata    map[string]any
}

// TransferInput moves stock between warehouses as an out+in pair.
type TransferInput struct {
	ProductID    int64
	SrcWarehouse int64
	DstWarehouse int64
	SrcRackID    *int64
	DstRackID    *int64
	Qty          float64
	Value        decimal.Decimal
	SourceID     int64
	OccurredAt   time.Time
	ActorID      int64
}

// MovementFilter narrows movement listings.
type MovementFilter struct {
	ProductID   int64
	WarehouseID int64
	From        time.Time
	To          time.Time
	Limit       int
}

// Sentinel errors.
var (
	ErrNegativeStock     = shared.Validationf("movement would drive stock negative")
	ErrInvalidQuantity   = shared.Validationf("quantity must be positive")
	ErrUnknownMovement   = shared.Validationf("unknown movement type")
	ErrInsufficientStock = shared.Validationf("reserved quantity cannot exceed available")
	ErrStockNotFound     = fmt.Errorf("%w: stock", shared.ErrNotFound)
)
