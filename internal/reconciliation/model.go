package reconciliation

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nusantara-erp/ledger-core/internal/shared"
)

// Status enumerates reconciliation lifecycle values.
type Status string

const (
	StatusOpen   Status = "OPEN"
	StatusClosed Status = "CLOSED"
)

// Reconciliation matches a subset of journal lines against an external bank
// statement for a period.
type Reconciliation struct {
	ID               int64
	AccountID        int64
	PeriodStart      time.Time
	PeriodEnd        time.Time
	StatementBalance decimal.Decimal
	BookBalance      decimal.Decimal
	Difference       decimal.Decimal
	Status           Status
	ClosedBy         *int64
	ClosedAt         *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// OpenInput groups fields to start a reconciliation.
type OpenInput struct {
	AccountID        int64
	PeriodStart      time.Time
	PeriodEnd        time.Time
	StatementBalance decimal.Decimal
	ActorID          int64
}

// Sentinel errors.
var (
	ErrReconNotFound = fmt.Errorf("%w: reconciliation", shared.ErrNotFound)
	ErrReconClosed   = shared.Conflictf("reconciliation is closed")
	ErrLineClaimed   = shared.Conflictf("journal line already claimed by another reconciliation")
	ErrLineOutside   = shared.Validationf("journal line outside the reconciliation account or period")
	ErrNotBalanced   = shared.Validationf("difference exceeds close tolerance")
)
