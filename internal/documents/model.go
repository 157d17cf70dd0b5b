package documents

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nusantara-erp/ledger-core/internal/ledger"
	"github.com/nusantara-erp/ledger-core/internal/shared"
)

// Kind enumerates the posting-triggering document types.
type Kind string

const (
	KindPaymentRequest Kind = "PAYMENT_REQUEST"
	KindVendorPayment  Kind = "VENDOR_PAYMENT"
	KindOtherSale      Kind = "OTHER_SALE"
)

// Valid reports whether the kind is known.
func (k Kind) Valid() bool {
	switch k {
	case KindPaymentRequest, KindVendorPayment, KindOtherSale:
		return true
	}
	return false
}

// SourceKind maps the document kind onto the ledger source union.
func (k Kind) SourceKind() ledger.SourceKind {
	switch k {
	case KindPaymentRequest:
		return ledger.SourcePaymentRequest
	case KindVendorPayment:
		return ledger.SourceVendorPayment
	case KindOtherSale:
		return ledger.SourceOtherSale
	}
	return ""
}

// JournalType resolves the per-line journal category for the kind.
func (k Kind) JournalType() ledger.JournalType {
	switch k {
	case KindOtherSale:
		return ledger.JournalTypeSales
	default:
		return ledger.JournalTypePayment
	}
}

// Document is one posting-triggering business record. It is created by a
// requester, mutated by an approver, and never deleted once posted.
type Document struct {
	ID              int64
	UUID            uuid.UUID
	Kind            Kind
	Number          string
	PartyID         int64
	BranchID        *int64
	DebitAccountID  int64
	CreditAccountID int64
	Amount          decimal.Decimal
	Date            time.Time
	DueDate         time.Time
	Memo            string
	Status          State
	CreatedBy       int64
	ApprovedBy      *int64
	JournalEntryID  *int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// CreateInput groups fields for a new draft document.
type CreateInput struct {
	Kind            Kind
	Number          string
	PartyID         int64
	BranchID        *int64
	DebitAccountID  int64
	CreditAccountID int64
	Amount          decimal.Decimal
	Date            time.Time
	DueDate         time.Time
	Memo            string
	Actor           shared.Actor
}

// Validate checks the draft is complete.
func (in CreateInput) Validate() error {
	if !in.Kind.Valid() {
		return shared.Validationf("unknown document kind %q", in.Kind)
	}
	if in.Number == "" {
		return shared.Validationf("document number required")
	}
	if in.PartyID <= 0 {
		return shared.Validationf("party required")
	}
	if in.DebitAccountID <= 0 || in.CreditAccountID <= 0 {
		return shared.Validationf("debit and credit accounts required")
	}
	if in.DebitAccountID == in.CreditAccountID {
		return shared.Validationf("debit and credit accounts must differ")
	}
	if !in.Amount.IsPositive() {
		return shared.Validationf("amount must be positive")
	}
	if in.Date.IsZero() {
		return shared.Validationf("document date required")
	}
	return nil
}

func parseAmount(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse amount %q: %w", raw, err)
	}
	return d, nil
}

// Sentinel errors.
var (
	ErrDocumentNotFound = fmt.Errorf("%w: document", shared.ErrNotFound)
	ErrStaleDocument    = shared.Conflictf("document changed concurrently")
)
