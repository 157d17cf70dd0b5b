package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// JournalType enumerates the per-line journal categories carried from the
// general ledger schema.
type JournalType string

const (
	JournalTypeSales        JournalType = "sales"
	JournalTypePurchase     JournalType = "purchase"
	JournalTypeDepreciation JournalType = "depreciation"
	JournalTypeManual       JournalType = "manual"
	JournalTypeTransfer     JournalType = "transfer"
	JournalTypePayment      JournalType = "payment"
	JournalTypeReceipt      JournalType = "receipt"
)

// Valid reports whether the journal type is known.
func (t JournalType) Valid() bool {
	switch t {
	case JournalTypeSales, JournalTypePurchase, JournalTypeDepreciation,
		JournalTypeManual, JournalTypeTransfer, JournalTypePayment, JournalTypeReceipt:
		return true
	}
	return false
}

// EntryStatus enumerates journal entry lifecycle values.
type EntryStatus string

const (
	EntryStatusPosted   EntryStatus = "POSTED"
	EntryStatusReversed EntryStatus = "REVERSED"
)

// JournalEntry captures posting metadata for one balanced batch.
type JournalEntry struct {
	ID         int64
	Number     int64
	Date       time.Time
	Type       JournalType
	Source     SourceRef
	Memo       string
	Status     EntryStatus
	ReversalOf *int64
	PostedBy   int64
	PostedAt   time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Lines      []JournalLine
}

// JournalLine stores a debit or credit amount for an account. Exactly one of
// Debit/Credit is non-zero in well-formed data.
type JournalLine struct {
	ID          int64
	EntryID     int64
	AccountID   int64
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	BranchID    *int64
	Description string
	BankReconID *int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
