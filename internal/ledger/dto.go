package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nusantara-erp/ledger-core/internal/shared"
)

// Sentinel errors for the posting engine.
var (
	ErrEntryNotFound     = fmt.Errorf("%w: journal entry", shared.ErrNotFound)
	ErrTooFewLines       = shared.Validationf("a posting batch needs at least two lines")
	ErrUnbalanced        = shared.Validationf("debits and credits do not balance")
	ErrMixedLine         = shared.Validationf("a line cannot carry both debit and credit")
	ErrNegativeAmount    = shared.Validationf("amounts must be non-negative")
	ErrInactiveAccount   = shared.Validationf("account is inactive")
	ErrAlreadyPosted     = shared.Conflictf("source already posted")
	ErrAlreadyReversed   = shared.Conflictf("entry already reversed")
	ErrReverseOfReversal = shared.Conflictf("a reversal batch cannot be reversed")
)

// PostingLineInput describes a journal line for a posting request.
type PostingLineInput struct {
	AccountID   int64
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	BranchID    *int64
	Description string
}

// PostingInput groups fields required to post one balanced batch.
type PostingInput struct {
	Date     time.Time
	Type     JournalType
	Source   SourceRef
	Memo     string
	PostedBy int64
	Lines    []PostingLineInput
}

// Validate ensures the batch is well formed and balanced within tolerance.
func (in PostingInput) Validate(tolerance decimal.Decimal) error {
	if in.Date.IsZero() {
		return shared.Validationf("posting date required")
	}
	if !in.Type.Valid() {
		return shared.Validationf("unknown journal type %q", in.Type)
	}
	if err := in.Source.Validate(); err != nil {
		return err
	}
	if len(in.Lines) < 2 {
		return ErrTooFewLines
	}
	debit := decimal.Zero
	credit := decimal.Zero
	for idx, line := range in.Lines {
		if line.AccountID == 0 {
			return shared.Validationf("line %d missing account", idx)
		}
		if line.Debit.IsNegative() || line.Credit.IsNegative() {
			return ErrNegativeAmount
		}
		if line.Debit.IsPositive() && line.Credit.IsPositive() {
			return ErrMixedLine
		}
		if line.Debit.IsZero() && line.Credit.IsZero() {
			return shared.Validationf("line %d carries no amount", idx)
		}
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	if debit.Sub(credit).Abs().GreaterThan(tolerance) {
		return ErrUnbalanced
	}
	return nil
}

// ReverseInput wraps parameters for reversal.
type ReverseInput struct {
	EntryID int64
	ActorID int64
	Date    time.Time
	Memo    string
}

// LineFilter narrows line searches. Nil fields are ignored.
type LineFilter struct {
	AccountID    *int64
	SourceKind   *SourceKind
	SourceID     *int64
	DateFrom     *time.Time
	DateTo       *time.Time
	Unreconciled bool
	Limit        int
	Offset       int
}
