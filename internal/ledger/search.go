package ledger

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/shopspring/decimal"
)

// LineView is a denormalised journal line row for search results.
type LineView struct {
	LineID      int64           `db:"line_id" json:"line_id"`
	EntryID     int64           `db:"je_id" json:"entry_id"`
	Number      int64           `db:"number" json:"entry_number"`
	Date        time.Time       `db:"date" json:"date"`
	AccountID   int64           `db:"account_id" json:"account_id"`
	AccountCode string          `db:"account_code" json:"account_code"`
	Debit       decimal.Decimal `db:"debit" json:"debit"`
	Credit      decimal.Decimal `db:"credit" json:"credit"`
	Type        JournalType     `db:"type" json:"journal_type"`
	SourceKind  SourceKind      `db:"source_kind" json:"source_kind"`
	SourceID    int64           `db:"source_id" json:"source_id"`
	Description string          `db:"description" json:"description"`
	BankReconID *int64          `db:"bank_recon_id" json:"bank_recon_id,omitempty"`
}

// SearchLines runs a filtered line query. Filters compose dynamically, which
// is why this one query goes through a builder instead of hand-written SQL.
func (r *repository) SearchLines(ctx context.Context, filter LineFilter) ([]LineView, error) {
	builder := sq.Select(
		"jl.id AS line_id",
		"jl.je_id",
		"je.number",
		"je.date",
		"jl.account_id",
		"a.code AS account_code",
		"jl.debit",
		"jl.credit",
		"je.type",
		"je.source_kind",
		"je.source_id",
		"jl.description",
		"jl.bank_recon_id",
	).
		From("journal_lines jl").
		Join("journal_entries je ON je.id = jl.je_id").
		Join("accounts a ON a.id = jl.account_id").
		OrderBy("je.date ASC", "jl.id ASC").
		PlaceholderFormat(sq.Dollar)

	if filter.AccountID != nil {
		builder = builder.Where(sq.Eq{"jl.account_id": *filter.AccountID})
	}
	if filter.SourceKind != nil {
		builder = builder.Where(sq.Eq{"je.source_kind": *filter.SourceKind})
	}
	if filter.SourceID != nil {
		builder = builder.Where(sq.Eq{"je.source_id": *filter.SourceID})
	}
	if filter.DateFrom != nil {
		builder = builder.Where(sq.GtOrEq{"je.date": *filter.DateFrom})
	}
	if filter.DateTo != nil {
		builder = builder.Where(sq.LtOrEq{"je.date": *filter.DateTo})
	}
	if filter.Unreconciled {
		builder = builder.Where(sq.Eq{"jl.bank_recon_id": nil})
	}
	if filter.Limit > 0 {
		builder = builder.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		builder = builder.Offset(uint64(filter.Offset))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}
	var out []LineView
	if err := pgxscan.Select(ctx, r.db, &out, query, args...); err != nil {
		return nil, err
	}
	return out, nil
}
