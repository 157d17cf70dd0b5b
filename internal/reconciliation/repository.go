package reconciliation

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/nusantara-erp/ledger-core/internal/platform/db"
)

// Repository encapsulates DB operations for reconciliations.
type Repository interface {
	Open(ctx context.Context, in OpenInput) (Reconciliation, error)
	Get(ctx context.Context, id int64) (Reconciliation, error)
	List(ctx context.Context, accountID int64) ([]Reconciliation, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes methods available within a claim/close transaction.
type TxRepository interface {
	GetForUpdate(ctx context.Context, id int64) (Reconciliation, error)
	CountLinesInScope(ctx context.Context, recon Reconciliation, lineIDs []int64) (int, error)
	ClaimLines(ctx context.Context, reconID int64, lineIDs []int64) (int, error)
	ReleaseLine(ctx context.Context, reconID, lineID int64) error
	BookBalance(ctx context.Context, recon Reconciliation) (decimal.Decimal, error)
	Update(ctx context.Context, recon Reconciliation) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository returns the pgx-backed repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const reconColumns = `id, account_id, period_start, period_end, statement_balance, book_balance, difference, status, closed_by, closed_at, created_at, updated_at`

func scanRecon(row pgx.Row) (Reconciliation, error) {
	var rec Reconciliation
	err := row.Scan(&rec.ID, &rec.AccountID, &rec.PeriodStart, &rec.PeriodEnd, &rec.StatementBalance, &rec.BookBalance, &rec.Difference, &rec.Status, &rec.ClosedBy, &rec.ClosedAt, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Reconciliation{}, ErrReconNotFound
	}
	return rec, err
}

func (r *repository) Open(ctx context.Context, in OpenInput) (Reconciliation, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO bank_reconciliations (account_id, period_start, period_end, statement_balance, book_balance, difference, status)
VALUES ($1,$2,$3,$4,0,$4,'OPEN') RETURNING `+reconColumns,
		in.AccountID, in.PeriodStart, in.PeriodEnd, in.StatementBalance.String())
	return scanRecon(row)
}

func (r *repository) Get(ctx context.Context, id int64) (Reconciliation, error) {
	return scanRecon(r.db.QueryRow(ctx, `SELECT `+reconColumns+` FROM bank_reconciliations WHERE id=$1`, id))
}

func (r *repository) List(ctx context.Context, accountID int64) ([]Reconciliation, error) {
	rows, err := r.db.Query(ctx, `SELECT `+reconColumns+` FROM bank_reconciliations WHERE account_id=$1 ORDER BY period_start DESC`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var recons []Reconciliation
	for rows.Next() {
		var rec Reconciliation
		if err := rows.Scan(&rec.ID, &rec.AccountID, &rec.PeriodStart, &rec.PeriodEnd, &rec.StatementBalance, &rec.BookBalance, &rec.Difference, &rec.Status, &rec.ClosedBy, &rec.ClosedAt, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		recons = append(recons, rec)
	}
	return recons, rows.Err()
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) GetForUpdate(ctx context.Context, id int64) (Reconciliation, error) {
	return scanRecon(r.tx.QueryRow(ctx, `SELECT `+reconColumns+` FROM bank_reconciliations WHERE id=$1 FOR UPDATE`, id))
}

// CountLinesInScope counts how many of the given lines belong to the
// reconciliation account and fall within its period.
func (r *txRepository) CountLinesInScope(ctx context.Context, recon Reconciliation, lineIDs []int64) (int, error) {
	var count int
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM journal_lines jl
JOIN journal_entries je ON je.id = jl.je_id
WHERE jl.id = ANY($1) AND jl.account_id = $2 AND je.date >= $3 AND je.date <= $4`,
		lineIDs, recon.AccountID, recon.PeriodStart, recon.PeriodEnd).Scan(&count)
	return count, err
}

// ClaimLines stamps bank_recon_id on unclaimed lines only. The returned count
// tells the caller whether any line lost the claim race.
func (r *txRepository) ClaimLines(ctx context.Context, reconID int64, lineIDs []int64) (int, error) {
	cmd, err := r.tx.Exec(ctx, `UPDATE journal_lines SET bank_recon_id=$1, updated_at=NOW()
WHERE id = ANY($2) AND bank_recon_id IS NULL`, reconID, lineIDs)
	if err != nil {
		return 0, err
	}
	return int(cmd.RowsAffected()), nil
}

func (r *txRepository) ReleaseLine(ctx context.Context, reconID, lineID int64) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE journal_lines SET bank_recon_id=NULL, updated_at=NOW()
WHERE id=$1 AND bank_recon_id=$2`, lineID, reconID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrLineOutside
	}
	return nil
}

// BookBalance sums claimed lines plus every line for the account dated before
// the period start.
func (r *txRepository) BookBalance(ctx context.Context, recon Reconciliation) (decimal.Decimal, error) {
	var raw string
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(jl.debit - jl.credit), 0)::text FROM journal_lines jl
JOIN journal_entries je ON je.id = jl.je_id
WHERE jl.account_id = $1 AND (jl.bank_recon_id = $2 OR je.date < $3)`,
		recon.AccountID, recon.ID, recon.PeriodStart).Scan(&raw)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(raw)
}

func (r *txRepository) Update(ctx context.Context, recon Reconciliation) error {
	_, err := r.tx.Exec(ctx, `UPDATE bank_reconciliations
SET book_balance=$2, difference=$3, status=$4, closed_by=$5, closed_at=$6, updated_at=NOW()
WHERE id=$1`, recon.ID, recon.BookBalance.String(), recon.Difference.String(), recon.Status, recon.ClosedBy, recon.ClosedAt)
	return err
}
