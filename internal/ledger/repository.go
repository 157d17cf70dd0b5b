package ledger

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nusantara-erp/ledger-core/internal/platform/db"
)

// Repository encapsulates DB operations for the journal ledger.
type Repository interface {
	List(ctx context.Context, limit, offset int) ([]JournalEntry, error)
	GetWithLines(ctx context.Context, entryID int64) (JournalEntry, error)
	GetBySource(ctx context.Context, ref SourceRef) (JournalEntry, error)
	SearchLines(ctx context.Context, filter LineFilter) ([]LineView, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes methods available within a posting transaction.
type TxRepository interface {
	InsertEntry(ctx context.Context, in PostingInput, status EntryStatus, reversalOf *int64) (JournalEntry, error)
	InsertLines(ctx context.Context, entryID int64, entryType JournalType, lines []PostingLineInput) error
	LinkSource(ctx context.Context, ref SourceRef, entryID int64) error
	GetEntryWithLinesForUpdate(ctx context.Context, entryID int64) (JournalEntry, error)
	UpdateEntryStatus(ctx context.Context, entryID int64, status EntryStatus) error
	ListInactiveAccounts(ctx context.Context, accountIDs []int64) ([]string, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository returns the pgx-backed repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const entryColumns = `id, number, date, type, source_kind, source_id, memo, status, reversal_of, posted_by, posted_at, created_at, updated_at`

func scanEntry(row pgx.Row) (JournalEntry, error) {
	var e JournalEntry
	err := row.Scan(&e.ID, &e.Number, &e.Date, &e.Type, &e.Source.Kind, &e.Source.ID, &e.Memo, &e.Status, &e.ReversalOf, &e.PostedBy, &e.PostedAt, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return JournalEntry{}, ErrEntryNotFound
	}
	return e, err
}

func (r *repository) List(ctx context.Context, limit, offset int) ([]JournalEntry, error) {
	rows, err := r.db.Query(ctx, `SELECT `+entryColumns+` FROM journal_entries ORDER BY number DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []JournalEntry
	for rows.Next() {
		var e JournalEntry
		if err := rows.Scan(&e.ID, &e.Number, &e.Date, &e.Type, &e.Source.Kind, &e.Source.ID, &e.Memo, &e.Status, &e.ReversalOf, &e.PostedBy, &e.PostedAt, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *repository) GetWithLines(ctx context.Context, entryID int64) (JournalEntry, error) {
	entry, err := scanEntry(r.db.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE id=$1`, entryID))
	if err != nil {
		return JournalEntry{}, err
	}
	entry.Lines, err = r.linesFor(ctx, entryID)
	return entry, err
}

func (r *repository) GetBySource(ctx context.Context, ref SourceRef) (JournalEntry, error) {
	entry, err := scanEntry(r.db.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE source_kind=$1 AND source_id=$2`, ref.Kind, ref.ID))
	if err != nil {
		return JournalEntry{}, err
	}
	entry.Lines, err = r.linesFor(ctx, entry.ID)
	return entry, err
}

func (r *repository) linesFor(ctx context.Context, entryID int64) ([]JournalLine, error) {
	rows, err := r.db.Query(ctx, `SELECT id, je_id, account_id, debit, credit, branch_id, description, bank_recon_id, created_at, updated_at
FROM journal_lines WHERE je_id=$1 ORDER BY id ASC`, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []JournalLine
	for rows.Next() {
		var line JournalLine
		if err := rows.Scan(&line.ID, &line.EntryID, &line.AccountID, &line.Debit, &line.Credit, &line.BranchID, &line.Description, &line.BankReconID, &line.CreatedAt, &line.UpdatedAt); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) InsertEntry(ctx context.Context, in PostingInput, status EntryStatus, reversalOf *int64) (JournalEntry, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO journal_entries (date, type, source_kind, source_id, memo, status, reversal_of, posted_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id, number, posted_at, created_at, updated_at`,
		in.Date, in.Type, in.Source.Kind, in.Source.ID, in.Memo, status, reversalOf, in.PostedBy)
	entry := JournalEntry{
		Date:       in.Date,
		Type:       in.Type,
		Source:     in.Source,
		Memo:       in.Memo,
		Status:     status,
		ReversalOf: reversalOf,
		PostedBy:   in.PostedBy,
	}
	if err := row.Scan(&entry.ID, &entry.Number, &entry.PostedAt, &entry.CreatedAt, &entry.UpdatedAt); err != nil {
		return JournalEntry{}, err
	}
	return entry, nil
}

func (r *txRepository) InsertLines(ctx context.Context, entryID int64, entryType JournalType, lines []PostingLineInput) error {
	for _, line := range lines {
		if _, err := r.tx.Exec(ctx, `INSERT INTO journal_lines (je_id, account_id, debit, credit, branch_id, description)
VALUES ($1,$2,$3,$4,$5,$6)`, entryID, line.AccountID, line.Debit.String(), line.Credit.String(), line.BranchID, line.Description); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) LinkSource(ctx context.Context, ref SourceRef, entryID int64) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO journal_source_links (source_kind, source_id, je_id) VALUES ($1,$2,$3)`, ref.Kind, ref.ID, entryID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrAlreadyPosted
		}
		return err
	}
	return nil
}

func (r *txRepository) GetEntryWithLinesForUpdate(ctx context.Context, entryID int64) (JournalEntry, error) {
	entry, err := scanEntry(r.tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE id=$1 FOR UPDATE`, entryID))
	if err != nil {
		return JournalEntry{}, err
	}
	rows, err := r.tx.Query(ctx, `SELECT id, je_id, account_id, debit, credit, branch_id, description, bank_recon_id, created_at, updated_at
FROM journal_lines WHERE je_id=$1 ORDER BY id ASC`, entryID)
	if err != nil {
		return JournalEntry{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line JournalLine
		if err := rows.Scan(&line.ID, &line.EntryID, &line.AccountID, &line.Debit, &line.Credit, &line.BranchID, &line.Description, &line.BankReconID, &line.CreatedAt, &line.UpdatedAt); err != nil {
			return JournalEntry{}, err
		}
		entry.Lines = append(entry.Lines, line)
	}
	return entry, rows.Err()
}

func (r *txRepository) UpdateEntryStatus(ctx context.Context, entryID int64, status EntryStatus) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE journal_entries SET status=$2, updated_at=NOW() WHERE id=$1`, entryID, status)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}

func (r *txRepository) ListInactiveAccounts(ctx context.Context, accountIDs []int64) ([]string, error) {
	rows, err := r.tx.Query(ctx, `SELECT code FROM accounts WHERE id = ANY($1) AND NOT is_active`, accountIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}
