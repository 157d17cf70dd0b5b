package documents

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nusantara-erp/ledger-core/internal/shared"
)

// Repository abstracts document persistence for the service layer.
type Repository interface {
	Create(ctx context.Context, doc *Document) error
	Get(ctx context.Context, id int64) (Document, error)
	GetByUUID(ctx context.Context, id uuid.UUID) (Document, error)
	List(ctx context.Context, f Filter) ([]Document, error)
	// Transition moves the document from an expected state into a new one.
	// The expected state is part of the WHERE clause so concurrent approvals
	// cannot both win; losing callers get ErrStaleDocument.
	Transition(ctx context.Context, id int64, from, to State, approvedBy *int64, journalEntryID *int64) error
}

// Filter narrows List.
type Filter struct {
	Kind   Kind
	Status State
	Page   shared.Page
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a Postgres-backed document repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const documentColumns = `id, uuid, kind, number, party_id, branch_id, debit_account_id,
	credit_account_id, amount, date, due_date, memo, status, created_by,
	approved_by, journal_entry_id, created_at, updated_at`

func (r *repository) Create(ctx context.Context, doc *Document) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO documents (uuid, kind, number, party_id, branch_id, debit_account_id,
			credit_account_id, amount, date, due_date, memo, status, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING id, created_at, updated_at`,
		doc.UUID, doc.Kind, doc.Number, doc.PartyID, doc.BranchID,
		doc.DebitAccountID, doc.CreditAccountID, doc.Amount.String(),
		doc.Date, doc.DueDate, doc.Memo, doc.Status, doc.CreatedBy,
	).Scan(&doc.ID, &doc.CreatedAt, &doc.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return shared.Conflictf("document number %s already exists", doc.Number)
	}
	return err
}

func (r *repository) Get(ctx context.Context, id int64) (Document, error) {
	return r.scanOne(ctx, fmt.Sprintf(`SELECT %s FROM documents WHERE id=$1`, documentColumns), id)
}

func (r *repository) GetByUUID(ctx context.Context, id uuid.UUID) (Document, error) {
	return r.scanOne(ctx, fmt.Sprintf(`SELECT %s FROM documents WHERE uuid=$1`, documentColumns), id)
}

func (r *repository) scanOne(ctx context.Context, query string, arg any) (Document, error) {
	var doc Document
	var amount string
	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&doc.ID, &doc.UUID, &doc.Kind, &doc.Number, &doc.PartyID, &doc.BranchID,
		&doc.DebitAccountID, &doc.CreditAccountID, &amount, &doc.Date, &doc.DueDate,
		&doc.Memo, &doc.Status, &doc.CreatedBy, &doc.ApprovedBy, &doc.JournalEntryID,
		&doc.CreatedAt, &doc.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, ErrDocumentNotFound
	}
	if err != nil {
		return Document{}, err
	}
	if doc.Amount, err = parseAmount(amount); err != nil {
		return Document{}, err
	}
	return doc, nil
}

func (r *repository) List(ctx context.Context, f Filter) ([]Document, error) {
	query := fmt.Sprintf(`SELECT %s FROM documents WHERE ($1 = '' OR kind = $1)
		AND ($2 = '' OR status = $2)
		ORDER BY id DESC LIMIT $3 OFFSET $4`, documentColumns)
	rows, err := r.pool.Query(ctx, query, string(f.Kind), string(f.Status), f.Page.Limit, f.Page.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var doc Document
		var amount string
		if err := rows.Scan(
			&doc.ID, &doc.UUID, &doc.Kind, &doc.Number, &doc.PartyID, &doc.BranchID,
			&doc.DebitAccountID, &doc.CreditAccountID, &amount, &doc.Date, &doc.DueDate,
			&doc.Memo, &doc.Status, &doc.CreatedBy, &doc.ApprovedBy, &doc.JournalEntryID,
			&doc.CreatedAt, &doc.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if doc.Amount, err = parseAmount(amount); err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (r *repository) Transition(ctx context.Context, id int64, from, to State, approvedBy *int64, journalEntryID *int64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE documents
		SET status=$3,
			approved_by=COALESCE($4, approved_by),
			journal_entry_id=COALESCE($5, journal_entry_id),
			updated_at=NOW()
		WHERE id=$1 AND status=$2`,
		id, from, to, approvedBy, journalEntryID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleDocument
	}
	return nil
}
