package ageing

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nusantara-erp/ledger-core/internal/shared"
)

// RepositoryPort lists open documents for one side.
type RepositoryPort interface {
	ListOpenItems(ctx context.Context, side Side) ([]OpenItem, error)
}

// Service computes ageing schedules.
type Service struct {
	repo RepositoryPort
	now  func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo, now: time.Now}
}

// WithNow overrides the clock, used by tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Schedule folds the open documents of one side into buckets as of a date.
func (s *Service) Schedule(ctx context.Context, side Side, asOf time.Time) (Schedule, error) {
	if !side.Valid() {
		return Schedule{}, shared.Validationf("unknown ageing side %q", side)
	}
	if asOf.IsZero() {
		asOf = s.now()
	}
	items, err := s.repo.ListOpenItems(ctx, side)
	if err != nil {
		return Schedule{}, err
	}
	return Fold(side, asOf, items), nil
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository returns the pgx-backed repository over the open-documents
// view the documents module maintains.
func NewRepository(db *pgxpool.Pool) RepositoryPort {
	return &repository{db: db}
}

func (r *repository) ListOpenItems(ctx context.Context, side Side) ([]OpenItem, error) {
	if !side.Valid() {
		return nil, errors.New("ageing: unknown side")
	}
	rows, err := r.db.Query(ctx, `SELECT id, source_kind, source_id, party_id, invoice_date, due_date, outstanding
FROM open_ageing_items WHERE side=$1 ORDER BY due_date ASC`, side)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []OpenItem
	for rows.Next() {
		var item OpenItem
		if err := rows.Scan(&item.ID, &item.SourceKind, &item.SourceID, &item.PartyID, &item.InvoiceDate, &item.DueDate, &item.Outstanding); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
