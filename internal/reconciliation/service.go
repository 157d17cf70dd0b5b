package reconciliation

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nusantara-erp/ledger-core/internal/shared"
)

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates bank reconciliation operations.
type Service struct {
	repo      Repository
	audit     AuditPort
	tolerance decimal.Decimal
	now       func() time.Time
}

// NewService builds Service. tolerance bounds the statement-vs-book
// difference a reconciliation may close with.
func NewService(repo Repository, audit AuditPort, tolerance decimal.Decimal) *Service {
	return &Service{repo: repo, audit: audit, tolerance: tolerance, now: time.Now}
}

// WithNow overrides the clock, used by tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Open starts a reconciliation for an account and period.
func (s *Service) Open(ctx context.Context, input OpenInput) (Reconciliation, error) {
	if input.AccountID == 0 {
		return Reconciliation{}, shared.Validationf("account required")
	}
	if input.PeriodStart.IsZero() || input.PeriodEnd.IsZero() || input.PeriodEnd.Before(input.PeriodStart) {
		return Reconciliation{}, shared.Validationf("period bounds invalid")
	}
	recon, err := s.repo.Open(ctx, input)
	if err != nil {
		return Reconciliation{}, err
	}
	s.record(ctx, input.ActorID, "recon.open", recon.ID, map[string]any{
		"account_id": input.AccountID,
	})
	return recon, nil
}

// ClaimLines takes an exclusive claim on the selected journal lines and
// recomputes the book balance. A line already claimed elsewhere fails the
// whole call; claims are all-or-nothing.
func (s *Service) ClaimLines(ctx context.Context, reconID int64, lineIDs []int64, actorID int64) (Reconciliation, error) {
	if len(lineIDs) == 0 {
		return Reconciliation{}, shared.Validationf("no lines selected")
	}
	var updated Reconciliation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		recon, err := tx.GetForUpdate(ctx, reconID)
		if err != nil {
			return err
		}
		if recon.Status != StatusOpen {
			return ErrReconClosed
		}
		inScope, err := tx.CountLinesInScope(ctx, recon, lineIDs)
		if err != nil {
			return err
		}
		if inScope != len(lineIDs) {
			return ErrLineOutside
		}
		claimed, err := tx.ClaimLines(ctx, recon.ID, lineIDs)
		if err != nil {
			return err
		}
		if claimed != len(lineIDs) {
			return ErrLineClaimed
		}
		return s.recompute(ctx, tx, &recon, &updated)
	})
	if err != nil {
		return Reconciliation{}, err
	}
	s.record(ctx, actorID, "recon.claim", reconID, map[string]any{
		"lines": lineIDs,
	})
	return updated, nil
}

// ReleaseLine returns a claimed line to the unreconciled pool.
func (s *Service) ReleaseLine(ctx context.Context, reconID, lineID, actorID int64) (Reconciliation, error) {
	var updated Reconciliation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		recon, err := tx.GetForUpdate(ctx, reconID)
		if err != nil {
			return err
		}
		if recon.Status != StatusOpen {
			return ErrReconClosed
		}
		if err := tx.ReleaseLine(ctx, recon.ID, lineID); err != nil {
			return err
		}
		return s.recompute(ctx, tx, &recon, &updated)
	})
	if err != nil {
		return Reconciliation{}, err
	}
	s.record(ctx, actorID, "recon.release", reconID, map[string]any{
		"line_id": lineID,
	})
	return updated, nil
}

// Recompute refreshes book balance and difference without changing claims.
func (s *Service) Recompute(ctx context.Context, reconID int64) (Reconciliation, error) {
	var updated Reconciliation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		recon, err := tx.GetForUpdate(ctx, reconID)
		if err != nil {
			return err
		}
		if recon.Status != StatusOpen {
			return ErrReconClosed
		}
		return s.recompute(ctx, tx, &recon, &updated)
	})
	if err != nil {
		return Reconciliation{}, err
	}
	return updated, nil
}

// Close flips the reconciliation to CLOSED once the difference is within
// tolerance. A closed reconciliation and its claims are immutable.
func (s *Service) Close(ctx context.Context, reconID, actorID int64) (Reconciliation, error) {
	var closed Reconciliation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		recon, err := tx.GetForUpdate(ctx, reconID)
		if err != nil {
			return err
		}
		if recon.Status != StatusOpen {
			return ErrReconClosed
		}
		book, err := tx.BookBalance(ctx, recon)
		if err != nil {
			return err
		}
		recon.BookBalance = book
		recon.Difference = recon.StatementBalance.Sub(book)
		if recon.Difference.Abs().GreaterThan(s.tolerance) {
			return fmt.Errorf("%w: difference %s", ErrNotBalanced, recon.Difference)
		}
		now := s.now()
		recon.Status = StatusClosed
		recon.ClosedBy = &actorID
		recon.ClosedAt = &now
		closed = recon
		return tx.Update(ctx, recon)
	})
	if err != nil {
		return Reconciliation{}, err
	}
	s.record(ctx, actorID, "recon.close", reconID, map[string]any{
		"difference": closed.Difference.String(),
	})
	return closed, nil
}

// Get fetches one reconciliation.
func (s *Service) Get(ctx context.Context, id int64) (Reconciliation, error) {
	return s.repo.Get(ctx, id)
}

// List lists reconciliations for an account.
func (s *Service) List(ctx context.Context, accountID int64) ([]Reconciliation, error) {
	return s.repo.List(ctx, accountID)
}

func (s *Service) recompute(ctx context.Context, tx TxRepository, recon, out *Reconciliation) error {
	book, err := tx.BookBalance(ctx, *recon)
	if err != nil {
		return err
	}
	recon.BookBalance = book
	recon.Difference = recon.StatementBalance.Sub(book)
	*out = *recon
	return tx.Update(ctx, *recon)
}

func (s *Service) record(ctx context.Context, actorID int64, action string, reconID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "bank_reconciliation",
		EntityID: fmt.Sprintf("%d", reconID),
		Meta:     meta,
		At:       s.now(),
	})
}
