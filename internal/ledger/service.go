package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nusantara-erp/ledger-core/internal/shared"
)

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service is the posting engine: it converts one business event into a
// balanced journal batch, exactly once.
type Service struct {
	repo      Repository
	audit     AuditPort
	tolerance decimal.Decimal
	now       func() time.Time
}

// NewService builds Service. tolerance bounds the acceptable debit/credit
// difference per batch; zero means exact balance.
func NewService(repo Repository, audit AuditPort, tolerance decimal.Decimal) *Service {
	return &Service{repo: repo, audit: audit, tolerance: tolerance, now: time.Now}
}

// WithNow overrides the clock, used by tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Post validates and commits one batch. The source link insert carries a
// uniqueness constraint on (kind, id), so a concurrent or repeated posting of
// the same document loses the race inside the transaction and surfaces
// ErrAlreadyPosted with zero rows written.
func (s *Service) Post(ctx context.Context, input PostingInput) (JournalEntry, error) {
	if err := input.Validate(s.tolerance); err != nil {
		return JournalEntry{}, err
	}
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		accountIDs := make([]int64, 0, len(input.Lines))
		for _, line := range input.Lines {
			accountIDs = append(accountIDs, line.AccountID)
		}
		inactive, err := tx.ListInactiveAccounts(ctx, accountIDs)
		if err != nil {
			return err
		}
		if len(inactive) > 0 {
			return fmt.Errorf("%w: %v", ErrInactiveAccount, inactive)
		}
		inserted, err := tx.InsertEntry(ctx, input, EntryStatusPosted, nil)
		if err != nil {
			return err
		}
		if err := tx.InsertLines(ctx, inserted.ID, input.Type, input.Lines); err != nil {
			return err
		}
		if err := tx.LinkSource(ctx, input.Source, inserted.ID); err != nil {
			return err
		}
		inserted.Lines = toJournalLines(inserted.ID, input.Lines, s.now())
		entry = inserted
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.record(ctx, input.PostedBy, "ledger.post", entry.ID, map[string]any{
		"number":      entry.Number,
		"source_kind": string(input.Source.Kind),
		"source_id":   input.Source.ID,
	})
	return entry, nil
}

// Reverse emits a mirror batch for a previously posted entry. The original is
// marked REVERSED but its rows are never mutated or deleted. Reversing twice,
// or reversing a reversal batch, is rejected.
func (s *Service) Reverse(ctx context.Context, input ReverseInput) (JournalEntry, error) {
	if input.EntryID == 0 {
		return JournalEntry{}, shared.Validationf("entry id required")
	}
	var reversal JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		original, err := tx.GetEntryWithLinesForUpdate(ctx, input.EntryID)
		if err != nil {
			return err
		}
		if original.Source.Kind == SourceReversal {
			return ErrReverseOfReversal
		}
		if original.Status != EntryStatusPosted {
			return ErrAlreadyReversed
		}
		date := input.Date
		if date.IsZero() {
			date = original.Date
		}
		posting := PostingInput{
			Date:     date,
			Type:     original.Type,
			Source:   SourceRef{Kind: SourceReversal, ID: original.ID},
			Memo:     defaultReversalMemo(input.Memo, original.Number),
			PostedBy: input.ActorID,
			Lines:    mirrorLines(original.Lines),
		}
		inserted, err := tx.InsertEntry(ctx, posting, EntryStatusPosted, &original.ID)
		if err != nil {
			return err
		}
		if err := tx.InsertLines(ctx, inserted.ID, posting.Type, posting.Lines); err != nil {
			return err
		}
		if err := tx.LinkSource(ctx, posting.Source, inserted.ID); err != nil {
			if errors.Is(err, ErrAlreadyPosted) {
				return ErrAlreadyReversed
			}
			return err
		}
		if err := tx.UpdateEntryStatus(ctx, original.ID, EntryStatusReversed); err != nil {
			return err
		}
		inserted.Lines = toJournalLines(inserted.ID, posting.Lines, s.now())
		reversal = inserted
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.record(ctx, input.ActorID, "ledger.reverse", input.EntryID, map[string]any{
		"reversal_id":     reversal.ID,
		"reversal_number": reversal.Number,
	})
	return reversal, nil
}

// GetBySource fetches the batch a document produced.
func (s *Service) GetBySource(ctx context.Context, ref SourceRef) (JournalEntry, error) {
	if err := ref.Validate(); err != nil {
		return JournalEntry{}, err
	}
	return s.repo.GetBySource(ctx, ref)
}

// Get fetches one entry with lines.
func (s *Service) Get(ctx context.Context, entryID int64) (JournalEntry, error) {
	return s.repo.GetWithLines(ctx, entryID)
}

// List pages through entries, newest first.
func (s *Service) List(ctx context.Context, limit, offset int) ([]JournalEntry, error) {
	return s.repo.List(ctx, limit, offset)
}

// SearchLines runs a filtered line query.
func (s *Service) SearchLines(ctx context.Context, filter LineFilter) ([]LineView, error) {
	return s.repo.SearchLines(ctx, filter)
}

func (s *Service) record(ctx context.Context, actorID int64, action string, entryID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "journal_entry",
		EntityID: fmt.Sprintf("%d", entryID),
		Meta:     meta,
		At:       s.now(),
	})
}

func mirrorLines(lines []JournalLine) []PostingLineInput {
	out := make([]PostingLineInput, 0, len(lines))
	for _, line := range lines {
		out = append(out, PostingLineInput{
			AccountID:   line.AccountID,
			Debit:       line.Credit,
			Credit:      line.Debit,
			BranchID:    line.BranchID,
			Description: line.Description,
		})
	}
	return out
}

func toJournalLines(entryID int64, lines []PostingLineInput, ts time.Time) []JournalLine {
	out := make([]JournalLine, 0, len(lines))
	for _, line := range lines {
		out = append(out, JournalLine{
			EntryID:     entryID,
			AccountID:   line.AccountID,
			Debit:       line.Debit,
			Credit:      line.Credit,
			BranchID:    line.BranchID,
			Description: line.Description,
			CreatedAt:   ts,
			UpdatedAt:   ts,
		})
	}
	return out
}

func defaultReversalMemo(memo string, number int64) string {
	if memo != "" {
		return memo
	}
	return fmt.Sprintf("Reversal of JE %d", number)
}
