package documents

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/nusantara-erp/ledger-core/internal/ledger"
	"github.com/nusantara-erp/ledger-core/internal/shared"
)

// PostingPort is the slice of the journal service documents depend on.
type PostingPort interface {
	Post(ctx context.Context, input ledger.PostingInput) (ledger.JournalEntry, error)
	Reverse(ctx context.Context, input ledger.ReverseInput) (ledger.JournalEntry, error)
	GetBySource(ctx context.Context, ref ledger.SourceRef) (ledger.JournalEntry, error)
}

// AuditPort records lifecycle actions.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service drives the document lifecycle. Approval is the single place a
// document reaches the journal; everything before it is a mutation of the
// draft row only.
type Service struct {
	repo    Repository
	posting PostingPort
	audit   AuditPort
	now     func() time.Time
}

// NewService wires the document service.
func NewService(repo Repository, posting PostingPort, audit AuditPort) *Service {
	return &Service{repo: repo, posting: posting, audit: audit, now: time.Now}
}

// WithNow overrides the clock.
func (s *Service) WithNow(now func() time.Time) { s.now = now }

// Create stores a new draft.
func (s *Service) Create(ctx context.Context, in CreateInput) (Document, error) {
	if err := in.Validate(); err != nil {
		return Document{}, err
	}
	if in.DueDate.IsZero() {
		in.DueDate = in.Date
	}
	doc := Document{
		UUID:            uuid.New(),
		Kind:            in.Kind,
		Number:          in.Number,
		PartyID:         in.PartyID,
		BranchID:        in.BranchID,
		DebitAccountID:  in.DebitAccountID,
		CreditAccountID: in.CreditAccountID,
		Amount:          in.Amount,
		Date:            in.Date,
		DueDate:         in.DueDate,
		Memo:            in.Memo,
		Status:          StateDraft,
		CreatedBy:       in.Actor.ID,
	}
	if err := s.repo.Create(ctx, &doc); err != nil {
		return Document{}, err
	}
	s.record(ctx, in.Actor.ID, "documents.create", doc)
	return doc, nil
}

// Submit moves a draft into the approval queue.
func (s *Service) Submit(ctx context.Context, id int64, actor shared.Actor) (Document, error) {
	return s.transition(ctx, id, ActionSubmit, actor, nil)
}

// Reject closes a pending document without posting. A rejected document is
// terminal; it can never be approved or resubmitted.
func (s *Service) Reject(ctx context.Context, id int64, actor shared.Actor) (Document, error) {
	return s.transition(ctx, id, ActionReject, actor, nil)
}

// Approve moves a pending document to approved and posts its journal batch.
// The batch is linked to the document through the ledger source registry, so
// re-running an interrupted approval finds the existing batch instead of
// posting a second one.
func (s *Service) Approve(ctx context.Context, id int64, actor shared.Actor) (Document, error) {
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return Document{}, err
	}
	next, err := Next(doc.Status, ActionApprove)
	if err != nil {
		return Document{}, err
	}

	entry, err := s.posting.Post(ctx, s.postingInput(doc, actor))
	if errors.Is(err, ledger.ErrAlreadyPosted) {
		// A previous approval posted the batch but crashed before the
		// status advanced. Recover the entry and finish the transition.
		entry, err = s.posting.GetBySource(ctx, ledger.SourceRef{
			Kind: doc.Kind.SourceKind(),
			ID:   doc.ID,
		})
	}
	if err != nil {
		return Document{}, err
	}

	if err := s.repo.Transition(ctx, doc.ID, doc.Status, next, &actor.ID, &entry.ID); err != nil {
		return Document{}, err
	}
	doc.Status = next
	doc.ApprovedBy = &actor.ID
	doc.JournalEntryID = &entry.ID
	s.record(ctx, actor.ID, "documents.approve", doc)
	return doc, nil
}

// Reverse undoes an approved document by posting the mirror batch and
// marking the document reversed.
func (s *Service) Reverse(ctx context.Context, id int64, actor shared.Actor, memo string) (Document, error) {
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return Document{}, err
	}
	next, err := Next(doc.Status, ActionReverse)
	if err != nil {
		return Document{}, err
	}
	if doc.JournalEntryID == nil {
		return Document{}, shared.Consistencyf("approved document %d has no journal entry", doc.ID)
	}

	if _, err := s.posting.Reverse(ctx, ledger.ReverseInput{
		EntryID: *doc.JournalEntryID,
		ActorID: actor.ID,
		Date:    s.now(),
		Memo:    memo,
	}); err != nil && !errors.Is(err, ledger.ErrAlreadyReversed) {
		return Document{}, err
	}

	if err := s.repo.Transition(ctx, doc.ID, doc.Status, next, nil, nil); err != nil {
		return Document{}, err
	}
	doc.Status = next
	s.record(ctx, actor.ID, "documents.reverse", doc)
	return doc, nil
}

// Get fetches one document by its internal id.
func (s *Service) Get(ctx context.Context, id int64) (Document, error) {
	return s.repo.Get(ctx, id)
}

// GetByUUID fetches one document by its public identifier.
func (s *Service) GetByUUID(ctx context.Context, id uuid.UUID) (Document, error) {
	return s.repo.GetByUUID(ctx, id)
}

// List returns documents matching the filter, newest first.
func (s *Service) List(ctx context.Context, f Filter) ([]Document, error) {
	if f.Page.Limit <= 0 {
		f.Page.Limit = 50
	}
	return s.repo.List(ctx, f)
}

func (s *Service) transition(ctx context.Context, id int64, action Action, actor shared.Actor, journalEntryID *int64) (Document, error) {
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return Document{}, err
	}
	next, err := Next(doc.Status, action)
	if err != nil {
		return Document{}, err
	}
	if err := s.repo.Transition(ctx, doc.ID, doc.Status, next, nil, journalEntryID); err != nil {
		return Document{}, err
	}
	doc.Status = next
	s.record(ctx, actor.ID, "documents."+string(action), doc)
	return doc, nil
}

// postingInput builds the two-line balanced batch for a document. Payment
// documents debit the expense or payable side and credit cash; other sales
// debit the receivable side and credit revenue. The account pair is chosen
// when the document is drafted.
func (s *Service) postingInput(doc Document, actor shared.Actor) ledger.PostingInput {
	return ledger.PostingInput{
		Date:     doc.Date,
		Type:     doc.Kind.JournalType(),
		Source:   ledger.SourceRef{Kind: doc.Kind.SourceKind(), ID: doc.ID},
		Memo:     doc.Memo,
		PostedBy: actor.ID,
		Lines: []ledger.PostingLineInput{
			{AccountID: doc.DebitAccountID, Debit: doc.Amount, BranchID: doc.BranchID, Description: doc.Number},
			{AccountID: doc.CreditAccountID, Credit: doc.Amount, BranchID: doc.BranchID, Description: doc.Number},
		},
	}
}

func (s *Service) record(ctx context.Context, actorID int64, action string, doc Document) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "document",
		EntityID: doc.UUID.String(),
		Meta: map[string]any{
			"kind":   string(doc.Kind),
			"number": doc.Number,
			"status": string(doc.Status),
		},
	})
}
