package documents

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/nusantara-erp/ledger-core/internal/ledger"
	"github.com/nusantara-erp/ledger-core/internal/shared"
)

type fakeDocRepo struct {
	mu     sync.Mutex
	docs   map[int64]Document
	nextID int64
}

func newFakeDocRepo() *fakeDocRepo {
	return &fakeDocRepo{docs: make(map[int64]Document)}
}

func (r *fakeDocRepo) Create(ctx context.Context, doc *Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	doc.ID = r.nextID
	r.docs[doc.ID] = *doc
	return nil
}

func (r *fakeDocRepo) Get(ctx context.Context, id int64) (Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return Document{}, ErrDocumentNotFound
	}
	return doc, nil
}

func (r *fakeDocRepo) GetByUUID(ctx context.Context, id uuid.UUID) (Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, doc := range r.docs {
		if doc.UUID == id {
			return doc, nil
		}
	}
	return Document{}, ErrDocumentNotFound
}

func (r *fakeDocRepo) List(ctx context.Context, f Filter) ([]Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Document
	for _, doc := range r.docs {
		if f.Kind != "" && doc.Kind != f.Kind {
			continue
		}
		if f.Status != "" && doc.Status != f.Status {
			continue
		}
		out = append(out, doc)
	}
	return out, nil
}

func (r *fakeDocRepo) Transition(ctx context.Context, id int64, from, to State, approvedBy *int64, journalEntryID *int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok || doc.Status != from {
		return ErrStaleDocument
	}
	doc.Status = to
	if approvedBy != nil {
		doc.ApprovedBy = approvedBy
	}
	if journalEntryID != nil {
		doc.JournalEntryID = journalEntryID
	}
	r.docs[id] = doc
	return nil
}

type fakePosting struct {
	mu       sync.Mutex
	posted   map[string]ledger.JournalEntry
	reversed map[int64]bool
	nextID   int64
	posts    int
}

func newFakePosting() *fakePosting {
	return &fakePosting{
		posted:   make(map[string]ledger.JournalEntry),
		reversed: make(map[int64]bool),
	}
}

func (p *fakePosting) key(ref ledger.SourceRef) string {
	return fmt.Sprintf("%s:%d", ref.Kind, ref.ID)
}

func (p *fakePosting) Post(ctx context.Context, input ledger.PostingInput) (ledger.JournalEntry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := input.Validate(decimal.Zero); err != nil {
		return ledger.JournalEntry{}, err
	}
	key := p.key(input.Source)
	if _, exists := p.posted[key]; exists {
		return ledger.JournalEntry{}, ledger.ErrAlreadyPosted
	}
	p.nextID++
	p.posts++
	entry := ledger.JournalEntry{
		ID:     p.nextID,
		Source: input.Source,
		Type:   input.Type,
		Status: ledger.EntryStatusPosted,
	}
	p.posted[key] = entry
	return entry, nil
}

func (p *fakePosting) Reverse(ctx context.Context, input ledger.ReverseInput) (ledger.JournalEntry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.reversed[input.EntryID] {
		return ledger.JournalEntry{}, ledger.ErrAlreadyReversed
	}
	p.reversed[input.EntryID] = true
	p.nextID++
	return ledger.JournalEntry{ID: p.nextID, Status: ledger.EntryStatusPosted}, nil
}

func (p *fakePosting) GetBySource(ctx context.Context, ref ledger.SourceRef) (ledger.JournalEntry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, ok := p.posted[p.key(ref)]
	if !ok {
		return ledger.JournalEntry{}, fmt.Errorf("%w: journal entry", shared.ErrNotFound)
	}
	return entry, nil
}

func actor() shared.Actor { return shared.Actor{ID: 9, Name: "approver"} }

func newDocService(t *testing.T) (*Service, *fakeDocRepo, *fakePosting) {
	t.Helper()
	repo := newFakeDocRepo()
	posting := newFakePosting()
	svc := NewService(repo, posting, nil)
	svc.WithNow(func() time.Time { return time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC) })
	return svc, repo, posting
}

func draftInput(kind Kind) CreateInput {
	return CreateInput{
		Kind:            kind,
		Number:          "PR-2024-0001",
		PartyID:         31,
		DebitAccountID:  501,
		CreditAccountID: 101,
		Amount:          decimal.NewFromInt(750_000),
		Date:            time.Date(2024, 5, 28, 0, 0, 0, 0, time.UTC),
		Actor:           actor(),
	}
}

func TestTransitionTable(t *testing.T) {
	cases := []struct {
		from   State
		action Action
		to     State
		ok     bool
	}{
		{StateDraft, ActionSubmit, StatePending, true},
		{StatePending, ActionApprove, StateApproved, true},
		{StatePending, ActionReject, StateRejected, true},
		{StateApproved, ActionReverse, StateReversed, true},
		{StateDraft, ActionApprove, "", false},
		{StateDraft, ActionReject, "", false},
		{StateRejected, ActionSubmit, "", false},
		{StateRejected, ActionApprove, "", false},
		{StateReversed, ActionReverse, "", false},
		{StateApproved, ActionApprove, "", false},
	}
	for _, tc := range cases {
		got, err := Next(tc.from, tc.action)
		if tc.ok {
			require.NoError(t, err, "%s + %s", tc.from, tc.action)
			require.Equal(t, tc.to, got)
		} else {
			require.ErrorIs(t, err, ErrInvalidTransition, "%s + %s", tc.from, tc.action)
		}
	}
}

func TestCreateValidatesDraft(t *testing.T) {
	svc, _, _ := newDocService(t)
	ctx := context.Background()

	in := draftInput(KindPaymentRequest)
	in.Amount = decimal.Zero
	_, err := svc.Create(ctx, in)
	require.ErrorIs(t, err, shared.ErrValidation)

	in = draftInput(KindPaymentRequest)
	in.CreditAccountID = in.DebitAccountID
	_, err = svc.Create(ctx, in)
	require.ErrorIs(t, err, shared.ErrValidation)

	in = draftInput("INVOICE")
	_, err = svc.Create(ctx, in)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestApprovalPostsExactlyOnce(t *testing.T) {
	svc, _, posting := newDocService(t)
	ctx := context.Background()

	doc, err := svc.Create(ctx, draftInput(KindPaymentRequest))
	require.NoError(t, err)
	require.Equal(t, StateDraft, doc.Status)

	doc, err = svc.Submit(ctx, doc.ID, actor())
	require.NoError(t, err)
	require.Equal(t, StatePending, doc.Status)

	doc, err = svc.Approve(ctx, doc.ID, actor())
	require.NoError(t, err)
	require.Equal(t, StateApproved, doc.Status)
	require.NotNil(t, doc.JournalEntryID)
	require.Equal(t, 1, posting.posts)

	_, err = svc.Approve(ctx, doc.ID, actor())
	require.ErrorIs(t, err, ErrInvalidTransition)
	require.Equal(t, 1, posting.posts, "re-approval must not post a second batch")
}

func TestApprovalRecoversFromInterruptedRun(t *testing.T) {
	svc, repo, posting := newDocService(t)
	ctx := context.Background()

	doc, err := svc.Create(ctx, draftInput(KindVendorPayment))
	require.NoError(t, err)
	doc, err = svc.Submit(ctx, doc.ID, actor())
	require.NoError(t, err)

	// Simulate a crash after the batch posted but before the document moved.
	pre, err := posting.Post(ctx, ledger.PostingInput{
		Date:     doc.Date,
		Type:     ledger.JournalTypePayment,
		Source:   ledger.SourceRef{Kind: ledger.SourceVendorPayment, ID: doc.ID},
		PostedBy: 9,
		Lines: []ledger.PostingLineInput{
			{AccountID: doc.DebitAccountID, Debit: doc.Amount},
			{AccountID: doc.CreditAccountID, Credit: doc.Amount},
		},
	})
	require.NoError(t, err)

	doc, err = svc.Approve(ctx, doc.ID, actor())
	require.NoError(t, err)
	require.Equal(t, StateApproved, doc.Status)
	require.Equal(t, pre.ID, *doc.JournalEntryID, "approval must adopt the existing batch")
	require.Equal(t, 1, posting.posts)

	stored, err := repo.Get(ctx, doc.ID)
	require.NoError(t, err)
	require.Equal(t, StateApproved, stored.Status)
}

func TestRejectBlocksApproval(t *testing.T) {
	svc, _, posting := newDocService(t)
	ctx := context.Background()

	doc, err := svc.Create(ctx, draftInput(KindOtherSale))
	require.NoError(t, err)
	doc, err = svc.Submit(ctx, doc.ID, actor())
	require.NoError(t, err)

	doc, err = svc.Reject(ctx, doc.ID, actor())
	require.NoError(t, err)
	require.Equal(t, StateRejected, doc.Status)

	_, err = svc.Approve(ctx, doc.ID, actor())
	require.ErrorIs(t, err, ErrInvalidTransition)
	require.Zero(t, posting.posts, "a rejected document never reaches the journal")

	_, err = svc.Submit(ctx, doc.ID, actor())
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestReverseApprovedDocument(t *testing.T) {
	svc, _, posting := newDocService(t)
	ctx := context.Background()

	doc, err := svc.Create(ctx, draftInput(KindOtherSale))
	require.NoError(t, err)
	doc, err = svc.Submit(ctx, doc.ID, actor())
	require.NoError(t, err)
	doc, err = svc.Approve(ctx, doc.ID, actor())
	require.NoError(t, err)

	entryID := *doc.JournalEntryID
	doc, err = svc.Reverse(ctx, doc.ID, actor(), "mispriced")
	require.NoError(t, err)
	require.Equal(t, StateReversed, doc.Status)
	require.True(t, posting.reversed[entryID])

	_, err = svc.Reverse(ctx, doc.ID, actor(), "")
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestReverseDraftRejected(t *testing.T) {
	svc, _, _ := newDocService(t)
	ctx := context.Background()

	doc, err := svc.Create(ctx, draftInput(KindPaymentRequest))
	require.NoError(t, err)

	_, err = svc.Reverse(ctx, doc.ID, actor(), "")
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestKindSourceMapping(t *testing.T) {
	require.Equal(t, ledger.SourcePaymentRequest, KindPaymentRequest.SourceKind())
	require.Equal(t, ledger.SourceVendorPayment, KindVendorPayment.SourceKind())
	require.Equal(t, ledger.SourceOtherSale, KindOtherSale.SourceKind())
	require.Equal(t, ledger.JournalTypeSales, KindOtherSale.JournalType())
	require.Equal(t, ledger.JournalTypePayment, KindPaymentRequest.JournalType())
}
