package reconciliation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakeLine struct {
	accountID int64
	date      time.Time
	amount    decimal.Decimal
	claimedBy *int64
}

type fakeReconRepo struct {
	mu     sync.Mutex
	recons map[int64]Reconciliation
	lines  map[int64]*fakeLine
	nextID int64
}

func newFakeReconRepo() *fakeReconRepo {
	return &fakeReconRepo{
		recons: make(map[int64]Reconciliation),
		lines:  make(map[int64]*fakeLine),
	}
}

func (r *fakeReconRepo) addLine(id, accountID int64, date time.Time, amount int64) {
	r.lines[id] = &fakeLine{accountID: accountID, date: date, amount: decimal.NewFromInt(amount)}
}

func (r *fakeReconRepo) Open(ctx context.Context, in OpenInput) (Reconciliation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	recon := Reconciliation{
		ID:               r.nextID,
		AccountID:        in.AccountID,
		PeriodStart:      in.PeriodStart,
		PeriodEnd:        in.PeriodEnd,
		StatementBalance: in.StatementBalance,
		BookBalance:      decimal.Zero,
		Difference:       in.StatementBalance,
		Status:           StatusOpen,
	}
	r.recons[recon.ID] = recon
	return recon, nil
}

func (r *fakeReconRepo) Get(ctx context.Context, id int64) (Reconciliation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	recon, ok := r.recons[id]
	if !ok {
		return Reconciliation{}, ErrReconNotFound
	}
	return recon, nil
}

func (r *fakeReconRepo) List(ctx context.Context, accountID int64) ([]Reconciliation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Reconciliation
	for _, recon := range r.recons {
		if recon.AccountID == accountID {
			out = append(out, recon)
		}
	}
	return out, nil
}

func (r *fakeReconRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(ctx, (*fakeReconTx)(r))
}

type fakeReconTx fakeReconRepo

func (t *fakeReconTx) GetForUpdate(ctx context.Context, id int64) (Reconciliation, error) {
	recon, ok := t.recons[id]
	if !ok {
		return Reconciliation{}, ErrReconNotFound
	}
	return recon, nil
}

func (t *fakeReconTx) CountLinesInScope(ctx context.Context, recon Reconciliation, lineIDs []int64) (int, error) {
	count := 0
	for _, id := range lineIDs {
		line, ok := t.lines[id]
		if !ok {
			continue
		}
		if line.accountID == recon.AccountID &&
			!line.date.Before(recon.PeriodStart) && !line.date.After(recon.PeriodEnd) {
			count++
		}
	}
	return count, nil
}

func (t *fakeReconTx) ClaimLines(ctx context.Context, reconID int64, lineIDs []int64) (int, error) {
	claimed := 0
	for _, id := range lineIDs {
		line := t.lines[id]
		if line.claimedBy == nil {
			owner := reconID
			line.claimedBy = &owner
			claimed++
		}
	}
	return claimed, nil
}

func (t *fakeReconTx) ReleaseLine(ctx context.Context, reconID, lineID int64) error {
	line, ok := t.lines[lineID]
	if !ok || line.claimedBy == nil || *line.claimedBy != reconID {
		return ErrLineOutside
	}
	line.claimedBy = nil
	return nil
}

func (t *fakeReconTx) BookBalance(ctx context.Context, recon Reconciliation) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, line := range t.lines {
		claimed := line.claimedBy != nil && *line.claimedBy == recon.ID
		prior := line.accountID == recon.AccountID && line.date.Before(recon.PeriodStart)
		if claimed || prior {
			sum = sum.Add(line.amount)
		}
	}
	return sum, nil
}

func (t *fakeReconTx) Update(ctx context.Context, recon Reconciliation) error {
	t.recons[recon.ID] = recon
	return nil
}

func openRecon(t *testing.T, svc *Service, repo *fakeReconRepo, statement int64) Reconciliation {
	t.Helper()
	recon, err := svc.Open(context.Background(), OpenInput{
		AccountID:        10,
		PeriodStart:      time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:        time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
		StatementBalance: decimal.NewFromInt(statement),
		ActorID:          5,
	})
	require.NoError(t, err)
	return recon
}

func TestClaimLinesRecomputesBalance(t *testing.T) {
	repo := newFakeReconRepo()
	repo.addLine(1, 10, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), 600)
	repo.addLine(2, 10, time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC), 400)
	svc := NewService(repo, nil, decimal.Zero)

	recon := openRecon(t, svc, repo, 1000)
	updated, err := svc.ClaimLines(context.Background(), recon.ID, []int64{1, 2}, 5)
	require.NoError(t, err)
	require.True(t, updated.BookBalance.Equal(decimal.NewFromInt(1000)))
	require.True(t, updated.Difference.IsZero())
}

func TestClaimIsExclusive(t *testing.T) {
	repo := newFakeReconRepo()
	repo.addLine(1, 10, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), 600)
	svc := NewService(repo, nil, decimal.Zero)

	first := openRecon(t, svc, repo, 600)
	second := openRecon(t, svc, repo, 600)

	_, err := svc.ClaimLines(context.Background(), first.ID, []int64{1}, 5)
	require.NoError(t, err)

	_, err = svc.ClaimLines(context.Background(), second.ID, []int64{1}, 5)
	require.ErrorIs(t, err, ErrLineClaimed)
}

func TestClaimRejectsLineOutsideScope(t *testing.T) {
	repo := newFakeReconRepo()
	repo.addLine(1, 99, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), 600)
	repo.addLine(2, 10, time.Date(2024, 5, 5, 0, 0, 0, 0, time.UTC), 600)
	svc := NewService(repo, nil, decimal.Zero)

	recon := openRecon(t, svc, repo, 600)
	_, err := svc.ClaimLines(context.Background(), recon.ID, []int64{1}, 5)
	require.ErrorIs(t, err, ErrLineOutside, "wrong account")

	_, err = svc.ClaimLines(context.Background(), recon.ID, []int64{2}, 5)
	require.ErrorIs(t, err, ErrLineOutside, "outside the period")
}

func TestReleaseReturnsLineToPool(t *testing.T) {
	repo := newFakeReconRepo()
	repo.addLine(1, 10, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), 600)
	svc := NewService(repo, nil, decimal.Zero)

	first := openRecon(t, svc, repo, 600)
	_, err := svc.ClaimLines(context.Background(), first.ID, []int64{1}, 5)
	require.NoError(t, err)

	updated, err := svc.ReleaseLine(context.Background(), first.ID, 1, 5)
	require.NoError(t, err)
	require.True(t, updated.BookBalance.IsZero())

	second := openRecon(t, svc, repo, 600)
	_, err = svc.ClaimLines(context.Background(), second.ID, []int64{1}, 5)
	require.NoError(t, err)
}

func TestCloseWithinTolerance(t *testing.T) {
	repo := newFakeReconRepo()
	repo.addLine(1, 10, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), 995)
	svc := NewService(repo, nil, decimal.NewFromInt(5))
	svc.WithNow(func() time.Time { return time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC) })

	recon := openRecon(t, svc, repo, 1000)
	_, err := svc.ClaimLines(context.Background(), recon.ID, []int64{1}, 5)
	require.NoError(t, err)

	closed, err := svc.Close(context.Background(), recon.ID, 5)
	require.NoError(t, err)
	require.Equal(t, StatusClosed, closed.Status)
	require.NotNil(t, closed.ClosedAt)
	require.True(t, closed.Difference.Equal(decimal.NewFromInt(5)))
}

func TestCloseRejectsExcessDifference(t *testing.T) {
	repo := newFakeReconRepo()
	repo.addLine(1, 10, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), 900)
	svc := NewService(repo, nil, decimal.Zero)

	recon := openRecon(t, svc, repo, 1000)
	_, err := svc.ClaimLines(context.Background(), recon.ID, []int64{1}, 5)
	require.NoError(t, err)

	_, err = svc.Close(context.Background(), recon.ID, 5)
	require.ErrorIs(t, err, ErrNotBalanced)

	stored, err := svc.Get(context.Background(), recon.ID)
	require.NoError(t, err)
	require.Equal(t, StatusOpen, stored.Status)
}

func TestClosedReconciliationIsImmutable(t *testing.T) {
	repo := newFakeReconRepo()
	repo.addLine(1, 10, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), 1000)
	repo.addLine(2, 10, time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC), 50)
	svc := NewService(repo, nil, decimal.Zero)

	recon := openRecon(t, svc, repo, 1000)
	_, err := svc.ClaimLines(context.Background(), recon.ID, []int64{1}, 5)
	require.NoError(t, err)

	_, err = svc.Close(context.Background(), recon.ID, 5)
	require.NoError(t, err)

	_, err = svc.ClaimLines(context.Background(), recon.ID, []int64{2}, 5)
	require.ErrorIs(t, err, ErrReconClosed)

	_, err = svc.ReleaseLine(context.Background(), recon.ID, 1, 5)
	require.ErrorIs(t, err, ErrReconClosed)
}

func TestBookBalanceIncludesPriorPeriodLines(t *testing.T) {
	repo := newFakeReconRepo()
	repo.addLine(1, 10, time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC), 300)
	repo.addLine(2, 10, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), 700)
	svc := NewService(repo, nil, decimal.Zero)

	recon := openRecon(t, svc, repo, 1000)
	updated, err := svc.ClaimLines(context.Background(), recon.ID, []int64{2}, 5)
	require.NoError(t, err)
	require.True(t, updated.BookBalance.Equal(decimal.NewFromInt(1000)), "opening balance carries prior-period lines")
}
