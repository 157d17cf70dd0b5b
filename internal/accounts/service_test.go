package accounts

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nusantara-erp/ledger-core/internal/shared"
)

type fakeAccountRepo struct {
	accounts map[int64]Account
	byCode   map[string]int64
	nextID   int64
}

func newFakeAccountRepo() *fakeAccountRepo {
	return &fakeAccountRepo{
		accounts: make(map[int64]Account),
		byCode:   make(map[string]int64),
	}
}

func (r *fakeAccountRepo) Create(ctx context.Context, account Account) (Account, error) {
	if _, exists := r.byCode[account.Code]; exists {
		return Account{}, ErrDuplicateCode
	}
	r.nextID++
	account.ID = r.nextID
	r.accounts[account.ID] = account
	r.byCode[account.Code] = account.ID
	return account, nil
}

func (r *fakeAccountRepo) Update(ctx context.Context, account Account) (Account, error) {
	if _, ok := r.accounts[account.ID]; !ok {
		return Account{}, ErrAccountNotFound
	}
	r.accounts[account.ID] = account
	return account, nil
}

func (r *fakeAccountRepo) Get(ctx context.Context, id int64) (Account, error) {
	account, ok := r.accounts[id]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return account, nil
}

func (r *fakeAccountRepo) GetByCode(ctx context.Context, code string) (Account, error) {
	id, ok := r.byCode[code]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return r.accounts[id], nil
}

func (r *fakeAccountRepo) List(ctx context.Context) ([]Account, error) {
	out := make([]Account, 0, len(r.accounts))
	for _, a := range r.accounts {
		out = append(out, a)
	}
	return out, nil
}

func (r *fakeAccountRepo) HasActiveChildren(ctx context.Context, id int64) (bool, error) {
	for _, a := range r.accounts {
		if a.ParentID != nil && *a.ParentID == id && a.IsActive {
			return true, nil
		}
	}
	return false, nil
}

func mustCreate(t *testing.T, svc *Service, code string, typ AccountType, parentID *int64) Account {
	t.Helper()
	account, err := svc.Create(context.Background(), CreateInput{
		Code: code, Name: "account " + code, Type: typ, ParentID: parentID,
	})
	require.NoError(t, err)
	return account
}

func TestCreateValidatesCode(t *testing.T) {
	svc := NewService(newFakeAccountRepo())

	for _, code := range []string{"", "abc", "1.1a", "1..2", ".1"} {
		_, err := svc.Create(context.Background(), CreateInput{Code: code, Name: "x", Type: AccountTypeAsset})
		require.ErrorIs(t, err, shared.ErrValidation, "code %q", code)
	}

	_, err := svc.Create(context.Background(), CreateInput{Code: "1.1.20", Name: "Kas", Type: AccountTypeAsset})
	require.NoError(t, err)
}

func TestCreateRejectsDuplicateCode(t *testing.T) {
	svc := NewService(newFakeAccountRepo())
	mustCreate(t, svc, "1.1", AccountTypeAsset, nil)

	_, err := svc.Create(context.Background(), CreateInput{Code: "1.1", Name: "again", Type: AccountTypeAsset})
	require.ErrorIs(t, err, ErrDuplicateCode)
}

func TestCreateChildTypeMustMatchParent(t *testing.T) {
	svc := NewService(newFakeAccountRepo())
	parent := mustCreate(t, svc, "1", AccountTypeAsset, nil)

	_, err := svc.Create(context.Background(), CreateInput{
		Code: "1.1", Name: "child", Type: AccountTypeRevenue, ParentID: &parent.ID,
	})
	require.ErrorIs(t, err, ErrTypeMismatch)
}

func TestCreateUnderInactiveParentRejected(t *testing.T) {
	svc := NewService(newFakeAccountRepo())
	parent := mustCreate(t, svc, "1", AccountTypeAsset, nil)
	_, err := svc.Deactivate(context.Background(), parent.ID)
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), CreateInput{
		Code: "1.1", Name: "child", Type: AccountTypeAsset, ParentID: &parent.ID,
	})
	require.ErrorIs(t, err, ErrInactiveParent)
}

func TestDeactivateRefusesActiveChildren(t *testing.T) {
	svc := NewService(newFakeAccountRepo())
	parent := mustCreate(t, svc, "1", AccountTypeAsset, nil)
	child := mustCreate(t, svc, "1.1", AccountTypeAsset, &parent.ID)

	_, err := svc.Deactivate(context.Background(), parent.ID)
	require.ErrorIs(t, err, ErrActiveChildren)

	_, err = svc.Deactivate(context.Background(), child.ID)
	require.NoError(t, err)

	deactivated, err := svc.Deactivate(context.Background(), parent.ID)
	require.NoError(t, err)
	require.False(t, deactivated.IsActive)
}

func TestReparentGuardsCycles(t *testing.T) {
	svc := NewService(newFakeAccountRepo())
	root := mustCreate(t, svc, "1", AccountTypeAsset, nil)
	mid := mustCreate(t, svc, "1.1", AccountTypeAsset, &root.ID)
	leaf := mustCreate(t, svc, "1.1.1", AccountTypeAsset, &mid.ID)

	_, err := svc.Reparent(context.Background(), root.ID, &leaf.ID)
	require.ErrorIs(t, err, ErrParentCycle)

	_, err = svc.Reparent(context.Background(), root.ID, &root.ID)
	require.ErrorIs(t, err, ErrParentCycle)

	moved, err := svc.Reparent(context.Background(), leaf.ID, &root.ID)
	require.NoError(t, err)
	require.Equal(t, root.ID, *moved.ParentID)
}

func TestReparentTypeMismatch(t *testing.T) {
	svc := NewService(newFakeAccountRepo())
	asset := mustCreate(t, svc, "1", AccountTypeAsset, nil)
	revenue := mustCreate(t, svc, "4", AccountTypeRevenue, nil)

	_, err := svc.Reparent(context.Background(), asset.ID, &revenue.ID)
	require.ErrorIs(t, err, ErrTypeMismatch)
}
