package inventory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/nusantara-erp/ledger-core/internal/shared"
)

type fakeInventoryRepo struct {
	mu           sync.Mutex
	stocks       map[string]Stock
	movements    []Movement
	nextID       int64
	stockInserts int
	failMovement func(Movement) error
}

func newFakeInventoryRepo() *fakeInventoryRepo {
	return &fakeInventoryRepo{stocks: make(map[string]Stock)}
}

func stockMapKey(key StockKey) string {
	rack := "-"
	if key.RackID != nil {
		rack = fmt.Sprintf("%d", *key.RackID)
	}
	return fmt.Sprintf("%d:%d:%s", key.ProductID, key.WarehouseID, rack)
}

func (r *fakeInventoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stocksSnap := maps.Clone(r.stocks)
	movementsSnap := slices.Clone(r.movements)
	idSnap := r.nextID
	insertsSnap := r.stockInserts
	if err := fn(ctx, (*fakeInventoryTx)(r)); err != nil {
		r.stocks = stocksSnap
		r.movements = movementsSnap
		r.nextID = idSnap
		r.stockInserts = insertsSnap
		return err
	}
	return nil
}

func (r *fakeInventoryRepo) GetStock(ctx context.Context, key StockKey) (Stock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stock, ok := r.stocks[stockMapKey(key)]
	if !ok {
		return Stock{}, ErrStockNotFound
	}
	return stock, nil
}

func (r *fakeInventoryRepo) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Movement
	for _, m := range r.movements {
		if m.ProductID == filter.ProductID && m.WarehouseID == filter.WarehouseID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *fakeInventoryRepo) SumMovements(ctx context.Context, key StockKey) (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var sum float64
	for _, m := range r.movements {
		mk := stockMapKey(StockKey{ProductID: m.ProductID, WarehouseID: m.WarehouseID, RackID: m.RackID})
		if mk == stockMapKey(key) {
			sum += m.Qty
		}
	}
	return sum, nil
}

type fakeInventoryTx fakeInventoryRepo

func (t *fakeInventoryTx) GetStockForUpdate(ctx context.Context, key StockKey) (Stock, error) {
	stock, ok := t.stocks[stockMapKey(key)]
	if !ok {
		return Stock{}, ErrStockNotFound
	}
	return stock, nil
}

func (t *fakeInventoryTx) InsertMovement(ctx context.Context, m Movement) (int64, error) {
	if t.failMovement != nil {
		if err := t.failMovement(m); err != nil {
			return 0, err
		}
	}
	t.nextID++
	m.ID = t.nextID
	t.movements = append(t.movements, m)
	return m.ID, nil
}

func (t *fakeInventoryTx) InsertStock(ctx context.Context, stock Stock) error {
	k := stockMapKey(StockKey{ProductID: stock.ProductID, WarehouseID: stock.WarehouseID, RackID: stock.RackID})
	if _, ok := t.stocks[k]; ok {
		return fmt.Errorf("duplicate stock row %s", k)
	}
	t.stockInserts++
	t.stocks[k] = stock
	return nil
}

func (t *fakeInventoryTx) UpdateStock(ctx context.Context, stock Stock) error {
	k := stockMapKey(StockKey{ProductID: stock.ProductID, WarehouseID: stock.WarehouseID, RackID: stock.RackID})
	if _, ok := t.stocks[k]; !ok {
		return ErrStockNotFound
	}
	t.stocks[k] = stock
	return nil
}

func newInventoryService(repo *fakeInventoryRepo, allowNeg bool) *Service {
	svc := NewService(repo, nil, nil, ServiceConfig{AllowNegativeStock: allowNeg})
	svc.WithNow(func() time.Time { return time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC) })
	return svc
}

func movementInput(t MovementType, qty float64) MovementInput {
	return MovementInput{
		ProductID:   11,
		WarehouseID: 3,
		Type:        t,
		Qty:         qty,
		Value:       decimal.NewFromInt(1000),
		SourceKind:  "COMPLETION",
		SourceID:    77,
		ActorID:     5,
	}
}

func TestRecordUpdatesStockInStep(t *testing.T) {
	repo := newFakeInventoryRepo()
	svc := newInventoryService(repo, false)
	ctx := context.Background()

	in := movementInput(MovementManufactureIn, 100)
	_, err := svc.Record(ctx, in)
	require.NoError(t, err)

	out := movementInput(MovementManufactureOut, 30)
	out.SourceID = 78
	_, err = svc.Record(ctx, out)
	require.NoError(t, err)

	stock, err := svc.GetStock(ctx, StockKey{ProductID: 11, WarehouseID: 3})
	require.NoError(t, err)
	require.InDelta(t, 70, stock.QtyAvailable, 1e-9)

	movements, err := svc.ListMovements(ctx, MovementFilter{ProductID: 11, WarehouseID: 3})
	require.NoError(t, err)
	require.Len(t, movements, 2)
	require.InDelta(t, 100, movements[0].Qty, 1e-9)
	require.InDelta(t, -30, movements[1].Qty, 1e-9)
}

func TestRecordRejectsNegativeStock(t *testing.T) {
	repo := newFakeInventoryRepo()
	svc := newInventoryService(repo, false)
	ctx := context.Background()

	_, err := svc.Record(ctx, movementInput(MovementManufactureIn, 10))
	require.NoError(t, err)

	out := movementInput(MovementManufactureOut, 11)
	out.SourceID = 78
	_, err = svc.Record(ctx, out)
	require.ErrorIs(t, err, ErrNegativeStock)

	stock, err := svc.GetStock(ctx, StockKey{ProductID: 11, WarehouseID: 3})
	require.NoError(t, err)
	require.InDelta(t, 10, stock.QtyAvailable, 1e-9, "failed movement must not touch the cache")
	require.Len(t, repo.movements, 1, "failed movement must not append a ledger row")
}

func TestRecordAllowsNegativeWhenConfigured(t *testing.T) {
	repo := newFakeInventoryRepo()
	svc := newInventoryService(repo, true)
	ctx := context.Background()

	out := movementInput(MovementManufactureOut, 5)
	_, err := svc.Record(ctx, out)
	require.NoError(t, err)

	stock, err := svc.GetStock(ctx, StockKey{ProductID: 11, WarehouseID: 3})
	require.NoError(t, err)
	require.InDelta(t, -5, stock.QtyAvailable, 1e-9)
}

func TestRecordRejectsInvalidInput(t *testing.T) {
	svc := newInventoryService(newFakeInventoryRepo(), false)
	ctx := context.Background()

	_, err := svc.Record(ctx, movementInput(MovementManufactureIn, 0))
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = svc.Record(ctx, movementInput("evaporation", 5))
	require.ErrorIs(t, err, ErrUnknownMovement)
}

func TestTransferMovesBothLegs(t *testing.T) {
	repo := newFakeInventoryRepo()
	svc := newInventoryService(repo, false)
	ctx := context.Background()

	seed := movementInput(MovementAdjustmentIn, 50)
	seed.WarehouseID = 1
	_, err := svc.Record(ctx, seed)
	require.NoError(t, err)

	out, in, err := svc.Transfer(ctx, TransferInput{
		ProductID:    11,
		SrcWarehouse: 1,
		DstWarehouse: 2,
		Qty:          20,
		Value:        decimal.NewFromInt(500),
		SourceID:     91,
		ActorID:      5,
	})
	require.NoError(t, err)
	require.InDelta(t, -20, out.Qty, 1e-9)
	require.InDelta(t, 20, in.Qty, 1e-9)

	src, err := svc.GetStock(ctx, StockKey{ProductID: 11, WarehouseID: 1})
	require.NoError(t, err)
	require.InDelta(t, 30, src.QtyAvailable, 1e-9)

	dst, err := svc.GetStock(ctx, StockKey{ProductID: 11, WarehouseID: 2})
	require.NoError(t, err)
	require.InDelta(t, 20, dst.QtyAvailable, 1e-9)
}

func TestTransferFailsWhenSourceShort(t *testing.T) {
	repo := newFakeInventoryRepo()
	svc := newInventoryService(repo, false)
	ctx := context.Background()

	_, _, err := svc.Transfer(ctx, TransferInput{
		ProductID:    11,
		SrcWarehouse: 1,
		DstWarehouse: 2,
		Qty:          20,
		SourceID:     91,
	})
	require.ErrorIs(t, err, ErrNegativeStock)
	require.Empty(t, repo.movements, "neither leg may be written")
}

func TestTransferRollsBackWhenDestinationFails(t *testing.T) {
	repo := newFakeInventoryRepo()
	svc := newInventoryService(repo, false)
	ctx := context.Background()

	seed := movementInput(MovementAdjustmentIn, 100)
	seed.WarehouseID = 1
	_, err := svc.Record(ctx, seed)
	require.NoError(t, err)

	repo.failMovement = func(m Movement) error {
		if m.Type == MovementTransferIn {
			return fmt.Errorf("destination write refused")
		}
		return nil
	}
	input := TransferInput{
		ProductID:    11,
		SrcWarehouse: 1,
		DstWarehouse: 2,
		Qty:          40,
		SourceID:     91,
		ActorID:      5,
	}
	_, _, err = svc.Transfer(ctx, input)
	require.ErrorContains(t, err, "destination write refused")

	src, err := svc.GetStock(ctx, StockKey{ProductID: 11, WarehouseID: 1})
	require.NoError(t, err)
	require.InDelta(t, 100, src.QtyAvailable, 1e-9, "outbound leg must roll back with the inbound one")
	require.Len(t, repo.movements, 1, "only the seed movement may remain")

	// The failed attempt must not poison a retry.
	repo.failMovement = nil
	out, in, err := svc.Transfer(ctx, input)
	require.NoError(t, err)
	require.InDelta(t, -40, out.Qty, 1e-9)
	require.InDelta(t, 40, in.Qty, 1e-9)
}

func TestNullRackKeepsSingleCacheRow(t *testing.T) {
	repo := newFakeInventoryRepo()
	svc := newInventoryService(repo, false)
	ctx := context.Background()

	_, err := svc.Record(ctx, movementInput(MovementManufactureIn, 10))
	require.NoError(t, err)

	second := movementInput(MovementManufactureIn, 15)
	second.SourceID = 78
	_, err = svc.Record(ctx, second)
	require.NoError(t, err)

	require.Equal(t, 1, repo.stockInserts, "second movement must update the existing row")
	require.Len(t, repo.stocks, 1)
	stock, err := svc.GetStock(ctx, StockKey{ProductID: 11, WarehouseID: 3})
	require.NoError(t, err)
	require.InDelta(t, 25, stock.QtyAvailable, 1e-9)
}

func TestStockNotFoundCarriesContext(t *testing.T) {
	require.ErrorIs(t, ErrStockNotFound, shared.ErrNotFound)
	require.ErrorContains(t, ErrStockNotFound, "stock")
}

func TestReserveLimitedByAvailable(t *testing.T) {
	repo := newFakeInventoryRepo()
	svc := newInventoryService(repo, false)
	ctx := context.Background()

	_, err := svc.Record(ctx, movementInput(MovementManufactureIn, 10))
	require.NoError(t, err)

	key := StockKey{ProductID: 11, WarehouseID: 3}
	stock, err := svc.Reserve(ctx, key, 6, 5)
	require.NoError(t, err)
	require.InDelta(t, 6, stock.QtyReserved, 1e-9)

	_, err = svc.Reserve(ctx, key, 5, 5)
	require.ErrorIs(t, err, ErrInsufficientStock)

	stock, err = svc.Release(ctx, key, 6, 5)
	require.NoError(t, err)
	require.InDelta(t, 0, stock.QtyReserved, 1e-9)
}

func TestVerifyDetectsDrift(t *testing.T) {
	repo := newFakeInventoryRepo()
	svc := newInventoryService(repo, false)
	ctx := context.Background()

	_, err := svc.Record(ctx, movementInput(MovementManufactureIn, 40))
	require.NoError(t, err)

	key := StockKey{ProductID: 11, WarehouseID: 3}
	require.NoError(t, svc.Verify(ctx, key))

	// Corrupt the cache behind the service's back.
	repo.mu.Lock()
	stock := repo.stocks[stockMapKey(key)]
	stock.QtyAvailable = 35
	repo.stocks[stockMapKey(key)] = stock
	repo.mu.Unlock()

	err = svc.Verify(ctx, key)
	require.ErrorIs(t, err, shared.ErrConsistency)

	rebuilt, err := svc.Rebuild(ctx, key, 5)
	require.NoError(t, err)
	require.InDelta(t, 40, rebuilt.QtyAvailable, 1e-9)
	require.NoError(t, svc.Verify(ctx, key))
}

func TestVerifyMissingStockWithMovementsFails(t *testing.T) {
	repo := newFakeInventoryRepo()
	svc := newInventoryService(repo, false)
	ctx := context.Background()

	key := StockKey{ProductID: 99, WarehouseID: 1}
	require.NoError(t, svc.Verify(ctx, key), "no movements and no cache is consistent")
}
