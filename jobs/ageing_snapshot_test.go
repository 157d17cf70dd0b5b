package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/nusantara-erp/ledger-core/internal/ageing"
)

type stubAgeingRepo struct {
	items []ageing.OpenItem
}

func (r *stubAgeingRepo) ListOpenItems(ctx context.Context, side ageing.Side) ([]ageing.OpenItem, error) {
	return r.items, nil
}

func TestAgeingSnapshotStoresSchedule(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := &stubAgeingRepo{items: []ageing.OpenItem{
		{ID: 1, DueDate: time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), Outstanding: decimal.NewFromInt(250)},
		{ID: 2, DueDate: time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), Outstanding: decimal.NewFromInt(100)},
	}}
	svc := ageing.NewService(repo)
	asOf := time.Date(2024, 3, 15, 6, 0, 0, 0, time.UTC)

	handler := NewAgeingSnapshotHandler(AgeingSnapshotDeps{
		Service: svc,
		Redis:   client,
		Logger:  slog.Default(),
		Now:     func() time.Time { return asOf },
	})

	task, err := NewAgeingSnapshotTask(AgeingSnapshotPayload{Side: string(ageing.SideReceivable)})
	require.NoError(t, err)
	require.NoError(t, handler(context.Background(), task))

	raw, err := client.Get(context.Background(), SnapshotKey(ageing.SideReceivable, asOf)).Result()
	require.NoError(t, err)

	var schedule ageing.Schedule
	require.NoError(t, json.Unmarshal([]byte(raw), &schedule))
	require.Equal(t, ageing.SideReceivable, schedule.Side)
	require.True(t, schedule.Overall.Equal(decimal.NewFromInt(350)))
	require.True(t, schedule.Totals[ageing.Bucket31To60].Equal(decimal.NewFromInt(250)))
	require.True(t, schedule.Totals[ageing.BucketCurrent].Equal(decimal.NewFromInt(100)))
}

func TestAgeingSnapshotRejectsUnknownSide(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	handler := NewAgeingSnapshotHandler(AgeingSnapshotDeps{
		Service: ageing.NewService(&stubAgeingRepo{}),
		Redis:   client,
		Logger:  slog.Default(),
	})

	task, err := NewAgeingSnapshotTask(AgeingSnapshotPayload{Side: "overdue"})
	require.NoError(t, err)
	require.Error(t, handler(context.Background(), task))
	require.Empty(t, mr.Keys())
}
