package reservation

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jatango/liveshop/internal/catalog"
	"github.com/jatango/liveshop/internal/ledger"
)

func newService(t *testing.T, stock int, ttl time.Duration) (*Service, *ledger.MemStore, *time.Time) {
	t.Helper()
	store := ledger.NewMemStore()
	store.PutProduct(&catalog.Product{ID: "prod", PriceCents: 1200, Stock: stock})

	clock := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	now := func() time.Time { return clock }
	store.SetNow(now)

	svc := &Service{
		Store:   store,
		TTL:     ttl,
		Service: "liveshop-test",
		Log:     zerolog.Nop(),
		Now:     now,
	}
	return svc, store, &clock
}

func TestReserveStampsTTL(t *testing.T) {
	svc, _, clock := newService(t, 5, 2*time.Minute)

	r, err := svc.Reserve(context.Background(), "buyer", "item-1", "prod", catalog.Selector{}, 2)
	require.NoError(t, err)
	assert.Equal(t, ledger.StateActive, r.State)
	assert.Equal(t, clock.Add(2*time.Minute), r.ExpiresAt)
}

func TestReserveDenialPassesThrough(t *testing.T) {
	svc, _, _ := newService(t, 1, time.Minute)
	ctx := context.Background()

	_, err := svc.Reserve(ctx, "a", "i1", "prod", catalog.Selector{}, 1)
	require.NoError(t, err)

	_, err = svc.Reserve(ctx, "b", "i1", "prod", catalog.Selector{}, 1)
	assert.ErrorIs(t, err, ledger.ErrOutOfStock)
}

func TestTouchExtendsFromNow(t *testing.T) {
	svc, store, clock := newService(t, 5, time.Minute)
	ctx := context.Background()

	r, err := svc.Reserve(ctx, "buyer", "item-1", "prod", catalog.Selector{}, 1)
	require.NoError(t, err)

	*clock = clock.Add(30 * time.Second)
	until, err := svc.Touch(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, clock.Add(time.Minute), until)

	got, err := store.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, until, got.ExpiresAt)
}

func TestTouchRefusesLapsedHold(t *testing.T) {
	svc, _, clock := newService(t, 5, time.Minute)
	ctx := context.Background()

	r, err := svc.Reserve(ctx, "buyer", "item-1", "prod", catalog.Selector{}, 1)
	require.NoError(t, err)

	*clock = clock.Add(5 * time.Minute)
	_, err = svc.Touch(ctx, r.ID)
	assert.ErrorIs(t, err, ledger.ErrReservationExpired)
}

func TestSweepReleasesLapsedHolds(t *testing.T) {
	svc, store, clock := newService(t, 5, time.Minute)
	ctx := context.Background()

	r, err := svc.Reserve(ctx, "buyer", "item-1", "prod", catalog.Selector{}, 3)
	require.NoError(t, err)

	// Before expiry the sweep is a no-op.
	svc.sweepOnce(ctx)
	got, err := store.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StateActive, got.State)

	*clock = clock.Add(2 * time.Minute)
	svc.sweepOnce(ctx)

	got, err = store.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StateReleased, got.State)

	avail, err := store.Availability(ctx, "prod", catalog.Selector{})
	require.NoError(t, err)
	assert.Equal(t, 5, avail, "released hold returns its quantity to the pool")
}

func TestReleaseThenReserveAgain(t *testing.T) {
	svc, _, _ := newService(t, 2, time.Minute)
	ctx := context.Background()

	r, err := svc.Reserve(ctx, "buyer", "item-1", "prod", catalog.Selector{}, 2)
	require.NoError(t, err)
	require.NoError(t, svc.Release(ctx, r.ID))

	_, err = svc.Reserve(ctx, "other", "item-1", "prod", catalog.Selector{}, 2)
	assert.NoError(t, err)
}
