package distlock

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return mr, client
}

func TestRedisLock_SingleOwner(t *testing.T) {
	_, client := setupRedis(t)
	ctx := context.Background()
	p := NewProvider(client, nil)

	a := p.Lock("enrollment:e1", time.Minute)
	b := p.Lock("enrollment:e1", time.Minute)

	ok, err := a.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "second holder must be refused")

	// A non-owner release must not free the key.
	require.NoError(t, b.Release(ctx))
	ok, _ = b.Acquire(ctx)
	assert.False(t, ok)

	require.NoError(t, a.Release(ctx))
	ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLock_ExpiresAfterTTL(t *testing.T) {
	mr, client := setupRedis(t)
	ctx := context.Background()

	a := NewRedisLock(client, "tick", 10*time.Second)
	ok, err := a.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(11 * time.Second)

	b := NewRedisLock(client, "tick", 10*time.Second)
	ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.ErrorIs(t, a.Extend(ctx, time.Minute), ErrNotHeld)
}

func TestRedisLock_ExtendKeepsHold(t *testing.T) {
	mr, client := setupRedis(t)
	ctx := context.Background()
	p := NewProvider(client, nil)

	a := p.Lock("enrollment:e1", 10*time.Second)
	ok, err := a.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(8 * time.Second)
	require.NoError(t, Extend(ctx, a, 10*time.Second))
	mr.FastForward(8 * time.Second)

	ok, err = p.Lock("enrollment:e1", 10*time.Second).Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "extended lock must still be held")
}

func TestLocalLock_Extend(t *testing.T) {
	ctx := context.Background()
	p := NewLocalProvider()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	a := p.Lock("k", time.Minute)
	ok, _ := a.Acquire(ctx)
	require.True(t, ok)

	now = now.Add(50 * time.Second)
	require.NoError(t, Extend(ctx, a, time.Minute))
	now = now.Add(50 * time.Second)
	ok, _ = p.Lock("k", time.Minute).Acquire(ctx)
	assert.False(t, ok)

	now = now.Add(time.Minute)
	assert.ErrorIs(t, Extend(ctx, a, time.Minute), ErrNotHeld)

	b := p.Lock("k", time.Minute)
	ok, _ = b.Acquire(ctx)
	require.True(t, ok)
	assert.ErrorIs(t, Extend(ctx, a, time.Minute), ErrNotHeld, "a lapsed holder cannot take the key back")
	assert.NoError(t, Extend(ctx, b, time.Minute))
}

func TestLocalProvider(t *testing.T) {
	ctx := context.Background()
	p := NewLocalProvider()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	a := p.Lock("k", time.Minute)
	b := p.Lock("k", time.Minute)

	ok, _ := a.Acquire(ctx)
	assert.True(t, ok)
	ok, _ = b.Acquire(ctx)
	assert.False(t, ok)

	now = now.Add(2 * time.Minute)
	ok, _ = b.Acquire(ctx)
	assert.True(t, ok, "expired holder is reclaimed")

	require.NoError(t, a.Release(ctx))
	ok, _ = a.Acquire(ctx)
	assert.False(t, ok, "stale release must not free b's lock")
}

func TestPGAdvisoryLock(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT pg_try_advisory_lock").
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(true))
	mock.ExpectExec("SELECT pg_advisory_unlock").
		WillReturnResult(sqlmock.NewResult(0, 0))

	l := NewProvider(nil, db).Lock("enrollment:e1", 0)
	assert.ErrorIs(t, Extend(context.Background(), l, time.Minute), ErrNotHeld)
	ok, err := l.Acquire(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, Extend(context.Background(), l, time.Minute))
	require.NoError(t, l.Release(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
