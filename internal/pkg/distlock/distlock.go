package distlock

import (
	"context"
	"database/sql"
	"hash/fnv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DistLock is the interface for distributed locking.
// Implementations must be safe for use from a single goroutine;
// concurrent use across goroutines requires separate lock instances.
type DistLock interface {
	// Acquire tries to acquire the lock without blocking. Returns true if successful.
	Acquire(ctx context.Context) (bool, error)
	// Release releases the lock if we still own it.
	Release(ctx context.Context) error
}

// Extender is implemented by locks whose hold can be renewed. Holders doing
// long work call it between units so the lock never lapses mid-unit.
type Extender interface {
	Extend(ctx context.Context, ttl time.Duration) error
}

// Extend renews lock when it supports renewal. It returns ErrNotHeld once
// the lock expired or passed to another holder.
func Extend(ctx context.Context, lock DistLock, ttl time.Duration) error {
	if e, ok := lock.(Extender); ok {
		return e.Extend(ctx, ttl)
	}
	return nil
}

// Provider hands out locks by key. The enrollment engine asks for one lock
// per enrollment id so overlapping ticks never process the same record.
type Provider interface {
	Lock(key string, ttl time.Duration) DistLock
}

// NewProvider picks the best available backend: Redis for cross-host
// locking, PostgreSQL advisory locks when only a database is configured,
// and an in-process table otherwise.
func NewProvider(redisClient *redis.Client, db *sql.DB) Provider {
	switch {
	case redisClient != nil:
		return redisProvider{client: redisClient}
	case db != nil:
		return pgProvider{db: db}
	default:
		return NewLocalProvider()
	}
}

type redisProvider struct{ client *redis.Client }

func (p redisProvider) Lock(key string, ttl time.Duration) DistLock {
	return NewRedisLock(p.client, key, ttl)
}

type pgProvider struct{ db *sql.DB }

func (p pgProvider) Lock(key string, _ time.Duration) DistLock {
	return NewPGAdvisoryLock(p.db, key)
}

// =============================================================================
// PostgreSQL Advisory Lock (fallback when Redis is unavailable)
// =============================================================================
// pg_try_advisory_lock is session-scoped, so the lock pins one pooled
// connection between Acquire and Release. The lock is released automatically
// if that connection drops.

// PGAdvisoryLock implements DistLock using PostgreSQL advisory locks.
type PGAdvisoryLock struct {
	db     *sql.DB
	lockID int64
	conn   *sql.Conn
}

// NewPGAdvisoryLock creates a PG advisory lock with a deterministic lock ID
// derived from the given key string.
func NewPGAdvisoryLock(db *sql.DB, key string) *PGAdvisoryLock {
	h := fnv.New64a()
	h.Write([]byte(key))
	return &PGAdvisoryLock{
		db:     db,
		lockID: int64(h.Sum64()),
	}
}

// Acquire tries to acquire the advisory lock. Returns true if successful.
func (l *PGAdvisoryLock) Acquire(ctx context.Context) (bool, error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return false, err
	}
	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&acquired); err != nil {
		conn.Close()
		return false, err
	}
	if !acquired {
		conn.Close()
		return false, nil
	}
	l.conn = conn
	return true, nil
}

// Release releases the advisory lock and returns the connection to the pool.
func (l *PGAdvisoryLock) Release(ctx context.Context) error {
	if l.conn == nil {
		return nil
	}
	_, err := l.conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID)
	l.conn.Close()
	l.conn = nil
	return err
}

// Extend checks the session still holds the lock. Advisory locks have no
// TTL, so a live connection is the whole hold.
func (l *PGAdvisoryLock) Extend(ctx context.Context, _ time.Duration) error {
	if l.conn == nil {
		return ErrNotHeld
	}
	if err := l.conn.PingContext(ctx); err != nil {
		return ErrNotHeld
	}
	return nil
}

// =============================================================================
// In-process lock table (single replica, tests, memory store)
// =============================================================================

// LocalProvider implements Provider with a mutex-guarded key set. Expired
// entries are reclaimed on the next Acquire for the same key.
type LocalProvider struct {
	mu   sync.Mutex
	held map[string]localEntry
	now  func() time.Time
}

type localEntry struct {
	token   *LocalLock
	expires time.Time
}

// NewLocalProvider creates an empty in-process lock table.
func NewLocalProvider() *LocalProvider {
	return &LocalProvider{held: make(map[string]localEntry), now: time.Now}
}

// Lock returns a lock handle for key.
func (p *LocalProvider) Lock(key string, ttl time.Duration) DistLock {
	return &LocalLock{provider: p, key: key, ttl: ttl}
}

// LocalLock is a lock handle from a LocalProvider.
type LocalLock struct {
	provider *LocalProvider
	key      string
	ttl      time.Duration
}

// Acquire takes the key if it is free or its holder's TTL has lapsed.
func (l *LocalLock) Acquire(_ context.Context) (bool, error) {
	p := l.provider
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	if cur, ok := p.held[l.key]; ok && cur.token != l && (cur.expires.IsZero() || now.Before(cur.expires)) {
		return false, nil
	}
	var exp time.Time
	if l.ttl > 0 {
		exp = now.Add(l.ttl)
	}
	p.held[l.key] = localEntry{token: l, expires: exp}
	return true, nil
}

// Release frees the key if this handle still owns it.
func (l *LocalLock) Release(_ context.Context) error {
	p := l.provider
	p.mu.Lock()
	defer p.mu.Unlock()
	if cur, ok := p.held[l.key]; ok && cur.token == l {
		delete(p.held, l.key)
	}
	return nil
}

// Extend pushes the expiry out to now+ttl if this handle still owns the key.
func (l *LocalLock) Extend(_ context.Context, ttl time.Duration) error {
	p := l.provider
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	cur, ok := p.held[l.key]
	if !ok || cur.token != l || (!cur.expires.IsZero() && !now.Before(cur.expires)) {
		return ErrNotHeld
	}
	var exp time.Time
	if ttl > 0 {
		exp = now.Add(ttl)
	}
	p.held[l.key] = localEntry{token: l, expires: exp}
	return nil
}
