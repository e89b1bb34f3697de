package worker

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ignite/enrollment-engine/internal/pkg/distlock"
	"github.com/ignite/enrollment-engine/internal/service/enrollment"
)

// tickLockKey serialises full passes across every worker in the cluster.
const tickLockKey = "tick:enrollments"

// Ticker runs one pass over all non-terminal enrollments.
type Ticker interface {
	Tick(ctx context.Context, now time.Time) (*enrollment.TickReport, error)
}

// EnrollmentDriver invokes the enrollment engine on a fixed interval.
type EnrollmentDriver struct {
	engine   Ticker
	locks    distlock.Provider
	interval time.Duration
	lockTTL  time.Duration
	now      func() time.Time

	// Stats
	totalTicks   int64
	totalSkipped int64
	totalSent    int64
	totalErrors  int64

	// Control
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.RWMutex
}

// NewEnrollmentDriver creates a driver. The global tick lock is held for at
// most lockTTL so a crashed worker never blocks the cluster for long.
func NewEnrollmentDriver(engine Ticker, locks distlock.Provider, interval, lockTTL time.Duration) *EnrollmentDriver {
	if interval <= 0 {
		interval = 2 * time.Minute
	}
	if lockTTL <= 0 {
		lockTTL = interval
	}
	if locks == nil {
		locks = distlock.NewLocalProvider()
	}
	return &EnrollmentDriver{
		engine:   engine,
		locks:    locks,
		interval: interval,
		lockTTL:  lockTTL,
		now:      time.Now,
	}
}

// Start begins the tick loop.
func (d *EnrollmentDriver) Start() {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return
	}
	d.running = true
	d.ctx, d.cancel = context.WithCancel(context.Background())
	d.mu.Unlock()

	log.Printf("[EnrollmentDriver] Starting (interval=%s)", d.interval)

	d.wg.Add(1)
	go d.loop()
}

// Stop cancels the loop and waits up to 30 seconds for an in-flight tick.
func (d *EnrollmentDriver) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	d.cancel()
	d.mu.Unlock()

	log.Println("[EnrollmentDriver] Stopping...")

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("[EnrollmentDriver] Stopped cleanly")
	case <-time.After(30 * time.Second):
		log.Println("[EnrollmentDriver] Shutdown timeout - forcing stop")
	}

	log.Printf("[EnrollmentDriver] Ticks: %d, Skipped: %d, Sent: %d, Errors: %d",
		atomic.LoadInt64(&d.totalTicks), atomic.LoadInt64(&d.totalSkipped),
		atomic.LoadInt64(&d.totalSent), atomic.LoadInt64(&d.totalErrors))
}

func (d *EnrollmentDriver) loop() {
	defer d.wg.Done()

	d.RunOnce(d.ctx)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.RunOnce(d.ctx)
		}
	}
}

// RunOnce performs one tick if no other worker holds the tick lock. It
// returns the report, or nil when the tick was skipped or failed.
func (d *EnrollmentDriver) RunOnce(ctx context.Context) *enrollment.TickReport {
	lock := d.locks.Lock(tickLockKey, d.lockTTL)
	ok, err := lock.Acquire(ctx)
	if err != nil {
		log.Printf("[EnrollmentDriver] Tick lock error: %v", err)
		atomic.AddInt64(&d.totalErrors, 1)
		return nil
	}
	if !ok {
		atomic.AddInt64(&d.totalSkipped, 1)
		return nil
	}
	defer func() {
		if err := lock.Release(context.Background()); err != nil {
			log.Printf("[EnrollmentDriver] Tick lock release: %v", err)
		}
	}()

	report, err := d.engine.Tick(ctx, d.now())
	atomic.AddInt64(&d.totalTicks, 1)
	if err != nil {
		log.Printf("[EnrollmentDriver] Tick failed: %v", err)
		atomic.AddInt64(&d.totalErrors, 1)
		return nil
	}
	atomic.AddInt64(&d.totalSent, int64(report.Sent))
	atomic.AddInt64(&d.totalErrors, int64(report.Errors))
	return report
}

// Stats returns counters since start.
func (d *EnrollmentDriver) Stats() map[string]int64 {
	return map[string]int64{
		"ticks":   atomic.LoadInt64(&d.totalTicks),
		"skipped": atomic.LoadInt64(&d.totalSkipped),
		"sent":    atomic.LoadInt64(&d.totalSent),
		"errors":  atomic.LoadInt64(&d.totalErrors),
	}
}
