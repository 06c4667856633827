package submit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	// DefaultGrace is how long a successful outcome keeps answering
	// duplicates after it resolved.
	DefaultGrace = 2 * time.Second

	// DefaultTTL bounds how long any key may stay tracked.
	DefaultTTL = 30 * time.Second

	// CleanupInterval is how often the background cleanup runs
	CleanupInterval = time.Second
)

// Operation is a mutating call guarded by an idempotency key.
type Operation func(ctx context.Context) (any, error)

type resolved struct {
	value     any
	expiresAt time.Time
}

// flight is the context a shared execution runs under. It outlives the
// caller that started it and is cancelled once every waiter has left.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// Deduplicator collapses submissions that share a key into one effect.
// Concurrent calls with the same key share a single execution; a
// successful outcome is replayed for the grace window; a failure is
// forgotten at once so a retry can go through.
type Deduplicator struct {
	group singleflight.Group

	mu       sync.Mutex
	inflight map[string]time.Time // key -> flight start
	flights  map[string]*flight
	done     map[string]resolved

	grace time.Duration
	ttl   time.Duration
	now   func() time.Time
	log   *slog.Logger

	stopCleanup chan struct{}
	closeOnce   sync.Once
	wg          sync.WaitGroup
}

type DedupOption func(*Deduplicator)

func WithGrace(d time.Duration) DedupOption {
	return func(x *Deduplicator) { x.grace = d }
}

func WithTTL(d time.Duration) DedupOption {
	return func(x *Deduplicator) { x.ttl = d }
}

func WithNow(now func() time.Time) DedupOption {
	return func(x *Deduplicator) { x.now = now }
}

func WithLogger(l *slog.Logger) DedupOption {
	return func(x *Deduplicator) { x.log = l }
}

// NewDeduplicator creates a deduplicator and starts its cleanup loop.
// Call Close to stop it.
func NewDeduplicator(opts ...DedupOption) *Deduplicator {
	d := &Deduplicator{
		inflight:    make(map[string]time.Time),
		flights:     make(map[string]*flight),
		done:        make(map[string]resolved),
		grace:       DefaultGrace,
		ttl:         DefaultTTL,
		now:         time.Now,
		log:         slog.Default(),
		stopCleanup: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}

	d.wg.Add(1)
	go d.cleanupLoop()

	return d
}

// Submit runs op under key unless an identical submission is in flight or
// recently succeeded, in which case that outcome is returned. shared is
// true when the result was not produced by this call's own execution.
func (d *Deduplicator) Submit(ctx context.Context, key string, op Operation) (value any, shared bool, err error) {
	if key == "" {
		return nil, false, ErrEmptyKey
	}

	if v, ok := d.lookup(key); ok {
		d.log.InfoContext(ctx, "duplicate submission answered from recent result", "idempotency_key", key)
		return v, true, nil
	}

	f := d.join(ctx, key)
	defer d.leave(key, f)

	ch := d.group.DoChan(key, func() (any, error) {
		// a flight that finished just before this one started has already stored its result
		if v, ok := d.lookup(key); ok {
			return v, nil
		}
		d.markInflight(key)
		defer d.clearInflight(key)

		v, err := op(f.ctx)
		if err != nil {
			return nil, err
		}
		d.remember(key, v)
		return v, nil
	})

	select {
	case res := <-ch:
		if res.Shared {
			d.log.InfoContext(ctx, "duplicate submission joined in-flight request", "idempotency_key", key)
		}
		return res.Val, res.Shared, res.Err
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// Pending reports how many keys are currently tracked, in flight or resolved.
func (d *Deduplicator) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.inflight) + len(d.done)
}

func (d *Deduplicator) join(ctx context.Context, key string) *flight {
	d.mu.Lock()
	defer d.mu.Unlock()
	f, ok := d.flights[key]
	if !ok {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{ctx: fctx, cancel: cancel}
		d.flights[key] = f
	}
	f.waiters++
	return f
}

func (d *Deduplicator) leave(key string, f *flight) {
	d.mu.Lock()
	defer d.mu.Unlock()
	f.waiters--
	if f.waiters > 0 {
		return
	}
	f.cancel()
	if d.flights[key] == f {
		delete(d.flights, key)
	}
}

// Close stops the background cleanup and waits for it to finish
func (d *Deduplicator) Close() error {
	d.closeOnce.Do(func() {
		close(d.stopCleanup)
	})
	d.wg.Wait()
	return nil
}

func (d *Deduplicator) lookup(key string) (any, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.done[key]
	if !ok {
		return nil, false
	}
	if !d.now().Before(r.expiresAt) {
		delete(d.done, key)
		return nil, false
	}
	return r.value, true
}

func (d *Deduplicator) remember(key string, v any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.done[key] = resolved{value: v, expiresAt: d.now().Add(d.grace)}
}

func (d *Deduplicator) markInflight(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inflight[key] = d.now()
}

func (d *Deduplicator) clearInflight(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.inflight, key)
}

// cleanupLoop periodically drops expired outcomes and stuck flights
func (d *Deduplicator) cleanupLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.expire()
		case <-d.stopCleanup:
			return
		}
	}
}

func (d *Deduplicator) expire() {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	for key, r := range d.done {
		if !now.Before(r.expiresAt) {
			delete(d.done, key)
		}
	}
	for key, started := range d.inflight {
		if now.Sub(started) >= d.ttl {
			// the next submission with this key starts a fresh flight
			d.group.Forget(key)
			delete(d.inflight, key)
			d.log.Warn("submission exceeded ttl, key released", "idempotency_key", key)
		}
	}
}
