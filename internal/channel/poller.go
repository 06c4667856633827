package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fjod/go_pos/domain"
	"github.com/fjod/go_pos/internal/store"
)

const (
	DefaultPollInterval = 15 * time.Second
	DefaultListLimit    = 1000
)

// Loader fetches the full content of one collection from the
// authoritative store.
type Loader interface {
	List(ctx context.Context, entity domain.EntityType, limit int) ([]json.RawMessage, error)
}

// Snapshots keeps the last loaded content of each collection.
type Snapshots interface {
	Get(ctx context.Context, entity domain.EntityType) ([]json.RawMessage, error)
	Set(ctx context.Context, entity domain.EntityType, raws []json.RawMessage) error
}

// Poller reloads every collection in full on a fixed interval. It is the
// fallback producer while push delivery is not open.
type Poller struct {
	loader    Loader
	store     *store.Store
	snapshots Snapshots
	interval  time.Duration
	limit     int
	log       *slog.Logger
}

type PollerOption func(*Poller)

func WithSnapshots(s Snapshots) PollerOption {
	return func(p *Poller) { p.snapshots = s }
}

func WithInterval(d time.Duration) PollerOption {
	return func(p *Poller) { p.interval = d }
}

func WithListLimit(n int) PollerOption {
	return func(p *Poller) { p.limit = n }
}

func WithPollerLogger(l *slog.Logger) PollerOption {
	return func(p *Poller) { p.log = l }
}

func NewPoller(loader Loader, st *store.Store, opts ...PollerOption) *Poller {
	p := &Poller{
		loader:   loader,
		store:    st,
		interval: DefaultPollInterval,
		limit:    DefaultListLimit,
		log:      slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Run ticks until ctx is done, reloading whenever active reports true.
func (p *Poller) Run(ctx context.Context, active func() bool) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if !active() {
				continue
			}
			if err := p.ReloadAll(ctx); err != nil && ctx.Err() == nil {
				p.log.WarnContext(ctx, "polling reload failed", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// ReloadAll replaces every collection with the store's current content.
// A failed collection keeps its local copy; the others still reload.
func (p *Poller) ReloadAll(ctx context.Context) error {
	var errs error
	for _, e := range domain.EntityTypes {
		if err := p.reload(ctx, e, false); err != nil {
			errs = errors.Join(errs, err)
		}
	}
	return errs
}

// Bootstrap is the startup load. A collection that cannot be fetched is
// filled from the last cached snapshot when one exists.
func (p *Poller) Bootstrap(ctx context.Context) error {
	var errs error
	for _, e := range domain.EntityTypes {
		if err := p.reload(ctx, e, true); err != nil {
			errs = errors.Join(errs, err)
		}
	}
	return errs
}

func (p *Poller) reload(ctx context.Context, e domain.EntityType, fallback bool) error {
	raws, err := p.loader.List(ctx, e, p.limit)
	if err != nil {
		if !fallback || p.snapshots == nil {
			return fmt.Errorf("list %s: %w", e.Plural(), err)
		}
		cached, cerr := p.snapshots.Get(ctx, e)
		if cerr != nil {
			return fmt.Errorf("list %s: %w", e.Plural(), errors.Join(err, cerr))
		}
		p.log.WarnContext(ctx, "using cached snapshot", "collection", e.Plural(), "error", err)
		return p.store.Replace(e, cached)
	}

	if err := p.store.Replace(e, raws); err != nil {
		return err
	}
	if p.snapshots != nil {
		if err := p.snapshots.Set(ctx, e, raws); err != nil {
			p.log.WarnContext(ctx, "failed to cache snapshot", "collection", e.Plural(), "error", err)
		}
	}
	return nil
}
