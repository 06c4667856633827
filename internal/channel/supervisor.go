package channel

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fjod/go_pos/domain"
	"github.com/fjod/go_pos/internal/store"
)

// ConnState is the push connection state.
type ConnState string

const (
	StateClosed     ConnState = "closed"
	StateConnecting ConnState = "connecting"
	StateOpen       ConnState = "open"
)

type SupervisorConfig struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
}

func DefaultSupervisorConfig() SupervisorConfig {
	return SupervisorConfig{
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		MaxAttempts: 10,
	}
}

// Supervisor keeps the local store in sync. It feeds push events into the
// store while the connection is open and lets the poller reload while it
// is not. Failures are logged, never returned.
type Supervisor struct {
	source PushSource
	poller *Poller
	store  *store.Store
	cfg    SupervisorConfig
	log    *slog.Logger

	// OnStateChange, if set, is called after every connection state change.
	OnStateChange func(ConnState)

	mu           sync.Mutex
	state        ConnState
	online       bool
	visible      bool
	manual       bool
	attempts     int
	retry        *backoff.ExponentialBackOff
	everOpened   bool
	cancelListen context.CancelFunc

	wake chan struct{}
}

func NewSupervisor(source PushSource, poller *Poller, st *store.Store, cfg SupervisorConfig, log *slog.Logger) *Supervisor {
	if log == nil {
		log = slog.Default()
	}
	def := DefaultSupervisorConfig()
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	return &Supervisor{
		source:  source,
		poller:  poller,
		store:   st,
		cfg:     cfg,
		log:     log,
		state:   StateClosed,
		online:  true,
		visible: true,
		retry:   newReconnectBackOff(cfg),
		wake:    make(chan struct{}, 1),
	}
}

// newReconnectBackOff doubles from BaseDelay up to MaxDelay. The attempt
// limit is counted by the supervisor so Resume can re-arm it.
func newReconnectBackOff(cfg SupervisorConfig) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.BaseDelay
	b.MaxInterval = cfg.MaxDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Run loads every collection, then supervises the push connection until
// ctx is done.
func (s *Supervisor) Run(ctx context.Context) {
	if err := s.poller.Bootstrap(ctx); err != nil {
		s.log.Warn("initial load incomplete", "error", err)
	}

	unsubscribe := s.subscribe()
	defer unsubscribe()

	pollDone := make(chan struct{})
	go func() {
		defer close(pollDone)
		s.poller.Run(ctx, s.Polling)
	}()
	defer func() { <-pollDone }()

	for {
		if ctx.Err() != nil {
			return
		}
		if !s.canConnect() {
			select {
			case <-s.wake:
				continue
			case <-ctx.Done():
				return
			}
		}

		s.listen(ctx)
		if ctx.Err() != nil {
			return
		}

		delay, ok := s.nextDelay()
		if !ok {
			s.log.Warn("push reconnect attempts exhausted, staying on polling", "attempts", s.cfg.MaxAttempts)
			continue
		}
		s.log.Info("push reconnect scheduled", "delay", delay)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-s.wake:
			timer.Stop()
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
}

func (s *Supervisor) listen(ctx context.Context) {
	lctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.cancelListen = cancel
	s.mu.Unlock()
	s.setState(StateConnecting)

	err := s.source.Listen(lctx, func() { s.opened(lctx) })

	s.mu.Lock()
	s.cancelListen = nil
	s.mu.Unlock()
	s.setState(StateClosed)

	if err != nil && ctx.Err() == nil && lctx.Err() == nil {
		s.log.Warn("push connection lost, falling back to polling", "error", err)
	}
}

func (s *Supervisor) opened(ctx context.Context) {
	s.mu.Lock()
	s.attempts = 0
	s.retry.Reset()
	resync := s.everOpened
	s.everOpened = true
	s.mu.Unlock()
	s.setState(StateOpen)
	s.log.Info("push connection open")

	// Events published while disconnected were missed.
	if resync {
		if err := s.poller.ReloadAll(ctx); err != nil && ctx.Err() == nil {
			s.log.Warn("resync after reconnect failed", "error", err)
		}
	}
}

func (s *Supervisor) subscribe() func() {
	unsubs := make([]func(), 0, len(domain.EntityTypes))
	for _, e := range domain.EntityTypes {
		name := e.Plural()
		unsubs = append(unsubs, s.source.Subscribe(name, func(raw []byte) {
			s.handle(name, raw)
		}))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

func (s *Supervisor) handle(name string, raw []byte) {
	ev, err := Normalize(name, raw)
	if err != nil {
		s.log.Warn("dropping malformed event", "event", name, "error", err)
		return
	}
	if err := s.store.Apply(ev); err != nil {
		s.log.Warn("failed to apply event", "event", name, "id", ev.ID, "error", err)
	}
}

func (s *Supervisor) canConnect() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online && !s.manual && s.attempts < s.cfg.MaxAttempts
}

// nextDelay counts a failed attempt and returns the backoff before the
// next one. It reports false once attempts are exhausted.
func (s *Supervisor) nextDelay() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if s.attempts >= s.cfg.MaxAttempts {
		return 0, false
	}
	return s.retry.NextBackOff(), true
}

// Resume re-arms the attempt counter after a manual disconnect or after
// attempts ran out.
func (s *Supervisor) Resume() {
	s.mu.Lock()
	s.manual = false
	s.attempts = 0
	s.retry.Reset()
	s.mu.Unlock()
	s.signal()
}

// Disconnect closes the push connection and cancels any pending
// reconnect until Resume is called.
func (s *Supervisor) Disconnect() {
	s.mu.Lock()
	s.manual = true
	cancel := s.cancelListen
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.signal()
}

// SetOnline reports a host network transition. Either way the current
// connection is dropped; going online reconnects immediately.
func (s *Supervisor) SetOnline(online bool) {
	s.mu.Lock()
	s.online = online
	if online {
		s.attempts = 0
		s.retry.Reset()
	}
	cancel := s.cancelListen
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.signal()
}

// SetVisible pauses polling while the terminal screen is hidden.
func (s *Supervisor) SetVisible(visible bool) {
	s.mu.Lock()
	s.visible = visible
	s.mu.Unlock()
}

// Polling reports whether the polling fallback is currently active.
func (s *Supervisor) Polling() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state != StateOpen && s.visible && s.online
}

func (s *Supervisor) State() ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Supervisor) setState(st ConnState) {
	s.mu.Lock()
	changed := s.state != st
	s.state = st
	hook := s.OnStateChange
	s.mu.Unlock()
	if changed && hook != nil {
		hook(st)
	}
}

func (s *Supervisor) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}
