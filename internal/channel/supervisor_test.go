package channel

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fjod/go_pos/domain"
	"github.com/fjod/go_pos/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type atomicBool struct{ v atomic.Bool }

func (b *atomicBool) Load() bool   { return b.v.Load() }
func (b *atomicBool) Store(x bool) { b.v.Store(x) }

const (
	waitFor = 2 * time.Second
	tick    = 2 * time.Millisecond
)

func fastConfig(maxAttempts int) SupervisorConfig {
	return SupervisorConfig{BaseDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond, MaxAttempts: maxAttempts}
}

// startSupervisor runs sup in the background and returns a stop func that
// waits for Run to return.
func startSupervisor(t *testing.T, sup *Supervisor) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(done)
	}()
	stop := func() {
		cancel()
		select {
		case <-done:
		case <-time.After(waitFor):
			t.Fatal("supervisor did not stop")
		}
	}
	t.Cleanup(stop)
	return stop
}

func newTestSupervisor(src PushSource, loader *fakeLoader, st *store.Store, cfg SupervisorConfig) *Supervisor {
	poller := NewPoller(loader, st, WithInterval(time.Hour))
	return NewSupervisor(src, poller, st, cfg, nil)
}

func TestSupervisor_BootstrapThenPushEvents(t *testing.T) {
	loader := newFakeLoader()
	loader.set(domain.EntityOrder, `{"id":"o-1"}`)
	src := newFakeSource(openUntilCancelled)
	st := store.New(nil)
	sup := newTestSupervisor(src, loader, st, fastConfig(3))

	startSupervisor(t, sup)
	require.Eventually(t, func() bool { return sup.State() == StateOpen }, waitFor, tick)
	require.Len(t, st.Orders(), 1)

	src.emit("orders", `{"type":"create","order":{"id":"o-2"}}`)
	src.emit("orders", `{"type":"create","order":{"id":"o-2"}}`)
	src.emit("orders", `{"type":"delete","id":"missing"}`)
	src.emit("orders", `not json`)

	assert.Len(t, st.Orders(), 2)

	src.emit("orders", `{"type":"delete","order":{"id":"o-1"}}`)
	_, ok := st.Order("o-1")
	assert.False(t, ok)
}

func TestSupervisor_UnsubscribesOnStop(t *testing.T) {
	src := newFakeSource(openUntilCancelled)
	sup := newTestSupervisor(src, newFakeLoader(), store.New(nil), fastConfig(3))

	stop := startSupervisor(t, sup)
	require.Eventually(t, func() bool { return src.subscribed("orders") }, waitFor, tick)
	stop()

	assert.False(t, src.subscribed("orders"))
}

func TestSupervisor_BoundedReconnectAttempts(t *testing.T) {
	src := newFakeSource(alwaysFail)
	sup := newTestSupervisor(src, newFakeLoader(), store.New(nil), fastConfig(3))

	startSupervisor(t, sup)
	require.Eventually(t, func() bool { return src.listens.Load() == 3 }, waitFor, tick)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(3), src.listens.Load())
	assert.True(t, sup.Polling())

	sup.Resume()
	require.Eventually(t, func() bool { return src.listens.Load() == 6 }, waitFor, tick)
}

func TestSupervisor_OpenResetsAttempts(t *testing.T) {
	// fail, open then drop, fail, fail, open
	src := newFakeSource(func(n int, ctx context.Context, onOpen func()) error {
		switch n {
		case 2:
			onOpen()
			return errConnRefused
		case 5:
			return openUntilCancelled(n, ctx, onOpen)
		}
		return errConnRefused
	})
	// Without the reset the fourth failure would exhaust the attempts.
	sup := newTestSupervisor(src, newFakeLoader(), store.New(nil), fastConfig(4))

	startSupervisor(t, sup)
	require.Eventually(t, func() bool { return sup.State() == StateOpen }, waitFor, tick)
	assert.Equal(t, int32(5), src.listens.Load())
}

func TestSupervisor_PollingOnlyWhilePushNotOpen(t *testing.T) {
	src := newFakeSource(openUntilCancelled)
	sup := newTestSupervisor(src, newFakeLoader(), store.New(nil), fastConfig(3))
	assert.True(t, sup.Polling())

	startSupervisor(t, sup)
	require.Eventually(t, func() bool { return sup.State() == StateOpen }, waitFor, tick)
	assert.False(t, sup.Polling())

	sup.Disconnect()
	require.Eventually(t, func() bool { return sup.State() == StateClosed }, waitFor, tick)
	assert.True(t, sup.Polling())

	sup.SetVisible(false)
	assert.False(t, sup.Polling())
	sup.SetVisible(true)
	assert.True(t, sup.Polling())
}

func TestSupervisor_DisconnectCancelsReconnectTimer(t *testing.T) {
	src := newFakeSource(func(n int, ctx context.Context, onOpen func()) error {
		if n == 1 {
			return errConnRefused
		}
		return openUntilCancelled(n, ctx, onOpen)
	})
	cfg := SupervisorConfig{BaseDelay: time.Hour, MaxDelay: time.Hour, MaxAttempts: 5}
	sup := newTestSupervisor(src, newFakeLoader(), store.New(nil), cfg)

	startSupervisor(t, sup)
	require.Eventually(t, func() bool { return src.listens.Load() == 1 }, waitFor, tick)

	sup.Disconnect()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), src.listens.Load())

	sup.Resume()
	require.Eventually(t, func() bool { return sup.State() == StateOpen }, waitFor, tick)
	assert.Equal(t, int32(2), src.listens.Load())
}

func TestSupervisor_SetOnlineForcesReconnect(t *testing.T) {
	src := newFakeSource(openUntilCancelled)
	cfg := SupervisorConfig{BaseDelay: time.Hour, MaxDelay: time.Hour, MaxAttempts: 5}
	sup := newTestSupervisor(src, newFakeLoader(), store.New(nil), cfg)

	startSupervisor(t, sup)
	require.Eventually(t, func() bool { return sup.State() == StateOpen }, waitFor, tick)

	sup.SetOnline(false)
	require.Eventually(t, func() bool { return sup.State() == StateClosed }, waitFor, tick)
	assert.False(t, sup.Polling())
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), src.listens.Load())

	// Reconnects without waiting out the hour-long backoff.
	sup.SetOnline(true)
	require.Eventually(t, func() bool { return src.listens.Load() == 2 && sup.State() == StateOpen }, waitFor, tick)
}

func TestSupervisor_ResyncsAfterReconnect(t *testing.T) {
	loader := newFakeLoader()
	src := newFakeSource(openUntilCancelled)
	sup := newTestSupervisor(src, loader, store.New(nil), fastConfig(3))

	startSupervisor(t, sup)
	require.Eventually(t, func() bool { return sup.State() == StateOpen }, waitFor, tick)
	afterBootstrap := loader.calls.Load()
	assert.Equal(t, int32(len(domain.EntityTypes)), afterBootstrap)

	sup.SetOnline(true)
	require.Eventually(t, func() bool {
		return loader.calls.Load() == afterBootstrap+int32(len(domain.EntityTypes))
	}, waitFor, tick)
}

func TestSupervisor_StateChangeHook(t *testing.T) {
	src := newFakeSource(openUntilCancelled)
	sup := newTestSupervisor(src, newFakeLoader(), store.New(nil), fastConfig(3))
	states := make(chan ConnState, 8)
	sup.OnStateChange = func(s ConnState) { states <- s }

	startSupervisor(t, sup)

	assert.Equal(t, StateConnecting, <-states)
	assert.Equal(t, StateOpen, <-states)
}

func TestReconnectBackOff(t *testing.T) {
	b := newReconnectBackOff(SupervisorConfig{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second})
	for _, want := range []time.Duration{100, 200, 400, 800, 1000, 1000} {
		assert.Equal(t, want*time.Millisecond, b.NextBackOff())
	}
	b.Reset()
	assert.Equal(t, 100*time.Millisecond, b.NextBackOff())
}
