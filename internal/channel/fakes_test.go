package channel

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/fjod/go_pos/domain"
)

// fakeLoader serves fixed collection content and counts List calls.
type fakeLoader struct {
	mu    sync.Mutex
	data  map[domain.EntityType][]json.RawMessage
	err   error
	calls atomic.Int32
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{data: make(map[domain.EntityType][]json.RawMessage)}
}

func (f *fakeLoader) set(e domain.EntityType, raws ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]json.RawMessage, len(raws))
	for i, r := range raws {
		out[i] = json.RawMessage(r)
	}
	f.data[e] = out
}

func (f *fakeLoader) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeLoader) List(_ context.Context, e domain.EntityType, _ int) ([]json.RawMessage, error) {
	f.calls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.data[e], nil
}

// memorySnapshots is an in-memory Snapshots.
type memorySnapshots struct {
	mu   sync.Mutex
	data map[domain.EntityType][]json.RawMessage
}

func newMemorySnapshots() *memorySnapshots {
	return &memorySnapshots{data: make(map[domain.EntityType][]json.RawMessage)}
}

var errNoSnapshot = errors.New("no snapshot")

func (m *memorySnapshots) Get(_ context.Context, e domain.EntityType) ([]json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raws, ok := m.data[e]
	if !ok {
		return nil, errNoSnapshot
	}
	return raws, nil
}

func (m *memorySnapshots) Set(_ context.Context, e domain.EntityType, raws []json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[e] = raws
	return nil
}

// fakeSource is a PushSource whose Listen behavior is scripted per call.
type fakeSource struct {
	mu       sync.Mutex
	handlers map[string][]Handler
	listens  atomic.Int32
	// behave decides what the n-th Listen call does (n starts at 1).
	behave func(n int, ctx context.Context, onOpen func()) error
}

func newFakeSource(behave func(n int, ctx context.Context, onOpen func()) error) *fakeSource {
	return &fakeSource{handlers: make(map[string][]Handler), behave: behave}
}

func (f *fakeSource) Listen(ctx context.Context, onOpen func()) error {
	n := int(f.listens.Add(1))
	return f.behave(n, ctx, onOpen)
}

func (f *fakeSource) Subscribe(name string, h Handler) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[name] = append(f.handlers[name], h)
	idx := len(f.handlers[name]) - 1
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.handlers[name][idx] = nil
	}
}

func (f *fakeSource) emit(name, body string) {
	f.mu.Lock()
	hs := append([]Handler(nil), f.handlers[name]...)
	f.mu.Unlock()
	for _, h := range hs {
		if h != nil {
			h([]byte(body))
		}
	}
}

func (f *fakeSource) subscribed(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, h := range f.handlers[name] {
		if h != nil {
			return true
		}
	}
	return false
}

var errConnRefused = errors.New("connection refused")

// alwaysFail never opens.
func alwaysFail(int, context.Context, func()) error { return errConnRefused }

// openUntilCancelled opens and stays open until the listen context ends.
func openUntilCancelled(_ int, ctx context.Context, onOpen func()) error {
	onOpen()
	<-ctx.Done()
	return ctx.Err()
}
