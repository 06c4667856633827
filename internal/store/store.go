// Package store holds the terminal's local copy of every shared collection.
//
// The Store is the single sink for changes: push events, full reloads and
// server-confirmed results of this terminal's own calls all go through
// Apply/Replace/Confirm, so there is exactly one merge rule per action.
// Readers get copies and learn about changes through Subscribe.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/fjod/go_pos/domain"
)

var ErrUnknownEntity = errors.New("unknown entity type")

// Listener is told which collection changed.
type Listener func(entity domain.EntityType)

type merger interface {
	apply(domain.Event) (bool, error)
	replaceRaw([]json.RawMessage) (bool, error)
	touch()
}

type Store struct {
	mu           sync.RWMutex
	orders       *collection[domain.Order]
	cashSessions *collection[domain.CashSession]
	coworking    *collection[domain.CoworkingSession]
	customers    *collection[domain.Customer]
	products     *collection[domain.Product]
	withdrawals  *collection[domain.CashWithdrawal]
	expenses     *collection[domain.Expense]

	lmu       sync.Mutex
	listeners map[int]Listener
	nextID    int

	log *slog.Logger
}

func New(log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		orders:       newCollection[domain.Order](),
		cashSessions: newCollection[domain.CashSession](),
		coworking:    newCollection[domain.CoworkingSession](),
		customers:    newCollection[domain.Customer](),
		products:     newCollection[domain.Product](),
		withdrawals:  newCollection[domain.CashWithdrawal](),
		expenses:     newCollection[domain.Expense](),
		listeners:    make(map[int]Listener),
		log:          log,
	}
}

func (s *Store) merger(e domain.EntityType) (merger, error) {
	switch e {
	case domain.EntityOrder:
		return s.orders, nil
	case domain.EntityCashSession:
		return s.cashSessions, nil
	case domain.EntityCoworkingSession:
		return s.coworking, nil
	case domain.EntityCustomer:
		return s.customers, nil
	case domain.EntityProduct:
		return s.products, nil
	case domain.EntityWithdrawal:
		return s.withdrawals, nil
	case domain.EntityExpense:
		return s.expenses, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEntity, e)
}

// Apply merges one normalized event.
func (s *Store) Apply(ev domain.Event) error {
	m, err := s.merger(ev.Entity)
	if err != nil {
		return err
	}

	s.mu.Lock()
	changed, err := m.apply(ev)
	s.mu.Unlock()

	if err != nil {
		return err
	}
	if changed {
		s.notify(ev.Entity)
	}
	return nil
}

// Replace swaps a whole collection with freshly loaded content.
func (s *Store) Replace(e domain.EntityType, raws []json.RawMessage) error {
	m, err := s.merger(e)
	if err != nil {
		return err
	}

	s.mu.Lock()
	changed, err := m.replaceRaw(raws)
	s.mu.Unlock()

	if err != nil {
		return fmt.Errorf("replace %s: %w", e.Plural(), err)
	}
	if changed {
		s.notify(e)
	}
	return nil
}

// Confirm merges an entity returned by the authoritative store in answer
// to this terminal's own call, using the same rules as a push event.
func (s *Store) Confirm(action domain.EventAction, item domain.Entity) error {
	e, err := EntityTypeOf(item)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode %s: %w", e, err)
	}
	return s.Apply(domain.Event{Entity: e, Action: action, ID: item.EntityID(), Payload: payload})
}

// AdjustStock changes a product's stock by delta ahead of the server's
// own update. It reports false if the product is unknown.
func (s *Store) AdjustStock(productID string, delta int) bool {
	s.mu.Lock()
	p, ok := s.products.get(productID)
	if ok {
		p.Stock += delta
		s.products.upsert(p)
		s.products.touch()
	}
	s.mu.Unlock()

	if ok {
		s.notify(domain.EntityProduct)
	}
	return ok
}

// Subscribe registers fn for change notifications. The returned function
// removes it.
func (s *Store) Subscribe(fn Listener) (unsubscribe func()) {
	s.lmu.Lock()
	defer s.lmu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	return func() {
		s.lmu.Lock()
		defer s.lmu.Unlock()
		delete(s.listeners, id)
	}
}

func (s *Store) notify(e domain.EntityType) {
	s.lmu.Lock()
	fns := make([]Listener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.lmu.Unlock()

	for _, fn := range fns {
		fn(e)
	}
}

// EntityTypeOf maps a domain value to its collection.
func EntityTypeOf(item domain.Entity) (domain.EntityType, error) {
	switch item.(type) {
	case domain.Order:
		return domain.EntityOrder, nil
	case domain.CashSession:
		return domain.EntityCashSession, nil
	case domain.CoworkingSession:
		return domain.EntityCoworkingSession, nil
	case domain.Customer:
		return domain.EntityCustomer, nil
	case domain.Product:
		return domain.EntityProduct, nil
	case domain.CashWithdrawal:
		return domain.EntityWithdrawal, nil
	case domain.Expense:
		return domain.EntityExpense, nil
	}
	return "", fmt.Errorf("%w: %T", ErrUnknownEntity, item)
}

func (s *Store) Orders() []domain.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.orders.list()
}

func (s *Store) Order(id string) (domain.Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.orders.get(id)
}

func (s *Store) CashSessions() []domain.CashSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cashSessions.list()
}

func (s *Store) CashSession(id string) (domain.CashSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cashSessions.get(id)
}

// OpenCashSessions returns every session in status open, oldest first.
// More than one means the store is out of sync with the server invariant.
func (s *Store) OpenCashSessions() []domain.CashSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var open []domain.CashSession
	for _, cs := range s.cashSessions.items {
		if cs.IsOpen() {
			open = append(open, cs)
		}
	}
	sort.SliceStable(open, func(i, j int) bool {
		return open[i].StartTime.Before(open[j].StartTime)
	})
	return open
}

func (s *Store) CoworkingSessions() []domain.CoworkingSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.coworking.list()
}

func (s *Store) CoworkingSession(id string) (domain.CoworkingSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.coworking.get(id)
}

func (s *Store) Customers() []domain.Customer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.customers.list()
}

func (s *Store) Customer(id string) (domain.Customer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.customers.get(id)
}

func (s *Store) Products() []domain.Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.products.list()
}

func (s *Store) Product(id string) (domain.Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.products.get(id)
}

func (s *Store) Withdrawals() []domain.CashWithdrawal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.withdrawals.list()
}

func (s *Store) Expenses() []domain.Expense {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expenses.list()
}

// List returns a copy of the named collection for serialization.
func (s *Store) List(e domain.EntityType) (any, error) {
	switch e {
	case domain.EntityOrder:
		return s.Orders(), nil
	case domain.EntityCashSession:
		return s.CashSessions(), nil
	case domain.EntityCoworkingSession:
		return s.CoworkingSessions(), nil
	case domain.EntityCustomer:
		return s.Customers(), nil
	case domain.EntityProduct:
		return s.Products(), nil
	case domain.EntityWithdrawal:
		return s.Withdrawals(), nil
	case domain.EntityExpense:
		return s.Expenses(), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEntity, e)
}
