package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fjod/go_pos/domain"
	"github.com/shopspring/decimal"
)

// fakeRemote is an in-memory authoritative store. It honors order
// idempotency keys like the real one.
type fakeRemote struct {
	mu            sync.Mutex
	now           func() time.Time
	seq           int
	ordersByKey   map[string]domain.Order
	orderCalls    int
	openCalls     int
	updateErrs    []error
	cash          map[string]domain.CashSession
	sessions      map[string]domain.CoworkingSession
	deletedCowork []string
}

func newFakeRemote(now func() time.Time) *fakeRemote {
	return &fakeRemote{
		now:         now,
		ordersByKey: make(map[string]domain.Order),
		cash:        make(map[string]domain.CashSession),
		sessions:    make(map[string]domain.CoworkingSession),
	}
}

func (f *fakeRemote) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s-%d", prefix, f.seq)
}

func (f *fakeRemote) CreateOrder(_ context.Context, p domain.OrderPayload, key string) (domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orderCalls++
	if o, ok := f.ordersByKey[key]; ok {
		return o, nil
	}
	o := domain.Order{
		ID:            f.nextID("o"),
		CreatedAt:     f.now(),
		Items:         p.Items,
		Subtotal:      p.Subtotal,
		Discount:      p.Discount,
		Tip:           p.Tip,
		Total:         p.Total,
		TotalCost:     p.TotalCost,
		ClientName:    p.ClientName,
		ServiceType:   p.ServiceType,
		PaymentMethod: p.PaymentMethod,
	}
	f.ordersByKey[key] = o
	return o, nil
}

func (f *fakeRemote) distinctOrders() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ordersByKey)
}

func (f *fakeRemote) OpenCashSession(_ context.Context, start decimal.Decimal) (domain.CashSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.openCalls++
	cs := domain.CashSession{
		ID:          f.nextID("cs"),
		StartTime:   f.now(),
		StartAmount: start,
		Status:      domain.CashSessionOpen,
	}
	f.cash[cs.ID] = cs
	return cs, nil
}

func (f *fakeRemote) CloseCashSession(_ context.Context, id string, p domain.CashSessionClose) (domain.CashSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cs, ok := f.cash[id]
	if !ok {
		return domain.CashSession{}, domain.ErrNotFound
	}
	end, amount := p.EndTime, p.EndAmount
	cs.EndTime = &end
	cs.EndAmount = &amount
	cs.Status = p.Status
	cs.TotalSales = p.TotalSales
	cs.TotalExpenses = p.TotalExpenses
	cs.ExpectedCash = p.ExpectedCash
	cs.Difference = p.Difference
	f.cash[id] = cs
	return cs, nil
}

func (f *fakeRemote) CreateWithdrawal(_ context.Context, sessionID string, amount decimal.Decimal, description string) (domain.CashWithdrawal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return domain.CashWithdrawal{
		ID:            f.nextID("wd"),
		CashSessionID: sessionID,
		Amount:        amount,
		Description:   description,
		CreatedAt:     f.now(),
	}, nil
}

func (f *fakeRemote) DeleteWithdrawal(context.Context, string) error { return nil }

func (f *fakeRemote) CreateCoworkingSession(_ context.Context, clientName string) (domain.CoworkingSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := domain.CoworkingSession{
		ID:         f.nextID("cw"),
		ClientName: clientName,
		StartTime:  f.now(),
		Status:     domain.CoworkingActive,
	}
	f.sessions[s.ID] = s
	return s, nil
}

func (f *fakeRemote) UpdateCoworkingSession(_ context.Context, id string, p domain.CoworkingPatch) (domain.CoworkingSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.updateErrs) > 0 {
		err := f.updateErrs[0]
		f.updateErrs = f.updateErrs[1:]
		return domain.CoworkingSession{}, err
	}
	s, ok := f.sessions[id]
	if !ok {
		return domain.CoworkingSession{}, domain.ErrNotFound
	}
	if p.Extras != nil {
		s.Extras = p.Extras
	}
	if p.EndTime != nil {
		s.EndTime = p.EndTime
	}
	if p.Status != nil {
		s.Status = *p.Status
	}
	if p.Total != nil {
		s.Total = p.Total
	}
	if p.DurationMinutes != nil {
		s.DurationMinutes = p.DurationMinutes
	}
	if p.PaymentMethod != nil {
		s.PaymentMethod = p.PaymentMethod
	}
	if p.OrderID != nil {
		s.OrderID = p.OrderID
	}
	f.sessions[id] = s
	return s, nil
}

func (f *fakeRemote) DeleteCoworkingSession(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, id)
	f.deletedCowork = append(f.deletedCowork, id)
	return nil
}

type transientError struct{}

func (transientError) Error() string   { return "service unavailable" }
func (transientError) Retryable() bool { return true }
