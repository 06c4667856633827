package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/fjod/go_pos/domain"
	"github.com/fjod/go_pos/internal/store"
	"github.com/fjod/go_pos/internal/submit"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockOrderCreator implements OrderCreator for testing
type MockOrderCreator struct {
	mu    sync.Mutex
	Keys  []string
	Errs  []error // returned in order, then success
	Delay time.Duration
}

func (m *MockOrderCreator) CreateOrder(ctx context.Context, p domain.OrderPayload, key string) (domain.Order, error) {
	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return domain.Order{}, ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Keys = append(m.Keys, key)
	if len(m.Errs) > 0 {
		err := m.Errs[0]
		m.Errs = m.Errs[1:]
		return domain.Order{}, err
	}
	return domain.Order{
		ID:            fmt.Sprintf("o-%d", len(m.Keys)),
		CreatedAt:     time.Now(),
		Items:         p.Items,
		Subtotal:      p.Subtotal,
		Discount:      p.Discount,
		Tip:           p.Tip,
		Total:         p.Total,
		TotalCost:     p.TotalCost,
		ClientName:    p.ClientName,
		ServiceType:   p.ServiceType,
		PaymentMethod: p.PaymentMethod,
		CustomerID:    p.CustomerID,
	}, nil
}

func (m *MockOrderCreator) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Keys)
}

type permanentError struct{}

func (permanentError) Error() string   { return "rejected by store" }
func (permanentError) Retryable() bool { return false }

type transientError struct{}

func (transientError) Error() string   { return "bad gateway" }
func (transientError) Retryable() bool { return true }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testCart() domain.Cart {
	return domain.Cart{
		{ProductID: "latte", Name: "Latte", UnitPrice: dec("45"), UnitCost: dec("12"), Quantity: 2},
		{ProductID: "bagel", Name: "Bagel", UnitPrice: dec("30"), UnitCost: dec("9"), Quantity: 1},
	}
}

type fixture struct {
	machine *Machine
	orders  *MockOrderCreator
	store   *store.Store
}

func newFixture(t *testing.T, auth Authorizer) *fixture {
	t.Helper()
	st := store.New(nil)
	require.NoError(t, st.Confirm(domain.EventCreate, domain.Product{ID: "latte", Stock: 10}))
	require.NoError(t, st.Confirm(domain.EventCreate, domain.Product{ID: "bagel", Stock: 5}))
	require.NoError(t, st.Confirm(domain.EventCreate, domain.Customer{
		ID: "c-1", DiscountPercentage: dec("10"), CreditLimit: dec("200"), CurrentCredit: dec("150"),
	}))

	retrier := submit.NewRetrier()
	retrier.BaseDelay = time.Millisecond
	retrier.MaxDelay = time.Millisecond
	retrier.Timeout = 2 * time.Second
	svc := submit.NewService(submit.NewDeduplicator(submit.WithGrace(time.Second)), retrier)
	t.Cleanup(func() { _ = svc.Close() })

	orders := &MockOrderCreator{}
	return &fixture{
		machine: NewMachine(orders, svc, st, auth, nil),
		orders:  orders,
		store:   st,
	}
}

func cashDetails() Details {
	return Details{ClientName: "  Ana  ", ServiceType: domain.ServiceDineIn, PaymentMethod: domain.PaymentCash, Tip: dec("5")}
}

func TestSubmit_Success(t *testing.T) {
	f := newFixture(t, nil)
	var notified []domain.Order
	f.machine.OnSuccess = func(o domain.Order) { notified = append(notified, o) }

	require.NoError(t, f.machine.Start(testCart()))
	assert.Equal(t, domain.CheckoutSelectingDetails, f.machine.State())

	order, err := f.machine.Submit(context.Background(), cashDetails())
	require.NoError(t, err)

	assert.Equal(t, domain.CheckoutSuccess, f.machine.State())
	assert.True(t, order.Subtotal.Equal(dec("120")))
	assert.True(t, order.Total.Equal(dec("125")))
	assert.True(t, order.TotalCost.Equal(dec("33")))
	assert.Equal(t, "Ana", order.ClientName)
	assert.Len(t, notified, 1)

	_, ok := f.store.Order(order.ID)
	assert.True(t, ok, "order is in the local store")
	latte, _ := f.store.Product("latte")
	assert.Equal(t, 8, latte.Stock)

	snap := f.machine.Snapshot()
	require.NotNil(t, snap.Order)
	assert.Equal(t, order.ID, snap.Order.ID)

	require.NoError(t, f.machine.Reset())
	assert.Equal(t, domain.CheckoutIdle, f.machine.State())
	assert.Empty(t, f.machine.Snapshot().Cart)
}

func TestSubmit_CustomerDiscount(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.machine.Start(testCart()))

	d := cashDetails()
	d.CustomerID = "c-1"
	order, err := f.machine.Submit(context.Background(), d)
	require.NoError(t, err)

	assert.True(t, order.Discount.Equal(dec("12")))
	assert.True(t, order.Total.Equal(dec("113")))
	require.NotNil(t, order.CustomerID)
	assert.Equal(t, "c-1", *order.CustomerID)
}

func TestSubmit_TransportFailurePreservesCart(t *testing.T) {
	f := newFixture(t, nil)
	f.orders.Errs = []error{permanentError{}}
	cart := testCart()
	require.NoError(t, f.machine.Start(cart))

	_, err := f.machine.Submit(context.Background(), cashDetails())
	require.Error(t, err)

	snap := f.machine.Snapshot()
	assert.Equal(t, domain.CheckoutError, snap.State)
	assert.Equal(t, cart, snap.Cart)
	assert.Contains(t, snap.Error, "rejected by store")
	assert.Empty(t, f.store.Orders())
	latte, _ := f.store.Product("latte")
	assert.Equal(t, 10, latte.Stock)
}

func TestSubmit_RetryReusesKey(t *testing.T) {
	f := newFixture(t, nil)
	f.orders.Errs = []error{permanentError{}}
	require.NoError(t, f.machine.Start(testCart()))

	_, err := f.machine.Submit(context.Background(), cashDetails())
	require.Error(t, err)

	require.NoError(t, f.machine.Retry())
	assert.Equal(t, domain.CheckoutSelectingDetails, f.machine.State())
	assert.Empty(t, f.machine.Snapshot().Error)

	_, err = f.machine.Submit(context.Background(), cashDetails())
	require.NoError(t, err)

	require.Len(t, f.orders.Keys, 2)
	assert.Equal(t, f.orders.Keys[0], f.orders.Keys[1])
}

func TestSubmit_TransientFaultsAreRetried(t *testing.T) {
	f := newFixture(t, nil)
	f.orders.Errs = []error{transientError{}, transientError{}}
	require.NoError(t, f.machine.Start(testCart()))

	_, err := f.machine.Submit(context.Background(), cashDetails())
	require.NoError(t, err)
	assert.Equal(t, 3, f.orders.calls())
}

func TestSubmit_SeparateSalesUseDistinctKeys(t *testing.T) {
	f := newFixture(t, nil)
	for i := 0; i < 2; i++ {
		require.NoError(t, f.machine.Start(testCart()))
		_, err := f.machine.Submit(context.Background(), cashDetails())
		require.NoError(t, err)
		require.NoError(t, f.machine.Reset())
	}
	require.Len(t, f.orders.Keys, 2)
	assert.NotEqual(t, f.orders.Keys[0], f.orders.Keys[1])
	assert.Len(t, f.store.Orders(), 2)
}

func TestSubmit_ConcurrentDuplicatesCreateOneOrder(t *testing.T) {
	f := newFixture(t, nil)
	f.orders.Delay = 20 * time.Millisecond
	require.NoError(t, f.machine.Start(testCart()))

	const n = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	var succeeded, illegal int
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.machine.Submit(context.Background(), cashDetails())
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case IsIllegalTransition(err):
				illegal++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, n-1, illegal)
	assert.Equal(t, 1, f.orders.calls())
	assert.Len(t, f.store.Orders(), 1)
}

func TestSubmit_Validation(t *testing.T) {
	tests := []struct {
		name    string
		cart    domain.Cart
		details func(d *Details)
		want    error
	}{
		{"empty cart", domain.Cart{}, nil, domain.ErrValidation},
		{"zero quantity", domain.Cart{{ProductID: "latte", UnitPrice: dec("45"), Quantity: 0}}, nil, domain.ErrValidation},
		{"negative tip", testCart(), func(d *Details) { d.Tip = dec("-1") }, domain.ErrValidation},
		{"unknown payment", testCart(), func(d *Details) { d.PaymentMethod = "cheque" }, domain.ErrValidation},
		{"unknown customer", testCart(), func(d *Details) { d.CustomerID = "ghost" }, domain.ErrValidation},
		{"credit without customer", testCart(), func(d *Details) { d.PaymentMethod = domain.PaymentCredit }, domain.ErrValidation},
		{"credit over limit", testCart(), func(d *Details) {
			d.PaymentMethod = domain.PaymentCredit
			d.CustomerID = "c-1"
		}, domain.ErrConflict},
		{"override without permission", testCart(), func(d *Details) {
			d.PaymentMethod = domain.PaymentCredit
			d.CustomerID = "c-1"
			d.CreditOverride = true
		}, domain.ErrConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			require.NoError(t, f.machine.Start(tt.cart))
			d := cashDetails()
			if tt.details != nil {
				tt.details(&d)
			}

			_, err := f.machine.Submit(context.Background(), d)

			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, domain.CheckoutError, f.machine.State())
			assert.Zero(t, f.orders.calls(), "nothing sent to the store")
		})
	}
}

func TestSubmit_EmptyCartSentinel(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.machine.Start(nil))
	_, err := f.machine.Submit(context.Background(), cashDetails())
	assert.ErrorIs(t, err, ErrEmptyCart)
}

func TestSubmit_CreditOverrideWithPermission(t *testing.T) {
	f := newFixture(t, Permissions{PermissionCreditOverride})
	require.NoError(t, f.machine.Start(testCart()))

	d := cashDetails()
	d.PaymentMethod = domain.PaymentCredit
	d.CustomerID = "c-1"
	d.CreditOverride = true

	_, err := f.machine.Submit(context.Background(), d)
	require.NoError(t, err)
}

func TestSubmit_CreditWithinLimit(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.machine.Start(domain.Cart{{ProductID: "bagel", UnitPrice: dec("30"), Quantity: 1}}))

	d := cashDetails()
	d.Tip = decimal.Zero
	d.PaymentMethod = domain.PaymentCredit
	d.CustomerID = "c-1"

	order, err := f.machine.Submit(context.Background(), d)
	require.NoError(t, err)
	assert.True(t, order.Total.Equal(dec("27")))
}

func TestSubmit_TimeoutSurfaces(t *testing.T) {
	f := newFixture(t, nil)
	f.orders.Delay = time.Hour
	require.NoError(t, f.machine.Start(testCart()))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := f.machine.Submit(ctx, cashDetails())

	require.Error(t, err)
	assert.Equal(t, domain.CheckoutError, f.machine.State())
	assert.Len(t, f.machine.Snapshot().Cart, 2)
}

func TestCancel_AbortsInFlightSubmission(t *testing.T) {
	f := newFixture(t, nil)
	f.orders.Delay = time.Hour
	require.NoError(t, f.machine.Start(testCart()))

	done := make(chan error, 1)
	go func() {
		_, err := f.machine.Submit(context.Background(), cashDetails())
		done <- err
	}()
	require.Eventually(t, func() bool { return f.machine.State() == domain.CheckoutSubmitting }, time.Second, time.Millisecond)

	require.NoError(t, f.machine.Cancel())

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("submission was not cancelled")
	}
	assert.Equal(t, domain.CheckoutIdle, f.machine.State())
	assert.Empty(t, f.store.Orders())
}

// gateAuthorizer grants every permission once release is closed.
type gateAuthorizer struct {
	entered chan struct{}
	release chan struct{}
}

func (g *gateAuthorizer) Allowed(context.Context, Permission) bool {
	close(g.entered)
	<-g.release
	return true
}

func TestSubmit_ReplacedCheckoutKeepsNewContext(t *testing.T) {
	auth := &gateAuthorizer{entered: make(chan struct{}), release: make(chan struct{})}
	f := newFixture(t, auth)
	require.NoError(t, f.machine.Start(testCart()))

	d := cashDetails()
	d.PaymentMethod = domain.PaymentCredit
	d.CustomerID = "c-1"
	d.CreditOverride = true

	done := make(chan error, 1)
	go func() {
		_, err := f.machine.Submit(context.Background(), d)
		done <- err
	}()
	<-auth.entered
	assert.Equal(t, domain.CheckoutValidating, f.machine.State())

	require.NoError(t, f.machine.Cancel())
	require.NoError(t, f.machine.Start(domain.Cart{{ProductID: "bagel", UnitPrice: dec("30"), Quantity: 1}}))
	before := f.machine.Snapshot()

	close(auth.release)
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrIllegalTransition)
	case <-time.After(2 * time.Second):
		t.Fatal("submission did not return")
	}

	assert.Equal(t, before, f.machine.Snapshot())
	assert.Nil(t, f.machine.Snapshot().Totals)
	assert.Equal(t, 0, f.orders.calls())
}

// Every action not in the table leaves state and context untouched.
func TestMachine_IllegalActionsLeaveStateUnchanged(t *testing.T) {
	f := newFixture(t, nil)

	err := f.machine.Retry()
	assert.True(t, errors.Is(err, ErrIllegalTransition))
	_, err = f.machine.Submit(context.Background(), cashDetails())
	assert.ErrorIs(t, err, ErrIllegalTransition)
	assert.ErrorIs(t, f.machine.Cancel(), ErrIllegalTransition)
	assert.Equal(t, domain.CheckoutIdle, f.machine.State())

	require.NoError(t, f.machine.Start(testCart()))
	before := f.machine.Snapshot()

	assert.ErrorIs(t, f.machine.Start(domain.Cart{}), ErrIllegalTransition)
	assert.ErrorIs(t, f.machine.Retry(), ErrIllegalTransition)
	assert.Equal(t, before, f.machine.Snapshot())

	_, err = f.machine.Submit(context.Background(), cashDetails())
	require.NoError(t, err)
	before = f.machine.Snapshot()

	assert.ErrorIs(t, f.machine.Cancel(), ErrIllegalTransition)
	assert.ErrorIs(t, f.machine.Retry(), ErrIllegalTransition)
	assert.ErrorIs(t, f.machine.Start(testCart()), ErrIllegalTransition)
	assert.Equal(t, before, f.machine.Snapshot())
}

func TestComputeTotals_RoundsDiscountToCents(t *testing.T) {
	cart := domain.Cart{{ProductID: "x", UnitPrice: dec("33.33"), Quantity: 1}}
	got := ComputeTotals(cart, dec("15"), decimal.Zero)

	assert.True(t, got.Discount.Equal(dec("5")), got.Discount.String())
	assert.True(t, got.Total.Equal(dec("28.33")), got.Total.String())
}
