// Package checkout drives one sale from item selection to a recorded Order.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/fjod/go_pos/domain"
	"github.com/fjod/go_pos/internal/store"
	"github.com/fjod/go_pos/internal/submit"
	"github.com/shopspring/decimal"
)

// OrderCreator records an Order in the authoritative store.
type OrderCreator interface {
	CreateOrder(ctx context.Context, payload domain.OrderPayload, idempotencyKey string) (domain.Order, error)
}

// Details are the choices made on the checkout screen.
type Details struct {
	ClientName     string               `json:"client_name"`
	ServiceType    domain.ServiceType   `json:"service_type"`
	PaymentMethod  domain.PaymentMethod `json:"payment_method"`
	CustomerID     string               `json:"customer_id,omitempty"`
	Tip            decimal.Decimal      `json:"tip"`
	CreditOverride bool                 `json:"credit_override,omitempty"`
}

// Snapshot is a copy of the machine's state and context.
type Snapshot struct {
	State   domain.CheckoutState `json:"state"`
	Cart    domain.Cart          `json:"cart"`
	Details Details              `json:"details"`
	Totals  *Totals              `json:"totals,omitempty"`
	Error   string               `json:"error,omitempty"`
	Order   *domain.Order        `json:"order,omitempty"`
}

type checkoutContext struct {
	cart    domain.Cart
	details Details
	totals  *Totals
	nonce   string
	err     error
	order   *domain.Order
}

// Machine holds the single active checkout of a terminal.
type Machine struct {
	orders    OrderCreator
	submitter *submit.Service
	store     *store.Store
	auth      Authorizer
	log       *slog.Logger

	// OnSuccess is called with every recorded Order, after the store has it.
	OnSuccess func(domain.Order)

	run sync.Mutex // serializes Submit

	mu           sync.Mutex
	state        domain.CheckoutState
	cctx         checkoutContext
	gen          uint64 // bumped whenever the checkout context is replaced
	cancelSubmit context.CancelFunc
}

func NewMachine(orders OrderCreator, submitter *submit.Service, st *store.Store, auth Authorizer, log *slog.Logger) *Machine {
	if log == nil {
		log = slog.Default()
	}
	if auth == nil {
		auth = Permissions(nil)
	}
	return &Machine{
		orders:    orders,
		submitter: submitter,
		store:     st,
		auth:      auth,
		log:       log,
		state:     domain.CheckoutIdle,
	}
}

func (m *Machine) State() domain.CheckoutState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Snapshot{
		State:   m.state,
		Cart:    m.cctx.cart.Snapshot(),
		Details: m.cctx.details,
	}
	if m.cctx.totals != nil {
		t := *m.cctx.totals
		s.Totals = &t
	}
	if m.cctx.err != nil {
		s.Error = m.cctx.err.Error()
	}
	if m.cctx.order != nil {
		o := *m.cctx.order
		s.Order = &o
	}
	return s
}

// Start opens a checkout for a copy of cart.
func (m *Machine) Start(cart domain.Cart) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.transition(context.Background(), domain.ActionStartCheckout); err != nil {
		return err
	}
	m.gen++
	m.cctx = checkoutContext{cart: cart.Snapshot(), nonce: submit.NewNonce()}
	return nil
}

// Retry returns a failed checkout to detail selection. Cart, details and
// the idempotency nonce are kept so a resubmission collapses onto the
// previous attempt if it did reach the store.
func (m *Machine) Retry() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.transition(context.Background(), domain.ActionRetry); err != nil {
		return err
	}
	m.cctx.err = nil
	return nil
}

// Cancel abandons the checkout. An in-flight submission is cancelled.
func (m *Machine) Cancel() error {
	return m.toIdle(domain.ActionCancel)
}

func (m *Machine) Reset() error {
	return m.toIdle(domain.ActionReset)
}

func (m *Machine) toIdle(action domain.CheckoutAction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.transition(context.Background(), action); err != nil {
		return err
	}
	if m.cancelSubmit != nil {
		m.cancelSubmit()
		m.cancelSubmit = nil
	}
	m.gen++
	m.cctx = checkoutContext{}
	return nil
}

// Submit validates details and records the sale. It returns the created
// Order, or an error that leaves the cart in the checkout context.
func (m *Machine) Submit(ctx context.Context, details Details) (domain.Order, error) {
	m.run.Lock()
	defer m.run.Unlock()

	m.mu.Lock()
	if err := m.transition(ctx, domain.ActionSubmit); err != nil {
		m.mu.Unlock()
		return domain.Order{}, err
	}
	gen := m.gen
	m.cctx.details = details
	m.cctx.err = nil
	cart := m.cctx.cart.Snapshot()
	nonce := m.cctx.nonce
	m.mu.Unlock()

	payload, err := m.validate(ctx, cart, details)
	if err != nil {
		m.fail(ctx, gen, err)
		return domain.Order{}, err
	}
	key := checkoutKey(cart, details, nonce)

	sctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m.mu.Lock()
	if err := m.transitionFor(ctx, gen, domain.ActionValidated); err != nil {
		m.mu.Unlock()
		return domain.Order{}, err
	}
	m.cctx.totals = &Totals{
		Subtotal:  payload.Subtotal,
		Discount:  payload.Discount,
		Tip:       payload.Tip,
		Total:     payload.Total,
		TotalCost: payload.TotalCost,
	}
	m.cancelSubmit = cancel
	m.mu.Unlock()

	order, err := submit.Submit(sctx, m.submitter, key, func(ctx context.Context) (domain.Order, error) {
		return m.orders.CreateOrder(ctx, payload, key)
	})
	if err != nil {
		err = fmt.Errorf("create order: %w", err)
		m.fail(ctx, gen, err)
		return domain.Order{}, err
	}

	m.record(ctx, order)

	m.mu.Lock()
	if terr := m.transitionFor(ctx, gen, domain.ActionSubmitSuccess); terr != nil {
		// Cancelled while the call was in flight; the Order exists anyway.
		m.mu.Unlock()
		m.notify(ctx, order)
		return order, nil
	}
	m.cancelSubmit = nil
	o := order
	m.cctx.order = &o
	m.mu.Unlock()

	m.notify(ctx, order)
	return order, nil
}

// record hands the server-confirmed Order to the store and applies the
// optimistic stock decrement.
func (m *Machine) record(ctx context.Context, order domain.Order) {
	if err := m.store.Confirm(domain.EventCreate, order); err != nil {
		m.log.ErrorContext(ctx, "failed to record order locally", "order_id", order.ID, "error", err)
	}
	for _, l := range order.Items {
		if l.ProductID == "" {
			continue
		}
		m.store.AdjustStock(l.ProductID, -l.Quantity)
	}
}

func (m *Machine) notify(ctx context.Context, order domain.Order) {
	m.log.InfoContext(ctx, "sale recorded", "order_id", order.ID, "total", order.Total.String(), "payment_method", order.PaymentMethod)
	if m.OnSuccess != nil {
		m.OnSuccess(order)
	}
}

func (m *Machine) fail(ctx context.Context, gen uint64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if terr := m.transitionFor(ctx, gen, domain.ActionSubmitError); terr != nil {
		return
	}
	m.cancelSubmit = nil
	m.cctx.err = err
}

// transitionFor is transition for a Submit that started under checkout
// generation gen. Once the checkout was cancelled or restarted the action
// is rejected and the new context is left alone. Callers hold m.mu.
func (m *Machine) transitionFor(ctx context.Context, gen uint64, action domain.CheckoutAction) error {
	if m.gen != gen {
		m.log.WarnContext(ctx, "rejected action of a replaced checkout", "state", m.state.String(), "action", string(action))
		return fmt.Errorf("%w: %s of a replaced checkout", ErrIllegalTransition, action)
	}
	return m.transition(ctx, action)
}

// transition applies action or rejects it leaving state and context
// untouched. Callers hold m.mu.
func (m *Machine) transition(ctx context.Context, action domain.CheckoutAction) error {
	next, ok := domain.NextCheckoutState(m.state, action)
	if !ok {
		m.log.WarnContext(ctx, "rejected checkout transition", "state", m.state.String(), "action", string(action))
		return fmt.Errorf("%w: %s in %s", ErrIllegalTransition, action, m.state)
	}
	m.log.DebugContext(ctx, "checkout transition", "from", m.state.String(), "action", string(action), "to", next.String())
	m.state = next
	return nil
}

func (m *Machine) validate(ctx context.Context, cart domain.Cart, d Details) (domain.OrderPayload, error) {
	if cart.IsEmpty() {
		return domain.OrderPayload{}, fmt.Errorf("%w: %w", ErrEmptyCart, domain.NewValidationError("cart", "is empty"))
	}
	for _, l := range cart {
		if l.Quantity < 1 {
			return domain.OrderPayload{}, domain.NewValidationError("quantity", fmt.Sprintf("product %s has quantity %d", l.ProductID, l.Quantity))
		}
		if l.UnitPrice.IsNegative() {
			return domain.OrderPayload{}, domain.NewValidationError("price", fmt.Sprintf("product %s has a negative price", l.ProductID))
		}
	}
	if d.Tip.IsNegative() {
		return domain.OrderPayload{}, domain.NewValidationError("tip", "must not be negative")
	}
	if !d.PaymentMethod.Valid() {
		return domain.OrderPayload{}, domain.NewValidationError("payment_method", fmt.Sprintf("unknown method %q", d.PaymentMethod))
	}

	var customer *domain.Customer
	if d.CustomerID != "" {
		c, ok := m.store.Customer(d.CustomerID)
		if !ok {
			return domain.OrderPayload{}, domain.NewValidationError("customer_id", "unknown customer "+d.CustomerID)
		}
		if c.DiscountPercentage.IsNegative() || c.DiscountPercentage.GreaterThan(hundred) {
			return domain.OrderPayload{}, domain.NewValidationError("discount", "customer discount must be within [0,100]")
		}
		customer = &c
	}

	discount := decimal.Zero
	if customer != nil {
		discount = customer.DiscountPercentage
	}
	totals := ComputeTotals(cart, discount, d.Tip)

	if d.PaymentMethod == domain.PaymentCredit {
		if customer == nil {
			return domain.OrderPayload{}, domain.NewValidationError("customer_id", "store credit requires a customer")
		}
		if err := m.checkCredit(ctx, *customer, totals.Total, d.CreditOverride); err != nil {
			return domain.OrderPayload{}, err
		}
	}

	payload := domain.OrderPayload{
		Items:         cart.Snapshot(),
		Subtotal:      totals.Subtotal,
		Discount:      totals.Discount,
		Tip:           totals.Tip,
		Total:         totals.Total,
		TotalCost:     totals.TotalCost,
		ClientName:    submit.NormalizeText(d.ClientName),
		ServiceType:   d.ServiceType,
		PaymentMethod: d.PaymentMethod,
	}
	if customer != nil {
		id := customer.ID
		payload.CustomerID = &id
	}
	return payload, nil
}

func (m *Machine) checkCredit(ctx context.Context, c domain.Customer, amount decimal.Decimal, override bool) error {
	if c.CanCharge(amount) {
		return nil
	}
	if override && m.auth.Allowed(ctx, PermissionCreditOverride) {
		m.log.WarnContext(ctx, "credit limit overridden", "customer_id", c.ID, "amount", amount.String(), "available", c.AvailableCredit().String())
		return nil
	}
	err := domain.NewConflictError("credit limit exceeded for customer %s: available %s, charge %s",
		c.ID, c.AvailableCredit().StringFixed(2), amount.StringFixed(2))
	if override {
		return fmt.Errorf("credit override not permitted: %w", err)
	}
	return err
}

// IsIllegalTransition reports whether err is a rejected state change.
func IsIllegalTransition(err error) bool {
	return errors.Is(err, ErrIllegalTransition)
}
