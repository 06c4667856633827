package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/fjod/go_pos/domain"
	"github.com/fjod/go_pos/internal/billing"
	"github.com/fjod/go_pos/internal/store"
	"github.com/fjod/go_pos/internal/submit"
	"github.com/shopspring/decimal"
)

// CoworkingStore is the slice of the authoritative store the desk calls.
type CoworkingStore interface {
	CreateCoworkingSession(ctx context.Context, clientName string) (domain.CoworkingSession, error)
	UpdateCoworkingSession(ctx context.Context, id string, patch domain.CoworkingPatch) (domain.CoworkingSession, error)
	DeleteCoworkingSession(ctx context.Context, id string) error
}

// OrderCreator records an Order in the authoritative store.
type OrderCreator interface {
	CreateOrder(ctx context.Context, payload domain.OrderPayload, idempotencyKey string) (domain.Order, error)
}

// Settled is the outcome of finishing a coworking session.
type Settled struct {
	Session    domain.CoworkingSession `json:"session"`
	Order      domain.Order            `json:"order"`
	Settlement billing.Settlement      `json:"settlement"`
}

// Desk runs coworking sessions from start to settlement.
type Desk struct {
	remote    CoworkingStore
	orders    OrderCreator
	store     *store.Store
	submitter *submit.Service
	rates     billing.RateTable
	now       func() time.Time
	log       *slog.Logger
}

func NewDesk(remote CoworkingStore, orders OrderCreator, st *store.Store, submitter *submit.Service, rates billing.RateTable, log *slog.Logger) *Desk {
	if log == nil {
		log = slog.Default()
	}
	return &Desk{
		remote:    remote,
		orders:    orders,
		store:     st,
		submitter: submitter,
		rates:     rates,
		now:       time.Now,
		log:       log,
	}
}

// Active lists sessions still running.
func (d *Desk) Active() []domain.CoworkingSession {
	var out []domain.CoworkingSession
	for _, s := range d.store.CoworkingSessions() {
		if s.IsActive() {
			out = append(out, s)
		}
	}
	return out
}

// Start opens a session for a walk-in. nonce identifies the user action:
// repeats of one action share a session, an empty nonce is always new.
func (d *Desk) Start(ctx context.Context, clientName, nonce string) (domain.CoworkingSession, error) {
	name := submit.NormalizeText(clientName)
	if name == "" {
		return domain.CoworkingSession{}, domain.NewValidationError("client_name", "is required")
	}

	key := submit.Key("coworking-start", name, actionNonce(nonce))
	s, err := submit.Submit(ctx, d.submitter, key, func(ctx context.Context) (domain.CoworkingSession, error) {
		return d.remote.CreateCoworkingSession(ctx, name)
	})
	if err != nil {
		return domain.CoworkingSession{}, fmt.Errorf("start coworking session: %w", err)
	}
	d.confirm(ctx, domain.EventCreate, s)
	return s, nil
}

// AddExtra records a product consumed during an active session. A line for
// a product already present increases its quantity. nonce works as in Start.
func (d *Desk) AddExtra(ctx context.Context, id string, line domain.CartLine, nonce string) (domain.CoworkingSession, error) {
	if line.Quantity < 1 {
		return domain.CoworkingSession{}, domain.NewValidationError("quantity", "must be at least 1")
	}
	if line.UnitPrice.IsNegative() {
		return domain.CoworkingSession{}, domain.NewValidationError("price", "must not be negative")
	}
	s, err := d.active(id)
	if err != nil {
		return domain.CoworkingSession{}, err
	}

	extras := make([]domain.CartLine, 0, len(s.Extras)+1)
	merged := false
	for _, e := range s.Extras {
		if !merged && e.ProductID == line.ProductID && line.ProductID != "" {
			e.Quantity += line.Quantity
			merged = true
		}
		extras = append(extras, e)
	}
	if !merged {
		extras = append(extras, line)
	}

	key := submit.Key("coworking-extra", id, line.ProductID, strconv.Itoa(line.Quantity), actionNonce(nonce))
	updated, err := submit.Submit(ctx, d.submitter, key, func(ctx context.Context) (domain.CoworkingSession, error) {
		return d.remote.UpdateCoworkingSession(ctx, id, domain.CoworkingPatch{Extras: extras})
	})
	if err != nil {
		return domain.CoworkingSession{}, fmt.Errorf("add extra: %w", err)
	}
	d.confirm(ctx, domain.EventUpdate, updated)
	return updated, nil
}

// Quote prices an active session as if it ended at the given time.
func (d *Desk) Quote(id string, at time.Time) (billing.Settlement, error) {
	s, ok := d.store.CoworkingSession(id)
	if !ok {
		return billing.Settlement{}, fmt.Errorf("coworking session %s: %w", id, domain.ErrNotFound)
	}
	return billing.ComposeSettlement(s, at, d.rates), nil
}

// Finish settles a session: it records exactly one Order for time and
// extras and then marks the session finished. A finished session is
// rejected without side effects.
func (d *Desk) Finish(ctx context.Context, id string, method domain.PaymentMethod, end time.Time) (Settled, error) {
	if !method.Valid() {
		return Settled{}, domain.NewValidationError("payment_method", fmt.Sprintf("unknown method %q", method))
	}
	if method == domain.PaymentCredit {
		return Settled{}, domain.NewValidationError("payment_method", "store credit requires a customer")
	}
	s, err := d.active(id)
	if err != nil {
		return Settled{}, err
	}
	if end.IsZero() {
		end = d.now()
	}
	if end.Before(s.StartTime) {
		return Settled{}, domain.NewValidationError("end_time", "is before the session start")
	}

	settlement := billing.ComposeSettlement(s, end, d.rates)

	// The whole settlement is retried as one unit; the order key makes the
	// store return the same Order when the session update is what failed.
	orderKey := submit.Key("coworking-order", id)
	res, err := submit.Submit(ctx, d.submitter, submit.Key("coworking-finish", id), func(ctx context.Context) (Settled, error) {
		order, err := d.orders.CreateOrder(ctx, settlementPayload(s, settlement, method), orderKey)
		if err != nil {
			return Settled{}, fmt.Errorf("create settlement order: %w", err)
		}

		status := domain.CoworkingFinished
		total := settlement.Total
		minutes := settlement.Time.BillableMinutes
		orderID := order.ID
		session, err := d.remote.UpdateCoworkingSession(ctx, id, domain.CoworkingPatch{
			EndTime:         &end,
			Status:          &status,
			Total:           &total,
			DurationMinutes: &minutes,
			PaymentMethod:   &method,
			OrderID:         &orderID,
		})
		if err != nil {
			return Settled{}, fmt.Errorf("mark session finished: %w", err)
		}
		return Settled{Session: session, Order: order, Settlement: settlement}, nil
	})
	if err != nil {
		return Settled{}, fmt.Errorf("finish coworking session %s: %w", id, err)
	}

	d.confirm(ctx, domain.EventCreate, res.Order)
	d.confirm(ctx, domain.EventUpdate, res.Session)
	d.log.InfoContext(ctx, "coworking session settled", "session_id", id, "order_id", res.Order.ID,
		"minutes", settlement.Time.BillableMinutes, "total", settlement.Total.String())
	return res, nil
}

// Cancel deletes an active session without producing an Order.
func (d *Desk) Cancel(ctx context.Context, id string) error {
	if _, err := d.active(id); err != nil {
		return err
	}
	if _, err := d.submitter.Do(ctx, submit.Key("coworking-cancel", id), func(ctx context.Context) (any, error) {
		return nil, d.remote.DeleteCoworkingSession(ctx, id)
	}); err != nil {
		return fmt.Errorf("cancel coworking session: %w", err)
	}
	return d.store.Apply(domain.Event{Entity: domain.EntityCoworkingSession, Action: domain.EventDelete, ID: id})
}

func (d *Desk) active(id string) (domain.CoworkingSession, error) {
	s, ok := d.store.CoworkingSession(id)
	if !ok {
		return domain.CoworkingSession{}, fmt.Errorf("coworking session %s: %w", id, domain.ErrNotFound)
	}
	if !s.IsActive() {
		return domain.CoworkingSession{}, domain.NewConflictError("coworking session %s is already finished", id)
	}
	return s, nil
}

func (d *Desk) confirm(ctx context.Context, action domain.EventAction, item domain.Entity) {
	if err := d.store.Confirm(action, item); err != nil {
		d.log.ErrorContext(ctx, "failed to record coworking change locally", "id", item.EntityID(), "error", err)
	}
}

func settlementPayload(s domain.CoworkingSession, st billing.Settlement, method domain.PaymentMethod) domain.OrderPayload {
	return domain.OrderPayload{
		Items:         st.Lines,
		Subtotal:      st.Subtotal,
		Discount:      decimal.Zero,
		Tip:           decimal.Zero,
		Total:         st.Total,
		TotalCost:     st.TotalCost,
		ClientName:    s.ClientName,
		ServiceType:   domain.ServiceCoworking,
		PaymentMethod: method,
	}
}
