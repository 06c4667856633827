// Package ledger reconciles the cash drawer and settles coworking sessions.
//
// Both read the shared collections from the store and never write them
// directly: every change is a call to the authoritative store whose
// confirmed result is handed back to the store.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/fjod/go_pos/domain"
	"github.com/fjod/go_pos/internal/billing"
	"github.com/fjod/go_pos/internal/store"
	"github.com/fjod/go_pos/internal/submit"
	"github.com/shopspring/decimal"
)

// CashStore is the slice of the authoritative store the ledger calls.
type CashStore interface {
	OpenCashSession(ctx context.Context, startAmount decimal.Decimal) (domain.CashSession, error)
	CloseCashSession(ctx context.Context, id string, patch domain.CashSessionClose) (domain.CashSession, error)
	CreateWithdrawal(ctx context.Context, sessionID string, amount decimal.Decimal, description string) (domain.CashWithdrawal, error)
	DeleteWithdrawal(ctx context.Context, id string) error
}

type Ledger struct {
	remote    CashStore
	store     *store.Store
	submitter *submit.Service
	now       func() time.Time
	log       *slog.Logger
}

func NewLedger(remote CashStore, st *store.Store, submitter *submit.Service, log *slog.Logger) *Ledger {
	if log == nil {
		log = slog.Default()
	}
	return &Ledger{remote: remote, store: st, submitter: submitter, now: time.Now, log: log}
}

// Current returns the open cash session.
func (l *Ledger) Current() (domain.CashSession, bool) {
	open := l.store.OpenCashSessions()
	if len(open) == 0 {
		return domain.CashSession{}, false
	}
	if len(open) > 1 {
		l.log.Warn("more than one open cash session in local store", "count", len(open))
	}
	return open[0], true
}

// Open starts a new cash session. It is rejected while another one is open.
func (l *Ledger) Open(ctx context.Context, startAmount decimal.Decimal) (domain.CashSession, error) {
	if startAmount.IsNegative() {
		return domain.CashSession{}, domain.NewValidationError("start_amount", "must not be negative")
	}
	if cs, ok := l.Current(); ok {
		return domain.CashSession{}, domain.NewConflictError("cash session %s is already open", cs.ID)
	}

	key := submit.Key("cash-session-open", startAmount.String(), l.lastSessionID())
	cs, err := submit.Submit(ctx, l.submitter, key, func(ctx context.Context) (domain.CashSession, error) {
		return l.remote.OpenCashSession(ctx, startAmount)
	})
	if err != nil {
		return domain.CashSession{}, fmt.Errorf("open cash session: %w", err)
	}
	if err := l.store.Confirm(domain.EventCreate, cs); err != nil {
		l.log.ErrorContext(ctx, "failed to record cash session locally", "session_id", cs.ID, "error", err)
	}
	l.log.InfoContext(ctx, "cash session opened", "session_id", cs.ID, "start_amount", startAmount.String())
	return cs, nil
}

// Summary derives the drawer view of the given session.
func (l *Ledger) Summary(id string) (Summary, error) {
	cs, ok := l.store.CashSession(id)
	if !ok {
		return Summary{}, fmt.Errorf("cash session %s: %w", id, domain.ErrNotFound)
	}
	return summarize(cs, l.store.Orders(), l.store.Expenses(), l.store.Withdrawals()), nil
}

// CurrentSummary is Summary of the open session.
func (l *Ledger) CurrentSummary() (Summary, error) {
	cs, ok := l.Current()
	if !ok {
		return Summary{}, fmt.Errorf("no open cash session: %w", domain.ErrNotFound)
	}
	return l.Summary(cs.ID)
}

// Close counts the drawer and closes the session with its final totals.
func (l *Ledger) Close(ctx context.Context, id string, counted decimal.Decimal) (domain.CashSession, Summary, error) {
	if counted.IsNegative() {
		return domain.CashSession{}, Summary{}, domain.NewValidationError("counted_amount", "must not be negative")
	}
	cs, ok := l.store.CashSession(id)
	if !ok {
		return domain.CashSession{}, Summary{}, fmt.Errorf("cash session %s: %w", id, domain.ErrNotFound)
	}
	if !cs.IsOpen() {
		return domain.CashSession{}, Summary{}, domain.NewConflictError("cash session %s is already closed", id)
	}

	sum := summarize(cs, l.store.Orders(), l.store.Expenses(), l.store.Withdrawals())
	patch := domain.CashSessionClose{
		EndTime:       l.now(),
		EndAmount:     counted,
		Status:        domain.CashSessionClosed,
		TotalSales:    sum.Sales.Total,
		TotalExpenses: sum.Expenses,
		ExpectedCash:  sum.ExpectedCash,
		Difference:    billing.Difference(counted, sum.ExpectedCash),
	}

	key := submit.Key("cash-session-close", id)
	closed, err := submit.Submit(ctx, l.submitter, key, func(ctx context.Context) (domain.CashSession, error) {
		return l.remote.CloseCashSession(ctx, id, patch)
	})
	if err != nil {
		return domain.CashSession{}, Summary{}, fmt.Errorf("close cash session: %w", err)
	}
	if err := l.store.Confirm(domain.EventUpdate, closed); err != nil {
		l.log.ErrorContext(ctx, "failed to record closed cash session locally", "session_id", id, "error", err)
	}

	end := patch.EndTime
	sum.Status = string(domain.CashSessionClosed)
	sum.EndTime = &end
	l.log.InfoContext(ctx, "cash session closed", "session_id", id,
		"expected", sum.ExpectedCash.String(), "counted", counted.String(), "difference", patch.Difference.String())
	return closed, sum, nil
}

// Withdraw takes money out of the drawer of the open session. Repeats of
// one user action carry the same nonce; an empty nonce is always new.
func (l *Ledger) Withdraw(ctx context.Context, amount decimal.Decimal, description, nonce string) (domain.CashWithdrawal, error) {
	if !amount.IsPositive() {
		return domain.CashWithdrawal{}, domain.NewValidationError("amount", "must be positive")
	}
	cs, ok := l.Current()
	if !ok {
		return domain.CashWithdrawal{}, domain.NewConflictError("no open cash session")
	}

	description = submit.NormalizeText(description)
	key := submit.Key("withdrawal", cs.ID, amount.String(), description, actionNonce(nonce))
	wd, err := submit.Submit(ctx, l.submitter, key, func(ctx context.Context) (domain.CashWithdrawal, error) {
		return l.remote.CreateWithdrawal(ctx, cs.ID, amount, description)
	})
	if err != nil {
		return domain.CashWithdrawal{}, fmt.Errorf("create withdrawal: %w", err)
	}
	if err := l.store.Confirm(domain.EventCreate, wd); err != nil {
		l.log.ErrorContext(ctx, "failed to record withdrawal locally", "withdrawal_id", wd.ID, "error", err)
	}
	return wd, nil
}

// DeleteWithdrawal removes a withdrawal of the open session.
func (l *Ledger) DeleteWithdrawal(ctx context.Context, id string) error {
	var wd *domain.CashWithdrawal
	for _, w := range l.store.Withdrawals() {
		if w.ID == id {
			wd = &w
			break
		}
	}
	if wd == nil {
		return fmt.Errorf("withdrawal %s: %w", id, domain.ErrNotFound)
	}
	cs, ok := l.store.CashSession(wd.CashSessionID)
	if !ok || !cs.IsOpen() {
		return domain.NewConflictError("withdrawal %s belongs to a closed cash session", id)
	}

	key := submit.Key("withdrawal-delete", id)
	if _, err := l.submitter.Do(ctx, key, func(ctx context.Context) (any, error) {
		return nil, l.remote.DeleteWithdrawal(ctx, id)
	}); err != nil {
		return fmt.Errorf("delete withdrawal: %w", err)
	}
	return l.store.Apply(domain.Event{Entity: domain.EntityWithdrawal, Action: domain.EventDelete, ID: id})
}

// History returns closed sessions, newest first.
func (l *Ledger) History() []domain.CashSession {
	var closed []domain.CashSession
	for _, cs := range l.store.CashSessions() {
		if !cs.IsOpen() {
			closed = append(closed, cs)
		}
	}
	sort.SliceStable(closed, func(i, j int) bool {
		return closed[i].StartTime.After(closed[j].StartTime)
	})
	return closed
}

// lastSessionID scopes the open key so reopening after a close is a new
// action, while a double tap on the same open collapses.
func (l *Ledger) lastSessionID() string {
	var last domain.CashSession
	for _, cs := range l.store.CashSessions() {
		if cs.StartTime.After(last.StartTime) {
			last = cs
		}
	}
	return last.ID
}

// actionNonce returns nonce, or a fresh one when the caller has none.
func actionNonce(nonce string) string {
	if nonce == "" {
		return submit.NewNonce()
	}
	return nonce
}
