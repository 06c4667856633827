package ledger

import (
	"time"

	"github.com/fjod/go_pos/domain"
	"github.com/fjod/go_pos/internal/billing"
	"github.com/shopspring/decimal"
)

// Sales breaks recorded Orders down by payment method.
type Sales struct {
	Cash   decimal.Decimal `json:"cash"`
	Card   decimal.Decimal `json:"card"`
	Credit decimal.Decimal `json:"credit"`
	Total  decimal.Decimal `json:"total"`
}

// Summary is the drawer view of one cash session. It is derived from the
// store on every call and never persisted.
type Summary struct {
	SessionID    string          `json:"session_id"`
	Status       string          `json:"status"`
	StartTime    time.Time       `json:"start_time"`
	EndTime      *time.Time      `json:"end_time,omitempty"`
	StartAmount  decimal.Decimal `json:"start_amount"`
	Sales        Sales           `json:"sales"`
	OrderCount   int             `json:"order_count"`
	Expenses     decimal.Decimal `json:"expenses"`
	Withdrawals  decimal.Decimal `json:"withdrawals"`
	ExpectedCash decimal.Decimal `json:"expected_cash"`
	// Coworking settlements are Orders, so this amount is already part of
	// Sales. It is reported on its own and never added again.
	CoworkingRevenue decimal.Decimal `json:"coworking_revenue"`
	CoworkingCount   int             `json:"coworking_count"`
}

func summarize(cs domain.CashSession, orders []domain.Order, expenses []domain.Expense, withdrawals []domain.CashWithdrawal) Summary {
	s := Summary{
		SessionID:        cs.ID,
		Status:           string(cs.Status),
		StartTime:        cs.StartTime,
		EndTime:          cs.EndTime,
		StartAmount:      cs.StartAmount,
		Sales:            Sales{Cash: decimal.Zero, Card: decimal.Zero, Credit: decimal.Zero, Total: decimal.Zero},
		Expenses:         decimal.Zero,
		Withdrawals:      decimal.Zero,
		CoworkingRevenue: decimal.Zero,
	}

	for _, o := range orders {
		if !cs.Contains(o.CreatedAt) {
			continue
		}
		s.OrderCount++
		s.Sales.Total = s.Sales.Total.Add(o.Total)
		switch o.PaymentMethod {
		case domain.PaymentCash:
			s.Sales.Cash = s.Sales.Cash.Add(o.Total)
		case domain.PaymentCard:
			s.Sales.Card = s.Sales.Card.Add(o.Total)
		case domain.PaymentCredit:
			s.Sales.Credit = s.Sales.Credit.Add(o.Total)
		}
		if o.ServiceType == domain.ServiceCoworking {
			s.CoworkingCount++
			s.CoworkingRevenue = s.CoworkingRevenue.Add(o.Total)
		}
	}

	for _, e := range expenses {
		if cs.Contains(e.CreatedAt) {
			s.Expenses = s.Expenses.Add(e.Amount)
		}
	}
	for _, w := range withdrawals {
		if w.CashSessionID == cs.ID {
			s.Withdrawals = s.Withdrawals.Add(w.Amount)
		}
	}

	s.ExpectedCash = billing.ExpectedCash(cs.StartAmount, s.Sales.Cash, s.Expenses, s.Withdrawals)
	return s
}
