package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type CashSessionStatus string

const (
	CashSessionOpen   CashSessionStatus = "open"
	CashSessionClosed CashSessionStatus = "closed"
)

// CashSession is one drawer accounting period. At most one may be open.
type CashSession struct {
	ID            string            `json:"id"`
	StartTime     time.Time         `json:"start_time"`
	EndTime       *time.Time        `json:"end_time,omitempty"`
	StartAmount   decimal.Decimal   `json:"start_amount"`
	EndAmount     *decimal.Decimal  `json:"end_amount,omitempty"`
	Status        CashSessionStatus `json:"status"`
	TotalSales    decimal.Decimal   `json:"total_sales"`
	TotalExpenses decimal.Decimal   `json:"total_expenses"`
	ExpectedCash  decimal.Decimal   `json:"expected_cash"`
	Difference    decimal.Decimal   `json:"difference"`
}

func (s CashSession) EntityID() string { return s.ID }

func (s CashSession) IsOpen() bool { return s.Status == CashSessionOpen }

// Contains reports whether t falls inside the session period. An open
// session has no upper bound.
func (s CashSession) Contains(t time.Time) bool {
	if t.Before(s.StartTime) {
		return false
	}
	return s.EndTime == nil || !t.After(*s.EndTime)
}

// CashSessionClose is the patch sent when a session is closed.
type CashSessionClose struct {
	EndTime       time.Time         `json:"end_time"`
	EndAmount     decimal.Decimal   `json:"end_amount"`
	Status        CashSessionStatus `json:"status"`
	TotalSales    decimal.Decimal   `json:"total_sales"`
	TotalExpenses decimal.Decimal   `json:"total_expenses"`
	ExpectedCash  decimal.Decimal   `json:"expected_cash"`
	Difference    decimal.Decimal   `json:"difference"`
}

type CashWithdrawal struct {
	ID            string          `json:"id"`
	CashSessionID string          `json:"cash_session_id"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description"`
	CreatedAt     time.Time       `json:"created_at"`
}

func (w CashWithdrawal) EntityID() string { return w.ID }

// Expense is money paid out of the business during operation.
type Expense struct {
	ID          string          `json:"id"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Category    string          `json:"category,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

func (e Expense) EntityID() string { return e.ID }
