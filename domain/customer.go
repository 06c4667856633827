package domain

import "github.com/shopspring/decimal"

type Customer struct {
	ID                 string          `json:"id"`
	Name               string          `json:"name"`
	DiscountPercentage decimal.Decimal `json:"discount_percentage"`
	CreditLimit        decimal.Decimal `json:"credit_limit"`
	CurrentCredit      decimal.Decimal `json:"current_credit"`
}

func (c Customer) EntityID() string { return c.ID }

// AvailableCredit is the amount that can still be charged to store credit.
func (c Customer) AvailableCredit() decimal.Decimal {
	avail := c.CreditLimit.Sub(c.CurrentCredit)
	if avail.IsNegative() {
		return decimal.Zero
	}
	return avail
}

// CanCharge reports whether amount fits within the credit limit.
func (c Customer) CanCharge(amount decimal.Decimal) bool {
	return c.CurrentCredit.Add(amount).LessThanOrEqual(c.CreditLimit)
}

type Product struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Category string          `json:"category"`
	Price    decimal.Decimal `json:"price"`
	Cost     decimal.Decimal `json:"cost"`
	Stock    int             `json:"stock"`
}

func (p Product) EntityID() string { return p.ID }
