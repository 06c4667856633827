package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	PaymentCash   PaymentMethod = "cash"
	PaymentCard   PaymentMethod = "card"
	PaymentCredit PaymentMethod = "credit"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentCredit:
		return true
	}
	return false
}

type ServiceType string

const (
	ServiceDineIn    ServiceType = "dine_in"
	ServiceTakeaway  ServiceType = "takeaway"
	ServiceCoworking ServiceType = "coworking"
)

// Order is a committed sale. It is never edited after creation, only deleted.
type Order struct {
	ID            string          `json:"id"`
	CreatedAt     time.Time       `json:"created_at"`
	Items         []CartLine      `json:"items"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Discount      decimal.Decimal `json:"discount"`
	Tip           decimal.Decimal `json:"tip"`
	Total         decimal.Decimal `json:"total"`
	TotalCost     decimal.Decimal `json:"total_cost"`
	ClientName    string          `json:"client_name"`
	ServiceType   ServiceType     `json:"service_type"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	CustomerID    *string         `json:"customer_id,omitempty"`
}

func (o Order) EntityID() string { return o.ID }

// OrderPayload is what the terminal sends to create an Order; the
// authoritative store assigns ID and CreatedAt.
type OrderPayload struct {
	Items         []CartLine      `json:"items"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Discount      decimal.Decimal `json:"discount"`
	Tip           decimal.Decimal `json:"tip"`
	Total         decimal.Decimal `json:"total"`
	TotalCost     decimal.Decimal `json:"total_cost"`
	ClientName    string          `json:"client_name"`
	ServiceType   ServiceType     `json:"service_type"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	CustomerID    *string         `json:"customer_id,omitempty"`
}
