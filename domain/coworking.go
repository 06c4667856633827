package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type CoworkingStatus string

const (
	CoworkingActive   CoworkingStatus = "active"
	CoworkingFinished CoworkingStatus = "finished"
)

// CoworkingSession is an open-ended, time-billed occupancy of the workspace.
type CoworkingSession struct {
	ID              string           `json:"id"`
	ClientName      string           `json:"client_name"`
	StartTime       time.Time        `json:"start_time"`
	EndTime         *time.Time       `json:"end_time,omitempty"`
	Status          CoworkingStatus  `json:"status"`
	Extras          []CartLine       `json:"extras"`
	Total           *decimal.Decimal `json:"total,omitempty"`
	DurationMinutes *int             `json:"duration_minutes,omitempty"`
	PaymentMethod   *PaymentMethod   `json:"payment_method,omitempty"`
	OrderID         *string          `json:"order_id,omitempty"`
}

func (s CoworkingSession) EntityID() string { return s.ID }

func (s CoworkingSession) IsActive() bool { return s.Status == CoworkingActive }

// CoworkingPatch carries the fields changed by an update. Nil fields are left alone.
type CoworkingPatch struct {
	Extras          []CartLine       `json:"extras,omitempty"`
	EndTime         *time.Time       `json:"end_time,omitempty"`
	Status          *CoworkingStatus `json:"status,omitempty"`
	Total           *decimal.Decimal `json:"total,omitempty"`
	DurationMinutes *int             `json:"duration_minutes,omitempty"`
	PaymentMethod   *PaymentMethod   `json:"payment_method,omitempty"`
	OrderID         *string          `json:"order_id,omitempty"`
}
