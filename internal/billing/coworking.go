package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// Cost is the time charge of a coworking session.
type Cost struct {
	Amount          decimal.Decimal `json:"amount"`
	BillableMinutes int             `json:"billable_minutes"`
}

// BillableMinutes rounds elapsed up to whole minutes, then forgives a
// remainder of 1..tolerance minutes past a half-hour block boundary.
// The first hour is never shortened this way.
func BillableMinutes(elapsed time.Duration, tolerance int) int {
	if elapsed <= 0 {
		return 0
	}
	minutes := int(elapsed / time.Minute)
	if elapsed%time.Minute != 0 {
		minutes++
	}
	if r := minutes % 30; r >= 1 && r <= tolerance && minutes-r > 60 {
		minutes -= r
	}
	return minutes
}

// CoworkingCost computes the time charge for a session running from start to end.
func CoworkingCost(start, end time.Time, rates RateTable) Cost {
	minutes := BillableMinutes(end.Sub(start), rates.ToleranceMinutes)
	return Cost{
		Amount:          rates.Price(minutes),
		BillableMinutes: minutes,
	}
}
