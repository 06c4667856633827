package billing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var ErrInvalidRates = errors.New("invalid rate table")

// RateTable holds the constants of one coworking tariff.
type RateTable struct {
	Name              string
	FirstHourRate     decimal.Decimal
	HalfHourRate      decimal.Decimal
	DayRate           decimal.Decimal
	DayThresholdHours int
	ToleranceMinutes  int
}

// GeneralRates is the walk-in coworking tariff.
var GeneralRates = RateTable{
	Name:              "general",
	FirstHourRate:     decimal.NewFromInt(58),
	HalfHourRate:      decimal.NewFromInt(18),
	DayRate:           decimal.NewFromInt(180),
	DayThresholdHours: 3,
	ToleranceMinutes:  5,
}

// InSessionRates is the tariff applied to sessions billed from the session screen.
var InSessionRates = RateTable{
	Name:              "in-session",
	FirstHourRate:     decimal.NewFromInt(72),
	HalfHourRate:      decimal.NewFromInt(20),
	DayRate:           decimal.NewFromInt(220),
	DayThresholdHours: 4,
	ToleranceMinutes:  5,
}

func (r RateTable) Validate() error {
	if r.FirstHourRate.IsNegative() || r.HalfHourRate.IsNegative() || r.DayRate.IsNegative() {
		return fmt.Errorf("%w: %q has a negative rate", ErrInvalidRates, r.Name)
	}
	if r.DayThresholdHours < 2 {
		return fmt.Errorf("%w: %q day threshold must be at least 2 hours", ErrInvalidRates, r.Name)
	}
	if r.ToleranceMinutes < 0 || r.ToleranceMinutes >= 30 {
		return fmt.Errorf("%w: %q tolerance must be within [0,30) minutes", ErrInvalidRates, r.Name)
	}
	return nil
}

// Price returns the cost of the given number of billable minutes.
func (r RateTable) Price(minutes int) decimal.Decimal {
	switch {
	case minutes <= 0:
		return decimal.Zero
	case minutes <= 60:
		return r.FirstHourRate
	case minutes >= r.DayThresholdHours*60:
		return r.DayRate
	}
	blocks := (minutes - 60 + 29) / 30
	return r.FirstHourRate.Add(r.HalfHourRate.Mul(decimal.NewFromInt(int64(blocks))))
}
