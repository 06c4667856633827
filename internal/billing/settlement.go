package billing

import (
	"fmt"
	"time"

	"github.com/fjod/go_pos/domain"
	"github.com/shopspring/decimal"
)

// TimeProductID identifies the synthetic line carrying the time charge.
const TimeProductID = "coworking-time"

// Settlement is the bill of a finished coworking session.
type Settlement struct {
	Lines     []domain.CartLine `json:"lines"`
	Time      Cost              `json:"time"`
	Subtotal  decimal.Decimal   `json:"subtotal"`
	Total     decimal.Decimal   `json:"total"`
	TotalCost decimal.Decimal   `json:"total_cost"`
}

// ComposeSettlement bills the session as if it ended at end. Cafeteria
// extras are complimentary but keep their cost for margin reports; other
// extras are charged at full price. No discount is applied here.
func ComposeSettlement(session domain.CoworkingSession, end time.Time, rates RateTable) Settlement {
	cost := CoworkingCost(session.StartTime, end, rates)

	lines := make(domain.Cart, 0, len(session.Extras)+1)
	lines = append(lines, domain.CartLine{
		ProductID: TimeProductID,
		Name:      fmt.Sprintf("Coworking %s (%d min)", rates.Name, cost.BillableMinutes),
		UnitPrice: cost.Amount,
		UnitCost:  decimal.Zero,
		Quantity:  1,
	})
	for _, extra := range session.Extras {
		if extra.Category == domain.CategoryCafeteria {
			extra.UnitPrice = decimal.Zero
		}
		lines = append(lines, extra)
	}

	subtotal := lines.Subtotal()
	return Settlement{
		Lines:     lines,
		Time:      cost,
		Subtotal:  subtotal,
		Total:     subtotal,
		TotalCost: lines.TotalCost(),
	}
}
