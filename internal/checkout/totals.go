package checkout

import (
	"sort"
	"strconv"
	"strings"

	"github.com/fjod/go_pos/domain"
	"github.com/fjod/go_pos/internal/submit"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

type Totals struct {
	Subtotal  decimal.Decimal `json:"subtotal"`
	Discount  decimal.Decimal `json:"discount"`
	Tip       decimal.Decimal `json:"tip"`
	Total     decimal.Decimal `json:"total"`
	TotalCost decimal.Decimal `json:"total_cost"`
}

// ComputeTotals prices a cart. The customer discount applies to the
// subtotal only; the tip is added after it.
func ComputeTotals(cart domain.Cart, discountPct, tip decimal.Decimal) Totals {
	subtotal := cart.Subtotal()
	discount := subtotal.Mul(discountPct).Div(hundred).Round(2)
	return Totals{
		Subtotal:  subtotal,
		Discount:  discount,
		Tip:       tip,
		Total:     subtotal.Sub(discount).Add(tip),
		TotalCost: cart.TotalCost(),
	}
}

// checkoutKey derives the idempotency key of one checkout attempt. The
// nonce identifies the user action, so two separate sales of the same
// cart never collide while a double tap always does.
func checkoutKey(cart domain.Cart, d Details, nonce string) string {
	lines := make([]string, 0, len(cart))
	for _, l := range cart {
		lines = append(lines, l.ProductID+"*"+strconv.Itoa(l.Quantity)+"@"+l.UnitPrice.String())
	}
	sort.Strings(lines)

	return submit.Key("checkout",
		strings.Join(lines, ","),
		submit.NormalizeText(d.ClientName),
		string(d.ServiceType),
		string(d.PaymentMethod),
		d.CustomerID,
		d.Tip.String(),
		nonce,
	)
}
