package domain

import "github.com/shopspring/decimal"

// CategoryCafeteria marks products served complimentary inside a coworking session.
const CategoryCafeteria = "cafeteria"

// CartLine is one product row of an in-progress sale. Lines are value
// types: an Order keeps its own copy, never a reference into the cart.
type CartLine struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Category  string          `json:"category,omitempty"`
	UnitPrice decimal.Decimal `json:"price"`
	UnitCost  decimal.Decimal `json:"cost"`
	Quantity  int             `json:"quantity"`
}

func (l CartLine) Total() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

func (l CartLine) TotalCost() decimal.Decimal {
	return l.UnitCost.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Cart is the set of lines owned by the current checkout until commit.
type Cart []CartLine

// Snapshot returns a copy of the cart that shares no backing array with c.
func (c Cart) Snapshot() Cart {
	if c == nil {
		return nil
	}
	out := make(Cart, len(c))
	copy(out, c)
	return out
}

func (c Cart) IsEmpty() bool {
	return len(c) == 0
}

func (c Cart) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, l := range c {
		total = total.Add(l.Total())
	}
	return total
}

func (c Cart) TotalCost() decimal.Decimal {
	total := decimal.Zero
	for _, l := range c {
		total = total.Add(l.TotalCost())
	}
	return total
}

