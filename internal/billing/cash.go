package billing

import "github.com/shopspring/decimal"

// ExpectedCash is what the drawer should hold at close.
func ExpectedCash(startAmount, cashSales, expenses, withdrawals decimal.Decimal) decimal.Decimal {
	return startAmount.Add(cashSales).Sub(expenses).Sub(withdrawals)
}

// Difference is positive when the drawer holds more than expected.
func Difference(counted, expected decimal.Decimal) decimal.Decimal {
	return counted.Sub(expected)
}
