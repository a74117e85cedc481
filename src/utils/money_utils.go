package utils

import (
	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// FormatMoney renders a decimal amount in currency, e.g. "$1,234.50".
// Unknown currencies fall back to the plain decimal with two places.
func FormatMoney(amount decimal.Decimal, currency string) string {
	cur := money.GetCurrency(currency)
	if cur == nil {
		return amount.StringFixed(2) + " " + currency
	}
	minor := amount.Shift(int32(cur.Fraction)).Round(0)
	return money.New(minor.IntPart(), cur.Code).Display()
}
