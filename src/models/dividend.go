package models

import "github.com/shopspring/decimal"

// DividendIncome holds dividend income for one tax year.
// Recorded comes from ledger dividend rows, FromActions from applied cash dividends.
type DividendIncome struct {
	Recorded    decimal.Decimal                       `json:"recorded"`
	FromActions decimal.Decimal                       `json:"from_actions"`
	Total       decimal.Decimal                       `json:"total"`
	ByTaxStatus map[DividendTaxStatus]decimal.Decimal `json:"by_tax_status"`
}

// NewDividendIncome returns a zeroed DividendIncome.
func NewDividendIncome() DividendIncome {
	return DividendIncome{
		Recorded:    decimal.Zero,
		FromActions: decimal.Zero,
		Total:       decimal.Zero,
		ByTaxStatus: make(map[DividendTaxStatus]decimal.Decimal),
	}
}

// IsZero reports whether no dividend income was found.
func (d DividendIncome) IsZero() bool {
	return d.Recorded.IsZero() && d.FromActions.IsZero()
}
