package processors

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/username/taxfolio/ledger/src/utils"
)

// PriorityScore weights a loss by its size and by how far the calendar year has run:
// |loss| * (1 + elapsed year fraction). Losses found late in the year rank higher.
func PriorityScore(loss decimal.Decimal, asOf time.Time) decimal.Decimal {
	weight := decimal.NewFromInt(1).Add(decimal.NewFromFloat(utils.YearFraction(asOf)).Round(4))
	return loss.Abs().Mul(weight).Round(2)
}

// EstimatedTaxSavings is |loss| * taxRate.
func EstimatedTaxSavings(loss, taxRate decimal.Decimal) decimal.Decimal {
	return loss.Abs().Mul(taxRate).Round(2)
}

// WashSaleSafeDate is the first day a repurchase (or loss sale) no longer falls in the window
// opened by a purchase on lastPurchase.
func WashSaleSafeDate(lastPurchase time.Time, windowDays int) time.Time {
	return utils.AddDays(lastPurchase, windowDays+1)
}
