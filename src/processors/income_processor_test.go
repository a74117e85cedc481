package processors

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/username/taxfolio/ledger/src/models"
)

func TestCalculateIncome(t *testing.T) {
	recorded := []models.Transaction{
		{Type: models.TransactionDividend, Date: day("2024-03-01"), TotalAmount: d("12.5")},
		{Type: models.TransactionDividend, Date: day("2023-12-31"), TotalAmount: d("100")},
		{Type: models.TransactionBuy, Date: day("2024-03-01"), TotalAmount: d("1000")},
	}
	receipts := []models.TransactionAdjustment{
		{AdjustmentType: models.AdjustmentCashReceipt, TotalDividend: decimal.NewNullDecimal(d("15"))},
		{AdjustmentType: models.AdjustmentCashReceipt, TotalDividend: decimal.NewNullDecimal(d("5")), DividendTaxStatus: models.DividendOrdinary},
		{AdjustmentType: models.AdjustmentCashReceipt, TotalDividend: decimal.NewNullDecimal(d("99")), IsReversed: true},
	}

	income := NewDividendProcessor().CalculateIncome(recorded, receipts, 2024)

	assert.True(t, income.Recorded.Equal(d("12.5")))
	assert.True(t, income.FromActions.Equal(d("20")))
	assert.True(t, income.Total.Equal(d("32.5")))
	assert.True(t, income.ByTaxStatus[models.DividendQualified].Equal(d("15")))
	assert.True(t, income.ByTaxStatus[models.DividendOrdinary].Equal(d("5")))
	assert.False(t, income.IsZero())

	assert.True(t, NewDividendProcessor().CalculateIncome(nil, nil, 2024).IsZero())
}

func TestTotalForYear(t *testing.T) {
	txs := []models.Transaction{
		{Type: models.TransactionBuy, Date: day("2024-01-02"), Fee: d("1.25")},
		{Type: models.TransactionSell, Date: day("2024-12-31"), Fee: d("0.75")},
		{Type: models.TransactionFee, Date: day("2024-06-30"), Fee: d("10")},
		{Type: models.TransactionFee, Date: day("2025-01-01"), Fee: d("10")},
	}

	assert.True(t, NewFeeProcessor().TotalForYear(txs, 2024).Equal(d("12")))
	assert.True(t, NewFeeProcessor().TotalForYear(txs, 2023).IsZero())
}

func TestPriorityScore(t *testing.T) {
	assert.True(t, PriorityScore(d("-1000"), day("2024-01-01")).Equal(d("1000")))
	// 182 of 366 days have passed on July 1st of a leap year
	assert.True(t, PriorityScore(d("-1000"), day("2024-07-01")).Equal(d("1497.3")))
}

func TestEstimatedTaxSavings(t *testing.T) {
	assert.True(t, EstimatedTaxSavings(d("-2000"), d("0.24")).Equal(d("480")))
	assert.True(t, EstimatedTaxSavings(d("-333.33"), d("0.15")).Equal(d("50")))
}

func TestWashSaleSafeDate(t *testing.T) {
	assert.Equal(t, day("2024-04-01"), WashSaleSafeDate(day("2024-03-01"), 30))
	assert.Equal(t, day("2025-01-31"), WashSaleSafeDate(day("2024-12-31"), 30))
}
