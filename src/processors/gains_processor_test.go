package processors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/taxfolio/ledger/src/models"
)

func realized(t *testing.T, txs []models.Transaction, year int) RealizedTotals {
	t.Helper()
	result, err := NewLotMatcher().Match(txs)
	require.NoError(t, err)
	return NewGainsProcessor().RealizedForYear(result.Sales, year)
}

func TestRealizedForYear_ShortTermGain(t *testing.T) {
	totals := realized(t, []models.Transaction{
		buy(1, "2024-01-15", "100", "150"),
		sell(2, "2024-06-15", "50", "160"),
	}, 2024)

	assert.True(t, totals.Total.Equal(d("500")), "got %s", totals.Total)
	assert.True(t, totals.ShortTerm.Equal(d("500")))
	assert.True(t, totals.LongTerm.IsZero())
	assert.Equal(t, 1, totals.Sales)
}

func TestRealizedForYear_FIFOAcrossLots(t *testing.T) {
	totals := realized(t, []models.Transaction{
		buy(1, "2023-01-15", "100", "200"),
		buy(2, "2023-06-15", "100", "250"),
		sell(3, "2024-03-15", "150", "280"),
	}, 2024)

	assert.True(t, totals.Total.Equal(d("9500")), "got %s", totals.Total)
	// the first lot is 425 days old, the second 274
	assert.True(t, totals.LongTerm.Equal(d("8000")))
	assert.True(t, totals.ShortTerm.Equal(d("1500")))
}

func TestRealizedForYear_LongTermLoss(t *testing.T) {
	totals := realized(t, []models.Transaction{
		buy(1, "2023-01-15", "100", "100"),
		sell(2, "2024-06-15", "100", "80"),
	}, 2024)

	assert.True(t, totals.Total.Equal(d("-2000")), "got %s", totals.Total)
	assert.True(t, totals.LongTerm.Equal(d("-2000")))
	assert.True(t, totals.ShortTerm.IsZero())
}

func TestRealizedForYear_OnlyCountsSellsInYear(t *testing.T) {
	txs := []models.Transaction{
		buy(1, "2023-01-15", "100", "10"),
		sell(2, "2023-06-15", "40", "12"),
		sell(3, "2024-06-15", "40", "15"),
	}

	totals := realized(t, txs, 2023)
	assert.Equal(t, 1, totals.Sales)
	assert.True(t, totals.Total.Equal(d("80")))

	totals = realized(t, txs, 2024)
	assert.Equal(t, 1, totals.Sales)
	assert.True(t, totals.Total.Equal(d("200")))
}

func TestRealizedForYear_DecemberThirtyFirstBelongsToItsYear(t *testing.T) {
	txs := []models.Transaction{
		buy(1, "2023-03-01", "10", "10"),
		sell(2, "2023-12-31", "10", "11"),
	}

	assert.Equal(t, 1, realized(t, txs, 2023).Sales)
	assert.Equal(t, 0, realized(t, txs, 2024).Sales)
	assert.Equal(t, 0, realized(t, txs, 2022).Sales)
}

func TestClassifyHolding_Boundary(t *testing.T) {
	acquired := day("2023-01-01")

	assert.Equal(t, models.LongTerm, ClassifyHolding(acquired, day("2024-01-01")), "365 days")
	assert.Equal(t, models.ShortTerm, ClassifyHolding(acquired, day("2023-12-31")), "364 days")
	assert.Equal(t, models.ShortTerm, ClassifyHolding(acquired, acquired))
}

func TestClassifyHolding_LeapYearCountsDays(t *testing.T) {
	// 2024 has 366 days, so the calendar anniversary is already past the threshold
	acquired := day("2024-01-01")
	assert.Equal(t, models.LongTerm, ClassifyHolding(acquired, day("2024-12-31")))
	assert.Equal(t, models.ShortTerm, ClassifyHolding(acquired, day("2024-12-30")))
}

func TestClosedLots(t *testing.T) {
	result, err := NewLotMatcher().Match([]models.Transaction{
		buy(1, "2023-01-15", "100", "200"),
		buy(2, "2023-06-15", "100", "250"),
		sell(3, "2024-03-15", "150", "280"),
	})
	require.NoError(t, err)

	closed := NewGainsProcessor().ClosedLots(result.Sales)
	require.Len(t, closed, 2)

	assert.Equal(t, int64(1), closed[0].LotID)
	assert.Equal(t, int64(3), closed[0].SaleID)
	assert.True(t, closed[0].Gain.Equal(d("8000")))
	assert.Equal(t, models.LongTerm, closed[0].Term)
	assert.Equal(t, 425, closed[0].HoldingDays)

	assert.Equal(t, int64(2), closed[1].LotID)
	assert.True(t, closed[1].Quantity.Equal(d("50")))
	assert.True(t, closed[1].Gain.Equal(d("1500")))
	assert.Equal(t, models.ShortTerm, closed[1].Term)
}

func TestValueOpenLots(t *testing.T) {
	lots := []models.OpenLot{
		{LotID: 1, AcquisitionDate: day("2023-01-01"), RemainingQuantity: d("10"), UnitCost: d("100"), CostBasis: d("1000")},
		{LotID: 2, AcquisitionDate: day("2024-05-01"), RemainingQuantity: d("5"), UnitCost: d("130"), CostBasis: d("650")},
	}

	totals := NewGainsProcessor().ValueOpenLots(lots, d("120"), day("2024-06-01"))

	assert.True(t, totals.Quantity.Equal(d("15")))
	assert.True(t, totals.CostBasis.Equal(d("1650")))
	assert.True(t, totals.MarketValue.Equal(d("1800")))
	assert.True(t, totals.LongTerm.Equal(d("200")))
	assert.True(t, totals.ShortTerm.Equal(d("-50")))
	assert.True(t, totals.Total.Equal(d("150")))
}
