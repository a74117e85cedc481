package processors

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/taxfolio/ledger/src/models"
)

func splitAdjustment(txID, actionID int64, qty0, price0, qty1, price1 string) models.TransactionAdjustment {
	return models.TransactionAdjustment{
		TransactionID:     txID,
		CorporateActionID: actionID,
		AdjustmentType:    models.AdjustmentQuantityPrice,
		OriginalQuantity:  decimal.NewNullDecimal(d(qty0)),
		OriginalPrice:     decimal.NewNullDecimal(d(price0)),
		AdjustedQuantity:  decimal.NewNullDecimal(d(qty1)),
		AdjustedPrice:     decimal.NewNullDecimal(d(price1)),
	}
}

func appliedSplit(id, from, to int64, exDate string) models.CorporateAction {
	s := split(id, from, to, exDate)
	s.Status = models.StatusApplied
	return s
}

func TestNormalizeForSplits_AdjustsBuysAndEarlierSells(t *testing.T) {
	txs := []models.Transaction{
		buy(1, "2024-01-15", "100", "150"),
		sell(2, "2024-02-01", "50", "160"),
		sell(3, "2024-06-15", "100", "80"),
	}
	adjustments := map[int64][]models.TransactionAdjustment{
		1: {splitAdjustment(1, 10, "100", "150", "200", "75")},
	}
	splits := []models.CorporateAction{appliedSplit(10, 1, 2, "2024-03-01")}

	out := NormalizeForSplits(txs, adjustments, splits)

	assert.True(t, out[0].AdjustedQuantity().Equal(d("200")))
	assert.True(t, out[0].AdjustedPrice().Equal(d("75")))
	assert.True(t, out[0].Quantity.Equal(d("100")), "recorded quantity is kept")
	assert.True(t, out[1].AdjustedQuantity().Equal(d("-100")), "pre-split sell is restated in post-split shares")
	assert.True(t, out[1].AdjustedPrice().Equal(d("80")))
	assert.True(t, out[2].AdjustedQuantity().Equal(d("-100")), "post-split sell is already in current units")
	assert.True(t, out[2].AdjustedPrice().Equal(d("80")))

	assert.Equal(t, models.SplitFactor{}, txs[0].Split, "input must not be modified")
}

func TestNormalizeForSplits_RealizedGainUnchangedBySplit(t *testing.T) {
	raw := []models.Transaction{
		buy(1, "2024-01-15", "100", "150"),
		sell(2, "2024-02-01", "50", "160"),
	}
	before := realized(t, raw, 2024)

	adjustments := map[int64][]models.TransactionAdjustment{
		1: {splitAdjustment(1, 10, "100", "150", "200", "75")},
	}
	normalized := NormalizeForSplits(raw, adjustments, []models.CorporateAction{appliedSplit(10, 1, 2, "2024-03-01")})
	after := realized(t, normalized, 2024)

	assert.True(t, before.Total.Equal(d("500")))
	assert.True(t, after.Total.Equal(before.Total), "got %s", after.Total)
}

func TestNormalizeForSplits_StackedSplitsCompose(t *testing.T) {
	txs := []models.Transaction{buy(1, "2020-01-15", "10", "400")}
	adjustments := map[int64][]models.TransactionAdjustment{
		1: {
			splitAdjustment(1, 10, "10", "400", "20", "200"),
			splitAdjustment(1, 11, "20", "200", "80", "50"),
		},
	}

	splits := []models.CorporateAction{appliedSplit(10, 1, 2, "2021-01-01"), appliedSplit(11, 1, 4, "2022-01-01")}

	out := NormalizeForSplits(txs, adjustments, splits)
	assert.Equal(t, models.SplitFactor{Num: 8, Den: 1}, out[0].Split)
	assert.True(t, out[0].AdjustedQuantity().Equal(d("80")))
	assert.True(t, out[0].AdjustedPrice().Equal(d("50")))
}

func TestNormalizeForSplits_AdjustmentWithoutAppliedSplitIsIgnored(t *testing.T) {
	txs := []models.Transaction{buy(1, "2020-01-15", "10", "400")}
	adjustments := map[int64][]models.TransactionAdjustment{
		1: {splitAdjustment(1, 10, "10", "400", "20", "200")},
	}

	out := NormalizeForSplits(txs, adjustments, nil)
	assert.True(t, out[0].AdjustedQuantity().Equal(d("10")))
}

func TestNormalizeForSplits_IgnoresReversedAdjustmentsAndSplits(t *testing.T) {
	reversed := splitAdjustment(1, 10, "100", "150", "200", "75")
	reversed.IsReversed = true
	txs := []models.Transaction{
		buy(1, "2024-01-15", "100", "150"),
		sell(2, "2024-02-01", "50", "160"),
	}
	reversedSplit := appliedSplit(10, 1, 2, "2024-03-01")
	reversedSplit.Status = models.StatusReversed

	out := NormalizeForSplits(txs, map[int64][]models.TransactionAdjustment{1: {reversed}}, []models.CorporateAction{reversedSplit})

	require.Len(t, out, 2)
	assert.True(t, out[0].AdjustedQuantity().Equal(d("100")))
	assert.True(t, out[1].AdjustedQuantity().Equal(d("-50")))
	assert.True(t, out[1].AdjustedPrice().Equal(d("160")))
}

func TestNormalizeForSplits_ReverseSplitKeepsGainsExact(t *testing.T) {
	raw := []models.Transaction{
		buy(1, "2024-01-10", "100", "30"),
		sell(2, "2024-02-01", "50", "40"),
		sell(3, "2024-02-02", "50", "40"),
	}
	before := realized(t, raw, 2024)

	adjustments := map[int64][]models.TransactionAdjustment{
		1: {splitAdjustment(1, 10, "100", "30", "33.3333333333333333", "90")},
	}
	normalized := NormalizeForSplits(raw, adjustments, []models.CorporateAction{appliedSplit(10, 3, 1, "2024-03-01")})
	for _, tx := range normalized {
		assert.Equal(t, models.SplitFactor{Num: 1, Den: 3}, tx.Split)
	}

	result, err := NewLotMatcher().Match(normalized)
	require.NoError(t, err, "two halves of a 1:3 restated lot still close it exactly")
	assert.Empty(t, result.OpenLots)

	after := realized(t, normalized, 2024)
	assert.True(t, before.Total.Equal(d("1000")))
	assert.True(t, after.Total.Equal(before.Total), "got %s", after.Total)
}
