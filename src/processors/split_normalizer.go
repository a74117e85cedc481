package processors

import (
	"github.com/username/taxfolio/ledger/src/models"
)

// NormalizeForSplits attaches to every buy and sell the split factor that converts its recorded
// shares to current shares. Recorded quantities and prices are left as they are, so matching
// and gains stay exact for ratios such as 1:3.
//
// A buy composes the splits behind its non-reversed quantity_price adjustments. A sell is never
// adjusted itself, so it composes every applied split whose ex-date falls after it.
// The input slice is not modified.
func NormalizeForSplits(txs []models.Transaction, adjustments map[int64][]models.TransactionAdjustment, appliedSplits []models.CorporateAction) []models.Transaction {
	splits := make(map[int64]models.CorporateAction, len(appliedSplits))
	for _, split := range appliedSplits {
		if split.ActionType != models.ActionStockSplit || split.Status != models.StatusApplied {
			continue
		}
		if split.SplitRatioFrom <= 0 || split.SplitRatioTo <= 0 {
			continue
		}
		splits[split.ID] = split
	}

	out := make([]models.Transaction, len(txs))
	for i, tx := range txs {
		tx.Split = models.SplitFactor{}
		switch tx.Type {
		case models.TransactionBuy:
			for _, adj := range adjustments[tx.ID] {
				if adj.AdjustmentType != models.AdjustmentQuantityPrice || adj.IsReversed {
					continue
				}
				if split, ok := splits[adj.CorporateActionID]; ok {
					tx.Split = tx.Split.Then(split.SplitRatioFrom, split.SplitRatioTo)
				}
			}
		case models.TransactionSell:
			for _, split := range appliedSplits {
				if _, ok := splits[split.ID]; ok && tx.Date.Before(split.ExDate) {
					tx.Split = tx.Split.Then(split.SplitRatioFrom, split.SplitRatioTo)
				}
			}
		}
		out[i] = tx
	}
	return out
}
