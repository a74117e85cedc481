package processors

import (
	"github.com/shopspring/decimal"
	"github.com/username/taxfolio/ledger/src/models"
	"github.com/username/taxfolio/ledger/src/utils"
)

type feeProcessorImpl struct{}

func NewFeeProcessor() FeeProcessor {
	return &feeProcessorImpl{}
}

// TotalForYear adds the fee column of every row dated in taxYear.
// Dedicated fee rows keep their amount in that column too.
func (p *feeProcessorImpl) TotalForYear(txs []models.Transaction, taxYear int) decimal.Decimal {
	total := decimal.Zero
	for _, tx := range txs {
		if !utils.InYear(tx.Date, taxYear) {
			continue
		}
		total = total.Add(tx.Fee)
	}
	return total
}
