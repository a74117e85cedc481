package processors

import (
	"github.com/shopspring/decimal"
	"github.com/username/taxfolio/ledger/src/models"
	"github.com/username/taxfolio/ledger/src/utils"
)

// dividendProcessorImpl implements the DividendProcessor interface.
type dividendProcessorImpl struct{}

// NewDividendProcessor creates a new instance of DividendProcessor.
func NewDividendProcessor() DividendProcessor {
	return &dividendProcessorImpl{}
}

// CalculateIncome sums ledger dividend rows dated in taxYear and the cash receipts produced by
// applied cash dividends. Receipts are expected to be pre-filtered to the year by ex-date.
func (p *dividendProcessorImpl) CalculateIncome(recorded []models.Transaction, receipts []models.TransactionAdjustment, taxYear int) models.DividendIncome {
	income := models.NewDividendIncome()

	for _, t := range recorded {
		if t.Type != models.TransactionDividend || !utils.InYear(t.Date, taxYear) {
			continue
		}
		income.Recorded = income.Recorded.Add(t.TotalAmount)
	}

	for _, r := range receipts {
		if r.AdjustmentType != models.AdjustmentCashReceipt || r.IsReversed || !r.TotalDividend.Valid {
			continue
		}
		income.FromActions = income.FromActions.Add(r.TotalDividend.Decimal)

		status := r.DividendTaxStatus
		if status == "" {
			status = models.DividendQualified
		}
		current, ok := income.ByTaxStatus[status]
		if !ok {
			current = decimal.Zero
		}
		income.ByTaxStatus[status] = current.Add(r.TotalDividend.Decimal)
	}

	income.Total = income.Recorded.Add(income.FromActions)
	return income
}
