package processors

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/username/taxfolio/ledger/src/models"
)

// LotMatcher pairs sells with the buy lots they consume.
type LotMatcher interface {
	Match(txs []models.Transaction) (*models.MatchResult, error)
}

// GainsProcessor turns lot matches into gain figures.
type GainsProcessor interface {
	RealizedForYear(sales []models.SaleMatch, taxYear int) RealizedTotals
	ClosedLots(sales []models.SaleMatch) []models.ClosedLot
	ValueOpenLots(lots []models.OpenLot, price decimal.Decimal, asOf time.Time) UnrealizedTotals
}

// CorporateActionProcessor computes adjustment records for a corporate action.
type CorporateActionProcessor interface {
	Supports(actionType models.ActionType) bool
	Validate(action models.CorporateAction) error
	Calculate(action models.CorporateAction, lots []AffectedLot) ([]models.TransactionAdjustment, error)
}

// TransactionProcessor checks and completes ledger rows before they are stored.
type TransactionProcessor interface {
	Normalize(tx *models.Transaction) error
}

// DividendProcessor aggregates dividend income for a tax year.
type DividendProcessor interface {
	CalculateIncome(recorded []models.Transaction, receipts []models.TransactionAdjustment, taxYear int) models.DividendIncome
}

// FeeProcessor totals fees for a tax year.
type FeeProcessor interface {
	TotalForYear(txs []models.Transaction, taxYear int) decimal.Decimal
}
