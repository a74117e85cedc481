package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Replacement is a suggested security to hold after harvesting a loss.
type Replacement struct {
	Ticker     string          `json:"ticker"`
	AssetClass string          `json:"asset_class,omitempty"`
	Similarity decimal.Decimal `json:"similarity"`
	Reason     string          `json:"reason"`
}

// HarvestOpportunity is an open position with an unrealized loss.
type HarvestOpportunity struct {
	SymbolID       int64           `json:"symbol_id"`
	Symbol         string          `json:"symbol"`
	AssetClass     string          `json:"asset_class"`
	Quantity       decimal.Decimal `json:"quantity"`
	CostBasis      decimal.Decimal `json:"cost_basis"`
	MarketValue    decimal.Decimal `json:"market_value"`
	UnrealizedLoss decimal.Decimal `json:"unrealized_loss"`
	ShortTermLoss  decimal.Decimal `json:"short_term_loss"`
	LongTermLoss   decimal.Decimal `json:"long_term_loss"`
	PriorityScore  decimal.Decimal `json:"priority_score"`
	WashSaleRisk   bool            `json:"wash_sale_risk"`
	RiskFactors    []string        `json:"risk_factors,omitempty"`
	SafeDate       *time.Time      `json:"safe_date,omitempty"`
	Replacements   []Replacement   `json:"replacements"`
	Note           string          `json:"note"`
}

// WashSaleCheck is the advisory result of a wash-sale compliance check.
// It approximates the IRS rule and is not a legal determination.
type WashSaleCheck struct {
	SellSymbol              string          `json:"sell_symbol"`
	BuySymbol               string          `json:"buy_symbol"`
	Date                    time.Time       `json:"date"`
	Similarity              decimal.Decimal `json:"similarity"`
	SubstantiallyIdentical  bool            `json:"substantially_identical"`
	ConflictingTransactions []int64         `json:"conflicting_transactions,omitempty"`
	IsCompliant             bool            `json:"is_compliant"`
	RiskFactors             []string        `json:"risk_factors"`
	SafeDate                time.Time       `json:"safe_date"`
}

// HarvestAction is one recommended sale inside a harvest strategy.
type HarvestAction struct {
	Opportunity      HarvestOpportunity `json:"opportunity"`
	EstimatedSavings decimal.Decimal    `json:"estimated_savings"`
	Replacement      *Replacement       `json:"replacement,omitempty"`
	ExecuteAfter     *time.Time         `json:"execute_after,omitempty"`
}

// HarvestStrategy orders harvest actions and keeps the target allocation.
type HarvestStrategy struct {
	AccountID        int64                      `json:"account_id"`
	TaxRate          decimal.Decimal            `json:"tax_rate"`
	Targets          map[string]decimal.Decimal `json:"targets"`
	Immediate        []HarvestAction            `json:"immediate"`
	Delayed          []HarvestAction            `json:"delayed"`
	TotalSavings     decimal.Decimal            `json:"total_estimated_savings"`
	AllocationIntact bool                       `json:"allocation_intact"`
	Warnings         []string                   `json:"warnings,omitempty"`
}
