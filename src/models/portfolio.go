package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// HoldingTerm is the tax classification of a holding period.
type HoldingTerm string

const (
	ShortTerm HoldingTerm = "short_term"
	LongTerm  HoldingTerm = "long_term"
)

// LotConsumption is one buy lot (or part of it) consumed by a sell. Quantity and UnitCost
// are in current share units; CostBasis and Proceeds come from the recorded amounts.
type LotConsumption struct {
	LotID           int64           `json:"lot_id"`
	AcquisitionDate time.Time       `json:"acquisition_date"`
	Quantity        decimal.Decimal `json:"quantity"`
	UnitCost        decimal.Decimal `json:"unit_cost"`
	CostBasis       decimal.Decimal `json:"cost_basis"`
	Proceeds        decimal.Decimal `json:"proceeds"`
	FIFOOrder       int             `json:"fifo_order"`
}

// SaleMatch is a sell together with the lots it consumed, in FIFO order.
type SaleMatch struct {
	Sale         Transaction      `json:"sale"`
	Consumptions []LotConsumption `json:"consumptions"`
}

// OpenLot is a buy lot that still has unsold quantity.
type OpenLot struct {
	LotID             int64           `json:"lot_id"`
	AccountID         int64           `json:"account_id"`
	AcquisitionDate   time.Time       `json:"acquisition_date"`
	OriginalQuantity  decimal.Decimal `json:"original_quantity"`
	RemainingQuantity decimal.Decimal `json:"remaining_quantity"`
	UnitCost          decimal.Decimal `json:"unit_cost"`
	CostBasis         decimal.Decimal `json:"cost_basis"`
	FIFOOrder         int             `json:"fifo_order"`
}

// MatchResult is the full output of a FIFO run over one symbol's history.
type MatchResult struct {
	Sales    []SaleMatch `json:"sales"`
	OpenLots []OpenLot   `json:"open_lots"`
}

// RealizedGainAnalysis summarises realized gains for one symbol in one tax year.
type RealizedGainAnalysis struct {
	AccountID             int64           `json:"account_id"`
	Symbol                string          `json:"symbol"`
	SymbolID              int64           `json:"symbol_id"`
	TaxYear               int             `json:"tax_year"`
	TotalRealizedGains    decimal.Decimal `json:"total_realized_gains"`
	ShortTermGains        decimal.Decimal `json:"short_term_gains"`
	LongTermGains         decimal.Decimal `json:"long_term_gains"`
	TransactionsProcessed int             `json:"transactions_processed"`
}

// UnrealizedGainAnalysis values the open lots of one symbol at the latest known price.
type UnrealizedGainAnalysis struct {
	AccountID           int64           `json:"account_id"`
	Symbol              string          `json:"symbol"`
	SymbolID            int64           `json:"symbol_id"`
	AsOf                time.Time       `json:"as_of"`
	PriceDate           time.Time       `json:"price_date"`
	CurrentPrice        decimal.Decimal `json:"current_price"`
	Quantity            decimal.Decimal `json:"quantity"`
	CostBasis           decimal.Decimal `json:"cost_basis"`
	MarketValue         decimal.Decimal `json:"market_value"`
	TotalUnrealizedGain decimal.Decimal `json:"total_unrealized_gain"`
	ShortTermGain       decimal.Decimal `json:"short_term_gain"`
	LongTermGain        decimal.Decimal `json:"long_term_gain"`
	OpenLots            int             `json:"open_lots"`
}

// TaxLot is an open lot as shown in a tax lot report.
type TaxLot struct {
	SymbolID          int64               `json:"symbol_id"`
	Symbol            string              `json:"symbol"`
	LotID             int64               `json:"lot_id"`
	FIFOOrder         int                 `json:"fifo_order"`
	AcquisitionDate   time.Time           `json:"acquisition_date"`
	OriginalQuantity  decimal.Decimal     `json:"original_quantity"`
	RemainingQuantity decimal.Decimal     `json:"remaining_quantity"`
	UnitCost          decimal.Decimal     `json:"unit_cost"`
	CostBasis         decimal.Decimal     `json:"cost_basis"`
	HoldingDays       int                 `json:"holding_days"`
	Term              HoldingTerm         `json:"term"`
	MarketValue       decimal.NullDecimal `json:"market_value"`
	UnrealizedGain    decimal.NullDecimal `json:"unrealized_gain"`
}

// ClosedLot is a lot fragment disposed of by a sell.
type ClosedLot struct {
	SymbolID        int64           `json:"symbol_id"`
	Symbol          string          `json:"symbol"`
	LotID           int64           `json:"lot_id"`
	SaleID          int64           `json:"sale_id"`
	AcquisitionDate time.Time       `json:"acquisition_date"`
	SaleDate        time.Time       `json:"sale_date"`
	Quantity        decimal.Decimal `json:"quantity"`
	UnitCost        decimal.Decimal `json:"unit_cost"`
	CostBasis       decimal.Decimal `json:"cost_basis"`
	SalePrice       decimal.Decimal `json:"sale_price"`
	Proceeds        decimal.Decimal `json:"proceeds"`
	Gain            decimal.Decimal `json:"gain"`
	HoldingDays     int             `json:"holding_days"`
	Term            HoldingTerm     `json:"term"`
}

// TaxLotReport lists open and closed lots for an account.
type TaxLotReport struct {
	AccountID      int64           `json:"account_id"`
	AsOf           time.Time       `json:"as_of"`
	OpenLots       []TaxLot        `json:"open_lots"`
	ClosedLots     []ClosedLot     `json:"closed_lots"`
	TotalCostBasis decimal.Decimal `json:"total_cost_basis"`
	TotalRealized  decimal.Decimal `json:"total_realized"`
}

// AnnualSummary aggregates one tax year for an account.
type AnnualSummary struct {
	AccountID             int64                  `json:"account_id"`
	TaxYear               int                    `json:"tax_year"`
	Symbols               []RealizedGainAnalysis `json:"symbols"`
	ShortTermGains        decimal.Decimal        `json:"short_term_gains"`
	LongTermGains         decimal.Decimal        `json:"long_term_gains"`
	TotalRealizedGains    decimal.Decimal        `json:"total_realized_gains"`
	Dividends             DividendIncome         `json:"dividends"`
	TotalFees             decimal.Decimal        `json:"total_fees"`
	TransactionsProcessed int                    `json:"transactions_processed"`
}
