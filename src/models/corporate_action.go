package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ActionType is the kind of corporate action.
type ActionType string

const (
	ActionStockSplit    ActionType = "stock_split"
	ActionCashDividend  ActionType = "cash_dividend"
	ActionStockDividend ActionType = "stock_dividend"
	ActionMerger        ActionType = "merger"
)

// Known reports whether the type can be recorded at all.
func (a ActionType) Known() bool {
	switch a {
	case ActionStockSplit, ActionCashDividend, ActionStockDividend, ActionMerger:
		return true
	}
	return false
}

// ActionStatus is the lifecycle state of a corporate action.
type ActionStatus string

const (
	StatusPending   ActionStatus = "pending"
	StatusApplied   ActionStatus = "applied"
	StatusReversed  ActionStatus = "reversed"
	StatusCancelled ActionStatus = "cancelled"
)

// DividendTaxStatus describes how a cash dividend is taxed.
type DividendTaxStatus string

const (
	DividendQualified       DividendTaxStatus = "qualified"
	DividendOrdinary        DividendTaxStatus = "ordinary"
	DividendReturnOfCapital DividendTaxStatus = "return_of_capital"
	DividendTaxExempt       DividendTaxStatus = "tax_exempt"
)

// Valid reports whether s is a known tax status.
func (s DividendTaxStatus) Valid() bool {
	switch s {
	case DividendQualified, DividendOrdinary, DividendReturnOfCapital, DividendTaxExempt:
		return true
	}
	return false
}

// CorporateAction is a split or dividend event for a symbol.
type CorporateAction struct {
	ID                int64               `json:"id"`
	SymbolID          int64               `json:"symbol_id"`
	ActionType        ActionType          `json:"action_type"`
	ExDate            time.Time           `json:"ex_date"`
	Status            ActionStatus        `json:"status"`
	SplitRatioFrom    int64               `json:"split_ratio_from,omitempty"`
	SplitRatioTo      int64               `json:"split_ratio_to,omitempty"`
	DividendPerShare  decimal.NullDecimal `json:"dividend_per_share"`
	DividendTaxStatus DividendTaxStatus   `json:"dividend_tax_status,omitempty"`
	Description       string              `json:"description,omitempty"`
	CreatedAt         time.Time           `json:"created_at"`
	AppliedAt         *time.Time          `json:"applied_at,omitempty"`
	ReversedAt        *time.Time          `json:"reversed_at,omitempty"`
	CancelledAt       *time.Time          `json:"cancelled_at,omitempty"`
}

// SplitRatio returns to/from, the factor applied to share counts.
func (a CorporateAction) SplitRatio() decimal.Decimal {
	return decimal.NewFromInt(a.SplitRatioTo).Div(decimal.NewFromInt(a.SplitRatioFrom))
}

// AdjustmentType is the effect an adjustment has on its transaction.
type AdjustmentType string

const (
	AdjustmentQuantityPrice   AdjustmentType = "quantity_price"
	AdjustmentCashReceipt     AdjustmentType = "cash_receipt"
	AdjustmentSymbolChange    AdjustmentType = "symbol_change"
	AdjustmentBasisAdjustment AdjustmentType = "basis_adjustment"
	AdjustmentLotSplit        AdjustmentType = "lot_split"
)

// CostBasisFIFO is the only cost basis method the ledger uses.
const CostBasisFIFO = "fifo"

// TransactionAdjustment is an append-only effect record layered over a transaction.
type TransactionAdjustment struct {
	ID                int64               `json:"id"`
	TransactionID     int64               `json:"transaction_id"`
	CorporateActionID int64               `json:"corporate_action_id"`
	AdjustmentType    AdjustmentType      `json:"adjustment_type"`
	OriginalQuantity  decimal.NullDecimal `json:"original_quantity"`
	OriginalPrice     decimal.NullDecimal `json:"original_price"`
	AdjustedQuantity  decimal.NullDecimal `json:"adjusted_quantity"`
	AdjustedPrice     decimal.NullDecimal `json:"adjusted_price"`
	DividendPerShare  decimal.NullDecimal `json:"dividend_per_share"`
	SharesEligible    decimal.NullDecimal `json:"shares_eligible"`
	TotalDividend     decimal.NullDecimal `json:"total_dividend"`
	DividendTaxStatus DividendTaxStatus   `json:"dividend_tax_status,omitempty"`
	FIFOLotOrder      int                 `json:"fifo_lot_order"`
	CostBasisMethod   string              `json:"cost_basis_method"`
	Notes             string              `json:"notes,omitempty"`
	IsReversed        bool                `json:"is_reversed"`
	ReversedAt        *time.Time          `json:"reversed_at,omitempty"`
	ReversalReason    string              `json:"reversal_reason,omitempty"`
	ReversedBy        string              `json:"reversed_by,omitempty"`
	CreatedAt         time.Time           `json:"created_at"`
}

// AdjustmentFilter selects adjustments. Zero ids mean "any"; Reversed nil means both states.
type AdjustmentFilter struct {
	TransactionID     int64
	CorporateActionID int64
	Reversed          *bool
}

// ApplyResult reports the outcome of applying one corporate action.
type ApplyResult struct {
	ActionID           int64        `json:"action_id"`
	Status             ActionStatus `json:"status"`
	AdjustmentsCreated int          `json:"adjustments_created"`
}

// ReverseResult reports the outcome of reversing one corporate action.
type ReverseResult struct {
	ActionID            int64        `json:"action_id"`
	Status              ActionStatus `json:"status"`
	AdjustmentsReversed int          `json:"adjustments_reversed"`
}

// BatchItemResult is one action's outcome inside a batch apply.
type BatchItemResult struct {
	ActionID           int64        `json:"action_id"`
	ActionType         ActionType   `json:"action_type"`
	ExDate             time.Time    `json:"ex_date"`
	Status             ActionStatus `json:"status"`
	AdjustmentsCreated int          `json:"adjustments_created"`
	Error              string       `json:"error,omitempty"`
}

// BatchApplyResult aggregates a batch apply. Successful items stay applied even when others fail.
type BatchApplyResult struct {
	SymbolID int64             `json:"symbol_id"`
	Items    []BatchItemResult `json:"items"`
	Applied  int               `json:"applied"`
	Failed   int               `json:"failed"`
}

// PreviewResult is a dry run of an apply.
type PreviewResult struct {
	ActionID             int64                   `json:"action_id"`
	ActionType           ActionType              `json:"action_type"`
	AffectedTransactions int                     `json:"affected_transactions"`
	EstimatedAdjustments int                     `json:"estimated_adjustments"`
	Adjustments          []TransactionAdjustment `json:"adjustments"`
	Warnings             []string                `json:"warnings,omitempty"`
}
