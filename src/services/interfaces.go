package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"
	"github.com/username/taxfolio/ledger/src/models"
	"github.com/username/taxfolio/ledger/src/processors"
)

// Define common service errors
var (
	ErrAccountNotFound         = errors.New("account not found")
	ErrSymbolNotFound          = errors.New("symbol not found")
	ErrCorporateActionNotFound = errors.New("corporate action not found")
	ErrAdjustmentNotFound      = errors.New("adjustment not found")

	ErrAlreadyProcessed = errors.New("corporate action already processed")
	ErrAlreadyReversed  = errors.New("corporate action already reversed")
	ErrNotApplied       = errors.New("corporate action is not applied")
	ErrExDateInFuture   = errors.New("ex-date is in the future")

	ErrUnsupportedActionType  = processors.ErrUnsupportedActionType
	ErrInvalidCorporateAction = processors.ErrInvalidCorporateAction
	ErrInsufficientLots       = processors.ErrInsufficientLots
	ErrValuePreservation      = processors.ErrValuePreservation

	ErrNoTransactions = errors.New("no transactions to compute")
	ErrNoPositions    = errors.New("account has no positions")
	ErrNoHoldings     = errors.New("no open holdings")

	ErrPartialAdjustmentFailure = errors.New("failed to persist corporate action adjustments")
	ErrPartialReversalFailure   = errors.New("failed to reverse corporate action adjustments")
	ErrBatchPartialFailure      = errors.New("one or more corporate actions failed to apply")

	ErrInvalidAllocation    = errors.New("invalid target allocation")
	ErrInvalidTaxRate       = errors.New("tax rate must be in (0, 1]")
	ErrBackdatedTransaction = errors.New("buy is dated before an applied stock split")
	ErrPriceUnavailable     = errors.New("no price available")
	ErrParsingFailed        = errors.New("csv parsing failed")
	ErrDuplicateSymbol      = errors.New("symbol already exists")
)

// PreconditionError reports a corporate action in the wrong state for the requested operation.
// It unwraps to the sentinel describing the violation.
type PreconditionError struct {
	ActionID  int64
	Status    models.ActionStatus
	Operation string
	Err       error
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("cannot %s corporate action %d (status %s): %v", e.Operation, e.ActionID, e.Status, e.Err)
}

func (e *PreconditionError) Unwrap() error { return e.Err }

func preconditionFailed(action *models.CorporateAction, operation string, err error) error {
	return &PreconditionError{ActionID: action.ID, Status: action.Status, Operation: operation, Err: err}
}

// IsEmptyResult reports whether err only says there was nothing to compute.
func IsEmptyResult(err error) bool {
	return errors.Is(err, ErrNoTransactions) || errors.Is(err, ErrNoPositions) || errors.Is(err, ErrNoHoldings)
}

// LedgerService owns accounts, symbols, transactions and stored prices.
type LedgerService interface {
	CreateAccount(ctx context.Context, name string) (*models.Account, error)
	ListAccounts(ctx context.Context) ([]models.Account, error)
	CreateSymbol(ctx context.Context, ticker, name, assetClass string) (*models.Symbol, error)
	ListSymbols(ctx context.Context) ([]models.Symbol, error)
	RecordTransaction(ctx context.Context, tx models.Transaction) (*models.Transaction, error)
	ListTransactions(ctx context.Context, accountID int64, filter models.TransactionFilter) ([]models.Transaction, error)
	ImportTransactions(ctx context.Context, accountID int64, source string, file io.Reader) (*models.ImportResult, error)
	SetPrice(ctx context.Context, symbolID int64, date time.Time, price decimal.Decimal) error
}

// GainsService computes realized and unrealized gains from the ledger.
type GainsService interface {
	CalculateRealizedGains(ctx context.Context, accountID, symbolID int64, taxYear int) (*models.RealizedGainAnalysis, error)
	CalculateUnrealizedGains(ctx context.Context, accountID, symbolID int64) (*models.UnrealizedGainAnalysis, error)
	GenerateTaxLotReport(ctx context.Context, accountID, symbolID int64) (*models.TaxLotReport, error)
	CalculateAnnualSummary(ctx context.Context, accountID int64, taxYear int) (*models.AnnualSummary, error)
}

// CorporateActionService records corporate actions and applies or reverses their adjustments.
type CorporateActionService interface {
	CreateCorporateAction(ctx context.Context, action models.CorporateAction) (*models.CorporateAction, error)
	GetCorporateAction(ctx context.Context, id int64) (*models.CorporateAction, error)
	ListCorporateActions(ctx context.Context, symbolID int64, status models.ActionStatus) ([]models.CorporateAction, error)
	CancelCorporateAction(ctx context.Context, id int64) (*models.CorporateAction, error)
	ApplyCorporateAction(ctx context.Context, id int64) (*models.ApplyResult, error)
	BatchApplyPending(ctx context.Context, symbolID int64) (*models.BatchApplyResult, error)
	PreviewApplication(ctx context.Context, id int64) (*models.PreviewResult, error)
	ReverseApplication(ctx context.Context, id int64, reason, reversedBy string) (*models.ReverseResult, error)
	ListAdjustments(ctx context.Context, filter models.AdjustmentFilter) ([]models.TransactionAdjustment, error)
	UpdateAdjustmentNotes(ctx context.Context, id int64, notes string) (*models.TransactionAdjustment, error)
}

// HarvestService advises on tax-loss harvesting. Its wash-sale checks approximate the IRS rule
// and are not a legal determination.
type HarvestService interface {
	IdentifyOpportunities(ctx context.Context, accountID int64, lossThreshold decimal.Decimal) ([]models.HarvestOpportunity, error)
	RecommendReplacements(ctx context.Context, ticker string) ([]models.Replacement, error)
	CheckWashSaleCompliance(ctx context.Context, sellTicker, buyTicker string, date time.Time, accountID int64) (*models.WashSaleCheck, error)
	OptimizeHarvestStrategy(ctx context.Context, accountID int64, targets map[string]decimal.Decimal, taxRate decimal.Decimal) (*models.HarvestStrategy, error)
}

const (
	PriceStatusOK          = "OK"
	PriceStatusUnavailable = "UNAVAILABLE"
)

type PriceInfo struct {
	Status string // PriceStatusOK or PriceStatusUnavailable
	Price  decimal.Decimal
	Date   time.Time
}

// PriceService serves the latest stored price of each symbol.
type PriceService interface {
	GetCurrentPrice(ctx context.Context, symbolID int64) (PriceInfo, error)
	GetCurrentPrices(ctx context.Context, symbolIDs []int64) (map[int64]PriceInfo, error)
	SetPrice(ctx context.Context, symbolID int64, date time.Time, price decimal.Decimal) error
}

// clockOrNow returns time.Now when clock is nil.
func clockOrNow(clock func() time.Time) func() time.Time {
	if clock == nil {
		return time.Now
	}
	return clock
}
