package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/username/taxfolio/ledger/src/logger"
	"github.com/username/taxfolio/ledger/src/model"
	"github.com/username/taxfolio/ledger/src/models"
	"github.com/username/taxfolio/ledger/src/processors"
	"github.com/username/taxfolio/ledger/src/security/validation"
	"github.com/username/taxfolio/ledger/src/utils"
)

// DefaultReversedBy is recorded when a reversal names no actor.
const DefaultReversedBy = "system"

type corporateActionServiceImpl struct {
	db          *sql.DB
	processor   processors.CorporateActionProcessor
	lotMatcher  processors.LotMatcher
	reportCache *ReportCache
	clock       func() time.Time
}

// NewCorporateActionService creates the corporate action engine. A nil clock means time.Now.
func NewCorporateActionService(
	db *sql.DB,
	processor processors.CorporateActionProcessor,
	lotMatcher processors.LotMatcher,
	reportCache *ReportCache,
	clock func() time.Time,
) CorporateActionService {
	return &corporateActionServiceImpl{
		db:          db,
		processor:   processor,
		lotMatcher:  lotMatcher,
		reportCache: reportCache,
		clock:       clockOrNow(clock),
	}
}

func (s *corporateActionServiceImpl) today() time.Time {
	return utils.Date(s.clock())
}

// CreateCorporateAction records a pending action after checking its type-specific fields.
// stock_dividend and merger can be recorded but not applied.
func (s *corporateActionServiceImpl) CreateCorporateAction(ctx context.Context, action models.CorporateAction) (*models.CorporateAction, error) {
	if !action.ActionType.Known() {
		return nil, fmt.Errorf("%w: unknown action type %q", validation.ErrValidationFailed, action.ActionType)
	}
	if action.ExDate.IsZero() {
		return nil, fmt.Errorf("%w: ex_date is required", validation.ErrValidationFailed)
	}
	symbol, err := getSymbol(ctx, s.db, action.SymbolID)
	if err != nil {
		return nil, err
	}

	action.ID = 0
	action.ExDate = utils.Date(action.ExDate)
	action.Status = models.StatusPending
	action.AppliedAt, action.ReversedAt, action.CancelledAt = nil, nil, nil
	if action.ActionType != models.ActionStockSplit {
		action.SplitRatioFrom, action.SplitRatioTo = 0, 0
	}
	if action.ActionType == models.ActionCashDividend {
		if action.DividendTaxStatus == "" {
			action.DividendTaxStatus = models.DividendQualified
		}
	} else {
		action.DividendPerShare = decimal.NullDecimal{}
		action.DividendTaxStatus = ""
	}
	if s.processor.Supports(action.ActionType) {
		if err := s.processor.Validate(action); err != nil {
			return nil, err
		}
	}
	if action.Description, err = validation.CleanFreeText(action.Description, "description", false); err != nil {
		return nil, err
	}

	if err := model.InsertCorporateAction(ctx, s.db, &action); err != nil {
		return nil, fmt.Errorf("failed to create corporate action: %w", err)
	}
	logger.FromContext(ctx).Info("Corporate action created", "actionID", action.ID, "symbol", symbol.Ticker,
		"type", action.ActionType, "exDate", utils.FormatDate(action.ExDate))
	return &action, nil
}

func (s *corporateActionServiceImpl) GetCorporateAction(ctx context.Context, id int64) (*models.CorporateAction, error) {
	return getCorporateAction(ctx, s.db, id)
}

// ListCorporateActions filters by symbol and status; zero values mean any.
func (s *corporateActionServiceImpl) ListCorporateActions(ctx context.Context, symbolID int64, status models.ActionStatus) ([]models.CorporateAction, error) {
	switch status {
	case "", models.StatusPending, models.StatusApplied, models.StatusReversed, models.StatusCancelled:
	default:
		return nil, fmt.Errorf("%w: unknown status %q", validation.ErrValidationFailed, status)
	}
	if symbolID != 0 {
		if _, err := getSymbol(ctx, s.db, symbolID); err != nil {
			return nil, err
		}
	}
	return model.ListCorporateActions(ctx, s.db, symbolID, status)
}

// CancelCorporateAction moves a pending action to cancelled. No adjustments exist for it.
func (s *corporateActionServiceImpl) CancelCorporateAction(ctx context.Context, id int64) (*models.CorporateAction, error) {
	action, err := getCorporateAction(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if action.Status != models.StatusPending {
		return nil, preconditionFailed(action, "cancel", ErrAlreadyProcessed)
	}
	now := s.clock().UTC()
	n, err := model.TransitionCorporateAction(ctx, s.db, id, models.StatusPending, models.StatusCancelled, now)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel corporate action %d: %w", id, err)
	}
	if n == 0 {
		return nil, preconditionFailed(action, "cancel", ErrAlreadyProcessed)
	}
	action.Status = models.StatusCancelled
	action.CancelledAt = &now
	logger.FromContext(ctx).Info("Corporate action cancelled", "actionID", id)
	return action, nil
}

func (s *corporateActionServiceImpl) checkApplicable(action *models.CorporateAction, operation string) error {
	if action.Status != models.StatusPending {
		return preconditionFailed(action, operation, ErrAlreadyProcessed)
	}
	if !s.processor.Supports(action.ActionType) {
		return preconditionFailed(action, operation, ErrUnsupportedActionType)
	}
	return nil
}

// affectedLots returns the buys of the symbol dated before the ex-date in FIFO order, in
// split-adjusted units. For dividends each lot carries what its account still held on the ex-date.
func (s *corporateActionServiceImpl) affectedLots(ctx context.Context, db model.DBTX, action *models.CorporateAction) ([]processors.AffectedLot, error) {
	buys, err := model.GetBuysBefore(ctx, db, action.SymbolID, action.ExDate)
	if err != nil {
		return nil, fmt.Errorf("failed to load affected transactions: %w", err)
	}
	sc, err := loadSplitContext(ctx, db, action.SymbolID)
	if err != nil {
		return nil, err
	}

	var held map[int64]decimal.Decimal
	if action.ActionType == models.ActionCashDividend {
		sc = sc.asOf(action.ExDate)
		if held, err = s.heldOnExDate(ctx, db, action, sc); err != nil {
			return nil, err
		}
	}

	lots := []processors.AffectedLot{}
	for _, tx := range processors.SortLotEvents(sc.normalize(buys)) {
		lot := processors.AffectedLot{Transaction: tx, HeldQuantity: tx.AdjustedQuantity(), FIFOOrder: len(lots) + 1}
		if held != nil {
			lot.HeldQuantity = held[tx.ID]
		}
		lots = append(lots, lot)
	}
	return lots, nil
}

// heldOnExDate runs FIFO per account over the history before the ex-date and returns the
// remaining quantity of every open lot keyed by buy id.
func (s *corporateActionServiceImpl) heldOnExDate(ctx context.Context, db model.DBTX, action *models.CorporateAction, sc *splitContext) (map[int64]decimal.Decimal, error) {
	events, err := model.GetLotEventsBefore(ctx, db, action.SymbolID, action.ExDate)
	if err != nil {
		return nil, fmt.Errorf("failed to load lot history: %w", err)
	}
	byAccount := make(map[int64][]models.Transaction)
	for _, tx := range sc.normalize(events) {
		byAccount[tx.AccountID] = append(byAccount[tx.AccountID], tx)
	}
	held := make(map[int64]decimal.Decimal)
	for accountID, txs := range byAccount {
		result, err := s.lotMatcher.Match(txs)
		if err != nil {
			return nil, fmt.Errorf("account %d: %w", accountID, err)
		}
		for _, lot := range result.OpenLots {
			held[lot.LotID] = lot.RemainingQuantity
		}
	}
	return held, nil
}

// verifySymbolLots re-runs FIFO for every account holding the symbol, as the ledger would see it
// once the pending writes commit.
func (s *corporateActionServiceImpl) verifySymbolLots(ctx context.Context, db model.DBTX, symbolID int64) error {
	symbol, err := getSymbol(ctx, db, symbolID)
	if err != nil {
		return err
	}
	accountIDs, err := model.GetSymbolAccountIDs(ctx, db, symbolID)
	if err != nil {
		return fmt.Errorf("failed to list accounts holding %s: %w", symbol.Ticker, err)
	}
	for _, accountID := range accountIDs {
		if _, _, err := matchHistory(ctx, db, s.lotMatcher, accountID, symbol); err != nil {
			return fmt.Errorf("account %d: %w", accountID, err)
		}
	}
	return nil
}

// ApplyCorporateAction creates the action's adjustments and marks it applied in one transaction.
func (s *corporateActionServiceImpl) ApplyCorporateAction(ctx context.Context, id int64) (*models.ApplyResult, error) {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("error beginning database transaction: %w", err)
	}
	defer dbTx.Rollback()

	action, err := getCorporateAction(ctx, dbTx, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkApplicable(action, "apply"); err != nil {
		return nil, err
	}
	if action.ExDate.After(s.today()) {
		return nil, preconditionFailed(action, "apply", ErrExDateInFuture)
	}

	lots, err := s.affectedLots(ctx, dbTx, action)
	if err != nil {
		return nil, err
	}
	adjustments, err := s.processor.Calculate(*action, lots)
	if err != nil {
		logger.FromContext(ctx).Warn("Corporate action calculation rejected", "actionID", id, "error", err)
		return nil, fmt.Errorf("corporate action %d: %w", id, err)
	}
	for i := range adjustments {
		if err := model.InsertAdjustment(ctx, dbTx, &adjustments[i]); err != nil {
			logger.FromContext(ctx).Error("Failed to insert adjustment", "actionID", id, "transactionID", adjustments[i].TransactionID, "error", err)
			return nil, fmt.Errorf("%w: corporate action %d, transaction %d: %v",
				ErrPartialAdjustmentFailure, id, adjustments[i].TransactionID, err)
		}
	}

	n, err := model.TransitionCorporateAction(ctx, dbTx, id, models.StatusPending, models.StatusApplied, s.clock().UTC())
	if err != nil {
		return nil, fmt.Errorf("%w: corporate action %d: %v", ErrPartialAdjustmentFailure, id, err)
	}
	if n == 0 {
		return nil, preconditionFailed(action, "apply", ErrAlreadyProcessed)
	}
	if action.ActionType == models.ActionStockSplit {
		if err := s.verifySymbolLots(ctx, dbTx, action.SymbolID); err != nil {
			logger.FromContext(ctx).Warn("Split leaves unmatched lots", "actionID", id, "error", err)
			return nil, fmt.Errorf("corporate action %d: %w", id, err)
		}
	}
	if err := dbTx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: corporate action %d: commit: %v", ErrPartialAdjustmentFailure, id, err)
	}

	s.reportCache.InvalidateSymbol(action.SymbolID)
	logger.FromContext(ctx).Info("Corporate action applied", "actionID", id, "type", action.ActionType, "adjustments", len(adjustments))
	return &models.ApplyResult{ActionID: id, Status: models.StatusApplied, AdjustmentsCreated: len(adjustments)}, nil
}

// BatchApplyPending applies a symbol's pending actions in ex-date order. Each action commits on
// its own; failures are reported per item and do not undo earlier successes.
func (s *corporateActionServiceImpl) BatchApplyPending(ctx context.Context, symbolID int64) (*models.BatchApplyResult, error) {
	if _, err := getSymbol(ctx, s.db, symbolID); err != nil {
		return nil, err
	}
	pending, err := model.ListCorporateActions(ctx, s.db, symbolID, models.StatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending corporate actions: %w", err)
	}

	result := &models.BatchApplyResult{SymbolID: symbolID, Items: []models.BatchItemResult{}}
	var errs []error
	for _, action := range pending {
		item := models.BatchItemResult{ActionID: action.ID, ActionType: action.ActionType, ExDate: action.ExDate, Status: action.Status}
		applied, err := s.ApplyCorporateAction(ctx, action.ID)
		if err != nil {
			item.Error = err.Error()
			result.Failed++
			errs = append(errs, err)
		} else {
			item.Status = applied.Status
			item.AdjustmentsCreated = applied.AdjustmentsCreated
			result.Applied++
		}
		result.Items = append(result.Items, item)
	}

	logger.FromContext(ctx).Info("Batch apply finished", "symbolID", symbolID, "applied", result.Applied, "failed", result.Failed)
	if len(errs) > 0 {
		return result, errors.Join(append([]error{ErrBatchPartialFailure}, errs...)...)
	}
	return result, nil
}

// PreviewApplication computes what an apply would create without writing anything.
// A future ex-date is reported as a warning instead of an error.
func (s *corporateActionServiceImpl) PreviewApplication(ctx context.Context, id int64) (*models.PreviewResult, error) {
	action, err := getCorporateAction(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkApplicable(action, "preview"); err != nil {
		return nil, err
	}

	preview := &models.PreviewResult{ActionID: id, ActionType: action.ActionType, Warnings: []string{}}
	if action.ExDate.After(s.today()) {
		preview.Warnings = append(preview.Warnings,
			fmt.Sprintf("ex-date %s is in the future; the action cannot be applied yet", utils.FormatDate(action.ExDate)))
	}

	lots, err := s.affectedLots(ctx, s.db, action)
	if err != nil {
		return nil, err
	}
	adjustments, err := s.processor.Calculate(*action, lots)
	if err != nil {
		return nil, fmt.Errorf("corporate action %d: %w", id, err)
	}
	if len(lots) == 0 {
		preview.Warnings = append(preview.Warnings, "no buy transactions dated before the ex-date")
	} else if skipped := len(lots) - len(adjustments); skipped > 0 {
		preview.Warnings = append(preview.Warnings, fmt.Sprintf("%d lot(s) were fully sold before the ex-date", skipped))
	}

	preview.AffectedTransactions = len(lots)
	preview.EstimatedAdjustments = len(adjustments)
	preview.Adjustments = adjustments
	return preview, nil
}

// ReverseApplication flags every adjustment of an applied action as reversed and marks the action
// reversed, all in one transaction.
func (s *corporateActionServiceImpl) ReverseApplication(ctx context.Context, id int64, reason, reversedBy string) (*models.ReverseResult, error) {
	reason, err := validation.CleanFreeText(reason, "reason", true)
	if err != nil {
		return nil, err
	}
	reversedBy, err = validation.CleanFreeText(reversedBy, "reversed_by", false)
	if err != nil {
		return nil, err
	}
	if reversedBy == "" {
		reversedBy = DefaultReversedBy
	}

	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("error beginning database transaction: %w", err)
	}
	defer dbTx.Rollback()

	action, err := getCorporateAction(ctx, dbTx, id)
	if err != nil {
		return nil, err
	}
	switch action.Status {
	case models.StatusApplied:
	case models.StatusReversed:
		return nil, preconditionFailed(action, "reverse", ErrAlreadyReversed)
	default:
		return nil, preconditionFailed(action, "reverse", ErrNotApplied)
	}

	notReversed := false
	adjustments, err := model.ListAdjustments(ctx, dbTx, models.AdjustmentFilter{CorporateActionID: id, Reversed: &notReversed})
	if err != nil {
		return nil, fmt.Errorf("%w: corporate action %d: %v", ErrPartialReversalFailure, id, err)
	}

	now := s.clock().UTC()
	for _, adj := range adjustments {
		n, err := model.MarkAdjustmentReversed(ctx, dbTx, adj.ID, now, reason, reversedBy)
		if err == nil && n != 1 {
			err = fmt.Errorf("adjustment %d changed %d rows", adj.ID, n)
		}
		if err != nil {
			logger.FromContext(ctx).Error("Failed to reverse adjustment", "actionID", id, "adjustmentID", adj.ID, "error", err)
			return nil, fmt.Errorf("%w: corporate action %d: %v", ErrPartialReversalFailure, id, err)
		}
	}

	n, err := model.TransitionCorporateAction(ctx, dbTx, id, models.StatusApplied, models.StatusReversed, now)
	if err != nil {
		return nil, fmt.Errorf("%w: corporate action %d: %v", ErrPartialReversalFailure, id, err)
	}
	if n == 0 {
		return nil, preconditionFailed(action, "reverse", ErrNotApplied)
	}
	if err := dbTx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: corporate action %d: commit: %v", ErrPartialReversalFailure, id, err)
	}

	s.reportCache.InvalidateSymbol(action.SymbolID)
	logger.FromContext(ctx).Info("Corporate action reversed", "actionID", id, "adjustments", len(adjustments), "reversedBy", reversedBy)
	return &models.ReverseResult{ActionID: id, Status: models.StatusReversed, AdjustmentsReversed: len(adjustments)}, nil
}

func (s *corporateActionServiceImpl) ListAdjustments(ctx context.Context, filter models.AdjustmentFilter) ([]models.TransactionAdjustment, error) {
	return model.ListAdjustments(ctx, s.db, filter)
}

// UpdateAdjustmentNotes is the only edit an adjustment allows besides reversal.
func (s *corporateActionServiceImpl) UpdateAdjustmentNotes(ctx context.Context, id int64, notes string) (*models.TransactionAdjustment, error) {
	notes, err := validation.CleanFreeText(notes, "notes", false)
	if err != nil {
		return nil, err
	}
	n, err := model.UpdateAdjustmentNotes(ctx, s.db, id, notes)
	if err != nil {
		return nil, fmt.Errorf("failed to update adjustment %d: %w", id, err)
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: %d", ErrAdjustmentNotFound, id)
	}
	return model.GetAdjustment(ctx, s.db, id)
}
