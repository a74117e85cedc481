package services

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/taxfolio/ledger/src/models"
	"github.com/username/taxfolio/ledger/src/security/validation"
)

func requirePrecondition(t *testing.T, err error, target error) *PreconditionError {
	t.Helper()
	var pe *PreconditionError
	require.True(t, errors.As(err, &pe), "expected a precondition error, got %v", err)
	assert.ErrorIs(t, err, target)
	return pe
}

func TestApplyCorporateAction_TwoForOneSplit(t *testing.T) {
	env := newTestEnv(t, "2025-01-15")
	aapl := env.symbol("AAPL", "us_equity")
	buy := env.buy(aapl, "2024-01-15", "100", "150")
	split := env.createSplit(aapl, 1, 2, "2024-03-01")
	assert.Equal(t, models.StatusPending, split.Status)

	result := env.apply(split)
	assert.Equal(t, models.StatusApplied, result.Status)
	assert.Equal(t, 1, result.AdjustmentsCreated)

	adjustments, err := env.actions.ListAdjustments(env.ctx, models.AdjustmentFilter{CorporateActionID: split.ID})
	require.NoError(t, err)
	require.Len(t, adjustments, 1)
	adj := adjustments[0]
	assert.Equal(t, buy.ID, adj.TransactionID)
	assert.True(t, adj.AdjustedQuantity.Decimal.Equal(d("200")))
	assert.True(t, adj.AdjustedPrice.Decimal.Equal(d("75")))
	assert.True(t, adj.OriginalQuantity.Decimal.Mul(adj.OriginalPrice.Decimal).Equal(d("15000")))
	assert.False(t, adj.IsReversed)

	stored, err := env.actions.GetCorporateAction(env.ctx, split.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApplied, stored.Status)
	assert.NotNil(t, stored.AppliedAt)

	txs, err := env.ledger.ListTransactions(env.ctx, env.account.ID, models.TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.True(t, txs[0].Quantity.Equal(d("100")), "the ledger row itself is never rewritten")
}

func TestApplyCorporateAction_Guards(t *testing.T) {
	env := newTestEnv(t, "2025-01-15")
	aapl := env.symbol("AAPL", "us_equity")
	env.buy(aapl, "2024-01-15", "100", "150")
	split := env.createSplit(aapl, 1, 2, "2024-03-01")
	env.apply(split)

	_, err := env.actions.ApplyCorporateAction(env.ctx, split.ID)
	pe := requirePrecondition(t, err, ErrAlreadyProcessed)
	assert.Equal(t, models.StatusApplied, pe.Status)
	assert.Equal(t, "apply", pe.Operation)

	future := env.createSplit(aapl, 1, 3, "2025-03-01")
	_, err = env.actions.ApplyCorporateAction(env.ctx, future.ID)
	requirePrecondition(t, err, ErrExDateInFuture)

	merger, err := env.actions.CreateCorporateAction(env.ctx, models.CorporateAction{
		SymbolID: aapl.ID, ActionType: models.ActionMerger, ExDate: day("2024-05-01"),
	})
	require.NoError(t, err)
	_, err = env.actions.ApplyCorporateAction(env.ctx, merger.ID)
	requirePrecondition(t, err, ErrUnsupportedActionType)

	_, err = env.actions.ApplyCorporateAction(env.ctx, 9999)
	assert.ErrorIs(t, err, ErrCorporateActionNotFound)
}

func TestCreateCorporateAction_Validation(t *testing.T) {
	env := newTestEnv(t, "2025-01-15")
	aapl := env.symbol("AAPL", "us_equity")

	_, err := env.actions.CreateCorporateAction(env.ctx, models.CorporateAction{
		SymbolID: aapl.ID, ActionType: "spin_off", ExDate: day("2024-05-01"),
	})
	assert.ErrorIs(t, err, validation.ErrValidationFailed)

	_, err = env.actions.CreateCorporateAction(env.ctx, models.CorporateAction{
		SymbolID: aapl.ID, ActionType: models.ActionStockSplit, ExDate: day("2024-05-01"), SplitRatioFrom: 2, SplitRatioTo: 2,
	})
	assert.ErrorIs(t, err, ErrInvalidCorporateAction)

	_, err = env.actions.CreateCorporateAction(env.ctx, models.CorporateAction{
		SymbolID: 9999, ActionType: models.ActionStockSplit, ExDate: day("2024-05-01"), SplitRatioFrom: 1, SplitRatioTo: 2,
	})
	assert.ErrorIs(t, err, ErrSymbolNotFound)

	dividend := env.createDividend(aapl, "2024-05-10", "0.25")
	assert.Equal(t, models.DividendQualified, dividend.DividendTaxStatus)
	assert.Zero(t, dividend.SplitRatioTo)
}

func TestReverseApplication(t *testing.T) {
	env := newTestEnv(t, "2025-01-15")
	aapl := env.symbol("AAPL", "us_equity")
	env.buy(aapl, "2024-01-15", "100", "150")
	env.buy(aapl, "2024-02-01", "20", "140")
	split := env.createSplit(aapl, 1, 2, "2024-03-01")
	env.apply(split)

	report, err := env.gains.GenerateTaxLotReport(env.ctx, env.account.ID, aapl.ID)
	require.NoError(t, err)
	assert.True(t, report.OpenLots[0].RemainingQuantity.Equal(d("200")))

	result, err := env.actions.ReverseApplication(env.ctx, split.ID, "entered on the wrong symbol", "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusReversed, result.Status)
	assert.Equal(t, 2, result.AdjustmentsReversed)

	adjustments, err := env.actions.ListAdjustments(env.ctx, models.AdjustmentFilter{CorporateActionID: split.ID})
	require.NoError(t, err)
	require.Len(t, adjustments, 2, "reversal keeps the audit trail")
	for _, adj := range adjustments {
		assert.True(t, adj.IsReversed)
		assert.NotNil(t, adj.ReversedAt)
		assert.Equal(t, "entered on the wrong symbol", adj.ReversalReason)
		assert.Equal(t, DefaultReversedBy, adj.ReversedBy)
	}

	report, err = env.gains.GenerateTaxLotReport(env.ctx, env.account.ID, aapl.ID)
	require.NoError(t, err)
	assert.True(t, report.OpenLots[0].RemainingQuantity.Equal(d("100")))
	assert.True(t, report.OpenLots[0].UnitCost.Equal(d("150")))

	_, err = env.actions.ReverseApplication(env.ctx, split.ID, "again", "")
	requirePrecondition(t, err, ErrAlreadyReversed)
}

func TestReverseApplication_Guards(t *testing.T) {
	env := newTestEnv(t, "2025-01-15")
	aapl := env.symbol("AAPL", "us_equity")
	pending := env.createSplit(aapl, 1, 2, "2024-03-01")

	_, err := env.actions.ReverseApplication(env.ctx, pending.ID, "never applied", "alice")
	requirePrecondition(t, err, ErrNotApplied)

	_, err = env.actions.ReverseApplication(env.ctx, pending.ID, "  ", "alice")
	assert.ErrorIs(t, err, validation.ErrValidationFailed, "a reason is required")

	stored, err := env.actions.GetCorporateAction(env.ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, stored.Status)
}

func TestCancelCorporateAction(t *testing.T) {
	env := newTestEnv(t, "2025-01-15")
	aapl := env.symbol("AAPL", "us_equity")
	action := env.createSplit(aapl, 1, 2, "2024-03-01")

	cancelled, err := env.actions.CancelCorporateAction(env.ctx, action.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)
	assert.NotNil(t, cancelled.CancelledAt)

	_, err = env.actions.CancelCorporateAction(env.ctx, action.ID)
	requirePrecondition(t, err, ErrAlreadyProcessed)
	_, err = env.actions.ApplyCorporateAction(env.ctx, action.ID)
	requirePrecondition(t, err, ErrAlreadyProcessed)
	_, err = env.actions.ReverseApplication(env.ctx, action.ID, "cancelled", "")
	requirePrecondition(t, err, ErrNotApplied)
}

func TestPreviewApplication_HasNoSideEffects(t *testing.T) {
	env := newTestEnv(t, "2025-01-15")
	aapl := env.symbol("AAPL", "us_equity")
	env.buy(aapl, "2024-01-15", "100", "150")
	split := env.createSplit(aapl, 1, 2, "2024-03-01")

	preview, err := env.actions.PreviewApplication(env.ctx, split.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, preview.AffectedTransactions)
	assert.Equal(t, 1, preview.EstimatedAdjustments)
	require.Len(t, preview.Adjustments, 1)
	assert.True(t, preview.Adjustments[0].AdjustedQuantity.Decimal.Equal(d("200")))
	assert.Empty(t, preview.Warnings)

	adjustments, err := env.actions.ListAdjustments(env.ctx, models.AdjustmentFilter{CorporateActionID: split.ID})
	require.NoError(t, err)
	assert.Empty(t, adjustments)
	stored, err := env.actions.GetCorporateAction(env.ctx, split.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, stored.Status)
}

func TestPreviewApplication_Warnings(t *testing.T) {
	env := newTestEnv(t, "2025-01-15")
	aapl := env.symbol("AAPL", "us_equity")

	future := env.createSplit(aapl, 1, 2, "2025-02-01")
	preview, err := env.actions.PreviewApplication(env.ctx, future.ID)
	require.NoError(t, err)
	require.Len(t, preview.Warnings, 2)
	assert.Contains(t, preview.Warnings[0], "in the future")
	assert.Contains(t, preview.Warnings[1], "no buy transactions")
	assert.Zero(t, preview.EstimatedAdjustments)
}

func TestCashDividend_PaysSharesHeldOnExDate(t *testing.T) {
	env := newTestEnv(t, "2025-01-15")
	aapl := env.symbol("AAPL", "us_equity")
	env.buy(aapl, "2024-01-15", "100", "150")
	env.apply(env.createSplit(aapl, 1, 2, "2024-03-01"))
	env.sell(aapl, "2024-04-01", "50", "80")
	env.buy(aapl, "2024-06-01", "10", "85")

	dividend := env.createDividend(aapl, "2024-05-10", "0.25")
	result := env.apply(dividend)
	assert.Equal(t, 1, result.AdjustmentsCreated, "the June buy is after the ex-date")

	adjustments, err := env.actions.ListAdjustments(env.ctx, models.AdjustmentFilter{CorporateActionID: dividend.ID})
	require.NoError(t, err)
	require.Len(t, adjustments, 1)
	assert.True(t, adjustments[0].SharesEligible.Decimal.Equal(d("150")))
	assert.True(t, adjustments[0].TotalDividend.Decimal.Equal(d("37.5")))

	summary, err := env.gains.CalculateAnnualSummary(env.ctx, env.account.ID, 2024)
	require.NoError(t, err)
	assert.True(t, summary.Dividends.FromActions.Equal(d("37.5")))
	assert.True(t, summary.Dividends.ByTaxStatus[models.DividendQualified].Equal(d("37.5")))
	assert.True(t, summary.TotalRealizedGains.Equal(d("250")))
}

func TestBatchApplyPending_IsNotAtomic(t *testing.T) {
	env := newTestEnv(t, "2025-01-15")
	aapl := env.symbol("AAPL", "us_equity")
	env.buy(aapl, "2024-01-15", "100", "150")
	split := env.createSplit(aapl, 1, 2, "2024-03-01")
	merger, err := env.actions.CreateCorporateAction(env.ctx, models.CorporateAction{
		SymbolID: aapl.ID, ActionType: models.ActionMerger, ExDate: day("2024-06-01"),
	})
	require.NoError(t, err)
	dividend := env.createDividend(aapl, "2024-09-01", "0.1")

	result, err := env.actions.BatchApplyPending(env.ctx, aapl.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBatchPartialFailure)
	assert.ErrorIs(t, err, ErrUnsupportedActionType)

	require.NotNil(t, result)
	assert.Equal(t, 2, result.Applied)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Items, 3)
	assert.Equal(t, split.ID, result.Items[0].ActionID)
	assert.Equal(t, models.StatusApplied, result.Items[0].Status)
	assert.Equal(t, merger.ID, result.Items[1].ActionID)
	assert.NotEmpty(t, result.Items[1].Error)
	assert.Equal(t, dividend.ID, result.Items[2].ActionID)
	assert.Equal(t, 1, result.Items[2].AdjustmentsCreated)

	adjustments, err := env.actions.ListAdjustments(env.ctx, models.AdjustmentFilter{CorporateActionID: dividend.ID})
	require.NoError(t, err)
	require.Len(t, adjustments, 1)
	assert.True(t, adjustments[0].TotalDividend.Decimal.Equal(d("20")), "dividend sees post-split shares")

	again, err := env.actions.BatchApplyPending(env.ctx, aapl.ID)
	require.Error(t, err)
	assert.Equal(t, 0, again.Applied)
	assert.Equal(t, 1, again.Failed)
}

func TestBackdatedBuyRejectedAfterSplit(t *testing.T) {
	env := newTestEnv(t, "2025-01-15")
	aapl := env.symbol("AAPL", "us_equity")
	env.buy(aapl, "2024-01-15", "100", "150")
	env.apply(env.createSplit(aapl, 1, 2, "2024-03-01"))

	_, err := env.tryRecord(aapl, models.TransactionBuy, "2024-02-01", "10", "140")
	assert.ErrorIs(t, err, ErrBackdatedTransaction)

	_, err = env.tryRecord(aapl, models.TransactionBuy, "2024-03-01", "10", "70")
	assert.NoError(t, err, "a buy on the ex-date is already in post-split units")
}

func TestUpdateAdjustmentNotes(t *testing.T) {
	env := newTestEnv(t, "2025-01-15")
	aapl := env.symbol("AAPL", "us_equity")
	env.buy(aapl, "2024-01-15", "100", "150")
	split := env.createSplit(aapl, 1, 2, "2024-03-01")
	env.apply(split)

	adjustments, err := env.actions.ListAdjustments(env.ctx, models.AdjustmentFilter{CorporateActionID: split.ID})
	require.NoError(t, err)
	require.Len(t, adjustments, 1)

	updated, err := env.actions.UpdateAdjustmentNotes(env.ctx, adjustments[0].ID, "<b>broker confirmed</b>")
	require.NoError(t, err)
	assert.Equal(t, "broker confirmed", updated.Notes)
	assert.True(t, updated.AdjustedQuantity.Decimal.Equal(d("200")))

	_, err = env.actions.UpdateAdjustmentNotes(env.ctx, 9999, "x")
	assert.ErrorIs(t, err, ErrAdjustmentNotFound)
}

func TestListCorporateActions(t *testing.T) {
	env := newTestEnv(t, "2025-01-15")
	aapl := env.symbol("AAPL", "us_equity")
	msft := env.symbol("MSFT", "us_equity")
	env.createSplit(aapl, 1, 2, "2024-06-01")
	first := env.createSplit(aapl, 1, 4, "2024-03-01")
	env.createDividend(msft, "2024-05-01", "0.5")

	actions, err := env.actions.ListCorporateActions(env.ctx, aapl.ID, "")
	require.NoError(t, err)
	require.Len(t, actions, 2)
	assert.Equal(t, first.ID, actions[0].ID, "ordered by ex-date")

	all, err := env.actions.ListCorporateActions(env.ctx, 0, models.StatusPending)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.True(t, all[1].DividendPerShare.Decimal.Equal(decimal.RequireFromString("0.5")))

	_, err = env.actions.ListCorporateActions(env.ctx, 0, "done")
	assert.ErrorIs(t, err, validation.ErrValidationFailed)
}

func TestApplyCorporateAction_ReverseSplitKeepsHistoryExact(t *testing.T) {
	env := newTestEnv(t, "2025-01-15")
	xyz := env.symbol("XYZ", "us_equity")
	env.buy(xyz, "2024-01-10", "100", "30")
	env.sell(xyz, "2024-02-01", "50", "40")
	env.sell(xyz, "2024-02-02", "50", "40")

	before, err := env.gains.CalculateRealizedGains(env.ctx, env.account.ID, xyz.ID, 2024)
	require.NoError(t, err)
	require.True(t, before.TotalRealizedGains.Equal(d("1000")), "got %s", before.TotalRealizedGains)

	split := env.createSplit(xyz, 3, 1, "2024-03-01")
	result := env.apply(split)
	assert.Equal(t, models.StatusApplied, result.Status)

	after, err := env.gains.CalculateRealizedGains(env.ctx, env.account.ID, xyz.ID, 2024)
	require.NoError(t, err)
	assert.True(t, after.TotalRealizedGains.Equal(before.TotalRealizedGains), "got %s", after.TotalRealizedGains)
	assert.True(t, after.ShortTermGains.Equal(before.ShortTermGains))

	report, err := env.gains.GenerateTaxLotReport(env.ctx, env.account.ID, xyz.ID)
	require.NoError(t, err)
	assert.Empty(t, report.OpenLots, "both halves close the restated lot")
	require.Len(t, report.ClosedLots, 2)
	for _, closed := range report.ClosedLots {
		assert.True(t, closed.CostBasis.Equal(d("1500")), "got %s", closed.CostBasis)
		assert.True(t, closed.Proceeds.Equal(d("2000")), "got %s", closed.Proceeds)
	}

	_, err = env.tryRecord(xyz, models.TransactionBuy, "2024-06-01", "10", "95")
	assert.NoError(t, err, "the ledger still accepts writes after the split")
}

func TestApplyCorporateAction_RollsBackWhenAnInsertFails(t *testing.T) {
	env := newTestEnv(t, "2025-01-15")
	aapl := env.symbol("AAPL", "us_equity")
	env.buy(aapl, "2024-01-15", "100", "150")
	env.buy(aapl, "2024-02-01", "20", "140")
	split := env.createSplit(aapl, 1, 2, "2024-03-01")

	// The first adjustment is written, the second one aborts.
	_, err := env.db.Exec(`CREATE TRIGGER fail_second_adjustment BEFORE INSERT ON transaction_adjustments
		WHEN (SELECT COUNT(*) FROM transaction_adjustments) >= 1
		BEGIN SELECT RAISE(ABORT, 'disk full'); END`)
	require.NoError(t, err)

	_, err = env.actions.ApplyCorporateAction(env.ctx, split.ID)
	require.ErrorIs(t, err, ErrPartialAdjustmentFailure)

	adjustments, err := env.actions.ListAdjustments(env.ctx, models.AdjustmentFilter{CorporateActionID: split.ID})
	require.NoError(t, err)
	assert.Empty(t, adjustments, "the adjustment written before the failure is rolled back")

	stored, err := env.actions.GetCorporateAction(env.ctx, split.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, stored.Status)
	assert.Nil(t, stored.AppliedAt)
}

func TestReverseApplication_RollsBackWhenAnUpdateFails(t *testing.T) {
	env := newTestEnv(t, "2025-01-15")
	aapl := env.symbol("AAPL", "us_equity")
	env.buy(aapl, "2024-01-15", "100", "150")
	env.buy(aapl, "2024-02-01", "20", "140")
	split := env.createSplit(aapl, 1, 2, "2024-03-01")
	env.apply(split)

	_, err := env.db.Exec(`CREATE TRIGGER fail_second_reversal BEFORE UPDATE OF is_reversed ON transaction_adjustments
		WHEN (SELECT COUNT(*) FROM transaction_adjustments WHERE is_reversed = 1) >= 1
		BEGIN SELECT RAISE(ABORT, 'disk full'); END`)
	require.NoError(t, err)

	_, err = env.actions.ReverseApplication(env.ctx, split.ID, "wrong ratio", "alice")
	require.ErrorIs(t, err, ErrPartialReversalFailure)

	adjustments, err := env.actions.ListAdjustments(env.ctx, models.AdjustmentFilter{CorporateActionID: split.ID})
	require.NoError(t, err)
	require.Len(t, adjustments, 2)
	for _, adj := range adjustments {
		assert.False(t, adj.IsReversed, "adjustment %d", adj.ID)
		assert.Nil(t, adj.ReversedAt)
	}

	stored, err := env.actions.GetCorporateAction(env.ctx, split.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApplied, stored.Status)
}
