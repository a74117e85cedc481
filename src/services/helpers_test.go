package services

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/username/taxfolio/ledger/src/database"
	"github.com/username/taxfolio/ledger/src/models"
	"github.com/username/taxfolio/ledger/src/processors"
)

// testEnv is a fully wired ledger over a private in-memory database with a fixed clock.
type testEnv struct {
	t       *testing.T
	ctx     context.Context
	db      *sql.DB
	cache   *ReportCache
	prices  PriceService
	ledger  LedgerService
	gains   GainsService
	actions CorporateActionService
	harvest HarvestService
	account *models.Account

	// setToday moves the clock shared by every service.
	setToday func(date string)
}

func newTestEnv(t *testing.T, today string) *testEnv {
	t.Helper()

	db, err := database.Open(database.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(db))

	policy, err := processors.DefaultWashSalePolicy()
	require.NoError(t, err)

	now := day(today)
	clock := func() time.Time { return now }

	cache := NewReportCache(time.Minute, time.Minute)
	prices := NewPriceService(db, time.Minute, cache)
	lotMatcher := processors.NewLotMatcher()
	gains := NewGainsService(db, lotMatcher, processors.NewGainsProcessor(), processors.NewDividendProcessor(),
		processors.NewFeeProcessor(), prices, cache, clock)

	env := &testEnv{
		t:       t,
		ctx:     context.Background(),
		db:      db,
		cache:   cache,
		prices:  prices,
		ledger:  NewLedgerService(db, processors.NewTransactionProcessor(), lotMatcher, prices, cache),
		gains:   gains,
		actions: NewCorporateActionService(db, processors.NewCorporateActionProcessor(), lotMatcher, cache, clock),
		harvest: NewHarvestService(db, gains, policy, "USD", clock),

		setToday: func(date string) { now = day(date) },
	}
	env.account, err = env.ledger.CreateAccount(env.ctx, "Brokerage")
	require.NoError(t, err)
	return env
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func (e *testEnv) symbol(ticker, assetClass string) *models.Symbol {
	e.t.Helper()
	sym, err := e.ledger.CreateSymbol(e.ctx, ticker, "", assetClass)
	require.NoError(e.t, err)
	return sym
}

func (e *testEnv) record(sym *models.Symbol, txType models.TransactionType, date, qty, price string) *models.Transaction {
	e.t.Helper()
	tx, err := e.tryRecord(sym, txType, date, qty, price)
	require.NoError(e.t, err)
	return tx
}

func (e *testEnv) tryRecord(sym *models.Symbol, txType models.TransactionType, date, qty, price string) (*models.Transaction, error) {
	quantity := d(qty)
	if txType == models.TransactionSell {
		quantity = quantity.Neg()
	}
	return e.ledger.RecordTransaction(e.ctx, models.Transaction{
		AccountID: e.account.ID,
		SymbolID:  sym.ID,
		Type:      txType,
		Date:      day(date),
		Quantity:  quantity,
		Price:     d(price),
	})
}

func (e *testEnv) buy(sym *models.Symbol, date, qty, price string) *models.Transaction {
	e.t.Helper()
	return e.record(sym, models.TransactionBuy, date, qty, price)
}

func (e *testEnv) sell(sym *models.Symbol, date, qty, price string) *models.Transaction {
	e.t.Helper()
	return e.record(sym, models.TransactionSell, date, qty, price)
}

func (e *testEnv) createSplit(sym *models.Symbol, from, to int64, exDate string) *models.CorporateAction {
	e.t.Helper()
	action, err := e.actions.CreateCorporateAction(e.ctx, models.CorporateAction{
		SymbolID:       sym.ID,
		ActionType:     models.ActionStockSplit,
		ExDate:         day(exDate),
		SplitRatioFrom: from,
		SplitRatioTo:   to,
	})
	require.NoError(e.t, err)
	return action
}

func (e *testEnv) createDividend(sym *models.Symbol, exDate, perShare string) *models.CorporateAction {
	e.t.Helper()
	action, err := e.actions.CreateCorporateAction(e.ctx, models.CorporateAction{
		SymbolID:         sym.ID,
		ActionType:       models.ActionCashDividend,
		ExDate:           day(exDate),
		DividendPerShare: decimal.NewNullDecimal(d(perShare)),
	})
	require.NoError(e.t, err)
	return action
}

func (e *testEnv) apply(action *models.CorporateAction) *models.ApplyResult {
	e.t.Helper()
	result, err := e.actions.ApplyCorporateAction(e.ctx, action.ID)
	require.NoError(e.t, err)
	return result
}

func (e *testEnv) setPrice(sym *models.Symbol, date, price string) {
	e.t.Helper()
	require.NoError(e.t, e.ledger.SetPrice(e.ctx, sym.ID, day(date), d(price)))
}
