package services

import (
	"bytes"
	"log/slog"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/taxfolio/ledger/src/logger"
	"github.com/username/taxfolio/ledger/src/models"
	"github.com/username/taxfolio/ledger/src/parsers/ledgercsv"
	"github.com/username/taxfolio/ledger/src/security/validation"
)

func TestCreateSymbol(t *testing.T) {
	env := newTestEnv(t, "2025-01-15")

	sym, err := env.ledger.CreateSymbol(env.ctx, " voo ", "", "US_Equity")
	require.NoError(t, err)
	assert.Equal(t, "VOO", sym.Ticker)
	assert.Equal(t, "VOO", sym.Name)
	assert.Equal(t, "us_equity", sym.AssetClass)

	_, err = env.ledger.CreateSymbol(env.ctx, "VOO", "Vanguard S&P 500", "us_equity")
	assert.ErrorIs(t, err, ErrDuplicateSymbol)

	_, err = env.ledger.CreateSymbol(env.ctx, "BAD TICKER", "", "us_equity")
	assert.ErrorIs(t, err, validation.ErrValidationFailed)

	symbols, err := env.ledger.ListSymbols(env.ctx)
	require.NoError(t, err)
	assert.Len(t, symbols, 1)
}

func TestCreateAccount(t *testing.T) {
	env := newTestEnv(t, "2025-01-15")

	_, err := env.ledger.CreateAccount(env.ctx, "<i></i>")
	assert.ErrorIs(t, err, validation.ErrValidationFailed)

	_, err = env.ledger.CreateAccount(env.ctx, "IRA")
	require.NoError(t, err)
	accounts, err := env.ledger.ListAccounts(env.ctx)
	require.NoError(t, err)
	assert.Len(t, accounts, 2)
}

func TestRecordTransaction_RejectsOversell(t *testing.T) {
	env := newTestEnv(t, "2025-01-15")
	aapl := env.symbol("AAPL", "us_equity")
	env.buy(aapl, "2024-01-15", "100", "150")

	_, err := env.tryRecord(aapl, models.TransactionSell, "2024-06-15", "101", "160")
	assert.ErrorIs(t, err, ErrInsufficientLots)

	_, err = env.tryRecord(aapl, models.TransactionSell, "2024-01-10", "10", "160")
	assert.ErrorIs(t, err, ErrInsufficientLots, "a sell dated before the only buy has no lot")

	txs, err := env.ledger.ListTransactions(env.ctx, env.account.ID, models.TransactionFilter{})
	require.NoError(t, err)
	assert.Len(t, txs, 1, "rejected sells are rolled back")
}

func TestRecordTransaction_NotFound(t *testing.T) {
	env := newTestEnv(t, "2025-01-15")
	aapl := env.symbol("AAPL", "us_equity")

	_, err := env.ledger.RecordTransaction(env.ctx, models.Transaction{
		AccountID: 9999, SymbolID: aapl.ID, Type: models.TransactionBuy, Date: day("2024-01-15"), Quantity: d("1"), Price: d("1"),
	})
	assert.ErrorIs(t, err, ErrAccountNotFound)

	_, err = env.ledger.RecordTransaction(env.ctx, models.Transaction{
		AccountID: env.account.ID, SymbolID: 9999, Type: models.TransactionBuy, Date: day("2024-01-15"), Quantity: d("1"), Price: d("1"),
	})
	assert.ErrorIs(t, err, ErrSymbolNotFound)
}

func TestListTransactions_Filter(t *testing.T) {
	env := newTestEnv(t, "2025-01-15")
	aapl := env.symbol("AAPL", "us_equity")
	msft := env.symbol("MSFT", "us_equity")
	env.buy(aapl, "2024-01-15", "100", "150")
	env.buy(msft, "2024-02-15", "10", "400")
	env.sell(aapl, "2024-06-15", "50", "160")

	bySymbol, err := env.ledger.ListTransactions(env.ctx, env.account.ID, models.TransactionFilter{SymbolID: aapl.ID})
	require.NoError(t, err)
	assert.Len(t, bySymbol, 2)

	sells, err := env.ledger.ListTransactions(env.ctx, env.account.ID, models.TransactionFilter{Type: models.TransactionSell})
	require.NoError(t, err)
	require.Len(t, sells, 1)
	assert.True(t, sells[0].Quantity.Equal(d("-50")))
	assert.True(t, sells[0].TotalAmount.Equal(d("8000")))

	window, err := env.ledger.ListTransactions(env.ctx, env.account.ID, models.TransactionFilter{From: day("2024-02-01"), To: day("2024-03-01")})
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.Equal(t, msft.ID, window[0].SymbolID)

	_, err = env.ledger.ListTransactions(env.ctx, 9999, models.TransactionFilter{})
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestImportTransactions(t *testing.T) {
	env := newTestEnv(t, "2025-01-15")
	msft := env.symbol("MSFT", "us_equity")

	file := strings.Join([]string{
		strings.Join(ledgercsv.Header(), ","),
		"2023-01-15,MSFT,buy,100,200,,,",
		"2023-06-15,msft,buy,100,250,,,",
		"2024-03-15,MSFT,sell,150,280,,,",
	}, "\n")

	result, err := env.ledger.ImportTransactions(env.ctx, env.account.ID, "ledger_csv", strings.NewReader(file))
	require.NoError(t, err)
	assert.Equal(t, 3, result.Imported)
	assert.Len(t, result.IDs, 3)

	analysis, err := env.gains.CalculateRealizedGains(env.ctx, env.account.ID, msft.ID, 2024)
	require.NoError(t, err)
	assert.True(t, analysis.TotalRealizedGains.Equal(d("9500")))
}

func TestImportTransactions_RejectsWholeFile(t *testing.T) {
	env := newTestEnv(t, "2025-01-15")
	env.symbol("MSFT", "us_equity")

	tests := map[string]struct {
		file string
		want error
	}{
		"unknown ticker": {
			file: "date,ticker,type,quantity,price\n2024-01-15,MSFT,buy,10,100\n2024-01-16,NOPE,buy,1,1\n",
			want: ErrSymbolNotFound,
		},
		"oversell": {
			file: "date,ticker,type,quantity,price\n2024-01-15,MSFT,buy,10,100\n2024-02-15,MSFT,sell,11,110\n",
			want: ErrInsufficientLots,
		},
		"bad row": {
			file: "date,ticker,type,quantity,price\n2024-01-15,MSFT,buy,10,100\n2024-02-30,MSFT,buy,1,1\n",
			want: ErrParsingFailed,
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := env.ledger.ImportTransactions(env.ctx, env.account.ID, "", strings.NewReader(tt.file))
			assert.ErrorIs(t, err, tt.want)
		})
	}

	txs, err := env.ledger.ListTransactions(env.ctx, env.account.ID, models.TransactionFilter{})
	require.NoError(t, err)
	assert.Empty(t, txs)

	_, err = env.ledger.ImportTransactions(env.ctx, env.account.ID, "degiro", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrParsingFailed)
}

func TestPriceService(t *testing.T) {
	env := newTestEnv(t, "2025-01-15")
	aapl := env.symbol("AAPL", "us_equity")
	msft := env.symbol("MSFT", "us_equity")

	info, err := env.prices.GetCurrentPrice(env.ctx, aapl.ID)
	require.NoError(t, err)
	assert.Equal(t, PriceStatusUnavailable, info.Status)

	env.setPrice(aapl, "2025-01-10", "180")
	env.setPrice(aapl, "2025-01-14", "185.5")
	env.setPrice(aapl, "2025-01-12", "170")

	info, err = env.prices.GetCurrentPrice(env.ctx, aapl.ID)
	require.NoError(t, err)
	assert.Equal(t, PriceStatusOK, info.Status)
	assert.True(t, info.Price.Equal(d("185.5")), "latest date wins, got %s", info.Price)
	assert.Equal(t, day("2025-01-14"), info.Date)

	all, err := env.prices.GetCurrentPrices(env.ctx, []int64{aapl.ID, msft.ID})
	require.NoError(t, err)
	assert.Equal(t, PriceStatusOK, all[aapl.ID].Status)
	assert.Equal(t, PriceStatusUnavailable, all[msft.ID].Status)

	assert.ErrorIs(t, env.ledger.SetPrice(env.ctx, aapl.ID, day("2025-01-14"), d("0")), validation.ErrValidationFailed)
	assert.ErrorIs(t, env.ledger.SetPrice(env.ctx, 9999, day("2025-01-14"), d("1")), ErrSymbolNotFound)
}

func TestCreateAccount_LogsThroughRequestLogger(t *testing.T) {
	env := newTestEnv(t, "2025-01-15")
	var buf bytes.Buffer
	requestLogger := slog.New(slog.NewJSONHandler(&buf, nil)).With("requestID", "req-42")
	ctx := logger.ToContext(env.ctx, requestLogger)

	account, err := env.ledger.CreateAccount(ctx, "Roth IRA")
	require.NoError(t, err)

	assert.Contains(t, buf.String(), `"msg":"Account created"`)
	assert.Contains(t, buf.String(), `"requestID":"req-42"`)
	assert.Contains(t, buf.String(), `"accountID":`+strconv.FormatInt(account.ID, 10))
}
