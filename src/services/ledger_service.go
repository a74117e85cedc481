package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/username/taxfolio/ledger/src/logger"
	"github.com/username/taxfolio/ledger/src/model"
	"github.com/username/taxfolio/ledger/src/models"
	"github.com/username/taxfolio/ledger/src/parsers"
	"github.com/username/taxfolio/ledger/src/processors"
	"github.com/username/taxfolio/ledger/src/security/validation"
	"github.com/username/taxfolio/ledger/src/utils"
)

type ledgerServiceImpl struct {
	db                   *sql.DB
	transactionProcessor processors.TransactionProcessor
	lotMatcher           processors.LotMatcher
	priceService         PriceService
	reportCache          *ReportCache
}

func NewLedgerService(
	db *sql.DB,
	transactionProcessor processors.TransactionProcessor,
	lotMatcher processors.LotMatcher,
	priceService PriceService,
	reportCache *ReportCache,
) LedgerService {
	return &ledgerServiceImpl{
		db:                   db,
		transactionProcessor: transactionProcessor,
		lotMatcher:           lotMatcher,
		priceService:         priceService,
		reportCache:          reportCache,
	}
}

func (s *ledgerServiceImpl) CreateAccount(ctx context.Context, name string) (*models.Account, error) {
	name, err := validation.CleanFreeText(name, "name", true)
	if err != nil {
		return nil, err
	}
	if err := validation.ValidateStringMaxLength(name, validation.MaxNameLength, "name"); err != nil {
		return nil, err
	}
	account, err := model.CreateAccount(ctx, s.db, name)
	if err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	logger.FromContext(ctx).Info("Account created", "accountID", account.ID)
	return account, nil
}

func (s *ledgerServiceImpl) ListAccounts(ctx context.Context) ([]models.Account, error) {
	return model.ListAccounts(ctx, s.db)
}

func (s *ledgerServiceImpl) CreateSymbol(ctx context.Context, ticker, name, assetClass string) (*models.Symbol, error) {
	ticker, err := validation.ValidateTicker(ticker)
	if err != nil {
		return nil, err
	}
	if assetClass, err = validation.ValidateAssetClass(assetClass); err != nil {
		return nil, err
	}
	if name, err = validation.CleanFreeText(name, "name", false); err != nil {
		return nil, err
	}
	if name == "" {
		name = ticker
	}

	if _, err := model.GetSymbolByTicker(ctx, s.db, ticker); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateSymbol, ticker)
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to look up symbol %s: %w", ticker, err)
	}

	symbol, err := model.CreateSymbol(ctx, s.db, ticker, name, assetClass)
	if err != nil {
		return nil, fmt.Errorf("failed to create symbol %s: %w", ticker, err)
	}
	logger.FromContext(ctx).Info("Symbol created", "symbolID", symbol.ID, "ticker", ticker, "assetClass", assetClass)
	return symbol, nil
}

func (s *ledgerServiceImpl) ListSymbols(ctx context.Context) ([]models.Symbol, error) {
	return model.ListSymbols(ctx, s.db)
}

// RecordTransaction validates and stores one ledger row.
func (s *ledgerServiceImpl) RecordTransaction(ctx context.Context, tx models.Transaction) (*models.Transaction, error) {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("error beginning database transaction: %w", err)
	}
	defer dbTx.Rollback()

	if _, err := getAccount(ctx, dbTx, tx.AccountID); err != nil {
		return nil, err
	}
	symbol, err := getSymbol(ctx, dbTx, tx.SymbolID)
	if err != nil {
		return nil, err
	}
	if err := s.storeTransaction(ctx, dbTx, &tx); err != nil {
		return nil, err
	}
	if err := s.verifyLots(ctx, dbTx, tx.AccountID, symbol); err != nil {
		return nil, err
	}
	if err := dbTx.Commit(); err != nil {
		return nil, fmt.Errorf("error committing transaction: %w", err)
	}

	s.reportCache.InvalidateAccount(tx.AccountID)
	logger.FromContext(ctx).Info("Transaction recorded", "transactionID", tx.ID, "accountID", tx.AccountID, "symbol", symbol.Ticker, "type", tx.Type)
	return &tx, nil
}

// storeTransaction normalises tx, rejects buys that would miss an applied split, and inserts it.
func (s *ledgerServiceImpl) storeTransaction(ctx context.Context, db model.DBTX, tx *models.Transaction) error {
	tx.ID = 0
	if err := s.transactionProcessor.Normalize(tx); err != nil {
		return err
	}
	if tx.Type == models.TransactionBuy {
		splits, err := model.ListAppliedSplits(ctx, db, tx.SymbolID)
		if err != nil {
			return fmt.Errorf("failed to load applied splits: %w", err)
		}
		for _, split := range splits {
			if tx.Date.Before(split.ExDate) {
				return fmt.Errorf("%w: %s is before the %d:%d split of %s (corporate action %d)",
					ErrBackdatedTransaction, utils.FormatDate(tx.Date), split.SplitRatioFrom, split.SplitRatioTo,
					utils.FormatDate(split.ExDate), split.ID)
			}
		}
	}
	if err := model.InsertTransaction(ctx, db, tx); err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

// verifyLots rejects a history in which some sell cannot be covered by open lots.
func (s *ledgerServiceImpl) verifyLots(ctx context.Context, db model.DBTX, accountID int64, symbol *models.Symbol) error {
	_, _, err := matchHistory(ctx, db, s.lotMatcher, accountID, symbol)
	return err
}

func (s *ledgerServiceImpl) ListTransactions(ctx context.Context, accountID int64, filter models.TransactionFilter) ([]models.Transaction, error) {
	if _, err := getAccount(ctx, s.db, accountID); err != nil {
		return nil, err
	}
	return model.ListTransactions(ctx, s.db, accountID, filter)
}

// ImportTransactions parses a CSV file and stores every row in one database transaction.
// Any invalid row rejects the whole file.
func (s *ledgerServiceImpl) ImportTransactions(ctx context.Context, accountID int64, source string, file io.Reader) (*models.ImportResult, error) {
	startTime := time.Now()
	logger.FromContext(ctx).Info("ImportTransactions START", "accountID", accountID, "source", source)

	if _, err := getAccount(ctx, s.db, accountID); err != nil {
		return nil, err
	}
	parser, err := parsers.GetParser(source)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParsingFailed, err)
	}
	rows, err := parser.Parse(file)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParsingFailed, err)
	}

	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("error beginning database transaction: %w", err)
	}
	defer dbTx.Rollback()

	symbols := make(map[string]*models.Symbol)
	result := &models.ImportResult{AccountID: accountID, IDs: []int64{}}
	for _, row := range rows {
		symbol, ok := symbols[row.Ticker]
		if !ok {
			symbol, err = model.GetSymbolByTicker(ctx, dbTx, row.Ticker)
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("line %d: %w: unknown ticker %s", row.Line, ErrSymbolNotFound, row.Ticker)
			}
			if err != nil {
				return nil, fmt.Errorf("line %d: failed to resolve ticker %s: %w", row.Line, row.Ticker, err)
			}
			symbols[row.Ticker] = symbol
		}

		tx := models.Transaction{
			AccountID:   accountID,
			SymbolID:    symbol.ID,
			Type:        row.Type,
			Date:        row.Date,
			Quantity:    row.Quantity,
			Price:       row.Price,
			Fee:         row.Fee,
			TotalAmount: row.TotalAmount,
			Notes:       row.Notes,
		}
		if err := s.storeTransaction(ctx, dbTx, &tx); err != nil {
			return nil, fmt.Errorf("line %d: %w", row.Line, err)
		}
		result.IDs = append(result.IDs, tx.ID)
	}

	for _, symbol := range symbols {
		if err := s.verifyLots(ctx, dbTx, accountID, symbol); err != nil {
			return nil, err
		}
	}
	if err := dbTx.Commit(); err != nil {
		return nil, fmt.Errorf("error committing import: %w", err)
	}
	result.Imported = len(result.IDs)

	s.reportCache.InvalidateAccount(accountID)
	tickers := make([]string, 0, len(symbols))
	for t := range symbols {
		tickers = append(tickers, t)
	}
	logger.FromContext(ctx).Info("ImportTransactions END", "accountID", accountID, "imported", result.Imported,
		"symbols", strings.Join(tickers, ","), "duration", time.Since(startTime))
	return result, nil
}

func (s *ledgerServiceImpl) SetPrice(ctx context.Context, symbolID int64, date time.Time, price decimal.Decimal) error {
	if date.IsZero() {
		return fmt.Errorf("%w: date is required", validation.ErrValidationFailed)
	}
	return s.priceService.SetPrice(ctx, symbolID, date, price)
}
