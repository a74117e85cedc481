package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/username/taxfolio/ledger/src/model"
	"github.com/username/taxfolio/ledger/src/models"
	"github.com/username/taxfolio/ledger/src/processors"
)

func getAccount(ctx context.Context, db model.DBTX, accountID int64) (*models.Account, error) {
	account, err := model.GetAccountByID(ctx, db, accountID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrAccountNotFound, accountID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load account %d: %w", accountID, err)
	}
	return account, nil
}

func getSymbol(ctx context.Context, db model.DBTX, symbolID int64) (*models.Symbol, error) {
	symbol, err := model.GetSymbolByID(ctx, db, symbolID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrSymbolNotFound, symbolID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load symbol %d: %w", symbolID, err)
	}
	return symbol, nil
}

func getCorporateAction(ctx context.Context, db model.DBTX, id int64) (*models.CorporateAction, error) {
	action, err := model.GetCorporateAction(ctx, db, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrCorporateActionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load corporate action %d: %w", id, err)
	}
	return action, nil
}

// splitContext holds what is needed to express a symbol's history in split-adjusted units.
type splitContext struct {
	adjustments map[int64][]models.TransactionAdjustment
	splits      []models.CorporateAction
}

func loadSplitContext(ctx context.Context, db model.DBTX, symbolID int64) (*splitContext, error) {
	adjustments, err := model.GetActiveQuantityPriceAdjustments(ctx, db, symbolID)
	if err != nil {
		return nil, fmt.Errorf("failed to load split adjustments: %w", err)
	}
	splits, err := model.ListAppliedSplits(ctx, db, symbolID)
	if err != nil {
		return nil, fmt.Errorf("failed to load applied splits: %w", err)
	}
	return &splitContext{adjustments: adjustments, splits: splits}, nil
}

// asOf keeps only the splits whose ex-date is on or before date, so share counts read as they
// stood on that day.
func (c *splitContext) asOf(date time.Time) *splitContext {
	kept := make(map[int64]bool)
	out := &splitContext{adjustments: make(map[int64][]models.TransactionAdjustment)}
	for _, split := range c.splits {
		if !split.ExDate.After(date) {
			kept[split.ID] = true
			out.splits = append(out.splits, split)
		}
	}
	for txID, list := range c.adjustments {
		for _, adj := range list {
			if kept[adj.CorporateActionID] {
				out.adjustments[txID] = append(out.adjustments[txID], adj)
			}
		}
	}
	return out
}

func (c *splitContext) normalize(txs []models.Transaction) []models.Transaction {
	return processors.NormalizeForSplits(txs, c.adjustments, c.splits)
}

// loadLotHistory returns one account's history for a symbol in current share units.
func loadLotHistory(ctx context.Context, db model.DBTX, accountID, symbolID int64) ([]models.Transaction, error) {
	txs, err := model.GetTransactionsBySymbol(ctx, db, accountID, symbolID)
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions: %w", err)
	}
	sc, err := loadSplitContext(ctx, db, symbolID)
	if err != nil {
		return nil, err
	}
	return sc.normalize(txs), nil
}

// matchHistory runs the lot matcher over one account's history for a symbol.
func matchHistory(ctx context.Context, db model.DBTX, matcher processors.LotMatcher, accountID int64, symbol *models.Symbol) (*models.MatchResult, int, error) {
	history, err := loadLotHistory(ctx, db, accountID, symbol.ID)
	if err != nil {
		return nil, 0, err
	}
	result, err := matcher.Match(history)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", symbol.Ticker, err)
	}
	return result, len(history), nil
}
