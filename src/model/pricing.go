package model

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/username/taxfolio/ledger/src/logger"
	"github.com/username/taxfolio/ledger/src/utils"
)

// SymbolPrice is a stored closing price for a symbol on one day.
type SymbolPrice struct {
	SymbolID  int64           `json:"symbol_id"`
	Date      time.Time       `json:"date"`
	Price     decimal.Decimal `json:"price"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// InsertOrUpdatePrice performs an "upsert" for a symbol price.
// If a price for the symbol and date already exists, it is replaced.
func InsertOrUpdatePrice(ctx context.Context, db DBTX, price SymbolPrice) error {
	query := `
		INSERT INTO symbol_prices (symbol_id, price_date, price, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(symbol_id, price_date) DO UPDATE SET
			price = excluded.price,
			updated_at = excluded.updated_at`
	_, err := db.ExecContext(ctx, query, price.SymbolID, utils.FormatDate(price.Date), price.Price, time.Now().UTC())
	if err != nil {
		logger.L.Error("Failed to upsert symbol price", "symbolID", price.SymbolID, "date", utils.FormatDate(price.Date), "error", err)
	}
	return err
}

// GetLatestPrice returns the most recent stored price of a symbol, or sql.ErrNoRows.
func GetLatestPrice(ctx context.Context, db DBTX, symbolID int64) (*SymbolPrice, error) {
	var (
		p       SymbolPrice
		dateStr string
	)
	err := db.QueryRowContext(ctx, `
		SELECT symbol_id, price_date, price, updated_at FROM symbol_prices
		WHERE symbol_id = ? ORDER BY price_date DESC LIMIT 1`, symbolID).
		Scan(&p.SymbolID, &dateStr, &p.Price, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if p.Date, err = parseStoredDate(dateStr); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetLatestPrices retrieves the most recent price of several symbols in a single query.
// Symbols without any stored price are absent from the result.
func GetLatestPrices(ctx context.Context, db DBTX, symbolIDs []int64) (map[int64]SymbolPrice, error) {
	out := make(map[int64]SymbolPrice)
	if len(symbolIDs) == 0 {
		return out, nil
	}
	query := `
		SELECT p.symbol_id, p.price_date, p.price, p.updated_at
		FROM symbol_prices p
		JOIN (SELECT symbol_id, MAX(price_date) AS price_date FROM symbol_prices
		      WHERE symbol_id IN (` + placeholders(len(symbolIDs)) + `) GROUP BY symbol_id) latest
		  ON latest.symbol_id = p.symbol_id AND latest.price_date = p.price_date`
	rows, err := db.QueryContext(ctx, query, int64Args(symbolIDs)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			p       SymbolPrice
			dateStr string
		)
		if err := rows.Scan(&p.SymbolID, &dateStr, &p.Price, &p.UpdatedAt); err != nil {
			return nil, err
		}
		if p.Date, err = parseStoredDate(dateStr); err != nil {
			return nil, err
		}
		out[p.SymbolID] = p
	}
	return out, rows.Err()
}
