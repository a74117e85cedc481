package model

import (
	"context"
	"time"

	"github.com/username/taxfolio/ledger/src/models"
)

const symbolColumns = `id, ticker, name, asset_class, created_at`

func scanSymbol(s rowScanner) (*models.Symbol, error) {
	var sym models.Symbol
	if err := s.Scan(&sym.ID, &sym.Ticker, &sym.Name, &sym.AssetClass, &sym.CreatedAt); err != nil {
		return nil, err
	}
	return &sym, nil
}

// CreateSymbol inserts a new symbol.
func CreateSymbol(ctx context.Context, db DBTX, ticker, name, assetClass string) (*models.Symbol, error) {
	now := time.Now().UTC()
	res, err := db.ExecContext(ctx,
		`INSERT INTO symbols (ticker, name, asset_class, created_at) VALUES (?, ?, ?, ?)`,
		ticker, name, assetClass, now)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &models.Symbol{ID: id, Ticker: ticker, Name: name, AssetClass: assetClass, CreatedAt: now}, nil
}

// GetSymbolByID returns sql.ErrNoRows when the symbol does not exist.
func GetSymbolByID(ctx context.Context, db DBTX, id int64) (*models.Symbol, error) {
	return scanSymbol(db.QueryRowContext(ctx, `SELECT `+symbolColumns+` FROM symbols WHERE id = ?`, id))
}

// GetSymbolByTicker returns sql.ErrNoRows when the ticker is unknown.
func GetSymbolByTicker(ctx context.Context, db DBTX, ticker string) (*models.Symbol, error) {
	return scanSymbol(db.QueryRowContext(ctx, `SELECT `+symbolColumns+` FROM symbols WHERE ticker = ?`, ticker))
}

// ListSymbols returns all symbols ordered by ticker.
func ListSymbols(ctx context.Context, db DBTX) ([]models.Symbol, error) {
	return querySymbols(ctx, db, `SELECT `+symbolColumns+` FROM symbols ORDER BY ticker`)
}

// ListSymbolsByAssetClass returns the symbols of one asset class ordered by ticker.
func ListSymbolsByAssetClass(ctx context.Context, db DBTX, assetClass string) ([]models.Symbol, error) {
	return querySymbols(ctx, db, `SELECT `+symbolColumns+` FROM symbols WHERE asset_class = ? ORDER BY ticker`, assetClass)
}

// GetSymbolsByIDs retrieves several symbols in one query, keyed by id.
func GetSymbolsByIDs(ctx context.Context, db DBTX, ids []int64) (map[int64]models.Symbol, error) {
	out := make(map[int64]models.Symbol)
	if len(ids) == 0 {
		return out, nil
	}
	list, err := querySymbols(ctx, db,
		`SELECT `+symbolColumns+` FROM symbols WHERE id IN (`+placeholders(len(ids))+`)`, int64Args(ids)...)
	if err != nil {
		return nil, err
	}
	for _, s := range list {
		out[s.ID] = s
	}
	return out, nil
}

func querySymbols(ctx context.Context, db DBTX, query string, args ...any) ([]models.Symbol, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	symbols := []models.Symbol{}
	for rows.Next() {
		s, err := scanSymbol(rows)
		if err != nil {
			return nil, err
		}
		symbols = append(symbols, *s)
	}
	return symbols, rows.Err()
}
