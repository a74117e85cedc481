package model

import (
	"context"
	"strings"
	"time"

	"github.com/username/taxfolio/ledger/src/models"
	"github.com/username/taxfolio/ledger/src/utils"
)

const transactionColumns = `id, account_id, symbol_id, type, trade_date, quantity, price, total_amount, fee, notes, created_at`

// Every listing is ordered by trade date then id so the lot matcher receives a stable FIFO order.
const transactionOrder = ` ORDER BY trade_date ASC, id ASC`

func scanTransaction(s rowScanner) (*models.Transaction, error) {
	var (
		tx      models.Transaction
		txType  string
		dateStr string
	)
	if err := s.Scan(&tx.ID, &tx.AccountID, &tx.SymbolID, &txType, &dateStr,
		&tx.Quantity, &tx.Price, &tx.TotalAmount, &tx.Fee, &tx.Notes, &tx.CreatedAt); err != nil {
		return nil, err
	}
	date, err := parseStoredDate(dateStr)
	if err != nil {
		return nil, err
	}
	tx.Type = models.TransactionType(txType)
	tx.Date = date
	return &tx, nil
}

func queryTransactions(ctx context.Context, db DBTX, query string, args ...any) ([]models.Transaction, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	txs := []models.Transaction{}
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, *tx)
	}
	return txs, rows.Err()
}

// InsertTransaction stores tx and sets its ID and CreatedAt.
func InsertTransaction(ctx context.Context, db DBTX, tx *models.Transaction) error {
	tx.CreatedAt = time.Now().UTC()
	res, err := db.ExecContext(ctx, `
		INSERT INTO transactions (account_id, symbol_id, type, trade_date, quantity, price, total_amount, fee, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.AccountID, tx.SymbolID, string(tx.Type), utils.FormatDate(tx.Date),
		tx.Quantity, tx.Price, tx.TotalAmount, tx.Fee, tx.Notes, tx.CreatedAt)
	if err != nil {
		return err
	}
	tx.ID, err = res.LastInsertId()
	return err
}

// GetTransactionByID returns sql.ErrNoRows when the transaction does not exist.
func GetTransactionByID(ctx context.Context, db DBTX, id int64) (*models.Transaction, error) {
	return scanTransaction(db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id))
}

// GetTransactionsBySymbol returns one account's history for a symbol.
func GetTransactionsBySymbol(ctx context.Context, db DBTX, accountID, symbolID int64) ([]models.Transaction, error) {
	return queryTransactions(ctx, db,
		`SELECT `+transactionColumns+` FROM transactions WHERE account_id = ? AND symbol_id = ?`+transactionOrder,
		accountID, symbolID)
}

// GetTransactionsByAccount returns every transaction of an account.
func GetTransactionsByAccount(ctx context.Context, db DBTX, accountID int64) ([]models.Transaction, error) {
	return queryTransactions(ctx, db,
		`SELECT `+transactionColumns+` FROM transactions WHERE account_id = ?`+transactionOrder, accountID)
}

// GetTransactionsByDateRange returns an account's transactions with start <= date <= end.
func GetTransactionsByDateRange(ctx context.Context, db DBTX, accountID int64, start, end time.Time) ([]models.Transaction, error) {
	return queryTransactions(ctx, db,
		`SELECT `+transactionColumns+` FROM transactions WHERE account_id = ? AND trade_date >= ? AND trade_date <= ?`+transactionOrder,
		accountID, utils.FormatDate(start), utils.FormatDate(end))
}

// ListTransactions returns an account's transactions narrowed by filter.
func ListTransactions(ctx context.Context, db DBTX, accountID int64, filter models.TransactionFilter) ([]models.Transaction, error) {
	where := []string{"account_id = ?"}
	args := []any{accountID}
	if filter.SymbolID != 0 {
		where = append(where, "symbol_id = ?")
		args = append(args, filter.SymbolID)
	}
	if filter.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(filter.Type))
	}
	if !filter.From.IsZero() {
		where = append(where, "trade_date >= ?")
		args = append(args, utils.FormatDate(filter.From))
	}
	if !filter.To.IsZero() {
		where = append(where, "trade_date <= ?")
		args = append(args, utils.FormatDate(filter.To))
	}
	return queryTransactions(ctx, db,
		`SELECT `+transactionColumns+` FROM transactions WHERE `+strings.Join(where, " AND ")+transactionOrder, args...)
}

// GetBuysBefore returns every buy of a symbol, across accounts, dated strictly before date.
func GetBuysBefore(ctx context.Context, db DBTX, symbolID int64, date time.Time) ([]models.Transaction, error) {
	return queryTransactions(ctx, db,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE symbol_id = ? AND type = 'buy' AND trade_date < ?`+transactionOrder,
		symbolID, utils.FormatDate(date))
}

// GetLotEventsBefore returns buys and sells of a symbol, across accounts, dated strictly before date.
func GetLotEventsBefore(ctx context.Context, db DBTX, symbolID int64, date time.Time) ([]models.Transaction, error) {
	return queryTransactions(ctx, db,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE symbol_id = ? AND type IN ('buy', 'sell') AND trade_date < ?`+transactionOrder,
		symbolID, utils.FormatDate(date))
}

// GetAccountSymbolIDs returns the distinct symbols an account has traded.
func GetAccountSymbolIDs(ctx context.Context, db DBTX, accountID int64) ([]int64, error) {
	return queryIDs(ctx, db,
		`SELECT DISTINCT symbol_id FROM transactions WHERE account_id = ? ORDER BY symbol_id`, accountID)
}

// GetSymbolAccountIDs returns the distinct accounts that have traded a symbol.
func GetSymbolAccountIDs(ctx context.Context, db DBTX, symbolID int64) ([]int64, error) {
	return queryIDs(ctx, db,
		`SELECT DISTINCT account_id FROM transactions WHERE symbol_id = ? ORDER BY account_id`, symbolID)
}

func queryIDs(ctx context.Context, db DBTX, query string, args ...any) ([]int64, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetBuysBetween returns buys of a symbol dated within [start, end]. A zero accountID spans all accounts.
func GetBuysBetween(ctx context.Context, db DBTX, accountID, symbolID int64, start, end time.Time) ([]models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions
		 WHERE symbol_id = ? AND type = 'buy' AND trade_date >= ? AND trade_date <= ?`
	args := []any{symbolID, utils.FormatDate(start), utils.FormatDate(end)}
	if accountID != 0 {
		query += ` AND account_id = ?`
		args = append(args, accountID)
	}
	return queryTransactions(ctx, db, query+transactionOrder, args...)
}
