package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CanonicalTransaction is the unified, intermediate representation of an imported row.
// Parsers populate it from the source file; the ledger resolves Ticker to a symbol.
type CanonicalTransaction struct {
	Line        int             `json:"line"`
	Date        time.Time       `json:"date"`
	Ticker      string          `json:"ticker"`
	Type        TransactionType `json:"type"`
	Quantity    decimal.Decimal `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	Fee         decimal.Decimal `json:"fee"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Notes       string          `json:"notes"`
}

// ImportResult reports a CSV import.
type ImportResult struct {
	AccountID int64   `json:"account_id"`
	Imported  int     `json:"imported"`
	IDs       []int64 `json:"ids"`
}
