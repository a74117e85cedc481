package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType classifies a ledger row.
type TransactionType string

const (
	TransactionBuy      TransactionType = "buy"
	TransactionSell     TransactionType = "sell"
	TransactionDividend TransactionType = "dividend"
	TransactionFee      TransactionType = "fee"
)

// Valid reports whether t is one of the known transaction types.
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionBuy, TransactionSell, TransactionDividend, TransactionFee:
		return true
	}
	return false
}

// Account owns a set of ledger transactions.
type Account struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Symbol is a tradable security.
type Symbol struct {
	ID         int64     `json:"id"`
	Ticker     string    `json:"ticker"`
	Name       string    `json:"name"`
	AssetClass string    `json:"asset_class"`
	CreatedAt  time.Time `json:"created_at"`
}

// Transaction is one immutable ledger event. Sell quantities are stored negative.
type Transaction struct {
	ID          int64           `json:"id"`
	AccountID   int64           `json:"account_id"`
	SymbolID    int64           `json:"symbol_id"`
	Type        TransactionType `json:"type"`
	Date        time.Time       `json:"date"`
	Quantity    decimal.Decimal `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Fee         decimal.Decimal `json:"fee"`
	Notes       string          `json:"notes,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`

	// Split converts recorded shares to current shares. It is derived from applied splits
	// when a history is loaded and never stored.
	Split SplitFactor `json:"-"`
}

// AdjustedQuantity is the quantity in current share units.
func (t Transaction) AdjustedQuantity() decimal.Decimal {
	num, den := t.Split.Terms()
	if num == den {
		return t.Quantity
	}
	return t.Quantity.Mul(decimal.NewFromInt(num)).Div(decimal.NewFromInt(den))
}

// AdjustedPrice is the per-share price in current share units.
func (t Transaction) AdjustedPrice() decimal.Decimal {
	num, den := t.Split.Terms()
	if num == den {
		return t.Price
	}
	return t.Price.Mul(decimal.NewFromInt(den)).Div(decimal.NewFromInt(num))
}

// SplitFactor is a reduced fraction of current shares per recorded share.
// The zero value means no split.
type SplitFactor struct {
	Num int64
	Den int64
}

// Terms returns numerator and denominator, 1/1 for the zero value.
func (f SplitFactor) Terms() (int64, int64) {
	if f.Num <= 0 || f.Den <= 0 {
		return 1, 1
	}
	return f.Num, f.Den
}

// Then composes f with a from:to split.
func (f SplitFactor) Then(from, to int64) SplitFactor {
	num, den := f.Terms()
	num, den = num*to, den*from
	g := GCD(num, den)
	return SplitFactor{Num: num / g, Den: den / g}
}

// GCD returns the greatest common divisor of two positive integers.
func GCD(a, b int64) int64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// IsLotEvent reports whether the row takes part in lot matching.
// Zero-quantity rows and dividend/fee rows are excluded.
func (t Transaction) IsLotEvent() bool {
	if t.Quantity.IsZero() {
		return false
	}
	return t.Type == TransactionBuy || t.Type == TransactionSell
}

// TransactionFilter narrows a ledger listing. Zero values mean "any".
type TransactionFilter struct {
	SymbolID int64
	Type     TransactionType
	From     time.Time
	To       time.Time
}
