package processors

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/username/taxfolio/ledger/src/models"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func buy(id int64, date, qty, price string) models.Transaction {
	return models.Transaction{
		ID: id, AccountID: 1, SymbolID: 1, Type: models.TransactionBuy,
		Date: day(date), Quantity: d(qty), Price: d(price),
	}
}

func sell(id int64, date, qty, price string) models.Transaction {
	return models.Transaction{
		ID: id, AccountID: 1, SymbolID: 1, Type: models.TransactionSell,
		Date: day(date), Quantity: d(qty).Abs().Neg(), Price: d(price),
	}
}
