package processors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/taxfolio/ledger/src/models"
	"github.com/username/taxfolio/ledger/src/security/validation"
)

func TestNormalize_ComputesTotalAmount(t *testing.T) {
	tests := []struct {
		name string
		tx   models.Transaction
		want string
	}{
		{"buy adds fee", models.Transaction{Type: models.TransactionBuy, Quantity: d("10"), Price: d("20"), Fee: d("1.5")}, "201.5"},
		{"sell subtracts fee", models.Transaction{Type: models.TransactionSell, Quantity: d("-10"), Price: d("20"), Fee: d("1.5")}, "198.5"},
		{"dividend is quantity times price", models.Transaction{Type: models.TransactionDividend, Quantity: d("100"), Price: d("0.24")}, "24"},
		{"fee row is its fee", models.Transaction{Type: models.TransactionFee, Fee: d("7")}, "7"},
	}

	p := NewTransactionProcessor()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := tt.tx
			tx.AccountID, tx.SymbolID, tx.Date = 1, 1, day("2024-01-10")
			require.NoError(t, p.Normalize(&tx))
			assert.True(t, tx.TotalAmount.Equal(d(tt.want)), "got %s", tx.TotalAmount)
		})
	}
}

func TestNormalize_KeepsExplicitTotal(t *testing.T) {
	tx := models.Transaction{
		AccountID: 1, SymbolID: 1, Date: day("2024-01-10"), Type: models.TransactionBuy,
		Quantity: d("10"), Price: d("20"), TotalAmount: d("199.99"),
	}
	require.NoError(t, NewTransactionProcessor().Normalize(&tx))
	assert.True(t, tx.TotalAmount.Equal(d("199.99")))
}

func TestNormalize_RejectsSignViolations(t *testing.T) {
	tests := []struct {
		name string
		tx   models.Transaction
	}{
		{"negative buy", models.Transaction{Type: models.TransactionBuy, Quantity: d("-1"), Price: d("1")}},
		{"zero buy", models.Transaction{Type: models.TransactionBuy, Quantity: d("0"), Price: d("1")}},
		{"positive sell", models.Transaction{Type: models.TransactionSell, Quantity: d("1"), Price: d("1")}},
		{"negative dividend", models.Transaction{Type: models.TransactionDividend, Quantity: d("-1")}},
		{"fee with quantity", models.Transaction{Type: models.TransactionFee, Quantity: d("1"), Fee: d("1")}},
		{"negative price", models.Transaction{Type: models.TransactionBuy, Quantity: d("1"), Price: d("-1")}},
		{"negative fee", models.Transaction{Type: models.TransactionBuy, Quantity: d("1"), Price: d("1"), Fee: d("-1")}},
		{"unknown type", models.Transaction{Type: "transfer", Quantity: d("1")}},
	}

	p := NewTransactionProcessor()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := tt.tx
			tx.AccountID, tx.SymbolID, tx.Date = 1, 1, day("2024-01-10")
			assert.ErrorIs(t, p.Normalize(&tx), validation.ErrValidationFailed)
		})
	}
}

func TestNormalize_RequiresAccountSymbolAndDate(t *testing.T) {
	p := NewTransactionProcessor()

	tx := models.Transaction{SymbolID: 1, Date: day("2024-01-10"), Type: models.TransactionBuy, Quantity: d("1")}
	assert.ErrorIs(t, p.Normalize(&tx), validation.ErrValidationFailed)

	tx = models.Transaction{AccountID: 1, SymbolID: 1, Type: models.TransactionBuy, Quantity: d("1")}
	assert.ErrorIs(t, p.Normalize(&tx), validation.ErrValidationFailed)
}

func TestNormalize_SanitisesNotes(t *testing.T) {
	tx := models.Transaction{
		AccountID: 1, SymbolID: 1, Date: day("2024-01-10"), Type: models.TransactionBuy,
		Quantity: d("1"), Price: d("1"), Notes: "<b>rebalance</b>",
	}
	require.NoError(t, NewTransactionProcessor().Normalize(&tx))
	assert.Equal(t, "rebalance", tx.Notes)
}
