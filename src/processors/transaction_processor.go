package processors

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/username/taxfolio/ledger/src/models"
	"github.com/username/taxfolio/ledger/src/security/validation"
	"github.com/username/taxfolio/ledger/src/utils"
)

// transactionProcessorImpl enforces the ledger row invariants before a row is stored.
type transactionProcessorImpl struct{}

func NewTransactionProcessor() TransactionProcessor { return &transactionProcessorImpl{} }

// Normalize validates tx in place: the quantity sign must match the type, price and fee must be
// non-negative, and a missing total_amount is derived from quantity, price and fee.
func (p *transactionProcessorImpl) Normalize(tx *models.Transaction) error {
	if !tx.Type.Valid() {
		return fmt.Errorf("%w: unknown transaction type %q", validation.ErrValidationFailed, tx.Type)
	}
	if tx.AccountID <= 0 || tx.SymbolID <= 0 {
		return fmt.Errorf("%w: account and symbol are required", validation.ErrValidationFailed)
	}
	if tx.Date.IsZero() {
		return fmt.Errorf("%w: date is required", validation.ErrValidationFailed)
	}
	tx.Date = utils.Date(tx.Date)

	if tx.Price.IsNegative() {
		return fmt.Errorf("%w: price cannot be negative", validation.ErrValidationFailed)
	}
	if tx.Fee.IsNegative() {
		return fmt.Errorf("%w: fee cannot be negative", validation.ErrValidationFailed)
	}

	switch tx.Type {
	case models.TransactionBuy:
		if !tx.Quantity.IsPositive() {
			return fmt.Errorf("%w: buy quantity must be positive", validation.ErrValidationFailed)
		}
	case models.TransactionSell:
		if !tx.Quantity.IsNegative() {
			return fmt.Errorf("%w: sell quantity must be stored negative", validation.ErrValidationFailed)
		}
	case models.TransactionDividend:
		if tx.Quantity.IsNegative() {
			return fmt.Errorf("%w: dividend quantity cannot be negative", validation.ErrValidationFailed)
		}
	case models.TransactionFee:
		if !tx.Quantity.IsZero() {
			return fmt.Errorf("%w: fee rows carry no quantity", validation.ErrValidationFailed)
		}
	}

	if tx.TotalAmount.IsZero() {
		tx.TotalAmount = totalAmount(*tx)
	}

	tx.Notes = validation.StripUnprintable(validation.SanitizeText(tx.Notes))
	return validation.ValidateStringMaxLength(tx.Notes, validation.MaxDescriptionLength, "notes")
}

func totalAmount(tx models.Transaction) decimal.Decimal {
	gross := tx.Quantity.Abs().Mul(tx.Price)
	switch tx.Type {
	case models.TransactionBuy:
		return gross.Add(tx.Fee)
	case models.TransactionSell:
		return gross.Sub(tx.Fee)
	case models.TransactionFee:
		return tx.Fee
	default:
		return gross
	}
}
