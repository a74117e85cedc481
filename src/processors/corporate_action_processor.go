package processors

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/username/taxfolio/ledger/src/models"
)

var (
	ErrUnsupportedActionType  = errors.New("unsupported corporate action type")
	ErrInvalidCorporateAction = errors.New("invalid corporate action")
	ErrValuePreservation      = errors.New("adjustment does not preserve position value")
)

// ValueTolerance is the relative tolerance allowed between original and adjusted position value.
var ValueTolerance = decimal.New(1, -4)

// AffectedLot is a buy transaction touched by a corporate action. Transaction carries effective
// (already split-adjusted) quantity and price; HeldQuantity is what was still held on the ex-date.
type AffectedLot struct {
	Transaction  models.Transaction
	HeldQuantity decimal.Decimal
	FIFOOrder    int
}

// AdjustmentCalculator produces the adjustments of one action type.
type AdjustmentCalculator interface {
	Validate(action models.CorporateAction) error
	Calculate(action models.CorporateAction, lots []AffectedLot) ([]models.TransactionAdjustment, error)
}

type corporateActionProcessorImpl struct {
	calculators map[models.ActionType]AdjustmentCalculator
}

// NewCorporateActionProcessor wires the supported action types to their calculators.
func NewCorporateActionProcessor() CorporateActionProcessor {
	return &corporateActionProcessorImpl{
		calculators: map[models.ActionType]AdjustmentCalculator{
			models.ActionStockSplit:   splitCalculator{},
			models.ActionCashDividend: cashDividendCalculator{},
		},
	}
}

func (p *corporateActionProcessorImpl) Supports(actionType models.ActionType) bool {
	_, ok := p.calculators[actionType]
	return ok
}

func (p *corporateActionProcessorImpl) calculator(actionType models.ActionType) (AdjustmentCalculator, error) {
	calc, ok := p.calculators[actionType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedActionType, actionType)
	}
	return calc, nil
}

func (p *corporateActionProcessorImpl) Validate(action models.CorporateAction) error {
	calc, err := p.calculator(action.ActionType)
	if err != nil {
		return err
	}
	return calc.Validate(action)
}

// Calculate dispatches to the type's calculator and checks value preservation on the result.
func (p *corporateActionProcessorImpl) Calculate(action models.CorporateAction, lots []AffectedLot) ([]models.TransactionAdjustment, error) {
	calc, err := p.calculator(action.ActionType)
	if err != nil {
		return nil, err
	}
	if err := calc.Validate(action); err != nil {
		return nil, err
	}
	adjustments, err := calc.Calculate(action, lots)
	if err != nil {
		return nil, err
	}
	for _, adj := range adjustments {
		if err := ValidateValuePreservation(adj); err != nil {
			return nil, err
		}
	}
	return adjustments, nil
}

// ValidateValuePreservation checks |q0*p0 - q1*p1| <= tolerance * q0*p0 for quantity_price adjustments.
func ValidateValuePreservation(adj models.TransactionAdjustment) error {
	if adj.AdjustmentType != models.AdjustmentQuantityPrice {
		return nil
	}
	if !adj.OriginalQuantity.Valid || !adj.OriginalPrice.Valid || !adj.AdjustedQuantity.Valid || !adj.AdjustedPrice.Valid {
		return fmt.Errorf("%w: transaction %d has incomplete quantity/price values", ErrValuePreservation, adj.TransactionID)
	}
	original := adj.OriginalQuantity.Decimal.Mul(adj.OriginalPrice.Decimal)
	adjusted := adj.AdjustedQuantity.Decimal.Mul(adj.AdjustedPrice.Decimal)
	allowed := original.Abs().Mul(ValueTolerance)
	if original.Sub(adjusted).Abs().GreaterThan(allowed) {
		return fmt.Errorf("%w: transaction %d value %s became %s",
			ErrValuePreservation, adj.TransactionID, original.String(), adjusted.String())
	}
	return nil
}

type splitCalculator struct{}

func (splitCalculator) Validate(action models.CorporateAction) error {
	if action.SplitRatioFrom <= 0 || action.SplitRatioTo <= 0 {
		return fmt.Errorf("%w: split ratio must be positive (from=%d, to=%d)",
			ErrInvalidCorporateAction, action.SplitRatioFrom, action.SplitRatioTo)
	}
	if action.SplitRatioFrom == action.SplitRatioTo {
		return fmt.Errorf("%w: split ratio %d:%d changes nothing", ErrInvalidCorporateAction, action.SplitRatioFrom, action.SplitRatioTo)
	}
	return nil
}

// Calculate scales quantity by to/from and price by from/to, starting from the lot as restated by
// earlier splits. Reverse splits use the same math.
func (splitCalculator) Calculate(action models.CorporateAction, lots []AffectedLot) ([]models.TransactionAdjustment, error) {
	from := decimal.NewFromInt(action.SplitRatioFrom)
	to := decimal.NewFromInt(action.SplitRatioTo)

	adjustments := make([]models.TransactionAdjustment, 0, len(lots))
	for _, lot := range lots {
		quantity, price := lot.Transaction.AdjustedQuantity(), lot.Transaction.AdjustedPrice()
		adjustments = append(adjustments, models.TransactionAdjustment{
			TransactionID:     lot.Transaction.ID,
			CorporateActionID: action.ID,
			AdjustmentType:    models.AdjustmentQuantityPrice,
			OriginalQuantity:  decimal.NewNullDecimal(quantity),
			OriginalPrice:     decimal.NewNullDecimal(price),
			AdjustedQuantity:  decimal.NewNullDecimal(quantity.Mul(to).Div(from)),
			AdjustedPrice:     decimal.NewNullDecimal(price.Mul(from).Div(to)),
			FIFOLotOrder:      lot.FIFOOrder,
			CostBasisMethod:   models.CostBasisFIFO,
		})
	}
	return adjustments, nil
}

type cashDividendCalculator struct{}

func (cashDividendCalculator) Validate(action models.CorporateAction) error {
	if !action.DividendPerShare.Valid || !action.DividendPerShare.Decimal.IsPositive() {
		return fmt.Errorf("%w: dividend_per_share must be positive", ErrInvalidCorporateAction)
	}
	if action.DividendTaxStatus != "" && !action.DividendTaxStatus.Valid() {
		return fmt.Errorf("%w: unknown dividend tax status %q", ErrInvalidCorporateAction, action.DividendTaxStatus)
	}
	return nil
}

// Calculate pays dividend_per_share on the quantity held at the ex-date. Lots sold out by then get nothing.
func (cashDividendCalculator) Calculate(action models.CorporateAction, lots []AffectedLot) ([]models.TransactionAdjustment, error) {
	dps := action.DividendPerShare.Decimal
	taxStatus := action.DividendTaxStatus
	if taxStatus == "" {
		taxStatus = models.DividendQualified
	}

	adjustments := make([]models.TransactionAdjustment, 0, len(lots))
	for _, lot := range lots {
		if !lot.HeldQuantity.IsPositive() {
			continue
		}
		adjustments = append(adjustments, models.TransactionAdjustment{
			TransactionID:     lot.Transaction.ID,
			CorporateActionID: action.ID,
			AdjustmentType:    models.AdjustmentCashReceipt,
			DividendPerShare:  decimal.NewNullDecimal(dps),
			SharesEligible:    decimal.NewNullDecimal(lot.HeldQuantity),
			TotalDividend:     decimal.NewNullDecimal(lot.HeldQuantity.Mul(dps)),
			DividendTaxStatus: taxStatus,
			FIFOLotOrder:      lot.FIFOOrder,
			CostBasisMethod:   models.CostBasisFIFO,
		})
	}
	return adjustments, nil
}
