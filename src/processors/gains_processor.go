package processors

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/username/taxfolio/ledger/src/models"
	"github.com/username/taxfolio/ledger/src/utils"
)

// LongTermHoldingDays is the day count at which a holding becomes long-term.
const LongTermHoldingDays = 365

// RealizedTotals is the realized gain of the sells in one tax year.
type RealizedTotals struct {
	ShortTerm decimal.Decimal
	LongTerm  decimal.Decimal
	Total     decimal.Decimal
	Sales     int
}

// UnrealizedTotals values a set of open lots at one price.
type UnrealizedTotals struct {
	Quantity    decimal.Decimal
	CostBasis   decimal.Decimal
	MarketValue decimal.Decimal
	ShortTerm   decimal.Decimal
	LongTerm    decimal.Decimal
	Total       decimal.Decimal
}

// ClassifyHolding uses a day count, not a calendar-year comparison.
func ClassifyHolding(acquired, disposed time.Time) models.HoldingTerm {
	if utils.DaysBetween(acquired, disposed) >= LongTermHoldingDays {
		return models.LongTerm
	}
	return models.ShortTerm
}

type gainsProcessorImpl struct{}

// NewGainsProcessor creates a new instance of GainsProcessor.
func NewGainsProcessor() GainsProcessor {
	return &gainsProcessorImpl{}
}

// RealizedForYear sums the gains of sells dated within [Jan 1, Dec 31] of taxYear.
// Sales counts sell events, not lot fragments.
func (p *gainsProcessorImpl) RealizedForYear(sales []models.SaleMatch, taxYear int) RealizedTotals {
	totals := RealizedTotals{ShortTerm: decimal.Zero, LongTerm: decimal.Zero, Total: decimal.Zero}
	for _, sale := range sales {
		if !utils.InYear(sale.Sale.Date, taxYear) {
			continue
		}
		totals.Sales++
		for _, c := range sale.Consumptions {
			gain := c.Proceeds.Sub(c.CostBasis)
			if ClassifyHolding(c.AcquisitionDate, sale.Sale.Date) == models.LongTerm {
				totals.LongTerm = totals.LongTerm.Add(gain)
			} else {
				totals.ShortTerm = totals.ShortTerm.Add(gain)
			}
		}
	}
	totals.Total = totals.ShortTerm.Add(totals.LongTerm)
	return totals
}

// ClosedLots flattens sale matches into per-lot disposals.
func (p *gainsProcessorImpl) ClosedLots(sales []models.SaleMatch) []models.ClosedLot {
	closed := []models.ClosedLot{}
	for _, sale := range sales {
		for _, c := range sale.Consumptions {
			closed = append(closed, models.ClosedLot{
				SymbolID:        sale.Sale.SymbolID,
				LotID:           c.LotID,
				SaleID:          sale.Sale.ID,
				AcquisitionDate: c.AcquisitionDate,
				SaleDate:        sale.Sale.Date,
				Quantity:        c.Quantity,
				UnitCost:        c.UnitCost,
				CostBasis:       c.CostBasis,
				SalePrice:       sale.Sale.AdjustedPrice(),
				Proceeds:        c.Proceeds,
				Gain:            c.Proceeds.Sub(c.CostBasis),
				HoldingDays:     utils.DaysBetween(c.AcquisitionDate, sale.Sale.Date),
				Term:            ClassifyHolding(c.AcquisitionDate, sale.Sale.Date),
			})
		}
	}
	return closed
}

// ValueOpenLots compares every open lot's market value with its cost basis, mirroring realized gains.
func (p *gainsProcessorImpl) ValueOpenLots(lots []models.OpenLot, price decimal.Decimal, asOf time.Time) UnrealizedTotals {
	totals := UnrealizedTotals{
		Quantity: decimal.Zero, CostBasis: decimal.Zero, MarketValue: decimal.Zero,
		ShortTerm: decimal.Zero, LongTerm: decimal.Zero, Total: decimal.Zero,
	}
	for _, lot := range lots {
		qty := lot.RemainingQuantity
		value := qty.Mul(price)
		gain := value.Sub(lot.CostBasis)
		totals.Quantity = totals.Quantity.Add(qty)
		totals.CostBasis = totals.CostBasis.Add(lot.CostBasis)
		totals.MarketValue = totals.MarketValue.Add(value)
		if ClassifyHolding(lot.AcquisitionDate, asOf) == models.LongTerm {
			totals.LongTerm = totals.LongTerm.Add(gain)
		} else {
			totals.ShortTerm = totals.ShortTerm.Add(gain)
		}
	}
	totals.Total = totals.ShortTerm.Add(totals.LongTerm)
	return totals
}
