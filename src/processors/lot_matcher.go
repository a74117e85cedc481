package processors

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/username/taxfolio/ledger/src/models"
	"github.com/username/taxfolio/ledger/src/utils"
)

// ErrInsufficientLots means a sell needs more shares than the open lots hold.
var ErrInsufficientLots = errors.New("insufficient lots to cover sale")

type fifoLotMatcher struct{}

// NewLotMatcher creates a first-in-first-out LotMatcher.
func NewLotMatcher() LotMatcher {
	return &fifoLotMatcher{}
}

// SortLotEvents returns the buys and sells of txs in FIFO processing order: by date, buys before
// sells on the same date, then by id. Zero-quantity rows are dropped.
func SortLotEvents(txs []models.Transaction) []models.Transaction {
	events := make([]models.Transaction, 0, len(txs))
	for _, tx := range txs {
		if tx.IsLotEvent() {
			events = append(events, tx)
		}
	}
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.Type != b.Type {
			return a.Type == models.TransactionBuy
		}
		return a.ID < b.ID
	})
	return events
}

// openLot tracks a buy in matching units: recorded shares times perShare, where perShare
// is the lot's split factor scaled to the common denominator of the run.
type openLot struct {
	models.OpenLot
	units     decimal.Decimal
	remaining decimal.Decimal
	price     decimal.Decimal
	perShare  decimal.Decimal
}

// costOf is the recorded cost of units matching units of the lot.
func (l *openLot) costOf(units decimal.Decimal) decimal.Decimal {
	return units.Mul(l.price).Div(l.perShare)
}

// commonDenominator is the least common multiple of the split denominators of events.
func commonDenominator(events []models.Transaction) int64 {
	lcm := int64(1)
	for _, tx := range events {
		_, den := tx.Split.Terms()
		lcm = lcm / models.GCD(lcm, den) * den
	}
	return lcm
}

// Match consumes the oldest open lot first for every sell.
// A sell that cannot be filled stops the run with ErrInsufficientLots.
//
// Quantities are compared in integral multiples of each event's split factor, so a history
// restated by a split such as 1:3 still closes its lots exactly. Cost basis and proceeds are
// derived from the recorded prices.
func (m *fifoLotMatcher) Match(txs []models.Transaction) (*models.MatchResult, error) {
	events := SortLotEvents(txs)
	lcm := commonDenominator(events)
	denominator := decimal.NewFromInt(lcm)
	toShares := func(units decimal.Decimal) decimal.Decimal {
		if lcm == 1 {
			return units
		}
		return units.Div(denominator)
	}
	perShareOf := func(tx models.Transaction) decimal.Decimal {
		num, den := tx.Split.Terms()
		return decimal.NewFromInt(num * (lcm / den))
	}

	result := &models.MatchResult{
		Sales:    []models.SaleMatch{},
		OpenLots: []models.OpenLot{},
	}
	var openLots []*openLot
	order := 0

	for _, tx := range events {
		switch tx.Type {
		case models.TransactionBuy:
			order++
			perShare := perShareOf(tx)
			units := tx.Quantity.Abs().Mul(perShare)
			openLots = append(openLots, &openLot{
				OpenLot: models.OpenLot{
					LotID:           tx.ID,
					AccountID:       tx.AccountID,
					AcquisitionDate: tx.Date,
					UnitCost:        tx.Price.Mul(denominator).Div(perShare),
					FIFOOrder:       order,
				},
				units:     units,
				remaining: units,
				price:     tx.Price,
				perShare:  perShare,
			})

		case models.TransactionSell:
			sellPerShare := perShareOf(tx)
			remainingUnits := tx.Quantity.Abs().Mul(sellPerShare)
			match := models.SaleMatch{Sale: tx}

			for remainingUnits.IsPositive() && len(openLots) > 0 {
				currentLot := openLots[0]
				matched := decimal.Min(remainingUnits, currentLot.remaining)

				match.Consumptions = append(match.Consumptions, models.LotConsumption{
					LotID:           currentLot.LotID,
					AcquisitionDate: currentLot.AcquisitionDate,
					Quantity:        toShares(matched),
					UnitCost:        currentLot.UnitCost,
					CostBasis:       currentLot.costOf(matched),
					Proceeds:        matched.Mul(tx.Price).Div(sellPerShare),
					FIFOOrder:       currentLot.FIFOOrder,
				})

				remainingUnits = remainingUnits.Sub(matched)
				currentLot.remaining = currentLot.remaining.Sub(matched)

				// Remove exhausted lots
				if !currentLot.remaining.IsPositive() {
					openLots = openLots[1:]
				}
			}

			if remainingUnits.IsPositive() {
				return nil, fmt.Errorf("%w: sale %d on %s is short by %s shares",
					ErrInsufficientLots, tx.ID, utils.FormatDate(tx.Date), toShares(remainingUnits).String())
			}
			result.Sales = append(result.Sales, match)
		}
	}

	for _, lot := range openLots {
		open := lot.OpenLot
		open.OriginalQuantity = toShares(lot.units)
		open.RemainingQuantity = toShares(lot.remaining)
		open.CostBasis = lot.costOf(lot.remaining)
		result.OpenLots = append(result.OpenLots, open)
	}
	return result, nil
}
