package services

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/username/taxfolio/ledger/src/logger"
	"github.com/username/taxfolio/ledger/src/model"
	"github.com/username/taxfolio/ledger/src/models"
	"github.com/username/taxfolio/ledger/src/processors"
	"github.com/username/taxfolio/ledger/src/utils"
)

type gainsServiceImpl struct {
	db                *sql.DB
	lotMatcher        processors.LotMatcher
	gainsProcessor    processors.GainsProcessor
	dividendProcessor processors.DividendProcessor
	feeProcessor      processors.FeeProcessor
	priceService      PriceService
	reportCache       *ReportCache
	clock             func() time.Time
}

// NewGainsService wires the calculators to the store. A nil clock means time.Now.
func NewGainsService(
	db *sql.DB,
	lotMatcher processors.LotMatcher,
	gainsProcessor processors.GainsProcessor,
	dividendProcessor processors.DividendProcessor,
	feeProcessor processors.FeeProcessor,
	priceService PriceService,
	reportCache *ReportCache,
	clock func() time.Time,
) GainsService {
	return &gainsServiceImpl{
		db:                db,
		lotMatcher:        lotMatcher,
		gainsProcessor:    gainsProcessor,
		dividendProcessor: dividendProcessor,
		feeProcessor:      feeProcessor,
		priceService:      priceService,
		reportCache:       reportCache,
		clock:             clockOrNow(clock),
	}
}

// CalculateRealizedGains matches the symbol's full history and sums the sells dated in taxYear.
func (s *gainsServiceImpl) CalculateRealizedGains(ctx context.Context, accountID, symbolID int64, taxYear int) (*models.RealizedGainAnalysis, error) {
	cacheKey := fmt.Sprintf(ckRealized, accountID, symbolID, taxYear)
	if cached, found := s.reportCache.get(cacheKey); found {
		return cached.(*models.RealizedGainAnalysis), nil
	}

	if _, err := getAccount(ctx, s.db, accountID); err != nil {
		return nil, err
	}
	symbol, err := getSymbol(ctx, s.db, symbolID)
	if err != nil {
		return nil, err
	}
	analysis, err := s.realizedForSymbol(ctx, accountID, symbol, taxYear)
	if err != nil {
		return nil, err
	}
	if analysis.TransactionsProcessed == 0 {
		return nil, fmt.Errorf("%w: no %s sells in %d", ErrNoTransactions, symbol.Ticker, taxYear)
	}

	s.reportCache.set(cacheKey, analysis)
	return analysis, nil
}

func (s *gainsServiceImpl) realizedForSymbol(ctx context.Context, accountID int64, symbol *models.Symbol, taxYear int) (*models.RealizedGainAnalysis, error) {
	match, _, err := matchHistory(ctx, s.db, s.lotMatcher, accountID, symbol)
	if err != nil {
		logger.FromContext(ctx).Error("Lot matching failed", "accountID", accountID, "symbol", symbol.Ticker, "error", err)
		return nil, err
	}
	totals := s.gainsProcessor.RealizedForYear(match.Sales, taxYear)
	return &models.RealizedGainAnalysis{
		AccountID:             accountID,
		Symbol:                symbol.Ticker,
		SymbolID:              symbol.ID,
		TaxYear:               taxYear,
		TotalRealizedGains:    totals.Total,
		ShortTermGains:        totals.ShortTerm,
		LongTermGains:         totals.LongTerm,
		TransactionsProcessed: totals.Sales,
	}, nil
}

// CalculateUnrealizedGains values the open lots at the latest stored price, classified by
// holding period as of today.
func (s *gainsServiceImpl) CalculateUnrealizedGains(ctx context.Context, accountID, symbolID int64) (*models.UnrealizedGainAnalysis, error) {
	asOf := utils.Date(s.clock())
	cacheKey := fmt.Sprintf(ckUnrealized, accountID, symbolID, utils.FormatDate(asOf))
	if cached, found := s.reportCache.get(cacheKey); found {
		return cached.(*models.UnrealizedGainAnalysis), nil
	}

	if _, err := getAccount(ctx, s.db, accountID); err != nil {
		return nil, err
	}
	symbol, err := getSymbol(ctx, s.db, symbolID)
	if err != nil {
		return nil, err
	}
	match, _, err := matchHistory(ctx, s.db, s.lotMatcher, accountID, symbol)
	if err != nil {
		return nil, err
	}
	if len(match.OpenLots) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoHoldings, symbol.Ticker)
	}
	price, err := s.priceService.GetCurrentPrice(ctx, symbol.ID)
	if err != nil {
		return nil, err
	}
	if price.Status != PriceStatusOK {
		return nil, fmt.Errorf("%w: %s", ErrPriceUnavailable, symbol.Ticker)
	}

	totals := s.gainsProcessor.ValueOpenLots(match.OpenLots, price.Price, asOf)
	analysis := &models.UnrealizedGainAnalysis{
		AccountID:           accountID,
		Symbol:              symbol.Ticker,
		SymbolID:            symbol.ID,
		AsOf:                asOf,
		PriceDate:           price.Date,
		CurrentPrice:        price.Price,
		Quantity:            totals.Quantity,
		CostBasis:           totals.CostBasis,
		MarketValue:         totals.MarketValue,
		TotalUnrealizedGain: totals.Total,
		ShortTermGain:       totals.ShortTerm,
		LongTermGain:        totals.LongTerm,
		OpenLots:            len(match.OpenLots),
	}
	s.reportCache.set(cacheKey, analysis)
	return analysis, nil
}

// GenerateTaxLotReport lists open and closed lots of one symbol, or of every symbol the
// account has traded when symbolID is 0.
func (s *gainsServiceImpl) GenerateTaxLotReport(ctx context.Context, accountID, symbolID int64) (*models.TaxLotReport, error) {
	asOf := utils.Date(s.clock())
	cacheKey := fmt.Sprintf(ckTaxLots, accountID, symbolID, utils.FormatDate(asOf))
	if cached, found := s.reportCache.get(cacheKey); found {
		return cached.(*models.TaxLotReport), nil
	}

	if _, err := getAccount(ctx, s.db, accountID); err != nil {
		return nil, err
	}
	symbols, err := s.reportSymbols(ctx, accountID, symbolID)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(symbols))
	for _, sym := range symbols {
		ids = append(ids, sym.ID)
	}
	prices, err := s.priceService.GetCurrentPrices(ctx, ids)
	if err != nil {
		return nil, err
	}

	report := &models.TaxLotReport{
		AccountID:      accountID,
		AsOf:           asOf,
		OpenLots:       []models.TaxLot{},
		ClosedLots:     []models.ClosedLot{},
		TotalCostBasis: decimal.Zero,
		TotalRealized:  decimal.Zero,
	}
	for i := range symbols {
		symbol := &symbols[i]
		match, _, err := matchHistory(ctx, s.db, s.lotMatcher, accountID, symbol)
		if err != nil {
			return nil, err
		}
		price := prices[symbol.ID]
		for _, lot := range match.OpenLots {
			taxLot := models.TaxLot{
				SymbolID:          symbol.ID,
				Symbol:            symbol.Ticker,
				LotID:             lot.LotID,
				FIFOOrder:         lot.FIFOOrder,
				AcquisitionDate:   lot.AcquisitionDate,
				OriginalQuantity:  lot.OriginalQuantity,
				RemainingQuantity: lot.RemainingQuantity,
				UnitCost:          lot.UnitCost,
				CostBasis:         lot.CostBasis,
				HoldingDays:       utils.DaysBetween(lot.AcquisitionDate, asOf),
				Term:              processors.ClassifyHolding(lot.AcquisitionDate, asOf),
			}
			if price.Status == PriceStatusOK {
				value := lot.RemainingQuantity.Mul(price.Price)
				taxLot.MarketValue = decimal.NewNullDecimal(value)
				taxLot.UnrealizedGain = decimal.NewNullDecimal(value.Sub(taxLot.CostBasis))
			}
			report.TotalCostBasis = report.TotalCostBasis.Add(taxLot.CostBasis)
			report.OpenLots = append(report.OpenLots, taxLot)
		}
		for _, closed := range s.gainsProcessor.ClosedLots(match.Sales) {
			closed.Symbol = symbol.Ticker
			report.TotalRealized = report.TotalRealized.Add(closed.Gain)
			report.ClosedLots = append(report.ClosedLots, closed)
		}
	}
	if len(report.OpenLots) == 0 && len(report.ClosedLots) == 0 {
		return nil, fmt.Errorf("%w: account %d has no lots", ErrNoHoldings, accountID)
	}

	sort.SliceStable(report.OpenLots, func(i, j int) bool {
		a, b := report.OpenLots[i], report.OpenLots[j]
		if a.Symbol != b.Symbol {
			return a.Symbol < b.Symbol
		}
		return a.FIFOOrder < b.FIFOOrder
	})
	sort.SliceStable(report.ClosedLots, func(i, j int) bool {
		a, b := report.ClosedLots[i], report.ClosedLots[j]
		if !a.SaleDate.Equal(b.SaleDate) {
			return a.SaleDate.Before(b.SaleDate)
		}
		return a.Symbol < b.Symbol
	})

	s.reportCache.set(cacheKey, report)
	return report, nil
}

func (s *gainsServiceImpl) reportSymbols(ctx context.Context, accountID, symbolID int64) ([]models.Symbol, error) {
	if symbolID != 0 {
		symbol, err := getSymbol(ctx, s.db, symbolID)
		if err != nil {
			return nil, err
		}
		return []models.Symbol{*symbol}, nil
	}
	ids, err := model.GetAccountSymbolIDs(ctx, s.db, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list account symbols: %w", err)
	}
	byID, err := model.GetSymbolsByIDs(ctx, s.db, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load symbols: %w", err)
	}
	symbols := make([]models.Symbol, 0, len(byID))
	for _, id := range ids {
		if sym, ok := byID[id]; ok {
			symbols = append(symbols, sym)
		}
	}
	return symbols, nil
}

// CalculateAnnualSummary aggregates realized gains, dividend income and fees for one tax year.
func (s *gainsServiceImpl) CalculateAnnualSummary(ctx context.Context, accountID int64, taxYear int) (*models.AnnualSummary, error) {
	cacheKey := fmt.Sprintf(ckSummary, accountID, taxYear)
	if cached, found := s.reportCache.get(cacheKey); found {
		return cached.(*models.AnnualSummary), nil
	}

	if _, err := getAccount(ctx, s.db, accountID); err != nil {
		return nil, err
	}
	symbols, err := s.reportSymbols(ctx, accountID, 0)
	if err != nil {
		return nil, err
	}

	summary := &models.AnnualSummary{
		AccountID:          accountID,
		TaxYear:            taxYear,
		Symbols:            []models.RealizedGainAnalysis{},
		ShortTermGains:     decimal.Zero,
		LongTermGains:      decimal.Zero,
		TotalRealizedGains: decimal.Zero,
	}
	for i := range symbols {
		analysis, err := s.realizedForSymbol(ctx, accountID, &symbols[i], taxYear)
		if err != nil {
			return nil, err
		}
		if analysis.TransactionsProcessed == 0 {
			continue
		}
		summary.Symbols = append(summary.Symbols, *analysis)
		summary.ShortTermGains = summary.ShortTermGains.Add(analysis.ShortTermGains)
		summary.LongTermGains = summary.LongTermGains.Add(analysis.LongTermGains)
		summary.TransactionsProcessed += analysis.TransactionsProcessed
	}
	summary.TotalRealizedGains = summary.ShortTermGains.Add(summary.LongTermGains)

	start, end := utils.YearBounds(taxYear)
	yearTxs, err := model.GetTransactionsByDateRange(ctx, s.db, accountID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions for %d: %w", taxYear, err)
	}
	receipts, err := model.GetCashReceiptsForAccount(ctx, s.db, accountID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to load dividend receipts for %d: %w", taxYear, err)
	}
	summary.Dividends = s.dividendProcessor.CalculateIncome(yearTxs, receipts, taxYear)
	summary.TotalFees = s.feeProcessor.TotalForYear(yearTxs, taxYear)

	if len(summary.Symbols) == 0 && summary.Dividends.IsZero() && summary.TotalFees.IsZero() {
		return nil, fmt.Errorf("%w: account %d has no taxable events in %d", ErrNoTransactions, accountID, taxYear)
	}

	sort.Slice(summary.Symbols, func(i, j int) bool { return summary.Symbols[i].Symbol < summary.Symbols[j].Symbol })
	s.reportCache.set(cacheKey, summary)
	return summary, nil
}
