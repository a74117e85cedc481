package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/username/taxfolio/ledger/src/logger"
	"github.com/username/taxfolio/ledger/src/model"
	"github.com/username/taxfolio/ledger/src/models"
	"github.com/username/taxfolio/ledger/src/processors"
	"github.com/username/taxfolio/ledger/src/security/validation"
	"github.com/username/taxfolio/ledger/src/utils"
)

// AllocationTolerance is how far target weights may sum away from 1.
var AllocationTolerance = decimal.New(1, -2)

type harvestServiceImpl struct {
	db           *sql.DB
	gainsService GainsService
	policy       *processors.WashSalePolicy
	currency     string
	clock        func() time.Time
}

// NewHarvestService creates the tax-loss harvesting advisor. Amounts in notes are shown in
// currency. A nil clock means time.Now.
func NewHarvestService(
	db *sql.DB,
	gainsService GainsService,
	policy *processors.WashSalePolicy,
	currency string,
	clock func() time.Time,
) HarvestService {
	return &harvestServiceImpl{
		db:           db,
		gainsService: gainsService,
		policy:       policy,
		currency:     currency,
		clock:        clockOrNow(clock),
	}
}

// IdentifyOpportunities lists open positions whose unrealized loss is at least lossThreshold,
// highest priority first. Positions without a stored price are skipped.
func (s *harvestServiceImpl) IdentifyOpportunities(ctx context.Context, accountID int64, lossThreshold decimal.Decimal) ([]models.HarvestOpportunity, error) {
	if _, err := getAccount(ctx, s.db, accountID); err != nil {
		return nil, err
	}
	threshold := lossThreshold.Abs()
	asOf := utils.Date(s.clock())

	symbolIDs, err := model.GetAccountSymbolIDs(ctx, s.db, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list account symbols: %w", err)
	}
	symbols, err := model.GetSymbolsByIDs(ctx, s.db, symbolIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load symbols: %w", err)
	}

	positions := 0
	opportunities := []models.HarvestOpportunity{}
	for _, id := range symbolIDs {
		symbol := symbols[id]
		unrealized, err := s.gainsService.CalculateUnrealizedGains(ctx, accountID, id)
		switch {
		case errors.Is(err, ErrNoHoldings):
			continue
		case errors.Is(err, ErrPriceUnavailable):
			positions++
			logger.FromContext(ctx).Warn("Skipping unpriced position", "accountID", accountID, "symbol", symbol.Ticker)
			continue
		case err != nil:
			return nil, err
		}
		positions++

		if !unrealized.TotalUnrealizedGain.IsNegative() {
			continue
		}
		loss := unrealized.TotalUnrealizedGain.Abs()
		if loss.LessThan(threshold) {
			continue
		}

		opp := models.HarvestOpportunity{
			SymbolID:       id,
			Symbol:         symbol.Ticker,
			AssetClass:     symbol.AssetClass,
			Quantity:       unrealized.Quantity,
			CostBasis:      unrealized.CostBasis,
			MarketValue:    unrealized.MarketValue,
			UnrealizedLoss: unrealized.TotalUnrealizedGain,
			ShortTermLoss:  decimal.Min(unrealized.ShortTermGain, decimal.Zero),
			LongTermLoss:   decimal.Min(unrealized.LongTermGain, decimal.Zero),
			PriorityScore:  processors.PriorityScore(loss, asOf),
			RiskFactors:    []string{},
		}
		if err := s.assessRecentPurchases(ctx, accountID, symbol, symbols, asOf, &opp); err != nil {
			return nil, err
		}
		if opp.Replacements, err = s.replacementsFor(ctx, symbol.Ticker, symbol.AssetClass); err != nil {
			return nil, err
		}
		opp.Note = fmt.Sprintf("Selling %s %s would realize %s of losses",
			unrealized.Quantity.String(), symbol.Ticker, utils.FormatMoney(loss, s.currency))
		opportunities = append(opportunities, opp)
	}

	if positions == 0 {
		return nil, fmt.Errorf("%w: account %d", ErrNoPositions, accountID)
	}
	sort.SliceStable(opportunities, func(i, j int) bool {
		a, b := opportunities[i], opportunities[j]
		if !a.PriorityScore.Equal(b.PriorityScore) {
			return a.PriorityScore.GreaterThan(b.PriorityScore)
		}
		return a.Symbol < b.Symbol
	})
	logger.FromContext(ctx).Info("Harvest opportunities identified", "accountID", accountID, "positions", positions, "opportunities", len(opportunities))
	return opportunities, nil
}

// assessRecentPurchases flags a wash-sale risk when the account bought the symbol, or one
// substantially identical to it, within the lookback window.
func (s *harvestServiceImpl) assessRecentPurchases(ctx context.Context, accountID int64, symbol models.Symbol, held map[int64]models.Symbol, asOf time.Time, opp *models.HarvestOpportunity) error {
	start := utils.AddDays(asOf, -s.policy.WindowDays)
	var latest time.Time
	for _, other := range held {
		score := s.policy.Similarity(symbol.Ticker, other.Ticker, symbol.AssetClass == other.AssetClass)
		if !s.policy.SubstantiallyIdentical(score) {
			continue
		}
		buys, err := model.GetBuysBetween(ctx, s.db, accountID, other.ID, start, asOf)
		if err != nil {
			return fmt.Errorf("failed to load recent purchases of %s: %w", other.Ticker, err)
		}
		for _, b := range buys {
			opp.WashSaleRisk = true
			opp.RiskFactors = append(opp.RiskFactors, fmt.Sprintf("bought %s %s on %s, within %d days",
				b.Quantity.String(), other.Ticker, utils.FormatDate(b.Date), s.policy.WindowDays))
			if b.Date.After(latest) {
				latest = b.Date
			}
		}
	}
	if opp.WashSaleRisk {
		safe := processors.WashSaleSafeDate(latest, s.policy.WindowDays)
		opp.SafeDate = &safe
		sort.Strings(opp.RiskFactors)
	}
	return nil
}

// RecommendReplacements suggests securities that keep similar exposure without being
// substantially identical to ticker.
func (s *harvestServiceImpl) RecommendReplacements(ctx context.Context, ticker string) ([]models.Replacement, error) {
	ticker, err := validation.ValidateTicker(ticker)
	if err != nil {
		return nil, err
	}
	assetClass := ""
	symbol, err := model.GetSymbolByTicker(ctx, s.db, ticker)
	switch {
	case err == nil:
		assetClass = symbol.AssetClass
	case !errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("failed to look up %s: %w", ticker, err)
	}
	return s.replacementsFor(ctx, ticker, assetClass)
}

func (s *harvestServiceImpl) replacementsFor(ctx context.Context, ticker, assetClass string) ([]models.Replacement, error) {
	candidates := make(map[string]models.Replacement)

	for _, t := range s.policy.CorrelatedTickers(ticker) {
		group, _ := s.policy.SharedGroup(ticker, t)
		candidates[t] = models.Replacement{
			Ticker:     t,
			AssetClass: assetClass,
			Similarity: s.policy.Similarity(ticker, t, true),
			Reason:     "correlated: " + group.Name,
		}
	}
	if assetClass != "" {
		peers, err := model.ListSymbolsByAssetClass(ctx, s.db, assetClass)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s symbols: %w", assetClass, err)
		}
		for _, peer := range peers {
			if peer.Ticker == ticker {
				continue
			}
			if c, ok := candidates[peer.Ticker]; ok {
				c.AssetClass = peer.AssetClass
				candidates[peer.Ticker] = c
				continue
			}
			candidates[peer.Ticker] = models.Replacement{
				Ticker:     peer.Ticker,
				AssetClass: peer.AssetClass,
				Similarity: s.policy.Similarity(ticker, peer.Ticker, true),
				Reason:     "same asset class: " + assetClass,
			}
		}
	}

	replacements := []models.Replacement{}
	for _, c := range candidates {
		if s.policy.SubstantiallyIdentical(c.Similarity) {
			continue
		}
		replacements = append(replacements, c)
	}
	sort.Slice(replacements, func(i, j int) bool {
		a, b := replacements[i], replacements[j]
		if !a.Similarity.Equal(b.Similarity) {
			return a.Similarity.GreaterThan(b.Similarity)
		}
		return a.Ticker < b.Ticker
	})
	return replacements, nil
}

// CheckWashSaleCompliance scores the pair and scans buys of buyTicker within the window around
// date. accountID 0 scans every account.
func (s *harvestServiceImpl) CheckWashSaleCompliance(ctx context.Context, sellTicker, buyTicker string, date time.Time, accountID int64) (*models.WashSaleCheck, error) {
	sellTicker, err := validation.ValidateTicker(sellTicker)
	if err != nil {
		return nil, err
	}
	if buyTicker, err = validation.ValidateTicker(buyTicker); err != nil {
		return nil, err
	}
	if date.IsZero() {
		return nil, fmt.Errorf("%w: date is required", validation.ErrValidationFailed)
	}
	date = utils.Date(date)
	if accountID != 0 {
		if _, err := getAccount(ctx, s.db, accountID); err != nil {
			return nil, err
		}
	}

	sellSymbol, err := s.lookupTicker(ctx, sellTicker)
	if err != nil {
		return nil, err
	}
	buySymbol, err := s.lookupTicker(ctx, buyTicker)
	if err != nil {
		return nil, err
	}
	sameClass := sellSymbol != nil && buySymbol != nil && sellSymbol.AssetClass == buySymbol.AssetClass

	score := s.policy.Similarity(sellTicker, buyTicker, sameClass)
	check := &models.WashSaleCheck{
		SellSymbol:              sellTicker,
		BuySymbol:               buyTicker,
		Date:                    date,
		Similarity:              score,
		SubstantiallyIdentical:  s.policy.SubstantiallyIdentical(score),
		ConflictingTransactions: []int64{},
		RiskFactors:             []string{},
		SafeDate:                date,
	}
	if !check.SubstantiallyIdentical {
		check.IsCompliant = true
		return check, nil
	}
	check.RiskFactors = append(check.RiskFactors, fmt.Sprintf("%s and %s are substantially identical (similarity %s, threshold %s)",
		sellTicker, buyTicker, score.StringFixed(2), s.policy.ThresholdDecimal().StringFixed(2)))

	if buySymbol != nil {
		window := s.policy.WindowDays
		buys, err := model.GetBuysBetween(ctx, s.db, accountID, buySymbol.ID, utils.AddDays(date, -window), utils.AddDays(date, window))
		if err != nil {
			return nil, fmt.Errorf("failed to load purchases of %s: %w", buyTicker, err)
		}
		var latest time.Time
		for _, b := range buys {
			check.ConflictingTransactions = append(check.ConflictingTransactions, b.ID)
			check.RiskFactors = append(check.RiskFactors, fmt.Sprintf("purchase of %s %s on %s is within %d days of the sale",
				b.Quantity.String(), buyTicker, utils.FormatDate(b.Date), window))
			if b.Date.After(latest) {
				latest = b.Date
			}
		}
		if len(buys) > 0 {
			check.SafeDate = processors.WashSaleSafeDate(latest, window)
		}
	}
	check.IsCompliant = len(check.ConflictingTransactions) == 0
	return check, nil
}

func (s *harvestServiceImpl) lookupTicker(ctx context.Context, ticker string) (*models.Symbol, error) {
	symbol, err := model.GetSymbolByTicker(ctx, s.db, ticker)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up %s: %w", ticker, err)
	}
	return symbol, nil
}

// OptimizeHarvestStrategy orders harvest sales by estimated savings, splits them into immediate
// and wash-sale-delayed actions, and pairs each with a same-asset-class replacement.
func (s *harvestServiceImpl) OptimizeHarvestStrategy(ctx context.Context, accountID int64, targets map[string]decimal.Decimal, taxRate decimal.Decimal) (*models.HarvestStrategy, error) {
	if !taxRate.IsPositive() || taxRate.GreaterThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("%w: got %s", ErrInvalidTaxRate, taxRate.String())
	}
	normalized, err := normalizeTargets(targets)
	if err != nil {
		return nil, err
	}

	opportunities, err := s.IdentifyOpportunities(ctx, accountID, decimal.Zero)
	if err != nil {
		return nil, err
	}

	strategy := &models.HarvestStrategy{
		AccountID:        accountID,
		TaxRate:          taxRate,
		Targets:          normalized,
		Immediate:        []models.HarvestAction{},
		Delayed:          []models.HarvestAction{},
		TotalSavings:     decimal.Zero,
		AllocationIntact: true,
		Warnings:         []string{},
	}
	for _, opp := range opportunities {
		action := models.HarvestAction{
			Opportunity:      opp,
			EstimatedSavings: processors.EstimatedTaxSavings(opp.UnrealizedLoss, taxRate),
		}
		for i := range opp.Replacements {
			if r := opp.Replacements[i]; r.AssetClass != "" && r.AssetClass == opp.AssetClass {
				action.Replacement = &r
				break
			}
		}
		if action.Replacement == nil {
			strategy.AllocationIntact = false
			strategy.Warnings = append(strategy.Warnings,
				fmt.Sprintf("no %s replacement for %s; selling it shifts the allocation", opp.AssetClass, opp.Symbol))
		}
		if _, ok := normalized[opp.AssetClass]; !ok {
			strategy.Warnings = append(strategy.Warnings,
				fmt.Sprintf("%s is in asset class %q, which has no target weight", opp.Symbol, opp.AssetClass))
		}

		strategy.TotalSavings = strategy.TotalSavings.Add(action.EstimatedSavings)
		if opp.WashSaleRisk {
			action.ExecuteAfter = opp.SafeDate
			strategy.Delayed = append(strategy.Delayed, action)
		} else {
			strategy.Immediate = append(strategy.Immediate, action)
		}
	}
	sortActions(strategy.Immediate)
	sortActions(strategy.Delayed)

	logger.FromContext(ctx).Info("Harvest strategy built", "accountID", accountID, "immediate", len(strategy.Immediate),
		"delayed", len(strategy.Delayed), "savings", utils.FormatMoney(strategy.TotalSavings, s.currency))
	return strategy, nil
}

func normalizeTargets(targets map[string]decimal.Decimal) (map[string]decimal.Decimal, error) {
	if len(targets) == 0 {
		return nil, fmt.Errorf("%w: no target weights", ErrInvalidAllocation)
	}
	normalized := make(map[string]decimal.Decimal, len(targets))
	sum := decimal.Zero
	for class, weight := range targets {
		key, err := validation.ValidateAssetClass(class)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidAllocation, err)
		}
		if weight.IsNegative() {
			return nil, fmt.Errorf("%w: weight for %s is negative", ErrInvalidAllocation, key)
		}
		if existing, ok := normalized[key]; ok {
			weight = weight.Add(existing)
		}
		normalized[key] = weight
		sum = sum.Add(weight)
	}
	if sum.Sub(decimal.NewFromInt(1)).Abs().GreaterThan(AllocationTolerance) {
		classes := make([]string, 0, len(normalized))
		for c := range normalized {
			classes = append(classes, c)
		}
		sort.Strings(classes)
		return nil, fmt.Errorf("%w: weights for %s sum to %s", ErrInvalidAllocation, strings.Join(classes, ", "), sum.String())
	}
	return normalized, nil
}

func sortActions(actions []models.HarvestAction) {
	sort.SliceStable(actions, func(i, j int) bool {
		a, b := actions[i], actions[j]
		if !a.EstimatedSavings.Equal(b.EstimatedSavings) {
			return a.EstimatedSavings.GreaterThan(b.EstimatedSavings)
		}
		return a.Opportunity.Symbol < b.Opportunity.Symbol
	})
}
