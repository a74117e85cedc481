package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"github.com/username/taxfolio/ledger/src/logger"
	"github.com/username/taxfolio/ledger/src/model"
	"github.com/username/taxfolio/ledger/src/security/validation"
	"github.com/username/taxfolio/ledger/src/utils"
)

// --- Service Implementation ---

type priceServiceImpl struct {
	db          *sql.DB
	priceCache  *cache.Cache
	reportCache *ReportCache
}

// NewPriceService serves prices from the symbol_prices table through a short-lived cache.
func NewPriceService(db *sql.DB, ttl time.Duration, reportCache *ReportCache) PriceService {
	if ttl <= 0 {
		ttl = DefaultPriceExpiration
	}
	return &priceServiceImpl{
		db:          db,
		priceCache:  cache.New(ttl, 2*ttl),
		reportCache: reportCache,
	}
}

func (s *priceServiceImpl) GetCurrentPrice(ctx context.Context, symbolID int64) (PriceInfo, error) {
	cacheKey := fmt.Sprintf(ckPrice, symbolID)
	if cached, found := s.priceCache.Get(cacheKey); found {
		return cached.(PriceInfo), nil
	}

	info := PriceInfo{Status: PriceStatusUnavailable}
	p, err := model.GetLatestPrice(ctx, s.db, symbolID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return info, fmt.Errorf("failed to load price for symbol %d: %w", symbolID, err)
	default:
		info = PriceInfo{Status: PriceStatusOK, Price: p.Price, Date: p.Date}
	}
	s.priceCache.Set(cacheKey, info, cache.DefaultExpiration)
	return info, nil
}

// GetCurrentPrices returns an entry for every requested symbol; symbols never priced are UNAVAILABLE.
func (s *priceServiceImpl) GetCurrentPrices(ctx context.Context, symbolIDs []int64) (map[int64]PriceInfo, error) {
	results := make(map[int64]PriceInfo, len(symbolIDs))
	var missing []int64
	for _, id := range symbolIDs {
		if cached, found := s.priceCache.Get(fmt.Sprintf(ckPrice, id)); found {
			results[id] = cached.(PriceInfo)
		} else {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return results, nil
	}

	stored, err := model.GetLatestPrices(ctx, s.db, missing)
	if err != nil {
		return nil, fmt.Errorf("failed to load prices: %w", err)
	}
	for _, id := range missing {
		info := PriceInfo{Status: PriceStatusUnavailable}
		if p, ok := stored[id]; ok {
			info = PriceInfo{Status: PriceStatusOK, Price: p.Price, Date: p.Date}
		}
		results[id] = info
		s.priceCache.Set(fmt.Sprintf(ckPrice, id), info, cache.DefaultExpiration)
	}
	return results, nil
}

func (s *priceServiceImpl) SetPrice(ctx context.Context, symbolID int64, date time.Time, price decimal.Decimal) error {
	if !price.IsPositive() {
		return fmt.Errorf("%w: price must be positive", validation.ErrValidationFailed)
	}
	if _, err := model.GetSymbolByID(ctx, s.db, symbolID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %d", ErrSymbolNotFound, symbolID)
		}
		return err
	}
	if err := model.InsertOrUpdatePrice(ctx, s.db, model.SymbolPrice{SymbolID: symbolID, Date: utils.Date(date), Price: price}); err != nil {
		return fmt.Errorf("failed to store price: %w", err)
	}
	s.priceCache.Delete(fmt.Sprintf(ckPrice, symbolID))
	s.reportCache.InvalidateSymbol(symbolID)
	logger.FromContext(ctx).Info("Stored symbol price", "symbolID", symbolID, "date", utils.FormatDate(date), "price", price.String())
	return nil
}
