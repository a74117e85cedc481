package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
	"github.com/username/taxfolio/ledger/src/services"
	"github.com/username/taxfolio/ledger/src/utils"
	"golang.org/x/time/rate"
)

// RouterConfig wires the services and HTTP settings into the router.
type RouterConfig struct {
	LedgerService          services.LedgerService
	GainsService           services.GainsService
	CorporateActionService services.CorporateActionService
	HarvestService         services.HarvestService
	PriceService           services.PriceService

	MaxImportSizeBytes   int64
	DefaultLossThreshold decimal.Decimal
	AllowedOrigins       []string
	// Limiter is optional; nil disables rate limiting.
	Limiter *rate.Limiter
}

// NewRouter builds the /api routes over the ledger services.
func NewRouter(cfg RouterConfig) chi.Router {
	accountHandler := NewAccountHandler(cfg.LedgerService)
	symbolHandler := NewSymbolHandler(cfg.LedgerService, cfg.PriceService)
	txHandler := NewTransactionHandler(cfg.LedgerService, cfg.MaxImportSizeBytes)
	actionHandler := NewCorporateActionHandler(cfg.CorporateActionService)
	gainsHandler := NewGainsHandler(cfg.GainsService)
	dividendHandler := NewDividendHandler(cfg.GainsService)
	feeHandler := NewFeeHandler(cfg.GainsService)
	harvestHandler := NewHarvestHandler(cfg.HarvestService, cfg.DefaultLossThreshold)

	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(ContextualLoggerMiddleware)
	r.Use(CORSMiddleware(cfg.AllowedOrigins))
	if cfg.Limiter != nil {
		r.Use(RateLimitMiddleware(cfg.Limiter))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		utils.SendJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/accounts", accountHandler.HandleListAccounts)
		r.Post("/accounts", accountHandler.HandleCreateAccount)

		r.Route("/accounts/{accountID}", func(r chi.Router) {
			r.Get("/transactions", txHandler.HandleListTransactions)
			r.Post("/transactions", txHandler.HandleRecordTransaction)
			r.Post("/import", txHandler.HandleImportTransactions)

			r.Get("/symbols/{symbolID}/realized-gains", gainsHandler.HandleGetRealizedGains)
			r.Get("/symbols/{symbolID}/unrealized-gains", gainsHandler.HandleGetUnrealizedGains)
			r.Get("/tax-lots", gainsHandler.HandleGetTaxLots)
			r.Get("/summary", gainsHandler.HandleGetAnnualSummary)
			r.Get("/dividends", dividendHandler.HandleGetDividendSummary)
			r.Get("/fees", feeHandler.HandleGetFeeSummary)

			r.Get("/harvest/opportunities", harvestHandler.HandleGetOpportunities)
			r.Post("/harvest/strategy", harvestHandler.HandleOptimizeStrategy)
		})

		r.Get("/symbols", symbolHandler.HandleListSymbols)
		r.Post("/symbols", symbolHandler.HandleCreateSymbol)
		r.Get("/symbols/{symbolID}/price", symbolHandler.HandleGetPrice)
		r.Put("/symbols/{symbolID}/price", symbolHandler.HandleSetPrice)
		r.Post("/symbols/{symbolID}/corporate-actions/apply-pending", actionHandler.HandleBatchApply)

		r.Get("/corporate-actions", actionHandler.HandleList)
		r.Post("/corporate-actions", actionHandler.HandleCreate)
		r.Get("/corporate-actions/{actionID}", actionHandler.HandleGet)
		r.Post("/corporate-actions/{actionID}/cancel", actionHandler.HandleCancel)
		r.Post("/corporate-actions/{actionID}/apply", actionHandler.HandleApply)
		r.Get("/corporate-actions/{actionID}/preview", actionHandler.HandlePreview)
		r.Post("/corporate-actions/{actionID}/reverse", actionHandler.HandleReverse)

		r.Get("/adjustments", actionHandler.HandleListAdjustments)
		r.Patch("/adjustments/{adjustmentID}/notes", actionHandler.HandleUpdateAdjustmentNotes)

		r.Get("/harvest/replacements/{ticker}", harvestHandler.HandleGetReplacements)
		r.Get("/harvest/wash-sale-check", harvestHandler.HandleCheckWashSale)
	})

	return r
}
