package main

import (
	stdlog "log"
	"net/http"
	"os"
	"time"

	"github.com/username/taxfolio/ledger/src/config"
	"github.com/username/taxfolio/ledger/src/database"
	"github.com/username/taxfolio/ledger/src/handlers"
	"github.com/username/taxfolio/ledger/src/logger"
	"github.com/username/taxfolio/ledger/src/processors"
	"github.com/username/taxfolio/ledger/src/security/validation"
	"github.com/username/taxfolio/ledger/src/services"
	"golang.org/x/time/rate"
)

func main() {
	config.LoadConfig()
	logger.InitLogger(config.Cfg.LogLevel)

	logger.L.Info("Ledger server starting...")

	if err := validation.ValidateCurrencyCode(config.Cfg.BaseCurrency); err != nil {
		logger.L.Error("BASE_CURRENCY configuration invalid", "error", err)
		os.Exit(1)
	}

	policy, err := processors.LoadWashSalePolicy(config.Cfg.WashSalePolicyPath)
	if err != nil {
		logger.L.Error("Failed to load wash-sale policy", "path", config.Cfg.WashSalePolicyPath, "error", err)
		os.Exit(1)
	}

	logger.L.Info("Initializing database...", "path", config.Cfg.DatabasePath)
	database.InitDB(config.Cfg.DatabasePath)
	database.RunMigrations()
	defer database.DB.Close()

	reportCache := services.NewReportCache(config.Cfg.ReportCacheTTL, config.Cfg.ReportCacheCleanup)
	priceService := services.NewPriceService(database.DB, config.Cfg.PriceCacheTTL, reportCache)

	transactionProcessor := processors.NewTransactionProcessor()
	lotMatcher := processors.NewLotMatcher()
	gainsProcessor := processors.NewGainsProcessor()
	dividendProcessor := processors.NewDividendProcessor()
	feeProcessor := processors.NewFeeProcessor()
	actionProcessor := processors.NewCorporateActionProcessor()

	ledgerService := services.NewLedgerService(database.DB, transactionProcessor, lotMatcher, priceService, reportCache)
	gainsService := services.NewGainsService(
		database.DB,
		lotMatcher,
		gainsProcessor,
		dividendProcessor,
		feeProcessor,
		priceService,
		reportCache,
		nil,
	)
	actionService := services.NewCorporateActionService(database.DB, actionProcessor, lotMatcher, reportCache, nil)
	harvestService := services.NewHarvestService(database.DB, gainsService, policy, config.Cfg.BaseCurrency, nil)

	r := handlers.NewRouter(handlers.RouterConfig{
		LedgerService:          ledgerService,
		GainsService:           gainsService,
		CorporateActionService: actionService,
		HarvestService:         harvestService,
		PriceService:           priceService,
		MaxImportSizeBytes:     config.Cfg.MaxImportSizeBytes,
		DefaultLossThreshold:   config.Cfg.DefaultLossThreshold,
		AllowedOrigins:         config.Cfg.AllowedOrigins,
		Limiter:                rate.NewLimiter(rate.Limit(config.Cfg.RateLimitRPS), config.Cfg.RateLimitBurst),
	})

	serverAddr := ":" + config.Cfg.Port
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.L.Info("Server starting", "address", serverAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		stdlog.Fatalf("Failed to start server: %v", err)
	}
}
