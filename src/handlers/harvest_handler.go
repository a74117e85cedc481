package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/username/taxfolio/ledger/src/models"
	"github.com/username/taxfolio/ledger/src/security/validation"
	"github.com/username/taxfolio/ledger/src/services"
	"github.com/username/taxfolio/ledger/src/utils"
)

type HarvestHandler struct {
	harvestService   services.HarvestService
	defaultThreshold decimal.Decimal
	now              func() time.Time
}

func NewHarvestHandler(harvestService services.HarvestService, defaultThreshold decimal.Decimal) *HarvestHandler {
	return &HarvestHandler{harvestService: harvestService, defaultThreshold: defaultThreshold, now: time.Now}
}

func (h *HarvestHandler) HandleGetOpportunities(w http.ResponseWriter, r *http.Request) {
	accountID, err := pathID(r, "accountID")
	if err != nil {
		sendBadRequest(w, err)
		return
	}
	threshold, err := queryDecimal(r, "threshold", h.defaultThreshold)
	if err != nil {
		sendBadRequest(w, err)
		return
	}

	opportunities, err := h.harvestService.IdentifyOpportunities(r.Context(), accountID, threshold)
	if err != nil {
		sendServiceError(w, r, "identify harvest opportunities", err)
		return
	}
	if opportunities == nil {
		opportunities = []models.HarvestOpportunity{}
	}
	utils.SendJSON(w, opportunities, http.StatusOK)
}

func (h *HarvestHandler) HandleGetReplacements(w http.ResponseWriter, r *http.Request) {
	ticker, err := validation.ValidateTicker(chi.URLParam(r, "ticker"))
	if err != nil {
		sendBadRequest(w, err)
		return
	}

	replacements, err := h.harvestService.RecommendReplacements(r.Context(), ticker)
	if err != nil {
		sendServiceError(w, r, "recommend replacements", err)
		return
	}
	if replacements == nil {
		replacements = []models.Replacement{}
	}
	utils.SendJSON(w, replacements, http.StatusOK)
}

// HandleCheckWashSale reads sell, buy, date (default today) and an optional account_id.
func (h *HarvestHandler) HandleCheckWashSale(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sell, err := validation.ValidateTicker(q.Get("sell"))
	if err != nil {
		sendBadRequest(w, err)
		return
	}
	buy, err := validation.ValidateTicker(q.Get("buy"))
	if err != nil {
		sendBadRequest(w, err)
		return
	}
	date := utils.Date(h.now())
	if d := strings.TrimSpace(q.Get("date")); d != "" {
		if date, err = validation.ValidateDateString(d, "date"); err != nil {
			sendBadRequest(w, err)
			return
		}
	}
	accountID, err := queryID(r, "account_id")
	if err != nil {
		sendBadRequest(w, err)
		return
	}

	check, err := h.harvestService.CheckWashSaleCompliance(r.Context(), sell, buy, date, accountID)
	if err != nil {
		sendServiceError(w, r, "check wash sale compliance", err)
		return
	}
	if check.RiskFactors == nil {
		check.RiskFactors = []string{}
	}
	utils.SendJSON(w, check, http.StatusOK)
}

// StrategyRequest maps asset classes to target weights; weights and tax rate are decimal strings.
type StrategyRequest struct {
	Targets map[string]string `json:"targets"`
	TaxRate string            `json:"tax_rate"`
}

func (h *HarvestHandler) HandleOptimizeStrategy(w http.ResponseWriter, r *http.Request) {
	accountID, err := pathID(r, "accountID")
	if err != nil {
		sendBadRequest(w, err)
		return
	}
	var req StrategyRequest
	if err := decodeJSON(r, &req); err != nil {
		sendBadRequest(w, err)
		return
	}
	targets := make(map[string]decimal.Decimal, len(req.Targets))
	for class, weight := range req.Targets {
		value, err := validation.ValidateDecimalString(weight, "targets."+class, false)
		if err != nil {
			sendServiceError(w, r, "optimize harvest strategy", err)
			return
		}
		targets[class] = value
	}
	taxRate, err := validation.ValidateDecimalString(req.TaxRate, "tax_rate", true)
	if err != nil {
		sendServiceError(w, r, "optimize harvest strategy", err)
		return
	}

	strategy, err := h.harvestService.OptimizeHarvestStrategy(r.Context(), accountID, targets, taxRate)
	if err != nil {
		sendServiceError(w, r, "optimize harvest strategy", err)
		return
	}
	if strategy.Immediate == nil {
		strategy.Immediate = []models.HarvestAction{}
	}
	if strategy.Delayed == nil {
		strategy.Delayed = []models.HarvestAction{}
	}
	utils.SendJSON(w, strategy, http.StatusOK)
}
