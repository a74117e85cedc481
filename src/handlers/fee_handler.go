package handlers

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/username/taxfolio/ledger/src/logger"
	"github.com/username/taxfolio/ledger/src/services"
	"github.com/username/taxfolio/ledger/src/utils"
)

type FeeHandler struct {
	gainsService services.GainsService
	now          func() time.Time
}

func NewFeeHandler(gainsService services.GainsService) *FeeHandler {
	return &FeeHandler{gainsService: gainsService, now: time.Now}
}

type FeeSummaryResponse struct {
	AccountID int64           `json:"account_id"`
	TaxYear   int             `json:"tax_year"`
	TotalFees decimal.Decimal `json:"total_fees"`
}

func (h *FeeHandler) HandleGetFeeSummary(w http.ResponseWriter, r *http.Request) {
	accountID, err := pathID(r, "accountID")
	if err != nil {
		sendBadRequest(w, err)
		return
	}
	year, err := queryYear(r, h.now().Year())
	if err != nil {
		sendBadRequest(w, err)
		return
	}

	logger.FromContext(r.Context()).Info("Handling GetFeeSummary", "accountID", accountID, "year", year)

	summary, err := h.gainsService.CalculateAnnualSummary(r.Context(), accountID, year)
	if err != nil {
		sendServiceError(w, r, "get fee summary", err)
		return
	}
	utils.SendJSON(w, FeeSummaryResponse{AccountID: accountID, TaxYear: year, TotalFees: summary.TotalFees}, http.StatusOK)
}
