package handlers

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/username/taxfolio/ledger/src/logger"
	"github.com/username/taxfolio/ledger/src/models"
	"github.com/username/taxfolio/ledger/src/services"
	"github.com/username/taxfolio/ledger/src/utils"
)

// DividendHandler exposes the dividend slice of the annual summary.
type DividendHandler struct {
	gainsService services.GainsService
	now          func() time.Time
}

func NewDividendHandler(gainsService services.GainsService) *DividendHandler {
	return &DividendHandler{gainsService: gainsService, now: time.Now}
}

type DividendSummaryResponse struct {
	AccountID int64                 `json:"account_id"`
	TaxYear   int                   `json:"tax_year"`
	Dividends models.DividendIncome `json:"dividends"`
}

func (h *DividendHandler) HandleGetDividendSummary(w http.ResponseWriter, r *http.Request) {
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

	logger.FromContext(r.Context()).Info("Handling GetDividendSummary", "accountID", accountID, "year", year)

	summary, err := h.gainsService.CalculateAnnualSummary(r.Context(), accountID, year)
	if err != nil {
		sendServiceError(w, r, "get dividend summary", err)
		return
	}
	dividends := summary.Dividends
	if dividends.ByTaxStatus == nil {
		dividends.ByTaxStatus = make(map[models.DividendTaxStatus]decimal.Decimal)
	}
	utils.SendJSON(w, DividendSummaryResponse{AccountID: accountID, TaxYear: year, Dividends: dividends}, http.StatusOK)
}
