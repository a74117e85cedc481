package handlers

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/username/taxfolio/ledger/src/logger"
	"github.com/username/taxfolio/ledger/src/models"
	"github.com/username/taxfolio/ledger/src/security/validation"
	"github.com/username/taxfolio/ledger/src/services"
	"github.com/username/taxfolio/ledger/src/utils"
)

type GainsHandler struct {
	gainsService services.GainsService
	now          func() time.Time
}

func NewGainsHandler(gainsService services.GainsService) *GainsHandler {
	return &GainsHandler{gainsService: gainsService, now: time.Now}
}

func (h *GainsHandler) HandleGetRealizedGains(w http.ResponseWriter, r *http.Request) {
	accountID, err := pathID(r, "accountID")
	if err != nil {
		sendBadRequest(w, err)
		return
	}
	symbolID, err := pathID(r, "symbolID")
	if err != nil {
		sendBadRequest(w, err)
		return
	}
	year, err := queryYear(r, h.now().Year())
	if err != nil {
		sendBadRequest(w, err)
		return
	}

	analysis, err := h.gainsService.CalculateRealizedGains(r.Context(), accountID, symbolID, year)
	if err != nil {
		sendServiceError(w, r, "calculate realized gains", err)
		return
	}
	sendWithETag(w, r, analysis)
}

func (h *GainsHandler) HandleGetUnrealizedGains(w http.ResponseWriter, r *http.Request) {
	accountID, err := pathID(r, "accountID")
	if err != nil {
		sendBadRequest(w, err)
		return
	}
	symbolID, err := pathID(r, "symbolID")
	if err != nil {
		sendBadRequest(w, err)
		return
	}

	analysis, err := h.gainsService.CalculateUnrealizedGains(r.Context(), accountID, symbolID)
	if err != nil {
		sendServiceError(w, r, "calculate unrealized gains", err)
		return
	}
	sendWithETag(w, r, analysis)
}

// HandleGetTaxLots serves the tax lot report as JSON, or as CSV with ?format=csv.
func (h *GainsHandler) HandleGetTaxLots(w http.ResponseWriter, r *http.Request) {
	accountID, err := pathID(r, "accountID")
	if err != nil {
		sendBadRequest(w, err)
		return
	}
	symbolID, err := queryID(r, "symbol_id")
	if err != nil {
		sendBadRequest(w, err)
		return
	}

	report, err := h.gainsService.GenerateTaxLotReport(r.Context(), accountID, symbolID)
	if err != nil {
		sendServiceError(w, r, "generate tax lot report", err)
		return
	}
	if report.OpenLots == nil {
		report.OpenLots = []models.TaxLot{}
	}
	if report.ClosedLots == nil {
		report.ClosedLots = []models.ClosedLot{}
	}

	if strings.EqualFold(r.URL.Query().Get("format"), "csv") {
		writeTaxLotCSV(w, r, report)
		return
	}
	sendWithETag(w, r, report)
}

func (h *GainsHandler) HandleGetAnnualSummary(w http.ResponseWriter, r *http.Request) {
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

	summary, err := h.gainsService.CalculateAnnualSummary(r.Context(), accountID, year)
	if err != nil {
		sendServiceError(w, r, "calculate annual summary", err)
		return
	}
	if summary.Symbols == nil {
		summary.Symbols = []models.RealizedGainAnalysis{}
	}
	sendWithETag(w, r, summary)
}

var taxLotCSVHeader = []string{
	"status", "symbol", "lot_id", "acquisition_date", "sale_date", "quantity",
	"unit_cost", "cost_basis", "sale_price", "gain", "holding_days", "term",
}

// writeTaxLotCSV renders open lots then closed lots. Cells are neutralised against spreadsheet
// formula injection.
func writeTaxLotCSV(w http.ResponseWriter, r *http.Request, report *models.TaxLotReport) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"tax-lots-%d.csv\"", report.AccountID))
	w.WriteHeader(http.StatusOK)

	cw := csv.NewWriter(w)
	write := func(cells ...string) {
		for i, c := range cells {
			cells[i] = validation.SanitizeForFormulaInjection(c)
		}
		if err := cw.Write(cells); err != nil {
			logger.FromContext(r.Context()).Error("Failed to write tax lot CSV row", "error", err)
		}
	}

	write(taxLotCSVHeader...)
	for _, lot := range report.OpenLots {
		gain := ""
		if lot.UnrealizedGain.Valid {
			gain = lot.UnrealizedGain.Decimal.String()
		}
		write("open", lot.Symbol, strconv.FormatInt(lot.LotID, 10), utils.FormatDate(lot.AcquisitionDate), "",
			lot.RemainingQuantity.String(), lot.UnitCost.String(), lot.CostBasis.String(), "", gain,
			strconv.Itoa(lot.HoldingDays), string(lot.Term))
	}
	for _, lot := range report.ClosedLots {
		write("closed", lot.Symbol, strconv.FormatInt(lot.LotID, 10), utils.FormatDate(lot.AcquisitionDate),
			utils.FormatDate(lot.SaleDate), lot.Quantity.String(), lot.UnitCost.String(),
			lot.CostBasis.String(), lot.SalePrice.String(), lot.Gain.String(),
			strconv.Itoa(lot.HoldingDays), string(lot.Term))
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		logger.FromContext(r.Context()).Error("Failed to flush tax lot CSV", "error", err)
	}
}

// sendWithETag writes data as JSON, answering 304 when the client already holds this version.
func sendWithETag(w http.ResponseWriter, r *http.Request, data any) {
	log := logger.FromContext(r.Context())
	currentETag, etagErr := utils.GenerateETag(data)
	if etagErr != nil {
		log.Error("Failed to generate ETag", "path", r.URL.Path, "error", etagErr)
	}

	w.Header().Set("Cache-Control", "no-cache, private")

	if etagErr == nil && currentETag != "" {
		quotedETag := fmt.Sprintf("\"%s\"", currentETag)
		w.Header().Set("ETag", quotedETag)
		clientETag := r.Header.Get("If-None-Match")
		for _, cETag := range strings.Split(clientETag, ",") {
			if strings.TrimSpace(cETag) == quotedETag {
				log.Debug("ETag match", "path", r.URL.Path, "etag", currentETag)
				w.WriteHeader(http.StatusNotModified)
				return
			}
		}
	}

	utils.SendJSON(w, data, http.StatusOK)
}
