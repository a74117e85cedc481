package handlers

import (
	"net/http"

	"github.com/username/taxfolio/ledger/src/logger"
	"github.com/username/taxfolio/ledger/src/models"
	"github.com/username/taxfolio/ledger/src/security/validation"
	"github.com/username/taxfolio/ledger/src/services"
	"github.com/username/taxfolio/ledger/src/utils"
)

type SymbolHandler struct {
	ledgerService services.LedgerService
	priceService  services.PriceService
}

func NewSymbolHandler(ledgerService services.LedgerService, priceService services.PriceService) *SymbolHandler {
	return &SymbolHandler{ledgerService: ledgerService, priceService: priceService}
}

type CreateSymbolRequest struct {
	Ticker     string `json:"ticker"`
	Name       string `json:"name"`
	AssetClass string `json:"asset_class"`
}

func (h *SymbolHandler) HandleCreateSymbol(w http.ResponseWriter, r *http.Request) {
	var req CreateSymbolRequest
	if err := decodeJSON(r, &req); err != nil {
		sendBadRequest(w, err)
		return
	}

	symbol, err := h.ledgerService.CreateSymbol(r.Context(), req.Ticker, req.Name, req.AssetClass)
	if err != nil {
		sendServiceError(w, r, "create symbol", err)
		return
	}
	utils.SendJSON(w, symbol, http.StatusCreated)
}

func (h *SymbolHandler) HandleListSymbols(w http.ResponseWriter, r *http.Request) {
	symbols, err := h.ledgerService.ListSymbols(r.Context())
	if err != nil {
		sendServiceError(w, r, "list symbols", err)
		return
	}
	if symbols == nil {
		symbols = []models.Symbol{}
	}
	utils.SendJSON(w, symbols, http.StatusOK)
}

type SetPriceRequest struct {
	Date  string `json:"date"`
	Price string `json:"price"`
}

type priceResponse struct {
	SymbolID int64  `json:"symbol_id"`
	Status   string `json:"status"`
	Price    string `json:"price,omitempty"`
	Date     string `json:"date,omitempty"`
}

func (h *SymbolHandler) HandleSetPrice(w http.ResponseWriter, r *http.Request) {
	symbolID, err := pathID(r, "symbolID")
	if err != nil {
		sendBadRequest(w, err)
		return
	}
	var req SetPriceRequest
	if err := decodeJSON(r, &req); err != nil {
		sendBadRequest(w, err)
		return
	}
	date, err := validation.ValidateDateString(req.Date, "date")
	if err != nil {
		sendServiceError(w, r, "set price", err)
		return
	}
	price, err := validation.ValidateDecimalString(req.Price, "price", false)
	if err != nil {
		sendServiceError(w, r, "set price", err)
		return
	}

	if err := h.ledgerService.SetPrice(r.Context(), symbolID, date, price); err != nil {
		sendServiceError(w, r, "set price", err)
		return
	}
	logger.FromContext(r.Context()).Info("Price stored", "symbolID", symbolID, "date", req.Date, "price", price.String())
	utils.SendJSON(w, priceResponse{
		SymbolID: symbolID,
		Status:   services.PriceStatusOK,
		Price:    price.String(),
		Date:     utils.FormatDate(date),
	}, http.StatusOK)
}

func (h *SymbolHandler) HandleGetPrice(w http.ResponseWriter, r *http.Request) {
	symbolID, err := pathID(r, "symbolID")
	if err != nil {
		sendBadRequest(w, err)
		return
	}
	info, err := h.priceService.GetCurrentPrice(r.Context(), symbolID)
	if err != nil {
		sendServiceError(w, r, "get price", err)
		return
	}

	resp := priceResponse{SymbolID: symbolID, Status: info.Status}
	if info.Status == services.PriceStatusOK {
		resp.Price = info.Price.String()
		resp.Date = utils.FormatDate(info.Date)
	}
	utils.SendJSON(w, resp, http.StatusOK)
}
