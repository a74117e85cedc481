package handlers

import (
	"net/http"

	"github.com/username/taxfolio/ledger/src/logger"
	"github.com/username/taxfolio/ledger/src/models"
	"github.com/username/taxfolio/ledger/src/services"
	"github.com/username/taxfolio/ledger/src/utils"
)

type AccountHandler struct {
	ledgerService services.LedgerService
}

func NewAccountHandler(ledgerService services.LedgerService) *AccountHandler {
	return &AccountHandler{ledgerService: ledgerService}
}

type CreateAccountRequest struct {
	Name string `json:"name"`
}

func (h *AccountHandler) HandleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if err := decodeJSON(r, &req); err != nil {
		sendBadRequest(w, err)
		return
	}

	account, err := h.ledgerService.CreateAccount(r.Context(), req.Name)
	if err != nil {
		sendServiceError(w, r, "create account", err)
		return
	}
	logger.FromContext(r.Context()).Info("Account created via API", "accountID", account.ID)
	utils.SendJSON(w, account, http.StatusCreated)
}

func (h *AccountHandler) HandleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.ledgerService.ListAccounts(r.Context())
	if err != nil {
		sendServiceError(w, r, "list accounts", err)
		return
	}
	if accounts == nil {
		accounts = []models.Account{}
	}
	utils.SendJSON(w, accounts, http.StatusOK)
}
