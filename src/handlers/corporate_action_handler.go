package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/username/taxfolio/ledger/src/logger"
	"github.com/username/taxfolio/ledger/src/models"
	"github.com/username/taxfolio/ledger/src/security/validation"
	"github.com/username/taxfolio/ledger/src/services"
	"github.com/username/taxfolio/ledger/src/utils"
)

type CorporateActionHandler struct {
	actionService services.CorporateActionService
}

func NewCorporateActionHandler(actionService services.CorporateActionService) *CorporateActionHandler {
	return &CorporateActionHandler{actionService: actionService}
}

type CreateCorporateActionRequest struct {
	SymbolID          int64  `json:"symbol_id"`
	ActionType        string `json:"action_type"`
	ExDate            string `json:"ex_date"`
	SplitRatioFrom    int64  `json:"split_ratio_from"`
	SplitRatioTo      int64  `json:"split_ratio_to"`
	DividendPerShare  string `json:"dividend_per_share"`
	DividendTaxStatus string `json:"dividend_tax_status"`
	Description       string `json:"description"`
}

func (req CreateCorporateActionRequest) toAction() (models.CorporateAction, error) {
	action := models.CorporateAction{
		SymbolID:          req.SymbolID,
		ActionType:        models.ActionType(strings.ToLower(strings.TrimSpace(req.ActionType))),
		SplitRatioFrom:    req.SplitRatioFrom,
		SplitRatioTo:      req.SplitRatioTo,
		DividendTaxStatus: models.DividendTaxStatus(strings.ToLower(strings.TrimSpace(req.DividendTaxStatus))),
	}
	var err error
	if action.ExDate, err = validation.ValidateDateString(req.ExDate, "ex_date"); err != nil {
		return action, err
	}
	if strings.TrimSpace(req.DividendPerShare) != "" {
		var dps decimal.Decimal
		if dps, err = validation.ValidateDecimalString(req.DividendPerShare, "dividend_per_share", false); err != nil {
			return action, err
		}
		action.DividendPerShare = decimal.NewNullDecimal(dps)
	}
	if action.Description, err = validation.CleanFreeText(req.Description, "description", false); err != nil {
		return action, err
	}
	return action, nil
}

func (h *CorporateActionHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateCorporateActionRequest
	if err := decodeJSON(r, &req); err != nil {
		sendBadRequest(w, err)
		return
	}
	action, err := req.toAction()
	if err != nil {
		sendServiceError(w, r, "create corporate action", err)
		return
	}

	created, err := h.actionService.CreateCorporateAction(r.Context(), action)
	if err != nil {
		sendServiceError(w, r, "create corporate action", err)
		return
	}
	utils.SendJSON(w, created, http.StatusCreated)
}

func (h *CorporateActionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "actionID")
	if err != nil {
		sendBadRequest(w, err)
		return
	}
	action, err := h.actionService.GetCorporateAction(r.Context(), id)
	if err != nil {
		sendServiceError(w, r, "get corporate action", err)
		return
	}
	utils.SendJSON(w, action, http.StatusOK)
}

func (h *CorporateActionHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	symbolID, err := queryID(r, "symbol_id")
	if err != nil {
		sendBadRequest(w, err)
		return
	}
	status := models.ActionStatus(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("status"))))

	actions, err := h.actionService.ListCorporateActions(r.Context(), symbolID, status)
	if err != nil {
		sendServiceError(w, r, "list corporate actions", err)
		return
	}
	if actions == nil {
		actions = []models.CorporateAction{}
	}
	utils.SendJSON(w, actions, http.StatusOK)
}

func (h *CorporateActionHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "actionID")
	if err != nil {
		sendBadRequest(w, err)
		return
	}
	action, err := h.actionService.CancelCorporateAction(r.Context(), id)
	if err != nil {
		sendServiceError(w, r, "cancel corporate action", err)
		return
	}
	utils.SendJSON(w, action, http.StatusOK)
}

func (h *CorporateActionHandler) HandleApply(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "actionID")
	if err != nil {
		sendBadRequest(w, err)
		return
	}
	result, err := h.actionService.ApplyCorporateAction(r.Context(), id)
	if err != nil {
		sendServiceError(w, r, "apply corporate action", err)
		return
	}
	utils.SendJSON(w, result, http.StatusOK)
}

func (h *CorporateActionHandler) HandlePreview(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "actionID")
	if err != nil {
		sendBadRequest(w, err)
		return
	}
	preview, err := h.actionService.PreviewApplication(r.Context(), id)
	if err != nil {
		sendServiceError(w, r, "preview corporate action", err)
		return
	}
	if preview.Adjustments == nil {
		preview.Adjustments = []models.TransactionAdjustment{}
	}
	utils.SendJSON(w, preview, http.StatusOK)
}

type ReverseRequest struct {
	Reason     string `json:"reason"`
	ReversedBy string `json:"reversed_by"`
}

func (h *CorporateActionHandler) HandleReverse(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "actionID")
	if err != nil {
		sendBadRequest(w, err)
		return
	}
	var req ReverseRequest
	if err := decodeJSON(r, &req); err != nil {
		sendBadRequest(w, err)
		return
	}

	result, err := h.actionService.ReverseApplication(r.Context(), id, req.Reason, req.ReversedBy)
	if err != nil {
		sendServiceError(w, r, "reverse corporate action", err)
		return
	}
	utils.SendJSON(w, result, http.StatusOK)
}

// HandleBatchApply answers 207 when some actions applied and others failed.
func (h *CorporateActionHandler) HandleBatchApply(w http.ResponseWriter, r *http.Request) {
	symbolID, err := pathID(r, "symbolID")
	if err != nil {
		sendBadRequest(w, err)
		return
	}

	result, err := h.actionService.BatchApplyPending(r.Context(), symbolID)
	if err != nil {
		if result != nil && errors.Is(err, services.ErrBatchPartialFailure) {
			logger.FromContext(r.Context()).Warn("Batch apply partially failed", "symbolID", symbolID,
				"applied", result.Applied, "failed", result.Failed)
			utils.SendJSON(w, result, http.StatusMultiStatus)
			return
		}
		sendServiceError(w, r, "batch apply corporate actions", err)
		return
	}
	utils.SendJSON(w, result, http.StatusOK)
}

func (h *CorporateActionHandler) HandleListAdjustments(w http.ResponseWriter, r *http.Request) {
	var filter models.AdjustmentFilter
	var err error
	if filter.TransactionID, err = queryID(r, "transaction_id"); err != nil {
		sendBadRequest(w, err)
		return
	}
	if filter.CorporateActionID, err = queryID(r, "corporate_action_id"); err != nil {
		sendBadRequest(w, err)
		return
	}
	if filter.Reversed, err = queryBool(r, "reversed"); err != nil {
		sendBadRequest(w, err)
		return
	}

	adjustments, err := h.actionService.ListAdjustments(r.Context(), filter)
	if err != nil {
		sendServiceError(w, r, "list adjustments", err)
		return
	}
	if adjustments == nil {
		adjustments = []models.TransactionAdjustment{}
	}
	utils.SendJSON(w, adjustments, http.StatusOK)
}

type UpdateNotesRequest struct {
	Notes string `json:"notes"`
}

func (h *CorporateActionHandler) HandleUpdateAdjustmentNotes(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "adjustmentID")
	if err != nil {
		sendBadRequest(w, err)
		return
	}
	var req UpdateNotesRequest
	if err := decodeJSON(r, &req); err != nil {
		sendBadRequest(w, err)
		return
	}

	adjustment, err := h.actionService.UpdateAdjustmentNotes(r.Context(), id, req.Notes)
	if err != nil {
		sendServiceError(w, r, "update adjustment notes", err)
		return
	}
	utils.SendJSON(w, adjustment, http.StatusOK)
}
