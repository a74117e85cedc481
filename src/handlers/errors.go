package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/username/taxfolio/ledger/src/logger"
	"github.com/username/taxfolio/ledger/src/security/validation"
	"github.com/username/taxfolio/ledger/src/services"
	"github.com/username/taxfolio/ledger/src/utils"
)

type errorKind struct {
	err    error
	kind   string
	status int
}

// errorKinds is checked in order; the first match wins.
var errorKinds = []errorKind{
	{services.ErrAccountNotFound, "account_not_found", http.StatusNotFound},
	{services.ErrSymbolNotFound, "symbol_not_found", http.StatusNotFound},
	{services.ErrCorporateActionNotFound, "corporate_action_not_found", http.StatusNotFound},
	{services.ErrAdjustmentNotFound, "adjustment_not_found", http.StatusNotFound},

	{services.ErrAlreadyProcessed, "already_processed", http.StatusConflict},
	{services.ErrAlreadyReversed, "already_reversed", http.StatusConflict},
	{services.ErrNotApplied, "not_applied", http.StatusConflict},
	{services.ErrExDateInFuture, "ex_date_in_future", http.StatusConflict},
	{services.ErrDuplicateSymbol, "duplicate_symbol", http.StatusConflict},

	{services.ErrPartialAdjustmentFailure, "partial_adjustment_failure", http.StatusInternalServerError},
	{services.ErrPartialReversalFailure, "partial_reversal_failure", http.StatusInternalServerError},

	{services.ErrUnsupportedActionType, "unsupported_action_type", http.StatusUnprocessableEntity},
	{services.ErrInvalidCorporateAction, "invalid_corporate_action", http.StatusUnprocessableEntity},
	{services.ErrInsufficientLots, "insufficient_lots", http.StatusUnprocessableEntity},
	{services.ErrValuePreservation, "value_preservation", http.StatusUnprocessableEntity},
	{services.ErrBackdatedTransaction, "backdated_transaction", http.StatusUnprocessableEntity},
	{services.ErrInvalidAllocation, "invalid_allocation", http.StatusUnprocessableEntity},
	{services.ErrInvalidTaxRate, "invalid_tax_rate", http.StatusUnprocessableEntity},
	{services.ErrPriceUnavailable, "price_unavailable", http.StatusUnprocessableEntity},
	{services.ErrParsingFailed, "parsing_failed", http.StatusUnprocessableEntity},
	{validation.ErrValidationFailed, "validation_failed", http.StatusUnprocessableEntity},

	{services.ErrNoTransactions, "no_transactions", http.StatusOK},
	{services.ErrNoPositions, "no_positions", http.StatusOK},
	{services.ErrNoHoldings, "no_holdings", http.StatusOK},
}

// classifyError maps a service error to its response kind and status code.
func classifyError(err error) (string, int) {
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind, k.status
		}
	}
	return "internal", http.StatusInternalServerError
}

// emptyResult is the body sent when there was nothing to compute.
type emptyResult struct {
	Empty   bool   `json:"empty"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// sendServiceError writes err using the status code of its kind.
func sendServiceError(w http.ResponseWriter, r *http.Request, operation string, err error) {
	kind, status := classifyError(err)
	log := logger.FromContext(r.Context())

	if services.IsEmptyResult(err) {
		log.Info("Nothing to compute", "operation", operation, "kind", kind)
		utils.SendJSON(w, emptyResult{Empty: true, Kind: kind, Message: err.Error()}, http.StatusOK)
		return
	}

	var precondition *services.PreconditionError
	if errors.As(err, &precondition) {
		log.Warn("Corporate action precondition failed", "operation", operation, "actionID", precondition.ActionID,
			"status", precondition.Status, "requested", precondition.Operation)
	}

	if status >= http.StatusInternalServerError {
		log.Error("Request failed", "operation", operation, "error", err)
		utils.SendJSONErrorKind(w, kind, fmt.Sprintf("%s failed", operation), status)
		return
	}
	utils.SendJSONErrorKind(w, kind, err.Error(), status)
}

// pathID reads a positive integer URL parameter.
func pathID(r *http.Request, name string) (int64, error) {
	return validation.ValidateID(chi.URLParam(r, name), name)
}

// queryID reads an optional positive integer query parameter; absent means 0.
func queryID(r *http.Request, name string) (int64, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return 0, nil
	}
	return validation.ValidateID(v, name)
}

// queryYear reads the tax year, defaulting to the current one.
func queryYear(r *http.Request, fallback int) (int, error) {
	v := strings.TrimSpace(r.URL.Query().Get("year"))
	if v == "" {
		return fallback, nil
	}
	return validation.ValidateIntString(v, "year", 1900, 9999)
}

// queryDecimal reads an optional non-negative decimal query parameter.
func queryDecimal(r *http.Request, name string, fallback decimal.Decimal) (decimal.Decimal, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return fallback, nil
	}
	return validation.ValidateDecimalString(v, name, false)
}

// queryBool reads an optional boolean query parameter; absent means nil.
func queryBool(r *http.Request, name string) (*bool, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be true or false", validation.ErrValidationFailed, name)
	}
	return &b, nil
}

// sendBadRequest rejects malformed request parameters or bodies.
func sendBadRequest(w http.ResponseWriter, err error) {
	utils.SendJSONErrorKind(w, "bad_request", err.Error(), http.StatusBadRequest)
}

// decodeJSON reads a JSON request body into v.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
