package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/username/taxfolio/ledger/src/config"
	"github.com/username/taxfolio/ledger/src/logger"
	"github.com/username/taxfolio/ledger/src/models"
	"github.com/username/taxfolio/ledger/src/security/validation"
	"github.com/username/taxfolio/ledger/src/services"
	"github.com/username/taxfolio/ledger/src/utils"
)

type TransactionHandler struct {
	ledgerService  services.LedgerService
	maxImportBytes int64
}

func NewTransactionHandler(ledgerService services.LedgerService, maxImportBytes int64) *TransactionHandler {
	if maxImportBytes <= 0 {
		maxImportBytes = config.Default().MaxImportSizeBytes
	}
	return &TransactionHandler{ledgerService: ledgerService, maxImportBytes: maxImportBytes}
}

// RecordTransactionRequest carries decimals and dates as strings so they keep their exact form.
type RecordTransactionRequest struct {
	SymbolID    int64  `json:"symbol_id"`
	Type        string `json:"type"`
	Date        string `json:"date"`
	Quantity    string `json:"quantity"`
	Price       string `json:"price"`
	Fee         string `json:"fee"`
	TotalAmount string `json:"total_amount"`
	Notes       string `json:"notes"`
}

func (req RecordTransactionRequest) toTransaction(accountID int64) (models.Transaction, error) {
	tx := models.Transaction{
		AccountID: accountID,
		SymbolID:  req.SymbolID,
		Type:      models.TransactionType(strings.ToLower(strings.TrimSpace(req.Type))),
	}
	if !tx.Type.Valid() {
		return tx, fmt.Errorf("%w: unknown transaction type '%s'", validation.ErrValidationFailed, req.Type)
	}
	var err error
	if tx.Date, err = validation.ValidateDateString(req.Date, "date"); err != nil {
		return tx, err
	}
	if tx.Quantity, err = validation.ValidateDecimalString(req.Quantity, "quantity", true); err != nil {
		return tx, err
	}
	if tx.Price, err = validation.ValidateDecimalString(req.Price, "price", false); err != nil {
		return tx, err
	}
	if tx.Fee, err = validation.ValidateDecimalString(req.Fee, "fee", false); err != nil {
		return tx, err
	}
	if tx.TotalAmount, err = validation.ValidateDecimalString(req.TotalAmount, "total_amount", true); err != nil {
		return tx, err
	}
	if tx.Notes, err = validation.CleanFreeText(req.Notes, "notes", false); err != nil {
		return tx, err
	}
	return tx, nil
}

func (h *TransactionHandler) HandleRecordTransaction(w http.ResponseWriter, r *http.Request) {
	accountID, err := pathID(r, "accountID")
	if err != nil {
		sendBadRequest(w, err)
		return
	}
	var req RecordTransactionRequest
	if err := decodeJSON(r, &req); err != nil {
		sendBadRequest(w, err)
		return
	}
	tx, err := req.toTransaction(accountID)
	if err != nil {
		sendServiceError(w, r, "record transaction", err)
		return
	}

	stored, err := h.ledgerService.RecordTransaction(r.Context(), tx)
	if err != nil {
		sendServiceError(w, r, "record transaction", err)
		return
	}
	utils.SendJSON(w, stored, http.StatusCreated)
}

func (h *TransactionHandler) HandleListTransactions(w http.ResponseWriter, r *http.Request) {
	accountID, err := pathID(r, "accountID")
	if err != nil {
		sendBadRequest(w, err)
		return
	}
	filter, err := transactionFilterFromQuery(r)
	if err != nil {
		sendBadRequest(w, err)
		return
	}

	txs, err := h.ledgerService.ListTransactions(r.Context(), accountID, filter)
	if err != nil {
		sendServiceError(w, r, "list transactions", err)
		return
	}
	if txs == nil {
		txs = []models.Transaction{}
	}
	utils.SendJSON(w, txs, http.StatusOK)
}

func transactionFilterFromQuery(r *http.Request) (models.TransactionFilter, error) {
	var filter models.TransactionFilter
	var err error
	if filter.SymbolID, err = queryID(r, "symbol_id"); err != nil {
		return filter, err
	}
	q := r.URL.Query()
	if t := strings.TrimSpace(q.Get("type")); t != "" {
		filter.Type = models.TransactionType(strings.ToLower(t))
		if !filter.Type.Valid() {
			return filter, fmt.Errorf("%w: unknown transaction type '%s'", validation.ErrValidationFailed, t)
		}
	}
	if from := q.Get("from"); from != "" {
		if filter.From, err = validation.ValidateDateString(from, "from"); err != nil {
			return filter, err
		}
	}
	if to := q.Get("to"); to != "" {
		if filter.To, err = validation.ValidateDateString(to, "to"); err != nil {
			return filter, err
		}
	}
	return filter, nil
}

// HandleImportTransactions accepts a multipart CSV upload in the "file" field.
func (h *TransactionHandler) HandleImportTransactions(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	accountID, err := pathID(r, "accountID")
	if err != nil {
		sendBadRequest(w, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxImportBytes)
	if err := r.ParseMultipartForm(h.maxImportBytes); err != nil {
		log.Warn("Failed to parse multipart form or request too large", "accountID", accountID, "error", err, "limit", h.maxImportBytes)
		utils.SendJSONError(w, fmt.Sprintf("failed to read upload or file too large (max %d MB)", h.maxImportBytes/(1024*1024)), http.StatusBadRequest)
		return
	}

	source := r.FormValue("source")
	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		log.Warn("Failed to retrieve file from request", "accountID", accountID, "error", err)
		utils.SendJSONError(w, "failed to retrieve file from request, ensure the 'file' field is used", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if fileHeader.Size > h.maxImportBytes {
		log.Warn("Uploaded file header reports size too large", "accountID", accountID, "fileSize", fileHeader.Size, "limit", h.maxImportBytes)
		utils.SendJSONError(w, fmt.Sprintf("file too large, max %d MB", h.maxImportBytes/(1024*1024)), http.StatusBadRequest)
		return
	}

	clientContentType := fileHeader.Header.Get("Content-Type")
	if err := validation.ValidateClientContentType(clientContentType); err != nil {
		log.Warn("Invalid client-declared file type", "accountID", accountID, "contentType", clientContentType, "error", err)
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	detectedContentType, err := validation.ValidateFileContentByMagicBytes(file)
	if err != nil {
		log.Warn("Server-side file content validation failed", "accountID", accountID, "filename", fileHeader.Filename, "error", err)
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	log.Info("Processing import", "accountID", accountID, "filename", fileHeader.Filename,
		"clientType", clientContentType, "detectedType", detectedContentType, "size", fileHeader.Size)

	result, err := h.ledgerService.ImportTransactions(r.Context(), accountID, source, file)
	if err != nil {
		sendServiceError(w, r, "import transactions", err)
		return
	}
	utils.SendJSON(w, result, http.StatusCreated)
}
