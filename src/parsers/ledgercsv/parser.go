package ledgercsv

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/username/taxfolio/ledger/src/logger"
	"github.com/username/taxfolio/ledger/src/models"
	"github.com/username/taxfolio/ledger/src/security/validation"
)

// Columns lists the header of the native CSV format. Column order in the file is free,
// but date, ticker, type and quantity are required.
var Columns = []string{"date", "ticker", "type", "quantity", "price", "fee", "total_amount", "notes"}

var requiredColumns = []string{"date", "ticker", "type", "quantity"}

// ErrEmptyFile is returned when the file has a header but no data rows.
var ErrEmptyFile = errors.New("ledger csv: no transaction rows")

// RowError reports the first invalid row. Line counts the header as line 1.
type RowError struct {
	Line int
	Err  error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("ledger csv: line %d: %v", e.Line, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// LedgerCSVParser reads the native CSV format.
type LedgerCSVParser struct{}

// NewParser creates a new instance of the LedgerCSVParser.
func NewParser() *LedgerCSVParser {
	return &LedgerCSVParser{}
}

func normalizeDecimalString(s string) string {
	cleaned := strings.TrimSpace(s)
	cleaned = strings.Trim(cleaned, "\"")
	return strings.ReplaceAll(cleaned, ",", ".")
}

// Parse reads the whole file and returns its rows in file order. Sell quantities written as
// positive numbers are negated. The first invalid row aborts the parse with a *RowError.
func (p *LedgerCSVParser) Parse(file io.Reader) ([]models.CanonicalTransaction, error) {
	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("ledger csv: failed to read CSV header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))] = i
	}
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("ledger csv: missing required column '%s'", col)
		}
	}

	var canonicalTxs []models.CanonicalTransaction
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ledger csv: failed to read CSV records: %w", err)
		}
		// encoding/csv skips empty lines and lets quoted fields span lines, so the
		// reader's own position is the only reliable line number.
		line, _ := reader.FieldPos(0)
		if isBlank(record) {
			continue
		}
		field := func(name string) string {
			if pos, ok := index[name]; ok && pos < len(record) {
				return strings.TrimSpace(record[pos])
			}
			return ""
		}
		tx, err := parseRow(field)
		if err != nil {
			logger.L.Warn("Ledger CSV parser rejected row", "line", line, "error", err)
			return nil, &RowError{Line: line, Err: err}
		}
		tx.Line = line
		canonicalTxs = append(canonicalTxs, tx)
	}
	if len(canonicalTxs) == 0 {
		return nil, ErrEmptyFile
	}
	return canonicalTxs, nil
}

func parseRow(field func(string) string) (models.CanonicalTransaction, error) {
	var tx models.CanonicalTransaction

	date, err := validation.ValidateDateString(field("date"), "date")
	if err != nil {
		return tx, err
	}
	ticker, err := validation.ValidateTicker(field("ticker"))
	if err != nil {
		return tx, err
	}
	txType := models.TransactionType(strings.ToLower(field("type")))
	if !txType.Valid() {
		return tx, fmt.Errorf("%w: unknown transaction type '%s'", validation.ErrValidationFailed, field("type"))
	}
	if strings.TrimSpace(field("quantity")) == "" {
		return tx, fmt.Errorf("%w: quantity cannot be empty", validation.ErrValidationFailed)
	}
	quantity, err := validation.ValidateDecimalString(normalizeDecimalString(field("quantity")), "quantity", true)
	if err != nil {
		return tx, err
	}
	if txType == models.TransactionSell && quantity.IsPositive() {
		quantity = quantity.Neg()
	}
	price, err := validation.ValidateDecimalString(normalizeDecimalString(field("price")), "price", false)
	if err != nil {
		return tx, err
	}
	fee, err := validation.ValidateDecimalString(normalizeDecimalString(field("fee")), "fee", false)
	if err != nil {
		return tx, err
	}
	total, err := validation.ValidateDecimalString(normalizeDecimalString(field("total_amount")), "total_amount", true)
	if err != nil {
		return tx, err
	}
	notes := field("notes")
	if notes != "" {
		if err := validation.ScanImportedText(notes, "notes", ticker); err != nil {
			return tx, err
		}
	}

	tx.Date = date
	tx.Ticker = ticker
	tx.Type = txType
	tx.Quantity = quantity
	tx.Price = price
	tx.Fee = fee
	tx.TotalAmount = total
	tx.Notes = notes
	return tx, nil
}

func isBlank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// Header returns the canonical header line values.
func Header() []string {
	out := make([]string, len(Columns))
	copy(out, Columns)
	return out
}

// ZeroIfEmpty formats d for export, leaving zero amounts blank.
func ZeroIfEmpty(d decimal.Decimal) string {
	if d.IsZero() {
		return ""
	}
	return d.String()
}
