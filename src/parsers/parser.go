package parsers

import (
	"fmt"
	"io"
	"strings"

	"github.com/username/taxfolio/ledger/src/models"
	"github.com/username/taxfolio/ledger/src/parsers/ledgercsv"
)

// Parser converts an uploaded file into canonical transactions.
type Parser interface {
	Parse(file io.Reader) ([]models.CanonicalTransaction, error)
}

// SourceLedgerCSV is the native export/import format.
const SourceLedgerCSV = "ledger_csv"

// GetParser returns the parser registered for source. An empty source selects the native format.
func GetParser(source string) (Parser, error) {
	switch strings.ToLower(strings.TrimSpace(source)) {
	case "", SourceLedgerCSV, "csv":
		return ledgercsv.NewParser(), nil
	default:
		return nil, fmt.Errorf("unsupported import source '%s'", source)
	}
}
