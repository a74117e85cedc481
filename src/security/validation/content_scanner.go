package validation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/username/taxfolio/ledger/src/logger"
)

// importedTextChecks run against every free-text cell of an imported ledger file. The notes
// end up in tax-lot CSV exports and the JSON API, so markup and spreadsheet formulas are
// refused at the door instead of being escaped later.
var importedTextChecks = []struct {
	name    string
	pattern *regexp.Regexp
}{
	{"markup", regexp.MustCompile(`(?i)<\s*(script|iframe|object|embed|style|link|img|svg)\b|\bon[a-z]+\s*=|(java|vb)script:`)},
	{"spreadsheet formula", regexp.MustCompile(`^[=+@]`)},
}

// ScanImportedText rejects a free-text field that carries markup or starts like a formula.
// row identifies the offending row in logs (the ticker for ledger imports).
func ScanImportedText(s, fieldName, row string) error {
	trimmed := strings.TrimSpace(s)
	for _, check := range importedTextChecks {
		if check.pattern.MatchString(trimmed) {
			logger.L.Warn("Imported text rejected", "field", fieldName, "row", row, "check", check.name,
				"preview", preview(trimmed, 40))
			return fmt.Errorf("%w: %s contains %s", ErrValidationFailed, fieldName, check.name)
		}
	}
	return nil
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
