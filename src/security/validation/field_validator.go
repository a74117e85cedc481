package validation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/username/taxfolio/ledger/src/logger"
)

var ErrValidationFailed = fmt.Errorf("validation failed")

const (
	DefaultMaxStringLength = 255
	MaxTickerLength        = 12
	MaxCurrencyCodeLength  = 3
	MaxAssetClassLength    = 40
	MaxNameLength          = 255
	MaxDescriptionLength   = 1024
)

// --- String Validators ---

// ValidateStringNotEmpty checks if a string is not empty after trimming.
func ValidateStringNotEmpty(s, fieldName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s cannot be empty", ErrValidationFailed, fieldName)
	}
	return nil
}

// ValidateStringMaxLength checks if a string's UTF-8 character count is within max bounds.
func ValidateStringMaxLength(s string, maxLength int, fieldName string) error {
	if utf8.RuneCountInString(s) > maxLength {
		return fmt.Errorf("%w: %s exceeds maximum length of %d characters", ErrValidationFailed, fieldName, maxLength)
	}
	return nil
}

// ValidateStringRegex checks if a string matches a given regex pattern.
func ValidateStringRegex(s string, pattern *regexp.Regexp, fieldName, formatDescription string) error {
	if !pattern.MatchString(s) {
		return fmt.Errorf("%w: %s ('%s') is not in the expected format (%s)", ErrValidationFailed, fieldName, s, formatDescription)
	}
	return nil
}

// --- Numeric Validators ---

// ValidateDecimalString parses a decimal. Empty input yields zero.
func ValidateDecimalString(s, fieldName string, allowNegative bool) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return decimal.Zero, nil
	}
	val, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s ('%s') is not a valid decimal: %v", ErrValidationFailed, fieldName, s, err)
	}
	if !allowNegative && val.IsNegative() {
		logger.L.Warn("Negative value not allowed for field", "field", fieldName, "value", val.String())
		return decimal.Zero, fmt.Errorf("%w: %s cannot be negative", ErrValidationFailed, fieldName)
	}
	return val, nil
}

// ValidateIntString parses a string to int and checks if it's within a range.
func ValidateIntString(s, fieldName string, minVal, maxVal int) (int, error) {
	trimmed := strings.TrimSpace(s)
	if err := ValidateStringNotEmpty(trimmed, fieldName); err != nil {
		return 0, err
	}
	val, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("%w: %s ('%s') is not a valid integer: %v", ErrValidationFailed, fieldName, s, err)
	}
	if val < minVal || val > maxVal {
		logger.L.Warn("Integer value out of range", "field", fieldName, "value", val, "min", minVal, "max", maxVal)
		return 0, fmt.Errorf("%w: %s must be between %d and %d, got %d", ErrValidationFailed, fieldName, minVal, maxVal, val)
	}
	return val, nil
}

// ValidateID parses a positive database id.
func ValidateID(s, fieldName string) (int64, error) {
	trimmed := strings.TrimSpace(s)
	id, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %s ('%s') is not a valid id", ErrValidationFailed, fieldName, s)
	}
	return id, nil
}

// --- Date Validator ---

// ValidateDateString checks if a string is a valid date in "YYYY-MM-DD" format.
func ValidateDateString(s, fieldName string) (time.Time, error) {
	trimmed := strings.TrimSpace(s)
	if err := ValidateStringNotEmpty(trimmed, fieldName); err != nil {
		return time.Time{}, err
	}
	date, err := civil.ParseDate(trimmed)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s ('%s') is not a valid date (expected YYYY-MM-DD): %v", ErrValidationFailed, fieldName, s, err)
	}
	return date.In(time.UTC), nil
}

// --- Specific Format Validators ---

var (
	tickerRegex       = regexp.MustCompile(`^[A-Z0-9][A-Z0-9.\-]*$`)
	currencyCodeRegex = regexp.MustCompile(`^[A-Z]{3}$`)
	assetClassRegex   = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
)

// ValidateTicker normalises a ticker to upper case and checks its format.
func ValidateTicker(s string) (string, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(s))
	if err := ValidateStringNotEmpty(trimmed, "ticker"); err != nil {
		return "", err
	}
	if err := ValidateStringMaxLength(trimmed, MaxTickerLength, "ticker"); err != nil {
		return "", err
	}
	if err := ValidateStringRegex(trimmed, tickerRegex, "ticker", "letters, digits, dots and hyphens"); err != nil {
		return "", err
	}
	return trimmed, nil
}

// ValidateAssetClass checks a snake_case asset class label such as "us_equity".
func ValidateAssetClass(s string) (string, error) {
	trimmed := strings.ToLower(strings.TrimSpace(s))
	if err := ValidateStringNotEmpty(trimmed, "asset_class"); err != nil {
		return "", err
	}
	if err := ValidateStringMaxLength(trimmed, MaxAssetClassLength, "asset_class"); err != nil {
		return "", err
	}
	if err := ValidateStringRegex(trimmed, assetClassRegex, "asset_class", "lower-case snake_case"); err != nil {
		return "", err
	}
	return trimmed, nil
}

// ValidateCurrencyCode checks if currency code is 3 uppercase letters.
func ValidateCurrencyCode(s string) error {
	trimmed := strings.ToUpper(strings.TrimSpace(s))
	if err := ValidateStringMaxLength(trimmed, MaxCurrencyCodeLength, "Currency Code"); err != nil {
		return err
	}
	if !currencyCodeRegex.MatchString(trimmed) {
		return fmt.Errorf("%w: Currency Code ('%s') is not in the expected format (3 uppercase letters)", ErrValidationFailed, s)
	}
	return nil
}

// CleanFreeText sanitises user-entered free text and enforces a length limit.
// If required is set the cleaned text must not be empty.
func CleanFreeText(s, fieldName string, required bool) (string, error) {
	cleaned := strings.TrimSpace(StripUnprintable(SanitizeText(s)))
	if required {
		if err := ValidateStringNotEmpty(cleaned, fieldName); err != nil {
			return "", err
		}
	}
	if err := ValidateStringMaxLength(cleaned, MaxDescriptionLength, fieldName); err != nil {
		return "", err
	}
	return cleaned, nil
}
