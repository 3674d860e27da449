package validation

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Date and time layouts accepted from forms.
const (
	DateLayout     = "2006-01-02"
	TimeLayout     = "15:04:05"
	DateTimeLayout = DateLayout + " " + TimeLayout
)

// ValidationError represents a structured validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors collects multiple field errors.
type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (ve *ValidationErrors) Add(field, message string) {
	ve.Errors = append(ve.Errors, ValidationError{Field: field, Message: message})
}

func (ve *ValidationErrors) HasErrors() bool {
	return len(ve.Errors) > 0
}

func (ve *ValidationErrors) Error() string {
	msgs := make([]string, len(ve.Errors))
	for i, e := range ve.Errors {
		msgs[i] = e.Field + ": " + e.Message
	}
	return strings.Join(msgs, "; ")
}

// RequireField checks a required string field is non-empty.
func RequireField(ve *ValidationErrors, field, value string) {
	if strings.TrimSpace(value) == "" {
		ve.Add(field, "is required")
	}
}

// ValidateEnum checks a field is one of allowed values.
func ValidateEnum(ve *ValidationErrors, field, value string, allowed []string) {
	if value == "" {
		return
	}
	for _, a := range allowed {
		if value == a {
			return
		}
	}
	ve.Add(field, fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")))
}

// ValidateDate checks a field is a valid date (YYYY-MM-DD).
func ValidateDate(ve *ValidationErrors, field, value string) {
	if value == "" {
		return
	}
	if _, err := time.Parse(DateLayout, value); err != nil {
		ve.Add(field, "must be a valid date (YYYY-MM-DD)")
	}
}

// ValidateTime checks a field is a valid time of day (HH:MM or HH:MM:SS).
func ValidateTime(ve *ValidationErrors, field, value string) {
	if value == "" {
		return
	}
	if _, err := NormalizeTime(value); err != nil {
		ve.Add(field, "must be a valid time (HH:MM:SS)")
	}
}

// NormalizeTime accepts HH:MM or HH:MM:SS and returns HH:MM:SS.
func NormalizeTime(value string) (string, error) {
	for _, layout := range []string{TimeLayout, "15:04"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.Format(TimeLayout), nil
		}
	}
	return "", fmt.Errorf("invalid time %q", value)
}

// ValidatePositiveInt checks a field is > 0.
func ValidatePositiveInt(ve *ValidationErrors, field string, value int) {
	if value <= 0 {
		ve.Add(field, "must be a positive integer")
	}
}

// ValidatePositiveDecimal checks a field is > 0.
func ValidatePositiveDecimal(ve *ValidationErrors, field string, value decimal.Decimal) {
	if !value.IsPositive() {
		ve.Add(field, "must be a positive number")
	}
}

// ValidateNonNegativeDecimal checks a field is >= 0.
func ValidateNonNegativeDecimal(ve *ValidationErrors, field string, value decimal.Decimal) {
	if value.IsNegative() {
		ve.Add(field, "must be non-negative")
	}
}

// MaxAmount caps money fields well above any real fee.
var MaxAmount = decimal.NewFromInt(100000000)

// ValidateMaxAmount checks an amount doesn't exceed MaxAmount.
func ValidateMaxAmount(ve *ValidationErrors, field string, value decimal.Decimal) {
	if value.GreaterThan(MaxAmount) {
		ve.Add(field, fmt.Sprintf("exceeds maximum allowed amount of %s", MaxAmount.StringFixed(2)))
	}
}

// Length limits for free-text fields.
const (
	MaxNameLength   = 255
	MaxStringLength = 10000
)

// ValidateMaxLength checks string doesn't exceed max length.
func ValidateMaxLength(ve *ValidationErrors, field, value string, max int) {
	if len(value) > max {
		ve.Add(field, fmt.Sprintf("must be at most %d characters", max))
	}
}

// ValidateCents rejects amounts finer than one paisa.
func ValidateCents(ve *ValidationErrors, field string, value decimal.Decimal) {
	if !value.Equal(value.Round(2)) {
		ve.Add(field, "must have at most 2 decimal places")
	}
}

// ParseAmount parses a money form value. An empty string is zero.
func ParseAmount(ve *ValidationErrors, field, value string) decimal.Decimal {
	value = strings.TrimSpace(value)
	if value == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		ve.Add(field, "must be a number")
		return decimal.Zero
	}
	ValidateCents(ve, field, d)
	return d
}
