// Package validation holds request-level checks for the HTTP API.
// Strategy specs have their own schema validation in internal/strategy;
// this package covers the fields that arrive alongside a spec, such as
// symbols, frequencies, and capital amounts.
package validation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// ValidationError represents a single failed check on a named field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors collects every failed check so a response can report
// all of them at once.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return "validation errors: " + strings.Join(msgs, "; ")
}

// HasErrors returns true if there are validation errors
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator accumulates field errors across a series of checks.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{
		errors: make(ValidationErrors, 0),
	}
}

// AddError adds a validation error
func (v *Validator) AddError(field, message string) {
	v.errors = append(v.errors, ValidationError{
		Field:   field,
		Message: message,
	})
}

// Errors returns all validation errors
func (v *Validator) Errors() ValidationErrors {
	return v.errors
}

// HasErrors returns true if there are validation errors
func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

// Required validates that a string is not empty
func (v *Validator) Required(field, value string) {
	if strings.TrimSpace(value) == "" {
		v.AddError(field, "is required")
	}
}

// MaxLength validates maximum string length
func (v *Validator) MaxLength(field, value string, max int) {
	if len(value) > max {
		v.AddError(field, fmt.Sprintf("must be at most %d characters", max))
	}
}

// MinValue validates minimum numeric value
func (v *Validator) MinValue(field string, value, min float64) {
	if value < min {
		v.AddError(field, fmt.Sprintf("must be at least %v", min))
	}
}

// MaxValue validates maximum numeric value
func (v *Validator) MaxValue(field string, value, max float64) {
	if value > max {
		v.AddError(field, fmt.Sprintf("must be at most %v", max))
	}
}

// Positive validates that a number is positive
func (v *Validator) Positive(field string, value float64) {
	if value <= 0 {
		v.AddError(field, "must be positive")
	}
}

// OneOf validates that a value is one of the allowed values
func (v *Validator) OneOf(field, value string, allowed []string) {
	for _, a := range allowed {
		if value == a {
			return
		}
	}
	v.AddError(field, fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")))
}

// UUID validates UUID format
func (v *Validator) UUID(field, value string) {
	if _, err := uuid.Parse(value); err != nil {
		v.AddError(field, "must be a valid UUID")
	}
}

// symbolRegex matches US equity tickers: 1-5 uppercase letters with an
// optional class suffix (BRK.B, BF-B).
var symbolRegex = regexp.MustCompile(`^[A-Z]{1,5}([.-][A-Z])?$`)

// Symbol validates a single equity ticker.
func (v *Validator) Symbol(field, value string) {
	if !symbolRegex.MatchString(value) {
		v.AddError(field, fmt.Sprintf("%q is not a valid ticker symbol", value))
	}
}

// maxSymbols bounds the universe a single request may name.
const maxSymbols = 50

// Symbols validates a ticker list: non-empty, no duplicates, every
// entry a valid symbol, and no more than maxSymbols in total.
func (v *Validator) Symbols(field string, values []string) {
	if len(values) == 0 {
		v.AddError(field, "at least one symbol is required")
		return
	}
	if len(values) > maxSymbols {
		v.AddError(field, fmt.Sprintf("must contain at most %d symbols", maxSymbols))
		return
	}
	seen := make(map[string]bool, len(values))
	for _, symbol := range values {
		v.Symbol(field, symbol)
		if seen[symbol] {
			v.AddError(field, fmt.Sprintf("%q appears more than once", symbol))
		}
		seen[symbol] = true
	}
}

// frequencySpellings lists the accepted execution frequency inputs. The
// repository coerces unknown spellings to a default; validating here
// turns a typo into a 400 instead of a silently different schedule.
var frequencySpellings = []string{
	"1m", "1min",
	"5m", "5min",
	"15m", "15min",
	"30m", "30min",
	"1h", "60m", "1hour",
}

// Frequency validates an execution frequency string. Empty is allowed
// and means the default.
func (v *Validator) Frequency(field, value string) {
	if value == "" {
		return
	}
	v.OneOf(field, strings.ToLower(value), frequencySpellings)
}

// Capital bounds for deployments and backtests.
const (
	minCapital = 100
	maxCapital = 10_000_000
)

// DeploymentValidator validates a create-deployment request. The
// strategy payload itself goes through the spec schema separately.
type DeploymentValidator struct {
	*Validator
}

// NewDeploymentValidator creates a validator for deployment requests
func NewDeploymentValidator() *DeploymentValidator {
	return &DeploymentValidator{Validator: NewValidator()}
}

// ValidateName bounds the deployment name. Empty is allowed; the
// handler falls back to the strategy name.
func (v *DeploymentValidator) ValidateName(name string) {
	v.MaxLength("name", name, 200)
}

// ValidateInitialCapital validates the deployment's starting cash.
func (v *DeploymentValidator) ValidateInitialCapital(capital float64) {
	v.MinValue("initial_capital", capital, minCapital)
	v.MaxValue("initial_capital", capital, maxCapital)
}

// ValidateMaxPositionSize validates the optional per-position dollar
// cap against the deployment's capital.
func (v *DeploymentValidator) ValidateMaxPositionSize(size *float64, capital float64) {
	if size == nil {
		return
	}
	v.Positive("max_position_size", *size)
	if capital > 0 {
		v.MaxValue("max_position_size", *size, capital)
	}
}

// ValidateDailyLossLimit validates the optional daily loss cutoff
// against the deployment's capital.
func (v *DeploymentValidator) ValidateDailyLossLimit(limit *float64, capital float64) {
	if limit == nil {
		return
	}
	v.Positive("daily_loss_limit", *limit)
	if capital > 0 {
		v.MaxValue("daily_loss_limit", *limit, capital)
	}
}

// maxBacktestDays bounds the lookback window, roughly ten years.
const maxBacktestDays = 3650

// BacktestValidator validates a synchronous backtest request.
type BacktestValidator struct {
	*Validator
}

// NewBacktestValidator creates a validator for backtest requests
func NewBacktestValidator() *BacktestValidator {
	return &BacktestValidator{Validator: NewValidator()}
}

// ValidateDays validates the lookback window. Zero means the default.
func (v *BacktestValidator) ValidateDays(days int) {
	if days == 0 {
		return
	}
	v.MinValue("days", float64(days), 1)
	v.MaxValue("days", float64(days), maxBacktestDays)
}

// ValidateInitialCapital validates the starting cash. Zero means the
// default.
func (v *BacktestValidator) ValidateInitialCapital(capital float64) {
	if capital == 0 {
		return
	}
	v.MinValue("initial_capital", capital, minCapital)
	v.MaxValue("initial_capital", capital, maxCapital)
}

// SanitizeSymbol normalizes a user-supplied ticker: uppercase with all
// whitespace stripped. Validation happens separately.
func SanitizeSymbol(symbol string) string {
	symbol = strings.ToUpper(symbol)
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '\t' {
			return -1
		}
		return r
	}, symbol)
}
