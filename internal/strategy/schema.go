package strategy

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError contains details about a single validation failure
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(msgs, "; "))
}

// ErrInvalidSchema is returned when the schema version is not supported
var ErrInvalidSchema = errors.New("invalid or unsupported schema version")

// ErrMissingRequiredField is returned when a required field is missing
var ErrMissingRequiredField = errors.New("missing required field")

// SupportedSchemaVersions lists all supported schema versions
var SupportedSchemaVersions = []string{"1.0"}

// Validate performs comprehensive validation on a normalized spec.
// Returns nil if valid, or ValidationErrors enumerating every issue found.
func (s *Spec) Validate() error {
	var errs ValidationErrors

	if err := s.validateMetadata(); err != nil {
		errs = append(errs, err...)
	}
	if err := s.validateAssets(); err != nil {
		errs = append(errs, err...)
	}
	if err := s.validateEntry(); err != nil {
		errs = append(errs, err...)
	}
	if err := s.validateExit(); err != nil {
		errs = append(errs, err...)
	}
	if err := s.validateRisk(); err != nil {
		errs = append(errs, err...)
	}
	if err := s.validateDataSources(); err != nil {
		errs = append(errs, err...)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (s *Spec) validateMetadata() ValidationErrors {
	var errs ValidationErrors

	if s.SchemaVersion == "" {
		errs = append(errs, ValidationError{
			Field:   "schema_version",
			Message: "schema version is required",
		})
	} else if !IsVersionSupported(s.SchemaVersion) {
		errs = append(errs, ValidationError{
			Field:   "schema_version",
			Message: fmt.Sprintf("unsupported schema version %s, supported: %v", s.SchemaVersion, SupportedSchemaVersions),
		})
	}

	if s.Name == "" {
		errs = append(errs, ValidationError{
			Field:   "name",
			Message: "strategy name is required",
		})
	} else if len(s.Name) > 100 {
		errs = append(errs, ValidationError{
			Field:   "name",
			Message: "strategy name must be 100 characters or less",
		})
	}

	if len(s.Description) > 2000 {
		errs = append(errs, ValidationError{
			Field:   "description",
			Message: "description must be 2000 characters or less",
		})
	}

	return errs
}

func (s *Spec) validateAssets() ValidationErrors {
	var errs ValidationErrors

	if len(s.Assets) == 0 {
		errs = append(errs, ValidationError{
			Field:   "assets",
			Message: "at least one asset is required",
		})
	}
	if len(s.Assets) > 20 {
		errs = append(errs, ValidationError{
			Field:   "assets",
			Message: "maximum 20 assets allowed",
		})
	}
	for i, a := range s.Assets {
		if strings.TrimSpace(a) == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("assets[%d]", i),
				Message: "asset symbol cannot be empty",
			})
		}
	}

	return errs
}

func (s *Spec) validateEntry() ValidationErrors {
	var errs ValidationErrors

	switch s.EntrySignal {
	case SignalRSI, SignalMACD, SignalSMA, SignalSentiment, SignalNews, SignalPrice, SignalCustom:
	default:
		errs = append(errs, ValidationError{
			Field:   "entry_signal",
			Message: fmt.Sprintf("unknown entry signal %q", s.EntrySignal),
		})
	}

	if s.EntryConditions.Signal != "" && s.EntryConditions.Signal != s.EntrySignal {
		errs = append(errs, ValidationError{
			Field:   "entry_conditions.signal",
			Message: fmt.Sprintf("signal %q does not match entry_signal %q", s.EntryConditions.Signal, s.EntrySignal),
		})
	}

	params := s.EntryConditions.Parameters
	switch s.EntrySignal {
	case SignalRSI:
		if v, ok := toFloat(params["threshold"]); ok && (v < 0 || v > 100) {
			errs = append(errs, ValidationError{
				Field:   "entry_conditions.parameters.threshold",
				Message: "rsi threshold must be between 0 and 100",
			})
		}
		if cmp, ok := params["comparison"].(string); ok {
			switch strings.ToLower(cmp) {
			case "below", "above":
			default:
				errs = append(errs, ValidationError{
					Field:   "entry_conditions.parameters.comparison",
					Message: "comparison must be below or above",
				})
			}
		}
		if v, ok := toFloat(params["period"]); ok && v < 1 {
			errs = append(errs, ValidationError{
				Field:   "entry_conditions.parameters.period",
				Message: "rsi period must be at least 1",
			})
		}
	case SignalMACD:
		if c, ok := params["crossover"].(string); ok {
			switch strings.ToLower(c) {
			case "bullish", "bearish":
			default:
				errs = append(errs, ValidationError{
					Field:   "entry_conditions.parameters.crossover",
					Message: "crossover must be bullish or bearish",
				})
			}
		}
	case SignalSMA:
		fast, fok := toFloat(params["fast_period"])
		slow, sok := toFloat(params["slow_period"])
		if fok && fast < 1 {
			errs = append(errs, ValidationError{
				Field:   "entry_conditions.parameters.fast_period",
				Message: "fast period must be at least 1",
			})
		}
		if sok && slow < 1 {
			errs = append(errs, ValidationError{
				Field:   "entry_conditions.parameters.slow_period",
				Message: "slow period must be at least 1",
			})
		}
		if fok && sok && fast >= slow {
			errs = append(errs, ValidationError{
				Field:   "entry_conditions.parameters.fast_period",
				Message: "fast period must be less than slow period",
			})
		}
	case SignalSentiment:
		if v, ok := toFloat(params["threshold"]); ok && (v < -1 || v > 1) {
			errs = append(errs, ValidationError{
				Field:   "entry_conditions.parameters.threshold",
				Message: "sentiment threshold must be between -1 and 1",
			})
		}
		if src, ok := params["source"].(string); ok && src != "" && !isKnownSource(src) {
			errs = append(errs, ValidationError{
				Field:   "entry_conditions.parameters.source",
				Message: fmt.Sprintf("unknown data source %q, supported: %v", src, KnownDataSources),
			})
		}
	case SignalPrice:
		if trig, ok := params["trigger"].(string); ok {
			switch strings.ToLower(trig) {
			case "any", "breakout":
			default:
				errs = append(errs, ValidationError{
					Field:   "entry_conditions.parameters.trigger",
					Message: "trigger must be any or breakout",
				})
			}
		}
	}

	return errs
}

func (s *Spec) validateExit() ValidationErrors {
	var errs ValidationErrors

	if s.Exit.TakeProfit < 0 || s.Exit.TakeProfit > 1 {
		errs = append(errs, ValidationError{
			Field:   "exit.take_profit",
			Message: "take_profit must be a decimal fraction between 0 and 1",
		})
	}
	if s.Exit.StopLoss < 0 || s.Exit.StopLoss > 1 {
		errs = append(errs, ValidationError{
			Field:   "exit.stop_loss",
			Message: "stop_loss must be a decimal fraction between 0 and 1",
		})
	}
	if s.Exit.TakeProfitPctShares < 0 || s.Exit.TakeProfitPctShares > 1 {
		errs = append(errs, ValidationError{
			Field:   "exit.take_profit_pct_shares",
			Message: "take_profit_pct_shares must be between 0 and 1",
		})
	}
	if s.Exit.StopLossPctShares < 0 || s.Exit.StopLossPctShares > 1 {
		errs = append(errs, ValidationError{
			Field:   "exit.stop_loss_pct_shares",
			Message: "stop_loss_pct_shares must be between 0 and 1",
		})
	}
	// A partial take-profit without a take-profit level can never fire.
	if s.IsPartialExit() && s.Exit.TakeProfit == 0 {
		errs = append(errs, ValidationError{
			Field:   "exit.take_profit",
			Message: "partial exit requires a take_profit level",
		})
	}

	return errs
}

func (s *Spec) validateRisk() ValidationErrors {
	var errs ValidationErrors

	if s.Risk.PositionSize <= 0 || s.Risk.PositionSize > 1 {
		errs = append(errs, ValidationError{
			Field:   "risk.position_size",
			Message: "position_size must be a decimal fraction between 0 and 1",
		})
	}
	if s.Risk.MaxPositions < 1 {
		errs = append(errs, ValidationError{
			Field:   "risk.max_positions",
			Message: "max_positions must be at least 1",
		})
	}
	switch s.Risk.Allocation {
	case AllocationEqual, AllocationSignalWeighted, AllocationDynamicTrending, AllocationMarketCapWeighted:
	default:
		errs = append(errs, ValidationError{
			Field:   "risk.allocation",
			Message: fmt.Sprintf("unknown allocation method %q", s.Risk.Allocation),
		})
	}

	return errs
}

func (s *Spec) validateDataSources() ValidationErrors {
	var errs ValidationErrors

	for i, src := range s.DataSources {
		if !isKnownSource(src) {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("data_sources[%d]", i),
				Message: fmt.Sprintf("unknown data source %q, supported: %v", src, KnownDataSources),
			})
		}
	}

	return errs
}

func isKnownSource(src string) bool {
	src = strings.ToLower(strings.TrimSpace(src))
	for _, s := range KnownDataSources {
		if s == src {
			return true
		}
	}
	return false
}

// ValidateQuick performs a fast structural check without per-parameter
// range validation. Used on hot paths that re-load already-validated specs.
func (s *Spec) ValidateQuick() error {
	if s.SchemaVersion == "" {
		return fmt.Errorf("%w: schema_version", ErrMissingRequiredField)
	}
	if !IsVersionSupported(s.SchemaVersion) {
		return fmt.Errorf("%w: %s", ErrInvalidSchema, s.SchemaVersion)
	}
	if s.Name == "" {
		return fmt.Errorf("%w: name", ErrMissingRequiredField)
	}
	if len(s.Assets) == 0 {
		return fmt.Errorf("%w: assets", ErrMissingRequiredField)
	}
	return nil
}
