package strategy

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// Normalize coerces an untrusted strategy document into a validated Spec.
// It applies enum coercion, percentage scaling (|v| > 1 divided by 100 in
// the exit and risk groups), stop-loss sign normalization, the structural
// rewrite that moves loose entry-condition keys under parameters, and
// top-level parameter synchronization (top-level value wins). The returned
// error is a ValidationErrors enumerating every offending field.
func Normalize(raw map[string]interface{}) (*Spec, error) {
	if len(raw) == 0 {
		return nil, ValidationErrors{{Field: "spec", Message: "strategy document is empty"}}
	}

	s := &Spec{
		SchemaVersion: stringField(raw, "schema_version"),
		Name:          strings.TrimSpace(stringField(raw, "name")),
		Description:   stringField(raw, "description"),
	}
	if s.SchemaVersion == "" {
		s.SchemaVersion = SchemaVersion
	}

	s.Assets = normalizeAssets(raw)

	ec := mapField(raw, "entry_conditions")
	if rawSignal := stringField(raw, "entry_signal"); rawSignal != "" {
		s.EntrySignal = ConvertSignalType(rawSignal)
	} else if ecSignal := stringField(ec, "signal"); ecSignal != "" {
		s.EntrySignal = ConvertSignalType(ecSignal)
	} else {
		s.EntrySignal = SignalCustom
	}
	s.EntryConditions = normalizeEntryConditions(raw, ec, s.EntrySignal)

	s.Exit = normalizeExit(raw)
	s.Risk = normalizeRisk(raw)
	s.DataSources = normalizeDataSources(raw)

	syncTopLevel(raw, s)

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// ParseSpec decodes a raw JSON strategy document and normalizes it.
func ParseSpec(data []byte) (*Spec, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, ValidationErrors{{Field: "spec", Message: "invalid JSON: " + err.Error()}}
	}
	return Normalize(raw)
}

// Renormalize re-runs normalization on an already-typed spec, e.g. after
// loading from storage or after an agent mutated it in place.
func Renormalize(s *Spec) (*Spec, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, ValidationErrors{{Field: "spec", Message: err.Error()}}
	}
	return ParseSpec(data)
}

func normalizeAssets(raw map[string]interface{}) []string {
	var symbols []string
	for _, key := range []string{"assets", "asset", "symbols", "symbol"} {
		if got := stringSliceField(raw, key); len(got) > 0 {
			symbols = got
			break
		}
	}

	seen := make(map[string]bool, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym == "" || seen[sym] {
			continue
		}
		seen[sym] = true
		out = append(out, sym)
	}
	return out
}

// Structural keys of entry_conditions; everything else found at its top
// level is an option and gets moved under parameters.
var entryStructuralKeys = map[string]bool{
	"signal":      true,
	"parameters":  true,
	"description": true,
}

func normalizeEntryConditions(raw, ec map[string]interface{}, signal SignalType) EntryConditions {
	params := make(map[string]interface{})

	if nested := mapField(ec, "parameters"); nested != nil {
		for k, v := range nested {
			params[k] = coerceParam(v)
		}
	}

	// Loose keys at the entry_conditions top level are parameters.
	for k, v := range ec {
		if entryStructuralKeys[k] {
			continue
		}
		if _, exists := params[k]; exists {
			continue
		}
		log.Debug().Str("key", k).Msg("Moving loose entry condition key under parameters")
		params[k] = coerceParam(v)
	}

	// The flat entry_parameters form is an accepted alias.
	if alias := mapField(raw, "entry_parameters"); alias != nil {
		for k, v := range alias {
			if _, exists := params[k]; exists {
				continue
			}
			params[k] = coerceParam(v)
		}
	}

	if len(params) == 0 {
		params = nil
	}
	return EntryConditions{Signal: signal, Parameters: params}
}

func normalizeExit(raw map[string]interface{}) ExitRules {
	e := mapField(raw, "exit")
	if e == nil {
		e = mapField(raw, "exit_conditions")
	}

	out := ExitRules{TakeProfitPctShares: 1.0, StopLossPctShares: 1.0}
	if v, ok := floatField(e, "take_profit"); ok {
		out.TakeProfit = scalePercent(v)
	}
	if v, ok := floatField(e, "stop_loss"); ok {
		out.StopLoss = scalePercent(math.Abs(v))
	}
	if v, ok := floatField(e, "take_profit_pct_shares"); ok {
		out.TakeProfitPctShares = scalePercent(v)
	}
	if v, ok := floatField(e, "stop_loss_pct_shares"); ok {
		out.StopLossPctShares = scalePercent(v)
	}
	out.CustomExit = stringField(e, "custom_exit")
	return out
}

func normalizeRisk(raw map[string]interface{}) RiskRules {
	r := mapField(raw, "risk")

	out := RiskRules{
		PositionSize: 0.1,
		MaxPositions: 3,
		Allocation:   ConvertAllocationMethod(stringField(r, "allocation")),
	}
	if v, ok := floatField(r, "position_size"); ok {
		out.PositionSize = scalePercent(v)
	}
	// Defaults apply only when the field is absent; explicit invalid
	// values surface as validation errors.
	if v, ok := floatField(r, "max_positions"); ok {
		out.MaxPositions = int(v)
	}
	return out
}

func normalizeDataSources(raw map[string]interface{}) []string {
	sources := stringSliceField(raw, "data_sources")
	if len(sources) == 0 {
		sources = stringSliceField(raw, "data_source")
	}

	seen := make(map[string]bool, len(sources))
	out := make([]string, 0, len(sources))
	for _, src := range sources {
		src = strings.ToLower(strings.TrimSpace(src))
		if src == "" || seen[src] {
			continue
		}
		seen[src] = true
		out = append(out, src)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// syncTopLevel mirrors convenience fields generators emit at the document
// top level into the nested slots the evaluators read. The top-level value
// wins when both are set and differ.
func syncTopLevel(raw map[string]interface{}, s *Spec) {
	setParam := func(key string, v interface{}) {
		if s.EntryConditions.Parameters == nil {
			s.EntryConditions.Parameters = make(map[string]interface{})
		}
		s.EntryConditions.Parameters[key] = v
	}

	if v, ok := floatField(raw, "rsi_threshold"); ok && s.EntrySignal == SignalRSI {
		setParam("threshold", v)
	}
	// Oversold/buy bounds drive the entry; overbought/sell bounds drive
	// the signal exit. They must not collide in one slot.
	for _, key := range []string{"rsi_oversold", "rsi_buy"} {
		if v, ok := floatField(raw, key); ok && s.EntrySignal == SignalRSI {
			setParam("threshold", v)
			setParam("comparison", "below")
		}
	}
	for _, key := range []string{"rsi_overbought", "rsi_sell"} {
		if v, ok := floatField(raw, key); ok && s.EntrySignal == SignalRSI {
			setParam("sell_threshold", v)
		}
	}
	if v, ok := floatField(raw, "sentiment_threshold"); ok && s.EntrySignal == SignalSentiment {
		setParam("threshold", v)
	}
	if v, ok := floatField(raw, "take_profit"); ok {
		s.Exit.TakeProfit = scalePercent(v)
	}
	if v, ok := floatField(raw, "stop_loss"); ok {
		s.Exit.StopLoss = scalePercent(math.Abs(v))
	}
	if v, ok := floatField(raw, "take_profit_pct_shares"); ok {
		s.Exit.TakeProfitPctShares = scalePercent(v)
	}
	if v, ok := floatField(raw, "stop_loss_pct_shares"); ok {
		s.Exit.StopLossPctShares = scalePercent(v)
	}
	if v, ok := floatField(raw, "position_size"); ok {
		s.Risk.PositionSize = scalePercent(v)
	}
}

// scalePercent converts whole-number percentages to decimal fractions.
// Values already in [-1, 1] pass through unchanged.
func scalePercent(v float64) float64 {
	if math.Abs(v) > 1 {
		return v / 100
	}
	return v
}

// coerceParam converts numeric-looking parameter values to float64 so
// evaluators read one representation.
func coerceParam(v interface{}) interface{} {
	switch v.(type) {
	case string, int, int32, int64, float32, json.Number:
		if f, ok := toFloat(v); ok {
			return f
		}
	}
	return v
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func stringField(m map[string]interface{}, key string) string {
	if m == nil {
		return ""
	}
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

func floatField(m map[string]interface{}, key string) (float64, bool) {
	if m == nil {
		return 0, false
	}
	v, present := m[key]
	if !present {
		return 0, false
	}
	return toFloat(v)
}

func mapField(m map[string]interface{}, key string) map[string]interface{} {
	if m == nil {
		return nil
	}
	if nested, ok := m[key].(map[string]interface{}); ok {
		return nested
	}
	return nil
}

func stringSliceField(m map[string]interface{}, key string) []string {
	if m == nil {
		return nil
	}
	switch v := m[key].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	default:
		return nil
	}
}
