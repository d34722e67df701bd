package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRaw() map[string]interface{} {
	return map[string]interface{}{
		"name":         "RSI Mean Reversion",
		"assets":       []interface{}{"AAPL"},
		"entry_signal": "rsi",
		"entry_conditions": map[string]interface{}{
			"signal": "rsi",
			"parameters": map[string]interface{}{
				"threshold":  30.0,
				"comparison": "below",
			},
		},
		"exit": map[string]interface{}{
			"take_profit": 0.05,
			"stop_loss":   0.02,
		},
		"risk": map[string]interface{}{
			"position_size": 0.1,
			"max_positions": 3,
			"allocation":    "equal",
		},
	}
}

// =============================================================================
// Percentage Normalization Tests
// =============================================================================

func TestNormalize_PercentScaling(t *testing.T) {
	tests := []struct {
		name   string
		modify func(raw map[string]interface{})
		check  func(t *testing.T, s *Spec)
	}{
		{
			name: "negative whole-number stop loss",
			modify: func(raw map[string]interface{}) {
				raw["exit"].(map[string]interface{})["stop_loss"] = -10.0
			},
			check: func(t *testing.T, s *Spec) {
				assert.Equal(t, 0.10, s.Exit.StopLoss)
			},
		},
		{
			name: "negative decimal stop loss",
			modify: func(raw map[string]interface{}) {
				raw["exit"].(map[string]interface{})["stop_loss"] = -0.02
			},
			check: func(t *testing.T, s *Spec) {
				assert.Equal(t, 0.02, s.Exit.StopLoss)
			},
		},
		{
			name: "whole-number take profit",
			modify: func(raw map[string]interface{}) {
				raw["exit"].(map[string]interface{})["take_profit"] = 5.0
			},
			check: func(t *testing.T, s *Spec) {
				assert.Equal(t, 0.05, s.Exit.TakeProfit)
			},
		},
		{
			name: "whole-number take_profit_pct_shares",
			modify: func(raw map[string]interface{}) {
				raw["exit"].(map[string]interface{})["take_profit_pct_shares"] = 50.0
			},
			check: func(t *testing.T, s *Spec) {
				assert.Equal(t, 0.5, s.Exit.TakeProfitPctShares)
			},
		},
		{
			name: "whole-number position size",
			modify: func(raw map[string]interface{}) {
				raw["risk"].(map[string]interface{})["position_size"] = 15.0
			},
			check: func(t *testing.T, s *Spec) {
				assert.Equal(t, 0.15, s.Risk.PositionSize)
			},
		},
		{
			name: "decimal values pass through",
			modify: func(raw map[string]interface{}) {
				raw["exit"].(map[string]interface{})["take_profit"] = 0.07
				raw["exit"].(map[string]interface{})["stop_loss"] = 0.03
			},
			check: func(t *testing.T, s *Spec) {
				assert.Equal(t, 0.07, s.Exit.TakeProfit)
				assert.Equal(t, 0.03, s.Exit.StopLoss)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := validRaw()
			tt.modify(raw)

			s, err := Normalize(raw)
			require.NoError(t, err)
			tt.check(t, s)
		})
	}
}

func TestNormalize_NormalizationLaws(t *testing.T) {
	// Any spec that survives Normalize has decimal-fraction percentages.
	raws := []map[string]interface{}{
		validRaw(),
		func() map[string]interface{} {
			raw := validRaw()
			raw["exit"] = map[string]interface{}{
				"take_profit":            8.0,
				"stop_loss":              -10.0,
				"take_profit_pct_shares": 50.0,
				"stop_loss_pct_shares":   100.0,
			}
			raw["risk"] = map[string]interface{}{"position_size": 25.0, "max_positions": 2}
			return raw
		}(),
	}

	for _, raw := range raws {
		s, err := Normalize(raw)
		require.NoError(t, err)

		assert.GreaterOrEqual(t, s.Exit.StopLoss, 0.0)
		assert.LessOrEqual(t, s.Exit.StopLoss, 1.0)
		assert.LessOrEqual(t, s.Exit.TakeProfit, 1.0)
		assert.GreaterOrEqual(t, s.Exit.TakeProfitPctShares, 0.0)
		assert.LessOrEqual(t, s.Exit.TakeProfitPctShares, 1.0)
		assert.Greater(t, s.Risk.PositionSize, 0.0)
		assert.LessOrEqual(t, s.Risk.PositionSize, 1.0)
	}
}

// =============================================================================
// Enum Coercion Tests
// =============================================================================

func TestConvertSignalType(t *testing.T) {
	tests := []struct {
		input    string
		expected SignalType
	}{
		{"rsi", SignalRSI},
		{"RSI", SignalRSI},
		{" macd ", SignalMACD},
		{"sma", SignalSMA},
		{"moving_average", SignalSMA},
		{"sentiment", SignalSentiment},
		{"social", SignalSentiment},
		{"news", SignalNews},
		{"price", SignalPrice},
		{"price_action", SignalPrice},
		{"custom", SignalCustom},
		{"", SignalCustom},
		{"bollinger_bands", SignalCustom},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ConvertSignalType(tt.input))
		})
	}
}

func TestConvertAllocationMethod(t *testing.T) {
	tests := []struct {
		input    string
		expected AllocationMethod
	}{
		{"equal", AllocationEqual},
		{"Equal_Weight", AllocationEqual},
		{"signal_weighted", AllocationSignalWeighted},
		{"dynamic_trending", AllocationDynamicTrending},
		{"market_cap_weighted", AllocationMarketCapWeighted},
		{"", AllocationEqual},
		{"whatever", AllocationEqual},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ConvertAllocationMethod(tt.input))
		})
	}
}

func TestNormalize_UnknownSignalFallsThroughToCustom(t *testing.T) {
	raw := validRaw()
	raw["entry_signal"] = "bollinger_squeeze"
	delete(raw, "entry_conditions")

	s, err := Normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, SignalCustom, s.EntrySignal)
	assert.Equal(t, SignalCustom, s.EntryConditions.Signal)
}

// =============================================================================
// Structural Rewrite Tests
// =============================================================================

func TestNormalize_LooseEntryKeysMoveUnderParameters(t *testing.T) {
	raw := validRaw()
	raw["entry_conditions"] = map[string]interface{}{
		"signal":     "rsi",
		"threshold":  25.0,
		"comparison": "below",
		"period":     10,
	}

	s, err := Normalize(raw)
	require.NoError(t, err)

	assert.Equal(t, 25.0, s.Param("threshold", 0))
	assert.Equal(t, "below", s.ParamString("comparison", ""))
	assert.Equal(t, 10.0, s.Param("period", 0))
}

func TestNormalize_ExplicitParametersWinOverLooseKeys(t *testing.T) {
	raw := validRaw()
	raw["entry_conditions"] = map[string]interface{}{
		"signal":    "rsi",
		"threshold": 99.0,
		"parameters": map[string]interface{}{
			"threshold": 30.0,
		},
	}

	s, err := Normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, 30.0, s.Param("threshold", 0))
}

func TestNormalize_EntryParametersAlias(t *testing.T) {
	raw := validRaw()
	delete(raw, "entry_conditions")
	raw["entry_parameters"] = map[string]interface{}{
		"threshold":  40.0,
		"comparison": "below",
	}

	s, err := Normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, 40.0, s.Param("threshold", 0))
	assert.Equal(t, "below", s.ParamString("comparison", ""))
}

func TestNormalize_SignalFromEntryConditionsWhenTopLevelMissing(t *testing.T) {
	raw := validRaw()
	delete(raw, "entry_signal")

	s, err := Normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, SignalRSI, s.EntrySignal)
}

// =============================================================================
// Asset Normalization Tests
// =============================================================================

func TestNormalize_Assets(t *testing.T) {
	tests := []struct {
		name     string
		modify   func(raw map[string]interface{})
		expected []string
	}{
		{
			name: "singular asset string",
			modify: func(raw map[string]interface{}) {
				delete(raw, "assets")
				raw["asset"] = "aapl"
			},
			expected: []string{"AAPL"},
		},
		{
			name: "symbol alias",
			modify: func(raw map[string]interface{}) {
				delete(raw, "assets")
				raw["symbol"] = "msft"
			},
			expected: []string{"MSFT"},
		},
		{
			name: "list with duplicates and whitespace",
			modify: func(raw map[string]interface{}) {
				raw["assets"] = []interface{}{" aapl", "MSFT", "aapl "}
			},
			expected: []string{"AAPL", "MSFT"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := validRaw()
			tt.modify(raw)

			s, err := Normalize(raw)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, s.Assets)
		})
	}
}

// =============================================================================
// Defaults and Derived-State Tests
// =============================================================================

func TestNormalize_Defaults(t *testing.T) {
	raw := map[string]interface{}{
		"name":         "Minimal",
		"asset":        "AAPL",
		"entry_signal": "price",
	}

	s, err := Normalize(raw)
	require.NoError(t, err)

	assert.Equal(t, SchemaVersion, s.SchemaVersion)
	assert.Equal(t, 1.0, s.Exit.TakeProfitPctShares)
	assert.Equal(t, 1.0, s.Exit.StopLossPctShares)
	assert.Equal(t, 0.1, s.Risk.PositionSize)
	assert.Equal(t, 3, s.Risk.MaxPositions)
	assert.Equal(t, AllocationEqual, s.Risk.Allocation)
}

func TestNormalize_TrailingStopDetection(t *testing.T) {
	tests := []struct {
		name     string
		exit     map[string]interface{}
		trailing bool
		partial  bool
	}{
		{
			name:     "partial take profit with stop loss",
			exit:     map[string]interface{}{"take_profit": 0.05, "take_profit_pct_shares": 0.5, "stop_loss": 0.02},
			trailing: true,
			partial:  true,
		},
		{
			name:     "full exit",
			exit:     map[string]interface{}{"take_profit": 0.05, "stop_loss": 0.02},
			trailing: false,
			partial:  false,
		},
		{
			name:     "partial without stop loss",
			exit:     map[string]interface{}{"take_profit": 0.05, "take_profit_pct_shares": 0.5},
			trailing: false,
			partial:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := validRaw()
			raw["exit"] = tt.exit

			s, err := Normalize(raw)
			require.NoError(t, err)
			assert.Equal(t, tt.trailing, s.HasTrailingStop())
			assert.Equal(t, tt.partial, s.IsPartialExit())
		})
	}
}

// =============================================================================
// Top-Level Parameter Synchronization Tests
// =============================================================================

func TestNormalize_TopLevelWinsOverNested(t *testing.T) {
	raw := validRaw()
	raw["rsi_oversold"] = 25.0 // diverges from nested threshold 30

	s, err := Normalize(raw)
	require.NoError(t, err)

	assert.Equal(t, 25.0, s.Param("threshold", 0))
	assert.Equal(t, "below", s.ParamString("comparison", ""))
}

func TestNormalize_RSIBoundsLandInSeparateSlots(t *testing.T) {
	raw := validRaw()
	raw["rsi_buy"] = 40.0
	raw["rsi_sell"] = 60.0

	s, err := Normalize(raw)
	require.NoError(t, err)

	assert.Equal(t, 40.0, s.Param("threshold", 0), "buy bound drives the entry")
	assert.Equal(t, "below", s.ParamString("comparison", ""))
	assert.Equal(t, 60.0, s.Param("sell_threshold", 0), "sell bound must not clobber the entry threshold")
}

func TestNormalize_TopLevelExitFields(t *testing.T) {
	raw := validRaw()
	raw["take_profit"] = 8.0
	raw["stop_loss"] = -3.0

	s, err := Normalize(raw)
	require.NoError(t, err)

	assert.Equal(t, 0.08, s.Exit.TakeProfit)
	assert.Equal(t, 0.03, s.Exit.StopLoss)
}

func TestNormalize_SentimentThresholdSync(t *testing.T) {
	raw := validRaw()
	raw["entry_signal"] = "sentiment"
	raw["entry_conditions"] = map[string]interface{}{
		"signal":     "sentiment",
		"parameters": map[string]interface{}{"threshold": 0.1, "source": "reddit"},
	}
	raw["sentiment_threshold"] = 0.3

	s, err := Normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, 0.3, s.Param("threshold", 0))
}

// =============================================================================
// Coercion Helper Tests
// =============================================================================

func TestNormalize_StringNumbersCoerce(t *testing.T) {
	raw := validRaw()
	raw["entry_conditions"] = map[string]interface{}{
		"signal": "rsi",
		"parameters": map[string]interface{}{
			"threshold": "35",
			"period":    "14",
		},
	}

	s, err := Normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, 35.0, s.Param("threshold", 0))
	assert.Equal(t, 14.0, s.Param("period", 0))
}

// =============================================================================
// Validation Failure Tests
// =============================================================================

func TestNormalize_ValidationEnumeratesAllFields(t *testing.T) {
	raw := map[string]interface{}{
		"entry_signal": "rsi",
		"risk":         map[string]interface{}{"max_positions": 0},
	}

	_, err := Normalize(raw)
	require.Error(t, err)

	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)

	fields := make(map[string]bool)
	for _, ve := range verrs {
		fields[ve.Field] = true
	}
	assert.True(t, fields["name"])
	assert.True(t, fields["assets"])
	assert.True(t, fields["risk.max_positions"])
}

func TestNormalize_EmptyDocument(t *testing.T) {
	_, err := Normalize(nil)
	assert.Error(t, err)

	_, err = Normalize(map[string]interface{}{})
	assert.Error(t, err)
}

func TestNormalize_PartialExitRequiresTakeProfit(t *testing.T) {
	raw := validRaw()
	raw["exit"] = map[string]interface{}{
		"take_profit_pct_shares": 0.5,
		"stop_loss":              0.02,
	}

	_, err := Normalize(raw)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exit.take_profit")
}

func TestNormalize_UnknownDataSource(t *testing.T) {
	raw := validRaw()
	raw["data_sources"] = []interface{}{"reddit", "bloomberg"}

	_, err := Normalize(raw)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "data_sources[1]")
}

func TestParseSpec(t *testing.T) {
	data := []byte(`{
		"name": "Parsed",
		"asset": "aapl",
		"entry_signal": "rsi",
		"entry_conditions": {"threshold": 30, "comparison": "below"},
		"exit": {"take_profit": 5, "stop_loss": -2},
		"risk": {"position_size": 10}
	}`)

	s, err := ParseSpec(data)
	require.NoError(t, err)

	assert.Equal(t, "Parsed", s.Name)
	assert.Equal(t, []string{"AAPL"}, s.Assets)
	assert.Equal(t, 0.05, s.Exit.TakeProfit)
	assert.Equal(t, 0.02, s.Exit.StopLoss)
	assert.Equal(t, 0.1, s.Risk.PositionSize)
}

func TestParseSpec_InvalidJSON(t *testing.T) {
	_, err := ParseSpec([]byte("not json"))
	assert.Error(t, err)
}

func TestRenormalize_Idempotent(t *testing.T) {
	raw := validRaw()
	raw["exit"].(map[string]interface{})["stop_loss"] = -10.0

	first, err := Normalize(raw)
	require.NoError(t, err)

	second, err := Renormalize(first)
	require.NoError(t, err)

	assert.Equal(t, first.Exit.StopLoss, second.Exit.StopLoss)
	assert.Equal(t, first.Exit.TakeProfit, second.Exit.TakeProfit)
	assert.Equal(t, first.Risk.PositionSize, second.Risk.PositionSize)
	assert.Equal(t, first.Assets, second.Assets)
}
