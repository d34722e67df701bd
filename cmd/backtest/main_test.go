package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/stockfunk/pkg/backtest"
)

func TestParseParameters(t *testing.T) {
	params, err := parseParameters("take_profit=3,5,8;stop_loss=2,4")
	require.NoError(t, err)
	require.Len(t, params, 2)

	assert.Equal(t, "take_profit", params[0].Name)
	assert.Equal(t, []float64{3, 5, 8}, params[0].Values)
	assert.Equal(t, "stop_loss", params[1].Name)
	assert.Equal(t, []float64{2, 4}, params[1].Values)
}

func TestParseParametersTolerantOfWhitespace(t *testing.T) {
	params, err := parseParameters(" rsi_period = 10, 14 ; ")
	require.NoError(t, err)
	require.Len(t, params, 1)
	assert.Equal(t, "rsi_period", params[0].Name)
	assert.Equal(t, []float64{10, 14}, params[0].Values)
}

func TestParseParametersErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"missing values", "take_profit"},
		{"bad number", "take_profit=abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseParameters(tt.input)
			assert.Error(t, err)
		})
	}
}

func TestResolveObjective(t *testing.T) {
	for _, name := range []string{"sharpe", "return", "profit_factor", "drawdown", "balanced", "SHARPE"} {
		obj, err := resolveObjective(name)
		require.NoError(t, err, name)
		assert.NotNil(t, obj, name)
	}

	_, err := resolveObjective("alpha")
	assert.Error(t, err)
}

func TestObjectiveOrdering(t *testing.T) {
	strong := backtest.Summary{SharpeRatio: 2.0, TotalReturnPct: 30, ProfitFactor: 2.5, WinRate: 60, MaxDrawdownPct: 5}
	weak := backtest.Summary{SharpeRatio: 0.3, TotalReturnPct: 4, ProfitFactor: 1.1, WinRate: 45, MaxDrawdownPct: 20}

	for _, name := range []string{"sharpe", "return", "profit_factor", "drawdown", "balanced"} {
		obj, err := resolveObjective(name)
		require.NoError(t, err)
		assert.Greater(t, obj(strong), obj(weak), name)
	}
}
