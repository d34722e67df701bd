package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestConvertTradeSide tests the ConvertTradeSide function
func TestConvertTradeSide(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected TradeSide
	}{
		{
			name:     "Lowercase buy",
			input:    "buy",
			expected: TradeSideBuy,
		},
		{
			name:     "Lowercase sell",
			input:    "sell",
			expected: TradeSideSell,
		},
		{
			name:     "Uppercase SELL",
			input:    "SELL",
			expected: TradeSideSell,
		},
		{
			name:     "Mixed case Buy",
			input:    "Buy",
			expected: TradeSideBuy,
		},
		{
			name:     "Unknown value defaults to buy",
			input:    "short",
			expected: TradeSideBuy,
		},
		{
			name:     "Empty string defaults to buy",
			input:    "",
			expected: TradeSideBuy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ConvertTradeSide(tt.input))
		})
	}
}

// TestConvertTradeStatus tests the ConvertTradeStatus function
func TestConvertTradeStatus(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected TradeStatus
	}{
		{
			name:     "Pending",
			input:    "pending",
			expected: TradeStatusPending,
		},
		{
			name:     "Alpaca new maps to pending",
			input:    "new",
			expected: TradeStatusPending,
		},
		{
			name:     "Alpaca accepted maps to pending",
			input:    "accepted",
			expected: TradeStatusPending,
		},
		{
			name:     "Partially filled",
			input:    "partially_filled",
			expected: TradeStatusPartiallyFilled,
		},
		{
			name:     "Filled",
			input:    "filled",
			expected: TradeStatusFilled,
		},
		{
			name:     "Uppercase FILLED",
			input:    "FILLED",
			expected: TradeStatusFilled,
		},
		{
			name:     "British cancelled",
			input:    "cancelled",
			expected: TradeStatusCancelled,
		},
		{
			name:     "American canceled",
			input:    "canceled",
			expected: TradeStatusCancelled,
		},
		{
			name:     "Expired maps to cancelled",
			input:    "expired",
			expected: TradeStatusCancelled,
		},
		{
			name:     "Rejected",
			input:    "rejected",
			expected: TradeStatusRejected,
		},
		{
			name:     "Unknown value defaults to pending",
			input:    "teleported",
			expected: TradeStatusPending,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ConvertTradeStatus(tt.input))
		})
	}
}

// TestTradeStatusIsTerminal tests that terminal statuses are frozen
func TestTradeStatusIsTerminal(t *testing.T) {
	assert.False(t, TradeStatusPending.IsTerminal())
	assert.False(t, TradeStatusPartiallyFilled.IsTerminal())
	assert.True(t, TradeStatusFilled.IsTerminal())
	assert.True(t, TradeStatusCancelled.IsTerminal())
	assert.True(t, TradeStatusRejected.IsTerminal())
}

// TestTradeSideConstants tests that side constants are defined correctly
func TestTradeSideConstants(t *testing.T) {
	assert.Equal(t, TradeSide("buy"), TradeSideBuy)
	assert.Equal(t, TradeSide("sell"), TradeSideSell)
}
