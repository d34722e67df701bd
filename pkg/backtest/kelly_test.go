package backtest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func kellySummary(trades, winners int, avgWin, avgLoss float64) Summary {
	return Summary{
		TotalTrades:   trades,
		WinningTrades: winners,
		LosingTrades:  trades - winners,
		WinRate:       float64(winners) / float64(trades) * 100,
		AverageWin:    avgWin,
		AverageLoss:   avgLoss,
	}
}

func TestSuggestPositionSize_TooFewTrades(t *testing.T) {
	s := kellySummary(10, 6, 500, -250)

	got := SuggestPositionSize(s, 0.5)
	assert.False(t, got.Reliable)
	assert.Equal(t, kellyDefaultSize, got.SuggestedFraction)
	assert.Zero(t, got.FullKelly)
}

func TestSuggestPositionSize_PositiveEdge(t *testing.T) {
	// 60% win rate, 2:1 win/loss ratio: f* = (0.6*2 - 0.4) / 2 = 0.4.
	s := kellySummary(100, 60, 500, -250)

	got := SuggestPositionSize(s, 0.5)
	assert.True(t, got.Reliable)
	assert.InDelta(t, 0.4, got.FullKelly, 1e-9)
	assert.InDelta(t, 2.0, got.WinLossRatio, 1e-9)
	assert.InDelta(t, 0.2, got.SuggestedFraction, 1e-9, "half Kelly of 0.4")
}

func TestSuggestPositionSize_CapsAggressiveEdge(t *testing.T) {
	// 90% win rate with 3:1 payoff wants far more than the cap allows.
	s := kellySummary(200, 180, 900, -300)

	got := SuggestPositionSize(s, 1.0)
	assert.Greater(t, got.FullKelly, kellyCapSize)
	assert.Equal(t, kellyCapSize, got.SuggestedFraction)
}

func TestSuggestPositionSize_NegativeEdgeFloors(t *testing.T) {
	// 30% win rate at 1:1 payoff is a losing game.
	s := kellySummary(100, 30, 200, -200)

	got := SuggestPositionSize(s, 0.5)
	assert.True(t, got.Reliable)
	assert.Negative(t, got.FullKelly)
	assert.Equal(t, kellyFloorSize, got.SuggestedFraction)
	assert.Contains(t, got.Recommendation, "No edge")
}

func TestSuggestPositionSize_AllWinnersFallsBack(t *testing.T) {
	// A 100% win rate has no loss denominator; the criterion is
	// undefined and the default applies.
	s := kellySummary(50, 50, 400, 0)

	got := SuggestPositionSize(s, 0.5)
	assert.False(t, got.Reliable)
	assert.Equal(t, kellyDefaultSize, got.SuggestedFraction)
}

func TestSuggestPositionSize_InvalidFractionUsesHalfKelly(t *testing.T) {
	s := kellySummary(100, 60, 500, -250)

	zero := SuggestPositionSize(s, 0)
	half := SuggestPositionSize(s, 0.5)
	assert.Equal(t, half.SuggestedFraction, zero.SuggestedFraction)
}

func TestKellyRecommendation_Bands(t *testing.T) {
	assert.Contains(t, kellyRecommendation(-0.1), "No edge")
	assert.Contains(t, kellyRecommendation(0.04), "Conservative")
	assert.Contains(t, kellyRecommendation(0.08), "Standard")
	assert.Contains(t, kellyRecommendation(0.5), "verify the sample")
}
