package backtest

import (
	"github.com/rs/zerolog/log"
)

// Kelly sizing bounds. Full Kelly is aggressive enough to produce
// violent drawdowns, so the suggestion is scaled by a fraction and
// clamped to a sane band before anyone trades on it.
const (
	kellyMinTrades   = 30
	kellyDefaultSize = 0.10
	kellyFloorSize   = 0.01
	kellyCapSize     = 0.25
)

// KellySuggestion is the position-size guidance derived from a
// backtest's closed trades. All fractions are of total capital.
type KellySuggestion struct {
	// FullKelly is the raw criterion output, f* = (p*b - q) / b.
	FullKelly float64 `json:"full_kelly"`

	// SuggestedFraction is FullKelly scaled and clamped for actual use.
	SuggestedFraction float64 `json:"suggested_fraction"`

	// WinLossRatio is average win over average loss magnitude.
	WinLossRatio float64 `json:"win_loss_ratio"`

	// Reliable reports whether the sample was large and clean enough
	// for the criterion; when false the suggestion is the conservative
	// default.
	Reliable bool `json:"reliable"`

	Recommendation string `json:"recommendation"`
}

// SuggestPositionSize derives Kelly-criterion position sizing from a
// backtest summary. kellyFraction scales the raw criterion (0.5 = half
// Kelly); values outside (0, 1] fall back to half Kelly. Small or
// degenerate samples produce the conservative default rather than a
// number the data cannot support.
func SuggestPositionSize(s Summary, kellyFraction float64) KellySuggestion {
	if kellyFraction <= 0 || kellyFraction > 1 {
		kellyFraction = 0.5
	}

	fallback := KellySuggestion{
		SuggestedFraction: kellyDefaultSize,
		Recommendation:    kellyRecommendation(0),
	}

	if s.TotalTrades < kellyMinTrades {
		log.Debug().
			Int("total_trades", s.TotalTrades).
			Msg("Not enough trades for Kelly sizing, using conservative default")
		return fallback
	}

	p := s.WinRate / 100
	if p <= 0 || p >= 1 {
		return fallback
	}
	if s.AverageWin <= 0 || s.AverageLoss >= 0 {
		log.Warn().
			Float64("avg_win", s.AverageWin).
			Float64("avg_loss", s.AverageLoss).
			Msg("Degenerate win/loss averages, skipping Kelly sizing")
		return fallback
	}

	b := s.AverageWin / -s.AverageLoss
	q := 1 - p
	full := (p*b - q) / b

	suggestion := KellySuggestion{
		FullKelly:      full,
		WinLossRatio:   b,
		Reliable:       true,
		Recommendation: kellyRecommendation(full),
	}

	if full <= 0 {
		// Negative edge: the floor keeps the field usable but the
		// recommendation says not to trade this.
		suggestion.SuggestedFraction = kellyFloorSize
		return suggestion
	}

	adjusted := full * kellyFraction
	if adjusted > kellyCapSize {
		adjusted = kellyCapSize
	}
	if adjusted < kellyFloorSize {
		adjusted = kellyFloorSize
	}
	suggestion.SuggestedFraction = adjusted

	log.Debug().
		Float64("win_rate", p).
		Float64("win_loss_ratio", b).
		Float64("full_kelly", full).
		Float64("suggested_fraction", adjusted).
		Msg("Kelly position sizing")
	return suggestion
}

// kellyRecommendation interprets a raw Kelly percentage for the report.
func kellyRecommendation(fullKelly float64) string {
	percent := fullKelly * 100
	switch {
	case percent <= 0:
		return "No edge detected; position sizing defaults apply"
	case percent <= 2:
		return "Very small position, minimal edge"
	case percent <= 5:
		return "Conservative position, moderate edge"
	case percent <= 10:
		return "Standard position, good edge"
	case percent <= 20:
		return "Large position, strong edge"
	default:
		return "Suggested size is unusually large; verify the sample before trading it"
	}
}
