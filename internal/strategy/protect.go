package strategy

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ProtectedParams are parameter values the user literally stated in their
// strategy description. Agent refinements may not alter them: after each
// refinement the workflow re-applies them, and a refinement that targeted
// one is downgraded to a recommendation.
type ProtectedParams struct {
	RSIThreshold       *float64
	RSIComparison      string
	SentimentThreshold *float64
	TakeProfit         *float64
	StopLoss           *float64
	PositionSize       *float64
}

// IsEmpty reports whether the user pinned no parameters.
func (p ProtectedParams) IsEmpty() bool {
	return p.RSIThreshold == nil &&
		p.SentimentThreshold == nil &&
		p.TakeProfit == nil &&
		p.StopLoss == nil &&
		p.PositionSize == nil
}

// Describe renders the pinned parameters one per line, for prompt text and
// progress messages. Empty string when nothing is pinned.
func (p ProtectedParams) Describe() string {
	var lines []string
	if p.RSIThreshold != nil {
		cmp := p.RSIComparison
		if cmp == "" {
			cmp = "below"
		}
		lines = append(lines, fmt.Sprintf("rsi threshold %s %.4g", cmp, *p.RSIThreshold))
	}
	if p.SentimentThreshold != nil {
		lines = append(lines, fmt.Sprintf("sentiment threshold %.4g", *p.SentimentThreshold))
	}
	if p.TakeProfit != nil {
		lines = append(lines, fmt.Sprintf("take_profit %.4g", *p.TakeProfit))
	}
	if p.StopLoss != nil {
		lines = append(lines, fmt.Sprintf("stop_loss %.4g", *p.StopLoss))
	}
	if p.PositionSize != nil {
		lines = append(lines, fmt.Sprintf("position_size %.4g", *p.PositionSize))
	}
	return strings.Join(lines, "\n")
}

var (
	rsiBelowRe = regexp.MustCompile(`(?i)rsi\s+(?:is\s+)?(?:drops?\s+)?(?:below|under|less\s+than)\s+(\d+(?:\.\d+)?)`)
	rsiAboveRe = regexp.MustCompile(`(?i)rsi\s+(?:is\s+)?(?:rises?\s+)?(?:above|over|greater\s+than|exceeds)\s+(\d+(?:\.\d+)?)`)

	takeProfitRe    = regexp.MustCompile(`(?i)take[\s-]?profit\s+(?:of\s+|at\s+)?(\d+(?:\.\d+)?)\s*%`)
	takeProfitAltRe = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*%\s+take[\s-]?profit`)
	stopLossRe      = regexp.MustCompile(`(?i)stop[\s-]?loss\s+(?:of\s+|at\s+)?(\d+(?:\.\d+)?)\s*%`)
	stopLossAltRe   = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*%\s+stop[\s-]?loss`)

	sentimentRe    = regexp.MustCompile(`(?i)sentiment\s+(?:is\s+)?(?:above|over|greater\s+than|exceeds)\s+(-?\d*\.?\d+)`)
	positionSizeRe = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*%\s+(?:of\s+)?(?:the\s+)?(?:portfolio|capital|cash|account)`)
)

// ExtractProtectedParams parses explicit parameter statements out of a
// natural-language strategy description. It recognizes RSI thresholds
// ("RSI below 28"), percentage take-profit and stop-loss levels, sentiment
// thresholds, and percentage position sizes.
func ExtractProtectedParams(query string) ProtectedParams {
	var p ProtectedParams

	if m := rsiBelowRe.FindStringSubmatch(query); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			p.RSIThreshold = &v
			p.RSIComparison = "below"
		}
	} else if m := rsiAboveRe.FindStringSubmatch(query); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			p.RSIThreshold = &v
			p.RSIComparison = "above"
		}
	}

	if v, ok := firstPercent(query, takeProfitRe, takeProfitAltRe); ok {
		p.TakeProfit = &v
	}
	if v, ok := firstPercent(query, stopLossRe, stopLossAltRe); ok {
		p.StopLoss = &v
	}

	if m := sentimentRe.FindStringSubmatch(query); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			v = scalePercent(v)
			p.SentimentThreshold = &v
		}
	}

	if m := positionSizeRe.FindStringSubmatch(query); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			v = v / 100
			p.PositionSize = &v
		}
	}

	return p
}

func firstPercent(query string, patterns ...*regexp.Regexp) (float64, bool) {
	for _, re := range patterns {
		if m := re.FindStringSubmatch(query); m != nil {
			if v, err := strconv.ParseFloat(m[1], 64); err == nil {
				return v / 100, true
			}
		}
	}
	return 0, false
}

// Apply overwrites any refined values with the user's pinned ones and
// returns a human-readable note for each field that was changed back.
// Applying twice is a no-op.
func (p ProtectedParams) Apply(s *Spec) []string {
	var overridden []string

	if p.RSIThreshold != nil && s.EntrySignal == SignalRSI {
		if got, ok := floatField(s.EntryConditions.Parameters, "threshold"); ok && got != *p.RSIThreshold {
			overridden = append(overridden, fmt.Sprintf(
				"rsi threshold kept at user-specified %.4g (refinement proposed %.4g)", *p.RSIThreshold, got))
		}
		if s.EntryConditions.Parameters == nil {
			s.EntryConditions.Parameters = make(map[string]interface{})
		}
		s.EntryConditions.Parameters["threshold"] = *p.RSIThreshold
		if p.RSIComparison != "" {
			s.EntryConditions.Parameters["comparison"] = p.RSIComparison
		}
	}

	if p.SentimentThreshold != nil && s.EntrySignal == SignalSentiment {
		if got, ok := floatField(s.EntryConditions.Parameters, "threshold"); ok && got != *p.SentimentThreshold {
			overridden = append(overridden, fmt.Sprintf(
				"sentiment threshold kept at user-specified %.4g (refinement proposed %.4g)", *p.SentimentThreshold, got))
		}
		if s.EntryConditions.Parameters == nil {
			s.EntryConditions.Parameters = make(map[string]interface{})
		}
		s.EntryConditions.Parameters["threshold"] = *p.SentimentThreshold
	}

	if p.TakeProfit != nil {
		if s.Exit.TakeProfit != *p.TakeProfit {
			overridden = append(overridden, fmt.Sprintf(
				"take_profit kept at user-specified %.4g (refinement proposed %.4g)", *p.TakeProfit, s.Exit.TakeProfit))
		}
		s.Exit.TakeProfit = *p.TakeProfit
	}

	if p.StopLoss != nil {
		if s.Exit.StopLoss != *p.StopLoss {
			overridden = append(overridden, fmt.Sprintf(
				"stop_loss kept at user-specified %.4g (refinement proposed %.4g)", *p.StopLoss, s.Exit.StopLoss))
		}
		s.Exit.StopLoss = *p.StopLoss
	}

	if p.PositionSize != nil {
		if s.Risk.PositionSize != *p.PositionSize {
			overridden = append(overridden, fmt.Sprintf(
				"position_size kept at user-specified %.4g (refinement proposed %.4g)", *p.PositionSize, s.Risk.PositionSize))
		}
		s.Risk.PositionSize = *p.PositionSize
	}

	return overridden
}
