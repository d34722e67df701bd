package sentiment

import "strings"

// ScoreFunc produces a compound sentiment score in [-1, 1] for a piece of
// text. The default is a keyword lexicon in the classic VADER spirit;
// callers can plug in a model-backed scorer with the same signature.
type ScoreFunc func(text string) float64

// Positive and negative keywords for the lexicon scorer
var (
	positiveKeywords = []string{
		"bullish", "surge", "rally", "gain", "rise", "breakout",
		"beat", "outperform", "upgrade", "soar", "boom", "growth",
		"profit", "record", "strong", "winner", "upside", "momentum",
		"buyback", "dividend", "all-time-high",
	}

	negativeKeywords = []string{
		"bearish", "crash", "drop", "fall", "decline", "plunge",
		"miss", "underperform", "downgrade", "collapse", "loss",
		"weak", "warning", "lawsuit", "investigation", "fraud",
		"bankruptcy", "recession", "selloff", "dump", "default",
	}
)

// LexiconScorer returns the default keyword-matching scorer. The score is
// the keyword balance normalized by text length, clamped to [-1, 1]:
// a short headline dominated by negative words scores near -1, mixed or
// keyword-free text scores near 0.
func LexiconScorer() ScoreFunc {
	return func(text string) float64 {
		totalWords := len(strings.Fields(text))
		if totalWords == 0 {
			return 0
		}

		lower := strings.ToLower(text)

		positiveCount := 0
		negativeCount := 0
		for _, keyword := range positiveKeywords {
			if strings.Contains(lower, keyword) {
				positiveCount++
			}
		}
		for _, keyword := range negativeKeywords {
			if strings.Contains(lower, keyword) {
				negativeCount++
			}
		}

		score := float64(positiveCount-negativeCount) / float64(totalWords)
		if score > 1.0 {
			score = 1.0
		} else if score < -1.0 {
			score = -1.0
		}
		return score
	}
}
