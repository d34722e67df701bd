package agents

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/ajitpratap0/stockfunk/internal/strategy"
	"github.com/ajitpratap0/stockfunk/pkg/backtest"
)

// minTradesForConfidence is the trade count below which the workflow asks
// the recommender for data-driven threshold proposals.
const minTradesForConfidence = 10

// Recommender mines the backtest's per-day rows when a strategy barely
// traded: it computes the observed distribution of the entry condition's
// driving series and proposes thresholds that would actually fire. The output
// feeds the next generator call as data insights; no oracle involved.
type Recommender struct {
	log zerolog.Logger
}

// NewRecommender creates a data-driven recommender.
func NewRecommender(log zerolog.Logger) *Recommender {
	return &Recommender{
		log: log.With().Str("component", "recommender").Logger(),
	}
}

// ShouldRun reports whether the result is too thin to trust its statistics.
func ShouldRun(result *backtest.Result) bool {
	return result != nil && result.Summary.TotalTrades < minTradesForConfidence
}

// Recommend produces a data-insights text block for the next iteration, or
// an empty string when the per-day rows carry nothing usable.
func (r *Recommender) Recommend(spec *strategy.Spec, result *backtest.Result) string {
	if spec == nil || result == nil || len(result.AdditionalInfo) == 0 {
		return ""
	}

	var lines []string
	switch spec.EntrySignal {
	case strategy.SignalRSI:
		lines = r.recommendRSI(spec, result.AdditionalInfo)
	case strategy.SignalSentiment:
		lines = r.recommendSentiment(spec, result.AdditionalInfo)
	case strategy.SignalMACD:
		lines = r.recommendCrossovers("macd_hist", "MACD histogram", result.AdditionalInfo)
	case strategy.SignalSMA:
		lines = r.recommendSMA(result.AdditionalInfo)
	default:
		return ""
	}

	if len(lines) == 0 {
		return ""
	}

	r.log.Info().
		Str("entry_signal", string(spec.EntrySignal)).
		Int("observations", len(lines)).
		Msg("Data-driven recommendations prepared")

	return strings.Join(lines, "\n")
}

func (r *Recommender) recommendRSI(spec *strategy.Spec, rows []backtest.DayInfo) []string {
	series := indicatorSeries(rows, "rsi")
	stats, ok := computeStats(series)
	if !ok {
		return nil
	}

	threshold := spec.Param("threshold", 30)
	comparison := spec.ParamString("comparison", "below")

	matched := 0
	for _, v := range series {
		if (comparison == "below" && v < threshold) || (comparison == "above" && v > threshold) {
			matched++
		}
	}

	lines := []string{
		fmt.Sprintf("rsi over the window: min %.1f, max %.1f, mean %.1f, std %.1f, p10 %.1f, p90 %.1f (%d days)",
			stats.Min, stats.Max, stats.Mean, stats.Std, stats.P10, stats.P90, stats.Count),
		fmt.Sprintf("entry condition (rsi %s %.4g) matched on %d of %d days", comparison, threshold, matched, stats.Count),
	}

	// Propose a quantile threshold only for a condition that barely fires.
	if matched*20 < stats.Count {
		if comparison == "below" {
			lines = append(lines, fmt.Sprintf(
				"observed p10 is %.1f; a threshold near it would fire on roughly 10%% of days", stats.P10))
		} else {
			lines = append(lines, fmt.Sprintf(
				"observed p90 is %.1f; a threshold near it would fire on roughly 10%% of days", stats.P90))
		}
	}
	return lines
}

func (r *Recommender) recommendSentiment(spec *strategy.Spec, rows []backtest.DayInfo) []string {
	var series []float64
	for _, row := range rows {
		if row.Sentiment != nil {
			series = append(series, *row.Sentiment)
		}
	}
	stats, ok := computeStats(series)
	if !ok {
		return []string{"no sentiment data resolved over the window; check the data source"}
	}

	threshold := spec.Param("threshold", 0.3)
	matched := 0
	for _, v := range series {
		if v > threshold {
			matched++
		}
	}

	lines := []string{
		fmt.Sprintf("sentiment over the window: min %.2f, max %.2f, mean %.2f, std %.2f, p10 %.2f, p90 %.2f (%d days with data)",
			stats.Min, stats.Max, stats.Mean, stats.Std, stats.P10, stats.P90, stats.Count),
		fmt.Sprintf("entry condition (sentiment above %.4g) matched on %d of %d days", threshold, matched, stats.Count),
	}
	if matched*20 < stats.Count {
		lines = append(lines, fmt.Sprintf(
			"observed p90 is %.2f; a threshold near it would fire on roughly 10%% of days", stats.P90))
	}
	return lines
}

func (r *Recommender) recommendCrossovers(key, label string, rows []backtest.DayInfo) []string {
	series := indicatorSeries(rows, key)
	if len(series) < 2 {
		return nil
	}

	crossovers := 0
	for i := 1; i < len(series); i++ {
		if (series[i-1] < 0) != (series[i] < 0) {
			crossovers++
		}
	}

	stats, _ := computeStats(series)
	return []string{
		fmt.Sprintf("%s crossed zero %d times over %d days (mean %.3f, std %.3f)",
			label, crossovers, stats.Count, stats.Mean, stats.Std),
	}
}

func (r *Recommender) recommendSMA(rows []backtest.DayInfo) []string {
	var spread []float64
	for _, row := range rows {
		fast, okF := row.Indicators["sma_fast"]
		slow, okS := row.Indicators["sma_slow"]
		if okF && okS {
			spread = append(spread, fast-slow)
		}
	}
	if len(spread) < 2 {
		return nil
	}

	crossovers := 0
	for i := 1; i < len(spread); i++ {
		if (spread[i-1] < 0) != (spread[i] < 0) {
			crossovers++
		}
	}

	stats, _ := computeStats(spread)
	return []string{
		fmt.Sprintf("fast/slow SMA spread crossed zero %d times over %d days (mean %.3f, std %.3f)",
			crossovers, stats.Count, stats.Mean, stats.Std),
	}
}

// seriesStats summarizes one observed series.
type seriesStats struct {
	Count int
	Min   float64
	Max   float64
	Mean  float64
	Std   float64
	P10   float64
	P90   float64
}

func computeStats(values []float64) (seriesStats, bool) {
	if len(values) == 0 {
		return seriesStats{}, false
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	s := seriesStats{
		Count: len(sorted),
		Min:   sorted[0],
		Max:   sorted[len(sorted)-1],
		Mean:  stat.Mean(sorted, nil),
		P10:   stat.Quantile(0.1, stat.Empirical, sorted, nil),
		P90:   stat.Quantile(0.9, stat.Empirical, sorted, nil),
	}
	if len(sorted) > 1 {
		s.Std = stat.StdDev(sorted, nil)
	}
	return s, true
}

func indicatorSeries(rows []backtest.DayInfo, key string) []float64 {
	var out []float64
	for _, row := range rows {
		if v, ok := row.Indicators[key]; ok {
			out = append(out, v)
		}
	}
	return out
}
