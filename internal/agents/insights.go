package agents

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/ajitpratap0/stockfunk/internal/llm"
	"github.com/ajitpratap0/stockfunk/internal/metrics"
)

// InsightsAgent produces short market-context notes for the saved bot. It is
// strictly best-effort: the workflow runs it in parallel with the first
// backtest under a hard timeout and continues with empty insights on any
// failure.
type InsightsAgent struct {
	oracle llm.Oracle
	log    zerolog.Logger
}

// NewInsightsAgent creates an insights agent backed by the given oracle.
func NewInsightsAgent(oracle llm.Oracle, log zerolog.Logger) *InsightsAgent {
	return &InsightsAgent{
		oracle: oracle,
		log:    log.With().Str("component", "insights").Logger(),
	}
}

// Generate returns market-context insights for the query. Errors are the
// caller's to swallow; this method never fabricates content on failure.
func (ia *InsightsAgent) Generate(ctx context.Context, query string, symbols []string, days int) ([]string, error) {
	prompt := llm.BuildInsightsPrompt(llm.InsightsPromptRequest{
		Query:   query,
		Symbols: symbols,
		Days:    days,
	})

	start := time.Now()
	content, err := ia.oracle.CompleteWithSystem(ctx, llm.InsightsSystemPrompt(), prompt)
	metrics.RecordOracleRequest("insights", err == nil, float64(time.Since(start).Milliseconds()))
	if err != nil {
		return nil, err
	}

	var payload struct {
		Insights []string `json:"insights"`
	}
	if err := ia.oracle.ParseJSONResponse(content, &payload); err != nil {
		return nil, err
	}

	ia.log.Info().Int("insights", len(payload.Insights)).Msg("Insights generated")
	return payload.Insights, nil
}
