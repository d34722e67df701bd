package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ajitpratap0/stockfunk/internal/llm"
	"github.com/ajitpratap0/stockfunk/internal/metrics"
	"github.com/ajitpratap0/stockfunk/internal/strategy"
	"github.com/ajitpratap0/stockfunk/pkg/backtest"
)

// Analyst critiques a backtest result against the user's intent and decides
// whether another refinement iteration is worth running.
type Analyst struct {
	oracle llm.Oracle
	log    zerolog.Logger
}

// NewAnalyst creates a backtest analyst backed by the given oracle.
func NewAnalyst(oracle llm.Oracle, log zerolog.Logger) *Analyst {
	return &Analyst{
		oracle: oracle,
		log:    log.With().Str("component", "analyst").Logger(),
	}
}

// Analysis is the analyst's verdict on one iteration.
type Analysis struct {
	Analysis        string   `json:"analysis"`
	Issues          []string `json:"issues"`
	Suggestions     []string `json:"suggestions"`
	NeedsRefinement bool     `json:"needs_refinement"`
	ShouldContinue  bool     `json:"should_continue"`
}

// Feedback flattens the verdict into the text block the generator consumes
// on the next iteration.
func (a *Analysis) Feedback() string {
	var b strings.Builder
	if a.Analysis != "" {
		b.WriteString(a.Analysis)
		b.WriteString("\n")
	}
	for _, issue := range a.Issues {
		fmt.Fprintf(&b, "- issue: %s\n", issue)
	}
	for _, sug := range a.Suggestions {
		fmt.Fprintf(&b, "- suggestion: %s\n", sug)
	}
	return strings.TrimSpace(b.String())
}

// Analyze critiques the backtest result for one iteration. An oracle failure
// is returned to the caller; the workflow decides whether to terminate.
func (a *Analyst) Analyze(ctx context.Context, query string, spec *strategy.Spec, result *backtest.Result, iteration, maxIterations int) (*Analysis, error) {
	specJSON, err := json.Marshal(spec)
	if err != nil {
		return nil, fmt.Errorf("analyst: marshal strategy: %w", err)
	}
	summaryJSON, err := json.Marshal(result.Summary)
	if err != nil {
		return nil, fmt.Errorf("analyst: marshal summary: %w", err)
	}

	prompt := llm.BuildAnalystPrompt(llm.AnalystPromptRequest{
		Query:        query,
		StrategyJSON: string(specJSON),
		SummaryJSON:  string(summaryJSON),
		TotalTrades:  result.Summary.TotalTrades,
		Iteration:    iteration,
		MaxIteration: maxIterations,
	})

	start := time.Now()
	content, err := a.oracle.CompleteWithSystem(ctx, llm.AnalystSystemPrompt(), prompt)
	metrics.RecordOracleRequest("analyst", err == nil, float64(time.Since(start).Milliseconds()))
	if err != nil {
		return nil, err
	}

	var analysis Analysis
	if err := a.oracle.ParseJSONResponse(content, &analysis); err != nil {
		return nil, err
	}

	a.log.Info().
		Int("iteration", iteration).
		Bool("needs_refinement", analysis.NeedsRefinement).
		Bool("should_continue", analysis.ShouldContinue).
		Int("issues", len(analysis.Issues)).
		Msg("Backtest analyzed")

	return &analysis, nil
}
