// Package agents implements the workflow's specialist agents: the strategy
// generator, the backtest runner, the analyst, the insights agent, and the
// data-driven recommender. Agents hold no session state; the workflow engine
// owns the loop and hands each agent its inputs per call.
package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ajitpratap0/stockfunk/internal/llm"
	"github.com/ajitpratap0/stockfunk/internal/metrics"
	"github.com/ajitpratap0/stockfunk/internal/strategy"
)

// Generator turns a natural-language query (plus optional feedback from the
// analyst) into a validated strategy spec.
type Generator struct {
	oracle llm.Oracle
	log    zerolog.Logger
}

// NewGenerator creates a strategy generator backed by the given oracle.
func NewGenerator(oracle llm.Oracle, log zerolog.Logger) *Generator {
	return &Generator{
		oracle: oracle,
		log:    log.With().Str("component", "generator").Logger(),
	}
}

// GenerateRequest carries the inputs of one generation call. Previous,
// Feedback, and DataInsights are empty on the first iteration.
type GenerateRequest struct {
	Query        string
	Previous     *strategy.Spec
	Feedback     string
	DataInsights string
	Protected    strategy.ProtectedParams
	Iteration    int
}

// GenerateResult is a validated spec plus the generator's own change notes
// and any protected-parameter overrides the workflow re-applied.
type GenerateResult struct {
	Spec        *strategy.Spec
	ChangesMade []string
	Overridden  []string
}

// Generate produces a strategy spec for the request. The oracle's output is
// parsed, normalized, and validated; a single retry covers unparseable JSON.
// User-pinned parameters are re-applied last, so no refinement can move them.
func (g *Generator) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	prompt := llm.GeneratorPromptRequest{
		Query:        req.Query,
		Feedback:     req.Feedback,
		DataInsights: req.DataInsights,
		Iteration:    req.Iteration,
	}
	if req.Previous != nil {
		prevJSON, err := json.Marshal(req.Previous)
		if err != nil {
			return nil, fmt.Errorf("generator: marshal previous strategy: %w", err)
		}
		prompt.PreviousStrategyJSON = string(prevJSON)
	}
	if !req.Protected.IsEmpty() {
		prompt.ProtectedParams = req.Protected.Describe()
	}

	raw, err := g.completeAndParse(ctx, prompt)
	if err != nil {
		return nil, err
	}

	changes := popChangesMade(raw)

	spec, err := strategy.Normalize(raw)
	if err != nil {
		return nil, err
	}

	overridden := req.Protected.Apply(spec)
	for _, note := range overridden {
		g.log.Info().Str("override", note).Msg("Kept user-specified parameter")
	}

	g.log.Info().
		Int("iteration", req.Iteration).
		Str("strategy", spec.Name).
		Int("changes", len(changes)).
		Msg("Strategy generated")

	return &GenerateResult{
		Spec:        spec,
		ChangesMade: changes,
		Overridden:  overridden,
	}, nil
}

// completeAndParse runs the completion and decodes the JSON document,
// retrying the completion once when the output does not parse.
func (g *Generator) completeAndParse(ctx context.Context, prompt llm.GeneratorPromptRequest) (map[string]interface{}, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		start := time.Now()
		content, err := g.oracle.CompleteWithSystem(ctx, llm.GeneratorSystemPrompt(), llm.BuildGeneratorPrompt(prompt))
		metrics.RecordOracleRequest("generator", err == nil, float64(time.Since(start).Milliseconds()))
		if err != nil {
			return nil, err
		}

		var raw map[string]interface{}
		if err := g.oracle.ParseJSONResponse(content, &raw); err != nil {
			lastErr = err
			g.log.Warn().Err(err).Int("attempt", attempt+1).Msg("Generator output was not valid JSON")
			continue
		}
		return raw, nil
	}
	return nil, lastErr
}

// popChangesMade removes the generator's change notes from the raw document
// so they do not reach the validator as an unknown field.
func popChangesMade(raw map[string]interface{}) []string {
	v, ok := raw["changes_made"]
	if !ok {
		return nil
	}
	delete(raw, "changes_made")

	items, ok := v.([]interface{})
	if !ok {
		if s, ok := v.(string); ok && s != "" {
			return []string{s}
		}
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}
