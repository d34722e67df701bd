package llm

import (
	"fmt"
	"strings"
)

// System prompts for the workflow agents. Every prompt demands a single JSON
// document as output; the callers strip markdown fences with ExtractJSON.

const generatorSystemPrompt = `You are an expert quantitative trading strategy designer for US equities.
You translate natural-language trading ideas into a declarative strategy document.
You never write executable code. You output exactly one JSON document and nothing else.

The document schema:
{
  "name": "short strategy name",
  "description": "one-paragraph summary",
  "assets": ["TICKER", ...],
  "entry_signal": "rsi" | "macd" | "sma" | "sentiment" | "news" | "price",
  "entry_conditions": {
    "signal": "<same as entry_signal>",
    "parameters": { "threshold": 30, "comparison": "below", "period": 14, ... }
  },
  "exit": {
    "take_profit": 0.05,
    "stop_loss": 0.03,
    "take_profit_pct_shares": 1.0,
    "stop_loss_pct_shares": 1.0
  },
  "risk": {
    "position_size": 0.1,
    "max_positions": 3,
    "allocation": "equal" | "signal_weighted" | "dynamic_trending" | "market_cap_weighted"
  },
  "data_sources": ["reddit" | "twitter" | "news", ...],
  "changes_made": ["description of each change vs the previous strategy", ...]
}

Rules:
- Percentages are decimals (5% -> 0.05). Stop-loss is a positive magnitude.
- take_profit_pct_shares < 1.0 sells only that fraction at take-profit and
  lets a trailing stop manage the rest; use it only when the user asks for
  partial exits or scaling out.
- data_sources is required when entry_signal is "sentiment" or "news".
- On the first iteration changes_made lists the design decisions; on later
  iterations it lists only the deltas against the previous strategy.`

const analystSystemPrompt = `You are a rigorous quantitative strategy reviewer.
You receive a backtest result and the strategy that produced it. You judge
whether the strategy fulfils the user's intent and whether another refinement
iteration is worth spending. Be specific: name the metric and the condition
parameter you are criticising. You output exactly one JSON document:
{
  "analysis": "overall assessment in 2-4 sentences",
  "issues": ["concrete problem", ...],
  "suggestions": ["concrete parameter or structure change", ...],
  "needs_refinement": true | false,
  "should_continue": true | false
}
Set needs_refinement=false when the strategy is acceptable as-is.
Set should_continue=false when further iterations are unlikely to help
(for example the asset simply never triggers the requested condition).`

const insightsSystemPrompt = `You are a market analyst preparing context for a strategy backtest.
Given the user's strategy idea, list short, factual insights a reviewer should
keep in mind when reading the backtest: regime characteristics of the assets,
known pitfalls of the indicator, realistic parameter ranges. You output exactly
one JSON document:
{
  "insights": ["one-sentence insight", ...]
}
At most 6 insights. No investment advice, no hedging language.`

// GeneratorPromptRequest carries the inputs of one generator call.
type GeneratorPromptRequest struct {
	Query                string
	PreviousStrategyJSON string
	Feedback             string
	DataInsights         string
	ProtectedParams      string
	Iteration            int
}

// GeneratorSystemPrompt returns the system prompt for strategy generation.
func GeneratorSystemPrompt() string {
	return generatorSystemPrompt
}

// BuildGeneratorPrompt builds the user prompt for a generator call. The first
// iteration carries only the query; refinements carry the previous strategy,
// the analyst feedback, and optional data-driven insights.
func BuildGeneratorPrompt(req GeneratorPromptRequest) string {
	var b strings.Builder

	fmt.Fprintf(&b, "User strategy request:\n%s\n", req.Query)

	if req.PreviousStrategyJSON != "" {
		fmt.Fprintf(&b, "\nPrevious strategy (iteration %d):\n%s\n", req.Iteration-1, req.PreviousStrategyJSON)
	}
	if req.Feedback != "" {
		fmt.Fprintf(&b, "\nReviewer feedback to address:\n%s\n", req.Feedback)
	}
	if req.DataInsights != "" {
		fmt.Fprintf(&b, "\nData-driven observations from the last backtest:\n%s\n", req.DataInsights)
	}
	if req.ProtectedParams != "" {
		fmt.Fprintf(&b, "\nThe user explicitly fixed these parameters; keep them exactly as given:\n%s\n", req.ProtectedParams)
	}

	if req.PreviousStrategyJSON == "" {
		b.WriteString("\nProduce the initial strategy document.")
	} else {
		b.WriteString("\nProduce the refined strategy document. Change only what the feedback requires.")
	}

	return b.String()
}

// AnalystPromptRequest carries the inputs of one analyst call.
type AnalystPromptRequest struct {
	Query        string
	StrategyJSON string
	SummaryJSON  string
	TotalTrades  int
	Iteration    int
	MaxIteration int
}

// AnalystSystemPrompt returns the system prompt for backtest critique.
func AnalystSystemPrompt() string {
	return analystSystemPrompt
}

// BuildAnalystPrompt builds the user prompt for an analyst call.
func BuildAnalystPrompt(req AnalystPromptRequest) string {
	var b strings.Builder

	fmt.Fprintf(&b, "User strategy request:\n%s\n", req.Query)
	fmt.Fprintf(&b, "\nStrategy under review (iteration %d of %d):\n%s\n", req.Iteration, req.MaxIteration, req.StrategyJSON)
	fmt.Fprintf(&b, "\nBacktest summary:\n%s\n", req.SummaryJSON)

	if req.TotalTrades == 0 {
		b.WriteString("\nThe strategy produced zero trades. Diagnose why the entry condition never fired.\n")
	} else if req.TotalTrades < 10 {
		fmt.Fprintf(&b, "\nOnly %d trades closed; treat the statistics as low-confidence.\n", req.TotalTrades)
	}

	b.WriteString("\nAssess the result against the user's intent and decide whether to refine.")

	return b.String()
}

// InsightsPromptRequest carries the inputs of one insights call.
type InsightsPromptRequest struct {
	Query   string
	Symbols []string
	Days    int
}

// InsightsSystemPrompt returns the system prompt for insight generation.
func InsightsSystemPrompt() string {
	return insightsSystemPrompt
}

// BuildInsightsPrompt builds the user prompt for an insights call.
func BuildInsightsPrompt(req InsightsPromptRequest) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Strategy idea:\n%s\n", req.Query)
	if len(req.Symbols) > 0 {
		fmt.Fprintf(&b, "\nAssets: %s\n", strings.Join(req.Symbols, ", "))
	}
	if req.Days > 0 {
		fmt.Fprintf(&b, "Backtest window: last %d calendar days of daily bars.\n", req.Days)
	}
	b.WriteString("\nList the insights.")

	return b.String()
}
