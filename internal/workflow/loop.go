package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ajitpratap0/stockfunk/internal/agents"
	"github.com/ajitpratap0/stockfunk/internal/bus"
	"github.com/ajitpratap0/stockfunk/internal/metrics"
	"github.com/ajitpratap0/stockfunk/internal/strategy"
	"github.com/ajitpratap0/stockfunk/pkg/backtest"
)

// insightsOutcome is what the parallel insights goroutine reports back.
type insightsOutcome struct {
	insights []string
	err      error
}

// run is the supervisor loop for one session. It emits every progress event
// and ends the stream with exactly one terminal event.
func (e *Engine) run(ctx context.Context, s *Session, req StartRequest) {
	start := time.Now()
	log := e.log.With().Str("session_id", s.ID).Logger()

	maxIter := e.cfg.MaxIterations
	if req.FastMode {
		maxIter = 1
	}

	s.emit(Event{
		Type:    EventSupervisorStart,
		Agent:   "supervisor",
		Message: "workflow started",
		Payload: map[string]interface{}{
			"query":          req.Query,
			"max_iterations": maxIter,
			"fast_mode":      req.FastMode,
		},
	})

	protected := strategy.ExtractProtectedParams(req.Query)
	if !protected.IsEmpty() {
		log.Info().Str("params", protected.Describe()).Msg("Protected parameters extracted from query")
	}

	var (
		lastSpec     *strategy.Spec
		lastResult   *backtest.Result
		insights     []string
		feedback     string
		dataInsights string
		iterations   int

		insightsCh     chan insightsOutcome
		insightsCtx    context.Context
		insightsCancel context.CancelFunc
	)
	defer func() {
		if insightsCancel != nil {
			insightsCancel()
		}
	}()

	for i := 1; i <= maxIter; i++ {
		if err := ctx.Err(); err != nil {
			e.finishError(s, req, iterations, start, fmt.Errorf("workflow aborted: %w", err))
			return
		}
		iterations = i
		iterStart := time.Now()

		s.emit(Event{
			Type:      EventIterationStart,
			Agent:     "supervisor",
			Iteration: i,
			Message:   fmt.Sprintf("iteration %d of %d", i, maxIter),
		})

		s.emit(Event{Type: EventCodeGenerationStart, Agent: "generator", Iteration: i})
		gen, err := e.deps.Generator.Generate(ctx, agents.GenerateRequest{
			Query:        req.Query,
			Previous:     lastSpec,
			Feedback:     feedback,
			DataInsights: dataInsights,
			Protected:    protected,
			Iteration:    i,
		})
		if err != nil {
			if lastSpec == nil {
				e.finishError(s, req, i, start, fmt.Errorf("strategy generation failed: %w", err))
				return
			}
			// A refinement that fails to generate keeps the previous
			// iteration's strategy as the final answer.
			log.Warn().Err(err).Int("iteration", i).Msg("Refinement generation failed, keeping previous strategy")
			iterations = i - 1
			break
		}
		spec := gen.Spec
		s.emit(Event{
			Type:      EventCodeGenerationComplete,
			Agent:     "generator",
			Iteration: i,
			Payload: map[string]interface{}{
				"strategy_name": spec.Name,
				"changes_made":  gen.ChangesMade,
				"overridden":    gen.Overridden,
			},
		})

		// First iteration only: market insights run in parallel with the
		// backtest under their own deadline.
		if i == 1 && e.deps.Insights != nil {
			s.emit(Event{Type: EventInsightsGeneration, Agent: "insights", Iteration: i})
			insightsCtx, insightsCancel = context.WithTimeout(ctx, e.cfg.InsightsTimeout)
			insightsCh = make(chan insightsOutcome, 1)
			go func(ictx context.Context, ch chan<- insightsOutcome, symbols []string) {
				out, ierr := e.deps.Insights.Generate(ictx, req.Query, symbols, e.cfg.BacktestDays)
				ch <- insightsOutcome{insights: out, err: ierr}
			}(insightsCtx, insightsCh, spec.Assets)
		}

		s.emit(Event{Type: EventBacktestStart, Agent: "backtester", Iteration: i})
		result, err := e.deps.Backtester.Run(ctx, agents.BacktestRequest{
			Spec:           spec,
			Days:           e.cfg.BacktestDays,
			InitialCapital: e.cfg.InitialCapital,
			SessionID:      s.ID,
		})
		if err != nil {
			e.finishError(s, req, i, start, fmt.Errorf("backtest failed: %w", err))
			return
		}
		s.emit(Event{
			Type:      EventBacktestComplete,
			Agent:     "backtester",
			Iteration: i,
			Payload: map[string]interface{}{
				"summary": result.Summary,
			},
		})

		if insightsCh != nil {
			insights = e.collectInsights(insightsCtx, insightsCh, log)
			insightsCancel()
			insightsCh, insightsCtx, insightsCancel = nil, nil, nil
			s.emit(Event{
				Type:      EventInsightsComplete,
				Agent:     "insights",
				Iteration: i,
				Payload: map[string]interface{}{
					"insights": insights,
					"count":    len(insights),
				},
			})
		}

		dataInsights = ""
		if e.deps.Recommender != nil && agents.ShouldRun(result) {
			dataInsights = e.deps.Recommender.Recommend(spec, result)
		}

		s.emit(Event{Type: EventAnalysisStart, Agent: "analyst", Iteration: i})
		analysis, err := e.deps.Analyst.Analyze(ctx, req.Query, spec, result, i, maxIter)
		if err != nil {
			// Analysis failure is not fatal: the strategy and its backtest
			// are already in hand, so accept them as final.
			log.Warn().Err(err).Int("iteration", i).Msg("Analysis failed, accepting current strategy")
			lastSpec, lastResult = spec, result
			break
		}
		s.emit(Event{
			Type:      EventAnalysisComplete,
			Agent:     "analyst",
			Iteration: i,
			Payload: map[string]interface{}{
				"analysis":         analysis.Analysis,
				"issues":           analysis.Issues,
				"needs_refinement": analysis.NeedsRefinement,
				"should_continue":  analysis.ShouldContinue,
			},
		})

		lastSpec, lastResult = spec, result
		metrics.IterationDuration.Observe(time.Since(iterStart).Seconds())

		if !analysis.NeedsRefinement || !analysis.ShouldContinue || i == maxIter {
			break
		}

		feedback = analysis.Feedback()
		s.emit(Event{
			Type:      EventRefinement,
			Agent:     "supervisor",
			Iteration: i,
			Payload: map[string]interface{}{
				"feedback":      feedback,
				"data_insights": dataInsights,
			},
		})
	}

	if lastSpec == nil || lastResult == nil {
		e.finishError(s, req, iterations, start, errors.New("workflow produced no usable strategy"))
		return
	}
	e.finishComplete(s, req, lastSpec, lastResult, insights, iterations, start)
}

// collectInsights waits for the parallel insights call. Failures and
// timeouts degrade to no insights; the workflow never blocks on them past
// their deadline.
func (e *Engine) collectInsights(ctx context.Context, ch <-chan insightsOutcome, log zerolog.Logger) []string {
	select {
	case out := <-ch:
		if out.err != nil {
			if errors.Is(out.err, context.DeadlineExceeded) {
				metrics.InsightsTimeouts.Inc()
				log.Warn().Msg("Insights generation timed out")
			} else {
				log.Debug().Err(out.err).Msg("Insights generation failed")
			}
			return nil
		}
		return out.insights
	case <-ctx.Done():
		metrics.InsightsTimeouts.Inc()
		log.Warn().Msg("Insights generation timed out")
		return nil
	}
}

// finishComplete stores the result, emits the terminal complete event, and
// only then kicks off the background save. A client that sees complete is
// guaranteed an immediate Result hit.
func (e *Engine) finishComplete(s *Session, req StartRequest, spec *strategy.Spec, result *backtest.Result, insights []string, iterations int, start time.Time) {
	botID := uuid.New()
	res := &Result{
		SessionID:  s.ID,
		Status:     StatusComplete,
		Strategy:   spec,
		Backtest:   result,
		Insights:   insights,
		Iterations: iterations,
		BotID:      botID,
		CreatedAt:  time.Now(),
	}
	e.storeResult(res)

	s.emit(Event{
		Type:      EventComplete,
		Agent:     "supervisor",
		Iteration: iterations,
		Message:   "workflow complete",
		Payload: map[string]interface{}{
			"bot_id":     botID.String(),
			"iterations": iterations,
			"summary":    result.Summary,
		},
	})

	e.deps.Bus.Publish(bus.SubjectWorkflowCompleted, map[string]interface{}{
		"session_id": s.ID,
		"bot_id":     botID.String(),
		"iterations": iterations,
	})
	metrics.RecordSessionFinished(metrics.OutcomeComplete, time.Since(start).Seconds(), iterations)

	e.wg.Add(1)
	go e.saveBot(res, req)

	e.log.Info().
		Str("session_id", s.ID).
		Str("bot_id", botID.String()).
		Int("iterations", iterations).
		Float64("return_pct", result.Summary.TotalReturnPct).
		Msg("Workflow complete")
}

// finishError stores an error result and emits the terminal error event.
func (e *Engine) finishError(s *Session, req StartRequest, iterations int, start time.Time, err error) {
	res := &Result{
		SessionID:  s.ID,
		Status:     StatusError,
		Iterations: iterations,
		Error:      err.Error(),
		CreatedAt:  time.Now(),
	}
	e.storeResult(res)

	s.emit(Event{
		Type:      EventError,
		Agent:     "supervisor",
		Iteration: iterations,
		Message:   err.Error(),
	})

	e.deps.Bus.Publish(bus.SubjectWorkflowFailed, map[string]interface{}{
		"session_id": s.ID,
		"error":      err.Error(),
	})
	metrics.RecordSessionFinished(metrics.OutcomeError, time.Since(start).Seconds(), iterations)
	metrics.RecordError("workflow_failed", "workflow")

	e.log.Error().Err(err).Str("session_id", s.ID).Int("iterations", iterations).Msg("Workflow failed")
}
