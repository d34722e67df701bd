package workflow

import "time"

// Event types emitted over a session's progress stream. These names are part
// of the public API contract; clients key off them, so they never change.
const (
	EventReady                  = "ready"
	EventHeartbeat              = "heartbeat"
	EventSupervisorStart        = "supervisor_start"
	EventIterationStart         = "iteration_start"
	EventCodeGenerationStart    = "code_generation_start"
	EventCodeGenerationComplete = "code_generation_complete"
	EventInsightsGeneration     = "insights_generation"
	EventInsightsComplete       = "insights_complete"
	EventBacktestStart          = "backtest_start"
	EventBacktestComplete       = "backtest_complete"
	EventAnalysisStart          = "analysis_start"
	EventAnalysisComplete       = "analysis_complete"
	EventRefinement             = "refinement"
	EventComplete               = "complete"
	EventError                  = "error"
)

// Event is a single progress update from a workflow session. The stream for
// a session is append-only and ends with exactly one terminal event.
type Event struct {
	Type      string                 `json:"type"`
	Agent     string                 `json:"agent,omitempty"`
	Message   string                 `json:"message,omitempty"`
	Iteration int                    `json:"iteration,omitempty"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Terminal reports whether the event ends its session's stream.
func (e Event) Terminal() bool {
	return e.Type == EventComplete || e.Type == EventError
}
