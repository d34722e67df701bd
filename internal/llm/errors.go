package llm

import (
	"errors"
	"fmt"
)

// LLMError wraps any failure of an oracle call: transport errors, non-2xx
// responses, empty completions, and unparseable JSON output. Callers decide
// whether the failure is tolerable (insights) or fatal (generation).
type LLMError struct {
	Op  string // "complete", "parse", ...
	Err error
}

func (e *LLMError) Error() string {
	return fmt.Sprintf("llm %s: %v", e.Op, e.Err)
}

func (e *LLMError) Unwrap() error {
	return e.Err
}

// IsLLMError reports whether err is (or wraps) an LLMError.
func IsLLMError(err error) bool {
	var le *LLMError
	return errors.As(err, &le)
}
