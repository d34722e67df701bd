// Package indicators computes technical indicators over per-symbol rolling
// price windows. An Engine is fed one bar at a time and answers indicator
// queries for the current bar; each query reports availability explicitly,
// so consumers never have to compare against sentinel values.
package indicators

// DefaultWindow bounds the per-symbol history an Engine retains. Large
// enough for every supported indicator's warm-up plus smoothing memory.
const DefaultWindow = 500

// Engine maintains per-symbol close/high windows. Not safe for concurrent
// use: a backtest run or a live tick owns its Engine exclusively.
type Engine struct {
	window int
	closes map[string][]float64
	highs  map[string][]float64
}

// NewEngine creates an indicator engine with the default window.
func NewEngine() *Engine {
	return NewEngineWithWindow(DefaultWindow)
}

// NewEngineWithWindow creates an indicator engine retaining at most
// window bars per symbol.
func NewEngineWithWindow(window int) *Engine {
	if window < 2 {
		window = DefaultWindow
	}
	return &Engine{
		window: window,
		closes: make(map[string][]float64),
		highs:  make(map[string][]float64),
	}
}

// Update appends one bar's close and high for a symbol, evicting the
// oldest bar once the window is full. Bars must arrive in nondecreasing
// timestamp order; the engine does not reorder.
func (e *Engine) Update(symbol string, closePrice, high float64) {
	e.closes[symbol] = push(e.closes[symbol], closePrice, e.window)
	e.highs[symbol] = push(e.highs[symbol], high, e.window)
}

func push(window []float64, v float64, max int) []float64 {
	window = append(window, v)
	if len(window) > max {
		window = window[1:]
	}
	return window
}

// BarCount returns how many bars the engine holds for a symbol.
func (e *Engine) BarCount(symbol string) int {
	return len(e.closes[symbol])
}

// LastClose returns the most recent close for a symbol.
func (e *Engine) LastClose(symbol string) (float64, bool) {
	closes := e.closes[symbol]
	if len(closes) == 0 {
		return 0, false
	}
	return closes[len(closes)-1], true
}

// Closes returns a copy of the close window for a symbol, oldest first.
func (e *Engine) Closes(symbol string) []float64 {
	return append([]float64(nil), e.closes[symbol]...)
}

// PriorHigh returns the highest high over the period bars preceding the
// current bar, excluding the current bar itself. A breakout comparison
// (close above the prior N-bar high) would otherwise never fire, since a
// bar's close cannot exceed its own high.
func (e *Engine) PriorHigh(symbol string, period int) (float64, bool) {
	highs := e.highs[symbol]
	if period < 1 || len(highs) < period+1 {
		return 0, false
	}
	prior := highs[len(highs)-1-period : len(highs)-1]
	max := prior[0]
	for _, h := range prior[1:] {
		if h > max {
			max = h
		}
	}
	return max, true
}

// Reset drops all state for a symbol.
func (e *Engine) Reset(symbol string) {
	delete(e.closes, symbol)
	delete(e.highs, symbol)
}

// seriesChan converts a slice to a closed channel, the input form the
// cinar indicator library computes over.
func seriesChan(values []float64) chan float64 {
	ch := make(chan float64, len(values))
	for _, v := range values {
		ch <- v
	}
	close(ch)
	return ch
}

// collect drains an indicator output channel into a slice.
func collect(ch <-chan float64) []float64 {
	var out []float64
	for v := range ch {
		out = append(out, v)
	}
	return out
}
