package indicators

import (
	"testing"
)

// feed pushes closes into the engine using the close as the bar high.
func feed(e *Engine, symbol string, closes ...float64) {
	for _, c := range closes {
		e.Update(symbol, c, c)
	}
}

func TestEngineWindowEviction(t *testing.T) {
	e := NewEngineWithWindow(5)
	feed(e, "AAPL", 1, 2, 3, 4, 5, 6, 7, 8, 9, 10)

	if got := e.BarCount("AAPL"); got != 5 {
		t.Errorf("BarCount = %d, want 5", got)
	}
	last, ok := e.LastClose("AAPL")
	if !ok || last != 10 {
		t.Errorf("LastClose = (%v, %v), want (10, true)", last, ok)
	}
	closes := e.Closes("AAPL")
	if len(closes) != 5 || closes[0] != 6 {
		t.Errorf("Closes = %v, want [6 7 8 9 10]", closes)
	}
}

func TestEngineLastCloseUnknownSymbol(t *testing.T) {
	e := NewEngine()
	if _, ok := e.LastClose("MSFT"); ok {
		t.Error("LastClose should report ok=false for an unseen symbol")
	}
	if got := e.BarCount("MSFT"); got != 0 {
		t.Errorf("BarCount = %d, want 0", got)
	}
}

func TestEnginePriorHigh(t *testing.T) {
	e := NewEngine()
	for _, h := range []float64{10, 20, 30, 40, 50, 60} {
		e.Update("AAPL", h, h)
	}

	// Prior 3 bars before the current one are 30, 40, 50.
	high, ok := e.PriorHigh("AAPL", 3)
	if !ok {
		t.Fatal("PriorHigh should be available with 6 bars and period 3")
	}
	if high != 50 {
		t.Errorf("PriorHigh = %v, want 50", high)
	}

	// The current bar's own high must be excluded, otherwise a close
	// could never break out above it.
	last, _ := e.LastClose("AAPL")
	if last <= high {
		t.Errorf("current close %v should exceed prior high %v in this fixture", last, high)
	}
}

func TestEnginePriorHighInsufficientBars(t *testing.T) {
	e := NewEngine()
	feed(e, "AAPL", 10, 11, 12)
	if _, ok := e.PriorHigh("AAPL", 3); ok {
		t.Error("PriorHigh needs period+1 bars, should report ok=false with 3 bars")
	}
}

func TestEngineSymbolIsolation(t *testing.T) {
	e := NewEngine()
	up := make([]float64, 0, 30)
	down := make([]float64, 0, 30)
	for i := 0; i < 30; i++ {
		up = append(up, 100+float64(i))
		down = append(down, 100-float64(i))
	}
	feed(e, "AAPL", up...)
	feed(e, "MSFT", down...)

	rsiUp, ok := e.RSI("AAPL", 14)
	if !ok {
		t.Fatal("RSI should be available for AAPL")
	}
	rsiDown, ok := e.RSI("MSFT", 14)
	if !ok {
		t.Fatal("RSI should be available for MSFT")
	}
	if rsiUp <= rsiDown {
		t.Errorf("rising symbol RSI (%v) should exceed falling symbol RSI (%v)", rsiUp, rsiDown)
	}
}

func TestEngineReset(t *testing.T) {
	e := NewEngine()
	feed(e, "AAPL", 1, 2, 3)
	e.Reset("AAPL")
	if got := e.BarCount("AAPL"); got != 0 {
		t.Errorf("BarCount after Reset = %d, want 0", got)
	}
}
