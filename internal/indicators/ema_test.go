package indicators

import (
	"math"
	"testing"
)

func TestEMAConstantSeries(t *testing.T) {
	e := NewEngine()
	for i := 0; i < 10; i++ {
		e.Update("AAPL", 5.0, 5.0)
	}

	value, ok := e.EMA("AAPL", 4)
	if !ok {
		t.Fatal("EMA should be available with 10 bars and span 4")
	}
	if math.Abs(value-5.0) > 1e-9 {
		t.Errorf("EMA of a constant series = %v, want 5.0", value)
	}
}

func TestEMATracksTrend(t *testing.T) {
	e := NewEngine()
	for i := 0; i < 20; i++ {
		price := 100 + float64(i)
		e.Update("AAPL", price, price)
	}

	value, ok := e.EMA("AAPL", 5)
	if !ok {
		t.Fatal("EMA should be available")
	}
	last, _ := e.LastClose("AAPL")
	if value >= last {
		t.Errorf("EMA (%v) should lag below the last close (%v) in an uptrend", value, last)
	}
	if value <= 100 {
		t.Errorf("EMA (%v) should have risen above the first close", value)
	}
}

func TestEMAInsufficientData(t *testing.T) {
	e := NewEngine()
	feed(e, "AAPL", 1, 2, 3)
	if _, ok := e.EMA("AAPL", 5); ok {
		t.Error("EMA should be unavailable with fewer bars than the span")
	}
	if _, ok := e.EMA("AAPL", 0); ok {
		t.Error("EMA should reject a non-positive span")
	}
}
