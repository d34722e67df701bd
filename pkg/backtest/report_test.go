package backtest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/stockfunk/internal/marketdata"
)

func reportResult(t *testing.T) *Result {
	t.Helper()
	return runEngine(t, priceSpec(0.05, 0.02, 1.0), 10_000,
		map[string][]marketdata.Bar{"AAPL": closeBars("AAPL", 100, 106, 104)}, nil)
}

func TestNewReportGenerator_NilResult(t *testing.T) {
	_, err := NewReportGenerator("x", nil)
	assert.Error(t, err)
}

func TestGenerateHTML_ContainsHeadlineSections(t *testing.T) {
	gen, err := NewReportGenerator("RSI Mean Reversion", reportResult(t))
	require.NoError(t, err)

	html, err := gen.GenerateHTML()
	require.NoError(t, err)

	assert.Contains(t, html, "<title>Backtest Report - RSI Mean Reversion</title>")
	assert.Contains(t, html, "Equity Curve")
	assert.Contains(t, html, "Drawdown")
	assert.Contains(t, html, "Exit Reasons")
	assert.Contains(t, html, "Position Sizing (Kelly)")
	assert.Contains(t, html, "6.00%", "total return card")
	assert.Contains(t, html, "$10600.00", "final equity card")
}

func TestGenerateHTML_TradeLedgerRows(t *testing.T) {
	gen, err := NewReportGenerator("ledger", reportResult(t))
	require.NoError(t, err)

	html, err := gen.GenerateHTML()
	require.NoError(t, err)

	assert.Contains(t, html, "take_profit")
	assert.Contains(t, html, "end_of_period")
	assert.Contains(t, html, "2024-08-02")
}

func TestGenerateHTML_ChartDataIsValidSeries(t *testing.T) {
	gen, err := NewReportGenerator("charts", reportResult(t))
	require.NoError(t, err)

	html, err := gen.GenerateHTML()
	require.NoError(t, err)

	// Labels come straight from the equity curve; the benchmark series
	// is rendered alongside the strategy.
	assert.Contains(t, html, `"2024-08-01"`)
	assert.Contains(t, html, "Buy & Hold")
	assert.Equal(t, 1, strings.Count(html, "drawdownChart')"), "one drawdown chart binding")
}

func TestGenerateHTML_EmptyHistory(t *testing.T) {
	gen, err := NewReportGenerator("empty", &Result{})
	require.NoError(t, err)

	html, err := gen.GenerateHTML()
	require.NoError(t, err)
	assert.Contains(t, html, "{labels: [], datasets: []}")
}

func TestSaveToFile(t *testing.T) {
	gen, err := NewReportGenerator("save", reportResult(t))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "report.html")
	require.NoError(t, gen.SaveToFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "<!DOCTYPE html>"))
}
