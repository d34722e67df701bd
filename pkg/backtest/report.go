// HTML report generation for backtest results
package backtest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"os"
	"sort"
	"time"
)

// ============================================================================
// REPORT GENERATOR
// ============================================================================

// ReportGenerator renders a backtest result as a self-contained HTML
// page: headline metric cards, equity and drawdown charts, the trade
// ledger, and the Kelly sizing suggestion.
type ReportGenerator struct {
	strategyName string
	result       *Result
	kelly        KellySuggestion
}

// NewReportGenerator creates a report generator for one finished run.
func NewReportGenerator(strategyName string, result *Result) (*ReportGenerator, error) {
	if result == nil {
		return nil, fmt.Errorf("backtest: nil result")
	}
	return &ReportGenerator{
		strategyName: strategyName,
		result:       result,
		kelly:        SuggestPositionSize(result.Summary, 0.5),
	}, nil
}

// GenerateHTML renders the complete HTML report.
func (r *ReportGenerator) GenerateHTML() (string, error) {
	tmpl, err := template.New("report").Funcs(template.FuncMap{
		"formatFloat":   formatFloat,
		"formatPercent": formatPercent,
		"formatMoney":   formatMoney,
		"lastTrades": func(trades []TradeRecord, n int) []TradeRecord {
			if len(trades) <= n {
				return trades
			}
			return trades[len(trades)-n:]
		},
	}).Parse(reportTemplate)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, r.prepareTemplateData()); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return buf.String(), nil
}

// SaveToFile saves the HTML report to a file.
func (r *ReportGenerator) SaveToFile(filepath string) error {
	html, err := r.GenerateHTML()
	if err != nil {
		return err
	}
	return os.WriteFile(filepath, []byte(html), 0644)
}

// prepareTemplateData assembles everything the HTML template consumes.
func (r *ReportGenerator) prepareTemplateData() map[string]interface{} {
	return map[string]interface{}{
		"Title":        "Backtest Report",
		"StrategyName": r.strategyName,
		"GeneratedAt":  time.Now(),
		"Summary":      r.result.Summary,
		"Kelly":        r.kelly,
		"KellyPct":     r.kelly.SuggestedFraction * 100,

		"EquityCurveData": template.JS(r.prepareEquityCurveData()),
		"DrawdownData":    template.JS(r.prepareDrawdownData()),
		"ExitReasonData":  template.JS(r.prepareExitReasonData()),

		"Trades":      r.result.Trades,
		"TotalTrades": len(r.result.Trades),
	}
}

// ============================================================================
// CHART DATA PREPARATION
// ============================================================================

// prepareEquityCurveData builds the Chart.js dataset for portfolio
// value against the buy-and-hold benchmark.
func (r *ReportGenerator) prepareEquityCurveData() string {
	history := r.result.PortfolioHistory
	if len(history) == 0 {
		return "{labels: [], datasets: []}"
	}

	labels := make([]string, len(history))
	values := make([]float64, len(history))
	buyHold := make([]float64, len(history))
	for i, point := range history {
		labels[i] = point.Date
		values[i] = point.PortfolioValue
		buyHold[i] = point.BuyHoldValue
	}

	labelsJSON, _ := json.Marshal(labels)
	valuesJSON, _ := json.Marshal(values)
	buyHoldJSON, _ := json.Marshal(buyHold)

	return fmt.Sprintf(`{
		labels: %s,
		datasets: [{
			label: 'Strategy',
			data: %s,
			borderColor: 'rgb(75, 192, 192)',
			backgroundColor: 'rgba(75, 192, 192, 0.1)',
			tension: 0.1,
			fill: true
		}, {
			label: 'Buy & Hold',
			data: %s,
			borderColor: 'rgb(153, 102, 255)',
			borderDash: [6, 4],
			tension: 0.1,
			fill: false
		}]
	}`, labelsJSON, valuesJSON, buyHoldJSON)
}

// prepareDrawdownData builds the running drawdown series.
func (r *ReportGenerator) prepareDrawdownData() string {
	history := r.result.PortfolioHistory
	if len(history) == 0 {
		return "{labels: [], datasets: []}"
	}

	labels := make([]string, len(history))
	drawdowns := make([]float64, len(history))

	peak := history[0].PortfolioValue
	for i, point := range history {
		labels[i] = point.Date
		if point.PortfolioValue > peak {
			peak = point.PortfolioValue
		}
		if peak > 0 {
			drawdowns[i] = (point.PortfolioValue - peak) / peak * 100
		}
	}

	labelsJSON, _ := json.Marshal(labels)
	drawdownsJSON, _ := json.Marshal(drawdowns)

	return fmt.Sprintf(`{
		labels: %s,
		datasets: [{
			label: 'Drawdown (%%)',
			data: %s,
			borderColor: 'rgb(255, 99, 132)',
			backgroundColor: 'rgba(255, 99, 132, 0.1)',
			tension: 0.1,
			fill: true
		}]
	}`, labelsJSON, drawdownsJSON)
}

// prepareExitReasonData builds the exit-reason histogram, ordered by
// reason name so report output is stable.
func (r *ReportGenerator) prepareExitReasonData() string {
	reasons := r.result.ExitAnalysis.Reasons
	if len(reasons) == 0 {
		return "{labels: [], datasets: []}"
	}

	labels := make([]string, 0, len(reasons))
	for reason := range reasons {
		labels = append(labels, reason)
	}
	sort.Strings(labels)

	counts := make([]int, len(labels))
	for i, reason := range labels {
		counts[i] = reasons[reason]
	}

	labelsJSON, _ := json.Marshal(labels)
	countsJSON, _ := json.Marshal(counts)

	return fmt.Sprintf(`{
		labels: %s,
		datasets: [{
			label: 'Exits',
			data: %s,
			backgroundColor: 'rgba(54, 162, 235, 0.5)'
		}]
	}`, labelsJSON, countsJSON)
}

// ============================================================================
// FORMAT HELPERS
// ============================================================================

func formatFloat(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

func formatPercent(v float64) string {
	return fmt.Sprintf("%.2f%%", v)
}

func formatMoney(v float64) string {
	return fmt.Sprintf("$%.2f", v)
}

// ============================================================================
// HTML TEMPLATE
// ============================================================================

const reportTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
	<meta charset="UTF-8">
	<title>{{.Title}} - {{.StrategyName}}</title>
	<script src="https://cdn.jsdelivr.net/npm/chart.js"></script>
	<style>
		body { font-family: -apple-system, 'Segoe UI', Roboto, sans-serif; margin: 0; background: #f5f6fa; color: #2c3e50; }
		.container { max-width: 1100px; margin: 0 auto; padding: 24px; }
		h1 { margin-bottom: 4px; }
		.subtitle { color: #7f8c8d; margin-bottom: 24px; }
		.cards { display: grid; grid-template-columns: repeat(auto-fit, minmax(180px, 1fr)); gap: 12px; margin-bottom: 24px; }
		.card { background: white; border-radius: 8px; padding: 16px; box-shadow: 0 1px 3px rgba(0,0,0,0.08); }
		.card .label { font-size: 12px; text-transform: uppercase; color: #7f8c8d; }
		.card .value { font-size: 22px; font-weight: 600; margin-top: 4px; }
		.positive { color: #27ae60; }
		.negative { color: #e74c3c; }
		.chart-box { background: white; border-radius: 8px; padding: 16px; margin-bottom: 24px; box-shadow: 0 1px 3px rgba(0,0,0,0.08); }
		table { width: 100%; border-collapse: collapse; background: white; border-radius: 8px; overflow: hidden; }
		th, td { padding: 8px 12px; text-align: right; font-size: 13px; }
		th { background: #34495e; color: white; }
		th:first-child, td:first-child { text-align: left; }
		tr:nth-child(even) { background: #f8f9fa; }
		.note { font-size: 13px; color: #7f8c8d; margin-top: 8px; }
	</style>
</head>
<body>
<div class="container">
	<h1>{{.StrategyName}}</h1>
	<div class="subtitle">{{.Summary.StartDate}} to {{.Summary.EndDate}} ({{.Summary.TradingDays}} trading days) &middot; generated {{.GeneratedAt.Format "2006-01-02 15:04"}}</div>

	<div class="cards">
		<div class="card">
			<div class="label">Total Return</div>
			<div class="value {{if ge .Summary.TotalReturnPct 0.0}}positive{{else}}negative{{end}}">{{formatPercent .Summary.TotalReturnPct}}</div>
		</div>
		<div class="card">
			<div class="label">Buy &amp; Hold</div>
			<div class="value">{{formatPercent .Summary.BuyHoldReturnPct}}</div>
		</div>
		<div class="card">
			<div class="label">Final Equity</div>
			<div class="value">{{formatMoney .Summary.FinalEquity}}</div>
		</div>
		<div class="card">
			<div class="label">Sharpe Ratio</div>
			<div class="value">{{formatFloat .Summary.SharpeRatio}}</div>
		</div>
		<div class="card">
			<div class="label">Max Drawdown</div>
			<div class="value negative">{{formatPercent .Summary.MaxDrawdownPct}}</div>
		</div>
		<div class="card">
			<div class="label">Win Rate</div>
			<div class="value">{{formatPercent .Summary.WinRate}}</div>
		</div>
		<div class="card">
			<div class="label">Trades</div>
			<div class="value">{{.Summary.TotalTrades}}</div>
		</div>
		<div class="card">
			<div class="label">Profit Factor</div>
			<div class="value">{{formatFloat .Summary.ProfitFactor}}</div>
		</div>
	</div>

	<div class="chart-box">
		<h3>Equity Curve</h3>
		<canvas id="equityChart" height="90"></canvas>
	</div>

	<div class="chart-box">
		<h3>Drawdown</h3>
		<canvas id="drawdownChart" height="70"></canvas>
	</div>

	<div class="chart-box">
		<h3>Exit Reasons</h3>
		<canvas id="exitChart" height="70"></canvas>
	</div>

	<div class="chart-box">
		<h3>Position Sizing (Kelly)</h3>
		<p>Suggested fraction of capital per position: <strong>{{formatPercent .KellyPct}}</strong></p>
		<p class="note">{{.Kelly.Recommendation}}{{if not .Kelly.Reliable}} (sample too small for the criterion; conservative default shown){{end}}</p>
	</div>

	<div class="chart-box">
		<h3>Trades{{if gt .TotalTrades 50}} (last 50){{end}}</h3>
		<table>
			<tr>
				<th>Symbol</th><th>Entry</th><th>Exit</th><th>Entry $</th><th>Exit $</th>
				<th>Shares</th><th>P&amp;L</th><th>P&amp;L %</th><th>Days</th><th>Exit Reason</th>
			</tr>
			{{range lastTrades .Trades 50}}
			<tr>
				<td>{{.Symbol}}</td>
				<td>{{.EntryDate}}</td>
				<td>{{.ExitDate}}</td>
				<td>{{formatMoney .EntryPrice}}</td>
				<td>{{formatMoney .ExitPrice}}</td>
				<td>{{formatFloat .Shares}}</td>
				<td class="{{if ge .PnL 0.0}}positive{{else}}negative{{end}}">{{formatMoney .PnL}}</td>
				<td class="{{if ge .PnLPct 0.0}}positive{{else}}negative{{end}}">{{formatPercent .PnLPct}}</td>
				<td>{{.DaysHeld}}</td>
				<td>{{.ExitReason}}</td>
			</tr>
			{{end}}
		</table>
	</div>
</div>

<script>
	new Chart(document.getElementById('equityChart'), { type: 'line', data: {{.EquityCurveData}}, options: { responsive: true } });
	new Chart(document.getElementById('drawdownChart'), { type: 'line', data: {{.DrawdownData}}, options: { responsive: true } });
	new Chart(document.getElementById('exitChart'), { type: 'bar', data: {{.ExitReasonData}}, options: { responsive: true } });
</script>
</body>
</html>`
