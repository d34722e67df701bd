package backtest

// dayFormat renders trading dates in results; daily bars carry no
// useful intraday component.
const dayFormat = "2006-01-02"

// Result is the complete outcome of one backtest run.
type Result struct {
	Summary          Summary          `json:"summary"`
	PortfolioHistory []PortfolioPoint `json:"portfolio_history"`
	Trades           []TradeRecord    `json:"trades"`
	AdditionalInfo   []DayInfo        `json:"additional_info"`
	ExitAnalysis     ExitAnalysis     `json:"exit_condition_analysis"`
}

// Summary holds the headline metrics. All *Pct fields are percentages
// (5.0 means five percent); dollar fields are in account currency.
type Summary struct {
	StartDate      string  `json:"start_date"`
	EndDate        string  `json:"end_date"`
	TradingDays    int     `json:"trading_days"`
	InitialCapital float64 `json:"initial_capital"`
	FinalEquity    float64 `json:"final_equity"`

	TotalReturnPct   float64 `json:"total_return_pct"`
	BuyHoldReturnPct float64 `json:"buy_hold_return_pct"`
	SharpeRatio      float64 `json:"sharpe_ratio"`
	MaxDrawdownPct   float64 `json:"max_drawdown_pct"`

	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	WinRate       float64 `json:"win_rate"`
	AverageWin    float64 `json:"average_win"`
	AverageLoss   float64 `json:"average_loss"`
	LargestWin    float64 `json:"largest_win"`
	LargestLoss   float64 `json:"largest_loss"`
	AvgDaysHeld   float64 `json:"avg_days_held"`
	ProfitFactor  float64 `json:"profit_factor"`
}

// PortfolioPoint is one day of the equity curve. Price and
// BuyHoldValue track the benchmark symbol: the buy-and-hold value
// assumes the initial capital bought at the first available close and
// held throughout.
type PortfolioPoint struct {
	Date           string  `json:"date"`
	PortfolioValue float64 `json:"portfolio_value"`
	Cash           float64 `json:"cash"`
	PositionsValue float64 `json:"positions_value"`
	Price          float64 `json:"price"`
	BuyHoldValue   float64 `json:"buy_hold_value"`
}

// TradeRecord is one closed round-trip. A partial take-profit closes
// part of the round-trip and is recorded with its own exit reason; the
// remainder appears as a later record sharing the entry.
type TradeRecord struct {
	Symbol      string  `json:"symbol"`
	EntryDate   string  `json:"entry_date"`
	ExitDate    string  `json:"exit_date"`
	EntryPrice  float64 `json:"entry_price"`
	ExitPrice   float64 `json:"exit_price"`
	Shares      float64 `json:"shares"`
	PnL         float64 `json:"pnl"`
	PnLPct      float64 `json:"pnl_pct"`
	EntryReason string  `json:"entry_reason"`
	ExitReason  string  `json:"exit_reason"`
	DaysHeld    int     `json:"days_held"`
}

// DayInfo is one per-day diagnostic row for one symbol: the indicator
// values behind the strategy's conditions, the resolved sentiment
// (null when no data existed for that date), and the position state
// after the day's executions. Stop and take-profit levels are prices;
// after a partial exit the stop level trails the high and the
// take-profit level disappears.
type DayInfo struct {
	Date            string             `json:"date"`
	Symbol          string             `json:"symbol"`
	Close           float64            `json:"close"`
	Indicators      map[string]float64 `json:"indicators,omitempty"`
	Sentiment       *float64           `json:"sentiment"`
	HasPosition     bool               `json:"has_position"`
	EntryPrice      float64            `json:"entry_price,omitempty"`
	UnrealizedPL    float64            `json:"unrealized_pl,omitempty"`
	StopLossLevel   float64            `json:"stop_loss_level,omitempty"`
	TakeProfitLevel float64            `json:"take_profit_level,omitempty"`
}

// ExitAnalysis summarizes how positions were closed: a histogram of
// exit reasons and the mean trade P&L percentage per reason.
type ExitAnalysis struct {
	Reasons   map[string]int     `json:"reasons"`
	AvgPnLPct map[string]float64 `json:"avg_pnl_pct"`
}
