package live

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ajitpratap0/stockfunk/internal/db"
)

// positionEpsilon absorbs float64 dust when a position is sold to zero.
const positionEpsilon = 1e-9

// VirtualPosition is one symbol's holding inside a deployment's virtual
// portfolio.
type VirtualPosition struct {
	Symbol        string
	Quantity      float64
	AvgEntryPrice float64
	RealizedPnL   float64
	OpenedAt      time.Time
}

// Portfolio is a deployment's virtual account, reconstructed from the
// deployment's own filled trade rows. The shared broker account is
// never consulted: two deployments trading the same symbols through the
// same account each see only their own cash and positions.
type Portfolio struct {
	InitialCapital float64
	Cash           float64
	RealizedPnL    float64
	TotalTrades    int
	WinningTrades  int
	LosingTrades   int

	positions map[string]*VirtualPosition
}

// NewPortfolio creates an empty portfolio holding only cash.
func NewPortfolio(initialCapital float64) *Portfolio {
	return &Portfolio{
		InitialCapital: initialCapital,
		Cash:           initialCapital,
		positions:      make(map[string]*VirtualPosition),
	}
}

// ReplayTrades rebuilds a deployment's virtual portfolio from its filled
// trades in execution order. Non-filled rows must already be excluded
// by the caller; the replay trusts its input.
func ReplayTrades(initialCapital float64, trades []*db.DeploymentTrade) *Portfolio {
	p := NewPortfolio(initialCapital)
	for _, trade := range trades {
		p.Apply(trade.Side, trade.Symbol, trade.Quantity, trade.Price, trade.ExecutedAt)
	}
	return p
}

// Apply records one fill against the portfolio: buys consume cash and
// move the weighted-average entry, sells free cash, realize P&L against
// the average entry, and drop the position once quantity reaches zero.
func (p *Portfolio) Apply(side db.TradeSide, symbol string, qty, price float64, executedAt time.Time) {
	if qty <= 0 || price <= 0 {
		return
	}
	notional := qty * price
	p.TotalTrades++

	switch side {
	case db.TradeSideBuy:
		p.Cash -= notional
		pos, ok := p.positions[symbol]
		if !ok {
			p.positions[symbol] = &VirtualPosition{
				Symbol:        symbol,
				Quantity:      qty,
				AvgEntryPrice: price,
				OpenedAt:      executedAt,
			}
			return
		}
		pos.AvgEntryPrice = (pos.AvgEntryPrice*pos.Quantity + notional) / (pos.Quantity + qty)
		pos.Quantity += qty

	case db.TradeSideSell:
		p.Cash += notional
		pos, ok := p.positions[symbol]
		if !ok {
			return
		}
		if qty > pos.Quantity {
			qty = pos.Quantity
		}
		realized := (price - pos.AvgEntryPrice) * qty
		pos.RealizedPnL += realized
		p.RealizedPnL += realized
		if realized >= 0 {
			p.WinningTrades++
		} else {
			p.LosingTrades++
		}

		pos.Quantity -= qty
		if pos.Quantity <= positionEpsilon {
			delete(p.positions, symbol)
		}
	}
}

// Position returns the open holding for a symbol, or nil when flat.
func (p *Portfolio) Position(symbol string) *VirtualPosition {
	return p.positions[symbol]
}

// Symbols returns the symbols with open positions in lexical order.
func (p *Portfolio) Symbols() []string {
	symbols := make([]string, 0, len(p.positions))
	for symbol := range p.positions {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

// UnrealizedPnL sums qty x (current - entry) over open positions.
// Symbols missing from prices contribute zero.
func (p *Portfolio) UnrealizedPnL(prices map[string]float64) float64 {
	var total float64
	for symbol, pos := range p.positions {
		if price, ok := prices[symbol]; ok {
			total += pos.Quantity * (price - pos.AvgEntryPrice)
		}
	}
	return total
}

// PositionsValue sums the market value of open positions. Symbols
// missing from prices are valued at their entry price, the conservative
// stand-in when a quote is unavailable.
func (p *Portfolio) PositionsValue(prices map[string]float64) float64 {
	var total float64
	for symbol, pos := range p.positions {
		price, ok := prices[symbol]
		if !ok {
			price = pos.AvgEntryPrice
		}
		total += pos.Quantity * price
	}
	return total
}

// Value is the virtual portfolio value: cash plus open position value.
func (p *Portfolio) Value(prices map[string]float64) float64 {
	return p.Cash + p.PositionsValue(prices)
}

// TotalReturnPct is the portfolio's return over initial capital, in
// percent.
func (p *Portfolio) TotalReturnPct(prices map[string]float64) float64 {
	if p.InitialCapital <= 0 {
		return 0
	}
	return (p.Value(prices) - p.InitialCapital) / p.InitialCapital * 100
}

// PositionRows converts the portfolio's open positions into repository
// rows for the (deployment_id, symbol) snapshot upsert. Symbols the
// portfolio recently closed are not included; the repository deletes
// rows absent from the snapshot via zero-quantity markers supplied by
// the caller.
func (p *Portfolio) PositionRows(deploymentID uuid.UUID, prices map[string]float64) []*db.DeploymentPosition {
	rows := make([]*db.DeploymentPosition, 0, len(p.positions))
	for _, symbol := range p.Symbols() {
		pos := p.positions[symbol]
		price, ok := prices[symbol]
		if !ok {
			price = pos.AvgEntryPrice
		}
		rows = append(rows, &db.DeploymentPosition{
			DeploymentID:  deploymentID,
			Symbol:        symbol,
			Quantity:      pos.Quantity,
			AvgEntryPrice: pos.AvgEntryPrice,
			CurrentPrice:  price,
			MarketValue:   pos.Quantity * price,
			UnrealizedPnL: pos.Quantity * (price - pos.AvgEntryPrice),
			RealizedPnL:   pos.RealizedPnL,
			OpenedAt:      pos.OpenedAt,
		})
	}
	return rows
}

// MetricsRow builds the point-in-time metrics snapshot written after a
// tick.
func (p *Portfolio) MetricsRow(deploymentID uuid.UUID, prices map[string]float64, at time.Time) *db.DeploymentMetrics {
	return &db.DeploymentMetrics{
		DeploymentID:   deploymentID,
		Time:           at,
		Equity:         p.Value(prices),
		Cash:           p.Cash,
		PositionsValue: p.PositionsValue(prices),
		UnrealizedPnL:  p.UnrealizedPnL(prices),
		RealizedPnL:    p.RealizedPnL,
		TotalReturnPct: p.TotalReturnPct(prices),
		TotalTrades:    p.TotalTrades,
		WinningTrades:  p.WinningTrades,
		LosingTrades:   p.LosingTrades,
	}
}
