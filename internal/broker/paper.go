package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/stockfunk/internal/marketdata"
)

// qtyEpsilon absorbs float64 dust when deciding a position is gone.
const qtyEpsilon = 1e-9

// PaperBroker simulates a brokerage account in memory. Market orders
// fill immediately at the current price; buys reject when cash cannot
// cover the notional, sells reject when the position cannot cover the
// quantity. Buys blend into the position at a weighted-average entry
// price; sells reduce cost basis proportionally.
type PaperBroker struct {
	mu sync.RWMutex

	cash      float64
	positions map[string]*Position
	orders    map[string]*Order
	prices    map[string]float64

	// Optional market data source for GetBars and for prices that were
	// never set explicitly.
	data marketdata.Provider
}

// NewPaperBroker creates a simulated broker with the given starting cash.
func NewPaperBroker(initialCash float64) *PaperBroker {
	log.Info().Float64("initial_cash", initialCash).Msg("Paper broker initialized")
	return &PaperBroker{
		cash:      initialCash,
		positions: make(map[string]*Position),
		orders:    make(map[string]*Order),
		prices:    make(map[string]float64),
	}
}

// NewPaperBrokerWithData creates a simulated broker that can also serve
// bars and live prices from a market data provider.
func NewPaperBrokerWithData(initialCash float64, data marketdata.Provider) *PaperBroker {
	b := NewPaperBroker(initialCash)
	b.data = data
	return b
}

// SetMarketPrice sets the current price used to fill orders and value
// positions for a symbol.
func (b *PaperBroker) SetMarketPrice(symbol string, price float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prices[symbol] = price
}

// GetAccount returns the account snapshot. Portfolio value is cash plus
// every position valued at its current price.
func (b *PaperBroker) GetAccount(ctx context.Context) (*Account, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	positionsValue := 0.0
	for symbol, pos := range b.positions {
		positionsValue += pos.Quantity * b.markPrice(symbol, pos)
	}

	return &Account{
		ID:             "paper",
		Cash:           b.cash,
		PortfolioValue: b.cash + positionsValue,
		BuyingPower:    b.cash,
		Currency:       "USD",
	}, nil
}

// GetPosition returns the position for a symbol, marked to the current
// price, or ErrNoPosition.
func (b *PaperBroker) GetPosition(ctx context.Context, symbol string) (*Position, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	pos, exists := b.positions[symbol]
	if !exists {
		return nil, ErrNoPosition
	}
	return b.snapshotPosition(pos), nil
}

// GetAllPositions returns every open position marked to current prices.
func (b *PaperBroker) GetAllPositions(ctx context.Context) ([]*Position, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]*Position, 0, len(b.positions))
	for _, pos := range b.positions {
		out = append(out, b.snapshotPosition(pos))
	}
	return out, nil
}

// SubmitOrder validates and executes an order. Market orders fill
// immediately; limit orders fill immediately when marketable and stay
// pending otherwise.
func (b *PaperBroker) SubmitOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	order := &Order{
		ID:         uuid.New().String(),
		Symbol:     req.Symbol,
		Side:       req.Side,
		Type:       req.Type,
		Quantity:   req.Quantity,
		LimitPrice: req.LimitPrice,
		Status:     OrderStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	order.BrokerOrderID = order.ID
	b.orders[order.ID] = order

	if err := validateRequest(req); err != nil {
		b.reject(order, err.Error())
		return order, nil
	}

	price, ok := b.prices[req.Symbol]
	if !ok {
		price, ok = b.fetchPrice(ctx, req.Symbol)
	}
	if !ok {
		return nil, brokerError("submit_order", req.Symbol, fmt.Errorf("no market price available"))
	}

	if req.Type == OrderTypeLimit && !marketable(req, price) {
		// Stays pending until cancelled; the simulator does not model a
		// resting book.
		log.Debug().
			Str("order_id", order.ID).
			Str("symbol", req.Symbol).
			Float64("limit_price", req.LimitPrice).
			Float64("market_price", price).
			Msg("Limit order not marketable, left pending")
		return order, nil
	}

	b.fill(order, price)
	return order, nil
}

// CancelOrder cancels a pending order. Terminal orders cannot change.
func (b *PaperBroker) CancelOrder(ctx context.Context, orderID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	order, exists := b.orders[orderID]
	if !exists {
		return ErrOrderNotFound
	}
	if order.Status.IsTerminal() {
		return brokerError("cancel_order", order.Symbol, fmt.Errorf("order is %s", order.Status))
	}

	order.Status = OrderStatusCancelled
	order.UpdatedAt = time.Now()

	log.Info().Str("order_id", orderID).Msg("Order cancelled")
	return nil
}

// GetOrder retrieves an order by ID.
func (b *PaperBroker) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	order, exists := b.orders[orderID]
	if !exists {
		return nil, ErrOrderNotFound
	}
	copied := *order
	return &copied, nil
}

// GetBars serves bars from the configured market data provider.
func (b *PaperBroker) GetBars(ctx context.Context, symbol string, tf marketdata.Timeframe, start, end time.Time) ([]marketdata.Bar, error) {
	if b.data == nil {
		return nil, brokerError("get_bars", symbol, fmt.Errorf("no market data provider configured"))
	}
	return b.data.GetBars(ctx, symbol, tf, start, end)
}

// GetCurrentPrice returns the explicitly set price, falling back to the
// market data provider.
func (b *PaperBroker) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	b.mu.RLock()
	price, ok := b.prices[symbol]
	b.mu.RUnlock()
	if ok {
		return price, nil
	}

	if b.data != nil {
		return b.data.GetCurrentPrice(ctx, symbol)
	}
	return 0, brokerError("get_current_price", symbol, fmt.Errorf("no market price available"))
}

// ClosePosition sells the entire position in a symbol at market.
func (b *PaperBroker) ClosePosition(ctx context.Context, symbol string) (*Order, error) {
	b.mu.RLock()
	pos, exists := b.positions[symbol]
	var qty float64
	if exists {
		qty = pos.Quantity
	}
	b.mu.RUnlock()

	if !exists {
		return nil, ErrNoPosition
	}

	return b.SubmitOrder(ctx, OrderRequest{
		Symbol:   symbol,
		Side:     OrderSideSell,
		Type:     OrderTypeMarket,
		Quantity: qty,
	})
}

// CloseAllPositions liquidates every position. It keeps going past
// individual failures and returns the orders it placed.
func (b *PaperBroker) CloseAllPositions(ctx context.Context) ([]*Order, error) {
	b.mu.RLock()
	symbols := make([]string, 0, len(b.positions))
	for symbol := range b.positions {
		symbols = append(symbols, symbol)
	}
	b.mu.RUnlock()

	orders := make([]*Order, 0, len(symbols))
	var firstErr error
	for _, symbol := range symbols {
		order, err := b.ClosePosition(ctx, symbol)
		if err != nil {
			log.Error().Err(err).Str("symbol", symbol).Msg("Failed to close position")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		orders = append(orders, order)
	}
	return orders, firstErr
}

// fill executes the order at price, updating cash and positions. Called
// with the lock held.
func (b *PaperBroker) fill(order *Order, price float64) {
	notional := order.Quantity * price

	switch order.Side {
	case OrderSideBuy:
		if notional > b.cash {
			b.reject(order, fmt.Sprintf("insufficient cash: need %.2f, have %.2f", notional, b.cash))
			return
		}
		b.applyBuy(order.Symbol, order.Quantity, price)
		b.cash -= notional

	case OrderSideSell:
		pos, exists := b.positions[order.Symbol]
		if !exists || pos.Quantity+qtyEpsilon < order.Quantity {
			held := 0.0
			if exists {
				held = pos.Quantity
			}
			b.reject(order, fmt.Sprintf("insufficient shares: need %v, have %v", order.Quantity, held))
			return
		}
		b.applySell(order.Symbol, order.Quantity)
		b.cash += notional
	}

	now := time.Now()
	order.FilledQty = order.Quantity
	order.FilledAvgPrice = price
	order.Status = OrderStatusFilled
	order.UpdatedAt = now
	order.FilledAt = &now

	log.Info().
		Str("order_id", order.ID).
		Str("symbol", order.Symbol).
		Str("side", string(order.Side)).
		Float64("quantity", order.Quantity).
		Float64("price", price).
		Msg("Paper order filled")
}

// applyBuy blends the purchase into the position at a weighted-average
// entry price. Called with the lock held.
func (b *PaperBroker) applyBuy(symbol string, qty, price float64) {
	pos, exists := b.positions[symbol]
	if !exists {
		b.positions[symbol] = &Position{
			Symbol:        symbol,
			Quantity:      qty,
			AvgEntryPrice: price,
			CostBasis:     qty * price,
		}
		return
	}

	newQty := pos.Quantity + qty
	pos.AvgEntryPrice = (pos.AvgEntryPrice*pos.Quantity + price*qty) / newQty
	pos.CostBasis += qty * price
	pos.Quantity = newQty
}

// applySell reduces the position, removing cost basis in proportion to
// the quantity sold. A position sold to zero is deleted. Called with the
// lock held.
func (b *PaperBroker) applySell(symbol string, qty float64) {
	pos := b.positions[symbol]

	ratio := qty / pos.Quantity
	pos.CostBasis -= pos.CostBasis * ratio
	pos.Quantity -= qty

	if pos.Quantity <= qtyEpsilon {
		delete(b.positions, symbol)
	}
}

func (b *PaperBroker) reject(order *Order, reason string) {
	order.Status = OrderStatusRejected
	order.RejectReason = reason
	order.UpdatedAt = time.Now()

	log.Warn().
		Str("order_id", order.ID).
		Str("symbol", order.Symbol).
		Str("side", string(order.Side)).
		Str("reason", reason).
		Msg("Paper order rejected")
}

// markPrice values a position at the last known price, falling back to
// the entry price when the symbol has never traded here.
func (b *PaperBroker) markPrice(symbol string, pos *Position) float64 {
	if price, ok := b.prices[symbol]; ok {
		return price
	}
	return pos.AvgEntryPrice
}

// snapshotPosition copies a position with valuation fields filled in.
// Called with at least a read lock held.
func (b *PaperBroker) snapshotPosition(pos *Position) *Position {
	price := b.markPrice(pos.Symbol, pos)
	copied := *pos
	copied.CurrentPrice = price
	copied.MarketValue = pos.Quantity * price
	copied.UnrealizedPL = pos.Quantity*price - pos.CostBasis
	return &copied
}

// fetchPrice asks the data provider for a price when none was set.
// Called with the lock held.
func (b *PaperBroker) fetchPrice(ctx context.Context, symbol string) (float64, bool) {
	if b.data == nil {
		return 0, false
	}
	price, err := b.data.GetCurrentPrice(ctx, symbol)
	if err != nil || price <= 0 {
		return 0, false
	}
	b.prices[symbol] = price
	return price, true
}

func validateRequest(req OrderRequest) error {
	if req.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	if req.Side != OrderSideBuy && req.Side != OrderSideSell {
		return fmt.Errorf("invalid order side: %s", req.Side)
	}
	if req.Type != OrderTypeMarket && req.Type != OrderTypeLimit {
		return fmt.Errorf("invalid order type: %s", req.Type)
	}
	if req.Quantity <= 0 {
		return fmt.Errorf("quantity must be positive")
	}
	if req.Type == OrderTypeLimit && req.LimitPrice <= 0 {
		return fmt.Errorf("limit orders must have a positive price")
	}
	return nil
}

// marketable reports whether a limit order would execute against the
// current price.
func marketable(req OrderRequest, price float64) bool {
	if req.Side == OrderSideBuy {
		return req.LimitPrice >= price
	}
	return req.LimitPrice <= price
}
