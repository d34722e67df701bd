package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/ajitpratap0/stockfunk/internal/marketdata"
)

// AlpacaBroker routes orders to the Alpaca trading API. Market data
// queries delegate to an injected provider so they share the cache with
// the rest of the system.
type AlpacaBroker struct {
	client *alpaca.Client
	data   marketdata.Provider
	retry  RetryConfig
}

// AlpacaConfig carries credentials for the trading API.
type AlpacaConfig struct {
	APIKey    string
	APISecret string
	BaseURL   string // paper: https://paper-api.alpaca.markets
	Retry     RetryConfig
}

// NewAlpacaBroker creates a broker backed by the Alpaca trading API.
func NewAlpacaBroker(cfg AlpacaConfig, data marketdata.Provider) (*AlpacaBroker, error) {
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("alpaca trading credentials are required")
	}

	client := alpaca.NewClient(alpaca.ClientOpts{
		APIKey:    cfg.APIKey,
		APISecret: cfg.APISecret,
		BaseURL:   cfg.BaseURL,
	})

	retry := cfg.Retry
	if retry.MaxRetries == 0 && retry.InitialBackoff == 0 {
		retry = DefaultRetryConfig()
	}

	log.Info().Str("base_url", cfg.BaseURL).Msg("Alpaca broker initialized")

	return &AlpacaBroker{client: client, data: data, retry: retry}, nil
}

// GetAccount returns the live account snapshot.
func (b *AlpacaBroker) GetAccount(ctx context.Context) (*Account, error) {
	var acct *alpaca.Account
	err := WithRetry(ctx, b.retry, func() error {
		var callErr error
		acct, callErr = b.client.GetAccount()
		return callErr
	})
	if err != nil {
		return nil, brokerError("get_account", "", err)
	}

	cash, _ := acct.Cash.Float64()
	equity, _ := acct.Equity.Float64()
	buyingPower, _ := acct.BuyingPower.Float64()

	return &Account{
		ID:             acct.ID,
		Cash:           cash,
		PortfolioValue: equity,
		BuyingPower:    buyingPower,
		Currency:       acct.Currency,
	}, nil
}

// GetPosition returns the live position for a symbol, mapping the
// API's not-found response to ErrNoPosition.
func (b *AlpacaBroker) GetPosition(ctx context.Context, symbol string) (*Position, error) {
	var pos *alpaca.Position
	err := WithRetry(ctx, b.retry, func() error {
		var callErr error
		pos, callErr = b.client.GetPosition(symbol)
		return callErr
	})
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNoPosition
		}
		return nil, brokerError("get_position", symbol, err)
	}

	return convertAlpacaPosition(pos), nil
}

// GetAllPositions returns every open position in the live account.
func (b *AlpacaBroker) GetAllPositions(ctx context.Context) ([]*Position, error) {
	var raw []alpaca.Position
	err := WithRetry(ctx, b.retry, func() error {
		var callErr error
		raw, callErr = b.client.GetPositions()
		return callErr
	})
	if err != nil {
		return nil, brokerError("get_all_positions", "", err)
	}

	positions := make([]*Position, 0, len(raw))
	for i := range raw {
		positions = append(positions, convertAlpacaPosition(&raw[i]))
	}
	return positions, nil
}

// SubmitOrder submits an order to Alpaca. API-level rejections surface
// as orders with status rejected.
func (b *AlpacaBroker) SubmitOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	if err := validateRequest(req); err != nil {
		now := time.Now()
		return &Order{
			Symbol:       req.Symbol,
			Side:         req.Side,
			Type:         req.Type,
			Quantity:     req.Quantity,
			LimitPrice:   req.LimitPrice,
			Status:       OrderStatusRejected,
			RejectReason: err.Error(),
			CreatedAt:    now,
			UpdatedAt:    now,
		}, nil
	}

	qty := decimal.NewFromFloat(req.Quantity)
	placeReq := alpaca.PlaceOrderRequest{
		Symbol:      req.Symbol,
		Qty:         &qty,
		Side:        alpacaSide(req.Side),
		Type:        alpacaType(req.Type),
		TimeInForce: alpaca.Day,
	}
	if req.Type == OrderTypeLimit {
		limit := decimal.NewFromFloat(req.LimitPrice)
		placeReq.LimitPrice = &limit
	}

	var placed *alpaca.Order
	err := WithRetry(ctx, b.retry, func() error {
		var callErr error
		placed, callErr = b.client.PlaceOrder(placeReq)
		return callErr
	})
	if err != nil {
		return nil, brokerError("submit_order", req.Symbol, err)
	}

	order := convertAlpacaOrder(placed)

	log.Info().
		Str("order_id", order.ID).
		Str("symbol", order.Symbol).
		Str("side", string(order.Side)).
		Str("status", string(order.Status)).
		Float64("quantity", order.Quantity).
		Msg("Order submitted to Alpaca")

	return order, nil
}

// CancelOrder cancels an order by its Alpaca ID.
func (b *AlpacaBroker) CancelOrder(ctx context.Context, orderID string) error {
	err := WithRetry(ctx, b.retry, func() error {
		return b.client.CancelOrder(orderID)
	})
	if err != nil {
		if isNotFound(err) {
			return ErrOrderNotFound
		}
		return brokerError("cancel_order", "", err)
	}
	return nil
}

// GetOrder retrieves an order by its Alpaca ID.
func (b *AlpacaBroker) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	var raw *alpaca.Order
	err := WithRetry(ctx, b.retry, func() error {
		var callErr error
		raw, callErr = b.client.GetOrder(orderID)
		return callErr
	})
	if err != nil {
		if isNotFound(err) {
			return nil, ErrOrderNotFound
		}
		return nil, brokerError("get_order", "", err)
	}
	return convertAlpacaOrder(raw), nil
}

// GetBars delegates to the market data provider.
func (b *AlpacaBroker) GetBars(ctx context.Context, symbol string, tf marketdata.Timeframe, start, end time.Time) ([]marketdata.Bar, error) {
	if b.data == nil {
		return nil, brokerError("get_bars", symbol, fmt.Errorf("no market data provider configured"))
	}
	return b.data.GetBars(ctx, symbol, tf, start, end)
}

// GetCurrentPrice delegates to the market data provider.
func (b *AlpacaBroker) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	if b.data == nil {
		return 0, brokerError("get_current_price", symbol, fmt.Errorf("no market data provider configured"))
	}
	return b.data.GetCurrentPrice(ctx, symbol)
}

// ClosePosition liquidates the position in a symbol.
func (b *AlpacaBroker) ClosePosition(ctx context.Context, symbol string) (*Order, error) {
	var raw *alpaca.Order
	err := WithRetry(ctx, b.retry, func() error {
		var callErr error
		raw, callErr = b.client.ClosePosition(symbol, alpaca.ClosePositionRequest{})
		return callErr
	})
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNoPosition
		}
		return nil, brokerError("close_position", symbol, err)
	}

	log.Info().Str("symbol", symbol).Msg("Position closed on Alpaca")
	return convertAlpacaOrder(raw), nil
}

// CloseAllPositions liquidates every open position.
func (b *AlpacaBroker) CloseAllPositions(ctx context.Context) ([]*Order, error) {
	positions, err := b.GetAllPositions(ctx)
	if err != nil {
		return nil, err
	}

	orders := make([]*Order, 0, len(positions))
	var firstErr error
	for _, pos := range positions {
		order, err := b.ClosePosition(ctx, pos.Symbol)
		if err != nil {
			log.Error().Err(err).Str("symbol", pos.Symbol).Msg("Failed to close position")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		orders = append(orders, order)
	}
	return orders, firstErr
}

// IsMarketOpen asks the Alpaca clock whether the market is trading now.
// Not part of the Broker interface; schedulers that only need wall-clock
// market hours use the local calendar instead.
func (b *AlpacaBroker) IsMarketOpen(ctx context.Context) (bool, error) {
	var clock *alpaca.Clock
	err := WithRetry(ctx, b.retry, func() error {
		var callErr error
		clock, callErr = b.client.GetClock()
		return callErr
	})
	if err != nil {
		return false, brokerError("get_clock", "", err)
	}
	return clock.IsOpen, nil
}

func alpacaSide(side OrderSide) alpaca.Side {
	if side == OrderSideSell {
		return alpaca.Sell
	}
	return alpaca.Buy
}

func alpacaType(t OrderType) alpaca.OrderType {
	if t == OrderTypeLimit {
		return alpaca.Limit
	}
	return alpaca.Market
}

// convertAlpacaOrder maps a vendor order onto the internal shape.
func convertAlpacaOrder(o *alpaca.Order) *Order {
	order := &Order{
		ID:            o.ID,
		BrokerOrderID: o.ID,
		Symbol:        o.Symbol,
		Side:          OrderSide(o.Side),
		Type:          OrderType(o.Type),
		Status:        convertAlpacaStatus(string(o.Status)),
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
		FilledAt:      o.FilledAt,
	}
	if o.Qty != nil {
		order.Quantity, _ = o.Qty.Float64()
	}
	if o.LimitPrice != nil {
		order.LimitPrice, _ = o.LimitPrice.Float64()
	}
	order.FilledQty, _ = o.FilledQty.Float64()
	if o.FilledAvgPrice != nil {
		order.FilledAvgPrice, _ = o.FilledAvgPrice.Float64()
	}
	return order
}

// convertAlpacaStatus folds the vendor's order states onto the internal
// lifecycle.
func convertAlpacaStatus(status string) OrderStatus {
	switch status {
	case "filled":
		return OrderStatusFilled
	case "partially_filled":
		return OrderStatusPartiallyFilled
	case "canceled", "cancelled", "expired", "done_for_day":
		return OrderStatusCancelled
	case "rejected", "stopped", "suspended":
		return OrderStatusRejected
	default:
		// new, accepted, pending_new, accepted_for_bidding, calculated,
		// pending_cancel, pending_replace
		return OrderStatusPending
	}
}

func convertAlpacaPosition(p *alpaca.Position) *Position {
	pos := &Position{Symbol: p.Symbol}
	pos.Quantity, _ = p.Qty.Float64()
	pos.AvgEntryPrice, _ = p.AvgEntryPrice.Float64()
	pos.CostBasis, _ = p.CostBasis.Float64()
	if p.CurrentPrice != nil {
		pos.CurrentPrice, _ = p.CurrentPrice.Float64()
	}
	if p.MarketValue != nil {
		pos.MarketValue, _ = p.MarketValue.Float64()
	}
	if p.UnrealizedPL != nil {
		pos.UnrealizedPL, _ = p.UnrealizedPL.Float64()
	}
	return pos
}

// isNotFound detects the API's 404 responses for missing positions and
// orders.
func isNotFound(err error) bool {
	var apiErr *alpaca.APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 404
	}
	return false
}
