// Package broker abstracts order execution and account state behind a
// single interface. PaperBroker simulates fills for backtests and paper
// deployments; AlpacaBroker routes to the live Alpaca trading API.
// Nothing above the trading layer talks to a brokerage SDK directly.
package broker

import (
	"errors"
	"fmt"
	"time"
)

// OrderSide represents buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderType represents market or limit order.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// OrderStatus represents the current state of an order. Pending orders
// may move to any other status; partially_filled may only complete to
// filled; filled, cancelled, and rejected are terminal.
type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "pending"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusCancelled       OrderStatus = "cancelled"
	OrderStatusRejected        OrderStatus = "rejected"
)

// IsTerminal reports whether the status permits no further transitions.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected:
		return true
	}
	return false
}

// Order represents a trading order.
type Order struct {
	ID             string      `json:"id"`
	BrokerOrderID  string      `json:"broker_order_id,omitempty"` // vendor-side identifier
	Symbol         string      `json:"symbol"`
	Side           OrderSide   `json:"side"`
	Type           OrderType   `json:"type"`
	Quantity       float64     `json:"quantity"`
	LimitPrice     float64     `json:"limit_price,omitempty"`
	FilledQty      float64     `json:"filled_qty"`
	FilledAvgPrice float64     `json:"filled_avg_price,omitempty"`
	Status         OrderStatus `json:"status"`
	RejectReason   string      `json:"reject_reason,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
	FilledAt       *time.Time  `json:"filled_at,omitempty"`
}

// OrderRequest describes an order to submit.
type OrderRequest struct {
	Symbol     string    `json:"symbol"`
	Side       OrderSide `json:"side"`
	Type       OrderType `json:"type"`
	Quantity   float64   `json:"quantity"`
	LimitPrice float64   `json:"limit_price,omitempty"`
}

// Position is an open holding. Quantity stays positive; a holding sold
// down to zero is removed rather than kept at zero.
type Position struct {
	Symbol        string  `json:"symbol"`
	Quantity      float64 `json:"quantity"`
	AvgEntryPrice float64 `json:"avg_entry_price"`
	CostBasis     float64 `json:"cost_basis"`
	CurrentPrice  float64 `json:"current_price"`
	MarketValue   float64 `json:"market_value"`
	UnrealizedPL  float64 `json:"unrealized_pl"`
}

// Account is a snapshot of cash and equity. PortfolioValue is cash plus
// the market value of all positions.
type Account struct {
	ID             string  `json:"id"`
	Cash           float64 `json:"cash"`
	PortfolioValue float64 `json:"portfolio_value"`
	BuyingPower    float64 `json:"buying_power"`
	Currency       string  `json:"currency"`
}

// Sentinel errors shared by all implementations.
var (
	ErrNoPosition    = errors.New("no position for symbol")
	ErrOrderNotFound = errors.New("order not found")
)

// BrokerError wraps a failed brokerage operation with enough context to
// log and match on.
type BrokerError struct {
	Op     string
	Symbol string
	Err    error
}

func (e *BrokerError) Error() string {
	if e.Symbol != "" {
		return fmt.Sprintf("broker %s %s: %v", e.Op, e.Symbol, e.Err)
	}
	return fmt.Sprintf("broker %s: %v", e.Op, e.Err)
}

func (e *BrokerError) Unwrap() error {
	return e.Err
}

func brokerError(op, symbol string, err error) error {
	if err == nil {
		return nil
	}
	return &BrokerError{Op: op, Symbol: symbol, Err: err}
}
