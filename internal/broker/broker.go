package broker

import (
	"context"
	"time"

	"github.com/ajitpratap0/stockfunk/internal/marketdata"
)

// Broker is the one execution interface the trading layers use.
// PaperBroker and AlpacaBroker both implement it.
type Broker interface {
	// GetAccount returns the current cash and equity snapshot.
	GetAccount(ctx context.Context) (*Account, error)

	// GetPosition returns the open position for a symbol, or
	// ErrNoPosition when there is none.
	GetPosition(ctx context.Context, symbol string) (*Position, error)

	// GetAllPositions returns every open position.
	GetAllPositions(ctx context.Context) ([]*Position, error)

	// SubmitOrder submits an order. A rejection for insufficient funds
	// or shares comes back as an Order with status rejected, not as an
	// error; errors mean the submission itself failed.
	SubmitOrder(ctx context.Context, req OrderRequest) (*Order, error)

	// CancelOrder cancels a non-terminal order.
	CancelOrder(ctx context.Context, orderID string) error

	// GetOrder retrieves an order by ID.
	GetOrder(ctx context.Context, orderID string) (*Order, error)

	// GetBars returns historical bars for a symbol, oldest first.
	GetBars(ctx context.Context, symbol string, tf marketdata.Timeframe, start, end time.Time) ([]marketdata.Bar, error)

	// GetCurrentPrice returns the latest price for a symbol.
	GetCurrentPrice(ctx context.Context, symbol string) (float64, error)

	// ClosePosition liquidates the position in a symbol with a market
	// order.
	ClosePosition(ctx context.Context, symbol string) (*Order, error)

	// CloseAllPositions liquidates every open position.
	CloseAllPositions(ctx context.Context) ([]*Order, error)
}
