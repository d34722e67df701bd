package trading

import (
	"context"
	"errors"
	"math"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/stockfunk/internal/broker"
	"github.com/ajitpratap0/stockfunk/internal/strategy"
)

// SizeBuy computes the whole-share quantity for a buy signal: the
// account's buying power split equally across the remaining position
// slots, capped by the spec's per-position fraction of portfolio
// value. Returns 0 when the position limit is reached or the slice
// cannot afford one share.
func SizeBuy(ctx context.Context, b broker.Broker, spec *strategy.Spec, price float64) (float64, error) {
	if price <= 0 {
		return 0, nil
	}

	account, err := b.GetAccount(ctx)
	if err != nil {
		return 0, err
	}
	positions, err := b.GetAllPositions(ctx)
	if err != nil {
		return 0, err
	}

	maxPositions := spec.Risk.MaxPositions
	if maxPositions < 1 {
		maxPositions = 1
	}
	open := len(positions)
	if open >= maxPositions {
		log.Debug().
			Int("open", open).
			Int("max", maxPositions).
			Msg("Position limit reached, skipping buy")
		return 0, nil
	}

	notional := account.BuyingPower / float64(maxPositions-open)
	if spec.Risk.PositionSize > 0 {
		if limit := account.PortfolioValue * spec.Risk.PositionSize; limit < notional {
			notional = limit
		}
	}
	if notional > account.BuyingPower {
		notional = account.BuyingPower
	}

	return math.Floor(notional / price), nil
}

// SizeSell resolves the quantity for a sell signal: the requested
// quantity when it is a valid fraction of the position, otherwise the
// full position. Returns 0 when there is nothing to sell.
func SizeSell(ctx context.Context, b broker.Broker, symbol string, requested float64) (float64, error) {
	pos, err := b.GetPosition(ctx, symbol)
	if errors.Is(err, broker.ErrNoPosition) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	if requested > 0 && requested < pos.Quantity {
		return requested, nil
	}
	return pos.Quantity, nil
}

// RebalanceOrders computes the market orders that move the account to
// equal-weight targets across the spec's assets: per symbol, the delta
// between current shares and floor(target / price). Sells are ordered
// before buys so freed cash funds the purchases. Symbols without a
// known price are skipped.
func RebalanceOrders(ctx context.Context, b broker.Broker, spec *strategy.Spec) ([]broker.OrderRequest, error) {
	if len(spec.Assets) == 0 {
		return nil, nil
	}

	account, err := b.GetAccount(ctx)
	if err != nil {
		return nil, err
	}
	positions, err := b.GetAllPositions(ctx)
	if err != nil {
		return nil, err
	}

	held := make(map[string]float64, len(positions))
	for _, pos := range positions {
		held[pos.Symbol] = pos.Quantity
	}

	perAsset := account.PortfolioValue * spec.Risk.PositionSize
	if evenShare := account.PortfolioValue / float64(len(spec.Assets)); perAsset <= 0 || perAsset > evenShare {
		perAsset = evenShare
	}

	symbols := append([]string(nil), spec.Assets...)
	sort.Strings(symbols)

	var sells, buys []broker.OrderRequest
	for _, symbol := range symbols {
		price, err := b.GetCurrentPrice(ctx, symbol)
		if err != nil || price <= 0 {
			log.Warn().Err(err).Str("symbol", symbol).Msg("No price for rebalance target, skipping symbol")
			continue
		}

		target := math.Floor(perAsset / price)
		delta := target - held[symbol]
		switch {
		case delta < 0:
			sells = append(sells, broker.OrderRequest{
				Symbol:   symbol,
				Side:     broker.OrderSideSell,
				Type:     broker.OrderTypeMarket,
				Quantity: -delta,
			})
		case delta > 0:
			buys = append(buys, broker.OrderRequest{
				Symbol:   symbol,
				Side:     broker.OrderSideBuy,
				Type:     broker.OrderTypeMarket,
				Quantity: delta,
			})
		}
	}
	return append(sells, buys...), nil
}

// Execution pairs a signal with the order that carried it out, so
// callers can attribute fills back to the rule that produced them.
type Execution struct {
	Signal Signal
	Order  *broker.Order
}

// ExecuteSignals sizes and submits each signal through the broker.
// Hold signals and zero-quantity sizings are skipped. Submission
// failures are logged and do not stop later signals; the first error
// is returned alongside whatever executed. Rejected orders are not
// errors and appear in the result with their rejection status.
func ExecuteSignals(ctx context.Context, b broker.Broker, spec *strategy.Spec, signals []Signal) ([]Execution, error) {
	var executions []Execution
	var firstErr error

	submit := func(sig Signal, req broker.OrderRequest) {
		order, err := b.SubmitOrder(ctx, req)
		if err != nil {
			log.Warn().
				Err(err).
				Str("symbol", req.Symbol).
				Str("side", string(req.Side)).
				Msg("Failed to submit order for signal")
			if firstErr == nil {
				firstErr = err
			}
			return
		}
		executions = append(executions, Execution{Signal: sig, Order: order})
	}

	for _, sig := range signals {
		switch sig.Action {
		case ActionHold:
			continue

		case ActionBuy:
			price, err := b.GetCurrentPrice(ctx, sig.Symbol)
			if err != nil {
				log.Warn().Err(err).Str("symbol", sig.Symbol).Msg("No price for buy signal, skipping")
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			qty := sig.Quantity
			if qty <= 0 {
				qty, err = SizeBuy(ctx, b, spec, price)
				if err != nil {
					if firstErr == nil {
						firstErr = err
					}
					continue
				}
			}
			if qty <= 0 {
				continue
			}
			submit(sig, broker.OrderRequest{
				Symbol:   sig.Symbol,
				Side:     broker.OrderSideBuy,
				Type:     broker.OrderTypeMarket,
				Quantity: qty,
			})

		case ActionSell:
			qty, err := SizeSell(ctx, b, sig.Symbol, sig.Quantity)
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			if qty <= 0 {
				continue
			}
			submit(sig, broker.OrderRequest{
				Symbol:   sig.Symbol,
				Side:     broker.OrderSideSell,
				Type:     broker.OrderTypeMarket,
				Quantity: qty,
			})

		case ActionRebalance:
			reqs, err := RebalanceOrders(ctx, b, spec)
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			for _, req := range reqs {
				submit(sig, req)
			}

		default:
			log.Warn().Str("action", string(sig.Action)).Str("symbol", sig.Symbol).Msg("Unknown signal action, skipping")
		}
	}
	return executions, firstErr
}
