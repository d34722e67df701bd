package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/rs/zerolog/log"
)

// AlpacaProvider fetches bars and trades from the Alpaca market data API.
type AlpacaProvider struct {
	client *marketdata.Client
	feed   marketdata.Feed
}

// AlpacaConfig carries the credentials and data feed for the provider.
type AlpacaConfig struct {
	APIKey    string
	APISecret string
	BaseURL   string
	Feed      string // "iex" (default) or "sip" for paid subscriptions
}

// NewAlpacaProvider creates a provider backed by the Alpaca data API.
func NewAlpacaProvider(cfg AlpacaConfig) (*AlpacaProvider, error) {
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("alpaca market data credentials are required")
	}

	feed := marketdata.IEX
	if cfg.Feed != "" {
		feed = marketdata.Feed(cfg.Feed)
	}

	client := marketdata.NewClient(marketdata.ClientOpts{
		APIKey:    cfg.APIKey,
		APISecret: cfg.APISecret,
		BaseURL:   cfg.BaseURL,
	})

	log.Info().Str("feed", string(feed)).Msg("Alpaca market data provider initialized")

	return &AlpacaProvider{client: client, feed: feed}, nil
}

// GetBars fetches bars for one symbol. Failures are wrapped in
// UpstreamDataError so multi-symbol callers can skip the symbol.
func (p *AlpacaProvider) GetBars(ctx context.Context, symbol string, tf Timeframe, start, end time.Time) ([]Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	frame, err := alpacaTimeframe(tf)
	if err != nil {
		return nil, err
	}

	raw, err := p.client.GetBars(symbol, marketdata.GetBarsRequest{
		TimeFrame: frame,
		Start:     start,
		End:       end,
		Feed:      p.feed,
	})
	if err != nil {
		return nil, &UpstreamDataError{Symbol: symbol, Source: "alpaca", Err: err}
	}

	bars := make([]Bar, 0, len(raw))
	for _, b := range raw {
		bars = append(bars, Bar{
			Symbol:    symbol,
			Timestamp: b.Timestamp,
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    int64(b.Volume),
		})
	}

	log.Debug().
		Str("symbol", symbol).
		Str("timeframe", string(tf)).
		Int("bars", len(bars)).
		Msg("Fetched bars from Alpaca")

	return bars, nil
}

// GetCurrentPrice returns the price of the latest trade for the symbol.
func (p *AlpacaProvider) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	trade, err := p.client.GetLatestTrade(symbol, marketdata.GetLatestTradeRequest{Feed: p.feed})
	if err != nil {
		return 0, &UpstreamDataError{Symbol: symbol, Source: "alpaca", Err: err}
	}
	if trade == nil || trade.Price <= 0 {
		return 0, &UpstreamDataError{Symbol: symbol, Source: "alpaca", Err: fmt.Errorf("no trade data")}
	}

	return trade.Price, nil
}

func alpacaTimeframe(tf Timeframe) (marketdata.TimeFrame, error) {
	switch tf {
	case TimeframeMin1:
		return marketdata.OneMin, nil
	case TimeframeMin5:
		return marketdata.NewTimeFrame(5, marketdata.Min), nil
	case TimeframeMin15:
		return marketdata.NewTimeFrame(15, marketdata.Min), nil
	case TimeframeMin30:
		return marketdata.NewTimeFrame(30, marketdata.Min), nil
	case TimeframeHour:
		return marketdata.OneHour, nil
	case TimeframeDay:
		return marketdata.OneDay, nil
	default:
		return marketdata.TimeFrame{}, fmt.Errorf("unsupported timeframe: %s", tf)
	}
}
