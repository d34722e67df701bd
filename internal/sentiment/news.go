package sentiment

import (
	"context"
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/rs/zerolog/log"
)

const (
	newsCallsPerMinute = 200
	defaultNewsLimit   = 500
)

// newsAPI is the slice of the market-data client the retriever calls.
type newsAPI interface {
	GetNews(req marketdata.GetNewsRequest) ([]marketdata.News, error)
}

// NewsClient retrieves news articles for a symbol and aggregates
// headline sentiment into per-day scores. Articles carry no vote score,
// so each one weighs the same within its day.
type NewsClient struct {
	api   newsAPI
	score ScoreFunc
	pacer *Pacer
	limit int
}

// NewNewsClient builds a retriever over the Alpaca news API. A nil
// score falls back to the lexicon scorer; a nil pacer applies the
// default 200/min cap.
func NewNewsClient(client *marketdata.Client, score ScoreFunc, pacer *Pacer) *NewsClient {
	if score == nil {
		score = LexiconScorer()
	}
	if pacer == nil {
		pacer = NewPacer(newsCallsPerMinute, time.Minute)
	}
	return &NewsClient{api: client, score: score, pacer: pacer, limit: defaultNewsLimit}
}

// DailySentiment fetches articles mentioning the symbol in [start, end]
// and buckets their headline scores by UTC day.
func (c *NewsClient) DailySentiment(ctx context.Context, symbol string, start, end time.Time) (map[string]DayScore, error) {
	if err := c.pacer.Wait(ctx); err != nil {
		return nil, err
	}

	startDay := dateFloor(start)
	endExcl := dateFloor(end).AddDate(0, 0, 1)

	articles, err := c.api.GetNews(marketdata.GetNewsRequest{
		Symbols:    []string{symbol},
		Start:      startDay,
		End:        endExcl,
		TotalLimit: c.limit,
	})
	if err != nil {
		return nil, fmt.Errorf("news retrieval failed for %s: %w", symbol, err)
	}

	scoreSum := make(map[string]float64)
	samples := make(map[string]int)

	for _, article := range articles {
		ts := article.CreatedAt.UTC()
		if ts.Before(startDay) || !ts.Before(endExcl) {
			continue
		}

		day := ts.Format(dayFormat)
		scoreSum[day] += c.score(article.Headline)
		samples[day]++
	}

	days := make(map[string]DayScore, len(samples))
	for day, n := range samples {
		days[day] = DayScore{Score: scoreSum[day] / float64(n), Samples: n}
	}

	log.Debug().
		Str("symbol", symbol).
		Int("articles", len(articles)).
		Int("days", len(days)).
		Msg("Aggregated news sentiment")

	return days, nil
}
