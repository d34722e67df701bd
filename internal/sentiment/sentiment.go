// Package sentiment resolves a per-day sentiment scalar in [-1, 1] for
// (symbol, source, date), with a read-through dataset cache in front of
// live provider retrieval.
//
// Source strictness: a request for one source consults only that
// source's provider. Missing data stays missing; it is never synthesized
// from another source or defaulted to zero.
package sentiment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/stockfunk/internal/db"
	"github.com/ajitpratap0/stockfunk/internal/marketdata"
)

// Source identifies a sentiment provider family.
type Source string

const (
	SourceReddit  Source = "reddit"
	SourceTwitter Source = "twitter"
	SourceNews    Source = "news"
)

// Valid reports whether s is a known source.
func (s Source) Valid() bool {
	switch s {
	case SourceReddit, SourceTwitter, SourceNews:
		return true
	}
	return false
}

const dayFormat = "2006-01-02"

// DayScore is one day's aggregated sentiment for a symbol.
type DayScore struct {
	Score   float64 // weighted mean compound score in [-1, 1]
	Samples int     // posts or articles that contributed
}

// Retriever fetches per-day sentiment live from one provider family.
// Keys of the returned map are "2006-01-02" dates in UTC; a date with no
// usable posts is simply absent.
type Retriever interface {
	DailySentiment(ctx context.Context, symbol string, start, end time.Time) (map[string]DayScore, error)
}

// DatasetCache is the slice of the dataset store the adapter uses.
// *db.DatasetStore satisfies it.
type DatasetCache interface {
	FindCovering(ctx context.Context, ticker, source string, start, end time.Time) (*db.TradingDataset, error)
	Upsert(ctx context.Context, ds *db.TradingDataset) error
	AssociateSession(ctx context.Context, sessionID string, ids []uuid.UUID) error
}

// ErrSourceUnavailable means the requested source has no configured
// provider. Strictness forbids answering from a different source.
var ErrSourceUnavailable = errors.New("no provider configured for sentiment source")

// ScoreRequest asks for per-day sentiment over an inclusive date range.
// SessionID, when set, stamps the cache rows the request touches so a
// later bot save can link them.
type ScoreRequest struct {
	Symbol    string
	Source    Source
	Start     time.Time
	End       time.Time
	SessionID string
}

// Service is the sentiment adapter: dataset cache first, then the
// provider for the requested source, never another source's provider.
type Service struct {
	cache      DatasetCache
	retrievers map[Source]Retriever
}

// NewService wires the adapter. Any of the arguments may be nil: a nil
// cache disables caching, a nil retriever makes its source unavailable.
func NewService(cache DatasetCache, reddit, news Retriever) *Service {
	retrievers := make(map[Source]Retriever, 2)
	if reddit != nil {
		retrievers[SourceReddit] = reddit
	}
	if news != nil {
		retrievers[SourceNews] = news
	}
	return &Service{cache: cache, retrievers: retrievers}
}

// Scores resolves per-day sentiment for [Start, End]. Dates with no data
// are absent from the result. A covering cache row answers the whole
// request; otherwise the source's provider is consulted and the result
// merged back into the cache.
func (s *Service) Scores(ctx context.Context, req ScoreRequest) (map[string]float64, error) {
	if !req.Source.Valid() {
		return nil, fmt.Errorf("unknown sentiment source %q", req.Source)
	}

	start := dateFloor(req.Start)
	end := dateFloor(req.End)
	if end.Before(start) {
		return nil, fmt.Errorf("sentiment range ends %s before it starts %s",
			end.Format(dayFormat), start.Format(dayFormat))
	}

	if s.cache != nil {
		row, err := s.cache.FindCovering(ctx, req.Symbol, string(req.Source), start, end)
		switch {
		case err == nil:
			s.stampSession(ctx, req.SessionID, row.ID)
			return scoresInRange(row.Data, start, end), nil
		case !errors.Is(err, db.ErrNotFound):
			log.Warn().
				Err(err).
				Str("symbol", req.Symbol).
				Str("source", string(req.Source)).
				Msg("Dataset cache lookup failed, fetching live")
		}
	}

	retriever, ok := s.retrievers[req.Source]
	if !ok {
		return nil, &marketdata.UpstreamDataError{
			Symbol: req.Symbol,
			Source: string(req.Source),
			Err:    ErrSourceUnavailable,
		}
	}

	days, err := retriever.DailySentiment(ctx, req.Symbol, start, end)
	if err != nil {
		var upstream *marketdata.UpstreamDataError
		if errors.As(err, &upstream) {
			return nil, err
		}
		return nil, &marketdata.UpstreamDataError{
			Symbol: req.Symbol,
			Source: string(req.Source),
			Err:    err,
		}
	}

	s.persist(ctx, req, start, end, days)

	out := make(map[string]float64, len(days))
	for day, sc := range days {
		out[day] = sc.Score
	}
	return out, nil
}

// Score resolves sentiment for a single date. The boolean is false when
// no data exists for that date; callers must treat that as "no signal",
// never as zero.
func (s *Service) Score(ctx context.Context, symbol string, source Source, date time.Time) (float64, bool, error) {
	day := dateFloor(date)
	scores, err := s.Scores(ctx, ScoreRequest{Symbol: symbol, Source: source, Start: day, End: day})
	if err != nil {
		return 0, false, err
	}
	v, ok := scores[day.Format(dayFormat)]
	return v, ok, nil
}

// persist merges the fetched days into the dataset cache. An empty
// result is cached too, so a range known to have no posts is not
// re-fetched. Cache write failures are logged, not returned: the caller
// already has the data.
func (s *Service) persist(ctx context.Context, req ScoreRequest, start, end time.Time, days map[string]DayScore) {
	if s.cache == nil {
		return
	}

	ds := &db.TradingDataset{
		Ticker:     req.Symbol,
		DataSource: string(req.Source),
		StartDate:  start,
		EndDate:    end,
		Data:       dataFromScores(days),
	}
	if req.SessionID != "" {
		sid := req.SessionID
		ds.SessionID = &sid
	}

	if err := s.cache.Upsert(ctx, ds); err != nil {
		log.Warn().
			Err(err).
			Str("symbol", req.Symbol).
			Str("source", string(req.Source)).
			Msg("Dataset cache write failed")
	}
}

// stampSession marks a cache hit as used by a workflow session.
func (s *Service) stampSession(ctx context.Context, sessionID string, id uuid.UUID) {
	if sessionID == "" {
		return
	}
	if err := s.cache.AssociateSession(ctx, sessionID, []uuid.UUID{id}); err != nil {
		log.Warn().
			Err(err).
			Str("session_id", sessionID).
			Msg("Failed to stamp dataset with session")
	}
}

// dateFloor truncates t to midnight UTC.
func dateFloor(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// scoresInRange pulls the per-date sentiment values of a cached row that
// fall inside [start, end]. Dates without an entry are left out, which
// is how "no data" reads downstream.
func scoresInRange(data map[string]interface{}, start, end time.Time) map[string]float64 {
	out := make(map[string]float64)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		key := d.Format(dayFormat)
		entry, ok := data[key].(map[string]interface{})
		if !ok {
			continue
		}
		v, ok := entry["sentiment"].(float64)
		if !ok {
			continue
		}
		out[key] = v
	}
	return out
}

// dataFromScores shapes per-day aggregates into the JSONB layout of a
// dataset row.
func dataFromScores(days map[string]DayScore) map[string]interface{} {
	data := make(map[string]interface{}, len(days))
	for day, sc := range days {
		data[day] = map[string]interface{}{
			"sentiment": sc.Score,
			"samples":   sc.Samples,
		}
	}
	return data
}
