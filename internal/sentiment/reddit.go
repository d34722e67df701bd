package sentiment

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

// Defaults for the public Reddit JSON API. The unauthenticated cap is
// 60 requests per minute per client.
const (
	defaultRedditBaseURL   = "https://www.reddit.com"
	defaultRedditUserAgent = "stockfunk/1.0"
	redditCallsPerMinute   = 60
	redditPageLimit        = 100
	redditMaxPages         = 4
)

var defaultSubreddits = []string{"stocks", "investing", "wallstreetbets", "StockMarket"}

// RedditConfig tunes the Reddit retriever. Zero values fall back to the
// defaults above.
type RedditConfig struct {
	BaseURL    string
	UserAgent  string
	Subreddits []string
	PageLimit  int
	MaxPages   int
	Timeout    time.Duration
}

// RedditClient retrieves ticker mentions from subreddit search and
// aggregates them into per-day scores. Posts are weighted by
// log10(score+10), so heavily upvoted posts count more without letting
// a single viral post drown the day.
type RedditClient struct {
	baseURL    string
	userAgent  string
	subreddits []string
	pageLimit  int
	maxPages   int
	httpClient *http.Client
	score      ScoreFunc
	pacer      *Pacer
}

// NewRedditClient builds a retriever for the public Reddit JSON API.
// A nil score falls back to the lexicon scorer; a nil pacer applies the
// unauthenticated 60/min cap.
func NewRedditClient(cfg RedditConfig, score ScoreFunc, pacer *Pacer) *RedditClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultRedditBaseURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultRedditUserAgent
	}
	if len(cfg.Subreddits) == 0 {
		cfg.Subreddits = defaultSubreddits
	}
	if cfg.PageLimit <= 0 {
		cfg.PageLimit = redditPageLimit
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = redditMaxPages
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if score == nil {
		score = LexiconScorer()
	}
	if pacer == nil {
		pacer = NewPacer(redditCallsPerMinute, time.Minute)
	}

	return &RedditClient{
		baseURL:    cfg.BaseURL,
		userAgent:  cfg.UserAgent,
		subreddits: cfg.Subreddits,
		pageLimit:  cfg.PageLimit,
		maxPages:   cfg.MaxPages,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		score:      score,
		pacer:      pacer,
	}
}

type redditPost struct {
	Title      string  `json:"title"`
	Selftext   string  `json:"selftext"`
	Score      int     `json:"score"`
	CreatedUTC float64 `json:"created_utc"`
	Subreddit  string  `json:"subreddit"`
}

// DailySentiment searches each configured subreddit for the symbol and
// buckets the scored posts by UTC day. A subreddit that fails is skipped
// with a warning; the retrieval fails only when every subreddit failed
// and nothing was collected.
func (c *RedditClient) DailySentiment(ctx context.Context, symbol string, start, end time.Time) (map[string]DayScore, error) {
	startDay := dateFloor(start)
	endExcl := dateFloor(end).AddDate(0, 0, 1)

	weightSum := make(map[string]float64)
	scoreSum := make(map[string]float64)
	samples := make(map[string]int)

	var firstErr error
	var collected int

	for _, sub := range c.subreddits {
		posts, err := c.searchSubreddit(ctx, sub, symbol, startDay)
		if err != nil {
			log.Warn().
				Err(err).
				Str("subreddit", sub).
				Str("symbol", symbol).
				Msg("Reddit search failed, skipping subreddit")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		for _, post := range posts {
			ts := time.Unix(int64(post.CreatedUTC), 0).UTC()
			if ts.Before(startDay) || !ts.Before(endExcl) {
				continue
			}

			day := ts.Format(dayFormat)
			weight := postWeight(post.Score)
			weightSum[day] += weight
			scoreSum[day] += weight * c.score(post.Title)
			samples[day]++
			collected++
		}
	}

	if collected == 0 && firstErr != nil {
		return nil, fmt.Errorf("reddit retrieval failed for %s: %w", symbol, firstErr)
	}

	days := make(map[string]DayScore, len(weightSum))
	for day, w := range weightSum {
		if w <= 0 {
			continue
		}
		days[day] = DayScore{Score: scoreSum[day] / w, Samples: samples[day]}
	}

	log.Debug().
		Str("symbol", symbol).
		Int("posts", collected).
		Int("days", len(days)).
		Msg("Aggregated Reddit sentiment")

	return days, nil
}

// searchSubreddit pages through new-sorted search results until the
// range start is passed or the page budget runs out.
func (c *RedditClient) searchSubreddit(ctx context.Context, subreddit, symbol string, startDay time.Time) ([]redditPost, error) {
	var posts []redditPost
	after := ""

	for page := 0; page < c.maxPages; page++ {
		if err := c.pacer.Wait(ctx); err != nil {
			return nil, err
		}

		batch, next, err := c.fetchPage(ctx, subreddit, symbol, startDay, after)
		if err != nil {
			return nil, err
		}
		posts = append(posts, batch...)

		if next == "" || pageReachedStart(batch, startDay) {
			break
		}
		after = next
	}

	return posts, nil
}

func (c *RedditClient) fetchPage(ctx context.Context, subreddit, symbol string, startDay time.Time, after string) ([]redditPost, string, error) {
	params := url.Values{}
	params.Set("q", symbol)
	params.Set("restrict_sr", "on")
	params.Set("sort", "new")
	params.Set("limit", strconv.Itoa(c.pageLimit))
	params.Set("t", redditTimespan(startDay))
	if after != "" {
		params.Set("after", after)
	}

	endpoint := fmt.Sprintf("%s/r/%s/search.json?%s", c.baseURL, subreddit, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("reddit request failed: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			log.Error().Err(cerr).Msg("Failed to close response body")
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("reddit returned status %d", resp.StatusCode)
	}

	var payload struct {
		Data struct {
			After    string `json:"after"`
			Children []struct {
				Data redditPost `json:"data"`
			} `json:"children"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, "", fmt.Errorf("failed to decode reddit response: %w", err)
	}

	batch := make([]redditPost, 0, len(payload.Data.Children))
	for _, child := range payload.Data.Children {
		batch = append(batch, child.Data)
	}
	return batch, payload.Data.After, nil
}

// postWeight is log10(score+10). Scores at or below -10 would push the
// argument out of the log's domain, so the weight bottoms out at zero.
func postWeight(score int) float64 {
	arg := float64(score) + 10
	if arg < 1 {
		arg = 1
	}
	return math.Log10(arg)
}

// pageReachedStart reports whether a new-sorted page has walked past the
// start of the requested range, meaning older pages are all out of range.
func pageReachedStart(batch []redditPost, startDay time.Time) bool {
	if len(batch) == 0 {
		return false
	}
	oldest := batch[len(batch)-1]
	return time.Unix(int64(oldest.CreatedUTC), 0).UTC().Before(startDay)
}

// redditTimespan picks the smallest search window that still reaches
// back to the range start. The t parameter filters by post age relative
// to now, so the window has to cover from startDay to the present.
func redditTimespan(startDay time.Time) string {
	age := time.Since(startDay)
	switch {
	case age <= 24*time.Hour:
		return "day"
	case age <= 7*24*time.Hour:
		return "week"
	case age <= 31*24*time.Hour:
		return "month"
	case age <= 366*24*time.Hour:
		return "year"
	default:
		return "all"
	}
}
