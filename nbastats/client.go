// Package nbastats fetches shot charts, game matchups, and player rosters
// from the stats.nba.com API.
//
// Every endpoint answers with the same envelope: a list of named result
// sets, each a header row plus untyped value rows. The client decodes that
// envelope once and the per-endpoint code picks columns out by header name,
// so a reordered column upstream does not silently corrupt the data.
package nbastats

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/threes-sim/engine/metrics"
)

const (
	defaultBaseURL = "https://stats.nba.com"
	requestTimeout = 30 * time.Second
)

// Client talks to stats.nba.com. The zero value is not usable; construct
// with NewClient.
type Client struct {
	baseURL string
	http    *http.Client
	cache   *Cache
}

// NewClient creates a stats client. cache may be nil to disable response
// caching.
func NewClient(cache *Cache) *Client {
	return &Client{
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: requestTimeout},
		cache:   cache,
	}
}

// response is the stats.nba.com result-set envelope
type response struct {
	Resource   string      `json:"resource"`
	ResultSets []resultSet `json:"resultSets"`
}

type resultSet struct {
	Name    string          `json:"name"`
	Headers []string        `json:"headers"`
	RowSet  [][]interface{} `json:"rowSet"`
}

// set returns the named result set
func (r *response) set(name string) (resultSet, bool) {
	for _, rs := range r.ResultSets {
		if rs.Name == name {
			return rs, true
		}
	}
	return resultSet{}, false
}

// col returns the index of a header column, -1 when absent
func (rs resultSet) col(name string) int {
	for i, h := range rs.Headers {
		if h == name {
			return i
		}
	}
	return -1
}

// get fetches one endpoint into the envelope, serving from and filling the
// cache when one is configured. The cache key is the full request URL.
func (c *Client) get(ctx context.Context, endpoint string, params url.Values, out *response) error {
	u := c.baseURL + "/stats/" + endpoint + "?" + params.Encode()

	if c.cache != nil {
		if body, ok := c.cache.Get(ctx, u); ok {
			metrics.RecordCacheHit()
			if err := json.Unmarshal(body, out); err == nil {
				return nil
			}
			// fall through to a live fetch on a corrupt entry
			log.Warn().Str("endpoint", endpoint).Msg("Discarding undecodable cached stats response")
		}
		metrics.RecordCacheMiss()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build %s request: %w", endpoint, err)
	}
	// stats.nba.com rejects requests without browser-looking headers
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Referer", "https://www.nba.com/")
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.RecordStatsRequest(endpoint, "error")
		return fmt.Errorf("fetch %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.RecordStatsRequest(endpoint, "error")
		return fmt.Errorf("fetch %s: unexpected status %s", endpoint, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.RecordStatsRequest(endpoint, "error")
		return fmt.Errorf("read %s response: %w", endpoint, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		metrics.RecordStatsRequest(endpoint, "error")
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}

	metrics.RecordStatsRequest(endpoint, "success")
	if c.cache != nil {
		c.cache.Put(ctx, u, body)
	}
	return nil
}

// Row values arrive as JSON numbers, strings, or nulls depending on the
// column; the helpers below normalize them.

func rowString(row []interface{}, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	s, _ := row[i].(string)
	return s
}

func rowFloat(row []interface{}, i int) (float64, bool) {
	if i < 0 || i >= len(row) {
		return 0, false
	}
	f, ok := row[i].(float64)
	return f, ok
}

func rowInt(row []interface{}, i int) int {
	f, ok := rowFloat(row, i)
	if !ok {
		return 0
	}
	return int(f)
}

// CurrentSeason formats today's season identifier, e.g. "2023-24".
// Seasons roll over in October.
func CurrentSeason() string {
	now := time.Now()
	year := now.Year()
	if now.Month() < time.October {
		year--
	}
	return fmt.Sprintf("%d-%02d", year, (year+1)%100)
}
