package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	log "github.com/sirupsen/logrus"

	"lyrics-annotator-go/circuitbreaker"
	"lyrics-annotator-go/logcolors"
)

const (
	defaultSearchURL   = "https://krcs.kugou.com/search"
	defaultDownloadURL = "https://krcs.kugou.com/download"
	defaultCoverURL    = "https://wwwapi.kugou.com/yy/index.php"

	defaultTimeout = 10 * time.Second
	userAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
)

// UpstreamError wraps any catalog/network failure. Callers treat it as
// zero candidates or a missing blob rather than a fatal condition.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("catalog %s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Config holds catalog client configuration. Zero values fall back to
// the public endpoints, a 10 second timeout, and the circuit breaker
// defaults.
type Config struct {
	SearchURL   string
	DownloadURL string
	CoverURL    string
	Timeout     time.Duration

	BreakerThreshold int
	BreakerCooldown  time.Duration
}

// Client talks to the external lyrics catalog. All calls are
// time-bounded and guarded by a shared circuit breaker.
type Client struct {
	cfg     Config
	http    *http.Client
	breaker *circuitbreaker.CircuitBreaker
}

func NewClient(cfg Config) *Client {
	if cfg.SearchURL == "" {
		cfg.SearchURL = defaultSearchURL
	}
	if cfg.DownloadURL == "" {
		cfg.DownloadURL = defaultDownloadURL
	}
	if cfg.CoverURL == "" {
		cfg.CoverURL = defaultCoverURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		breaker: circuitbreaker.New(circuitbreaker.Config{
			Name:      "catalog",
			Threshold: cfg.BreakerThreshold,
			Cooldown:  cfg.BreakerCooldown,
		}),
	}
}

// Search queries the catalog for lyrics candidates. The keyword is
// folded to the catalog's dominant script variant before submission.
// Zero candidates is a valid response, not an error.
func (c *Client) Search(ctx context.Context, keyword string) ([]Candidate, error) {
	params := url.Values{}
	params.Set("ver", "1")
	params.Set("man", "yes")
	params.Set("client", "mobi")
	params.Set("keyword", ToSimplified(keyword))

	log.Debugf("%s Searching lyrics: %s", logcolors.LogSearch, keyword)

	var searchResp SearchResponse
	if err := c.getJSON(ctx, "search", c.cfg.SearchURL, params, &searchResp); err != nil {
		return nil, err
	}
	if searchResp.Status != 200 {
		return nil, &UpstreamError{Op: "search", Err: fmt.Errorf("%s (code: %d)", searchResp.ErrMsg, searchResp.ErrCode)}
	}
	return searchResp.Candidates, nil
}

// FetchLyricsBlob downloads one candidate's payload and returns it
// still base64-encoded; decoding is the codec's job. An empty content
// field is reported as absent ("" with nil error).
func (c *Client) FetchLyricsBlob(ctx context.Context, id, accessKey, format string) (string, error) {
	params := url.Values{}
	params.Set("ver", "1")
	params.Set("client", "pc")
	params.Set("id", id)
	params.Set("accesskey", accessKey)
	params.Set("fmt", format)

	log.Debugf("%s Downloading lyrics ID: %s (fmt=%s)", logcolors.LogLyrics, id, format)

	var downloadResp DownloadResponse
	if err := c.getJSON(ctx, "download", c.cfg.DownloadURL, params, &downloadResp); err != nil {
		return "", err
	}
	if downloadResp.Status != 200 {
		return "", &UpstreamError{Op: "download", Err: fmt.Errorf("%s (code: %d)", downloadResp.Info, downloadResp.ErrorCode)}
	}
	return downloadResp.Content, nil
}

// FetchCoverURL resolves a song's cover image URL, or "" when the
// catalog has none.
func (c *Client) FetchCoverURL(ctx context.Context, hash, albumID string) (string, error) {
	params := url.Values{}
	params.Set("r", "play/getdata")
	params.Set("hash", hash)
	if albumID != "" {
		params.Set("album_id", albumID)
	}

	var coverResp CoverResponse
	if err := c.getJSON(ctx, "cover", c.cfg.CoverURL, params, &coverResp); err != nil {
		return "", err
	}
	return coverResp.Data.Img, nil
}

// BreakerState exposes the circuit breaker state for health reporting.
func (c *Client) BreakerState() circuitbreaker.State {
	return c.breaker.State()
}

// BreakerStats exposes the breaker state, failure count, and remaining
// cooldown for the stats endpoint.
func (c *Client) BreakerStats() (state circuitbreaker.State, failures int, retryIn time.Duration) {
	state, failures, _ = c.breaker.Stats()
	return state, failures, c.breaker.TimeUntilRetry()
}

// ResetBreaker forces the circuit breaker back to CLOSED.
func (c *Client) ResetBreaker() {
	c.breaker.Reset()
}

func (c *Client) getJSON(ctx context.Context, op, baseURL string, params url.Values, out any) error {
	if !c.breaker.Allow() {
		log.Warnf("%s Rejecting %s: retry in %v", logcolors.LogCircuitBreaker, op, c.breaker.TimeUntilRetry())
		return &UpstreamError{Op: op, Err: circuitbreaker.ErrCircuitOpen}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return &UpstreamError{Op: op, Err: err}
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		c.breaker.RecordFailure()
		return &UpstreamError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.breaker.RecordFailure()
		return &UpstreamError{Op: op, Err: fmt.Errorf("API returned status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.breaker.RecordFailure()
		return &UpstreamError{Op: op, Err: err}
	}
	if err := json.Unmarshal(body, out); err != nil {
		c.breaker.RecordFailure()
		return &UpstreamError{Op: op, Err: fmt.Errorf("failed to parse response: %w", err)}
	}

	c.breaker.RecordSuccess()
	return nil
}
