package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	nethttp "net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"

	"github.com/quarkpan/quarkpan/internal/config"
	"github.com/quarkpan/quarkpan/internal/constants"
	"github.com/quarkpan/quarkpan/internal/http"
	"github.com/quarkpan/quarkpan/internal/models"
	"github.com/quarkpan/quarkpan/internal/ratelimit"
)

// retryLogger implements the retryablehttp.LeveledLogger interface
type retryLogger struct{}

func (l *retryLogger) Error(msg string, keysAndValues ...interface{}) {
	log.Error().Fields(keysAndValues).Msg("[retry] " + msg)
}

func (l *retryLogger) Info(msg string, keysAndValues ...interface{}) {
	// Only log errors and warnings
}

func (l *retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	log.Debug().Fields(keysAndValues).Msg("[retry] " + msg)
}

func (l *retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	log.Warn().Fields(keysAndValues).Msg("[retry] " + msg)
}

// checkRetry retries connection failures and 5xx responses. 429 is passed
// through so that the caller's attempt budget and throttle breaker see it.
func checkRetry(ctx context.Context, resp *nethttp.Response, err error) (bool, error) {
	if resp != nil && resp.StatusCode == nethttp.StatusTooManyRequests {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

// apiMetrics tracks API usage statistics
type apiMetrics struct {
	sync.Mutex
	totalCalls    int64
	throttled     int64
	callsByOp     map[string]int64
	windowStart   time.Time
	callsInWindow int64
}

// Client talks to the drive API on behalf of one logged-in session.
type Client struct {
	httpClient     *nethttp.Client
	transferClient *nethttp.Client
	config         *config.Config
	cookie         string
	driveURL       string
	saveURL        string
	panURL         string
	limiter        *ratelimit.RateLimiter
	stokens        *lru.Cache[string, string]
	metrics        *apiMetrics
}

// NewClient creates a new API client
func NewClient(cfg *config.Config) (*Client, error) {
	if err := cfg.RequireCookie(); err != nil {
		return nil, err
	}
	if cfg.DriveURL == "" || cfg.SaveURL == "" || cfg.PanURL == "" {
		return nil, fmt.Errorf("API base URL is empty: check the [api] section of the config")
	}

	httpClient, err := http.ConfigureHTTPClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to configure HTTP client: %w", err)
	}
	transferClient, err := http.NewTransferClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to configure transfer client: %w", err)
	}

	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient = httpClient
	retryClient.RetryMax = constants.TransportRetryMax
	retryClient.RetryWaitMin = constants.TransportRetryWaitMin
	retryClient.RetryWaitMax = constants.TransportRetryWaitMax
	retryClient.CheckRetry = checkRetry
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	retryClient.Logger = &retryLogger{}

	stokens, err := lru.New[string, string](constants.StokenCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create token cache: %w", err)
	}

	return &Client{
		httpClient:     retryClient.StandardClient(),
		transferClient: transferClient,
		config:         cfg,
		cookie:         cfg.Cookie,
		driveURL:       strings.TrimSuffix(cfg.DriveURL, "/"),
		saveURL:        strings.TrimSuffix(cfg.SaveURL, "/"),
		panURL:         strings.TrimSuffix(cfg.PanURL, "/"),
		limiter:        ratelimit.NewDriveAPIRateLimiter(),
		stokens:        stokens,
		metrics: &apiMetrics{
			callsByOp:   make(map[string]int64),
			windowStart: time.Now(),
		},
	}, nil
}

// GetConfig returns the configuration used by this API client
func (c *Client) GetConfig() *config.Config {
	return c.config
}

// SetRateLimiter replaces the request limiter.
func (c *Client) SetRateLimiter(rl *ratelimit.RateLimiter) {
	c.limiter = rl
}

// envelope is the common response wrapper of the drive API.
type envelope struct {
	Status   int               `json:"status"`
	Code     int               `json:"code"`
	Message  string            `json:"message"`
	Data     json.RawMessage   `json:"data"`
	Metadata models.PageCursor `json:"metadata"`
}

func (e *envelope) ok() bool {
	return e.Code == 0 || e.Message == "ok"
}

func (e *envelope) hasData() bool {
	return len(e.Data) > 0 && string(e.Data) != "null"
}

// commonParams returns the fixed query parameters plus anti-cache nonces.
func commonParams() url.Values {
	q := url.Values{}
	q.Set("pr", constants.QueryProduct)
	q.Set("fr", constants.QueryFrom)
	q.Set("uc_param_str", "")
	q.Set("__dt", strconv.Itoa(100+rand.Intn(9900)))
	q.Set("__t", strconv.FormatInt(time.Now().UnixMilli(), 10))
	return q
}

func (c *Client) recordCall(op string) {
	c.metrics.Lock()
	defer c.metrics.Unlock()

	c.metrics.totalCalls++
	c.metrics.callsByOp[op]++
	c.metrics.callsInWindow++

	if time.Since(c.metrics.windowStart) >= 30*time.Second {
		reqPerSec := float64(c.metrics.callsInWindow) / time.Since(c.metrics.windowStart).Seconds()
		log.Debug().
			Float64("req_per_sec", reqPerSec).
			Int64("total_calls", c.metrics.totalCalls).
			Int64("throttled", c.metrics.throttled).
			Msg("API usage")
		c.metrics.callsInWindow = 0
		c.metrics.windowStart = time.Now()
	}
}

// doRequest performs one API call with rate limiting and returns the raw response.
func (c *Client) doRequest(ctx context.Context, op, method, endpoint string, query url.Values, body interface{}, userAgent string) (*nethttp.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter cancelled: %w", err)
	}
	c.recordCall(op)

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	target := endpoint
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := nethttp.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if userAgent == "" {
		userAgent = constants.UserAgentBrowser
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Accept-Language", "zh-CN,zh;q=0.9")
	req.Header.Set("Origin", c.panURL)
	req.Header.Set("Referer", c.panURL+"/")
	req.Header.Set("Cookie", c.cookie)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Debug().Str("op", op).Err(err).Msg("API call failed")
		return nil, fmt.Errorf("%s: request failed: %w", op, err)
	}

	if resp.StatusCode == nethttp.StatusTooManyRequests {
		c.metrics.Lock()
		c.metrics.throttled++
		c.metrics.Unlock()

		// Spend the remaining burst slowly from now on
		c.limiter.Drain()
		if retryAfter, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && retryAfter > 0 {
			c.limiter.SetCooldown(time.Duration(retryAfter) * time.Second)
		}
		log.Warn().Str("op", op).Str("retry_after", resp.Header.Get("Retry-After")).Msg("throttled by server")
	}

	return resp, nil
}

// call performs a request and decodes the envelope. Non-success envelopes and
// undecodable error statuses become *APIError.
func (c *Client) call(ctx context.Context, op, method, endpoint string, query url.Values, body interface{}, userAgent string) (*envelope, error) {
	resp, err := c.doRequest(ctx, op, method, endpoint, query, body, userAgent)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read response: %w", op, err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode != nethttp.StatusOK {
			return nil, &APIError{Op: op, HTTPStatus: resp.StatusCode, Message: truncate(string(raw), 200)}
		}
		return nil, fmt.Errorf("%s: failed to decode response: %w", op, err)
	}

	if resp.StatusCode == nethttp.StatusTooManyRequests || resp.StatusCode == nethttp.StatusUnauthorized {
		return nil, &APIError{Op: op, HTTPStatus: resp.StatusCode, Code: env.Code, Message: env.Message}
	}
	if !env.ok() || resp.StatusCode >= 400 {
		return nil, &APIError{Op: op, HTTPStatus: resp.StatusCode, Code: env.Code, Message: env.Message}
	}
	return &env, nil
}

// decodeData unmarshals the envelope payload into v.
func decodeData(op string, env *envelope, v interface{}) error {
	if !env.hasData() {
		return fmt.Errorf("%s: %w", op, ErrEmptyData)
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("%s: failed to decode data: %w", op, err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
