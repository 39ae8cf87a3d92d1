// Package bybit is a signing REST client for Bybit v5 linear derivatives.
// Private calls never return Go errors: every outcome, including timeouts and
// HTTP failures, is delivered as a common.Envelope for the caller to inspect.
package bybit

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"bybit-autotrader/pkg/cache"
	"bybit-autotrader/pkg/exchanges/common"
	"bybit-autotrader/pkg/logging"
)

const (
	MainnetBaseURL = "https://api.bybit.com"
	TestnetBaseURL = "https://api-testnet.bybit.com"

	DefaultRecvWindow = 5000
	DefaultTimeout    = 10 * time.Second

	// bodyPreviewLimit bounds how much of a failed response is logged.
	bodyPreviewLimit = 2000

	// AccountTypeUnified is the wallet queried for balances.
	AccountTypeUnified = "UNIFIED"

	// TimeSyncMaxAge is how long a shared clock offset stays valid.
	TimeSyncMaxAge = 5 * time.Minute

	// CodeMissingCredentials is returned locally when a private call is made
	// without an API key or secret.
	CodeMissingCredentials = -2
)

var ErrDecode = errors.New("bybit: undecodable response")

// Outcome labels passed to Config.Observe.
const (
	OutcomeOK        = "ok"
	OutcomeError     = "error"
	OutcomeTransport = "transport"
)

// Config holds per-user credentials and client tuning.
type Config struct {
	APIKey     string
	APISecret  string
	Testnet    bool
	RecvWindow int64 // ms
	Timeout    time.Duration
	RPS        float64 // client-side request pacing, 0 = unlimited

	// BaseURL overrides the environment endpoint.
	BaseURL string

	// Cache holds public market-data bodies for CacheTTL; nil disables it.
	Cache    cache.Cache
	CacheTTL time.Duration

	// TimeSync, when set, is a clock offset shared by every client of the
	// environment. It is refreshed before signed requests once stale.
	TimeSync *common.TimeSync

	// Observe, when set, is told the outcome of every request.
	Observe func(endpoint, outcome string)

	Logger zerolog.Logger
}

// Client talks to one environment with one set of credentials. The
// environment is fixed at construction.
type Client struct {
	cfg         Config
	baseURL     string
	httpClient  *http.Client
	timeSync    *common.TimeSync
	rateLimiter *common.RateLimiter
	log         zerolog.Logger
}

// NewClient creates a client. No network calls are made.
func NewClient(cfg Config) *Client {
	base := MainnetBaseURL
	if cfg.Testnet {
		base = TestnetBaseURL
	}
	if cfg.BaseURL != "" {
		base = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.RecvWindow <= 0 {
		cfg.RecvWindow = DefaultRecvWindow
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	log := logging.Component(cfg.Logger, "bybit").With().
		Str("env", common.EnvName(cfg.Testnet)).
		Logger()

	c := &Client{
		cfg:         cfg,
		baseURL:     base,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		rateLimiter: common.NewRateLimiter(cfg.RPS, 1, log),
		log:         log,
	}
	c.timeSync = cfg.TimeSync
	if c.timeSync == nil {
		c.timeSync = common.NewTimeSync(c.ServerTime, log)
	}
	return c
}

// NewTimeSync returns a clock offset for the environment in cfg, measured
// through an unauthenticated client. Pass it as Config.TimeSync to share it.
func NewTimeSync(cfg Config) *common.TimeSync {
	cfg.APIKey, cfg.APISecret = "", ""
	cfg.Cache, cfg.TimeSync, cfg.Observe = nil, nil, nil
	c := NewClient(cfg)
	return common.NewTimeSync(c.ServerTime, c.log)
}

// Testnet reports which environment the client targets.
func (c *Client) Testnet() bool {
	return c.cfg.Testnet
}

// BaseURL returns the endpoint in use.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// now returns the request timestamp, corrected by time sync when available.
func (c *Client) now() int64 {
	if c.timeSync != nil && c.timeSync.Synced() {
		return c.timeSync.Now()
	}
	return time.Now().UnixMilli()
}

// Sign computes hex(HMAC-SHA256(secret, timestamp+method+path+body)).
func Sign(secret, timestamp, method, path, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + method + path + body))
	return hex.EncodeToString(mac.Sum(nil))
}

// compactJSON encodes v without whitespace or HTML escaping.
func compactJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

func preview(body []byte) string {
	if len(body) == 0 {
		return "<empty body>"
	}
	if len(body) > bodyPreviewLimit {
		return string(body[:bodyPreviewLimit])
	}
	return string(body)
}

func (c *Client) observe(endpoint, outcome string) {
	if c.cfg.Observe != nil {
		c.cfg.Observe(endpoint, outcome)
	}
}

// doPrivate signs and sends a request, returning the decoded envelope.
func (c *Client) doPrivate(ctx context.Context, method, path string, query url.Values, body map[string]any) common.Envelope {
	if c.cfg.APIKey == "" || c.cfg.APISecret == "" {
		return common.Envelope{Body: map[string]any{
			"retCode": float64(CodeMissingCredentials),
			"retMsg":  "api key/secret required",
		}}
	}

	bodyStr := ""
	if body != nil {
		s, err := compactJSON(body)
		if err != nil {
			return common.Envelope{Body: map[string]any{"retCode": -1.0, "retMsg": "encode body: " + err.Error()}}
		}
		bodyStr = s
	}

	if c.cfg.TimeSync != nil {
		c.timeSync.Refresh(ctx, TimeSyncMaxAge)
	}
	if err := c.rateLimiter.Wait(ctx); err != nil {
		c.observe(path, OutcomeTransport)
		return common.TransportEnvelope(err)
	}

	ts := strconv.FormatInt(c.now(), 10)
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if bodyStr != "" {
		reader = strings.NewReader(bodyStr)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		c.observe(path, OutcomeTransport)
		return common.TransportEnvelope(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-BAPI-API-KEY", c.cfg.APIKey)
	req.Header.Set("X-BAPI-TIMESTAMP", ts)
	req.Header.Set("X-BAPI-RECV-WINDOW", strconv.FormatInt(c.cfg.RecvWindow, 10))
	req.Header.Set("X-BAPI-SIGN", Sign(c.cfg.APISecret, ts, method, path, bodyStr))

	res, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Error().Err(err).Str("method", method).Str("path", path).Msg("private request failed")
		c.observe(path, OutcomeTransport)
		return common.TransportEnvelope(err)
	}
	defer res.Body.Close()

	c.rateLimiter.UpdateFromHeader(res.Header.Get("X-Bapi-Limit-Status"), res.Header.Get("X-Bapi-Limit"))

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		c.observe(path, OutcomeTransport)
		return common.TransportEnvelope(fmt.Errorf("read body: %w", err))
	}
	if res.StatusCode >= 400 {
		remaining, _ := c.rateLimiter.Usage()
		c.log.Warn().
			Str("method", method).
			Str("path", path).
			Int("status", res.StatusCode).
			Int("quota_remaining", remaining).
			Str("body", preview(raw)).
			Msg("private request rejected")
		c.log.Debug().
			Str("url", endpoint).
			Str("api_key", logging.MaskKey(c.cfg.APIKey)).
			Str("timestamp", ts).
			Msg("request summary")
	}

	var decoded map[string]any
	env := common.Envelope{HTTPStatus: res.StatusCode}
	if err := json.Unmarshal(raw, &decoded); err != nil || decoded == nil {
		env = common.StatusEnvelope(res.StatusCode, string(raw))
	} else {
		env.Body = decoded
	}

	if env.IsError() {
		c.observe(path, OutcomeError)
	} else {
		c.observe(path, OutcomeOK)
	}
	return env
}

// doPublic performs an unauthenticated GET and returns the decoded JSON value.
// Successful bodies are cached under cacheKey when a cache is configured.
func (c *Client) doPublic(ctx context.Context, path string, query url.Values, cacheKey string) (any, error) {
	useCache := c.cfg.Cache != nil && c.cfg.CacheTTL > 0 && cacheKey != ""
	if useCache {
		if raw, ok := c.cfg.Cache.Get(ctx, cacheKey); ok {
			var v any
			if err := json.Unmarshal(raw, &v); err == nil {
				return v, nil
			}
		}
	}

	if err := c.rateLimiter.Wait(ctx); err != nil {
		c.observe(path, OutcomeTransport)
		return nil, err
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	res, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Error().Err(err).Str("path", path).Msg("public request failed")
		c.observe(path, OutcomeTransport)
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}
	defer res.Body.Close()

	c.rateLimiter.UpdateFromHeader(res.Header.Get("X-Bapi-Limit-Status"), res.Header.Get("X-Bapi-Limit"))

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		c.observe(path, OutcomeTransport)
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if res.StatusCode >= 400 {
		c.log.Warn().Str("path", path).Int("status", res.StatusCode).Str("body", preview(raw)).Msg("public request rejected")
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		c.observe(path, OutcomeError)
		return nil, fmt.Errorf("%w: %s: %v", ErrDecode, path, err)
	}

	ok := res.StatusCode < 400
	if obj, isObj := v.(map[string]any); isObj {
		ok = ok && !(common.Envelope{Body: obj}).IsError()
	}
	if ok {
		c.observe(path, OutcomeOK)
		if useCache {
			c.cfg.Cache.Set(ctx, cacheKey, raw, c.cfg.CacheTTL)
		}
	} else {
		c.observe(path, OutcomeError)
	}
	return v, nil
}
