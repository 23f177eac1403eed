package registry

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"golang.org/x/net/publicsuffix"

	"github.com/ppiankov/rnpdno/internal/cache"
	"github.com/ppiankov/rnpdno/internal/metrics"
	"github.com/ppiankov/rnpdno/internal/model"
	"github.com/ppiankov/rnpdno/internal/util"
)

// RateLimiter blocks until a request to rawURL may proceed
type RateLimiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// crawlDelayer is implemented by limiters that can honour a robots.txt crawl delay
type crawlDelayer interface {
	SetCrawlDelay(host string, delay time.Duration)
}

// throttler is implemented by limiters that slow down after a 429 answer
type throttler interface {
	Throttle(rawURL string) float64
}

// Client talks to the registry: one session, one POST per page
type Client struct {
	http     *resty.Client
	cfg      model.RegistryConfig
	baseURL  *url.URL
	maxBytes int64
	decoder  Decoder
	limiter  RateLimiter
	cache    cache.Cache
	cacheTTL time.Duration
	robots   *util.RobotsChecker
	metrics  *metrics.Metrics
	log      zerolog.Logger

	mu    sync.RWMutex
	token string // Anti-forgery token issued with the session
}

// Option customises a Client
type Option func(*Client)

// WithDecoder replaces the default JSON decoder
func WithDecoder(d Decoder) Option {
	return func(c *Client) { c.decoder = d }
}

// WithLimiter throttles every registry request
func WithLimiter(l RateLimiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithCache serves repeated page requests from cache
func WithCache(pc cache.Cache, ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = pc
		c.cacheTTL = ttl
	}
}

// WithRobots checks robots.txt during Preflight
func WithRobots(r *util.RobotsChecker) Option {
	return func(c *Client) { c.robots = r }
}

// WithMetrics records fetch metrics
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithLogger sets the client logger
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// NewClient creates a registry client from configuration
func NewClient(cfg *model.Config, opts ...Option) (*Client, error) {
	base, err := url.Parse(cfg.Registry.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse registry base URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("registry base URL %q must be absolute", cfg.Registry.BaseURL)
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	transport, err := util.NewTransport(cfg.HTTP, cfg.Concurrency.Workers)
	if err != nil {
		return nil, err
	}

	httpClient := resty.New()
	httpClient.SetTransport(transport)
	httpClient.SetCookieJar(jar)
	httpClient.SetTimeout(cfg.HTTP.Timeout)
	httpClient.SetRedirectPolicy(resty.FlexibleRedirectPolicy(3))
	httpClient.SetHeader("User-Agent", cfg.HTTP.UserAgent)
	httpClient.SetHeader("Accept", "application/json")
	httpClient.SetHeader("Accept-Language", "es-MX,es;q=0.9")

	c := &Client{
		http:     httpClient,
		cfg:      cfg.Registry,
		baseURL:  base,
		maxBytes: cfg.HTTP.MaxBodyBytes,
		decoder:  JSONDecoder{IDField: cfg.Registry.IDField, PageSize: cfg.Registry.PageSize},
		cache:    cache.Noop{},
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

func (c *Client) endpoint(path string) string {
	return c.baseURL.ResolveReference(&url.URL{Path: path}).String()
}

// Preflight checks robots.txt and opens the registry session so later POSTs carry its cookies
func (c *Client) Preflight(ctx context.Context) error {
	if c.robots != nil {
		paths := []string{c.cfg.SearchPath}
		if c.cfg.SessionPath != "" {
			paths = append(paths, c.cfg.SessionPath)
		}
		policy, err := c.robots.Policy(ctx, c.baseURL, paths...)
		if err != nil {
			return &TransportError{Op: "check robots.txt", Err: err}
		}
		if !policy.Allowed() {
			return &RegistryError{Message: "robots.txt disallows " + strings.Join(policy.Disallowed, ", ")}
		}
		if policy.CrawlDelay > 0 {
			if cd, ok := c.limiter.(crawlDelayer); ok {
				cd.SetCrawlDelay(c.baseURL.Host, policy.CrawlDelay)
				c.log.Info().Dur("crawl_delay", policy.CrawlDelay).Msg("honouring robots.txt crawl delay")
			}
		}
	}

	if c.cfg.SessionPath == "" {
		return nil
	}

	sessionURL := c.endpoint(c.cfg.SessionPath)
	if err := c.wait(ctx, sessionURL); err != nil {
		return err
	}
	resp, err := c.http.R().SetContext(ctx).SetHeader("Accept", "text/html").Get(sessionURL)
	if err != nil {
		return &TransportError{Op: "open session", Err: err}
	}
	if err := classifyStatus("open session", resp.StatusCode(), resp.Status()); err != nil {
		return err
	}

	if c.cfg.TokenField != "" {
		token, err := extractFormToken(bytes.NewReader(resp.Body()), c.cfg.TokenField)
		if err != nil {
			return &DecodeError{Err: err}
		}
		c.mu.Lock()
		c.token = token
		c.mu.Unlock()
		if token == "" {
			c.log.Debug().Str("field", c.cfg.TokenField).Msg("session page carries no form token")
		}
	}

	c.log.Debug().Str("url", sessionURL).Msg("registry session opened")
	return nil
}

// FetchPage requests one page of records for state, starting at cursor ("" for the first page).
// It never retries.
func (c *Client) FetchPage(ctx context.Context, spec model.FilterSpec, state model.StateCode, cursor string) (*model.Page, error) {
	searchURL := c.endpoint(c.cfg.SearchPath)

	form := spec.FormValues()
	if c.cfg.StateParam != "" {
		form[c.cfg.StateParam] = string(state)
	}
	if cursor != "" && c.cfg.CursorParam != "" {
		form[c.cfg.CursorParam] = cursor
	}
	if c.cfg.PageSize > 0 && c.cfg.PageSizeParam != "" {
		form[c.cfg.PageSizeParam] = strconv.Itoa(c.cfg.PageSize)
	}

	key := cache.PageKey(searchURL, form)
	if body, layer, ok := cache.Lookup(c.cache, key); ok {
		page, err := c.decoder.DecodePage(body, state, cursor)
		if err == nil {
			c.metrics.ObserveCacheHit(string(layer))
			return page, nil
		}
		_ = c.cache.Delete(key)
	}

	if err := c.wait(ctx, searchURL); err != nil {
		return nil, err
	}

	// The token is per session, so it stays out of the cache key.
	c.mu.RLock()
	if c.token != "" {
		form[c.cfg.TokenField] = c.token
	}
	c.mu.RUnlock()

	start := time.Now()
	body, err := c.post(ctx, searchURL, form)
	c.metrics.ObservePage(string(state), time.Since(start))
	if err != nil {
		return nil, err
	}

	page, err := c.decoder.DecodePage(body, state, cursor)
	if err != nil {
		return nil, err
	}

	if err := c.cache.Set(key, body, c.cacheTTL); err != nil {
		c.log.Warn().Err(err).Msg("cache page")
	}

	return page, nil
}

func (c *Client) post(ctx context.Context, rawURL string, form map[string]string) ([]byte, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetFormData(form).
		SetDoNotParseResponse(true).
		Post(rawURL)
	if err != nil {
		return nil, &TransportError{Op: "fetch page", Err: err}
	}
	raw := resp.RawBody()
	defer func() { _ = raw.Close() }()

	if resp.StatusCode() == http.StatusTooManyRequests {
		if t, ok := c.limiter.(throttler); ok {
			rps := t.Throttle(rawURL)
			c.log.Warn().Float64("rps", rps).Msg("registry answered 429, slowing down")
		}
	}
	if err := classifyStatus("fetch page", resp.StatusCode(), resp.Status()); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(raw, c.maxBytes+1))
	if err != nil {
		return nil, &TransportError{Op: "read body", Err: err}
	}
	if int64(len(body)) > c.maxBytes {
		return nil, &DecodeError{Err: fmt.Errorf("response exceeds %d bytes", c.maxBytes)}
	}
	return body, nil
}

// ListStates fetches the registry's own state catalog
func (c *Client) ListStates(ctx context.Context) ([]model.State, error) {
	if c.cfg.StatesPath == "" {
		return nil, fmt.Errorf("registry.states_path is not configured")
	}
	statesURL := c.endpoint(c.cfg.StatesPath)
	if err := c.wait(ctx, statesURL); err != nil {
		return nil, err
	}

	resp, err := c.http.R().SetContext(ctx).Get(statesURL)
	if err != nil {
		return nil, &TransportError{Op: "list states", Err: err}
	}
	if err := classifyStatus("list states", resp.StatusCode(), resp.Status()); err != nil {
		return nil, err
	}
	return c.decoder.DecodeStates(resp.Body())
}

func (c *Client) wait(ctx context.Context, rawURL string) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx, rawURL); err != nil {
		return &TransportError{Op: "rate limit", Err: err}
	}
	return nil
}

// classifyStatus maps 429 and 5xx to transport errors and other non-2xx to registry errors
func classifyStatus(op string, code int, status string) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusTooManyRequests || code >= 500:
		return &TransportError{Op: op, StatusCode: code, Err: fmt.Errorf("%s", strings.TrimSpace(status))}
	default:
		return &RegistryError{StatusCode: code, Message: fmt.Sprintf("%s: %s", op, strings.TrimSpace(status))}
	}
}
