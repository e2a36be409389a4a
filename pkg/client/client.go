// Package client provides the MOEX ISS HTTP client: instrument catalog,
// history cursor resolution and paginated history streaming, with passport
// authentication, retries and an optional Redis response cache.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Sternrassler/moex-iss-client/pkg/auth"
	"github.com/Sternrassler/moex-iss-client/pkg/cache"
	"github.com/Sternrassler/moex-iss-client/pkg/logging"
	"github.com/Sternrassler/moex-iss-client/pkg/pagination"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultBaseURL is the public ISS endpoint.
const DefaultBaseURL = "https://iss.moex.com"

// Request kinds used as metric labels.
const (
	kindCatalog = "catalog"
	kindCursor  = "cursor"
	kindPage    = "page"
)

// maxErrorBody bounds how much of a failed response is kept for the error.
const maxErrorBody = 512

// Prometheus metrics for ISS client operations.
var (
	issRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "iss_requests_total",
		Help: "Total ISS requests by kind and status",
	}, []string{"kind", "status"})

	issRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "iss_request_duration_seconds",
		Help:    "ISS request duration in seconds by kind",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"kind"})

	issErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "iss_errors_total",
		Help: "Total ISS errors by class",
	}, []string{"class"})
)

// Client is the ISS client.
type Client struct {
	httpClient *http.Client
	session    *auth.Session
	cache      *cache.Manager
	urls       URLBuilder
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL is the ISS root (default https://iss.moex.com).
	BaseURL string

	// UserAgent header sent with every request.
	UserAgent string

	// Session authenticates requests with a passport cookie. Nil means
	// anonymous access.
	Session *auth.Session

	// Redis enables the response cache when set.
	Redis *redis.Client

	// CacheTTL is how long cached responses stay fresh (0 disables caching).
	CacheTTL time.Duration

	// HTTPTimeout bounds a single request.
	HTTPTimeout time.Duration

	// Retry controls retries of failed requests.
	Retry RetryConfig

	// Walker controls history page walking.
	Walker pagination.Config

	// Logger overrides the component logger.
	Logger *zerolog.Logger
}

// DefaultConfig returns a configuration for anonymous access to the public
// ISS endpoint.
func DefaultConfig() Config {
	return Config{
		BaseURL:     DefaultBaseURL,
		UserAgent:   "moex-iss-client/1.0",
		CacheTTL:    10 * time.Minute,
		HTTPTimeout: 30 * time.Second,
		Retry:       DefaultRetryConfig(),
		Walker:      pagination.DefaultConfig(),
	}
}

// New creates a new ISS client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https (got %q)", cfg.BaseURL)
	}

	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.CacheTTL < 0 {
		return nil, fmt.Errorf("cache_ttl must not be negative (got %v)", cfg.CacheTTL)
	}

	if err := cfg.Retry.Validate(); err != nil {
		return nil, err
	}

	logger := logging.NewLogger("iss-client")
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	if cfg.Session != nil {
		httpClient.Transport = cfg.Session.Transport()
	}

	var cacheManager *cache.Manager
	if cfg.Redis != nil && cfg.CacheTTL > 0 {
		cacheManager = cache.NewManager(cfg.Redis)
	}

	return &Client{
		httpClient: httpClient,
		session:    cfg.Session,
		cache:      cacheManager,
		urls:       NewURLBuilder(cfg.BaseURL),
		config:     cfg,
		logger:     logger,
	}, nil
}

// URLs returns the client's URL builder.
func (c *Client) URLs() URLBuilder {
	return c.urls
}

// get fetches rawURL and returns the response body. The passport session is
// refreshed when stale and not cooling down after a failed login; without a
// valid cookie the request goes out anonymously. Successful responses are served from and stored in the cache
// when one is configured.
func (c *Client) get(ctx context.Context, kind, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}

	authenticated := false
	if c.session != nil {
		authenticated = c.session.EnsureAuthenticated(ctx)
		if !authenticated {
			c.logger.Warn().Str("url", rawURL).Msg("Passport session unavailable, requesting anonymously")
		}
	}

	key := cache.KeyFromURL(u, authenticated)
	if c.cache != nil {
		entry, err := c.cache.Get(ctx, key)
		switch {
		case err == nil:
			c.logger.Debug().Str("url", rawURL).Msg("Cache hit")
			issRequestsTotal.WithLabelValues(kind, "cached").Inc()
			return entry.Data, nil
		case !errors.Is(err, cache.ErrCacheMiss):
			c.logger.Warn().Err(err).Str("url", rawURL).Msg("Cache get error")
		}
	}

	var body []byte
	var contentType string

	err = retryWithBackoff(ctx, c.config.Retry, c.logger, func() error {
		start := time.Now()
		defer func() {
			issRequestDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
		}()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("User-Agent", c.config.UserAgent)
		if c.session != nil {
			c.session.Apply(req)
		}

		c.logger.Debug().Str("url", rawURL).Str("kind", kind).Msg("Executing ISS request")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			issErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			issRequestsTotal.WithLabelValues(kind, "network_error").Inc()
			return &ISSError{ErrorClass: ErrorClassNetwork, Message: "request failed", Err: err}
		}
		defer resp.Body.Close()

		status := strconv.Itoa(resp.StatusCode)
		if class := classifyStatus(resp.StatusCode); class != "" {
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			issErrorsTotal.WithLabelValues(string(class)).Inc()
			issRequestsTotal.WithLabelValues(kind, status).Inc()

			c.logger.Warn().
				Str("url", rawURL).
				Int("status", resp.StatusCode).
				Str("error_class", string(class)).
				Msg("ISS request error")

			msg := resp.Status
			if len(snippet) > 0 {
				msg += ": " + string(snippet)
			}
			return &ISSError{StatusCode: resp.StatusCode, ErrorClass: class, Message: msg}
		}

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			issErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			issRequestsTotal.WithLabelValues(kind, "network_error").Inc()
			return &ISSError{StatusCode: resp.StatusCode, ErrorClass: ErrorClassNetwork, Message: "read body", Err: err}
		}

		issRequestsTotal.WithLabelValues(kind, status).Inc()
		body = data
		contentType = resp.Header.Get("Content-Type")
		return nil
	})
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, key, cache.NewEntry(body, contentType, c.config.CacheTTL)); err != nil {
			c.logger.Warn().Err(err).Str("url", rawURL).Msg("Failed to cache response")
		}
	}

	return body, nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// GetCache returns the cache manager, nil when caching is disabled.
func (c *Client) GetCache() *cache.Manager {
	return c.cache
}
