// Package auth manages the MOEX passport session used to access
// authenticated ISS data.
//
// A Session performs an HTTP Basic login against the passport endpoint and
// keeps the MicexPassportCert cookie it receives. The cookie is attached to ISS
// requests through Apply. A session without a cookie, or whose cookie has
// expired, is stale; EnsureAuthenticated logs in again only in that case.
package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"github.com/Sternrassler/moex-iss-client/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultAuthURL is the MOEX passport login endpoint.
	DefaultAuthURL = "https://passport.moex.com/authenticate"

	// CookieName is the name of the passport certificate cookie.
	CookieName = "MicexPassportCert"

	// DefaultLoginCooldown is the pause after a failed login before
	// EnsureAuthenticated tries again.
	DefaultLoginCooldown = time.Minute
)

var (
	// ErrAuthRejected is returned when the passport answers with a non-200 status.
	ErrAuthRejected = errors.New("passport rejected credentials")

	// ErrNoCookie is returned when the passport answered 200 without a certificate cookie.
	ErrNoCookie = errors.New("passport response carries no " + CookieName + " cookie")
)

var authAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "iss_auth_attempts_total",
	Help: "Total passport login attempts by result",
}, []string{"result"})

// Credentials identify a MOEX passport account.
type Credentials struct {
	User     string
	Password string

	// ProxyURL routes passport and ISS traffic through an HTTP proxy when set.
	ProxyURL string

	// Debug enables debug logging for the session when > 0.
	Debug int
}

// Option configures a Session.
type Option func(*Session)

// WithAuthURL overrides the passport endpoint.
func WithAuthURL(u string) Option {
	return func(s *Session) { s.authURL = u }
}

// WithLogger sets the session logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// WithTimeout sets the timeout of passport requests.
func WithTimeout(d time.Duration) Option {
	return func(s *Session) { s.httpClient.Timeout = d }
}

// WithLoginCooldown sets how long EnsureAuthenticated waits after a failed
// login before trying again. Zero retries on every call.
func WithLoginCooldown(d time.Duration) Option {
	return func(s *Session) { s.cooldown = d }
}

// Session holds the passport cookie for one set of credentials.
type Session struct {
	creds      Credentials
	authURL    string
	httpClient *http.Client
	transport  http.RoundTripper
	logger     zerolog.Logger

	mu       sync.RWMutex
	cookie   *http.Cookie
	expires  time.Time // zero for a session-scoped cookie
	failedAt time.Time
	cooldown time.Duration

	group singleflight.Group
	now   func() time.Time
}

// NewSession creates an unauthenticated session. No request is made until
// Authenticate or EnsureAuthenticated is called.
func NewSession(creds Credentials, opts ...Option) (*Session, error) {
	transport := http.DefaultTransport
	if creds.ProxyURL != "" {
		proxy, err := url.Parse(creds.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.Proxy = http.ProxyURL(proxy)
		transport = t
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	s := &Session{
		creds:   creds,
		authURL: DefaultAuthURL,
		httpClient: &http.Client{
			Jar:       jar,
			Transport: transport,
			Timeout:   30 * time.Second,
		},
		transport: transport,
		logger:    logging.NewLogger("iss-auth"),
		cooldown:  DefaultLoginCooldown,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if creds.Debug > 0 {
		s.logger = s.logger.Level(zerolog.DebugLevel)
	}

	return s, nil
}

// Transport returns the round tripper honouring the configured proxy.
func (s *Session) Transport() http.RoundTripper {
	return s.transport
}

// Authenticate performs a passport login, replacing any cookie held. A failed
// login leaves the session unauthenticated and is logged as a warning.
func (s *Session) Authenticate(ctx context.Context) error {
	return s.singleLogin(ctx, true)
}

// EnsureAuthenticated logs in only when the session is stale. It reports
// whether a valid cookie is held afterwards. Concurrent callers share one
// login attempt. After a failed login no new attempt is made until the
// cooldown has passed.
func (s *Session) EnsureAuthenticated(ctx context.Context) bool {
	if !s.IsStale() {
		return true
	}
	if s.coolingDown() {
		return false
	}
	if err := s.singleLogin(ctx, false); err != nil {
		return false
	}
	return !s.IsStale()
}

// singleLogin runs at most one passport login at a time. The login itself is
// detached from the caller's cancellation so that callers joining it are not
// failed by the first caller's context; each caller stops waiting when its
// own context is done.
func (s *Session) singleLogin(ctx context.Context, force bool) error {
	ch := s.group.DoChan("login", func() (interface{}, error) {
		if !force && !s.IsStale() {
			return nil, nil
		}
		return nil, s.login(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		if res.Shared {
			s.logger.Debug().Msg("Joined in-flight passport login")
		}
		return res.Err
	}
}

func (s *Session) coolingDown() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.failedAt.IsZero() && s.now().Before(s.failedAt.Add(s.cooldown))
}

// IsStale reports whether the session holds no cookie or its cookie expired.
func (s *Session) IsStale() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.cookie == nil {
		return true
	}
	if s.expires.IsZero() {
		return false
	}
	return !s.now().Before(s.expires)
}

// Cookie returns a copy of the held passport cookie.
func (s *Session) Cookie() (http.Cookie, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.cookie == nil {
		return http.Cookie{}, false
	}
	return *s.cookie, true
}

// Expires returns the cookie expiry, zero when the cookie is session-scoped
// or absent.
func (s *Session) Expires() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expires
}

// Apply attaches the passport cookie to req when one is held.
func (s *Session) Apply(req *http.Request) {
	if c, ok := s.Cookie(); ok {
		req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}
}

// Reset drops the held cookie.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cookie = nil
	s.expires = time.Time{}
}

func (s *Session) loginFailed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cookie = nil
	s.expires = time.Time{}
	s.failedAt = s.now()
}

func (s *Session) login(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.authURL, nil)
	if err != nil {
		return fmt.Errorf("create passport request: %w", err)
	}
	req.SetBasicAuth(s.creds.User, s.creds.Password)

	s.logger.Debug().
		Str("url", s.authURL).
		Str("user", s.creds.User).
		Msg("Passport login")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.loginFailed()
		authAttemptsTotal.WithLabelValues("error").Inc()
		s.logger.Warn().Err(err).Str("url", s.authURL).Msg("Passport login failed")
		return fmt.Errorf("passport request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		s.loginFailed()
		authAttemptsTotal.WithLabelValues("rejected").Inc()
		s.logger.Warn().
			Int("status", resp.StatusCode).
			Str("user", s.creds.User).
			Msg("Passport rejected credentials")
		return fmt.Errorf("%w: status %d", ErrAuthRejected, resp.StatusCode)
	}

	cookie, expires, ok := s.extractCookie(resp)
	if !ok {
		s.loginFailed()
		authAttemptsTotal.WithLabelValues("no_cookie").Inc()
		s.logger.Warn().Str("user", s.creds.User).Msg("Passport response without certificate cookie")
		return ErrNoCookie
	}

	s.mu.Lock()
	s.cookie = cookie
	s.expires = expires
	s.failedAt = time.Time{}
	s.mu.Unlock()

	authAttemptsTotal.WithLabelValues("success").Inc()
	ev := s.logger.Info().Str("user", s.creds.User)
	if !expires.IsZero() {
		ev = ev.Time("expires", expires)
	}
	ev.Msg("Passport login succeeded")

	return nil
}

// extractCookie finds the certificate cookie on the final response, falling
// back to the jar for cookies set during a redirect. Jar cookies carry no
// expiry and are treated as session-scoped.
func (s *Session) extractCookie(resp *http.Response) (*http.Cookie, time.Time, bool) {
	for _, c := range resp.Cookies() {
		if c.Name != CookieName {
			continue
		}
		switch {
		case c.MaxAge < 0:
			return nil, time.Time{}, false
		case c.MaxAge > 0:
			return c, s.now().Add(time.Duration(c.MaxAge) * time.Second), true
		case !c.Expires.IsZero():
			return c, c.Expires, true
		default:
			return c, time.Time{}, true
		}
	}

	if s.httpClient.Jar != nil && resp.Request != nil {
		for _, c := range s.httpClient.Jar.Cookies(resp.Request.URL) {
			if c.Name == CookieName && c.Value != "" {
				return c, time.Time{}, true
			}
		}
	}

	return nil, time.Time{}, false
}
