// Package testutil provides testing utilities for the MOEX ISS client.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Request kinds tracked by MockISS.
const (
	KindAuth    = "auth"
	KindCatalog = "catalog"
	KindCursor  = "cursor"
	KindPage    = "page"
	KindOther   = "other"
)

const (
	// PassportPath is the login path served by MockISS.
	PassportPath = "/authenticate"

	// CatalogPath is the shares listing path served by MockISS.
	CatalogPath = "/iss/engines/stock/markets/shares/securities.json"

	// HistoryPrefix prefixes per-instrument history paths.
	HistoryPrefix = "/iss/history/engines/stock/markets/shares/securities/"

	// DefaultColumns are returned when a history request names no columns.
	DefaultColumns = "BOARDID,TRADEDATE,SECID,CLOSE,VOLUME"
)

// MockISSResponse defines a canned response for a path.
type MockISSResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// Security is one catalog row served by MockISS.
type Security struct {
	SecID     string
	ShortName string
	SecName   string
	SecType   string
	ListLevel int
}

// Series describes the history of one instrument: Total rows split into
// pages of PageSize.
type Series struct {
	Total    int
	PageSize int

	// Short truncates the page at the given offset to the given length.
	Short map[int]int

	// FailAt answers the page at the given offset with FailStatus.
	FailAt     int
	FailStatus int
}

// MockISS is a configurable mock of the ISS API and the MOEX passport.
type MockISS struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc

	// Passport
	User         string
	Password     string
	CookieValue  string
	CookieMaxAge int // seconds; 0 issues a session-scoped cookie

	securities []Security
	series     map[string]Series

	// Tracking
	counts      map[string]int
	pageStarts  map[string][]int
	lastCookies map[string]string
	queries     []string
}

// NewMockISS starts a mock ISS server with a default passport account
// (user/secret) and an empty catalog.
func NewMockISS() *MockISS {
	mock := &MockISS{
		handlers:     make(map[string]http.HandlerFunc),
		User:         "user",
		Password:     "secret",
		CookieValue:  "cert-123",
		CookieMaxAge: 3600,
		series:       make(map[string]Series),
		counts:       make(map[string]int),
		pageStarts:   make(map[string][]int),
		lastCookies:  make(map[string]string),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(mock.serve))
	return mock
}

// URL returns the mock server base URL.
func (m *MockISS) URL() string {
	return m.server.URL
}

// AuthURL returns the passport login URL of the mock.
func (m *MockISS) AuthURL() string {
	return m.server.URL + PassportPath
}

// Close shuts down the mock server.
func (m *MockISS) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockISS) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts = make(map[string]int)
	m.pageStarts = make(map[string][]int)
	m.lastCookies = make(map[string]string)
	m.queries = nil
}

// SetHandler overrides the handler for a specific path.
func (m *MockISS) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a canned response for a path.
func (m *MockISS) SetResponse(path string, resp MockISSResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			_, _ = w.Write([]byte(resp.Body))
		}
	})
}

// AddSecurities appends rows to the catalog.
func (m *MockISS) AddSecurities(secs ...Security) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.securities = append(m.securities, secs...)
}

// SetSeries configures the history served for secID.
func (m *MockISS) SetSeries(secID string, s Series) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.series[strings.ToUpper(secID)] = s
}

// Count returns the number of requests of the given kind.
func (m *MockISS) Count(kind string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counts[kind]
}

// PageStarts returns the start offsets requested for secID in order.
func (m *MockISS) PageStarts(secID string) []int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]int(nil), m.pageStarts[strings.ToUpper(secID)]...)
}

// LastCookie returns the passport cookie sent with the last request of kind.
func (m *MockISS) LastCookie(kind string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastCookies[kind]
}

// Queries returns the raw query strings of all ISS requests in order.
func (m *MockISS) Queries() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.queries...)
}

func (m *MockISS) serve(w http.ResponseWriter, r *http.Request) {
	kind := classify(r)

	m.mu.Lock()
	m.counts[kind]++
	if c, err := r.Cookie("MicexPassportCert"); err == nil {
		m.lastCookies[kind] = c.Value
	} else {
		m.lastCookies[kind] = ""
	}
	if kind != KindAuth {
		m.queries = append(m.queries, r.URL.RawQuery)
	}
	handler, exists := m.handlers[r.URL.Path]
	m.mu.Unlock()

	if exists {
		handler(w, r)
		return
	}

	switch kind {
	case KindAuth:
		m.serveAuth(w, r)
	case KindCatalog:
		m.serveCatalog(w, r)
	case KindCursor:
		m.serveCursor(w, r)
	case KindPage:
		m.servePage(w, r)
	default:
		http.NotFound(w, r)
	}
}

func classify(r *http.Request) string {
	switch {
	case r.URL.Path == PassportPath:
		return KindAuth
	case r.URL.Path == CatalogPath:
		return KindCatalog
	case strings.HasPrefix(r.URL.Path, HistoryPrefix):
		if r.URL.Query().Get("iss.only") == "history.cursor" {
			return KindCursor
		}
		return KindPage
	default:
		return KindOther
	}
}

func (m *MockISS) serveAuth(w http.ResponseWriter, r *http.Request) {
	user, pass, ok := r.BasicAuth()

	m.mu.RLock()
	valid := ok && user == m.User && pass == m.Password
	cookie := &http.Cookie{
		Name:   "MicexPassportCert",
		Value:  m.CookieValue,
		Path:   "/",
		MaxAge: m.CookieMaxAge,
	}
	m.mu.RUnlock()

	if !valid {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte("Authentication failed"))
		return
	}

	http.SetCookie(w, cookie)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (m *MockISS) serveCatalog(w http.ResponseWriter, _ *http.Request) {
	m.mu.RLock()
	data := make([][]interface{}, 0, len(m.securities))
	for _, s := range m.securities {
		data = append(data, []interface{}{s.SecID, "TQBR", s.ShortName, s.SecName, s.SecType, s.ListLevel})
	}
	m.mu.RUnlock()

	payload := map[string]interface{}{
		"securities": map[string]interface{}{
			"columns": []string{"SECID", "BOARDID", "SHORTNAME", "SECNAME", "SECTYPE", "LISTLEVEL"},
			"data":    data,
		},
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(payload)
}

func (m *MockISS) lookupSeries(r *http.Request) (string, Series, bool) {
	name := strings.TrimPrefix(r.URL.Path, HistoryPrefix)
	secID := strings.ToUpper(strings.TrimSuffix(name, ".csv"))

	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.series[secID]
	return secID, s, ok
}

func (m *MockISS) serveCursor(w http.ResponseWriter, r *http.Request) {
	_, s, _ := m.lookupSeries(r)
	pageSize := s.PageSize
	if pageSize == 0 {
		pageSize = 100
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	fmt.Fprintf(w, "history.cursor\n\nINDEX;TOTAL;PAGESIZE\n0;%d;%d\n\n", s.Total, pageSize)
}

func (m *MockISS) servePage(w http.ResponseWriter, r *http.Request) {
	secID, s, _ := m.lookupSeries(r)
	start, _ := strconv.Atoi(r.URL.Query().Get("start"))

	m.mu.Lock()
	m.pageStarts[secID] = append(m.pageStarts[secID], start)
	m.mu.Unlock()

	if s.FailStatus != 0 && start == s.FailAt {
		w.WriteHeader(s.FailStatus)
		return
	}

	cols := r.URL.Query().Get("history.columns")
	if cols == "" {
		cols = DefaultColumns
	}
	columns := strings.Split(cols, ",")

	n := s.PageSize
	if n == 0 {
		n = 100
	}
	if short, ok := s.Short[start]; ok {
		n = short
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	fmt.Fprintf(w, "history\n\n%s\n", strings.Join(columns, ";"))
	for i := start; i < start+n && i < s.Total; i++ {
		fmt.Fprintf(w, "%s\n", HistoryRow(secID, i, columns))
	}
	fmt.Fprint(w, "\n")
}

// HistoryRow renders row i of secID's history for the given columns the way
// MockISS serves it.
func HistoryRow(secID string, i int, columns []string) string {
	values := make([]string, len(columns))
	for j, col := range columns {
		switch col {
		case "BOARDID":
			values[j] = "TQBR"
		case "SECID":
			values[j] = secID
		case "TRADEDATE":
			values[j] = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i).Format("2006-01-02")
		case "TRADINGSESSION":
			values[j] = "3"
		case "CURRENCYID":
			values[j] = "SUR"
		case "NUMTRADES", "VOLUME":
			values[j] = strconv.Itoa(1000 + i)
		default:
			values[j] = fmt.Sprintf("%d.%02d", 100+i, i%100)
		}
	}
	return strings.Join(values, ";")
}

// NewCSVResponse creates a 200 OK CSV response.
func NewCSVResponse(body string) MockISSResponse {
	return MockISSResponse{
		StatusCode: http.StatusOK,
		Body:       body,
		Headers:    map[string]string{"Content-Type": "text/csv; charset=utf-8"},
	}
}

// NewJSONResponse creates a 200 OK JSON response.
func NewJSONResponse(body string) MockISSResponse {
	return MockISSResponse{
		StatusCode: http.StatusOK,
		Body:       body,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockISSResponse {
	return MockISSResponse{StatusCode: http.StatusInternalServerError, Body: "Internal server error"}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse() MockISSResponse {
	return MockISSResponse{StatusCode: http.StatusTooManyRequests, Body: "Too many requests"}
}
