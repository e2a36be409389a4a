package client

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Format is the ISS response format, used as the file extension of a resource.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatXML  Format = "xml"
)

// Namespace selects the ISS resource tree.
type Namespace string

const (
	// NamespaceTradingSystem addresses current trading data.
	NamespaceTradingSystem Namespace = "trading_system"

	// NamespaceTradingResults addresses historical trading results.
	NamespaceTradingResults Namespace = "trading_results"
)

var namespacePaths = map[Namespace]string{
	NamespaceTradingSystem:  "iss",
	NamespaceTradingResults: "iss/history",
}

// Pair is an ordered key/value used for path embedding and query parameters.
type Pair struct {
	Key   string
	Value string
}

// DefaultEmbed addresses the shares market of the stock engine.
var DefaultEmbed = []Pair{
	{Key: "engines", Value: "stock"},
	{Key: "markets", Value: "shares"},
}

// URLBuilder composes ISS resource URLs.
type URLBuilder struct {
	base string
}

// NewURLBuilder returns a builder rooted at base (e.g. https://iss.moex.com).
func NewURLBuilder(base string) URLBuilder {
	return URLBuilder{base: strings.TrimRight(base, "/")}
}

// Build returns
//
//	{base}/{namespace path}[/{k}/{v}...]/securities[/{secID}].{format}[?{params}]
//
// Embed pairs and params keep their order; path segments and query keys and
// values are escaped. Build panics on an unknown namespace.
func (b URLBuilder) Build(format Format, ns Namespace, embed []Pair, secID string, params []Pair) string {
	nsPath, ok := namespacePaths[ns]
	if !ok {
		panic(fmt.Sprintf("client: unknown ISS namespace %q", ns))
	}

	var sb strings.Builder
	sb.WriteString(b.base)
	sb.WriteByte('/')
	sb.WriteString(nsPath)

	for _, p := range embed {
		sb.WriteByte('/')
		sb.WriteString(url.PathEscape(p.Key))
		sb.WriteByte('/')
		sb.WriteString(url.PathEscape(p.Value))
	}

	sb.WriteString("/securities")
	if secID != "" {
		sb.WriteByte('/')
		sb.WriteString(url.PathEscape(secID))
	}
	sb.WriteByte('.')
	sb.WriteString(string(format))

	for i, p := range params {
		if i == 0 {
			sb.WriteByte('?')
		} else {
			sb.WriteByte('&')
		}
		sb.WriteString(url.QueryEscape(p.Key))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(p.Value))
	}

	return sb.String()
}

// cursorURL rewrites a history URL to request only the history.cursor block.
func cursorURL(historyURL string) (string, error) {
	return rewriteQuery(historyURL, func(q url.Values) {
		q.Set("iss.only", "history.cursor")
		q.Set("iss.meta", "off")
		q.Del("start")
	})
}

// pageURL rewrites a history URL to request the page starting at start.
func pageURL(historyURL string, start int) (string, error) {
	return rewriteQuery(historyURL, func(q url.Values) {
		q.Set("start", strconv.Itoa(start))
	})
}

func rewriteQuery(raw string, edit func(url.Values)) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	q := u.Query()
	edit(q)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
