package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Sternrassler/moex-iss-client/pkg/pagination"
	"github.com/Sternrassler/moex-iss-client/pkg/sink"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	issHistoryPagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "iss_history_pages_total",
		Help: "Total history pages delivered to sinks",
	})

	issHistoryRowsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "iss_history_rows_total",
		Help: "Total history rows delivered to sinks",
	})

	issInstrumentFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "iss_instrument_failures_total",
		Help: "Total instruments aborted after a failed request",
	})
)

// DefaultHistoryColumns is the column set requested for history downloads.
var DefaultHistoryColumns = []string{
	"BOARDID", "TRADEDATE", "SECID", "NUMTRADES", "VALUE", "OPEN", "LOW", "HIGH",
	"LEGALCLOSEPRICE", "WAPRICE", "CLOSE", "VOLUME", "MARKETPRICE2", "MARKETPRICE3",
	"ADMITTEDQUOTE", "MP2VALTRD", "MARKETPRICE3TRADESVALUE", "ADMITTEDVALUE", "WAVAL",
	"TRADINGSESSION", "CURRENCYID", "TRENDCLSPR",
}

const dateLayout = "2006-01-02"

// HistoryRequest describes a history download.
type HistoryRequest struct {
	// SecIDs are downloaded sequentially in the given order.
	SecIDs []string

	// From and Till bound the trading dates (inclusive); zero means unbounded.
	From time.Time
	Till time.Time

	// PrimaryBoardOnly restricts results to the instrument's primary board.
	PrimaryBoardOnly bool

	// Embed overrides DefaultEmbed.
	Embed []Pair

	// Columns overrides DefaultHistoryColumns.
	Columns []string
}

func (r HistoryRequest) columns() []string {
	if len(r.Columns) > 0 {
		return r.Columns
	}
	return DefaultHistoryColumns
}

// InstrumentStats reports the outcome for one instrument.
type InstrumentStats struct {
	SecID string
	Total int
	Pages int
	Rows  int
	Err   error
}

// StreamStats reports the outcome of StreamHistory.
type StreamStats struct {
	Instruments []InstrumentStats
	Pages       int
	Rows        int
	Failed      int
}

// HistoryURL returns the history URL of secID for req.
func (c *Client) HistoryURL(req HistoryRequest, secID string) string {
	params := []Pair{
		{Key: "iss.only", Value: "history"},
		{Key: "history.columns", Value: strings.Join(req.columns(), ",")},
	}
	if !req.From.IsZero() {
		params = append(params, Pair{Key: "from", Value: req.From.Format(dateLayout)})
	}
	if !req.Till.IsZero() {
		params = append(params, Pair{Key: "till", Value: req.Till.Format(dateLayout)})
	}
	if req.PrimaryBoardOnly {
		params = append(params, Pair{Key: "marketprice_board", Value: "1"})
	}

	embed := req.Embed
	if embed == nil {
		embed = DefaultEmbed
	}

	return c.urls.Build(FormatCSV, NamespaceTradingResults, embed, secID, params)
}

// StreamHistory downloads the history of every instrument in req into s,
// one instrument at a time. Each instrument gets a header batch followed by
// its data pages in cursor order.
//
// A failed request aborts only the current instrument; the failure is logged,
// recorded in the stats and joined into the returned error once all
// instruments ran. A sink error or context cancellation stops the stream
// immediately.
func (c *Client) StreamHistory(ctx context.Context, req HistoryRequest, s sink.Sink) (*StreamStats, error) {
	if from, till := req.From, req.Till; !from.IsZero() && !till.IsZero() && till.Before(from) {
		return nil, fmt.Errorf("%w: till %s before from %s", ErrInvalidArgs,
			till.Format(dateLayout), from.Format(dateLayout))
	}

	header := strings.Join(req.columns(), ";")
	stats := &StreamStats{}
	var failures []error

	for _, secID := range req.SecIDs {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		is, sinkErr := c.streamInstrument(ctx, req, secID, header, s)
		stats.Instruments = append(stats.Instruments, is)
		stats.Pages += is.Pages
		stats.Rows += is.Rows

		if sinkErr != nil {
			return stats, fmt.Errorf("sink %s: %w", secID, sinkErr)
		}
		if is.Err != nil {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
			stats.Failed++
			issInstrumentFailuresTotal.Inc()
			failures = append(failures, fmt.Errorf("%s: %w", secID, is.Err))
			c.logger.Warn().
				Err(is.Err).
				Str("secid", secID).
				Int("rows", is.Rows).
				Int("total", is.Total).
				Msg("History download aborted for instrument")
		}
	}

	c.logger.Info().
		Int("instruments", len(req.SecIDs)).
		Int("failed", stats.Failed).
		Int("pages", stats.Pages).
		Int("rows", stats.Rows).
		Msg("History stream complete")

	return stats, errors.Join(failures...)
}

// streamInstrument downloads one instrument. Request failures are reported
// in the stats; a sink failure is returned separately.
func (c *Client) streamInstrument(ctx context.Context, req HistoryRequest, secID, header string, s sink.Sink) (InstrumentStats, error) {
	is := InstrumentStats{SecID: secID}
	logger := c.logger.With().Str("secid", secID).Logger()
	historyURL := c.HistoryURL(req, secID)

	if err := s.Process(ctx, sink.Batch{SecID: secID, Header: true, Rows: []string{header}}); err != nil {
		return is, err
	}

	cur, err := c.ResolveCursor(ctx, historyURL)
	if err != nil {
		is.Err = err
		return is, nil
	}
	is.Total = cur.Total

	logger.Info().
		Int("total", cur.Total).
		Int("page_size", cur.PageSize).
		Int("pages", cur.Pages()).
		Msg("History download started")

	var sinkErr error
	fetcher := pagination.PageFetcherFunc(func(ctx context.Context, start int) ([]string, error) {
		return c.fetchPage(ctx, historyURL, start)
	})
	deliver := func(rows []string) error {
		if err := s.Process(ctx, sink.Batch{SecID: secID, Rows: rows}); err != nil {
			sinkErr = err
			return err
		}
		issHistoryPagesTotal.Inc()
		issHistoryRowsTotal.Add(float64(len(rows)))
		return nil
	}

	res, err := pagination.NewWalker(fetcher, c.config.Walker, logger).Walk(ctx, cur, deliver)
	is.Pages = res.Pages
	is.Rows = res.Rows
	if sinkErr != nil {
		return is, sinkErr
	}
	if err != nil {
		is.Err = err
		return is, nil
	}

	logger.Info().
		Int("rows", res.Rows).
		Int("pages", res.Pages).
		Msg("History download finished")

	return is, nil
}

// fetchPage fetches the page of historyURL starting at start.
func (c *Client) fetchPage(ctx context.Context, historyURL string, start int) ([]string, error) {
	u, err := pageURL(historyURL, start)
	if err != nil {
		return nil, err
	}

	body, err := c.get(ctx, kindPage, u)
	if err != nil {
		return nil, err
	}

	return parsePage(string(body)), nil
}

// parsePage extracts the data rows of a CSV history page. A page is an
// optional block title followed by a blank line, the header line, and the
// rows up to the next blank line.
func parsePage(text string) []string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	i := 0
	skipBlank := func() {
		for i < len(lines) && strings.TrimSpace(lines[i]) == "" {
			i++
		}
	}

	skipBlank()
	if i+1 < len(lines) && !strings.Contains(lines[i], ";") && strings.TrimSpace(lines[i+1]) == "" {
		i++ // block title
		skipBlank()
	}
	if i >= len(lines) {
		return nil
	}
	i++ // header

	var rows []string
	for ; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "" {
			break
		}
		rows = append(rows, lines[i])
	}
	return rows
}
