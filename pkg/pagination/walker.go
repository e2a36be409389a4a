package pagination

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Config holds walker configuration.
type Config struct {
	// ProgressEvery logs a progress line every N pages (0 disables).
	ProgressEvery int
}

// DefaultConfig returns the default walker configuration.
func DefaultConfig() Config {
	return Config{
		ProgressEvery: 50,
	}
}

// PageFetcher fetches the rows of the page starting at offset start.
type PageFetcher interface {
	FetchPage(ctx context.Context, start int) ([]string, error)
}

// PageFetcherFunc adapts a function to the PageFetcher interface.
type PageFetcherFunc func(ctx context.Context, start int) ([]string, error)

// FetchPage implements PageFetcher.
func (f PageFetcherFunc) FetchPage(ctx context.Context, start int) ([]string, error) {
	return f(ctx, start)
}

// Result summarises a walk.
type Result struct {
	// Pages is the number of non-empty pages delivered.
	Pages int

	// Rows is the number of rows delivered.
	Rows int

	// Next is the offset the walk stopped at.
	Next int
}

// Walker drives sequential page fetches for a single cursor.
type Walker struct {
	fetcher PageFetcher
	config  Config
	logger  zerolog.Logger
}

// NewWalker creates a new walker.
func NewWalker(fetcher PageFetcher, config Config, logger zerolog.Logger) *Walker {
	if config.ProgressEvery < 0 {
		config.ProgressEvery = 0
	}
	return &Walker{
		fetcher: fetcher,
		config:  config,
		logger:  logger,
	}
}

// Walk fetches pages from cur.Index until cur.Total rows have been consumed or
// a page comes back empty, calling deliver for each page in offset order. The
// offset advances by the rows received, so a truncated page costs an extra
// request instead of skipping data. A fetch or delivery error stops the walk
// and is returned together with the progress made so far.
func (w *Walker) Walk(ctx context.Context, cur Cursor, deliver func(rows []string) error) (Result, error) {
	started := time.Now()
	res := Result{Next: cur.Index}

	for !cur.Done(res.Next) {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		rows, err := w.fetcher.FetchPage(ctx, res.Next)
		if err != nil {
			return res, fmt.Errorf("fetch page at %d: %w", res.Next, err)
		}
		if len(rows) == 0 {
			w.logger.Debug().
				Int("start", res.Next).
				Int("total", cur.Total).
				Msg("Empty page, stopping early")
			break
		}

		if err := deliver(rows); err != nil {
			return res, fmt.Errorf("deliver page at %d: %w", res.Next, err)
		}

		res.Pages++
		res.Rows += len(rows)
		res.Next += len(rows)

		if len(rows) < cur.PageSize && !cur.Done(res.Next) {
			w.logger.Debug().
				Int("start", res.Next-len(rows)).
				Int("rows", len(rows)).
				Int("page_size", cur.PageSize).
				Msg("Short page before end of result set")
		}

		if w.config.ProgressEvery > 0 && res.Pages%w.config.ProgressEvery == 0 {
			w.logger.Info().
				Int("fetched", res.Next).
				Int("total", cur.Total).
				Float64("progress_pct", float64(res.Next)/float64(cur.Total)*100).
				Msg("History progress")
		}
	}

	w.logger.Debug().
		Int("pages", res.Pages).
		Int("rows", res.Rows).
		Dur("duration", time.Since(started)).
		Msg("Walk complete")

	return res, nil
}
