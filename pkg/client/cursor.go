package client

import (
	"context"
	"fmt"

	"github.com/Sternrassler/moex-iss-client/pkg/pagination"
)

// ResolveCursor fetches the history.cursor block for historyURL.
func (c *Client) ResolveCursor(ctx context.Context, historyURL string) (pagination.Cursor, error) {
	u, err := cursorURL(historyURL)
	if err != nil {
		return pagination.Cursor{}, err
	}

	body, err := c.get(ctx, kindCursor, u)
	if err != nil {
		return pagination.Cursor{}, fmt.Errorf("fetch cursor: %w", err)
	}

	cur, err := pagination.ParseCursor(string(body))
	if err != nil {
		return pagination.Cursor{}, err
	}

	c.logger.Debug().
		Str("url", u).
		Int("index", cur.Index).
		Int("total", cur.Total).
		Int("page_size", cur.PageSize).
		Msg("Cursor resolved")

	return cur, nil
}
