package pagination

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformedCursor is returned when a history.cursor payload cannot be parsed.
var ErrMalformedCursor = errors.New("malformed history cursor")

// Cursor column names as published by ISS.
const (
	ColumnIndex    = "INDEX"
	ColumnTotal    = "TOTAL"
	ColumnPageSize = "PAGESIZE"
)

// Cursor describes the paging bounds of one history query.
type Cursor struct {
	// Index is the offset of the first row to fetch.
	Index int

	// PageSize is the maximum number of rows ISS returns per page.
	PageSize int

	// Total is the number of rows in the full result set.
	Total int
}

// Pages returns the number of page requests needed to read the rows between
// Index and Total, assuming every page is full.
func (c Cursor) Pages() int {
	remaining := c.Total - c.Index
	if remaining <= 0 || c.PageSize <= 0 {
		return 0
	}
	return (remaining + c.PageSize - 1) / c.PageSize
}

// Done reports whether offset start has consumed the result set.
func (c Cursor) Done(start int) bool {
	return start >= c.Total
}

// String implements fmt.Stringer.
func (c Cursor) String() string {
	return fmt.Sprintf("index=%d page_size=%d total=%d", c.Index, c.PageSize, c.Total)
}

// ParseCursor extracts the cursor from a CSV history.cursor response. The
// block title and blank lines are skipped; the first ';'-separated line is the
// header and the next one holds the values. Columns are matched by name.
func ParseCursor(text string) (Cursor, error) {
	var lines []string
	for _, tok := range strings.Fields(text) {
		if strings.Contains(tok, ";") {
			lines = append(lines, strings.TrimSuffix(tok, ";"))
		}
	}
	if len(lines) < 2 {
		return Cursor{}, fmt.Errorf("%w: expected header and value rows, got %d", ErrMalformedCursor, len(lines))
	}

	header := strings.Split(lines[0], ";")
	values := strings.Split(lines[1], ";")
	if len(header) != len(values) {
		return Cursor{}, fmt.Errorf("%w: %d columns but %d values", ErrMalformedCursor, len(header), len(values))
	}

	fields := make(map[string]int, len(header))
	for i, name := range header {
		fields[strings.ToUpper(strings.TrimSpace(name))] = i
	}

	lookup := func(name string) (int, error) {
		i, ok := fields[name]
		if !ok {
			return 0, fmt.Errorf("%w: missing column %s", ErrMalformedCursor, name)
		}
		n, err := strconv.Atoi(strings.TrimSpace(values[i]))
		if err != nil {
			return 0, fmt.Errorf("%w: column %s: %v", ErrMalformedCursor, name, err)
		}
		if n < 0 {
			return 0, fmt.Errorf("%w: column %s is negative (%d)", ErrMalformedCursor, name, n)
		}
		return n, nil
	}

	var c Cursor
	var err error
	if c.Index, err = lookup(ColumnIndex); err != nil {
		return Cursor{}, err
	}
	if c.Total, err = lookup(ColumnTotal); err != nil {
		return Cursor{}, err
	}
	if c.PageSize, err = lookup(ColumnPageSize); err != nil {
		return Cursor{}, err
	}
	return c, nil
}
