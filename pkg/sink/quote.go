package sink

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Quote is one trading day of an instrument on a board. Columns absent from
// the header, or empty in a row, leave the zero value.
type Quote struct {
	BoardID         string
	TradeDate       time.Time
	SecID           string
	NumTrades       int64
	Value           decimal.Decimal
	Open            decimal.Decimal
	Low             decimal.Decimal
	High            decimal.Decimal
	LegalClosePrice decimal.Decimal
	WAPrice         decimal.Decimal
	Close           decimal.Decimal
	Volume          int64
	CurrencyID      string
}

// ParseQuotes converts raw rows into quotes using the header to locate
// columns by name.
func ParseQuotes(header []string, rows []string) ([]Quote, error) {
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.ToUpper(strings.TrimSpace(name))] = i
	}

	quotes := make([]Quote, 0, len(rows))
	for n, row := range rows {
		fields := splitRow(row)
		if len(fields) != len(header) {
			return nil, fmt.Errorf("%w: row %d has %d fields, want %d", ErrColumnMismatch, n, len(fields), len(header))
		}
		q, err := parseQuote(idx, fields)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", n, err)
		}
		quotes = append(quotes, q)
	}
	return quotes, nil
}

func parseQuote(idx map[string]int, fields []string) (Quote, error) {
	get := func(col string) string {
		if i, ok := idx[col]; ok {
			return strings.TrimSpace(fields[i])
		}
		return ""
	}

	var q Quote
	var err error

	q.BoardID = get("BOARDID")
	q.SecID = get("SECID")
	q.CurrencyID = get("CURRENCYID")

	if v := get("TRADEDATE"); v != "" {
		if q.TradeDate, err = time.Parse("2006-01-02", v); err != nil {
			return Quote{}, fmt.Errorf("TRADEDATE: %w", err)
		}
	}

	ints := []struct {
		col string
		dst *int64
	}{
		{"NUMTRADES", &q.NumTrades},
		{"VOLUME", &q.Volume},
	}
	for _, f := range ints {
		if v := get(f.col); v != "" {
			if *f.dst, err = strconv.ParseInt(v, 10, 64); err != nil {
				return Quote{}, fmt.Errorf("%s: %w", f.col, err)
			}
		}
	}

	decs := []struct {
		col string
		dst *decimal.Decimal
	}{
		{"VALUE", &q.Value},
		{"OPEN", &q.Open},
		{"LOW", &q.Low},
		{"HIGH", &q.High},
		{"LEGALCLOSEPRICE", &q.LegalClosePrice},
		{"WAPRICE", &q.WAPrice},
		{"CLOSE", &q.Close},
	}
	for _, f := range decs {
		if v := get(f.col); v != "" {
			if *f.dst, err = decimal.NewFromString(v); err != nil {
				return Quote{}, fmt.Errorf("%s: %w", f.col, err)
			}
		}
	}

	return q, nil
}
