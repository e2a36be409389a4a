package client

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
)

// SecType is the ISS security type code.
type SecType string

const (
	// SecTypeCommon is a common share.
	SecTypeCommon SecType = "1"

	// SecTypePreferred is a preferred share.
	SecTypePreferred SecType = "2"
)

// DefaultSecTypes are the types admitted by ListInstruments when none are given.
var DefaultSecTypes = []SecType{SecTypeCommon, SecTypePreferred}

// Catalog column names.
const (
	colSecID     = "SECID"
	colShortName = "SHORTNAME"
	colSecName   = "SECNAME"
	colSecType   = "SECTYPE"
	colListLevel = "LISTLEVEL"
)

// Instrument is a tradable security from the shares catalog.
type Instrument struct {
	SecID     string  `json:"secid"`
	ShortName string  `json:"short_name"`
	SecName   string  `json:"sec_name"`
	SecType   SecType `json:"sec_type"`
	ListLevel int     `json:"list_level"`
}

// InstrumentSet holds instruments keyed by SecID.
type InstrumentSet map[string]Instrument

// Sorted returns the instruments ordered by SecID.
func (s InstrumentSet) Sorted() []Instrument {
	out := make([]Instrument, 0, len(s))
	for _, in := range s {
		out = append(out, in)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SecID < out[j].SecID })
	return out
}

// SecIDs returns the sorted SecIDs of the set.
func (s InstrumentSet) SecIDs() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CatalogURL returns the shares listing URL.
func (c *Client) CatalogURL() string {
	return c.urls.Build(FormatJSON, NamespaceTradingSystem, DefaultEmbed, "", nil)
}

// ListInstruments fetches the shares catalog and keeps rows whose SECTYPE is
// one of types (DefaultSecTypes when empty). A SecID listed on several boards
// is kept once. A payload without the expected structure yields an empty set
// and ErrMalformedResponse.
func (c *Client) ListInstruments(ctx context.Context, types ...SecType) (InstrumentSet, error) {
	if len(types) == 0 {
		types = DefaultSecTypes
	}

	body, err := c.get(ctx, kindCatalog, c.CatalogURL())
	if err != nil {
		return nil, fmt.Errorf("fetch catalog: %w", err)
	}

	set, err := parseCatalog(body, types)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Malformed catalog payload")
		return InstrumentSet{}, err
	}

	c.logger.Info().Int("instruments", len(set)).Msg("Catalog loaded")
	return set, nil
}

func parseCatalog(body []byte, types []SecType) (InstrumentSet, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: catalog is not valid JSON", ErrMalformedResponse)
	}

	block := gjson.GetBytes(body, "securities")
	columns := block.Get("columns")
	data := block.Get("data")
	if !columns.IsArray() || !data.IsArray() {
		return nil, fmt.Errorf("%w: missing securities.columns or securities.data", ErrMalformedResponse)
	}

	idx := make(map[string]int)
	for i, col := range columns.Array() {
		idx[col.String()] = i
	}
	for _, name := range []string{colSecID, colShortName, colSecName, colSecType, colListLevel} {
		if _, ok := idx[name]; !ok {
			return nil, fmt.Errorf("%w: missing column %s", ErrMalformedResponse, name)
		}
	}

	admitted := make(map[SecType]bool, len(types))
	for _, t := range types {
		admitted[t] = true
	}

	set := make(InstrumentSet)
	var rowErr error
	n := 0
	data.ForEach(func(_, row gjson.Result) bool {
		fields := row.Array()
		if len(fields) != len(columns.Array()) {
			rowErr = fmt.Errorf("%w: row %d has %d fields, want %d",
				ErrMalformedResponse, n, len(fields), len(columns.Array()))
			return false
		}
		n++

		secType := SecType(fields[idx[colSecType]].String())
		if !admitted[secType] {
			return true
		}

		secID := fields[idx[colSecID]].String()
		if _, dup := set[secID]; dup {
			return true
		}
		set[secID] = Instrument{
			SecID:     secID,
			ShortName: fields[idx[colShortName]].String(),
			SecName:   fields[idx[colSecName]].String(),
			SecType:   secType,
			ListLevel: int(fields[idx[colListLevel]].Int()),
		}
		return true
	})
	if rowErr != nil {
		return nil, rowErr
	}

	return set, nil
}

// Selection narrows the catalog to the instruments to download.
type Selection struct {
	// ListLevel keeps instruments of this listing level (1..3); 0 means any.
	ListLevel int

	// SecIDs keeps the named instruments (case-insensitive).
	SecIDs []string
}

// SelectInstruments resolves a Selection against the catalog:
//   - SecIDs given: the catalog instruments among them. When none match, the
//     ListLevel selection is used instead if set, else ErrInvalidArgs.
//   - only ListLevel given: instruments of that level.
//   - neither: the whole catalog.
//
// A ListLevel outside 1..3 fails with ErrInvalidArgs before any request.
func (c *Client) SelectInstruments(ctx context.Context, sel Selection) (InstrumentSet, error) {
	if sel.ListLevel != 0 && (sel.ListLevel < 1 || sel.ListLevel > 3) {
		return nil, fmt.Errorf("%w: list level must be an integer from 1 to 3 (got %d)", ErrInvalidArgs, sel.ListLevel)
	}

	all, err := c.ListInstruments(ctx)
	if err != nil {
		return nil, err
	}

	if len(sel.SecIDs) == 0 && sel.ListLevel == 0 {
		return all, nil
	}

	if len(sel.SecIDs) > 0 {
		picked := make(InstrumentSet)
		for _, id := range sel.SecIDs {
			id = strings.ToUpper(strings.TrimSpace(id))
			if in, ok := all[id]; ok {
				picked[id] = in
			}
		}
		if len(picked) > 0 {
			return picked, nil
		}
		if sel.ListLevel == 0 {
			return nil, fmt.Errorf("%w: no securities found for %v", ErrInvalidArgs, sel.SecIDs)
		}
		c.logger.Warn().
			Strs("secids", sel.SecIDs).
			Int("list_level", sel.ListLevel).
			Msg("No requested securities in catalog, falling back to list level")
	}

	byLevel := make(InstrumentSet)
	for id, in := range all {
		if in.ListLevel == sel.ListLevel {
			byLevel[id] = in
		}
	}
	return byLevel, nil
}
