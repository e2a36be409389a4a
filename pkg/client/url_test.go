package client

import (
	"testing"
)

func TestURLBuilder_Build(t *testing.T) {
	b := NewURLBuilder("https://iss.moex.com/")

	tests := []struct {
		name   string
		format Format
		ns     Namespace
		embed  []Pair
		secID  string
		params []Pair
		want   string
	}{
		{
			name:   "catalog",
			format: FormatJSON,
			ns:     NamespaceTradingSystem,
			embed:  DefaultEmbed,
			want:   "https://iss.moex.com/iss/engines/stock/markets/shares/securities.json",
		},
		{
			name:   "history with params in insertion order",
			format: FormatCSV,
			ns:     NamespaceTradingResults,
			embed:  DefaultEmbed,
			secID:  "SBER",
			params: []Pair{{"iss.only", "history"}, {"from", "2024-01-01"}, {"marketprice_board", "1"}},
			want:   "https://iss.moex.com/iss/history/engines/stock/markets/shares/securities/SBER.csv?iss.only=history&from=2024-01-01&marketprice_board=1",
		},
		{
			name:   "no embed",
			format: FormatXML,
			ns:     NamespaceTradingSystem,
			want:   "https://iss.moex.com/iss/securities.xml",
		},
		{
			name:   "escaped params and secid",
			format: FormatJSON,
			ns:     NamespaceTradingSystem,
			secID:  "A/B",
			params: []Pair{{"q", "a b&c"}, {"history.columns", "SECID,CLOSE"}},
			want:   "https://iss.moex.com/iss/securities/A%2FB.json?q=a+b%26c&history.columns=SECID%2CCLOSE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := b.Build(tt.format, tt.ns, tt.embed, tt.secID, tt.params)
			if got != tt.want {
				t.Errorf("Build() =\n%s\nwant\n%s", got, tt.want)
			}
			if again := b.Build(tt.format, tt.ns, tt.embed, tt.secID, tt.params); again != got {
				t.Errorf("Build() not deterministic: %s vs %s", again, got)
			}
		})
	}
}

func TestURLBuilder_UnknownNamespacePanics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("Build should panic on an unknown namespace")
		}
	}()
	NewURLBuilder("https://iss.moex.com").Build(FormatJSON, "futures_board", nil, "", nil)
}

func TestCursorURL(t *testing.T) {
	in := "https://iss.moex.com/iss/history/engines/stock/markets/shares/securities/SBER.csv?iss.only=history&start=100&from=2024-01-01"
	want := "https://iss.moex.com/iss/history/engines/stock/markets/shares/securities/SBER.csv?from=2024-01-01&iss.meta=off&iss.only=history.cursor"

	got, err := cursorURL(in)
	if err != nil {
		t.Fatalf("cursorURL() error: %v", err)
	}
	if got != want {
		t.Errorf("cursorURL() =\n%s\nwant\n%s", got, want)
	}
}

func TestPageURL(t *testing.T) {
	in := "https://iss.moex.com/iss/history/engines/stock/markets/shares/securities/SBER.csv?iss.only=history"

	tests := []struct {
		start int
		want  string
	}{
		{0, in + "&start=0"},
		{200, in + "&start=200"},
	}
	for _, tt := range tests {
		got, err := pageURL(in, tt.start)
		if err != nil {
			t.Fatalf("pageURL() error: %v", err)
		}
		if got != tt.want {
			t.Errorf("pageURL(%d) = %s, want %s", tt.start, got, tt.want)
		}
	}

	// An existing start is replaced.
	got, _ := pageURL(in+"&start=100", 300)
	if got != in+"&start=300" {
		t.Errorf("pageURL() = %s", got)
	}
}

func TestPageURL_InvalidURL(t *testing.T) {
	if _, err := pageURL("http://[::1", 0); err == nil {
		t.Error("expected parse error")
	}
}
