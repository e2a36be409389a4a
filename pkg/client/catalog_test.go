package client

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/Sternrassler/moex-iss-client/internal/testutil"
)

func catalogMock() *testutil.MockISS {
	mock := testutil.NewMockISS()
	mock.AddSecurities(
		testutil.Security{SecID: "SBER", ShortName: "Сбербанк", SecName: "Сбербанк России ПАО ао", SecType: "1", ListLevel: 1},
		testutil.Security{SecID: "SBERP", ShortName: "Сбербанк-п", SecName: "Сбербанк России ПАО ап", SecType: "2", ListLevel: 1},
		testutil.Security{SecID: "SBER", ShortName: "Сбербанк", SecName: "Сбербанк России ПАО ао", SecType: "1", ListLevel: 1},
		testutil.Security{SecID: "GAZP", ShortName: "ГАЗПРОМ ао", SecName: "Газпром ПАО ао", SecType: "1", ListLevel: 1},
		testutil.Security{SecID: "LKOH", ShortName: "ЛУКОЙЛ", SecName: "ЛУКОЙЛ ПАО ао", SecType: "1", ListLevel: 2},
		testutil.Security{SecID: "RU000A0JX0J2", ShortName: "ФПИФ", SecName: "Паи фонда", SecType: "9", ListLevel: 3},
	)
	return mock
}

func TestListInstruments(t *testing.T) {
	mock := catalogMock()
	defer mock.Close()
	c := newTestClient(t, mock)

	set, err := c.ListInstruments(context.Background())
	if err != nil {
		t.Fatalf("ListInstruments() error: %v", err)
	}

	want := []string{"GAZP", "LKOH", "SBER", "SBERP"}
	if got := set.SecIDs(); !reflect.DeepEqual(got, want) {
		t.Errorf("SecIDs() = %v, want %v", got, want)
	}

	sberp := set["SBERP"]
	if sberp.SecType != SecTypePreferred || sberp.ListLevel != 1 || sberp.ShortName != "Сбербанк-п" {
		t.Errorf("SBERP = %+v", sberp)
	}

	sorted := set.Sorted()
	if len(sorted) != 4 || sorted[0].SecID != "GAZP" || sorted[3].SecID != "SBERP" {
		t.Errorf("Sorted() = %+v", sorted)
	}
}

func TestListInstruments_TypeFilter(t *testing.T) {
	mock := catalogMock()
	defer mock.Close()
	c := newTestClient(t, mock)

	set, err := c.ListInstruments(context.Background(), SecTypePreferred)
	if err != nil {
		t.Fatalf("ListInstruments() error: %v", err)
	}
	if got := set.SecIDs(); !reflect.DeepEqual(got, []string{"SBERP"}) {
		t.Errorf("SecIDs() = %v, want [SBERP]", got)
	}
}

func TestListInstruments_Malformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "invalid json", body: `{"securities": [`},
		{name: "missing block", body: `{"marketdata":{"columns":[],"data":[]}}`},
		{name: "data not an array", body: `{"securities":{"columns":["SECID"],"data":{}}}`},
		{
			name: "missing column",
			body: `{"securities":{"columns":["SECID","SHORTNAME","SECNAME","SECTYPE"],"data":[["SBER","a","b","1"]]}}`,
		},
		{
			name: "short row",
			body: `{"securities":{"columns":["SECID","SHORTNAME","SECNAME","SECTYPE","LISTLEVEL"],"data":[["SBER","a"]]}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testutil.NewMockISS()
			defer mock.Close()
			mock.SetResponse(testutil.CatalogPath, testutil.NewJSONResponse(tt.body))
			c := newTestClient(t, mock)

			set, err := c.ListInstruments(context.Background())
			if !errors.Is(err, ErrMalformedResponse) {
				t.Fatalf("err = %v, want ErrMalformedResponse", err)
			}
			if set == nil || len(set) != 0 {
				t.Errorf("set = %v, want empty non-nil set", set)
			}
		})
	}
}

func TestListInstruments_EmptyCatalog(t *testing.T) {
	mock := testutil.NewMockISS()
	defer mock.Close()
	c := newTestClient(t, mock)

	set, err := c.ListInstruments(context.Background())
	if err != nil {
		t.Fatalf("ListInstruments() error: %v", err)
	}
	if len(set) != 0 {
		t.Errorf("set = %v, want empty", set)
	}
}

func TestSelectInstruments(t *testing.T) {
	tests := []struct {
		name    string
		sel     Selection
		want    []string
		wantErr error
	}{
		{
			name: "explicit secids case-insensitive",
			sel:  Selection{SecIDs: []string{"sber", " SBERP "}},
			want: []string{"SBER", "SBERP"},
		},
		{
			name: "unknown secids dropped",
			sel:  Selection{SecIDs: []string{"GAZP", "NOPE"}},
			want: []string{"GAZP"},
		},
		{
			name: "list level",
			sel:  Selection{ListLevel: 2},
			want: []string{"LKOH"},
		},
		{
			name: "secids win over level",
			sel:  Selection{SecIDs: []string{"GAZP"}, ListLevel: 2},
			want: []string{"GAZP"},
		},
		{
			name: "no match falls back to level",
			sel:  Selection{SecIDs: []string{"NOPE"}, ListLevel: 1},
			want: []string{"GAZP", "SBER", "SBERP"},
		},
		{
			name:    "no match without level",
			sel:     Selection{SecIDs: []string{"NOPE"}},
			wantErr: ErrInvalidArgs,
		},
		{
			name: "empty selection is whole catalog",
			sel:  Selection{},
			want: []string{"GAZP", "LKOH", "SBER", "SBERP"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := catalogMock()
			defer mock.Close()
			c := newTestClient(t, mock)

			set, err := c.SelectInstruments(context.Background(), tt.sel)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("SelectInstruments() error: %v", err)
			}
			if got := set.SecIDs(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SecIDs() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSelectInstruments_InvalidLevelNoRequest(t *testing.T) {
	for _, level := range []int{-1, 4, 10} {
		mock := catalogMock()
		c := newTestClient(t, mock)

		_, err := c.SelectInstruments(context.Background(), Selection{ListLevel: level})
		if !errors.Is(err, ErrInvalidArgs) {
			t.Errorf("level %d: err = %v, want ErrInvalidArgs", level, err)
		}
		if got := mock.Count(testutil.KindCatalog); got != 0 {
			t.Errorf("level %d: catalog requests = %d, want 0", level, got)
		}
		mock.Close()
	}
}
