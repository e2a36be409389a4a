package config

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/moex-iss-client/pkg/logging"
	"github.com/Sternrassler/moex-iss-client/pkg/sink"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.ISS.BaseURL != "https://iss.moex.com" {
		t.Errorf("BaseURL = %q", cfg.ISS.BaseURL)
	}
	if cfg.ISS.CacheTTL != 10*time.Minute || cfg.ISS.HTTPTimeout != 30*time.Second {
		t.Errorf("ISS durations = %+v", cfg.ISS)
	}
	if cfg.Passport.AuthURL != "https://passport.moex.com/authenticate" {
		t.Errorf("AuthURL = %q", cfg.Passport.AuthURL)
	}
	if cfg.Retry.MaxAttempts != 3 || cfg.Retry.BackoffMultiplier != 2.0 {
		t.Errorf("Retry = %+v", cfg.Retry)
	}
	if cfg.Sink.Kind != "file" || cfg.Sink.Dir != "." {
		t.Errorf("Sink = %+v", cfg.Sink)
	}
	if cfg.Gateway.Listen != ":8080" || cfg.Gateway.MaxInstruments != 50 {
		t.Errorf("Gateway = %+v", cfg.Gateway)
	}
	if len(cfg.History.SecIDs) != 0 {
		t.Errorf("SecIDs = %v, want empty", cfg.History.SecIDs)
	}
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "moex.yaml", `
iss:
  cache_ttl: 1m
passport:
  user: alice
  password: s3cret
  proxy_url: http://proxy.local:3128
retry:
  max_attempts: 5
  initial_backoff: 250ms
log:
  level: debug
  pretty: true
sink:
  kind: TABLE
  dialect: sqlite
  dsn: /tmp/history.db
  table: quotes
history:
  from: "2024-01-01"
  till: "2024-06-30"
  primary_board: true
  list_level: 1
  secids: [sber, " gazp "]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.ISS.CacheTTL != time.Minute {
		t.Errorf("CacheTTL = %v", cfg.ISS.CacheTTL)
	}
	if cfg.Passport.User != "alice" || cfg.Passport.ProxyURL != "http://proxy.local:3128" {
		t.Errorf("Passport = %+v", cfg.Passport)
	}
	if cfg.Retry.MaxAttempts != 5 || cfg.Retry.InitialBackoff != 250*time.Millisecond {
		t.Errorf("Retry = %+v", cfg.Retry)
	}
	if cfg.Sink.Kind != "table" || cfg.Sink.Table != "quotes" {
		t.Errorf("Sink = %+v", cfg.Sink)
	}
	if !reflect.DeepEqual(cfg.History.SecIDs, []string{"SBER", "GAZP"}) {
		t.Errorf("SecIDs = %v", cfg.History.SecIDs)
	}
	if !cfg.History.PrimaryBoard || cfg.History.ListLevel != 1 {
		t.Errorf("History = %+v", cfg.History)
	}
	// Unset keys keep their defaults.
	if cfg.ISS.BaseURL != "https://iss.moex.com" || cfg.Retry.MaxBackoff != 30*time.Second {
		t.Errorf("defaults lost: %+v %+v", cfg.ISS, cfg.Retry)
	}
}

func TestLoad_TOML(t *testing.T) {
	path := writeFile(t, "moex.toml", `
[iss]
base_url = "http://localhost:9000"

[history]
list_level = 2
columns = ["tradedate", "close"]

[gateway]
listen = ":9090"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.ISS.BaseURL != "http://localhost:9000" || cfg.Gateway.Listen != ":9090" {
		t.Errorf("cfg = %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.History.Columns, []string{"TRADEDATE", "CLOSE"}) {
		t.Errorf("Columns = %v", cfg.History.Columns)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeFile(t, "moex.yaml", "passport:\n  user: alice\n  password: from-file\n")

	t.Setenv("MOEX_PASSPORT_PASSWORD", "from-env")
	t.Setenv("MOEX_HISTORY_SECIDS", "sber, gazp")
	t.Setenv("MOEX_ISS_CACHE_TTL", "0s")
	t.Setenv("MOEX_REDIS_ADDR", "redis:6379")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Passport.User != "alice" || cfg.Passport.Password != "from-env" {
		t.Errorf("Passport = %+v", cfg.Passport)
	}
	if !reflect.DeepEqual(cfg.History.SecIDs, []string{"SBER", "GAZP"}) {
		t.Errorf("SecIDs = %v", cfg.History.SecIDs)
	}
	if cfg.ISS.CacheTTL != 0 || cfg.Redis.Addr != "redis:6379" {
		t.Errorf("env not applied: %+v %+v", cfg.ISS, cfg.Redis)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for a missing file")
	}
}

func TestLoad_InvalidRejected(t *testing.T) {
	path := writeFile(t, "moex.yaml", "history:\n  from: \"2024-02-01\"\n  till: \"2024-01-01\"\n")
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "before history.from") {
		t.Errorf("err = %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		edit     func(*Config)
		errorMsg string
	}{
		{name: "defaults", edit: func(*Config) {}},
		{
			name:     "bad base url",
			edit:     func(c *Config) { c.ISS.BaseURL = "iss.moex.com" },
			errorMsg: "iss.base_url must be an http(s) url",
		},
		{
			name:     "empty user agent",
			edit:     func(c *Config) { c.ISS.UserAgent = "" },
			errorMsg: "iss.user_agent is required",
		},
		{
			name:     "user without password",
			edit:     func(c *Config) { c.Passport.User = "alice" },
			errorMsg: "passport.password is required",
		},
		{
			name:     "zero attempts",
			edit:     func(c *Config) { c.Retry.MaxAttempts = 0 },
			errorMsg: "retry.max_attempts must be >= 1",
		},
		{
			name:     "unknown sink",
			edit:     func(c *Config) { c.Sink.Kind = "s3" },
			errorMsg: "sink.kind must be file or table",
		},
		{
			name:     "table without dsn",
			edit:     func(c *Config) { c.Sink.Kind = "table" },
			errorMsg: "sink.dsn is required",
		},
		{
			name: "table bad dialect",
			edit: func(c *Config) {
				c.Sink.Kind = "table"
				c.Sink.Dialect = "mysql"
			},
			errorMsg: "sink.dialect must be postgres or sqlite",
		},
		{
			name:     "bad date",
			edit:     func(c *Config) { c.History.From = "01.02.2024" },
			errorMsg: "history.from must be YYYY-MM-DD",
		},
		{
			name:     "list level out of range",
			edit:     func(c *Config) { c.History.ListLevel = 4 },
			errorMsg: "history.list_level must be an integer from 1 to 3",
		},
		{
			name:     "gateway cap",
			edit:     func(c *Config) { c.Gateway.MaxInstruments = 0 },
			errorMsg: "gateway.max_instruments must be >= 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.edit(cfg)
			err := cfg.Validate()
			if tt.errorMsg == "" {
				if err != nil {
					t.Fatalf("Validate() error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.errorMsg) {
				t.Errorf("Validate() = %v, want %q", err, tt.errorMsg)
			}
		})
	}
}

func TestHistoryRequest(t *testing.T) {
	cfg := Default()
	cfg.History.From = "2024-01-01"
	cfg.History.PrimaryBoard = true
	cfg.History.Columns = []string{"CLOSE"}

	req, err := cfg.HistoryRequest([]string{"SBER"})
	if err != nil {
		t.Fatalf("HistoryRequest() error: %v", err)
	}
	if !req.From.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) || !req.Till.IsZero() {
		t.Errorf("dates = %v..%v", req.From, req.Till)
	}
	if !req.PrimaryBoardOnly || !reflect.DeepEqual(req.Columns, []string{"CLOSE"}) || req.SecIDs[0] != "SBER" {
		t.Errorf("req = %+v", req)
	}

	sel := cfg.Selection()
	if sel.ListLevel != 0 || len(sel.SecIDs) != 0 {
		t.Errorf("Selection() = %+v", sel)
	}
}

func TestLogging(t *testing.T) {
	cfg := Default()
	if lc := cfg.Logging(); lc.Level != logging.LevelInfo || lc.Pretty {
		t.Errorf("Logging() = %+v", lc)
	}

	cfg.Passport.Debug = 1
	if lc := cfg.Logging(); lc.Level != logging.LevelDebug {
		t.Errorf("debug Logging().Level = %q", lc.Level)
	}
}

func TestNewClient(t *testing.T) {
	cfg := Default()
	cfg.Redis.Addr = "127.0.0.1:1"

	cl, closeFn, err := cfg.NewClient(context.Background(), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}
	defer closeFn()

	if cl.GetCache() != nil {
		t.Error("cache should be disabled when redis is unreachable")
	}

	session, err := cfg.NewSession(zerolog.Nop())
	if err != nil || session != nil {
		t.Errorf("NewSession() = %v, %v; want nil session without a user", session, err)
	}
}

func TestOpenSink_File(t *testing.T) {
	cfg := Default()
	cfg.Sink.Path = filepath.Join(t.TempDir(), "out.csv")

	s, closeFn, err := cfg.OpenSink(zerolog.Nop())
	if err != nil {
		t.Fatalf("OpenSink() error: %v", err)
	}
	if s.Kind() != sink.KindFile {
		t.Errorf("Kind() = %q", s.Kind())
	}
	if err := closeFn(); err != nil {
		t.Errorf("close: %v", err)
	}
	if _, err := os.Stat(cfg.Sink.Path); err != nil {
		t.Errorf("file not created: %v", err)
	}
}

func TestOpenSink_SQLiteTable(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "history.db")
	cfg := Default()
	cfg.Sink.Kind = "table"
	cfg.Sink.Dialect = "sqlite"
	cfg.Sink.DSN = dsn
	cfg.Sink.Table = "quotes"

	s, closeFn, err := cfg.OpenSink(zerolog.Nop())
	if err != nil {
		t.Fatalf("OpenSink() error: %v", err)
	}

	ctx := context.Background()
	if err := s.Process(ctx, sink.Batch{SecID: "SBER", Header: true, Rows: []string{"TRADEDATE;CLOSE"}}); err != nil {
		t.Fatalf("header: %v", err)
	}
	if err := s.Process(ctx, sink.Batch{SecID: "SBER", Rows: []string{"2024-01-03;271.9", "2024-01-04;273.5"}}); err != nil {
		t.Fatalf("rows: %v", err)
	}
	if err := closeFn(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM quotes`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Errorf("rows = %d, want 2", n)
	}
}
