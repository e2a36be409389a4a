package config

import "time"

// Config is the application configuration shared by moex-history and
// iss-gateway.
type Config struct {
	ISS      ISSConfig      `mapstructure:"iss"`
	Passport PassportConfig `mapstructure:"passport"`
	Retry    RetryConfig    `mapstructure:"retry"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Log      LogConfig      `mapstructure:"log"`
	Sink     SinkConfig     `mapstructure:"sink"`
	History  HistoryConfig  `mapstructure:"history"`
	Gateway  GatewayConfig  `mapstructure:"gateway"`
}

// ISSConfig addresses the ISS endpoint.
type ISSConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	UserAgent   string        `mapstructure:"user_agent"`
	HTTPTimeout time.Duration `mapstructure:"http_timeout"`
	CacheTTL    time.Duration `mapstructure:"cache_ttl"`
}

// PassportConfig holds the MOEX passport account. An empty user means
// anonymous access.
type PassportConfig struct {
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	AuthURL  string        `mapstructure:"auth_url"`
	ProxyURL string        `mapstructure:"proxy_url"`
	Debug    int           `mapstructure:"debug"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// RetryConfig bounds retries of failed ISS requests.
type RetryConfig struct {
	MaxAttempts       int           `mapstructure:"max_attempts"`
	InitialBackoff    time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff        time.Duration `mapstructure:"max_backoff"`
	BackoffMultiplier float64       `mapstructure:"backoff_multiplier"`
}

// RedisConfig enables the response cache when Addr is set.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// SinkConfig selects where downloaded rows go.
type SinkConfig struct {
	// Kind is "file" or "table".
	Kind string `mapstructure:"kind"`

	// Path and Dir configure the file sink.
	Path string `mapstructure:"path"`
	Dir  string `mapstructure:"dir"`

	// Dialect ("postgres" or "sqlite"), DSN and Table configure the table sink.
	Dialect string `mapstructure:"dialect"`
	DSN     string `mapstructure:"dsn"`
	Table   string `mapstructure:"table"`
}

// HistoryConfig describes which history to download.
type HistoryConfig struct {
	// From and Till are YYYY-MM-DD dates; empty means unbounded.
	From string `mapstructure:"from"`
	Till string `mapstructure:"till"`

	PrimaryBoard bool     `mapstructure:"primary_board"`
	ListLevel    int      `mapstructure:"list_level"`
	SecIDs       []string `mapstructure:"secids"`
	Columns      []string `mapstructure:"columns"`
}

// GatewayConfig configures the HTTP gateway.
type GatewayConfig struct {
	Listen string `mapstructure:"listen"`

	// MaxInstruments caps how many instruments one history request may name.
	MaxInstruments int `mapstructure:"max_instruments"`
}
