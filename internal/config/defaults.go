package config

import (
	"time"

	"github.com/spf13/viper"
)

const (
	defaultBaseURL        = "https://iss.moex.com"
	defaultUserAgent      = "moex-iss-client/1.0"
	defaultHTTPTimeout    = 30 * time.Second
	defaultCacheTTL       = 10 * time.Minute
	defaultAuthURL        = "https://passport.moex.com/authenticate"
	defaultAuthTimeout    = 30 * time.Second
	defaultMaxAttempts    = 3
	defaultInitialBackoff = time.Second
	defaultMaxBackoff     = 30 * time.Second
	defaultMultiplier     = 2.0
	defaultLogLevel       = "info"
	defaultSinkKind       = "file"
	defaultSinkDir        = "."
	defaultSinkDialect    = "sqlite"
	defaultSinkTable      = "history"
	defaultGatewayListen  = ":8080"
	defaultMaxInstruments = 50
)

// setDefaults registers every key so environment overrides apply to keys
// absent from the file.
func setDefaults(v *viper.Viper) {
	v.SetDefault("iss.base_url", defaultBaseURL)
	v.SetDefault("iss.user_agent", defaultUserAgent)
	v.SetDefault("iss.http_timeout", defaultHTTPTimeout)
	v.SetDefault("iss.cache_ttl", defaultCacheTTL)

	v.SetDefault("passport.user", "")
	v.SetDefault("passport.password", "")
	v.SetDefault("passport.auth_url", defaultAuthURL)
	v.SetDefault("passport.proxy_url", "")
	v.SetDefault("passport.debug", 0)
	v.SetDefault("passport.timeout", defaultAuthTimeout)

	v.SetDefault("retry.max_attempts", defaultMaxAttempts)
	v.SetDefault("retry.initial_backoff", defaultInitialBackoff)
	v.SetDefault("retry.max_backoff", defaultMaxBackoff)
	v.SetDefault("retry.backoff_multiplier", defaultMultiplier)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("log.level", defaultLogLevel)
	v.SetDefault("log.pretty", false)

	v.SetDefault("sink.kind", defaultSinkKind)
	v.SetDefault("sink.path", "")
	v.SetDefault("sink.dir", defaultSinkDir)
	v.SetDefault("sink.dialect", defaultSinkDialect)
	v.SetDefault("sink.dsn", "")
	v.SetDefault("sink.table", defaultSinkTable)

	v.SetDefault("history.from", "")
	v.SetDefault("history.till", "")
	v.SetDefault("history.primary_board", false)
	v.SetDefault("history.list_level", 0)
	v.SetDefault("history.secids", []string{})
	v.SetDefault("history.columns", []string{})

	v.SetDefault("gateway.listen", defaultGatewayListen)
	v.SetDefault("gateway.max_instruments", defaultMaxInstruments)
}
