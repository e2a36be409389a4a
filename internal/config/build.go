package config

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Sternrassler/moex-iss-client/pkg/auth"
	"github.com/Sternrassler/moex-iss-client/pkg/client"
	"github.com/Sternrassler/moex-iss-client/pkg/logging"
	"github.com/Sternrassler/moex-iss-client/pkg/sink"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Logging returns the logger configuration.
func (c *Config) Logging() logging.Config {
	lc := logging.DefaultConfig()
	lc.Level = logging.LogLevel(c.Log.Level)
	lc.Pretty = c.Log.Pretty
	if c.Passport.Debug > 0 {
		lc.Level = logging.LevelFromVerbosity(c.Passport.Debug)
	}
	return lc
}

// NewSession returns the passport session, or nil when no user is configured.
func (c *Config) NewSession(logger zerolog.Logger) (*auth.Session, error) {
	if c.Passport.User == "" {
		return nil, nil
	}
	return auth.NewSession(auth.Credentials{
		User:     c.Passport.User,
		Password: c.Passport.Password,
		ProxyURL: c.Passport.ProxyURL,
		Debug:    c.Passport.Debug,
	},
		auth.WithAuthURL(c.Passport.AuthURL),
		auth.WithTimeout(c.Passport.Timeout),
		auth.WithLogger(logger.With().Str("component", "iss-auth").Logger()),
	)
}

// NewClient builds the ISS client with its session and optional Redis cache.
// The returned close function releases both.
func (c *Config) NewClient(ctx context.Context, logger zerolog.Logger) (*client.Client, func() error, error) {
	session, err := c.NewSession(logger)
	if err != nil {
		return nil, nil, err
	}

	var rdb *redis.Client
	if c.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     c.Redis.Addr,
			Password: c.Redis.Password,
			DB:       c.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn().Err(err).Str("addr", c.Redis.Addr).Msg("Redis unavailable, caching disabled")
			rdb.Close()
			rdb = nil
		}
	}

	clientLogger := logger.With().Str("component", "iss-client").Logger()
	cc := client.DefaultConfig()
	cc.BaseURL = c.ISS.BaseURL
	cc.UserAgent = c.ISS.UserAgent
	cc.HTTPTimeout = c.ISS.HTTPTimeout
	cc.CacheTTL = c.ISS.CacheTTL
	cc.Session = session
	cc.Redis = rdb
	cc.Logger = &clientLogger
	cc.Retry = client.RetryConfig{
		MaxAttempts:       c.Retry.MaxAttempts,
		InitialBackoff:    c.Retry.InitialBackoff,
		MaxBackoff:        c.Retry.MaxBackoff,
		BackoffMultiplier: c.Retry.BackoffMultiplier,
	}

	cl, err := client.New(cc)
	if err != nil {
		if rdb != nil {
			rdb.Close()
		}
		return nil, nil, err
	}

	closeFn := func() error {
		errs := []error{cl.Close()}
		if rdb != nil {
			errs = append(errs, rdb.Close())
		}
		return errors.Join(errs...)
	}
	return cl, closeFn, nil
}

// Selection returns the configured instrument selection.
func (c *Config) Selection() client.Selection {
	return client.Selection{
		ListLevel: c.History.ListLevel,
		SecIDs:    c.History.SecIDs,
	}
}

// HistoryRequest returns the configured download for secIDs.
func (c *Config) HistoryRequest(secIDs []string) (client.HistoryRequest, error) {
	from, err := c.History.FromDate()
	if err != nil {
		return client.HistoryRequest{}, err
	}
	till, err := c.History.TillDate()
	if err != nil {
		return client.HistoryRequest{}, err
	}
	return client.HistoryRequest{
		SecIDs:           secIDs,
		From:             from,
		Till:             till,
		PrimaryBoardOnly: c.History.PrimaryBoard,
		Columns:          c.History.Columns,
	}, nil
}

// OpenSink builds the configured sink. For the table sink the database is
// opened with the driver named after the dialect ("postgres" from lib/pq,
// "sqlite" from modernc.org/sqlite); the caller must import the driver. The
// returned close function closes the sink and the database.
func (c *Config) OpenSink(logger zerolog.Logger) (sink.Sink, func() error, error) {
	sinkLogger := logger.With().Str("component", "iss-sink").Logger()
	sc := sink.Config{
		Kind:   sink.Kind(c.Sink.Kind),
		Path:   c.Sink.Path,
		Dir:    c.Sink.Dir,
		Logger: &sinkLogger,
	}

	var db *sql.DB
	if sc.Kind == sink.KindTable {
		var err error
		db, err = sql.Open(c.Sink.Dialect, c.Sink.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open %s database: %w", c.Sink.Dialect, err)
		}
		sc.DB = db
		sc.Dialect = sink.Dialect(c.Sink.Dialect)
		sc.Table = c.Sink.Table
	}

	s, err := sink.New(sc)
	if err != nil {
		if db != nil {
			db.Close()
		}
		return nil, nil, err
	}

	closeFn := func() error {
		err := s.Close()
		if db != nil {
			err = errors.Join(err, db.Close())
		}
		return err
	}
	return s, closeFn, nil
}
