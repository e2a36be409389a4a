package config

import (
	"fmt"
	"net/url"
	"time"
)

const dateLayout = "2006-01-02"

// Validate checks the configuration for values the components would reject.
func (c *Config) Validate() error {
	if err := c.ISS.validate(); err != nil {
		return err
	}
	if err := c.Passport.validate(); err != nil {
		return err
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be >= 1")
	}
	if err := c.Sink.validate(); err != nil {
		return err
	}
	if err := c.History.validate(); err != nil {
		return err
	}
	if c.Gateway.MaxInstruments < 1 {
		return fmt.Errorf("gateway.max_instruments must be >= 1")
	}
	return nil
}

func (i *ISSConfig) validate() error {
	u, err := url.Parse(i.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("iss.base_url must be an http(s) url (got %q)", i.BaseURL)
	}
	if i.UserAgent == "" {
		return fmt.Errorf("iss.user_agent is required")
	}
	if i.CacheTTL < 0 {
		return fmt.Errorf("iss.cache_ttl must be >= 0")
	}
	return nil
}

func (p *PassportConfig) validate() error {
	if p.User != "" && p.Password == "" {
		return fmt.Errorf("passport.password is required when passport.user is set")
	}
	if p.ProxyURL != "" {
		if _, err := url.Parse(p.ProxyURL); err != nil {
			return fmt.Errorf("passport.proxy_url: %w", err)
		}
	}
	return nil
}

func (s *SinkConfig) validate() error {
	switch s.Kind {
	case "file":
		return nil
	case "table":
		if s.Dialect != "postgres" && s.Dialect != "sqlite" {
			return fmt.Errorf("sink.dialect must be postgres or sqlite (got %q)", s.Dialect)
		}
		if s.DSN == "" {
			return fmt.Errorf("sink.dsn is required for the table sink")
		}
		if s.Table == "" {
			return fmt.Errorf("sink.table is required for the table sink")
		}
		return nil
	default:
		return fmt.Errorf("sink.kind must be file or table (got %q)", s.Kind)
	}
}

func (h *HistoryConfig) validate() error {
	from, err := h.FromDate()
	if err != nil {
		return err
	}
	till, err := h.TillDate()
	if err != nil {
		return err
	}
	if !from.IsZero() && !till.IsZero() && till.Before(from) {
		return fmt.Errorf("history.till %s is before history.from %s", h.Till, h.From)
	}
	if h.ListLevel < 0 || h.ListLevel > 3 {
		return fmt.Errorf("history.list_level must be an integer from 1 to 3 (got %d)", h.ListLevel)
	}
	return nil
}

// FromDate parses History.From; empty yields the zero time.
func (h *HistoryConfig) FromDate() (time.Time, error) {
	return parseDate("history.from", h.From)
}

// TillDate parses History.Till; empty yields the zero time.
func (h *HistoryConfig) TillDate() (time.Time, error) {
	return parseDate("history.till", h.Till)
}

func parseDate(key, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be YYYY-MM-DD (got %q)", key, value)
	}
	return t, nil
}
