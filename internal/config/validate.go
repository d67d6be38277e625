package config

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	logx "scraperbot/pkg/logx"
)

// Validate rejects configs the bot cannot run with. The returned error is a
// *ConfigError naming the first offending path.
func Validate(cfg *Config) error {
	if cfg == nil {
		return &ConfigError{Path: "<root>", Err: errors.New("config is nil")}
	}

	durations := []struct{ path, raw string }{
		{"telegram.poll_timeout", cfg.Telegram.PollTimeout},
		{"link_update_interval", cfg.LinkUpdateInterval},
		{"loader.timeout", cfg.Loader.Timeout},
		{"loader.min_delay", cfg.Loader.MinDelay},
		{"loader.max_delay", cfg.Loader.MaxDelay},
		{"delivery.timeout", cfg.Delivery.Timeout},
		{"delivery.journal_retention", cfg.Delivery.JournalRetention},
	}
	if cfg.Storage != nil {
		durations = append(durations, struct{ path, raw string }{"storage.busy_timeout", cfg.Storage.BusyTimeout})
	}
	for _, d := range durations {
		if _, err := ParseDurationField(d.path, d.raw); err != nil {
			return &ConfigError{Path: "<root>." + d.path, Err: err}
		}
	}

	minD, _ := ParseDurationField("", cfg.Loader.MinDelay)
	maxD, _ := ParseDurationField("", cfg.Loader.MaxDelay)
	if maxD < minD {
		return &ConfigError{Path: "<root>.loader.max_delay", Err: fmt.Errorf("must be >= min_delay (%s)", minD)}
	}
	if cfg.Loader.MaxConnections < 0 {
		return &ConfigError{Path: "<root>.loader.max_connections", Err: errors.New("must be >= 0")}
	}
	if cfg.Loader.MaxConnectionsPerHost < 0 {
		return &ConfigError{Path: "<root>.loader.max_connections_per_host", Err: errors.New("must be >= 0")}
	}
	if cfg.Loader.MaxWorkers < 0 {
		return &ConfigError{Path: "<root>.loader.max_workers", Err: errors.New("must be >= 0")}
	}
	if cfg.Delivery.RatePerSec < 0 {
		return &ConfigError{Path: "<root>.delivery.rate_per_sec", Err: errors.New("must be >= 0")}
	}

	if p := strings.TrimSpace(cfg.Proxy); p != "" {
		if _, err := ParseProxy(p); err != nil {
			return &ConfigError{Path: "<root>.proxy", Err: err}
		}
	}
	if s := strings.TrimSpace(cfg.CycleSchedule); s != "" {
		if _, err := ParseSchedule(s); err != nil {
			return &ConfigError{Path: "<root>.cycle_schedule", Err: err}
		}
	}
	if !logx.ValidLevel(cfg.Logging.Level) {
		return &ConfigError{Path: "<root>.logging.level", Err: fmt.Errorf("unknown level %q", cfg.Logging.Level)}
	}
	if g := strings.TrimSpace(cfg.Telegram.GroupLog); g != "" {
		if _, err := strconv.ParseInt(g, 10, 64); err != nil {
			return &ConfigError{Path: "<root>.telegram.group_log", Err: fmt.Errorf("must be a chat id: %w", err)}
		}
	}

	seen := make(map[int64]int, len(cfg.Chats))
	for i, ch := range cfg.Chats {
		if prev, dup := seen[ch.ID]; dup {
			return &ConfigError{
				Path: fmt.Sprintf("<root>.chats[%d].id", i),
				Err:  fmt.Errorf("duplicate chat id %d (also chats[%d])", ch.ID, prev),
			}
		}
		seen[ch.ID] = i
		for j, e := range ch.Links {
			if err := e.Link().Validate(); err != nil {
				return &ConfigError{Path: fmt.Sprintf("<root>.chats[%d].links[%d]", i, j), Err: err}
			}
			if e.LastPostID < 0 {
				return &ConfigError{Path: fmt.Sprintf("<root>.chats[%d].links[%d].last_post_id", i, j), Err: errors.New("must be >= 0")}
			}
		}
	}
	return nil
}

// ParseProxy accepts http, https, socks5 and socks5h proxy URLs.
func ParseProxy(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid proxy url: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "socks5", "socks5h":
	default:
		return nil, fmt.Errorf("unsupported proxy scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, errors.New("proxy url has no host")
	}
	return u, nil
}

// ProxyURL returns the parsed proxy, or nil when none is configured.
func (c *Config) ProxyURL() *url.URL {
	if strings.TrimSpace(c.Proxy) == "" {
		return nil
	}
	u, err := ParseProxy(c.Proxy)
	if err != nil {
		return nil
	}
	return u
}

// GroupLogID returns the log chat id, or 0.
func (c *Config) GroupLogID() int64 {
	id, _ := strconv.ParseInt(strings.TrimSpace(c.Telegram.GroupLog), 10, 64)
	return id
}
