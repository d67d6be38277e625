package loader

import (
	"net/url"
	"time"

	"scraperbot/internal/config"
)

// Options configure the shared fetcher.
type Options struct {
	UserAgent string
	Timeout   time.Duration

	// Jitter bounds: every fetch waits uniformly in [MinDelay, MaxDelay].
	MinDelay time.Duration
	MaxDelay time.Duration

	// MaxConnections bounds concurrent requests across all hosts;
	// MaxConnsPerHost bounds connections to one host. 0 means unlimited.
	MaxConnections  int
	MaxConnsPerHost int

	// MaxWorkers sizes the pool for blocking fetch strategies.
	MaxWorkers int

	// Cookies maps URL -> name -> value. The "" key applies to every request.
	Cookies map[string]map[string]string

	Proxy *url.URL
}

// OptionsFromConfig maps the loader section (and the global proxy) onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	minDelay, maxDelay := cfg.Loader.Delays()
	return Options{
		UserAgent:       cfg.Loader.UserAgent,
		Timeout:         cfg.Loader.TimeoutDuration(),
		MinDelay:        minDelay,
		MaxDelay:        maxDelay,
		MaxConnections:  cfg.Loader.MaxConnections,
		MaxConnsPerHost: cfg.Loader.MaxConnectionsPerHost,
		MaxWorkers:      cfg.Loader.MaxWorkers,
		Cookies:         cfg.Loader.Cookies,
		Proxy:           cfg.ProxyURL(),
	}
}
