package config

import (
	"fmt"
	"strings"
	"time"
)

func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}

// mustDuration is for values already checked by Validate.
func mustDuration(raw string, def time.Duration) time.Duration {
	d, err := ParseDurationOrDefault("", raw, def)
	if err != nil {
		return def
	}
	return d
}

func (c *Config) UpdateInterval() time.Duration {
	return mustDuration(c.LinkUpdateInterval, DefaultLinkUpdateInterval)
}

func (c *Config) PollTimeout() time.Duration {
	return mustDuration(c.Telegram.PollTimeout, DefaultPollTimeout)
}

func (c LoaderConfig) TimeoutDuration() time.Duration {
	return mustDuration(c.Timeout, DefaultLoaderTimeout)
}

// Delays returns the jitter bounds. A zero value is honoured (no delay).
func (c LoaderConfig) Delays() (minDelay, maxDelay time.Duration) {
	minDelay, _ = ParseDurationField("", c.MinDelay)
	maxDelay, _ = ParseDurationField("", c.MaxDelay)
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	return minDelay, maxDelay
}

func (c DeliveryConfig) TimeoutDuration() time.Duration {
	return mustDuration(c.Timeout, DefaultDeliveryTimeout)
}

func (c DeliveryConfig) Retention() time.Duration {
	return mustDuration(c.JournalRetention, DefaultJournalRetention)
}
