package config

import "time"

const (
	DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64)" +
		" AppleWebKit/537.36 (KHTML, like Gecko)" +
		" Chrome/51.0.2704.79 Safari/537.36"

	DefaultLinkUpdateInterval = 24 * time.Hour
	DefaultPollTimeout        = 10 * time.Second
	DefaultLoaderTimeout      = 30 * time.Second
	DefaultMinDelay           = 500 * time.Millisecond
	DefaultMaxDelay           = time.Second
	DefaultMaxConnections     = 10
	DefaultMaxConnsPerHost    = 1
	DefaultMaxWorkers         = 1
	DefaultDeliveryRate       = 20
	DefaultDeliveryTimeout    = time.Minute
	DefaultJournalRetention   = 7 * 24 * time.Hour
)

// Defaults returns the config every loaded file is merged onto.
func Defaults() *Config {
	return &Config{
		Telegram: TelegramConfig{
			PollTimeout:  DefaultPollTimeout.String(),
			LastUpdateID: -1,
		},
		LinkUpdateInterval: DefaultLinkUpdateInterval.String(),
		Loader: LoaderConfig{
			UserAgent:             DefaultUserAgent,
			Timeout:               DefaultLoaderTimeout.String(),
			MinDelay:              DefaultMinDelay.String(),
			MaxDelay:              DefaultMaxDelay.String(),
			MaxConnections:        DefaultMaxConnections,
			MaxConnectionsPerHost: DefaultMaxConnsPerHost,
			MaxWorkers:            DefaultMaxWorkers,
			Cookies:               map[string]map[string]string{},
		},
		Delivery: DeliveryConfig{
			RatePerSec:       DefaultDeliveryRate,
			Timeout:          DefaultDeliveryTimeout.String(),
			JournalRetention: DefaultJournalRetention.String(),
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
			Telegram: LoggingTelegram{
				MinLevel:   "warn",
				RatePerSec: 1,
			},
		},
		Admins: []int64{},
		Chats:  []Chat{},
	}
}
