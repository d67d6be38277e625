package config

import "scraperbot/internal/source"

// Config is both the operator's settings and the bot's persisted state.
// Chats (with their link watermarks) belong to the running process and are
// written back on Save; everything else is operator-owned.
type Config struct {
	Telegram TelegramConfig `json:"telegram"`

	// Proxy applies to both Telegram and source fetches.
	// Supported schemes: http, https, socks5, socks5h.
	Proxy string `json:"proxy,omitempty"`

	PublicAdminCommandsEnabled bool `json:"public_admin_commands_enabled"`

	// LinkUpdateInterval is a Go duration string. A link entry is due once
	// this much time passed since its last check.
	LinkUpdateInterval string `json:"link_update_interval"`

	// CycleSchedule optionally sets when update cycles start: a cron spec,
	// a duration or HH:MM (see ParseSchedule). When empty, cycles run every
	// link_update_interval.
	CycleSchedule string `json:"cycle_schedule,omitempty"`

	Loader   LoaderConfig   `json:"loader"`
	Delivery DeliveryConfig `json:"delivery"`
	Logging  LoggingConfig  `json:"logging"`
	Storage  *StorageConfig `json:"storage,omitempty"`

	Admins []int64 `json:"admins"`
	Chats  []Chat  `json:"chats"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// PollTimeout is a Go duration string (e.g. "10s").
	PollTimeout string `json:"poll_timeout"`
	// LastUpdateID is the offset of the last processed update; persisted so
	// single-run invocations never replay commands.
	LastUpdateID int `json:"last_update_id"`
	// GroupLog is the chat id that receives the Telegram log sink.
	GroupLog string `json:"group_log,omitempty"`
}

// LoaderConfig configures the shared fetcher.
//
// Defaults (when fields are omitted):
//   - timeout: "30s"
//   - min_delay: "500ms", max_delay: "1s"
//   - max_connections: 10, max_connections_per_host: 1
//   - max_workers: 1
type LoaderConfig struct {
	UserAgent             string `json:"user_agent"`
	Timeout               string `json:"timeout"`
	MinDelay              string `json:"min_delay"`
	MaxDelay              string `json:"max_delay"`
	MaxConnections        int    `json:"max_connections"`
	MaxConnectionsPerHost int    `json:"max_connections_per_host"`
	MaxWorkers            int    `json:"max_workers"`

	// Cookies maps a URL to name/value pairs. The empty URL key holds cookies
	// sent with every request.
	Cookies map[string]map[string]string `json:"cookies,omitempty"`
}

// DeliveryConfig throttles outgoing posts.
type DeliveryConfig struct {
	RatePerSec int `json:"rate_per_sec"`
	// Timeout bounds one post (text + photos).
	Timeout string `json:"timeout"`
	// JournalRetention is how long delivered keys are remembered in storage.
	JournalRetention string `json:"journal_retention"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig controls the optional persistence layer.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/scraperbot.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// Chat is one destination chat and the links it watches.
type Chat struct {
	ID        int64  `json:"id"`
	ShiftedID int64  `json:"shifted_id,omitempty"`
	Mention   string `json:"mention,omitempty"`
	Title     string `json:"title,omitempty"`

	Links []LinkEntry `json:"links"`
}

// LinkEntry is a (chat, link) watermark: the highest post id delivered and
// when the link was last checked for this chat (unix seconds).
type LinkEntry struct {
	Type           string `json:"type"`
	ID             string `json:"id"`
	LastPostID     int64  `json:"last_post_id"`
	LastUpdateTime int64  `json:"last_update_time"`
}

func (e LinkEntry) Link() source.Link { return source.Link{Type: e.Type, ID: e.ID} }

// ChatInfo is the chat metadata recorded by /chatinfo.
type ChatInfo struct {
	ID        int64
	ShiftedID int64
	Mention   string
	Title     string
}
