package app

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"scraperbot/internal/config"
)

func TestMapStorageConfig(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		in      *config.StorageConfig
		enabled bool
		busy    time.Duration
		wantErr bool
	}{
		{"absent", nil, false, 0, false},
		{"none", &config.StorageConfig{Driver: "none"}, false, 0, false},
		{"file", &config.StorageConfig{Driver: "file", Path: "./data/state"}, true, 0, false},
		{"file without path", &config.StorageConfig{Driver: "file"}, false, 0, true},
		{"sqlite default busy", &config.StorageConfig{Driver: "SQLite", Path: "db.sqlite"}, true, time.Second, false},
		{"sqlite busy", &config.StorageConfig{Driver: "sqlite3", Path: "db.sqlite", BusyTimeout: "3s"}, true, 3 * time.Second, false},
		{"sqlite bad busy", &config.StorageConfig{Driver: "sqlite", Path: "db.sqlite", BusyTimeout: "soon"}, false, 0, true},
		{"unknown", &config.StorageConfig{Driver: "redis", Path: "x"}, false, 0, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Defaults()
			cfg.Storage = tc.in
			sc, enabled, err := mapStorageConfig(cfg)
			if (err != nil) != tc.wantErr {
				t.Fatalf("err=%v wantErr=%v", err, tc.wantErr)
			}
			if enabled != tc.enabled {
				t.Fatalf("enabled=%v want %v", enabled, tc.enabled)
			}
			if sc.BusyTimeout != tc.busy {
				t.Fatalf("busy=%s want %s", sc.BusyTimeout, tc.busy)
			}
		})
	}
}

func TestMapLogConfig(t *testing.T) {
	t.Parallel()
	cfg := config.Defaults()
	cfg.Logging.Level = "debug"
	cfg.Logging.Telegram.Enabled = true

	got := mapLogConfig(cfg, "")
	if got.Level != "debug" {
		t.Fatalf("level=%q", got.Level)
	}
	if got.Telegram.Enabled {
		t.Fatalf("telegram sink enabled without group_log")
	}

	cfg.Telegram.GroupLog = "-1001"
	got = mapLogConfig(cfg, "warn")
	if got.Level != "warn" {
		t.Fatalf("flag did not override level: %q", got.Level)
	}
	if !got.Telegram.Enabled || got.Telegram.ChatID != -1001 || got.Telegram.MinLevel != "warn" {
		t.Fatalf("telegram=%+v", got.Telegram)
	}
}

func TestDeliveryOptions(t *testing.T) {
	t.Parallel()
	cfg := config.Defaults()
	cfg.Delivery.RatePerSec = 5
	cfg.Delivery.JournalRetention = "48h"
	got := deliveryOptions(cfg)
	if got.RatePerSec != 5 || got.Retention != 48*time.Hour {
		t.Fatalf("opts=%+v", got)
	}
}

func TestCheckConfig(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	good := filepath.Join(dir, "good.yaml")
	writeFile(t, good, `
telegram:
  token: "123:abc"
admins: [1]
chats:
  - id: -100
    links:
      - {type: vk, id: durov, last_post_id: 10, last_update_time: 0}
`)
	cfg, err := CheckConfig(good)
	if err != nil {
		t.Fatalf("CheckConfig: %v", err)
	}
	if len(cfg.Chats) != 1 || len(cfg.Chats[0].Links) != 1 {
		t.Fatalf("chats=%+v", cfg.Chats)
	}

	bad := filepath.Join(dir, "bad.json")
	writeFile(t, bad, `{"storage": {"driver": "redis", "path": "x"}}`)
	_, err = CheckConfig(bad)
	var ce *config.ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("err=%v, want *config.ConfigError", err)
	}
}

func writeFile(t *testing.T, path, data string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
