package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"scraperbot/internal/source"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "bot.json", `{"telegram":{"token":"x"},"admins":[1]}`)

	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.UpdateInterval() != 24*time.Hour {
		t.Fatalf("interval=%s", cfg.UpdateInterval())
	}
	if cfg.Loader.UserAgent != DefaultUserAgent {
		t.Fatalf("user agent not defaulted: %q", cfg.Loader.UserAgent)
	}
	minD, maxD := cfg.Loader.Delays()
	if minD != 500*time.Millisecond || maxD != time.Second {
		t.Fatalf("delays=%s..%s", minD, maxD)
	}
	if cfg.Loader.MaxConnections != DefaultMaxConnections || cfg.Loader.MaxConnectionsPerHost != 1 {
		t.Fatalf("limits=%d/%d", cfg.Loader.MaxConnections, cfg.Loader.MaxConnectionsPerHost)
	}
	if cfg.Telegram.LastUpdateID != -1 {
		t.Fatalf("last_update_id=%d", cfg.Telegram.LastUpdateID)
	}
	if !cfg.IsAdmin(1) || cfg.Chats == nil {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
}

func TestLoadReportsPath(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		body string
		path string
	}{
		{"type mismatch", `{"loader":{"max_connections":"ten"}}`, "<root>.loader.max_connections"},
		{"bad duration", `{"loader":{"min_delay":"soon"}}`, "<root>.loader.min_delay"},
		{"delay order", `{"loader":{"min_delay":"2s","max_delay":"1s"}}`, "<root>.loader.max_delay"},
		{"bad proxy", `{"proxy":"ftp://p:1"}`, "<root>.proxy"},
		{"bad cron", `{"cycle_schedule":"every day"}`, "<root>.cycle_schedule"},
		{"empty link id", `{"chats":[{"id":1,"links":[{"type":"vk","id":""}]}]}`, "<root>.chats[0].links[0]"},
		{"duplicate chat", `{"chats":[{"id":1,"links":[]},{"id":1,"links":[]}]}`, "<root>.chats[1].id"},
		{"unknown key", `{"nope":true}`, "<root>"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			path := writeFile(t, "bot.json", tc.body)
			_, err := NewManager(path).Load()
			var ce *ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("expected ConfigError, got %v", err)
			}
			if ce.Path != tc.path {
				t.Fatalf("path=%q want %q (err=%v)", ce.Path, tc.path, err)
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	t.Parallel()
	for _, name := range []string{"bot.json", "bot.yaml"} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			body := `{"telegram":{"token":"123:abc"},"chats":[]}`
			if strings.HasSuffix(name, ".yaml") {
				body = "telegram:\n  token: \"123:abc\"\nchats: []\n"
			}
			path := writeFile(t, name, body)
			m := NewManager(path)
			if _, err := m.Load(); err != nil {
				t.Fatalf("Load: %v", err)
			}

			link := source.Link{Type: "vk", ID: "durov"}
			if err := m.Update(func(cfg *Config) error {
				cfg.AddLink(-100, link)
				cfg.Chat(-100).Entry(link).LastPostID = 42
				cfg.AddAdmin(7)
				return nil
			}); err != nil {
				t.Fatalf("Update: %v", err)
			}
			if err := m.Save(); err != nil {
				t.Fatalf("Save: %v", err)
			}
			if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
				t.Fatalf("temp file left behind: %v", err)
			}

			got, err := NewManager(path).Load()
			if err != nil {
				t.Fatalf("reload: %v", err)
			}
			if got.Telegram.Token != "123:abc" {
				t.Fatalf("token=%q", got.Telegram.Token)
			}
			e := got.Chat(-100).Entry(link)
			if e == nil || e.LastPostID != 42 {
				t.Fatalf("entry=%+v", e)
			}
			if !got.IsAdmin(7) {
				t.Fatalf("admin lost")
			}
		})
	}
}

func TestLinkMutations(t *testing.T) {
	t.Parallel()
	cfg := Defaults()
	a := source.Link{Type: "vk", ID: "a"}
	b := source.Link{Type: "rss", ID: "https://example.com/feed"}

	if !cfg.AddLink(1, a) || cfg.AddLink(1, a) {
		t.Fatalf("AddLink should be idempotent")
	}
	cfg.AddLink(1, b)
	if !cfg.HasLink(1, b) {
		t.Fatalf("HasLink(b)=false")
	}
	if !cfg.RemoveLink(1, a) || cfg.RemoveLink(1, a) {
		t.Fatalf("RemoveLink should report presence")
	}
	if n := cfg.RemoveAllLinks(1); n != 1 {
		t.Fatalf("RemoveAllLinks=%d", n)
	}
	if cfg.UpdateChatInfo(ChatInfo{ID: 2, Title: "x"}) {
		t.Fatalf("unknown chat must not be created by UpdateChatInfo")
	}
	if !cfg.UpdateChatInfo(ChatInfo{ID: 1, ShiftedID: 1, Title: "t", Mention: "@t"}) || cfg.Chat(1).Title != "t" {
		t.Fatalf("chat info not recorded")
	}
}

func TestAdminMutations(t *testing.T) {
	t.Parallel()
	cfg := Defaults()
	if !cfg.AddAdmin(5) || cfg.AddAdmin(5) {
		t.Fatalf("AddAdmin should be idempotent")
	}
	if !cfg.RemoveAdmin(5) || cfg.RemoveAdmin(5) {
		t.Fatalf("RemoveAdmin should report presence")
	}
}

func TestApplyOperatorSectionsKeepsChats(t *testing.T) {
	t.Parallel()
	live := Defaults()
	live.AddLink(1, source.Link{Type: "vk", ID: "a"})
	live.Chats[0].Links[0].LastPostID = 10
	live.Telegram.LastUpdateID = 99

	next := Defaults()
	next.Admins = []int64{3}
	next.LinkUpdateInterval = "1h"

	changed := ApplyOperatorSections(live, next)
	if len(changed) != 2 {
		t.Fatalf("changed=%v", changed)
	}
	if live.Chats[0].Links[0].LastPostID != 10 || live.Telegram.LastUpdateID != 99 {
		t.Fatalf("process-owned state overwritten")
	}
	if !live.IsAdmin(3) || live.UpdateInterval() != time.Hour {
		t.Fatalf("operator sections not applied")
	}
}

func TestCloneIsDeep(t *testing.T) {
	t.Parallel()
	cfg := Defaults()
	cfg.AddLink(1, source.Link{Type: "vk", ID: "a"})
	cp := cfg.Clone()
	cp.Chats[0].Links[0].LastPostID = 5
	cp.Admins = append(cp.Admins, 1)
	if cfg.Chats[0].Links[0].LastPostID != 0 || len(cfg.Admins) != 0 {
		t.Fatalf("clone shares state")
	}
}
