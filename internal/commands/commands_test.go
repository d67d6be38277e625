package commands

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"scraperbot/internal/config"
	"scraperbot/internal/source"
	"scraperbot/internal/storage"
	kit "scraperbot/internal/transport"
	logx "scraperbot/pkg/logx"
)

type reply struct {
	chatID int64
	text   string
	opt    kit.SendOptions
}

type fakeSender struct {
	mu      sync.Mutex
	replies []reply
}

func (f *fakeSender) SendText(_ context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, reply{chatID: to.ChatID, text: text, opt: *opt})
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.replies)}, nil
}

func (f *fakeSender) SendPhoto(context.Context, kit.ChatTarget, string, *kit.SendOptions) (kit.MessageRef, error) {
	return kit.MessageRef{}, nil
}

func (f *fakeSender) last(t *testing.T) reply {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.replies) == 0 {
		t.Fatalf("no reply sent")
	}
	return f.replies[len(f.replies)-1]
}

type env struct {
	m     *Manager
	cfg   *config.Manager
	tx    *fakeSender
	path  string
	store storage.Store
}

const adminID = 1

func newEnv(t *testing.T, public bool) *env {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "bot.json")
	cm := config.NewManager(path)
	cfg := config.Defaults()
	cfg.Admins = []int64{adminID}
	cfg.PublicAdminCommandsEnabled = public
	cfg.Chats = []config.Chat{{ID: -100, Links: []config.LinkEntry{}}}
	cm.Commit(cfg)

	st, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(dir, "state.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("storage: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	reg := source.NewRegistry()
	reg.RegisterType("vk", "https://vk.com/{id}", "vk.com")

	tx := &fakeSender{}
	m := New(Deps{Config: cm, Sender: tx, Registry: reg, Store: st, Saver: cm}, logx.Nop())
	m.SetUsername("ScraperBot")
	return &env{m: m, cfg: cm, tx: tx, path: path, store: st}
}

func private(from int64, text string) kit.Update {
	return kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{
		ID: 10, ChatID: from, ChatType: kit.ChatPrivate, FromID: from, Text: text,
	}}
}

func group(from int64, text string) kit.Update {
	return kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{
		ID: 11, ChatID: -100, ChatType: kit.ChatSuperGroup, ChatTitle: "Group", FromID: from, Text: text,
	}}
}

func (e *env) run(t *testing.T, up kit.Update) string {
	t.Helper()
	e.m.Handle(context.Background(), up)
	return e.tx.last(t).text
}

func TestHelp(t *testing.T) {
	t.Parallel()
	e := newEnv(t, false)
	for _, cmd := range []string{"/start", "/help", "/help@ScraperBot"} {
		e.run(t, group(5, cmd))
		r := e.tx.last(t)
		if r.text != helpText || r.opt.ParseMode != "HTML" || r.opt.ReplyTo != 11 {
			t.Fatalf("%s: reply=%+v", cmd, r)
		}
	}
}

func TestOtherBotsCommandsAreIgnored(t *testing.T) {
	t.Parallel()
	e := newEnv(t, false)
	e.m.Handle(context.Background(), group(5, "/help@OtherBot"))
	e.m.Handle(context.Background(), group(5, "just text"))
	e.m.Handle(context.Background(), group(5, "/unknown"))
	if len(e.tx.replies) != 0 {
		t.Fatalf("replies=%+v", e.tx.replies)
	}
}

func TestAuthorize(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name   string
		public bool
		up     kit.Update
		want   Decision
	}{
		{"non-admin", true, group(5, "/watch x"), Decision{Reason: "permission denied"}},
		{"admin in group, public off", false, group(adminID, "/watch x"), Decision{Reason: "admin commands are disabled in public chats"}},
		{"admin in group, public on", true, group(adminID, "/watch x"), allow},
		{"admin in private", false, private(adminID, "/watch x"), allow},
		{"channel post, public on", true, kit.Update{Kind: kit.UpdateChannelPost, Message: &kit.Message{ChatID: -200, ChatType: kit.ChatChannel, IsChannel: true, Text: "/watch x"}}, allow},
		{"channel post, public off", false, kit.Update{Kind: kit.UpdateChannelPost, Message: &kit.Message{ChatID: -200, ChatType: kit.ChatChannel, IsChannel: true, Text: "/watch x"}}, Decision{Reason: "admin commands are disabled in public chats"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := newEnv(t, tc.public)
			req := &Request{Message: tc.up.Message, FromID: tc.up.Message.FromID}
			if got := e.m.Authorize(req); got != tc.want {
				t.Fatalf("got %+v want %+v", got, tc.want)
			}
		})
	}
}

func TestDeniedCommandReplies(t *testing.T) {
	t.Parallel()
	e := newEnv(t, false)
	if got := e.run(t, group(5, "/watch https://vk.com/durov")); got != "permission denied" {
		t.Fatalf("reply=%q", got)
	}
	if e.m.cfg.Get().HasLink(-100, source.Link{Type: "vk", ID: "durov"}) {
		t.Fatalf("denied command mutated config")
	}
}

func TestWatchUnwatch(t *testing.T) {
	t.Parallel()
	e := newEnv(t, false)
	link := source.Link{Type: "vk", ID: "durov"}

	steps := []struct {
		text string
		want string
	}{
		{"/watch https://vk.com/durov", "usage: /watch <chat_id> <url>"},
		{"/watch abc https://vk.com/durov", `invalid chat id "abc"`},
		{"/watch -100 https://vk.com/durov", "added vk:durov to chat -100"},
		{"/watch -100 https://vk.com/durov", "vk:durov already exists in chat -100"},
		{"/unwatch -100 https://vk.com/other", "vk:other does not exist in chat -100"},
		{"/unwatch -100 https://vk.com/durov", "removed vk:durov from chat -100"},
		{"/watch -300 vk.com/durov", "added vk:durov to chat -300"},
		{"/unwatch -300", "removed all links from chat -300"},
	}
	for _, s := range steps {
		if got := e.run(t, private(adminID, s.text)); got != s.want {
			t.Fatalf("%s: reply=%q want %q", s.text, got, s.want)
		}
	}

	cfg := e.cfg.Get()
	if cfg.HasLink(-100, link) || cfg.HasLink(-300, link) {
		t.Fatalf("links left: %+v", cfg.Chats)
	}

	// mutations are saved
	b, err := os.ReadFile(e.path)
	if err != nil {
		t.Fatalf("read saved config: %v", err)
	}
	if !strings.Contains(string(b), `"id": -300`) {
		t.Fatalf("saved config missing chat -300:\n%s", b)
	}
}

func TestWatchInPublicChat(t *testing.T) {
	t.Parallel()
	e := newEnv(t, true)
	if got := e.run(t, group(adminID, "/watch https://vk.com/durov")); got != "added vk:durov to chat -100" {
		t.Fatalf("reply=%q", got)
	}
	if got := e.run(t, group(adminID, "/watch https://example.com/x")); !strings.Contains(got, "example.com") {
		t.Fatalf("unknown host reply=%q", got)
	}
}

func TestAdmin(t *testing.T) {
	t.Parallel()
	e := newEnv(t, false)

	up := private(adminID, "/admin")
	if got := e.run(t, up); got != "missing user id" {
		t.Fatalf("reply=%q", got)
	}

	up.Message.ReplyToFromID = 77
	if got := e.run(t, up); got != "added admin 77" {
		t.Fatalf("reply=%q", got)
	}
	if got := e.run(t, private(adminID, "/admin 77")); got != "user 77 is already an admin" {
		t.Fatalf("reply=%q", got)
	}
	if got := e.run(t, private(adminID, "/admin 77 false")); got != "removed admin 77" {
		t.Fatalf("reply=%q", got)
	}
	if got := e.run(t, private(adminID, "/admin 77 false")); got != "user 77 is not an admin" {
		t.Fatalf("reply=%q", got)
	}
	if got := e.run(t, private(adminID, "/admin 1 2 3")); got != "usage: /admin [user_id] [true|false]" {
		t.Fatalf("reply=%q", got)
	}
	if e.cfg.Get().IsAdmin(77) {
		t.Fatalf("77 still admin")
	}
}

func TestChatInfoRecordsKnownChats(t *testing.T) {
	t.Parallel()
	e := newEnv(t, false)

	up := group(5, "/chatinfo")
	up.Message.ChatID = -1001234567890
	up.Message.ChatUsername = ""
	got := e.run(t, up)
	if !strings.HasPrefix(got, "<code>") || !strings.Contains(got, `&#34;shifted_id&#34;: 1234567890`) {
		t.Fatalf("unknown chat reply=%q", got)
	}
	if e.cfg.Get().Chat(-1001234567890) != nil {
		t.Fatalf("chatinfo created a chat")
	}

	got = e.run(t, group(5, "/chatinfo"))
	if !strings.Contains(got, `&#34;title&#34;: &#34;Group&#34;`) || !strings.Contains(got, "&#34;links&#34;") {
		t.Fatalf("known chat reply=%q", got)
	}
	if ch := e.cfg.Get().Chat(-100); ch.Title != "Group" {
		t.Fatalf("chat info not recorded: %+v", ch)
	}
}

func TestDispatchLoop(t *testing.T) {
	t.Parallel()
	e := newEnv(t, false)
	ctx, cancel := context.WithCancel(context.Background())
	updates := make(chan kit.Update, 4)
	done := make(chan error, 1)
	go func() { done <- e.m.DispatchLoop(ctx, updates, 2) }()

	updates <- group(5, "/help")
	updates <- group(5, "not a command")

	deadline := time.Now().Add(2 * time.Second)
	for {
		e.tx.mu.Lock()
		n := len(e.tx.replies)
		e.tx.mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("replies=%d, want 1", n)
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("DispatchLoop: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("DispatchLoop did not return")
	}
}
