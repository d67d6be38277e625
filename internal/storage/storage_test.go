package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	logx "scraperbot/pkg/logx"
)

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"", "none", " NONE "} {
		st, err := Open(Config{Driver: driver}, logx.Nop())
		if err != nil || st != nil {
			t.Fatalf("driver %q: st=%v err=%v", driver, st, err)
		}
	}
	if _, err := Open(Config{Driver: "redis"}, logx.Nop()); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}

func TestStoresDelivered(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"file", "sqlite"} {
		t.Run(driver, func(t *testing.T) {
			t.Parallel()
			dir := t.TempDir()
			cfg := Config{Driver: driver, Path: filepath.Join(dir, "bot.db")}
			ctx := context.Background()

			st, err := Open(cfg, logx.Nop())
			if err != nil {
				t.Fatalf("Open: %v", err)
			}

			key := "-100|vk:durov|42"
			if ok, err := st.Delivered(ctx, key); err != nil || ok {
				t.Fatalf("fresh store: ok=%v err=%v", ok, err)
			}
			if err := st.MarkDelivered(ctx, key, time.Now().Add(time.Hour)); err != nil {
				t.Fatalf("MarkDelivered: %v", err)
			}
			if err := st.MarkDelivered(ctx, "expired", time.Now().Add(-time.Hour)); err != nil {
				t.Fatalf("MarkDelivered: %v", err)
			}
			if ok, _ := st.Delivered(ctx, "expired"); ok {
				t.Fatalf("expired key reported as delivered")
			}
			if err := st.AppendAudit(ctx, AuditEntry{ActorID: 1, ChatID: -100, Command: "watch", Args: "vk:durov", OK: true}); err != nil {
				t.Fatalf("AppendAudit: %v", err)
			}
			if err := st.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}

			// reopen: the journal must survive restarts
			st, err = Open(cfg, logx.Nop())
			if err != nil {
				t.Fatalf("reopen: %v", err)
			}
			defer st.Close()
			if ok, err := st.Delivered(ctx, key); err != nil || !ok {
				t.Fatalf("after reopen: ok=%v err=%v", ok, err)
			}
		})
	}
}
