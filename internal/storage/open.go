package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "scraperbot/pkg/logx"
)

// Store is the persistence API used by delivery and commands.
type Store interface {
	AppendAudit(ctx context.Context, e AuditEntry) error
	// MarkDelivered remembers key until the given time.
	MarkDelivered(ctx context.Context, key string, until time.Time) error
	// Delivered reports whether key was marked and has not expired.
	Delivered(ctx context.Context, key string) (bool, error)
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
