package engine

import (
	"context"
	"time"
)

// Config controls the worker pool.
//
// Defaults (when fields are omitted/zero):
//   - workers: 1
//   - queue_size: 64
//   - default_timeout: 0 (disabled)
type Config struct {
	Workers   int
	QueueSize int

	// DefaultTimeout bounds each job. 0 leaves jobs bounded only by the caller.
	DefaultTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.DefaultTimeout < 0 {
		c.DefaultTimeout = 0
	}
	return c
}

// Func is a blocking unit of work.
type Func func(ctx context.Context) (any, error)

type result struct {
	val any
	err error
}

type job struct {
	name       string
	ctx        context.Context
	fn         Func
	enqueuedAt time.Time
	done       chan result // buffered(1)
}

// Snapshot is a point-in-time view for logs.
type Snapshot struct {
	Workers   int    `json:"workers"`
	Queued    int    `json:"queued"`
	InFlight  int32  `json:"in_flight"`
	Completed uint64 `json:"completed"`
	Failed    uint64 `json:"failed"`
	Panics    uint64 `json:"panics"`
}
