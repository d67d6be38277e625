package updater

import (
	"context"
	"time"

	"scraperbot/internal/source"
)

// Loader fetches and parses one link. A nil slice with a nil error means
// the link was checked and had nothing.
type Loader interface {
	Load(ctx context.Context, link source.Link, since int64) ([]source.Post, error)
}

// Deliverer sends one post to one chat. It must tolerate being called again
// for a post it already sent.
type Deliverer interface {
	Deliver(ctx context.Context, chatID int64, post source.Post) error
}

// Saver persists the config (and with it the watermarks).
type Saver interface {
	Save() error
}

// Report summarizes one cycle.
type Report struct {
	Planned        int           `json:"planned"`
	Fetched        int           `json:"fetched"`
	Failed         int           `json:"failed"`
	Empty          int           `json:"empty"`
	Chats          int           `json:"chats"`
	Delivered      int           `json:"delivered"`
	DeliveryErrors int           `json:"delivery_errors"`
	Took           time.Duration `json:"took"`
}

type State int32

const (
	StateIdle State = iota
	StateRunning
	StateSleeping
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateSleeping:
		return "sleeping"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

type Option func(*Updater)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(u *Updater) {
		if now != nil {
			u.now = now
		}
	}
}

// WithDeliveryTimeout bounds one delivery. The delivery itself is detached
// from cycle cancellation, so this is what bounds shutdown.
func WithDeliveryTimeout(d time.Duration) Option {
	return func(u *Updater) {
		if d > 0 {
			u.deliveryTimeout = d
		}
	}
}

// WithCycleHook is called with the report of every finished cycle.
func WithCycleHook(fn func(Report)) Option {
	return func(u *Updater) { u.onCycle = fn }
}
