// Package updater drives the update pipeline: it plans which links are due,
// fetches them concurrently, delivers each chat's new posts in order and
// advances the chat's watermark after every delivered post.
package updater

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"scraperbot/internal/config"
	"scraperbot/internal/watermark"
	logx "scraperbot/pkg/logx"
)

const defaultDeliveryTimeout = time.Minute

type Updater struct {
	cfg     *config.Manager
	marks   *watermark.Store
	loader  Loader
	deliver Deliverer
	saver   Saver
	log     logx.Logger

	now             func() time.Time
	deliveryTimeout time.Duration
	onCycle         func(Report)

	// cycleMu serializes RunCycle between the loop and single-run callers.
	cycleMu sync.Mutex

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	kick   chan struct{}
	state  atomic.Int32
}

func New(cfg *config.Manager, loader Loader, deliver Deliverer, saver Saver, log logx.Logger, opts ...Option) *Updater {
	if log.IsZero() {
		log = logx.Nop()
	}
	u := &Updater{
		cfg:             cfg,
		marks:           watermark.New(cfg),
		loader:          loader,
		deliver:         deliver,
		saver:           saver,
		log:             log,
		now:             time.Now,
		deliveryTimeout: defaultDeliveryTimeout,
		kick:            make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(u)
	}
	return u
}

func (u *Updater) State() State { return State(u.state.Load()) }

// Start runs cycles in the background until Stop or ctx is done. The first
// cycle starts immediately.
func (u *Updater) Start(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.done != nil {
		return errors.New("updater already started")
	}
	ctx, cancel := context.WithCancel(ctx)
	u.cancel = cancel
	u.done = make(chan struct{})
	go u.loop(ctx, u.done)
	u.log.Info("updater started")
	return nil
}

// Stop cancels the loop and waits for it. A post being delivered finishes
// and commits first. Stop on a stopped updater is a no-op.
func (u *Updater) Stop(ctx context.Context) error {
	u.mu.Lock()
	cancel, done := u.cancel, u.done
	u.cancel, u.done = nil, nil
	u.mu.Unlock()
	if done == nil {
		return nil
	}

	start := time.Now()
	u.state.Store(int32(StateStopping))
	cancel()
	select {
	case <-done:
	case <-ctx.Done():
		u.log.Warn("updater stop timed out", logx.Duration("took", time.Since(start)))
		return ctx.Err()
	}
	u.log.Info("updater stopped", logx.Duration("took", time.Since(start)))
	return nil
}

// Kick ends the current sleep and starts a cycle. Only due entries are
// fetched, so an early cycle does not re-check fresh links.
func (u *Updater) Kick() {
	select {
	case u.kick <- struct{}{}:
	default:
	}
}

func (u *Updater) loop(ctx context.Context, done chan struct{}) {
	defer func() {
		u.state.Store(int32(StateIdle))
		close(done)
	}()

	for {
		u.setState(StateRunning)
		if _, err := u.RunCycle(ctx); err != nil && ctx.Err() == nil {
			u.log.Error("cycle failed", logx.Err(err))
		}
		if ctx.Err() != nil {
			return
		}

		wait := u.nextWait()
		u.setState(StateSleeping)
		u.log.Debug("sleeping", logx.Duration("for", wait), logx.Time("until", u.now().Add(wait)))

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-u.kick:
			t.Stop()
		case <-t.C:
		}
	}
}

// setState records the loop's progress. Once Stop has marked the updater
// stopping, only the loop's exit changes the state again.
func (u *Updater) setState(s State) {
	for {
		cur := u.state.Load()
		if State(cur) == StateStopping {
			return
		}
		if u.state.CompareAndSwap(cur, int32(s)) {
			return
		}
	}
}

// nextWait is the time until the next cycle: the next cycle_schedule tick,
// or link_update_interval when no schedule is set.
func (u *Updater) nextWait() time.Duration {
	var wait time.Duration
	u.cfg.View(func(c *config.Config) {
		if s := c.Schedule(); s != nil {
			now := u.now()
			wait = s.Next(now).Sub(now)
			return
		}
		wait = c.UpdateInterval()
	})
	return max(wait, 0)
}
