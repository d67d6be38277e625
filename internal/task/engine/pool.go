// Package engine is a bounded worker pool for blocking work.
//
// Callers submit a function with Do and wait for its result; at most
// Config.Workers functions run at once and at most Config.QueueSize wait.
package engine

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	rtsup "scraperbot/internal/runtime/supervisor"
	logx "scraperbot/pkg/logx"
)

type Pool struct {
	cfg Config
	log logx.Logger

	mu      sync.Mutex
	sup     *rtsup.Supervisor
	queue   chan job
	stopCh  chan struct{}
	started bool
	stopped bool

	inFlight  atomic.Int32
	completed atomic.Uint64
	failed    atomic.Uint64
	panics    atomic.Uint64
}

func New(cfg Config, log logx.Logger) *Pool {
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg = cfg.withDefaults()
	return &Pool{
		cfg:    cfg,
		log:    log,
		queue:  make(chan job, cfg.QueueSize),
		stopCh: make(chan struct{}),
	}
}

// Start launches the workers. Calling it twice is a no-op.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true
	p.sup = rtsup.New(ctx, rtsup.WithLogger(p.log))
	for i := 0; i < p.cfg.Workers; i++ {
		p.sup.Go0(fmt.Sprintf("engine.worker.%d", i), p.worker)
	}
	p.log.Debug("worker pool started", logx.Int("workers", p.cfg.Workers), logx.Int("queue_size", p.cfg.QueueSize))
}

// Do runs fn on a worker and waits for it. When the queue is full it waits
// for a slot. It returns early with ctx.Err()
// when ctx ends first; the job still runs to completion in the background
// but observes the cancellation through its own ctx.
func (p *Pool) Do(ctx context.Context, name string, fn Func) (any, error) {
	if fn == nil {
		return nil, nil
	}
	p.mu.Lock()
	if p.stopped || !p.started {
		p.mu.Unlock()
		return nil, ErrStopped
	}
	p.mu.Unlock()

	j := job{name: name, ctx: ctx, fn: fn, enqueuedAt: time.Now(), done: make(chan result, 1)}
	select {
	case p.queue <- j:
	case <-p.stopCh:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case r := <-j.done:
		return r.val, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.stopCh:
		return nil, ErrStopped
	}
}

func (p *Pool) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case j := <-p.queue:
			p.run(j)
		}
	}
}

func (p *Pool) run(j job) {
	if err := j.ctx.Err(); err != nil {
		j.done <- result{err: err}
		return
	}
	ctx := j.ctx
	if p.cfg.DefaultTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.DefaultTimeout)
		defer cancel()
	}

	p.inFlight.Add(1)
	defer p.inFlight.Add(-1)

	start := time.Now()
	val, err := p.call(ctx, j)
	switch {
	case err != nil:
		p.failed.Add(1)
	default:
		p.completed.Add(1)
	}
	p.log.Trace("job finished",
		logx.String("job", j.name),
		logx.Duration("queued", start.Sub(j.enqueuedAt)),
		logx.Duration("took", time.Since(start)),
		logx.Err(err),
	)
	j.done <- result{val: val, err: err}
}

func (p *Pool) call(ctx context.Context, j job) (val any, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.panics.Add(1)
			stack := string(debug.Stack())
			p.log.Error("job panicked", logx.String("job", j.name), logx.Any("panic", r), logx.Stack(stack))
			val, err = nil, &PanicError{Name: j.name, Value: r, Stack: stack}
		}
	}()
	return j.fn(ctx)
}

// Stop rejects new jobs, fails queued ones with ErrStopped and waits for
// running jobs until ctx is done. Idempotent.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	close(p.stopCh)
	sup := p.sup
	p.mu.Unlock()

	// drain jobs nobody will pick up
	for {
		select {
		case j := <-p.queue:
			j.done <- result{err: ErrStopped}
			continue
		default:
		}
		break
	}

	if sup == nil {
		return nil
	}
	sup.Cancel()
	return sup.Wait(ctx)
}

func (p *Pool) Snapshot() Snapshot {
	return Snapshot{
		Workers:   p.cfg.Workers,
		Queued:    len(p.queue),
		InFlight:  p.inFlight.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Panics:    p.panics.Load(),
	}
}
