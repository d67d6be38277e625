package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	logx "scraperbot/pkg/logx"
)

func TestPoolDoReturnsResult(t *testing.T) {
	t.Parallel()
	p := New(Config{Workers: 2}, logx.Nop())
	p.Start(context.Background())
	defer p.Stop(context.Background())

	v, err := p.Do(context.Background(), "answer", func(context.Context) (any, error) { return 42, nil })
	if err != nil || v.(int) != 42 {
		t.Fatalf("Do=%v,%v", v, err)
	}
}

func TestPoolBoundsConcurrency(t *testing.T) {
	t.Parallel()
	p := New(Config{Workers: 2, QueueSize: 16}, logx.Nop())
	p.Start(context.Background())
	defer p.Stop(context.Background())

	var running, peak atomic.Int32
	done := make(chan struct{}, 8)
	for i := 0; i < 8; i++ {
		go func() {
			_, _ = p.Do(context.Background(), "busy", func(context.Context) (any, error) {
				n := running.Add(1)
				for {
					old := peak.Load()
					if n <= old || peak.CompareAndSwap(old, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				running.Add(-1)
				return nil, nil
			})
			done <- struct{}{}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}
	if got := peak.Load(); got > 2 {
		t.Fatalf("peak concurrency=%d want <= 2", got)
	}
}

func TestPoolPanicBecomesError(t *testing.T) {
	t.Parallel()
	p := New(Config{}, logx.Nop())
	p.Start(context.Background())
	defer p.Stop(context.Background())

	_, err := p.Do(context.Background(), "boom", func(context.Context) (any, error) { panic("x") })
	var pe *PanicError
	if !errors.As(err, &pe) || pe.Name != "boom" {
		t.Fatalf("err=%v", err)
	}
	if p.Snapshot().Panics != 1 {
		t.Fatalf("panics=%d", p.Snapshot().Panics)
	}
}

func TestPoolStopped(t *testing.T) {
	t.Parallel()
	p := New(Config{}, logx.Nop())
	if _, err := p.Do(context.Background(), "early", func(context.Context) (any, error) { return nil, nil }); !errors.Is(err, ErrStopped) {
		t.Fatalf("before start: %v", err)
	}
	p.Start(context.Background())
	if err := p.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := p.Stop(context.Background()); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	if _, err := p.Do(context.Background(), "late", func(context.Context) (any, error) { return nil, nil }); !errors.Is(err, ErrStopped) {
		t.Fatalf("after stop: %v", err)
	}
}

func TestPoolDoWaitsWhenQueueIsFull(t *testing.T) {
	t.Parallel()
	p := New(Config{Workers: 1, QueueSize: 2}, logx.Nop())
	p.Start(context.Background())
	defer p.Stop(context.Background())

	const jobs = 20
	var ran atomic.Int32
	errs := make(chan error, jobs)
	for i := 0; i < jobs; i++ {
		go func() {
			_, err := p.Do(context.Background(), "slow", func(context.Context) (any, error) {
				time.Sleep(2 * time.Millisecond)
				ran.Add(1)
				return nil, nil
			})
			errs <- err
		}()
	}
	for i := 0; i < jobs; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("Do: %v", err)
		}
	}
	if got := ran.Load(); got != jobs {
		t.Fatalf("ran=%d want %d", got, jobs)
	}
}

func TestPoolDoWaitingForSlotHonorsContext(t *testing.T) {
	t.Parallel()
	p := New(Config{Workers: 1, QueueSize: 1}, logx.Nop())
	p.Start(context.Background())

	release := make(chan struct{})
	block := func(context.Context) (any, error) { <-release; return nil, nil }
	go func() { _, _ = p.Do(context.Background(), "busy", block) }()
	go func() { _, _ = p.Do(context.Background(), "queued", block) }()
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := p.Do(ctx, "late", block); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err=%v want deadline exceeded", err)
	}
	close(release)
	if err := p.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
