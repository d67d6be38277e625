// Package loader fetches and parses sources. It owns the shared HTTP
// client and the worker pool for blocking fetch strategies, and dispatches
// each link to the strategies registered for its type.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"scraperbot/internal/source"
	"scraperbot/internal/task/engine"
	logx "scraperbot/pkg/logx"
)

// maxBodyBytes caps what Get reads from one response.
const maxBodyBytes = 16 << 20

type Loader struct {
	opts Options
	reg  *source.Registry
	log  logx.Logger

	transport *http.Transport
	client    *http.Client
	pool      *engine.Pool

	rngMu sync.Mutex
	rng   *rand.Rand

	// sleep is replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error

	closeOnce sync.Once
	closeErr  error
}

// New builds the loader and starts its worker pool.
func New(opts Options, reg *source.Registry, log logx.Logger) (*Loader, error) {
	if reg == nil {
		return nil, errors.New("loader: registry is nil")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if opts.MaxDelay < opts.MinDelay {
		opts.MaxDelay = opts.MinDelay
	}

	tr, err := newTransport(opts)
	if err != nil {
		return nil, err
	}
	jar, global, err := newJar(opts.Cookies)
	if err != nil {
		return nil, err
	}
	lt := &limitTransport{next: tr, userAgent: opts.UserAgent, cookies: global}
	if opts.MaxConnections > 0 {
		lt.sem = semaphore.NewWeighted(int64(opts.MaxConnections))
	}

	l := &Loader{
		opts:      opts,
		reg:       reg,
		log:       log,
		transport: tr,
		client:    &http.Client{Transport: lt, Jar: jar, Timeout: opts.Timeout},
		pool:      engine.New(engine.Config{Workers: opts.MaxWorkers, DefaultTimeout: opts.Timeout}, log.With(logx.String("comp", "loader.pool"))),
		rng:       rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x5eed)),
		sleep:     sleepCtx,
	}
	l.pool.Start(context.Background())
	return l, nil
}

// Load fetches link and returns its posts. since is the fetch floor; parsers
// may use it to stop early but the caller still filters per watermark.
//
// A link type with no parser yields no posts and no error.
func (l *Loader) Load(ctx context.Context, link source.Link, since int64) ([]source.Post, error) {
	log := l.log.With(logx.String("link", link.String()))

	parse, err := l.reg.Parser(link.Type)
	if errors.Is(err, source.ErrNoParser) {
		log.Error("no parser for link type", logx.Err(err))
		return nil, nil
	}

	if err := l.wait(ctx); err != nil {
		return nil, &source.FetchError{Link: link, Err: err}
	}

	start := time.Now()
	raw, err := l.fetch(ctx, link, since)
	if err != nil {
		var fe *source.FetchError
		if errors.As(err, &fe) {
			return nil, err
		}
		return nil, &source.FetchError{Link: link, Err: err}
	}

	posts, err := parse(ctx, l, link, raw, since)
	if err != nil {
		var pe *source.ParseError
		if errors.As(err, &pe) {
			return nil, err
		}
		return nil, &source.ParseError{Link: link, Err: err}
	}
	for i := range posts {
		if posts[i].Link.IsZero() {
			posts[i].Link = link
		}
	}
	log.Debug("link loaded", logx.Int("posts", len(posts)), logx.Duration("took", time.Since(start)))
	return posts, nil
}

func (l *Loader) fetch(ctx context.Context, link source.Link, since int64) (any, error) {
	if fetch, ok := l.reg.Fetcher(link.Type); ok {
		return fetch(ctx, l, link, since)
	}
	u, err := l.reg.URL(link)
	if err != nil {
		return nil, err
	}
	return l.Get(ctx, u)
}

// wait sleeps a uniform random delay in [MinDelay, MaxDelay].
func (l *Loader) wait(ctx context.Context) error {
	return l.sleep(ctx, l.jitter())
}

func (l *Loader) jitter() time.Duration {
	span := l.opts.MaxDelay - l.opts.MinDelay
	if span <= 0 {
		return l.opts.MinDelay
	}
	l.rngMu.Lock()
	n := l.rng.Int64N(int64(span) + 1)
	l.rngMu.Unlock()
	return l.opts.MinDelay + time.Duration(n)
}

func (l *Loader) HTTPClient() *http.Client { return l.client }

func (l *Loader) Get(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return "", &HTTPStatusError{URL: rawURL, Code: resp.StatusCode}
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", rawURL, err)
	}
	return string(b), nil
}

func (l *Loader) Offload(ctx context.Context, name string, fn func(ctx context.Context) (any, error)) (any, error) {
	return l.pool.Do(ctx, name, fn)
}

func (l *Loader) UserAgent() string { return l.opts.UserAgent }

func (l *Loader) Logger() logx.Logger { return l.log }

// Close stops the worker pool and drops idle connections. Idempotent.
func (l *Loader) Close(ctx context.Context) error {
	l.closeOnce.Do(func() {
		l.log.Info("closing loader", logx.Any("pool", l.pool.Snapshot()))
		l.closeErr = l.pool.Stop(ctx)
		l.transport.CloseIdleConnections()
	})
	return l.closeErr
}

var _ source.Env = (*Loader)(nil)
