package loader

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/proxy"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/sync/semaphore"
)

func newTransport(opts Options) (*http.Transport, error) {
	dialer := &net.Dialer{Timeout: 15 * time.Second, KeepAlive: 30 * time.Second}
	idle := opts.MaxConnections
	if idle <= 0 {
		idle = 100
	}
	tr := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          idle,
		MaxIdleConnsPerHost:   max(opts.MaxConnsPerHost, 1),
		MaxConnsPerHost:       opts.MaxConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
		ForceAttemptHTTP2:     true,
	}
	if opts.Proxy == nil {
		return tr, nil
	}

	switch strings.ToLower(opts.Proxy.Scheme) {
	case "http", "https":
		tr.Proxy = http.ProxyURL(opts.Proxy)
	case "socks5", "socks5h":
		d, err := proxy.FromURL(opts.Proxy, dialer)
		if err != nil {
			return nil, fmt.Errorf("socks proxy: %w", err)
		}
		cd, ok := d.(proxy.ContextDialer)
		if !ok {
			return nil, fmt.Errorf("socks proxy: dialer does not support contexts")
		}
		tr.DialContext = cd.DialContext
	default:
		return nil, fmt.Errorf("unsupported proxy scheme %q", opts.Proxy.Scheme)
	}
	return tr, nil
}

// ProxyTransport returns a transport routed through proxyURL (nil for a
// direct connection), for clients outside the loader such as the Telegram
// bot.
func ProxyTransport(proxyURL *url.URL) (*http.Transport, error) {
	return newTransport(Options{Proxy: proxyURL})
}

func newJar(cookies map[string]map[string]string) (http.CookieJar, []*http.Cookie, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, nil, err
	}
	var global []*http.Cookie
	for rawURL, kv := range cookies {
		cs := make([]*http.Cookie, 0, len(kv))
		for name, value := range kv {
			cs = append(cs, &http.Cookie{Name: name, Value: value})
		}
		if strings.TrimSpace(rawURL) == "" {
			global = append(global, cs...)
			continue
		}
		u, err := url.Parse(rawURL)
		if err != nil || u.Host == "" {
			return nil, nil, fmt.Errorf("invalid cookie url %q", rawURL)
		}
		jar.SetCookies(u, cs)
	}
	return jar, global, nil
}

// limitTransport caps in-flight requests across all hosts and adds the
// default headers. A slot is held until the response body is closed.
type limitTransport struct {
	next      http.RoundTripper
	sem       *semaphore.Weighted // nil means unlimited
	userAgent string
	cookies   []*http.Cookie
}

func (t *limitTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.sem != nil {
		if err := t.sem.Acquire(req.Context(), 1); err != nil {
			return nil, err
		}
	}

	r := req.Clone(req.Context())
	if t.userAgent != "" && r.Header.Get("User-Agent") == "" {
		r.Header.Set("User-Agent", t.userAgent)
	}
	for _, c := range t.cookies {
		if _, err := r.Cookie(c.Name); err != nil {
			r.AddCookie(c)
		}
	}

	resp, err := t.next.RoundTrip(r)
	if err != nil {
		t.release()
		return nil, err
	}
	resp.Body = &releaseBody{ReadCloser: resp.Body, release: t.release}
	return resp, nil
}

func (t *limitTransport) release() {
	if t.sem != nil {
		t.sem.Release(1)
	}
}

type releaseBody struct {
	io.ReadCloser
	once    sync.Once
	release func()
}

func (b *releaseBody) Close() error {
	err := b.ReadCloser.Close()
	b.once.Do(b.release)
	return err
}

// HTTPStatusError is returned for non-2xx responses.
type HTTPStatusError struct {
	URL  string
	Code int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("GET %s: http %d", e.URL, e.Code)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
