package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"

	logx "scraperbot/pkg/logx"
)

// Env is what fetch and parse strategies may use from the loader.
type Env interface {
	// HTTPClient is the shared client (proxy, cookies, connection limits applied).
	HTTPClient() *http.Client
	// Get performs a GET through the shared client and returns the body text.
	// Non-2xx responses are errors.
	Get(ctx context.Context, rawURL string) (string, error)
	// Offload runs a blocking function on the bounded worker pool.
	Offload(ctx context.Context, name string, fn func(ctx context.Context) (any, error)) (any, error)
	UserAgent() string
	Logger() logx.Logger
}

// FetchFunc retrieves raw content for a link. since is the fetch floor.
type FetchFunc func(ctx context.Context, env Env, link Link, since int64) (any, error)

// ParseFunc turns raw content into posts.
type ParseFunc func(ctx context.Context, env Env, link Link, raw any, since int64) ([]Post, error)

// Plugin bundles everything a source type contributes.
type Plugin struct {
	Type string
	// URLTemplate contains "{id}" where the link id goes.
	URLTemplate string
	// Hosts map URLs back to this type in ParseURL.
	Hosts []string
	// Fetch is optional; the loader falls back to a plain GET of the link URL.
	Fetch FetchFunc
	Parse ParseFunc
}

// Registry maps link types to URL templates and strategies.
// Registration is idempotent per type: the last registration wins.
type Registry struct {
	mu       sync.RWMutex
	urls     map[string]string
	hosts    map[string]string
	fetchers map[string]FetchFunc
	parsers  map[string]ParseFunc
}

func NewRegistry() *Registry {
	return &Registry{
		urls:     map[string]string{},
		hosts:    map[string]string{},
		fetchers: map[string]FetchFunc{},
		parsers:  map[string]ParseFunc{},
	}
}

func (r *Registry) Register(p Plugin) {
	r.RegisterType(p.Type, p.URLTemplate, p.Hosts...)
	if p.Fetch != nil {
		r.RegisterFetcher(p.Type, p.Fetch)
	}
	if p.Parse != nil {
		r.RegisterParser(p.Type, p.Parse)
	}
}

func (r *Registry) RegisterType(typ, urlTemplate string, hosts ...string) {
	typ = normType(typ)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.urls[typ] = urlTemplate
	for _, h := range hosts {
		h = normHost(h)
		if h != "" {
			r.hosts[h] = typ
		}
	}
}

func (r *Registry) RegisterFetcher(typ string, fn FetchFunc) {
	r.mu.Lock()
	r.fetchers[normType(typ)] = fn
	r.mu.Unlock()
}

func (r *Registry) RegisterParser(typ string, fn ParseFunc) {
	r.mu.Lock()
	r.parsers[normType(typ)] = fn
	r.mu.Unlock()
}

func (r *Registry) Fetcher(typ string) (FetchFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.fetchers[typ]
	return fn, ok && fn != nil
}

func (r *Registry) Parser(typ string) (ParseFunc, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.parsers[typ]
	if !ok || fn == nil {
		return nil, fmt.Errorf("%w for type %q", ErrNoParser, typ)
	}
	return fn, nil
}

// Known reports whether typ has a URL template.
func (r *Registry) Known(typ string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.urls[typ]
	return ok
}

// Types returns the registered types, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.urls))
	for t := range r.urls {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// URL renders the link's canonical URL.
func (r *Registry) URL(l Link) (string, error) {
	r.mu.RLock()
	tpl, ok := r.urls[l.Type]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w %q", ErrUnknownType, l.Type)
	}
	return strings.ReplaceAll(tpl, "{id}", l.ID), nil
}

// ParseURL turns user input into a Link. It accepts a URL whose host maps to
// a registered type (the id is the path without the leading slash) or an
// explicit "type:id" pair for a registered type.
func (r *Registry) ParseURL(raw string) (Link, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Link{}, fmt.Errorf("empty link")
	}

	candidate := raw
	if !strings.Contains(raw, ":") && strings.Contains(raw, "/") {
		candidate = "https://" + raw
	}
	if u, err := url.Parse(candidate); err == nil && u.Host != "" {
		r.mu.RLock()
		typ, ok := r.hosts[normHost(u.Hostname())]
		r.mu.RUnlock()
		if ok {
			id := strings.Trim(u.EscapedPath(), "/")
			if id == "" {
				return Link{}, fmt.Errorf("link %q has no id", raw)
			}
			if u.RawQuery != "" {
				id += "?" + u.RawQuery
			}
			return Link{Type: typ, ID: id}, nil
		}
	}

	if typ, id, ok := strings.Cut(raw, ":"); ok {
		typ = normType(typ)
		if r.Known(typ) && strings.TrimSpace(id) != "" {
			return Link{Type: typ, ID: strings.TrimSpace(id)}, nil
		}
	}
	return Link{}, fmt.Errorf("%w: cannot resolve %q", ErrUnknownType, raw)
}

func normType(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func normHost(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	return strings.TrimPrefix(h, "www.")
}
