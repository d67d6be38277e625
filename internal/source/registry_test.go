package source

import (
	"context"
	"errors"
	"testing"
)

func newTestRegistry() *Registry {
	r := NewRegistry()
	r.Register(Plugin{
		Type:        "vk",
		URLTemplate: "https://vk.com/{id}",
		Hosts:       []string{"vk.com"},
		Parse: func(context.Context, Env, Link, any, int64) ([]Post, error) {
			return nil, nil
		},
	})
	r.RegisterType("rss", "{id}")
	return r
}

func TestRegistryURL(t *testing.T) {
	t.Parallel()
	r := newTestRegistry()

	got, err := r.URL(Link{Type: "vk", ID: "durov"})
	if err != nil {
		t.Fatalf("URL: %v", err)
	}
	if got != "https://vk.com/durov" {
		t.Fatalf("got %q", got)
	}

	if _, err := r.URL(Link{Type: "nope", ID: "x"}); !errors.Is(err, ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}
}

func TestRegistryParseURL(t *testing.T) {
	t.Parallel()
	r := newTestRegistry()

	cases := []struct {
		in      string
		want    Link
		wantErr bool
	}{
		{in: "https://vk.com/durov", want: Link{Type: "vk", ID: "durov"}},
		{in: "https://www.vk.com/durov/", want: Link{Type: "vk", ID: "durov"}},
		{in: "vk.com/club1", want: Link{Type: "vk", ID: "club1"}},
		{in: "vk:durov", want: Link{Type: "vk", ID: "durov"}},
		{in: "rss:https://example.com/feed.xml", want: Link{Type: "rss", ID: "https://example.com/feed.xml"}},
		{in: "https://vk.com/", wantErr: true},
		{in: "https://example.org/x", wantErr: true},
		{in: "ig:", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := r.ParseURL(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseURL: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %+v want %+v", got, tc.want)
			}
		})
	}
}

func TestRegistryParserLookup(t *testing.T) {
	t.Parallel()
	r := newTestRegistry()

	if _, err := r.Parser("vk"); err != nil {
		t.Fatalf("vk parser: %v", err)
	}
	if _, err := r.Parser("rss"); !errors.Is(err, ErrNoParser) {
		t.Fatalf("expected ErrNoParser, got %v", err)
	}
	if _, ok := r.Fetcher("vk"); ok {
		t.Fatalf("vk has no custom fetcher")
	}

	// re-registration overwrites
	called := false
	r.RegisterParser("vk", func(context.Context, Env, Link, any, int64) ([]Post, error) {
		called = true
		return nil, nil
	})
	fn, _ := r.Parser("vk")
	_, _ = fn(context.Background(), nil, Link{}, nil, 0)
	if !called {
		t.Fatalf("expected the later parser to win")
	}
}

func TestPostHTML(t *testing.T) {
	t.Parallel()
	p := Post{
		Link:  Link{Type: "vk", ID: "durov"},
		URL:   "https://vk.com/wall1_2?a=1&b=2",
		Title: "Pavel &amp; co",
		Text:  "hello",
	}
	want := `<a href="https://vk.com/wall1_2?a=1&amp;b=2">Pavel &amp; co</a>` + "\nhello"
	if got := p.HTML(); got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestSortPosts(t *testing.T) {
	t.Parallel()
	posts := []Post{{ID: 3}, {ID: 1}, {ID: 2}}
	SortPosts(posts)
	for i, want := range []int64{1, 2, 3} {
		if posts[i].ID != want {
			t.Fatalf("posts[%d]=%d want %d", i, posts[i].ID, want)
		}
	}
}
