package ig

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"scraperbot/internal/source"
	logx "scraperbot/pkg/logx"
)

type inlineEnv struct{ client *http.Client }

func (e inlineEnv) HTTPClient() *http.Client { return e.client }
func (e inlineEnv) Get(context.Context, string) (string, error) {
	return "", nil
}
func (e inlineEnv) Offload(ctx context.Context, _ string, fn func(ctx context.Context) (any, error)) (any, error) {
	return fn(ctx)
}
func (e inlineEnv) UserAgent() string   { return "test" }
func (e inlineEnv) Logger() logx.Logger { return logx.Nop() }

const profileJSON = `{"data":{"user":{"edge_owner_to_timeline_media":{"edges":[
 {"node":{"__typename":"GraphSidecar","shortcode":"CCC","taken_at_timestamp":1700000300,
   "display_url":"https://cdn/c0.jpg",
   "edge_media_to_caption":{"edges":[{"node":{"text":"three <3"}}]},
   "edge_sidecar_to_children":{"edges":[
     {"node":{"display_url":"https://cdn/c1.jpg","is_video":false}},
     {"node":{"display_url":"https://cdn/c2.mp4","is_video":true}}]}}},
 {"node":{"__typename":"GraphImage","shortcode":"BBB","taken_at_timestamp":1700000200,
   "display_url":"https://cdn/b.jpg","edge_media_to_caption":{"edges":[]}}},
 {"node":{"__typename":"GraphVideo","shortcode":"AAA","taken_at_timestamp":1700000100,
   "display_url":"https://cdn/a.jpg","edge_media_to_caption":{"edges":[]}}}
]}}}}`

func TestFetchAndParse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/v1/users/web_profile_info/" && r.URL.Query().Get("username") == "nasa":
			if r.Header.Get("X-IG-App-ID") == "" {
				http.Error(w, "missing app id", http.StatusBadRequest)
				return
			}
			_, _ = w.Write([]byte(profileJSON))
		case r.URL.Path == "/api/v1/users/528817151/info/":
			_, _ = w.Write([]byte(`{"user":{"username":"nasa"}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	apiBase = srv.URL
	now = func() time.Time { return time.Unix(1700000150+48*3600, 0) }
	defer func() {
		apiBase = "https://www.instagram.com"
		now = time.Now
	}()

	env := inlineEnv{client: srv.Client()}
	ctx := context.Background()

	for _, id := range []string{"nasa", "528817151"} {
		link := source.Link{Type: Type, ID: id}
		// since=0 falls back to the 48h lookback, which excludes AAA
		raw, err := fetch(ctx, env, link, 0)
		if err != nil {
			t.Fatalf("fetch(%s): %v", id, err)
		}
		posts, err := parse(ctx, env, link, raw, 0)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		if len(posts) != 2 {
			t.Fatalf("posts=%d", len(posts))
		}
		if posts[0].ID != 1700000200 || posts[1].ID != 1700000300 {
			t.Fatalf("order: %d, %d", posts[0].ID, posts[1].ID)
		}
		if posts[0].URL != "https://instagram.com/p/BBB/" || len(posts[0].ImageURLs) != 1 {
			t.Fatalf("image post=%+v", posts[0])
		}
		if posts[1].Text != "three &lt;3" {
			t.Fatalf("caption=%q", posts[1].Text)
		}
		if len(posts[1].ImageURLs) != 1 || posts[1].ImageURLs[0] != "https://cdn/c1.jpg" {
			t.Fatalf("sidecar images=%v", posts[1].ImageURLs)
		}
	}

	raw, err := fetch(ctx, env, source.Link{Type: Type, ID: "nasa"}, 1700000250)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got := raw.([]Media); len(got) != 1 || got[0].Shortcode != "CCC" {
		t.Fatalf("since filter: %+v", got)
	}

	if _, err := fetch(ctx, env, source.Link{Type: Type, ID: "missing"}, 1); err == nil {
		t.Fatalf("expected error for unknown profile")
	}
}
