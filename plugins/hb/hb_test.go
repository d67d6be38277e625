package hb

import (
	"context"
	"testing"
	"time"

	"scraperbot/internal/source"
)

func TestParse(t *testing.T) {
	now = func() time.Time { return time.Unix(1700000000, 0) }
	defer func() { now = time.Now }()

	link := source.Link{Type: Type, ID: "get"}
	posts, err := parse(context.Background(), nil, link, `{"a":"<b>"}`, 0)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(posts) != 1 {
		t.Fatalf("posts=%d", len(posts))
	}
	p := posts[0]
	if p.ID != 1700000000 || p.URL != "http://httpbin.org/get" {
		t.Fatalf("post=%+v", p)
	}
	if p.Text != "<code>{&#34;a&#34;:&#34;&lt;b&gt;&#34;}</code>" {
		t.Fatalf("text=%q", p.Text)
	}
	if len(p.ImageURLs) != 2 {
		t.Fatalf("images=%v", p.ImageURLs)
	}

	if _, err := parse(context.Background(), nil, link, 42, 0); err == nil {
		t.Fatalf("expected error on non-string content")
	}
}
