package vk

import (
	"context"
	"os"
	"testing"

	"scraperbot/internal/source"
)

func TestParseWall(t *testing.T) {
	t.Parallel()
	b, err := os.ReadFile("testdata/wall.html")
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	link := source.Link{Type: Type, ID: "durov"}

	posts, err := parse(context.Background(), nil, link, string(b), 0)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(posts) != 2 {
		t.Fatalf("posts=%d", len(posts))
	}

	first, second := posts[0], posts[1]
	if first.ID != 101 || second.ID != 102 {
		t.Fatalf("order: %d, %d", first.ID, second.ID)
	}
	if first.Title != "1_101" {
		t.Fatalf("title fallback=%q", first.Title)
	}
	if first.Text != "First &lt;post&gt;" {
		t.Fatalf("first text=%q", first.Text)
	}

	if second.URL != "https://vk.com/wall1_102" {
		t.Fatalf("url=%q", second.URL)
	}
	if second.Title != "Pavel &amp; Co" {
		t.Fatalf("title=%q", second.Title)
	}
	if second.Text != "Second\npost\nline two" {
		t.Fatalf("text=%q", second.Text)
	}
	want := []string{"https://sun.userapi.com/a.jpg", "https://sun.userapi.com/b.jpg"}
	if len(second.ImageURLs) != len(want) {
		t.Fatalf("images=%v", second.ImageURLs)
	}
	for i := range want {
		if second.ImageURLs[i] != want[i] {
			t.Fatalf("images[%d]=%q", i, second.ImageURLs[i])
		}
	}
}

func TestParseRejectsBadID(t *testing.T) {
	t.Parallel()
	page := `<div class="post" id="post-broken"><div class="wall_post_text">x</div></div>`
	if _, err := parse(context.Background(), nil, source.Link{Type: Type, ID: "x"}, page, 0); err == nil {
		t.Fatalf("expected error")
	}
}

func TestParseEmptyPage(t *testing.T) {
	t.Parallel()
	posts, err := parse(context.Background(), nil, source.Link{Type: Type, ID: "x"}, "<html></html>", 0)
	if err != nil || len(posts) != 0 {
		t.Fatalf("posts=%v err=%v", posts, err)
	}
}
