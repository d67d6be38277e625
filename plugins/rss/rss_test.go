package rss

import (
	"context"
	"strings"
	"testing"

	"scraperbot/internal/source"
)

const feedXML = `<?xml version="1.0"?>
<rss version="2.0"><channel><title>Example</title>
<item>
  <title>Newer</title>
  <link>https://example.com/2</link>
  <description>&lt;p&gt;Hello &lt;b&gt;world&lt;/b&gt;&lt;/p&gt;</description>
  <pubDate>Tue, 14 Nov 2023 22:13:20 +0000</pubDate>
  <enclosure url="https://example.com/2.jpg" type="image/jpeg" length="1"/>
</item>
<item>
  <title>Older</title>
  <link>https://example.com/1</link>
  <description>plain</description>
  <pubDate>Tue, 14 Nov 2023 22:00:00 +0000</pubDate>
</item>
<item>
  <title>Undated</title>
  <link>https://example.com/0</link>
</item>
</channel></rss>`

func TestParseFeed(t *testing.T) {
	t.Parallel()
	link := source.Link{Type: Type, ID: "https://example.com/feed.xml"}

	posts, err := parse(context.Background(), nil, link, feedXML, 0)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(posts) != 2 {
		t.Fatalf("posts=%d", len(posts))
	}
	if posts[0].Title != "Older" || posts[1].Title != "Newer" {
		t.Fatalf("order: %q, %q", posts[0].Title, posts[1].Title)
	}
	if posts[1].ID != 1700000000*idsPerSecond {
		t.Fatalf("id=%d", posts[1].ID)
	}
	if posts[1].Text != "Hello world" {
		t.Fatalf("text=%q", posts[1].Text)
	}
	if len(posts[1].ImageURLs) != 1 || posts[1].ImageURLs[0] != "https://example.com/2.jpg" {
		t.Fatalf("images=%v", posts[1].ImageURLs)
	}
}

func TestParseFeedSince(t *testing.T) {
	t.Parallel()
	link := source.Link{Type: Type, ID: "https://example.com/feed.xml"}
	posts, err := parse(context.Background(), nil, link, feedXML, 1699999200*idsPerSecond)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(posts) != 1 || posts[0].Title != "Newer" {
		t.Fatalf("posts=%+v", posts)
	}
}

func TestParseFeedInvalid(t *testing.T) {
	t.Parallel()
	if _, err := parse(context.Background(), nil, source.Link{Type: Type, ID: "x"}, "not a feed", 0); err == nil {
		t.Fatalf("expected error")
	}
}

const sameDayFeed = `<?xml version="1.0"?>
<rss version="2.0"><channel><title>Daily</title>
<item><title>C</title><link>https://example.com/c</link><pubDate>Mon, 02 Jan 2024 00:00:00 GMT</pubDate></item>
<item><title>B</title><link>https://example.com/b</link><pubDate>Mon, 02 Jan 2024 00:00:00 GMT</pubDate></item>
<item><title>A</title><link>https://example.com/a</link><pubDate>Mon, 02 Jan 2024 00:00:00 GMT</pubDate></item>
</channel></rss>`

func TestParseFeedSameSecondItemsGetDistinctIDs(t *testing.T) {
	t.Parallel()
	link := source.Link{Type: Type, ID: "https://example.com/daily.xml"}
	const day = int64(1704153600) // 2024-01-02T00:00:00Z

	posts, err := parse(context.Background(), nil, link, sameDayFeed, 0)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(posts) != 3 {
		t.Fatalf("posts=%d want 3", len(posts))
	}
	for i, want := range []string{"A", "B", "C"} {
		if posts[i].Title != want || posts[i].ID != day*idsPerSecond+int64(i) {
			t.Fatalf("posts[%d]=%q id=%d", i, posts[i].Title, posts[i].ID)
		}
	}

	// a newer item of the same day is prepended: earlier ids do not move
	prepended := strings.Replace(sameDayFeed, "<item><title>C</title>",
		"<item><title>D</title><link>https://example.com/d</link><pubDate>Mon, 02 Jan 2024 00:00:00 GMT</pubDate></item>\n<item><title>C</title>", 1)
	posts, err = parse(context.Background(), nil, link, prepended, day*idsPerSecond+2)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(posts) != 1 || posts[0].Title != "D" || posts[0].ID != day*idsPerSecond+3 {
		t.Fatalf("posts=%+v", posts)
	}
}
