// Package rss watches RSS and Atom feeds. The link id is the feed URL. A post
// id is the item's publish time in unix milliseconds; items sharing a second
// get consecutive milliseconds, counted from the bottom of the feed so ids
// already handed out stay put when new items are prepended.
package rss

import (
	"context"
	"fmt"
	"html"
	"slices"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"scraperbot/internal/source"
	logx "scraperbot/pkg/logx"
)

const (
	Type = "rss"

	maxTextRunes = 1000

	// idsPerSecond bounds the items one publish second can hold.
	idsPerSecond = 1000
)

func Plugin() source.Plugin {
	return source.Plugin{
		Type:        Type,
		URLTemplate: "{id}",
		Parse:       parse,
	}
}

func parse(_ context.Context, env source.Env, link source.Link, raw any, since int64) ([]source.Post, error) {
	body, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("rss: unexpected content %T", raw)
	}
	log := logx.Nop()
	if env != nil {
		log = env.Logger().With(logx.String("link", link.String()))
	}

	feed, err := gofeed.NewParser().ParseString(body)
	if err != nil {
		return nil, fmt.Errorf("rss: %w", err)
	}

	posts := make([]source.Post, 0, len(feed.Items))
	perSecond := make(map[int64]int64)
	for i := len(feed.Items) - 1; i >= 0; i-- {
		it := feed.Items[i]
		ts := itemTime(it)
		if ts.IsZero() {
			log.Warn("feed item without date", logx.String("guid", it.GUID), logx.String("title", it.Title))
			continue
		}
		sec := ts.Unix()
		n := perSecond[sec]
		if n >= idsPerSecond {
			log.Warn("too many feed items in one second", logx.Int64("unix", sec), logx.String("title", it.Title))
			continue
		}
		perSecond[sec] = n + 1
		id := sec*idsPerSecond + n
		if id <= since {
			continue
		}
		title := strings.TrimSpace(it.Title)
		if title == "" {
			title = feed.Title
		}
		posts = append(posts, source.Post{
			Link:      link,
			ID:        id,
			URL:       strings.TrimSpace(it.Link),
			Title:     html.EscapeString(title),
			Text:      html.EscapeString(plainText(firstNonEmpty(it.Description, it.Content))),
			ImageURLs: itemImages(it),
		})
	}
	source.SortPosts(posts)
	return posts, nil
}

func itemTime(it *gofeed.Item) time.Time {
	if it.PublishedParsed != nil {
		return *it.PublishedParsed
	}
	if it.UpdatedParsed != nil {
		return *it.UpdatedParsed
	}
	return time.Time{}
}

func itemImages(it *gofeed.Item) []string {
	var out []string
	add := func(u string) {
		u = strings.TrimSpace(u)
		if u == "" || slices.Contains(out, u) {
			return
		}
		out = append(out, u)
	}
	if it.Image != nil {
		add(it.Image.URL)
	}
	for _, enc := range it.Enclosures {
		if enc != nil && strings.HasPrefix(enc.Type, "image/") {
			add(enc.URL)
		}
	}
	return out
}

// plainText strips markup from a feed description and caps its length.
func plainText(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if strings.ContainsAny(s, "<&") {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(s)); err == nil {
			s = doc.Text()
		}
	}
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > maxTextRunes {
		s = string(r[:maxTextRunes-1]) + "…"
	}
	return s
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
