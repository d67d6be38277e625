// Package vk scrapes public VK walls (https://vk.com/<id>).
package vk

import (
	"context"
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	xhtml "golang.org/x/net/html"

	"scraperbot/internal/source"
	logx "scraperbot/pkg/logx"
)

const Type = "vk"

var styleURLRe = regexp.MustCompile(`url\(([^)]+)\)`)

func Plugin() source.Plugin {
	return source.Plugin{
		Type:        Type,
		URLTemplate: "https://vk.com/{id}",
		Hosts:       []string{"vk.com", "m.vk.com"},
		Parse:       parse,
	}
}

func parse(_ context.Context, env source.Env, link source.Link, raw any, _ int64) ([]source.Post, error) {
	body, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("vk: unexpected content %T", raw)
	}
	log := logx.Nop()
	if env != nil {
		log = env.Logger().With(logx.String("link", link.String()))
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("vk: parse html: %w", err)
	}
	base, err := url.Parse("https://vk.com/" + link.ID + "/")
	if err != nil {
		return nil, fmt.Errorf("vk: base url: %w", err)
	}

	nodes := doc.Find(".post")
	if nodes.Length() == 0 {
		log.Error("no posts found on page")
		return nil, nil
	}

	posts := make([]source.Post, 0, nodes.Length())
	var parseErr error
	nodes.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		p, err := parsePost(log, link, base, s)
		if err != nil {
			parseErr = err
			return false
		}
		posts = append(posts, p)
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}

	// the wall lists newest first
	for i, j := 0, len(posts)-1; i < j; i, j = i+1, j-1 {
		posts[i], posts[j] = posts[j], posts[i]
	}
	return posts, nil
}

func parsePost(log logx.Logger, link source.Link, base *url.URL, s *goquery.Selection) (source.Post, error) {
	fullID := strings.TrimPrefix(s.AttrOr("id", ""), "post-")
	parts := strings.Split(fullID, "_")
	if len(parts) != 2 {
		return source.Post{}, fmt.Errorf("vk: invalid post id %q", fullID)
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return source.Post{}, fmt.Errorf("vk: invalid post id %q: %w", fullID, err)
	}

	p := source.Post{Link: link, ID: id}

	if href, ok := s.Find("a.post_link").First().Attr("href"); ok {
		if ref, err := url.Parse(href); err == nil {
			p.URL = base.ResolveReference(ref).String()
		}
	} else {
		log.Warn("no link found in post", logx.String("post", fullID))
	}

	title := strings.TrimSpace(s.Find("a.author").First().Text())
	if title == "" {
		log.Warn("no title found in post", logx.String("post", fullID))
		title = fullID
	}
	p.Title = html.EscapeString(title)

	if text := s.Find(".wall_post_text").First(); text.Length() > 0 {
		text.Find(".wall_post_more").Remove()
		p.Text = html.EscapeString(strings.Join(strippedStrings(text), "\n"))
	}

	s.Find(".image_cover").Each(func(_ int, img *goquery.Selection) {
		style := img.AttrOr("style", "")
		m := styleURLRe.FindStringSubmatch(style)
		if m == nil {
			log.Warn("no image url found in style", logx.String("style", style))
			return
		}
		p.ImageURLs = append(p.ImageURLs, strings.Trim(m[1], `'"`))
	})

	if p.Text == "" && len(p.ImageURLs) == 0 {
		log.Error("empty post", logx.String("post", fullID))
	}
	return p, nil
}

// strippedStrings returns every non-blank text node under sel, trimmed,
// in document order. <br> boundaries become separate strings.
func strippedStrings(sel *goquery.Selection) []string {
	var out []string
	var walk func(n *xhtml.Node)
	walk = func(n *xhtml.Node) {
		if n.Type == xhtml.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				out = append(out, t)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return out
}
