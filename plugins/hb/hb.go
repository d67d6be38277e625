// Package hb is the httpbin.org source: every fetch yields exactly one post
// whose body is the raw response. Useful to check delivery end to end.
package hb

import (
	"context"
	"fmt"
	"html"
	"time"

	"scraperbot/internal/source"
)

const Type = "hb"

var placeholderImages = []string{
	"https://via.placeholder.com/64",
	"https://via.placeholder.com/128",
}

// now is replaced in tests.
var now = time.Now

func Plugin() source.Plugin {
	return source.Plugin{
		Type:        Type,
		URLTemplate: "http://httpbin.org/{id}",
		Hosts:       []string{"httpbin.org"},
		Parse:       parse,
	}
}

func parse(_ context.Context, _ source.Env, link source.Link, raw any, _ int64) ([]source.Post, error) {
	body, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("hb: unexpected content %T", raw)
	}
	return []source.Post{{
		Link:      link,
		ID:        now().Unix(),
		URL:       "http://httpbin.org/" + link.ID,
		Title:     html.EscapeString(link.String()),
		Text:      "<code>" + html.EscapeString(body) + "</code>",
		ImageURLs: append([]string(nil), placeholderImages...),
	}}, nil
}
