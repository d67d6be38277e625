// Package ig watches public Instagram profiles through the web profile API.
// The link id is a username or a numeric user id; a post id is the post's
// taken-at time in unix seconds.
package ig

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"scraperbot/internal/source"
)

const (
	Type = "ig"

	// defaultLookback applies when a link has never delivered anything.
	defaultLookback = 48 * time.Hour

	webAppID = "936619743392459"
)

var (
	// apiBase and now are replaced in tests.
	apiBase = "https://www.instagram.com"
	now     = time.Now
)

func Plugin() source.Plugin {
	return source.Plugin{
		Type:        Type,
		URLTemplate: "https://instagram.com/{id}",
		Hosts:       []string{"instagram.com"},
		Fetch:       fetch,
		Parse:       parse,
	}
}

// Media is one timeline entry as returned by fetch.
type Media struct {
	Shortcode string
	TakenAt   int64
	Typename  string
	Caption   string
	Display   string
	Children  []string
}

func fetch(ctx context.Context, env source.Env, link source.Link, since int64) (any, error) {
	if since <= 0 {
		since = now().Add(-defaultLookback).Unix()
	}
	return env.Offload(ctx, "ig:"+link.ID, func(ctx context.Context) (any, error) {
		c := client{http: env.HTTPClient(), ua: env.UserAgent()}
		username := link.ID
		if _, err := strconv.ParseInt(link.ID, 10, 64); err == nil {
			u, err := c.usernameByID(ctx, link.ID)
			if err != nil {
				return nil, err
			}
			username = u
		}
		media, err := c.timeline(ctx, username)
		if err != nil {
			return nil, err
		}
		out := media[:0]
		for _, m := range media {
			if m.TakenAt > since {
				out = append(out, m)
			}
		}
		sort.SliceStable(out, func(i, j int) bool { return out[i].TakenAt < out[j].TakenAt })
		return out, nil
	})
}

func parse(_ context.Context, _ source.Env, link source.Link, raw any, _ int64) ([]source.Post, error) {
	media, ok := raw.([]Media)
	if !ok {
		return nil, fmt.Errorf("ig: unexpected content %T", raw)
	}
	posts := make([]source.Post, 0, len(media))
	for _, m := range media {
		u := "https://instagram.com/p/" + m.Shortcode + "/"
		p := source.Post{
			Link:  link,
			ID:    m.TakenAt,
			URL:   u,
			Title: html.EscapeString(u),
			Text:  html.EscapeString(m.Caption),
		}
		switch m.Typename {
		case "GraphSidecar", "XDTGraphSidecar":
			p.ImageURLs = append(p.ImageURLs, m.Children...)
		case "GraphImage", "XDTGraphImage":
			if m.Display != "" {
				p.ImageURLs = []string{m.Display}
			}
		}
		posts = append(posts, p)
	}
	return posts, nil
}

type client struct {
	http *http.Client
	ua   string
}

func (c client) getJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-IG-App-ID", webAppID)
	req.Header.Set("Accept", "application/json")
	if c.ua != "" {
		req.Header.Set("User-Agent", c.ua)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("ig: GET %s: http %d", rawURL, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("ig: decode %s: %w", rawURL, err)
	}
	return nil
}

func (c client) usernameByID(ctx context.Context, id string) (string, error) {
	var out struct {
		User struct {
			Username string `json:"username"`
		} `json:"user"`
	}
	if err := c.getJSON(ctx, apiBase+"/api/v1/users/"+url.PathEscape(id)+"/info/", &out); err != nil {
		return "", err
	}
	if out.User.Username == "" {
		return "", fmt.Errorf("ig: user %s not found", id)
	}
	return out.User.Username, nil
}

type textEdges struct {
	Edges []struct {
		Node struct {
			Text string `json:"text"`
		} `json:"node"`
	} `json:"edges"`
}

type mediaNode struct {
	Typename   string    `json:"__typename"`
	Shortcode  string    `json:"shortcode"`
	TakenAt    int64     `json:"taken_at_timestamp"`
	DisplayURL string    `json:"display_url"`
	Caption    textEdges `json:"edge_media_to_caption"`
	Children   struct {
		Edges []struct {
			Node struct {
				DisplayURL string `json:"display_url"`
				IsVideo    bool   `json:"is_video"`
			} `json:"node"`
		} `json:"edges"`
	} `json:"edge_sidecar_to_children"`
}

func (c client) timeline(ctx context.Context, username string) ([]Media, error) {
	var out struct {
		Data struct {
			User *struct {
				Timeline struct {
					Edges []struct {
						Node mediaNode `json:"node"`
					} `json:"edges"`
				} `json:"edge_owner_to_timeline_media"`
			} `json:"user"`
		} `json:"data"`
	}
	u := apiBase + "/api/v1/users/web_profile_info/?username=" + url.QueryEscape(username)
	if err := c.getJSON(ctx, u, &out); err != nil {
		return nil, err
	}
	if out.Data.User == nil {
		return nil, fmt.Errorf("ig: profile %s not found", username)
	}

	edges := out.Data.User.Timeline.Edges
	media := make([]Media, 0, len(edges))
	for _, e := range edges {
		n := e.Node
		m := Media{
			Shortcode: n.Shortcode,
			TakenAt:   n.TakenAt,
			Typename:  n.Typename,
			Display:   n.DisplayURL,
		}
		if len(n.Caption.Edges) > 0 {
			m.Caption = strings.TrimSpace(n.Caption.Edges[0].Node.Text)
		}
		for _, ch := range n.Children.Edges {
			if !ch.Node.IsVideo && ch.Node.DisplayURL != "" {
				m.Children = append(m.Children, ch.Node.DisplayURL)
			}
		}
		media = append(media, m)
	}
	return media, nil
}
