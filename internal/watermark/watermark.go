// Package watermark reads and advances the per-chat link watermarks kept in
// the config. All access goes through the config manager's lock.
package watermark

import (
	"slices"
	"time"

	"scraperbot/internal/config"
	"scraperbot/internal/source"
)

// Due is one link planned for fetching this cycle.
type Due struct {
	Link source.Link
	// Floor is the lowest last_post_id among the due entries.
	Floor int64
	// Watchers are the chats whose entry for Link is due.
	Watchers []int64
}

type Store struct {
	cfg *config.Manager
}

func New(cfg *config.Manager) *Store { return &Store{cfg: cfg} }

// Plan lists links with at least one entry checked interval or longer ago,
// in the order the links first appear in the config.
func (s *Store) Plan(now time.Time, interval time.Duration) []Due {
	ts := now.Unix()
	limit := int64(interval / time.Second)

	var out []Due
	index := map[source.Link]int{}
	s.cfg.View(func(c *config.Config) {
		for _, ch := range c.Chats {
			for _, e := range ch.Links {
				if ts-e.LastUpdateTime < limit {
					continue
				}
				link := e.Link()
				i, ok := index[link]
				if !ok {
					index[link] = len(out)
					out = append(out, Due{Link: link, Floor: e.LastPostID, Watchers: []int64{ch.ID}})
					continue
				}
				d := &out[i]
				d.Floor = min(d.Floor, e.LastPostID)
				if !slices.Contains(d.Watchers, ch.ID) {
					d.Watchers = append(d.Watchers, ch.ID)
				}
			}
		}
	})
	return out
}

// Watching returns the chats that watch link.
func (s *Store) Watching(link source.Link) []int64 {
	var ids []int64
	s.cfg.View(func(c *config.Config) {
		for _, ch := range c.Chats {
			if ch.Entry(link) != nil {
				ids = append(ids, ch.ID)
			}
		}
	})
	return ids
}

// Links returns the links a chat watches, in config order.
func (s *Store) Links(chatID int64) []source.Link {
	var out []source.Link
	s.cfg.View(func(c *config.Config) {
		ch := c.Chat(chatID)
		if ch == nil {
			return
		}
		for _, e := range ch.Links {
			out = append(out, e.Link())
		}
	})
	return out
}

// Pending returns the posts newer than the chat's watermark for link, in
// ascending id order with exact duplicates (same id and url) dropped.
//
// ok is false when the chat should not be considered for these posts: it no
// longer watches the link, or its entry is not due and its watermark is below
// floor, so the fetch may not cover everything it has not seen.
func (s *Store) Pending(chatID int64, link source.Link, posts []source.Post, floor int64, due bool) (out []source.Post, ok bool) {
	var mark int64
	s.cfg.View(func(c *config.Config) {
		ch := c.Chat(chatID)
		if ch == nil {
			return
		}
		e := ch.Entry(link)
		if e == nil {
			return
		}
		if !due && e.LastPostID < floor {
			return
		}
		mark = e.LastPostID
		ok = true
	})
	if !ok {
		return nil, false
	}

	type postKey struct {
		id  int64
		url string
	}
	seen := make(map[postKey]struct{}, len(posts))
	for _, p := range posts {
		if p.ID <= mark {
			continue
		}
		k := postKey{p.ID, p.URL}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, p)
	}
	source.SortPosts(out)
	return out, true
}

// Commit records a delivered post: last_post_id never decreases, and
// last_update_time becomes now. It reports whether the entry exists.
func (s *Store) Commit(chatID int64, link source.Link, postID int64, now time.Time) bool {
	var found bool
	_ = s.cfg.Update(func(c *config.Config) error {
		e := entry(c, chatID, link)
		if e == nil {
			return nil
		}
		found = true
		e.LastPostID = max(e.LastPostID, postID)
		e.LastUpdateTime = now.Unix()
		return nil
	})
	return found
}

// Touch marks the chat's entry for link as checked at now.
func (s *Store) Touch(chatID int64, link source.Link, now time.Time) bool {
	var found bool
	_ = s.cfg.Update(func(c *config.Config) error {
		if e := entry(c, chatID, link); e != nil {
			e.LastUpdateTime = now.Unix()
			found = true
		}
		return nil
	})
	return found
}

// TouchAll marks the listed chats' entries for link as checked at now. With
// no chats it touches every entry for link.
func (s *Store) TouchAll(link source.Link, chats []int64, now time.Time) int {
	n := 0
	_ = s.cfg.Update(func(c *config.Config) error {
		for i := range c.Chats {
			ch := &c.Chats[i]
			if len(chats) > 0 && !slices.Contains(chats, ch.ID) {
				continue
			}
			if e := ch.Entry(link); e != nil {
				e.LastUpdateTime = now.Unix()
				n++
			}
		}
		return nil
	})
	return n
}

// Mark returns the chat's watermark for link.
func (s *Store) Mark(chatID int64, link source.Link) (config.LinkEntry, bool) {
	var out config.LinkEntry
	var ok bool
	s.cfg.View(func(c *config.Config) {
		if e := entry(c, chatID, link); e != nil {
			out, ok = *e, true
		}
	})
	return out, ok
}

func entry(c *config.Config, chatID int64, link source.Link) *config.LinkEntry {
	ch := c.Chat(chatID)
	if ch == nil {
		return nil
	}
	return ch.Entry(link)
}
