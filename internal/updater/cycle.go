package updater

import (
	"context"
	"errors"
	"slices"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"scraperbot/internal/config"
	"scraperbot/internal/source"
	"scraperbot/internal/watermark"
	logx "scraperbot/pkg/logx"
)

type fetched struct {
	posts    []source.Post
	floor    int64
	watchers []int64
}

type pending struct {
	link source.Link
	post source.Post
}

type counters struct {
	delivered atomic.Int64
	failed    atomic.Int64
}

// RunCycle runs one plan, fetch, dispatch and commit pass, then saves.
//
// A failed link is logged and skipped without touching its entries. A link
// with no posts marks its due entries checked. Each chat receives its posts
// one at a time, and its watermark moves after every successful delivery.
// The returned error is non-nil only when the cycle was cancelled or the
// save failed; per-link and per-chat failures are in the report.
func (u *Updater) RunCycle(ctx context.Context) (Report, error) {
	u.cycleMu.Lock()
	defer u.cycleMu.Unlock()

	start := u.now()
	var interval time.Duration
	u.cfg.View(func(c *config.Config) { interval = c.UpdateInterval() })

	plan := u.marks.Plan(start, interval)
	rep := Report{Planned: len(plan)}
	u.log.Info("cycle started", logx.Int("links", len(plan)), logx.Duration("interval", interval))

	got := u.fetchAll(ctx, plan, &rep)

	chats := u.chatsFor(plan, got)
	rep.Chats = len(chats)
	if len(chats) > 0 && ctx.Err() == nil {
		var c counters
		var g errgroup.Group
		for _, chatID := range chats {
			g.Go(func() error {
				u.dispatchChat(ctx, chatID, got, &c)
				return nil
			})
		}
		_ = g.Wait()
		rep.Delivered = int(c.delivered.Load())
		rep.DeliveryErrors = int(c.failed.Load())
	}

	var errs []error
	if err := ctx.Err(); err != nil {
		errs = append(errs, err)
	}
	if err := u.saver.Save(); err != nil {
		u.log.Error("save after cycle failed", logx.Err(err))
		errs = append(errs, err)
	}

	rep.Took = u.now().Sub(start)
	u.log.Info("cycle finished",
		logx.Int("planned", rep.Planned),
		logx.Int("fetched", rep.Fetched),
		logx.Int("failed", rep.Failed),
		logx.Int("empty", rep.Empty),
		logx.Int("delivered", rep.Delivered),
		logx.Int("delivery_errors", rep.DeliveryErrors),
		logx.Duration("took", rep.Took),
	)
	if u.onCycle != nil {
		u.onCycle(rep)
	}
	return rep, errors.Join(errs...)
}

func (u *Updater) fetchAll(ctx context.Context, plan []watermark.Due, rep *Report) map[source.Link]fetched {
	type result struct {
		posts []source.Post
		err   error
	}
	results := make([]result, len(plan))

	// siblings are never cancelled: each task records its own error
	var g errgroup.Group
	for i, d := range plan {
		g.Go(func() error {
			posts, err := u.loader.Load(ctx, d.Link, d.Floor)
			results[i] = result{posts: posts, err: err}
			return nil
		})
	}
	_ = g.Wait()

	now := u.now()
	out := make(map[source.Link]fetched, len(plan))
	for i, d := range plan {
		r := results[i]
		switch {
		case r.err != nil:
			rep.Failed++
			u.log.Error("link failed",
				logx.String("link", d.Link.String()),
				logx.Int64("floor", d.Floor),
				logx.Any("chats", d.Watchers),
				logx.Err(r.err),
			)
		case len(r.posts) == 0:
			rep.Empty++
			n := u.marks.TouchAll(d.Link, d.Watchers, now)
			u.log.Debug("link empty", logx.String("link", d.Link.String()), logx.Int("touched", n))
		default:
			rep.Fetched++
			out[d.Link] = fetched{posts: r.posts, floor: d.Floor, watchers: d.Watchers}
			u.log.Debug("link fetched", logx.String("link", d.Link.String()), logx.Int("posts", len(r.posts)))
		}
	}
	return out
}

// chatsFor lists chats watching at least one fetched link, in plan order.
// It reads the live config, so a chat that started watching a link since
// the plan was made is included; Pending decides what it gets.
func (u *Updater) chatsFor(plan []watermark.Due, got map[source.Link]fetched) []int64 {
	var ids []int64
	for _, d := range plan {
		if _, ok := got[d.Link]; !ok {
			continue
		}
		for _, id := range u.marks.Watching(d.Link) {
			if !slices.Contains(ids, id) {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

func (u *Updater) dispatchChat(ctx context.Context, chatID int64, got map[source.Link]fetched, c *counters) {
	log := u.log.With(logx.Int64("chat_id", chatID))

	var batch []pending
	for _, link := range u.marks.Links(chatID) {
		f, ok := got[link]
		if !ok {
			continue
		}
		due := slices.Contains(f.watchers, chatID)
		posts, ok := u.marks.Pending(chatID, link, f.posts, f.floor, due)
		if !ok {
			continue
		}
		if len(posts) == 0 {
			if due {
				u.marks.Touch(chatID, link, u.now())
			}
			continue
		}
		for _, p := range posts {
			batch = append(batch, pending{link: link, post: p})
		}
	}
	if len(batch) == 0 {
		return
	}
	log.Info("delivering", logx.Int("posts", len(batch)))

	for _, item := range batch {
		if ctx.Err() != nil {
			log.Info("delivery interrupted", logx.Int64("next_post_id", item.post.ID))
			return
		}
		if err := u.deliverOne(ctx, chatID, item); err != nil {
			c.failed.Add(1)
			log.Error("delivery failed",
				logx.String("link", item.link.String()),
				logx.Int64("post_id", item.post.ID),
				logx.Err(err),
			)
			return
		}
		c.delivered.Add(1)
		u.marks.Commit(chatID, item.link, item.post.ID, u.now())
	}
}

// deliverOne runs detached from ctx so a stop request lets the current post
// finish and commit.
func (u *Updater) deliverOne(ctx context.Context, chatID int64, item pending) error {
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), u.deliveryTimeout)
	defer cancel()

	post := item.post
	if post.Link.IsZero() {
		post.Link = item.link
	}
	if err := u.deliver.Deliver(dctx, chatID, post); err != nil {
		return &DeliveryError{ChatID: chatID, Link: item.link, PostID: post.ID, Err: err}
	}
	return nil
}
