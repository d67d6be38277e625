// Package delivery sends posts to Telegram chats: the HTML text first, then
// each image as a reply to it. Delivered posts are journaled so a repeated
// call for the same post is a no-op.
package delivery

import (
	"context"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"scraperbot/internal/source"
	"scraperbot/internal/storage"
	kit "scraperbot/internal/transport"
	logx "scraperbot/pkg/logx"
)

type Options struct {
	// RatePerSec caps Telegram sends (text and photos). 0 disables the cap.
	RatePerSec int
	// Retention is how long a delivered post is remembered.
	Retention time.Duration
	// MaxRemembered bounds the in-memory journal. Default 4096.
	MaxRemembered int
}

type Deliverer struct {
	tx    kit.Sender
	store storage.Store
	log   logx.Logger
	now   func() time.Time

	mu        sync.Mutex
	limiter   *rate.Limiter
	retention time.Duration
	maxMem    int
	// seen is the in-memory journal: key -> remembered until
	seen map[string]time.Time
}

// New builds a deliverer. store may be nil; the journal is then kept in
// memory only.
func New(tx kit.Sender, store storage.Store, opts Options, log logx.Logger) *Deliverer {
	if log.IsZero() {
		log = logx.Nop()
	}
	d := &Deliverer{
		tx:    tx,
		store: store,
		log:   log,
		now:   time.Now,
		seen:  map[string]time.Time{},
	}
	d.Apply(opts)
	return d
}

// Apply swaps rate and retention at runtime.
func (d *Deliverer) Apply(opts Options) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if opts.RatePerSec > 0 {
		d.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSec), opts.RatePerSec)
	} else {
		d.limiter = rate.NewLimiter(rate.Inf, 0)
	}
	if opts.Retention <= 0 {
		opts.Retention = 7 * 24 * time.Hour
	}
	if opts.MaxRemembered <= 0 {
		opts.MaxRemembered = 4096
	}
	d.retention = opts.Retention
	d.maxMem = opts.MaxRemembered
}

// Key identifies one post delivered to one chat. The url is part of it, so
// two posts sharing an id are journaled apart.
func Key(chatID int64, post source.Post) string {
	key := strconv.FormatInt(chatID, 10) + "|" + post.Link.String() + "|" + strconv.FormatInt(post.ID, 10)
	if post.URL != "" {
		key += "|" + post.URL
	}
	return key
}

// Deliver sends post to chatID. Image failures are logged and do not fail
// the delivery; a text failure is returned and nothing is journaled.
func (d *Deliverer) Deliver(ctx context.Context, chatID int64, post source.Post) error {
	key := Key(chatID, post)
	log := d.log.With(
		logx.Int64("chat_id", chatID),
		logx.String("link", post.Link.String()),
		logx.Int64("post_id", post.ID),
	)
	if d.delivered(ctx, key, log) {
		log.Info("post already delivered")
		return nil
	}

	to := kit.ChatTarget{ChatID: chatID}
	if err := d.wait(ctx); err != nil {
		return err
	}
	ref, err := d.tx.SendText(ctx, to, post.HTML(), &kit.SendOptions{ParseMode: "HTML", DisablePreview: true})
	if err != nil {
		return err
	}

	for _, u := range post.ImageURLs {
		if err := d.wait(ctx); err != nil {
			log.Warn("image skipped", logx.String("url", u), logx.Err(err))
			continue
		}
		if _, err := d.tx.SendPhoto(ctx, to, u, &kit.SendOptions{ReplyTo: ref.MessageID}); err != nil {
			log.Error("error sending image", logx.String("url", u), logx.Err(err))
		}
	}

	d.remember(ctx, key, log)
	log.Info("post delivered", logx.Int("images", len(post.ImageURLs)), logx.Int("message_id", ref.MessageID))
	return nil
}

func (d *Deliverer) wait(ctx context.Context) error {
	d.mu.Lock()
	lim := d.limiter
	d.mu.Unlock()
	return lim.Wait(ctx)
}

func (d *Deliverer) delivered(ctx context.Context, key string, log logx.Logger) bool {
	now := d.now()
	d.mu.Lock()
	until, ok := d.seen[key]
	d.mu.Unlock()
	if ok && now.Before(until) {
		return true
	}
	if d.store == nil {
		return false
	}
	ok, err := d.store.Delivered(ctx, key)
	if err != nil {
		// an unreadable journal must not block delivery
		log.Warn("delivery journal read failed", logx.Err(err))
		return false
	}
	return ok
}

func (d *Deliverer) remember(ctx context.Context, key string, log logx.Logger) {
	now := d.now()
	d.mu.Lock()
	until := now.Add(d.retention)
	d.seen[key] = until
	if len(d.seen) > d.maxMem {
		for k, u := range d.seen {
			if !now.Before(u) || len(d.seen) > d.maxMem {
				delete(d.seen, k)
			}
		}
	}
	d.mu.Unlock()

	if d.store == nil {
		return
	}
	if err := d.store.MarkDelivered(context.WithoutCancel(ctx), key, until); err != nil {
		log.Warn("delivery journal write failed", logx.Err(err))
	}
}
