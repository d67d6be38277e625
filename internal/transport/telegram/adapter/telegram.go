package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	"scraperbot/internal/loader"
	rtsup "scraperbot/internal/runtime/supervisor"
	kit "scraperbot/internal/transport"
	logx "scraperbot/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
	// LastUpdateID is the last processed update id; polling resumes after it.
	// -1 means none.
	LastUpdateID int
	Proxy        *url.URL
}

type Adapter struct {
	cfg Config
	log logx.Logger

	bot     *tele.Bot
	out     atomic.Value // stores (chan<- kit.Update)
	runMu   sync.Mutex
	running bool

	// sup owns the poll loop and the drop reporter. It is created on Start()
	// and cancelled on Stop().
	sup *rtsup.Supervisor

	lastUpdateID   atomic.Int64
	droppedUpdates atomic.Uint64
}

var _ kit.Adapter = (*Adapter)(nil)

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	cfg.PollTimeout = timeout

	tr, err := loader.ProxyTransport(cfg.Proxy)
	if err != nil {
		return nil, err
	}

	a := &Adapter{cfg: cfg, log: log}
	a.lastUpdateID.Store(int64(cfg.LastUpdateID))

	poller := &tele.LongPoller{Timeout: timeout, LastUpdateID: cfg.LastUpdateID}
	b, err := tele.NewBot(tele.Settings{
		Token:       cfg.Token,
		Poller:      tele.NewMiddlewarePoller(poller, a.track),
		Client:      &http.Client{Transport: tr, Timeout: timeout + 20*time.Second},
		Synchronous: true,
		OnError: func(err error, c tele.Context) {
			fields := []logx.Field{logx.Err(err)}
			if c != nil && c.Chat() != nil {
				fields = append(fields, logx.Int64("chat_id", c.Chat().ID))
			}
			log.Error("telegram handler error", fields...)
		},
	})
	if err != nil {
		return nil, err
	}
	a.bot = b

	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.registerHandlers()
	return a, nil
}

func (a *Adapter) track(u *tele.Update) bool {
	a.lastUpdateID.Store(int64(u.ID))
	return true
}

// LastUpdateID is the id of the newest update received so far.
func (a *Adapter) LastUpdateID() int { return int(a.lastUpdateID.Load()) }

func (a *Adapter) Me() kit.Me {
	if a.bot == nil || a.bot.Me == nil {
		return kit.Me{}
	}
	return kit.Me{ID: a.bot.Me.ID, Username: a.bot.Me.Username}
}

func (a *Adapter) registerHandlers() {
	// Handlers forward to the CURRENT output channel. Start() may swap it.
	a.bot.Handle(tele.OnText, func(c tele.Context) error {
		if up, ok := convert(c.Update()); ok {
			a.sendUpdate(up)
		}
		return nil
	})
	a.bot.Handle(tele.OnChannelPost, func(c tele.Context) error {
		if up, ok := convert(c.Update()); ok {
			a.sendUpdate(up)
		}
		return nil
	})
}

func (a *Adapter) sendUpdate(up kit.Update) {
	out, _ := a.out.Load().(chan<- kit.Update)
	if out == nil {
		return
	}
	select {
	case out <- up:
	default:
		a.droppedUpdates.Add(1)
	}
}

// Start begins long polling. Updates are forwarded to out without blocking;
// when out is full they are dropped and counted.
func (a *Adapter) Start(ctx context.Context, out chan<- kit.Update) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.out.Store(out)
	a.sup = rtsup.New(ctx,
		rtsup.WithLogger(a.log.With(logx.String("comp", "telegram.adapter"))),
		rtsup.WithCancelOnError(false),
	)
	sup := a.sup
	a.runMu.Unlock()

	sup.Go0("updates.drop_report", func(c context.Context) {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		report := func() {
			if n := a.droppedUpdates.Swap(0); n > 0 {
				a.log.Warn("incoming updates dropped (channel full)", logx.Int64("count", int64(n)), logx.Int("chan_cap", cap(out)))
			}
		}
		for {
			select {
			case <-c.Done():
				report()
				return
			case <-ticker.C:
				report()
			}
		}
	})

	sup.Go0("telebot.stop_on_cancel", func(c context.Context) {
		<-c.Done()
		a.bot.Stop()
	})

	// telebot's Start() blocks until Stop(); restart it if it returns while
	// the adapter is still running.
	sup.GoRestart("telebot.poll", func(c context.Context) error {
		a.log.Info("polling started", logx.Int("offset", a.LastUpdateID()+1))
		a.bot.Start()
		a.log.Info("polling stopped")
		return nil
	},
		rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
		rtsup.WithStopOnCleanExit(false),
	)
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	sup := a.sup
	a.sup = nil
	wasRunning := a.running
	a.running = false
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.runMu.Unlock()

	if !wasRunning {
		return nil
	}
	a.log.Info("stopping", logx.Int("last_update_id", a.LastUpdateID()))
	sup.Cancel()

	// keep shutdown snappy even if getUpdates is still waiting
	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	wctx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()
	if err := sup.Wait(wctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			a.log.Warn("telegram stop timed out", logx.Err(err))
			return nil
		}
		a.log.Debug("telegram stopped with supervisor error", logx.Err(err))
	}
	return nil
}

// PollOnce fetches the pending updates with one getUpdates call and returns
// them in order. It is used by single-run mode instead of Start.
func (a *Adapter) PollOnce(ctx context.Context, timeout time.Duration) ([]kit.Update, error) {
	params := map[string]string{
		"timeout":         strconv.Itoa(int(timeout / time.Second)),
		"allowed_updates": `["message","channel_post"]`,
	}
	if last := a.LastUpdateID(); last >= 0 {
		params["offset"] = strconv.Itoa(last + 1)
	}

	type result struct {
		data []byte
		err  error
	}
	done := make(chan result, 1)
	go func() {
		data, err := a.bot.Raw("getUpdates", params)
		done <- result{data, err}
	}()

	var r result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r = <-done:
	}
	if r.err != nil {
		return nil, r.err
	}

	var resp struct {
		Result []tele.Update `json:"result"`
	}
	if err := json.Unmarshal(r.data, &resp); err != nil {
		return nil, err
	}
	out := make([]kit.Update, 0, len(resp.Result))
	for i := range resp.Result {
		u := resp.Result[i]
		a.track(&u)
		if up, ok := convert(u); ok {
			out = append(out, up)
		}
	}
	a.log.Info("updates polled", logx.Int("count", len(resp.Result)), logx.Int("last_update_id", a.LastUpdateID()))
	return out, nil
}

func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if opt == nil {
		opt = &kit.SendOptions{}
	}
	chunks := splitTelegramText(text, telegramTextLimit, opt.ParseMode)
	if len(chunks) == 0 {
		chunks = []string{""}
	}
	chat := &tele.Chat{ID: to.ChatID}

	var first kit.MessageRef
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return first, err
		}
		sendOpt := &tele.SendOptions{
			ParseMode:             opt.ParseMode,
			DisableWebPagePreview: opt.DisablePreview,
		}
		if i == 0 && opt.ReplyTo != 0 {
			sendOpt.ReplyTo = &tele.Message{ID: opt.ReplyTo, Chat: chat}
		}
		msg, err := a.bot.Send(chat, chunk, sendOpt)
		if err != nil {
			return first, err
		}
		if i == 0 {
			first = kit.MessageRef{ChatID: to.ChatID, MessageID: msg.ID}
		}
	}
	return first, nil
}

func (a *Adapter) SendPhoto(ctx context.Context, to kit.ChatTarget, photoURL string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return kit.MessageRef{}, err
	}
	chat := &tele.Chat{ID: to.ChatID}
	sendOpt := &tele.SendOptions{}
	if opt != nil && opt.ReplyTo != 0 {
		sendOpt.ReplyTo = &tele.Message{ID: opt.ReplyTo, Chat: chat}
	}
	msg, err := a.bot.Send(chat, &tele.Photo{File: tele.FromURL(photoURL)}, sendOpt)
	if err != nil {
		return kit.MessageRef{}, err
	}
	return kit.MessageRef{ChatID: to.ChatID, MessageID: msg.ID}, nil
}

func (a *Adapter) ChatInfo(ctx context.Context, chatID int64) (kit.ChatInfo, error) {
	if err := ctx.Err(); err != nil {
		return kit.ChatInfo{}, err
	}
	ch, err := a.bot.ChatByID(chatID)
	if err != nil {
		return kit.ChatInfo{}, err
	}
	return kit.DescribeChat(ch.ID, chatType(ch.Type), chatTitle(ch), ch.Username), nil
}

func convert(u tele.Update) (kit.Update, bool) {
	if m := u.Message; m != nil && m.Text != "" {
		return kit.Update{ID: u.ID, Kind: kit.UpdateMessage, Message: convertMessage(m, false)}, true
	}
	if m := u.ChannelPost; m != nil && m.Text != "" {
		return kit.Update{ID: u.ID, Kind: kit.UpdateChannelPost, Message: convertMessage(m, true)}, true
	}
	return kit.Update{}, false
}

func convertMessage(m *tele.Message, channel bool) *kit.Message {
	out := &kit.Message{
		ID:        m.ID,
		Text:      m.Text,
		IsChannel: channel,
	}
	if m.Chat != nil {
		out.ChatID = m.Chat.ID
		out.ChatType = chatType(m.Chat.Type)
		out.ChatTitle = chatTitle(m.Chat)
		out.ChatUsername = m.Chat.Username
	}
	if m.Sender != nil && !channel {
		out.FromID = m.Sender.ID
		out.FromUsername = m.Sender.Username
	}
	if r := m.ReplyTo; r != nil && r.Sender != nil {
		out.ReplyToFromID = r.Sender.ID
		out.ReplyToFromUsername = r.Sender.Username
	}
	return out
}

func chatType(t tele.ChatType) kit.ChatType {
	switch t {
	case tele.ChatPrivate:
		return kit.ChatPrivate
	case tele.ChatGroup:
		return kit.ChatGroup
	case tele.ChatSuperGroup:
		return kit.ChatSuperGroup
	case tele.ChatChannel, tele.ChatChannelPrivate:
		return kit.ChatChannel
	default:
		return kit.ChatType(t)
	}
}

func chatTitle(c *tele.Chat) string {
	if c.Type == tele.ChatPrivate {
		return strings.TrimSpace(c.FirstName + " " + c.LastName)
	}
	return c.Title
}
