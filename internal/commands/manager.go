// Package commands implements the bot's chat commands: help and chat info
// for everyone, and watch, unwatch and admin management for admins.
package commands

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"scraperbot/internal/config"
	rtsup "scraperbot/internal/runtime/supervisor"
	"scraperbot/internal/source"
	"scraperbot/internal/storage"
	kit "scraperbot/internal/transport"
	logx "scraperbot/pkg/logx"
)

const defaultCommandTimeout = 30 * time.Second

type Command struct {
	Name        string
	Aliases     []string
	Description string
	// Admin commands go through Authorize first and are audited.
	Admin   bool
	Timeout time.Duration
	Handle  HandlerFunc
}

type Request struct {
	Update  kit.Update
	Message *kit.Message
	Chat    kit.ChatTarget
	FromID  int64
	Command string
	Args    []string
	ReqID   string
	Logger  logx.Logger

	sender kit.Sender
}

// Reply answers the request's message.
func (r *Request) Reply(ctx context.Context, text string, html bool) error {
	opt := &kit.SendOptions{ReplyTo: r.Message.ID, DisablePreview: true}
	if html {
		opt.ParseMode = "HTML"
	}
	_, err := r.sender.SendText(ctx, r.Chat, text, opt)
	if err != nil {
		r.Logger.Warn("reply failed", logx.Err(err))
	}
	return err
}

type Saver interface {
	Save() error
}

type Deps struct {
	Config   *config.Manager
	Sender   kit.Sender
	Registry *source.Registry
	// Store receives audit entries for admin commands. May be nil.
	Store storage.Store
	Saver Saver
}

type Manager struct {
	cfg   *config.Manager
	tx    kit.Sender
	reg   *source.Registry
	store storage.Store
	saver Saver
	log   logx.Logger

	mu       sync.RWMutex
	username string
	cmds     map[string]*Command

	jobs chan func()
}

func New(d Deps, log logx.Logger) *Manager {
	if log.IsZero() {
		log = logx.Nop()
	}
	m := &Manager{
		cfg:   d.Config,
		tx:    d.Sender,
		reg:   d.Registry,
		store: d.Store,
		saver: d.Saver,
		log:   log,
		cmds:  map[string]*Command{},
		jobs:  make(chan func(), 64),
	}
	m.register(m.builtins()...)
	return m
}

// SetUsername sets the bot's own username; "/cmd@other" addressed to a
// different bot is ignored.
func (m *Manager) SetUsername(u string) {
	m.mu.Lock()
	m.username = strings.TrimPrefix(u, "@")
	m.mu.Unlock()
}

func (m *Manager) register(cmds ...Command) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range cmds {
		c := &cmds[i]
		m.cmds[c.Name] = c
		for _, a := range c.Aliases {
			m.cmds[a] = c
		}
	}
}

// parseCommand splits "/name@bot arg..." into name, bot and args.
func parseCommand(text string) (name, bot string, args []string, ok bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", "", nil, false
	}
	name = strings.TrimPrefix(fields[0], "/")
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name, bot = name[:i], name[i+1:]
	}
	if name == "" {
		return "", "", nil, false
	}
	return strings.ToLower(name), bot, fields[1:], true
}

// Handle runs the command in up, if any, and waits for it.
func (m *Manager) Handle(ctx context.Context, up kit.Update) {
	if run := m.prepare(ctx, up); run != nil {
		run()
	}
}

// prepare resolves the command and returns the function that runs it, or
// nil when the update is not a command for this bot.
func (m *Manager) prepare(ctx context.Context, up kit.Update) func() {
	msg := up.Message
	if msg == nil {
		return nil
	}
	name, bot, args, ok := parseCommand(msg.Text)
	if !ok {
		return nil
	}

	m.mu.RLock()
	username := m.username
	cmd := m.cmds[name]
	m.mu.RUnlock()

	if bot != "" && !strings.EqualFold(bot, username) {
		return nil
	}

	sender := msg.FromUsername
	if msg.FromID == 0 {
		sender = msg.ChatTitle
	} else if sender != "" {
		sender = "@" + sender
	}
	m.log.Info("command received",
		logx.String("from", sender),
		logx.Int64("from_id", msg.FromID),
		logx.Int64("chat_id", msg.ChatID),
		logx.String("text", msg.Text),
	)
	if cmd == nil {
		return nil
	}

	rid := newReqID()
	req := &Request{
		Update:  up,
		Message: msg,
		Chat:    kit.ChatTarget{ChatID: msg.ChatID},
		FromID:  msg.FromID,
		Command: cmd.Name,
		Args:    args,
		ReqID:   rid,
		Logger: m.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", msg.ChatID),
			logx.Int64("from_id", msg.FromID),
			logx.String("cmd", cmd.Name),
		),
		sender: m.tx,
	}

	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	h := cmd.Handle
	if cmd.Admin {
		h = m.authorized(h)
	}
	final := Chain(h,
		MWRequestLog(m.log),
		m.mwAudit(cmd),
		MWReplyError(),
		MWPanicRecover(m.log),
		MWTimeout(timeout),
	)
	return func() { _ = final(ctx, req) }
}

// authorized consumes Authorize's decision: a denied request is answered
// with the reason and the handler is not run.
func (m *Manager) authorized(next HandlerFunc) HandlerFunc {
	return func(ctx context.Context, req *Request) error {
		d := m.Authorize(req)
		if !d.Allowed {
			req.Logger.Info("command denied", logx.String("reason", d.Reason))
			return usageError(d.Reason)
		}
		return next(ctx, req)
	}
}

func (m *Manager) mwAudit(cmd *Command) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		if !cmd.Admin || m.store == nil {
			return next
		}
		return func(ctx context.Context, req *Request) error {
			start := time.Now()
			err := next(ctx, req)
			e := storage.AuditEntry{
				At:            start,
				ActorID:       req.FromID,
				ActorUsername: req.Message.FromUsername,
				ChatID:        req.Chat.ChatID,
				Command:       cmd.Name,
				Args:          strings.Join(req.Args, " "),
				OK:            err == nil,
				TookMS:        time.Since(start).Milliseconds(),
			}
			if err != nil {
				e.Error = err.Error()
			}
			if aerr := m.store.AppendAudit(context.WithoutCancel(ctx), e); aerr != nil {
				req.Logger.Warn("audit write failed", logx.Err(aerr))
			}
			return err
		}
	}
}

func (m *Manager) tryEnqueue(fn func()) bool {
	select {
	case m.jobs <- fn:
		return true
	default:
		return false
	}
}

// DispatchLoop routes updates to a small worker pool until ctx is done or
// updates is closed.
func (m *Manager) DispatchLoop(ctx context.Context, updates <-chan kit.Update, workers int) error {
	if workers <= 0 {
		workers = 2
	}
	sup := rtsup.New(ctx,
		rtsup.WithLogger(m.log.With(logx.String("comp", "commands.dispatch"))),
		rtsup.WithCancelOnError(false),
	)
	m.log.Info("command dispatcher started", logx.Int("workers", workers), logx.Int("job_queue_cap", cap(m.jobs)))

	for i := range workers {
		sup.GoRestart("command.worker."+strconv.Itoa(i), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job := <-m.jobs:
					job()
				}
			}
		}, rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second))
	}

	defer func() {
		sup.Cancel()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		m.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			run := m.prepare(ctx, up)
			if run == nil {
				continue
			}
			if !m.tryEnqueue(run) {
				m.log.Warn("command dropped (queue full)", logx.Int64("chat_id", up.Message.ChatID))
			}
		}
	}
}

func (m *Manager) save(req *Request) {
	if m.saver == nil {
		return
	}
	if err := m.saver.Save(); err != nil {
		req.Logger.Error("save after command failed", logx.Err(err))
	}
}
