package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"strconv"
	"strings"

	"scraperbot/internal/config"
	"scraperbot/internal/source"
	kit "scraperbot/internal/transport"
)

const helpText = `
commands:
    /start, /help - bot help
    /chatinfo - show chat info

admin commands:
    /watch &lt;url&gt; - add link to current chat
    /unwatch &lt;url&gt; - remove link from current chat
    /unwatch - remove all links from current chat
    /admin [user_id or reply] - add admin
    /admin [user_id or reply] false - remove admin

admin commands in private chat:
    /watch &lt;chat_id&gt; &lt;url&gt; - add link to chat by id
    /unwatch &lt;chat_id&gt; &lt;url&gt; - remove link from chat by id
    /unwatch &lt;chat_id&gt; - remove all links from chat by id
`

func (m *Manager) builtins() []Command {
	return []Command{
		{Name: "start", Aliases: []string{"help"}, Description: "bot help", Handle: m.help},
		{Name: "chatinfo", Description: "show chat info", Handle: m.chatInfo},
		{Name: "watch", Description: "add link to a chat", Admin: true, Handle: m.watch},
		{Name: "unwatch", Description: "remove links from a chat", Admin: true, Handle: m.unwatch},
		{Name: "admin", Description: "add or remove an admin", Admin: true, Handle: m.admin},
	}
}

func (m *Manager) help(ctx context.Context, req *Request) error {
	return req.Reply(ctx, helpText, true)
}

// chatInfo records the chat's metadata (for chats the bot already serves)
// and replies with the chat's record.
func (m *Manager) chatInfo(ctx context.Context, req *Request) error {
	msg := req.Message
	info := kit.DescribeChat(msg.ChatID, msg.ChatType, msg.ChatTitle, msg.ChatUsername)

	var rec any
	var updated bool
	_ = m.cfg.Update(func(c *config.Config) error {
		updated = c.UpdateChatInfo(config.ChatInfo{
			ID:        info.ID,
			ShiftedID: info.ShiftedID,
			Mention:   info.Mention,
			Title:     info.Title,
		})
		if ch := c.Chat(info.ID); ch != nil {
			cp := *ch
			cp.Links = append([]config.LinkEntry(nil), ch.Links...)
			rec = cp
		}
		return nil
	})
	if updated {
		m.save(req)
	}
	if rec == nil {
		rec = struct {
			ID        int64  `json:"id"`
			Title     string `json:"title"`
			Mention   string `json:"mention"`
			URL       string `json:"url"`
			ShiftedID int64  `json:"shifted_id"`
		}{info.ID, info.Title, info.Mention, info.URL, info.ShiftedID}
	}

	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	return req.Reply(ctx, "<code>"+html.EscapeString(string(b))+"</code>", true)
}

// watchArgs reads "[chat_id] <url>" (chat_id only in private chats) and
// returns the target chat and the link. With optionalLink the url may be
// omitted and link is zero.
func (m *Manager) watchArgs(req *Request, optionalLink bool) (int64, source.Link, error) {
	private := req.Message.IsPrivate()
	args := req.Args

	usage := "usage: /" + req.Command
	minArgs, maxArgs := 0, 1
	if private {
		usage += " <chat_id>"
		minArgs++
		maxArgs++
	}
	if optionalLink {
		usage += " [url]"
	} else {
		usage += " <url>"
		minArgs++
	}
	if len(args) < minArgs || len(args) > maxArgs {
		return 0, source.Link{}, usageError(usage)
	}

	chatID := req.Chat.ChatID
	var rawURL string
	if private {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return 0, source.Link{}, usageError(fmt.Sprintf("invalid chat id %q", args[0]))
		}
		chatID = id
		args = args[1:]
	}
	if len(args) > 0 {
		rawURL = args[0]
	}
	if rawURL == "" {
		return chatID, source.Link{}, nil
	}
	link, err := m.reg.ParseURL(rawURL)
	if err != nil {
		return 0, source.Link{}, usageError(err.Error())
	}
	return chatID, link, nil
}

func (m *Manager) watch(ctx context.Context, req *Request) error {
	chatID, link, err := m.watchArgs(req, false)
	if err != nil {
		return err
	}
	var added bool
	_ = m.cfg.Update(func(c *config.Config) error {
		added = c.AddLink(chatID, link)
		return nil
	})
	if !added {
		return req.Reply(ctx, fmt.Sprintf("%s already exists in chat %d", link, chatID), false)
	}
	m.save(req)
	return req.Reply(ctx, fmt.Sprintf("added %s to chat %d", link, chatID), false)
}

func (m *Manager) unwatch(ctx context.Context, req *Request) error {
	chatID, link, err := m.watchArgs(req, true)
	if err != nil {
		return err
	}

	if !link.IsZero() {
		var removed bool
		_ = m.cfg.Update(func(c *config.Config) error {
			removed = c.RemoveLink(chatID, link)
			return nil
		})
		if !removed {
			return req.Reply(ctx, fmt.Sprintf("%s does not exist in chat %d", link, chatID), false)
		}
		m.save(req)
		return req.Reply(ctx, fmt.Sprintf("removed %s from chat %d", link, chatID), false)
	}

	var n int
	_ = m.cfg.Update(func(c *config.Config) error {
		n = c.RemoveAllLinks(chatID)
		return nil
	})
	if n > 0 {
		m.save(req)
	}
	return req.Reply(ctx, fmt.Sprintf("removed all links from chat %d", chatID), false)
}

func (m *Manager) admin(ctx context.Context, req *Request) error {
	const usage = "usage: /admin [user_id] [true|false]"
	args := req.Args
	var userID int64
	add := true

	switch len(args) {
	case 0:
	case 1:
		if id, err := strconv.ParseInt(args[0], 10, 64); err == nil && id > 0 {
			userID = id
		} else {
			add = !strings.EqualFold(args[0], "false")
		}
	case 2:
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return usageError(fmt.Sprintf("invalid user id %q", args[0]))
		}
		userID = id
		add = !strings.EqualFold(args[1], "false")
	default:
		return usageError(usage)
	}

	if userID == 0 {
		if req.Message.ReplyToFromID == 0 {
			return usageError("missing user id")
		}
		userID = req.Message.ReplyToFromID
	}

	var changed bool
	_ = m.cfg.Update(func(c *config.Config) error {
		if add {
			changed = c.AddAdmin(userID)
		} else {
			changed = c.RemoveAdmin(userID)
		}
		return nil
	})
	if changed {
		m.save(req)
	}

	var text string
	switch {
	case add && changed:
		text = fmt.Sprintf("added admin %d", userID)
	case add:
		text = fmt.Sprintf("user %d is already an admin", userID)
	case changed:
		text = fmt.Sprintf("removed admin %d", userID)
	default:
		text = fmt.Sprintf("user %d is not an admin", userID)
	}
	return req.Reply(ctx, text, false)
}
