package config

import (
	"slices"

	"scraperbot/internal/source"
)

func (c *Config) IsAdmin(userID int64) bool { return slices.Contains(c.Admins, userID) }

// AddAdmin reports whether the user was added.
func (c *Config) AddAdmin(userID int64) bool {
	if c.IsAdmin(userID) {
		return false
	}
	c.Admins = append(c.Admins, userID)
	return true
}

// RemoveAdmin reports whether the user was an admin.
func (c *Config) RemoveAdmin(userID int64) bool {
	i := slices.Index(c.Admins, userID)
	if i < 0 {
		return false
	}
	c.Admins = slices.Delete(c.Admins, i, i+1)
	return true
}

// Chat returns the chat with the given id, or nil.
func (c *Config) Chat(chatID int64) *Chat {
	for i := range c.Chats {
		if c.Chats[i].ID == chatID {
			return &c.Chats[i]
		}
	}
	return nil
}

func (c *Config) chatOrCreate(chatID int64) *Chat {
	if ch := c.Chat(chatID); ch != nil {
		return ch
	}
	c.Chats = append(c.Chats, Chat{ID: chatID, Links: []LinkEntry{}})
	return &c.Chats[len(c.Chats)-1]
}

// Entry returns the chat's entry for link, or nil.
func (ch *Chat) Entry(link source.Link) *LinkEntry {
	for i := range ch.Links {
		if ch.Links[i].Type == link.Type && ch.Links[i].ID == link.ID {
			return &ch.Links[i]
		}
	}
	return nil
}

func (c *Config) HasLink(chatID int64, link source.Link) bool {
	ch := c.Chat(chatID)
	return ch != nil && ch.Entry(link) != nil
}

// AddLink starts watching link in the chat with a zero watermark, creating
// the chat when needed. It reports whether the link was new.
func (c *Config) AddLink(chatID int64, link source.Link) bool {
	if c.HasLink(chatID, link) {
		return false
	}
	ch := c.chatOrCreate(chatID)
	ch.Links = append(ch.Links, LinkEntry{Type: link.Type, ID: link.ID})
	return true
}

// RemoveLink reports whether the chat watched link.
func (c *Config) RemoveLink(chatID int64, link source.Link) bool {
	ch := c.Chat(chatID)
	if ch == nil {
		return false
	}
	before := len(ch.Links)
	ch.Links = slices.DeleteFunc(ch.Links, func(e LinkEntry) bool {
		return e.Type == link.Type && e.ID == link.ID
	})
	return len(ch.Links) != before
}

// RemoveAllLinks clears the chat's links and returns how many were removed.
func (c *Config) RemoveAllLinks(chatID int64) int {
	ch := c.Chat(chatID)
	if ch == nil {
		return 0
	}
	n := len(ch.Links)
	ch.Links = []LinkEntry{}
	return n
}

// UpdateChatInfo records chat metadata for chats the bot already knows.
// It reports whether the chat exists.
func (c *Config) UpdateChatInfo(info ChatInfo) bool {
	ch := c.Chat(info.ID)
	if ch == nil {
		return false
	}
	ch.ShiftedID = info.ShiftedID
	ch.Mention = info.Mention
	ch.Title = info.Title
	return true
}
