package commands

import (
	"scraperbot/internal/config"
)

// Decision is the result of an authorization check.
type Decision struct {
	Allowed bool
	Reason  string
}

var allow = Decision{Allowed: true}

// Authorize decides whether req may run an admin command. Channel posts
// carry no sender and skip the admin check; they are still public chats.
func (m *Manager) Authorize(req *Request) Decision {
	var admin, public bool
	m.cfg.View(func(c *config.Config) {
		admin = c.IsAdmin(req.FromID)
		public = c.PublicAdminCommandsEnabled
	})

	if req.FromID != 0 && !admin {
		return Decision{Reason: "permission denied"}
	}
	if !public && !req.Message.IsPrivate() {
		return Decision{Reason: "admin commands are disabled in public chats"}
	}
	return allow
}
