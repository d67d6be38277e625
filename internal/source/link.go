package source

import (
	"errors"
	"strings"
)

// Link identifies a remote source by type (e.g. "vk") and a type-specific id.
// Two links are equal iff both fields are equal, so Link is usable as a map key.
type Link struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

func (l Link) String() string { return l.Type + ":" + l.ID }

func (l Link) IsZero() bool { return l.Type == "" && l.ID == "" }

func (l Link) Validate() error {
	if strings.TrimSpace(l.Type) == "" {
		return errors.New("link type is empty")
	}
	if strings.TrimSpace(l.ID) == "" {
		return errors.New("link id is empty")
	}
	return nil
}
