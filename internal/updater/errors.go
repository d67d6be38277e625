package updater

import (
	"fmt"

	"scraperbot/internal/source"
)

// DeliveryError is a failed send of one post to one chat. It stops that
// chat's batch for the cycle; the watermark stays at the last delivered post.
type DeliveryError struct {
	ChatID int64
	Link   source.Link
	PostID int64
	Err    error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver %s post %d to chat %d: %v", e.Link, e.PostID, e.ChatID, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
