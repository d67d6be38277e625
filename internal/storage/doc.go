// Package storage provides the small persistence layer used next to the
// config file: an append-only audit log of admin commands and a delivery
// journal that remembers which posts reached which chat.
package storage
