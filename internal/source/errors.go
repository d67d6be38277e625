package source

import (
	"errors"
	"fmt"
)

var (
	// ErrNoParser means no parse strategy is registered for a link type.
	// The loader treats it as a confirmed empty fetch.
	ErrNoParser = errors.New("no parser registered")
	// ErrUnknownType means the link type has no URL template.
	ErrUnknownType = errors.New("unknown link type")
)

// FetchError wraps a transport, timeout, or remote failure for one link.
type FetchError struct {
	Link Link
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Link, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError wraps malformed or unexpected remote content for one link.
type ParseError struct {
	Link Link
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Link, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
