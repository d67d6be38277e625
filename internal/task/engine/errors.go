package engine

import "errors"

var ErrStopped = errors.New("worker pool stopped")

// PanicError is returned by Do when the job panicked.
type PanicError struct {
	Name  string
	Value any
	Stack string
}

func (e *PanicError) Error() string { return "job " + e.Name + " panicked" }
