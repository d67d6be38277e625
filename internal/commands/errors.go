package commands

import "errors"

// CommandError is a user-facing failure; its text is sent back as the reply.
type CommandError struct {
	Msg string
}

func (e *CommandError) Error() string { return e.Msg }

func usageError(msg string) error { return &CommandError{Msg: msg} }

// replyText is what the user sees for err.
func replyText(err error) string {
	var ce *CommandError
	if errors.As(err, &ce) {
		return ce.Msg
	}
	return "error: " + err.Error()
}
