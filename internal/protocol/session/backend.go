package session

import (
	"errors"

	"github.com/danmuck/rspstub/internal/protocol/command"
)

// ErrNotImplemented marks a recognized command the backend does not handle.
// The session answers it like an unsupported command.
var ErrNotImplemented = errors.New("session: command not implemented")

// Backend executes decoded commands. The returned bytes are the reply
// payload; the session adds the $...#hh framing. Any error turns into the
// empty unsupported reply.
type Backend interface {
	HandleCommand(cmd command.Command) ([]byte, error)
}

// BackendFunc adapts a function to Backend.
type BackendFunc func(cmd command.Command) ([]byte, error)

func (f BackendFunc) HandleCommand(cmd command.Command) ([]byte, error) {
	return f(cmd)
}
