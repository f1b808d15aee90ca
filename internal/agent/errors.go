// ABOUTME: Error values returned by agents, the registry, and the broadcast coordinator.
// ABOUTME: CommandError carries the server address alongside the underlying cause.

package agent

import (
	"errors"
	"fmt"

	"github.com/2389/rcon-gateway/internal/rcon"
)

// Caller-level errors. These are reported synchronously and never affect a connection.
var (
	ErrEmptyCommand    = errors.New("command is required")
	ErrCommandTooLong  = fmt.Errorf("command longer than %d bytes", rcon.MaxCommandLength)
	ErrServerNotFound  = errors.New("server not found")
	ErrDuplicateServer = errors.New("duplicate server address")
)

// Command outcome errors.
var (
	ErrNotConnected       = errors.New("server has never been connected")
	ErrGaveUp             = errors.New("reconnect policy gave up")
	ErrAgentStopped       = errors.New("agent stopped")
	ErrAlreadyRunning     = errors.New("agent already running")
	ErrUnexpectedResponse = errors.New("response received with no command in flight")
)

// CommandError is the failure outcome of a command on one server.
type CommandError struct {
	Address string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %v", e.Address, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}
