// ABOUTME: Per-server FIFO of commands with at most one command in flight.
// ABOUTME: Buffers commands until authenticated and pairs each response with the oldest command.

package agent

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/rcon-gateway/internal/rcon"
)

// PendingCommand is a command plus its single-shot result slot.
type PendingCommand struct {
	ID      string
	Command string
	Created time.Time

	once     sync.Once
	done     chan struct{}
	response string
	err      error
}

func newPendingCommand(command string) *PendingCommand {
	return &PendingCommand{
		ID:      uuid.New().String(),
		Command: command,
		Created: time.Now(),
		done:    make(chan struct{}),
	}
}

// resolve fulfils the command. Only the first call has any effect.
func (p *PendingCommand) resolve(response string, err error) bool {
	resolved := false
	p.once.Do(func() {
		p.response = response
		p.err = err
		close(p.done)
		resolved = true
	})
	return resolved
}

// Wait blocks until the command resolves or ctx ends. A result arriving
// after ctx ends is discarded.
func (p *PendingCommand) Wait(ctx context.Context) (string, error) {
	select {
	case <-p.done:
		return p.response, p.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// TransmitFunc writes one command to the current connection.
type TransmitFunc func(command string) error

// CommandQueue serializes commands over a connection that supports a single
// outstanding request. It is not safe for concurrent use; the owning agent
// goroutine is its only caller.
type CommandQueue struct {
	items    []*PendingCommand
	inFlight bool
	transmit TransmitFunc
}

// NewCommandQueue returns an empty queue that is not ready to transmit.
func NewCommandQueue() *CommandQueue {
	return &CommandQueue{}
}

// Enqueue appends pc. If the queue is ready and idle the head is sent
// immediately. A transmit error is returned and the caller must treat it as
// a lost connection.
func (q *CommandQueue) Enqueue(pc *PendingCommand) error {
	q.items = append(q.items, pc)
	return q.flush()
}

// OnAuthenticated marks the queue ready and sends the head, if any, once.
func (q *CommandQueue) OnAuthenticated(transmit TransmitFunc) error {
	q.transmit = transmit
	q.inFlight = false
	return q.flush()
}

// OnResponse fulfils the in-flight command with payload and sends the next.
func (q *CommandQueue) OnResponse(payload string) error {
	if !q.inFlight || len(q.items) == 0 {
		return ErrUnexpectedResponse
	}

	q.popHead().resolve(payload, nil)

	return q.flush()
}

// OnConnectionLost fails the in-flight command and everything queued behind
// it with cause, and stops transmitting until the next OnAuthenticated.
func (q *CommandQueue) OnConnectionLost(cause error) {
	items := q.items
	q.items = nil
	q.inFlight = false
	q.transmit = nil

	for _, pc := range items {
		pc.resolve("", cause)
	}
}

// Len returns the number of unresolved commands, including the one in flight.
func (q *CommandQueue) Len() int {
	return len(q.items)
}

// InFlight reports whether a command has been sent and not yet answered.
func (q *CommandQueue) InFlight() bool {
	return q.inFlight
}

func (q *CommandQueue) flush() error {
	for q.transmit != nil && !q.inFlight && len(q.items) > 0 {
		// Marked before the write so a failed write still counts as transmitted.
		q.inFlight = true
		err := q.transmit(q.items[0].Command)
		if err == nil {
			return nil
		}
		if !errors.Is(err, rcon.ErrCommandTooLong) {
			return err
		}

		// Refused before anything reached the wire; the session is intact.
		head := q.popHead()
		head.resolve("", err)
	}
	return nil
}

func (q *CommandQueue) popHead() *PendingCommand {
	head := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	q.inFlight = false
	return head
}
