// ABOUTME: A single RCON session to one game server: dial, authenticate, send, receive.
// ABOUTME: Reports lifecycle and responses as typed events on a channel; never retries.

package rcon

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"
)

// Connection errors
var (
	ErrAuthFailed       = errors.New("rcon authentication failed")
	ErrNotAuthenticated = errors.New("rcon connection not authenticated")
	ErrRequestInFlight  = errors.New("rcon request already in flight")
	ErrUnexpectedPacket = errors.New("unexpected rcon packet")
	ErrClosed           = errors.New("rcon connection closed")
	ErrCommandTooLong   = errors.New("rcon command too long")
)

// Default timeouts used when Options leaves them zero.
const (
	DefaultDialTimeout  = 5 * time.Second
	DefaultWriteTimeout = 10 * time.Second
)

// eventBufferSize covers the events a connection can emit before the owner
// drains them: connected, authenticated, one response and a terminal event.
const eventBufferSize = 8

// EventKind identifies what happened on a connection.
type EventKind int

const (
	EventConnected EventKind = iota
	EventAuthenticated
	EventResponse
	EventError
	EventClosed
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventAuthenticated:
		return "authenticated"
	case EventResponse:
		return "response"
	case EventError:
		return "error"
	case EventClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Event is delivered on Conn.Events. Body is set for EventResponse and Err
// for EventError.
type Event struct {
	Kind EventKind
	Body string
	Err  error
}

// ContextDialer opens the underlying transport. *net.Dialer satisfies it.
type ContextDialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Options tunes a Conn. The zero value is usable.
type Options struct {
	DialTimeout  time.Duration
	WriteTimeout time.Duration
	Dialer       ContextDialer
	Logger       *slog.Logger
}

// request tracks the single command awaiting its response.
type request struct {
	id       int32
	sentinel int32
	body     strings.Builder
}

// Conn is one RCON session. Open must be called exactly once; after a
// terminal event (EventError or EventClosed) the Conn is dead and a new one
// must be created to reconnect.
type Conn struct {
	addr     string
	password string
	opts     Options
	logger   *slog.Logger

	events       chan Event
	done         chan struct{}
	closeOnce    sync.Once
	terminalOnce sync.Once

	mu           sync.Mutex
	netConn      net.Conn
	authed       bool
	closed       bool
	nextID       int32
	inflight     *request
	lastSentinel int32
}

// New creates an unopened connection to addr ("host:port").
func New(addr, password string, opts Options) *Conn {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = DefaultDialTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if opts.Dialer == nil {
		opts.Dialer = &net.Dialer{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Conn{
		addr:     addr,
		password: password,
		opts:     opts,
		logger:   logger.With("server", addr),
		events:   make(chan Event, eventBufferSize),
		done:     make(chan struct{}),
	}
}

// Events returns the channel on which lifecycle events and responses arrive.
// Exactly one terminal event is emitted per Conn unless Close was called first.
func (c *Conn) Events() <-chan Event {
	return c.events
}

// Open dials the server and authenticates. Progress is reported as
// EventConnected then EventAuthenticated; any failure is reported as
// EventError and also returned.
func (c *Conn) Open(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, c.opts.DialTimeout)
	defer cancel()

	nc, err := c.opts.Dialer.DialContext(dialCtx, "tcp", c.addr)
	if err != nil {
		err = fmt.Errorf("dialing %s: %w", c.addr, err)
		c.terminate(err)
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = nc.Close()
		return ErrClosed
	}
	c.netConn = nc
	c.mu.Unlock()

	c.emit(Event{Kind: EventConnected})

	reader := newReader(nc)
	if err := c.authenticate(nc, reader); err != nil {
		c.terminate(err)
		return err
	}

	c.mu.Lock()
	c.authed = true
	c.mu.Unlock()

	c.emit(Event{Kind: EventAuthenticated})

	go c.readLoop(reader)
	return nil
}

// authenticate performs the credential exchange under the dial timeout.
func (c *Conn) authenticate(nc net.Conn, reader *bufio.Reader) error {
	if err := nc.SetDeadline(time.Now().Add(c.opts.DialTimeout)); err != nil {
		return fmt.Errorf("setting auth deadline: %w", err)
	}
	defer func() { _ = nc.SetDeadline(time.Time{}) }()

	c.mu.Lock()
	id := c.newIDLocked()
	c.mu.Unlock()

	if err := WritePacket(nc, Packet{ID: id, Type: TypeAuth, Body: c.password}); err != nil {
		return fmt.Errorf("writing auth packet: %w", err)
	}

	for {
		p, err := ReadPacket(reader)
		if err != nil {
			return fmt.Errorf("reading auth response: %w", err)
		}

		switch {
		case p.Type == TypeResponseValue:
			// Source servers send an empty RESPONSE_VALUE before the auth reply.
			continue
		case p.Type == TypeAuthResponse && p.ID == AuthFailedID:
			return ErrAuthFailed
		case p.Type == TypeAuthResponse && p.ID == id:
			return nil
		default:
			return fmt.Errorf("%w during auth: id=%d type=%d", ErrUnexpectedPacket, p.ID, p.Type)
		}
	}
}

// Send transmits one command. Only one command may be in flight; its response
// is delivered as EventResponse. ErrCommandTooLong leaves the session usable;
// after any other error the connection is unusable and the caller should
// Close it.
func (c *Conn) Send(command string) error {
	if len(command) > MaxCommandLength {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrCommandTooLong, len(command), MaxCommandLength)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if !c.authed {
		c.mu.Unlock()
		return ErrNotAuthenticated
	}
	if c.inflight != nil {
		c.mu.Unlock()
		return ErrRequestInFlight
	}

	req := &request{id: c.newIDLocked(), sentinel: c.newIDLocked()}

	// The empty RESPONSE_VALUE after the command is mirrored back by the
	// server once the command's (possibly multi-packet) output is complete.
	var buf bytes.Buffer
	err := (Packet{ID: req.id, Type: TypeExecCommand, Body: command}).Encode(&buf)
	if err == nil {
		err = (Packet{ID: req.sentinel, Type: TypeResponseValue}).Encode(&buf)
	}
	if err != nil {
		c.mu.Unlock()
		return err
	}

	c.inflight = req
	nc := c.netConn
	c.mu.Unlock()

	if err := nc.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
		return fmt.Errorf("setting write deadline: %w", err)
	}
	if _, err := nc.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("writing command: %w", err)
	}

	c.logger.Debug("rcon command sent", "id", req.id, "bytes", buf.Len())
	return nil
}

// Close tears the session down. It is safe to call multiple times and from
// any goroutine. No further events are delivered after Close.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.authed = false
		nc := c.netConn
		c.mu.Unlock()

		close(c.done)
		if nc != nil {
			err = nc.Close()
		}
	})
	return err
}

// readLoop consumes server packets until the session ends.
func (c *Conn) readLoop(reader *bufio.Reader) {
	for {
		p, err := ReadPacket(reader)
		if err != nil {
			if errors.Is(err, io.EOF) {
				c.terminate(nil)
			} else {
				c.terminate(fmt.Errorf("reading response: %w", err))
			}
			return
		}

		body, complete, err := c.accept(p)
		if err != nil {
			c.terminate(err)
			return
		}
		if complete && !c.emit(Event{Kind: EventResponse, Body: body}) {
			return
		}
	}
}

// accept folds a packet into the in-flight request. It reports the full body
// once the sentinel mirror arrives.
func (c *Conn) accept(p Packet) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	req := c.inflight
	if req == nil {
		// Some servers answer the sentinel with a second trailing packet.
		if p.ID == c.lastSentinel && p.ID != 0 {
			return "", false, nil
		}
		return "", false, fmt.Errorf("%w while idle: id=%d type=%d", ErrUnexpectedPacket, p.ID, p.Type)
	}
	if p.Type != TypeResponseValue {
		return "", false, fmt.Errorf("%w: id=%d type=%d", ErrUnexpectedPacket, p.ID, p.Type)
	}
	if p.ID == 0 {
		return "", false, fmt.Errorf("%w: id=0", ErrUnexpectedPacket)
	}

	switch p.ID {
	case req.id:
		req.body.WriteString(p.Body)
		return "", false, nil
	case req.sentinel:
		c.inflight = nil
		c.lastSentinel = req.sentinel
		return req.body.String(), true, nil
	case c.lastSentinel:
		return "", false, nil
	default:
		return "", false, fmt.Errorf("%w: id=%d want %d", ErrUnexpectedPacket, p.ID, req.id)
	}
}

// terminate closes the transport and emits the single terminal event. A nil
// cause means the server closed the session cleanly.
func (c *Conn) terminate(cause error) {
	c.terminalOnce.Do(func() {
		c.mu.Lock()
		c.authed = false
		c.inflight = nil
		nc := c.netConn
		c.mu.Unlock()

		if nc != nil {
			_ = nc.Close()
		}

		if cause == nil {
			c.emit(Event{Kind: EventClosed})
			return
		}
		c.emit(Event{Kind: EventError, Err: cause})
	})
}

// emit delivers an event unless the connection was closed by its owner.
func (c *Conn) emit(ev Event) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.events <- ev:
		return true
	case <-c.done:
		return false
	}
}

// newIDLocked returns the next positive request id. Must be called with mu held.
func (c *Conn) newIDLocked() int32 {
	c.nextID++
	if c.nextID <= 0 {
		c.nextID = 1
	}
	return c.nextID
}
