// ABOUTME: Scriptable fake connections and helpers shared by the agent tests.
// ABOUTME: fakeServer hands out fakeConns that answer, drop, or refuse on demand.

package agent

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/2389/rcon-gateway/internal/rcon"
	"github.com/2389/rcon-gateway/internal/rcon/rcontest"
)

var errRefused = errors.New("connection refused")

type fakeReply struct {
	body  string
	delay time.Duration
	drop  bool
	hang  bool
}

// fakeServer records every dial and every transmitted command.
type fakeServer struct {
	mu     sync.Mutex
	refuse bool
	// strays is how many upcoming sessions push an unsolicited response
	// right after authenticating.
	strays int
	reply  func(cmd string) fakeReply
	dials  []time.Time
	sent   []string
}

func newFakeServer() *fakeServer {
	return &fakeServer{
		reply: func(cmd string) fakeReply { return fakeReply{body: "ok:" + cmd} },
	}
}

func (s *fakeServer) dial(ServerIdentity) Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dials = append(s.dials, time.Now())
	stray := s.strays > 0
	if stray {
		s.strays--
	}
	return &fakeConn{server: s, refuse: s.refuse, stray: stray, events: make(chan rcon.Event, 16)}
}

func (s *fakeServer) setStrays(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.strays = n
}

func (s *fakeServer) setRefuse(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refuse = v
}

func (s *fakeServer) setReply(fn func(cmd string) fakeReply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reply = fn
}

func (s *fakeServer) dialTimes() []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Time, len(s.dials))
	copy(out, s.dials)
	return out
}

func (s *fakeServer) sentCommands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.sent))
	copy(out, s.sent)
	return out
}

func (s *fakeServer) record(cmd string) fakeReply {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, cmd)
	return s.reply(cmd)
}

type fakeConn struct {
	server *fakeServer
	refuse bool
	stray  bool
	events chan rcon.Event

	mu     sync.Mutex
	closed bool
}

func (c *fakeConn) Open(context.Context) error {
	if c.refuse {
		c.events <- rcon.Event{Kind: rcon.EventError, Err: errRefused}
		return errRefused
	}
	c.events <- rcon.Event{Kind: rcon.EventConnected}
	c.events <- rcon.Event{Kind: rcon.EventAuthenticated}
	if c.stray {
		c.events <- rcon.Event{Kind: rcon.EventResponse, Body: "stray"}
	}
	return nil
}

func (c *fakeConn) Send(cmd string) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return rcon.ErrClosed
	}

	reply := c.server.record(cmd)
	if reply.hang {
		return nil
	}
	go func() {
		time.Sleep(reply.delay)
		if reply.drop {
			c.events <- rcon.Event{Kind: rcon.EventClosed}
			return
		}
		c.events <- rcon.Event{Kind: rcon.EventResponse, Body: reply.body}
	}()
	return nil
}

func (c *fakeConn) Events() <-chan rcon.Event {
	return c.events
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// runAgent starts a's loop and stops it when the test ends.
func runAgent(t *testing.T, a *Agent) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = a.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return cancel
}

func waitForState(t *testing.T, a *Agent, want ConnectionState) {
	t.Helper()
	require.Eventually(t, func() bool { return a.State() == want },
		2*time.Second, 5*time.Millisecond, "agent never reached %s", want)
}

// startRCONServer runs the in-process fake RCON server and returns an
// identity pointing at it.
func startRCONServer(t *testing.T, handler rcontest.Handler) (*rcontest.Server, ServerIdentity) {
	t.Helper()
	srv, err := rcontest.Listen("127.0.0.1:0", "secret", handler)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })

	host, portStr, err := net.SplitHostPort(srv.Addr())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	return srv, ServerIdentity{Hostname: "local", Name: "fake", IP: host, Port: port, Password: "secret"}
}
