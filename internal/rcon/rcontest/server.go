// ABOUTME: In-process fake RCON server for tests and the fake-rcon command.
// ABOUTME: Records every command with receive/respond timestamps and can drop sessions on demand.

package rcontest

import (
	"bufio"
	"bytes"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/2389/rcon-gateway/internal/rcon"
)

// Reply tells the server how to answer one command.
type Reply struct {
	Body  string
	Delay time.Duration
	// Drop closes the session instead of answering.
	Drop bool
}

// Handler produces the reply for a command.
type Handler func(command string) Reply

// Record is one command as seen by the server.
type Record struct {
	Command   string
	Received  time.Time
	Responded time.Time
}

// Server is a minimal RCON server. Commands on one session are answered in
// order; Reply.Delay holds back that answer and every answer queued after it.
type Server struct {
	Password string
	Handler  Handler
	// ChunkSize splits response bodies into several packets when > 0.
	ChunkSize int
	// TrailingPacket mimics servers that answer the sentinel with an extra
	// packet carrying the same id.
	TrailingPacket bool

	ln       net.Listener
	mu       sync.Mutex
	conns    map[net.Conn]struct{}
	accepted int
	authed   int
	records  []Record
	wg       sync.WaitGroup
	closed   bool
}

// NewServer creates a server that is not yet listening. Set ChunkSize and
// TrailingPacket before calling Start.
func NewServer(password string, handler Handler) *Server {
	if handler == nil {
		handler = EchoHandler
	}
	return &Server{
		Password: password,
		Handler:  handler,
		conns:    make(map[net.Conn]struct{}),
	}
}

// Listen starts a server on addr ("127.0.0.1:0" picks a free port).
func Listen(addr, password string, handler Handler) (*Server, error) {
	s := NewServer(password, handler)
	if err := s.Start(addr); err != nil {
		return nil, err
	}
	return s, nil
}

// Start begins accepting sessions on addr.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// EchoHandler answers "echo <text>" with text, "status" with a fixed status
// block, "drop" by closing the session and anything else with "ok".
func EchoHandler(command string) Reply {
	switch {
	case strings.HasPrefix(command, "echo "):
		return Reply{Body: strings.TrimPrefix(command, "echo ")}
	case command == "status":
		return Reply{Body: "hostname: fake-rcon\nversion : 1.0.0\nplayers : 0 humans, 0 bots (16 max)\n"}
	case command == "drop":
		return Reply{Drop: true}
	default:
		return Reply{Body: "ok"}
	}
}

// Addr returns the listening address.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Accepted returns how many TCP sessions have been accepted.
func (s *Server) Accepted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accepted
}

// Authenticated returns how many sessions passed the password check.
func (s *Server) Authenticated() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authed
}

// Records returns a copy of every command received so far.
func (s *Server) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// Commands returns the received command strings in arrival order.
func (s *Server) Commands() []string {
	records := s.Records()
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Command
	}
	return out
}

// DropAll closes every open session without stopping the listener.
func (s *Server) DropAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		_ = c.Close()
	}
}

// Close stops the listener and all sessions.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	var err error
	if s.ln != nil {
		err = s.ln.Close()
	}
	s.DropAll()
	s.wg.Wait()
	return err
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		nc, err := s.ln.Accept()
		if err != nil {
			return
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = nc.Close()
			return
		}
		s.conns[nc] = struct{}{}
		s.accepted++
		s.mu.Unlock()

		s.wg.Add(1)
		go s.serve(nc)
	}
}

func (s *Server) serve(nc net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, nc)
		s.mu.Unlock()
		_ = nc.Close()
	}()

	reader := bufio.NewReader(nc)
	if !s.handshake(nc, reader) {
		return
	}

	out := make(chan func() bool, 64)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for job := range out {
			if !job() {
				_ = nc.Close()
				for range out {
				}
				return
			}
		}
	}()
	defer func() {
		close(out)
		<-writerDone
	}()

	for {
		p, err := rcon.ReadPacket(reader)
		if err != nil {
			return
		}

		switch p.Type {
		case rcon.TypeExecCommand:
			idx := s.record(p.Body)
			reply := s.Handler(p.Body)
			id := p.ID
			out <- func() bool {
				if reply.Delay > 0 {
					time.Sleep(reply.Delay)
				}
				if reply.Drop {
					return false
				}
				s.markResponded(idx)
				return s.writeBody(nc, id, reply.Body)
			}
		case rcon.TypeResponseValue:
			id := p.ID
			out <- func() bool {
				if err := rcon.WritePacket(nc, rcon.Packet{ID: id, Type: rcon.TypeResponseValue}); err != nil {
					return false
				}
				if s.TrailingPacket {
					return rcon.WritePacket(nc, rcon.Packet{ID: id, Type: rcon.TypeResponseValue, Body: "\x01"}) == nil
				}
				return true
			}
		default:
			return
		}
	}
}

// handshake answers the auth packet the way Source servers do: an empty
// RESPONSE_VALUE followed by AUTH_RESPONSE.
func (s *Server) handshake(nc net.Conn, reader *bufio.Reader) bool {
	p, err := rcon.ReadPacket(reader)
	if err != nil || p.Type != rcon.TypeAuth {
		return false
	}

	id := p.ID
	ok := p.Body == s.Password
	if !ok {
		id = rcon.AuthFailedID
	}

	var buf bytes.Buffer
	_ = rcon.Packet{ID: p.ID, Type: rcon.TypeResponseValue}.Encode(&buf)
	_ = rcon.Packet{ID: id, Type: rcon.TypeAuthResponse}.Encode(&buf)
	if _, err := nc.Write(buf.Bytes()); err != nil {
		return false
	}

	if ok {
		s.mu.Lock()
		s.authed++
		s.mu.Unlock()
	}
	return ok
}

func (s *Server) writeBody(nc net.Conn, id int32, body string) bool {
	parts := []string{body}
	if s.ChunkSize > 0 && len(body) > s.ChunkSize {
		parts = parts[:0]
		for len(body) > s.ChunkSize {
			parts = append(parts, body[:s.ChunkSize])
			body = body[s.ChunkSize:]
		}
		parts = append(parts, body)
	}

	for _, part := range parts {
		if err := rcon.WritePacket(nc, rcon.Packet{ID: id, Type: rcon.TypeResponseValue, Body: part}); err != nil {
			return false
		}
	}
	return true
}

func (s *Server) record(command string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, Record{Command: command, Received: time.Now()})
	return len(s.records) - 1
}

func (s *Server) markResponded(idx int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[idx].Responded = time.Now()
}
