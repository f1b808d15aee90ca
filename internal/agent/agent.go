// ABOUTME: ServerAgent binding one RCON connection and one command queue to a server.
// ABOUTME: A single goroutine owns state, queue, connection, and the reconnect timer.

package agent

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/2389/rcon-gateway/internal/rcon"
)

// Connection is the session an agent drives. *rcon.Conn satisfies it.
type Connection interface {
	Open(ctx context.Context) error
	Send(command string) error
	Events() <-chan rcon.Event
	Close() error
}

// DialFunc creates an unopened connection for a server.
type DialFunc func(identity ServerIdentity) Connection

// Options configures an Agent. The zero value gives a 1s fixed reconnect
// delay, real RCON connections, and the default logger.
type Options struct {
	Policy   ReconnectPolicy
	Notifier *StateNotifier
	Logger   *slog.Logger
	Dial     DialFunc
	// ConnOptions is used by the default DialFunc.
	ConnOptions rcon.Options
	// FailFast rejects commands with ErrNotConnected until the agent has
	// authenticated at least once, instead of buffering them.
	FailFast bool
}

// Agent presents Execute for one server regardless of transient
// connectivity. Run must be running for commands to be accepted.
type Agent struct {
	identity ServerIdentity
	opts     Options
	logger   *slog.Logger

	submit  chan *PendingCommand
	done    chan struct{}
	started atomic.Bool

	state      atomic.Int32
	everAuthed atomic.Bool
	gaveUp     atomic.Bool

	// Owned by the Run goroutine.
	queue   *CommandQueue
	conn    Connection
	attempt int
	retry   *time.Timer
}

// NewAgent creates an agent for identity. Call Run to start it.
func NewAgent(identity ServerIdentity, opts Options) *Agent {
	if opts.Policy == nil {
		opts.Policy = FixedDelay{Delay: DefaultReconnectDelay}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	logger := opts.Logger.With("component", "agent", "server", identity.Address())
	if opts.Dial == nil {
		connOpts := opts.ConnOptions
		if connOpts.Logger == nil {
			connOpts.Logger = opts.Logger
		}
		opts.Dial = func(id ServerIdentity) Connection {
			return rcon.New(id.Address(), id.Password, connOpts)
		}
	}

	return &Agent{
		identity: identity,
		opts:     opts,
		logger:   logger,
		submit:   make(chan *PendingCommand),
		done:     make(chan struct{}),
		queue:    NewCommandQueue(),
	}
}

// Identity returns the server this agent talks to.
func (a *Agent) Identity() ServerIdentity {
	return a.identity
}

// Address returns the "ip:port" key of the server.
func (a *Agent) Address() string {
	return a.identity.Address()
}

// State returns the current connection state.
func (a *Agent) State() ConnectionState {
	return ConnectionState(a.state.Load())
}

// Submit hands command to the agent and returns its pending result. Commands
// submitted to one agent are transmitted in Submit order.
func (a *Agent) Submit(ctx context.Context, command string) (*PendingCommand, error) {
	if err := checkCommand(command); err != nil {
		return nil, err
	}
	if a.opts.FailFast && !a.everAuthed.Load() {
		return nil, ErrNotConnected
	}

	pc := newPendingCommand(command)
	select {
	case a.submit <- pc:
		return pc, nil
	case <-a.done:
		return nil, ErrAgentStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// checkCommand rejects commands that can never be transmitted.
func checkCommand(command string) error {
	if command == "" {
		return ErrEmptyCommand
	}
	if len(command) > rcon.MaxCommandLength {
		return ErrCommandTooLong
	}
	return nil
}

// Execute runs command and waits for its response. Failures are returned as
// *CommandError; ErrEmptyCommand and ErrCommandTooLong are returned as is.
// If ctx ends first the command still runs and its late result is discarded.
func (a *Agent) Execute(ctx context.Context, command string) (string, error) {
	pc, err := a.Submit(ctx, command)
	if err != nil {
		if errors.Is(err, ErrEmptyCommand) || errors.Is(err, ErrCommandTooLong) {
			return "", err
		}
		return "", &CommandError{Address: a.Address(), Err: err}
	}

	resp, err := pc.Wait(ctx)
	if err != nil {
		return "", &CommandError{Address: a.Address(), Err: err}
	}
	a.logger.Debug("command completed",
		"command_id", pc.ID,
		"latency", time.Since(pc.Created))
	return resp, nil
}

// Run drives the agent until ctx is cancelled. On exit the connection is
// closed and every unresolved command fails with ErrAgentStopped.
func (a *Agent) Run(ctx context.Context) error {
	if !a.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(a.done)

	a.logger.Info("agent started")
	a.connect(ctx)

	for {
		var events <-chan rcon.Event
		if a.conn != nil {
			events = a.conn.Events()
		}
		var retry <-chan time.Time
		if a.retry != nil {
			retry = a.retry.C
		}

		select {
		case <-ctx.Done():
			a.shutdown()
			return nil
		case pc := <-a.submit:
			a.enqueue(pc)
		case ev := <-events:
			a.handleEvent(ev)
		case <-retry:
			a.retry = nil
			a.connect(ctx)
		}
	}
}

func (a *Agent) connect(ctx context.Context) {
	a.setState(StateConnecting, nil)

	conn := a.opts.Dial(a.identity)
	a.conn = conn
	go func() {
		// Failures arrive as EventError on conn.Events().
		_ = conn.Open(ctx)
	}()
}

func (a *Agent) enqueue(pc *PendingCommand) {
	if a.gaveUp.Load() {
		pc.resolve("", ErrGaveUp)
		return
	}

	a.logger.Debug("command queued", "command_id", pc.ID, "queued", a.queue.Len())
	if err := a.queue.Enqueue(pc); err != nil {
		a.connectionLost(err)
	}
}

func (a *Agent) handleEvent(ev rcon.Event) {
	switch ev.Kind {
	case rcon.EventConnected:
		a.setState(StateConnected, nil)
	case rcon.EventAuthenticated:
		a.attempt = 0
		a.everAuthed.Store(true)
		a.setState(StateAuthenticated, nil)
		if err := a.queue.OnAuthenticated(a.conn.Send); err != nil {
			a.connectionLost(err)
		}
	case rcon.EventResponse:
		if err := a.queue.OnResponse(ev.Body); err != nil {
			a.connectionLost(err)
		}
	case rcon.EventError:
		a.connectionLost(ev.Err)
	case rcon.EventClosed:
		a.connectionLost(rcon.ErrClosed)
	}
}

// connectionLost drops the current connection, fails every pending command
// and schedules the next attempt.
func (a *Agent) connectionLost(cause error) {
	if a.conn != nil {
		_ = a.conn.Close()
		a.conn = nil
	}
	a.queue.OnConnectionLost(cause)
	a.setState(StateDisconnected, cause)

	a.attempt++
	delay, ok := a.opts.Policy.Next(a.attempt)
	if !ok {
		a.gaveUp.Store(true)
		a.logger.Error("giving up on server", "attempts", a.attempt-1, "error", cause)
		return
	}

	a.logger.Warn("connection lost, reconnecting",
		"error", cause,
		"attempt", a.attempt,
		"delay", delay)
	a.retry = time.NewTimer(delay)
}

func (a *Agent) shutdown() {
	if a.retry != nil {
		a.retry.Stop()
		a.retry = nil
	}
	if a.conn != nil {
		_ = a.conn.Close()
		a.conn = nil
	}
	a.queue.OnConnectionLost(ErrAgentStopped)
	a.setState(StateDisconnected, ErrAgentStopped)
	a.logger.Info("agent stopped")
}

func (a *Agent) setState(to ConnectionState, cause error) {
	from := ConnectionState(a.state.Swap(int32(to)))
	if from == to {
		return
	}

	a.logger.Debug("state changed", "from", from, "to", to)
	if a.opts.Notifier != nil {
		a.opts.Notifier.Publish(Transition{
			Address: a.Address(),
			From:    from,
			To:      to,
			Err:     cause,
			At:      time.Now(),
		})
	}
}
