// ABOUTME: Coordinator fanning commands out to agents with per-agent delay.
// ABOUTME: Resolves immediately (fire-and-forget) or once every agent reports an outcome.

package agent

import (
	"context"
	"log/slog"
	"time"
)

// BroadcastRequest is one command for every agent.
type BroadcastRequest struct {
	Command string
	Delay   time.Duration
	Wait    bool
}

// SendRequest is one command for a single agent.
type SendRequest struct {
	Command string
	Delay   time.Duration
	Wait    bool
}

// Outcome is one agent's result: a response or an error.
type Outcome struct {
	Response string
	Err      error
}

// BroadcastResult aggregates a broadcast. Responses is only populated when
// the request waited; Complete reports that every agent reported.
type BroadcastResult struct {
	Sent      int
	Complete  bool
	Responses map[string]Outcome
}

type addressedOutcome struct {
	address string
	outcome Outcome
}

// Coordinator dispatches commands through a Registry. It keeps no state
// between calls.
type Coordinator struct {
	registry *Registry
	logger   *slog.Logger
}

// NewCoordinator creates a coordinator over registry.
func NewCoordinator(registry *Registry, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		registry: registry,
		logger:   logger.With("component", "coordinator"),
	}
}

// Broadcast sends req.Command to every agent after req.Delay. Without Wait
// it returns as soon as the work is scheduled. With Wait it returns once
// every agent has an outcome; if ctx ends first the partial result is
// returned together with ctx's error, missing agents carrying that error.
func (c *Coordinator) Broadcast(ctx context.Context, req BroadcastRequest) (*BroadcastResult, error) {
	if err := checkCommand(req.Command); err != nil {
		return nil, err
	}

	agents := c.registry.Agents()
	result := &BroadcastResult{
		Sent:      len(agents),
		Responses: make(map[string]Outcome, len(agents)),
	}
	if len(agents) == 0 {
		result.Complete = true
		return result, nil
	}

	c.logger.Info("broadcasting command",
		"agents", len(agents),
		"delay", req.Delay,
		"wait", req.Wait)

	if !req.Wait {
		detached := context.WithoutCancel(ctx)
		for _, a := range agents {
			go c.fireAndForget(detached, a, req.Command, req.Delay)
		}
		return result, nil
	}

	// Buffered to N so no agent goroutine blocks once the caller stops listening.
	outcomes := make(chan addressedOutcome, len(agents))
	for _, a := range agents {
		go func(a *Agent) {
			resp, err := c.dispatch(ctx, a, req.Command, req.Delay)
			outcomes <- addressedOutcome{address: a.Address(), outcome: Outcome{Response: resp, Err: err}}
		}(a)
	}

	for len(result.Responses) < len(agents) {
		select {
		case o := <-outcomes:
			result.Responses[o.address] = o.outcome
		case <-ctx.Done():
			for _, a := range agents {
				if _, ok := result.Responses[a.Address()]; !ok {
					result.Responses[a.Address()] = Outcome{Err: &CommandError{Address: a.Address(), Err: ctx.Err()}}
				}
			}
			return result, ctx.Err()
		}
	}

	result.Complete = true
	return result, nil
}

// Send runs req.Command on the agent at ip:port after req.Delay. An unknown
// server fails synchronously with ErrServerNotFound. Without Wait it returns
// an empty response as soon as the work is scheduled.
func (c *Coordinator) Send(ctx context.Context, ip string, port int, req SendRequest) (string, error) {
	if err := checkCommand(req.Command); err != nil {
		return "", err
	}
	a, err := c.registry.Find(ip, port)
	if err != nil {
		return "", err
	}

	if !req.Wait {
		go c.fireAndForget(context.WithoutCancel(ctx), a, req.Command, req.Delay)
		return "", nil
	}
	return c.dispatch(ctx, a, req.Command, req.Delay)
}

func (c *Coordinator) fireAndForget(ctx context.Context, a *Agent, command string, delay time.Duration) {
	resp, err := c.dispatch(ctx, a, command, delay)
	if err != nil {
		c.logger.Warn("command failed", "server", a.Address(), "error", err)
		return
	}
	c.logger.Debug("command completed", "server", a.Address(), "bytes", len(resp))
}

// dispatch waits out delay on its own timer and then executes.
func (c *Coordinator) dispatch(ctx context.Context, a *Agent, command string, delay time.Duration) (string, error) {
	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return "", &CommandError{Address: a.Address(), Err: ctx.Err()}
		}
	}
	return a.Execute(ctx, command)
}
