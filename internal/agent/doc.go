// Package agent keeps one persistent RCON session per game server and
// dispatches commands over it.
//
// # Overview
//
// Each configured server gets an Agent. The Registry holds all of them in
// configuration order and the Coordinator fans commands out across them.
//
//	reg, err := agent.NewRegistry(identities, agent.Options{Logger: logger})
//	reg.Start(ctx)
//	coord := agent.NewCoordinator(reg, logger)
//
// # Agent
//
// An Agent runs a single goroutine (Run) that owns its connection state,
// its CommandQueue, the current rcon.Conn and the reconnect timer. Callers
// talk to it through a channel:
//
//   - Submit(ctx, cmd): queue a command and get a PendingCommand
//   - Execute(ctx, cmd): Submit and wait for the response
//   - State(): current ConnectionState
//
// States cycle Disconnected → Connecting → Connected → Authenticated and
// back to Disconnected on any error or close.
//
// # Command Queue
//
// RCON has no request ids a client can rely on, so responses are matched
// strictly in order with one command in flight:
//
//  1. Commands queued while not authenticated are held
//  2. On authentication the head is transmitted
//  3. Each response resolves the head and transmits the next
//  4. A lost connection fails the head and everything behind it
//
// A command is transmitted at most once; nothing is replayed after a
// reconnect. Empty commands and commands longer than rcon.MaxCommandLength
// are refused by Submit (ErrEmptyCommand, ErrCommandTooLong) and never
// touch the connection.
//
// # Reconnect Policy
//
// The policy is injected through Options.Policy:
//
//   - FixedDelay: same delay forever (default, 1s)
//   - ExponentialBackoff: growing delay capped at Max
//   - MaxAttempts: wraps another policy and gives up; later commands fail
//     with ErrGaveUp
//
// # Broadcast
//
// Coordinator.Broadcast runs the command on every agent after an independent
// per-agent delay. Without Wait it returns immediately; with Wait it
// resolves once every agent has reported a response or an error.
//
// # Transitions
//
// Every state change is published as a Transition on the StateNotifier.
// Registry.Subscribe streams them for all agents.
package agent
