// ABOUTME: Registry of every configured agent, keyed by ip:port in configuration order.
// ABOUTME: Starts and waits for agent loops and fans their transitions out to subscribers.

package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// ServerInfo is the listing view of one agent.
type ServerInfo struct {
	Hostname string          `json:"hostname"`
	Name     string          `json:"name"`
	IP       string          `json:"ip"`
	Port     int             `json:"port"`
	State    ConnectionState `json:"state"`
}

// Registry holds the agents for every configured server. It is immutable
// after construction and safe for concurrent use.
type Registry struct {
	agents   []*Agent
	byAddr   map[string]*Agent
	notifier *StateNotifier
	logger   *slog.Logger
	wg       sync.WaitGroup
}

// NewRegistry builds one agent per identity. opts is shared by every agent;
// a nil Notifier is replaced by the registry's own.
func NewRegistry(identities []ServerIdentity, opts Options) (*Registry, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Notifier == nil {
		opts.Notifier = NewStateNotifier(logger)
	}

	r := &Registry{
		agents:   make([]*Agent, 0, len(identities)),
		byAddr:   make(map[string]*Agent, len(identities)),
		notifier: opts.Notifier,
		logger:   logger.With("component", "registry"),
	}

	for _, id := range identities {
		addr := id.Address()
		if _, exists := r.byAddr[addr]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateServer, addr)
		}
		a := NewAgent(id, opts)
		r.agents = append(r.agents, a)
		r.byAddr[addr] = a
	}

	return r, nil
}

// Start launches every agent loop. They stop when ctx is cancelled.
func (r *Registry) Start(ctx context.Context) {
	for _, a := range r.agents {
		r.wg.Add(1)
		go func(a *Agent) {
			defer r.wg.Done()
			if err := a.Run(ctx); err != nil {
				r.logger.Error("agent exited", "server", a.Address(), "error", err)
			}
		}(a)
	}
	r.logger.Info("agents started", "count", len(r.agents))
}

// Wait blocks until every agent loop has exited, then closes all
// transition subscriptions.
func (r *Registry) Wait() {
	r.wg.Wait()
	r.notifier.Close()
}

// List returns every server in configuration order with its current state.
func (r *Registry) List() []ServerInfo {
	out := make([]ServerInfo, len(r.agents))
	for i, a := range r.agents {
		id := a.Identity()
		out[i] = ServerInfo{
			Hostname: id.Hostname,
			Name:     id.Name,
			IP:       id.IP,
			Port:     id.Port,
			State:    a.State(),
		}
	}
	return out
}

// Find returns the agent for ip and port.
func (r *Registry) Find(ip string, port int) (*Agent, error) {
	return r.FindAddress(JoinAddress(ip, port))
}

// FindAddress returns the agent keyed by "ip:port".
func (r *Registry) FindAddress(addr string) (*Agent, error) {
	a, ok := r.byAddr[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrServerNotFound, addr)
	}
	return a, nil
}

// Agents returns the agents in configuration order.
func (r *Registry) Agents() []*Agent {
	out := make([]*Agent, len(r.agents))
	copy(out, r.agents)
	return out
}

// Len returns the number of configured servers.
func (r *Registry) Len() int {
	return len(r.agents)
}

// AuthenticatedCount returns how many agents are currently authenticated.
func (r *Registry) AuthenticatedCount() int {
	n := 0
	for _, a := range r.agents {
		if a.State() == StateAuthenticated {
			n++
		}
	}
	return n
}

// Subscribe streams transitions of every agent until ctx is cancelled.
func (r *Registry) Subscribe(ctx context.Context) <-chan Transition {
	ch, _ := r.notifier.Subscribe(ctx, "")
	return ch
}

// SubscribeAddress streams transitions of the agent at address ("" for all)
// until ctx is cancelled. An unknown address yields ErrServerNotFound.
func (r *Registry) SubscribeAddress(ctx context.Context, address string) (<-chan Transition, error) {
	if address != "" {
		if _, err := r.FindAddress(address); err != nil {
			return nil, err
		}
	}
	ch, _ := r.notifier.Subscribe(ctx, address)
	return ch, nil
}
