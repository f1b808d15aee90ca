// ABOUTME: Translates configuration into the agent registry, reconnect policy and token verifiers
// ABOUTME: Keeps config parsing concerns out of the agent and auth packages

package gateway

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/2389/rcon-gateway/internal/agent"
	"github.com/2389/rcon-gateway/internal/auth"
	"github.com/2389/rcon-gateway/internal/config"
	"github.com/2389/rcon-gateway/internal/rcon"
	"github.com/2389/rcon-gateway/internal/store"
)

// Identities converts the configured server inventory, preserving order.
func Identities(cfg *config.Config) []agent.ServerIdentity {
	out := make([]agent.ServerIdentity, 0, len(cfg.Servers))
	for _, s := range cfg.Servers {
		out = append(out, agent.ServerIdentity{
			Hostname:     s.Hostname,
			Name:         s.Name,
			IP:           s.IP,
			Port:         int(s.Port),
			Password:     s.Password,
			ReceiverPort: int(s.ReceiverPort),
		})
	}
	return out
}

// ReconnectPolicy builds the policy described by the agents section.
func ReconnectPolicy(cfg config.AgentsConfig) agent.ReconnectPolicy {
	var policy agent.ReconnectPolicy
	switch cfg.ReconnectStrategy {
	case config.StrategyExponential:
		policy = agent.ExponentialBackoff{
			Initial:    cfg.ReconnectDelay,
			Max:        cfg.ReconnectMaxDelay,
			Multiplier: 2,
		}
	default:
		policy = agent.FixedDelay{Delay: cfg.ReconnectDelay}
	}

	if cfg.MaxAttempts > 0 {
		policy = agent.MaxAttempts{Policy: policy, Attempts: cfg.MaxAttempts}
	}
	return policy
}

// agentOptions assembles per-agent options from config.
func agentOptions(cfg *config.Config, logger *slog.Logger) agent.Options {
	return agent.Options{
		Policy:   ReconnectPolicy(cfg.Agents),
		Logger:   logger,
		FailFast: cfg.Agents.FailFast,
		ConnOptions: rcon.Options{
			DialTimeout:  cfg.Agents.DialTimeout,
			WriteTimeout: cfg.Agents.WriteTimeout,
			Logger:       logger,
		},
	}
}

// dbPath returns the API key database location. RCON_GATEWAY_DB_PATH
// overrides the config file.
func dbPath(cfg *config.Config) string {
	if envPath := os.Getenv("RCON_GATEWAY_DB_PATH"); envPath != "" {
		return envPath
	}
	return cfg.Database.Path
}

// OpenStore opens the API key store, or returns nil when no database is configured.
func OpenStore(cfg *config.Config) (*store.SQLiteStore, error) {
	path := dbPath(cfg)
	if path == "" {
		return nil, nil
	}
	s, err := store.NewSQLiteStore(path)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// buildVerifier chains every configured token source. keys may be nil.
func buildVerifier(cfg *config.Config, keys store.APIKeyStore, logger *slog.Logger) (auth.Chain, error) {
	var chain auth.Chain

	static := auth.NewStaticTokens(cfg.Auth.Tokens)
	if static.Len() > 0 {
		chain = append(chain, static)
	}
	if cfg.Auth.JWTSecret != "" {
		chain = append(chain, auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret)))
	}
	if keys != nil {
		chain = append(chain, auth.NewAPIKeyVerifier(keys, logger))
	}

	if len(chain) == 0 {
		return nil, fmt.Errorf("no API credentials configured: set auth.tokens, auth.jwt_secret or database.path")
	}

	logger.Info("token verification enabled",
		"static_tokens", static.Len(),
		"jwt", cfg.Auth.JWTSecret != "",
		"api_keys", keys != nil)
	return chain, nil
}
