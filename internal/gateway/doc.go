// Package gateway serves the HTTP command API in front of the agent registry.
//
// # Overview
//
// A Gateway owns the agent Registry, the broadcast Coordinator, the optional
// API key store and the HTTP server. New builds everything from a
// config.Config; Run starts the agents, listens (plain TCP or Tailscale) and
// blocks until its context is canceled.
//
// # HTTP API
//
// Every API response is a JSON envelope:
//
//	{"error": false, "response": ...}
//	{"error": true, "message": "Invalid token"}
//
// Routes (GET, query parameters):
//
//   - /send?ip&port&command&delay&wait&request_id - one server
//   - /sendAll?command&delay&wait&request_id - every server
//   - /list - configured servers and their connection state
//   - /api/events[?server=ip:port] - websocket stream of state transitions
//   - /health - liveness, no auth
//   - /health/ready - 200 once a server is authenticated, no auth
//
// delay is in milliseconds; wait is a boolean. Without wait the response is
// "Sent" as soon as the command is scheduled. With wait, /send answers
// {"server", "response"} and /sendAll answers a map of ip:port to the
// response string or {"error": "..."}.
//
// # Status Codes
//
//	400 bad parameters (missing command, invalid wait, command too long)
//	401 Invalid token
//	409 Duplicate request (request_id reused within auth.dedupe_ttl)
//	404 Server could not be found!
//	504 Timeout (server.request_timeout; /sendAll includes partial results)
//	502 command failed on the server connection
//
// # Lifecycle
//
//	gw, err := gateway.New(cfg, logger)
//	err = gw.Run(ctx) // returns after ctx is canceled and agents have stopped
package gateway
