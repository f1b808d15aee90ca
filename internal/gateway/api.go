// ABOUTME: HTTP API handlers for sending commands to one server or all of them
// ABOUTME: Every response uses the {"error","message","response"} JSON envelope

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/2389/rcon-gateway/internal/agent"
	"github.com/2389/rcon-gateway/internal/auth"
	"github.com/2389/rcon-gateway/internal/dedupe"
	"github.com/2389/rcon-gateway/internal/rcon"
)

// Envelope messages clients match on.
const (
	msgInvalidToken     = "Invalid token"
	msgDuplicateRequest = "Duplicate request"
	msgTimeout          = "Timeout"
	msgServerNotFound   = "Server could not be found!"
	msgSent             = "Sent"
	msgCommandTooLong   = "Command too long"
)

// Envelope is the body of every API response.
type Envelope struct {
	Error    bool   `json:"error"`
	Message  string `json:"message,omitempty"`
	Response any    `json:"response,omitempty"`
}

// SendResponse is the payload of a waited /send.
type SendResponse struct {
	Server   string `json:"server"`
	Response string `json:"response"`
}

// ServerError is the per-server payload of a failed command in /sendAll.
type ServerError struct {
	Error string `json:"error"`
}

// commandParams are the query parameters shared by /send and /sendAll.
type commandParams struct {
	command   string
	delay     time.Duration
	wait      bool
	requestID string
}

func writeEnvelope(w http.ResponseWriter, status int, env Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

func writeResponse(w http.ResponseWriter, response any) {
	writeEnvelope(w, http.StatusOK, Envelope{Response: response})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeEnvelope(w, status, Envelope{Error: true, Message: message})
}

// denyUnauthorized is the auth middleware's rejection response.
func denyUnauthorized(w http.ResponseWriter, _ *http.Request, _ error) {
	writeError(w, http.StatusUnauthorized, msgInvalidToken)
}

// parseDelay reads a millisecond delay. Missing, malformed or negative
// values mean no delay.
func parseDelay(raw string) time.Duration {
	ms, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || ms < 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}

// parseWait reads the wait flag. Missing means false.
func parseWait(raw string) (bool, error) {
	if raw == "" {
		return false, nil
	}
	return strconv.ParseBool(raw)
}

func parseCommandParams(r *http.Request) (commandParams, string) {
	q := r.URL.Query()

	p := commandParams{
		command:   q.Get("command"),
		delay:     parseDelay(q.Get("delay")),
		requestID: q.Get("request_id"),
	}
	if p.command == "" {
		return p, "Missing command"
	}
	if len(p.command) > rcon.MaxCommandLength {
		return p, msgCommandTooLong
	}

	wait, err := parseWait(q.Get("wait"))
	if err != nil {
		return p, "Invalid wait: " + q.Get("wait")
	}
	p.wait = wait
	return p, ""
}

// claimRequest marks the caller's request_id as dispatched. It reports false
// (after writing the 409) when the ID was already used within the TTL. The
// returned release function un-marks the ID for requests rejected before
// dispatch.
func (g *Gateway) claimRequest(w http.ResponseWriter, r *http.Request, requestID string) (release func(), ok bool) {
	if requestID == "" {
		return func() {}, true
	}

	key := dedupe.RequestKey(auth.PrincipalFromContext(r.Context()), requestID)
	if g.dedupe.CheckAndMark(key) {
		g.logger.Info("duplicate request rejected",
			"request_id", requestID,
			"principal", auth.PrincipalFromContext(r.Context()))
		writeError(w, http.StatusConflict, msgDuplicateRequest)
		return nil, false
	}
	return func() { g.dedupe.Forget(key) }, true
}

// withRequestTimeout bounds waiting handlers by server.request_timeout.
func (g *Gateway) withRequestTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := g.config.Server.RequestTimeout
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// handleSend handles GET /send?ip&port&command&delay&wait&request_id.
func (g *Gateway) handleSend(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ip := q.Get("ip")
	port, err := strconv.Atoi(q.Get("port"))
	if ip == "" || err != nil {
		writeError(w, http.StatusBadRequest, "Missing or invalid ip/port")
		return
	}

	params, problem := parseCommandParams(r)
	if problem != "" {
		writeError(w, http.StatusBadRequest, problem)
		return
	}

	release, ok := g.claimRequest(w, r, params.requestID)
	if !ok {
		return
	}

	address := agent.JoinAddress(ip, port)
	g.logger.Info("send",
		"principal", auth.PrincipalFromContext(r.Context()),
		"server", address,
		"delay", params.delay,
		"wait", params.wait,
		"command", params.command,
		"request_id", params.requestID)

	ctx, cancel := g.withRequestTimeout(r.Context())
	defer cancel()

	resp, err := g.coordinator.Send(ctx, ip, port, agent.SendRequest{
		Command: params.command,
		Delay:   params.delay,
		Wait:    params.wait,
	})
	if err != nil {
		if errors.Is(err, agent.ErrServerNotFound) {
			release()
			writeError(w, http.StatusNotFound, msgServerNotFound)
			return
		}
		g.writeCommandError(w, address, err)
		return
	}

	if !params.wait {
		writeResponse(w, msgSent)
		return
	}
	writeResponse(w, SendResponse{Server: address, Response: resp})
}

// writeCommandError maps a failed single-server command to an envelope.
func (g *Gateway) writeCommandError(w http.ResponseWriter, address string, err error) {
	if errors.Is(err, agent.ErrCommandTooLong) {
		writeError(w, http.StatusBadRequest, msgCommandTooLong)
		return
	}
	if errors.Is(err, context.DeadlineExceeded) {
		g.logger.Warn("send timed out", "server", address)
		writeError(w, http.StatusGatewayTimeout, msgTimeout)
		return
	}

	g.logger.Warn("send failed", "server", address, "error", err)
	status := http.StatusBadGateway
	if errors.Is(err, context.Canceled) {
		// Client went away; nobody reads this.
		status = http.StatusServiceUnavailable
	}
	writeError(w, status, err.Error())
}

// handleSendAll handles GET /sendAll?command&delay&wait&request_id.
func (g *Gateway) handleSendAll(w http.ResponseWriter, r *http.Request) {
	params, problem := parseCommandParams(r)
	if problem != "" {
		writeError(w, http.StatusBadRequest, problem)
		return
	}

	if _, ok := g.claimRequest(w, r, params.requestID); !ok {
		return
	}

	g.logger.Info("broadcast",
		"principal", auth.PrincipalFromContext(r.Context()),
		"servers", g.registry.Len(),
		"delay", params.delay,
		"wait", params.wait,
		"command", params.command,
		"request_id", params.requestID)

	ctx, cancel := g.withRequestTimeout(r.Context())
	defer cancel()

	result, err := g.coordinator.Broadcast(ctx, agent.BroadcastRequest{
		Command: params.command,
		Delay:   params.delay,
		Wait:    params.wait,
	})
	if !params.wait && err == nil {
		writeResponse(w, msgSent)
		return
	}

	var responses map[string]any
	if result != nil {
		responses = make(map[string]any, len(result.Responses))
		for addr, o := range result.Responses {
			if o.Err != nil {
				responses[addr] = ServerError{Error: o.Err.Error()}
				continue
			}
			responses[addr] = o.Response
		}
	}

	switch {
	case err == nil:
		writeResponse(w, responses)
	case errors.Is(err, agent.ErrCommandTooLong):
		writeError(w, http.StatusBadRequest, msgCommandTooLong)
	case errors.Is(err, context.DeadlineExceeded):
		g.logger.Warn("broadcast timed out",
			"answered", countAnswered(result),
			"servers", g.registry.Len())
		writeEnvelope(w, http.StatusGatewayTimeout, Envelope{
			Error:    true,
			Message:  msgTimeout,
			Response: responses,
		})
	default:
		writeError(w, http.StatusServiceUnavailable, err.Error())
	}
}

// countAnswered returns how many servers produced a response or a failure
// of their own before the deadline.
func countAnswered(result *agent.BroadcastResult) int {
	if result == nil {
		return 0
	}
	n := 0
	for _, o := range result.Responses {
		if !errors.Is(o.Err, context.DeadlineExceeded) {
			n++
		}
	}
	return n
}

// handleList handles GET /list.
func (g *Gateway) handleList(w http.ResponseWriter, r *http.Request) {
	g.logger.Debug("server listing requested", "principal", auth.PrincipalFromContext(r.Context()))
	writeResponse(w, g.registry.List())
}
