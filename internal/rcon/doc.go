// Package rcon implements the client side of the Source RCON protocol.
//
// # Wire Format
//
// Every frame is a little-endian int32 size followed by the request id, the
// packet type, and a body terminated by two NUL bytes:
//
//	size | id | type | body \x00 \x00
//
// ReadPacket and WritePacket handle exactly one frame each.
//
// # Conn
//
// A Conn is one session to one server. It never retries; the owner decides
// what to do when the session ends.
//
//	c := rcon.New("10.0.0.5:27015", password, rcon.Options{Logger: logger})
//	go c.Open(ctx)
//	for ev := range c.Events() { ... }
//
// Events arrive in this order:
//
//  1. EventConnected once the TCP dial succeeds
//  2. EventAuthenticated once the password is accepted
//  3. EventResponse for each command sent with Send
//  4. exactly one EventError or EventClosed
//
// # Multi-Packet Responses
//
// Long responses are split across several RESPONSE_VALUE packets. Send
// follows each command with an empty RESPONSE_VALUE; the server mirrors it
// after the command output, which marks the end of the response.
package rcon
