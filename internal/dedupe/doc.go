// Package dedupe remembers client request IDs for a time window so a retried
// HTTP request does not send the same RCON command twice.
package dedupe
