// ABOUTME: Immutable description of one configured game server.
// ABOUTME: The ip:port address is the unique key used by the registry and broadcast results.

package agent

import (
	"net"
	"strconv"
)

// ServerIdentity describes one game server. It is created once from
// configuration and never mutated.
type ServerIdentity struct {
	Hostname string
	Name     string
	IP       string
	Port     int
	Password string
	// ReceiverPort is carried from the inventory but not used by the agent.
	ReceiverPort int
}

// Address returns the "ip:port" key for the server.
func (s ServerIdentity) Address() string {
	return JoinAddress(s.IP, s.Port)
}

// JoinAddress builds the registry key for ip and port.
func JoinAddress(ip string, port int) string {
	return net.JoinHostPort(ip, strconv.Itoa(port))
}
