package entity

import "strings"

// Protocol defines the upstream transport an endpoint serves.
type Protocol string

// Constants for known protocols.
const (
	ProtocolRPC Protocol = "rpc"
	ProtocolWSS Protocol = "wss"
)

// Schemes accepted for each protocol.
var (
	RPCSchemes = []string{"http", "https"}
	WSSSchemes = []string{"ws", "wss"}
)

// NetworkEndpoint holds the upstream roots configured for one network.
// Values are immutable once the registry is built.
type NetworkEndpoint struct {
	NetworkID  string
	RPCBaseURL BaseURL
	WSSBaseURL BaseURL
}

// HasRPC reports whether an HTTP RPC upstream is configured.
func (e NetworkEndpoint) HasRPC() bool {
	return e.RPCBaseURL != ""
}

// HasWSS reports whether a WebSocket upstream is configured.
func (e NetworkEndpoint) HasWSS() bool {
	return e.WSSBaseURL != ""
}

// NormalizeNetworkID lower-cases and trims a network identifier.
func NormalizeNetworkID(network string) string {
	return strings.ToLower(strings.TrimSpace(network))
}
