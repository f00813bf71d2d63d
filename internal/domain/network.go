package domain

import "time"

// Transport identifies how an endpoint is reached: plain request/response
// JSON-RPC over HTTP, or a persistent websocket stream.
type Transport string

const (
	TransportHTTP Transport = "http"
	TransportWS   Transport = "ws"
)

// Network describes one monitored chain. The set of networks is fixed at
// startup and never mutated afterwards.
type Network struct {
	ID            string
	Name          string
	BlockInterval time.Duration // expected block production interval
	GasUnits      uint64        // assumed gas units for a single swap
	NativeToken   string        // symbol of the fee token, e.g. "ETH"
}

// Endpoint is one candidate access point for a network. Mutable endpoint
// state (latency, error counters) is owned exclusively by the connection
// manager; this struct is the immutable configuration part.
type Endpoint struct {
	URL       string
	Transport Transport
}

// EndpointStatus is a point-in-time view of one endpoint's health, used for
// status reporting and health snapshots only.
type EndpointStatus struct {
	URL        string        `json:"url"`
	Transport  Transport     `json:"transport"`
	Active     bool          `json:"active"`
	Latency    time.Duration `json:"latency_ns"`
	ErrorCount int           `json:"error_count"`
	LastUsed   time.Time     `json:"last_used"`
}

// HealthSnapshot captures one network's connectivity state at health-check
// time. Snapshots are handed to the persistence collaborator and published on
// the signal bus; the core keeps no reference after emission.
type HealthSnapshot struct {
	ID          string           `json:"id"`
	Network     string           `json:"network"`
	Healthy     bool             `json:"healthy"`
	BlockNumber uint64           `json:"block_number"`
	BlockTime   time.Time        `json:"block_time"`
	Endpoints   []EndpointStatus `json:"endpoints"`
	TakenAt     time.Time        `json:"taken_at"`
}
