package server

import "time"

const (
	// ShutdownTimeout bounds graceful shutdown. A processing pass in flight
	// finishes its current jobs; store writes past cancellation are bounded
	// separately by the engine.
	ShutdownTimeout = 30 * time.Second

	readHeaderTimeout = 10 * time.Second
)

// ServerState is the lifecycle state reported by /healthz
type ServerState int32

const (
	ServerStateRunning  ServerState = iota // Accepting triggers
	ServerStateDraining                    // Shutdown in progress, triggers rejected
	ServerStateStopped                     // Shutdown complete
)

func (s ServerState) String() string {
	switch s {
	case ServerStateRunning:
		return "running"
	case ServerStateDraining:
		return "draining"
	case ServerStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// HealthResponse is the body of GET /healthz
type HealthResponse struct {
	Status            string `json:"status"`
	State             string `json:"state"`
	Version           string `json:"version"`
	Commit            string `json:"commit"`
	RSSBytes          uint64 `json:"rss_bytes,omitempty"`
	MemAvailableBytes uint64 `json:"mem_available_bytes,omitempty"`
}
