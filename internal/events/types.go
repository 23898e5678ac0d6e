// Package events provides a pub/sub event bus for tollgate.
// Firewall decisions and proxy lifecycle changes flow through this hub to
// live consumers such as the log tail websocket.
package events

import "time"

// EventType identifies the category of event.
type EventType string

const (
	// EventDecision is published for every log record the engine creates.
	EventDecision EventType = "firewall.decision"

	// EventProxyState is published when the proxy service changes state.
	EventProxyState EventType = "proxy.state"
)

// Event is the core message passed through the event bus.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"` // Component that emitted: "firewall", "proxy"
	Data      any       `json:"data"`   // Type-specific payload
}

// ProxyStateData is the payload for EventProxyState.
type ProxyStateData struct {
	State  string `json:"state"`
	Listen string `json:"listen"`
	Target string `json:"target"`
}
