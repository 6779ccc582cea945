package types

// Event is the wire representation of a structured state change. Attributes are
// flat string pairs so downstream sinks (RPC feeds, audit stores) can persist
// them without schema knowledge.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
