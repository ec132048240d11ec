package stripesync

import (
	"context"
	"encoding/json"
)

// Event is a single analytics event forwarded to the tracking sink.
type Event struct {
	// Name is the event name (e.g. "Stripe Invoice Paid").
	Name string

	// DistinctID identifies the profile the event belongs to.
	DistinctID string

	// Timestamp is the event time in UTC. Zero means "now" (sink default).
	Timestamp string

	// Properties are point-in-time event properties.
	Properties map[string]interface{}

	// Set is a last-write-wins profile update ($set), distinct from
	// point-in-time properties.
	Set map[string]interface{}

	// Groups associates the event with group entities ($groups),
	// keyed by group type.
	Groups map[string]string
}

// Sink is the tracking backend events are forwarded to. Capture is
// fire-and-forget: the engine never retries emission and never blocks the
// pipeline on delivery confirmation beyond the call itself.
type Sink interface {
	// Capture forwards one event to the sink.
	Capture(ctx context.Context, event *Event) error

	// Get performs a REST lookup against the sink's API (person and group
	// resolution). The response body may be either {"results": [...]} or a
	// bare JSON array.
	Get(ctx context.Context, path string) (json.RawMessage, error)
}
