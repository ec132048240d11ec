package stripesync

import "time"

// Metrics defines the interface for tracking sync engine operations.
// All methods are optional - the engine gracefully handles nil metrics.
type Metrics interface {
	// RecordPageFetch records a page fetch from the billing API.
	// endpoint: The API endpoint called (e.g., "/invoices", "/customers")
	// status: "success", "empty" or "error"
	RecordPageFetch(endpoint, status string)

	// RecordAPICallDuration records how long an upstream API call took.
	RecordAPICallDuration(endpoint string, duration time.Duration)

	// RecordEventCaptured records an analytics event forwarded to the sink.
	RecordEventCaptured(event string)

	// RecordRecordSkipped records a billing record that produced no events.
	// reason: e.g. "seen", "no_customer", "no_email", "unmatched", "ignored"
	RecordRecordSkipped(kind, reason string)

	// RecordTick records a completed scheduler tick.
	// status: "success" or "error"
	RecordTick(status string)

	// RecordTickDuration records how long a tick took.
	RecordTickDuration(duration time.Duration)
}

// NoopMetrics is a no-op implementation of the Metrics interface.
type NoopMetrics struct{}

func (n *NoopMetrics) RecordPageFetch(_, _ string)                     {}
func (n *NoopMetrics) RecordAPICallDuration(_ string, _ time.Duration) {}
func (n *NoopMetrics) RecordEventCaptured(_ string)                    {}
func (n *NoopMetrics) RecordRecordSkipped(_, _ string)                 {}
func (n *NoopMetrics) RecordTick(_ string)                             {}
func (n *NoopMetrics) RecordTickDuration(_ time.Duration)              {}
