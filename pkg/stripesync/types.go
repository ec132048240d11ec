package stripesync

// StoredInvoice is the per-invoice summary appended to a customer record's
// history. Amounts are kept in minor currency units (cents); conversion to
// major units happens once, in the aggregator.
type StoredInvoice struct {
	InvoiceID  string `json:"invoice_id"`
	AmountPaid int64  `json:"amount_paid"`
	AmountDue  int64  `json:"amount_due"`
	PeriodEnd  int64  `json:"period_end"`
	// PaidAt may be absent: older invoices were written without state
	// transition data.
	PaidAt int64 `json:"paid_at,omitempty"`
}

// CustomerRecord is the resolved identity persisted per billing customer
// under "customer_<id>". The invoice history grows monotonically and is
// never pruned.
type CustomerRecord struct {
	// DistinctID is the stable analytics identifier: the customer's
	// metadata-supplied id, the matched person's first distinct id, or the
	// raw email fallback.
	DistinctID string `json:"distinct_id"`

	// PersonID is the sink-side person backing DistinctID, when matched.
	PersonID string `json:"person_id,omitempty"`

	// GroupKey is set when the group feature is enabled and a related
	// group was found for PersonID.
	GroupKey string `json:"group_key,omitempty"`

	Invoices []StoredInvoice `json:"invoices"`
}

// Totals holds the aggregates derived from a customer's invoice history,
// in major currency units.
type Totals struct {
	PaidMonthToDate float64
	PaidTotal       float64
	DueMonthToDate  float64
	DueTotal        float64
}

// Storage keys. The cursor sentinel for a fresh pass is the empty string.
const (
	keyInvoiceCursor  = "invoice_cursor"
	keyCustomerCursor = "customer_cursor"
	keyCreatedGT      = "customers_created_gt"

	customerKeyPrefix     = "customer_"
	subscriptionKeyPrefix = "subscription_"
	invoiceKeyPrefix      = "invoice_"
	alertThrottlePrefix   = "invoice_alert_"
)
