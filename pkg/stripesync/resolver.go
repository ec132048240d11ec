package stripesync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/mihaimyh/stripesync/pkg/stripesync/stripe"
)

// distinctIDMetadataKey is the customer metadata field that carries an
// explicit analytics identifier.
const distinctIDMetadataKey = "posthog_distinct_id"

// flexID is a sink-side identifier that arrives as either a JSON string or
// a number depending on the sink's API version.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	*f = flexID(data)
	return nil
}

type personResult struct {
	ID          flexID   `json:"id"`
	DistinctIDs []string `json:"distinct_ids"`
}

type relatedGroup struct {
	GroupTypeIndex int    `json:"group_type_index"`
	GroupKey       string `json:"group_key"`
}

// decodeResults unmarshals a sink lookup response into out, accepting both
// the {"results": [...]} wrapper and a bare JSON array.
func decodeResults(raw json.RawMessage, out interface{}) error {
	var wrapper struct {
		Results json.RawMessage `json:"results"`
	}
	if err := json.Unmarshal(raw, &wrapper); err == nil && wrapper.Results != nil {
		return json.Unmarshal(wrapper.Results, out)
	}
	return json.Unmarshal(raw, out)
}

// getOrSaveCustomer returns the persisted record for a billing customer,
// resolving the identity and emitting "Stripe Customer Created" on the
// first sighting. Every sighting appends the invoice's summary to the
// record's history and re-persists it, so repeat sightings are cheap
// lookups rather than re-resolutions.
//
// Returns (nil, nil) when the customer cannot be resolved to an identity;
// the caller skips the record without emitting events.
func (e *Engine) getOrSaveCustomer(ctx context.Context, invoice *stripe.Invoice, customer *stripe.Customer) (*CustomerRecord, error) {
	key := customerKeyPrefix + customer.ID

	var record CustomerRecord
	found, err := e.store.Get(ctx, key, &record)
	if err != nil {
		return nil, fmt.Errorf("%w: loading %s: %v", ErrStoreUnavailable, key, err)
	}

	if !found {
		resolved, err := e.resolveIdentity(ctx, customer)
		if err != nil {
			return nil, err
		}
		if resolved == nil {
			return nil, nil
		}
		record = *resolved

		if err := e.capture(ctx, &Event{
			Name:       EventCustomerCreated,
			DistinctID: record.DistinctID,
			Timestamp:  isoTime(customer.Created),
			Properties: map[string]interface{}{
				"stripe_customer_id": customer.ID,
			},
			Groups: e.groupsFor(&record),
		}); err != nil {
			return nil, err
		}
	}

	// The record write commits before the invoice's seen-marker does, so a
	// tick that fails in between revisits this invoice with it already in
	// history. The append must be idempotent or retries double-count.
	for _, stored := range record.Invoices {
		if stored.InvoiceID == invoice.ID {
			return &record, nil
		}
	}

	record.Invoices = append(record.Invoices, StoredInvoice{
		InvoiceID:  invoice.ID,
		AmountPaid: invoice.AmountPaid,
		AmountDue:  invoice.AmountDue,
		PeriodEnd:  invoice.PeriodEnd,
		PaidAt:     paidAt(invoice),
	})

	if err := e.store.Set(ctx, key, &record); err != nil {
		return nil, fmt.Errorf("%w: saving %s: %v", ErrStoreUnavailable, key, err)
	}
	return &record, nil
}

// resolveIdentity determines the distinct id for a newly encountered
// customer, by priority: explicit metadata identifier, then a person
// lookup by email, then the raw email when unmatched customers are saved.
// Returns nil when the engine should abstain from emitting events for
// this customer.
func (e *Engine) resolveIdentity(ctx context.Context, customer *stripe.Customer) (*CustomerRecord, error) {
	record := &CustomerRecord{}

	if metaID := customer.Metadata[distinctIDMetadataKey]; metaID != "" {
		record.DistinctID = metaID
		persons, err := e.lookupPersons(ctx, "distinct_id="+url.QueryEscape(metaID))
		if err != nil {
			// The distinct id is already known; a failed person lookup
			// only loses the group association.
			e.log.Warn("person lookup by distinct_id failed",
				Field{"customer_id", customer.ID}, Field{"error", err.Error()})
		} else if len(persons) > 0 {
			record.PersonID = string(persons[0].ID)
		}
	} else {
		if customer.Email == "" {
			e.log.Warn("customer has no email associated with their account",
				Field{"customer_id", customer.ID})
			e.metrics.RecordRecordSkipped("customer", "no_email")
			return nil, nil
		}

		persons, err := e.lookupPersons(ctx, "email="+url.QueryEscape(customer.Email))
		switch {
		case err != nil:
			e.log.Warn("can't reach sink to find persons",
				Field{"customer_id", customer.ID}, Field{"error", err.Error()})
			if !e.cfg.SaveUnmatchedUsers {
				e.metrics.RecordRecordSkipped("customer", "unmatched")
				return nil, nil
			}
			record.DistinctID = customer.Email
		case len(persons) == 0:
			e.log.Warn("no person found for email",
				Field{"customer_id", customer.ID}, Field{"email", customer.Email})
			if !e.cfg.SaveUnmatchedUsers {
				e.metrics.RecordRecordSkipped("customer", "unmatched")
				return nil, nil
			}
			record.DistinctID = customer.Email
		default:
			if len(persons) > 1 {
				e.log.Warn("multiple persons found for email, using first",
					Field{"email", customer.Email}, Field{"count", len(persons)})
			}
			if len(persons[0].DistinctIDs) > 0 {
				record.DistinctID = persons[0].DistinctIDs[0]
			} else {
				record.DistinctID = customer.Email
			}
			record.PersonID = string(persons[0].ID)
		}
	}

	if e.cfg.groupsEnabled() {
		record.GroupKey = e.lookupGroupKey(ctx, record.PersonID)
	}

	return record, nil
}

// lookupPersons queries the sink's persons API with the given query string.
func (e *Engine) lookupPersons(ctx context.Context, query string) ([]personResult, error) {
	raw, err := e.sink.Get(ctx, "/api/projects/@current/persons/?"+query)
	if err != nil {
		return nil, err
	}
	var persons []personResult
	if err := decodeResults(raw, &persons); err != nil {
		return nil, fmt.Errorf("decoding persons response: %w", err)
	}
	return persons, nil
}

// lookupGroupKey resolves the group key for a person through the sink's
// related-groups API, filtered by the configured group type index. "No
// group found" is tolerated: the record simply carries no group key.
func (e *Engine) lookupGroupKey(ctx context.Context, personID string) string {
	if personID == "" {
		e.log.Warn("couldn't find group: no person id")
		return ""
	}

	raw, err := e.sink.Get(ctx, "/api/projects/@current/groups/related?id="+url.QueryEscape(personID))
	if err != nil {
		e.log.Warn("related groups lookup failed",
			Field{"person_id", personID}, Field{"error", err.Error()})
		return ""
	}

	var groups []relatedGroup
	if err := decodeResults(raw, &groups); err != nil {
		e.log.Warn("decoding related groups failed",
			Field{"person_id", personID}, Field{"error", err.Error()})
		return ""
	}

	for _, group := range groups {
		if group.GroupTypeIndex == e.cfg.GroupTypeIndex {
			return group.GroupKey
		}
	}

	e.log.Warn("couldn't find group for person", Field{"person_id", personID})
	return ""
}

// groupsFor builds the event group association for a record, when the
// group feature is enabled and a key was resolved.
func (e *Engine) groupsFor(record *CustomerRecord) map[string]string {
	if !e.cfg.groupsEnabled() || record.GroupKey == "" {
		return nil
	}
	return map[string]string{e.cfg.GroupType: record.GroupKey}
}

func paidAt(invoice *stripe.Invoice) int64 {
	if invoice.StatusTransitions == nil {
		return 0
	}
	return invoice.StatusTransitions.PaidAt
}
