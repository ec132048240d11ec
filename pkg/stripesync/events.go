package stripesync

import (
	"context"
	"fmt"
	"time"

	"github.com/mihaimyh/stripesync/pkg/stripesync/stripe"
)

// Event vocabulary. Each name maps to exactly one trigger; see the
// corresponding send method for the required properties.
const (
	EventCustomerCreated    = "Stripe Customer Created"
	EventCustomerSubscribed = "Stripe Customer Subscribed"
	EventInvoicePaid        = "Stripe Invoice Paid"
	EventInvoiceAlert       = "Stripe Invoice Alert"
	EventGroupIdentify      = "$groupidentify"
	EventNewSubscription    = "new_stripe_subscription"
)

// isoTime formats a unix timestamp the way the sink expects event
// timestamps (ISO 8601 with millisecond precision, UTC).
func isoTime(unix int64) string {
	return time.Unix(unix, 0).UTC().Format("2006-01-02T15:04:05.000Z")
}

// capture forwards one event to the sink and records it. Emission is
// fire-and-forget per event, but a failing sink aborts the tick so the
// uncommitted cursor retries the page cleanly.
func (e *Engine) capture(ctx context.Context, event *Event) error {
	if err := e.sink.Capture(ctx, event); err != nil {
		return fmt.Errorf("%w: capturing %q: %v", ErrSinkUnavailable, event.Name, err)
	}
	e.metrics.RecordEventCaptured(event.Name)
	return nil
}

// markerSeen reports whether a seen-marker exists for the given key.
func (e *Engine) markerSeen(ctx context.Context, key string) (bool, error) {
	var seen bool
	found, err := e.store.Get(ctx, key, &seen)
	if err != nil {
		return false, fmt.Errorf("%w: loading %s: %v", ErrStoreUnavailable, key, err)
	}
	return found && seen, nil
}

func (e *Engine) setMarker(ctx context.Context, key string) error {
	if err := e.store.Set(ctx, key, true); err != nil {
		return fmt.Errorf("%w: saving %s: %v", ErrStoreUnavailable, key, err)
	}
	return nil
}

// sendSubscriptionEvent emits "Stripe Customer Subscribed" exactly once per
// subscription identifier; repeat sightings are silent no-ops.
func (e *Engine) sendSubscriptionEvent(ctx context.Context, sub *stripe.Subscription, record *CustomerRecord, groups map[string]string) error {
	key := subscriptionKeyPrefix + sub.ID
	seen, err := e.markerSeen(ctx, key)
	if err != nil {
		return err
	}
	if seen {
		e.metrics.RecordRecordSkipped("subscription", "seen")
		return nil
	}

	productName := e.productName(ctx, sub)
	subscribedAt := isoTime(sub.Created)

	if err := e.capture(ctx, &Event{
		Name:       EventCustomerSubscribed,
		DistinctID: record.DistinctID,
		Timestamp:  subscribedAt,
		Properties: map[string]interface{}{
			"stripe_customer_id":  sub.Customer,
			"stripe_product_name": productName,
		},
		Set: map[string]interface{}{
			"stripe_subscription_date": subscribedAt,
			"stripe_product_name":      productName,
			"stripe_customer_id":       sub.Customer,
		},
		Groups: groups,
	}); err != nil {
		return err
	}

	return e.setMarker(ctx, key)
}

// sendInvoiceEvent emits "Stripe Invoice Paid" with the month-to-date and
// lifetime aggregates, then the group identify and threshold alert when
// applicable. The invoice seen-marker is written last, after all of the
// invoice's events.
func (e *Engine) sendInvoiceEvent(ctx context.Context, invoice *stripe.Invoice, record *CustomerRecord, groups map[string]string) error {
	agg := totals(record.Invoices, e.cfg.Now(), e.cfg.InvoiceTimestampType)

	set := map[string]interface{}{
		"stripe_paid_last_month": agg.PaidMonthToDate,
		"stripe_paid_total":      agg.PaidTotal,
		"stripe_due_last_month":  agg.DueMonthToDate,
		"stripe_due_total":       agg.DueTotal,
	}
	if invoice.Subscription != nil {
		set["stripe_subscription_status"] = invoice.Subscription.Status
		set["stripe_customer_id"] = invoice.Subscription.Customer
	}

	if err := e.capture(ctx, &Event{
		Name:       EventInvoicePaid,
		DistinctID: record.DistinctID,
		Timestamp:  e.invoiceEventTimestamp(invoice),
		Properties: map[string]interface{}{
			"stripe_customer_id": invoice.Customer.ID,
			"stripe_invoice_id":  invoice.ID,
			"stripe_amount_paid": float64(invoice.AmountPaid) / 100,
			"stripe_amount_due":  float64(invoice.AmountDue) / 100,
		},
		Set:    set,
		Groups: groups,
	}); err != nil {
		return err
	}

	if e.cfg.groupsEnabled() && record.GroupKey != "" {
		if err := e.sendGroupEvent(ctx, invoice, record, agg); err != nil {
			return err
		}
	}

	if err := e.sendInvoiceAlert(ctx, invoice, record); err != nil {
		return err
	}

	return e.setMarker(ctx, invoiceKeyPrefix+invoice.ID)
}

// sendGroupEvent mirrors the invoice aggregates onto the group profile as a
// last-write-wins snapshot.
func (e *Engine) sendGroupEvent(ctx context.Context, invoice *stripe.Invoice, record *CustomerRecord, agg Totals) error {
	groupSet := map[string]interface{}{
		"stripe_paid_last_month": agg.PaidMonthToDate,
		"stripe_paid_total":      agg.PaidTotal,
		"stripe_due_last_month":  agg.DueMonthToDate,
		"stripe_due_total":       agg.DueTotal,
	}
	if sub := invoice.Subscription; sub != nil {
		groupSet["stripe_subscription_status"] = sub.Status
		groupSet["stripe_subscription_date"] = isoTime(sub.Created)
		if name := e.productName(ctx, sub); name != "" {
			groupSet["stripe_product_name"] = name
		}
	}

	return e.capture(ctx, &Event{
		Name:       EventGroupIdentify,
		DistinctID: record.DistinctID,
		Properties: map[string]interface{}{
			"$group_type": e.cfg.GroupType,
			"$group_key":  record.GroupKey,
			"$group_set":  groupSet,
		},
	})
}

// sendInvoiceAlert emits "Stripe Invoice Alert" when the invoice's amount
// due reaches the configured threshold, throttled per customer through the
// TTL cache using the notification period as the quiet window.
func (e *Engine) sendInvoiceAlert(ctx context.Context, invoice *stripe.Invoice, record *CustomerRecord) error {
	if e.cfg.InvoiceAmountThreshold <= 0 {
		return nil
	}
	amountDue := float64(invoice.AmountDue) / 100
	if amountDue < e.cfg.InvoiceAmountThreshold {
		return nil
	}

	throttleKey := alertThrottlePrefix + invoice.Customer.ID
	if e.cache != nil && e.cfg.InvoiceNotificationPeriod > 0 {
		if _, throttled, err := e.cache.Get(ctx, throttleKey); err == nil && throttled {
			e.metrics.RecordRecordSkipped("invoice", "alert_throttled")
			return nil
		}
	}

	if err := e.capture(ctx, &Event{
		Name:       EventInvoiceAlert,
		DistinctID: record.DistinctID,
		Timestamp:  e.invoiceEventTimestamp(invoice),
		Properties: map[string]interface{}{
			"stripe_customer_id": invoice.Customer.ID,
			"stripe_invoice_id":  invoice.ID,
			"stripe_amount_due":  amountDue,
			"threshold":          e.cfg.InvoiceAmountThreshold,
		},
	}); err != nil {
		return err
	}

	if e.cache != nil && e.cfg.InvoiceNotificationPeriod > 0 {
		if err := e.cache.Set(ctx, throttleKey, invoice.ID, e.cfg.InvoiceNotificationPeriod); err != nil {
			e.log.Warn("alert throttle write failed", Field{"key", throttleKey}, Field{"error", err.Error()})
		}
	}
	return nil
}

// invoiceEventTimestamp returns the event timestamp for an invoice per the
// configured timestamp type, falling back to the period end when the paid
// transition is missing.
func (e *Engine) invoiceEventTimestamp(invoice *stripe.Invoice) string {
	if e.cfg.InvoiceTimestampType == TimestampPaymentDate {
		if ts := paidAt(invoice); ts != 0 {
			return isoTime(ts)
		}
	}
	return isoTime(invoice.PeriodEnd)
}

// productName returns the subscription's plan product name, fetching the
// product when the listing carried only an ID reference.
func (e *Engine) productName(ctx context.Context, sub *stripe.Subscription) string {
	if sub.Plan == nil || sub.Plan.Product == nil {
		return ""
	}
	ref := sub.Plan.Product
	if ref.Expanded || ref.Name != "" {
		return ref.Name
	}
	if ref.ID == "" {
		return ""
	}
	product, err := e.client.GetProduct(ctx, ref.ID)
	if err != nil {
		e.log.Warn("product lookup failed", Field{"product_id", ref.ID}, Field{"error", err.Error()})
		return ""
	}
	return product.Name
}
