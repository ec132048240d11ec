// Package stripesync implements a periodic Stripe-to-analytics sync engine.
// A host scheduler calls Setup once and Tick on every tick; the engine
// walks one page of billing records per tick, deduplicates through a
// persistent key-value store and forwards derived analytics events to a
// tracking sink.
package stripesync

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/mihaimyh/stripesync/pkg/stripesync/stripe"
)

// Engine is the sync engine. It is not safe for concurrent ticks: the host
// scheduler must invoke Tick sequentially for one instance. All state that
// survives between ticks lives in the Store and Cache.
type Engine struct {
	store   Store
	sink    Sink
	client  *stripe.Client
	cache   Cache
	cfg     Config
	log     Logger
	metrics Metrics
}

// New creates a sync engine. Configuration errors (invalid group pair,
// bad ignore pattern, missing API key) are fatal here, before the host
// schedules any tick.
func New(store Store, sink Sink, cfg Config) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidConfig)
	}
	if sink == nil {
		return nil, fmt.Errorf("%w: sink is required", ErrInvalidConfig)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	client, err := stripe.New(stripe.Config{
		APIKey:    cfg.APIKey,
		BaseURL:   cfg.StripeBaseURL,
		PageLimit: cfg.PageLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	return &Engine{
		store:   store,
		sink:    sink,
		client:  client,
		cache:   cfg.Cache,
		cfg:     cfg,
		log:     cfg.Logger,
		metrics: cfg.Metrics,
	}, nil
}

// Setup performs the authentication probe against the billing API. A
// failure is a fatal configuration error: the host must not schedule the
// job. When the customer sweep is enabled, the probe page also seeds the
// incremental high-water mark so the first sweep skips pre-existing
// customers.
func (e *Engine) Setup(ctx context.Context) error {
	page, err := e.client.CheckAuth(ctx)
	if err != nil {
		return fmt.Errorf("%w: please make sure your API key is correct and has the required permissions: %v", ErrAuthFailed, err)
	}

	if e.cfg.SyncCustomers && e.cache != nil && len(page.Data) > 0 {
		created := strconv.FormatInt(page.Data[0].Created, 10)
		if err := e.cache.Set(ctx, keyCreatedGT, created, 0); err != nil {
			e.log.Warn("seeding customer high-water mark failed", Field{"error", err.Error()})
		}
	}

	e.log.Info("stripe sync engine ready",
		Field{"groups_enabled", e.cfg.groupsEnabled()},
		Field{"customer_sweep", e.cfg.SyncCustomers})
	return nil
}

// Tick runs one scheduler tick: one invoice page, then one customer page
// when the customer sweep is enabled. On error the tick aborts before the
// cursor commit, so the next tick retries the same page; seen-markers keep
// event emission at-most-once regardless.
func (e *Engine) Tick(ctx context.Context) error {
	start := time.Now()
	err := e.tick(ctx)
	e.metrics.RecordTickDuration(time.Since(start))
	if err != nil {
		e.metrics.RecordTick("error")
		e.log.Error("tick failed", Field{"error", err.Error()})
		return err
	}
	e.metrics.RecordTick("success")
	return nil
}

func (e *Engine) tick(ctx context.Context) error {
	if err := e.syncInvoices(ctx); err != nil {
		return err
	}
	if e.cfg.SyncCustomers {
		return e.syncCustomers(ctx)
	}
	return nil
}

// syncInvoices processes one page of paid invoices.
func (e *Engine) syncInvoices(ctx context.Context) error {
	var cursor string
	if _, err := e.store.Get(ctx, keyInvoiceCursor, &cursor); err != nil {
		return fmt.Errorf("%w: loading %s: %v", ErrStoreUnavailable, keyInvoiceCursor, err)
	}

	fetchStart := time.Now()
	page, err := e.client.ListInvoicesPage(ctx, cursor)
	e.metrics.RecordAPICallDuration("/invoices", time.Since(fetchStart))
	if err != nil {
		e.metrics.RecordPageFetch("/invoices", "error")
		return fmt.Errorf("%w: fetching invoices page: %v", ErrUpstreamAPI, err)
	}
	if len(page.Data) == 0 {
		e.metrics.RecordPageFetch("/invoices", "empty")
		e.log.Debug("no invoice results", Field{"cursor", cursor})
		return nil
	}
	e.metrics.RecordPageFetch("/invoices", "success")

	unseen := 0
	for _, invoice := range page.Data {
		seen, err := e.markerSeen(ctx, invoiceKeyPrefix+invoice.ID)
		if err != nil {
			return err
		}
		if seen {
			e.metrics.RecordRecordSkipped("invoice", "seen")
			continue
		}
		unseen++
		if err := e.processInvoice(ctx, invoice); err != nil {
			return err
		}
	}

	if unseen > 0 {
		e.log.Info("processed new invoices",
			Field{"count", unseen}, Field{"cursor", cursor})
	} else {
		e.log.Debug("page has no unseen invoices", Field{"cursor", cursor})
	}

	if page.HasMore {
		next := page.Data[len(page.Data)-1].ID
		if err := e.store.Set(ctx, keyInvoiceCursor, next); err != nil {
			return fmt.Errorf("%w: saving %s: %v", ErrStoreUnavailable, keyInvoiceCursor, err)
		}
		return nil
	}

	// Full pass complete: reset to the fresh-pass sentinel so the next
	// tick starts over and naturally re-sweeps status transitions.
	e.log.Info("paginated all invoice pages, starting from scratch")
	if err := e.store.Set(ctx, keyInvoiceCursor, ""); err != nil {
		return fmt.Errorf("%w: saving %s: %v", ErrStoreUnavailable, keyInvoiceCursor, err)
	}
	return nil
}

// processInvoice runs one invoice through the resolve → aggregate → emit
// pipeline. Invoices within a page are processed strictly in order; the
// store writes for one invoice complete before the next begins.
func (e *Engine) processInvoice(ctx context.Context, invoice *stripe.Invoice) error {
	if invoice.Customer == nil {
		e.log.Warn("invoice has no customer associated with it, skipping",
			Field{"invoice_id", invoice.ID})
		e.metrics.RecordRecordSkipped("invoice", "no_customer")
		return nil
	}
	if e.cfg.ignoresEmail(invoice.Customer.Email) {
		e.metrics.RecordRecordSkipped("invoice", "ignored")
		return nil
	}

	record, err := e.getOrSaveCustomer(ctx, invoice, invoice.Customer)
	if err != nil {
		return err
	}
	if record == nil {
		return nil
	}

	groups := e.groupsFor(record)

	if invoice.Subscription != nil {
		if err := e.sendSubscriptionEvent(ctx, invoice.Subscription, record, groups); err != nil {
			return err
		}
	}

	return e.sendInvoiceEvent(ctx, invoice, record, groups)
}

// syncCustomers processes one page of the customer sweep: every customer
// created after the high-water mark produces one "new_stripe_subscription"
// event with its subscriptions flattened into the properties.
func (e *Engine) syncCustomers(ctx context.Context) error {
	createdAfter := e.customerHighWater(ctx)

	var cursor string
	if _, err := e.store.Get(ctx, keyCustomerCursor, &cursor); err != nil {
		return fmt.Errorf("%w: loading %s: %v", ErrStoreUnavailable, keyCustomerCursor, err)
	}

	fetchStart := time.Now()
	page, err := e.client.ListCustomersPage(ctx, createdAfter, cursor)
	e.metrics.RecordAPICallDuration("/customers", time.Since(fetchStart))
	if err != nil {
		e.metrics.RecordPageFetch("/customers", "error")
		return fmt.Errorf("%w: fetching customers page: %v", ErrUpstreamAPI, err)
	}
	if len(page.Data) == 0 {
		e.metrics.RecordPageFetch("/customers", "empty")
		e.log.Debug("no customer results", Field{"cursor", cursor})
		return nil
	}
	e.metrics.RecordPageFetch("/customers", "success")

	maxCreated := createdAfter
	for _, customer := range page.Data {
		if customer.Created > maxCreated {
			maxCreated = customer.Created
		}
		if e.cfg.ignoresEmail(customer.Email) {
			e.metrics.RecordRecordSkipped("customer", "ignored")
			continue
		}
		if err := e.sendCustomerEvent(ctx, customer); err != nil {
			return err
		}
	}

	if page.HasMore {
		next := page.Data[len(page.Data)-1].ID
		if err := e.store.Set(ctx, keyCustomerCursor, next); err != nil {
			return fmt.Errorf("%w: saving %s: %v", ErrStoreUnavailable, keyCustomerCursor, err)
		}
		return nil
	}

	if err := e.store.Set(ctx, keyCustomerCursor, ""); err != nil {
		return fmt.Errorf("%w: saving %s: %v", ErrStoreUnavailable, keyCustomerCursor, err)
	}
	// Advance the high-water mark only once a full pass has completed, so
	// an aborted pass re-fetches the same window.
	if e.cache != nil && maxCreated > createdAfter {
		created := strconv.FormatInt(maxCreated, 10)
		if err := e.cache.Set(ctx, keyCreatedGT, created, 0); err != nil {
			e.log.Warn("advancing customer high-water mark failed", Field{"error", err.Error()})
		}
	}
	return nil
}

// customerHighWater reads the created[gt] mark from the cache; 0 disables
// the filter (full sweep).
func (e *Engine) customerHighWater(ctx context.Context) int64 {
	if e.cache == nil {
		return 0
	}
	raw, found, err := e.cache.Get(ctx, keyCreatedGT)
	if err != nil || !found {
		return 0
	}
	created, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		e.log.Warn("invalid customer high-water mark", Field{"value", raw})
		return 0
	}
	return created
}

// sendCustomerEvent builds the flattened customer-sweep event.
func (e *Engine) sendCustomerEvent(ctx context.Context, customer *stripe.Customer) error {
	distinctID := customer.Email
	if distinctID == "" {
		distinctID = customer.ID
	}

	hasActive := customer.Subscriptions != nil && len(customer.Subscriptions.Data) > 0
	basic := map[string]interface{}{
		"distinct_id":             distinctID,
		"has_active_subscription": hasActive,
		"customer_name":           customer.Name,
		"currency":                customer.Currency,
		"created":                 customer.Created,
	}

	props := make(map[string]interface{}, len(basic)+1)
	for k, v := range basic {
		props[k] = v
	}
	if hasActive {
		for i, sub := range customer.Subscriptions.Data {
			tree, err := toTree(sub)
			if err != nil {
				e.log.Warn("flattening subscription failed",
					Field{"subscription_id", sub.ID}, Field{"error", err.Error()})
				continue
			}
			props["subscription"+strconv.Itoa(i)] = tree
		}
		props = Flatten(props)
	}

	return e.capture(ctx, &Event{
		Name:       EventNewSubscription,
		DistinctID: distinctID,
		Properties: props,
		Set:        basic,
	})
}

// toTree converts a wire struct into a generic key/value tree for Flatten.
func toTree(v interface{}) (map[string]interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var tree map[string]interface{}
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, err
	}
	return tree, nil
}
