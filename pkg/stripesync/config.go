package stripesync

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// TimestampType selects which invoice timestamp drives the month-to-date
// aggregation and the "Stripe Invoice Paid" event timestamp.
type TimestampType string

const (
	// TimestampPeriodEnd uses the invoice's billing period end (default).
	TimestampPeriodEnd TimestampType = "period_end"

	// TimestampPaymentDate uses the invoice's paid_at state transition.
	// Invoices written without transition data are excluded from the
	// month-to-date tally but retained in history.
	TimestampPaymentDate TimestampType = "payment_date"
)

const (
	defaultPageLimit = 100

	// GroupTypeIndexUnset marks the group feature as disabled.
	GroupTypeIndexUnset = -1
)

// Option map keys recognized by ParseOptions. These match the host-supplied
// plugin configuration verbatim.
const (
	OptionAPIKey                    = "stripeApiKey"
	OptionGroupType                 = "groupType"
	OptionGroupTypeIndex            = "groupTypeIndex"
	OptionSaveUnmatchedUsers        = "saveUsersIfNotMatched"
	OptionInvoiceAmountThreshold    = "invoiceAmountThreshold"
	OptionInvoiceNotificationPeriod = "invoiceNotificationPeriod"
	OptionInvoiceTimestampType      = "invoiceTimestampType"
	OptionCustomerIgnoreRegex       = "customerIgnoreRegex"
	OptionSyncCustomers             = "syncCustomers"
)

// Config holds the immutable engine configuration. A Config is validated
// once in New; the engine never mutates it afterwards.
type Config struct {
	// APIKey is the Stripe secret key (required).
	APIKey string

	// GroupType and GroupTypeIndex enable the group-entity feature.
	// Both must be set together; setting exactly one is a configuration
	// error. GroupTypeIndex defaults to GroupTypeIndexUnset.
	GroupType      string
	GroupTypeIndex int

	// SaveUnmatchedUsers falls back to the customer's raw email as the
	// distinct id when no sink person matches. When false, unmatched
	// customers produce no events.
	SaveUnmatchedUsers bool

	// InvoiceAmountThreshold triggers a "Stripe Invoice Alert" event when
	// an invoice's amount due (major units) reaches it. Zero disables.
	InvoiceAmountThreshold float64

	// InvoiceNotificationPeriod is the per-customer quiet window between
	// alert events, enforced through the Cache. Zero disables throttling.
	InvoiceNotificationPeriod time.Duration

	// InvoiceTimestampType selects the invoice timestamp used for
	// aggregation and event timestamps. Defaults to TimestampPeriodEnd.
	InvoiceTimestampType TimestampType

	// CustomerIgnorePattern is a regular expression matched against
	// customer emails; matching customers are skipped entirely.
	CustomerIgnorePattern string

	// SyncCustomers enables the customer sweep in addition to the invoice
	// sweep.
	SyncCustomers bool

	// PageLimit is the page size requested from the billing API
	// (default 100).
	PageLimit int

	// StripeBaseURL overrides the billing API base URL, for tests.
	StripeBaseURL string

	// Cache is the optional TTL store used for alert throttling and the
	// customer-sweep high-water mark. When nil those features degrade to
	// no-ops.
	Cache Cache

	// Logger is optional; nil means no logging.
	Logger Logger

	// Metrics is optional; nil means metrics are silently ignored.
	Metrics Metrics

	// Now overrides the clock, for tests. Nil means time.Now.
	Now func() time.Time

	ignoreRegex *regexp.Regexp
}

// NewConfig returns a Config with defaults applied.
func NewConfig(apiKey string) Config {
	return Config{
		APIKey:               apiKey,
		GroupTypeIndex:       GroupTypeIndexUnset,
		InvoiceTimestampType: TimestampPeriodEnd,
		PageLimit:            defaultPageLimit,
	}
}

// ParseOptions builds a Config from the host-supplied option map.
// Numeric fields that fail to parse, unknown timestamp types and invalid
// ignore patterns are configuration errors.
func ParseOptions(options map[string]string) (Config, error) {
	cfg := NewConfig(options[OptionAPIKey])
	cfg.GroupType = options[OptionGroupType]
	cfg.SaveUnmatchedUsers = options[OptionSaveUnmatchedUsers] == "Yes"
	cfg.SyncCustomers = options[OptionSyncCustomers] == "Yes"
	cfg.CustomerIgnorePattern = options[OptionCustomerIgnoreRegex]

	if raw, ok := options[OptionGroupTypeIndex]; ok && raw != "" {
		idx, err := strconv.Atoi(raw)
		if err != nil {
			return cfg, fmt.Errorf("%w: %s must be numeric: %q", ErrInvalidConfig, OptionGroupTypeIndex, raw)
		}
		cfg.GroupTypeIndex = idx
	}

	if raw, ok := options[OptionInvoiceAmountThreshold]; ok && raw != "" {
		threshold, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return cfg, fmt.Errorf("%w: %s must be numeric: %q", ErrInvalidConfig, OptionInvoiceAmountThreshold, raw)
		}
		cfg.InvoiceAmountThreshold = threshold
	}

	if raw, ok := options[OptionInvoiceNotificationPeriod]; ok && raw != "" {
		seconds, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return cfg, fmt.Errorf("%w: %s must be numeric: %q", ErrInvalidConfig, OptionInvoiceNotificationPeriod, raw)
		}
		cfg.InvoiceNotificationPeriod = time.Duration(seconds) * time.Second
	}

	if raw, ok := options[OptionInvoiceTimestampType]; ok && raw != "" {
		switch raw {
		case "Invoice Period End Date":
			cfg.InvoiceTimestampType = TimestampPeriodEnd
		case "Invoice Payment Date":
			cfg.InvoiceTimestampType = TimestampPaymentDate
		default:
			return cfg, fmt.Errorf("%w: unknown %s: %q", ErrInvalidConfig, OptionInvoiceTimestampType, raw)
		}
	}

	return cfg, nil
}

// validate checks invariants and compiles derived state. Called once in New.
func (c *Config) validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("%w: stripe API key is required", ErrInvalidConfig)
	}

	groupTypeSet := c.GroupType != ""
	groupIndexSet := c.GroupTypeIndex > GroupTypeIndexUnset
	if groupTypeSet != groupIndexSet {
		return fmt.Errorf("%w: both groupType and groupTypeIndex must be set", ErrInvalidConfig)
	}

	if c.InvoiceAmountThreshold < 0 {
		return fmt.Errorf("%w: invoice amount threshold must not be negative", ErrInvalidConfig)
	}
	if c.InvoiceNotificationPeriod < 0 {
		return fmt.Errorf("%w: invoice notification period must not be negative", ErrInvalidConfig)
	}

	switch c.InvoiceTimestampType {
	case "":
		c.InvoiceTimestampType = TimestampPeriodEnd
	case TimestampPeriodEnd, TimestampPaymentDate:
	default:
		return fmt.Errorf("%w: unknown invoice timestamp type: %q", ErrInvalidConfig, c.InvoiceTimestampType)
	}

	if c.CustomerIgnorePattern != "" {
		re, err := regexp.Compile(c.CustomerIgnorePattern)
		if err != nil {
			return fmt.Errorf("%w: invalid customerIgnoreRegex: %v", ErrInvalidConfig, err)
		}
		c.ignoreRegex = re
	}

	if c.PageLimit <= 0 {
		c.PageLimit = defaultPageLimit
	}
	if c.Logger == nil {
		c.Logger = &NoopLogger{}
	}
	if c.Metrics == nil {
		c.Metrics = &NoopMetrics{}
	}
	if c.Now == nil {
		c.Now = time.Now
	}

	return nil
}

// groupsEnabled reports whether the group-entity feature is configured.
func (c *Config) groupsEnabled() bool {
	return c.GroupType != "" && c.GroupTypeIndex > GroupTypeIndexUnset
}

// ignoresEmail reports whether the ignore pattern matches the given email.
func (c *Config) ignoresEmail(email string) bool {
	return c.ignoreRegex != nil && email != "" && c.ignoreRegex.MatchString(email)
}
