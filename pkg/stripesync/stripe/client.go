// Package stripe provides a thin client for the Stripe HTTP API, shaped
// around cursor pagination: every list call fetches exactly one page so the
// caller can process one page per scheduler tick.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

const (
	defaultBaseURL     = "https://api.stripe.com"
	defaultHTTPTimeout = 10 * time.Second
	defaultPageLimit   = 100

	// maxRetries bounds transport retries: one immediate re-attempt with
	// identical parameters, then the error surfaces to the caller.
	maxRetries = 1
)

var (
	// ErrRequestFailed is returned when a request still fails after the
	// single retry.
	ErrRequestFailed = errors.New("stripe request failed")

	// ErrStatus is returned when Stripe responds with a non-2xx status.
	ErrStatus = errors.New("stripe returned non-2xx status")
)

// Config holds client configuration.
type Config struct {
	// APIKey is the Stripe secret key (required).
	APIKey string

	// BaseURL overrides the Stripe API base URL, for tests.
	BaseURL string

	// HTTPClient is an optional underlying HTTP client. If nil, a default
	// client with a 10s timeout is used.
	HTTPClient *http.Client

	// PageLimit is the page size requested from list endpoints
	// (default 100).
	PageLimit int
}

// Client is a Stripe API client.
type Client struct {
	apiKey  string
	baseURL string
	limit   int
	http    *retryablehttp.Client
}

// New creates a new Stripe client.
func New(config Config) (*Client, error) {
	if config.APIKey == "" {
		return nil, errors.New("stripe API key is required")
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	limit := config.PageLimit
	if limit <= 0 {
		limit = defaultPageLimit
	}

	inner := config.HTTPClient
	if inner == nil {
		inner = &http.Client{Timeout: defaultHTTPTimeout}
	}

	rc := retryablehttp.NewClient()
	rc.HTTPClient = inner
	rc.RetryMax = maxRetries
	rc.RetryWaitMin = 0
	rc.RetryWaitMax = 0
	rc.Logger = nil
	// Retry transport errors only. Non-2xx responses are not transient
	// here; they surface as ErrStatus to the caller.
	rc.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return err != nil, nil
	}

	return &Client{
		apiKey:  config.APIKey,
		baseURL: baseURL,
		limit:   limit,
		http:    rc,
	}, nil
}

// get issues one GET with default headers and returns the response body.
func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: GET %s: %v", ErrRequestFailed, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: GET %s: %v", ErrRequestFailed, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: GET %s: %d", ErrStatus, path, resp.StatusCode)
	}
	return body, nil
}

// CheckAuth performs the authentication probe: a minimal customers list.
// The returned page can be used to seed incremental cursors.
func (c *Client) CheckAuth(ctx context.Context) (*CustomerPage, error) {
	body, err := c.get(ctx, "/v1/customers?limit=1")
	if err != nil {
		return nil, err
	}
	return decodeCustomerPage(body)
}

// ListInvoicesPage fetches one page of paid invoices with the customer and
// subscription (including plan product) expanded. An empty cursor starts a
// fresh pass.
func (c *Client) ListInvoicesPage(ctx context.Context, cursor string) (*InvoicePage, error) {
	path := fmt.Sprintf(
		"/v1/invoices?limit=%d&status=paid&expand[]=data.customer&expand[]=data.subscription.plan.product",
		c.limit,
	)
	if cursor != "" {
		path += "&starting_after=" + url.QueryEscape(cursor)
	}
	body, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}
	return decodeInvoicePage(body)
}

// ListCustomersPage fetches one page of customers. createdAfter filters to
// customers created strictly after the given unix timestamp (0 disables);
// an empty cursor starts a fresh pass.
func (c *Client) ListCustomersPage(ctx context.Context, createdAfter int64, cursor string) (*CustomerPage, error) {
	path := fmt.Sprintf("/v1/customers?limit=%d", c.limit)
	if createdAfter > 0 {
		path += fmt.Sprintf("&created[gt]=%d", createdAfter)
	}
	if cursor != "" {
		path += "&starting_after=" + url.QueryEscape(cursor)
	}
	body, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}
	return decodeCustomerPage(body)
}

// GetProduct fetches one product by ID. Used when a subscription's plan
// carried only a product reference instead of the expanded object.
func (c *Client) GetProduct(ctx context.Context, id string) (*Product, error) {
	body, err := c.get(ctx, "/v1/products/"+url.PathEscape(id))
	if err != nil {
		return nil, err
	}
	return decodeProduct(body)
}
