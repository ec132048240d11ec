// Package posthog implements the stripesync.Sink interface against the
// PostHog HTTP API: the capture endpoint for events and the REST API for
// person and group lookups.
package posthog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/mihaimyh/stripesync/pkg/stripesync"
)

const (
	defaultHost        = "https://app.posthog.com"
	defaultHTTPTimeout = 10 * time.Second
	maxRetries         = 1
)

// ErrStatus is returned when PostHog responds with a non-2xx status.
var ErrStatus = errors.New("posthog returned non-2xx status")

// Config holds sink configuration.
type Config struct {
	// ProjectAPIKey authenticates event capture (required).
	ProjectAPIKey string

	// PersonalAPIKey authenticates REST lookups (persons, related groups).
	// Without it, Get returns an error and the engine degrades per its
	// unmatched-user policy.
	PersonalAPIKey string

	// Host overrides the PostHog instance URL.
	Host string

	// HTTPClient is an optional underlying HTTP client. If nil, a default
	// client with a 10s timeout is used.
	HTTPClient *http.Client
}

// Sink implements stripesync.Sink against PostHog.
type Sink struct {
	config Config
	http   *retryablehttp.Client
}

// New creates a new PostHog sink.
func New(config Config) (*Sink, error) {
	if config.ProjectAPIKey == "" {
		return nil, errors.New("posthog project API key is required")
	}
	if config.Host == "" {
		config.Host = defaultHost
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
	rc.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return err != nil, nil
	}

	return &Sink{config: config, http: rc}, nil
}

type capturePayload struct {
	APIKey     string                 `json:"api_key"`
	Event      string                 `json:"event"`
	DistinctID string                 `json:"distinct_id"`
	Timestamp  string                 `json:"timestamp,omitempty"`
	Properties map[string]interface{} `json:"properties"`
}

// Capture implements stripesync.Sink
func (s *Sink) Capture(ctx context.Context, event *stripesync.Event) error {
	props := make(map[string]interface{}, len(event.Properties)+2)
	for k, v := range event.Properties {
		props[k] = v
	}
	if len(event.Set) > 0 {
		props["$set"] = event.Set
	}
	if len(event.Groups) > 0 {
		props["$groups"] = event.Groups
	}

	body, err := json.Marshal(capturePayload{
		APIKey:     s.config.ProjectAPIKey,
		Event:      event.Name,
		DistinctID: event.DistinctID,
		Timestamp:  event.Timestamp,
		Properties: props,
	})
	if err != nil {
		return fmt.Errorf("encoding capture payload: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, s.config.Host+"/capture/", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("posting capture: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: POST /capture/: %d", ErrStatus, resp.StatusCode)
	}
	return nil
}

// Get implements stripesync.Sink
func (s *Sink) Get(ctx context.Context, path string) (json.RawMessage, error) {
	if s.config.PersonalAPIKey == "" {
		return nil, errors.New("posthog personal API key is not configured")
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, s.config.Host+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+s.config.PersonalAPIKey)

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: GET %s: %d", ErrStatus, path, resp.StatusCode)
	}
	return json.RawMessage(body), nil
}
