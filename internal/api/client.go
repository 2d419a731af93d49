// Package api implements the HTTP boundary to the Kestrel service: the
// definitions source (GET) and the event sink (POST). Both endpoints are
// authenticated with a bearer credential and instrumented with OpenTelemetry.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kestrelhq/kestrel-go/internal/buffer"
	"github.com/kestrelhq/kestrel-go/internal/core"
)

const (
	definitionsPath = "/features/definitions"
	eventsPath      = "/events/bulk"
)

// Config holds configuration for the API client.
type Config struct {
	// BaseURL is the base URL of the Kestrel API, e.g. "https://api.kestrel.dev".
	BaseURL string
	// APIKey is the publishable key sent as a bearer credential.
	APIKey string
	// HTTPClient is optional; defaults to a client with an otelhttp transport.
	HTTPClient *http.Client
}

// Client talks to the Kestrel definitions and events endpoints.
type Client struct {
	cfg        Config
	httpClient *http.Client
	tracer     trace.Tracer
}

// NewClient returns a new API client. The underlying transport is wrapped
// with otelhttp so outbound calls carry trace context.
func NewClient(cfg Config) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	return &Client{
		cfg:        cfg,
		httpClient: hc,
		tracer:     otel.Tracer("github.com/kestrelhq/kestrel-go/internal/api"),
	}
}

// Error is returned when the server responds with an HTTP error status.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("kestrel: server returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("kestrel: server returned status %d: %s", e.StatusCode, e.Message)
}

// -- wire types --------------------------------------------------------------

type wireDefinitions struct {
	Features []core.FlagDefinition `json:"features"`
}

type wireEventsRequest struct {
	Events []buffer.Event `json:"events"`
}

type wireEventsResponse struct {
	Success bool `json:"success"`
}

// -- operations --------------------------------------------------------------

// FetchDefinitions retrieves the full flag definition set. Any non-success
// response, malformed payload, or structurally invalid definition is reported
// as an error; the caller's stale-snapshot policy handles it from there.
func (c *Client) FetchDefinitions(ctx context.Context) (core.DefinitionSet, error) {
	ctx, span := c.tracer.Start(ctx, "kestrel.definitions.fetch")
	defer span.End()

	resp, err := c.do(ctx, http.MethodGet, definitionsPath, nil)
	if err != nil {
		return core.DefinitionSet{}, err
	}
	defer resp.Body.Close()

	var payload wireDefinitions
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return core.DefinitionSet{}, fmt.Errorf("kestrel: decode definitions: %w", err)
	}
	for _, flag := range payload.Features {
		if err := core.ValidateFlag(flag); err != nil {
			return core.DefinitionSet{}, fmt.Errorf("kestrel: invalid definitions payload: %w", err)
		}
	}

	span.SetAttributes(attribute.Int("kestrel.definitions.count", len(payload.Features)))
	return core.NewDefinitionSet(payload.Features), nil
}

// DeliverEvents posts a telemetry batch to the event sink. A response with
// success=false is treated exactly like a transport failure.
func (c *Client) DeliverEvents(ctx context.Context, events []buffer.Event) error {
	ctx, span := c.tracer.Start(ctx, "kestrel.events.deliver",
		trace.WithAttributes(attribute.Int("kestrel.events.count", len(events))))
	defer span.End()

	resp, err := c.do(ctx, http.MethodPost, eventsPath, wireEventsRequest{Events: events})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var payload wireEventsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("kestrel: decode events response: %w", err)
	}
	if !payload.Success {
		return fmt.Errorf("kestrel: event sink rejected batch of %d", len(events))
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("kestrel: marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("kestrel: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("kestrel: http: %w", err)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(resp.Body)
		return nil, &Error{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}
	return resp, nil
}
