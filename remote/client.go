/*
Package remote implements the entity gateways against the hosted backend.

PURPOSE:
  The backend is a PostgREST-style REST service over Postgres: one route
  per table, snake_case rows, row-level security keyed on user_id. This
  package owns the wire format (row codecs), the HTTP plumbing, and the
  translation of backend responses into the syncer error taxonomy, so
  nothing above it ever inspects a status code.

ERROR TRANSLATION:
  401/403                         -> ErrAuthRequired
  404, PostgREST PGRST116 (no rows) -> ErrNotFound
  409, Postgres 23505 (unique)      -> ErrDuplicateKey
  transport failure, 5xx            -> ErrUnreachable

KEY CONCEPTS IN THIS FILE (client.go):
  - Client: shared HTTP transport with api-key auth
  - do: one request/response cycle with taxonomy translation
  - Probe: the connectivity oracle, a cheap re-query per call

SEE ALSO:
  - rows.go: snake_case row codecs
  - gateway.go: typed gateways and the syncer.Gateway adapters
*/
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/soffoalbert/buzo-sync/syncer"
)

// =============================================================================
// CLIENT
// =============================================================================

// Client is the shared transport for all gateways.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the transport, mainly for tests.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a client for the backend at baseURL. The api key is
// sent both as the apikey header and as a bearer token, the PostgREST
// convention.
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 15 * time.Second},
		logger:  slog.Default().With("component", "remote"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// backendError is the PostgREST error body.
type backendError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
}

// do runs one request and decodes the response into out (out may be nil).
// op/kind/entityID only label the error for logs and errors.Is chains.
func (c *Client) do(ctx context.Context, op syncer.Operation, kind syncer.EntityKind, entityID,
	method, table string, query url.Values, body, out any) error {

	u := c.baseURL + "/rest/v1/" + table
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", table, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("build %s request: %w", table, err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	// Writes come back with the stored row so callers can adopt
	// backend-side defaults.
	if method != http.MethodGet {
		req.Header.Set("Prefer", "return=representation")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &syncer.GatewayError{
			Op: op, Kind: kind, EntityID: entityID,
			Message: err.Error(), Err: syncer.ErrUnreachable,
		}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &syncer.GatewayError{
			Op: op, Kind: kind, EntityID: entityID,
			StatusCode: resp.StatusCode, Message: err.Error(), Err: syncer.ErrUnreachable,
		}
	}

	if resp.StatusCode >= 400 {
		return c.translate(op, kind, entityID, resp.StatusCode, raw)
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode %s response: %w", table, err)
		}
	}
	return nil
}

// translate maps an HTTP failure onto the taxonomy.
func (c *Client) translate(op syncer.Operation, kind syncer.EntityKind, entityID string, status int, raw []byte) error {
	var be backendError
	json.Unmarshal(raw, &be)

	sentinel := syncer.ErrUnreachable
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		sentinel = syncer.ErrAuthRequired
	case status == http.StatusNotFound || be.Code == "PGRST116":
		sentinel = syncer.ErrNotFound
	case status == http.StatusConflict || be.Code == "23505":
		sentinel = syncer.ErrDuplicateKey
	}

	msg := be.Message
	if msg == "" {
		msg = strings.TrimSpace(string(raw))
	}
	return &syncer.GatewayError{
		Op: op, Kind: kind, EntityID: entityID,
		StatusCode: status, Message: msg, Err: sentinel,
	}
}

// =============================================================================
// CONNECTIVITY PROBE
// =============================================================================

// Probe implements syncer.Connectivity by hitting the backend root with a
// short deadline. Every call re-queries; there is no caching. Any HTTP
// answer counts as online - even an auth rejection proves reachability.
type Probe struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

// NewProbe creates a connectivity probe for the backend at baseURL.
func NewProbe(baseURL, apiKey string) *Probe {
	return &Probe{
		client:  &http.Client{Timeout: 3 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
	}
}

func (p *Probe) Online(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.baseURL+"/rest/v1/", nil)
	if err != nil {
		return false
	}
	req.Header.Set("apikey", p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}
