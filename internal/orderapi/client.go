// Package orderapi is the HTTP client for the order-management service.
//
// The order service exposes a JSON API; this client wraps the handful of
// endpoints the dispatch pipeline needs and satisfies the dispatch
// package's Backend interface. Errors carry enough of the upstream status
// and body for the dispatch error mapping to classify them.
package orderapi

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

	"github.com/akl-logistics/dispatchdesk/internal/dispatch"
)

// DefaultTimeout bounds a single API call.
const DefaultTimeout = 15 * time.Second

// Client talks to the order-management service.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *slog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient swaps the underlying HTTP client, mainly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger attaches a logger for request-level diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// NewClient builds a client for the order service at baseURL. The API key
// is sent as a bearer token on every request.
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: DefaultTimeout},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListDrivers fetches the driver roster, internal and subcontracted.
func (c *Client) ListDrivers(ctx context.Context) ([]dispatch.Driver, error) {
	var out []dispatch.Driver
	if err := c.get(ctx, "/api/v1/drivers", &out); err != nil {
		return nil, fmt.Errorf("list drivers: %w", err)
	}
	return out, nil
}

// ListCustomers fetches the customer accounts orders are created under.
func (c *Client) ListCustomers(ctx context.Context) ([]dispatch.Customer, error) {
	var out []dispatch.Customer
	if err := c.get(ctx, "/api/v1/customers", &out); err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	return out, nil
}

// ListSites fetches the known pickup and delivery sites.
func (c *Client) ListSites(ctx context.Context) ([]dispatch.Site, error) {
	var out []dispatch.Site
	if err := c.get(ctx, "/api/v1/sites", &out); err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}
	return out, nil
}

// ListLocations fetches the geographic areas sites are grouped under.
func (c *Client) ListLocations(ctx context.Context) ([]dispatch.Location, error) {
	var out []dispatch.Location
	if err := c.get(ctx, "/api/v1/locations", &out); err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}
	return out, nil
}

// FindOrCreateSite resolves free text to a site, creating one on the order
// service when nothing matches.
func (c *Client) FindOrCreateSite(ctx context.Context, searchText string, siteType dispatch.SiteType) (dispatch.Site, error) {
	in := struct {
		SearchText string            `json:"searchText"`
		Type       dispatch.SiteType `json:"type"`
	}{SearchText: searchText, Type: siteType}

	var out dispatch.Site
	if err := c.post(ctx, "/api/v1/sites/find-or-create", in, &out); err != nil {
		return dispatch.Site{}, fmt.Errorf("find or create site %q: %w", searchText, err)
	}
	return out, nil
}

// CreateOrder submits an order draft. A conflicting order code surfaces as
// dispatch.ErrDuplicateOrderCode.
func (c *Client) CreateOrder(ctx context.Context, draft dispatch.OrderDraft) (dispatch.Order, error) {
	var out dispatch.Order
	if err := c.post(ctx, "/api/v1/orders", draft, &out); err != nil {
		return dispatch.Order{}, fmt.Errorf("create order %s: %w", draft.OrderCode, err)
	}
	return out, nil
}

// AssignDriver attaches a driver and ETAs to an existing order.
func (c *Client) AssignDriver(ctx context.Context, assignment dispatch.DriverAssignment) error {
	path := fmt.Sprintf("/api/v1/orders/%s/assign-driver", url.PathEscape(assignment.OrderID))
	if err := c.post(ctx, path, assignment, nil); err != nil {
		return fmt.Errorf("assign driver to %s: %w", assignment.OrderID, err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	return c.do(ctx, http.MethodPost, path, in, out)
}

// do performs one JSON round trip and maps non-2xx responses to errors the
// dispatch error table understands.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	c.logger.Debug("order service call",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(started).Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.statusError(resp)
	}

	if out == nil {
		// Drain so the connection can be reused.
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// apiError is the order service's error envelope.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// statusError turns a non-2xx response into an error whose text the
// dispatch error patterns can classify.
func (c *Client) statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	detail := ""
	var envelope apiError
	if err := json.Unmarshal(raw, &envelope); err == nil {
		if envelope.Error != "" {
			detail = envelope.Error
		} else if envelope.Message != "" {
			detail = envelope.Message
		}
	}
	if detail == "" {
		detail = strings.TrimSpace(string(raw))
	}

	switch {
	case resp.StatusCode == http.StatusConflict || strings.Contains(strings.ToLower(detail), "duplicate"):
		return fmt.Errorf("%w: %s", dispatch.ErrDuplicateOrderCode, detail)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("rate limit: %s", detail)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("order rejected: not authorized (%s)", detail)
	case resp.StatusCode == http.StatusUnprocessableEntity || resp.StatusCode == http.StatusBadRequest:
		return fmt.Errorf("order rejected: %s", detail)
	case resp.StatusCode >= 500:
		return fmt.Errorf("backend error: status %d: %s", resp.StatusCode, detail)
	default:
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, detail)
	}
}
