// Package client talks to the core commerce service that owns stores
// and consumes forwarded events.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/yonalabs/commerce-relay/pkg/relay"
)

var ErrStoreNotFound = errors.New("store not found")

// Store is the core service's view of a connected shop.
type Store struct {
	ID     string `json:"id"`
	Domain string `json:"domain"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

type Options struct {
	URL     string
	APIKey  string
	Timeout time.Duration

	Logger *logrus.Entry

	// HTTPClient overrides the default client, mainly for tests.
	HTTPClient *http.Client
}

type CoreService struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *logrus.Entry
}

func NewCoreService(opts Options) (*CoreService, error) {
	if opts.URL == "" {
		return nil, errors.New("core service URL is required")
	}
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	logger := opts.Logger
	if logger == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		logger = logrus.NewEntry(l)
	}

	return &CoreService{
		baseURL: opts.URL,
		apiKey:  opts.APIKey,
		http:    httpClient,
		logger:  logger,
	}, nil
}

type forwardPayload struct {
	EventType  string          `json:"event_type"`
	StoreID    string          `json:"store_id"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// ForwardEvent posts a queued event to the core service's event intake.
func (c *CoreService) ForwardEvent(ctx context.Context, ev relay.QueuedEvent) error {
	body, err := json.Marshal(forwardPayload{
		EventType:  ev.EventType,
		StoreID:    ev.StoreID,
		OccurredAt: ev.OccurredAt,
		Payload:    ev.Payload,
	})
	if err != nil {
		return errors.Wrap(err, "marshal event")
	}

	resp, err := c.do(ctx, http.MethodPost, "/api/v1/events", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.statusError(resp, "forward event")
	}
	return nil
}

// StoreByDomain resolves a shop domain to a registered store. It
// returns ErrStoreNotFound when the core service does not know the
// domain.
func (c *CoreService) StoreByDomain(ctx context.Context, domain string) (*Store, error) {
	path := "/api/v1/stores/domain/" + url.PathEscape(domain)
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrStoreNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(resp, "store lookup")
	}

	var store Store
	if err := json.NewDecoder(resp.Body).Decode(&store); err != nil {
		return nil, errors.Wrap(err, "decode store")
	}
	return &store, nil
}

// StoreByID fetches a store by its identifier.
func (c *CoreService) StoreByID(ctx context.Context, id string) (*Store, error) {
	path := "/api/v1/stores/" + url.PathEscape(id)
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrStoreNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(resp, "store lookup")
	}

	var store Store
	if err := json.NewDecoder(resp.Body).Decode(&store); err != nil {
		return nil, errors.Wrap(err, "decode store")
	}
	return &store, nil
}

// MarkUninstalled flips a store to uninstalled after an app/uninstalled
// webhook.
func (c *CoreService) MarkUninstalled(ctx context.Context, storeID string) error {
	body := []byte(`{"status":"uninstalled"}`)
	path := "/api/v1/stores/" + url.PathEscape(storeID)
	resp, err := c.do(ctx, http.MethodPatch, path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.statusError(resp, "mark uninstalled")
	}
	return nil
}

// Health probes the core service's health endpoint.
func (c *CoreService) Health(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return c.statusError(resp, "health check")
	}
	return nil
}

func (c *CoreService) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "core service %s %s", method, path)
	}
	return resp, nil
}

func (c *CoreService) statusError(resp *http.Response, op string) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return errors.Errorf("%s: core service returned %d: %s", op, resp.StatusCode, string(snippet))
}

// Dispatcher adapts the client to the relay's dispatch contract.
func (c *CoreService) Dispatcher() relay.Dispatcher {
	return relay.DispatcherFunc(func(ctx context.Context, ev relay.QueuedEvent) error {
		err := c.ForwardEvent(ctx, ev)
		if err != nil {
			c.logger.WithError(err).WithField("event_id", ev.ID).Debug("forward attempt failed")
		}
		return err
	})
}
