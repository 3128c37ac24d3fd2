// Package api is the REST client for the Pawbase item endpoints: the
// fetch-all endpoint used by initial load and the poll fallback, the
// write endpoint whose synchronous echo resolves optimistic entries, and
// the mark-read endpoints.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/pawbase/petsync/pkg/logger"
	"github.com/pawbase/petsync/pkg/models"
)

// Error is a non-2xx response from the API.
type Error struct {
	StatusCode int
	Body       string
}

func (e *Error) Error() string {
	return fmt.Sprintf("api: unexpected status %d: %s", e.StatusCode, e.Body)
}

type Option func(c *Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func WithLogger(log logger.Logger) Option {
	return func(c *Client) { c.logger = log }
}

// Client calls the item endpoints under one base URL.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     logger.Logger
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: http.DefaultClient,
		logger:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// dataEnvelope is the response wrapper used by every item endpoint.
type dataEnvelope[T any] struct {
	Data T `json:"data"`
}

// createRequest is the write endpoint body.
type createRequest struct {
	SenderID string          `json:"sender_id"`
	Payload  json.RawMessage `json:"payload"`
}

// markReadRequest targets a single item; an empty ItemID marks the whole
// scope read.
type markReadRequest struct {
	ItemID string `json:"item_id,omitempty"`
}

// FetchAll retrieves the authoritative full item list for a scope. Used
// for the initial load and by the poll fallback scheduler; the reconciler
// makes repeated full-list delivery safe.
func (c *Client) FetchAll(ctx context.Context, scope models.Scope) ([]models.StreamItem, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	var out dataEnvelope[[]models.StreamItem]
	if err := c.do(ctx, http.MethodGet, c.listPath(scope), nil, &out); err != nil {
		return nil, fmt.Errorf("api: fetch-all for %v failed: %w", scope, err)
	}
	return out.Data, nil
}

// CreateItem submits a new item and returns the server-assigned record,
// including its generated id and created_at. The synchronous echo is what
// allows exact optimistic-entry matching, so a success without a usable
// record is treated as an error.
func (c *Client) CreateItem(ctx context.Context, scope models.Scope, senderID string, payload json.RawMessage) (models.StreamItem, error) {
	if err := scope.Validate(); err != nil {
		return models.StreamItem{}, err
	}

	body := createRequest{SenderID: senderID, Payload: payload}

	var out dataEnvelope[models.StreamItem]
	if err := c.do(ctx, http.MethodPost, c.listPath(scope), body, &out); err != nil {
		return models.StreamItem{}, fmt.Errorf("api: create in %v failed: %w", scope, err)
	}
	if err := out.Data.Validate(); err != nil {
		return models.StreamItem{}, fmt.Errorf("api: create echo unusable: %w", err)
	}
	return out.Data, nil
}

// MarkRead marks one item read.
func (c *Client) MarkRead(ctx context.Context, scope models.Scope, itemID string) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	if itemID == "" {
		return fmt.Errorf("%w: empty item id", models.ErrMalformedItem)
	}

	var method, path string
	if scope.Kind == models.ScopeNotificationFeed {
		method = http.MethodPatch
		path = fmt.Sprintf("/v1/users/%s/notifications/%s/read", scope.ID, itemID)
	} else {
		method = http.MethodPost
		path = fmt.Sprintf("/v1/sessions/%s/read", scope.ID)
	}

	if err := c.do(ctx, method, path, markReadRequest{ItemID: itemID}, nil); err != nil {
		return fmt.Errorf("api: mark-read %s in %v failed: %w", itemID, scope, err)
	}
	return nil
}

// MarkAllRead marks every item in the scope read.
func (c *Client) MarkAllRead(ctx context.Context, scope models.Scope) error {
	if err := scope.Validate(); err != nil {
		return err
	}

	var path string
	if scope.Kind == models.ScopeNotificationFeed {
		path = fmt.Sprintf("/v1/users/%s/notifications/read-all", scope.ID)
	} else {
		path = fmt.Sprintf("/v1/sessions/%s/read", scope.ID)
	}

	if err := c.do(ctx, http.MethodPost, path, markReadRequest{}, nil); err != nil {
		return fmt.Errorf("api: mark-all-read for %v failed: %w", scope, err)
	}
	return nil
}

func (c *Client) listPath(scope models.Scope) string {
	if scope.Kind == models.ScopeNotificationFeed {
		return fmt.Sprintf("/v1/users/%s/notifications", scope.ID)
	}
	return fmt.Sprintf("/v1/sessions/%s/messages", scope.ID)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &Error{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(data))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
