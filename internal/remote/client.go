// Package remote is a thin request/response wrapper around the remote REST
// API. Transport and application errors are normalized into typed errors so
// the sync engine never sees a raw transport failure.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MHMDHIDR/expenses-tracker/internal/models"
)

// APIKeyHeader is the authentication header the remote API expects.
const APIKeyHeader = "X-API-Key"

// APIError is a non-2xx response carrying the server's human-readable
// message verbatim.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

// NetworkError wraps a transport-level failure: the remote was unreachable
// or the connection broke mid-request.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// IsNetworkError reports whether err is a transport-level failure.
func IsNetworkError(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// Client talks to the remote expenses API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient creates a client for the given base URL. The transport timeout
// is the only timeout the sync core relies on.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// do issues one request and decodes the response into out (when non-nil).
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set(APIKeyHeader, c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr models.ErrorResponse
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if json.Unmarshal(data, &apiErr) != nil || apiErr.Error == "" {
			apiErr.Error = fmt.Sprintf("request failed with status %d", resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: apiErr.Error}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// Health probes the remote liveness endpoint.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

// ListReceipts fetches all remote receipts.
func (c *Client) ListReceipts(ctx context.Context) ([]models.RemoteReceipt, error) {
	var out []models.RemoteReceipt
	if err := c.do(ctx, http.MethodGet, "/receipts", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetReceipt fetches one remote receipt by id.
func (c *Client) GetReceipt(ctx context.Context, id string) (models.RemoteReceipt, error) {
	var out models.RemoteReceipt
	err := c.do(ctx, http.MethodGet, "/receipts/"+url.PathEscape(id), nil, &out)
	return out, err
}

// CreateReceipt creates a receipt remotely and returns the record with its
// server-assigned id.
func (c *Client) CreateReceipt(ctx context.Context, r models.RemoteReceipt) (models.RemoteReceipt, error) {
	var out models.RemoteReceipt
	err := c.do(ctx, http.MethodPost, "/receipts", r, &out)
	return out, err
}

// UpdateReceipt applies a partial update to a remote receipt.
func (c *Client) UpdateReceipt(ctx context.Context, id string, p models.ReceiptPatch) (models.RemoteReceipt, error) {
	var out models.RemoteReceipt
	err := c.do(ctx, http.MethodPatch, "/receipts/"+url.PathEscape(id), p, &out)
	return out, err
}

// DeleteReceipt deletes a remote receipt. The endpoint is idempotent: an
// absent id still reports success.
func (c *Client) DeleteReceipt(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/receipts/"+url.PathEscape(id), nil, nil)
}

// ListItems fetches all remote items.
func (c *Client) ListItems(ctx context.Context) ([]models.RemoteItem, error) {
	var out []models.RemoteItem
	if err := c.do(ctx, http.MethodGet, "/items", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetItem fetches one remote item by id.
func (c *Client) GetItem(ctx context.Context, id string) (models.RemoteItem, error) {
	var out models.RemoteItem
	err := c.do(ctx, http.MethodGet, "/items/"+url.PathEscape(id), nil, &out)
	return out, err
}

// CreateItem creates an item remotely and returns the record with its
// server-assigned id.
func (c *Client) CreateItem(ctx context.Context, it models.RemoteItem) (models.RemoteItem, error) {
	var out models.RemoteItem
	err := c.do(ctx, http.MethodPost, "/items", it, &out)
	return out, err
}

// BulkCreateItems batch-creates items; the response preserves input order.
func (c *Client) BulkCreateItems(ctx context.Context, items []models.RemoteItem) ([]models.RemoteItem, error) {
	var out []models.RemoteItem
	err := c.do(ctx, http.MethodPost, "/items/bulk", models.BulkCreateItemsRequest{Items: items}, &out)
	return out, err
}

// UpdateItem applies a partial update to a remote item.
func (c *Client) UpdateItem(ctx context.Context, id string, p models.ItemPatch) (models.RemoteItem, error) {
	var out models.RemoteItem
	err := c.do(ctx, http.MethodPatch, "/items/"+url.PathEscape(id), p, &out)
	return out, err
}

// DeleteItem deletes a remote item; idempotent like DeleteReceipt.
func (c *Client) DeleteItem(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/items/"+url.PathEscape(id), nil, nil)
}

// GetSettings fetches the settings singleton; the server creates a default
// if absent.
func (c *Client) GetSettings(ctx context.Context) (models.RemoteSettings, error) {
	var out models.RemoteSettings
	err := c.do(ctx, http.MethodGet, "/settings", nil, &out)
	return out, err
}

// PutSettings upserts the settings singleton. The endpoint is idempotent
// PUT-style and serves both create and update.
func (c *Client) PutSettings(ctx context.Context, s models.RemoteSettings) (models.RemoteSettings, error) {
	var out models.RemoteSettings
	err := c.do(ctx, http.MethodPut, "/settings", s, &out)
	return out, err
}

// FetchAll pulls the remote store's complete snapshot.
func (c *Client) FetchAll(ctx context.Context) (*models.SyncSnapshot, error) {
	var out models.SyncSnapshot
	if err := c.do(ctx, http.MethodGet, "/sync/all", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// BulkPush pushes a batch of records keyed by client-local ids and returns
// the local-id-to-server-id mapping.
func (c *Client) BulkPush(ctx context.Context, req models.BulkPushRequest) (*models.BulkPushResponse, error) {
	var out models.BulkPushResponse
	if err := c.do(ctx, http.MethodPost, "/sync", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
