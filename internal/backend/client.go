// Package backend is the HTTP client for the shopping-list REST API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/dukerupert/cartsync/internal/model"
)

const maxErrorBody = 4 << 10

// Config holds backend connection settings.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	// ProbeURL is requested by Ping. Defaults to BaseURL.
	ProbeURL string
}

// Client talks to the shopping-list backend.
type Client struct {
	baseURL    *url.URL
	probeURL   string
	token      string
	httpClient *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("backend base url is required")
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	probe := cfg.ProbeURL
	if probe == "" {
		probe = u.String()
	}
	return &Client{
		baseURL:  u,
		probeURL: probe,
		token:    cfg.Token,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}, nil
}

type listEnvelope struct {
	ShoppingList *model.ShoppingList `json:"shopping_list"`
}

type regenerateResponse struct {
	Success      bool                `json:"success"`
	ShoppingList *model.ShoppingList `json:"shopping_list,omitempty"`
	Error        string              `json:"error,omitempty"`
}

// GetList fetches a list.
func (c *Client) GetList(ctx context.Context, listID model.ID) (*model.ShoppingList, error) {
	var list model.ShoppingList
	if err := c.do(ctx, "get list", http.MethodGet, c.endpoint(nil, "shopping-lists", listID.String()), nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// ToggleItem sets one item's checked state and returns the updated list.
func (c *Client) ToggleItem(ctx context.Context, listID, itemID model.ID, checked bool) (*model.ShoppingList, error) {
	body := map[string]bool{"checked": checked}
	var env listEnvelope
	path := c.endpoint(nil, "shopping-lists", listID.String(), "items", itemID.String(), "toggle")
	if err := c.do(ctx, "toggle item", http.MethodPatch, path, body, &env); err != nil {
		return nil, err
	}
	return env.list()
}

// BulkToggle sets several items' checked states and returns the updated list.
func (c *Client) BulkToggle(ctx context.Context, listID model.ID, items []model.ItemToggle) (*model.ShoppingList, error) {
	body := struct {
		Items []model.ItemToggle `json:"items"`
	}{Items: items}
	var env listEnvelope
	path := c.endpoint(nil, "shopping-lists", listID.String(), "bulk-toggle")
	if err := c.do(ctx, "bulk toggle", http.MethodPatch, path, body, &env); err != nil {
		return nil, err
	}
	return env.list()
}

// Regenerate asks the server to rebuild the list. The returned list is nil
// when the server reported success without including it.
func (c *Client) Regenerate(ctx context.Context, listID model.ID, preserveChecked bool) (*model.ShoppingList, error) {
	body := map[string]bool{"preserve_checked_items": preserveChecked}
	var resp regenerateResponse
	path := c.endpoint(nil, "shopping-lists", listID.String(), "regenerate")
	if err := c.do(ctx, "regenerate", http.MethodPost, path, body, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		msg := resp.Error
		if msg == "" {
			msg = "regenerate failed"
		}
		return nil, &ApplicationError{Message: msg}
	}
	return resp.ShoppingList, nil
}

// Statistics returns the list statistics payload unmodified.
func (c *Client) Statistics(ctx context.Context, listID model.ID) (json.RawMessage, error) {
	var raw json.RawMessage
	path := c.endpoint(nil, "shopping-lists", listID.String(), "statistics")
	if err := c.do(ctx, "statistics", http.MethodGet, path, nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// History returns one page of list history unmodified.
func (c *Client) History(ctx context.Context, listID model.ID, page, perPage int) (json.RawMessage, error) {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if perPage > 0 {
		q.Set("per_page", strconv.Itoa(perPage))
	}
	var raw json.RawMessage
	path := c.endpoint(q, "shopping-lists", listID.String(), "history")
	if err := c.do(ctx, "history", http.MethodGet, path, nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// ExportData requests an export of the list's data. body is sent as-is and
// may be nil.
func (c *Client) ExportData(ctx context.Context, listID model.ID, body json.RawMessage) (json.RawMessage, error) {
	var reqBody any
	if len(body) > 0 {
		reqBody = body
	}
	var raw json.RawMessage
	path := c.endpoint(nil, "shopping-lists", listID.String(), "export-data")
	if err := c.do(ctx, "export data", http.MethodPost, path, reqBody, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// Ping reports whether the backend is reachable. Any HTTP response counts.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.probeURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &ConnectivityError{Op: "ping", Err: err}
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	resp.Body.Close()
	return nil
}

func (e listEnvelope) list() (*model.ShoppingList, error) {
	if e.ShoppingList == nil {
		return nil, &ApplicationError{Message: "response missing shopping_list"}
	}
	return e.ShoppingList, nil
}

func (c *Client) endpoint(q url.Values, segments ...string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	u := c.baseURL.JoinPath(escaped...)
	if len(q) > 0 {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func (c *Client) do(ctx context.Context, op, method, endpoint string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", op, err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", op, err)
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
		return &ConnectivityError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &ApplicationError{Status: resp.StatusCode, Message: errorMessage(resp.Body)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ApplicationError{Status: resp.StatusCode, Message: fmt.Sprintf("%s: decode response: %v", op, err)}
	}
	return nil
}

// errorMessage extracts a message from an error response body.
func errorMessage(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &body) == nil {
		if body.Error != "" {
			return body.Error
		}
		if body.Message != "" {
			return body.Message
		}
	}
	return string(bytes.TrimSpace(data))
}
