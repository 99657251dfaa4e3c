// Package viewer fetches recorded sessions from the gaitlog API, tracks which
// ones are selected, and renders the selected sessions as one overlay chart
// plus a summary table.
package viewer

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

	"github.com/okian/gaitlog/internal/domain/model"
	"github.com/okian/gaitlog/internal/domain/types"
)

const defaultTimeout = 30 * time.Second

// Error kinds reported by Client. APIError matches them with errors.Is.
var (
	ErrNotFound = errors.New("session not found")
	ErrBadData  = errors.New("bad data")
)

// APIError is a non-2xx reply from the server.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("api: %d: %s", e.Status, e.Message)
}

// Is maps HTTP statuses onto the package error kinds.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	case ErrBadData:
		return e.Status == http.StatusUnprocessableEntity
	}
	return false
}

// Client talks to the /items API.
type Client struct {
	baseURL string
	http    *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(cl *Client) {
		if d > 0 {
			cl.http.Timeout = d
		}
	}
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// List returns the session summaries in server order.
func (c *Client) List(ctx context.Context) ([]types.Entry, error) {
	var out []types.Entry
	if err := c.do(ctx, http.MethodGet, "/items", nil, &out); err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}
	return out, nil
}

// Detail returns the summary and gait features of one session.
func (c *Client) Detail(ctx context.Context, id string) (types.Detail, error) {
	var out types.Detail
	if err := c.do(ctx, http.MethodGet, itemPath(id), nil, &out); err != nil {
		return types.Detail{}, fmt.Errorf("detail %s: %w", id, err)
	}
	if out.SessionID == "" {
		out.SessionID = id
	}
	return out, nil
}

// Samples returns the full accumulated record of one session.
func (c *Client) Samples(ctx context.Context, id string) (model.Session, error) {
	var out model.Session
	if err := c.do(ctx, http.MethodGet, itemPath(id)+"/samples", nil, &out); err != nil {
		return model.Session{}, fmt.Errorf("samples %s: %w", id, err)
	}
	return out, nil
}

// Delete removes a session and returns the server's confirmation.
func (c *Client) Delete(ctx context.Context, id string) (string, error) {
	var msg string
	if err := c.do(ctx, http.MethodDelete, itemPath(id), nil, &msg); err != nil {
		return "", fmt.Errorf("delete %s: %w", id, err)
	}
	return msg, nil
}

// Ingest posts one batch and returns the server's acknowledgement.
func (c *Client) Ingest(ctx context.Context, req types.IngestRequest) (string, error) {
	var msg string
	if err := c.do(ctx, http.MethodPost, "/items", req, &msg); err != nil {
		return "", fmt.Errorf("ingest %s: %w", req.ID(), err)
	}
	return msg, nil
}

func itemPath(id string) string {
	return "/items/" + url.PathEscape(id)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var eb struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		var msg string
		switch {
		case json.Unmarshal(data, &eb) == nil:
			apiErr.Code, apiErr.Message = eb.Code, eb.Message
		case json.Unmarshal(data, &msg) == nil:
			// Rejected writes carry the bare message.
			apiErr.Message = msg
		default:
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
