// Package client provides a Go client for the jobqueue admin API.
//
// Usage:
//
//	c := client.New("http://localhost:8080")
//
//	counts, err := c.Counts(ctx)
//	dead, err := c.DeadEntries(ctx)
//	replacement, err := c.RetryAsync(ctx, dead[0].ID)
//
//	// Watch lifecycle events.
//	events, err := c.Subscribe(ctx, "entries")
//	for evt := range events {
//	    fmt.Printf("%s %s\n", evt.Type, evt.Topic)
//	}
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/xraph/jobqueue"
	"github.com/xraph/jobqueue/stream"
)

// Client talks to a remote jobqueue admin API.
type Client struct {
	baseURL string
	http    *http.Client
	header  http.Header
	format  string
	types   []stream.EventType
	logger  *slog.Logger
}

// New creates a Client for the API mounted at baseURL, including any base
// path, e.g. "http://host:8080/admin/queue".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    http.DefaultClient,
		header:  make(http.Header),
		format:  "json",
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Name    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("jobqueue/client: %d %s: %s", e.Status, e.Name, e.Message)
}

// Is maps 404 responses to jobqueue.ErrEntryNotFound.
func (e *APIError) Is(target error) bool {
	return e.Status == http.StatusNotFound && target == jobqueue.ErrEntryNotFound
}

// do sends a request to path and decodes a JSON response into out.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("jobqueue/client: encode %s: %w", path, err)
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return fmt.Errorf("jobqueue/client: %w", err)
	}
	for k, vs := range c.header {
		req.Header[k] = append([]string(nil), vs...)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("jobqueue/client: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("jobqueue/client: decode %s: %w", path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode, Name: http.StatusText(resp.StatusCode)}
	var body struct {
		Error struct {
			Name    string `json:"name"`
			Message string `json:"message"`
		} `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(data, &body); err == nil && body.Error.Name != "" {
		apiErr.Name = body.Error.Name
		apiErr.Message = body.Error.Message
	} else {
		apiErr.Message = strings.TrimSpace(string(data))
	}
	return apiErr
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	return errors.Is(err, jobqueue.ErrEntryNotFound)
}
