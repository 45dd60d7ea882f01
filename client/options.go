package client

import (
	"log/slog"
	"net/http"

	"github.com/xraph/jobqueue/stream"
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for API calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithHeader adds a header to every request and to the websocket
// handshake, e.g. credentials for a proxy in front of the API.
func WithHeader(key, value string) Option {
	return func(c *Client) { c.header.Add(key, value) }
}

// WithFormat sets the event feed encoding: "json" (default) or "msgpack".
func WithFormat(format string) Option {
	return func(c *Client) { c.format = format }
}

// WithEventTypes narrows Subscribe to the listed event types.
func WithEventTypes(types ...stream.EventType) Option {
	return func(c *Client) { c.types = append(c.types, types...) }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}
