package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/url"
	"strings"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/xraph/jobqueue/stream"
)

// Subscribe opens the event feed for the given topics and returns a channel
// of events. With no topics the server sends the firehose; WithEventTypes
// narrows the feed further. The channel is
// closed when ctx is cancelled, the server shuts down, or the connection
// drops.
func (c *Client) Subscribe(ctx context.Context, topics ...string) (<-chan *stream.Event, error) {
	for _, t := range topics {
		if err := stream.ValidateTopic(t); err != nil {
			return nil, fmt.Errorf("jobqueue/client: %w", err)
		}
	}

	u, err := c.feedURL(topics)
	if err != nil {
		return nil, err
	}

	dialer := ws.Dialer{Header: ws.HandshakeHeaderHTTP(c.header)}
	conn, br, _, err := dialer.Dial(ctx, u)
	if err != nil {
		var status ws.StatusError
		if errors.As(err, &status) {
			return nil, &APIError{Status: int(status), Name: "Handshake", Message: err.Error()}
		}
		return nil, fmt.Errorf("jobqueue/client: websocket dial: %w", err)
	}

	// Frames sent right after the handshake may already sit in br.
	var rw io.ReadWriter = conn
	if br != nil {
		rw = struct {
			io.Reader
			io.Writer
		}{io.MultiReader(br, conn), conn}
	}

	out := make(chan *stream.Event, 64)
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()
	go c.readLoop(ctx, conn, rw, out)
	return out, nil
}

func (c *Client) readLoop(ctx context.Context, conn net.Conn, rw io.ReadWriter, out chan<- *stream.Event) {
	defer close(out)
	defer conn.Close()

	for {
		data, op, err := wsutil.ReadServerData(rw)
		if err != nil {
			var closed wsutil.ClosedError
			switch {
			case ctx.Err() != nil:
			case errors.As(err, &closed):
				c.logger.Debug("jobqueue/client: feed closed",
					slog.Int("code", int(closed.Code)),
					slog.String("reason", closed.Reason),
				)
			default:
				c.logger.Warn("jobqueue/client: feed read failed", slog.String("error", err.Error()))
			}
			return
		}

		evt, err := decodeEvent(op, data)
		if err != nil {
			c.logger.Warn("jobqueue/client: bad event frame", slog.String("error", err.Error()))
			continue
		}

		select {
		case out <- evt:
		case <-ctx.Done():
			return
		}
	}
}

func decodeEvent(op ws.OpCode, data []byte) (*stream.Event, error) {
	var evt stream.Event
	switch op {
	case ws.OpBinary:
		if err := msgpack.Unmarshal(data, &evt); err != nil {
			return nil, fmt.Errorf("decode msgpack event: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &evt); err != nil {
			return nil, fmt.Errorf("decode json event: %w", err)
		}
	}
	return &evt, nil
}

// feedURL turns the base URL into the websocket feed address.
func (c *Client) feedURL(topics []string) (string, error) {
	u, err := url.Parse(c.baseURL + "/api/events")
	if err != nil {
		return "", fmt.Errorf("jobqueue/client: parse base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}

	q := u.Query()
	if len(topics) > 0 {
		q.Set("topic", strings.Join(topics, ","))
	}
	if len(c.types) > 0 {
		types := make([]string, len(c.types))
		for i, t := range c.types {
			types[i] = string(t)
		}
		q.Set("types", strings.Join(types, ","))
	}
	if c.format != "" {
		q.Set("format", c.format)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
