package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/xraph/jobqueue/entry"
	"github.com/xraph/jobqueue/stats"
)

// Counts returns the number of enqueued, failed and dead entries.
func (c *Client) Counts(ctx context.Context) (entry.Counts, error) {
	var out entry.Counts
	err := c.do(ctx, http.MethodGet, "/api/counts", nil, &out)
	return out, err
}

// EnqueuedEntries returns enqueued entries, oldest first.
func (c *Client) EnqueuedEntries(ctx context.Context) ([]*entry.Entry, error) {
	return c.list(ctx, "enqueued")
}

// FailedEntries returns failed entries, newest first.
func (c *Client) FailedEntries(ctx context.Context) ([]*entry.Entry, error) {
	return c.list(ctx, "failed")
}

// DeadEntries returns dead entries, oldest first.
func (c *Client) DeadEntries(ctx context.Context) ([]*entry.Entry, error) {
	return c.list(ctx, "dead")
}

func (c *Client) list(ctx context.Context, state string) ([]*entry.Entry, error) {
	var out []*entry.Entry
	if err := c.do(ctx, http.MethodGet, "/api/jobs/"+state, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Entry returns one entry by id.
func (c *Client) Entry(ctx context.Context, id int64) (*entry.Entry, error) {
	var out entry.Entry
	if err := c.do(ctx, http.MethodGet, entryPath(id, ""), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RetryAsync re-runs a finished entry as soon as possible and returns the
// replacement.
func (c *Client) RetryAsync(ctx context.Context, id int64) (*entry.Entry, error) {
	return c.retry(ctx, entryPath(id, "/retry-async"), nil)
}

// RetryAt re-runs a finished entry at at.
func (c *Client) RetryAt(ctx context.Context, id int64, at time.Time) (*entry.Entry, error) {
	return c.retry(ctx, entryPath(id, "/retry-at"), map[string]any{"runAt": at.UTC()})
}

// RetryIn re-runs a finished entry after d.
func (c *Client) RetryIn(ctx context.Context, id int64, d time.Duration) (*entry.Entry, error) {
	return c.retry(ctx, entryPath(id, "/retry-in"), map[string]any{"delayMs": d.Milliseconds()})
}

func (c *Client) retry(ctx context.Context, path string, body any) (*entry.Entry, error) {
	var out entry.Entry
	if err := c.do(ctx, http.MethodPost, path, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Series is a decoded stats response.
type Series struct {
	Granularity stats.Granularity   `json:"granularity"`
	Boundaries  []time.Time         `json:"boundaries"`
	Series      []stats.StateSeries `json:"series"`
}

// For returns the counts for state, or nil.
func (s *Series) For(state entry.State) []int {
	for _, ss := range s.Series {
		if ss.State == state.String() {
			return ss.Counts
		}
	}
	return nil
}

// Stats buckets state changes between start and end. Zero bounds use the
// server defaults; an empty granularity means hourly.
func (c *Client) Stats(ctx context.Context, start, end time.Time, g stats.Granularity) (*Series, error) {
	q := url.Values{}
	if !start.IsZero() {
		q.Set("start", strconv.FormatInt(start.UnixMilli(), 10))
	}
	if !end.IsZero() {
		q.Set("end", strconv.FormatInt(end.UnixMilli(), 10))
	}
	if g != "" {
		q.Set("granularity", string(g))
	}
	path := "/api/stats"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out Series
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Lane describes one configured lane on the server.
type Lane struct {
	Name    string `json:"name"`
	Weight  int    `json:"weight"`
	Waiting int    `json:"waiting"`
}

// Lanes is the server's lane and load snapshot.
type Lanes struct {
	Lanes     []Lane `json:"lanes"`
	Running   int    `json:"running"`
	Pending   int    `json:"pending"`
	Scheduled int    `json:"scheduled"`
}

// Lanes returns the configured lanes and current load.
func (c *Client) Lanes(ctx context.Context) (*Lanes, error) {
	var out Lanes
	if err := c.do(ctx, http.MethodGet, "/api/lanes", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func entryPath(id int64, suffix string) string {
	return "/api/jobs/" + strconv.FormatInt(id, 10) + suffix
}
