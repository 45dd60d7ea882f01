package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xraph/jobqueue/stats"
)

// DefaultStatsWindow is the range used when /api/stats omits start.
const DefaultStatsWindow = 24 * time.Hour

// LaneResponse describes one configured lane.
type LaneResponse struct {
	Name    string `json:"name"`
	Weight  int    `json:"weight"`
	Waiting int    `json:"waiting"`
}

// LanesResponse is the body of GET /api/lanes.
type LanesResponse struct {
	Lanes     []LaneResponse `json:"lanes"`
	Running   int            `json:"running"`
	Pending   int            `json:"pending"`
	Scheduled int            `json:"scheduled"`
}

func (a *API) lanes(c *gin.Context) {
	cfg := a.eng.Config()
	resp := LanesResponse{
		Lanes:     make([]LaneResponse, 0, len(cfg.Lanes)),
		Running:   a.eng.Running(),
		Pending:   a.eng.Pending(),
		Scheduled: a.eng.Scheduled(),
	}
	for _, l := range cfg.Lanes {
		weight := l.Weight
		if weight < 1 {
			weight = 1
		}
		resp.Lanes = append(resp.Lanes, LaneResponse{
			Name:    l.Name,
			Weight:  weight,
			Waiting: a.eng.LaneSize(l.Name),
		})
	}
	c.JSON(http.StatusOK, resp)
}

func (a *API) stats(c *gin.Context) {
	g := stats.Hour
	if raw := c.Query("granularity"); raw != "" {
		parsed, err := stats.ParseGranularity(raw)
		if err != nil {
			a.fail(c, err)
			return
		}
		g = parsed
	}

	end := a.eng.Now()
	if raw := c.Query("end"); raw != "" {
		t, err := parseTime(raw)
		if err != nil {
			a.fail(c, invalid("invalid end: "+err.Error()))
			return
		}
		end = t
	}
	start := end.Add(-DefaultStatsWindow)
	if raw := c.Query("start"); raw != "" {
		t, err := parseTime(raw)
		if err != nil {
			a.fail(c, invalid("invalid start: "+err.Error()))
			return
		}
		start = t
	}
	if start.After(end) {
		a.fail(c, invalid("start must not be after end"))
		return
	}

	series, err := a.eng.Stats(c.Request.Context(), start, end, g)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, series)
}

// parseTime accepts RFC 3339 or Unix milliseconds.
func parseTime(raw string) (time.Time, error) {
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func (a *API) cronEntries(c *gin.Context) {
	c.JSON(http.StatusOK, a.cron.Entries())
}
