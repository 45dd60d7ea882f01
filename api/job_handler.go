package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xraph/jobqueue/entry"
)

// RetryAtRequest is the body of POST /api/jobs/:id/retry-at.
type RetryAtRequest struct {
	RunAt time.Time `json:"runAt" binding:"required"`
}

// RetryInRequest is the body of POST /api/jobs/:id/retry-in.
type RetryInRequest struct {
	DelayMs int64 `json:"delayMs"`
}

func (a *API) counts(c *gin.Context) {
	counts, err := a.eng.Counts(c.Request.Context())
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, counts)
}

func (a *API) enqueued(c *gin.Context) { a.list(c, a.eng.EnqueuedEntries) }
func (a *API) failed(c *gin.Context)   { a.list(c, a.eng.FailedEntries) }
func (a *API) dead(c *gin.Context)     { a.list(c, a.eng.DeadEntries) }

func (a *API) list(c *gin.Context, fetch func(context.Context) ([]*entry.Entry, error)) {
	entries, err := fetch(c.Request.Context())
	if err != nil {
		a.fail(c, err)
		return
	}
	if entries == nil {
		entries = []*entry.Entry{}
	}
	c.JSON(http.StatusOK, entries)
}

func (a *API) getEntry(c *gin.Context) {
	id, err := entryID(c)
	if err != nil {
		a.fail(c, err)
		return
	}
	e, err := a.eng.Entry(c.Request.Context(), id)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

func (a *API) retryAsync(c *gin.Context) {
	id, err := entryID(c)
	if err != nil {
		a.fail(c, err)
		return
	}
	a.retried(c)(a.eng.RetryAsync(c.Request.Context(), id))
}

func (a *API) retryAt(c *gin.Context) {
	id, err := entryID(c)
	if err != nil {
		a.fail(c, err)
		return
	}
	var req RetryAtRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.fail(c, invalid("invalid body: "+err.Error()))
		return
	}
	a.retried(c)(a.eng.RetryAt(c.Request.Context(), id, req.RunAt))
}

func (a *API) retryIn(c *gin.Context) {
	id, err := entryID(c)
	if err != nil {
		a.fail(c, err)
		return
	}
	var req RetryInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.fail(c, invalid("invalid body: "+err.Error()))
		return
	}
	if req.DelayMs < 0 {
		a.fail(c, invalid("delayMs must not be negative"))
		return
	}
	d := time.Duration(req.DelayMs) * time.Millisecond
	a.retried(c)(a.eng.RetryIn(c.Request.Context(), id, d))
}

// retried writes the replacement entry of a manual retry.
func (a *API) retried(c *gin.Context) func(*entry.Entry, error) {
	return func(replacement *entry.Entry, err error) {
		if err != nil {
			a.fail(c, err)
			return
		}
		c.JSON(http.StatusCreated, replacement)
	}
}

func entryID(c *gin.Context) (int64, error) {
	raw := c.Param("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, invalid("invalid entry id " + strconv.Quote(raw))
	}
	return id, nil
}
