package api

import (
	"log/slog"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/xraph/jobqueue/stream"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Feed encodings accepted in ?format=.
const (
	FormatJSON    = "json"
	FormatMsgpack = "msgpack"
)

// events upgrades to a websocket and forwards broker events for the
// topics named in ?topic= (comma separated, default firehose), optionally
// narrowed to the event types in ?types=. With ?format=msgpack events are
// sent as binary MessagePack frames.
func (a *API) events(c *gin.Context) {
	topics, err := stream.ParseTopics(c.Query("topic"))
	if err != nil {
		a.fail(c, invalid(err.Error()))
		return
	}
	types, err := stream.ParseEventTypes(c.Query("types"))
	if err != nil {
		a.fail(c, invalid(err.Error()))
		return
	}
	var filter stream.Filter
	if len(types) > 0 {
		filter = stream.OnlyTypes(types...)
	}
	format := c.DefaultQuery("format", FormatJSON)
	if format != FormatJSON && format != FormatMsgpack {
		a.fail(c, invalid("unknown format "+format))
		return
	}

	// Subscribe before the handshake completes so no event emitted after
	// the client sees the upgrade is missed.
	subID := "ws-" + uuid.NewString()
	sub := a.broker.SubscribeFiltered(subID, filter, topics...)
	defer a.broker.RemoveSubscriber(subID)

	conn, err := a.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		a.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	a.logger.Debug("event feed connected",
		slog.String("subscriber_id", subID),
		slog.String("topics", strings.Join(topics, ",")),
	)

	// The read loop only services control frames and notices disconnects.
	gone := make(chan struct{})
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-gone:
			return
		case evt, ok := <-sub.C():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
				return
			}
			if err := writeEvent(conn, format, evt); err != nil {
				a.logger.Debug("event feed write failed",
					slog.String("subscriber_id", subID),
					slog.String("error", err.Error()),
				)
				return
			}
			sub.AddCredits(1)
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeEvent(conn *websocket.Conn, format string, evt *stream.Event) error {
	if format == FormatMsgpack {
		data, err := msgpack.Marshal(evt)
		if err != nil {
			return err
		}
		return conn.WriteMessage(websocket.BinaryMessage, data)
	}
	return conn.WriteJSON(evt)
}
