package transport

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"

	"github.com/imtaco/stream-coordinator/internal/errors"
	"github.com/imtaco/stream-coordinator/internal/log"
	"github.com/imtaco/stream-coordinator/streams"
	"github.com/imtaco/stream-coordinator/streams/fanout"
)

// Message is the WebSocket frame pushed to observers.
type Message struct {
	Type     string               `json:"type"`
	StreamID string               `json:"streamId"`
	State    *streams.StreamState `json:"state,omitempty"`
}

const (
	messageState   = "state"
	messageDeleted = "deleted"
)

func newMessage(update streams.Update) Message {
	if update.Deleted() {
		return Message{Type: messageDeleted, StreamID: update.StreamID}
	}
	return Message{Type: messageState, StreamID: update.StreamID, State: update.State}
}

// streamWebSocket pushes the same updates as streamUpdates over a WebSocket.
// Inbound messages are discarded.
func (r *Router) streamWebSocket(c *gin.Context) {
	var uri StreamURI
	if err := c.ShouldBindUri(&uri); err != nil {
		r.bindFailed(c, err)
		return
	}

	obs, state, err := r.subscribe(c.Request.Context(), uri.StreamID)
	if err != nil {
		r.fail(c, "Failed to subscribe", err)
		return
	}
	if obs == nil {
		c.Status(http.StatusNotFound)
		return
	}
	defer r.broadcaster.Unsubscribe(obs)

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		OriginPatterns: r.cfg.AllowedOrigins,
	})
	if err != nil {
		r.logger.Error("WebSocket open failed",
			log.String("remote_addr", c.Request.RemoteAddr),
			log.Error(err))
		return
	}

	logger := r.logger.ForStream(uri.StreamID)
	ctx := conn.CloseRead(c.Request.Context())
	wsOpen.Add(ctx, 1)
	defer wsOpen.Add(context.Background(), -1)

	err = r.writePump(ctx, conn, obs, state)
	switch {
	case err == nil:
		conn.Close(websocket.StatusNormalClosure, "bye")
	case errors.Is(err, errShuttingDown):
		conn.Close(websocket.StatusGoingAway, "shutting down")
	case errors.Is(err, errObserverPruned):
		logger.Warn("websocket observer pruned", log.String("observer", obs.ID()))
		conn.Close(websocket.StatusPolicyViolation, "too slow")
	case websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled):
		_ = conn.CloseNow()
	default:
		logger.Debug("websocket closed", log.Error(err))
		_ = conn.CloseNow()
	}
}

const (
	errObserverPruned errors.Code = "observer pruned"
	errShuttingDown   errors.Code = "shutting down"
)

// writePump returns nil after pushing a deletion.
func (r *Router) writePump(ctx context.Context, conn *websocket.Conn, obs *fanout.Queue, state *streams.StreamState) error {
	write := func(msg Message) error {
		ctx, cancel := context.WithTimeout(ctx, r.cfg.WriteTimeout)
		defer cancel()
		return wsjson.Write(ctx, conn, msg)
	}
	if err := write(Message{Type: messageState, StreamID: obs.StreamID(), State: state}); err != nil {
		return err
	}

	ticker := time.NewTicker(r.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.closing:
			return errShuttingDown
		case <-obs.Done():
			return errObserverPruned
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, r.cfg.WriteTimeout)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				return err
			}
		case update := <-obs.C():
			if err := write(newMessage(update)); err != nil {
				return err
			}
			if update.Deleted() {
				return nil
			}
		}
	}
}
