package transport

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"

	"github.com/imtaco/stream-coordinator/internal/log"
	"github.com/imtaco/stream-coordinator/streams"
	"github.com/imtaco/stream-coordinator/streams/fanout"
)

const eventDeleted = "deleted"

// subscribe registers an observer and waits for its initial snapshot. A nil
// queue with no error means the stream does not exist.
func (r *Router) subscribe(ctx context.Context, streamID string) (*fanout.Queue, *streams.StreamState, error) {
	obs := fanout.NewQueue(streamID, r.cfg.QueueSize)
	if err := r.broadcaster.Subscribe(ctx, obs); err != nil {
		return nil, nil, err
	}
	initial := <-obs.C()
	if initial.Deleted() {
		r.broadcaster.Unsubscribe(obs)
		return nil, nil, nil
	}
	return obs, initial.State, nil
}

// streamUpdates serves the initial snapshot and one event per mutation as
// server-sent events. The stream ends after a deletion.
func (r *Router) streamUpdates(c *gin.Context) {
	var uri StreamURI
	if err := c.ShouldBindUri(&uri); err != nil {
		r.bindFailed(c, err)
		return
	}
	ctx := c.Request.Context()

	obs, state, err := r.subscribe(ctx, uri.StreamID)
	if err != nil {
		r.fail(c, "Failed to subscribe", err)
		return
	}
	if obs == nil {
		c.Status(http.StatusNotFound)
		return
	}
	defer r.broadcaster.Unsubscribe(obs)

	sseOpen.Add(ctx, 1)
	defer sseOpen.Add(context.Background(), -1)
	logger := r.logger.ForStream(uri.StreamID)
	logger.Debug("sse observer connected", log.String("observer", obs.ID()))

	h := c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	w := c.Writer
	if _, err := io.WriteString(w, ": connected\n\n"); err != nil {
		return
	}
	if err := sse.Encode(w, sse.Event{Data: state}); err != nil {
		return
	}
	w.Flush()

	keepAlive := time.NewTicker(r.cfg.KeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.closing:
			return
		case <-obs.Done():
			logger.Debug("sse observer pruned", log.String("observer", obs.ID()))
			return
		case <-keepAlive.C:
			if _, err := io.WriteString(w, ": keepalive\n\n"); err != nil {
				return
			}
			w.Flush()
		case update := <-obs.C():
			if update.Deleted() {
				_ = sse.Encode(w, sse.Event{
					Event: eventDeleted,
					Data:  StreamIDResponse{StreamID: update.StreamID},
				})
				w.Flush()
				return
			}
			if err := sse.Encode(w, sse.Event{Data: update.State}); err != nil {
				return
			}
			w.Flush()
		}
	}
}
