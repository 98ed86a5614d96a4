package store

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/imtaco/stream-coordinator/internal/log"
	"github.com/imtaco/stream-coordinator/streams"
)

type subscription struct {
	ps        *redis.PubSub
	keys      keys
	ch        chan streams.Update
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
	logger    *log.Logger
}

func (s *subscription) Updates() <-chan streams.Update {
	return s.ch
}

// Close stops delivery and closes the Updates channel.
func (s *subscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.cancel()
		err = s.ps.Close()
		<-s.done
	})
	return err
}

func (s *subscription) run(ctx context.Context) {
	defer close(s.done)
	defer close(s.ch)

	msgs := s.ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			update, ok := s.decode(ctx, msg)
			if !ok {
				continue
			}
			received.Add(ctx, 1)
			// blocks when the consumer lags; go-redis buffers behind us
			select {
			case s.ch <- update:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *subscription) decode(ctx context.Context, msg *redis.Message) (streams.Update, bool) {
	streamID, ok := s.keys.idFromUpdates(msg.Channel)
	if !ok {
		malformedEvents.Add(ctx, 1)
		s.logger.Warn("update on unexpected channel", log.String("channel", msg.Channel))
		return streams.Update{}, false
	}

	var update streams.Update
	if err := json.Unmarshal([]byte(msg.Payload), &update); err != nil {
		malformedEvents.Add(ctx, 1)
		s.logger.Warn("malformed update", log.StreamID(streamID), log.Error(err))
		return streams.Update{}, false
	}
	// channel name is authoritative
	update.StreamID = streamID
	return update, true
}
