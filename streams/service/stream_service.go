package service

import (
	"context"
	"slices"
	"strings"

	"github.com/imtaco/stream-coordinator/internal/errors"
	"github.com/imtaco/stream-coordinator/internal/jwt"
	"github.com/imtaco/stream-coordinator/internal/livekit"
	"github.com/imtaco/stream-coordinator/internal/log"
	intotel "github.com/imtaco/stream-coordinator/internal/otel"
	"github.com/imtaco/stream-coordinator/streams"
)

const tracerName = "streams.service"

type streamSvcImpl struct {
	store     streams.Store
	lifecycle streams.Lifecycle
	rooms     livekit.RoomService
	auth      jwt.Auth
	logger    *log.Logger
}

func NewStreamService(
	store streams.Store,
	lifecycle streams.Lifecycle,
	rooms livekit.RoomService,
	auth jwt.Auth,
	logger *log.Logger,
) streams.StreamService {
	return &streamSvcImpl{
		store:     store,
		lifecycle: lifecycle,
		rooms:     rooms,
		auth:      auth,
		logger:    logger,
	}
}

// CreateStream uses name as the stream id. When the room service already has
// the room the projection is still ensured, and created is false.
func (ss *streamSvcImpl) CreateStream(ctx context.Context, name string) (_ string, _ bool, err error) {
	ctx, span := intotel.StartSpan(ctx, tracerName, "stream.create")
	defer func() { intotel.EndSpan(span, err) }()

	existing, err := ss.rooms.ListRooms(ctx, []string{name})
	if err != nil {
		roomFailures.Add(ctx, 1)
		return "", false, errors.Wrap(streams.ErrRoomService, err, "list rooms")
	}
	exists := slices.ContainsFunc(existing, func(r livekit.Room) bool { return r.Name == name })

	if !exists {
		if _, err := ss.rooms.CreateRoom(ctx, name); err != nil {
			roomFailures.Add(ctx, 1)
			return "", false, errors.Wrap(streams.ErrRoomService, err, "create room")
		}
		roomsCreated.Add(ctx, 1)
		ss.logger.Info("room created", log.StreamID(name))
	}

	if _, _, err := ss.lifecycle.Create(ctx, name); err != nil {
		return "", false, err
	}
	return name, !exists, nil
}

// DeleteStream closes the room and finishes the projection. A room the
// service no longer has is not an error.
func (ss *streamSvcImpl) DeleteStream(ctx context.Context, streamID string) (err error) {
	ctx, span := intotel.StartSpan(ctx, tracerName, "stream.delete")
	defer func() { intotel.EndSpan(span, err) }()

	if err := ss.rooms.DeleteRoom(ctx, streamID); err != nil {
		if !errors.Is(err, livekit.ErrNotFound) {
			roomFailures.Add(ctx, 1)
			return errors.Wrap(streams.ErrRoomService, err, "delete room")
		}
		ss.logger.Debug("room already gone", log.StreamID(streamID))
	} else {
		roomsDeleted.Add(ctx, 1)
	}

	_, err = ss.lifecycle.Finish(ctx, streamID)
	return err
}

func (ss *streamSvcImpl) JoinStream(_ context.Context, streamID, userID string) (string, error) {
	token, err := ss.auth.Sign(userID, jwt.VideoGrant{RoomJoin: true, Room: streamID})
	if err != nil {
		return "", errors.Wrap(streams.ErrInvalidRequest, err, "sign join token")
	}
	tokensIssued.Add(context.Background(), 1)
	return token, nil
}

func (ss *streamSvcImpl) GetState(ctx context.Context, streamID string) (*streams.StreamState, error) {
	state, err := ss.store.Read(ctx, streamID)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, errors.Newf(streams.ErrNotFound, "stream %s", streamID)
	}
	return state, nil
}

// ListActive returns active streams ordered by id.
func (ss *streamSvcImpl) ListActive(ctx context.Context) ([]streams.Summary, error) {
	ids, err := ss.store.ListIDs(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]streams.Summary, 0, len(ids))
	for _, id := range ids {
		state, err := ss.store.Read(ctx, id)
		if err != nil {
			return nil, err
		}
		if state.Active() {
			out = append(out, state.Summary())
		}
	}
	slices.SortFunc(out, func(a, b streams.Summary) int {
		return strings.Compare(a.StreamID, b.StreamID)
	})
	return out, nil
}

func (ss *streamSvcImpl) HandleWebhook(ctx context.Context, event *livekit.WebhookEvent) error {
	ev := streams.EventFromWebhook(event)
	ss.logger.Debug("webhook received",
		log.String("event", ev.Name), log.StreamID(ev.StreamID), log.Identity(ev.Identity))

	webhooksHandle.Add(ctx, 1)
	return ss.lifecycle.Apply(ctx, ev)
}
