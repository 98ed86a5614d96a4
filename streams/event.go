package streams

import (
	"time"

	"github.com/imtaco/stream-coordinator/internal/livekit"
)

// EventKind enumerates the notifications the lifecycle understands.
type EventKind int

const (
	KindUnknown EventKind = iota
	KindRoomStarted
	KindRoomFinished
	KindParticipantJoined
	KindParticipantLeft
)

func (k EventKind) String() string {
	switch k {
	case KindRoomStarted:
		return livekit.EventRoomStarted
	case KindRoomFinished:
		return livekit.EventRoomFinished
	case KindParticipantJoined:
		return livekit.EventParticipantJoined
	case KindParticipantLeft:
		return livekit.EventParticipantLeft
	default:
		return "unknown"
	}
}

// Event is a decoded room service notification.
type Event struct {
	ID       string
	Kind     EventKind
	Name     string // raw event name, kept for logging unknown kinds
	StreamID string
	Identity string
	At       time.Time
}

func ParseKind(name string) EventKind {
	switch name {
	case livekit.EventRoomStarted:
		return KindRoomStarted
	case livekit.EventRoomFinished:
		return KindRoomFinished
	case livekit.EventParticipantJoined:
		return KindParticipantJoined
	case livekit.EventParticipantLeft:
		return KindParticipantLeft
	default:
		return KindUnknown
	}
}

// EventFromWebhook maps a verified webhook payload to an Event.
// Participant events without an identity are downgraded to KindUnknown.
func EventFromWebhook(w *livekit.WebhookEvent) Event {
	e := Event{
		ID:       w.ID,
		Kind:     ParseKind(w.Event),
		Name:     w.Event,
		StreamID: w.RoomName(),
		Identity: w.Identity(),
		At:       w.Time(),
	}
	if (e.Kind == KindParticipantJoined || e.Kind == KindParticipantLeft) && e.Identity == "" {
		e.Kind = KindUnknown
	}
	return e
}
