package livekit

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

//go:generate mockgen -source=types.go -destination=mocks/types.go -package=mocks

// RoomService is the subset of the LiveKit room API the coordinator uses.
type RoomService interface {
	// ListRooms returns the rooms among names that exist. Empty names lists every room.
	ListRooms(ctx context.Context, names []string) ([]Room, error)
	CreateRoom(ctx context.Context, name string) (*Room, error)
	// DeleteRoom returns an error matching ErrNotFound when the room does not exist.
	DeleteRoom(ctx context.Context, name string) error
}

// WebhookReceiver authenticates and decodes room service notifications.
type WebhookReceiver interface {
	Receive(r *http.Request) (*WebhookEvent, error)
}

type Room struct {
	Sid             string      `json:"sid"`
	Name            string      `json:"name"`
	EmptyTimeout    uint32      `json:"empty_timeout"`
	NumParticipants uint32      `json:"num_participants"`
	CreationTime    json.Number `json:"creation_time"`
}

type ParticipantInfo struct {
	Sid      string `json:"sid"`
	Identity string `json:"identity"`
	Name     string `json:"name,omitempty"`
}

type WebhookRoom struct {
	Sid  string `json:"sid"`
	Name string `json:"name"`
}

// WebhookEvent mirrors the JSON body LiveKit posts to webhook endpoints.
type WebhookEvent struct {
	ID          string           `json:"id"`
	Event       string           `json:"event"`
	Room        *WebhookRoom     `json:"room,omitempty"`
	Participant *ParticipantInfo `json:"participant,omitempty"`
	CreatedAt   json.Number      `json:"createdAt,omitempty"`
}

// Webhook event names.
const (
	EventRoomStarted       = "room_started"
	EventRoomFinished      = "room_finished"
	EventParticipantJoined = "participant_joined"
	EventParticipantLeft   = "participant_left"
)

// RoomName returns the room name or "" when the event has no room.
func (e *WebhookEvent) RoomName() string {
	if e.Room == nil {
		return ""
	}
	return e.Room.Name
}

// Identity returns the participant identity or "".
func (e *WebhookEvent) Identity() string {
	if e.Participant == nil {
		return ""
	}
	return e.Participant.Identity
}

// Time returns the event creation time, or zero when absent.
func (e *WebhookEvent) Time() time.Time {
	sec, err := e.CreatedAt.Int64()
	if err != nil || sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
