package livekit

import (
	"bytes"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imtaco/stream-coordinator/internal/errors"
	"github.com/imtaco/stream-coordinator/internal/jwt"
)

const joinedBody = `{"event":"participant_joined","id":"EV_1","createdAt":"1700000000",` +
	`"room":{"sid":"RM_1","name":"demo"},"participant":{"sid":"PA_1","identity":"alice"}}`

func TestReceiveValid(t *testing.T) {
	auth := jwt.NewAuth("key", "secret", time.Minute)
	token, err := auth.SignBody([]byte(joinedBody))
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/webhook", strings.NewReader(joinedBody))
	req.Header.Set("Authorization", token)

	event, err := NewWebhookReceiver(auth).Receive(req)
	require.NoError(t, err)
	assert.Equal(t, EventParticipantJoined, event.Event)
	assert.Equal(t, "EV_1", event.ID)
	assert.Equal(t, "demo", event.RoomName())
	assert.Equal(t, "alice", event.Identity())
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), event.Time())
}

func TestReceiveRejectsTamperedBody(t *testing.T) {
	auth := jwt.NewAuth("key", "secret", time.Minute)
	token, err := auth.SignBody([]byte(joinedBody))
	require.NoError(t, err)

	tampered := strings.Replace(joinedBody, "alice", "mallory", 1)
	req := httptest.NewRequest("POST", "/webhook", strings.NewReader(tampered))
	req.Header.Set("Authorization", token)

	_, err = NewWebhookReceiver(auth).Receive(req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidWebhook))
	assert.True(t, errors.Is(err, jwt.ErrBodyMismatch))
}

func TestReceiveRejectsMissingAuth(t *testing.T) {
	req := httptest.NewRequest("POST", "/webhook", strings.NewReader(joinedBody))

	_, err := NewWebhookReceiver(jwt.NewAuth("key", "secret", time.Minute)).Receive(req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidWebhook))
}

func TestReceiveRejectsOversizedBody(t *testing.T) {
	auth := jwt.NewAuth("key", "secret", time.Minute)
	body := bytes.Repeat([]byte("a"), maxWebhookBody+1)
	token, err := auth.SignBody(body)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/webhook", bytes.NewReader(body))
	req.Header.Set("Authorization", token)

	_, err = NewWebhookReceiver(auth).Receive(req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}

func TestReceiveMalformedJSON(t *testing.T) {
	auth := jwt.NewAuth("key", "secret", time.Minute)
	body := []byte(`{"event":`)
	token, err := auth.SignBody(body)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/webhook", bytes.NewReader(body))
	req.Header.Set("Authorization", token)

	_, err = NewWebhookReceiver(auth).Receive(req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidWebhook))
}

func TestEventAccessorsWithoutRoom(t *testing.T) {
	e := &WebhookEvent{Event: "track_published"}
	assert.Empty(t, e.RoomName())
	assert.Empty(t, e.Identity())
	assert.True(t, e.Time().IsZero())
}
