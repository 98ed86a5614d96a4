package transport

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/imtaco/stream-coordinator/internal/errors"
	"github.com/imtaco/stream-coordinator/internal/livekit"
	lkmocks "github.com/imtaco/stream-coordinator/internal/livekit/mocks"
	"github.com/imtaco/stream-coordinator/internal/log"
	"github.com/imtaco/stream-coordinator/streams"
	"github.com/imtaco/stream-coordinator/streams/mocks"
)

func setupRouter(t *testing.T) (*Router, *mocks.MockStreamService, *lkmocks.MockWebhookReceiver) {
	gin.SetMode(gin.TestMode)

	ctrl := gomock.NewController(t)
	svc := mocks.NewMockStreamService(ctrl)
	receiver := lkmocks.NewMockWebhookReceiver(ctrl)
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGauge(prometheus.GaugeOpts{Name: "active_streams"}))

	router := NewRouter(svc, mocks.NewMockBroadcaster(ctrl), receiver, reg, &Config{}, log.NewTest(t))
	return router, svc, receiver
}

func do(router *Router, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	router.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthCheck(t *testing.T) {
	router, _, _ := setupRouter(t)

	w := do(router, "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "ok", response["status"])
}

func TestMetrics(t *testing.T) {
	router, _, _ := setupRouter(t)

	w := do(router, "GET", "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "active_streams")
}

func TestCreateStream(t *testing.T) {
	t.Run("Created", func(t *testing.T) {
		router, svc, _ := setupRouter(t)
		svc.EXPECT().CreateStream(gomock.Any(), "demo").Return("demo", true, nil)

		w := do(router, "POST", "/streams", map[string]string{"name": "demo"})
		assert.Equal(t, http.StatusCreated, w.Code)
		assert.JSONEq(t, `{"streamId":"demo"}`, w.Body.String())
	})

	t.Run("AlreadyExists", func(t *testing.T) {
		router, svc, _ := setupRouter(t)
		svc.EXPECT().CreateStream(gomock.Any(), "demo").Return("demo", false, nil)

		w := do(router, "POST", "/streams", map[string]string{"name": "demo"})
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"streamId":"demo"}`, w.Body.String())
	})

	t.Run("InvalidName", func(t *testing.T) {
		router, _, _ := setupRouter(t)

		for _, body := range []any{
			map[string]string{},
			map[string]string{"name": ""},
			map[string]string{"name": "has space"},
			map[string]string{"name": "a/b"},
		} {
			w := do(router, "POST", "/streams", body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		}
	})

	t.Run("RoomServiceFailure", func(t *testing.T) {
		router, svc, _ := setupRouter(t)
		svc.EXPECT().CreateStream(gomock.Any(), "demo").
			Return("", false, errors.New(streams.ErrRoomService, "refused"))

		w := do(router, "POST", "/streams", map[string]string{"name": "demo"})
		assert.Equal(t, http.StatusBadGateway, w.Code)
	})

	t.Run("StoreUnavailable", func(t *testing.T) {
		router, svc, _ := setupRouter(t)
		svc.EXPECT().CreateStream(gomock.Any(), "demo").
			Return("", false, errors.New(streams.ErrStoreUnavailable, "down"))

		w := do(router, "POST", "/streams", map[string]string{"name": "demo"})
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}

func TestDeleteStream(t *testing.T) {
	router, svc, _ := setupRouter(t)
	svc.EXPECT().DeleteStream(gomock.Any(), "demo").Return(nil)

	w := do(router, "DELETE", "/streams/demo", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestJoinStream(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		router, svc, _ := setupRouter(t)
		svc.EXPECT().JoinStream(gomock.Any(), "demo", "alice").Return("tok", nil)

		w := do(router, "POST", "/streams/demo/join", map[string]string{"userId": "alice"})
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"token":"tok"}`, w.Body.String())
	})

	t.Run("MissingUser", func(t *testing.T) {
		router, _, _ := setupRouter(t)

		w := do(router, "POST", "/streams/demo/join", map[string]string{})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestGetState(t *testing.T) {
	t.Run("Found", func(t *testing.T) {
		router, svc, _ := setupRouter(t)
		svc.EXPECT().GetState(gomock.Any(), "demo").Return(&streams.StreamState{
			StreamID:     "demo",
			Status:       streams.StatusActive,
			Participants: []string{"alice"},
			StartedAt:    time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		}, nil)

		w := do(router, "GET", "/streams/demo/state", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"streamId":"demo","status":"active","participants":["alice"],`+
			`"startedAt":"2024-06-01T12:00:00Z"}`, w.Body.String())
	})

	t.Run("NotFound", func(t *testing.T) {
		router, svc, _ := setupRouter(t)
		svc.EXPECT().GetState(gomock.Any(), "ghost").
			Return(nil, errors.New(streams.ErrNotFound, "stream ghost"))

		w := do(router, "GET", "/streams/ghost/state", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestListStreams(t *testing.T) {
	router, svc, _ := setupRouter(t)
	svc.EXPECT().ListActive(gomock.Any()).Return([]streams.Summary{
		{StreamID: "demo", ParticipantCount: 2, StartedAt: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)},
	}, nil)

	w := do(router, "GET", "/streams", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"streamId":"demo","participantCount":2,"startedAt":"2024-06-01T12:00:00Z"}]`, w.Body.String())
}

func TestWebhook(t *testing.T) {
	t.Run("Accepted", func(t *testing.T) {
		router, svc, receiver := setupRouter(t)
		event := &livekit.WebhookEvent{Event: livekit.EventRoomStarted}
		receiver.EXPECT().Receive(gomock.Any()).Return(event, nil)
		svc.EXPECT().HandleWebhook(gomock.Any(), event).Return(nil)

		w := do(router, "POST", "/webhook", map[string]string{})
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("Unauthenticated", func(t *testing.T) {
		router, _, receiver := setupRouter(t)
		receiver.EXPECT().Receive(gomock.Any()).Return(nil, errors.New(livekit.ErrInvalidWebhook, "bad token"))

		w := do(router, "POST", "/webhook", map[string]string{})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("StoreUnavailable", func(t *testing.T) {
		router, svc, receiver := setupRouter(t)
		receiver.EXPECT().Receive(gomock.Any()).Return(&livekit.WebhookEvent{}, nil)
		svc.EXPECT().HandleWebhook(gomock.Any(), gomock.Any()).
			Return(errors.New(streams.ErrStoreUnavailable, "down"))

		w := do(router, "POST", "/webhook", map[string]string{})
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}
