package streams

import (
	"context"
	"time"

	"github.com/imtaco/stream-coordinator/internal/errors"
	"github.com/imtaco/stream-coordinator/internal/livekit"
)

//go:generate mockgen -source=types.go -destination=mocks/types.go -package=mocks

const (
	ErrNotFound         errors.Code = "stream not found"
	ErrStoreUnavailable errors.Code = "store unavailable"
	ErrRoomService      errors.Code = "room service failure"
	ErrInvalidRequest   errors.Code = "invalid request"
)

// StreamService is what the HTTP surface drives.
type StreamService interface {
	// CreateStream is idempotent; created is false when the room already existed.
	CreateStream(ctx context.Context, name string) (streamID string, created bool, err error)
	// DeleteStream succeeds when the stream is already gone.
	DeleteStream(ctx context.Context, streamID string) error
	JoinStream(ctx context.Context, streamID, userID string) (token string, err error)
	GetState(ctx context.Context, streamID string) (*StreamState, error)
	ListActive(ctx context.Context) ([]Summary, error)
	HandleWebhook(ctx context.Context, event *livekit.WebhookEvent) error
}

// Store is the typed view over the shared key/value store. Each call is atomic
// on its own key only; failures are returned as ErrStoreUnavailable, never retried.
type Store interface {
	// Read returns nil, nil when the stream has no status field.
	Read(ctx context.Context, streamID string) (*StreamState, error)
	WriteMeta(ctx context.Context, streamID string, meta Meta) error
	AddParticipant(ctx context.Context, streamID, identity string) error
	RemoveParticipant(ctx context.Context, streamID, identity string) error
	CountParticipants(ctx context.Context, streamID string) (int64, error)
	ArmExpiry(ctx context.Context, streamID string, ttl time.Duration) error
	ClearExpiry(ctx context.Context, streamID string) error
	// TTL returns the remaining meta expiry, TTLPersistent or TTLMissing.
	TTL(ctx context.Context, streamID string) (time.Duration, error)
	Delete(ctx context.Context, streamID string) error
	ListIDs(ctx context.Context) ([]string, error)
	Publish(ctx context.Context, update Update) error
	Subscribe(ctx context.Context, bufSize int) (Subscription, error)
}

type Subscription interface {
	Updates() <-chan Update
	Close() error
}

// Lifecycle applies creation, deletion and room service notifications to the projection.
type Lifecycle interface {
	Create(ctx context.Context, streamID string) (state *StreamState, created bool, err error)
	Finish(ctx context.Context, streamID string) (*StreamState, error)
	// Forget force-deletes local keys and publishes a deletion.
	Forget(ctx context.Context, streamID string) error
	Apply(ctx context.Context, event Event) error
}

// Observer is one open push connection for a single stream.
type Observer interface {
	ID() string
	StreamID() string
	// Enqueue must not block; false means the observer cannot keep up.
	Enqueue(update Update) bool
	Close()
}

type Broadcaster interface {
	Subscribe(ctx context.Context, obs Observer) error
	Unsubscribe(obs Observer)
}

type MetricsRefresher interface {
	Refresh(ctx context.Context) (Stats, error)
}

type Reconciler interface {
	Start(ctx context.Context) error
	Stop() error
	RunOnce(ctx context.Context) (Report, error)
}

// Stats are the aggregate gauges over active streams.
type Stats struct {
	ActiveStreams     int64 `json:"activeStreams"`
	TotalParticipants int64 `json:"totalParticipants"`
}

// Report summarizes one reconciliation cycle.
type Report struct {
	Scanned  int `json:"scanned"`
	Purged   int `json:"purged"`
	Rearmed  int `json:"rearmed"`
	Drifted  int `json:"drifted"`
	Stale    int `json:"stale"`
	Failures int `json:"failures"`
}
