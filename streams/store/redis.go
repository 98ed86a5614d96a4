package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/imtaco/stream-coordinator/internal/errors"
	"github.com/imtaco/stream-coordinator/internal/log"
	"github.com/imtaco/stream-coordinator/streams"
)

type redisStore struct {
	client    redis.UniversalClient
	keys      keys
	timeout   time.Duration
	scanCount int64
	logger    *log.Logger
}

// New returns a Store over Redis. Each call runs under cfg.OpTimeout and is
// never retried.
func New(client redis.UniversalClient, cfg *Config, logger *log.Logger) streams.Store {
	scanCount := cfg.ScanCount
	if scanCount <= 0 {
		scanCount = 100
	}
	return &redisStore{
		client:    client,
		keys:      keys{prefix: cfg.Prefix},
		timeout:   cfg.OpTimeout,
		scanCount: scanCount,
		logger:    logger,
	}
}

func (s *redisStore) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *redisStore) fail(ctx context.Context, op string, err error, streamID string) error {
	opErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
	return errors.Wrapf(streams.ErrStoreUnavailable, err, "%s %s", op, streamID)
}

func (s *redisStore) Read(ctx context.Context, streamID string) (*streams.StreamState, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	pipe := s.client.Pipeline()
	metaCmd := pipe.HGetAll(ctx, s.keys.meta(streamID))
	membersCmd := pipe.SMembers(ctx, s.keys.participants(streamID))
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, s.fail(ctx, "read", err, streamID)
	}

	return streams.NewState(streamID, metaCmd.Val(), membersCmd.Val()), nil
}

func (s *redisStore) WriteMeta(ctx context.Context, streamID string, meta streams.Meta) error {
	fields := meta.Fields()
	if len(fields) == 0 && meta.StartedAt.IsZero() {
		return nil
	}

	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	key := s.keys.meta(streamID)
	pipe := s.client.Pipeline()
	if len(fields) > 0 {
		pipe.HSet(ctx, key, fields)
	}
	if !meta.StartedAt.IsZero() {
		// write-once
		pipe.HSetNX(ctx, key, streams.FieldStartedAt, streams.FormatTime(meta.StartedAt))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return s.fail(ctx, "write_meta", err, streamID)
	}
	return nil
}

func (s *redisStore) AddParticipant(ctx context.Context, streamID, identity string) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	if err := s.client.SAdd(ctx, s.keys.participants(streamID), identity).Err(); err != nil {
		return s.fail(ctx, "add_participant", err, streamID)
	}
	return nil
}

func (s *redisStore) RemoveParticipant(ctx context.Context, streamID, identity string) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	if err := s.client.SRem(ctx, s.keys.participants(streamID), identity).Err(); err != nil {
		return s.fail(ctx, "remove_participant", err, streamID)
	}
	return nil
}

func (s *redisStore) CountParticipants(ctx context.Context, streamID string) (int64, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	n, err := s.client.SCard(ctx, s.keys.participants(streamID)).Result()
	if err != nil {
		return 0, s.fail(ctx, "count_participants", err, streamID)
	}
	return n, nil
}

func (s *redisStore) ArmExpiry(ctx context.Context, streamID string, ttl time.Duration) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	pipe := s.client.Pipeline()
	pipe.Expire(ctx, s.keys.meta(streamID), ttl)
	pipe.Expire(ctx, s.keys.participants(streamID), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return s.fail(ctx, "arm_expiry", err, streamID)
	}
	return nil
}

func (s *redisStore) ClearExpiry(ctx context.Context, streamID string) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	pipe := s.client.Pipeline()
	pipe.Persist(ctx, s.keys.meta(streamID))
	pipe.Persist(ctx, s.keys.participants(streamID))
	if _, err := pipe.Exec(ctx); err != nil {
		return s.fail(ctx, "clear_expiry", err, streamID)
	}
	return nil
}

func (s *redisStore) TTL(ctx context.Context, streamID string) (time.Duration, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	ttl, err := s.client.TTL(ctx, s.keys.meta(streamID)).Result()
	if err != nil {
		return 0, s.fail(ctx, "ttl", err, streamID)
	}
	// go-redis passes the -1/-2 replies through unscaled
	switch ttl {
	case -1:
		return streams.TTLPersistent, nil
	case -2:
		return streams.TTLMissing, nil
	}
	return ttl, nil
}

func (s *redisStore) Delete(ctx context.Context, streamID string) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	if err := s.client.Del(ctx, s.keys.meta(streamID), s.keys.participants(streamID)).Err(); err != nil {
		return s.fail(ctx, "delete", err, streamID)
	}
	return nil
}

// ListIDs walks the keyspace with SCAN; the result is a best-effort snapshot.
func (s *redisStore) ListIDs(ctx context.Context) ([]string, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	seen := make(map[string]struct{})
	ids := make([]string, 0)
	iter := s.client.Scan(ctx, 0, s.keys.metaPattern(), s.scanCount).Iterator()
	for iter.Next(ctx) {
		id, ok := s.keys.idFromMeta(iter.Val())
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if err := iter.Err(); err != nil {
		return nil, s.fail(ctx, "list_ids", err, "")
	}
	return ids, nil
}

func (s *redisStore) Publish(ctx context.Context, update streams.Update) error {
	payload, err := json.Marshal(update)
	if err != nil {
		return errors.Wrapf(streams.ErrInvalidRequest, err, "encode update %s", update.StreamID)
	}

	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	if err := s.client.Publish(ctx, s.keys.updates(update.StreamID), payload).Err(); err != nil {
		return s.fail(ctx, "publish", err, update.StreamID)
	}
	published.Add(ctx, 1)
	return nil
}

// Subscribe pattern-subscribes to every stream's update channel. The returned
// subscription is confirmed before Subscribe returns.
func (s *redisStore) Subscribe(ctx context.Context, bufSize int) (streams.Subscription, error) {
	if bufSize <= 0 {
		bufSize = 1
	}

	ps := s.client.PSubscribe(ctx, s.keys.updatesPattern())

	confirmCtx, cancel := s.opCtx(ctx)
	defer cancel()
	if _, err := ps.Receive(confirmCtx); err != nil {
		_ = ps.Close()
		return nil, s.fail(ctx, "subscribe", err, "")
	}

	subCtx, subCancel := context.WithCancel(ctx)
	sub := &subscription{
		ps:     ps,
		keys:   s.keys,
		ch:     make(chan streams.Update, bufSize),
		cancel: subCancel,
		done:   make(chan struct{}),
		logger: s.logger,
	}
	go sub.run(subCtx)
	return sub, nil
}
