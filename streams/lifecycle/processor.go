package lifecycle

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/imtaco/stream-coordinator/internal/errors"
	"github.com/imtaco/stream-coordinator/internal/log"
	"github.com/imtaco/stream-coordinator/streams"
)

type processor struct {
	store     streams.Store
	refresher streams.MetricsRefresher
	cfg       Config
	seen      *lru.Cache[string, struct{}]
	clock     clockwork.Clock
	logger    *log.Logger
}

// New creates the lifecycle processor. refresher may be nil.
func New(
	store streams.Store,
	refresher streams.MetricsRefresher,
	cfg *Config,
	clock clockwork.Clock,
	logger *log.Logger,
) (streams.Lifecycle, error) {
	p := &processor{
		store:     store,
		refresher: refresher,
		cfg:       *cfg,
		clock:     clock,
		logger:    logger,
	}
	if cfg.DedupeSize > 0 {
		seen, err := lru.New[string, struct{}](cfg.DedupeSize)
		if err != nil {
			return nil, errors.Wrap(streams.ErrInvalidRequest, err, "create dedupe cache")
		}
		p.seen = seen
	}
	return p, nil
}

// Create writes a fresh active record. An active stream is left as is; a
// finished one is replaced.
func (p *processor) Create(ctx context.Context, streamID string) (*streams.StreamState, bool, error) {
	state, err := p.store.Read(ctx, streamID)
	if err != nil {
		return nil, false, err
	}
	if state.Active() {
		return state, false, nil
	}
	if state.Finished() {
		p.logger.Info("recreating finished stream", log.StreamID(streamID))
		if err := p.store.Delete(ctx, streamID); err != nil {
			return nil, false, err
		}
	}

	if err := p.activate(ctx, streamID, p.clock.Now()); err != nil {
		return nil, false, err
	}
	streamsCreated.Add(ctx, 1)

	state, err = p.publish(ctx, streamID)
	return state, true, err
}

// Finish moves an active stream to finished. Absent and finished streams are left untouched.
func (p *processor) Finish(ctx context.Context, streamID string) (*streams.StreamState, error) {
	state, err := p.store.Read(ctx, streamID)
	if err != nil {
		return nil, err
	}
	if !state.Active() {
		return state, nil
	}

	meta := streams.Meta{Status: streams.StatusFinished, EndedAt: p.clock.Now()}
	if err := p.store.WriteMeta(ctx, streamID, meta); err != nil {
		return nil, err
	}
	if err := p.store.ArmExpiry(ctx, streamID, p.cfg.PurgeTTL); err != nil {
		return nil, err
	}
	streamsFinished.Add(ctx, 1)
	p.logger.Info("stream finished", log.StreamID(streamID))

	return p.publish(ctx, streamID)
}

func (p *processor) Forget(ctx context.Context, streamID string) error {
	if err := p.store.Delete(ctx, streamID); err != nil {
		return err
	}
	streamsForgotten.Add(ctx, 1)

	if err := p.store.Publish(ctx, streams.Update{StreamID: streamID}); err != nil {
		return err
	}
	p.refresh(ctx)
	return nil
}

func (p *processor) Apply(ctx context.Context, event streams.Event) error {
	logger := p.logger.ForStream(event.StreamID)

	if event.StreamID == "" {
		logger.Debug("event without room", log.String("event", event.Name))
		eventsIgnored.Add(ctx, 1)
		return nil
	}
	if p.duplicate(event.ID) {
		logger.Debug("duplicate event", log.String("id", event.ID), log.String("event", event.Name))
		eventsDuplicate.Add(ctx, 1)
		return nil
	}

	var err error
	switch event.Kind {
	case streams.KindParticipantJoined:
		err = p.participantJoined(ctx, event)
	case streams.KindParticipantLeft:
		err = p.participantLeft(ctx, event)
	case streams.KindRoomFinished:
		_, err = p.Finish(ctx, event.StreamID)
	case streams.KindRoomStarted:
		logger.Debug("room started")
	default:
		logger.Info("ignoring unknown event", log.String("event", event.Name))
		eventsIgnored.Add(ctx, 1)
		return nil
	}
	if err != nil {
		return err
	}

	eventsApplied.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", event.Kind.String())))
	p.remember(event.ID)
	return nil
}

func (p *processor) participantJoined(ctx context.Context, event streams.Event) error {
	state, err := p.store.Read(ctx, event.StreamID)
	if err != nil {
		return err
	}
	if state.Finished() {
		eventsIgnored.Add(ctx, 1)
		return nil
	}
	if state.Has(event.Identity) {
		// redelivered elsewhere; the set and expiry already reflect it
		eventsIgnored.Add(ctx, 1)
		return nil
	}
	if state == nil {
		// join raced ahead of creation; reconciliation removes it if the room never existed
		at := event.At
		if at.IsZero() {
			at = p.clock.Now()
		}
		if err := p.activate(ctx, event.StreamID, at); err != nil {
			return err
		}
		implicitCreates.Add(ctx, 1)
		p.logger.Info("implicitly created stream on join", log.StreamID(event.StreamID), log.Identity(event.Identity))
	}

	if err := p.store.AddParticipant(ctx, event.StreamID, event.Identity); err != nil {
		return err
	}
	if err := p.store.ClearExpiry(ctx, event.StreamID); err != nil {
		return err
	}
	_, err = p.publish(ctx, event.StreamID)
	return err
}

func (p *processor) participantLeft(ctx context.Context, event streams.Event) error {
	state, err := p.store.Read(ctx, event.StreamID)
	if err != nil {
		return err
	}
	if !state.Active() || !state.Has(event.Identity) {
		eventsIgnored.Add(ctx, 1)
		return nil
	}

	if err := p.store.RemoveParticipant(ctx, event.StreamID, event.Identity); err != nil {
		return err
	}
	remaining, err := p.store.CountParticipants(ctx, event.StreamID)
	if err != nil {
		return err
	}
	if remaining == 0 {
		if err := p.store.ArmExpiry(ctx, event.StreamID, p.cfg.IdleTTL); err != nil {
			return err
		}
	}
	_, err = p.publish(ctx, event.StreamID)
	return err
}

func (p *processor) activate(ctx context.Context, streamID string, startedAt time.Time) error {
	meta := streams.Meta{Status: streams.StatusActive, StartedAt: startedAt}
	if err := p.store.WriteMeta(ctx, streamID, meta); err != nil {
		return err
	}
	return p.store.ClearExpiry(ctx, streamID)
}

// publish broadcasts the post-mutation snapshot and refreshes the gauges.
func (p *processor) publish(ctx context.Context, streamID string) (*streams.StreamState, error) {
	state, err := p.store.Read(ctx, streamID)
	if err != nil {
		return nil, err
	}
	if err := p.store.Publish(ctx, streams.Update{StreamID: streamID, State: state}); err != nil {
		return nil, err
	}
	p.refresh(ctx)
	return state, nil
}

func (p *processor) refresh(ctx context.Context) {
	if p.refresher == nil {
		return
	}
	if _, err := p.refresher.Refresh(ctx); err != nil {
		p.logger.Warn("refresh metrics failed", log.Error(err))
	}
}

func (p *processor) duplicate(id string) bool {
	return p.seen != nil && id != "" && p.seen.Contains(id)
}

func (p *processor) remember(id string) {
	if p.seen != nil && id != "" {
		p.seen.Add(id, struct{}{})
	}
}
