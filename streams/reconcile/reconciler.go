package reconcile

import (
	"context"
	"sync"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/imtaco/stream-coordinator/internal/errors"
	"github.com/imtaco/stream-coordinator/internal/livekit"
	"github.com/imtaco/stream-coordinator/internal/log"
	intotel "github.com/imtaco/stream-coordinator/internal/otel"
	"github.com/imtaco/stream-coordinator/streams"
)

const tracerName = "streams.reconcile"

const (
	actionPurge  = "purge"
	actionRearm  = "rearm"
	actionDrift  = "drift"
	actionStale  = "stale"
	cycleFlightK = "cycle"
)

type reconciler struct {
	store     streams.Store
	lifecycle streams.Lifecycle
	rooms     livekit.RoomService
	refresher streams.MetricsRefresher
	cfg       Config
	limiter   *rate.Limiter
	sf        singleflight.Group
	clock     clockwork.Clock
	logger    *log.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped chan struct{}
}

// New creates the reconciliation loop. refresher may be nil.
func New(
	store streams.Store,
	lifecycle streams.Lifecycle,
	rooms livekit.RoomService,
	refresher streams.MetricsRefresher,
	cfg *Config,
	clock clockwork.Clock,
	logger *log.Logger,
) streams.Reconciler {
	limit := rate.Inf
	if cfg.DeleteRate > 0 {
		limit = rate.Limit(cfg.DeleteRate)
	}
	return &reconciler{
		store:     store,
		lifecycle: lifecycle,
		rooms:     rooms,
		refresher: refresher,
		cfg:       *cfg,
		limiter:   rate.NewLimiter(limit, max(cfg.DeleteBurst, 1)),
		clock:     clock,
		logger:    logger,
	}
}

func (r *reconciler) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return errors.New(streams.ErrInvalidRequest, "reconciler already started")
	}
	if r.cfg.Interval <= 0 {
		return errors.Newf(streams.ErrInvalidRequest, "invalid interval %s", r.cfg.Interval)
	}

	ctx, r.cancel = context.WithCancel(ctx)
	r.stopped = make(chan struct{})
	go r.loop(ctx, r.stopped)

	r.logger.Info("reconciler started", log.Duration("interval", r.cfg.Interval))
	return nil
}

// Stop cancels the loop and waits for the running cycle to return.
func (r *reconciler) Stop() error {
	r.mu.Lock()
	cancel, stopped := r.cancel, r.stopped
	r.cancel, r.stopped = nil, nil
	r.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-stopped
	r.logger.Info("reconciler stopped")
	return nil
}

func (r *reconciler) loop(ctx context.Context, stopped chan struct{}) {
	ticker := r.clock.NewTicker(r.cfg.Interval)
	defer close(stopped)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if _, err := r.RunOnce(ctx); err != nil {
				r.logger.Warn("reconciliation cycle failed", log.Error(err))
			}
		}
	}
}

// RunOnce runs a cycle. Concurrent callers share the cycle already running.
func (r *reconciler) RunOnce(ctx context.Context) (streams.Report, error) {
	v, err, _ := r.sf.Do(cycleFlightK, func() (any, error) {
		return r.cycle(ctx)
	})
	report, _ := v.(streams.Report)
	return report, err
}

func (r *reconciler) cycle(ctx context.Context) (report streams.Report, err error) {
	if r.cfg.CycleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.CycleTimeout)
		defer cancel()
	}
	ctx, span := intotel.StartSpan(ctx, tracerName, "reconcile.cycle")
	start := r.clock.Now()
	defer func() {
		span.SetAttributes(
			attribute.Int("scanned", report.Scanned),
			attribute.Int("failures", report.Failures),
		)
		intotel.EndSpan(span, err)
		cycleDuration.Record(ctx, r.clock.Since(start).Seconds())
	}()
	cycleRuns.Add(ctx, 1)

	ids, err := r.store.ListIDs(ctx)
	if err != nil {
		cycleAborted.Add(ctx, 1)
		return report, err
	}
	report.Scanned = len(ids)

	existing, err := r.existing(ctx, ids)
	if err != nil {
		// nothing is confirmed stale without the room service
		cycleAborted.Add(ctx, 1)
		return report, errors.Wrap(streams.ErrRoomService, err, "list rooms")
	}

	for _, id := range ids {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		action, err := r.repair(ctx, id, existing[id])
		if err != nil {
			report.Failures++
			repairFailures.Add(ctx, 1)
			r.logger.Warn("repair failed", log.StreamID(id), log.Error(err))
			continue
		}
		if action == "" {
			continue
		}
		repairActions.Add(ctx, 1, metric.WithAttributes(attribute.String("action", action)))
		switch action {
		case actionPurge:
			report.Purged++
		case actionRearm:
			report.Rearmed++
		case actionDrift:
			report.Drifted++
		case actionStale:
			report.Stale++
		}
	}

	if r.refresher != nil {
		if _, err := r.refresher.Refresh(ctx); err != nil {
			r.logger.Warn("refresh metrics failed", log.Error(err))
		}
	}

	r.logger.Info("reconciliation cycle done",
		log.Int("scanned", report.Scanned),
		log.Int("purged", report.Purged),
		log.Int("rearmed", report.Rearmed),
		log.Int("drifted", report.Drifted),
		log.Int("stale", report.Stale),
		log.Int("failures", report.Failures))
	return report, nil
}

// existing returns the subset of ids the room service still has.
func (r *reconciler) existing(ctx context.Context, ids []string) (map[string]bool, error) {
	out := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	size := r.cfg.BatchSize
	if size <= 0 {
		size = len(ids)
	}
	for i := 0; i < len(ids); i += size {
		batch := ids[i:min(i+size, len(ids))]
		rooms, err := r.rooms.ListRooms(ctx, batch)
		if err != nil {
			return nil, err
		}
		for _, room := range rooms {
			out[room.Name] = true
		}
	}
	return out, nil
}

// repair applies at most one action to id and names it.
func (r *reconciler) repair(ctx context.Context, id string, external bool) (string, error) {
	state, err := r.store.Read(ctx, id)
	if err != nil {
		return "", err
	}
	now := r.clock.Now()

	switch {
	case state == nil:
		// expired since the scan
		return "", nil

	case state.Finished():
		if state.EndedAt != nil && now.After(state.EndedAt.Add(r.cfg.PurgeTTL+r.cfg.Tolerance)) {
			if err := r.lifecycle.Forget(ctx, id); err != nil {
				return "", err
			}
			r.logger.Info("purged expired stream", log.StreamID(id))
			return actionPurge, nil
		}
		ttl, err := r.store.TTL(ctx, id)
		if err != nil {
			return "", err
		}
		if ttl == streams.TTLPersistent {
			if err := r.store.ArmExpiry(ctx, id, r.cfg.PurgeTTL); err != nil {
				return "", err
			}
			return actionRearm, nil
		}
		return "", nil

	case !external:
		if err := r.lifecycle.Forget(ctx, id); err != nil {
			return "", err
		}
		r.logger.Info("removed stream missing from room service", log.StreamID(id))
		return actionDrift, nil

	case state.Idle() && state.Age(now) > r.cfg.StaleThreshold:
		ttl, err := r.store.TTL(ctx, id)
		if err != nil {
			return "", err
		}
		// an armed idle expiry cleans up on its own
		if ttl != streams.TTLPersistent {
			return "", nil
		}
		if err := r.closeRoom(ctx, id); err != nil {
			return "", err
		}
		if _, err := r.lifecycle.Finish(ctx, id); err != nil {
			return "", err
		}
		r.logger.Info("closed stale stream", log.StreamID(id), log.Time("started_at", state.StartedAt))
		return actionStale, nil
	}
	return "", nil
}

func (r *reconciler) closeRoom(ctx context.Context, id string) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}
	err := r.rooms.DeleteRoom(ctx, id)
	if err != nil && !errors.Is(err, livekit.ErrNotFound) {
		return errors.Wrap(streams.ErrRoomService, err, "delete room")
	}
	return nil
}
