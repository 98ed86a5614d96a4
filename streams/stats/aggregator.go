package stats

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/imtaco/stream-coordinator/internal/errors"
	"github.com/imtaco/stream-coordinator/internal/log"
	"github.com/imtaco/stream-coordinator/streams"
)

// Aggregator recomputes the active stream gauges from the store. Each refresh
// reads every projection, so its cost grows linearly with the number of streams.
type Aggregator struct {
	store  streams.Store
	cfg    Config
	logger *log.Logger

	activeStreams     prometheus.Gauge
	totalParticipants prometheus.Gauge
}

var _ streams.MetricsRefresher = (*Aggregator)(nil)

// New registers the prometheus gauges on reg.
func New(store streams.Store, reg prometheus.Registerer, cfg *Config, logger *log.Logger) (*Aggregator, error) {
	a := &Aggregator{
		store:  store,
		cfg:    *cfg,
		logger: logger,
		activeStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "active_streams",
			Help: "Number of active streams.",
		}),
		totalParticipants: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "total_participants",
			Help: "Number of participants across active streams.",
		}),
	}
	for _, c := range []prometheus.Collector{a.activeStreams, a.totalParticipants} {
		if err := reg.Register(c); err != nil {
			return nil, errors.Wrap(streams.ErrInvalidRequest, err, "register gauge")
		}
	}
	return a, nil
}

func (a *Aggregator) Refresh(ctx context.Context) (streams.Stats, error) {
	start := time.Now()
	defer func() {
		refreshDuration.Record(ctx, time.Since(start).Seconds())
	}()

	ids, err := a.store.ListIDs(ctx)
	if err != nil {
		return streams.Stats{}, err
	}

	var active, participants atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	if a.cfg.Concurrency > 0 {
		g.SetLimit(a.cfg.Concurrency)
	}
	for _, id := range ids {
		g.Go(func() error {
			state, err := a.store.Read(gctx, id)
			if err != nil {
				return err
			}
			// expired or deleted since the scan
			if !state.Active() {
				return nil
			}
			active.Add(1)
			participants.Add(int64(len(state.Participants)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return streams.Stats{}, err
	}

	stats := streams.Stats{
		ActiveStreams:     active.Load(),
		TotalParticipants: participants.Load(),
	}
	a.activeStreams.Set(float64(stats.ActiveStreams))
	a.totalParticipants.Set(float64(stats.TotalParticipants))
	activeStreamsGauge.Record(ctx, stats.ActiveStreams)
	totalParticipantsGauge.Record(ctx, stats.TotalParticipants)

	a.logger.Debug("stats refreshed",
		log.Int64("active_streams", stats.ActiveStreams),
		log.Int64("total_participants", stats.TotalParticipants))
	return stats, nil
}
