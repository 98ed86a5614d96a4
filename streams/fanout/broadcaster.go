package fanout

import (
	"context"
	"sync"

	"github.com/imtaco/stream-coordinator/internal/errors"
	"github.com/imtaco/stream-coordinator/internal/log"
	"github.com/imtaco/stream-coordinator/streams"
)

// Broadcaster relays store change notifications to the observers registered
// on this process. Every process subscribes to the same channel pattern, so a
// mutation applied anywhere reaches observers everywhere.
type Broadcaster struct {
	store    streams.Store
	registry *Registry
	cfg      Config
	logger   *log.Logger

	mu     sync.Mutex
	sub    streams.Subscription
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ streams.Broadcaster = (*Broadcaster)(nil)

func New(store streams.Store, registry *Registry, cfg *Config, logger *log.Logger) *Broadcaster {
	return &Broadcaster{
		store:    store,
		registry: registry,
		cfg:      *cfg,
		logger:   logger,
	}
}

// Start subscribes to the store and dispatches until Stop or ctx is done.
func (b *Broadcaster) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sub != nil {
		return errors.New(streams.ErrInvalidRequest, "broadcaster already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	sub, err := b.store.Subscribe(ctx, b.cfg.SubscriptionBuffer)
	if err != nil {
		cancel()
		return err
	}
	b.sub = sub
	b.cancel = cancel

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.run(ctx, sub)
	}()

	b.logger.Info("broadcaster started")
	return nil
}

// Stop ends dispatching and closes every registered observer, which ends the
// transports serving them.
func (b *Broadcaster) Stop() error {
	b.mu.Lock()
	sub, cancel := b.sub, b.cancel
	b.sub, b.cancel = nil, nil
	b.mu.Unlock()

	closed := b.registry.Drain()
	for _, obs := range closed {
		obs.Close()
	}
	if len(closed) > 0 {
		observersOpen.Add(context.Background(), -int64(len(closed)))
		b.logger.Info("closed observers", log.Int("count", len(closed)))
	}

	if sub == nil {
		return nil
	}
	cancel()
	err := sub.Close()
	b.wg.Wait()
	b.logger.Info("broadcaster stopped")
	return err
}

func (b *Broadcaster) run(ctx context.Context, sub streams.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-sub.Updates():
			if !ok {
				b.logger.Warn("store subscription closed")
				return
			}
			b.Dispatch(ctx, update)
		}
	}
}

// Dispatch enqueues update to every local observer of its stream, pruning
// observers whose queue is full.
func (b *Broadcaster) Dispatch(ctx context.Context, update streams.Update) {
	for _, obs := range b.registry.Observers(update.StreamID) {
		if obs.Enqueue(update) {
			updatesDispatch.Add(ctx, 1)
			continue
		}
		b.logger.Warn("observer cannot keep up, dropping",
			log.StreamID(update.StreamID), log.String("observer", obs.ID()))
		observersPruned.Add(ctx, 1)
		b.drop(ctx, obs)
	}
}

// Subscribe registers obs and enqueues the current snapshot, or a not-found
// update when the stream does not exist. Updates dispatched while the snapshot
// is read are delivered after it.
func (b *Broadcaster) Subscribe(ctx context.Context, obs streams.Observer) error {
	// register first so no mutation between the read and registration is lost
	g := newGate(obs)
	b.registry.Add(g)
	observersOpen.Add(ctx, 1)

	state, err := b.store.Read(ctx, obs.StreamID())
	if err != nil {
		b.drop(ctx, g)
		return err
	}
	if !g.release(streams.Update{StreamID: obs.StreamID(), State: state}) {
		b.drop(ctx, g)
		return errors.Newf(streams.ErrInvalidRequest, "observer %s rejected initial snapshot", obs.ID())
	}
	return nil
}

func (b *Broadcaster) Unsubscribe(obs streams.Observer) {
	b.drop(context.Background(), obs)
}

func (b *Broadcaster) drop(ctx context.Context, obs streams.Observer) {
	if b.registry.Remove(obs) {
		observersOpen.Add(ctx, -1)
	}
	obs.Close()
}
