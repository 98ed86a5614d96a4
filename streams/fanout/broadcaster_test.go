package fanout

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"github.com/imtaco/stream-coordinator/internal/errors"
	"github.com/imtaco/stream-coordinator/internal/log"
	"github.com/imtaco/stream-coordinator/streams"
	"github.com/imtaco/stream-coordinator/streams/mocks"
	"github.com/imtaco/stream-coordinator/streams/store"
)

type BroadcasterTestSuite struct {
	suite.Suite
	ctx      context.Context
	mr       *miniredis.Miniredis
	client   *redis.Client
	store    streams.Store
	registry *Registry
	b        *Broadcaster
}

func TestBroadcasterSuite(t *testing.T) {
	suite.Run(t, new(BroadcasterTestSuite))
}

func (s *BroadcasterTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.mr = miniredis.RunT(s.T())
	s.client = redis.NewClient(&redis.Options{Addr: s.mr.Addr()})
	s.store = store.New(s.client, &store.Config{Prefix: "stream", OpTimeout: time.Second}, log.NewNop())
	s.registry = NewRegistry()
	s.b = New(s.store, s.registry, &Config{SubscriptionBuffer: 8}, log.NewTest(s.T()))
	s.Require().NoError(s.b.Start(s.ctx))
}

func (s *BroadcasterTestSuite) TearDownTest() {
	s.Require().NoError(s.b.Stop())
	s.client.Close()
}

func (s *BroadcasterTestSuite) createActive(id string) *streams.StreamState {
	s.Require().NoError(s.store.WriteMeta(s.ctx, id, streams.Meta{Status: streams.StatusActive, StartedAt: time.Now()}))
	state, err := s.store.Read(s.ctx, id)
	s.Require().NoError(err)
	return state
}

func (s *BroadcasterTestSuite) recv(q *Queue) streams.Update {
	select {
	case u := <-q.C():
		return u
	case <-time.After(2 * time.Second):
		s.FailNow("no update received")
	}
	return streams.Update{}
}

func (s *BroadcasterTestSuite) none(q *Queue) {
	select {
	case u := <-q.C():
		s.Failf("unexpected update", "%+v", u)
	case <-time.After(100 * time.Millisecond):
	}
}

func (s *BroadcasterTestSuite) TestSubscribeSendsSnapshot() {
	s.createActive("demo")
	q := NewQueue("demo", 4)

	s.Require().NoError(s.b.Subscribe(s.ctx, q))
	update := s.recv(q)
	s.Require().NotNil(update.State)
	s.Equal(streams.StatusActive, update.State.Status)
}

func (s *BroadcasterTestSuite) TestSubscribeAbsentSendsNotFound() {
	q := NewQueue("ghost", 4)

	s.Require().NoError(s.b.Subscribe(s.ctx, q))
	s.True(s.recv(q).Deleted())
}

func (s *BroadcasterTestSuite) TestPublishedUpdatesReachObservers() {
	state := s.createActive("demo")
	q1 := NewQueue("demo", 4)
	q2 := NewQueue("demo", 4)
	other := NewQueue("other", 4)
	s.Require().NoError(s.b.Subscribe(s.ctx, q1))
	s.Require().NoError(s.b.Subscribe(s.ctx, q2))
	s.Require().NoError(s.b.Subscribe(s.ctx, other))
	s.recv(q1)
	s.recv(q2)
	s.recv(other)

	state.Participants = []string{"alice"}
	s.Require().NoError(s.store.Publish(s.ctx, streams.Update{StreamID: "demo", State: state}))

	for _, q := range []*Queue{q1, q2} {
		update := s.recv(q)
		s.Equal([]string{"alice"}, update.State.Participants)
	}
	s.none(other)
}

func (s *BroadcasterTestSuite) TestOrderPreservedPerStream() {
	state := s.createActive("demo")
	q := NewQueue("demo", 8)
	s.Require().NoError(s.b.Subscribe(s.ctx, q))
	s.recv(q)

	names := []string{"a", "b", "c", "d"}
	for i := range names {
		state.Participants = names[:i+1]
		s.Require().NoError(s.store.Publish(s.ctx, streams.Update{StreamID: "demo", State: state}))
	}
	for i := range names {
		s.Len(s.recv(q).State.Participants, i+1)
	}
}

func (s *BroadcasterTestSuite) TestUnsubscribeStopsDelivery() {
	s.createActive("demo")
	q := NewQueue("demo", 4)
	s.Require().NoError(s.b.Subscribe(s.ctx, q))
	s.recv(q)

	s.b.Unsubscribe(q)
	s.Empty(s.registry.Observers("demo"))

	s.Require().NoError(s.store.Publish(s.ctx, streams.Update{StreamID: "demo"}))
	s.none(q)
	<-q.Done()
}

func (s *BroadcasterTestSuite) TestSlowObserverPruned() {
	s.createActive("demo")
	slow := NewQueue("demo", 1)
	fast := NewQueue("demo", 8)
	s.Require().NoError(s.b.Subscribe(s.ctx, slow))
	s.Require().NoError(s.b.Subscribe(s.ctx, fast))
	s.recv(fast)
	// slow still holds its snapshot; the next update overflows it

	s.b.Dispatch(s.ctx, streams.Update{StreamID: "demo"})
	s.Len(s.registry.Observers("demo"), 1)

	select {
	case <-slow.Done():
	default:
		s.Fail("slow observer not closed")
	}
	s.True(s.recv(fast).Deleted())
}

func (s *BroadcasterTestSuite) TestUpdatesCrossInstances() {
	peerRegistry := NewRegistry()
	peer := New(s.store, peerRegistry, &Config{SubscriptionBuffer: 8}, log.NewNop())
	s.Require().NoError(peer.Start(s.ctx))
	defer peer.Stop()

	s.createActive("demo")
	q := NewQueue("demo", 4)
	s.Require().NoError(peer.Subscribe(s.ctx, q))
	s.recv(q)

	// another process publishing through its own client
	other := redis.NewClient(&redis.Options{Addr: s.mr.Addr()})
	defer other.Close()
	otherStore := store.New(other, &store.Config{Prefix: "stream", OpTimeout: time.Second}, log.NewNop())
	s.Require().NoError(otherStore.Publish(s.ctx, streams.Update{StreamID: "demo"}))

	s.True(s.recv(q).Deleted())
}

// readHook calls during between the store read and the snapshot being queued.
type readHook struct {
	streams.Store
	during func()
}

func (r *readHook) Read(ctx context.Context, streamID string) (*streams.StreamState, error) {
	state, err := r.Store.Read(ctx, streamID)
	if r.during != nil {
		r.during()
	}
	return state, err
}

func (s *BroadcasterTestSuite) TestSnapshotPrecedesUpdatesDuringRead() {
	state := s.createActive("demo")
	joined := *state
	joined.Participants = []string{"alice"}

	var b *Broadcaster
	hook := &readHook{Store: s.store}
	hook.during = func() {
		b.Dispatch(s.ctx, streams.Update{StreamID: "demo", State: &joined})
	}
	b = New(hook, NewRegistry(), &Config{SubscriptionBuffer: 8}, log.NewNop())

	q := NewQueue("demo", 4)
	s.Require().NoError(b.Subscribe(s.ctx, q))

	s.Empty(s.recv(q).State.Participants)
	s.Equal([]string{"alice"}, s.recv(q).State.Participants)
	s.none(q)
}

func (s *BroadcasterTestSuite) TestStopClosesObservers() {
	s.createActive("demo")
	q1 := NewQueue("demo", 4)
	q2 := NewQueue("other", 4)
	s.Require().NoError(s.b.Subscribe(s.ctx, q1))
	s.Require().NoError(s.b.Subscribe(s.ctx, q2))

	s.Require().NoError(s.b.Stop())
	for _, q := range []*Queue{q1, q2} {
		select {
		case <-q.Done():
		case <-time.After(time.Second):
			s.FailNow("observer not closed on stop")
		}
	}
	s.Equal(0, s.registry.Streams())
}

func (s *BroadcasterTestSuite) TestStartTwice() {
	err := s.b.Start(s.ctx)
	s.Require().Error(err)
}

func TestSubscribeStoreFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := mocks.NewMockStore(ctrl)
	st.EXPECT().Read(gomock.Any(), "demo").Return(nil, errors.New(streams.ErrStoreUnavailable, "down"))

	registry := NewRegistry()
	b := New(st, registry, &Config{}, log.NewNop())
	q := NewQueue("demo", 1)

	err := b.Subscribe(context.Background(), q)
	if !errors.Is(err, streams.ErrStoreUnavailable) {
		t.Fatalf("unexpected error %v", err)
	}
	if len(registry.Observers("demo")) != 0 {
		t.Fatal("observer left registered")
	}
	<-q.Done()
}

func TestStartSubscriptionFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := mocks.NewMockStore(ctrl)
	st.EXPECT().Subscribe(gomock.Any(), 8).Return(nil, errors.New(streams.ErrStoreUnavailable, "down"))

	b := New(st, NewRegistry(), &Config{SubscriptionBuffer: 8}, log.NewNop())
	if err := b.Start(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if err := b.Stop(); err != nil {
		t.Fatal(err)
	}
}
