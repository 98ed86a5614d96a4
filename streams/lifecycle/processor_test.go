package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"github.com/imtaco/stream-coordinator/internal/errors"
	"github.com/imtaco/stream-coordinator/internal/log"
	"github.com/imtaco/stream-coordinator/streams"
	"github.com/imtaco/stream-coordinator/streams/mocks"
	"github.com/imtaco/stream-coordinator/streams/store"
)

var t0 = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type ProcessorTestSuite struct {
	suite.Suite
	ctx       context.Context
	mr        *miniredis.Miniredis
	client    *redis.Client
	store     streams.Store
	sub       streams.Subscription
	ctrl      *gomock.Controller
	refresher *mocks.MockMetricsRefresher
	clock     *clockwork.FakeClock
	lc        streams.Lifecycle
}

func TestProcessorSuite(t *testing.T) {
	suite.Run(t, new(ProcessorTestSuite))
}

func (s *ProcessorTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.mr = miniredis.RunT(s.T())
	s.client = redis.NewClient(&redis.Options{Addr: s.mr.Addr()})
	s.store = store.New(s.client, &store.Config{Prefix: "stream", OpTimeout: time.Second}, log.NewNop())

	var err error
	s.sub, err = s.store.Subscribe(s.ctx, 16)
	s.Require().NoError(err)

	s.ctrl = gomock.NewController(s.T())
	s.refresher = mocks.NewMockMetricsRefresher(s.ctrl)
	s.refresher.EXPECT().Refresh(gomock.Any()).Return(streams.Stats{}, nil).AnyTimes()
	s.clock = clockwork.NewFakeClockAt(t0)

	s.lc, err = New(s.store, s.refresher, &Config{IdleTTL: time.Minute, PurgeTTL: 5 * time.Minute, DedupeSize: 16}, s.clock, log.NewTest(s.T()))
	s.Require().NoError(err)
}

func (s *ProcessorTestSuite) TearDownTest() {
	s.sub.Close()
	s.client.Close()
}

func (s *ProcessorTestSuite) joined(id, identity string) streams.Event {
	return streams.Event{Kind: streams.KindParticipantJoined, Name: "participant_joined", StreamID: id, Identity: identity}
}

func (s *ProcessorTestSuite) left(id, identity string) streams.Event {
	return streams.Event{Kind: streams.KindParticipantLeft, Name: "participant_left", StreamID: id, Identity: identity}
}

func (s *ProcessorTestSuite) finished(id string) streams.Event {
	return streams.Event{Kind: streams.KindRoomFinished, Name: "room_finished", StreamID: id}
}

func (s *ProcessorTestSuite) read(id string) *streams.StreamState {
	state, err := s.store.Read(s.ctx, id)
	s.Require().NoError(err)
	return state
}

func (s *ProcessorTestSuite) ttl(id string) time.Duration {
	ttl, err := s.store.TTL(s.ctx, id)
	s.Require().NoError(err)
	return ttl
}

func (s *ProcessorTestSuite) nextUpdate() streams.Update {
	select {
	case u := <-s.sub.Updates():
		return u
	case <-time.After(2 * time.Second):
		s.FailNow("no update published")
	}
	return streams.Update{}
}

func (s *ProcessorTestSuite) noUpdate() {
	select {
	case u := <-s.sub.Updates():
		s.Failf("unexpected update", "%+v", u)
	case <-time.After(100 * time.Millisecond):
	}
}

func (s *ProcessorTestSuite) TestCreate() {
	state, created, err := s.lc.Create(s.ctx, "demo")
	s.Require().NoError(err)
	s.True(created)
	s.Equal(streams.StatusActive, state.Status)
	s.Equal(t0, state.StartedAt)
	s.Empty(state.Participants)
	s.Equal(streams.TTLPersistent, s.ttl("demo"))

	update := s.nextUpdate()
	s.Equal("demo", update.StreamID)
	s.Equal(streams.StatusActive, update.State.Status)
}

func (s *ProcessorTestSuite) TestCreateIdempotent() {
	_, _, err := s.lc.Create(s.ctx, "demo")
	s.Require().NoError(err)
	s.nextUpdate()

	s.clock.Advance(time.Minute)
	state, created, err := s.lc.Create(s.ctx, "demo")
	s.Require().NoError(err)
	s.False(created)
	s.Equal(t0, state.StartedAt)
	s.noUpdate()
}

func (s *ProcessorTestSuite) TestCreateReplacesFinished() {
	_, _, err := s.lc.Create(s.ctx, "demo")
	s.Require().NoError(err)
	s.Require().NoError(s.lc.Apply(s.ctx, s.joined("demo", "alice")))
	_, err = s.lc.Finish(s.ctx, "demo")
	s.Require().NoError(err)

	s.clock.Advance(time.Hour)
	state, created, err := s.lc.Create(s.ctx, "demo")
	s.Require().NoError(err)
	s.True(created)
	s.Equal(streams.StatusActive, state.Status)
	s.Equal(t0.Add(time.Hour), state.StartedAt)
	s.Nil(state.EndedAt)
	s.Empty(state.Participants)
	s.Equal(streams.TTLPersistent, s.ttl("demo"))
}

func (s *ProcessorTestSuite) TestJoinSetIdempotence() {
	_, _, err := s.lc.Create(s.ctx, "demo")
	s.Require().NoError(err)

	s.Require().NoError(s.lc.Apply(s.ctx, s.joined("demo", "alice")))
	s.Require().NoError(s.lc.Apply(s.ctx, s.joined("demo", "alice")))

	s.Equal([]string{"alice"}, s.read("demo").Participants)
}

func (s *ProcessorTestSuite) TestRedeliveredJoinLeaveWithoutIDs() {
	_, _, err := s.lc.Create(s.ctx, "demo")
	s.Require().NoError(err)
	s.nextUpdate()

	s.Require().NoError(s.lc.Apply(s.ctx, s.joined("demo", "alice")))
	s.nextUpdate()
	s.Require().NoError(s.lc.Apply(s.ctx, s.joined("demo", "alice")))
	s.noUpdate()

	s.Require().NoError(s.lc.Apply(s.ctx, s.left("demo", "alice")))
	s.nextUpdate()
	s.Equal(time.Minute, s.ttl("demo"))

	// a second leave must not push the idle expiry out
	s.mr.FastForward(40 * time.Second)
	s.Require().NoError(s.lc.Apply(s.ctx, s.left("demo", "alice")))
	s.noUpdate()
	s.Equal(20*time.Second, s.ttl("demo"))

	s.Require().NoError(s.lc.Apply(s.ctx, s.left("demo", "bob")))
	s.noUpdate()
}

func (s *ProcessorTestSuite) TestIdleAndResume() {
	_, _, err := s.lc.Create(s.ctx, "demo")
	s.Require().NoError(err)
	s.Require().NoError(s.lc.Apply(s.ctx, s.joined("demo", "alice")))
	s.Require().NoError(s.lc.Apply(s.ctx, s.joined("demo", "bob")))

	s.Require().NoError(s.lc.Apply(s.ctx, s.left("demo", "alice")))
	s.Equal(streams.TTLPersistent, s.ttl("demo"))

	s.Require().NoError(s.lc.Apply(s.ctx, s.left("demo", "bob")))
	s.Equal(time.Minute, s.ttl("demo"))
	s.True(s.read("demo").Idle())

	s.mr.FastForward(30 * time.Second)
	s.Require().NoError(s.lc.Apply(s.ctx, s.joined("demo", "carol")))
	s.Equal(streams.TTLPersistent, s.ttl("demo"))

	s.mr.FastForward(time.Hour)
	state := s.read("demo")
	s.Require().NotNil(state)
	s.Equal([]string{"carol"}, state.Participants)
}

func (s *ProcessorTestSuite) TestIdleExpiryElapses() {
	_, _, err := s.lc.Create(s.ctx, "demo")
	s.Require().NoError(err)
	s.Require().NoError(s.lc.Apply(s.ctx, s.joined("demo", "alice")))
	s.Require().NoError(s.lc.Apply(s.ctx, s.left("demo", "alice")))

	s.mr.FastForward(time.Minute + time.Second)
	s.Nil(s.read("demo"))
}

func (s *ProcessorTestSuite) TestRoomFinishedConverges() {
	_, _, err := s.lc.Create(s.ctx, "demo")
	s.Require().NoError(err)
	s.Require().NoError(s.lc.Apply(s.ctx, s.joined("demo", "alice")))

	s.clock.Advance(10 * time.Minute)
	s.Require().NoError(s.lc.Apply(s.ctx, s.finished("demo")))

	state := s.read("demo")
	s.Equal(streams.StatusFinished, state.Status)
	s.Require().NotNil(state.EndedAt)
	s.Equal(t0.Add(10*time.Minute), *state.EndedAt)
	s.Equal(5*time.Minute, s.ttl("demo"))

	// redelivery does not move endedAt or reset the purge expiry
	s.mr.FastForward(time.Minute)
	s.clock.Advance(time.Minute)
	s.Require().NoError(s.lc.Apply(s.ctx, s.finished("demo")))
	state = s.read("demo")
	s.Equal(t0.Add(10*time.Minute), *state.EndedAt)
	s.Equal(4*time.Minute, s.ttl("demo"))

	s.mr.FastForward(4*time.Minute + time.Second)
	s.Nil(s.read("demo"))
}

func (s *ProcessorTestSuite) TestFinishedIgnoresFurtherEvents() {
	_, _, err := s.lc.Create(s.ctx, "demo")
	s.Require().NoError(err)
	s.Require().NoError(s.lc.Apply(s.ctx, s.joined("demo", "alice")))
	s.Require().NoError(s.lc.Apply(s.ctx, s.finished("demo")))
	for range 3 {
		s.nextUpdate()
	}

	s.Require().NoError(s.lc.Apply(s.ctx, s.joined("demo", "bob")))
	s.Require().NoError(s.lc.Apply(s.ctx, s.left("demo", "alice")))
	s.noUpdate()

	state := s.read("demo")
	s.Equal(streams.StatusFinished, state.Status)
	s.Equal([]string{"alice"}, state.Participants)
	s.Equal(5*time.Minute, s.ttl("demo"))
}

func (s *ProcessorTestSuite) TestFinishAbsentIsNoop() {
	state, err := s.lc.Finish(s.ctx, "ghost")
	s.Require().NoError(err)
	s.Nil(state)
	s.Require().NoError(s.lc.Apply(s.ctx, s.finished("ghost")))
	s.Require().NoError(s.lc.Apply(s.ctx, s.left("ghost", "alice")))
	s.noUpdate()
	s.False(s.mr.Exists("stream:meta:ghost"))
}

func (s *ProcessorTestSuite) TestJoinBeforeCreateImplicitlyCreates() {
	at := t0.Add(-time.Minute)
	event := s.joined("early", "alice")
	event.At = at
	s.Require().NoError(s.lc.Apply(s.ctx, event))

	state := s.read("early")
	s.Require().NotNil(state)
	s.Equal(streams.StatusActive, state.Status)
	s.Equal(at, state.StartedAt)
	s.Equal([]string{"alice"}, state.Participants)

	// the explicit create that lost the race is a no-op
	state, created, err := s.lc.Create(s.ctx, "early")
	s.Require().NoError(err)
	s.False(created)
	s.Equal(at, state.StartedAt)
}

func (s *ProcessorTestSuite) TestUnknownAndStartedDoNotMutate() {
	s.Require().NoError(s.lc.Apply(s.ctx, streams.Event{Kind: streams.KindUnknown, Name: "track_published", StreamID: "demo"}))
	s.Require().NoError(s.lc.Apply(s.ctx, streams.Event{Kind: streams.KindRoomStarted, Name: "room_started", StreamID: "demo"}))
	s.Require().NoError(s.lc.Apply(s.ctx, streams.Event{Kind: streams.KindParticipantJoined, Identity: "alice"}))

	s.noUpdate()
	s.Empty(s.mr.Keys())
}

func (s *ProcessorTestSuite) TestDuplicateEventIDSkipped() {
	_, _, err := s.lc.Create(s.ctx, "demo")
	s.Require().NoError(err)
	s.nextUpdate()

	event := s.joined("demo", "alice")
	event.ID = "EV_1"
	s.Require().NoError(s.lc.Apply(s.ctx, event))
	s.nextUpdate()

	s.Require().NoError(s.lc.Apply(s.ctx, event))
	s.noUpdate()
}

func (s *ProcessorTestSuite) TestFailedEventNotRemembered() {
	event := s.joined("demo", "alice")
	event.ID = "EV_2"

	s.mr.SetError("ERR injected failure")
	err := s.lc.Apply(s.ctx, event)
	s.Require().Error(err)
	s.True(errors.Is(err, streams.ErrStoreUnavailable))

	s.mr.SetError("")
	s.Require().NoError(s.lc.Apply(s.ctx, event))
	s.Equal([]string{"alice"}, s.read("demo").Participants)
}

func (s *ProcessorTestSuite) TestForget() {
	_, _, err := s.lc.Create(s.ctx, "demo")
	s.Require().NoError(err)
	s.nextUpdate()

	s.Require().NoError(s.lc.Forget(s.ctx, "demo"))
	s.Nil(s.read("demo"))
	s.True(s.nextUpdate().Deleted())
}

func (s *ProcessorTestSuite) TestPublishOrderPerStream() {
	_, _, err := s.lc.Create(s.ctx, "demo")
	s.Require().NoError(err)
	s.Require().NoError(s.lc.Apply(s.ctx, s.joined("demo", "alice")))
	s.Require().NoError(s.lc.Apply(s.ctx, s.joined("demo", "bob")))
	s.Require().NoError(s.lc.Apply(s.ctx, s.left("demo", "alice")))

	var counts []int
	for range 4 {
		counts = append(counts, len(s.nextUpdate().State.Participants))
	}
	s.Equal([]int{0, 1, 2, 1}, counts)
}

func TestRefreshCalledAfterMutation(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	st := store.New(client, &store.Config{Prefix: "stream"}, log.NewNop())

	ctrl := gomock.NewController(t)
	refresher := mocks.NewMockMetricsRefresher(ctrl)
	refresher.EXPECT().Refresh(gomock.Any()).Return(streams.Stats{ActiveStreams: 1}, nil).Times(2)

	lc, err := New(st, refresher, &Config{IdleTTL: time.Minute, PurgeTTL: time.Minute}, clockwork.NewFakeClock(), log.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := lc.Create(context.Background(), "demo"); err != nil {
		t.Fatal(err)
	}
	// unknown kinds and no-op creates do not refresh
	if _, _, err := lc.Create(context.Background(), "demo"); err != nil {
		t.Fatal(err)
	}
	if err := lc.Apply(context.Background(), streams.Event{Kind: streams.KindUnknown, StreamID: "demo"}); err != nil {
		t.Fatal(err)
	}
	if err := lc.Apply(context.Background(), streams.Event{Kind: streams.KindParticipantJoined, StreamID: "demo", Identity: "a"}); err != nil {
		t.Fatal(err)
	}
}
