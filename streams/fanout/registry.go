package fanout

import (
	isync "github.com/imtaco/stream-coordinator/internal/sync"
	"github.com/imtaco/stream-coordinator/streams"
)

// Registry maps stream ids to the observers open on this process.
type Registry struct {
	m *isync.Map[string, map[string]streams.Observer]
}

func NewRegistry() *Registry {
	return &Registry{m: isync.NewMap[string, map[string]streams.Observer]()}
}

func (r *Registry) Add(obs streams.Observer) {
	r.m.WithLock(func(view isync.View[string, map[string]streams.Observer]) {
		set, ok := view.Get(obs.StreamID())
		if !ok {
			set = make(map[string]streams.Observer)
			view.Set(obs.StreamID(), set)
		}
		set[obs.ID()] = obs
	})
}

// Remove reports whether obs was registered.
func (r *Registry) Remove(obs streams.Observer) bool {
	removed := false
	r.m.WithLock(func(view isync.View[string, map[string]streams.Observer]) {
		set, ok := view.Get(obs.StreamID())
		if !ok {
			return
		}
		if _, ok := set[obs.ID()]; !ok {
			return
		}
		delete(set, obs.ID())
		removed = true
		if len(set) == 0 {
			view.Delete(obs.StreamID())
		}
	})
	return removed
}

// Observers returns a copy of the observers for streamID.
func (r *Registry) Observers(streamID string) []streams.Observer {
	var out []streams.Observer
	r.m.WithRLock(func(view isync.View[string, map[string]streams.Observer]) {
		set, ok := view.Get(streamID)
		if !ok {
			return
		}
		out = make([]streams.Observer, 0, len(set))
		for _, obs := range set {
			out = append(out, obs)
		}
	})
	return out
}

// Drain removes and returns every registered observer.
func (r *Registry) Drain() []streams.Observer {
	var out []streams.Observer
	r.m.WithLock(func(view isync.View[string, map[string]streams.Observer]) {
		view.Range(func(_ string, set map[string]streams.Observer) bool {
			for _, obs := range set {
				out = append(out, obs)
			}
			return true
		})
		view.Clear()
	})
	return out
}

// Streams returns the number of streams with at least one observer.
func (r *Registry) Streams() int {
	return r.m.Len()
}
