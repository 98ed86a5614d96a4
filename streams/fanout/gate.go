package fanout

import (
	"sync"

	"github.com/imtaco/stream-coordinator/streams"
)

// maxHeld bounds what a gate buffers while its snapshot is being read.
const maxHeld = 64

// gate holds dispatched updates back until the observer has its snapshot, so
// nothing older than the snapshot can follow it.
type gate struct {
	streams.Observer

	mu   sync.Mutex
	open bool
	held []streams.Update
}

func newGate(obs streams.Observer) *gate {
	return &gate{Observer: obs}
}

func (g *gate) Enqueue(update streams.Update) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.open {
		return g.Observer.Enqueue(update)
	}
	if len(g.held) >= maxHeld {
		return false
	}
	g.held = append(g.held, update)
	return true
}

// release enqueues snapshot followed by every held update.
func (g *gate) release(snapshot streams.Update) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.Observer.Enqueue(snapshot) {
		return false
	}
	for _, update := range g.held {
		if !g.Observer.Enqueue(update) {
			return false
		}
	}
	g.held = nil
	g.open = true
	return true
}
