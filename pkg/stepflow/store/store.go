// Package store provides a process-wide publish/subscribe map from
// flow id to execution trace. It is the seam that lets a flow-running
// driver and a flow-inspecting observer stay fully decoupled: neither
// holds a reference to the other.
package store

import (
	"sync"

	"github.com/stepflow/stepflow/pkg/stepflow/trace"
)

// Listener observes execution writes. It receives a private snapshot;
// mutating it has no effect on the store or other listeners.
type Listener func(flowID string, execution *trace.FlowExecution)

// Store maps each flow id to its most recent ("live") execution and an
// append-only history of past executions, and notifies subscribers on
// every write.
//
// A Store is constructed explicitly and injected into both drivers and
// inspectors; there is no package-level instance. All mutations happen
// under a single mutex, so concurrent drivers are safe.
type Store struct {
	mu        sync.RWMutex
	live      map[string]*trace.FlowExecution
	history   map[string][]*trace.FlowExecution
	listeners map[int]Listener
	nextID    int
}

// New creates an empty store.
func New() *Store {
	return &Store{
		live:      make(map[string]*trace.FlowExecution),
		history:   make(map[string][]*trace.FlowExecution),
		listeners: make(map[int]Listener),
	}
}

// Compile-time check: a Store can serve as a tracker's mirror.
var _ trace.Sink = (*Store)(nil)

// SetExecution records the execution as the live one for the flow
// (last-write-wins) and notifies all subscribers.
//
// History keeps one entry per execution id: successive snapshots of the
// same run replace the tail entry rather than appending, so the history
// list reads as one entry per run.
func (s *Store) SetExecution(flowID string, execution *trace.FlowExecution) {
	if execution == nil {
		return
	}

	s.mu.Lock()
	snapshot := execution.Clone()
	s.live[flowID] = snapshot

	hist := s.history[flowID]
	if n := len(hist); n > 0 && hist[n-1].ID == snapshot.ID {
		hist[n-1] = snapshot
	} else {
		s.history[flowID] = append(hist, snapshot)
	}

	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	// Notify outside the lock; each listener gets its own snapshot.
	for _, l := range listeners {
		l(flowID, snapshot.Clone())
	}
}

// Execution returns a snapshot of the live execution for a flow, or
// nil if none is recorded.
func (s *Store) Execution(flowID string) *trace.FlowExecution {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.live[flowID].Clone()
}

// History returns snapshots of all recorded executions for a flow, in
// order of first write.
func (s *Store) History(flowID string) []*trace.FlowExecution {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hist := s.history[flowID]
	out := make([]*trace.FlowExecution, len(hist))
	for i, ex := range hist {
		out[i] = ex.Clone()
	}
	return out
}

// ClearLiveExecution removes the live entry for a flow.
// History is append-only and is left intact.
func (s *Store) ClearLiveExecution(flowID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.live, flowID)
}

// Subscribe registers a listener for all writes and returns a function
// that removes it.
func (s *Store) Subscribe(l Listener) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}
