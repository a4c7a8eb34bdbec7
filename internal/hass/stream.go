package hass

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// journalCapacity bounds the in-memory event journal.
const journalCapacity = 100

// Stream maintains the local mirror of controller entity state.
//
// On attach it seeds the mirror with a full state fetch, then applies
// state_changed events as they arrive. Per entity the newest write wins;
// there is no cross-entity ordering guarantee and none is needed.
type Stream struct {
	logger Logger

	mu       sync.RWMutex
	states   map[string]EntityState
	seededAt time.Time

	journal journal

	watcherMu    sync.Mutex
	watchers     []func(EntityState)
	seedWatchers []func(map[string]EntityState)
}

// NewStream returns an empty state stream.
func NewStream(logger Logger) *Stream {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Stream{
		logger: logger,
		states: make(map[string]EntityState),
	}
}

// OnStateChange registers a callback invoked for every applied entity
// update, including the initial seed. Callbacks must not block.
func (s *Stream) OnStateChange(callback func(EntityState)) {
	s.watcherMu.Lock()
	s.watchers = append(s.watchers, callback)
	s.watcherMu.Unlock()
}

// OnSeed registers a callback invoked with the full snapshot after
// every complete mirror seed. Callbacks must not block.
func (s *Stream) OnSeed(callback func(map[string]EntityState)) {
	s.watcherMu.Lock()
	s.seedWatchers = append(s.seedWatchers, callback)
	s.watcherMu.Unlock()
}

// Attach seeds the mirror from the session and subscribes to changes.
// The subscription lives until the session or ctx ends.
func (s *Stream) Attach(ctx context.Context, sess Session) error {
	states, err := sess.FetchStates(ctx)
	if err != nil {
		return fmt.Errorf("seeding state mirror: %w", err)
	}

	_, err = sess.SubscribeEvents(ctx, eventTypeStateChanged, s.handleEvent)
	if err != nil {
		return fmt.Errorf("subscribing to state changes: %w", err)
	}

	s.mu.Lock()
	s.states = make(map[string]EntityState, len(states))
	for _, st := range states {
		s.states[st.EntityID] = st
	}
	s.seededAt = time.Now()
	s.mu.Unlock()

	s.logger.Info("state mirror seeded", "entities", len(states))

	for _, st := range states {
		s.notify(st)
	}
	s.notifySeed()
	return nil
}

// handleEvent applies one state_changed event to the mirror.
func (s *Stream) handleEvent(event Event) {
	s.journal.record(event)

	var data StateChangedData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		s.logger.Warn("discarding malformed state change", "error", err)
		return
	}

	if data.NewState == nil {
		// Entity removed from the controller.
		s.mu.Lock()
		delete(s.states, data.EntityID)
		s.mu.Unlock()
		return
	}

	s.mu.Lock()
	s.states[data.EntityID] = *data.NewState
	s.mu.Unlock()

	s.notify(*data.NewState)
}

func (s *Stream) notify(st EntityState) {
	s.watcherMu.Lock()
	watchers := make([]func(EntityState), len(s.watchers))
	copy(watchers, s.watchers)
	s.watcherMu.Unlock()
	for _, w := range watchers {
		w(st)
	}
}

// notifySeed hands the seeded snapshot to the bulk-pass watchers.
func (s *Stream) notifySeed() {
	s.watcherMu.Lock()
	watchers := make([]func(map[string]EntityState), len(s.seedWatchers))
	copy(watchers, s.seedWatchers)
	s.watcherMu.Unlock()
	if len(watchers) == 0 {
		return
	}
	snapshot := s.Snapshot()
	for _, w := range watchers {
		w(snapshot)
	}
}

// Get returns the mirrored state for one entity.
func (s *Stream) Get(entityID string) (EntityState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[entityID]
	return st, ok
}

// Snapshot returns a copy of the full entity mirror.
func (s *Stream) Snapshot() map[string]EntityState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]EntityState, len(s.states))
	for id, st := range s.states {
		out[id] = st
	}
	return out
}

// Replace overwrites the mirrored state for one entity. Used by the
// REST fallback path when the push channel is unavailable.
func (s *Stream) Replace(st EntityState) {
	s.mu.Lock()
	s.states[st.EntityID] = st
	s.mu.Unlock()
	s.notify(st)
}

// ReplaceAll overwrites the whole mirror.
func (s *Stream) ReplaceAll(states []EntityState) {
	s.mu.Lock()
	s.states = make(map[string]EntityState, len(states))
	for _, st := range states {
		s.states[st.EntityID] = st
	}
	s.seededAt = time.Now()
	s.mu.Unlock()

	for _, st := range states {
		s.notify(st)
	}
	s.notifySeed()
}

// SeededAt reports when the mirror was last fully seeded.
func (s *Stream) SeededAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seededAt
}

// Events returns the journal contents, newest first.
func (s *Stream) Events() []EventRecord {
	return s.journal.snapshot()
}

// journal is a fixed-capacity ring of recent controller events.
type journal struct {
	mu      sync.Mutex
	entries []EventRecord
	next    int
	full    bool
}

// record appends one event, evicting the oldest when full.
func (j *journal) record(event Event) {
	rec := EventRecord{
		Time:      time.Now(),
		EventType: event.EventType,
		Data:      event.Data,
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if len(j.entries) < journalCapacity && !j.full {
		j.entries = append(j.entries, rec)
		if len(j.entries) == journalCapacity {
			j.full = true
		}
		return
	}
	j.entries[j.next] = rec
	j.next = (j.next + 1) % journalCapacity
}

// snapshot returns the retained events, newest first.
func (j *journal) snapshot() []EventRecord {
	j.mu.Lock()
	defer j.mu.Unlock()

	out := make([]EventRecord, 0, len(j.entries))
	if !j.full {
		for i := len(j.entries) - 1; i >= 0; i-- {
			out = append(out, j.entries[i])
		}
		return out
	}
	// next is the oldest slot once the ring has wrapped.
	for i := 0; i < journalCapacity; i++ {
		idx := (j.next - 1 - i + journalCapacity) % journalCapacity
		out = append(out, j.entries[idx])
	}
	return out
}
