package hass

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
)

func stateChangedEvent(t *testing.T, entityID, state string) Event {
	t.Helper()
	data, err := json.Marshal(StateChangedData{
		EntityID: entityID,
		NewState: &EntityState{EntityID: entityID, State: state},
	})
	if err != nil {
		t.Fatalf("marshaling event data: %v", err)
	}
	return Event{EventType: eventTypeStateChanged, Data: data}
}

func TestStream_Attach(t *testing.T) {
	stream := NewStream(nil)
	sess := newMockSession("http://ha.local", "tok")
	sess.states = []EntityState{
		{EntityID: "light.kitchen", State: "on"},
		{EntityID: "sensor.hall_temp", State: "21.5"},
	}

	if err := stream.Attach(context.Background(), sess); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}

	if got := len(stream.Snapshot()); got != 2 {
		t.Errorf("snapshot size = %d, want 2", got)
	}
	if len(sess.subscribed) != 1 || sess.subscribed[0] != eventTypeStateChanged {
		t.Errorf("subscriptions = %v, want [state_changed]", sess.subscribed)
	}
}

func TestStream_NotifiesSeedWatchers(t *testing.T) {
	stream := NewStream(nil)
	sess := newMockSession("http://ha.local", "tok")
	sess.states = []EntityState{
		{EntityID: "light.kitchen", State: "on"},
		{EntityID: "sensor.hall_temp", State: "21.5"},
	}

	var seeds []map[string]EntityState
	stream.OnSeed(func(states map[string]EntityState) {
		seeds = append(seeds, states)
	})

	if err := stream.Attach(context.Background(), sess); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	if len(seeds) != 1 || len(seeds[0]) != 2 {
		t.Fatalf("seed notifications = %d, want one full snapshot", len(seeds))
	}
	if _, ok := seeds[0]["light.kitchen"]; !ok {
		t.Error("seed snapshot missing light.kitchen")
	}

	stream.ReplaceAll([]EntityState{{EntityID: "light.kitchen", State: "off"}})
	if len(seeds) != 2 || len(seeds[1]) != 1 {
		t.Fatalf("seed notifications after ReplaceAll = %d, want 2", len(seeds))
	}
}

func TestStream_AppliesStateChanges(t *testing.T) {
	stream := NewStream(nil)
	sess := newMockSession("http://ha.local", "tok")
	sess.states = []EntityState{{EntityID: "light.kitchen", State: "off"}}

	if err := stream.Attach(context.Background(), sess); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}

	sess.emit(stateChangedEvent(t, "light.kitchen", "on"))

	st, ok := stream.Get("light.kitchen")
	if !ok {
		t.Fatal("entity missing after update")
	}
	if st.State != "on" {
		t.Errorf("state = %q, want on", st.State)
	}
}

func TestStream_NilNewStateRemovesEntity(t *testing.T) {
	stream := NewStream(nil)
	sess := newMockSession("http://ha.local", "tok")
	sess.states = []EntityState{{EntityID: "light.old", State: "on"}}

	if err := stream.Attach(context.Background(), sess); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}

	data, _ := json.Marshal(StateChangedData{EntityID: "light.old", NewState: nil})
	sess.emit(Event{EventType: eventTypeStateChanged, Data: data})

	if _, ok := stream.Get("light.old"); ok {
		t.Error("entity should be removed when new_state is null")
	}
}

func TestStream_NotifiesWatchers(t *testing.T) {
	stream := NewStream(nil)
	var seen []string
	stream.OnStateChange(func(st EntityState) {
		seen = append(seen, st.EntityID+"="+st.State)
	})

	sess := newMockSession("http://ha.local", "tok")
	sess.states = []EntityState{{EntityID: "switch.fan", State: "off"}}
	if err := stream.Attach(context.Background(), sess); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	sess.emit(stateChangedEvent(t, "switch.fan", "on"))

	if len(seen) != 2 {
		t.Fatalf("notifications = %d, want 2 (%v)", len(seen), seen)
	}
	if seen[1] != "switch.fan=on" {
		t.Errorf("last notification = %q", seen[1])
	}
}

func TestStream_AttachFailsWhenSeedFails(t *testing.T) {
	stream := NewStream(nil)
	sess := newMockSession("http://ha.local", "tok")
	sess.statesErr = ErrConnClosed

	if err := stream.Attach(context.Background(), sess); err == nil {
		t.Error("Attach() should fail when the seed fetch fails")
	}
}

func TestJournal_NewestFirst(t *testing.T) {
	var j journal
	for i := 0; i < 5; i++ {
		j.record(Event{EventType: fmt.Sprintf("event_%d", i)})
	}

	events := j.snapshot()
	if len(events) != 5 {
		t.Fatalf("journal size = %d, want 5", len(events))
	}
	if events[0].EventType != "event_4" || events[4].EventType != "event_0" {
		t.Errorf("ordering wrong: first = %q, last = %q", events[0].EventType, events[4].EventType)
	}
}

func TestJournal_CapsAtCapacity(t *testing.T) {
	var j journal
	for i := 0; i < journalCapacity+25; i++ {
		j.record(Event{EventType: fmt.Sprintf("event_%d", i)})
	}

	events := j.snapshot()
	if len(events) != journalCapacity {
		t.Fatalf("journal size = %d, want %d", len(events), journalCapacity)
	}
	if events[0].EventType != fmt.Sprintf("event_%d", journalCapacity+24) {
		t.Errorf("newest = %q, want event_%d", events[0].EventType, journalCapacity+24)
	}
	if events[len(events)-1].EventType != "event_25" {
		t.Errorf("oldest = %q, want event_25", events[len(events)-1].EventType)
	}
}
