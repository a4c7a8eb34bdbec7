package hass

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/skyeyinkun/homelink-core/internal/infrastructure/config"
)

func restFixture(t *testing.T, handler http.Handler) (*RestClient, *Supervisor) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := config.Controller{LocalURL: srv.URL, Token: "long-lived-token-0123456789"}
	sup := NewSupervisor(cfg, nil, nil, nil)
	return NewRestClient(sup, cfg.Token, nil), sup
}

func TestRestClient_FetchStates(t *testing.T) {
	var gotAuth string
	rest, _ := restFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/states" {
			http.NotFound(w, r)
			return
		}
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode([]EntityState{ //nolint:errcheck
			{EntityID: "light.kitchen", State: "on"},
		})
	}))

	states, err := rest.FetchStates(context.Background())
	if err != nil {
		t.Fatalf("FetchStates() error = %v", err)
	}
	if len(states) != 1 || states[0].EntityID != "light.kitchen" {
		t.Errorf("states = %+v", states)
	}
	if gotAuth != "Bearer long-lived-token-0123456789" {
		t.Errorf("Authorization = %q", gotAuth)
	}
}

func TestRestClient_FetchEntityState(t *testing.T) {
	rest, _ := restFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/states/sensor.hall_temp" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(EntityState{EntityID: "sensor.hall_temp", State: "21.5"}) //nolint:errcheck
	}))

	st, err := rest.FetchEntityState(context.Background(), "sensor.hall_temp")
	if err != nil {
		t.Fatalf("FetchEntityState() error = %v", err)
	}
	if st.State != "21.5" {
		t.Errorf("state = %q, want 21.5", st.State)
	}
}

func TestRestClient_AuthRejection(t *testing.T) {
	rest, _ := restFixture(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	_, err := rest.FetchStates(context.Background())
	if !errors.Is(err, ErrAuthInvalid) {
		t.Errorf("error = %v, want ErrAuthInvalid", err)
	}
}

func TestRestClient_PrefersPushChannel(t *testing.T) {
	var restHits atomic.Int32
	rest, sup := restFixture(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		restHits.Add(1)
		json.NewEncoder(w).Encode([]EntityState{}) //nolint:errcheck
	}))

	sess := newMockSession("http://ha.local", "tok")
	sess.states = []EntityState{{EntityID: "light.kitchen", State: "on"}}
	sup.transition(StateConnected, ConnTypeLocal, sess, nil)

	states, err := rest.FetchStates(context.Background())
	if err != nil {
		t.Fatalf("FetchStates() error = %v", err)
	}
	if len(states) != 1 {
		t.Errorf("states = %d, want 1 from push channel", len(states))
	}
	if restHits.Load() != 0 {
		t.Errorf("rest hits = %d, want 0 while connected", restHits.Load())
	}
}

func TestRefresher_SingleFlight(t *testing.T) {
	var fetches atomic.Int32
	release := make(chan struct{})
	rest, _ := restFixture(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fetches.Add(1)
		<-release
		json.NewEncoder(w).Encode([]EntityState{ //nolint:errcheck
			{EntityID: "light.kitchen", State: "on"},
		})
	}))

	refresher := NewRefresher(rest, NewStream(nil))

	const callers = 8
	var wg sync.WaitGroup
	results := make([]int, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = refresher.Refresh(context.Background())
		}(i)
	}

	// Let every caller pile onto the in-flight fetch before releasing it.
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := fetches.Load(); got != 1 {
		t.Errorf("underlying fetches = %d, want 1", got)
	}
	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("Refresh()[%d] error = %v", i, errs[i])
		}
		if results[i] != 1 {
			t.Errorf("Refresh()[%d] = %d entities, want 1", i, results[i])
		}
	}
}

func TestRefresher_WrapsFailure(t *testing.T) {
	rest, _ := restFixture(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	refresher := NewRefresher(rest, NewStream(nil))
	_, err := refresher.Refresh(context.Background())
	if !errors.Is(err, ErrRefreshFailed) {
		t.Errorf("error = %v, want ErrRefreshFailed", err)
	}
}
