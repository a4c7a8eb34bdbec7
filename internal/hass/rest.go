package hass

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/sync/singleflight"
)

// restTimeout bounds a single REST request to the controller.
const restTimeout = 10 * time.Second

// RestClient fetches entity state over the controller's HTTP API.
//
// The push channel is always preferred; REST exists so state can still be
// read while the websocket is down or re-establishing. Requests go to the
// address of the live session when there is one, otherwise to the first
// configured candidate.
type RestClient struct {
	sup    *Supervisor
	token  string
	client *http.Client
	logger Logger
}

// NewRestClient builds a REST fallback client bound to the supervisor's
// connection choices.
func NewRestClient(sup *Supervisor, token string, logger Logger) *RestClient {
	if logger == nil {
		logger = noopLogger{}
	}
	return &RestClient{
		sup:    sup,
		token:  token,
		client: &http.Client{Timeout: restTimeout},
		logger: logger,
	}
}

// baseURL picks the address to send REST requests to.
func (r *RestClient) baseURL() (string, error) {
	if sess, err := r.sup.Session(); err == nil {
		return sess.BaseURL(), nil
	}
	primary, fallback := r.sup.candidates()
	cands := append(primary, fallback...)
	if len(cands) == 0 {
		return "", ErrUnreachable
	}
	return resolveDialURL(cands[0].URL), nil
}

// get issues an authenticated GET and decodes the JSON body into out.
func (r *RestClient) get(ctx context.Context, path string, out any) error {
	base, err := r.baseURL()
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+path, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+r.token)
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrAuthInvalid
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("hass: unexpected status %d from %s", resp.StatusCode, path)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}

// FetchStates retrieves all entity states, preferring the push channel.
func (r *RestClient) FetchStates(ctx context.Context) ([]EntityState, error) {
	if sess, err := r.sup.Session(); err == nil {
		states, err := sess.FetchStates(ctx)
		if err == nil {
			return states, nil
		}
		r.logger.Warn("push-channel state fetch failed, trying rest", "error", err)
	}

	var states []EntityState
	if err := r.get(ctx, "/api/states", &states); err != nil {
		return nil, err
	}
	return states, nil
}

// FetchEntityState retrieves one entity's current state over REST.
func (r *RestClient) FetchEntityState(ctx context.Context, entityID string) (EntityState, error) {
	var st EntityState
	err := r.get(ctx, "/api/states/"+url.PathEscape(entityID), &st)
	return st, err
}

// Refresher re-seeds the state mirror on demand.
//
// Concurrent refresh requests collapse into one underlying fetch; every
// caller observes the same result.
type Refresher struct {
	rest   *RestClient
	stream *Stream
	group  singleflight.Group
}

// NewRefresher wires a refresher over the REST client and stream.
func NewRefresher(rest *RestClient, stream *Stream) *Refresher {
	return &Refresher{rest: rest, stream: stream}
}

// Refresh fetches a fresh state snapshot and replaces the mirror,
// returning the number of entities applied.
func (f *Refresher) Refresh(ctx context.Context) (int, error) {
	n, err, _ := f.group.Do("refresh", func() (any, error) {
		states, err := f.rest.FetchStates(ctx)
		if err != nil {
			return 0, fmt.Errorf("%w: %w", ErrRefreshFailed, err)
		}
		f.stream.ReplaceAll(states)
		return len(states), nil
	})
	if err != nil {
		return 0, err
	}
	return n.(int), nil
}
