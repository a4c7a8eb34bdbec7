package hass

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/skyeyinkun/homelink-core/internal/infrastructure/config"
)

// reconnectDelay is the fixed pause between failed connection attempts.
// The cadence is deliberately constant rather than backing off: the
// controller lives on the same network and a steady retry keeps recovery
// time predictable after a reboot.
const reconnectDelay = 5 * time.Second

// minTokenLength is the shortest credential worth dialing with. Real
// long-lived access tokens are far longer; anything shorter is a
// placeholder or a paste error.
const minTokenLength = 20

// ConnType labels which candidate address a session was established over.
type ConnType string

const (
	ConnTypeLocal   ConnType = "Local"
	ConnTypePublic  ConnType = "Public"
	ConnTypeDefault ConnType = "Default"
	ConnTypeProxy   ConnType = "Proxy"
	ConnTypeNone    ConnType = ""
)

// State is the supervisor's connection lifecycle phase.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateAuthFailed   State = "auth_failed"
)

// Session is the authenticated connection surface the supervisor manages.
// *Conn satisfies it; tests substitute a fake.
type Session interface {
	Key() string
	BaseURL() string
	Close() error
	Done() <-chan struct{}
	SetOnDisconnect(func(error))
	SetLogger(Logger)
	Ping(ctx context.Context) error
	FetchStates(ctx context.Context) ([]EntityState, error)
	CallService(ctx context.Context, domain, service string, data map[string]any) error
	SubscribeEvents(ctx context.Context, eventType string, handler func(Event)) (func(context.Context) error, error)
	FetchAreas(ctx context.Context) ([]Area, error)
	FetchDeviceRegistry(ctx context.Context) ([]DeviceEntry, error)
	FetchEntityRegistry(ctx context.Context) ([]EntityEntry, error)
	SendCommand(ctx context.Context, payload map[string]any) (json.RawMessage, error)
}

// DialFunc opens an authenticated session against a base address.
type DialFunc func(ctx context.Context, baseURL, token string) (Session, error)

// Candidate is one address the supervisor may connect through.
type Candidate struct {
	URL  string
	Type ConnType
}

// Status is a point-in-time snapshot of the supervisor's condition.
type Status struct {
	State       State         `json:"state"`
	ConnType    ConnType      `json:"conn_type,omitempty"`
	BaseURL     string        `json:"base_url,omitempty"`
	ConnectedAt time.Time     `json:"connected_at,omitzero"`
	Latency     time.Duration `json:"latency_ms,omitempty"`
	LastError   string        `json:"last_error,omitempty"`
}

// Supervisor owns the single live session with the remote controller.
//
// It races the configured candidate addresses, dials the first reachable
// one, and keeps reconnecting on a fixed cadence until the context ends
// or the credential is rejected. Collaborators (stream, registry set)
// are re-attached after every successful dial.
type Supervisor struct {
	cfg    config.Controller
	prober Prober
	dial   DialFunc
	logger Logger

	stream   *Stream
	registry *RegistrySet

	hb heartbeat

	mu          sync.Mutex
	state       State
	conn        Session
	connType    ConnType
	connectedAt time.Time
	lastErr     error

	watcherMu sync.Mutex
	watchers  []func(Status)

	wakeup chan struct{}
}

// NewSupervisor builds a supervisor for the configured controller.
// Stream and registry may be nil when the caller only needs the session.
func NewSupervisor(cfg config.Controller, stream *Stream, registry *RegistrySet, logger Logger) *Supervisor {
	if logger == nil {
		logger = noopLogger{}
	}
	s := &Supervisor{
		cfg:      cfg,
		prober:   NewProber(cfg.Token, logger),
		logger:   logger,
		stream:   stream,
		registry: registry,
		state:    StateDisconnected,
		wakeup:   make(chan struct{}, 1),
	}
	s.dial = func(ctx context.Context, baseURL, token string) (Session, error) {
		return Dial(ctx, baseURL, token)
	}
	return s
}

// SetProber replaces the reachability prober. Intended for tests.
func (s *Supervisor) SetProber(p Prober) {
	if p != nil {
		s.prober = p
	}
}

// SetDialFunc replaces the session dialer. Intended for tests.
func (s *Supervisor) SetDialFunc(dial DialFunc) {
	if dial != nil {
		s.dial = dial
	}
}

// Subscribe registers a callback invoked on every status transition.
// Callbacks run synchronously and must not block.
func (s *Supervisor) Subscribe(callback func(Status)) {
	s.watcherMu.Lock()
	s.watchers = append(s.watchers, callback)
	s.watcherMu.Unlock()
}

// Status returns the current connection snapshot.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

func (s *Supervisor) statusLocked() Status {
	st := Status{
		State:       s.state,
		ConnType:    s.connType,
		ConnectedAt: s.connectedAt,
	}
	if s.conn != nil {
		st.BaseURL = s.conn.BaseURL()
	}
	if lat, ok := s.hb.Latency(); ok {
		st.Latency = lat
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

// Session returns the live session, or ErrNotConnected.
func (s *Supervisor) Session() (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConnected || s.conn == nil {
		return nil, ErrNotConnected
	}
	return s.conn, nil
}

// Latency reports the most recent heartbeat round trip.
func (s *Supervisor) Latency() (time.Duration, bool) {
	return s.hb.Latency()
}

// Reconnect drops the current session, if any, and prompts an immediate
// new connection attempt.
func (s *Supervisor) Reconnect() {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	if conn != nil {
		conn.Close() //nolint:errcheck // disconnect path takes over
	}
	select {
	case s.wakeup <- struct{}{}:
	default:
	}
}

// candidates returns the addresses to race, plus the fallbacks to try
// in order once the whole race has failed.
//
// Explicitly configured addresses exclude the fallbacks. Without any,
// only the default address is raced; the proxy route is a last resort
// and must not pre-empt a slow-but-reachable default.
func (s *Supervisor) candidates() (primary, fallback []Candidate) {
	if s.cfg.HasExplicitAddress() {
		if s.cfg.LocalURL != "" {
			primary = append(primary, Candidate{URL: NormalizeBaseURL(s.cfg.LocalURL), Type: ConnTypeLocal})
		}
		if s.cfg.PublicURL != "" {
			primary = append(primary, Candidate{URL: NormalizeBaseURL(s.cfg.PublicURL), Type: ConnTypePublic})
		}
		return primary, nil
	}
	if s.cfg.DefaultURL != "" {
		primary = append(primary, Candidate{URL: NormalizeBaseURL(s.cfg.DefaultURL), Type: ConnTypeDefault})
	}
	if s.cfg.ProxyPath != "" {
		fallback = append(fallback, Candidate{URL: NormalizeBaseURL(s.cfg.ProxyPath), Type: ConnTypeProxy})
	}
	return primary, fallback
}

// resolveDialURL makes a candidate dialable. Relative proxy routes are
// served by the local reverse proxy, so they resolve against loopback.
func resolveDialURL(baseURL string) string {
	if strings.HasPrefix(baseURL, "/") {
		return "http://127.0.0.1" + baseURL
	}
	return baseURL
}

// determineBest races availability probes across all candidates and
// returns the first one to prove reachable. A probe failure never decides
// the outcome on its own; only the last failure, with no success before
// it, reports that nothing is reachable.
func (s *Supervisor) determineBest(ctx context.Context, cands []Candidate) (Candidate, bool) {
	if len(cands) == 0 {
		return Candidate{}, false
	}

	// Capacity one: the winning probe and the final-failure sentinel
	// both use non-blocking sends, so losing goroutines never leak.
	result := make(chan Candidate, 1)
	var failures atomic.Int32
	total := int32(len(cands))

	for _, cand := range cands {
		go func(cand Candidate) {
			if s.prober.CheckAvailability(ctx, resolveDialURL(cand.URL)) {
				select {
				case result <- cand:
				default:
				}
				return
			}
			if failures.Add(1) == total {
				select {
				case result <- Candidate{}:
				default:
				}
			}
		}(cand)
	}

	select {
	case cand := <-result:
		return cand, cand.Type != ConnTypeNone
	case <-ctx.Done():
		return Candidate{}, false
	}
}

// Run drives the connection lifecycle until ctx ends or the credential
// is rejected. It blocks; callers run it in its own goroutine.
func (s *Supervisor) Run(ctx context.Context) error {
	if len(s.cfg.Token) < minTokenLength {
		s.transition(StateDisconnected, ConnTypeNone, nil, ErrMissingToken)
		return ErrMissingToken
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		sess, connType, err := s.connect(ctx)
		if err != nil {
			if errors.Is(err, ErrAuthInvalid) {
				s.logger.Error("credential rejected, not retrying")
				s.transition(StateAuthFailed, ConnTypeNone, nil, err)
				return err
			}
			s.transition(StateDisconnected, ConnTypeNone, nil, err)
			s.logger.Warn("connection attempt failed", "error", err)
			if !s.sleep(ctx) {
				return ctx.Err()
			}
			continue
		}

		s.logger.Info("connected", "conn_type", connType, "base_url", sess.BaseURL())
		s.transition(StateConnected, connType, sess, nil)

		s.serve(ctx, sess)

		s.mu.Lock()
		if s.conn == sess {
			s.conn = nil
		}
		s.mu.Unlock()

		if ctx.Err() != nil {
			sess.Close() //nolint:errcheck
			return ctx.Err()
		}

		s.logger.Warn("session ended, reconnecting", "delay", reconnectDelay)
		s.transition(StateDisconnected, ConnTypeNone, nil, ErrConnClosed)
		if !s.sleep(ctx) {
			return ctx.Err()
		}
	}
}

// connect picks the best candidate and dials it, reusing the existing
// session when it already points at the same address and credential.
func (s *Supervisor) connect(ctx context.Context) (Session, ConnType, error) {
	s.transition(StateConnecting, ConnTypeNone, nil, nil)

	primary, fallback := s.candidates()
	cand, ok := s.determineBest(ctx, primary)
	if !ok && len(fallback) > 0 && ctx.Err() == nil {
		cand, ok = s.determineBest(ctx, fallback)
	}
	if !ok {
		if err := ctx.Err(); err != nil {
			return nil, ConnTypeNone, err
		}
		return nil, ConnTypeNone, ErrUnreachable
	}

	key := connectionKey(cand.URL, s.cfg.Token)

	s.mu.Lock()
	existing := s.conn
	existingType := s.connType
	s.mu.Unlock()

	if existing != nil && existing.Key() == key {
		select {
		case <-existing.Done():
			// Stale, dial fresh below.
		default:
			return existing, existingType, nil
		}
	}
	if existing != nil {
		existing.Close() //nolint:errcheck // replaced by the new session
	}

	sess, err := s.dial(ctx, resolveDialURL(cand.URL), s.cfg.Token)
	if err != nil {
		return nil, ConnTypeNone, err
	}
	sess.SetLogger(s.logger)
	return sess, cand.Type, nil
}

// serve attaches collaborators to a fresh session and blocks until the
// session or the context ends.
func (s *Supervisor) serve(ctx context.Context, sess Session) {
	s.hb.reset()

	serveCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if s.stream != nil {
		if err := s.stream.Attach(serveCtx, sess); err != nil {
			s.logger.Error("state stream attach failed", "error", err)
			sess.Close() //nolint:errcheck
			return
		}
	}
	if s.registry != nil {
		if err := s.registry.Sync(serveCtx, sess); err != nil {
			// Registry data only improves naming; the session stays up.
			s.logger.Warn("registry sync incomplete", "error", err)
		}
	}

	go s.hb.run(serveCtx, sess, s.logger)

	select {
	case <-sess.Done():
	case <-ctx.Done():
		sess.Close() //nolint:errcheck
	}
}

// sleep waits out the reconnect delay. Reconnect() and context
// cancellation both cut it short. Returns false when ctx ended.
func (s *Supervisor) sleep(ctx context.Context) bool {
	timer := time.NewTimer(reconnectDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-s.wakeup:
		return true
	case <-ctx.Done():
		return false
	}
}

// transition updates the snapshot and notifies watchers. Leaving the
// connected state invalidates the last measured latency before the
// snapshot is taken, so no watcher sees a dead session's figure.
func (s *Supervisor) transition(state State, connType ConnType, sess Session, err error) {
	if state != StateConnected {
		s.hb.reset()
	}
	s.mu.Lock()
	s.state = state
	s.connType = connType
	s.lastErr = err
	if sess != nil {
		s.conn = sess
		s.connectedAt = time.Now()
	} else if state != StateConnected {
		s.connectedAt = time.Time{}
	}
	snapshot := s.statusLocked()
	s.mu.Unlock()

	s.watcherMu.Lock()
	watchers := make([]func(Status), len(s.watchers))
	copy(watchers, s.watchers)
	s.watcherMu.Unlock()
	for _, w := range watchers {
		w(snapshot)
	}
}

// CallService invokes a controller action over the live session.
func (s *Supervisor) CallService(ctx context.Context, domain, service string, data map[string]any) error {
	sess, err := s.Session()
	if err != nil {
		return err
	}
	return sess.CallService(ctx, domain, service, data)
}
