package hass

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// dialTimeout bounds the websocket dial plus auth handshake.
	dialTimeout = 10 * time.Second

	// handshakeReadTimeout bounds each read during the auth exchange.
	handshakeReadTimeout = 10 * time.Second
)

// Logger is the minimal logging interface the hass package depends on.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Conn is an authenticated websocket session with the remote controller.
//
// It multiplexes request/response commands (each tagged with a
// monotonically increasing id) and event subscriptions over one socket.
// At most one live Conn exists per process; the Supervisor owns it.
//
// All methods are safe for concurrent use from multiple goroutines.
type Conn struct {
	ws      *websocket.Conn
	key     string
	baseURL string

	writeMu sync.Mutex
	nextID  atomic.Uint64

	pendingMu sync.Mutex
	pending   map[uint64]chan serverMessage

	handlerMu sync.RWMutex
	handlers  map[uint64]func(Event)

	logger Logger

	done      chan struct{}
	closeOnce sync.Once
	closeErr  error

	disconnectMu sync.Mutex
	onDisconnect func(err error)
}

// Dial opens and authenticates a websocket session against the given
// normalized base URL.
//
// The controller greets with auth_required; the bearer token is presented
// once and the session is usable after auth_ok. A rejected token yields
// ErrAuthInvalid; callers must treat that as terminal rather than retry.
func Dial(ctx context.Context, baseURL, token string) (*Conn, error) {
	if token == "" {
		return nil, ErrMissingToken
	}

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	ws, _, err := websocket.DefaultDialer.DialContext(dialCtx, websocketURL(baseURL), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dialing %s: %w", ErrUnreachable, baseURL, err)
	}

	if err := authenticate(ws, token); err != nil {
		ws.Close() //nolint:errcheck // best effort cleanup on error path
		return nil, err
	}

	c := &Conn{
		ws:       ws,
		key:      connectionKey(baseURL, token),
		baseURL:  baseURL,
		pending:  make(map[uint64]chan serverMessage),
		handlers: make(map[uint64]func(Event)),
		logger:   noopLogger{},
		done:     make(chan struct{}),
	}

	go c.readLoop()

	return c, nil
}

// authenticate performs the auth_required / auth / auth_ok exchange.
func authenticate(ws *websocket.Conn, token string) error {
	var greeting serverMessage
	_ = ws.SetReadDeadline(time.Now().Add(handshakeReadTimeout)) //nolint:errcheck
	if err := ws.ReadJSON(&greeting); err != nil {
		return fmt.Errorf("%w: reading greeting: %w", ErrUnreachable, err)
	}
	if greeting.Type != msgTypeAuthRequired {
		return fmt.Errorf("%w: unexpected greeting %q", ErrUnreachable, greeting.Type)
	}

	if err := ws.WriteJSON(map[string]string{
		"type":         msgTypeAuth,
		"access_token": token,
	}); err != nil {
		return fmt.Errorf("%w: sending auth: %w", ErrUnreachable, err)
	}

	var reply serverMessage
	_ = ws.SetReadDeadline(time.Now().Add(handshakeReadTimeout)) //nolint:errcheck
	if err := ws.ReadJSON(&reply); err != nil {
		return fmt.Errorf("%w: reading auth reply: %w", ErrUnreachable, err)
	}

	switch reply.Type {
	case msgTypeAuthOK:
		_ = ws.SetReadDeadline(time.Time{}) //nolint:errcheck // clear handshake deadline
		return nil
	case msgTypeAuthInvalid:
		return ErrAuthInvalid
	default:
		return fmt.Errorf("%w: unexpected auth reply %q", ErrUnreachable, reply.Type)
	}
}

// Key returns the connection identity (normalized address + credential).
func (c *Conn) Key() string {
	return c.key
}

// BaseURL returns the normalized base address this session was dialed against.
func (c *Conn) BaseURL() string {
	return c.baseURL
}

// SetLogger sets a logger for connection-level diagnostics.
func (c *Conn) SetLogger(logger Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// SetOnDisconnect sets a callback invoked once when the session ends for
// any reason other than an explicit Close.
func (c *Conn) SetOnDisconnect(callback func(err error)) {
	c.disconnectMu.Lock()
	c.onDisconnect = callback
	c.disconnectMu.Unlock()
}

// Close tears down the session. Pending commands fail with ErrConnClosed.
// The disconnect callback is not invoked for an explicit close.
func (c *Conn) Close() error {
	c.shutdown(nil)
	return nil
}

// Done is closed when the session has ended.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// shutdown finalizes the session exactly once.
func (c *Conn) shutdown(cause error) {
	c.closeOnce.Do(func() {
		c.closeErr = cause
		close(c.done)
		c.ws.Close() //nolint:errcheck // transport teardown

		c.pendingMu.Lock()
		for id, ch := range c.pending {
			close(ch)
			delete(c.pending, id)
		}
		c.pendingMu.Unlock()

		if cause != nil {
			c.disconnectMu.Lock()
			callback := c.onDisconnect
			c.disconnectMu.Unlock()
			if callback != nil {
				callback(cause)
			}
		}
	})
}

// readLoop dispatches incoming messages until the socket fails or closes.
func (c *Conn) readLoop() {
	for {
		var msg serverMessage
		if err := c.ws.ReadJSON(&msg); err != nil {
			select {
			case <-c.done:
				// Explicit close already in progress.
			default:
				c.logger.Debug("connection read failed", "error", err)
			}
			c.shutdown(err)
			return
		}

		switch msg.Type {
		case msgTypeResult, msgTypePong:
			c.deliverResult(msg)
		case msgTypeEvent:
			c.deliverEvent(msg)
		default:
			c.logger.Debug("ignoring unexpected message", "type", msg.Type)
		}
	}
}

// deliverResult hands a result/pong message to the waiting command.
func (c *Conn) deliverResult(msg serverMessage) {
	c.pendingMu.Lock()
	ch, ok := c.pending[msg.ID]
	if ok {
		delete(c.pending, msg.ID)
	}
	c.pendingMu.Unlock()

	if ok {
		ch <- msg
	}
}

// deliverEvent routes an event message to its subscription handler.
func (c *Conn) deliverEvent(msg serverMessage) {
	c.handlerMu.RLock()
	handler, ok := c.handlers[msg.ID]
	c.handlerMu.RUnlock()
	if !ok {
		return
	}

	var event Event
	if err := json.Unmarshal(msg.Event, &event); err != nil {
		c.logger.Warn("discarding malformed event", "error", err)
		return
	}
	handler(event)
}

// send writes a command frame with a fresh id and registers a reply slot.
func (c *Conn) send(payload map[string]any) (uint64, chan serverMessage, error) {
	select {
	case <-c.done:
		return 0, nil, ErrConnClosed
	default:
	}

	id := c.nextID.Add(1)
	payload["id"] = id

	ch := make(chan serverMessage, 1)
	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()

	c.writeMu.Lock()
	err := c.ws.WriteJSON(payload)
	c.writeMu.Unlock()

	if err != nil {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
		return 0, nil, fmt.Errorf("writing command: %w", err)
	}

	return id, ch, nil
}

// SendCommand issues a request/response message and waits for its result.
// The returned payload is the raw result field, which may be null.
func (c *Conn) SendCommand(ctx context.Context, payload map[string]any) (json.RawMessage, error) {
	_, ch, err := c.send(payload)
	if err != nil {
		return nil, err
	}

	select {
	case msg, ok := <-ch:
		if !ok {
			return nil, ErrConnClosed
		}
		if msg.Type == msgTypePong {
			return nil, nil
		}
		if msg.Success != nil && !*msg.Success {
			if msg.Error != nil {
				return nil, fmt.Errorf("hass: command failed: %s (%s)", msg.Error.Message, msg.Error.Code)
			}
			return nil, fmt.Errorf("hass: command failed")
		}
		return msg.Result, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrCommandTimeout, ctx.Err())
	case <-c.done:
		return nil, ErrConnClosed
	}
}

// Ping performs one application-level round trip.
func (c *Conn) Ping(ctx context.Context) error {
	_, err := c.SendCommand(ctx, map[string]any{"type": msgTypePing})
	return err
}

// FetchStates requests the full entity state list over the push channel.
func (c *Conn) FetchStates(ctx context.Context) ([]EntityState, error) {
	raw, err := c.SendCommand(ctx, map[string]any{"type": cmdGetStates})
	if err != nil {
		return nil, err
	}

	var states []EntityState
	if err := json.Unmarshal(raw, &states); err != nil {
		return nil, fmt.Errorf("decoding states: %w", err)
	}
	return states, nil
}

// CallService invokes a named action on the controller.
func (c *Conn) CallService(ctx context.Context, domain, service string, data map[string]any) error {
	payload := map[string]any{
		"type":    cmdCallService,
		"domain":  domain,
		"service": service,
	}
	if len(data) > 0 {
		payload["service_data"] = data
	}

	_, err := c.SendCommand(ctx, payload)
	return err
}

// FetchAreas requests the area registry.
func (c *Conn) FetchAreas(ctx context.Context) ([]Area, error) {
	raw, err := c.SendCommand(ctx, map[string]any{"type": cmdAreaRegistryList})
	if err != nil {
		return nil, err
	}

	var areas []Area
	if err := json.Unmarshal(raw, &areas); err != nil {
		return nil, fmt.Errorf("decoding area registry: %w", err)
	}
	return areas, nil
}

// FetchDeviceRegistry requests the device registry.
func (c *Conn) FetchDeviceRegistry(ctx context.Context) ([]DeviceEntry, error) {
	raw, err := c.SendCommand(ctx, map[string]any{"type": cmdDeviceRegistryList})
	if err != nil {
		return nil, err
	}

	var devices []DeviceEntry
	if err := json.Unmarshal(raw, &devices); err != nil {
		return nil, fmt.Errorf("decoding device registry: %w", err)
	}
	return devices, nil
}

// FetchEntityRegistry requests the entity registry.
func (c *Conn) FetchEntityRegistry(ctx context.Context) ([]EntityEntry, error) {
	raw, err := c.SendCommand(ctx, map[string]any{"type": cmdEntityRegistryList})
	if err != nil {
		return nil, err
	}

	var entries []EntityEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decoding entity registry: %w", err)
	}
	return entries, nil
}

// SubscribeEvents subscribes to change notifications, optionally filtered
// to one event kind. The handler runs on the read loop goroutine and must
// not block. The returned function cancels the subscription.
func (c *Conn) SubscribeEvents(ctx context.Context, eventType string, handler func(Event)) (func(context.Context) error, error) {
	payload := map[string]any{"type": cmdSubscribeEvents}
	if eventType != "" {
		payload["event_type"] = eventType
	}

	id, ch, err := c.send(payload)
	if err != nil {
		return nil, err
	}

	select {
	case msg, ok := <-ch:
		if !ok {
			return nil, ErrConnClosed
		}
		if msg.Success != nil && !*msg.Success {
			return nil, fmt.Errorf("hass: subscribe failed")
		}
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrCommandTimeout, ctx.Err())
	case <-c.done:
		return nil, ErrConnClosed
	}

	c.handlerMu.Lock()
	c.handlers[id] = handler
	c.handlerMu.Unlock()

	unsubscribe := func(ctx context.Context) error {
		c.handlerMu.Lock()
		delete(c.handlers, id)
		c.handlerMu.Unlock()

		select {
		case <-c.done:
			return nil // session already gone, nothing to undo remotely
		default:
		}

		_, err := c.SendCommand(ctx, map[string]any{
			"type":         cmdUnsubscribeEvents,
			"subscription": id,
		})
		return err
	}

	return unsubscribe, nil
}
