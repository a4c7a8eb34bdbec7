package hass

import (
	"context"
	"sync"
	"time"
)

const (
	// heartbeatInterval is the gap between application-level pings.
	heartbeatInterval = 10 * time.Second

	// heartbeatTimeout bounds a single ping round trip.
	heartbeatTimeout = 5 * time.Second
)

// heartbeat pings a session on a fixed cadence and records round-trip
// latency. A failed ping only makes the latency unknown; drop detection
// belongs to the supervisor watching the session's Done channel.
type heartbeat struct {
	mu      sync.Mutex
	latency time.Duration
	ok      bool
}

// Latency reports the most recent round-trip time. The boolean is false
// until at least one ping has completed on the current session.
func (h *heartbeat) Latency() (time.Duration, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.latency, h.ok
}

// reset clears the recorded latency for a fresh session.
func (h *heartbeat) reset() {
	h.mu.Lock()
	h.latency = 0
	h.ok = false
	h.mu.Unlock()
}

// run pings until ctx is cancelled or the session ends. The first ping
// goes out immediately so latency is known soon after connecting.
func (h *heartbeat) run(ctx context.Context, sess Session, logger Logger) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		pingCtx, cancel := context.WithTimeout(ctx, heartbeatTimeout)
		start := time.Now()
		err := sess.Ping(pingCtx)
		cancel()

		if err != nil {
			logger.Warn("heartbeat ping failed", "error", err)
		}

		h.mu.Lock()
		if err != nil {
			h.ok = false
		} else {
			h.latency = time.Since(start)
			h.ok = true
		}
		h.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		case <-sess.Done():
			return
		case <-ticker.C:
		}
	}
}
