package hass

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"
)

// probeTimeout bounds a single availability check.
const probeTimeout = 4 * time.Second

// Prober answers whether a candidate address is worth dialing.
type Prober interface {
	CheckAvailability(ctx context.Context, baseURL string) bool
}

// HTTPProber checks reachability with an authenticated GET against the
// controller's liveness endpoint, falling back to a full session
// handshake when HTTP transport fails outright.
//
// Any HTTP status counts as reachable: a 401 or 404 still proves a
// server is listening at the address, which is all the probe decides.
// Authentication is judged later by the dial handshake.
type HTTPProber struct {
	token  string
	client *http.Client
	dial   func(ctx context.Context, baseURL, token string) (io.Closer, error)
	logger Logger
}

// NewProber returns a prober that presents token on its checks.
func NewProber(token string, logger Logger) *HTTPProber {
	if logger == nil {
		logger = noopLogger{}
	}
	return &HTTPProber{
		token:  token,
		client: &http.Client{Timeout: probeTimeout},
		dial: func(ctx context.Context, baseURL, token string) (io.Closer, error) {
			return Dial(ctx, baseURL, token)
		},
		logger: logger,
	}
}

// CheckAvailability reports whether anything answers at baseURL within
// the probe window. It never blocks past probeTimeout.
func (p *HTTPProber) CheckAvailability(ctx context.Context, baseURL string) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/", nil)
	if err != nil {
		p.logger.Debug("probe request invalid", "url", baseURL, "error", err)
		return false
	}
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.client.Do(req)
	if err == nil {
		resp.Body.Close() //nolint:errcheck // body unused
		return true
	}

	// Some proxies refuse plain HTTP on this path; a real session
	// handshake is as good as an HTTP answer.
	sess, derr := p.dial(ctx, baseURL, p.token)
	if derr == nil {
		sess.Close() //nolint:errcheck // probe only
		return true
	}
	if errors.Is(derr, ErrAuthInvalid) {
		// The handshake ran far enough to be rejected, so something
		// is listening.
		return true
	}

	p.logger.Debug("probe failed", "url", baseURL, "http_error", err, "dial_error", derr)
	return false
}
