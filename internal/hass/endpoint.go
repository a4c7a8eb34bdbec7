package hass

import "strings"

// NormalizeBaseURL canonicalizes a user-supplied controller address into a
// comparable base URL.
//
// It unifies websocket scheme variants onto their HTTP counterparts and
// strips trailing API path segments and slashes:
//
//	wss://ha.example.org/api/websocket  →  https://ha.example.org
//	http://192.168.1.5:8123/api/        →  http://192.168.1.5:8123
//
// A relative path (leading "/") is an opaque proxy route and is returned
// with only its trailing slash removed. The function is pure and
// idempotent: NormalizeBaseURL(NormalizeBaseURL(x)) == NormalizeBaseURL(x).
func NormalizeBaseURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return trimmed
	}
	if strings.HasPrefix(trimmed, "/") {
		return strings.TrimRight(trimmed, "/")
	}

	url := trimmed
	switch {
	case strings.HasPrefix(url, "wss://"):
		url = "https://" + strings.TrimPrefix(url, "wss://")
	case strings.HasPrefix(url, "ws://"):
		url = "http://" + strings.TrimPrefix(url, "ws://")
	}

	url = strings.TrimRight(url, "/")
	url = strings.TrimSuffix(url, "/api/websocket")
	url = strings.TrimSuffix(url, "/api")
	url = strings.TrimRight(url, "/")

	return url
}

// connectionKey derives the identity of a connection from its normalized
// address and credential. Two configurations with the same key may share
// one live connection handle.
func connectionKey(baseURL, token string) string {
	return baseURL + "::" + token
}

// websocketURL converts a normalized base URL into the controller's
// websocket endpoint.
func websocketURL(baseURL string) string {
	url := baseURL
	switch {
	case strings.HasPrefix(url, "https://"):
		url = "wss://" + strings.TrimPrefix(url, "https://")
	case strings.HasPrefix(url, "http://"):
		url = "ws://" + strings.TrimPrefix(url, "http://")
	}
	return url + "/api/websocket"
}
