// Package api provides the HTTP REST API and WebSocket server for Homelink Core.
//
// It exposes controller connectivity status, the live entity snapshot,
// the device catalog, and service invocation to local collaborators
// (dashboards, wall panels, scripts).
//
// The server follows the same lifecycle pattern as the other
// infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Authentication is a static bearer token from config; the WebSocket
// endpoint accepts the same token as a query parameter since browsers
// cannot set headers on WebSocket dials.
package api
