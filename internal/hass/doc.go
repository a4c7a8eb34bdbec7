// Package hass implements the client side of a Home-Assistant-compatible
// controller connection: endpoint selection across multiple candidate
// addresses, a supervised WebSocket session with authentication and
// automatic reconnection, entity state streaming, registry metadata
// fetching, and a REST fallback path.
//
// # Architecture
//
// A single Supervisor owns the one live connection per process. Collaborators
// never dial the controller themselves; they attach to the connection the
// Supervisor hands out:
//
//	Supervisor ──► Conn ──► Stream (entity snapshot + event journal)
//	    │                   Heartbeat (latency)
//	    │                   RegistrySet (area/device/entity metadata)
//	    └──────────────────► RestClient (request/response fallback)
//
// Endpoint candidates (local LAN address, public relay address) are probed
// concurrently; the first candidate that proves reachable wins. A candidate
// that fails fast never pre-empts a slower one that will succeed: "none
// reachable" is only reported once every candidate has failed.
//
// On transport drop the Supervisor schedules a new connection attempt after
// a fixed delay and retries until it is stopped. A rejected credential is
// terminal: the Supervisor stays failed until it is restarted with a new
// configuration.
package hass
