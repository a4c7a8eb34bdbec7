// Package mqtt provides the MQTT announcer for Homelink Core.
//
// This package manages:
//   - Connection to an MQTT broker with auto-reconnect
//   - Retained status and device state publishing
//   - Inbound device command routing
//   - Last Will and Testament (LWT) for offline detection
//
// # Architecture
//
// Homelink publishes its connectivity and mirrored device state for
// external collaborators (wall panels, bridges, dashboards) that speak
// MQTT rather than the REST/WebSocket API. The daemon is the only
// publisher on its topics; commands flow the other way on the /set
// topics.
//
//	homelink/status               retained connectivity status
//	homelink/device/{id}/state    retained mirrored device state
//	homelink/device/{id}/set      inbound device commands
//
// # Security Considerations
//
//   - TLS is required for production deployments (mqtt.tls: true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	announcer := mqtt.NewAnnouncer(client)
//	announcer.AnnounceStatus(status)
//	announcer.ListenCommands(func(deviceID int, payload []byte) error {
//	    return dispatch(deviceID, payload)
//	})
package mqtt
