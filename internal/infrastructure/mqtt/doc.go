// Package mqtt provides the MQTT announcement client for VoltHome.
//
// Sync in VoltHome is poll-based: clients call the HTTP API to apply
// batches and fetch deltas. The broker exists only to shorten the poll
// interval. After a successful batch apply the server publishes a small
// retained message to volthome/projects/{id}/version; a client that hears
// it knows to sync now instead of waiting for its next timer tick.
//
// Because every announcement is a hint rather than a transport, the
// client is publish-only and every publish failure is logged and
// swallowed by callers. The server is fully functional with MQTT
// disabled in config.
//
// Topics:
//
//	volthome/projects/{id}/version  retained, version bump announcements
//	volthome/projects/{id}/deleted  project deletion announcements
//	volthome/users/{id}/notification  per-user notifications
//	volthome/system/status          retained, server online/offline (incl. LWT)
//
// Usage:
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil { ... }
//	defer client.Close()
//
//	_ = client.AnnounceProjectVersion(projectID, newVersion)
package mqtt
