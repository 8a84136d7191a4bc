package mqtt

import (
	"encoding/json"
	"fmt"
	"time"
)

// Maximum payload size for MQTT messages (256KB).
// Announcements are tiny; anything near this limit indicates a bug.
const maxPayloadSize = 256 << 10

// Publish sends a message to the specified MQTT topic.
//
// Parameters:
//   - topic: The topic to publish to (e.g., "volthome/projects/0f8c1f2a/version")
//   - payload: The message payload (JSON)
//   - qos: Quality of Service level (0, 1, or 2)
//   - retained: Whether the broker should retain the message for new subscribers
//
// Retained Messages:
//   - When true, broker stores the last message for each topic
//   - New subscribers immediately receive the retained message
//   - Use for state topics (project version, system status)
//   - Don't use for one-shot notifications
//
// Returns:
//   - error: nil on success, or wrapped error describing the failure
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	return nil
}

// versionAnnouncement is the payload published after a project version bump.
type versionAnnouncement struct {
	ProjectID string `json:"projectId"`
	Version   int64  `json:"version"`
	Timestamp string `json:"timestamp"`
}

// AnnounceProjectVersion publishes a retained version announcement for a project.
//
// Clients subscribed to the project's version topic learn that the version
// counter moved and should run a delta sync over HTTP. The message is
// retained so a client that reconnects sees the latest version immediately.
func (c *Client) AnnounceProjectVersion(projectID string, version int64) error {
	payload, err := json.Marshal(versionAnnouncement{
		ProjectID: projectID,
		Version:   version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return c.Publish(Topics{}.ProjectVersion(projectID), payload, byte(c.cfg.QoS), true)
}

// AnnounceProjectDeleted publishes a deletion announcement for a project.
//
// Published with retained=false; there is nothing for late subscribers
// to act on once the project is gone.
func (c *Client) AnnounceProjectDeleted(projectID string) error {
	payload, err := json.Marshal(map[string]string{
		"projectId": projectID,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return c.Publish(Topics{}.ProjectDeleted(projectID), payload, byte(c.cfg.QoS), false)
}
