package mqtt

import "fmt"

// Topic prefixes for VoltHome MQTT announcements.
//
// Announcement scheme: volthome/{category}/{id}/{event}
// All payloads are JSON. All announcement topics are publish-only from
// the server's point of view; clients subscribe and react by polling
// the HTTP API.
const (
	// TopicPrefix is the base for all VoltHome topics.
	TopicPrefix = "volthome"

	// TopicPrefixProjects is the base for project announcement topics.
	TopicPrefixProjects = "volthome/projects"

	// TopicPrefixUsers is the base for per-user notification topics.
	TopicPrefixUsers = "volthome/users"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "volthome/system"
)

// Topics provides builders for VoltHome MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	topic := topics.ProjectVersion("0f8c...")
//	// Returns: "volthome/projects/0f8c.../version"
type Topics struct{}

// ProjectVersion returns the topic for project version announcements.
//
// A message here means the project's version counter moved and clients
// holding an older version should run a delta sync.
//
// Example: volthome/projects/0f8c1f2a/version
func (Topics) ProjectVersion(projectID string) string {
	return fmt.Sprintf("%s/%s/version", TopicPrefixProjects, projectID)
}

// ProjectDeleted returns the topic for project deletion announcements.
//
// Example: volthome/projects/0f8c1f2a/deleted
func (Topics) ProjectDeleted(projectID string) string {
	return fmt.Sprintf("%s/%s/deleted", TopicPrefixProjects, projectID)
}

// UserNotification returns the topic for notifications to a specific user.
//
// Example: volthome/users/9b2d44c1/notification
func (Topics) UserNotification(userID string) string {
	return fmt.Sprintf("%s/%s/notification", TopicPrefixUsers, userID)
}

// SystemStatus returns the system status topic.
//
// Example: volthome/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllProjectVersions returns a pattern matching all project version announcements.
//
// Pattern: volthome/projects/+/version
func (Topics) AllProjectVersions() string {
	return fmt.Sprintf("%s/+/version", TopicPrefixProjects)
}

// AllTopics returns a pattern matching all VoltHome topics.
//
// Pattern: volthome/#
func (Topics) AllTopics() string {
	return TopicPrefix + "/#"
}
