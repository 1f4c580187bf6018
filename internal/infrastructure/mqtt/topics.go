package mqtt

import "fmt"

// Topic prefixes for the fieldtrace MQTT hierarchy.
//
// Scheme: fieldtrace/{category}/{...}
const (
	// TopicPrefix is the base for all fieldtrace topics.
	TopicPrefix = "fieldtrace"

	// TopicPrefixIngest is the base for device uplink topics.
	TopicPrefixIngest = "fieldtrace/ingest"

	// TopicPrefixAlert is the base for alert topics.
	TopicPrefixAlert = "fieldtrace/alert"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "fieldtrace/system"
)

// Topics provides builders for fieldtrace MQTT topics.
// Using these helpers keeps topic naming consistent across the codebase.
//
//	topics := mqtt.Topics{}
//	err := client.Subscribe(topics.IngestStandalone(), 1, handler)
type Topics struct{}

// IngestStandalone returns the uplink topic for standalone devices.
//
// Example: fieldtrace/ingest/standalone
func (Topics) IngestStandalone() string {
	return fmt.Sprintf("%s/standalone", TopicPrefixIngest)
}

// IngestGateway returns the uplink topic for gateway devices, covering
// both the gateway's own telemetry and relayed node traffic.
//
// Example: fieldtrace/ingest/gateway
func (Topics) IngestGateway() string {
	return fmt.Sprintf("%s/gateway", TopicPrefixIngest)
}

// AllIngest returns a pattern matching all device uplink topics.
//
// Pattern: fieldtrace/ingest/+
func (Topics) AllIngest() string {
	return fmt.Sprintf("%s/+", TopicPrefixIngest)
}

// GeofenceExit returns the alert topic for exits from a geofence.
//
// Example: fieldtrace/alert/geofence/fence-yard-01/exit
func (Topics) GeofenceExit(geofenceID string) string {
	return fmt.Sprintf("%s/geofence/%s/exit", TopicPrefixAlert, geofenceID)
}

// AllGeofenceExits returns a pattern matching all geofence exit alerts.
//
// Pattern: fieldtrace/alert/geofence/+/exit
func (Topics) AllGeofenceExits() string {
	return fmt.Sprintf("%s/geofence/+/exit", TopicPrefixAlert)
}

// SystemStatus returns the backend status topic.
//
// Example: fieldtrace/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllTopics returns a pattern matching all fieldtrace topics.
// Use with caution, this receives ALL traffic.
//
// Pattern: fieldtrace/#
func (Topics) AllTopics() string {
	return "fieldtrace/#"
}
