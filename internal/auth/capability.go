package auth

// Capability names for operator-facing mutations. Device uplinks never
// pass through the capability gate; only humans and integrations acting
// on the fleet do.
const (
	CapDeviceManage   = "device:manage"
	CapSessionManage  = "session:manage"
	CapGeofenceManage = "geofence:manage"
	CapSchemaManage   = "schema:manage"
	CapPhaseManage    = "phase:manage"
)

// CapabilityFunc decides whether an operator holds all of the named
// capabilities for a project. The permission model itself lives outside
// this service; callers plug in whatever policy backend they run.
//
// Implementations must be pure with respect to their arguments and safe
// for concurrent use.
type CapabilityFunc func(operatorID, projectID string, caps ...string) bool

// AllowAll grants every capability. Intended for single-operator
// deployments and tests.
func AllowAll(string, string, ...string) bool { return true }

// DenyAll refuses every capability.
func DenyAll(string, string, ...string) bool { return false }
