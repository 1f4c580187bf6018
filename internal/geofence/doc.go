// Package geofence evaluates session positions against phase-scoped
// polygons and raises transition alerts.
//
// Each geofence is a closed ring of latitude/longitude vertices. The
// evaluator tracks an outside flag per (session, geofence) pair, so
// overlapping geofences alert independently: a session exiting polygon
// A does not suppress detection for polygon B. Exit events fire exactly
// once per outside excursion; re-entry resets the flag silently.
package geofence
