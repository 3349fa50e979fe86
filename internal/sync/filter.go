package sync

import "github.com/openwrench/servicelink/internal/models"

// BroadcastThreshold is the squared-degree distance (~111 km) beyond which
// a new-broadcast notification is suppressed. This is a cheap client-side
// noise filter, not a substitute for server-side geofencing; it never
// affects list membership.
const BroadcastThreshold = 1.0

// SquaredDegreeDistance is the raw lat/lon squared difference used by the
// broadcast pre-filter. Deliberately not great-circle math: the comparison
// only needs to be monotonic and cheap.
func SquaredDegreeDistance(a, b models.Location) float64 {
	dLat := a.Lat - b.Lat
	dLon := a.Lon - b.Lon
	return dLat*dLat + dLon*dLon
}

// WithinBroadcastRange reports whether a broadcast job is close enough to
// the technician's last known position for the notification to fire.
func WithinBroadcastRange(technician, job models.Location) bool {
	return SquaredDegreeDistance(technician, job) <= BroadcastThreshold
}
