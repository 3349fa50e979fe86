package sync

import "github.com/openwrench/servicelink/internal/transport"

// EventKind classifies an incoming job event to decide the notification
// side effect. Every kind still triggers a silent resync.
type EventKind int

const (
	// KindGenericUpdate is any change to a job already known locally.
	KindGenericUpdate EventKind = iota
	// KindNewAssignment is a job assigned directly to this user.
	KindNewAssignment
	// KindNewBroadcast is a new pending job pushed to the eligible pool.
	KindNewBroadcast
)

// Classify inspects an event payload for the given user. The server tags
// payloads with a type where it can; the broadcast flag and embedded job
// are fallbacks for older payload shapes.
func Classify(payload transport.EventPayload, userID string) EventKind {
	switch payload.Type {
	case "assigned":
		return KindNewAssignment
	case "broadcast", "new_job":
		return KindNewBroadcast
	}
	if payload.Broadcast {
		return KindNewBroadcast
	}
	if payload.Job != nil && payload.Job.Technician != nil && payload.Job.Technician.ID == userID &&
		payload.Status == "accepted" {
		return KindNewAssignment
	}
	return KindGenericUpdate
}
