package transport

import (
	"encoding/json"

	"github.com/openwrench/servicelink/internal/models"
)

// Event names carried on the realtime channel.
const (
	EventJobUpdate       = "job_update"
	EventOrderUpdate     = "order_update"
	EventNewNotification = "new_notification"
	EventCallOffer       = "call_offer"
	EventCallAnswer      = "call_answer"
	EventICECandidate    = "ice_candidate"
)

// EventPayload is the minimal payload the server pushes with job and order
// events. Job may be absent; the client resyncs instead of trusting partial
// pushes. Call signaling payloads are relayed opaquely in Data.
type EventPayload struct {
	Type      string           `json:"type,omitempty"`
	Status    string           `json:"status,omitempty"`
	JobID     string           `json:"jobId,omitempty"`
	Job       *models.Job      `json:"job,omitempty"`
	Broadcast bool             `json:"broadcast,omitempty"`
	Location  *models.Location `json:"location,omitempty"`
	Data      json.RawMessage  `json:"data,omitempty"`
}

// Handler receives realtime events. Handlers run on the channel's receive
// goroutine and must not block.
type Handler func(event string, payload EventPayload)

// Channel is the bidirectional realtime contract. Register binds the
// connection to a logical user; the server then routes that user's events
// here in addition to role-wide broadcasts.
type Channel interface {
	Register(userID string) error
	On(event string, handler Handler)
	Emit(event string, payload interface{}) error
	Close()
}
