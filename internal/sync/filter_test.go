package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/openwrench/servicelink/internal/models"
	"github.com/openwrench/servicelink/internal/transport"
)

func TestWithinBroadcastRange(t *testing.T) {
	tech := models.Location{Lat: 0, Lon: 0}

	// Squared distance 8 > 1.0: suppressed.
	far := models.Location{Lat: 2, Lon: 2}
	assert.False(t, WithinBroadcastRange(tech, far))
	assert.Equal(t, 8.0, SquaredDegreeDistance(tech, far))

	// Squared distance 0.02 < 1.0: fires.
	near := models.Location{Lat: 0.1, Lon: 0.1}
	assert.True(t, WithinBroadcastRange(tech, near))
	assert.InDelta(t, 0.02, SquaredDegreeDistance(tech, near), 1e-9)

	// Exactly on the threshold still fires.
	edge := models.Location{Lat: 1, Lon: 0}
	assert.True(t, WithinBroadcastRange(tech, edge))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		payload  transport.EventPayload
		expected EventKind
	}{
		{"typed assignment", transport.EventPayload{Type: "assigned", JobID: "j1"}, KindNewAssignment},
		{"typed broadcast", transport.EventPayload{Type: "broadcast", JobID: "j1"}, KindNewBroadcast},
		{"typed new job", transport.EventPayload{Type: "new_job", JobID: "j1"}, KindNewBroadcast},
		{"broadcast flag fallback", transport.EventPayload{JobID: "j1", Broadcast: true}, KindNewBroadcast},
		{"generic update", transport.EventPayload{JobID: "j1", Status: "diagnosing"}, KindGenericUpdate},
		{"embedded job assigned to me", transport.EventPayload{
			JobID:  "j1",
			Status: "accepted",
			Job:    &models.Job{ID: "j1", Technician: &models.UserRef{ID: "me"}},
		}, KindNewAssignment},
		{"embedded job assigned to someone else", transport.EventPayload{
			JobID:  "j1",
			Status: "accepted",
			Job:    &models.Job{ID: "j1", Technician: &models.UserRef{ID: "other"}},
		}, KindGenericUpdate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(tt.payload, "me"))
		})
	}
}
