package store

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/openwrench/servicelink/internal/api"
	"github.com/openwrench/servicelink/internal/cache"
	"github.com/openwrench/servicelink/internal/jobstate"
	"github.com/openwrench/servicelink/internal/models"
	"github.com/openwrench/servicelink/internal/sync"
	"github.com/openwrench/servicelink/internal/transport"
)

func technicianFixture() models.JobList {
	return models.JobList{
		Available: []models.Job{
			{ID: "j1", Status: "pending", Revision: 1, Location: models.Location{Lat: 0.1, Lon: 0.1}},
			{ID: "j2", Status: "pending", Revision: 1, Location: models.Location{Lat: 2, Lon: 2}},
		},
		Mine: []models.Job{
			{ID: "j3", Status: "diagnosing", Revision: 3, PartsSource: models.PartsFromTechnician},
			{ID: "j4", Status: "parts_required", Revision: 2, PartsSource: models.PartsFromCustomer},
		},
	}
}

func newTechnician(t *testing.T, f *fakeAPI, ch transport.Channel, notify NotifyFunc) *TechnicianStore {
	t.Helper()
	claims := models.Claims{UserID: "me", Username: "tech", Role: models.RoleTechnician, Approved: true}
	s := NewTechnicianStore(f, cache.New(), ch, claims, notify)
	assert.NoError(t, s.Init(context.Background()))
	t.Cleanup(s.Close)
	return s
}

func TestTechnicianInitLoadsJobsAndProfile(t *testing.T) {
	f := newFakeAPI(technicianFixture())
	s := newTechnician(t, f, nil, nil)

	list := s.Jobs()
	assert.Len(t, list.Available, 2)
	assert.Len(t, list.Mine, 2)
	assert.NotNil(t, s.Profile())
	assert.False(t, s.Loading())
}

func TestTechnicianUnapprovedSkipsInitialLoad(t *testing.T) {
	f := newFakeAPI(technicianFixture())
	claims := models.Claims{UserID: "me", Role: models.RoleTechnician, Approved: false}
	s := NewTechnicianStore(f, cache.New(), nil, claims, nil)
	assert.NoError(t, s.Init(context.Background()))
	defer s.Close()

	assert.Empty(t, s.Jobs().Available)
	assert.Equal(t, 0, f.getJobsCalls)
}

func TestTechnicianAcceptJob(t *testing.T) {
	f := newFakeAPI(technicianFixture())
	s := newTechnician(t, f, nil, nil)

	err := s.AcceptJob(context.Background(), "j1")
	assert.NoError(t, err)

	list := s.Jobs()
	assert.Nil(t, findAvailable(list, "j1"))
	job := list.Find("j1")
	assert.NotNil(t, job)
	assert.Equal(t, "accepted", job.Status)
	assert.Equal(t, "me", job.Technician.ID)
}

func TestTechnicianAcceptJobFailureRollsBack(t *testing.T) {
	f := newFakeAPI(technicianFixture())
	s := newTechnician(t, f, nil, nil)
	before := s.Jobs()

	f.failOnce(errors.New("job already accepted"))
	err := s.AcceptJob(context.Background(), "j1")
	assert.Error(t, err)
	assert.Equal(t, before, s.Jobs(), "failed accept must restore the exact prior list")
}

func TestTechnicianAcceptRejectsNonPending(t *testing.T) {
	f := newFakeAPI(technicianFixture())
	s := newTechnician(t, f, nil, nil)

	err := s.AcceptJob(context.Background(), "j3")
	assert.ErrorIs(t, err, jobstate.ErrInvalidTransition)

	err = s.AcceptJob(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestTechnicianQuoteRejectionLoop(t *testing.T) {
	f := newFakeAPI(technicianFixture())
	s := newTechnician(t, f, nil, nil)
	ctx := context.Background()

	firstQuote := models.Quote{
		Items:       []models.LineItem{{ID: "i1", Description: "Brake pads", Quantity: 1, UnitPrice: 80}},
		LaborAmount: 40,
	}
	assert.NoError(t, s.SendQuote(ctx, "j3", firstQuote))
	assert.Equal(t, "quote_pending", findJob(s.Jobs(), "j3").Status)

	// Customer rejects server-side; the store learns of it via resync.
	_, err := f.RespondToQuote(ctx, "j3", jobstate.QuoteReject)
	assert.NoError(t, err)
	s.resync(ctx, true)
	assert.Equal(t, "quote_rejected", findJob(s.Jobs(), "j3").Status)

	// Technician revises and resends: back to quote_pending with the new
	// item set replacing the old.
	revised := models.Quote{
		Items:       []models.LineItem{{ID: "i2", Description: "Brake pads and rotors", Quantity: 1, UnitPrice: 150}},
		LaborAmount: 40,
	}
	assert.NoError(t, s.SendQuote(ctx, "j3", revised))
	job := findJob(s.Jobs(), "j3")
	assert.Equal(t, "quote_pending", job.Status)
	assert.Len(t, job.Quote.Items, 1)
	assert.Equal(t, "i2", job.Quote.Items[0].ID)
}

func TestTechnicianMarkPartsReceived(t *testing.T) {
	f := newFakeAPI(technicianFixture())
	s := newTechnician(t, f, nil, nil)
	ctx := context.Background()

	// j4 has customer-supplied parts: "parts received" goes straight along
	// the parts edge with no supplier order.
	assert.NoError(t, s.MarkPartsReceived(ctx, "j4"))
	job := findJob(s.Jobs(), "j4")
	assert.Equal(t, "parts_ordered", job.Status)
	assert.Empty(t, job.PartRequests)

	// Technician-sourced parts must go through the supplier flow.
	err := s.MarkPartsReceived(ctx, "j3")
	assert.ErrorIs(t, err, ErrNoSupplierFlow)
}

func TestTechnicianOrderParts(t *testing.T) {
	f := newFakeAPI(technicianFixture())
	s := newTechnician(t, f, nil, nil)

	// Move j3 into parts_required first (customer accepted with parts).
	_, err := f.UpdateJobStatus(context.Background(), "j3", jobstate.StatusQuotePending)
	assert.NoError(t, err)
	_, err = f.UpdateJobStatus(context.Background(), "j3", jobstate.StatusPartsRequired)
	assert.NoError(t, err)
	s.resync(context.Background(), true)

	items := []models.LineItem{{ID: "p1", Description: "Alternator", Quantity: 1, UnitPrice: 220}}
	assert.NoError(t, s.OrderParts(context.Background(), "j3", "sup-1", items))

	job := findJob(s.Jobs(), "j3")
	assert.Equal(t, "parts_ordered", job.Status)
	assert.Len(t, job.PartRequests, 1)
	assert.Equal(t, 220.0, job.PartRequests[0].TotalAmount)
}

func TestTechnicianCancelRequiresReason(t *testing.T) {
	f := newFakeAPI(technicianFixture())
	s := newTechnician(t, f, nil, nil)

	err := s.CancelJob(context.Background(), "j3", "")
	assert.ErrorIs(t, err, jobstate.ErrCancelReasonRequired)

	assert.NoError(t, s.CancelJob(context.Background(), "j3", "customer unreachable"))
	job := findJob(s.Jobs(), "j3")
	assert.Equal(t, "cancelled", job.Status)
	assert.Equal(t, "customer unreachable", job.CancelReason)
}

func TestTechnicianEventTriggersResyncAndFilter(t *testing.T) {
	f := newFakeAPI(technicianFixture())
	f.profile.LastLocation = &models.Location{Lat: 0, Lon: 0}
	ch := newFakeChannel()

	var notified []sync.EventKind
	_ = newTechnician(t, f, ch, func(kind sync.EventKind, payload transport.EventPayload) {
		notified = append(notified, kind)
	})

	callsBefore := f.getJobsCalls

	// Nearby broadcast fires the notification.
	ch.fire(transport.EventJobUpdate, transport.EventPayload{
		Type: "broadcast", JobID: "j1",
		Location: &models.Location{Lat: 0.1, Lon: 0.1},
	})
	// Far broadcast is suppressed.
	ch.fire(transport.EventJobUpdate, transport.EventPayload{
		Type: "broadcast", JobID: "j2",
		Location: &models.Location{Lat: 2, Lon: 2},
	})

	assert.Equal(t, []sync.EventKind{sync.KindNewBroadcast}, notified)

	// Both events funnel into (at least one) silent resync.
	assert.Eventually(t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.getJobsCalls > callsBefore
	}, time.Second, 10*time.Millisecond)
}

func TestTechnicianCloseStopsEventHandling(t *testing.T) {
	f := newFakeAPI(technicianFixture())
	ch := newFakeChannel()
	notified := 0
	s := newTechnician(t, f, ch, func(sync.EventKind, transport.EventPayload) { notified++ })

	s.Close()
	ch.fire(transport.EventJobUpdate, transport.EventPayload{Type: "broadcast", JobID: "j1"})
	assert.Equal(t, 0, notified)

	err := s.AcceptJob(context.Background(), "j1")
	assert.ErrorIs(t, err, ErrStoreClosed)
}

func TestTechnicianFullResyncRefreshesProfile(t *testing.T) {
	var approved atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/jobs":
			json.NewEncoder(w).Encode(models.JobList{})
		case "/api/profile":
			json.NewEncoder(w).Encode(models.User{ID: "me", Role: models.RoleTechnician, IsApproved: approved.Load()})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	c := cache.New()
	client := api.New(transport.NewClient(server.URL), c)
	claims := models.Claims{UserID: "me", Username: "tech", Role: models.RoleTechnician, Approved: true}
	s := NewTechnicianStore(client, c, nil, claims, nil)
	assert.NoError(t, s.Init(context.Background()))
	t.Cleanup(s.Close)

	profile := s.Profile()
	if assert.NotNil(t, profile) {
		assert.False(t, profile.IsApproved)
	}

	// Approval lands server-side mid-session; an explicit refresh must
	// observe it rather than serve the cached profile.
	approved.Store(true)
	s.Refresh()

	assert.Eventually(t, func() bool {
		p := s.Profile()
		return p != nil && p.IsApproved
	}, 2*time.Second, 25*time.Millisecond)
}

func TestTechnicianUploadEvidence(t *testing.T) {
	f := newFakeAPI(technicianFixture())
	s := newTechnician(t, f, nil, nil)

	url, err := s.UploadEvidence(context.Background(), "engine.jpg", "image", strings.NewReader("jpeg-bytes"))
	assert.NoError(t, err)
	assert.Equal(t, "/uploads/engine.jpg", url)

	s.Close()
	_, err = s.UploadEvidence(context.Background(), "engine.jpg", "image", strings.NewReader("jpeg-bytes"))
	assert.ErrorIs(t, err, ErrStoreClosed)
}

// findJob looks a job up in a listing snapshot. Find needs an addressable
// receiver, which method-chained snapshots are not.
func findJob(l models.JobList, id string) *models.Job {
	return l.Find(id)
}

func findAvailable(l models.JobList, id string) *models.Job {
	for i := range l.Available {
		if l.Available[i].ID == id {
			return &l.Available[i]
		}
	}
	return nil
}
