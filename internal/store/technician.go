package store

import (
	"context"
	"fmt"
	"io"
	stdsync "sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"github.com/openwrench/servicelink/internal/api"
	"github.com/openwrench/servicelink/internal/cache"
	"github.com/openwrench/servicelink/internal/jobstate"
	"github.com/openwrench/servicelink/internal/models"
	"github.com/openwrench/servicelink/internal/sync"
	"github.com/openwrench/servicelink/internal/transport"
)

// TechnicianStore is the technician-side facade over the synchronized job
// list: the available pool, the technician's own jobs, and every
// technician-triggered lifecycle operation.
type TechnicianStore struct {
	api     API
	cache   *cache.Cache
	channel transport.Channel
	claims  models.Claims
	notify  NotifyFunc

	state   *sync.JobListState
	trigger *sync.Trigger
	cart    *BusinessCart

	mu      stdsync.RWMutex
	profile *models.User
	loading bool

	closed atomic.Bool
}

// NewTechnicianStore wires a technician store. Call Init to start syncing
// and Close on logout.
func NewTechnicianStore(a API, c *cache.Cache, ch transport.Channel, claims models.Claims, notify NotifyFunc) *TechnicianStore {
	return &TechnicianStore{
		api:     a,
		cache:   c,
		channel: ch,
		claims:  claims,
		notify:  notify,
		state:   sync.NewJobListState(),
		cart:    NewBusinessCart(),
	}
}

// Init registers on the realtime channel, starts the debounced resync
// trigger with its polling fallback, and performs the initial full load.
// An unapproved technician is not eligible: no fetch, no polling.
func (s *TechnicianStore) Init(ctx context.Context) error {
	if s.channel != nil {
		if err := s.channel.Register(s.claims.UserID); err != nil {
			return fmt.Errorf("failed to register on realtime channel: %w", err)
		}
		s.channel.On(transport.EventJobUpdate, s.handleEvent)
		s.channel.On(transport.EventOrderUpdate, s.handleEvent)
	}

	s.trigger = sync.NewTrigger(s.resync, sync.DefaultDebounce)
	s.trigger.StartPolling(TechnicianPollInterval, s.eligible)

	if !s.eligible() {
		log.WithField("user", s.claims.UserID).Info("Technician not approved, skipping initial load")
		return nil
	}
	s.resync(ctx, false)
	return nil
}

func (s *TechnicianStore) eligible() bool {
	if s.closed.Load() {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.profile != nil {
		return s.profile.IsApproved
	}
	return s.claims.Approved
}

// resync fetches authoritative data. Silent resyncs skip the loading flag
// and the profile refetch; failures are logged only, so a broken background
// refresh never disturbs the last good state.
func (s *TechnicianStore) resync(ctx context.Context, silent bool) {
	if s.closed.Load() {
		return
	}
	if !silent {
		s.setLoading(true)
		defer s.setLoading(false)
	}

	var wg stdsync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		list, err := s.api.GetJobs(ctx, models.RoleTechnician)
		if err != nil {
			log.WithError(err).Warn("Technician job resync failed")
			return
		}
		s.state.MergeAuthoritative(list)
	}()

	if !silent {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// A full resync always refetches, never serves the cached copy.
			s.cache.InvalidatePrefix(api.PrefixProfile)
			profile, err := s.api.GetProfile(ctx)
			if err != nil {
				log.WithError(err).Warn("Technician profile fetch failed")
				return
			}
			s.mu.Lock()
			s.profile = profile
			s.mu.Unlock()
		}()
	}
	wg.Wait()
}

func (s *TechnicianStore) setLoading(v bool) {
	s.mu.Lock()
	s.loading = v
	s.mu.Unlock()
}

// Loading reports whether a non-silent resync is in flight.
func (s *TechnicianStore) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// handleEvent processes a realtime job/order event: invalidate the affected
// cache prefixes, classify for the notification side effect, and kick a
// silent resync.
func (s *TechnicianStore) handleEvent(event string, payload transport.EventPayload) {
	if s.closed.Load() {
		return
	}
	s.cache.InvalidatePrefix(api.PrefixJobs)
	if event == transport.EventOrderUpdate {
		s.cache.InvalidatePrefix(api.PrefixOrders)
	}

	kind := sync.Classify(payload, s.claims.UserID)
	if s.notify != nil && s.shouldNotify(kind, payload) {
		s.notify(kind, payload)
	}
	s.trigger.Kick(true)
}

// shouldNotify applies the broadcast distance pre-filter: a new broadcast
// is announced only when it is near the technician's last known position.
// Assignments and generic updates are not filtered.
func (s *TechnicianStore) shouldNotify(kind sync.EventKind, payload transport.EventPayload) bool {
	if kind != sync.KindNewBroadcast {
		return kind == sync.KindNewAssignment
	}
	jobLoc := payload.Location
	if jobLoc == nil && payload.Job != nil {
		jobLoc = &payload.Job.Location
	}
	s.mu.RLock()
	var techLoc *models.Location
	if s.profile != nil {
		techLoc = s.profile.LastLocation
	}
	s.mu.RUnlock()
	if jobLoc == nil || techLoc == nil {
		// No coordinates to compare; let the notification through.
		return true
	}
	return sync.WithinBroadcastRange(*techLoc, *jobLoc)
}

// Jobs returns a snapshot of the synchronized job list.
func (s *TechnicianStore) Jobs() models.JobList {
	return s.state.Get()
}

// Profile returns the last fetched technician profile, or nil.
func (s *TechnicianStore) Profile() *models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profile
}

// Cart returns the session-scoped wholesale cart.
func (s *TechnicianStore) Cart() *BusinessCart {
	return s.cart
}

// Subscribe registers a listener for job list snapshots. The returned
// function unsubscribes.
func (s *TechnicianStore) Subscribe(fn func(models.JobList)) func() {
	return s.state.Subscribe(fn)
}

// Refresh performs an explicit, non-silent resync (pull-to-refresh).
func (s *TechnicianStore) Refresh() {
	if s.trigger != nil {
		s.trigger.Kick(false)
	}
}

// AcceptJob claims a pending job from the available pool. The optimistic
// transform moves it to the technician's list; on failure the pool is
// restored and the error surfaced.
func (s *TechnicianStore) AcceptJob(ctx context.Context, jobID string) error {
	list := s.state.Get()
	job := list.Find(jobID)
	if job == nil {
		return ErrJobNotFound
	}
	if err := jobstate.ValidateTransition(jobstate.Status(job.Status), jobstate.StatusAccepted, jobstate.ActorTechnician); err != nil {
		return err
	}
	return s.mutate(ctx,
		func(l *models.JobList) {
			if j, ok := l.RemoveAvailable(jobID); ok {
				j.Status = string(jobstate.StatusAccepted)
				ref := models.UserRef{ID: s.claims.UserID, Name: s.claims.Username}
				j.Technician = &ref
				l.Mine = append(l.Mine, j)
			}
		},
		func(ctx context.Context) (*models.Job, error) {
			return s.api.AcceptJob(ctx, jobID)
		})
}

// MarkArrived reports arrival at the vehicle.
func (s *TechnicianStore) MarkArrived(ctx context.Context, jobID string) error {
	if err := s.validateOwn(jobID, jobstate.StatusArrived); err != nil {
		return err
	}
	return s.patchStatus(ctx, jobID, jobstate.StatusArrived,
		func(ctx context.Context) (*models.Job, error) {
			return s.api.MarkArrived(ctx, jobID)
		})
}

// StartDiagnosis moves an arrived job into diagnosing.
func (s *TechnicianStore) StartDiagnosis(ctx context.Context, jobID string) error {
	return s.UpdateStatus(ctx, jobID, jobstate.StatusDiagnosing)
}

// Complete closes out a job after cash settlement or vehicle delivery.
func (s *TechnicianStore) Complete(ctx context.Context, jobID string) error {
	return s.UpdateStatus(ctx, jobID, jobstate.StatusCompleted)
}

// UpdateStatus sends a generic technician status intent after local
// pre-validation against the transition table.
func (s *TechnicianStore) UpdateStatus(ctx context.Context, jobID string, status jobstate.Status) error {
	if err := s.validateOwn(jobID, status); err != nil {
		return err
	}
	return s.patchStatus(ctx, jobID, status,
		func(ctx context.Context) (*models.Job, error) {
			return s.api.UpdateJobStatus(ctx, jobID, status)
		})
}

// SendQuote submits (or after a rejection, resubmits) the quote. The new
// item set replaces the old one.
func (s *TechnicianStore) SendQuote(ctx context.Context, jobID string, quote models.Quote) error {
	if err := s.validateOwn(jobID, jobstate.StatusQuotePending); err != nil {
		return err
	}
	for i := range quote.Items {
		quote.Items[i].NormalizeTotal()
	}
	return s.mutate(ctx,
		func(l *models.JobList) {
			if j := l.Find(jobID); j != nil {
				j.Status = string(jobstate.StatusQuotePending)
				q := quote.Clone()
				j.Quote = &q
			}
		},
		func(ctx context.Context) (*models.Job, error) {
			return s.api.SendQuote(ctx, jobID, quote)
		})
}

// SendBill submits (or after a rejection, resubmits) the final bill.
func (s *TechnicianStore) SendBill(ctx context.Context, jobID string, bill models.Bill) error {
	if err := s.validateOwn(jobID, jobstate.StatusBillingPending); err != nil {
		return err
	}
	for i := range bill.Items {
		bill.Items[i].NormalizeTotal()
	}
	return s.mutate(ctx,
		func(l *models.JobList) {
			if j := l.Find(jobID); j != nil {
				j.Status = string(jobstate.StatusBillingPending)
				b := bill.Clone()
				j.Bill = &b
			}
		},
		func(ctx context.Context) (*models.Job, error) {
			return s.api.SendBill(ctx, jobID, bill)
		})
}

// MarkPartsReceived is the collapsed parts path for customer-supplied
// parts: no supplier order is placed, the job moves straight along the
// parts edge.
func (s *TechnicianStore) MarkPartsReceived(ctx context.Context, jobID string) error {
	list := s.state.Get()
	job := list.Find(jobID)
	if job == nil {
		return ErrJobNotFound
	}
	target, ok := jobstate.PartsReceiptTarget(job.PartsSource)
	if !ok {
		return ErrNoSupplierFlow
	}
	if err := jobstate.ValidateTransition(jobstate.Status(job.Status), target, jobstate.ActorTechnician); err != nil {
		return err
	}
	return s.patchStatus(ctx, jobID, target,
		func(ctx context.Context) (*models.Job, error) {
			return s.api.UpdateJobStatus(ctx, jobID, target)
		})
}

// OrderParts places a parts sub-order with a supplier and advances the job
// to parts_ordered.
func (s *TechnicianStore) OrderParts(ctx context.Context, jobID, supplierID string, items []models.LineItem) error {
	if err := s.validateOwn(jobID, jobstate.StatusPartsOrdered); err != nil {
		return err
	}
	for i := range items {
		items[i].NormalizeTotal()
	}
	return s.patchStatus(ctx, jobID, jobstate.StatusPartsOrdered,
		func(ctx context.Context) (*models.Job, error) {
			return s.api.OrderParts(ctx, jobID, supplierID, items)
		})
}

// CancelJob cancels with a mandatory reason.
func (s *TechnicianStore) CancelJob(ctx context.Context, jobID, reason string) error {
	list := s.state.Get()
	job := list.Find(jobID)
	if job == nil {
		return ErrJobNotFound
	}
	if err := jobstate.ValidateCancel(jobstate.Status(job.Status), reason); err != nil {
		return err
	}
	return s.mutate(ctx,
		func(l *models.JobList) {
			if j := l.Find(jobID); j != nil {
				j.Status = string(jobstate.StatusCancelled)
				j.CancelReason = reason
			}
		},
		func(ctx context.Context) (*models.Job, error) {
			return s.api.CancelJob(ctx, jobID, reason)
		})
}

// UploadEvidence uploads a photo or voice note and returns its server
// location for embedding in quote or bill line notes.
func (s *TechnicianStore) UploadEvidence(ctx context.Context, fileName, kind string, content io.Reader) (string, error) {
	if s.closed.Load() {
		return "", ErrStoreClosed
	}
	return s.api.UploadFile(ctx, fileName, kind, content)
}

// validateOwn checks that the job is locally known and the transition is
// legal for a technician, failing fast without a network round trip.
func (s *TechnicianStore) validateOwn(jobID string, to jobstate.Status) error {
	list := s.state.Get()
	job := list.Find(jobID)
	if job == nil {
		return ErrJobNotFound
	}
	return jobstate.ValidateTransition(jobstate.Status(job.Status), to, jobstate.ActorTechnician)
}

// patchStatus is the common optimistic in-place status patch.
func (s *TechnicianStore) patchStatus(ctx context.Context, jobID string, status jobstate.Status, call func(context.Context) (*models.Job, error)) error {
	return s.mutate(ctx,
		func(l *models.JobList) {
			if j := l.Find(jobID); j != nil {
				j.Status = string(status)
			}
		},
		call)
}

// mutate adapts a job-returning API call to the optimistic engine: the
// echoed job is adopted under the revision rule and a silent resync
// reconciles the rest.
func (s *TechnicianStore) mutate(ctx context.Context, apply func(*models.JobList), call func(context.Context) (*models.Job, error)) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	return s.state.Mutate(ctx, apply,
		func(ctx context.Context) error {
			job, err := call(ctx)
			if err != nil {
				log.WithError(err).Warn("Technician job mutation failed, rolling back")
				return err
			}
			if job != nil {
				s.state.ApplyAuthoritativeJob(*job)
			}
			return nil
		},
		func() {
			if s.trigger != nil {
				s.trigger.Kick(true)
			}
		})
}

// Close tears the store down: polling and debounce stop, queued events are
// ignored, the cart empties. Safe to call more than once.
func (s *TechnicianStore) Close() {
	if s.closed.Swap(true) {
		return
	}
	if s.trigger != nil {
		s.trigger.Close()
	}
	s.cart.Clear()
}
