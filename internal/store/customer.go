package store

import (
	"context"
	"fmt"
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

// CustomerStore is the customer-side facade: the customer's own service
// requests and the customer-triggered responses (quote, bill, rating,
// cancellation).
type CustomerStore struct {
	api     API
	cache   *cache.Cache
	channel transport.Channel
	claims  models.Claims
	notify  NotifyFunc

	state   *sync.JobListState
	trigger *sync.Trigger

	mu      stdsync.RWMutex
	profile *models.User
	loading bool

	closed atomic.Bool
}

// NewCustomerStore wires a customer store. Call Init to start syncing and
// Close on logout.
func NewCustomerStore(a API, c *cache.Cache, ch transport.Channel, claims models.Claims, notify NotifyFunc) *CustomerStore {
	return &CustomerStore{
		api:     a,
		cache:   c,
		channel: ch,
		claims:  claims,
		notify:  notify,
		state:   sync.NewJobListState(),
	}
}

// Init registers on the realtime channel, starts polling, and performs the
// initial full load.
func (s *CustomerStore) Init(ctx context.Context) error {
	if s.channel != nil {
		if err := s.channel.Register(s.claims.UserID); err != nil {
			return fmt.Errorf("failed to register on realtime channel: %w", err)
		}
		s.channel.On(transport.EventJobUpdate, s.handleEvent)
	}

	s.trigger = sync.NewTrigger(s.resync, sync.DefaultDebounce)
	s.trigger.StartPolling(CustomerPollInterval, func() bool { return !s.closed.Load() })

	s.resync(ctx, false)
	return nil
}

func (s *CustomerStore) resync(ctx context.Context, silent bool) {
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
		list, err := s.api.GetJobs(ctx, models.RoleCustomer)
		if err != nil {
			log.WithError(err).Warn("Customer job resync failed")
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
				log.WithError(err).Warn("Customer profile fetch failed")
				return
			}
			s.mu.Lock()
			s.profile = profile
			s.mu.Unlock()
		}()
	}
	wg.Wait()
}

func (s *CustomerStore) setLoading(v bool) {
	s.mu.Lock()
	s.loading = v
	s.mu.Unlock()
}

// Loading reports whether a non-silent resync is in flight.
func (s *CustomerStore) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

func (s *CustomerStore) handleEvent(event string, payload transport.EventPayload) {
	if s.closed.Load() {
		return
	}
	s.cache.InvalidatePrefix(api.PrefixJobs)
	if s.notify != nil {
		s.notify(sync.Classify(payload, s.claims.UserID), payload)
	}
	s.trigger.Kick(true)
}

// Jobs returns a snapshot of the customer's synchronized jobs.
func (s *CustomerStore) Jobs() models.JobList {
	return s.state.Get()
}

// Subscribe registers a listener for job list snapshots.
func (s *CustomerStore) Subscribe(fn func(models.JobList)) func() {
	return s.state.Subscribe(fn)
}

// Refresh performs an explicit, non-silent resync.
func (s *CustomerStore) Refresh() {
	if s.trigger != nil {
		s.trigger.Kick(false)
	}
}

// CreateServiceRequest submits a new job. The created job enters the
// pending pool server-side; the echoed document is adopted directly (no
// optimistic guess, since the server assigns the identity).
func (s *CustomerStore) CreateServiceRequest(ctx context.Context, in CreateServiceRequestInput) (*models.Job, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}
	job, err := s.api.CreateServiceRequest(ctx, in)
	if err != nil {
		log.WithError(err).Warn("Service request creation failed")
		return nil, err
	}
	list := s.state.Get()
	list.Mine = append(list.Mine, *job)
	s.state.MergeAuthoritative(list)
	if s.trigger != nil {
		s.trigger.Kick(true)
	}
	return job, nil
}

// RespondToQuote sends the customer's quote decision. The optimistic
// transform applies the mapped outcome locally; the server echo remains
// authoritative.
func (s *CustomerStore) RespondToQuote(ctx context.Context, jobID string, action jobstate.QuoteAction) error {
	list := s.state.Get()
	job := list.Find(jobID)
	if job == nil {
		return ErrJobNotFound
	}
	hasParts := job.Quote != nil && models.ItemsTotal(job.Quote.Items) > 0
	outcome, partsSource, err := jobstate.QuoteOutcome(action, hasParts)
	if err != nil {
		return err
	}
	if err := jobstate.ValidateTransition(jobstate.Status(job.Status), outcome, jobstate.ActorCustomer); err != nil {
		return err
	}
	return s.mutate(ctx,
		func(l *models.JobList) {
			if j := l.Find(jobID); j != nil {
				j.Status = string(outcome)
				if partsSource != "" {
					j.PartsSource = partsSource
				}
			}
		},
		func(ctx context.Context) (*models.Job, error) {
			return s.api.RespondToQuote(ctx, jobID, action)
		})
}

// RespondToBill sends the customer's bill decision.
func (s *CustomerStore) RespondToBill(ctx context.Context, jobID string, action jobstate.BillAction) error {
	list := s.state.Get()
	job := list.Find(jobID)
	if job == nil {
		return ErrJobNotFound
	}
	outcome, err := jobstate.BillOutcome(action)
	if err != nil {
		return err
	}
	if err := jobstate.ValidateTransition(jobstate.Status(job.Status), outcome, jobstate.ActorCustomer); err != nil {
		return err
	}
	return s.mutate(ctx,
		func(l *models.JobList) {
			if j := l.Find(jobID); j != nil {
				j.Status = string(outcome)
			}
		},
		func(ctx context.Context) (*models.Job, error) {
			return s.api.RespondToBill(ctx, jobID, action)
		})
}

// CancelJob cancels with a mandatory reason.
func (s *CustomerStore) CancelJob(ctx context.Context, jobID, reason string) error {
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

// RateJob attaches a rating and review to a completed job.
func (s *CustomerStore) RateJob(ctx context.Context, jobID string, rating int, review string) error {
	list := s.state.Get()
	job := list.Find(jobID)
	if job == nil {
		return ErrJobNotFound
	}
	if jobstate.Status(job.Status) != jobstate.StatusCompleted {
		return fmt.Errorf("%w: rating requires a completed job", jobstate.ErrInvalidTransition)
	}
	return s.mutate(ctx,
		func(l *models.JobList) {
			if j := l.Find(jobID); j != nil {
				r := rating
				j.Rating = &r
				j.Review = review
			}
		},
		func(ctx context.Context) (*models.Job, error) {
			return s.api.RateJob(ctx, jobID, rating, review)
		})
}

func (s *CustomerStore) mutate(ctx context.Context, apply func(*models.JobList), call func(context.Context) (*models.Job, error)) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	return s.state.Mutate(ctx, apply,
		func(ctx context.Context) error {
			job, err := call(ctx)
			if err != nil {
				log.WithError(err).Warn("Customer job mutation failed, rolling back")
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

// Close tears the store down.
func (s *CustomerStore) Close() {
	if s.closed.Swap(true) {
		return
	}
	if s.trigger != nil {
		s.trigger.Close()
	}
}
