package store

import (
	"context"
	"fmt"
	stdsync "sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"github.com/openwrench/servicelink/internal/api"
	"github.com/openwrench/servicelink/internal/cache"
	"github.com/openwrench/servicelink/internal/models"
	"github.com/openwrench/servicelink/internal/sync"
	"github.com/openwrench/servicelink/internal/transport"
)

// SupplierStore is the supplier-side facade: incoming part requests and
// the accept/reject decision on each. Suppliers poll at a lower frequency
// than the job roles.
type SupplierStore struct {
	api     API
	cache   *cache.Cache
	channel transport.Channel
	claims  models.Claims
	notify  NotifyFunc

	trigger *sync.Trigger

	mu       stdsync.RWMutex
	requests []models.PartRequest
	subs     map[int]func([]models.PartRequest)
	nextSub  int

	closed atomic.Bool
}

// NewSupplierStore wires a supplier store.
func NewSupplierStore(a API, c *cache.Cache, ch transport.Channel, claims models.Claims, notify NotifyFunc) *SupplierStore {
	return &SupplierStore{
		api:     a,
		cache:   c,
		channel: ch,
		claims:  claims,
		notify:  notify,
		subs:    make(map[int]func([]models.PartRequest)),
	}
}

// Init registers on the realtime channel, starts the 60s polling fallback,
// and performs the initial load.
func (s *SupplierStore) Init(ctx context.Context) error {
	if s.channel != nil {
		if err := s.channel.Register(s.claims.UserID); err != nil {
			return fmt.Errorf("failed to register on realtime channel: %w", err)
		}
		s.channel.On(transport.EventOrderUpdate, s.handleEvent)
	}

	s.trigger = sync.NewTrigger(s.resync, sync.DefaultDebounce)
	s.trigger.StartPolling(SupplierPollInterval, func() bool { return !s.closed.Load() })

	s.resync(ctx, false)
	return nil
}

func (s *SupplierStore) resync(ctx context.Context, _ bool) {
	if s.closed.Load() {
		return
	}
	reqs, err := s.api.GetPartRequests(ctx)
	if err != nil {
		log.WithError(err).Warn("Part request resync failed")
		return
	}
	s.replace(reqs)
}

func (s *SupplierStore) replace(reqs []models.PartRequest) {
	s.mu.Lock()
	s.requests = reqs
	fns := make([]func([]models.PartRequest), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	snapshot := s.snapshotLocked()
	s.mu.Unlock()
	for _, fn := range fns {
		fn(snapshot)
	}
}

func (s *SupplierStore) snapshotLocked() []models.PartRequest {
	out := make([]models.PartRequest, len(s.requests))
	for i, r := range s.requests {
		out[i] = r.Clone()
	}
	return out
}

func (s *SupplierStore) handleEvent(event string, payload transport.EventPayload) {
	if s.closed.Load() {
		return
	}
	s.cache.InvalidatePrefix(api.PrefixOrders)
	if s.notify != nil {
		s.notify(sync.Classify(payload, s.claims.UserID), payload)
	}
	s.trigger.Kick(true)
}

// Requests returns a snapshot of the incoming part requests.
func (s *SupplierStore) Requests() []models.PartRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Subscribe registers a listener for part request snapshots.
func (s *SupplierStore) Subscribe(fn func([]models.PartRequest)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Refresh requests an explicit resync.
func (s *SupplierStore) Refresh() {
	if s.trigger != nil {
		s.trigger.Kick(false)
	}
}

// Respond sends the accept/reject decision for a part request, applying it
// optimistically and rolling back on failure.
func (s *SupplierStore) Respond(ctx context.Context, orderID, action string) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	if action != "accept" && action != "reject" {
		return fmt.Errorf("unknown part request action %q", action)
	}

	s.mu.Lock()
	prev := s.snapshotLocked()
	found := false
	for i := range s.requests {
		if s.requests[i].OrderID == orderID {
			found = true
			if action == "accept" {
				s.requests[i].Status = models.PartRequestAccepted
			} else {
				s.requests[i].Status = models.PartRequestRejected
			}
		}
	}
	s.mu.Unlock()
	if !found {
		return fmt.Errorf("part request %s not found in local state", orderID)
	}
	s.replace(s.Requests())

	if _, err := s.api.RespondToPartRequest(ctx, orderID, action); err != nil {
		log.WithError(err).Warn("Part request response failed, rolling back")
		s.replace(prev)
		return err
	}
	s.trigger.Kick(true)
	return nil
}

// Close tears the store down.
func (s *SupplierStore) Close() {
	if s.closed.Swap(true) {
		return
	}
	if s.trigger != nil {
		s.trigger.Close()
	}
}
