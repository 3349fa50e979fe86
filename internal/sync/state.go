// Package sync implements the client-side synchronization core: an
// optimistic mutate-with-rollback engine over the job list, a debounced
// resync trigger fed by socket events, polling and explicit refreshes, and
// the broadcast notification pre-filter.
package sync

import (
	"context"
	"sync"

	"github.com/openwrench/servicelink/internal/models"
)

// JobListState holds the locally observable job list. All mutation goes
// through its methods; subscribers see a consistent snapshot after every
// change and never a torn update.
type JobListState struct {
	mu      sync.RWMutex
	list    models.JobList
	subs    map[int]func(models.JobList)
	nextSub int
}

// NewJobListState returns an empty state.
func NewJobListState() *JobListState {
	return &JobListState{subs: make(map[int]func(models.JobList))}
}

// Get returns a deep copy of the current list.
func (s *JobListState) Get() models.JobList {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.list.Clone()
}

// Subscribe registers a listener invoked with a snapshot after every
// change. The returned function unsubscribes; stores call it on teardown so
// stale closures never act on a new session's data.
func (s *JobListState) Subscribe(fn func(models.JobList)) func() {
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

func (s *JobListState) notifyLocked() []func(models.JobList) {
	fns := make([]func(models.JobList), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	return fns
}

func (s *JobListState) publish() {
	s.mu.RLock()
	snapshot := s.list.Clone()
	fns := s.notifyLocked()
	s.mu.RUnlock()
	for _, fn := range fns {
		fn(snapshot)
	}
}

// Mutate runs the optimistic update protocol: snapshot, apply locally,
// publish, issue the network call, and on failure restore the snapshot
// verbatim and return the error for the caller to surface. onSuccess runs
// after a confirmed call, typically to kick a silent resync.
func (s *JobListState) Mutate(ctx context.Context, apply func(*models.JobList), call func(context.Context) error, onSuccess func()) error {
	s.mu.Lock()
	prev := s.list.Clone()
	apply(&s.list)
	s.mu.Unlock()
	s.publish()

	if err := call(ctx); err != nil {
		s.mu.Lock()
		s.list = prev
		s.mu.Unlock()
		s.publish()
		return err
	}

	if onSuccess != nil {
		onSuccess()
	}
	return nil
}

// MergeAuthoritative adopts a server listing. The server owns membership,
// so the incoming lists replace the local ones. The one exception is a
// local copy with a strictly higher revision, which survives so a stale
// resync that raced a confirmed mutation cannot clobber it.
func (s *JobListState) MergeAuthoritative(incoming models.JobList) {
	s.mu.Lock()
	local := make(map[string]models.Job)
	for _, j := range s.list.Available {
		local[j.ID] = j
	}
	for _, j := range s.list.Mine {
		local[j.ID] = j
	}
	keepNewest := func(jobs []models.Job) {
		for i := range jobs {
			if prev, ok := local[jobs[i].ID]; ok && prev.Revision > jobs[i].Revision {
				jobs[i] = prev
			}
		}
	}
	keepNewest(incoming.Available)
	keepNewest(incoming.Mine)
	s.list = incoming
	s.mu.Unlock()
	s.publish()
}

// ApplyAuthoritativeJob adopts a single server-echoed job (from a mutation
// response or an event payload) under the same revision rule.
func (s *JobListState) ApplyAuthoritativeJob(job models.Job) {
	s.mu.Lock()
	if existing := s.list.Find(job.ID); existing != nil && existing.Revision <= job.Revision {
		*existing = job
	}
	s.mu.Unlock()
	s.publish()
}
