package models

import (
	"time"
)

// ServiceMethod describes how the vehicle reaches the workshop.
type ServiceMethod string

const (
	ServiceWalkIn     ServiceMethod = "walk_in"
	ServiceHomePickup ServiceMethod = "home_pickup"
	ServiceOnSpot     ServiceMethod = "on_spot"
)

// PartsSource describes who supplies replacement parts for a job.
type PartsSource string

const (
	PartsFromTechnician PartsSource = "technician"
	PartsFromCustomer   PartsSource = "customer"
)

// Requirement is a single customer-stated work item on a job.
type Requirement struct {
	Title       string `bson:"title" json:"title"`
	IsCompleted bool   `bson:"is_completed" json:"isCompleted"`
}

// Job is a customer-initiated vehicle service request tracked through the
// status lifecycle. The server owns the document; clients hold a cached,
// possibly stale copy reconciled through events and polling.
type Job struct {
	ID            string        `bson:"_id,omitempty" json:"id"`
	Status        string        `bson:"status" json:"status"`
	ServiceMethod ServiceMethod `bson:"service_method" json:"serviceMethod"`
	PartsSource   PartsSource   `bson:"parts_source" json:"partsSource"`
	Description   string        `bson:"description" json:"description"`
	Vehicle       VehicleRef    `bson:"vehicle" json:"vehicle"`
	Customer      UserRef       `bson:"customer" json:"customer"`
	Technician    *UserRef      `bson:"technician,omitempty" json:"technician,omitempty"`
	Quote         *Quote        `bson:"quote,omitempty" json:"quote,omitempty"`
	Bill          *Bill         `bson:"bill,omitempty" json:"bill,omitempty"`
	Requirements  []Requirement `bson:"requirements,omitempty" json:"requirements,omitempty"`
	PartRequests  []PartRequest `bson:"part_requests,omitempty" json:"partRequests,omitempty"`
	Location      Location      `bson:"location" json:"location"`
	Rating        *int          `bson:"rating,omitempty" json:"rating,omitempty"`
	Review        string        `bson:"review,omitempty" json:"review,omitempty"`
	CancelReason  string        `bson:"cancel_reason,omitempty" json:"cancelReason,omitempty"`

	// Revision is bumped by the server on every mutation. Clients use it to
	// discard stale resync payloads (a lower revision never overwrites a
	// higher one).
	Revision  int64     `bson:"revision" json:"revision"`
	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time `bson:"updated_at" json:"updatedAt"`
}

// Clone returns a deep copy of the job. Rollback snapshots depend on clones
// sharing no mutable state with the originals.
func (j Job) Clone() Job {
	c := j
	if j.Technician != nil {
		t := *j.Technician
		c.Technician = &t
	}
	if j.Quote != nil {
		q := j.Quote.Clone()
		c.Quote = &q
	}
	if j.Bill != nil {
		b := j.Bill.Clone()
		c.Bill = &b
	}
	if j.Requirements != nil {
		c.Requirements = make([]Requirement, len(j.Requirements))
		copy(c.Requirements, j.Requirements)
	}
	if j.PartRequests != nil {
		c.PartRequests = make([]PartRequest, len(j.PartRequests))
		for i, pr := range j.PartRequests {
			c.PartRequests[i] = pr.Clone()
		}
	}
	if j.Rating != nil {
		r := *j.Rating
		c.Rating = &r
	}
	return c
}

// JobList is the role-shaped job listing returned by the server: jobs still
// in the broadcast pool plus jobs owned by the requesting actor. It is the
// unit of optimistic snapshot and rollback.
type JobList struct {
	Available []Job `json:"available"`
	Mine      []Job `json:"myJobs"`
}

// Clone deep-copies the list.
func (l JobList) Clone() JobList {
	c := JobList{}
	if l.Available != nil {
		c.Available = make([]Job, len(l.Available))
		for i, j := range l.Available {
			c.Available[i] = j.Clone()
		}
	}
	if l.Mine != nil {
		c.Mine = make([]Job, len(l.Mine))
		for i, j := range l.Mine {
			c.Mine[i] = j.Clone()
		}
	}
	return c
}

// Find returns a pointer to the job with the given id in either list, or nil.
func (l *JobList) Find(id string) *Job {
	for i := range l.Available {
		if l.Available[i].ID == id {
			return &l.Available[i]
		}
	}
	for i := range l.Mine {
		if l.Mine[i].ID == id {
			return &l.Mine[i]
		}
	}
	return nil
}

// RemoveAvailable removes the job with the given id from the available pool
// and reports whether it was present.
func (l *JobList) RemoveAvailable(id string) (Job, bool) {
	for i := range l.Available {
		if l.Available[i].ID == id {
			j := l.Available[i]
			l.Available = append(l.Available[:i], l.Available[i+1:]...)
			return j, true
		}
	}
	return Job{}, false
}
