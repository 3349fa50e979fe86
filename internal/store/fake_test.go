package store

import (
	"context"
	"errors"
	"io"
	stdsync "sync"

	"github.com/openwrench/servicelink/internal/jobstate"
	"github.com/openwrench/servicelink/internal/models"
	"github.com/openwrench/servicelink/internal/transport"
)

// fakeAPI is an in-memory stand-in for the backend: it owns the job
// documents, bumps revisions on every mutation, and echoes the updated
// document the way the real server does.
type fakeAPI struct {
	mu      stdsync.Mutex
	jobs    models.JobList
	profile models.User
	orders  []models.PartRequest

	getJobsCalls int
	failNext     error
}

func newFakeAPI(list models.JobList) *fakeAPI {
	return &fakeAPI{
		jobs:    list,
		profile: models.User{ID: "me", Role: models.RoleTechnician, IsApproved: true},
	}
}

func (f *fakeAPI) failOnce(err error) {
	f.mu.Lock()
	f.failNext = err
	f.mu.Unlock()
}

func (f *fakeAPI) takeFailure() error {
	err := f.failNext
	f.failNext = nil
	return err
}

func (f *fakeAPI) GetJobs(ctx context.Context, role models.Role) (models.JobList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getJobsCalls++
	return f.jobs.Clone(), nil
}

func (f *fakeAPI) GetProfile(ctx context.Context) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.profile
	return &p, nil
}

func (f *fakeAPI) mutateJob(jobID string, fn func(*models.Job) error) (*models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure(); err != nil {
		return nil, err
	}
	job := f.jobs.Find(jobID)
	if job == nil {
		return nil, errors.New("job not found")
	}
	if err := fn(job); err != nil {
		return nil, err
	}
	job.Revision++
	echo := job.Clone()
	return &echo, nil
}

func (f *fakeAPI) CreateServiceRequest(ctx context.Context, in CreateServiceRequestInput) (*models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure(); err != nil {
		return nil, err
	}
	job := models.Job{
		ID:            "created-1",
		Status:        string(jobstate.StatusPending),
		ServiceMethod: in.ServiceMethod,
		Description:   in.Description,
		Location:      in.Location,
		Revision:      1,
	}
	f.jobs.Mine = append(f.jobs.Mine, job)
	return &job, nil
}

func (f *fakeAPI) AcceptJob(ctx context.Context, jobID string) (*models.Job, error) {
	f.mu.Lock()
	if err := f.takeFailure(); err != nil {
		f.mu.Unlock()
		return nil, err
	}
	job, ok := f.jobs.RemoveAvailable(jobID)
	if !ok {
		f.mu.Unlock()
		return nil, errors.New("job already accepted")
	}
	job.Status = string(jobstate.StatusAccepted)
	job.Technician = &models.UserRef{ID: "me"}
	job.Revision++
	f.jobs.Mine = append(f.jobs.Mine, job)
	echo := job.Clone()
	f.mu.Unlock()
	return &echo, nil
}

func (f *fakeAPI) MarkArrived(ctx context.Context, jobID string) (*models.Job, error) {
	return f.mutateJob(jobID, func(j *models.Job) error {
		j.Status = string(jobstate.StatusArrived)
		return nil
	})
}

func (f *fakeAPI) UpdateJobStatus(ctx context.Context, jobID string, status jobstate.Status) (*models.Job, error) {
	return f.mutateJob(jobID, func(j *models.Job) error {
		j.Status = string(status)
		return nil
	})
}

func (f *fakeAPI) CancelJob(ctx context.Context, jobID, reason string) (*models.Job, error) {
	return f.mutateJob(jobID, func(j *models.Job) error {
		j.Status = string(jobstate.StatusCancelled)
		j.CancelReason = reason
		return nil
	})
}

func (f *fakeAPI) SendQuote(ctx context.Context, jobID string, quote models.Quote) (*models.Job, error) {
	return f.mutateJob(jobID, func(j *models.Job) error {
		j.Status = string(jobstate.StatusQuotePending)
		q := quote.Clone()
		j.Quote = &q
		return nil
	})
}

func (f *fakeAPI) SendBill(ctx context.Context, jobID string, bill models.Bill) (*models.Job, error) {
	return f.mutateJob(jobID, func(j *models.Job) error {
		j.Status = string(jobstate.StatusBillingPending)
		b := bill.Clone()
		j.Bill = &b
		return nil
	})
}

func (f *fakeAPI) RespondToQuote(ctx context.Context, jobID string, action jobstate.QuoteAction) (*models.Job, error) {
	return f.mutateJob(jobID, func(j *models.Job) error {
		hasParts := j.Quote != nil && models.ItemsTotal(j.Quote.Items) > 0
		outcome, src, err := jobstate.QuoteOutcome(action, hasParts)
		if err != nil {
			return err
		}
		j.Status = string(outcome)
		if src != "" {
			j.PartsSource = src
		}
		return nil
	})
}

func (f *fakeAPI) RespondToBill(ctx context.Context, jobID string, action jobstate.BillAction) (*models.Job, error) {
	return f.mutateJob(jobID, func(j *models.Job) error {
		outcome, err := jobstate.BillOutcome(action)
		if err != nil {
			return err
		}
		j.Status = string(outcome)
		return nil
	})
}

func (f *fakeAPI) RateJob(ctx context.Context, jobID string, rating int, review string) (*models.Job, error) {
	return f.mutateJob(jobID, func(j *models.Job) error {
		r := rating
		j.Rating = &r
		j.Review = review
		return nil
	})
}

func (f *fakeAPI) OrderParts(ctx context.Context, jobID, supplierID string, items []models.LineItem) (*models.Job, error) {
	return f.mutateJob(jobID, func(j *models.Job) error {
		j.Status = string(jobstate.StatusPartsOrdered)
		j.PartRequests = append(j.PartRequests, models.PartRequest{
			OrderID:     "order-1",
			JobID:       jobID,
			Items:       items,
			Status:      models.PartRequestPending,
			TotalAmount: models.ItemsTotal(items),
			Supplier:    models.UserRef{ID: supplierID},
		})
		return nil
	})
}

func (f *fakeAPI) GetPartRequests(ctx context.Context) ([]models.PartRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.PartRequest, len(f.orders))
	for i, r := range f.orders {
		out[i] = r.Clone()
	}
	return out, nil
}

func (f *fakeAPI) RespondToPartRequest(ctx context.Context, orderID, action string) (*models.PartRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure(); err != nil {
		return nil, err
	}
	for i := range f.orders {
		if f.orders[i].OrderID == orderID {
			if action == "accept" {
				f.orders[i].Status = models.PartRequestAccepted
			} else {
				f.orders[i].Status = models.PartRequestRejected
			}
			echo := f.orders[i].Clone()
			return &echo, nil
		}
	}
	return nil, errors.New("part request not found")
}

func (f *fakeAPI) UploadFile(ctx context.Context, fileName, kind string, content io.Reader) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure(); err != nil {
		return "", err
	}
	return "/uploads/" + fileName, nil
}

// fakeChannel is an in-process transport.Channel for driving events in
// tests.
type fakeChannel struct {
	mu       stdsync.Mutex
	handlers map[string][]transport.Handler
	userID   string
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{handlers: make(map[string][]transport.Handler)}
}

func (c *fakeChannel) Register(userID string) error {
	c.mu.Lock()
	c.userID = userID
	c.mu.Unlock()
	return nil
}

func (c *fakeChannel) On(event string, handler transport.Handler) {
	c.mu.Lock()
	c.handlers[event] = append(c.handlers[event], handler)
	c.mu.Unlock()
}

func (c *fakeChannel) Emit(event string, payload interface{}) error { return nil }

func (c *fakeChannel) Close() {}

func (c *fakeChannel) fire(event string, payload transport.EventPayload) {
	c.mu.Lock()
	handlers := append([]transport.Handler(nil), c.handlers[event]...)
	c.mu.Unlock()
	for _, h := range handlers {
		h(event, payload)
	}
}
