// Package store exposes the synchronized job state to callers through
// explicit, injected service objects: one store per role, each with its own
// lifecycle (Init on session start, Close on logout) and a subscription
// mechanism instead of ambient singletons.
package store

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/openwrench/servicelink/internal/api"
	"github.com/openwrench/servicelink/internal/jobstate"
	"github.com/openwrench/servicelink/internal/models"
	"github.com/openwrench/servicelink/internal/sync"
	"github.com/openwrench/servicelink/internal/transport"
)

// Polling fallback intervals. Deliberately lower-frequency than the push
// path; they only cover socket disconnection gaps.
const (
	TechnicianPollInterval = 30 * time.Second
	CustomerPollInterval   = 30 * time.Second
	SupplierPollInterval   = 60 * time.Second
)

var (
	ErrJobNotFound    = errors.New("job not found in local state")
	ErrNotEligible    = errors.New("actor is not eligible for jobs")
	ErrStoreClosed    = errors.New("store is closed")
	ErrNoSupplierFlow = errors.New("job parts are supplier-sourced; order them instead")
)

// API is the slice of the marketplace API the stores consume. *api.Client
// satisfies it; tests substitute fakes.
type API interface {
	GetJobs(ctx context.Context, role models.Role) (models.JobList, error)
	GetProfile(ctx context.Context) (*models.User, error)
	CreateServiceRequest(ctx context.Context, in CreateServiceRequestInput) (*models.Job, error)
	AcceptJob(ctx context.Context, jobID string) (*models.Job, error)
	MarkArrived(ctx context.Context, jobID string) (*models.Job, error)
	UpdateJobStatus(ctx context.Context, jobID string, status jobstate.Status) (*models.Job, error)
	CancelJob(ctx context.Context, jobID, reason string) (*models.Job, error)
	SendQuote(ctx context.Context, jobID string, quote models.Quote) (*models.Job, error)
	SendBill(ctx context.Context, jobID string, bill models.Bill) (*models.Job, error)
	RespondToQuote(ctx context.Context, jobID string, action jobstate.QuoteAction) (*models.Job, error)
	RespondToBill(ctx context.Context, jobID string, action jobstate.BillAction) (*models.Job, error)
	RateJob(ctx context.Context, jobID string, rating int, review string) (*models.Job, error)
	OrderParts(ctx context.Context, jobID, supplierID string, items []models.LineItem) (*models.Job, error)
	GetPartRequests(ctx context.Context) ([]models.PartRequest, error)
	RespondToPartRequest(ctx context.Context, orderID, action string) (*models.PartRequest, error)
	UploadFile(ctx context.Context, fileName, kind string, content io.Reader) (string, error)
}

// CreateServiceRequestInput aliases the API client's input type so store
// callers need not import the api package.
type CreateServiceRequestInput = api.CreateServiceRequestInput

// NotifyFunc receives classified job-event notifications. Broadcasts are
// pre-filtered by distance before this fires.
type NotifyFunc func(kind sync.EventKind, payload transport.EventPayload)
