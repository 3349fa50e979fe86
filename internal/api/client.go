// Package api exposes the marketplace REST operations as typed calls. Reads
// go through the process cache; every mutation invalidates the affected key
// prefixes so the next read hits the network.
package api

import (
	"context"
	"io"
	"net/http"

	"github.com/openwrench/servicelink/internal/cache"
	"github.com/openwrench/servicelink/internal/jobstate"
	"github.com/openwrench/servicelink/internal/models"
	"github.com/openwrench/servicelink/internal/transport"
)

// Cache key prefixes. Job mutations invalidate PrefixJobs; part-request
// mutations invalidate PrefixOrders; profile mutations invalidate
// PrefixProfile.
const (
	PrefixJobs    = "jobs"
	PrefixOrders  = "orders"
	PrefixProfile = "profile"
)

// Client is the typed API surface backed by the REST transport.
type Client struct {
	rest  *transport.Client
	cache *cache.Cache
}

// New creates an API client over the given transport and cache.
func New(rest *transport.Client, c *cache.Cache) *Client {
	return &Client{rest: rest, cache: c}
}

// Login authenticates and returns the session. The whole cache is cleared
// first so nothing from a previous session leaks into the new one.
func (c *Client) Login(ctx context.Context, username, password string) (*models.LoginResponse, error) {
	c.cache.Clear()
	var resp models.LoginResponse
	err := c.rest.Do(ctx, http.MethodPost, "/api/auth/login",
		models.LoginRequest{Username: username, Password: password}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Register creates a new account.
func (c *Client) Register(ctx context.Context, req models.RegisterRequest) (*models.User, error) {
	var user models.User
	if err := c.rest.Do(ctx, http.MethodPost, "/api/auth/register", req, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// GetJobs fetches the role-shaped job listing. Cached per role until a job
// mutation or event invalidates the jobs prefix.
func (c *Client) GetJobs(ctx context.Context, role models.Role) (models.JobList, error) {
	key := PrefixJobs + ":" + string(role)
	if v, ok := c.cache.Get(key); ok {
		if list, ok := v.(models.JobList); ok {
			return list.Clone(), nil
		}
	}
	var list models.JobList
	if err := c.rest.Do(ctx, http.MethodGet, "/api/jobs", nil, &list); err != nil {
		return models.JobList{}, err
	}
	c.cache.Set(key, list.Clone())
	return list, nil
}

// GetProfile fetches the authenticated user's profile.
func (c *Client) GetProfile(ctx context.Context) (*models.User, error) {
	if v, ok := c.cache.Get(PrefixProfile); ok {
		if u, ok := v.(models.User); ok {
			copied := u
			return &copied, nil
		}
	}
	var user models.User
	if err := c.rest.Do(ctx, http.MethodGet, "/api/profile", nil, &user); err != nil {
		return nil, err
	}
	c.cache.Set(PrefixProfile, user)
	return &user, nil
}

// CreateServiceRequestInput is the customer's new-job submission.
type CreateServiceRequestInput struct {
	VehicleID     string               `json:"vehicleId"`
	ServiceMethod models.ServiceMethod `json:"serviceMethod"`
	Description   string               `json:"description"`
	Requirements  []string             `json:"requirements,omitempty"`
	Location      models.Location      `json:"location"`
}

// CreateServiceRequest creates a job in the pending pool.
func (c *Client) CreateServiceRequest(ctx context.Context, in CreateServiceRequestInput) (*models.Job, error) {
	return c.mutateJob(ctx, http.MethodPost, "/api/jobs", in)
}

// AcceptJob claims a pending job for the calling technician.
func (c *Client) AcceptJob(ctx context.Context, jobID string) (*models.Job, error) {
	return c.mutateJob(ctx, http.MethodPost, "/api/jobs/"+jobID+"/accept", nil)
}

// MarkArrived reports the technician arrived at the vehicle.
func (c *Client) MarkArrived(ctx context.Context, jobID string) (*models.Job, error) {
	return c.mutateJob(ctx, http.MethodPost, "/api/jobs/"+jobID+"/arrived", nil)
}

// UpdateJobStatus sends a status intent. The echoed job is authoritative;
// the client never computes the next status itself.
func (c *Client) UpdateJobStatus(ctx context.Context, jobID string, status jobstate.Status) (*models.Job, error) {
	body := map[string]string{"status": string(status)}
	return c.mutateJob(ctx, http.MethodPost, "/api/jobs/"+jobID+"/status", body)
}

// CancelJob cancels a job with a mandatory reason.
func (c *Client) CancelJob(ctx context.Context, jobID, reason string) (*models.Job, error) {
	body := map[string]string{"reason": reason}
	return c.mutateJob(ctx, http.MethodPost, "/api/jobs/"+jobID+"/cancel", body)
}

// SendQuote submits (or resubmits) the itemized quote. The server replaces
// any previous item set.
func (c *Client) SendQuote(ctx context.Context, jobID string, quote models.Quote) (*models.Job, error) {
	return c.mutateJob(ctx, http.MethodPost, "/api/jobs/"+jobID+"/quote", quote)
}

// SendBill submits (or resubmits) the final bill.
func (c *Client) SendBill(ctx context.Context, jobID string, bill models.Bill) (*models.Job, error) {
	return c.mutateJob(ctx, http.MethodPost, "/api/jobs/"+jobID+"/bill", bill)
}

// RespondToQuote sends the customer's quote decision.
func (c *Client) RespondToQuote(ctx context.Context, jobID string, action jobstate.QuoteAction) (*models.Job, error) {
	body := map[string]string{"action": string(action)}
	return c.mutateJob(ctx, http.MethodPost, "/api/jobs/"+jobID+"/quote/respond", body)
}

// RespondToBill sends the customer's bill decision.
func (c *Client) RespondToBill(ctx context.Context, jobID string, action jobstate.BillAction) (*models.Job, error) {
	body := map[string]string{"action": string(action)}
	return c.mutateJob(ctx, http.MethodPost, "/api/jobs/"+jobID+"/bill/respond", body)
}

// RateJob attaches a post-completion rating and review.
func (c *Client) RateJob(ctx context.Context, jobID string, rating int, review string) (*models.Job, error) {
	body := map[string]interface{}{"rating": rating, "review": review}
	return c.mutateJob(ctx, http.MethodPost, "/api/jobs/"+jobID+"/rate", body)
}

// OrderParts places a parts sub-order with a supplier for a job in the
// parts flow.
func (c *Client) OrderParts(ctx context.Context, jobID, supplierID string, items []models.LineItem) (*models.Job, error) {
	body := map[string]interface{}{"supplierId": supplierID, "items": items}
	job, err := c.mutateJob(ctx, http.MethodPost, "/api/jobs/"+jobID+"/parts/order", body)
	if err == nil {
		c.cache.InvalidatePrefix(PrefixOrders)
	}
	return job, err
}

// GetPartRequests lists the calling supplier's incoming sub-orders.
func (c *Client) GetPartRequests(ctx context.Context) ([]models.PartRequest, error) {
	if v, ok := c.cache.Get(PrefixOrders); ok {
		if reqs, ok := v.([]models.PartRequest); ok {
			return reqs, nil
		}
	}
	var reqs []models.PartRequest
	if err := c.rest.Do(ctx, http.MethodGet, "/api/part-requests", nil, &reqs); err != nil {
		return nil, err
	}
	c.cache.Set(PrefixOrders, reqs)
	return reqs, nil
}

// RespondToPartRequest sends the supplier's accept/reject decision.
func (c *Client) RespondToPartRequest(ctx context.Context, orderID, action string) (*models.PartRequest, error) {
	body := map[string]string{"action": action}
	var req models.PartRequest
	err := c.rest.Do(ctx, http.MethodPost, "/api/part-requests/"+orderID+"/respond", body, &req)
	if err != nil {
		return nil, err
	}
	c.cache.InvalidatePrefix(PrefixOrders)
	c.cache.InvalidatePrefix(PrefixJobs)
	return &req, nil
}

// UploadFile uploads a media file and returns its server location,
// tolerating either response field name.
func (c *Client) UploadFile(ctx context.Context, fileName, kind string, content io.Reader) (string, error) {
	result, err := c.rest.Upload(ctx, "/api/upload", fileName, kind, content)
	if err != nil {
		return "", err
	}
	return result.Location(), nil
}

// mutateJob posts a job intent, invalidates the jobs prefix and returns the
// echoed job.
func (c *Client) mutateJob(ctx context.Context, method, path string, body interface{}) (*models.Job, error) {
	var job models.Job
	if err := c.rest.Do(ctx, method, path, body, &job); err != nil {
		return nil, err
	}
	c.cache.InvalidatePrefix(PrefixJobs)
	return &job, nil
}
