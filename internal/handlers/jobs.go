package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/openwrench/servicelink/internal/db"
	"github.com/openwrench/servicelink/internal/jobstate"
	"github.com/openwrench/servicelink/internal/middleware"
	"github.com/openwrench/servicelink/internal/models"
	"github.com/openwrench/servicelink/internal/transport"
)

// Publisher pushes realtime events to connected clients. Satisfied by
// transport.MQTTPublisher.
type Publisher interface {
	PublishToUser(userID, event string, payload transport.EventPayload)
	Broadcast(event string, payload transport.EventPayload)
}

// JobsHandler serves the job lifecycle endpoints. Every mutation validates
// the requested transition against the shared edge table, bumps the job
// revision, persists, echoes the full document, and pushes a realtime
// event to the affected parties.
type JobsHandler struct {
	jobs      db.JobCollection
	users     db.UserCollection
	publisher Publisher
}

// NewJobsHandler creates a job lifecycle handler.
func NewJobsHandler(jobs db.JobCollection, users db.UserCollection, publisher Publisher) *JobsHandler {
	return &JobsHandler{jobs: jobs, users: users, publisher: publisher}
}

// List returns the role-shaped job listing for the caller.
func (h *JobsHandler) List(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "User context not found")
		return
	}

	var list models.JobList
	switch claims.Role {
	case models.RoleTechnician:
		if claims.Approved {
			available, err := h.jobs.FindAvailableJobs(r.Context())
			if err != nil {
				respondError(w, http.StatusInternalServerError, "Failed to list jobs")
				return
			}
			list.Available = available
		}
		mine, err := h.jobs.FindJobsByTechnician(r.Context(), claims.UserID)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "Failed to list jobs")
			return
		}
		list.Mine = mine
	case models.RoleCustomer:
		mine, err := h.jobs.FindJobsByCustomer(r.Context(), claims.UserID)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "Failed to list jobs")
			return
		}
		list.Mine = mine
	default:
		respondError(w, http.StatusForbidden, "Role has no job listing")
		return
	}

	respondJSON(w, http.StatusOK, list)
}

// Create opens a new service request in the pending pool and broadcasts it
// to eligible technicians.
func (h *JobsHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "User context not found")
		return
	}

	var in struct {
		VehicleID     string               `json:"vehicleId"`
		ServiceMethod models.ServiceMethod `json:"serviceMethod"`
		Description   string               `json:"description"`
		Requirements  []string             `json:"requirements"`
		Location      models.Location      `json:"location"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if in.Description == "" {
		respondError(w, http.StatusBadRequest, "Description is required")
		return
	}

	user, err := h.users.FindUserByID(r.Context(), claims.UserID)
	if err != nil {
		respondError(w, http.StatusNotFound, "User not found")
		return
	}

	job := models.Job{
		ID:            uuid.NewString(),
		Status:        string(jobstate.StatusPending),
		ServiceMethod: in.ServiceMethod,
		Description:   in.Description,
		Vehicle:       models.VehicleRef{ID: in.VehicleID},
		Customer:      user.Ref(),
		Location:      in.Location,
		Revision:      1,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
	for _, req := range in.Requirements {
		job.Requirements = append(job.Requirements, models.Requirement{Title: req})
	}

	if err := h.jobs.InsertJob(r.Context(), job); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to create job")
		return
	}

	h.publisher.Broadcast(transport.EventJobUpdate, transport.EventPayload{
		Type:     "broadcast",
		Status:   job.Status,
		JobID:    job.ID,
		Location: &job.Location,
	})
	log.WithFields(log.Fields{"job": job.ID, "customer": claims.UserID}).Info("Service request created")

	respondJSON(w, http.StatusCreated, job)
}

// Accept claims a pending job for the calling technician. The first accept
// wins; any later one conflicts.
func (h *JobsHandler) Accept(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "User context not found")
		return
	}

	user, err := h.users.FindUserByID(r.Context(), claims.UserID)
	if err != nil {
		respondError(w, http.StatusNotFound, "User not found")
		return
	}

	jobID := chi.URLParam(r, "jobID")
	job, err := h.jobs.ClaimJob(r.Context(), jobID, user.Ref())
	if err != nil {
		if !errors.Is(err, db.ErrJobUnavailable) {
			respondError(w, http.StatusInternalServerError, "Failed to accept job")
			return
		}
		if _, lookupErr := h.jobs.FindJobByID(r.Context(), jobID); lookupErr != nil {
			respondError(w, http.StatusNotFound, "Job not found")
			return
		}
		respondError(w, http.StatusConflict, "Job already accepted")
		return
	}

	log.WithFields(log.Fields{"job": job.ID, "technician": claims.UserID}).Info("Job claimed")

	h.publisher.PublishToUser(job.Customer.ID, transport.EventJobUpdate, transport.EventPayload{
		Type: "assigned", Status: job.Status, JobID: job.ID, Job: job,
	})
	// Other technicians drop the job from their pools on resync.
	h.publisher.Broadcast(transport.EventJobUpdate, transport.EventPayload{
		Type: "update", Status: job.Status, JobID: job.ID,
	})
	respondJSON(w, http.StatusOK, job)
}

// Arrived reports the technician at the vehicle.
func (h *JobsHandler) Arrived(w http.ResponseWriter, r *http.Request) {
	h.technicianTransition(w, r, jobstate.StatusArrived, nil)
}

// UpdateStatus applies a generic technician status intent.
func (h *JobsHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	h.technicianTransition(w, r, jobstate.Status(in.Status), nil)
}

// SendQuote attaches (or after a rejection, replaces) the quote and moves
// the job to quote_pending.
func (h *JobsHandler) SendQuote(w http.ResponseWriter, r *http.Request) {
	var quote models.Quote
	if err := json.NewDecoder(r.Body).Decode(&quote); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	quote.CreatedAt = time.Now()
	for i := range quote.Items {
		quote.Items[i].NormalizeTotal()
	}
	h.technicianTransition(w, r, jobstate.StatusQuotePending, func(job *models.Job) {
		job.Quote = &quote
	})
}

// SendBill attaches (or after a rejection, replaces) the bill and moves the
// job to billing_pending.
func (h *JobsHandler) SendBill(w http.ResponseWriter, r *http.Request) {
	var bill models.Bill
	if err := json.NewDecoder(r.Body).Decode(&bill); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	bill.CreatedAt = time.Now()
	for i := range bill.Items {
		bill.Items[i].NormalizeTotal()
	}
	h.technicianTransition(w, r, jobstate.StatusBillingPending, func(job *models.Job) {
		job.Bill = &bill
	})
}

// RespondToQuote applies the customer's quote decision.
func (h *JobsHandler) RespondToQuote(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "User context not found")
		return
	}

	var in struct {
		Action string `json:"action"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	job, err := h.jobs.FindJobByID(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		respondError(w, http.StatusNotFound, "Job not found")
		return
	}
	if job.Customer.ID != claims.UserID {
		respondError(w, http.StatusForbidden, "Not your job")
		return
	}
	if job.Quote == nil {
		respondError(w, http.StatusConflict, "Job has no quote")
		return
	}

	hasParts := models.ItemsTotal(job.Quote.Items) > 0
	outcome, partsSource, err := jobstate.QuoteOutcome(jobstate.QuoteAction(in.Action), hasParts)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := jobstate.ValidateTransition(jobstate.Status(job.Status), outcome, jobstate.ActorCustomer); err != nil {
		respondError(w, http.StatusConflict, err.Error())
		return
	}

	job.Status = string(outcome)
	if partsSource != "" {
		job.PartsSource = partsSource
	}

	h.persistAndNotify(w, r, job, func(job *models.Job) {
		h.notifyTechnician(job, "update")
	})
}

// RespondToBill applies the customer's bill decision. Choosing cash settles
// later in person; a QR code for the amount is attached for the technician
// to present.
func (h *JobsHandler) RespondToBill(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "User context not found")
		return
	}

	var in struct {
		Action string `json:"action"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	job, err := h.jobs.FindJobByID(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		respondError(w, http.StatusNotFound, "Job not found")
		return
	}
	if job.Customer.ID != claims.UserID {
		respondError(w, http.StatusForbidden, "Not your job")
		return
	}
	if job.Bill == nil {
		respondError(w, http.StatusConflict, "Job has no bill")
		return
	}

	action := jobstate.BillAction(in.Action)
	outcome, err := jobstate.BillOutcome(action)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := jobstate.ValidateTransition(jobstate.Status(job.Status), outcome, jobstate.ActorCustomer); err != nil {
		respondError(w, http.StatusConflict, err.Error())
		return
	}

	job.Status = string(outcome)
	switch action {
	case jobstate.BillPayCash:
		job.Bill.PaymentMethod = "cash"
		qr, err := paymentQR(job.ID, job.Bill.Total())
		if err != nil {
			log.WithError(err).WithField("job", job.ID).Error("Failed to generate payment QR")
		} else {
			job.Bill.PaymentQR = qr
		}
	case jobstate.BillPayOnline:
		job.Bill.PaymentMethod = "online"
		job.Bill.Paid = true
	}

	h.persistAndNotify(w, r, job, func(job *models.Job) {
		h.notifyTechnician(job, "update")
	})
}

// Cancel cancels a job with a mandatory reason. Either party on the job may
// cancel while it is non-terminal.
func (h *JobsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "User context not found")
		return
	}

	var in struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	job, err := h.jobs.FindJobByID(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		respondError(w, http.StatusNotFound, "Job not found")
		return
	}
	if !onJob(job, claims.UserID) {
		respondError(w, http.StatusForbidden, "Not your job")
		return
	}
	if err := jobstate.ValidateCancel(jobstate.Status(job.Status), in.Reason); err != nil {
		respondError(w, http.StatusConflict, err.Error())
		return
	}

	job.Status = string(jobstate.StatusCancelled)
	job.CancelReason = in.Reason

	h.persistAndNotify(w, r, job, func(job *models.Job) {
		if claims.UserID != job.Customer.ID {
			h.publisher.PublishToUser(job.Customer.ID, transport.EventJobUpdate, transport.EventPayload{
				Type: "update", Status: job.Status, JobID: job.ID, Job: job,
			})
		}
		if job.Technician != nil && claims.UserID != job.Technician.ID {
			h.notifyTechnician(job, "update")
		}
	})
}

// Rate attaches the customer's rating and review to a completed job.
func (h *JobsHandler) Rate(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "User context not found")
		return
	}

	var in struct {
		Rating int    `json:"rating"`
		Review string `json:"review"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if in.Rating < 1 || in.Rating > 5 {
		respondError(w, http.StatusBadRequest, "Rating must be between 1 and 5")
		return
	}

	job, err := h.jobs.FindJobByID(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		respondError(w, http.StatusNotFound, "Job not found")
		return
	}
	if job.Customer.ID != claims.UserID {
		respondError(w, http.StatusForbidden, "Not your job")
		return
	}
	if jobstate.Status(job.Status) != jobstate.StatusCompleted {
		respondError(w, http.StatusConflict, "Only completed jobs can be rated")
		return
	}

	job.Rating = &in.Rating
	job.Review = in.Review

	h.persistAndNotify(w, r, job, func(job *models.Job) {
		h.notifyTechnician(job, "update")
	})
}

// OrderParts places a parts sub-order with a supplier and advances the job
// to parts_ordered.
func (h *JobsHandler) OrderParts(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "User context not found")
		return
	}

	var in struct {
		SupplierID string            `json:"supplierId"`
		Items      []models.LineItem `json:"items"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if in.SupplierID == "" || len(in.Items) == 0 {
		respondError(w, http.StatusBadRequest, "Supplier and items are required")
		return
	}

	supplier, err := h.users.FindUserByID(r.Context(), in.SupplierID)
	if err != nil || supplier.Role != models.RoleSupplier {
		respondError(w, http.StatusBadRequest, "Unknown supplier")
		return
	}

	job, err := h.jobs.FindJobByID(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		respondError(w, http.StatusNotFound, "Job not found")
		return
	}
	if job.Technician == nil || job.Technician.ID != claims.UserID {
		respondError(w, http.StatusForbidden, "Not your job")
		return
	}
	if err := jobstate.ValidateTransition(jobstate.Status(job.Status), jobstate.StatusPartsOrdered, jobstate.ActorTechnician); err != nil {
		respondError(w, http.StatusConflict, err.Error())
		return
	}

	for i := range in.Items {
		in.Items[i].NormalizeTotal()
	}
	request := models.PartRequest{
		OrderID:     uuid.NewString(),
		JobID:       job.ID,
		Items:       in.Items,
		Status:      models.PartRequestPending,
		TotalAmount: models.ItemsTotal(in.Items),
		Supplier:    supplier.Ref(),
		CreatedAt:   time.Now(),
	}
	job.Status = string(jobstate.StatusPartsOrdered)
	job.PartRequests = append(job.PartRequests, request)

	h.persistAndNotify(w, r, job, func(job *models.Job) {
		h.publisher.PublishToUser(request.Supplier.ID, transport.EventOrderUpdate, transport.EventPayload{
			Type: "update", JobID: job.ID,
		})
		h.publisher.PublishToUser(job.Customer.ID, transport.EventJobUpdate, transport.EventPayload{
			Type: "update", Status: job.Status, JobID: job.ID, Job: job,
		})
	})
}

// technicianTransition is the shared path for technician status intents:
// ownership check, edge validation, optional document mutation, persist,
// notify the customer.
func (h *JobsHandler) technicianTransition(w http.ResponseWriter, r *http.Request, to jobstate.Status, mutate func(*models.Job)) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "User context not found")
		return
	}

	job, err := h.jobs.FindJobByID(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		respondError(w, http.StatusNotFound, "Job not found")
		return
	}
	if job.Technician == nil || job.Technician.ID != claims.UserID {
		respondError(w, http.StatusForbidden, "Not your job")
		return
	}
	if err := jobstate.ValidateTransition(jobstate.Status(job.Status), to, jobstate.ActorTechnician); err != nil {
		respondError(w, http.StatusConflict, err.Error())
		return
	}
	if to == jobstate.StatusCompleted && job.Bill != nil && !job.Bill.Paid {
		// Completing out of cash payment means the technician collected
		// the cash in person; that settles the bill. Any other route to
		// completed requires the bill settled first.
		if jobstate.Status(job.Status) != jobstate.StatusPaymentPendingCash {
			respondError(w, http.StatusConflict, "Bill must be paid before completion")
			return
		}
		job.Bill.Paid = true
	}

	job.Status = string(to)
	if mutate != nil {
		mutate(job)
	}

	h.persistAndNotify(w, r, job, func(job *models.Job) {
		h.publisher.PublishToUser(job.Customer.ID, transport.EventJobUpdate, transport.EventPayload{
			Type: "update", Status: job.Status, JobID: job.ID, Job: job,
		})
	})
}

// persistAndNotify bumps the revision, replaces the document, echoes it,
// and fires the realtime pushes.
func (h *JobsHandler) persistAndNotify(w http.ResponseWriter, r *http.Request, job *models.Job, notify func(*models.Job)) {
	job.Revision++
	job.UpdatedAt = time.Now()
	if err := h.jobs.ReplaceJob(r.Context(), job.ID, *job); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to update job")
		return
	}
	if notify != nil {
		notify(job)
	}
	respondJSON(w, http.StatusOK, job)
}

func (h *JobsHandler) notifyTechnician(job *models.Job, eventType string) {
	if job.Technician == nil {
		return
	}
	h.publisher.PublishToUser(job.Technician.ID, transport.EventJobUpdate, transport.EventPayload{
		Type: eventType, Status: job.Status, JobID: job.ID, Job: job,
	})
}

func onJob(job *models.Job, userID string) bool {
	if job.Customer.ID == userID {
		return true
	}
	return job.Technician != nil && job.Technician.ID == userID
}

// paymentQR renders the cash settlement reference as a base64 PNG.
func paymentQR(jobID string, amount float64) (string, error) {
	ref := struct {
		JobID  string  `json:"jobId"`
		Amount float64 `json:"amount"`
	}{JobID: jobID, Amount: amount}
	data, err := json.Marshal(ref)
	if err != nil {
		return "", err
	}
	png, err := qrcode.Encode(string(data), qrcode.Medium, 256)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(png), nil
}
