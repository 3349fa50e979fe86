package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/openwrench/servicelink/internal/db"
	"github.com/openwrench/servicelink/internal/jobstate"
	"github.com/openwrench/servicelink/internal/middleware"
	"github.com/openwrench/servicelink/internal/models"
	"github.com/openwrench/servicelink/internal/transport"
)

// PartsHandler serves the supplier side of the parts flow: listing incoming
// sub-orders and deciding on them.
type PartsHandler struct {
	jobs      db.JobCollection
	publisher Publisher
}

// NewPartsHandler creates a parts sub-order handler.
func NewPartsHandler(jobs db.JobCollection, publisher Publisher) *PartsHandler {
	return &PartsHandler{jobs: jobs, publisher: publisher}
}

// List returns the calling supplier's incoming part requests.
func (h *PartsHandler) List(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "User context not found")
		return
	}

	requests, err := h.jobs.FindPartRequestsBySupplier(r.Context(), claims.UserID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to list part requests")
		return
	}
	if requests == nil {
		requests = []models.PartRequest{}
	}
	respondJSON(w, http.StatusOK, requests)
}

// Respond applies the supplier's accept/reject decision to a pending part
// request. Acceptance also nudges the parent job toward in_progress once
// the parts arrive; the technician drives that transition.
func (h *PartsHandler) Respond(w http.ResponseWriter, r *http.Request) {
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
	if in.Action != "accept" && in.Action != "reject" {
		respondError(w, http.StatusBadRequest, "Action must be accept or reject")
		return
	}

	orderID := chi.URLParam(r, "orderID")
	job, request, err := h.findOrder(r, orderID, claims.UserID)
	if err != nil {
		respondError(w, http.StatusNotFound, "Part request not found")
		return
	}
	if request.Status != models.PartRequestPending {
		respondError(w, http.StatusConflict, "Part request already handled")
		return
	}

	if in.Action == "accept" {
		request.Status = models.PartRequestAccepted
	} else {
		request.Status = models.PartRequestRejected
		// A rejected order sends the job back to parts_required so the
		// technician can pick another supplier.
		job.Status = string(jobstate.StatusPartsRequired)
	}

	job.Revision++
	job.UpdatedAt = time.Now()
	if err := h.jobs.ReplaceJob(r.Context(), job.ID, *job); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to update part request")
		return
	}

	if job.Technician != nil {
		h.publisher.PublishToUser(job.Technician.ID, transport.EventOrderUpdate, transport.EventPayload{
			Type: "update", Status: job.Status, JobID: job.ID,
		})
	}

	respondJSON(w, http.StatusOK, request)
}

// findOrder locates the part request and its parent job, checking the
// supplier owns the order.
func (h *PartsHandler) findOrder(r *http.Request, orderID, supplierID string) (*models.Job, *models.PartRequest, error) {
	cursor, err := h.jobs.FindJobs(r.Context(), bson.M{"part_requests.order_id": orderID})
	if err != nil {
		return nil, nil, err
	}
	defer cursor.Close(r.Context())
	var jobs []models.Job
	if err := cursor.All(r.Context(), &jobs); err != nil {
		return nil, nil, err
	}
	for i := range jobs {
		for j := range jobs[i].PartRequests {
			pr := &jobs[i].PartRequests[j]
			if pr.OrderID == orderID && pr.Supplier.ID == supplierID {
				return &jobs[i], pr, nil
			}
		}
	}
	return nil, nil, errNotFound
}

var errNotFound = errors.New("part request not found")
