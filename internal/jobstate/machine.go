// Package jobstate defines the job status lifecycle: the finite set of
// statuses, the legal transitions between them, and which actor may trigger
// each edge. It is pure transition logic with no I/O; the server is the
// enforcing authority and clients use the same table to fail invalid
// intents fast, before any network round trip.
package jobstate

import (
	"errors"
	"fmt"

	"github.com/openwrench/servicelink/internal/models"
)

// Status is a job lifecycle status.
type Status string

const (
	StatusPending            Status = "pending"
	StatusAccepted           Status = "accepted"
	StatusArrived            Status = "arrived"
	StatusDiagnosing         Status = "diagnosing"
	StatusQuotePending       Status = "quote_pending"
	StatusQuoteRejected      Status = "quote_rejected"
	StatusPartsRequired      Status = "parts_required"
	StatusPartsOrdered       Status = "parts_ordered"
	StatusInProgress         Status = "in_progress"
	StatusQualityCheck       Status = "quality_check"
	StatusReadyForDelivery   Status = "ready_for_delivery"
	StatusBillingPending     Status = "billing_pending"
	StatusBillRejected       Status = "bill_rejected"
	StatusPaymentPendingCash Status = "payment_pending_cash"
	StatusVehicleDelivered   Status = "vehicle_delivered"
	StatusCompleted          Status = "completed"
	StatusCancelled          Status = "cancelled"
)

// Actor identifies who is attempting a transition.
type Actor string

const (
	ActorTechnician Actor = "technician"
	ActorCustomer   Actor = "customer"
)

var (
	ErrUnknownStatus        = errors.New("unknown job status")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrTerminalStatus       = errors.New("job is in a terminal status")
	ErrCancelReasonRequired = errors.New("cancellation reason is required")
	ErrUnknownAction        = errors.New("unknown response action")
)

type edge struct {
	to    Status
	actor Actor
}

// transitions is the authoritative edge table. Cancellation is handled
// separately: any non-terminal status may move to cancelled.
var transitions = map[Status][]edge{
	StatusPending:    {{StatusAccepted, ActorTechnician}},
	StatusAccepted:   {{StatusArrived, ActorTechnician}},
	StatusArrived:    {{StatusDiagnosing, ActorTechnician}},
	StatusDiagnosing: {{StatusQuotePending, ActorTechnician}},
	StatusQuotePending: {
		{StatusPartsRequired, ActorCustomer},
		{StatusInProgress, ActorCustomer},
		{StatusQuoteRejected, ActorCustomer},
	},
	// The technician revises and resends, looping back to quote_pending.
	StatusQuoteRejected:    {{StatusQuotePending, ActorTechnician}},
	StatusPartsRequired:    {{StatusPartsOrdered, ActorTechnician}},
	StatusPartsOrdered:     {{StatusInProgress, ActorTechnician}},
	StatusInProgress:       {{StatusQualityCheck, ActorTechnician}},
	StatusQualityCheck:     {{StatusReadyForDelivery, ActorTechnician}},
	StatusReadyForDelivery: {{StatusBillingPending, ActorTechnician}},
	StatusBillingPending: {
		{StatusPaymentPendingCash, ActorCustomer},
		{StatusCompleted, ActorCustomer},
		{StatusBillRejected, ActorCustomer},
		{StatusVehicleDelivered, ActorTechnician},
	},
	// Like the quote loop: the technician revises the bill and resends.
	StatusBillRejected:       {{StatusBillingPending, ActorTechnician}},
	StatusPaymentPendingCash: {{StatusCompleted, ActorTechnician}},
	StatusVehicleDelivered:   {{StatusCompleted, ActorTechnician}},
	StatusCompleted:          nil,
	StatusCancelled:          nil,
}

// Known reports whether s is a defined status.
func Known(s Status) bool {
	_, ok := transitions[s]
	return ok
}

// IsTerminal reports whether no further transition is accepted from s.
func IsTerminal(s Status) bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransition reports whether actor may move a job from one status to
// another. Cancellation counts: any non-terminal status may be cancelled by
// either actor.
func CanTransition(from, to Status, actor Actor) bool {
	if !Known(from) || !Known(to) {
		return false
	}
	if to == StatusCancelled {
		return !IsTerminal(from)
	}
	for _, e := range transitions[from] {
		if e.to == to && e.actor == actor {
			return true
		}
	}
	return false
}

// ValidateTransition returns a descriptive error when the transition is not
// legal for the actor.
func ValidateTransition(from, to Status, actor Actor) error {
	if !Known(from) {
		return fmt.Errorf("%w: %q", ErrUnknownStatus, from)
	}
	if !Known(to) {
		return fmt.Errorf("%w: %q", ErrUnknownStatus, to)
	}
	if IsTerminal(from) {
		return fmt.Errorf("%w: %s", ErrTerminalStatus, from)
	}
	if !CanTransition(from, to, actor) {
		return fmt.Errorf("%w: %s -> %s by %s", ErrInvalidTransition, from, to, actor)
	}
	return nil
}

// ValidateCancel checks the cancellation preconditions: a non-terminal
// status and a non-empty reason.
func ValidateCancel(from Status, reason string) error {
	if !Known(from) {
		return fmt.Errorf("%w: %q", ErrUnknownStatus, from)
	}
	if IsTerminal(from) {
		return fmt.Errorf("%w: %s", ErrTerminalStatus, from)
	}
	if reason == "" {
		return ErrCancelReasonRequired
	}
	return nil
}

// NextFor lists the statuses the actor may legally move to from the given
// status, excluding cancellation.
func NextFor(from Status, actor Actor) []Status {
	var out []Status
	for _, e := range transitions[from] {
		if e.actor == actor {
			out = append(out, e.to)
		}
	}
	return out
}

// PartsReceiptTarget is the status a technician reports when the customer
// supplies parts out-of-band: the supplier ordering sub-flow collapses and
// "parts received" moves the job straight along the parts edge.
func PartsReceiptTarget(partsSource models.PartsSource) (Status, bool) {
	if partsSource == models.PartsFromCustomer {
		return StatusPartsOrdered, true
	}
	return "", false
}
