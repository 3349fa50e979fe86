package models

import "time"

// Part request (sub-order) statuses. A part request has its own
// accept/reject lifecycle independent of the parent job's status.
const (
	PartRequestPending   = "pending"
	PartRequestAccepted  = "accepted"
	PartRequestRejected  = "rejected"
	PartRequestDelivered = "delivered"
)

// PartRequest is a parts sub-order attached to a job, placed with a
// supplier while the job sits in the parts flow.
type PartRequest struct {
	OrderID     string     `bson:"order_id" json:"orderId"`
	JobID       string     `bson:"job_id" json:"jobId"`
	Items       []LineItem `bson:"items" json:"items"`
	Status      string     `bson:"status" json:"status"`
	TotalAmount float64    `bson:"total_amount" json:"totalAmount"`
	Supplier    UserRef    `bson:"supplier" json:"supplier"`
	CreatedAt   time.Time  `bson:"created_at" json:"createdAt"`
}

// Clone deep-copies the part request.
func (p PartRequest) Clone() PartRequest {
	c := p
	c.Items = CloneItems(p.Items)
	return c
}
