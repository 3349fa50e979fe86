package models

import "time"

// LineItem is a single priced line on a quote or bill. Note items and
// zero-priced items are annotations and never contribute to totals.
type LineItem struct {
	ID          string   `bson:"id" json:"id"`
	Description string   `bson:"description" json:"description"`
	Brand       string   `bson:"brand,omitempty" json:"brand,omitempty"`
	PartNumber  string   `bson:"part_number,omitempty" json:"partNumber,omitempty"`
	Quantity    int      `bson:"quantity" json:"quantity"`
	UnitPrice   float64  `bson:"unit_price" json:"unitPrice"`
	Total       float64  `bson:"total" json:"total"`
	IsCustom    bool     `bson:"is_custom" json:"isCustom"`
	IsNote      bool     `bson:"is_note" json:"isNote"`
	Images      []string `bson:"images,omitempty" json:"images,omitempty"`
	VoiceNote   string   `bson:"voice_note,omitempty" json:"voiceNote,omitempty"`
}

// Billable reports whether the item counts toward financial totals.
func (i LineItem) Billable() bool {
	return !i.IsNote && i.UnitPrice != 0
}

// NormalizeTotal recomputes Total from Quantity and UnitPrice. Note items
// carry no total.
func (i *LineItem) NormalizeTotal() {
	if i.IsNote {
		i.Total = 0
		return
	}
	i.Total = float64(i.Quantity) * i.UnitPrice
}

// ItemsTotal sums the totals of billable items only.
func ItemsTotal(items []LineItem) float64 {
	var sum float64
	for _, it := range items {
		if it.Billable() {
			sum += it.Total
		}
	}
	return sum
}

// CloneItems deep-copies a line item slice.
func CloneItems(items []LineItem) []LineItem {
	if items == nil {
		return nil
	}
	out := make([]LineItem, len(items))
	for i, it := range items {
		out[i] = it
		if it.Images != nil {
			out[i].Images = make([]string, len(it.Images))
			copy(out[i].Images, it.Images)
		}
	}
	return out
}

// Quote is a technician-proposed, customer-approvable itemized estimate
// prepared before work starts.
type Quote struct {
	Items       []LineItem `bson:"items" json:"items"`
	LaborAmount float64    `bson:"labor_amount" json:"laborAmount"`
	Notes       string     `bson:"notes,omitempty" json:"notes,omitempty"`
	VehicleID   string     `bson:"vehicle_id,omitempty" json:"vehicleId,omitempty"`
	CreatedAt   time.Time  `bson:"created_at" json:"createdAt"`
}

// Total is the customer-facing quote total: billable items plus labor.
func (q Quote) Total() float64 {
	return ItemsTotal(q.Items) + q.LaborAmount
}

// Clone deep-copies the quote.
func (q Quote) Clone() Quote {
	c := q
	c.Items = CloneItems(q.Items)
	return c
}

// Bill is the final itemized charge presented after work completion,
// derived from the approved quote plus any revisions.
type Bill struct {
	Items         []LineItem `bson:"items" json:"items"`
	LaborAmount   float64    `bson:"labor_amount" json:"laborAmount"`
	Notes         string     `bson:"notes,omitempty" json:"notes,omitempty"`
	PaymentMethod string     `bson:"payment_method,omitempty" json:"paymentMethod,omitempty"`
	Paid          bool       `bson:"paid" json:"paid"`
	// PaymentQR holds a base64 PNG the customer scans to settle a cash bill.
	PaymentQR string    `bson:"payment_qr,omitempty" json:"paymentQr,omitempty"`
	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
}

// Total is the customer-facing bill total: billable items plus labor.
func (b Bill) Total() float64 {
	return ItemsTotal(b.Items) + b.LaborAmount
}

// Clone deep-copies the bill.
func (b Bill) Clone() Bill {
	c := b
	c.Items = CloneItems(b.Items)
	return c
}
