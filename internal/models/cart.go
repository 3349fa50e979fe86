package models

// CartItem is a client-local wholesale cart line. The business cart lives
// only in memory for the session and is never persisted server-side.
type CartItem struct {
	PartID    string  `json:"partId"`
	Name      string  `json:"name"`
	Brand     string  `json:"brand,omitempty"`
	UnitPrice float64 `json:"unitPrice"`
	Quantity  int     `json:"quantity"`
	Supplier  UserRef `json:"supplier"`
}

// Subtotal is the line total for the current quantity.
func (c CartItem) Subtotal() float64 {
	return float64(c.Quantity) * c.UnitPrice
}
