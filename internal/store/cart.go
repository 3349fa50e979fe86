package store

import (
	stdsync "sync"

	"github.com/openwrench/servicelink/internal/models"
)

// BusinessCart is the technician's wholesale parts cart. It is purely
// client-local session state: quantities are adjusted by delta and a line
// disappears when its quantity reaches zero. Nothing here is persisted
// server-side.
type BusinessCart struct {
	mu    stdsync.RWMutex
	items []models.CartItem
}

// NewBusinessCart returns an empty cart.
func NewBusinessCart() *BusinessCart {
	return &BusinessCart{}
}

// Adjust changes the quantity of a part by delta, inserting the line on
// first add and removing it when the quantity drops to zero or below.
// The returned quantity is the line's new quantity (0 when removed).
func (c *BusinessCart) Adjust(item models.CartItem, delta int) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.items {
		if c.items[i].PartID == item.PartID {
			c.items[i].Quantity += delta
			if c.items[i].Quantity <= 0 {
				c.items = append(c.items[:i], c.items[i+1:]...)
				return 0
			}
			return c.items[i].Quantity
		}
	}
	if delta <= 0 {
		return 0
	}
	item.Quantity = delta
	c.items = append(c.items, item)
	return delta
}

// Items returns a snapshot of the cart lines in insertion order.
func (c *BusinessCart) Items() []models.CartItem {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.CartItem, len(c.items))
	copy(out, c.items)
	return out
}

// Total sums the line subtotals.
func (c *BusinessCart) Total() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var sum float64
	for _, it := range c.items {
		sum += it.Subtotal()
	}
	return sum
}

// Clear empties the cart. Called on store teardown.
func (c *BusinessCart) Clear() {
	c.mu.Lock()
	c.items = nil
	c.mu.Unlock()
}
