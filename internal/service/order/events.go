package order

import "time"

// Order lifecycle event types published on the messaging topic.
const (
	EventOrderCreated    = "order.created"
	EventArchiveAttached = "order.archive_attached"
	EventStatusChanged   = "order.status_changed"
)

// Event is emitted on order lifecycle changes. It never carries the
// encrypted payload or any decrypted field.
type Event struct {
	Type       string    `json:"type"`
	OrderID    string    `json:"order_id"`
	ProductID  string    `json:"product_id,omitempty"`
	Status     string    `json:"status,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
