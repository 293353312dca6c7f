package entity

import (
	"time"

	"github.com/uptrace/bun"
)

// Order statuses written by the service; webhooks and admins may set others.
const (
	OrderStatusPending   = "pending"
	OrderStatusPaid      = "PAID"
	OrderStatusDelivered = "delivered"
)

// Order is an encrypted purchase record. OrderID doubles as the download
// capability token and is immutable once inserted.
type Order struct {
	bun.BaseModel `bun:"table:orders"`

	OrderID       string    `bun:"order_id,pk"`
	ProductID     string    `bun:"product_id,notnull"`
	EncryptedData string    `bun:"encrypted_data,notnull"`
	IV            string    `bun:"iv,notnull"`
	ArchiveURL    *string   `bun:"archive_url"`
	Status        string    `bun:"status,notnull"`
	CreatedAt     time.Time `bun:"created_at,notnull"`
	UpdatedAt     time.Time `bun:"updated_at,notnull"`
}

// Delivered reports whether the encrypted file has been attached.
func (o *Order) Delivered() bool {
	return o != nil && o.ArchiveURL != nil && *o.ArchiveURL != ""
}
