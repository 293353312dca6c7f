package dto

import (
	"encoding/json"
	"time"

	"github.com/Additional-Code/vaultshop/internal/entity"
)

// OrderResponse represents an order as exposed via transport layers. The
// encrypted payload and its nonce never leave the service.
type OrderResponse struct {
	OrderID    string    `json:"orderId"`
	ProductID  string    `json:"productId"`
	Status     string    `json:"status"`
	ArchiveURL *string   `json:"archiveUrl,omitempty"`
	Delivered  bool      `json:"delivered"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// PayloadResponse is the decrypted customer payload of an order.
type PayloadResponse struct {
	Email     string          `json:"email"`
	Amount    json.Number     `json:"amount,omitempty"`
	ProductID string          `json:"productId"`
	Status    string          `json:"status"`
	Addons    json.RawMessage `json:"addons"`
}

// OrderDetailsResponse combines an order with its decrypted payload.
type OrderDetailsResponse struct {
	OrderResponse
	Payload PayloadResponse `json:"payload"`
}

// NewOrderResponse maps an entity to its transport shape.
func NewOrderResponse(o *entity.Order) OrderResponse {
	if o == nil {
		return OrderResponse{}
	}
	return OrderResponse{
		OrderID:    o.OrderID,
		ProductID:  o.ProductID,
		Status:     o.Status,
		ArchiveURL: o.ArchiveURL,
		Delivered:  o.Delivered(),
		CreatedAt:  o.CreatedAt,
		UpdatedAt:  o.UpdatedAt,
	}
}

// NewOrderDetailsResponse maps an order and its decrypted payload.
func NewOrderDetailsResponse(o *entity.Order, p entity.OrderPayload) OrderDetailsResponse {
	addons := p.Addons
	if len(addons) == 0 {
		addons = json.RawMessage("null")
	}
	return OrderDetailsResponse{
		OrderResponse: NewOrderResponse(o),
		Payload: PayloadResponse{
			Email:     p.Email,
			Amount:    p.Amount,
			ProductID: p.ProductID,
			Status:    p.Status,
			Addons:    addons,
		},
	}
}
