package entity

import "encoding/json"

// OrderPayload is the sensitive part of an order. It is only ever stored
// encrypted in Order.EncryptedData.
type OrderPayload struct {
	Email     string          `json:"email"`
	Amount    json.Number     `json:"amount"`
	ProductID string          `json:"productId"`
	Status    string          `json:"status"`
	Addons    json.RawMessage `json:"addons"`
}
