package order

import (
	"bytes"
	"encoding/json"
	"io"
	"strconv"
	"strings"

	service "github.com/Additional-Code/vaultshop/internal/service/order"
	"github.com/Additional-Code/vaultshop/pkg/errorbank"
)

// decodeCreate normalizes the loosely shaped order bodies sent by the
// storefront into a CreateInput.
func decodeCreate(r io.Reader) (service.CreateInput, error) {
	var raw map[string]json.RawMessage
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return service.CreateInput{}, errorbank.BadRequest("invalid payload", errorbank.WithCause(err))
	}

	var in service.CreateInput
	var err error

	for _, key := range []string{"productId", "product_id", "product"} {
		if in.ProductID, err = scalarString(raw[key]); err != nil {
			return service.CreateInput{}, errorbank.BadRequest(key+" must be a string or number")
		}
		if in.ProductID != "" {
			break
		}
	}
	if in.ProductID == "" {
		return service.CreateInput{}, errorbank.BadRequest("productId missing for order")
	}

	if in.OrderID, err = scalarString(raw["orderId"]); err != nil {
		return service.CreateInput{}, errorbank.BadRequest("orderId must be a string")
	}
	if in.Email, err = scalarString(raw["email"]); err != nil {
		return service.CreateInput{}, errorbank.BadRequest("email must be a string")
	}

	amount, err := scalarString(raw["amount"])
	if err != nil {
		return service.CreateInput{}, errorbank.BadRequest("amount must be a number")
	}
	if amount != "" {
		if _, err := strconv.ParseFloat(amount, 64); err != nil {
			return service.CreateInput{}, errorbank.BadRequest("amount must be a number")
		}
		in.Amount = json.Number(amount)
	}

	if addons := bytes.TrimSpace(raw["addons"]); len(addons) > 0 && !bytes.Equal(addons, []byte("null")) {
		in.Addons = json.RawMessage(addons)
	}

	return in, nil
}

// scalarString reads a JSON string or number as text. Absent and null
// values yield "".
func scalarString(v json.RawMessage) (string, error) {
	v = bytes.TrimSpace(v)
	if len(v) == 0 || bytes.Equal(v, []byte("null")) {
		return "", nil
	}
	if v[0] == '"' {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return "", err
		}
		return strings.TrimSpace(s), nil
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err != nil {
		return "", err
	}
	return n.String(), nil
}
