package vault

import (
	"errors"

	"github.com/Additional-Code/vaultshop/pkg/errorbank"
)

// AppError translates vault failures into transport-neutral errors.
// Decryption and framing failures stay fatal (internal) so they are never
// mistaken for a missing record.
func AppError(err error) *errorbank.AppError {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrMissingSecret):
		return errorbank.Internal("encryption is not configured", errorbank.WithCause(err))
	case errors.Is(err, ErrDecryption):
		return errorbank.Internal("stored data failed authentication", errorbank.WithCause(err))
	case errors.Is(err, ErrMalformedPayload):
		return errorbank.Internal("stored data is malformed", errorbank.WithCause(err))
	default:
		return errorbank.Internal("encryption failed", errorbank.WithCause(err))
	}
}
