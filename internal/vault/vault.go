package vault

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/vaultshop/internal/config"
)

// Module provides the configured Vault to Fx.
var Module = fx.Provide(New)

// Vault binds the configured operator secret to a Keyring so callers never
// handle the secret directly.
type Vault struct {
	keys   *Keyring
	secret string
}

// New builds a Vault from configuration. A missing secret is not fatal
// here; every crypto call reports ErrMissingSecret instead.
func New(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*Vault, error) {
	v, err := NewWithSecret(cfg.Security.SecretKey, cfg.Security.KeyCacheSize)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			if !v.Configured() {
				logger.Warn("SECRET_KEY is not set; order encryption and downloads will fail")
				return nil
			}
			// Derive once at startup so the first request does not pay for PBKDF2.
			if _, err := v.keys.Key(v.secret); err != nil {
				return err
			}
			logger.Info("encryption key derived")
			return nil
		},
	})

	return v, nil
}

// NewWithSecret builds a Vault outside of Fx.
func NewWithSecret(secret string, cacheSize int) (*Vault, error) {
	keys, err := NewKeyring(cacheSize)
	if err != nil {
		return nil, err
	}
	return &Vault{keys: keys, secret: secret}, nil
}

// Configured reports whether an operator secret is present.
func (v *Vault) Configured() bool {
	return v.secret != ""
}

// EncryptPayload seals a JSON payload for storage.
func (v *Vault) EncryptPayload(plaintext string) (Sealed, error) {
	return v.keys.EncryptPayload(plaintext, v.secret)
}

// DecryptPayload opens a stored payload.
func (v *Vault) DecryptPayload(s Sealed) (string, error) {
	return v.keys.DecryptPayload(s, v.secret)
}

// EncryptStream seals a file body for upload.
func (v *Vault) EncryptStream(data []byte) ([]byte, error) {
	return v.keys.EncryptStream(data, v.secret)
}

// DecryptStream opens a file body fetched from cold storage.
func (v *Vault) DecryptStream(data []byte) ([]byte, error) {
	return v.keys.DecryptStream(data, v.secret)
}
