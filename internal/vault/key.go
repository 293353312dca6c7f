package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32
	// NonceSize is the AES-GCM nonce length in bytes.
	NonceSize = 12
	// Iterations is the PBKDF2 round count.
	Iterations = 100000
)

// Salt is shared by every derivation. Changing it makes all stored
// ciphertexts unreadable.
var Salt = []byte("universal-salt")

var (
	// ErrMissingSecret is returned when no operator secret is configured.
	ErrMissingSecret = errors.New("vault: secret key is not configured")
	// ErrDecryption is returned when the authentication tag does not verify.
	ErrDecryption = errors.New("vault: decryption failed")
	// ErrMalformedPayload is returned when ciphertext framing is invalid.
	ErrMalformedPayload = errors.New("vault: malformed payload")
)

// Key is a derived AES-GCM key. The raw key bytes are not exposed.
type Key struct {
	aead cipher.AEAD
}

// DeriveKey turns an operator secret into an AES-GCM key using
// PBKDF2-HMAC-SHA256 over the fixed salt.
func DeriveKey(secret string) (*Key, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	raw := pbkdf2.Key([]byte(secret), Salt, Iterations, KeySize, sha256.New)
	block, err := aes.NewCipher(raw)
	if err != nil {
		return nil, fmt.Errorf("vault: init cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("vault: init gcm: %w", err)
	}
	return &Key{aead: aead}, nil
}

// Keyring memoizes derived keys per secret for the process lifetime.
// It is safe for concurrent use.
type Keyring struct {
	keys *lru.Cache
}

// NewKeyring builds a Keyring holding at most size derived keys.
func NewKeyring(size int) (*Keyring, error) {
	if size <= 0 {
		size = 1
	}
	cache, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &Keyring{keys: cache}, nil
}

// Key returns the derived key for secret, deriving it on first use.
func (k *Keyring) Key(secret string) (*Key, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	id := fingerprint(secret)
	if cached, ok := k.keys.Get(id); ok {
		return cached.(*Key), nil
	}
	key, err := DeriveKey(secret)
	if err != nil {
		return nil, err
	}
	k.keys.Add(id, key)
	return key, nil
}

// Len reports how many derived keys are cached.
func (k *Keyring) Len() int {
	return k.keys.Len()
}

func fingerprint(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}
