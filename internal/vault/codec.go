package vault

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
)

// Sealed is an encrypted payload as stored at rest: base64 ciphertext
// (with the GCM tag appended) and its base64 nonce.
type Sealed struct {
	Ciphertext string
	Nonce      string
}

// SealPayload encrypts a textual payload under a fresh random nonce.
func (k *Key) SealPayload(plaintext string) (Sealed, error) {
	nonce, err := newNonce()
	if err != nil {
		return Sealed{}, err
	}
	ct := k.aead.Seal(nil, nonce, []byte(plaintext), nil)
	return Sealed{
		Ciphertext: base64.StdEncoding.EncodeToString(ct),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
	}, nil
}

// OpenPayload reverses SealPayload.
func (k *Key) OpenPayload(s Sealed) (string, error) {
	nonce, err := base64.StdEncoding.DecodeString(s.Nonce)
	if err != nil {
		return "", fmt.Errorf("%w: nonce is not base64", ErrMalformedPayload)
	}
	if len(nonce) != NonceSize {
		return "", fmt.Errorf("%w: nonce must be %d bytes, got %d", ErrMalformedPayload, NonceSize, len(nonce))
	}
	ct, err := base64.StdEncoding.DecodeString(s.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: ciphertext is not base64", ErrMalformedPayload)
	}
	plain, err := k.aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", ErrDecryption
	}
	return string(plain), nil
}

// SealStream encrypts a byte buffer and returns nonce || ciphertext.
// Zero-length input is valid and yields a nonce plus a bare tag.
func (k *Key) SealStream(data []byte) ([]byte, error) {
	nonce, err := newNonce()
	if err != nil {
		return nil, err
	}
	out := make([]byte, NonceSize, NonceSize+len(data)+k.aead.Overhead())
	copy(out, nonce)
	return k.aead.Seal(out, nonce, data, nil), nil
}

// OpenStream decrypts a nonce-prefixed buffer produced by SealStream.
func (k *Key) OpenStream(data []byte) ([]byte, error) {
	if len(data) < NonceSize+1 {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the %d byte minimum", ErrMalformedPayload, len(data), NonceSize+1)
	}
	plain, err := k.aead.Open(nil, data[:NonceSize], data[NonceSize:], nil)
	if err != nil {
		return nil, ErrDecryption
	}
	if plain == nil {
		plain = []byte{}
	}
	return plain, nil
}

// EncryptPayload derives (or reuses) the key for secret and seals plaintext.
func (k *Keyring) EncryptPayload(plaintext, secret string) (Sealed, error) {
	key, err := k.Key(secret)
	if err != nil {
		return Sealed{}, err
	}
	return key.SealPayload(plaintext)
}

// DecryptPayload opens a sealed payload with the key for secret.
func (k *Keyring) DecryptPayload(s Sealed, secret string) (string, error) {
	key, err := k.Key(secret)
	if err != nil {
		return "", err
	}
	return key.OpenPayload(s)
}

// EncryptStream seals a binary buffer with the key for secret.
func (k *Keyring) EncryptStream(data []byte, secret string) ([]byte, error) {
	key, err := k.Key(secret)
	if err != nil {
		return nil, err
	}
	return key.SealStream(data)
}

// DecryptStream opens a nonce-prefixed buffer with the key for secret.
func (k *Keyring) DecryptStream(data []byte, secret string) ([]byte, error) {
	key, err := k.Key(secret)
	if err != nil {
		return nil, err
	}
	return key.OpenStream(data)
}

func newNonce() ([]byte, error) {
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("vault: read nonce: %w", err)
	}
	return nonce, nil
}
