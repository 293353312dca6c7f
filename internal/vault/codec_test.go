package vault

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "operator-secret-for-tests"

func newTestKeyring(t *testing.T) *Keyring {
	t.Helper()
	kr, err := NewKeyring(4)
	require.NoError(t, err)
	return kr
}

func TestDeriveKey_MissingSecret(t *testing.T) {
	_, err := DeriveKey("")
	require.ErrorIs(t, err, ErrMissingSecret)

	kr := newTestKeyring(t)
	_, err = kr.EncryptPayload(`{}`, "")
	require.ErrorIs(t, err, ErrMissingSecret)
	_, err = kr.DecryptStream(make([]byte, 32), "")
	require.ErrorIs(t, err, ErrMissingSecret)
}

func TestDeriveKey_Deterministic(t *testing.T) {
	a, err := DeriveKey(testSecret)
	require.NoError(t, err)
	b, err := DeriveKey(testSecret)
	require.NoError(t, err)

	sealed, err := a.SealPayload("hello")
	require.NoError(t, err)
	plain, err := b.OpenPayload(sealed)
	require.NoError(t, err)
	assert.Equal(t, "hello", plain)
}

func TestKeyring_Memoizes(t *testing.T) {
	kr := newTestKeyring(t)

	first, err := kr.Key(testSecret)
	require.NoError(t, err)
	second, err := kr.Key(testSecret)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, kr.Len())

	_, err = kr.Key("another-secret")
	require.NoError(t, err)
	assert.Equal(t, 2, kr.Len())
}

func TestPayload_RoundTrip(t *testing.T) {
	kr := newTestKeyring(t)
	cases := []string{
		``,
		`{}`,
		`{"email":"a@b.com","amount":25,"productId":"42","status":"PAID","addons":null}`,
		`{"note":"ünïcödé ✓","addons":[{"field":"size","value":"XL"}]}`,
	}
	for _, plaintext := range cases {
		sealed, err := kr.EncryptPayload(plaintext, testSecret)
		require.NoError(t, err)

		nonce, err := base64.StdEncoding.DecodeString(sealed.Nonce)
		require.NoError(t, err)
		assert.Len(t, nonce, NonceSize)

		got, err := kr.DecryptPayload(sealed, testSecret)
		require.NoError(t, err)
		assert.Equal(t, plaintext, got)
	}
}

func TestPayload_NonceUniqueness(t *testing.T) {
	kr := newTestKeyring(t)
	plaintext := `{"email":"a@b.com","amount":25}`

	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		sealed, err := kr.EncryptPayload(plaintext, testSecret)
		require.NoError(t, err)
		_, dup := seen[sealed.Nonce]
		require.False(t, dup, "nonce repeated")
		seen[sealed.Nonce] = struct{}{}
	}

	a, err := kr.EncryptPayload(plaintext, testSecret)
	require.NoError(t, err)
	b, err := kr.EncryptPayload(plaintext, testSecret)
	require.NoError(t, err)
	assert.NotEqual(t, a.Ciphertext, b.Ciphertext)
	assert.NotEqual(t, a.Nonce, b.Nonce)
}

func TestPayload_TamperDetection(t *testing.T) {
	kr := newTestKeyring(t)
	sealed, err := kr.EncryptPayload(`{"email":"a@b.com"}`, testSecret)
	require.NoError(t, err)

	ct, err := base64.StdEncoding.DecodeString(sealed.Ciphertext)
	require.NoError(t, err)
	for i := range ct {
		flipped := append([]byte(nil), ct...)
		flipped[i] ^= 0x01
		_, err := kr.DecryptPayload(Sealed{
			Ciphertext: base64.StdEncoding.EncodeToString(flipped),
			Nonce:      sealed.Nonce,
		}, testSecret)
		require.ErrorIs(t, err, ErrDecryption, "ciphertext byte %d", i)
	}

	nonce, err := base64.StdEncoding.DecodeString(sealed.Nonce)
	require.NoError(t, err)
	for i := range nonce {
		flipped := append([]byte(nil), nonce...)
		flipped[i] ^= 0x80
		_, err := kr.DecryptPayload(Sealed{
			Ciphertext: sealed.Ciphertext,
			Nonce:      base64.StdEncoding.EncodeToString(flipped),
		}, testSecret)
		require.ErrorIs(t, err, ErrDecryption, "nonce byte %d", i)
	}
}

func TestPayload_MalformedInput(t *testing.T) {
	kr := newTestKeyring(t)
	sealed, err := kr.EncryptPayload(`{}`, testSecret)
	require.NoError(t, err)

	tests := []struct {
		name   string
		sealed Sealed
	}{
		{name: "nonce_not_base64", sealed: Sealed{Ciphertext: sealed.Ciphertext, Nonce: "***"}},
		{name: "ciphertext_not_base64", sealed: Sealed{Ciphertext: "***", Nonce: sealed.Nonce}},
		{name: "short_nonce", sealed: Sealed{Ciphertext: sealed.Ciphertext, Nonce: base64.StdEncoding.EncodeToString([]byte("short"))}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := kr.DecryptPayload(tt.sealed, testSecret)
			require.ErrorIs(t, err, ErrMalformedPayload)
		})
	}
}

func TestPayload_WrongSecret(t *testing.T) {
	kr := newTestKeyring(t)
	sealed, err := kr.EncryptPayload(`{"amount":25}`, "A")
	require.NoError(t, err)

	_, err = kr.DecryptPayload(sealed, "B")
	require.ErrorIs(t, err, ErrDecryption)
}

func TestStream_RoundTrip(t *testing.T) {
	kr := newTestKeyring(t)
	for _, size := range []int{0, 1, 100, 64 * 1024} {
		data := make([]byte, size)
		_, err := rand.Read(data)
		require.NoError(t, err)

		sealed, err := kr.EncryptStream(data, testSecret)
		require.NoError(t, err)
		assert.Len(t, sealed, NonceSize+size+16)

		got, err := kr.DecryptStream(sealed, testSecret)
		require.NoError(t, err)
		assert.True(t, bytes.Equal(data, got), "size %d", size)
		assert.NotNil(t, got)
	}
}

func TestStream_ShortBufferRejected(t *testing.T) {
	kr := newTestKeyring(t)
	for size := 0; size <= NonceSize; size++ {
		_, err := kr.DecryptStream(make([]byte, size), testSecret)
		require.ErrorIs(t, err, ErrMalformedPayload, "size %d", size)
		assert.NotErrorIs(t, err, ErrDecryption)
	}

	// 13 bytes passes framing but cannot authenticate.
	_, err := kr.DecryptStream(make([]byte, NonceSize+1), testSecret)
	require.ErrorIs(t, err, ErrDecryption)
}

func TestStream_TamperDetection(t *testing.T) {
	kr := newTestKeyring(t)
	sealed, err := kr.EncryptStream([]byte("a purchased file body"), testSecret)
	require.NoError(t, err)

	for i := range sealed {
		flipped := append([]byte(nil), sealed...)
		flipped[i] ^= 0xff
		_, err := kr.DecryptStream(flipped, testSecret)
		require.ErrorIs(t, err, ErrDecryption, "byte %d", i)
	}
}

func TestStream_WrongSecret(t *testing.T) {
	kr := newTestKeyring(t)
	sealed, err := kr.EncryptStream([]byte("secret video"), "A")
	require.NoError(t, err)

	_, err = kr.DecryptStream(sealed, "B")
	require.ErrorIs(t, err, ErrDecryption)
}

func TestVault_BindsSecret(t *testing.T) {
	v, err := NewWithSecret(testSecret, 2)
	require.NoError(t, err)
	require.True(t, v.Configured())

	sealed, err := v.EncryptPayload(`{"a":1}`)
	require.NoError(t, err)
	plain, err := v.DecryptPayload(sealed)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, plain)

	empty, err := NewWithSecret("", 2)
	require.NoError(t, err)
	assert.False(t, empty.Configured())
	_, err = empty.EncryptStream([]byte("x"))
	require.ErrorIs(t, err, ErrMissingSecret)
}
