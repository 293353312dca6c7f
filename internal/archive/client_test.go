package archive

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Additional-Code/vaultshop/internal/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(config.Archive{
		AccessKey:     "access",
		SecretKey:     "secret",
		UploadBaseURL: srv.URL,
		PublicBaseURL: "https://archive.example/download",
	}, srv.Client()), srv
}

func TestClient_Put(t *testing.T) {
	var (
		gotPath, gotAuth, gotType string
		gotBody                   []byte
	)
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	})

	publicURL, err := client.Put(context.Background(), "item-7", "movie.mp4", []byte{1, 2, 3})
	require.NoError(t, err)

	assert.Equal(t, "https://archive.example/download/item-7/movie.mp4", publicURL)
	assert.Equal(t, "/item-7/movie.mp4", gotPath)
	assert.Equal(t, "LOW access:secret", gotAuth)
	assert.Equal(t, "application/octet-stream", gotType)
	assert.Equal(t, []byte{1, 2, 3}, gotBody)
}

func TestClient_PutRejected(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	_, err := client.Put(context.Background(), "item", "f.bin", []byte{1})
	var uploadErr *UploadError
	require.True(t, errors.As(err, &uploadErr))
	assert.Equal(t, http.StatusForbidden, uploadErr.StatusCode)
}

func TestClient_PutValidation(t *testing.T) {
	calls := 0
	client, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
	})

	_, err := client.Put(context.Background(), "item", "f.bin", nil)
	require.ErrorIs(t, err, ErrEmptyPayload)

	anon := New(config.Archive{UploadBaseURL: srv.URL, PublicBaseURL: "https://archive.example/download"}, srv.Client())
	assert.False(t, anon.Configured())
	_, err = anon.Put(context.Background(), "item", "f.bin", []byte{1})
	require.ErrorIs(t, err, ErrMissingCredentials)

	assert.Zero(t, calls)
}

func TestClient_Fetch(t *testing.T) {
	client, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ok" {
			_, _ = w.Write([]byte("ciphertext"))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})

	data, err := client.Fetch(context.Background(), srv.URL+"/ok")
	require.NoError(t, err)
	assert.Equal(t, []byte("ciphertext"), data)

	_, err = client.Fetch(context.Background(), srv.URL+"/missing")
	var fetchErr *FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, http.StatusNotFound, fetchErr.StatusCode)
}

func TestObjectPath_Escapes(t *testing.T) {
	assert.Equal(t, "/my%20item/a%2Fb.bin", ObjectPath("my item", "a/b.bin"))
}
