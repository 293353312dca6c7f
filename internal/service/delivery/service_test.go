package delivery

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Additional-Code/vaultshop/internal/archive"
	"github.com/Additional-Code/vaultshop/internal/archive/archivetest"
	"github.com/Additional-Code/vaultshop/internal/cache"
	"github.com/Additional-Code/vaultshop/internal/config"
	"github.com/Additional-Code/vaultshop/internal/database/dbtest"
	"github.com/Additional-Code/vaultshop/internal/messaging"
	repo "github.com/Additional-Code/vaultshop/internal/repository/order"
	ordersvc "github.com/Additional-Code/vaultshop/internal/service/order"
	"github.com/Additional-Code/vaultshop/internal/vault"
	"github.com/Additional-Code/vaultshop/pkg/errorbank"
)

const testSecret = "delivery-test-secret"

type fixture struct {
	svc     *Service
	orders  *ordersvc.Service
	vault   *vault.Vault
	archive *archivetest.Server
}

func newFixture(t *testing.T, secret string, archiveCfg func(*config.Archive)) fixture {
	t.Helper()

	logger := zaptest.NewLogger(t)
	v, err := vault.NewWithSecret(secret, 2)
	require.NoError(t, err)

	remote := archivetest.New(t)
	var cfg config.Config
	cfg.Archive = remote.Config()
	if archiveCfg != nil {
		archiveCfg(&cfg.Archive)
	}
	cfg.Delivery = config.Delivery{ContentType: "video/mp4", Filename: "secure-video.mp4"}

	orders, err := ordersvc.NewService(ordersvc.Params{
		Repository: repo.NewRepository(dbtest.Open(t)),
		Vault:      v,
		Cache:      cache.NewNoop(),
		Config:     cfg,
		Logger:     logger,
		Publisher:  messaging.NewNoop("orders"),
	})
	require.NoError(t, err)

	svc, err := NewService(Params{
		Orders:  orders,
		Vault:   v,
		Archive: archive.New(cfg.Archive, remote.Client()),
		Config:  cfg,
		Logger:  logger,
	})
	require.NoError(t, err)

	return fixture{svc: svc, orders: orders, vault: v, archive: remote}
}

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	_, err := rand.Read(b)
	require.NoError(t, err)
	return b
}

func TestService_EndToEnd(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testSecret, nil)

	orderID, err := f.orders.Create(ctx, ordersvc.CreateInput{
		ProductID: "42",
		Email:     "a@b.com",
		Amount:    json.Number("25"),
	})
	require.NoError(t, err)

	original := randomBytes(t, 100)
	encrypted, err := f.vault.EncryptStream(original)
	require.NoError(t, err)
	archiveURL := f.archive.Store("item-1", "video.mp4", encrypted)

	require.NoError(t, f.orders.AttachArchiveURL(ctx, orderID, archiveURL))
	order, err := f.orders.Get(ctx, orderID)
	require.NoError(t, err)
	require.NotNil(t, order.ArchiveURL)
	assert.Equal(t, archiveURL, *order.ArchiveURL)

	dl, err := f.svc.FetchDecrypted(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, original, dl.Body)
	assert.Equal(t, "video/mp4", dl.ContentType)
	assert.Equal(t, "secure-video.mp4", dl.Filename)
}

func TestService_UploadThenDownload(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testSecret, nil)

	orderID, err := f.orders.Create(ctx, ordersvc.CreateInput{ProductID: "42"})
	require.NoError(t, err)

	original := randomBytes(t, 4096)
	publicURL, err := f.svc.Upload(ctx, UploadInput{
		OrderID:  orderID,
		ItemID:   "item-9",
		Filename: "clip.mp4",
		Body:     original,
	})
	require.NoError(t, err)
	assert.Equal(t, f.archive.URL+"/download/item-9/clip.mp4", publicURL)

	stored, ok := f.archive.Object("item-9", "clip.mp4")
	require.True(t, ok)
	assert.NotEqual(t, original, stored[vault.NonceSize:vault.NonceSize+len(original)])
	assert.Len(t, stored, vault.NonceSize+len(original)+16)

	dl, err := f.svc.FetchDecrypted(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, original, dl.Body)
}

func TestService_UploadDefaultsFilename(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testSecret, nil)

	orderID, err := f.orders.Create(ctx, ordersvc.CreateInput{ProductID: "42"})
	require.NoError(t, err)

	publicURL, err := f.svc.Upload(ctx, UploadInput{OrderID: orderID, ItemID: "item", Body: []byte("x")})
	require.NoError(t, err)
	assert.Equal(t, f.archive.URL+"/download/item/file.bin", publicURL)
}

func TestService_UploadValidation(t *testing.T) {
	ctx := context.Background()

	t.Run("missing_ids", func(t *testing.T) {
		f := newFixture(t, testSecret, nil)
		_, err := f.svc.Upload(ctx, UploadInput{ItemID: "item", Body: []byte("x")})
		assert.Equal(t, errorbank.KindBadRequest, errorbank.From(err).Kind())
		_, err = f.svc.Upload(ctx, UploadInput{OrderID: "o", Body: []byte("x")})
		assert.Equal(t, errorbank.KindBadRequest, errorbank.From(err).Kind())
	})

	t.Run("empty_body", func(t *testing.T) {
		f := newFixture(t, testSecret, nil)
		_, err := f.svc.Upload(ctx, UploadInput{OrderID: "o", ItemID: "item"})
		require.ErrorIs(t, err, archive.ErrEmptyPayload)
		assert.Equal(t, errorbank.KindBadRequest, errorbank.From(err).Kind())
		assert.Zero(t, f.archive.Puts())
	})

	t.Run("missing_credentials", func(t *testing.T) {
		f := newFixture(t, testSecret, func(a *config.Archive) { a.AccessKey = "" })
		_, err := f.svc.Upload(ctx, UploadInput{OrderID: "o", ItemID: "item", Body: []byte("x")})
		require.ErrorIs(t, err, archive.ErrMissingCredentials)
		assert.Equal(t, errorbank.KindInternal, errorbank.From(err).Kind())
		assert.Zero(t, f.archive.Puts())
	})

	t.Run("missing_secret", func(t *testing.T) {
		f := newFixture(t, "", nil)
		_, err := f.svc.Upload(ctx, UploadInput{OrderID: "o", ItemID: "item", Body: []byte("x")})
		require.ErrorIs(t, err, vault.ErrMissingSecret)
		assert.Zero(t, f.archive.Puts())
	})
}

func TestService_UploadRejectedUpstream(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testSecret, nil)
	orderID, err := f.orders.Create(ctx, ordersvc.CreateInput{ProductID: "42"})
	require.NoError(t, err)

	f.archive.FailPuts(http.StatusServiceUnavailable)
	_, err = f.svc.Upload(ctx, UploadInput{OrderID: orderID, ItemID: "item", Body: []byte("x")})
	require.Error(t, err)

	appErr := errorbank.From(err)
	assert.Equal(t, errorbank.KindBadGateway, appErr.Kind())
	assert.Equal(t, http.StatusServiceUnavailable, appErr.Details()["upstream_status"])

	var uploadErr *archive.UploadError
	require.True(t, errors.As(err, &uploadErr))

	order, err := f.orders.Get(ctx, orderID)
	require.NoError(t, err)
	assert.False(t, order.Delivered())
}

func TestService_UploadForUnknownOrderLeavesOrphan(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testSecret, nil)

	_, err := f.svc.Upload(ctx, UploadInput{OrderID: "ghost", ItemID: "item", Filename: "f.bin", Body: []byte("x")})
	require.Error(t, err)
	assert.Equal(t, errorbank.KindNotFound, errorbank.From(err).Kind())

	_, ok := f.archive.Object("item", "f.bin")
	assert.True(t, ok)
}

func TestService_DownloadGating(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testSecret, nil)

	pendingID, err := f.orders.Create(ctx, ordersvc.CreateInput{ProductID: "42"})
	require.NoError(t, err)

	_, missingErr := f.svc.FetchDecrypted(ctx, "nonexistent-id")
	_, pendingErr := f.svc.FetchDecrypted(ctx, pendingID)

	for _, err := range []error{missingErr, pendingErr} {
		require.ErrorIs(t, err, ErrForbidden)
		assert.Equal(t, errorbank.KindForbidden, errorbank.From(err).Kind())
	}
	assert.Equal(t, missingErr.Error(), pendingErr.Error())
}

func TestService_DownloadUpstreamUnavailable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testSecret, nil)

	orderID, err := f.orders.Create(ctx, ordersvc.CreateInput{ProductID: "42"})
	require.NoError(t, err)
	require.NoError(t, f.orders.AttachArchiveURL(ctx, orderID, f.archive.URL+"/download/none/none.bin"))

	_, err = f.svc.FetchDecrypted(ctx, orderID)
	require.ErrorIs(t, err, ErrUpstreamUnavailable)
	assert.Equal(t, errorbank.KindBadGateway, errorbank.From(err).Kind())

	var fetchErr *archive.FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, http.StatusNotFound, fetchErr.StatusCode)
}

func TestService_DownloadDecryptFailures(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		payload func(t *testing.T, v *vault.Vault) []byte
		want    error
	}{
		{
			name:    "short_buffer",
			payload: func(*testing.T, *vault.Vault) []byte { return []byte("tiny") },
			want:    vault.ErrMalformedPayload,
		},
		{
			name: "plaintext_stored",
			payload: func(t *testing.T, _ *vault.Vault) []byte {
				return []byte("this file was never encrypted at all")
			},
			want: vault.ErrDecryption,
		},
		{
			name: "wrong_secret",
			payload: func(t *testing.T, _ *vault.Vault) []byte {
				other, err := vault.NewWithSecret("some-other-secret", 1)
				require.NoError(t, err)
				b, err := other.EncryptStream([]byte("payload"))
				require.NoError(t, err)
				return b
			},
			want: vault.ErrDecryption,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, testSecret, nil)
			orderID, err := f.orders.Create(ctx, ordersvc.CreateInput{ProductID: "42"})
			require.NoError(t, err)
			archiveURL := f.archive.Store("item", "f.bin", tt.payload(t, f.vault))
			require.NoError(t, f.orders.AttachArchiveURL(ctx, orderID, archiveURL))

			dl, err := f.svc.FetchDecrypted(ctx, orderID)
			require.ErrorIs(t, err, tt.want)
			assert.Nil(t, dl)
			assert.Equal(t, errorbank.KindInternal, errorbank.From(err).Kind())
		})
	}
}
