package order

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Additional-Code/vaultshop/internal/cache"
	"github.com/Additional-Code/vaultshop/internal/config"
	"github.com/Additional-Code/vaultshop/internal/database/dbtest"
	"github.com/Additional-Code/vaultshop/internal/entity"
	"github.com/Additional-Code/vaultshop/internal/messaging"
	repo "github.com/Additional-Code/vaultshop/internal/repository/order"
	"github.com/Additional-Code/vaultshop/internal/vault"
	"github.com/Additional-Code/vaultshop/pkg/errorbank"
)

type memoryCache struct {
	mu    sync.Mutex
	items map[string][]byte
}

func newMemoryCache() *memoryCache {
	return &memoryCache{items: make(map[string][]byte)}
}

func (m *memoryCache) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.items[key]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return v, nil
}

func (m *memoryCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = value
	return nil
}

func (m *memoryCache) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}

func (m *memoryCache) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.items[key]
	return ok
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingPublisher) Publish(_ context.Context, _ []byte, value []byte) error {
	var event Event
	if err := json.Unmarshal(value, &event); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingPublisher) Consume(ctx context.Context, _ messaging.Handler) error {
	<-ctx.Done()
	return ctx.Err()
}

func (r *recordingPublisher) Topic() string { return "orders" }

func (r *recordingPublisher) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	svc   *Service
	repo  *repo.Repository
	cache *memoryCache
	pub   *recordingPublisher
}

func newFixture(t *testing.T, secret string) fixture {
	t.Helper()

	v, err := vault.NewWithSecret(secret, 2)
	require.NoError(t, err)

	var cfg config.Config
	cfg.Cache.DefaultTTL = time.Minute
	cfg.Messaging.Enabled = true
	cfg.Messaging.Kafka.Topic = "orders"

	r := repo.NewRepository(dbtest.Open(t))
	c := newMemoryCache()
	p := &recordingPublisher{}

	svc, err := NewService(Params{
		Repository: r,
		Vault:      v,
		Cache:      c,
		Config:     cfg,
		Logger:     zaptest.NewLogger(t),
		Publisher:  p,
	})
	require.NoError(t, err)

	return fixture{svc: svc, repo: r, cache: c, pub: p}
}

func TestService_CreateEncryptsPayload(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "test-secret")

	orderID, err := f.svc.Create(ctx, CreateInput{
		ProductID: "42",
		Email:     "a@b.com",
		Amount:    json.Number("25"),
	})
	require.NoError(t, err)
	require.NotEmpty(t, orderID)

	stored, err := f.repo.GetByOrderID(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, "42", stored.ProductID)
	assert.Equal(t, entity.OrderStatusPaid, stored.Status)
	assert.NotContains(t, stored.EncryptedData, "a@b.com")

	nonce, err := base64.StdEncoding.DecodeString(stored.IV)
	require.NoError(t, err)
	assert.Len(t, nonce, vault.NonceSize)

	details, err := f.svc.Details(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", details.Payload.Email)
	assert.Equal(t, json.Number("25"), details.Payload.Amount)
	assert.Equal(t, "42", details.Payload.ProductID)
	assert.Equal(t, entity.OrderStatusPaid, details.Payload.Status)
	assert.JSONEq(t, "null", string(details.Payload.Addons))

	assert.Equal(t, []string{EventOrderCreated}, f.pub.types())
}

func TestService_CreateKeepsClientOrderID(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "test-secret")

	orderID, err := f.svc.Create(ctx, CreateInput{
		OrderID:   "ABC123",
		ProductID: "7",
		Email:     "x@y.z",
		Amount:    json.Number("9.99"),
		Addons:    json.RawMessage(`[{"field":"message","value":"hi"}]`),
	})
	require.NoError(t, err)
	assert.Equal(t, "ABC123", orderID)

	// Same id again replaces the payload.
	_, err = f.svc.Create(ctx, CreateInput{OrderID: "ABC123", ProductID: "8", Email: "new@y.z"})
	require.NoError(t, err)

	details, err := f.svc.Details(ctx, "ABC123")
	require.NoError(t, err)
	assert.Equal(t, "8", details.Order.ProductID)
	assert.Equal(t, "new@y.z", details.Payload.Email)
}

func TestService_CreateValidation(t *testing.T) {
	f := newFixture(t, "test-secret")

	_, err := f.svc.Create(context.Background(), CreateInput{Email: "a@b.com"})
	require.Error(t, err)
	assert.Equal(t, errorbank.KindBadRequest, errorbank.From(err).Kind())

	_, err = f.svc.Create(context.Background(), CreateInput{ProductID: "1", Amount: json.Number("not-a-number")})
	require.Error(t, err)
	assert.Equal(t, errorbank.KindBadRequest, errorbank.From(err).Kind())
}

func TestService_CreateWithoutSecret(t *testing.T) {
	f := newFixture(t, "")

	_, err := f.svc.Create(context.Background(), CreateInput{ProductID: "42"})
	require.ErrorIs(t, err, vault.ErrMissingSecret)
	assert.Equal(t, errorbank.KindInternal, errorbank.From(err).Kind())
}

func TestService_DetailsWithWrongSecretFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "secret-A")

	orderID, err := f.svc.Create(ctx, CreateInput{ProductID: "42", Email: "a@b.com"})
	require.NoError(t, err)

	other, err := vault.NewWithSecret("secret-B", 1)
	require.NoError(t, err)
	f.svc.vault = other

	_, err = f.svc.Details(ctx, orderID)
	require.ErrorIs(t, err, vault.ErrDecryption)
	assert.Equal(t, errorbank.KindInternal, errorbank.From(err).Kind())
}

func TestService_AttachArchiveURL(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "test-secret")

	orderID, err := f.svc.Create(ctx, CreateInput{ProductID: "42"})
	require.NoError(t, err)

	order, err := f.svc.Get(ctx, orderID)
	require.NoError(t, err)
	assert.False(t, order.Delivered())
	assert.False(t, f.cache.has(CacheKey(orderID)))

	require.NoError(t, f.svc.AttachArchiveURL(ctx, orderID, "https://archive.org/download/item/file.bin"))

	order, err = f.svc.Get(ctx, orderID)
	require.NoError(t, err)
	require.True(t, order.Delivered())
	assert.Equal(t, "https://archive.org/download/item/file.bin", *order.ArchiveURL)
	assert.True(t, f.cache.has(CacheKey(orderID)))

	assert.Equal(t, []string{EventOrderCreated, EventArchiveAttached}, f.pub.types())
}

func TestService_StaleUndeliveredReadIsNotCached(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "test-secret")

	orderID, err := f.svc.Create(ctx, CreateInput{ProductID: "42"})
	require.NoError(t, err)

	// A reader loads the row before the archive url lands and stores it
	// only after AttachArchiveURL has evicted the key.
	stale, err := f.repo.GetByOrderID(ctx, orderID)
	require.NoError(t, err)
	require.NoError(t, f.svc.AttachArchiveURL(ctx, orderID, "https://archive.org/download/item/file.bin"))
	require.NoError(t, f.svc.storeInCache(ctx, stale))

	order, err := f.svc.Get(ctx, orderID)
	require.NoError(t, err)
	assert.True(t, order.Delivered())
}

func TestService_AttachArchiveURLErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "test-secret")

	tests := []struct {
		name    string
		orderID string
		url     string
		kind    errorbank.Kind
	}{
		{name: "missing_order_id", url: "https://a.b/c", kind: errorbank.KindBadRequest},
		{name: "missing_url", orderID: "X", kind: errorbank.KindBadRequest},
		{name: "relative_url", orderID: "X", url: "/download/x", kind: errorbank.KindBadRequest},
		{name: "unknown_order", orderID: "X", url: "https://a.b/c", kind: errorbank.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.svc.AttachArchiveURL(ctx, tt.orderID, tt.url)
			require.Error(t, err)
			assert.Equal(t, tt.kind, errorbank.From(err).Kind())
		})
	}
}

func TestService_UpdateStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "test-secret")

	orderID, err := f.svc.Create(ctx, CreateInput{ProductID: "42"})
	require.NoError(t, err)

	require.NoError(t, f.svc.UpdateStatus(ctx, orderID, entity.OrderStatusDelivered))
	order, err := f.svc.Get(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, entity.OrderStatusDelivered, order.Status)

	err = f.svc.UpdateStatus(ctx, "missing", "PAID")
	assert.Equal(t, errorbank.KindNotFound, errorbank.From(err).Kind())
}

func TestService_GetNotFound(t *testing.T) {
	f := newFixture(t, "test-secret")

	_, err := f.svc.Get(context.Background(), "nope")
	require.Error(t, err)
	assert.Equal(t, errorbank.KindNotFound, errorbank.From(err).Kind())
}
