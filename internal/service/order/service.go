package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/vaultshop/internal/cache"
	"github.com/Additional-Code/vaultshop/internal/config"
	"github.com/Additional-Code/vaultshop/internal/entity"
	"github.com/Additional-Code/vaultshop/internal/messaging"
	repo "github.com/Additional-Code/vaultshop/internal/repository/order"
	"github.com/Additional-Code/vaultshop/internal/vault"
	"github.com/Additional-Code/vaultshop/pkg/errorbank"
)

var (
	serviceTracer = otel.Tracer("github.com/Additional-Code/vaultshop/service/order")
	serviceMeter  = otel.Meter("github.com/Additional-Code/vaultshop/service/order")
)

// Service encapsulates business logic around encrypted orders.
type Service struct {
	repo      *repo.Repository
	vault     *vault.Vault
	cache     cache.Store
	cacheTTL  time.Duration
	logger    *zap.Logger
	publisher messaging.Client
	messaging messagingConfig
	created   metric.Int64Counter
	failures  metric.Int64Counter
}

// messagingConfig contains messaging specific knobs we care about.
type messagingConfig struct {
	enabled bool
	topic   string
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Repository *repo.Repository
	Vault      *vault.Vault
	Cache      cache.Store
	Config     config.Config
	Logger     *zap.Logger
	Publisher  messaging.Client
}

// NewService wires a new Service instance.
func NewService(p Params) (*Service, error) {
	created, err := serviceMeter.Int64Counter("vaultshop.orders.created",
		metric.WithDescription("Encrypted orders written"))
	if err != nil {
		return nil, err
	}
	failures, err := serviceMeter.Int64Counter("vaultshop.crypto.failures",
		metric.WithDescription("Payload encryption or decryption failures"))
	if err != nil {
		return nil, err
	}

	return &Service{
		repo:      p.Repository,
		vault:     p.Vault,
		cache:     p.Cache,
		cacheTTL:  p.Config.Cache.DefaultTTL,
		logger:    p.Logger,
		publisher: p.Publisher,
		messaging: messagingConfig{
			enabled: p.Config.Messaging.Enabled,
			topic:   p.Config.Messaging.Kafka.Topic,
		},
		created:  created,
		failures: failures,
	}, nil
}

// CreateInput is a normalized order creation request.
type CreateInput struct {
	OrderID   string
	ProductID string
	Email     string
	Amount    json.Number
	Addons    json.RawMessage
}

// Details is an order together with its decrypted payload.
type Details struct {
	Order   *entity.Order
	Payload entity.OrderPayload
}

// Create encrypts the sensitive payload and upserts the order. A random
// order id is generated when the caller does not supply one.
func (s *Service) Create(ctx context.Context, in CreateInput) (string, error) {
	in.ProductID = strings.TrimSpace(in.ProductID)
	in.OrderID = strings.TrimSpace(in.OrderID)
	if in.ProductID == "" {
		return "", errorbank.BadRequest("productId missing for order")
	}
	if in.OrderID == "" {
		in.OrderID = uuid.NewString()
	}

	ctx, span := serviceTracer.Start(ctx, "OrderService.Create", trace.WithAttributes(
		attribute.String("order.id", in.OrderID),
		attribute.String("order.product_id", in.ProductID),
	))
	defer span.End()

	addons := in.Addons
	if len(addons) == 0 {
		addons = json.RawMessage("null")
	}
	plaintext, err := json.Marshal(entity.OrderPayload{
		Email:     in.Email,
		Amount:    in.Amount,
		ProductID: in.ProductID,
		Status:    entity.OrderStatusPaid,
		Addons:    addons,
	})
	if err != nil {
		return "", errorbank.BadRequest("invalid order payload", errorbank.WithCause(err))
	}

	sealed, err := s.vault.EncryptPayload(string(plaintext))
	if err != nil {
		s.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("op", "encrypt_payload")))
		span.RecordError(err)
		span.SetStatus(codes.Error, "encrypt failed")
		s.logger.Error("order payload encryption failed", zap.String("order_id", in.OrderID), zap.Error(err))
		return "", vault.AppError(err)
	}

	order := &entity.Order{
		OrderID:       in.OrderID,
		ProductID:     in.ProductID,
		EncryptedData: sealed.Ciphertext,
		IV:            sealed.Nonce,
		Status:        entity.OrderStatusPaid,
	}
	if err := s.repo.Upsert(ctx, order); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return "", errorbank.Internal("failed to save order", errorbank.WithCause(err))
	}

	s.created.Add(ctx, 1)
	s.evict(ctx, order.OrderID)
	s.publish(ctx, EventOrderCreated, order)

	return order.OrderID, nil
}

// AttachArchiveURL records the cold storage location of an order's
// encrypted file. Unknown orders yield a not found error, which is logged.
func (s *Service) AttachArchiveURL(ctx context.Context, orderID, archiveURL string) error {
	orderID = strings.TrimSpace(orderID)
	archiveURL = strings.TrimSpace(archiveURL)
	if orderID == "" || archiveURL == "" {
		return errorbank.BadRequest("orderId / archiveUrl missing")
	}
	if u, err := url.Parse(archiveURL); err != nil || !u.IsAbs() || u.Host == "" {
		return errorbank.BadRequest("archiveUrl must be an absolute URL")
	}

	ctx, span := serviceTracer.Start(ctx, "OrderService.AttachArchiveURL", trace.WithAttributes(attribute.String("order.id", orderID)))
	defer span.End()

	if err := s.repo.AttachArchiveURL(ctx, orderID, archiveURL); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			s.logger.Warn("archive url for unknown order", zap.String("order_id", orderID))
			return errorbank.NotFound("order not found")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return errorbank.Internal("failed to attach archive url", errorbank.WithCause(err))
	}

	s.evict(ctx, orderID)
	s.publish(ctx, EventArchiveAttached, &entity.Order{OrderID: orderID})
	return nil
}

// UpdateStatus applies an externally driven status transition.
func (s *Service) UpdateStatus(ctx context.Context, orderID, status string) error {
	orderID = strings.TrimSpace(orderID)
	status = strings.TrimSpace(status)
	if orderID == "" || status == "" {
		return errorbank.BadRequest("orderId / status missing")
	}

	ctx, span := serviceTracer.Start(ctx, "OrderService.UpdateStatus", trace.WithAttributes(
		attribute.String("order.id", orderID),
		attribute.String("order.status", status),
	))
	defer span.End()

	if err := s.repo.UpdateStatus(ctx, orderID, status); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return errorbank.NotFound("order not found")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return errorbank.Internal("failed to update order status", errorbank.WithCause(err))
	}

	s.evict(ctx, orderID)
	s.publish(ctx, EventStatusChanged, &entity.Order{OrderID: orderID, Status: status})
	return nil
}

// Get retrieves an order by id, consulting cache when available. Only the
// encrypted row of a delivered order is ever cached.
func (s *Service) Get(ctx context.Context, orderID string) (*entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.Get", trace.WithAttributes(attribute.String("order.id", orderID)))
	defer span.End()

	if order, err := s.getFromCache(ctx, orderID); err == nil {
		return order, nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn("orders cache read failed", zap.String("order_id", orderID), zap.Error(err))
	}

	order, err := s.repo.GetByOrderID(ctx, orderID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, errorbank.NotFound("order not found")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to load order", errorbank.WithCause(err))
	}

	if err := s.storeInCache(ctx, order); err != nil {
		s.logger.Warn("orders cache write failed", zap.String("order_id", orderID), zap.Error(err))
	}

	return order, nil
}

// Details loads an order and decrypts its sensitive payload. Decryption
// failures abort the call; there is no plaintext fallback.
func (s *Service) Details(ctx context.Context, orderID string) (*Details, error) {
	order, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}

	ctx, span := serviceTracer.Start(ctx, "OrderService.Details", trace.WithAttributes(attribute.String("order.id", orderID)))
	defer span.End()

	plaintext, err := s.vault.DecryptPayload(vault.Sealed{Ciphertext: order.EncryptedData, Nonce: order.IV})
	if err != nil {
		s.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("op", "decrypt_payload")))
		span.RecordError(err)
		span.SetStatus(codes.Error, "decrypt failed")
		s.logger.Error("order payload decryption failed", zap.String("order_id", orderID), zap.Error(err))
		return nil, vault.AppError(err)
	}

	var payload entity.OrderPayload
	if err := json.Unmarshal([]byte(plaintext), &payload); err != nil {
		span.RecordError(err)
		return nil, errorbank.Internal("stored payload is not valid JSON", errorbank.WithCause(err))
	}

	return &Details{Order: order, Payload: payload}, nil
}

func (s *Service) publish(ctx context.Context, eventType string, order *entity.Order) {
	if !s.messaging.enabled || s.publisher == nil {
		return
	}
	event := Event{
		Type:       eventType,
		OrderID:    order.OrderID,
		ProductID:  order.ProductID,
		Status:     order.Status,
		OccurredAt: time.Now().UTC(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("marshal order event", zap.String("type", eventType), zap.Error(err))
		return
	}
	if err := s.publisher.Publish(ctx, []byte(order.OrderID), payload); err != nil {
		s.logger.Error("publish order event", zap.String("type", eventType), zap.Error(err))
	}
}

// CacheKey is the cache key of an order row.
func CacheKey(orderID string) string {
	return fmt.Sprintf("orders:%s", orderID)
}

func (s *Service) evict(ctx context.Context, orderID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, CacheKey(orderID)); err != nil {
		s.logger.Warn("orders cache evict failed", zap.String("order_id", orderID), zap.Error(err))
	}
}

func (s *Service) getFromCache(ctx context.Context, orderID string) (*entity.Order, error) {
	if s.cache == nil {
		return nil, cache.ErrCacheMiss
	}
	bytes, err := s.cache.Get(ctx, CacheKey(orderID))
	if err != nil {
		return nil, err
	}
	var order entity.Order
	if err := json.Unmarshal(bytes, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// storeInCache skips undelivered rows: a read racing AttachArchiveURL could
// otherwise cache the row after the eviction and keep downloads forbidden
// until the entry expires.
func (s *Service) storeInCache(ctx context.Context, order *entity.Order) error {
	if s.cache == nil || !order.Delivered() {
		return nil
	}
	bytes, err := json.Marshal(order)
	if err != nil {
		return err
	}
	return s.cache.Set(ctx, CacheKey(order.OrderID), bytes, s.cacheTTL)
}
