package order

import (
	"context"
	"encoding/json"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/vaultshop/internal/cache"
	"github.com/Additional-Code/vaultshop/internal/config"
	"github.com/Additional-Code/vaultshop/internal/messaging"
	ordersvc "github.com/Additional-Code/vaultshop/internal/service/order"
	"github.com/Additional-Code/vaultshop/internal/worker"
)

var (
	workerTracer = otel.Tracer("github.com/Additional-Code/vaultshop/worker/order")
	workerMeter  = otel.Meter("github.com/Additional-Code/vaultshop/worker/order")
)

// Module registers order-related worker handlers.
var Module = fx.Module("worker_order",
	fx.Provide(
		fx.Annotate(
			NewEventHandler,
			fx.ResultTags(`group:"worker.handlers"`),
		),
	),
)

// NewEventHandler consumes order lifecycle events. Each event drops the
// cached row so replicas with their own cache converge on the database.
func NewEventHandler(logger *zap.Logger, cfg config.Config, store cache.Store) (worker.HandlerRegistration, error) {
	processed, err := workerMeter.Int64Counter("vaultshop.events.processed",
		metric.WithDescription("Order events consumed by the worker"))
	if err != nil {
		return worker.HandlerRegistration{}, err
	}

	handler := func(ctx context.Context, msg messaging.Message) error {
		ctx, span := workerTracer.Start(ctx, "worker.orders.process", trace.WithAttributes(
			attribute.String("messaging.topic", msg.Topic),
		))
		defer span.End()

		var event ordersvc.Event
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			logger.Error("failed to decode order event", zap.Error(err))

			span.RecordError(err)
			span.SetStatus(codes.Error, "decode error")
			return err
		}
		span.SetAttributes(attribute.String("order.id", event.OrderID), attribute.String("event.type", event.Type))

		switch event.Type {
		case ordersvc.EventOrderCreated, ordersvc.EventArchiveAttached, ordersvc.EventStatusChanged:
		default:
			logger.Warn("unknown order event", zap.String("type", event.Type), zap.String("order_id", event.OrderID))
			return nil
		}

		if event.OrderID != "" && store != nil {
			if err := store.Delete(ctx, ordersvc.CacheKey(event.OrderID)); err != nil {
				logger.Warn("order cache invalidation failed", zap.String("order_id", event.OrderID), zap.Error(err))
			}
		}

		processed.Add(ctx, 1, metric.WithAttributes(attribute.String("type", event.Type)))
		logger.Info("order event processed",
			zap.String("type", event.Type),
			zap.String("order_id", event.OrderID),
			zap.String("status", event.Status),
			zap.Time("occurred_at", event.OccurredAt),
		)

		return nil
	}

	return worker.HandlerRegistration{
		Topic:   cfg.Messaging.Kafka.Topic,
		Handler: handler,
	}, nil
}
