package order

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/vaultshop/internal/database"
	"github.com/Additional-Code/vaultshop/internal/entity"
)

var repoTracer = otel.Tracer("github.com/Additional-Code/vaultshop/repository/order")

// ErrNotFound is returned when an order is missing.
var ErrNotFound = errors.New("order not found")

// Repository encapsulates read/write access for orders.
type Repository struct {
	writer *bun.DB
	reader *bun.DB
}

// NewRepository wires a repository backed by configured database connections.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{
		writer: conns.Writer,
		reader: conns.Reader,
	}
}

// Upsert inserts the order or, when order_id already exists, replaces its
// product id and encrypted payload. Status, archive_url and created_at of an
// existing row are left untouched.
func (r *Repository) Upsert(ctx context.Context, order *entity.Order) error {
	if order == nil {
		return errors.New("nil order")
	}
	if order.EncryptedData == "" || order.IV == "" {
		return errors.New("encrypted payload and iv must be written together")
	}
	ctx, span := repoTracer.Start(ctx, "OrderRepository.Upsert", trace.WithAttributes(attribute.String("order.id", order.OrderID)))
	defer span.End()

	now := time.Now().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now
	if order.Status == "" {
		order.Status = entity.OrderStatusPending
	}

	q := r.writer.NewInsert().Model(order)
	if r.writer.Dialect().Name() == dialect.MySQL {
		q = q.On("DUPLICATE KEY UPDATE").
			Set("product_id = VALUES(product_id)").
			Set("encrypted_data = VALUES(encrypted_data)").
			Set("iv = VALUES(iv)").
			Set("updated_at = VALUES(updated_at)")
	} else {
		q = q.On("CONFLICT (order_id) DO UPDATE").
			Set("product_id = EXCLUDED.product_id").
			Set("encrypted_data = EXCLUDED.encrypted_data").
			Set("iv = EXCLUDED.iv").
			Set("updated_at = EXCLUDED.updated_at")
	}

	if _, err := q.Exec(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upsert failed")
		return err
	}
	return nil
}

// AttachArchiveURL records where the encrypted file lives in cold storage.
// It returns ErrNotFound when no order matches.
func (r *Repository) AttachArchiveURL(ctx context.Context, orderID, url string) error {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.AttachArchiveURL", trace.WithAttributes(attribute.String("order.id", orderID)))
	defer span.End()

	return r.updateColumn(ctx, span, orderID, "archive_url", url)
}

// UpdateStatus sets the free-form status of an order.
func (r *Repository) UpdateStatus(ctx context.Context, orderID, status string) error {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.UpdateStatus", trace.WithAttributes(
		attribute.String("order.id", orderID),
		attribute.String("order.status", status),
	))
	defer span.End()

	return r.updateColumn(ctx, span, orderID, "status", status)
}

func (r *Repository) updateColumn(ctx context.Context, span trace.Span, orderID, column, value string) error {
	res, err := r.writer.NewUpdate().
		Model((*entity.Order)(nil)).
		Set("? = ?", bun.Ident(column), value).
		Set("updated_at = ?", time.Now().UTC()).
		Where("order_id = ?", orderID).
		Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		span.RecordError(err)
		return err
	}
	if affected == 0 {
		span.SetStatus(codes.Error, "not found")
		return ErrNotFound
	}
	return nil
}

// GetByOrderID fetches an order using the read replica when available.
func (r *Repository) GetByOrderID(ctx context.Context, orderID string) (*entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.GetByOrderID", trace.WithAttributes(attribute.String("order.id", orderID)))
	defer span.End()

	order := new(entity.Order)
	err := r.reader.NewSelect().Model(order).Where("order_id = ?", orderID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(codes.Error, "not found")
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return order, nil
}
