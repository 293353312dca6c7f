package delivery

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/vaultshop/internal/archive"
	"github.com/Additional-Code/vaultshop/internal/config"
	ordersvc "github.com/Additional-Code/vaultshop/internal/service/order"
	"github.com/Additional-Code/vaultshop/internal/vault"
	"github.com/Additional-Code/vaultshop/pkg/errorbank"
)

var (
	serviceTracer = otel.Tracer("github.com/Additional-Code/vaultshop/service/delivery")
	serviceMeter  = otel.Meter("github.com/Additional-Code/vaultshop/service/delivery")
)

var (
	// ErrForbidden covers both unknown orders and orders without an archived
	// file so callers cannot probe for order existence.
	ErrForbidden = errors.New("delivery: invalid or expired link")
	// ErrUpstreamUnavailable is returned when cold storage does not serve the file.
	ErrUpstreamUnavailable = errors.New("delivery: file not available")
)

// Download outcomes recorded on the downloads counter.
const (
	OutcomeOK                  = "ok"
	OutcomeForbidden           = "forbidden"
	OutcomeUpstreamUnavailable = "upstream_unavailable"
	OutcomeDecryptFailed       = "decrypt_failed"
)

// Service moves purchased files in and out of encrypted cold storage.
type Service struct {
	orders          *ordersvc.Service
	vault           *vault.Vault
	archive         *archive.Client
	logger          *zap.Logger
	delivery        config.Delivery
	defaultFilename string
	uploads         metric.Int64Counter
	downloads       metric.Int64Counter
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Orders  *ordersvc.Service
	Vault   *vault.Vault
	Archive *archive.Client
	Config  config.Config
	Logger  *zap.Logger
}

// NewService wires a new delivery Service.
func NewService(p Params) (*Service, error) {
	uploads, err := serviceMeter.Int64Counter("vaultshop.archive.uploads",
		metric.WithDescription("Encrypted uploads to cold storage"))
	if err != nil {
		return nil, err
	}
	downloads, err := serviceMeter.Int64Counter("vaultshop.downloads",
		metric.WithDescription("Secure download requests by outcome"))
	if err != nil {
		return nil, err
	}

	return &Service{
		orders:          p.Orders,
		vault:           p.Vault,
		archive:         p.Archive,
		logger:          p.Logger,
		delivery:        p.Config.Delivery,
		defaultFilename: p.Config.Archive.DefaultFilename,
		uploads:         uploads,
		downloads:       downloads,
	}, nil
}

// UploadInput is a validated file upload for an order.
type UploadInput struct {
	OrderID  string
	ItemID   string
	Filename string
	Body     []byte
}

// Upload encrypts the file, stores it in cold storage and attaches the
// public URL to the order. The order is only updated after the store
// confirms the write; a failed attach leaves an orphaned remote object.
func (s *Service) Upload(ctx context.Context, in UploadInput) (string, error) {
	in.OrderID = strings.TrimSpace(in.OrderID)
	in.ItemID = strings.TrimSpace(in.ItemID)
	in.Filename = strings.TrimSpace(in.Filename)
	if in.OrderID == "" || in.ItemID == "" {
		return "", errorbank.BadRequest("orderId / itemId missing")
	}
	if in.Filename == "" {
		in.Filename = s.defaultFilename
	}
	if len(in.Body) == 0 {
		return "", errorbank.BadRequest("empty file body", errorbank.WithCause(archive.ErrEmptyPayload))
	}
	if !s.archive.Configured() {
		return "", errorbank.Internal("archive keys missing", errorbank.WithCause(archive.ErrMissingCredentials))
	}

	ctx, span := serviceTracer.Start(ctx, "DeliveryService.Upload", trace.WithAttributes(
		attribute.String("order.id", in.OrderID),
		attribute.String("archive.item_id", in.ItemID),
		attribute.Int("upload.size", len(in.Body)),
	))
	defer span.End()

	sealed, err := s.vault.EncryptStream(in.Body)
	if err != nil {
		s.recordUpload(ctx, "encrypt_failed")
		span.RecordError(err)
		span.SetStatus(codes.Error, "encrypt failed")
		s.logger.Error("file encryption failed", zap.String("order_id", in.OrderID), zap.Error(err))
		return "", vault.AppError(err)
	}

	publicURL, err := s.archive.Put(ctx, in.ItemID, in.Filename, sealed)
	if err != nil {
		s.recordUpload(ctx, "rejected")
		span.RecordError(err)
		span.SetStatus(codes.Error, "upload failed")
		var uploadErr *archive.UploadError
		if errors.As(err, &uploadErr) {
			s.logger.Warn("archive upload rejected",
				zap.String("order_id", in.OrderID),
				zap.Int("upstream_status", uploadErr.StatusCode),
			)
			return "", errorbank.BadGateway("archive upload failed",
				errorbank.WithCause(err),
				errorbank.WithDetail("upstream_status", uploadErr.StatusCode),
			)
		}
		s.logger.Warn("archive upload failed", zap.String("order_id", in.OrderID), zap.Error(err))
		return "", errorbank.BadGateway("archive upload failed", errorbank.WithCause(err))
	}

	if err := s.orders.AttachArchiveURL(ctx, in.OrderID, publicURL); err != nil {
		s.recordUpload(ctx, "orphaned")
		span.RecordError(err)
		span.SetStatus(codes.Error, "attach failed")
		s.logger.Error("uploaded object is orphaned",
			zap.String("order_id", in.OrderID),
			zap.String("archive_url", publicURL),
			zap.Error(err),
		)
		return "", err
	}

	s.recordUpload(ctx, "ok")
	s.logger.Info("encrypted file archived", zap.String("order_id", in.OrderID), zap.String("archive_url", publicURL))
	return publicURL, nil
}

// Download is a decrypted file ready to be streamed to the client.
type Download struct {
	Body        []byte
	ContentType string
	Filename    string
}

// FetchDecrypted resolves the order, fetches its encrypted file and
// decrypts it. Knowing the order id is the only authorization.
func (s *Service) FetchDecrypted(ctx context.Context, orderID string) (*Download, error) {
	ctx, span := serviceTracer.Start(ctx, "DeliveryService.FetchDecrypted", trace.WithAttributes(attribute.String("order.id", orderID)))
	defer span.End()

	if !s.vault.Configured() {
		return nil, vault.AppError(vault.ErrMissingSecret)
	}

	// LOOKUP
	order, err := s.orders.Get(ctx, strings.TrimSpace(orderID))
	if err != nil {
		if errorbank.From(err).Kind() != errorbank.KindNotFound {
			span.RecordError(err)
			return nil, err
		}
		order = nil
	}
	if !order.Delivered() {
		s.recordDownload(ctx, OutcomeForbidden)
		span.SetStatus(codes.Error, OutcomeForbidden)
		return nil, errorbank.Forbidden("Invalid or expired link", errorbank.WithCause(ErrForbidden))
	}

	// FETCH_REMOTE
	encrypted, err := s.archive.Fetch(ctx, *order.ArchiveURL)
	if err != nil {
		s.recordDownload(ctx, OutcomeUpstreamUnavailable)
		span.RecordError(err)
		span.SetStatus(codes.Error, OutcomeUpstreamUnavailable)
		s.logger.Warn("archived file unavailable", zap.String("order_id", order.OrderID), zap.Error(err))
		return nil, errorbank.BadGateway("File not available", errorbank.WithCause(errors.Join(ErrUpstreamUnavailable, err)))
	}

	// DECRYPT
	plain, err := s.vault.DecryptStream(encrypted)
	if err != nil {
		s.recordDownload(ctx, OutcomeDecryptFailed)
		span.RecordError(err)
		span.SetStatus(codes.Error, OutcomeDecryptFailed)
		s.logger.Error("archived file failed decryption", zap.String("order_id", order.OrderID), zap.Error(err))
		return nil, vault.AppError(err)
	}

	// STREAM
	s.recordDownload(ctx, OutcomeOK)
	return &Download{
		Body:        plain,
		ContentType: s.delivery.ContentType,
		Filename:    s.delivery.Filename,
	}, nil
}

func (s *Service) recordUpload(ctx context.Context, outcome string) {
	s.uploads.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (s *Service) recordDownload(ctx context.Context, outcome string) {
	s.downloads.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
