package delivery

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Additional-Code/vaultshop/internal/config"
	"github.com/Additional-Code/vaultshop/internal/presentation/http/response"
	service "github.com/Additional-Code/vaultshop/internal/service/delivery"
	"github.com/Additional-Code/vaultshop/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/Additional-Code/vaultshop/transport/http/delivery")

// Handler exposes encrypted upload and secure download endpoints.
type Handler struct {
	svc            *service.Service
	maxUploadBytes int64
}

// NewHandler constructs a delivery Handler.
func NewHandler(svc *service.Service, cfg config.Config) *Handler {
	return &Handler{svc: svc, maxUploadBytes: cfg.HTTP.MaxUploadBytes}
}

// Register routes with provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	e.POST("/api/order/upload-encrypted-file", h.upload)
	e.GET("/download/:orderId", h.download)
	// an empty id fails the lookup like any unknown order
	e.GET("/download/", h.download)
}

func (h *Handler) upload(c echo.Context) error {
	b := response.New(c)

	body, err := io.ReadAll(http.MaxBytesReader(c.Response(), c.Request().Body, h.maxUploadBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return b.WithError(errorbank.PayloadTooLarge("file body too large", errorbank.WithDetail("limit", h.maxUploadBytes))).Build()
		}
		return b.WithError(errorbank.BadRequest("failed to read file body", errorbank.WithCause(err))).Build()
	}

	in := service.UploadInput{
		OrderID:  c.QueryParam("orderId"),
		ItemID:   c.QueryParam("itemId"),
		Filename: c.QueryParam("filename"),
		Body:     body,
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "delivery.upload")
	span.SetAttributes(attribute.String("order.id", in.OrderID), attribute.Int("upload.size", len(body)))
	defer span.End()

	archiveURL, err := h.svc.Upload(ctx, in)
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithFields(map[string]any{"archiveUrl": archiveURL}).Build()
}

func (h *Handler) download(c echo.Context) error {
	orderID := c.Param("orderId")

	ctx, span := httpTracer.Start(c.Request().Context(), "delivery.download")
	span.SetAttributes(attribute.String("order.id", orderID))
	defer span.End()

	dl, err := h.svc.FetchDecrypted(ctx, orderID)
	if err != nil {
		appErr := errorbank.From(err)
		switch appErr.Kind() {
		case errorbank.KindForbidden, errorbank.KindBadGateway:
			return c.String(appErr.StatusCode(), appErr.Message())
		default:
			return response.New(c).WithError(err).Build()
		}
	}

	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", dl.Filename))
	return c.Blob(http.StatusOK, dl.ContentType, dl.Body)
}
