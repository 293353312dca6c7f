package order

import (
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Additional-Code/vaultshop/internal/presentation/http/response"
	service "github.com/Additional-Code/vaultshop/internal/service/order"
	"github.com/Additional-Code/vaultshop/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/Additional-Code/vaultshop/transport/http/order")

// Handler exposes order endpoints over HTTP.
type Handler struct {
	svc *service.Service
}

// NewHandler constructs an order Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register routes with provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	e.POST("/api/order/create", h.create)
	e.POST("/submit-order", h.create)
	e.POST("/api/order/archive-link", h.archiveLink)
}

func (h *Handler) create(c echo.Context) error {
	b := response.New(c)

	in, err := decodeCreate(c.Request().Body)
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.create")
	span.SetAttributes(attribute.String("order.product_id", in.ProductID))
	defer span.End()

	orderID, err := h.svc.Create(ctx, in)
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithFields(map[string]any{"orderId": orderID}).Build()
}

func (h *Handler) archiveLink(c echo.Context) error {
	b := response.New(c)

	var payload struct {
		OrderID    string `json:"orderId"`
		ArchiveURL string `json:"archiveUrl"`
	}
	if err := json.NewDecoder(c.Request().Body).Decode(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}
	if payload.OrderID == "" || payload.ArchiveURL == "" {
		return b.WithError(errorbank.BadRequest("orderId / archiveUrl missing")).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.archiveLink")
	span.SetAttributes(attribute.String("order.id", payload.OrderID))
	defer span.End()

	if err := h.svc.AttachArchiveURL(ctx, payload.OrderID, payload.ArchiveURL); err != nil {
		return b.WithError(err).Build()
	}

	return b.WithStatus(http.StatusOK).WithFields(map[string]any{}).Build()
}
