package admin

import (
	"encoding/json"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/Additional-Code/vaultshop/internal/auth"
	"github.com/Additional-Code/vaultshop/internal/dto"
	"github.com/Additional-Code/vaultshop/internal/presentation/http/response"
	service "github.com/Additional-Code/vaultshop/internal/service/order"
	"github.com/Additional-Code/vaultshop/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/Additional-Code/vaultshop/transport/http/admin")

// Handler exposes operator endpoints behind admin bearer tokens.
type Handler struct {
	svc    *service.Service
	logger *zap.Logger
}

// NewHandler constructs an admin Handler.
func NewHandler(svc *service.Service, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Register routes with provided Echo instance.
func Register(e *echo.Echo, h *Handler, issuer *auth.Issuer) {
	g := e.Group("/api/admin", auth.RequireAdmin(issuer))
	g.GET("/orders/:orderId", h.show)
	g.POST("/orders/:orderId/status", h.updateStatus)
}

func (h *Handler) show(c echo.Context) error {
	b := response.New(c)
	orderID := c.Param("orderId")

	ctx, span := httpTracer.Start(c.Request().Context(), "admin.orders.show")
	span.SetAttributes(attribute.String("order.id", orderID))
	defer span.End()

	details, err := h.svc.Details(ctx, orderID)
	if err != nil {
		return b.WithError(err).Build()
	}

	if p, ok := auth.FromContext(c); ok {
		h.logger.Info("admin viewed order", zap.String("order_id", orderID), zap.String("subject", p.Subject))
	}

	return b.WithData(dto.NewOrderDetailsResponse(details.Order, details.Payload)).Build()
}

func (h *Handler) updateStatus(c echo.Context) error {
	b := response.New(c)
	orderID := c.Param("orderId")

	var payload struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(c.Request().Body).Decode(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "admin.orders.updateStatus")
	span.SetAttributes(attribute.String("order.id", orderID), attribute.String("order.status", payload.Status))
	defer span.End()

	if err := h.svc.UpdateStatus(ctx, orderID, payload.Status); err != nil {
		return b.WithError(err).Build()
	}

	order, err := h.svc.Get(ctx, orderID)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.NewOrderResponse(order)).Build()
}
