package webhook

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	service "github.com/Additional-Code/vaultshop/internal/service/order"
	"github.com/Additional-Code/vaultshop/internal/webhook"
)

const maxWebhookBody = 1 << 20

var httpTracer = otel.Tracer("github.com/Additional-Code/vaultshop/transport/http/webhook")

// Handler receives payment provider webhooks.
type Handler struct {
	svc      *service.Service
	verifier *webhook.Verifier
	logger   *zap.Logger
}

// NewHandler constructs a webhook Handler.
func NewHandler(svc *service.Service, verifier *webhook.Verifier, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, verifier: verifier, logger: logger}
}

// Register routes with provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	e.POST("/api/webhooks/payment", h.payment)
}

type event struct {
	Type string `json:"type"`
	Data struct {
		OrderID string `json:"orderId"`
		Status  string `json:"status"`
	} `json:"data"`
}

// payment always acknowledges with 200 so the verification result is
// never revealed to the caller.
func (h *Handler) payment(c echo.Context) error {
	ctx, span := httpTracer.Start(c.Request().Context(), "webhooks.payment")
	defer span.End()

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		h.logger.Warn("webhook body read failed", zap.Error(err))
		return c.String(http.StatusOK, "OK")
	}

	req := c.Request()
	verifyErr := h.verifier.Verify(req.Header.Get(webhook.HeaderSignature), req.Header.Get(webhook.HeaderTimestamp), body)
	span.SetAttributes(attribute.Bool("webhook.verified", verifyErr == nil))

	var evt event
	if len(body) > 0 {
		if err := json.Unmarshal(body, &evt); err != nil {
			h.logger.Warn("webhook body is not JSON", zap.Error(err))
		}
	}

	h.logger.Info("payment webhook received",
		zap.Bool("verified", verifyErr == nil),
		zap.String("type", evt.Type),
		zap.String("order_id", evt.Data.OrderID),
	)

	if verifyErr != nil {
		h.logger.Warn("payment webhook rejected", zap.Error(verifyErr))
		return c.String(http.StatusOK, "OK")
	}
	if evt.Data.OrderID == "" || evt.Data.Status == "" {
		return c.String(http.StatusOK, "OK")
	}

	if err := h.svc.UpdateStatus(ctx, evt.Data.OrderID, evt.Data.Status); err != nil {
		span.RecordError(err)
		h.logger.Warn("payment webhook status update failed",
			zap.String("order_id", evt.Data.OrderID),
			zap.String("status", evt.Data.Status),
			zap.Error(err),
		)
	}
	return c.String(http.StatusOK, "OK")
}
