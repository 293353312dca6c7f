package webhook

import (
	"go.uber.org/fx"

	"github.com/Additional-Code/vaultshop/internal/webhook"
)

// Module wires the payment webhook endpoint.
var Module = fx.Options(
	fx.Provide(webhook.NewVerifier, NewHandler),
	fx.Invoke(Register),
)
