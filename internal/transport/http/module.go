package http

import (
	"go.uber.org/fx"

	admintransport "github.com/Additional-Code/vaultshop/internal/transport/http/admin"
	deliverytransport "github.com/Additional-Code/vaultshop/internal/transport/http/delivery"
	ordertransport "github.com/Additional-Code/vaultshop/internal/transport/http/order"
	webhooktransport "github.com/Additional-Code/vaultshop/internal/transport/http/webhook"
)

// Module aggregates all HTTP transport handlers.
var Module = fx.Options(
	ordertransport.Module,
	deliverytransport.Module,
	admintransport.Module,
	webhooktransport.Module,
)
