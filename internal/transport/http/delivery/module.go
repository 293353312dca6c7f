package delivery

import "go.uber.org/fx"

// Module wires HTTP upload and download handlers.
var Module = fx.Options(
	fx.Provide(NewHandler),
	fx.Invoke(Register),
)
