// Command api runs the HTTP and gRPC servers without the operator CLI.
package main

import (
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/Additional-Code/vaultshop/internal/app"
)

func main() {
	fx.New(
		app.Module,
		fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger.Named("fx")}
		}),
	).Run()
}
