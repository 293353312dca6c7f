package app

import (
	"go.uber.org/fx"

	"github.com/Additional-Code/vaultshop/internal/archive"
	"github.com/Additional-Code/vaultshop/internal/auth"
	"github.com/Additional-Code/vaultshop/internal/cache"
	"github.com/Additional-Code/vaultshop/internal/config"
	"github.com/Additional-Code/vaultshop/internal/database"
	"github.com/Additional-Code/vaultshop/internal/logger"
	"github.com/Additional-Code/vaultshop/internal/messaging"
	"github.com/Additional-Code/vaultshop/internal/migration"
	"github.com/Additional-Code/vaultshop/internal/observability"
	repositoryorder "github.com/Additional-Code/vaultshop/internal/repository/order"
	grpcserver "github.com/Additional-Code/vaultshop/internal/server/grpc"
	httpserver "github.com/Additional-Code/vaultshop/internal/server/http"
	servicedelivery "github.com/Additional-Code/vaultshop/internal/service/delivery"
	serviceorder "github.com/Additional-Code/vaultshop/internal/service/order"
	transporthttp "github.com/Additional-Code/vaultshop/internal/transport/http"
	"github.com/Additional-Code/vaultshop/internal/vault"
	"github.com/Additional-Code/vaultshop/internal/worker"
	workerorder "github.com/Additional-Code/vaultshop/internal/worker/order"
)

// Core provides the foundational modules shared across executables.
var Core = fx.Options(
	config.Module,
	cache.Module,
	database.Module,
	logger.Module,
	messaging.Module,
	observability.Module,
	vault.Module,
	repositoryorder.Module,
	serviceorder.Module,
)

// HTTP wires the HTTP and gRPC transports on top of the core modules.
var HTTP = fx.Options(
	Core,
	migration.AutoMigrate,
	archive.Module,
	auth.Module,
	servicedelivery.Module,
	httpserver.Module,
	grpcserver.Module,
	transporthttp.Module,
)

// Worker exposes background worker processing.
var Worker = fx.Options(
	Core,
	migration.AutoMigrate,
	worker.Module,
	workerorder.Module,
	// nothing in the worker graph depends on the manager; force it so
	// spans and counters reach the configured exporters.
	fx.Invoke(func(*observability.Manager) {}),
)

// Module is the default application wiring (HTTP and gRPC).
var Module = HTTP
