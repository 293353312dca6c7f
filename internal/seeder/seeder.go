package seeder

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"

	ordersvc "github.com/Additional-Code/vaultshop/internal/service/order"
)

// Module provides the Seeder to Fx.
var Module = fx.Provide(New)

// Seeder performs database seeding for local/dev setups.
type Seeder struct {
	orders *ordersvc.Service
	logger *zap.Logger
}

// New constructs a Seeder that writes through the order service, so demo
// rows are encrypted exactly like real ones.
func New(orders *ordersvc.Service, logger *zap.Logger) *Seeder {
	return &Seeder{orders: orders, logger: logger}
}

// Samples are the demo orders written by Orders.
func Samples() []ordersvc.CreateInput {
	return []ordersvc.CreateInput{
		{
			OrderID:   "DEMO-1000",
			ProductID: "1",
			Email:     "buyer@example.com",
			Amount:    json.Number("19.99"),
		},
		{
			OrderID:   "DEMO-1001",
			ProductID: "2",
			Email:     "fan@example.com",
			Amount:    json.Number("49"),
			Addons:    json.RawMessage(`[{"field":"message","value":"Happy birthday"}]`),
		},
	}
}

// Orders seeds the demo orders. Re-running replaces their payloads.
func (s *Seeder) Orders(ctx context.Context) error {
	samples := Samples()
	for _, sample := range samples {
		if _, err := s.orders.Create(ctx, sample); err != nil {
			return fmt.Errorf("seed order %s: %w", sample.OrderID, err)
		}
	}

	if s.logger != nil {
		s.logger.Info("seeded orders", zap.Int("count", len(samples)))
	}
	return nil
}
