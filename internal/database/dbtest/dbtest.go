// Package dbtest opens migrated in-memory SQLite databases for tests.
package dbtest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Additional-Code/vaultshop/internal/config"
	"github.com/Additional-Code/vaultshop/internal/database"
	"github.com/Additional-Code/vaultshop/internal/migration"
)

// Open returns connections to a fresh, fully migrated SQLite database that
// is closed when the test ends.
func Open(t testing.TB) *database.Connections {
	t.Helper()

	conns, err := database.Open(config.Database{
		Driver:    "sqlite",
		WriterDSN: "file::memory:",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conns.Close() })

	mig, err := migration.NewForDB("sqlite", conns.Writer, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, mig.Up(context.Background()))

	return conns
}
