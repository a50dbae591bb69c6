// Package dbtest opens isolated in-memory databases with the lead schema.
package dbtest

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/ecolote/leadengine/pkg/config"
	"github.com/ecolote/leadengine/pkg/db"
	"github.com/ecolote/leadengine/pkg/db/models"
)

// Open returns a client on a fresh shared-cache sqlite database. The pool is
// capped at one connection, so concurrent callers are serialized by the driver.
func Open(t testing.TB) *db.Client {
	t.Helper()
	cfg := config.DBConfig{
		Driver: config.DBDriverSQLite,
		DSN:    "file:leadengine_" + uuid.NewString() + "?mode=memory&cache=shared&_busy_timeout=5000",
	}
	client, err := db.New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := client.DB().AutoMigrate(&models.Lead{}, &models.LeadStatusHistory{}); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}
