package migrations

import (
	"context"

	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"

	"ticket-inventory/internal/store"
)

// Inventory tables live beside the pocketbase collections as plain tables so
// the capacity checks can run as single conditional statements.
func init() {
	m.Register(func(app core.App) error {
		return store.Migrate(context.Background(), app.DB())
	}, func(app core.App) error {
		return store.Rollback(context.Background(), app.DB())
	})
}
