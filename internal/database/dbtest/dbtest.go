// Package dbtest builds in-memory SQLite databases carrying the full schema.
package dbtest

import (
	"context"
	"database/sql"
	"testing"

	"pcapi/internal/models"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/uptrace/bun/driver/sqliteshim"
)

// New returns a fresh database; it is closed when the test ends.
func New(t testing.TB) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to connect to in-memory database: %v", err)
	}
	// one connection keeps every query on the same in-memory database
	sqldb.SetMaxOpenConns(1)
	sqldb.SetMaxIdleConns(1)
	sqldb.SetConnMaxLifetime(0)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())

	ctx := context.Background()
	for _, model := range models.All() {
		if _, err := bunDB.NewCreateTable().Model(model).Exec(ctx); err != nil {
			bunDB.Close()
			t.Fatalf("Failed to create table for %T: %v", model, err)
		}
	}

	// one active collective booking per stock, as in the SQL migration
	_, err = bunDB.NewCreateIndex().
		Model((*models.CollectiveBooking)(nil)).
		Unique().
		Index("idx_collective_bookings_active_stock").
		Column("collective_stock_id").
		Where("status <> ?", models.CollectiveBookingCancelled).
		Exec(ctx)
	if err != nil {
		bunDB.Close()
		t.Fatalf("Failed to create collective booking index: %v", err)
	}

	t.Cleanup(func() { bunDB.Close() })
	return bunDB
}

// Insert stores every record or fails the test.
func Insert(t testing.TB, db bun.IDB, records ...interface{}) {
	t.Helper()
	for _, r := range records {
		if _, err := db.NewInsert().Model(r).Exec(context.Background()); err != nil {
			t.Fatalf("Failed to insert %T: %v", r, err)
		}
	}
}
