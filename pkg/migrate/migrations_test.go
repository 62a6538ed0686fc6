package migrate_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderportal/pkg/migrate"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	require.NoError(t, err)
	require.Len(t, matches, 1, "expected exactly one %s migration", suffix)

	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	return string(data)
}

func TestLedgerMigrationContainsSchemas(t *testing.T) {
	content := readMigration(t, "create_users_and_ledger")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS users",
		"balance numeric(12,2) NOT NULL DEFAULT 0",
		"CREATE TABLE IF NOT EXISTS balance_transactions",
		"CONSTRAINT balance_transactions_arithmetic",
		"CONSTRAINT balance_transactions_direction",
		"CREATE INDEX IF NOT EXISTS idx_balance_transactions_user_created",
		"CREATE TABLE IF NOT EXISTS balance_requests",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestOrdersMigrationContainsSchemas(t *testing.T) {
	content := readMigration(t, "create_catalog_and_orders")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS products",
		"CREATE TABLE IF NOT EXISTS product_options",
		"CREATE TABLE IF NOT EXISTS orders",
		"'pending', 'preparing', 'ready', 'delivered', 'cancelled'",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_orders_order_number",
		"CREATE TABLE IF NOT EXISTS order_items",
		"CREATE TABLE IF NOT EXISTS cart_items",
		"CREATE TABLE IF NOT EXISTS order_hours",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestOutboxMigrationContainsSchemas(t *testing.T) {
	content := readMigration(t, "create_notifications_and_outbox")

	for _, sub := range []string{
		"CREATE TABLE IF NOT EXISTS notifications",
		"CREATE TABLE IF NOT EXISTS outbox_events",
		"WHERE published_at IS NULL",
		"CREATE TABLE IF NOT EXISTS outbox_dlq",
	} {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestValidateAcceptsEmbeddedMigrations(t *testing.T) {
	require.NoError(t, migrate.Validate(migrate.Embedded()))
	require.NoError(t, migrate.Validate(migrate.Source("migrations")))
}

func TestValidateRejectsBadFiles(t *testing.T) {
	cases := map[string]fstest.MapFS{
		"bad name": {
			"create_users.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")},
		},
		"missing down": {
			"20260101120000_create_users.sql": {Data: []byte("-- +goose Up\n")},
		},
		"duplicate version": {
			"20260101120000_a.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")},
			"20260101120000_b.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")},
		},
	}
	for name, fsys := range cases {
		t.Run(name, func(t *testing.T) {
			require.Error(t, migrate.Validate(fsys))
		})
	}
}

func TestCreateSQLMigrationWritesTemplate(t *testing.T) {
	dir := t.TempDir()
	path, err := migrate.CreateSQLMigration(dir, "Add Order Tips")
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(path, "_add_order_tips.sql"))
	require.NoError(t, migrate.Validate(os.DirFS(dir)))
}

func TestCreateSQLMigrationStaysAfterNewestVersion(t *testing.T) {
	dir := t.TempDir()
	future := "29990101000000_from_the_future.sql"
	require.NoError(t, os.WriteFile(filepath.Join(dir, future), []byte("-- +goose Up\n-- +goose Down\n"), 0o644))

	path, err := migrate.CreateSQLMigration(dir, "next")
	require.NoError(t, err)
	require.Equal(t, "29990101000001_next.sql", filepath.Base(path))
}

func TestAutoMigrateSQLiteCreatesTables(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file:automigrate?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, migrate.AutoMigrateSQLite(context.Background(), conn))
	for _, table := range []string{"users", "balance_transactions", "balance_requests", "orders", "order_items", "outbox_events", "outbox_dlq"} {
		require.True(t, conn.Migrator().HasTable(table), table)
	}
}
