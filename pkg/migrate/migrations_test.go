package migrate_test

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/psecars/merch-backend/pkg/migrate"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no %s migration file found", suffix)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func assertContains(t *testing.T, content string, checks []string) {
	t.Helper()
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestMigrationsDirIsValid(t *testing.T) {
	if err := migrate.Validate(os.DirFS("migrations")); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestEmbeddedMigrationsMatchDisk(t *testing.T) {
	embedded, err := fs.Glob(migrate.Embedded(), "*.sql")
	if err != nil {
		t.Fatalf("glob embedded: %v", err)
	}
	onDisk, err := filepath.Glob(filepath.Join("migrations", "*.sql"))
	if err != nil {
		t.Fatalf("glob disk: %v", err)
	}
	if len(embedded) != len(onDisk) || len(embedded) != 4 {
		t.Fatalf("embedded %d migrations, disk has %d", len(embedded), len(onDisk))
	}
	if err := migrate.Validate(migrate.Embedded()); err != nil {
		t.Fatalf("embedded migrations invalid: %v", err)
	}
}

func TestCatalogMigrationGuardsStock(t *testing.T) {
	assertContains(t, readMigration(t, "create_catalog"), []string{
		"CREATE TABLE IF NOT EXISTS products",
		"price NUMERIC(10,2) NOT NULL",
		"CHECK (stock_quantity >= 0)",
		"REFERENCES categories(id) ON DELETE SET NULL",
		"image_urls TEXT[]",
		"DROP TABLE IF EXISTS products",
	})
}

func TestCartMigrationConstraints(t *testing.T) {
	assertContains(t, readMigration(t, "create_carts"), []string{
		"CONSTRAINT carts_session_id_key UNIQUE (session_id)",
		"expires_at TIMESTAMPTZ NOT NULL",
		"FOREIGN KEY (cart_id) REFERENCES carts(id) ON DELETE CASCADE",
		"CHECK (quantity > 0)",
		"UNIQUE (cart_id, product_id)",
		"DROP TABLE IF EXISTS cart_items",
	})
}

func TestOrderMigrationStatuses(t *testing.T) {
	assertContains(t, readMigration(t, "create_orders"), []string{
		"CREATE TABLE IF NOT EXISTS orders",
		"'PENDING', 'CONFIRMED', 'PROCESSING', 'SHIPPED', 'DELIVERED', 'CANCELLED'",
		"product_name TEXT NOT NULL",
		"DROP TABLE IF EXISTS order_items",
	})
}

func TestOutboxMigrationIndexesUnpublished(t *testing.T) {
	assertContains(t, readMigration(t, "create_outbox_events"), []string{
		"CREATE TABLE IF NOT EXISTS outbox_events",
		"WHERE published_at IS NULL",
		"attempt_count INTEGER NOT NULL DEFAULT 0",
	})
}

func TestCreateSQLMigration(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	path, err := migrate.CreateSQLMigration(dir, "Add Product SKU!", now)
	if err != nil {
		t.Fatalf("CreateSQLMigration: %v", err)
	}
	if filepath.Base(path) != "20260302100000_add_product_sku.sql" {
		t.Fatalf("unexpected migration path %s", path)
	}
	if err := migrate.Validate(os.DirFS(dir)); err != nil {
		t.Fatalf("generated migration should validate: %v", err)
	}
	if _, err := migrate.CreateSQLMigration(dir, "add product sku", now); err == nil {
		t.Fatal("expected duplicate file to be rejected")
	}
	if _, err := migrate.CreateSQLMigration(dir, "!!!", now); err == nil {
		t.Fatal("expected empty slug to be rejected")
	}
}

func TestValidateRejectsBrokenFiles(t *testing.T) {
	cases := map[string]fstest.MapFS{
		"bad name": {"001_init.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")}},
		"duplicate version": {
			"20260301090000_a.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")},
			"20260301090000_b.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")},
		},
		"missing down":  {"20260301090000_a.sql": {Data: []byte("-- +goose Up\nSELECT 1;\n")}},
		"down first":    {"20260301090000_a.sql": {Data: []byte("-- +goose Down\n-- +goose Up\n")}},
		"unterminated":  {"20260301090000_a.sql": {Data: []byte("-- +goose Up\n-- +goose StatementBegin\n-- +goose Down\n")}},
		"no migrations": {"README.md": {Data: []byte("docs")}},
	}
	for name, fsys := range cases {
		if err := migrate.Validate(fsys); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}
