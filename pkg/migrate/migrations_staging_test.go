package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestStagingMigrationContainsConstraints(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_staging_tables.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no staging migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TABLE IF NOT EXISTS staging_invoices",
		"CREATE TABLE IF NOT EXISTS staging_line_items",
		"CREATE TABLE IF NOT EXISTS staging_payments",
		"REFERENCES staging_invoices(id) ON DELETE CASCADE",
		"CHECK (amount_paid_cents > 0)",
		"uq_staging_invoices_payment_pending",
		"DROP TABLE IF EXISTS staging_invoices",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestAccountingCodesMigrationSeedsDefaults(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_accounting_codes.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no accounting codes migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	for _, sub := range []string{"sales_revenue", "settlement_bank", "ON CONFLICT (purpose) DO NOTHING"} {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}
