package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ecolote/leadengine/pkg/migrate"
)

func TestMigrationsDirIsValid(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate migrations: %v", err)
	}
}

func TestLeadsMigrationContainsSchema(t *testing.T) {
	content := readMigration(t, "*_create_leads_table.sql")
	checks := []string{
		"CREATE TABLE IF NOT EXISTS leads",
		"contact_history jsonb NOT NULL DEFAULT '[]'::jsonb",
		"reactivation_due_date date",
		"CONSTRAINT chk_leads_status CHECK",
		"'discarded_no_interest'",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_leads_place_id",
		"CREATE INDEX IF NOT EXISTS idx_leads_status_last_update",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestHistoryMigrationReferencesLeads(t *testing.T) {
	content := readMigration(t, "*_create_lead_status_history_table.sql")
	for _, sub := range []string{
		"CREATE TABLE IF NOT EXISTS lead_status_history",
		"REFERENCES leads(id) ON DELETE CASCADE",
		"changed_by uuid,",
		"idx_lead_status_history_lead_changed",
	} {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestCreateSQLMigrationSanitizesName(t *testing.T) {
	dir := t.TempDir()
	path, err := migrate.CreateSQLMigration(dir, "Add Lead Notes!")
	if err != nil {
		t.Fatalf("create migration: %v", err)
	}
	if !strings.HasSuffix(path, "_add_lead_notes.sql") {
		t.Fatalf("unexpected filename %q", path)
	}
	if err := migrate.ValidateDir(dir); err != nil {
		t.Fatalf("generated migration should validate: %v", err)
	}
}

func TestValidateDirRejectsBadNames(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "leads.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := migrate.ValidateDir(dir); err == nil {
		t.Fatalf("expected invalid filename error")
	}
}

func TestValidateDirReportsEveryBrokenFile(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"20260901120000_create_leads_table.sql": "-- +goose Up\n-- +goose Down\n",
		"20260901120000_add_phone_to_leads.sql": "-- +goose Up\n-- +goose Down\n",
		"20260901120200_backfill_leads.sql":     "-- +goose Up\nUPDATE leads SET city = '';\n",
		"notes.sql":                             "-- +goose Up\n-- +goose Down\n",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	err := migrate.ValidateDir(dir)
	if err == nil {
		t.Fatalf("expected validation errors")
	}
	for _, want := range []string{"duplicate migration version 20260901120000", "20260901120200_backfill_leads.sql", `invalid migration filename "notes.sql"`} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}

func TestDialect(t *testing.T) {
	for driver, want := range map[string]string{"": "postgres", "postgres": "postgres", "sqlite": "sqlite3"} {
		got, err := migrate.Dialect(driver)
		if err != nil || got != want {
			t.Fatalf("Dialect(%q) = %q, %v", driver, got, err)
		}
	}
	if _, err := migrate.Dialect("mysql"); err == nil {
		t.Fatalf("expected unsupported driver error")
	}
}

func readMigration(t *testing.T, pattern string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", pattern))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no migration matching %q", pattern)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}
