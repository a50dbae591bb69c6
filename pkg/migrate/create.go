package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

const versionLayout = "20060102150405"

var (
	nameSanitizeRe  = regexp.MustCompile(`[^a-z0-9_]+`)
	createTableRe   = regexp.MustCompile(`^create_([a-z0-9_]+)_table$`)
	addColumnRe     = regexp.MustCompile(`^add_([a-z0-9_]+)_to_([a-z0-9_]+)$`)
	versionPrefixRe = regexp.MustCompile(`^(\d{14})_`)
)

// CreateSQLMigration writes <dir>/<version>_<name>.sql. The version is the
// current UTC second, bumped past the newest existing migration so a skewed
// clock never slots a file before one already applied. Names shaped like
// create_<table>_table or add_<column>_to_<table> get a matching skeleton.
func CreateSQLMigration(dir string, name string) (string, error) {
	return createSQLMigration(dir, name, time.Now().UTC())
}

func createSQLMigration(dir, name string, now time.Time) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("dir is required")
	}
	safe := sanitizeName(name)
	if safe == "" {
		return "", fmt.Errorf("name %q results in empty sanitized filename", name)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %q: %w", dir, err)
	}

	version, err := nextVersion(dir, now)
	if err != nil {
		return "", err
	}
	fullpath := filepath.Join(dir, fmt.Sprintf("%s_%s.sql", version, safe))
	if _, err := os.Stat(fullpath); err == nil {
		return "", fmt.Errorf("migration already exists: %s", fullpath)
	}

	if err := os.WriteFile(fullpath, []byte(migrationBody(safe)), 0o644); err != nil {
		return "", fmt.Errorf("write migration %q: %w", fullpath, err)
	}
	return fullpath, nil
}

func sanitizeName(name string) string {
	safe := strings.ToLower(strings.TrimSpace(name))
	safe = strings.ReplaceAll(safe, " ", "_")
	safe = nameSanitizeRe.ReplaceAllString(safe, "_")
	return strings.Trim(safe, "_")
}

func nextVersion(dir string, now time.Time) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read dir %q: %w", dir, err)
	}
	next := now.Truncate(time.Second)
	for _, e := range entries {
		m := versionPrefixRe.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		existing, err := time.Parse(versionLayout, m[1])
		if err != nil {
			continue
		}
		if !next.After(existing) {
			next = existing.Add(time.Second)
		}
	}
	return next.Format(versionLayout), nil
}

func migrationBody(name string) string {
	up, down := "-- "+name, "-- rollback "+name
	if m := createTableRe.FindStringSubmatch(name); m != nil {
		table := m[1]
		up = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  id uuid PRIMARY KEY,
  lead_id uuid NOT NULL REFERENCES leads(id) ON DELETE CASCADE,
  created_at timestamptz NOT NULL DEFAULT now(),
  updated_at timestamptz NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_%s_lead_id ON %s (lead_id);`, table, table, table)
		down = fmt.Sprintf("DROP TABLE IF EXISTS %s;", table)
	} else if m := addColumnRe.FindStringSubmatch(name); m != nil {
		column, table := m[1], m[2]
		up = fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s text;", table, column)
		down = fmt.Sprintf("ALTER TABLE %s DROP COLUMN IF EXISTS %s;", table, column)
	}

	return fmt.Sprintf(`-- +goose Up
-- +goose StatementBegin
%s
-- +goose StatementEnd

-- +goose Down
-- +goose StatementBegin
%s
-- +goose StatementEnd
`, up, down)
}
