package migrate

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/multierr"
)

var sqlFileRe = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)

// ValidateDir checks every .sql file in dir and reports all problems at once:
// filename shape, duplicate versions, and goose annotations (one Up section
// before one Down section, with balanced StatementBegin/StatementEnd pairs).
func ValidateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read dir %q: %w", dir, err)
	}

	var errs error
	seen := map[string]string{} // version -> filename
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}

		m := sqlFileRe.FindStringSubmatch(name)
		if m == nil {
			errs = multierr.Append(errs, fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name))
			continue
		}
		if prev, ok := seen[m[1]]; ok {
			errs = multierr.Append(errs, fmt.Errorf("duplicate migration version %s in %q and %q", m[1], prev, name))
		}
		seen[m[1]] = name

		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("read file %q: %w", name, err))
			continue
		}
		if err := checkAnnotations(b); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("migration %q: %w", name, err))
		}
	}
	return errs
}

func checkAnnotations(content []byte) error {
	var (
		section string
		ups     int
		downs   int
		open    bool
	)
	scanner := bufio.NewScanner(bytes.NewReader(content))
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(text, "-- +goose ") {
			continue
		}
		switch strings.TrimSpace(strings.TrimPrefix(text, "-- +goose ")) {
		case "Up":
			if open {
				return fmt.Errorf("line %d: Up inside an open statement block", line)
			}
			ups++
			section = "up"
		case "Down":
			if open {
				return fmt.Errorf("line %d: Down inside an open statement block", line)
			}
			if ups == 0 {
				return fmt.Errorf("line %d: Down before Up", line)
			}
			downs++
			section = "down"
		case "StatementBegin":
			if section == "" || open {
				return fmt.Errorf("line %d: unexpected StatementBegin", line)
			}
			open = true
		case "StatementEnd":
			if !open {
				return fmt.Errorf("line %d: StatementEnd without StatementBegin", line)
			}
			open = false
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	switch {
	case ups != 1:
		return fmt.Errorf(`expected one "-- +goose Up", found %d`, ups)
	case downs != 1:
		return fmt.Errorf(`expected one "-- +goose Down", found %d`, downs)
	case open:
		return fmt.Errorf("unterminated StatementBegin")
	}
	return nil
}
