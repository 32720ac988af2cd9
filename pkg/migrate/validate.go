package migrate

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"regexp"
	"strings"
)

var (
	sqlFileRe = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)
)

// Validate checks the embedded migrations and that every dialect carries the
// same versions.
func Validate() error {
	return validateTree(embedded, "migrations")
}

// ValidateDir validates a migrations root on disk laid out like the embedded one.
func ValidateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}
	return validateTree(os.DirFS(dir), ".")
}

func validateTree(fsys fs.FS, root string) error {
	var reference map[string]string
	var referenceDir string
	for _, sub := range dialectDirs {
		dir := path.Join(root, sub)
		versions, err := validateFS(fsys, dir)
		if err != nil {
			return err
		}
		if reference == nil {
			reference, referenceDir = versions, sub
			continue
		}
		for version, name := range reference {
			if _, ok := versions[version]; !ok {
				return fmt.Errorf("migration %q exists for %s but not for %s", name, referenceDir, sub)
			}
		}
		for version, name := range versions {
			if _, ok := reference[version]; !ok {
				return fmt.Errorf("migration %q exists for %s but not for %s", name, sub, referenceDir)
			}
		}
	}
	return nil
}

var dialectDirs = []string{"postgres", "sqlite"}

// validateFS validates migration filenames and goose headers in dir.
func validateFS(fsys fs.FS, dir string) (map[string]string, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %q: %w", dir, err)
	}

	seen := map[string]string{} // version -> filename

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".sql") {
			continue
		}

		m := sqlFileRe.FindStringSubmatch(name)
		if m == nil {
			return nil, fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name)
		}

		version := m[1]
		if prev, ok := seen[version]; ok {
			return nil, fmt.Errorf("duplicate migration version %s in %q and %q", version, prev, name)
		}
		seen[version] = name

		b, err := fs.ReadFile(fsys, path.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read file %q: %w", name, err)
		}

		txt := string(b)
		if !strings.Contains(txt, "-- +goose Up") {
			return nil, fmt.Errorf("migration %q missing \"-- +goose Up\"", name)
		}
		if !strings.Contains(txt, "-- +goose Down") {
			return nil, fmt.Errorf("migration %q missing \"-- +goose Down\"", name)
		}
	}
	return seen, nil
}
