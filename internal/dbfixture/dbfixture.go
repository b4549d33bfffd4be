// Package dbfixture builds small, known-good SQLite database files for
// tests using the real reference implementation (modernc.org/sqlite), the
// way FocuswithJustin-JuniperBible's core/sqlite/comparison_test.go uses
// the pure-Go driver to avoid depending on a CGO toolchain. It is imported
// only by _test.go files across this module: litequery is itself a SQLite
// reader and must not depend on another one at runtime.
package dbfixture

import (
	"database/sql"
	"fmt"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Apples builds the apples/idx_apples_color fixture from spec.md §8's
// end-to-end scenarios inside dir and returns the resulting file's path.
func Apples(dir string) (string, error) {
	path := filepath.Join(dir, "apples.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return "", fmt.Errorf("open fixture db: %w", err)
	}
	defer db.Close()

	stmts := []string{
		`CREATE TABLE apples (id INTEGER PRIMARY KEY, name TEXT, color TEXT)`,
		`CREATE INDEX idx_apples_color ON apples (color)`,
		`INSERT INTO apples (id, name, color) VALUES
			(1, 'Granny Smith', 'Light Green'),
			(2, 'Fuji', 'Red'),
			(3, 'Honeycrisp', 'Blush Red'),
			(4, 'Golden Delicious', 'Yellow')`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return "", fmt.Errorf("seed fixture db: %w", err)
		}
	}
	return path, nil
}

// Build runs arbitrary DDL/DML statements against a fresh database file
// inside dir and returns its path, for tests that need a shape other than
// the apples fixture (e.g. a table with no index, or a wide enough table
// to force an interior b-tree page).
func Build(dir, name string, stmts []string) (string, error) {
	path := filepath.Join(dir, name)
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return "", fmt.Errorf("open fixture db: %w", err)
	}
	defer db.Close()

	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return "", fmt.Errorf("seed fixture db %q: %w", name, err)
		}
	}
	return path, nil
}
