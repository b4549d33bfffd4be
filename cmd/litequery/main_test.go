package main

import (
	"io"
	"os"
	"strings"
	"testing"

	"github.com/hgye/litequery/internal/dbfixture"
)

func fixtureDB(t *testing.T) string {
	t.Helper()
	path, err := dbfixture.Apples(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return path
}

// captureStdout runs fn with os.Stdout redirected to a pipe and returns
// whatever it wrote, the way the teacher's main_test.go captures output.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	os.Stdout = w
	fn()
	w.Close()
	os.Stdout = old

	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	return string(out)
}

func TestRunProgramDBInfoAndTables(t *testing.T) {
	dbPath := fixtureDB(t)

	tests := []struct {
		name     string
		args     []string
		contains []string
	}{
		{
			name:     "dbinfo command",
			args:     []string{"litequery", dbPath, ".dbinfo"},
			contains: []string{"database page size: 4096", "number of tables: 2"},
		},
		{
			name:     "tables command",
			args:     []string{"litequery", dbPath, ".tables"},
			contains: []string{"apples"},
		},
		{
			name:     "select count",
			args:     []string{"litequery", dbPath, "SELECT COUNT(*) FROM apples"},
			contains: []string{"4"},
		},
		{
			name:     "select columns with where",
			args:     []string{"litequery", dbPath, "SELECT id, name FROM apples WHERE color = 'Yellow'"},
			contains: []string{"4|Golden Delicious"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var runErr error
			output := captureStdout(t, func() {
				runErr = runProgram(tt.args)
			})
			if runErr != nil {
				t.Fatalf("runProgram: %v", runErr)
			}
			for _, want := range tt.contains {
				if !strings.Contains(output, want) {
					t.Errorf("output should contain %q, got: %q", want, output)
				}
			}
		})
	}
}

func TestRunProgramUsageError(t *testing.T) {
	if err := runProgram([]string{"litequery"}); err == nil {
		t.Fatal("expected an error for missing arguments")
	}
}

func TestRunProgramUnknownTableExitsNonZero(t *testing.T) {
	dbPath := fixtureDB(t)
	err := runProgram([]string{"litequery", dbPath, "SELECT * FROM nonexistent"})
	if err == nil {
		t.Fatal("expected an error for an unknown table")
	}
	if code := exitCode(err); code != 1 {
		t.Errorf("got exit code %d, want 1", code)
	}
}

func TestRunProgramNonexistentDatabaseIsIOError(t *testing.T) {
	err := runProgram([]string{"litequery", "/nonexistent/path/db.sqlite", ".dbinfo"})
	if err == nil {
		t.Fatal("expected an error opening a nonexistent database")
	}
	if code := exitCode(err); code != 2 {
		t.Errorf("got exit code %d, want 2", code)
	}
}
