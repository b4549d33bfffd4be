// Command litequery is the CLI dispatcher: it opens a database file, routes
// ".dbinfo"/".tables" to dedicated engine calls and everything else to the
// SQL executor, and maps engine errors to exit codes per spec.md §6/§7. It
// generalizes the teacher's main.go (app/main.go), which read the file
// header by hand for .dbinfo instead of going through the real engine.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/hgye/litequery/internal/engine"
	"github.com/hgye/litequery/internal/output"
)

func main() {
	if err := runProgram(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

// runProgram is the testable core of main: it takes argv directly so tests
// can drive it without forking a subprocess, the same shape as the
// teacher's main_test.go expects of runProgram.
func runProgram(args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("Usage: litequery <database_path> <command>")
	}
	return run(args[1], args[2], os.Stdout)
}

func run(dbPath, command string, w *os.File) error {
	ctx := context.Background()
	eng, err := engine.Open(dbPath)
	if err != nil {
		return err
	}
	defer eng.Close()

	formatter := output.ConsoleFormatter{}

	switch command {
	case ".dbinfo":
		info, err := eng.DBInfo(ctx)
		if err != nil {
			return err
		}
		return formatter.FormatDBInfo(w, info)
	case ".tables":
		names, err := eng.Tables(ctx)
		if err != nil {
			return err
		}
		return formatter.FormatTables(w, names)
	default:
		result, err := eng.Query(ctx, command)
		if err != nil {
			return err
		}
		return formatter.FormatResult(ctx, w, result)
	}
}

// exitCode maps an engine.Error's Kind to spec.md §6's exit-code table:
// semantic errors are 1, I/O is 2, corruption is 3. Anything that isn't a
// classified engine.Error (e.g. the usage error for a malformed argv) is
// treated as an I/O error.
func exitCode(err error) int {
	var engErr *engine.Error
	if errors.As(err, &engErr) {
		switch engErr.Kind {
		case engine.KindUnknownTable, engine.KindUnknownColumn, engine.KindUnsupported:
			return 1
		case engine.KindCorrupt:
			return 3
		case engine.KindIO:
			return 2
		}
	}
	return 2
}
