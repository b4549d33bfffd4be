// Package schema resolves table and index definitions from the
// sqlite_schema table on page 1, including the synthetic "sqlite_schema"
// entry itself (spec.md §4.6 step 1's "well-known schema synthesis").
// Grounded on the teacher's app/database.go:LoadSchema and
// original_source/app/main.py's inline SqliteSchema synthesis.
package schema

import (
	"context"
	"fmt"
	"strings"

	"github.com/hgye/litequery/internal/btree"
	"github.com/hgye/litequery/internal/pager"
	"github.com/hgye/litequery/internal/record"
)

// Row is one row of the sqlite_schema table.
type Row struct {
	Type     string // "table" or "index"
	Name     string
	TblName  string
	RootPage uint32
	SQL      string
}

// syntheticSchemaSQL is the CREATE TABLE text SQLite itself reports for
// its own schema table, reproduced verbatim from the reference
// implementation (original_source/app/main.py).
const syntheticSchemaSQL = "CREATE TABLE sqlite_schema (\n" +
	"  type text,\n" +
	"  name text,\n" +
	"  tbl_name text,\n" +
	"  rootpage integer,\n" +
	"  sql text\n" +
	");"

// WellKnownSchemaRow returns the synthesized schema row SQLite reports for
// its own schema table, independent of its aliases (sqlite_master,
// sqlite_temp_schema, sqlite_temp_master).
func WellKnownSchemaRow() Row {
	return Row{Type: "table", Name: "sqlite_schema", TblName: "sqlite_schema", RootPage: 1, SQL: syntheticSchemaSQL}
}

// IsSchemaTableName reports whether name refers to the schema table under
// any of SQLite's accepted aliases, case-insensitively.
func IsSchemaTableName(name string) bool {
	switch strings.ToLower(name) {
	case "sqlite_schema", "sqlite_master", "sqlite_temp_schema", "sqlite_temp_master":
		return true
	}
	return false
}

// ReadAll scans the whole sqlite_schema table (rooted at page 1) and
// returns every row.
func ReadAll(ctx context.Context, p *pager.Pager) ([]Row, error) {
	reader := btree.NewTableReader(p, 1)
	it, err := reader.Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("open schema table: %w", err)
	}

	var rows []Row
	for {
		ok, err := it.Next(ctx)
		if err != nil {
			return nil, fmt.Errorf("scan schema table: %w", err)
		}
		if !ok {
			break
		}
		row := it.Row()
		values, _, err := record.DecodeRecord(row.Payload, 0, p.Header.TextEncoding, nil)
		if err != nil {
			return nil, fmt.Errorf("decode schema row: %w", err)
		}
		if len(values) < 5 {
			return nil, fmt.Errorf("corrupt schema row: expected 5 columns, got %d", len(values))
		}
		rows = append(rows, Row{
			Type:     values[0].String(),
			Name:     values[1].String(),
			TblName:  values[2].String(),
			RootPage: uint32(values[3].Int()),
			SQL:      values[4].String(),
		})
	}
	return rows, nil
}

// FindTable looks up a table (case-insensitively) among schema rows,
// synthesizing the well-known sqlite_schema entry when asked for it.
func FindTable(rows []Row, name string) (Row, bool) {
	if IsSchemaTableName(name) {
		return WellKnownSchemaRow(), true
	}
	for _, r := range rows {
		if r.Type == "table" && strings.EqualFold(r.TblName, name) {
			return r, true
		}
	}
	return Row{}, false
}

// FindIndexesForTable returns every index schema row associated with the
// given table name.
func FindIndexesForTable(rows []Row, tableName string) []Row {
	var out []Row
	for _, r := range rows {
		if r.Type == "index" && strings.EqualFold(r.TblName, tableName) {
			out = append(out, r)
		}
	}
	return out
}
