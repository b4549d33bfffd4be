// Package engine is the query executor: it resolves a parsed SELECT
// (internal/sqlfront) against the schema (internal/schema) and picks an
// access path — full scan, rowid equality, index lookup, or full scan with
// a pushed-down predicate — before streaming rows lazily from the b-tree
// readers (internal/btree). It generalizes the teacher's SqliteEngine
// (app/sqlite_engine.go) and actually wires in the index-driven path its
// QueryOptimizer (app/query_optimizer.go) built but never connected.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hgye/litequery/internal/btree"
	"github.com/hgye/litequery/internal/pager"
	"github.com/hgye/litequery/internal/page"
	"github.com/hgye/litequery/internal/record"
	"github.com/hgye/litequery/internal/schema"
	"github.com/hgye/litequery/internal/sqlfront"
)

// Kind classifies an Error the way spec.md §7 requires.
type Kind string

const (
	KindIO            Kind = "io"
	KindCorrupt       Kind = "corrupt"
	KindUnsupported   Kind = "unsupported"
	KindUnknownTable  Kind = "unknown_table"
	KindUnknownColumn Kind = "unknown_column"
)

// Error is the engine's single exported error type, generalizing the
// teacher's DatabaseError (app/errors.go) into a Kind-tagged error with a
// wrapped cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Option configures an Engine. Wraps pager.Option, following the teacher's
// functional-options convention (app/config.go).
type Option func(*options)

type options struct {
	pagerOpts []pager.Option
}

func WithPageCacheSize(n int) Option {
	return func(o *options) { o.pagerOpts = append(o.pagerOpts, pager.WithPageCacheSize(n)) }
}

func WithStrictValidation(strict bool) Option {
	return func(o *options) { o.pagerOpts = append(o.pagerOpts, pager.WithStrictValidation(strict)) }
}

// Engine is the top-level entry point used by the CLI.
type Engine struct {
	pager  *pager.Pager
	schema []schema.Row
}

// Open opens the database file at path and prepares the engine. Schema is
// loaded lazily, on first use, and cached — mirroring the teacher's
// DatabaseImpl.LoadSchema (app/database.go).
func Open(path string, opts ...Option) (*Engine, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	p, err := pager.Open(path, o.pagerOpts...)
	if err != nil {
		return nil, newErr(KindIO, "open", err)
	}
	return &Engine{pager: p}, nil
}

func (e *Engine) Close() error {
	return e.pager.Close()
}

func (e *Engine) PageSize() uint32 { return e.pager.Header.PageSize }

func (e *Engine) loadSchema(ctx context.Context) ([]schema.Row, error) {
	if e.schema != nil {
		return e.schema, nil
	}
	rows, err := schema.ReadAll(ctx, e.pager)
	if err != nil {
		return nil, newErr(KindCorrupt, "load_schema", err)
	}
	e.schema = rows
	return rows, nil
}

// DBInfo reports the values the .dbinfo command prints: the page size, and
// the root schema page's cell count (one cell per table or index
// definition), per spec.md §8 scenario 1.
type DBInfo struct {
	PageSize      uint32
	NumberOfTables int
}

func (e *Engine) DBInfo(ctx context.Context) (DBInfo, error) {
	buf, err := e.pager.Fetch(ctx, 1)
	if err != nil {
		return DBInfo{}, newErr(KindIO, "dbinfo", err)
	}
	h, err := parsePage1Header(buf)
	if err != nil {
		return DBInfo{}, newErr(KindCorrupt, "dbinfo", err)
	}
	return DBInfo{PageSize: e.pager.Header.PageSize, NumberOfTables: h}, nil
}

// Tables returns the names of user tables: schema rows of type "table"
// whose name does not start with "sqlite_", per spec.md §6.
func (e *Engine) Tables(ctx context.Context) ([]string, error) {
	rows, err := e.loadSchema(ctx)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, r := range rows {
		if r.Type == "table" && !strings.HasPrefix(r.Name, "sqlite_") {
			names = append(names, r.Name)
		}
	}
	return names, nil
}

// Result is the outcome of a SELECT: either a single count or a lazy row
// stream with its column names.
type Result struct {
	Columns []string
	IsCount bool
	Count   int64
	Rows    *RowStream
}

// RowStream is the lazy, forward-only row iterator a query produces.
type RowStream struct {
	next func(ctx context.Context) (bool, error)
	cur  []record.Value
}

func (s *RowStream) Next(ctx context.Context) (bool, error) { return s.next(ctx) }
func (s *RowStream) Values() []record.Value                 { return s.cur }

// Query parses and executes a single SELECT statement.
func (e *Engine) Query(ctx context.Context, sql string) (*Result, error) {
	sel, err := sqlfront.ParseSelect(sql)
	if err != nil {
		return nil, newErr(KindUnsupported, "query", err)
	}

	rows, err := e.loadSchema(ctx)
	if err != nil {
		return nil, err
	}
	tbl, ok := schema.FindTable(rows, sel.Table)
	if !ok {
		return nil, newErr(KindUnknownTable, "query", fmt.Errorf("no such table: %s", sel.Table))
	}

	var cols []sqlfront.ColumnDef
	if schema.IsSchemaTableName(sel.Table) {
		cols = []sqlfront.ColumnDef{{Name: "type"}, {Name: "name"}, {Name: "tbl_name"}, {Name: "rootpage"}, {Name: "sql"}}
	} else {
		cols, err = sqlfront.ParseTableColumns(tbl.SQL)
		if err != nil {
			return nil, newErr(KindCorrupt, "query", err)
		}
	}

	colIndex := func(name string) (int, bool) {
		if strings.EqualFold(name, "rowid") {
			return RowidCol, true
		}
		for i, c := range cols {
			if strings.EqualFold(c.Name, name) {
				return i, true
			}
		}
		return 0, false
	}

	pkColumn := -1
	for i, c := range cols {
		if c.IsIntegerPrimaryKey {
			pkColumn = i
			break
		}
	}

	if sel.CountStar {
		count, err := e.countRows(ctx, tbl, sel.Predicate, cols, colIndex, pkColumn)
		if err != nil {
			return nil, err
		}
		return &Result{IsCount: true, Count: count}, nil
	}

	var wantCols []int
	var resultNames []string
	if sel.Star {
		for i, c := range cols {
			wantCols = append(wantCols, i)
			resultNames = append(resultNames, c.Name)
		}
	} else {
		for _, name := range sel.Columns {
			idx, ok := colIndex(name)
			if !ok {
				return nil, newErr(KindUnknownColumn, "query", fmt.Errorf("no such column: %s", name))
			}
			wantCols = append(wantCols, idx)
			resultNames = append(resultNames, name)
		}
	}

	stream, err := e.rowStream(ctx, tbl, sel.Predicate, cols, colIndex, pkColumn, wantCols)
	if err != nil {
		return nil, err
	}
	return &Result{Columns: resultNames, Rows: stream}, nil
}

func parsePage1Header(buf []byte) (int, error) {
	h, err := pageHeaderForRoot(buf)
	if err != nil {
		return 0, err
	}
	return int(h.CellCount), nil
}

func pageHeaderForRoot(buf []byte) (page.Header, error) {
	return page.ParseHeader(buf, 1)
}

// RowidCol is the pseudo-column index bound to the implicit "rowid" name,
// per spec.md §4.6 step 2.
const RowidCol = -1

// rowSource is a pull cursor over raw table rows, independent of whichever
// access path produced them (full scan, direct rowid lookup, or an
// index-driven rowid-set fetch).
type rowSource func(ctx context.Context) (btree.Row, bool, error)

func scanRowSource(it *btree.RowIter) rowSource {
	return func(ctx context.Context) (btree.Row, bool, error) {
		ok, err := it.Next(ctx)
		if err != nil || !ok {
			return btree.Row{}, false, err
		}
		return it.Row(), true, nil
	}
}

func sliceRowSource(rows []btree.Row) rowSource {
	i := 0
	return func(ctx context.Context) (btree.Row, bool, error) {
		if i >= len(rows) {
			return btree.Row{}, false, nil
		}
		r := rows[i]
		i++
		return r, true, nil
	}
}

// valuesEqual implements the predicate equality rule spec.md §4.3 step 4
// needs: numeric widening between Integer and Float, and a hard
// Unsupported for text-vs-integer comparisons (SPEC_FULL.md §9 "mixed-type
// predicate comparison").
func valuesEqual(a, b record.Value) (bool, error) {
	if a.Type() != b.Type() {
		numeric := func(t record.Type) bool { return t == record.Integer || t == record.Float }
		if numeric(a.Type()) && numeric(b.Type()) {
			return a.Float() == b.Float(), nil
		}
		if a.Type() == record.Null || b.Type() == record.Null {
			return false, nil
		}
		return false, fmt.Errorf("%w: mixed-type predicate comparison", btree.ErrUnsupported)
	}
	switch a.Type() {
	case record.Integer:
		return a.Int() == b.Int(), nil
	case record.Float:
		return a.Float() == b.Float(), nil
	case record.Text:
		return a.Text() == b.Text(), nil
	case record.Blob:
		return string(a.Blob()) == string(b.Blob()), nil
	default:
		return true, nil
	}
}

// accessPath implements spec.md §4.6 step 4: it picks a full scan, a direct
// rowid/PK lookup, or an index-driven rowid-set fetch, and returns a row
// source plus an optional post-filter for predicates that could not be
// satisfied by the access path itself (pushed into the record decoder per
// §4.3 step 4).
func (e *Engine) accessPath(
	ctx context.Context,
	tbl schema.Row,
	schemaRows []schema.Row,
	pred *sqlfront.Predicate,
	colIndex func(string) (int, bool),
	pkColumn int,
) (rowSource, func(btree.Row) (bool, error), error) {
	if pred == nil {
		it, err := btree.NewTableReader(e.pager, tbl.RootPage).Scan(ctx)
		if err != nil {
			return nil, nil, newErr(KindIO, "scan", err)
		}
		return scanRowSource(it), nil, nil
	}
	if pred.Op != sqlfront.OpEQ {
		return nil, nil, newErr(KindUnsupported, "query", fmt.Errorf("only equality predicates are supported"))
	}

	predCol, ok := colIndex(pred.Column)
	if !ok {
		return nil, nil, newErr(KindUnknownColumn, "query", fmt.Errorf("no such column: %s", pred.Column))
	}

	if predCol == RowidCol || predCol == pkColumn {
		if pred.Literal.Type() != record.Integer {
			return nil, nil, newErr(KindUnsupported, "query", fmt.Errorf("%w: rowid predicate requires an integer literal", btree.ErrUnsupported))
		}
		rows, err := btree.NewTableReader(e.pager, tbl.RootPage).LookupByRowidSet(ctx, []int64{pred.Literal.Int()})
		if err != nil {
			return nil, nil, newErr(KindCorrupt, "query", err)
		}
		return sliceRowSource(rows), nil, nil
	}

	for _, idxRow := range schema.FindIndexesForTable(schemaRows, tbl.TblName) {
		idxCol, err := sqlfront.ParseIndexColumn(idxRow.SQL)
		if err != nil {
			continue
		}
		if !strings.EqualFold(idxCol, pred.Column) {
			continue
		}
		hits, err := btree.NewIndexReader(e.pager, idxRow.RootPage, e.pager.Header.TextEncoding).LookupEqual(ctx, pred.Literal)
		if err != nil {
			kind := KindCorrupt
			if errors.Is(err, btree.ErrUnsupported) {
				kind = KindUnsupported
			}
			return nil, nil, newErr(kind, "query", err)
		}
		rowids := make([]int64, len(hits))
		for i, h := range hits {
			rowids[i] = h.RowID
		}
		rows, err := btree.NewTableReader(e.pager, tbl.RootPage).LookupByRowidSet(ctx, rowids)
		if err != nil {
			return nil, nil, newErr(KindCorrupt, "query", err)
		}
		return sliceRowSource(rows), nil, nil
	}

	it, err := btree.NewTableReader(e.pager, tbl.RootPage).Scan(ctx)
	if err != nil {
		return nil, nil, newErr(KindIO, "scan", err)
	}
	filter := func(row btree.Row) (bool, error) {
		want := map[int]bool{predCol: true}
		vals, _, err := record.DecodeRecord(row.Payload, 0, e.pager.Header.TextEncoding, want)
		if err != nil {
			return false, newErr(KindCorrupt, "query", err)
		}
		got := vals[predCol]
		if predCol == pkColumn && got.Type() == record.Null {
			got = record.IntValue(row.RowID)
		}
		eq, err := valuesEqual(got, pred.Literal)
		if err != nil {
			return false, newErr(KindUnsupported, "query", err)
		}
		return eq, nil
	}
	return scanRowSource(it), filter, nil
}

// decodeProjectedRow decodes exactly the requested columns of row, applying
// the INTEGER PRIMARY KEY rowid-aliasing rule (spec.md §3) and the rowid
// pseudo-column (spec.md §4.6 step 2).
func decodeProjectedRow(row btree.Row, enc record.TextEncoding, wantCols []int, pkColumn int) ([]record.Value, error) {
	want := make(map[int]bool, len(wantCols))
	for _, c := range wantCols {
		if c != RowidCol {
			want[c] = true
		}
	}

	var decoded []record.Value
	if len(want) > 0 {
		vals, _, err := record.DecodeRecord(row.Payload, 0, enc, want)
		if err != nil {
			return nil, err
		}
		decoded = vals
	}

	out := make([]record.Value, len(wantCols))
	for i, c := range wantCols {
		switch {
		case c == RowidCol:
			out[i] = record.IntValue(row.RowID)
		case c == pkColumn && decoded[c].Type() == record.Null:
			out[i] = record.IntValue(row.RowID)
		default:
			out[i] = decoded[c]
		}
	}
	return out, nil
}

// countRows implements COUNT(*): it consumes the chosen access path without
// materializing any projected values, per spec.md §4.6 step 5.
func (e *Engine) countRows(
	ctx context.Context,
	tbl schema.Row,
	pred *sqlfront.Predicate,
	cols []sqlfront.ColumnDef,
	colIndex func(string) (int, bool),
	pkColumn int,
) (int64, error) {
	schemaRows, err := e.loadSchema(ctx)
	if err != nil {
		return 0, err
	}
	src, filter, err := e.accessPath(ctx, tbl, schemaRows, pred, colIndex, pkColumn)
	if err != nil {
		return 0, err
	}

	var n int64
	for {
		row, ok, err := src(ctx)
		if err != nil {
			return 0, newErr(KindCorrupt, "query", err)
		}
		if !ok {
			break
		}
		if filter != nil {
			pass, err := filter(row)
			if err != nil {
				return 0, err
			}
			if !pass {
				continue
			}
		}
		n++
	}
	return n, nil
}

// rowStream builds the lazy projected RowStream a non-COUNT(*) SELECT
// returns.
func (e *Engine) rowStream(
	ctx context.Context,
	tbl schema.Row,
	pred *sqlfront.Predicate,
	cols []sqlfront.ColumnDef,
	colIndex func(string) (int, bool),
	pkColumn int,
	wantCols []int,
) (*RowStream, error) {
	schemaRows, err := e.loadSchema(ctx)
	if err != nil {
		return nil, err
	}
	src, filter, err := e.accessPath(ctx, tbl, schemaRows, pred, colIndex, pkColumn)
	if err != nil {
		return nil, err
	}

	enc := e.pager.Header.TextEncoding
	s := &RowStream{}
	s.next = func(ctx context.Context) (bool, error) {
		for {
			row, ok, err := src(ctx)
			if err != nil {
				return false, newErr(KindCorrupt, "query", err)
			}
			if !ok {
				return false, nil
			}
			if filter != nil {
				pass, err := filter(row)
				if err != nil {
					return false, err
				}
				if !pass {
					continue
				}
			}
			vals, err := decodeProjectedRow(row, enc, wantCols, pkColumn)
			if err != nil {
				return false, newErr(KindCorrupt, "query", err)
			}
			s.cur = vals
			return true, nil
		}
	}
	return s, nil
}
