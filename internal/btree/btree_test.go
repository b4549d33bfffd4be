package btree_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/hgye/litequery/internal/btree"
	"github.com/hgye/litequery/internal/dbfixture"
	"github.com/hgye/litequery/internal/pager"
	"github.com/hgye/litequery/internal/record"
	"github.com/hgye/litequery/internal/schema"
)

func openFixture(t *testing.T) (*pager.Pager, []schema.Row) {
	t.Helper()
	dir := t.TempDir()
	path, err := dbfixture.Apples(dir)
	if err != nil {
		t.Fatal(err)
	}
	p, err := pager.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { p.Close() })
	rows, err := schema.ReadAll(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}
	return p, rows
}

func scanAll(t *testing.T, p *pager.Pager, root uint32) []btree.Row {
	t.Helper()
	ctx := context.Background()
	it, err := btree.NewTableReader(p, root).Scan(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var out []btree.Row
	for {
		ok, err := it.Next(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			break
		}
		out = append(out, it.Row())
	}
	return out
}

func TestTableScanOrderedByRowid(t *testing.T) {
	p, rows := openFixture(t)
	tbl, ok := schema.FindTable(rows, "apples")
	if !ok {
		t.Fatal("apples table not found")
	}

	result := scanAll(t, p, tbl.RootPage)
	if len(result) != 4 {
		t.Fatalf("got %d rows, want 4", len(result))
	}
	for i := 1; i < len(result); i++ {
		if result[i].RowID <= result[i-1].RowID {
			t.Fatalf("rowids not strictly increasing: %v", result)
		}
	}

	names, err := decodeNames(p, result)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"Granny Smith", "Fuji", "Honeycrisp", "Golden Delicious"}
	for i, w := range want {
		if names[i] != w {
			t.Errorf("row %d: got %q, want %q", i, names[i], w)
		}
	}
}

func decodeNames(p *pager.Pager, rows []btree.Row) ([]string, error) {
	var out []string
	for _, r := range rows {
		vals, _, err := record.DecodeRecord(r.Payload, 0, p.Header.TextEncoding, map[int]bool{1: true})
		if err != nil {
			return nil, err
		}
		out = append(out, vals[1].Text())
	}
	return out, nil
}

func TestLookupByRowidSet(t *testing.T) {
	p, rows := openFixture(t)
	tbl, _ := schema.FindTable(rows, "apples")

	got, err := btree.NewTableReader(p, tbl.RootPage).LookupByRowidSet(context.Background(), []int64{3, 1, 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d rows, want 2 (deduped)", len(got))
	}
	if got[0].RowID != 1 || got[1].RowID != 3 {
		t.Fatalf("got rowids %d,%d, want 1,3 in ascending order", got[0].RowID, got[1].RowID)
	}
}

func TestLookupByRowidSetMissingRowidReturnsNothing(t *testing.T) {
	p, rows := openFixture(t)
	tbl, _ := schema.FindTable(rows, "apples")

	got, err := btree.NewTableReader(p, tbl.RootPage).LookupByRowidSet(context.Background(), []int64{999})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("got %d rows, want 0", len(got))
	}
}

func TestIndexLookupEqualMatchesFullScanFilter(t *testing.T) {
	p, rows := openFixture(t)
	tbl, _ := schema.FindTable(rows, "apples")
	idxs := schema.FindIndexesForTable(rows, "apples")
	if len(idxs) != 1 {
		t.Fatalf("expected exactly one index, got %d", len(idxs))
	}

	hits, err := btree.NewIndexReader(p, idxs[0].RootPage, p.Header.TextEncoding).LookupEqual(context.Background(), record.TextValue("Yellow"))
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 {
		t.Fatalf("got %d hits, want 1", len(hits))
	}

	full := scanAll(t, p, tbl.RootPage)
	var wantRowID int64
	found := false
	for _, r := range full {
		vals, _, err := record.DecodeRecord(r.Payload, 0, p.Header.TextEncoding, map[int]bool{2: true})
		if err != nil {
			t.Fatal(err)
		}
		if vals[2].Text() == "Yellow" {
			wantRowID = r.RowID
			found = true
		}
	}
	if !found {
		t.Fatal("full scan found no Yellow row to compare against")
	}
	if hits[0].RowID != wantRowID {
		t.Errorf("index lookup rowid %d does not match full-scan rowid %d", hits[0].RowID, wantRowID)
	}
}

func TestScanSurvivesInteriorPages(t *testing.T) {
	dir := t.TempDir()
	stmts := []string{`CREATE TABLE wide (id INTEGER PRIMARY KEY, payload TEXT)`}
	var inserts []string
	for i := 1; i <= 2000; i++ {
		inserts = append(inserts, fmt.Sprintf("(%d, '%s')", i, fmt.Sprintf("row-%d-padding-padding-padding", i)))
	}
	stmts = append(stmts, "INSERT INTO wide (id, payload) VALUES "+joinValues(inserts))

	path, err := dbfixture.Build(dir, "wide.db", stmts)
	if err != nil {
		t.Fatal(err)
	}
	p, err := pager.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	rows, err := schema.ReadAll(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}
	tbl, ok := schema.FindTable(rows, "wide")
	if !ok {
		t.Fatal("wide table not found")
	}

	got := scanAll(t, p, tbl.RootPage)
	if len(got) != 2000 {
		t.Fatalf("got %d rows, want 2000 (this exercises interior page traversal)", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].RowID <= got[i-1].RowID {
			t.Fatalf("rowids not strictly increasing at index %d: %d <= %d", i, got[i].RowID, got[i-1].RowID)
		}
	}

	mid, err := btree.NewTableReader(p, tbl.RootPage).LookupByRowidSet(context.Background(), []int64{1000})
	if err != nil {
		t.Fatal(err)
	}
	if len(mid) != 1 || mid[0].RowID != 1000 {
		t.Fatalf("got %+v, want a single row with rowid 1000", mid)
	}
}

func joinValues(vals []string) string {
	out := vals[0]
	for _, v := range vals[1:] {
		out += ", " + v
	}
	return out
}
