// Package btree implements lazy, forward-only readers over SQLite's table
// and index B-trees. It replaces the teacher's eager, goroutine-per-cell
// traversal (app/table_raw.go, app/index_raw.go, app/btree.go) with an
// explicit-stack pull iterator and genuine binary-search descent, per the
// access patterns the teacher's own QueryOptimizer (app/query_optimizer.go)
// was built to exploit but never actually wired up.
package btree

import (
	"context"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/hgye/litequery/internal/page"
	"github.com/hgye/litequery/internal/pager"
	"github.com/hgye/litequery/internal/record"
	"github.com/hgye/litequery/internal/varint"
)

// ErrUnsupported is the sentinel wrapped by errors for input outside this
// engine's subset: a cell's payload that spills onto overflow pages, and a
// mixed-type (text vs. numeric) comparison (see SPEC_FULL.md §9).
var ErrUnsupported = fmt.Errorf("unsupported")

func usableSize(p *pager.Pager) int {
	u := int(p.Header.PageSize) - int(p.Header.ReservedSpace)
	return u
}

func maxLocalTable(usable int) int { return usable - 35 }
func maxLocalIndex(usable int) int { return ((usable-12)*64)/255 - 23 }

// Row is one decoded table row: its rowid and the raw record payload bytes
// (not yet decoded into column values — the caller picks which columns to
// decode via record.DecodeRecord).
type Row struct {
	RowID   int64
	Payload []byte
}

// IndexHit is one decoded index entry: the trailing rowid, plus the decoded
// indexed columns in Values (the record's trailing rowid column is not
// repeated there).
type IndexHit struct {
	RowID  int64
	Values []record.Value
}

type frame struct {
	pageNum   uint32
	buf       []byte
	header    page.Header
	ptrs      []uint16
	childIdx  int
	rightDone bool
}

func loadFrame(ctx context.Context, p *pager.Pager, pageNum uint32) (frame, error) {
	buf, err := p.Fetch(ctx, pageNum)
	if err != nil {
		return frame{}, err
	}
	h, err := page.ParseHeader(buf, pageNum)
	if err != nil {
		return frame{}, err
	}
	ptrs, err := page.CellPointers(buf, pageNum, h)
	if err != nil {
		return frame{}, err
	}
	return frame{pageNum: pageNum, buf: buf, header: h, ptrs: ptrs}, nil
}

// TableReader reads rows from a table B-tree rooted at rootPage.
type TableReader struct {
	pager    *pager.Pager
	rootPage uint32
}

func NewTableReader(p *pager.Pager, rootPage uint32) *TableReader {
	return &TableReader{pager: p, rootPage: rootPage}
}

// RowIter is a lazy, forward-only pull iterator over table rows in rowid
// order. Call Next until it returns (false, nil); Row returns the row a
// true Next produced. Its payload is a copy of the page bytes, so a Row
// stays valid after later Next calls.
type RowIter struct {
	pager *pager.Pager
	stack []frame
	cur   Row
}

func (t *TableReader) Scan(ctx context.Context) (*RowIter, error) {
	root, err := loadFrame(ctx, t.pager, t.rootPage)
	if err != nil {
		return nil, err
	}
	return &RowIter{pager: t.pager, stack: []frame{root}}, nil
}

func (it *RowIter) Next(ctx context.Context) (bool, error) {
	for len(it.stack) > 0 {
		top := &it.stack[len(it.stack)-1]

		if top.header.Type.IsLeaf() {
			if top.childIdx >= len(top.ptrs) {
				it.stack = it.stack[:len(it.stack)-1]
				continue
			}
			off := int(top.ptrs[top.childIdx])
			top.childIdx++
			row, err := decodeTableLeafCell(it.pager, top.buf, off)
			if err != nil {
				return false, err
			}
			it.cur = row
			return true, nil
		}

		// Interior page: visit each left child in cell order, then the
		// rightmost pointer.
		if top.childIdx < len(top.ptrs) {
			off := int(top.ptrs[top.childIdx])
			top.childIdx++
			childPage := binary.BigEndian.Uint32(top.buf[off:])
			f, err := loadFrame(ctx, it.pager, childPage)
			if err != nil {
				return false, err
			}
			it.stack = append(it.stack, f)
			continue
		}
		if !top.rightDone {
			top.rightDone = true
			f, err := loadFrame(ctx, it.pager, top.header.RightmostPointer)
			if err != nil {
				return false, err
			}
			it.stack = append(it.stack, f)
			continue
		}
		it.stack = it.stack[:len(it.stack)-1]
	}
	return false, nil
}

func (it *RowIter) Row() Row { return it.cur }

func decodeTableLeafCell(p *pager.Pager, buf []byte, off int) (Row, error) {
	payloadSize, n, err := varint.Read(buf, off)
	if err != nil {
		return Row{}, fmt.Errorf("decode leaf cell payload size: %w", err)
	}
	off += n
	rowid, n, err := varint.Read(buf, off)
	if err != nil {
		return Row{}, fmt.Errorf("decode leaf cell rowid: %w", err)
	}
	off += n

	max := maxLocalTable(usableSize(p))
	if int(payloadSize) > max {
		return Row{}, fmt.Errorf("%w: payload spills onto overflow pages", ErrUnsupported)
	}
	if off+int(payloadSize) > len(buf) {
		return Row{}, fmt.Errorf("corrupt table leaf cell: payload overruns page")
	}
	payload := append([]byte(nil), buf[off:off+int(payloadSize)]...)
	return Row{RowID: int64(rowid), Payload: payload}, nil
}

// tableInteriorCell returns the left child page and rowid key of the table
// interior cell at off (4-byte child page number followed by a varint rowid).
func tableInteriorCell(buf []byte, off int) (childPage uint32, key int64, err error) {
	childPage = binary.BigEndian.Uint32(buf[off:])
	k, _, err := varint.Read(buf, off+4)
	if err != nil {
		return 0, 0, fmt.Errorf("decode interior cell key: %w", err)
	}
	return childPage, int64(k), nil
}

// LookupByRowidSet returns the rows whose rowid is in the given (unsorted,
// possibly-duplicate) set, in rowid order. It descends the tree with a
// binary search at every interior page rather than following every child,
// per the access-path the teacher's QueryOptimizer was meant to use.
func (t *TableReader) LookupByRowidSet(ctx context.Context, rowids []int64) ([]Row, error) {
	wanted := append([]int64(nil), rowids...)
	sort.Slice(wanted, func(i, j int) bool { return wanted[i] < wanted[j] })
	wanted = dedupeInt64(wanted)

	var out []Row
	var walk func(pageNum uint32, lo, hi int) error
	walk = func(pageNum uint32, lo, hi int) error {
		if lo >= hi {
			return nil
		}
		f, err := loadFrame(ctx, t.pager, pageNum)
		if err != nil {
			return err
		}
		if f.header.Type.IsLeaf() {
			for _, off := range f.ptrs {
				row, err := decodeTableLeafCell(t.pager, f.buf, int(off))
				if err != nil {
					return err
				}
				if containsSorted(wanted[lo:hi], row.RowID) {
					out = append(out, row)
				}
			}
			return nil
		}

		// Binary-search descent: for each target rowid find the first
		// child cell whose key >= rowid; since wanted is sorted we sweep
		// once, doing a binary search per distinct child bucket.
		start := lo
		for start < hi {
			target := wanted[start]
			idx := sort.Search(len(f.ptrs), func(i int) bool {
				_, key, err := tableInteriorCell(f.buf, int(f.ptrs[i]))
				if err != nil {
					return true
				}
				return key >= target
			})
			var childPage uint32
			if idx < len(f.ptrs) {
				childPage, _, err = tableInteriorCell(f.buf, int(f.ptrs[idx]))
				if err != nil {
					return err
				}
			} else {
				childPage = f.header.RightmostPointer
			}
			// Advance end to cover every target rowid routed to the same
			// child (those with key <= this child's upper bound).
			end := start + 1
			for end < hi {
				idx2 := sort.Search(len(f.ptrs), func(i int) bool {
					_, key, err := tableInteriorCell(f.buf, int(f.ptrs[i]))
					if err != nil {
						return true
					}
					return key >= wanted[end]
				})
				if idx2 != idx {
					break
				}
				end++
			}
			if err := walk(childPage, start, end); err != nil {
				return err
			}
			start = end
		}
		return nil
	}

	if err := walk(t.rootPage, 0, len(wanted)); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RowID < out[j].RowID })
	return out, nil
}

func dedupeInt64(sorted []int64) []int64 {
	if len(sorted) == 0 {
		return sorted
	}
	out := sorted[:1]
	for _, v := range sorted[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}

func containsSorted(sorted []int64, v int64) bool {
	i := sort.Search(len(sorted), func(i int) bool { return sorted[i] >= v })
	return i < len(sorted) && sorted[i] == v
}

// IndexReader reads entries from an index B-tree rooted at rootPage.
type IndexReader struct {
	pager    *pager.Pager
	rootPage uint32
	enc      record.TextEncoding
}

func NewIndexReader(p *pager.Pager, rootPage uint32, enc record.TextEncoding) *IndexReader {
	return &IndexReader{pager: p, rootPage: rootPage, enc: enc}
}

func decodeIndexCell(p *pager.Pager, enc record.TextEncoding, buf []byte, off int) (IndexHit, error) {
	payloadSize, n, err := varint.Read(buf, off)
	if err != nil {
		return IndexHit{}, fmt.Errorf("decode index cell payload size: %w", err)
	}
	off += n

	max := maxLocalIndex(usableSize(p))
	if int(payloadSize) > max {
		return IndexHit{}, fmt.Errorf("%w: payload spills onto overflow pages", ErrUnsupported)
	}
	if off+int(payloadSize) > len(buf) {
		return IndexHit{}, fmt.Errorf("corrupt index cell: payload overruns page")
	}
	values, _, err := record.DecodeRecord(buf, off, enc, nil)
	if err != nil {
		return IndexHit{}, fmt.Errorf("decode index record: %w", err)
	}
	if len(values) == 0 {
		return IndexHit{}, fmt.Errorf("corrupt index record: no columns")
	}
	rowid := values[len(values)-1].Int()
	return IndexHit{RowID: rowid, Values: values[:len(values)-1]}, nil
}

// indexInteriorChildAndKey reads a b-tree index interior cell: a 4-byte
// child pointer followed by the same varint-payload-size + record layout
// as a leaf cell.
func indexInteriorChildAndKey(p *pager.Pager, enc record.TextEncoding, buf []byte, off int) (uint32, IndexHit, error) {
	child := binary.BigEndian.Uint32(buf[off:])
	hit, err := decodeIndexCell(p, enc, buf, off+4)
	return child, hit, err
}

// compareFirstColumn compares an index entry's leading column against key,
// following the mixed-type rule: text vs integer comparisons are
// unsupported (SPEC_FULL.md §9).
func compareFirstColumn(entry []record.Value, key record.Value) (int, error) {
	if len(entry) == 0 {
		return 0, fmt.Errorf("index entry has no columns")
	}
	a := entry[0]
	if a.Type() != key.Type() {
		if (a.Type() == record.Integer || a.Type() == record.Float) &&
			(key.Type() == record.Integer || key.Type() == record.Float) {
			af, kf := a.Float(), key.Float()
			switch {
			case af < kf:
				return -1, nil
			case af > kf:
				return 1, nil
			default:
				return 0, nil
			}
		}
		return 0, fmt.Errorf("%w: mixed-type index comparison", ErrUnsupported)
	}
	switch a.Type() {
	case record.Integer:
		switch {
		case a.Int() < key.Int():
			return -1, nil
		case a.Int() > key.Int():
			return 1, nil
		}
		return 0, nil
	case record.Float:
		switch {
		case a.Float() < key.Float():
			return -1, nil
		case a.Float() > key.Float():
			return 1, nil
		}
		return 0, nil
	case record.Text:
		switch {
		case a.Text() < key.Text():
			return -1, nil
		case a.Text() > key.Text():
			return 1, nil
		}
		return 0, nil
	case record.Blob:
		a2, k2 := string(a.Blob()), string(key.Blob())
		switch {
		case a2 < k2:
			return -1, nil
		case a2 > k2:
			return 1, nil
		}
		return 0, nil
	default:
		return 0, nil
	}
}

// LookupEqual returns every index entry whose leading (and, in this
// single-column-predicate engine, only consulted) column equals key, via a
// binary-search descent of the index B-tree.
func (ix *IndexReader) LookupEqual(ctx context.Context, key record.Value) ([]IndexHit, error) {
	var out []IndexHit
	var walk func(pageNum uint32) error
	walk = func(pageNum uint32) error {
		f, err := loadFrame(ctx, ix.pager, pageNum)
		if err != nil {
			return err
		}
		if f.header.Type.IsLeaf() {
			lo, hi, err := boundsInLeaf(ix.pager, ix.enc, f, key)
			if err != nil {
				return err
			}
			for i := lo; i < hi; i++ {
				hit, err := decodeIndexCell(ix.pager, ix.enc, f.buf, int(f.ptrs[i]))
				if err != nil {
					return err
				}
				out = append(out, hit)
			}
			return nil
		}

		// Each interior cell carries both a separator key and a real
		// index entry. Entries equal to key may live in the child left of
		// the first cell whose key is >= key, in that cell itself, or in
		// any immediately following child/cell while the key keeps
		// comparing equal (duplicate keys).
		idx := sort.Search(len(f.ptrs), func(i int) bool {
			_, hit, err := indexInteriorChildAndKey(ix.pager, ix.enc, f.buf, int(f.ptrs[i]))
			if err != nil {
				return true
			}
			cmp, err := compareFirstColumn(hit.Values, key)
			if err != nil {
				return true
			}
			return cmp >= 0
		})

		if idx == len(f.ptrs) {
			return walk(f.header.RightmostPointer)
		}

		child, hit, err := indexInteriorChildAndKey(ix.pager, ix.enc, f.buf, int(f.ptrs[idx]))
		if err != nil {
			return err
		}
		if err := walk(child); err != nil {
			return err
		}
		for i := idx; i < len(f.ptrs); i++ {
			_, hit, err = indexInteriorChildAndKey(ix.pager, ix.enc, f.buf, int(f.ptrs[i]))
			if err != nil {
				return err
			}
			cmp, err := compareFirstColumn(hit.Values, key)
			if err != nil {
				return err
			}
			if cmp != 0 {
				break
			}
			out = append(out, hit)
			var nextChild uint32
			if i+1 < len(f.ptrs) {
				nextChild, _, err = indexInteriorChildAndKey(ix.pager, ix.enc, f.buf, int(f.ptrs[i+1]))
				if err != nil {
					return err
				}
			} else {
				nextChild = f.header.RightmostPointer
			}
			if err := walk(nextChild); err != nil {
				return err
			}
		}
		return nil
	}

	if err := walk(ix.rootPage); err != nil {
		return nil, err
	}
	return out, nil
}

// boundsInLeaf binary-searches a leaf page's cell pointer array (sorted by
// key) for the half-open range of cells matching key.
func boundsInLeaf(p *pager.Pager, enc record.TextEncoding, f frame, key record.Value) (int, int, error) {
	var decodeErr error
	cmpAt := func(i int) int {
		hit, err := decodeIndexCell(p, enc, f.buf, int(f.ptrs[i]))
		if err != nil {
			decodeErr = err
			return 0
		}
		c, err := compareFirstColumn(hit.Values, key)
		if err != nil {
			decodeErr = err
			return 0
		}
		return c
	}
	lo := sort.Search(len(f.ptrs), func(i int) bool { return cmpAt(i) >= 0 })
	if decodeErr != nil {
		return 0, 0, decodeErr
	}
	hi := sort.Search(len(f.ptrs), func(i int) bool { return cmpAt(i) > 0 })
	if decodeErr != nil {
		return 0, 0, decodeErr
	}
	return lo, hi, nil
}
