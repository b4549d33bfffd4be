// Package pager implements the storage engine's bottom layer: reading the
// 100-byte file header and fetching fixed-size pages by number. It
// generalizes the teacher's DatabaseRawImpl (app/database_raw.go) and its
// functional-options config (app/config.go), dropping the goroutine/
// semaphore concurrency machinery that conflicted with this engine's
// single-threaded execution model.
package pager

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/hgye/litequery/internal/record"
)

const fileHeaderSize = 100
const magicHeader = "SQLite format 3\x00"

// Header is the decoded 100-byte file header.
type Header struct {
	PageSize     uint32
	TextEncoding record.TextEncoding
	ChangeCount  uint32
	ReservedSpace uint8
}

type config struct {
	pageCacheSize int
	strict        bool
}

// Option configures a Pager. Mirrors the teacher's DatabaseOption pattern
// (app/config.go) with the concurrency-limiting knobs removed.
type Option func(*config)

// WithPageCacheSize bounds the number of pages kept in the in-memory LRU
// cache. Zero disables caching. It must not change any observable query
// result, only I/O volume.
func WithPageCacheSize(n int) Option {
	return func(c *config) { c.pageCacheSize = n }
}

// WithStrictValidation makes header parsing reject page sizes and magic
// bytes that a lenient reader might otherwise tolerate.
func WithStrictValidation(strict bool) Option {
	return func(c *config) { c.strict = strict }
}

func defaultConfig() config {
	return config{pageCacheSize: 64, strict: true}
}

// Pager owns the open database file and serves whole pages by number.
type Pager struct {
	file   *os.File
	Header Header

	mu    sync.Mutex
	cache map[uint32][]byte
	order []uint32
	cfg   config
}

// Open opens path and parses its file header. The returned Pager owns the
// file descriptor; call Close when done.
func Open(path string, opts ...Option) (*Pager, error) {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open database file: %w", err)
	}

	p := &Pager{file: f, cache: make(map[uint32][]byte), cfg: cfg}
	if err := p.parseHeader(cfg.strict); err != nil {
		f.Close()
		return nil, err
	}
	return p, nil
}

func (p *Pager) parseHeader(strict bool) error {
	buf := make([]byte, fileHeaderSize)
	if _, err := io.ReadFull(io.NewSectionReader(p.file, 0, fileHeaderSize), buf); err != nil {
		return fmt.Errorf("read file header: %w", err)
	}

	if strict && string(buf[:16]) != magicHeader {
		return fmt.Errorf("not a sqlite database: bad magic header")
	}

	rawPageSize := binary.BigEndian.Uint16(buf[16:18])
	pageSize := uint32(rawPageSize)
	if rawPageSize == 1 {
		pageSize = 65536
	}
	if strict && (pageSize < 512 || pageSize&(pageSize-1) != 0) {
		return fmt.Errorf("invalid page size %d", pageSize)
	}

	enc := record.TextEncoding(binary.BigEndian.Uint32(buf[56:60]))
	if enc == 0 {
		enc = record.UTF8
	}

	p.Header = Header{
		PageSize:      pageSize,
		TextEncoding:  enc,
		ChangeCount:   binary.BigEndian.Uint32(buf[24:28]),
		ReservedSpace: buf[20],
	}
	return nil
}

// Fetch returns the raw bytes of the given 1-based page number. The
// returned slice must be treated as read-only; callers that need to retain
// data across further Fetch calls must copy it (see internal/btree's
// lazy-row copy contract).
func (p *Pager) Fetch(ctx context.Context, pageNum uint32) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if pageNum == 0 {
		return nil, fmt.Errorf("invalid page number 0")
	}

	p.mu.Lock()
	if buf, ok := p.cache[pageNum]; ok {
		for i, n := range p.order {
			if n == pageNum {
				copy(p.order[i:], p.order[i+1:])
				p.order[len(p.order)-1] = pageNum
				break
			}
		}
		p.mu.Unlock()
		return buf, nil
	}
	p.mu.Unlock()

	buf := make([]byte, p.Header.PageSize)
	off := int64(pageNum-1) * int64(p.Header.PageSize)
	if _, err := p.file.ReadAt(buf, off); err != nil {
		return nil, fmt.Errorf("read page %d: %w", pageNum, err)
	}

	p.mu.Lock()
	p.store(pageNum, buf)
	p.mu.Unlock()
	return buf, nil
}

// store inserts buf into the cache, evicting the least recently used entry
// (the front of p.order) once over capacity. Not safe to call without
// holding p.mu.
func (p *Pager) store(pageNum uint32, buf []byte) {
	if p.cfg.pageCacheSize <= 0 {
		return
	}
	if _, exists := p.cache[pageNum]; !exists {
		if len(p.order) >= p.cfg.pageCacheSize {
			oldest := p.order[0]
			p.order = p.order[1:]
			delete(p.cache, oldest)
		}
		p.order = append(p.order, pageNum)
	}
	p.cache[pageNum] = buf
}

// Close releases the underlying file descriptor.
func (p *Pager) Close() error {
	return p.file.Close()
}
