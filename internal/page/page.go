// Package page decodes the 8- or 12-byte B-tree page header that sits at
// the front of every page (following the 100-byte file header on page 1).
package page

import (
	"encoding/binary"
	"fmt"
)

type Type uint8

const (
	InteriorIndex Type = 0x02
	InteriorTable Type = 0x05
	LeafIndex     Type = 0x0A
	LeafTable     Type = 0x0D
)

func (t Type) IsLeaf() bool {
	return t == LeafIndex || t == LeafTable
}

func (t Type) IsTable() bool {
	return t == InteriorTable || t == LeafTable
}

// Header is the decoded B-tree page header.
type Header struct {
	Type                Type
	FirstFreeblock      uint16
	CellCount           uint16
	CellContentStart    uint32 // 0 in the raw field means 65536
	FragmentedFreeBytes uint8
	RightmostPointer    uint32 // only meaningful for interior pages
	Size                int    // 8 or 12, the header's own byte length
}

// ParseHeader decodes the B-tree page header from buf. pageNum is 1-based;
// page 1 carries the header at offset 100, following the file header.
func ParseHeader(buf []byte, pageNum uint32) (Header, error) {
	offset := 0
	if pageNum == 1 {
		offset = 100
	}
	if len(buf) < offset+8 {
		return Header{}, fmt.Errorf("page %d too small for a b-tree header", pageNum)
	}

	h := Header{
		Type:                Type(buf[offset]),
		FirstFreeblock:      binary.BigEndian.Uint16(buf[offset+1:]),
		CellCount:           binary.BigEndian.Uint16(buf[offset+3:]),
		CellContentStart:    uint32(binary.BigEndian.Uint16(buf[offset+5:])),
		FragmentedFreeBytes: buf[offset+7],
	}
	if h.CellContentStart == 0 {
		h.CellContentStart = 65536
	}

	switch h.Type {
	case InteriorIndex, InteriorTable:
		if len(buf) < offset+12 {
			return Header{}, fmt.Errorf("page %d too small for an interior b-tree header", pageNum)
		}
		h.RightmostPointer = binary.BigEndian.Uint32(buf[offset+8:])
		h.Size = 12
	case LeafIndex, LeafTable:
		h.Size = 8
	default:
		return Header{}, fmt.Errorf("page %d: unknown b-tree page type 0x%02x", pageNum, buf[offset])
	}

	return h, nil
}

// HeaderOffset returns the byte offset within buf where the B-tree header
// (and therefore the cell pointer array right after it) begins.
func HeaderOffset(pageNum uint32) int {
	if pageNum == 1 {
		return 100
	}
	return 0
}

// CellPointers returns the page's cell pointer array: one big-endian u16
// per cell, each an offset (from the start of the page) to that cell's
// content.
func CellPointers(buf []byte, pageNum uint32, h Header) ([]uint16, error) {
	start := HeaderOffset(pageNum) + h.Size
	end := start + int(h.CellCount)*2
	if end > len(buf) {
		return nil, fmt.Errorf("page %d: cell pointer array overruns page", pageNum)
	}
	ptrs := make([]uint16, h.CellCount)
	for i := range ptrs {
		ptrs[i] = binary.BigEndian.Uint16(buf[start+i*2:])
	}
	return ptrs, nil
}
