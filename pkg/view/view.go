// Package view provides bounded, zero-copy windows over a shared byte buffer.
//
// A View is a value: copying it copies three integers and a slice header, never
// the bytes. Every protocol header and payload of a decoded frame is a View into
// the same backing array, so a write through any accessor is visible through every
// overlapping View.
package view

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrOutOfBounds is returned when a requested window does not fit the backing buffer.
var ErrOutOfBounds = errors.New("view: out of bounds")

// View is a window [off, off+n) over buf. limit caps how far Encapsulated and
// Resize may extend the window; it never exceeds len(buf).
type View struct {
	buf   []byte
	off   int
	n     int
	limit int
}

// New returns a View over the whole of buf.
func New(buf []byte) View {
	return View{buf: buf, off: 0, n: len(buf), limit: len(buf)}
}

// NewWithLimit returns a View over buf[off:off+n] whose extent may not pass limit.
func NewWithLimit(buf []byte, off, n, limit int) (View, error) {
	if off < 0 || n < 0 || limit > len(buf) || off+n > limit {
		return View{}, fmt.Errorf("%w: off=%d n=%d limit=%d cap=%d", ErrOutOfBounds, off, n, limit, len(buf))
	}
	return View{buf: buf, off: off, n: n, limit: limit}, nil
}

// Alloc returns a View over a fresh zeroed buffer of n bytes.
func Alloc(n int) View {
	return New(make([]byte, n))
}

// Offset is the start of the window within the backing buffer.
func (v View) Offset() int { return v.off }

// Len is the number of bytes in the window.
func (v View) Len() int { return v.n }

// Limit is the furthest index of the backing buffer this window may reach.
func (v View) Limit() int { return v.limit }

// Available is the number of bytes between the start of the window and its limit.
func (v View) Available() int { return v.limit - v.off }

// Backing returns the whole backing buffer.
func (v View) Backing() []byte { return v.buf }

// IsEmpty reports whether the window has no bytes.
func (v View) IsEmpty() bool { return v.n == 0 }

// Bytes returns the window as a sub-slice of the backing buffer. Writes to the
// returned slice are writes to the packet.
func (v View) Bytes() []byte {
	return v.buf[v.off : v.off+v.n : v.off+v.n]
}

// NeedsCopy reports whether Materialize has to allocate, i.e. the window is not
// the complete backing buffer.
func (v View) NeedsCopy() bool {
	return v.off != 0 || v.n != len(v.buf)
}

// Materialize returns the window contents as a standalone slice. When the window
// spans the whole backing buffer the backing buffer itself is returned.
func (v View) Materialize() []byte {
	if !v.NeedsCopy() {
		return v.buf
	}
	out := make([]byte, v.n)
	copy(out, v.Bytes())
	return out
}

// Slice returns the sub-window [off, off+n) relative to v. A length that runs past
// the limit is clamped; an offset outside the limit yields an empty window
// positioned at the limit.
func (v View) Slice(off, n int) View {
	if off < 0 {
		off = 0
	}
	start := v.off + off
	if start > v.limit {
		start = v.limit
	}
	if n < 0 || start+n > v.limit {
		n = v.limit - start
	}
	return View{buf: v.buf, off: start, n: n, limit: v.limit}
}

// SliceStrict is Slice without clamping.
func (v View) SliceStrict(off, n int) (View, error) {
	if off < 0 || n < 0 || v.off+off+n > v.limit {
		return View{}, fmt.Errorf("%w: slice off=%d n=%d of view off=%d limit=%d", ErrOutOfBounds, off, n, v.off, v.limit)
	}
	return View{buf: v.buf, off: v.off + off, n: n, limit: v.limit}, nil
}

// Encapsulated returns the window immediately following v, running to the limit.
// A non-negative max caps its length.
func (v View) Encapsulated(max int) View {
	start := v.off + v.n
	n := v.limit - start
	if max >= 0 && max < n {
		n = max
	}
	return View{buf: v.buf, off: start, n: n, limit: v.limit}
}

// Bounded returns v with its limit lowered to the end of the window, so that
// nothing derived from it can reach past it.
func (v View) Bounded() View {
	return View{buf: v.buf, off: v.off, n: v.n, limit: v.off + v.n}
}

// Resize changes the window length, clamped to the limit.
func (v View) Resize(n int) View {
	if n < 0 {
		n = 0
	}
	if v.off+n > v.limit {
		n = v.limit - v.off
	}
	v.n = n
	return v
}

// Adjacent reports whether next starts exactly where v ends in the same buffer.
func (v View) Adjacent(next View) bool {
	if len(v.buf) == 0 || len(next.buf) == 0 {
		return len(next.buf) == 0 && next.n == 0
	}
	return &v.buf[0] == &next.buf[0] && v.off+v.n == next.off
}

// Join merges v with an adjacent window. ok is false when the windows are not adjacent.
func (v View) Join(next View) (joined View, ok bool) {
	if next.n == 0 {
		return v, true
	}
	if !v.Adjacent(next) {
		return View{}, false
	}
	limit := v.limit
	if next.limit > limit {
		limit = next.limit
	}
	return View{buf: v.buf, off: v.off, n: v.n + next.n, limit: limit}, true
}

// At returns the byte at i.
func (v View) At(i int) byte { return v.buf[v.off+i] }

// Uint8 reads a byte at field offset i.
func (v View) Uint8(i int) uint8 { return v.buf[v.off+i] }

// PutUint8 writes a byte at field offset i.
func (v View) PutUint8(i int, x uint8) { v.buf[v.off+i] = x }

// Uint16 reads a big-endian uint16 at field offset i.
func (v View) Uint16(i int) uint16 { return binary.BigEndian.Uint16(v.buf[v.off+i:]) }

// PutUint16 writes a big-endian uint16 at field offset i.
func (v View) PutUint16(i int, x uint16) { binary.BigEndian.PutUint16(v.buf[v.off+i:], x) }

// Uint24 reads a big-endian 24-bit value at field offset i.
func (v View) Uint24(i int) uint32 {
	b := v.buf[v.off+i : v.off+i+3]
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}

// PutUint24 writes the low 24 bits of x big-endian at field offset i.
func (v View) PutUint24(i int, x uint32) {
	b := v.buf[v.off+i : v.off+i+3]
	b[0], b[1], b[2] = byte(x>>16), byte(x>>8), byte(x)
}

// Uint32 reads a big-endian uint32 at field offset i.
func (v View) Uint32(i int) uint32 { return binary.BigEndian.Uint32(v.buf[v.off+i:]) }

// PutUint32 writes a big-endian uint32 at field offset i.
func (v View) PutUint32(i int, x uint32) { binary.BigEndian.PutUint32(v.buf[v.off+i:], x) }

// Uint64 reads a big-endian uint64 at field offset i.
func (v View) Uint64(i int) uint64 { return binary.BigEndian.Uint64(v.buf[v.off+i:]) }

// PutUint64 writes a big-endian uint64 at field offset i.
func (v View) PutUint64(i int, x uint64) { binary.BigEndian.PutUint64(v.buf[v.off+i:], x) }

// Uint16LE reads a little-endian uint16 at field offset i.
func (v View) Uint16LE(i int) uint16 { return binary.LittleEndian.Uint16(v.buf[v.off+i:]) }

// PutUint16LE writes a little-endian uint16 at field offset i.
func (v View) PutUint16LE(i int, x uint16) { binary.LittleEndian.PutUint16(v.buf[v.off+i:], x) }

// Uint32LE reads a little-endian uint32 at field offset i.
func (v View) Uint32LE(i int) uint32 { return binary.LittleEndian.Uint32(v.buf[v.off+i:]) }

// PutUint32LE writes a little-endian uint32 at field offset i.
func (v View) PutUint32LE(i int, x uint32) { binary.LittleEndian.PutUint32(v.buf[v.off+i:], x) }

// Field returns the n bytes at field offset i, aliasing the buffer.
func (v View) Field(i, n int) []byte {
	return v.buf[v.off+i : v.off+i+n : v.off+i+n]
}

// CopyField returns a copy of the n bytes at field offset i.
func (v View) CopyField(i, n int) []byte {
	out := make([]byte, n)
	copy(out, v.buf[v.off+i:v.off+i+n])
	return out
}

// PutBytes copies b into the window at field offset i.
func (v View) PutBytes(i int, b []byte) {
	copy(v.buf[v.off+i:v.off+i+len(b)], b)
}

// String implements fmt.Stringer for debugging.
func (v View) String() string {
	return fmt.Sprintf("view[off=%d len=%d limit=%d]", v.off, v.n, v.limit)
}
