package view

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCoversWholeBuffer(t *testing.T) {
	buf := []byte{1, 2, 3, 4}
	v := New(buf)

	assert.Equal(t, 0, v.Offset())
	assert.Equal(t, 4, v.Len())
	assert.Equal(t, 4, v.Limit())
	assert.False(t, v.NeedsCopy())
	assert.Equal(t, []byte{1, 2, 3, 4}, v.Bytes())
}

func TestNewWithLimitValidates(t *testing.T) {
	buf := make([]byte, 10)

	_, err := NewWithLimit(buf, 2, 4, 6)
	require.NoError(t, err)

	_, err = NewWithLimit(buf, 4, 4, 6)
	assert.True(t, errors.Is(err, ErrOutOfBounds))

	_, err = NewWithLimit(buf, 0, 0, 11)
	assert.True(t, errors.Is(err, ErrOutOfBounds))

	_, err = NewWithLimit(buf, -1, 0, 5)
	assert.True(t, errors.Is(err, ErrOutOfBounds))
}

func TestMaterializeSharesWholeBuffer(t *testing.T) {
	buf := []byte{0xaa, 0xbb, 0xcc}
	v := New(buf)

	out := v.Materialize()
	out[0] = 0x11
	assert.Equal(t, byte(0x11), buf[0], "whole-buffer view must return the backing array")
}

func TestMaterializeCopiesSubView(t *testing.T) {
	buf := []byte{0xaa, 0xbb, 0xcc, 0xdd}
	v := New(buf).Slice(1, 2)

	require.True(t, v.NeedsCopy())
	out := v.Materialize()
	assert.Equal(t, []byte{0xbb, 0xcc}, out)

	out[0] = 0x00
	assert.Equal(t, byte(0xbb), buf[1], "sub-view materialization must not alias")
}

func TestSliceClampsToLimit(t *testing.T) {
	buf := make([]byte, 8)
	v := New(buf)

	s := v.Slice(6, 10)
	assert.Equal(t, 6, s.Offset())
	assert.Equal(t, 2, s.Len())

	s = v.Slice(12, 4)
	assert.Equal(t, 8, s.Offset())
	assert.Equal(t, 0, s.Len())
	assert.True(t, s.IsEmpty())
}

func TestSliceStrict(t *testing.T) {
	v := New(make([]byte, 8))

	s, err := v.SliceStrict(2, 6)
	require.NoError(t, err)
	assert.Equal(t, 6, s.Len())

	_, err = v.SliceStrict(2, 7)
	assert.ErrorIs(t, err, ErrOutOfBounds)
}

func TestEncapsulated(t *testing.T) {
	buf := []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	hdr := New(buf).Slice(0, 4)

	payload := hdr.Encapsulated(-1)
	assert.Equal(t, 4, payload.Offset())
	assert.Equal(t, 6, payload.Len())
	assert.Equal(t, []byte{4, 5, 6, 7, 8, 9}, payload.Bytes())

	capped := hdr.Encapsulated(3)
	assert.Equal(t, []byte{4, 5, 6}, capped.Bytes())

	over := hdr.Encapsulated(100)
	assert.Equal(t, 6, over.Len())
}

func TestBoundedStopsEncapsulation(t *testing.T) {
	buf := make([]byte, 10)
	v := New(buf).Slice(0, 6).Bounded()

	inner := v.Slice(0, 2)
	assert.Equal(t, 4, inner.Encapsulated(-1).Len())
}

func TestWritesAreShared(t *testing.T) {
	buf := make([]byte, 8)
	a := New(buf)
	b := a.Slice(2, 4)

	b.PutUint16(0, 0x1234)
	assert.Equal(t, uint16(0x1234), a.Uint16(2))
	assert.Equal(t, []byte{0, 0, 0x12, 0x34, 0, 0, 0, 0}, buf)
}

func TestEndianAccessors(t *testing.T) {
	v := Alloc(16)

	v.PutUint8(0, 0xfe)
	v.PutUint16(1, 0x0102)
	v.PutUint24(3, 0x030405)
	v.PutUint32(6, 0x06070809)
	v.PutUint16LE(10, 0x0a0b)
	v.PutUint32LE(12, 0x0c0d0e0f)

	assert.Equal(t, uint8(0xfe), v.Uint8(0))
	assert.Equal(t, uint16(0x0102), v.Uint16(1))
	assert.Equal(t, uint32(0x030405), v.Uint24(3))
	assert.Equal(t, uint32(0x06070809), v.Uint32(6))
	assert.Equal(t, uint16(0x0a0b), v.Uint16LE(10))
	assert.Equal(t, uint32(0x0c0d0e0f), v.Uint32LE(12))
	assert.Equal(t, []byte{0x0b, 0x0a}, v.Field(10, 2))

	w := Alloc(8)
	w.PutUint64(0, 0x0102030405060708)
	assert.Equal(t, uint64(0x0102030405060708), w.Uint64(0))
}

func TestAdjacentAndJoin(t *testing.T) {
	buf := make([]byte, 10)
	whole := New(buf)
	hdr := whole.Slice(0, 4)
	body := hdr.Encapsulated(-1)

	assert.True(t, hdr.Adjacent(body))
	joined, ok := hdr.Join(body)
	require.True(t, ok)
	assert.Equal(t, 10, joined.Len())
	assert.False(t, joined.NeedsCopy())

	other := New(make([]byte, 6))
	_, ok = hdr.Join(other)
	assert.False(t, ok)

	gap := whole.Slice(5, 2)
	assert.False(t, hdr.Adjacent(gap))
}

func TestResize(t *testing.T) {
	v := New(make([]byte, 10)).Slice(2, 3)

	assert.Equal(t, 6, v.Resize(6).Len())
	assert.Equal(t, 8, v.Resize(20).Len())
	assert.Equal(t, 0, v.Resize(-1).Len())
}

func TestCopyFieldDoesNotAlias(t *testing.T) {
	buf := []byte{1, 2, 3, 4}
	v := New(buf)

	c := v.CopyField(1, 2)
	c[0] = 9
	assert.Equal(t, byte(2), buf[1])

	v.PutBytes(1, []byte{7, 8})
	assert.Equal(t, []byte{1, 7, 8, 4}, buf)
}

func BenchmarkSliceAndRead(b *testing.B) {
	buf := make([]byte, 1500)
	v := New(buf)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s := v.Slice(14, 20)
		_ = s.Uint16(2)
		_ = s.Encapsulated(-1).Len()
	}
}
