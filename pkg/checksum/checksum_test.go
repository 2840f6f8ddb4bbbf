package checksum

import (
	"bytes"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecksumRFC1071Example(t *testing.T) {
	data := []byte{0x00, 0x01, 0xf2, 0x03, 0xf4, 0xf5, 0xf6, 0xf7}
	assert.Equal(t, uint16(0x220d), Checksum(data))
}

func TestChecksumIPv4Header(t *testing.T) {
	hdr := []byte{
		0x45, 0x00, 0x00, 0x73, 0x00, 0x00, 0x40, 0x00,
		0x40, 0x11, 0x00, 0x00, 0xc0, 0xa8, 0x00, 0x01,
		0xc0, 0xa8, 0x00, 0xc7,
	}
	assert.Equal(t, uint16(0xb861), Checksum(hdr))

	hdr[10], hdr[11] = 0xb8, 0x61
	assert.True(t, Valid(hdr))
}

func TestChecksumSplitOddParts(t *testing.T) {
	data := []byte{0x00, 0x01, 0xf2, 0x03, 0xf4, 0xf5, 0xf6, 0xf7, 0x42}
	whole := Checksum(data)

	assert.Equal(t, whole, Checksum(data[:3], data[3:]))
	assert.Equal(t, whole, Checksum(data[:1], data[1:4], data[4:7], data[7:]))
	assert.Equal(t, whole, Checksum(nil, data[:5], []byte{}, data[5:]))
}

func TestOddLengthPadsWithZero(t *testing.T) {
	assert.Equal(t, Checksum([]byte{0x12, 0x34, 0x56, 0x00}), Checksum([]byte{0x12, 0x34, 0x56}))
}

func TestTransportIgnoresChecksumField(t *testing.T) {
	pseudo := IPv4PseudoHeader(netip.MustParseAddr("10.0.0.1"), netip.MustParseAddr("10.0.0.2"), 17, 10)
	seg := []byte{0x04, 0xd2, 0x16, 0x2e, 0x00, 0x0a, 0xde, 0xad, 0x68, 0x69}

	got := Transport(pseudo, seg, 6)
	assert.Equal(t, []byte{0xde, 0xad}, seg[6:8], "segment must not be modified")

	seg[6], seg[7] = 0, 0
	assert.Equal(t, Checksum(pseudo, seg), got)

	seg[6], seg[7] = byte(got>>8), byte(got)
	assert.True(t, Valid(pseudo, seg))
}

func TestPseudoHeaders(t *testing.T) {
	p4 := IPv4PseudoHeader(netip.MustParseAddr("192.168.0.1"), netip.MustParseAddr("192.168.0.199"), 6, 0x1234)
	require.Len(t, p4, 12)
	assert.Equal(t, []byte{192, 168, 0, 1, 192, 168, 0, 199, 0, 6, 0x12, 0x34}, p4)

	p6 := IPv6PseudoHeader(netip.MustParseAddr("fe80::1"), netip.MustParseAddr("ff02::1"), 58, 24)
	require.Len(t, p6, 40)
	assert.Equal(t, byte(0xfe), p6[0])
	assert.Equal(t, byte(0xff), p6[16])
	assert.Equal(t, []byte{0, 0, 0, 24, 0, 0, 0, 58}, p6[32:40])
}

func TestFold(t *testing.T) {
	assert.Equal(t, uint16(0xffff), Fold(0))
	assert.Equal(t, uint16(0x0000), Fold(0xffff))
	assert.Equal(t, ^uint16(0x0002), Fold(0x10001))
	assert.Equal(t, uint16(0x0000), Fold(0xffffffff))
}

// referenceChecksum sums in 64 bits with no intermediate folding.
func referenceChecksum(b []byte) uint16 {
	var sum uint64
	for i := 0; i+1 < len(b); i += 2 {
		sum += uint64(b[i])<<8 | uint64(b[i+1])
	}
	if len(b)%2 == 1 {
		sum += uint64(b[len(b)-1]) << 8
	}
	for sum > 0xffff {
		sum = (sum >> 16) + (sum & 0xffff)
	}
	return ^uint16(sum)
}

func TestChecksumLargeBuffers(t *testing.T) {
	tests := []struct {
		name string
		n    int
	}{
		{"64KiB", 65536},
		{"just past 128KiB", 131074},
		{"140000 bytes", 140000},
		{"256KiB", 262144},
		{"odd 1MiB", 1<<20 + 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := bytes.Repeat([]byte{0xff, 0xfe}, (tt.n+1)/2)[:tt.n]
			want := referenceChecksum(data)

			assert.Equal(t, want, Checksum(data))
			assert.Equal(t, want, Checksum(data[:7], data[7:tt.n/2], data[tt.n/2:]))
			assert.Equal(t, want, Fold(Sum(data, 0)))
			assert.LessOrEqual(t, Sum(data, 0xffffffff), uint32(0xffff))
		})
	}
}

func BenchmarkChecksum1500(b *testing.B) {
	buf := make([]byte, 1500)
	for i := range buf {
		buf[i] = byte(i)
	}
	b.SetBytes(int64(len(buf)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Checksum(buf)
	}
}
