// Package checksum implements the Internet one's-complement checksum (RFC 1071)
// and the IPv4/IPv6 pseudo-headers used by transport protocols.
package checksum

import (
	"encoding/binary"
	"net/netip"
)

// Sum adds b to initial as a sequence of big-endian 16-bit words. A trailing odd
// byte is treated as the high byte of a zero-padded word. The words are
// accumulated in 64 bits and the carries are folded back, so the result is the
// uncomplemented one's-complement sum and never exceeds 0xffff for any length
// of b.
func Sum(b []byte, initial uint32) uint32 {
	sum := uint64(initial)
	n := len(b)
	for i := 0; i+1 < n; i += 2 {
		sum += uint64(b[i])<<8 | uint64(b[i+1])
	}
	if n%2 == 1 {
		sum += uint64(b[n-1]) << 8
	}
	return uint32(reduce(sum))
}

// reduce folds the end-around carries of sum into 16 bits.
func reduce(sum uint64) uint64 {
	for sum > 0xffff {
		sum = (sum >> 16) + (sum & 0xffff)
	}
	return sum
}

// Fold folds the carries of sum into 16 bits and returns the complement.
func Fold(sum uint32) uint16 {
	return ^uint16(reduce(uint64(sum)))
}

// Checksum computes the Internet checksum over the concatenation of parts.
// Parts of odd length are joined as if they were one contiguous buffer.
func Checksum(parts ...[]byte) uint16 {
	var sum uint32
	odd := false
	var carry byte
	for _, p := range parts {
		if len(p) == 0 {
			continue
		}
		if odd {
			sum += uint32(carry)<<8 | uint32(p[0])
			p = p[1:]
			odd = false
		}
		if len(p)%2 == 1 {
			carry = p[len(p)-1]
			p = p[:len(p)-1]
			odd = true
		}
		sum = Sum(p, sum)
	}
	if odd {
		sum += uint32(carry) << 8
	}
	return Fold(sum)
}

// IPv4PseudoHeader builds the 12-byte pseudo-header of RFC 793/768. Its length
// field is 16 bits wide; IPv4 has no jumbograms, so length never exceeds 0xffff
// for a well-formed datagram and larger values are truncated.
func IPv4PseudoHeader(src, dst netip.Addr, proto uint8, length int) []byte {
	b := make([]byte, 12)
	s, d := src.As4(), dst.As4()
	copy(b[0:4], s[:])
	copy(b[4:8], d[:])
	b[9] = proto
	binary.BigEndian.PutUint16(b[10:12], uint16(length))
	return b
}

// IPv6PseudoHeader builds the 40-byte pseudo-header of RFC 8200 section 8.1.
func IPv6PseudoHeader(src, dst netip.Addr, next uint8, length int) []byte {
	b := make([]byte, 40)
	s, d := src.As16(), dst.As16()
	copy(b[0:16], s[:])
	copy(b[16:32], d[:])
	binary.BigEndian.PutUint32(b[32:36], uint32(length))
	b[39] = next
	return b
}

// Transport computes the checksum of segment prefixed by pseudo, treating the
// two bytes at checksumOffset as zero. segment is not modified.
func Transport(pseudo, segment []byte, checksumOffset int) uint16 {
	if checksumOffset < 0 || checksumOffset+2 > len(segment) {
		return Checksum(pseudo, segment)
	}
	return Checksum(pseudo, segment[:checksumOffset], []byte{0, 0}, segment[checksumOffset+2:])
}

// Valid reports whether the checksum embedded in the concatenation of parts
// verifies, i.e. the sum over all words including the checksum is 0xffff.
func Valid(parts ...[]byte) bool {
	return Checksum(parts...) == 0
}
