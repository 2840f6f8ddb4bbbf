package packet

import (
	"firestige.xyz/pktkit/pkg/checksum"
)

var zeroWord = []byte{0, 0}

// calculated is implemented by layers with length or checksum fields derived
// from their contents. network is the innermost enclosing IP layer, or nil.
type calculated interface {
	updateCalculatedValues(network Network)
}

// verifiable is implemented by layers carrying a checksum. applicable is false
// when the checksum cannot or need not be verified, e.g. a UDP checksum of zero
// over IPv4 or a transport checksum without a network layer.
type verifiable interface {
	checksumValid(network Network) (valid, applicable bool)
}

// UpdateCalculatedValues refreshes every derived field under root: lengths
// first, then checksums, innermost layers before the layers that cover them.
func UpdateCalculatedValues(root Packet) {
	updateTree(root, nil)
}

func updateTree(p Packet, network Network) {
	inner := network
	if n, ok := p.(Network); ok {
		inner = n
	}
	if child := p.Payload().Packet(); child != nil {
		updateTree(child, inner)
	}
	if c, ok := p.(calculated); ok {
		c.updateCalculatedValues(network)
	}
}

// ValidChecksums reports whether every checksum under root verifies.
func ValidChecksums(root Packet) bool {
	var network Network
	for p := root; p != nil; p = p.Payload().Packet() {
		if v, ok := p.(verifiable); ok {
			if valid, applicable := v.checksumValid(network); applicable && !valid {
				return false
			}
		}
		if n, ok := p.(Network); ok {
			network = n
		}
	}
	return true
}

// layerChecksum computes the checksum of p's header and payload, preceded by
// pseudo, with the two bytes at pos in the header taken as zero.
func layerChecksum(pseudo []byte, p Packet, pos int) uint16 {
	b := p.base()
	hdr := b.header.Bytes()
	parts := make([][]byte, 0, 8)
	if pseudo != nil {
		parts = append(parts, pseudo)
	}
	parts = append(parts, hdr[:pos], zeroWord, hdr[pos+2:])
	parts = append(parts, b.payloadParts()...)
	return checksum.Checksum(parts...)
}

func layerChecksumValid(pseudo []byte, p Packet) bool {
	parts := make([][]byte, 0, 8)
	if pseudo != nil {
		parts = append(parts, pseudo)
	}
	parts = p.base().appendParts(parts)
	return checksum.Valid(parts...)
}

// lengthField is n as a 16-bit length field, or 0 when n does not fit, as in
// the payload and UDP lengths of an IPv6 jumbogram (RFC 2675).
func lengthField(n int) uint16 {
	if n > 0xffff {
		return 0
	}
	return uint16(n)
}
