package packet

import (
	"fmt"
	"net/netip"

	"firestige.xyz/pktkit/pkg/checksum"
	"firestige.xyz/pktkit/pkg/view"
)

const (
	ipv4VersionIHLPos   = 0
	ipv4TOSPos          = ipv4VersionIHLPos + 1
	ipv4TotalLengthPos  = ipv4TOSPos + 1
	ipv4IDPos           = ipv4TotalLengthPos + 2
	ipv4FlagsFragPos    = ipv4IDPos + 2
	ipv4TTLPos          = ipv4FlagsFragPos + 2
	ipv4ProtocolPos     = ipv4TTLPos + 1
	ipv4ChecksumPos     = ipv4ProtocolPos + 1
	ipv4SrcPos          = ipv4ChecksumPos + 2
	ipv4DstPos          = ipv4SrcPos + 4
	IPv4MinHeaderLength = ipv4DstPos + 4
	IPv4MaxHeaderLength = 60

	ipv4FragOffsetMask = 0x1fff
	ipv4DefaultTTL     = 64
)

// IPv4Flags are the three flag bits above the fragment offset.
type IPv4Flags uint8

const (
	IPv4MoreFragments IPv4Flags = 1 << iota
	IPv4DontFragment
	IPv4EvilBit
)

func (f IPv4Flags) String() string {
	s := ""
	if f&IPv4EvilBit != 0 {
		s += "|EV"
	}
	if f&IPv4DontFragment != 0 {
		s += "|DF"
	}
	if f&IPv4MoreFragments != 0 {
		s += "|MF"
	}
	if s == "" {
		return "0"
	}
	return s[1:]
}

// Network is a layer that supplies addresses for transport pseudo-headers.
type Network interface {
	Packet
	SourceAddress() netip.Addr
	DestinationAddress() netip.Addr
	// PseudoHeader returns the pseudo-header prefix of an upper-layer checksum.
	PseudoHeader(proto IPProtocol, length int) []byte
}

// IPv4 is an IPv4 header including options.
type IPv4 struct {
	Base
}

// NewIPv4 builds a 20-byte IPv4 header with TTL 64.
func NewIPv4(src, dst netip.Addr, proto IPProtocol) (*IPv4, error) {
	if !src.Is4() || !dst.Is4() {
		return nil, fmt.Errorf("pktkit: IPv4 header needs IPv4 addresses, got %s and %s", src, dst)
	}
	ip := &IPv4{}
	ip.newHeader(IPv4MinHeaderLength)
	ip.header.PutUint8(ipv4VersionIHLPos, 4<<4|IPv4MinHeaderLength/4)
	ip.SetTTL(ipv4DefaultTTL)
	ip.SetProtocol(proto)
	ip.SetSourceAddress(src)
	ip.SetDestinationAddress(dst)
	ip.UpdateLength()
	return ip, nil
}

func decodeIPv4(d *decoder, data view.View) (Packet, error) {
	if data.Len() < IPv4MinHeaderLength {
		return nil, tooShort(LayerTypeIPv4, data.Offset(), data.Len(), IPv4MinHeaderLength)
	}
	if v := data.Uint8(ipv4VersionIHLPos) >> 4; v != 4 {
		return nil, invalid(LayerTypeIPv4, data.Offset(), ErrInvalidVersion, "version %d", v)
	}
	hl := int(data.Uint8(ipv4VersionIHLPos)&0x0f) * 4
	if hl < IPv4MinHeaderLength {
		return nil, invalid(LayerTypeIPv4, data.Offset(), ErrInvalidLength, "header length %d", hl)
	}
	if data.Len() < hl {
		return nil, tooShort(LayerTypeIPv4, data.Offset(), data.Len(), hl)
	}

	ip := &IPv4{}
	ip.header = data.Slice(0, hl)

	// Total length 0 (segmentation offload) or beyond the capture: use what is there.
	avail := data.Len() - hl
	n := int(ip.TotalLength()) - hl
	if n < 0 || n > avail {
		n = avail
	}
	payload := ip.header.Encapsulated(n)

	if ip.FragmentOffset() != 0 {
		ip.payload = DataPayload(payload.Bounded())
		return ip, nil
	}
	if err := d.decodePayload(&ip.Base, payload, ipProtocolDecoders[ip.Protocol()]); err != nil {
		return nil, err
	}
	return ip, nil
}

func (ip *IPv4) LayerType() LayerType { return LayerTypeIPv4 }

func (ip *IPv4) Version() uint8 { return ip.header.Uint8(ipv4VersionIHLPos) >> 4 }

// HeaderLength is the header length in bytes, from the IHL field.
func (ip *IPv4) HeaderLength() int { return int(ip.header.Uint8(ipv4VersionIHLPos)&0x0f) * 4 }

func (ip *IPv4) TypeOfService() uint8 { return ip.header.Uint8(ipv4TOSPos) }

func (ip *IPv4) SetTypeOfService(tos uint8) { ip.header.PutUint8(ipv4TOSPos, tos) }

// DSCP is the upper six bits of the TOS byte.
func (ip *IPv4) DSCP() uint8 { return ip.TypeOfService() >> 2 }

// ECN is the lower two bits of the TOS byte.
func (ip *IPv4) ECN() uint8 { return ip.TypeOfService() & 0x03 }

func (ip *IPv4) TotalLength() uint16 { return ip.header.Uint16(ipv4TotalLengthPos) }

func (ip *IPv4) SetTotalLength(n uint16) { ip.header.PutUint16(ipv4TotalLengthPos, n) }

func (ip *IPv4) ID() uint16 { return ip.header.Uint16(ipv4IDPos) }

func (ip *IPv4) SetID(id uint16) { ip.header.PutUint16(ipv4IDPos, id) }

func (ip *IPv4) Flags() IPv4Flags { return IPv4Flags(ip.header.Uint16(ipv4FlagsFragPos) >> 13) }

func (ip *IPv4) SetFlags(f IPv4Flags) {
	v := ip.header.Uint16(ipv4FlagsFragPos)&ipv4FragOffsetMask | uint16(f&7)<<13
	ip.header.PutUint16(ipv4FlagsFragPos, v)
}

// FragmentOffset is in units of 8 bytes.
func (ip *IPv4) FragmentOffset() uint16 {
	return ip.header.Uint16(ipv4FlagsFragPos) & ipv4FragOffsetMask
}

func (ip *IPv4) SetFragmentOffset(off uint16) {
	v := ip.header.Uint16(ipv4FlagsFragPos)&^ipv4FragOffsetMask | off&ipv4FragOffsetMask
	ip.header.PutUint16(ipv4FlagsFragPos, v)
}

// IsFragment reports whether the datagram is part of a fragmented one.
func (ip *IPv4) IsFragment() bool {
	return ip.Flags()&IPv4MoreFragments != 0 || ip.FragmentOffset() != 0
}

func (ip *IPv4) TTL() uint8 { return ip.header.Uint8(ipv4TTLPos) }

func (ip *IPv4) SetTTL(ttl uint8) { ip.header.PutUint8(ipv4TTLPos, ttl) }

func (ip *IPv4) Protocol() IPProtocol { return IPProtocol(ip.header.Uint8(ipv4ProtocolPos)) }

func (ip *IPv4) SetProtocol(p IPProtocol) { ip.header.PutUint8(ipv4ProtocolPos, uint8(p)) }

func (ip *IPv4) Checksum() uint16 { return ip.header.Uint16(ipv4ChecksumPos) }

func (ip *IPv4) SetChecksum(c uint16) { ip.header.PutUint16(ipv4ChecksumPos, c) }

func (ip *IPv4) SourceAddress() netip.Addr {
	return netip.AddrFrom4([4]byte(ip.header.Field(ipv4SrcPos, 4)))
}

func (ip *IPv4) SetSourceAddress(a netip.Addr) {
	b := a.As4()
	ip.header.PutBytes(ipv4SrcPos, b[:])
}

func (ip *IPv4) DestinationAddress() netip.Addr {
	return netip.AddrFrom4([4]byte(ip.header.Field(ipv4DstPos, 4)))
}

func (ip *IPv4) SetDestinationAddress(a netip.Addr) {
	b := a.As4()
	ip.header.PutBytes(ipv4DstPos, b[:])
}

// Options returns the raw option bytes, aliasing the header.
func (ip *IPv4) Options() []byte {
	return ip.header.Field(IPv4MinHeaderLength, ip.header.Len()-IPv4MinHeaderLength)
}

// SetOptions replaces the options, padding them to a 32-bit boundary. The
// header moves to a new buffer.
func (ip *IPv4) SetOptions(opts []byte) error {
	n := IPv4MinHeaderLength + (len(opts)+3)&^3
	if n > IPv4MaxHeaderLength {
		return fmt.Errorf("pktkit: %d option bytes exceed the IPv4 header", len(opts))
	}
	hdr := view.Alloc(n)
	hdr.PutBytes(0, ip.header.Field(0, IPv4MinHeaderLength))
	hdr.PutBytes(IPv4MinHeaderLength, opts)
	hdr.PutUint8(ipv4VersionIHLPos, 4<<4|uint8(n/4))
	ip.header = hdr
	ip.UpdateLength()
	return nil
}

// SetPayload attaches p and refreshes TotalLength.
func (ip *IPv4) SetPayload(p Payload) {
	ip.Base.SetPayload(p)
	ip.UpdateLength()
}

// UpdateLength sets TotalLength to the length of the datagram.
func (ip *IPv4) UpdateLength() { ip.SetTotalLength(uint16(ip.Len())) }

// ComputeHeaderChecksum returns the header checksum, treating the checksum field as zero.
func (ip *IPv4) ComputeHeaderChecksum() uint16 {
	return checksum.Transport(nil, ip.header.Bytes(), ipv4ChecksumPos)
}

func (ip *IPv4) ValidHeaderChecksum() bool { return checksum.Valid(ip.header.Bytes()) }

func (ip *IPv4) UpdateHeaderChecksum() { ip.SetChecksum(ip.ComputeHeaderChecksum()) }

func (ip *IPv4) PseudoHeader(proto IPProtocol, length int) []byte {
	return checksum.IPv4PseudoHeader(ip.SourceAddress(), ip.DestinationAddress(), uint8(proto), length)
}

func (ip *IPv4) updateCalculatedValues(Network) {
	ip.UpdateLength()
	ip.UpdateHeaderChecksum()
}

func (ip *IPv4) checksumValid(Network) (valid, applicable bool) {
	return ip.ValidHeaderChecksum(), true
}

func (ip *IPv4) Fields(verbose bool) []Field {
	f := []Field{
		{"SourceAddress", ip.SourceAddress()},
		{"DestinationAddress", ip.DestinationAddress()},
		{"Protocol", ip.Protocol()},
		{"TotalLength", ip.TotalLength()},
		{"TTL", ip.TTL()},
	}
	if verbose {
		f = append(f,
			Field{"HeaderLength", ip.HeaderLength()},
			Field{"TypeOfService", fmt.Sprintf("0x%02x", ip.TypeOfService())},
			Field{"ID", ip.ID()},
			Field{"Flags", ip.Flags()},
			Field{"FragmentOffset", ip.FragmentOffset()},
			Field{"Checksum", fmt.Sprintf("0x%04x", ip.Checksum())},
			Field{"ValidHeaderChecksum", ip.ValidHeaderChecksum()},
		)
		if len(ip.Options()) > 0 {
			f = append(f, Field{"Options", fmt.Sprintf("%x", ip.Options())})
		}
	}
	return f
}

func (ip *IPv4) String() string { return formatLayer(ip, false) }
