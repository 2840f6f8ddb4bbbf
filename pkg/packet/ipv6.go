package packet

import (
	"fmt"
	"net/netip"

	"firestige.xyz/pktkit/pkg/checksum"
	"firestige.xyz/pktkit/pkg/view"
)

const (
	ipv6VersionClassFlowPos = 0
	ipv6PayloadLengthPos    = ipv6VersionClassFlowPos + 4
	ipv6NextHeaderPos       = ipv6PayloadLengthPos + 2
	ipv6HopLimitPos         = ipv6NextHeaderPos + 1
	ipv6SrcPos              = ipv6HopLimitPos + 1
	ipv6DstPos              = ipv6SrcPos + 16
	IPv6HeaderLength        = ipv6DstPos + 16

	ipv6FragmentHeaderLength = 8
	ipv6DefaultHopLimit      = 64
)

// IPv6ExtensionHeader is one header of the extension chain, aliasing the frame.
type IPv6ExtensionHeader struct {
	Type       IPProtocol
	NextHeader IPProtocol
	Data       view.View
}

// FragmentOffset is meaningful for fragment headers only, in units of 8 bytes.
func (h IPv6ExtensionHeader) FragmentOffset() uint16 {
	if h.Type != IPProtocolIPv6Fragment {
		return 0
	}
	return h.Data.Uint16(2) >> 3
}

// MoreFragments is meaningful for fragment headers only.
func (h IPv6ExtensionHeader) MoreFragments() bool {
	return h.Type == IPProtocolIPv6Fragment && h.Data.Uint16(2)&1 != 0
}

func isIPv6Extension(p IPProtocol) bool {
	switch p {
	case IPProtocolIPv6HopByHop, IPProtocolIPv6Routing, IPProtocolIPv6Fragment,
		IPProtocolIPv6Destination, IPProtocolAH:
		return true
	}
	return false
}

// extensionLength returns the length of the extension header of type p at off.
func extensionLength(v view.View, off int, p IPProtocol) int {
	switch p {
	case IPProtocolIPv6Fragment:
		return ipv6FragmentHeaderLength
	case IPProtocolAH:
		return (int(v.Uint8(off+1)) + 2) * 4
	}
	return (int(v.Uint8(off+1)) + 1) * 8
}

// IPv6 is an IPv6 header together with its extension headers.
type IPv6 struct {
	Base
}

// NewIPv6 builds a 40-byte IPv6 header with hop limit 64.
func NewIPv6(src, dst netip.Addr, next IPProtocol) (*IPv6, error) {
	if !src.Is6() || !dst.Is6() {
		return nil, fmt.Errorf("pktkit: IPv6 header needs IPv6 addresses, got %s and %s", src, dst)
	}
	ip := &IPv6{}
	ip.newHeader(IPv6HeaderLength)
	ip.header.PutUint32(ipv6VersionClassFlowPos, 6<<28)
	ip.SetNextHeader(next)
	ip.SetHopLimit(ipv6DefaultHopLimit)
	ip.SetSourceAddress(src)
	ip.SetDestinationAddress(dst)
	return ip, nil
}

func decodeIPv6(d *decoder, data view.View) (Packet, error) {
	if data.Len() < IPv6HeaderLength {
		return nil, tooShort(LayerTypeIPv6, data.Offset(), data.Len(), IPv6HeaderLength)
	}
	if v := data.Uint8(0) >> 4; v != 6 {
		return nil, invalid(LayerTypeIPv6, data.Offset(), ErrInvalidVersion, "version %d", v)
	}

	// Payload length 0 is a jumbogram or an offloaded capture.
	avail := data.Len() - IPv6HeaderLength
	n := int(data.Uint16(ipv6PayloadLengthPos))
	if n == 0 || n > avail {
		n = avail
	}
	region := data.Slice(0, IPv6HeaderLength+n).Bounded()

	off := IPv6HeaderLength
	next := IPProtocol(region.Uint8(ipv6NextHeaderPos))
	fragment := false
	for isIPv6Extension(next) {
		if region.Len() < off+2 {
			return nil, tooShort(LayerTypeIPv6, data.Offset(), region.Len(), off+2)
		}
		l := extensionLength(region, off, next)
		if region.Len() < off+l {
			return nil, tooShort(LayerTypeIPv6, data.Offset(), region.Len(), off+l)
		}
		if next == IPProtocolIPv6Fragment && region.Uint16(off+2)>>3 != 0 {
			fragment = true
		}
		next = IPProtocol(region.Uint8(off))
		off += l
	}

	ip := &IPv6{}
	ip.header = region.Slice(0, off)
	payload := ip.header.Encapsulated(-1)
	if fragment || next == IPProtocolNoNextHeader {
		ip.payload = DataPayload(payload)
		return ip, nil
	}
	if err := d.decodePayload(&ip.Base, payload, ipProtocolDecoders[next]); err != nil {
		return nil, err
	}
	return ip, nil
}

func (ip *IPv6) LayerType() LayerType { return LayerTypeIPv6 }

func (ip *IPv6) Version() uint8 { return ip.header.Uint8(0) >> 4 }

func (ip *IPv6) TrafficClass() uint8 {
	return uint8(ip.header.Uint32(ipv6VersionClassFlowPos) >> 20)
}

func (ip *IPv6) SetTrafficClass(tc uint8) {
	w := ip.header.Uint32(ipv6VersionClassFlowPos)&^(0xff<<20) | uint32(tc)<<20
	ip.header.PutUint32(ipv6VersionClassFlowPos, w)
}

func (ip *IPv6) FlowLabel() uint32 {
	return ip.header.Uint32(ipv6VersionClassFlowPos) & 0x000fffff
}

func (ip *IPv6) SetFlowLabel(fl uint32) {
	w := ip.header.Uint32(ipv6VersionClassFlowPos)&^0x000fffff | fl&0x000fffff
	ip.header.PutUint32(ipv6VersionClassFlowPos, w)
}

// PayloadLength counts extension headers and the upper-layer payload.
func (ip *IPv6) PayloadLength() uint16 { return ip.header.Uint16(ipv6PayloadLengthPos) }

func (ip *IPv6) SetPayloadLength(n uint16) { ip.header.PutUint16(ipv6PayloadLengthPos, n) }

// NextHeader is the next-header field of the fixed header, which may name an
// extension header; see Protocol for the upper-layer protocol.
func (ip *IPv6) NextHeader() IPProtocol { return IPProtocol(ip.header.Uint8(ipv6NextHeaderPos)) }

func (ip *IPv6) SetNextHeader(p IPProtocol) { ip.header.PutUint8(ipv6NextHeaderPos, uint8(p)) }

func (ip *IPv6) HopLimit() uint8 { return ip.header.Uint8(ipv6HopLimitPos) }

func (ip *IPv6) SetHopLimit(h uint8) { ip.header.PutUint8(ipv6HopLimitPos, h) }

func (ip *IPv6) SourceAddress() netip.Addr {
	return netip.AddrFrom16([16]byte(ip.header.Field(ipv6SrcPos, 16)))
}

func (ip *IPv6) SetSourceAddress(a netip.Addr) {
	b := a.As16()
	ip.header.PutBytes(ipv6SrcPos, b[:])
}

func (ip *IPv6) DestinationAddress() netip.Addr {
	return netip.AddrFrom16([16]byte(ip.header.Field(ipv6DstPos, 16)))
}

func (ip *IPv6) SetDestinationAddress(a netip.Addr) {
	b := a.As16()
	ip.header.PutBytes(ipv6DstPos, b[:])
}

// ExtensionHeaders walks the extension chain held in the header.
func (ip *IPv6) ExtensionHeaders() []IPv6ExtensionHeader {
	var out []IPv6ExtensionHeader
	off := IPv6HeaderLength
	next := ip.NextHeader()
	for isIPv6Extension(next) && off+2 <= ip.header.Len() {
		l := extensionLength(ip.header, off, next)
		if off+l > ip.header.Len() {
			break
		}
		h := IPv6ExtensionHeader{
			Type:       next,
			NextHeader: IPProtocol(ip.header.Uint8(off)),
			Data:       ip.header.Slice(off, l),
		}
		out = append(out, h)
		next = h.NextHeader
		off += l
	}
	return out
}

// Protocol is the upper-layer protocol after the extension chain.
func (ip *IPv6) Protocol() IPProtocol {
	exts := ip.ExtensionHeaders()
	if len(exts) == 0 {
		return ip.NextHeader()
	}
	return exts[len(exts)-1].NextHeader
}

// SetPayload attaches p and refreshes PayloadLength.
func (ip *IPv6) SetPayload(p Payload) {
	ip.Base.SetPayload(p)
	ip.UpdateLength()
}

// UpdateLength writes 0 for a jumbogram payload.
func (ip *IPv6) UpdateLength() { ip.SetPayloadLength(lengthField(ip.Len() - IPv6HeaderLength)) }

func (ip *IPv6) PseudoHeader(proto IPProtocol, length int) []byte {
	return checksum.IPv6PseudoHeader(ip.SourceAddress(), ip.DestinationAddress(), uint8(proto), length)
}

func (ip *IPv6) updateCalculatedValues(Network) { ip.UpdateLength() }

func (ip *IPv6) Fields(verbose bool) []Field {
	f := []Field{
		{"SourceAddress", ip.SourceAddress()},
		{"DestinationAddress", ip.DestinationAddress()},
		{"NextHeader", ip.NextHeader()},
		{"PayloadLength", ip.PayloadLength()},
		{"HopLimit", ip.HopLimit()},
	}
	if verbose {
		f = append(f,
			Field{"TrafficClass", ip.TrafficClass()},
			Field{"FlowLabel", ip.FlowLabel()},
		)
		for _, h := range ip.ExtensionHeaders() {
			f = append(f, Field{"ExtensionHeader", fmt.Sprintf("%s(%d bytes)", h.Type, h.Data.Len())})
		}
		f = append(f, Field{"Protocol", ip.Protocol()})
	}
	return f
}

func (ip *IPv6) String() string { return formatLayer(ip, false) }
