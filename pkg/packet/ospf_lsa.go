package packet

import (
	"fmt"
	"net/netip"
	"strings"

	"firestige.xyz/pktkit/pkg/view"
)

const (
	lsaAgePos           = 0
	lsaOptionsPos       = lsaAgePos + 2
	lsaTypePos          = lsaOptionsPos + 1
	lsaLinkStateIDPos   = lsaTypePos + 1
	lsaAdvRouterPos     = lsaLinkStateIDPos + 4
	lsaSequencePos      = lsaAdvRouterPos + 4
	lsaChecksumPos      = lsaSequencePos + 4
	lsaLengthPos        = lsaChecksumPos + 2
	OSPFLSAHeaderLength = lsaLengthPos + 2

	lsaInitialSequence  = 0x80000001
	lsaRouterLinkLength = 12
)

// OSPFLSAType is the LS type of a link state advertisement.
type OSPFLSAType uint8

const (
	OSPFLSARouter       OSPFLSAType = 1
	OSPFLSANetwork      OSPFLSAType = 2
	OSPFLSASummaryIP    OSPFLSAType = 3
	OSPFLSASummaryASBR  OSPFLSAType = 4
	OSPFLSAASExternal   OSPFLSAType = 5
	OSPFLSANSSAExternal OSPFLSAType = 7
)

var ospfLSATypeNames = map[OSPFLSAType]string{
	OSPFLSARouter:       "Router",
	OSPFLSANetwork:      "Network",
	OSPFLSASummaryIP:    "SummaryIP",
	OSPFLSASummaryASBR:  "SummaryASBR",
	OSPFLSAASExternal:   "ASExternal",
	OSPFLSANSSAExternal: "NSSAExternal",
}

func (t OSPFLSAType) String() string {
	if s, ok := ospfLSATypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("OSPFLSAType(%d)", uint8(t))
}

func addrAt(v view.View, pos int) netip.Addr {
	return netip.AddrFrom4([4]byte(v.Field(pos, 4)))
}

func putAddr(v view.View, pos int, a netip.Addr) {
	b := a.As4()
	v.PutBytes(pos, b[:])
}

// OSPFLSAHeader is the 20-byte header shared by every LSA. In database
// description and acknowledgement packets it appears on its own.
type OSPFLSAHeader struct {
	v view.View
}

func (h OSPFLSAHeader) Age() uint16 { return h.v.Uint16(lsaAgePos) }

func (h OSPFLSAHeader) SetAge(age uint16) { h.v.PutUint16(lsaAgePos, age) }

func (h OSPFLSAHeader) Options() uint8 { return h.v.Uint8(lsaOptionsPos) }

func (h OSPFLSAHeader) Type() OSPFLSAType { return OSPFLSAType(h.v.Uint8(lsaTypePos)) }

func (h OSPFLSAHeader) LinkStateID() netip.Addr { return addrAt(h.v, lsaLinkStateIDPos) }

func (h OSPFLSAHeader) AdvertisingRouter() netip.Addr { return addrAt(h.v, lsaAdvRouterPos) }

func (h OSPFLSAHeader) Sequence() uint32 { return h.v.Uint32(lsaSequencePos) }

func (h OSPFLSAHeader) Checksum() uint16 { return h.v.Uint16(lsaChecksumPos) }

// Length is the LSA length including the header.
func (h OSPFLSAHeader) Length() uint16 { return h.v.Uint16(lsaLengthPos) }

func (h OSPFLSAHeader) Bytes() []byte { return h.v.Field(0, OSPFLSAHeaderLength) }

func (h OSPFLSAHeader) String() string {
	return fmt.Sprintf("%s(id=%s adv=%s seq=0x%08x age=%d)", h.Type(), h.LinkStateID(),
		h.AdvertisingRouter(), h.Sequence(), h.Age())
}

// OSPFLSA is a full link state advertisement, aliasing the packet it came from.
type OSPFLSA interface {
	Header() OSPFLSAHeader
	Bytes() []byte
	Len() int
	// ValidChecksum verifies the Fletcher checksum of the LSA.
	ValidChecksum() bool
	String() string
}

type ospfLSA struct {
	v view.View
}

func (l ospfLSA) Header() OSPFLSAHeader { return OSPFLSAHeader{l.v} }
func (l ospfLSA) Bytes() []byte         { return l.v.Bytes() }
func (l ospfLSA) Len() int              { return l.v.Len() }
func (l ospfLSA) body() view.View {
	return l.v.Slice(OSPFLSAHeaderLength, l.v.Len()-OSPFLSAHeaderLength)
}

// ValidChecksum checks that both Fletcher sums over the LSA, age excluded, are zero.
func (l ospfLSA) ValidChecksum() bool {
	if l.v.Len() < OSPFLSAHeaderLength || l.Header().Checksum() == 0 {
		return false
	}
	c0, c1 := fletcherSums(l.v.Field(lsaOptionsPos, l.v.Len()-lsaOptionsPos))
	return c0 == 0 && c1 == 0
}

// UpdateChecksum recomputes the Fletcher checksum in place.
func (l ospfLSA) UpdateChecksum() { l.v.PutUint16(lsaChecksumPos, lsaChecksum(l.v)) }

func fletcherSums(b []byte) (c0, c1 int) {
	for _, x := range b {
		c0 = (c0 + int(x)) % 255
		c1 = (c1 + c0) % 255
	}
	return c0, c1
}

// lsaChecksum computes the ISO 8473 Fletcher checksum of RFC 2328 section 12.1.7
// over the LSA without its age field.
func lsaChecksum(v view.View) uint16 {
	v.PutUint16(lsaChecksumPos, 0)
	b := v.Field(lsaOptionsPos, v.Len()-lsaOptionsPos)
	c0, c1 := fletcherSums(b)
	pos := lsaChecksumPos - lsaOptionsPos
	x := ((len(b)-pos-1)*c0 - c1) % 255
	if x <= 0 {
		x += 255
	}
	y := 510 - c0 - x
	if y > 255 {
		y -= 255
	}
	return uint16(x)<<8 | uint16(y)
}

// newLSA allocates an LSA around body and fills its header, length and checksum.
func newLSA(t OSPFLSAType, linkStateID, advRouter netip.Addr, seq uint32, body []byte) view.View {
	v := view.Alloc(OSPFLSAHeaderLength + len(body))
	v.PutUint8(lsaTypePos, uint8(t))
	putAddr(v, lsaLinkStateIDPos, linkStateID)
	putAddr(v, lsaAdvRouterPos, advRouter)
	if seq == 0 {
		seq = lsaInitialSequence
	}
	v.PutUint32(lsaSequencePos, seq)
	v.PutUint16(lsaLengthPos, uint16(v.Len()))
	v.PutBytes(OSPFLSAHeaderLength, body)
	v.PutUint16(lsaChecksumPos, lsaChecksum(v))
	return v
}

// OSPFUnsupportedLSA is an LSA of a type without a typed decoder.
type OSPFUnsupportedLSA struct{ ospfLSA }

func (l OSPFUnsupportedLSA) String() string {
	if l.Len() < OSPFLSAHeaderLength {
		return fmt.Sprintf("TruncatedLSA[%d bytes]", l.Len())
	}
	return fmt.Sprintf("%s[%d bytes]", l.Header(), l.Len())
}

// OSPFRouterLinkType is the type of one link in a router LSA.
type OSPFRouterLinkType uint8

const (
	OSPFLinkPointToPoint OSPFRouterLinkType = 1
	OSPFLinkTransit      OSPFRouterLinkType = 2
	OSPFLinkStub         OSPFRouterLinkType = 3
	OSPFLinkVirtual      OSPFRouterLinkType = 4
)

// OSPFRouterLink describes one router interface. TOS metrics are not carried.
type OSPFRouterLink struct {
	ID     netip.Addr
	Data   netip.Addr
	Type   OSPFRouterLinkType
	Metric uint16
}

// OSPFRouterLSA is a type 1 LSA.
type OSPFRouterLSA struct{ ospfLSA }

const (
	OSPFRouterFlagB = 0x01
	OSPFRouterFlagE = 0x02
	OSPFRouterFlagV = 0x04
)

func NewOSPFRouterLSA(advRouter netip.Addr, seq uint32, flags uint8, links ...OSPFRouterLink) OSPFRouterLSA {
	body := view.Alloc(4 + lsaRouterLinkLength*len(links))
	body.PutUint8(0, flags)
	body.PutUint16(2, uint16(len(links)))
	for i, link := range links {
		off := 4 + i*lsaRouterLinkLength
		putAddr(body, off, link.ID)
		putAddr(body, off+4, link.Data)
		body.PutUint8(off+8, uint8(link.Type))
		body.PutUint16(off+10, link.Metric)
	}
	return OSPFRouterLSA{ospfLSA{newLSA(OSPFLSARouter, advRouter, advRouter, seq, body.Bytes())}}
}

func (l OSPFRouterLSA) Flags() uint8 { return l.body().Uint8(0) }

// Links parses the link list; entries past the LSA are dropped.
func (l OSPFRouterLSA) Links() []OSPFRouterLink {
	b := l.body()
	n := int(b.Uint16(2))
	var out []OSPFRouterLink
	off := 4
	for i := 0; i < n && off+lsaRouterLinkLength <= b.Len(); i++ {
		out = append(out, OSPFRouterLink{
			ID:     addrAt(b, off),
			Data:   addrAt(b, off+4),
			Type:   OSPFRouterLinkType(b.Uint8(off + 8)),
			Metric: b.Uint16(off + 10),
		})
		off += lsaRouterLinkLength + 4*int(b.Uint8(off+9))
	}
	return out
}

func (l OSPFRouterLSA) String() string {
	return fmt.Sprintf("%s[links=%d]", l.Header(), len(l.Links()))
}

// OSPFNetworkLSA is a type 2 LSA.
type OSPFNetworkLSA struct{ ospfLSA }

func NewOSPFNetworkLSA(linkStateID, advRouter, mask netip.Addr, seq uint32, routers ...netip.Addr) OSPFNetworkLSA {
	body := view.Alloc(4 + 4*len(routers))
	putAddr(body, 0, mask)
	for i, r := range routers {
		putAddr(body, 4+4*i, r)
	}
	return OSPFNetworkLSA{ospfLSA{newLSA(OSPFLSANetwork, linkStateID, advRouter, seq, body.Bytes())}}
}

func (l OSPFNetworkLSA) NetworkMask() netip.Addr { return addrAt(l.body(), 0) }

func (l OSPFNetworkLSA) AttachedRouters() []netip.Addr {
	b := l.body()
	var out []netip.Addr
	for off := 4; off+4 <= b.Len(); off += 4 {
		out = append(out, addrAt(b, off))
	}
	return out
}

func (l OSPFNetworkLSA) String() string {
	return fmt.Sprintf("%s[mask=%s routers=%d]", l.Header(), l.NetworkMask(), len(l.AttachedRouters()))
}

// OSPFSummaryLSA is a type 3 or 4 LSA.
type OSPFSummaryLSA struct{ ospfLSA }

func NewOSPFSummaryLSA(t OSPFLSAType, linkStateID, advRouter, mask netip.Addr, seq, metric uint32) OSPFSummaryLSA {
	body := view.Alloc(8)
	putAddr(body, 0, mask)
	body.PutUint24(5, metric)
	return OSPFSummaryLSA{ospfLSA{newLSA(t, linkStateID, advRouter, seq, body.Bytes())}}
}

func (l OSPFSummaryLSA) NetworkMask() netip.Addr { return addrAt(l.body(), 0) }

func (l OSPFSummaryLSA) Metric() uint32 { return l.body().Uint24(5) }

func (l OSPFSummaryLSA) String() string {
	return fmt.Sprintf("%s[mask=%s metric=%d]", l.Header(), l.NetworkMask(), l.Metric())
}

// OSPFASExternalLSA is a type 5 or 7 LSA.
type OSPFASExternalLSA struct{ ospfLSA }

const lsaExternalBit = 0x80

func NewOSPFASExternalLSA(linkStateID, advRouter, mask netip.Addr, seq, metric uint32, typeTwo bool, forward netip.Addr, tag uint32) OSPFASExternalLSA {
	body := view.Alloc(16)
	putAddr(body, 0, mask)
	body.PutUint24(5, metric)
	if typeTwo {
		body.PutUint8(4, lsaExternalBit)
	}
	putAddr(body, 8, forward)
	body.PutUint32(12, tag)
	return OSPFASExternalLSA{ospfLSA{newLSA(OSPFLSAASExternal, linkStateID, advRouter, seq, body.Bytes())}}
}

func (l OSPFASExternalLSA) NetworkMask() netip.Addr { return addrAt(l.body(), 0) }

// TypeTwo reports the E bit: a type 2 external metric.
func (l OSPFASExternalLSA) TypeTwo() bool { return l.body().Uint8(4)&lsaExternalBit != 0 }

func (l OSPFASExternalLSA) Metric() uint32 { return l.body().Uint24(5) }

func (l OSPFASExternalLSA) ForwardingAddress() netip.Addr { return addrAt(l.body(), 8) }

func (l OSPFASExternalLSA) RouteTag() uint32 { return l.body().Uint32(12) }

func (l OSPFASExternalLSA) String() string {
	return fmt.Sprintf("%s[mask=%s metric=%d e2=%t]", l.Header(), l.NetworkMask(), l.Metric(), l.TypeTwo())
}

// ospfLSADecoders maps LS types to typed LSAs; min is the smallest LSA length
// the typed accessors can read.
var ospfLSADecoders = map[OSPFLSAType]struct {
	min int
	fn  func(view.View) OSPFLSA
}{
	OSPFLSARouter:       {OSPFLSAHeaderLength + 4, func(v view.View) OSPFLSA { return OSPFRouterLSA{ospfLSA{v}} }},
	OSPFLSANetwork:      {OSPFLSAHeaderLength + 4, func(v view.View) OSPFLSA { return OSPFNetworkLSA{ospfLSA{v}} }},
	OSPFLSASummaryIP:    {OSPFLSAHeaderLength + 8, func(v view.View) OSPFLSA { return OSPFSummaryLSA{ospfLSA{v}} }},
	OSPFLSASummaryASBR:  {OSPFLSAHeaderLength + 8, func(v view.View) OSPFLSA { return OSPFSummaryLSA{ospfLSA{v}} }},
	OSPFLSAASExternal:   {OSPFLSAHeaderLength + 16, func(v view.View) OSPFLSA { return OSPFASExternalLSA{ospfLSA{v}} }},
	OSPFLSANSSAExternal: {OSPFLSAHeaderLength + 16, func(v view.View) OSPFLSA { return OSPFASExternalLSA{ospfLSA{v}} }},
}

func newOSPFLSA(v view.View) OSPFLSA {
	if v.Len() >= OSPFLSAHeaderLength {
		if dec, ok := ospfLSADecoders[OSPFLSAType(v.Uint8(lsaTypePos))]; ok && v.Len() >= dec.min {
			return dec.fn(v)
		}
	}
	return OSPFUnsupportedLSA{ospfLSA{v}}
}

func lsaSize(rest view.View) (int, bool) {
	if rest.Len() < OSPFLSAHeaderLength {
		return OSPFLSAHeaderLength, true
	}
	n := int(rest.Uint16(lsaLengthPos))
	if n < OSPFLSAHeaderLength {
		return 0, false
	}
	return n, true
}

func lsaHeaderSize(view.View) (int, bool) { return OSPFLSAHeaderLength, true }

func formatLSAHeaders(hs []OSPFLSAHeader) string {
	s := make([]string, len(hs))
	for i, h := range hs {
		s[i] = h.String()
	}
	return strings.Join(s, ",")
}
