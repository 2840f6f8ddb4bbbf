package packet

import (
	"fmt"

	"firestige.xyz/pktkit/pkg/view"
)

const (
	greFlagsVersionPos = 0
	greProtocolPos     = greFlagsVersionPos + 2
	GREMinHeaderLength = greProtocolPos + 2

	greChecksumPresent = 0x8000
	greRoutingPresent  = 0x4000
	greKeyPresent      = 0x2000
	greSeqPresent      = 0x1000
	greStrictRoute     = 0x0800
	greRecursionMask   = 0x0700
	greVersionMask     = 0x0007

	greSRELength = 4
)

// greLayout gives the optional field offsets for a flags word; a negative offset
// means the field is absent.
type greLayout struct {
	checksum, key, seq, routing, fixed int
}

func layoutGRE(flags uint16) greLayout {
	l := greLayout{checksum: -1, key: -1, seq: -1, routing: -1}
	off := GREMinHeaderLength
	if flags&(greChecksumPresent|greRoutingPresent) != 0 {
		l.checksum = off
		off += 4
	}
	if flags&greKeyPresent != 0 {
		l.key = off
		off += 4
	}
	if flags&greSeqPresent != 0 {
		l.seq = off
		off += 4
	}
	if flags&greRoutingPresent != 0 {
		l.routing = off
	}
	l.fixed = off
	return l
}

// GRE is a GRE header (RFC 2784, RFC 2890) whose size follows its flag bits.
type GRE struct {
	Base
}

func NewGRE(proto EtherType) *GRE {
	g := &GRE{}
	g.newHeader(GREMinHeaderLength)
	g.SetProtocol(proto)
	return g
}

func decodeGRE(d *decoder, data view.View) (Packet, error) {
	if data.Len() < GREMinHeaderLength {
		return nil, tooShort(LayerTypeGRE, data.Offset(), data.Len(), GREMinHeaderLength)
	}
	l := layoutGRE(data.Uint16(greFlagsVersionPos))
	if data.Len() < l.fixed {
		return nil, tooShort(LayerTypeGRE, data.Offset(), data.Len(), l.fixed)
	}
	hl := l.fixed
	if l.routing >= 0 {
		// Source route entries end with an entry of length zero.
		for {
			if data.Len() < hl+greSRELength {
				return nil, tooShort(LayerTypeGRE, data.Offset(), data.Len(), hl+greSRELength)
			}
			n := int(data.Uint8(hl + 3))
			hl += greSRELength + n
			if n == 0 {
				break
			}
		}
		if data.Len() < hl {
			return nil, tooShort(LayerTypeGRE, data.Offset(), data.Len(), hl)
		}
	}
	g := &GRE{}
	g.header = data.Slice(0, hl)
	if err := d.decodePayload(&g.Base, g.header.Encapsulated(-1), etherTypeDecoders[g.Protocol()]); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *GRE) LayerType() LayerType { return LayerTypeGRE }

func (g *GRE) flags() uint16 { return g.header.Uint16(greFlagsVersionPos) }

func (g *GRE) ChecksumPresent() bool { return g.flags()&greChecksumPresent != 0 }
func (g *GRE) RoutingPresent() bool  { return g.flags()&greRoutingPresent != 0 }
func (g *GRE) KeyPresent() bool      { return g.flags()&greKeyPresent != 0 }
func (g *GRE) SeqPresent() bool      { return g.flags()&greSeqPresent != 0 }
func (g *GRE) StrictSourceRoute() bool {
	return g.flags()&greStrictRoute != 0
}

func (g *GRE) RecursionControl() uint8 { return uint8(g.flags() & greRecursionMask >> 8) }

func (g *GRE) Version() uint8 { return uint8(g.flags() & greVersionMask) }

func (g *GRE) Protocol() EtherType { return EtherType(g.header.Uint16(greProtocolPos)) }

func (g *GRE) SetProtocol(t EtherType) { g.header.PutUint16(greProtocolPos, uint16(t)) }

// Checksum returns the checksum field, or 0 when absent.
func (g *GRE) Checksum() uint16 {
	if l := layoutGRE(g.flags()); l.checksum >= 0 {
		return g.header.Uint16(l.checksum)
	}
	return 0
}

func (g *GRE) Offset() uint16 {
	if l := layoutGRE(g.flags()); l.checksum >= 0 {
		return g.header.Uint16(l.checksum + 2)
	}
	return 0
}

func (g *GRE) Key() uint32 {
	if l := layoutGRE(g.flags()); l.key >= 0 {
		return g.header.Uint32(l.key)
	}
	return 0
}

func (g *GRE) Sequence() uint32 {
	if l := layoutGRE(g.flags()); l.seq >= 0 {
		return g.header.Uint32(l.seq)
	}
	return 0
}

// Routing returns the raw source route entries, or nil.
func (g *GRE) Routing() []byte {
	l := layoutGRE(g.flags())
	if l.routing < 0 {
		return nil
	}
	return g.header.Field(l.routing, g.header.Len()-l.routing)
}

// relayout moves the header to a new buffer laid out for flags, keeping the
// values of fields present in both layouts. Routing entries are dropped.
func (g *GRE) relayout(flags uint16) {
	key, seq, ck, off := g.Key(), g.Sequence(), g.Checksum(), g.Offset()
	flags &^= greRoutingPresent
	l := layoutGRE(flags)
	hdr := view.Alloc(l.fixed)
	hdr.PutUint16(greFlagsVersionPos, flags)
	hdr.PutUint16(greProtocolPos, uint16(g.Protocol()))
	if l.checksum >= 0 {
		hdr.PutUint16(l.checksum, ck)
		hdr.PutUint16(l.checksum+2, off)
	}
	if l.key >= 0 {
		hdr.PutUint32(l.key, key)
	}
	if l.seq >= 0 {
		hdr.PutUint32(l.seq, seq)
	}
	g.header = hdr
}

// SetChecksumPresent adds or removes the checksum field.
func (g *GRE) SetChecksumPresent(present bool) {
	if present != g.ChecksumPresent() {
		g.relayout(g.flags() ^ greChecksumPresent)
	}
}

// SetKey writes the key, adding the field when absent.
func (g *GRE) SetKey(k uint32) {
	if !g.KeyPresent() {
		g.relayout(g.flags() | greKeyPresent)
	}
	g.header.PutUint32(layoutGRE(g.flags()).key, k)
}

// SetSequence writes the sequence number, adding the field when absent.
func (g *GRE) SetSequence(s uint32) {
	if !g.SeqPresent() {
		g.relayout(g.flags() | greSeqPresent)
	}
	g.header.PutUint32(layoutGRE(g.flags()).seq, s)
}

// ComputeChecksum covers header and payload. It fails when the header has no
// checksum field.
func (g *GRE) ComputeChecksum() (uint16, error) {
	l := layoutGRE(g.flags())
	if !g.ChecksumPresent() {
		return 0, fmt.Errorf("pktkit: GRE header carries no checksum")
	}
	return layerChecksum(nil, g, l.checksum), nil
}

func (g *GRE) ValidChecksum() bool {
	return !g.ChecksumPresent() || layerChecksumValid(nil, g)
}

func (g *GRE) updateCalculatedValues(Network) {
	if c, err := g.ComputeChecksum(); err == nil {
		g.header.PutUint16(layoutGRE(g.flags()).checksum, c)
	}
}

func (g *GRE) checksumValid(Network) (valid, applicable bool) {
	return g.ValidChecksum(), g.ChecksumPresent()
}

func (g *GRE) Fields(verbose bool) []Field {
	f := []Field{{"Protocol", g.Protocol()}}
	if g.KeyPresent() {
		f = append(f, Field{"Key", g.Key()})
	}
	if g.SeqPresent() {
		f = append(f, Field{"Sequence", g.Sequence()})
	}
	if verbose {
		f = append(f,
			Field{"ChecksumPresent", g.ChecksumPresent()},
			Field{"RoutingPresent", g.RoutingPresent()},
			Field{"Version", g.Version()},
			Field{"RecursionControl", g.RecursionControl()},
		)
		if g.ChecksumPresent() {
			f = append(f, Field{"Checksum", fmt.Sprintf("0x%04x", g.Checksum())})
		}
	}
	return f
}

func (g *GRE) String() string { return formatLayer(g, false) }
