// Package packet decodes and encodes nested network protocol headers without
// copying the captured bytes.
//
// Decode turns a captured frame into a tree of Packets. Every header and every
// opaque payload is a view.View into the original buffer: setters write straight
// into the frame, so after a modification Bytes returns the edited frame. Packets
// built with the New* constructors own freshly allocated header buffers and are
// joined together with SetPayload.
//
// A Packet has no pointer to its parent. Operations that need an enclosing layer
// (transport checksums need the IP addresses) take the network layer as an
// argument, or walk the tree from the root: see UpdateCalculatedValues,
// ValidChecksums, Parent and NetworkOf.
package packet

import (
	"fmt"

	"firestige.xyz/pktkit/pkg/view"
)

// LayerType identifies the concrete type of a Packet.
type LayerType uint8

const (
	LayerTypeUnknown LayerType = iota
	LayerTypeEthernet
	LayerTypeLinuxSLL
	LayerTypeDot1Q
	LayerTypeARP
	LayerTypeIPv4
	LayerTypeIPv6
	LayerTypeICMPv4
	LayerTypeICMPv6
	LayerTypeICMPv6Echo
	LayerTypeNDPRouterSolicitation
	LayerTypeNDPRouterAdvertisement
	LayerTypeNDPNeighborSolicitation
	LayerTypeNDPNeighborAdvertisement
	LayerTypeNDPRedirect
	LayerTypeTCP
	LayerTypeUDP
	LayerTypeGRE
	LayerTypeL2TP
	LayerTypePPPoE
	LayerTypePPP
	LayerTypeWakeOnLan
	LayerTypeDHCPv4
	LayerTypeOSPFv2Hello
	LayerTypeOSPFv2DatabaseDescription
	LayerTypeOSPFv2LinkStateRequest
	LayerTypeOSPFv2LinkStateUpdate
	LayerTypeOSPFv2LinkStateAck
	LayerTypeDRDA
	layerTypeCount
)

var layerTypeNames = [layerTypeCount]string{
	LayerTypeUnknown:                   "Unknown",
	LayerTypeEthernet:                  "Ethernet",
	LayerTypeLinuxSLL:                  "LinuxSLL",
	LayerTypeDot1Q:                     "Dot1Q",
	LayerTypeARP:                       "ARP",
	LayerTypeIPv4:                      "IPv4",
	LayerTypeIPv6:                      "IPv6",
	LayerTypeICMPv4:                    "ICMPv4",
	LayerTypeICMPv6:                    "ICMPv6",
	LayerTypeICMPv6Echo:                "ICMPv6Echo",
	LayerTypeNDPRouterSolicitation:     "NDPRouterSolicitation",
	LayerTypeNDPRouterAdvertisement:    "NDPRouterAdvertisement",
	LayerTypeNDPNeighborSolicitation:   "NDPNeighborSolicitation",
	LayerTypeNDPNeighborAdvertisement:  "NDPNeighborAdvertisement",
	LayerTypeNDPRedirect:               "NDPRedirect",
	LayerTypeTCP:                       "TCP",
	LayerTypeUDP:                       "UDP",
	LayerTypeGRE:                       "GRE",
	LayerTypeL2TP:                      "L2TP",
	LayerTypePPPoE:                     "PPPoE",
	LayerTypePPP:                       "PPP",
	LayerTypeWakeOnLan:                 "WakeOnLan",
	LayerTypeDHCPv4:                    "DHCPv4",
	LayerTypeOSPFv2Hello:               "OSPFv2Hello",
	LayerTypeOSPFv2DatabaseDescription: "OSPFv2DatabaseDescription",
	LayerTypeOSPFv2LinkStateRequest:    "OSPFv2LinkStateRequest",
	LayerTypeOSPFv2LinkStateUpdate:     "OSPFv2LinkStateUpdate",
	LayerTypeOSPFv2LinkStateAck:        "OSPFv2LinkStateAck",
	LayerTypeDRDA:                      "DRDA",
}

func (t LayerType) String() string {
	if t < layerTypeCount {
		return layerTypeNames[t]
	}
	return fmt.Sprintf("LayerType(%d)", uint8(t))
}

// Packet is one protocol layer of a decoded or constructed frame.
type Packet interface {
	LayerType() LayerType
	// HeaderView is the window over this layer's header bytes.
	HeaderView() view.View
	// Header returns the header bytes, aliasing the frame.
	Header() []byte
	Payload() Payload
	SetPayload(Payload)
	// Trailer holds bytes after the payload that belong to this layer only by
	// position, such as Ethernet padding.
	Trailer() view.View
	// Bytes returns header, payload and trailer as one slice. It is the backing
	// array itself when this layer spans the whole of it, a fresh copy otherwise.
	Bytes() []byte
	Len() int
	Fields(verbose bool) []Field
	String() string

	base() *Base
}

// Field is a named header value used for formatting.
type Field struct {
	Name  string
	Value interface{}
}

func (f Field) String() string { return fmt.Sprintf("%s=%v", f.Name, f.Value) }

// PayloadKind tells which variant of a Payload is populated.
type PayloadKind uint8

const (
	PayloadNone PayloadKind = iota
	PayloadPacket
	PayloadData
)

// Payload is either a nested Packet or opaque bytes, never both.
type Payload struct {
	kind   PayloadKind
	packet Packet
	data   view.View
}

// NoPayload is the empty payload.
var NoPayload = Payload{}

// PacketPayload wraps a nested layer.
func PacketPayload(p Packet) Payload {
	if p == nil {
		return NoPayload
	}
	return Payload{kind: PayloadPacket, packet: p}
}

// DataPayload wraps an opaque window.
func DataPayload(v view.View) Payload {
	return Payload{kind: PayloadData, data: v}
}

// BytesPayload wraps b as opaque data without copying it.
func BytesPayload(b []byte) Payload {
	return DataPayload(view.New(b))
}

func (p Payload) Kind() PayloadKind { return p.kind }

// Packet returns the nested layer, or nil.
func (p Payload) Packet() Packet { return p.packet }

// Data returns the opaque window; it is empty unless Kind is PayloadData.
func (p Payload) Data() view.View { return p.data }

func (p Payload) Len() int {
	switch p.kind {
	case PayloadPacket:
		return p.packet.Len()
	case PayloadData:
		return p.data.Len()
	}
	return 0
}

// Bytes returns the payload bytes. Opaque data aliases the frame.
func (p Payload) Bytes() []byte {
	switch p.kind {
	case PayloadPacket:
		return p.packet.Bytes()
	case PayloadData:
		return p.data.Bytes()
	}
	return nil
}

// Base carries the state shared by every layer. Protocol types embed it.
type Base struct {
	header  view.View
	payload Payload
	trailer view.View
}

func (b *Base) base() *Base { return b }

func (b *Base) HeaderView() view.View { return b.header }

func (b *Base) Header() []byte { return b.header.Bytes() }

func (b *Base) Payload() Payload { return b.payload }

func (b *Base) SetPayload(p Payload) { b.payload = p }

func (b *Base) Trailer() view.View { return b.trailer }

// SetTrailer replaces the trailing bytes of the layer.
func (b *Base) SetTrailer(t []byte) {
	if len(t) == 0 {
		b.trailer = view.View{}
		return
	}
	b.trailer = view.New(t)
}

// PayloadPacket returns the nested layer or nil.
func (b *Base) PayloadPacket() Packet { return b.payload.packet }

// PayloadData returns opaque payload bytes, aliasing the frame, or nil when the
// payload is a nested layer.
func (b *Base) PayloadData() []byte {
	if b.payload.kind != PayloadData {
		return nil
	}
	return b.payload.data.Bytes()
}

func (b *Base) Len() int {
	return b.header.Len() + b.payload.Len() + b.trailer.Len()
}

func (b *Base) Bytes() []byte {
	if v, ok := b.contiguous(); ok {
		return v.Materialize()
	}
	out := make([]byte, 0, b.Len())
	for _, part := range b.appendParts(nil) {
		out = append(out, part...)
	}
	return out
}

// contiguous returns the single window covering the layer when header, payload
// and trailer sit back to back in one buffer.
func (b *Base) contiguous() (view.View, bool) {
	v := b.header
	ok := true
	switch b.payload.kind {
	case PayloadPacket:
		var pv view.View
		if pv, ok = b.payload.packet.base().contiguous(); ok {
			v, ok = v.Join(pv)
		}
	case PayloadData:
		v, ok = v.Join(b.payload.data)
	}
	if ok && b.trailer.Len() > 0 {
		v, ok = v.Join(b.trailer)
	}
	return v, ok
}

// appendParts appends the byte ranges of the layer in wire order without copying.
func (b *Base) appendParts(parts [][]byte) [][]byte {
	parts = append(parts, b.header.Bytes())
	switch b.payload.kind {
	case PayloadPacket:
		parts = b.payload.packet.base().appendParts(parts)
	case PayloadData:
		parts = append(parts, b.payload.data.Bytes())
	}
	if b.trailer.Len() > 0 {
		parts = append(parts, b.trailer.Bytes())
	}
	return parts
}

// payloadParts is appendParts without the header.
func (b *Base) payloadParts() [][]byte {
	var parts [][]byte
	switch b.payload.kind {
	case PayloadPacket:
		parts = b.payload.packet.base().appendParts(parts)
	case PayloadData:
		parts = append(parts, b.payload.data.Bytes())
	}
	if b.trailer.Len() > 0 {
		parts = append(parts, b.trailer.Bytes())
	}
	return parts
}

// newHeader allocates an n-byte header buffer for a constructed packet.
func (b *Base) newHeader(n int) {
	b.header = view.Alloc(n)
}
