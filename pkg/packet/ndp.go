package packet

import (
	"fmt"
	"net"
	"net/netip"

	"firestige.xyz/pktkit/pkg/view"
)

// NDPOptionType is the type of a neighbor discovery option (RFC 4861 section 4.6).
type NDPOptionType uint8

const (
	NDPOptionSourceLinkLayerAddress NDPOptionType = 1
	NDPOptionTargetLinkLayerAddress NDPOptionType = 2
	NDPOptionPrefixInformation      NDPOptionType = 3
	NDPOptionRedirectedHeader       NDPOptionType = 4
	NDPOptionMTU                    NDPOptionType = 5
)

func (t NDPOptionType) String() string {
	switch t {
	case NDPOptionSourceLinkLayerAddress:
		return "SourceLinkLayerAddress"
	case NDPOptionTargetLinkLayerAddress:
		return "TargetLinkLayerAddress"
	case NDPOptionPrefixInformation:
		return "PrefixInformation"
	case NDPOptionRedirectedHeader:
		return "RedirectedHeader"
	case NDPOptionMTU:
		return "MTU"
	}
	return fmt.Sprintf("NDPOptionType(%d)", uint8(t))
}

const (
	ndpOptionUnit          = 8
	ndpPrefixOptionLength  = 32
	ndpMTUOptionLength     = 8
	ndpRedirectedHeaderPad = 8
)

// NDPOption is one option of a neighbor discovery message, aliasing the message.
type NDPOption interface {
	Type() NDPOptionType
	// Len is the option length in bytes, type and length fields included.
	Len() int
	Bytes() []byte
	String() string
}

type ndpOption struct {
	v view.View
}

func (o ndpOption) Type() NDPOptionType { return NDPOptionType(o.v.Uint8(0)) }
func (o ndpOption) Len() int            { return o.v.Len() }
func (o ndpOption) Bytes() []byte       { return o.v.Bytes() }

// Data is the option body after the type and length bytes.
func (o ndpOption) Data() []byte {
	if o.v.Len() < 2 {
		return nil
	}
	return o.v.Field(2, o.v.Len()-2)
}

// NDPUnsupportedOption carries an option of a type without a decoder.
type NDPUnsupportedOption struct{ ndpOption }

func (o NDPUnsupportedOption) String() string {
	return fmt.Sprintf("%s(%d bytes)", o.Type(), o.Len())
}

// NDPLinkLayerAddressOption is a source or target link-layer address option.
type NDPLinkLayerAddressOption struct{ ndpOption }

func NewNDPLinkLayerAddressOption(t NDPOptionType, addr net.HardwareAddr) NDPLinkLayerAddressOption {
	n := (2 + len(addr) + ndpOptionUnit - 1) / ndpOptionUnit * ndpOptionUnit
	v := view.Alloc(n)
	v.PutUint8(0, uint8(t))
	v.PutUint8(1, uint8(n/ndpOptionUnit))
	v.PutBytes(2, addr)
	return NDPLinkLayerAddressOption{ndpOption{v}}
}

// LinkLayerAddress assumes a 6-byte address when the option has room for it.
func (o NDPLinkLayerAddressOption) LinkLayerAddress() net.HardwareAddr {
	data := o.Data()
	if len(data) > macLength {
		data = data[:macLength]
	}
	return net.HardwareAddr(append([]byte(nil), data...))
}

func (o NDPLinkLayerAddressOption) String() string {
	return fmt.Sprintf("%s(%s)", o.Type(), o.LinkLayerAddress())
}

// NDPPrefixInformationOption announces an on-link or autoconfiguration prefix.
type NDPPrefixInformationOption struct{ ndpOption }

func NewNDPPrefixInformationOption(prefix netip.Prefix, onLink, autonomous bool, valid, preferred uint32) NDPPrefixInformationOption {
	v := view.Alloc(ndpPrefixOptionLength)
	v.PutUint8(0, uint8(NDPOptionPrefixInformation))
	v.PutUint8(1, ndpPrefixOptionLength/ndpOptionUnit)
	v.PutUint8(2, uint8(prefix.Bits()))
	var flags uint8
	if onLink {
		flags |= 0x80
	}
	if autonomous {
		flags |= 0x40
	}
	v.PutUint8(3, flags)
	v.PutUint32(4, valid)
	v.PutUint32(8, preferred)
	a := prefix.Masked().Addr().As16()
	v.PutBytes(16, a[:])
	return NDPPrefixInformationOption{ndpOption{v}}
}

func (o NDPPrefixInformationOption) PrefixLength() int         { return int(o.v.Uint8(2)) }
func (o NDPPrefixInformationOption) OnLink() bool              { return o.v.Uint8(3)&0x80 != 0 }
func (o NDPPrefixInformationOption) Autonomous() bool          { return o.v.Uint8(3)&0x40 != 0 }
func (o NDPPrefixInformationOption) ValidLifetime() uint32     { return o.v.Uint32(4) }
func (o NDPPrefixInformationOption) PreferredLifetime() uint32 { return o.v.Uint32(8) }

func (o NDPPrefixInformationOption) Prefix() netip.Prefix {
	addr := netip.AddrFrom16([16]byte(o.v.Field(16, 16)))
	p, err := addr.Prefix(o.PrefixLength())
	if err != nil {
		return netip.PrefixFrom(addr, o.PrefixLength())
	}
	return p
}

func (o NDPPrefixInformationOption) String() string {
	return fmt.Sprintf("%s(%s L=%t A=%t valid=%d preferred=%d)", o.Type(), o.Prefix(),
		o.OnLink(), o.Autonomous(), o.ValidLifetime(), o.PreferredLifetime())
}

// NDPMTUOption advertises the link MTU.
type NDPMTUOption struct{ ndpOption }

func NewNDPMTUOption(mtu uint32) NDPMTUOption {
	v := view.Alloc(ndpMTUOptionLength)
	v.PutUint8(0, uint8(NDPOptionMTU))
	v.PutUint8(1, ndpMTUOptionLength/ndpOptionUnit)
	v.PutUint32(4, mtu)
	return NDPMTUOption{ndpOption{v}}
}

func (o NDPMTUOption) MTU() uint32 { return o.v.Uint32(4) }

func (o NDPMTUOption) String() string { return fmt.Sprintf("%s(%d)", o.Type(), o.MTU()) }

// NDPRedirectedHeaderOption carries the start of the redirected packet.
type NDPRedirectedHeaderOption struct{ ndpOption }

// RedirectedPacket returns the embedded IP packet bytes, aliasing the message.
func (o NDPRedirectedHeaderOption) RedirectedPacket() []byte {
	return o.v.Field(ndpRedirectedHeaderPad, o.v.Len()-ndpRedirectedHeaderPad)
}

func (o NDPRedirectedHeaderOption) String() string {
	return fmt.Sprintf("%s(%d bytes)", o.Type(), len(o.RedirectedPacket()))
}

// ndpOptionDecoders maps option types to constructors; each entry states the
// minimum length below which the option stays unsupported.
var ndpOptionDecoders = map[NDPOptionType]struct {
	min int
	fn  func(view.View) NDPOption
}{
	NDPOptionSourceLinkLayerAddress: {ndpOptionUnit, func(v view.View) NDPOption { return NDPLinkLayerAddressOption{ndpOption{v}} }},
	NDPOptionTargetLinkLayerAddress: {ndpOptionUnit, func(v view.View) NDPOption { return NDPLinkLayerAddressOption{ndpOption{v}} }},
	NDPOptionPrefixInformation:      {ndpPrefixOptionLength, func(v view.View) NDPOption { return NDPPrefixInformationOption{ndpOption{v}} }},
	NDPOptionRedirectedHeader:       {ndpRedirectedHeaderPad, func(v view.View) NDPOption { return NDPRedirectedHeaderOption{ndpOption{v}} }},
	NDPOptionMTU:                    {ndpMTUOptionLength, func(v view.View) NDPOption { return NDPMTUOption{ndpOption{v}} }},
}

func newNDPOption(v view.View) NDPOption {
	if v.Len() >= 2 {
		if dec, ok := ndpOptionDecoders[NDPOptionType(v.Uint8(0))]; ok && v.Len() >= dec.min {
			return dec.fn(v)
		}
	}
	return NDPUnsupportedOption{ndpOption{v}}
}

func ndpOptionSize(rest view.View) (int, bool) {
	if rest.Len() < 2 {
		return 2, true
	}
	return int(rest.Uint8(1)) * ndpOptionUnit, true
}

// ndpMessage is the part shared by every neighbor discovery message: a fixed
// part followed by options, all held in the header.
type ndpMessage struct {
	Base
	fixed int
	layer LayerType
}

func (m *ndpMessage) init(fixed int, layer LayerType, opts []NDPOption) {
	m.fixed = fixed
	m.layer = layer
	m.newHeader(fixed)
	m.SetOptions(opts...)
}

func decodeNDPMessage(d *decoder, data view.View, layer LayerType, fixed int) (ndpMessage, error) {
	if data.Len() < fixed {
		return ndpMessage{}, tooShort(layer, data.Offset(), data.Len(), fixed)
	}
	m := ndpMessage{fixed: fixed, layer: layer}
	m.header = data.Slice(0, data.Len())
	if d.strict {
		if _, err := m.parseOptions(true); err != nil {
			return ndpMessage{}, err
		}
	}
	return m, nil
}

func (m *ndpMessage) LayerType() LayerType { return m.layer }

func (m *ndpMessage) parseOptions(strict bool) ([]NDPOption, error) {
	region := m.header.Slice(m.fixed, m.header.Len()-m.fixed)
	views, err := splitOptions(region, strict, m.layer, ndpOptionSize)
	opts := make([]NDPOption, 0, len(views))
	for _, v := range views {
		opts = append(opts, newNDPOption(v))
	}
	return opts, err
}

// Options parses the option list on every call. Truncated options are clamped.
func (m *ndpMessage) Options() []NDPOption {
	opts, _ := m.parseOptions(false)
	return opts
}

// Option returns the first option of type t.
func (m *ndpMessage) Option(t NDPOptionType) (NDPOption, bool) {
	for _, o := range m.Options() {
		if o.Type() == t {
			return o, true
		}
	}
	return nil, false
}

// SetOptions replaces the options. The message moves to a new buffer.
func (m *ndpMessage) SetOptions(opts ...NDPOption) {
	raw := make([][]byte, len(opts))
	for i, o := range opts {
		raw[i] = o.Bytes()
	}
	m.header = joinOptions(m.header.Field(0, m.fixed), raw, ndpOptionUnit)
}

func (m *ndpMessage) optionFields(f []Field) []Field {
	for _, o := range m.Options() {
		f = append(f, Field{"Option", o})
	}
	return f
}

const (
	ndpRSFixedLength = 4

	ndpRAHopLimitPos       = 0
	ndpRAFlagsPos          = ndpRAHopLimitPos + 1
	ndpRARouterLifetimePos = ndpRAFlagsPos + 1
	ndpRAReachablePos      = ndpRARouterLifetimePos + 2
	ndpRARetransPos        = ndpRAReachablePos + 4
	ndpRAFixedLength       = ndpRARetransPos + 4

	ndpNSTargetPos   = 4
	ndpNSFixedLength = ndpNSTargetPos + 16

	ndpNAFlagsPos    = 0
	ndpNATargetPos   = 4
	ndpNAFixedLength = ndpNATargetPos + 16

	ndpRedirectTargetPos      = 4
	ndpRedirectDestinationPos = ndpRedirectTargetPos + 16
	ndpRedirectFixedLength    = ndpRedirectDestinationPos + 16
)

// NDPRouterSolicitation is the body of an ICMPv6 type 133 message.
type NDPRouterSolicitation struct{ ndpMessage }

func NewNDPRouterSolicitation(opts ...NDPOption) *NDPRouterSolicitation {
	m := &NDPRouterSolicitation{}
	m.init(ndpRSFixedLength, LayerTypeNDPRouterSolicitation, opts)
	return m
}

func decodeNDPRouterSolicitation(d *decoder, data view.View) (Packet, error) {
	m, err := decodeNDPMessage(d, data, LayerTypeNDPRouterSolicitation, ndpRSFixedLength)
	if err != nil {
		return nil, err
	}
	return &NDPRouterSolicitation{m}, nil
}

func (m *NDPRouterSolicitation) Fields(bool) []Field { return m.optionFields(nil) }

func (m *NDPRouterSolicitation) String() string { return formatLayer(m, false) }

// NDPRouterAdvertisement is the body of an ICMPv6 type 134 message.
type NDPRouterAdvertisement struct{ ndpMessage }

func NewNDPRouterAdvertisement(hopLimit uint8, managed, other bool, lifetime uint16, reachable, retrans uint32, opts ...NDPOption) *NDPRouterAdvertisement {
	m := &NDPRouterAdvertisement{}
	m.init(ndpRAFixedLength, LayerTypeNDPRouterAdvertisement, opts)
	m.header.PutUint8(ndpRAHopLimitPos, hopLimit)
	var flags uint8
	if managed {
		flags |= 0x80
	}
	if other {
		flags |= 0x40
	}
	m.header.PutUint8(ndpRAFlagsPos, flags)
	m.header.PutUint16(ndpRARouterLifetimePos, lifetime)
	m.header.PutUint32(ndpRAReachablePos, reachable)
	m.header.PutUint32(ndpRARetransPos, retrans)
	return m
}

func decodeNDPRouterAdvertisement(d *decoder, data view.View) (Packet, error) {
	m, err := decodeNDPMessage(d, data, LayerTypeNDPRouterAdvertisement, ndpRAFixedLength)
	if err != nil {
		return nil, err
	}
	return &NDPRouterAdvertisement{m}, nil
}

func (m *NDPRouterAdvertisement) CurrentHopLimit() uint8 { return m.header.Uint8(ndpRAHopLimitPos) }
func (m *NDPRouterAdvertisement) Managed() bool          { return m.header.Uint8(ndpRAFlagsPos)&0x80 != 0 }
func (m *NDPRouterAdvertisement) Other() bool            { return m.header.Uint8(ndpRAFlagsPos)&0x40 != 0 }
func (m *NDPRouterAdvertisement) RouterLifetime() uint16 {
	return m.header.Uint16(ndpRARouterLifetimePos)
}
func (m *NDPRouterAdvertisement) ReachableTime() uint32 { return m.header.Uint32(ndpRAReachablePos) }
func (m *NDPRouterAdvertisement) RetransTimer() uint32  { return m.header.Uint32(ndpRARetransPos) }

func (m *NDPRouterAdvertisement) Fields(bool) []Field {
	return m.optionFields([]Field{
		{"CurrentHopLimit", m.CurrentHopLimit()},
		{"Managed", m.Managed()},
		{"Other", m.Other()},
		{"RouterLifetime", m.RouterLifetime()},
		{"ReachableTime", m.ReachableTime()},
		{"RetransTimer", m.RetransTimer()},
	})
}

func (m *NDPRouterAdvertisement) String() string { return formatLayer(m, false) }

// NDPNeighborSolicitation is the body of an ICMPv6 type 135 message.
type NDPNeighborSolicitation struct{ ndpMessage }

func NewNDPNeighborSolicitation(target netip.Addr, opts ...NDPOption) *NDPNeighborSolicitation {
	m := &NDPNeighborSolicitation{}
	m.init(ndpNSFixedLength, LayerTypeNDPNeighborSolicitation, opts)
	m.SetTargetAddress(target)
	return m
}

func decodeNDPNeighborSolicitation(d *decoder, data view.View) (Packet, error) {
	m, err := decodeNDPMessage(d, data, LayerTypeNDPNeighborSolicitation, ndpNSFixedLength)
	if err != nil {
		return nil, err
	}
	return &NDPNeighborSolicitation{m}, nil
}

func (m *NDPNeighborSolicitation) TargetAddress() netip.Addr {
	return netip.AddrFrom16([16]byte(m.header.Field(ndpNSTargetPos, 16)))
}

func (m *NDPNeighborSolicitation) SetTargetAddress(a netip.Addr) {
	b := a.As16()
	m.header.PutBytes(ndpNSTargetPos, b[:])
}

func (m *NDPNeighborSolicitation) Fields(bool) []Field {
	return m.optionFields([]Field{{"TargetAddress", m.TargetAddress()}})
}

func (m *NDPNeighborSolicitation) String() string { return formatLayer(m, false) }

// NDPNeighborAdvertisement is the body of an ICMPv6 type 136 message.
type NDPNeighborAdvertisement struct{ ndpMessage }

func NewNDPNeighborAdvertisement(target netip.Addr, router, solicited, override bool, opts ...NDPOption) *NDPNeighborAdvertisement {
	m := &NDPNeighborAdvertisement{}
	m.init(ndpNAFixedLength, LayerTypeNDPNeighborAdvertisement, opts)
	var flags uint8
	if router {
		flags |= 0x80
	}
	if solicited {
		flags |= 0x40
	}
	if override {
		flags |= 0x20
	}
	m.header.PutUint8(ndpNAFlagsPos, flags)
	m.SetTargetAddress(target)
	return m
}

func decodeNDPNeighborAdvertisement(d *decoder, data view.View) (Packet, error) {
	m, err := decodeNDPMessage(d, data, LayerTypeNDPNeighborAdvertisement, ndpNAFixedLength)
	if err != nil {
		return nil, err
	}
	return &NDPNeighborAdvertisement{m}, nil
}

func (m *NDPNeighborAdvertisement) Router() bool    { return m.header.Uint8(ndpNAFlagsPos)&0x80 != 0 }
func (m *NDPNeighborAdvertisement) Solicited() bool { return m.header.Uint8(ndpNAFlagsPos)&0x40 != 0 }
func (m *NDPNeighborAdvertisement) Override() bool  { return m.header.Uint8(ndpNAFlagsPos)&0x20 != 0 }

func (m *NDPNeighborAdvertisement) TargetAddress() netip.Addr {
	return netip.AddrFrom16([16]byte(m.header.Field(ndpNATargetPos, 16)))
}

func (m *NDPNeighborAdvertisement) SetTargetAddress(a netip.Addr) {
	b := a.As16()
	m.header.PutBytes(ndpNATargetPos, b[:])
}

func (m *NDPNeighborAdvertisement) Fields(bool) []Field {
	return m.optionFields([]Field{
		{"TargetAddress", m.TargetAddress()},
		{"Router", m.Router()},
		{"Solicited", m.Solicited()},
		{"Override", m.Override()},
	})
}

func (m *NDPNeighborAdvertisement) String() string { return formatLayer(m, false) }

// NDPRedirect is the body of an ICMPv6 type 137 message.
type NDPRedirect struct{ ndpMessage }

func NewNDPRedirect(target, destination netip.Addr, opts ...NDPOption) *NDPRedirect {
	m := &NDPRedirect{}
	m.init(ndpRedirectFixedLength, LayerTypeNDPRedirect, opts)
	t, d := target.As16(), destination.As16()
	m.header.PutBytes(ndpRedirectTargetPos, t[:])
	m.header.PutBytes(ndpRedirectDestinationPos, d[:])
	return m
}

func decodeNDPRedirect(d *decoder, data view.View) (Packet, error) {
	m, err := decodeNDPMessage(d, data, LayerTypeNDPRedirect, ndpRedirectFixedLength)
	if err != nil {
		return nil, err
	}
	return &NDPRedirect{m}, nil
}

func (m *NDPRedirect) TargetAddress() netip.Addr {
	return netip.AddrFrom16([16]byte(m.header.Field(ndpRedirectTargetPos, 16)))
}

func (m *NDPRedirect) DestinationAddress() netip.Addr {
	return netip.AddrFrom16([16]byte(m.header.Field(ndpRedirectDestinationPos, 16)))
}

func (m *NDPRedirect) Fields(bool) []Field {
	return m.optionFields([]Field{
		{"TargetAddress", m.TargetAddress()},
		{"DestinationAddress", m.DestinationAddress()},
	})
}

func (m *NDPRedirect) String() string { return formatLayer(m, false) }
