package packet

import (
	"fmt"

	"golang.org/x/net/ipv6"

	"firestige.xyz/pktkit/pkg/view"
)

const (
	icmpv6TypePos      = 0
	icmpv6CodePos      = icmpv6TypePos + 1
	icmpv6ChecksumPos  = icmpv6CodePos + 1
	ICMPv6HeaderLength = icmpv6ChecksumPos + 2

	icmpv6EchoIDPos        = 0
	icmpv6EchoSequencePos  = icmpv6EchoIDPos + 2
	ICMPv6EchoHeaderLength = icmpv6EchoSequencePos + 2
)

// ICMPv6Type is the ICMPv6 message type.
type ICMPv6Type uint8

const (
	ICMPv6TypeDestinationUnreachable ICMPv6Type = 1
	ICMPv6TypePacketTooBig           ICMPv6Type = 2
	ICMPv6TypeTimeExceeded           ICMPv6Type = 3
	ICMPv6TypeParameterProblem       ICMPv6Type = 4
	ICMPv6TypeEchoRequest            ICMPv6Type = 128
	ICMPv6TypeEchoReply              ICMPv6Type = 129
	ICMPv6TypeMLDQuery               ICMPv6Type = 130
	ICMPv6TypeMLDReport              ICMPv6Type = 131
	ICMPv6TypeMLDDone                ICMPv6Type = 132
	ICMPv6TypeRouterSolicitation     ICMPv6Type = 133
	ICMPv6TypeRouterAdvertisement    ICMPv6Type = 134
	ICMPv6TypeNeighborSolicitation   ICMPv6Type = 135
	ICMPv6TypeNeighborAdvertisement  ICMPv6Type = 136
	ICMPv6TypeRedirect               ICMPv6Type = 137
	ICMPv6TypeRouterRenumbering      ICMPv6Type = 138
	ICMPv6TypeMLDv2Report            ICMPv6Type = 143
)

// icmpv6MaxCode bounds the code of types that define their codes. Types absent
// from the map are unknown; a bound of 0xff accepts any code.
var icmpv6MaxCode = map[ICMPv6Type]uint8{
	ICMPv6TypeDestinationUnreachable: 8,
	ICMPv6TypePacketTooBig:           0,
	ICMPv6TypeTimeExceeded:           1,
	ICMPv6TypeParameterProblem:       10,
	ICMPv6TypeEchoRequest:            0,
	ICMPv6TypeEchoReply:              0,
	ICMPv6TypeMLDQuery:               0,
	ICMPv6TypeMLDReport:              0,
	ICMPv6TypeMLDDone:                0,
	ICMPv6TypeRouterSolicitation:     0,
	ICMPv6TypeRouterAdvertisement:    0,
	ICMPv6TypeNeighborSolicitation:   0,
	ICMPv6TypeNeighborAdvertisement:  0,
	ICMPv6TypeRedirect:               0,
	ICMPv6TypeRouterRenumbering:      0xff,
	139:                              2, // node information query
	140:                              2, // node information response
	141:                              0, // inverse ND solicitation
	142:                              0, // inverse ND advertisement
	ICMPv6TypeMLDv2Report:            0,
	144:                              0, // home agent address discovery request
	145:                              0,
	146:                              0, // mobile prefix solicitation
	147:                              0,
	151:                              0, // multicast router advertisement
	152:                              0,
	153:                              0,
}

func (t ICMPv6Type) String() string { return ipv6.ICMPType(t).String() }

// ValidICMPv6TypeCode reports whether the type is known and the code allowed for it.
func ValidICMPv6TypeCode(t ICMPv6Type, code uint8) bool {
	limit, ok := icmpv6MaxCode[t]
	return ok && code <= limit
}

var icmpv6TypeDecoders = map[ICMPv6Type]decodeFunc{}

// ICMPv6 is the 4-byte ICMPv6 header. The message body is the payload: echo and
// neighbor discovery bodies decode to their own layers, others stay opaque.
type ICMPv6 struct {
	Base
}

func NewICMPv6(t ICMPv6Type, code uint8) (*ICMPv6, error) {
	if !ValidICMPv6TypeCode(t, code) {
		return nil, fmt.Errorf("%w: ICMPv6 type %d code %d", ErrUnknownTypeCode, t, code)
	}
	m := &ICMPv6{}
	m.newHeader(ICMPv6HeaderLength)
	m.SetType(t)
	m.SetCode(code)
	return m, nil
}

func decodeICMPv6(d *decoder, data view.View) (Packet, error) {
	if data.Len() < ICMPv6HeaderLength {
		return nil, tooShort(LayerTypeICMPv6, data.Offset(), data.Len(), ICMPv6HeaderLength)
	}
	m := &ICMPv6{}
	m.header = data.Slice(0, ICMPv6HeaderLength)
	if !ValidICMPv6TypeCode(m.Type(), m.Code()) {
		return nil, invalid(LayerTypeICMPv6, data.Offset(), ErrUnknownTypeCode, "type %d code %d", m.Type(), m.Code())
	}
	if err := d.decodePayload(&m.Base, m.header.Encapsulated(-1), icmpv6TypeDecoders[m.Type()]); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *ICMPv6) LayerType() LayerType { return LayerTypeICMPv6 }

func (m *ICMPv6) Type() ICMPv6Type { return ICMPv6Type(m.header.Uint8(icmpv6TypePos)) }

func (m *ICMPv6) SetType(t ICMPv6Type) { m.header.PutUint8(icmpv6TypePos, uint8(t)) }

func (m *ICMPv6) Code() uint8 { return m.header.Uint8(icmpv6CodePos) }

func (m *ICMPv6) SetCode(c uint8) { m.header.PutUint8(icmpv6CodePos, c) }

func (m *ICMPv6) Checksum() uint16 { return m.header.Uint16(icmpv6ChecksumPos) }

func (m *ICMPv6) SetChecksum(c uint16) { m.header.PutUint16(icmpv6ChecksumPos, c) }

// ComputeChecksum covers the IPv6 pseudo-header of network and the whole message.
func (m *ICMPv6) ComputeChecksum(network Network) (uint16, error) {
	if network == nil {
		return 0, ErrNoNetworkLayer
	}
	return layerChecksum(network.PseudoHeader(IPProtocolICMPv6, m.Len()), m, icmpv6ChecksumPos), nil
}

func (m *ICMPv6) ValidChecksum(network Network) bool {
	if network == nil {
		return false
	}
	return layerChecksumValid(network.PseudoHeader(IPProtocolICMPv6, m.Len()), m)
}

func (m *ICMPv6) UpdateChecksum(network Network) error {
	c, err := m.ComputeChecksum(network)
	if err != nil {
		return err
	}
	m.SetChecksum(c)
	return nil
}

func (m *ICMPv6) updateCalculatedValues(network Network) { _ = m.UpdateChecksum(network) }

func (m *ICMPv6) checksumValid(network Network) (valid, applicable bool) {
	if network == nil {
		return false, false
	}
	return m.ValidChecksum(network), true
}

func (m *ICMPv6) Fields(verbose bool) []Field {
	f := []Field{
		{"Type", m.Type()},
		{"Code", m.Code()},
	}
	if verbose {
		f = append(f, Field{"Checksum", fmt.Sprintf("0x%04x", m.Checksum())})
	}
	return f
}

func (m *ICMPv6) String() string { return formatLayer(m, false) }

// ICMPv6Echo is the body of an echo request or reply.
type ICMPv6Echo struct {
	Base
}

func NewICMPv6Echo(id, seq uint16) *ICMPv6Echo {
	e := &ICMPv6Echo{}
	e.newHeader(ICMPv6EchoHeaderLength)
	e.SetID(id)
	e.SetSequence(seq)
	return e
}

func decodeICMPv6Echo(_ *decoder, data view.View) (Packet, error) {
	if data.Len() < ICMPv6EchoHeaderLength {
		return nil, tooShort(LayerTypeICMPv6Echo, data.Offset(), data.Len(), ICMPv6EchoHeaderLength)
	}
	e := &ICMPv6Echo{}
	e.header = data.Slice(0, ICMPv6EchoHeaderLength)
	e.payload = DataPayload(e.header.Encapsulated(-1))
	return e, nil
}

func (e *ICMPv6Echo) LayerType() LayerType { return LayerTypeICMPv6Echo }

func (e *ICMPv6Echo) ID() uint16 { return e.header.Uint16(icmpv6EchoIDPos) }

func (e *ICMPv6Echo) SetID(id uint16) { e.header.PutUint16(icmpv6EchoIDPos, id) }

func (e *ICMPv6Echo) Sequence() uint16 { return e.header.Uint16(icmpv6EchoSequencePos) }

func (e *ICMPv6Echo) SetSequence(seq uint16) { e.header.PutUint16(icmpv6EchoSequencePos, seq) }

func (e *ICMPv6Echo) Fields(bool) []Field {
	return []Field{{"ID", e.ID()}, {"Sequence", e.Sequence()}}
}

func (e *ICMPv6Echo) String() string { return formatLayer(e, false) }
