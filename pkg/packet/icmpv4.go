package packet

import (
	"fmt"

	"golang.org/x/net/ipv4"

	"firestige.xyz/pktkit/pkg/view"
)

const (
	icmpv4TypeCodePos  = 0
	icmpv4ChecksumPos  = icmpv4TypeCodePos + 2
	icmpv4IDPos        = icmpv4ChecksumPos + 2
	icmpv4SequencePos  = icmpv4IDPos + 2
	ICMPv4HeaderLength = icmpv4SequencePos + 2
)

// ICMPv4TypeCode packs the type in the high byte and the code in the low byte.
type ICMPv4TypeCode uint16

func NewICMPv4TypeCode(typ, code uint8) ICMPv4TypeCode {
	return ICMPv4TypeCode(uint16(typ)<<8 | uint16(code))
}

func (tc ICMPv4TypeCode) Type() uint8 { return uint8(tc >> 8) }
func (tc ICMPv4TypeCode) Code() uint8 { return uint8(tc) }

const (
	ICMPv4TypeEchoReply              uint8 = 0
	ICMPv4TypeDestinationUnreachable uint8 = 3
	ICMPv4TypeSourceQuench           uint8 = 4
	ICMPv4TypeRedirect               uint8 = 5
	ICMPv4TypeEchoRequest            uint8 = 8
	ICMPv4TypeRouterAdvertisement    uint8 = 9
	ICMPv4TypeRouterSolicitation     uint8 = 10
	ICMPv4TypeTimeExceeded           uint8 = 11
	ICMPv4TypeParameterProblem       uint8 = 12
	ICMPv4TypeTimestamp              uint8 = 13
	ICMPv4TypeTimestampReply         uint8 = 14
	ICMPv4TypeInfoRequest            uint8 = 15
	ICMPv4TypeInfoReply              uint8 = 16
	ICMPv4TypeAddressMaskRequest     uint8 = 17
	ICMPv4TypeAddressMaskReply       uint8 = 18
)

var (
	ICMPv4EchoReply   = NewICMPv4TypeCode(ICMPv4TypeEchoReply, 0)
	ICMPv4EchoRequest = NewICMPv4TypeCode(ICMPv4TypeEchoRequest, 0)
)

// icmpv4Codes lists the valid codes of each known type.
var icmpv4Codes = map[uint8][]uint8{
	ICMPv4TypeEchoReply:              {0},
	ICMPv4TypeDestinationUnreachable: {0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15},
	ICMPv4TypeSourceQuench:           {0},
	ICMPv4TypeRedirect:               {0, 1, 2, 3},
	ICMPv4TypeEchoRequest:            {0},
	ICMPv4TypeRouterAdvertisement:    {0, 16},
	ICMPv4TypeRouterSolicitation:     {0},
	ICMPv4TypeTimeExceeded:           {0, 1},
	ICMPv4TypeParameterProblem:       {0, 1, 2},
	ICMPv4TypeTimestamp:              {0},
	ICMPv4TypeTimestampReply:         {0},
	ICMPv4TypeInfoRequest:            {0},
	ICMPv4TypeInfoReply:              {0},
	ICMPv4TypeAddressMaskRequest:     {0},
	ICMPv4TypeAddressMaskReply:       {0},
}

var icmpv4UnreachableCodes = []string{
	"Net", "Host", "Protocol", "Port", "FragmentationNeeded", "SourceRouteFailed",
	"NetUnknown", "HostUnknown", "SourceIsolated", "NetAdminProhibited",
	"HostAdminProhibited", "NetTOS", "HostTOS", "CommAdminProhibited",
	"HostPrecedence", "PrecedenceCutoff",
}

// Valid reports whether the type/code pair is in the known table.
func (tc ICMPv4TypeCode) Valid() bool {
	for _, c := range icmpv4Codes[tc.Type()] {
		if c == tc.Code() {
			return true
		}
	}
	return false
}

func (tc ICMPv4TypeCode) String() string {
	name := ipv4.ICMPType(tc.Type()).String()
	if tc.Type() == ICMPv4TypeDestinationUnreachable && int(tc.Code()) < len(icmpv4UnreachableCodes) {
		return name + "(" + icmpv4UnreachableCodes[tc.Code()] + ")"
	}
	if tc.Code() == 0 {
		return name
	}
	return fmt.Sprintf("%s(code %d)", name, tc.Code())
}

// ICMPv4 is an ICMP message header. The identifier and sequence fields occupy
// the rest-of-header word, whatever the message type.
type ICMPv4 struct {
	Base
}

func NewICMPv4(tc ICMPv4TypeCode, id, seq uint16) (*ICMPv4, error) {
	if !tc.Valid() {
		return nil, fmt.Errorf("%w: ICMPv4 type %d code %d", ErrUnknownTypeCode, tc.Type(), tc.Code())
	}
	m := &ICMPv4{}
	m.newHeader(ICMPv4HeaderLength)
	m.SetTypeCode(tc)
	m.SetID(id)
	m.SetSequence(seq)
	return m, nil
}

func decodeICMPv4(_ *decoder, data view.View) (Packet, error) {
	if data.Len() < ICMPv4HeaderLength {
		return nil, tooShort(LayerTypeICMPv4, data.Offset(), data.Len(), ICMPv4HeaderLength)
	}
	m := &ICMPv4{}
	m.header = data.Slice(0, ICMPv4HeaderLength)
	if tc := m.TypeCode(); !tc.Valid() {
		return nil, invalid(LayerTypeICMPv4, data.Offset(), ErrUnknownTypeCode, "type %d code %d", tc.Type(), tc.Code())
	}
	m.payload = DataPayload(m.header.Encapsulated(-1))
	return m, nil
}

func (m *ICMPv4) LayerType() LayerType { return LayerTypeICMPv4 }

func (m *ICMPv4) TypeCode() ICMPv4TypeCode {
	return ICMPv4TypeCode(m.header.Uint16(icmpv4TypeCodePos))
}

func (m *ICMPv4) SetTypeCode(tc ICMPv4TypeCode) { m.header.PutUint16(icmpv4TypeCodePos, uint16(tc)) }

func (m *ICMPv4) Checksum() uint16 { return m.header.Uint16(icmpv4ChecksumPos) }

func (m *ICMPv4) SetChecksum(c uint16) { m.header.PutUint16(icmpv4ChecksumPos, c) }

func (m *ICMPv4) ID() uint16 { return m.header.Uint16(icmpv4IDPos) }

func (m *ICMPv4) SetID(id uint16) { m.header.PutUint16(icmpv4IDPos, id) }

func (m *ICMPv4) Sequence() uint16 { return m.header.Uint16(icmpv4SequencePos) }

func (m *ICMPv4) SetSequence(seq uint16) { m.header.PutUint16(icmpv4SequencePos, seq) }

// ComputeChecksum covers the whole message; ICMPv4 has no pseudo-header.
func (m *ICMPv4) ComputeChecksum() uint16 { return layerChecksum(nil, m, icmpv4ChecksumPos) }

func (m *ICMPv4) ValidChecksum() bool { return layerChecksumValid(nil, m) }

func (m *ICMPv4) UpdateChecksum() { m.SetChecksum(m.ComputeChecksum()) }

func (m *ICMPv4) updateCalculatedValues(Network) { m.UpdateChecksum() }

func (m *ICMPv4) checksumValid(Network) (valid, applicable bool) { return m.ValidChecksum(), true }

func (m *ICMPv4) Fields(verbose bool) []Field {
	f := []Field{
		{"TypeCode", m.TypeCode()},
		{"ID", m.ID()},
		{"Sequence", m.Sequence()},
	}
	if verbose {
		f = append(f, Field{"Checksum", fmt.Sprintf("0x%04x", m.Checksum())}, Field{"ValidChecksum", m.ValidChecksum()})
	}
	return f
}

func (m *ICMPv4) String() string { return formatLayer(m, false) }
