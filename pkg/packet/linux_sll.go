package packet

import (
	"fmt"
	"net"

	"firestige.xyz/pktkit/pkg/view"
)

const (
	sllAddressMax = 8

	sllPacketTypePos     = 0
	sllAddressTypePos    = sllPacketTypePos + 2
	sllAddressLengthPos  = sllAddressTypePos + 2
	sllAddressPos        = sllAddressLengthPos + 2
	sllProtocolPos       = sllAddressPos + sllAddressMax
	LinuxSLLHeaderLength = sllProtocolPos + 2
)

// LinuxSLLPacketType says who the packet was addressed to.
type LinuxSLLPacketType uint16

const (
	LinuxSLLPacketTypeHost      LinuxSLLPacketType = 0
	LinuxSLLPacketTypeBroadcast LinuxSLLPacketType = 1
	LinuxSLLPacketTypeMulticast LinuxSLLPacketType = 2
	LinuxSLLPacketTypeOtherHost LinuxSLLPacketType = 3
	LinuxSLLPacketTypeOutgoing  LinuxSLLPacketType = 4
)

func (t LinuxSLLPacketType) String() string {
	switch t {
	case LinuxSLLPacketTypeHost:
		return "Host"
	case LinuxSLLPacketTypeBroadcast:
		return "Broadcast"
	case LinuxSLLPacketTypeMulticast:
		return "Multicast"
	case LinuxSLLPacketTypeOtherHost:
		return "OtherHost"
	case LinuxSLLPacketTypeOutgoing:
		return "Outgoing"
	}
	return fmt.Sprintf("LinuxSLLPacketType(%d)", uint16(t))
}

// arphrdEther is the ARPHRD type of Ethernet devices.
const arphrdEther = 1

// LinuxSLL is the Linux "cooked" capture pseudo-header (version 1).
type LinuxSLL struct {
	Base
}

// NewLinuxSLL builds a cooked header for an Ethernet device.
func NewLinuxSLL(pt LinuxSLLPacketType, addr net.HardwareAddr, proto EtherType) (*LinuxSLL, error) {
	if len(addr) > sllAddressMax {
		return nil, fmt.Errorf("pktkit: link-layer address of %d bytes exceeds %d", len(addr), sllAddressMax)
	}
	s := &LinuxSLL{}
	s.newHeader(LinuxSLLHeaderLength)
	s.SetPacketType(pt)
	s.header.PutUint16(sllAddressTypePos, arphrdEther)
	s.header.PutUint16(sllAddressLengthPos, uint16(len(addr)))
	s.header.PutBytes(sllAddressPos, addr)
	s.SetProtocol(proto)
	return s, nil
}

func decodeLinuxSLL(d *decoder, data view.View) (Packet, error) {
	if data.Len() < LinuxSLLHeaderLength {
		return nil, tooShort(LayerTypeLinuxSLL, data.Offset(), data.Len(), LinuxSLLHeaderLength)
	}
	s := &LinuxSLL{}
	s.header = data.Slice(0, LinuxSLLHeaderLength)
	if err := d.decodePayload(&s.Base, s.header.Encapsulated(-1), etherTypeDecoders[s.Protocol()]); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *LinuxSLL) LayerType() LayerType { return LayerTypeLinuxSLL }

func (s *LinuxSLL) PacketType() LinuxSLLPacketType {
	return LinuxSLLPacketType(s.header.Uint16(sllPacketTypePos))
}

func (s *LinuxSLL) SetPacketType(t LinuxSLLPacketType) {
	s.header.PutUint16(sllPacketTypePos, uint16(t))
}

// AddressType is the ARPHRD device type.
func (s *LinuxSLL) AddressType() uint16 { return s.header.Uint16(sllAddressTypePos) }

func (s *LinuxSLL) Address() net.HardwareAddr {
	n := int(s.header.Uint16(sllAddressLengthPos))
	if n > sllAddressMax {
		n = sllAddressMax
	}
	return net.HardwareAddr(s.header.CopyField(sllAddressPos, n))
}

func (s *LinuxSLL) Protocol() EtherType { return EtherType(s.header.Uint16(sllProtocolPos)) }

func (s *LinuxSLL) SetProtocol(t EtherType) { s.header.PutUint16(sllProtocolPos, uint16(t)) }

func (s *LinuxSLL) Fields(bool) []Field {
	return []Field{
		{"PacketType", s.PacketType()},
		{"AddressType", s.AddressType()},
		{"Address", s.Address()},
		{"Protocol", s.Protocol()},
	}
}

func (s *LinuxSLL) String() string { return formatLayer(s, false) }
