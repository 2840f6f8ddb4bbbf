package packet

import (
	"fmt"
	"net"
	"net/netip"

	"firestige.xyz/pktkit/pkg/view"
)

const (
	arpHardwareTypePos   = 0
	arpProtocolTypePos   = arpHardwareTypePos + 2
	arpHardwareLengthPos = arpProtocolTypePos + 2
	arpProtocolLengthPos = arpHardwareLengthPos + 1
	arpOperationPos      = arpProtocolLengthPos + 1
	arpAddressesPos      = arpOperationPos + 2

	// ARPFixedLength is the header length before the variable address fields.
	ARPFixedLength = arpAddressesPos
	// ARPEthernetIPv4Length is the header length for Ethernet/IPv4 addresses.
	ARPEthernetIPv4Length = ARPFixedLength + 2*(macLength+4)

	arpHardwareEthernet = 1
)

// ARPOperation is the ARP opcode.
type ARPOperation uint16

const (
	ARPRequest        ARPOperation = 1
	ARPReply          ARPOperation = 2
	ARPReverseRequest ARPOperation = 3
	ARPReverseReply   ARPOperation = 4
)

func (o ARPOperation) String() string {
	switch o {
	case ARPRequest:
		return "Request"
	case ARPReply:
		return "Reply"
	case ARPReverseRequest:
		return "ReverseRequest"
	case ARPReverseReply:
		return "ReverseReply"
	}
	return fmt.Sprintf("ARPOperation(%d)", uint16(o))
}

// ARP is an ARP/RARP message. Address fields are sized by the hardware and
// protocol length fields.
type ARP struct {
	Base
}

// NewARP builds an Ethernet/IPv4 ARP message.
func NewARP(op ARPOperation, senderMAC net.HardwareAddr, senderIP netip.Addr, targetMAC net.HardwareAddr, targetIP netip.Addr) (*ARP, error) {
	if !senderIP.Is4() || !targetIP.Is4() {
		return nil, fmt.Errorf("pktkit: ARP addresses must be IPv4")
	}
	a := &ARP{}
	a.newHeader(ARPEthernetIPv4Length)
	a.header.PutUint16(arpHardwareTypePos, arpHardwareEthernet)
	a.header.PutUint16(arpProtocolTypePos, uint16(EtherTypeIPv4))
	a.header.PutUint8(arpHardwareLengthPos, macLength)
	a.header.PutUint8(arpProtocolLengthPos, 4)
	a.SetOperation(op)
	if err := a.SetSenderHardwareAddress(senderMAC); err != nil {
		return nil, err
	}
	if err := a.SetTargetHardwareAddress(targetMAC); err != nil {
		return nil, err
	}
	if err := a.SetSenderProtocolAddress(senderIP); err != nil {
		return nil, err
	}
	if err := a.SetTargetProtocolAddress(targetIP); err != nil {
		return nil, err
	}
	return a, nil
}

func decodeARP(_ *decoder, data view.View) (Packet, error) {
	if data.Len() < ARPFixedLength {
		return nil, tooShort(LayerTypeARP, data.Offset(), data.Len(), ARPFixedLength)
	}
	hl := int(data.Uint8(arpHardwareLengthPos))
	pl := int(data.Uint8(arpProtocolLengthPos))
	n := ARPFixedLength + 2*(hl+pl)
	if data.Len() < n {
		return nil, tooShort(LayerTypeARP, data.Offset(), data.Len(), n)
	}
	a := &ARP{}
	a.header = data.Slice(0, n)
	return a, nil
}

func (a *ARP) LayerType() LayerType { return LayerTypeARP }

func (a *ARP) HardwareAddressType() uint16 { return a.header.Uint16(arpHardwareTypePos) }

func (a *ARP) ProtocolAddressType() EtherType { return EtherType(a.header.Uint16(arpProtocolTypePos)) }

func (a *ARP) HardwareAddressLength() int { return int(a.header.Uint8(arpHardwareLengthPos)) }

func (a *ARP) ProtocolAddressLength() int { return int(a.header.Uint8(arpProtocolLengthPos)) }

func (a *ARP) Operation() ARPOperation { return ARPOperation(a.header.Uint16(arpOperationPos)) }

func (a *ARP) SetOperation(op ARPOperation) { a.header.PutUint16(arpOperationPos, uint16(op)) }

func (a *ARP) senderHardwarePos() int { return arpAddressesPos }
func (a *ARP) senderProtocolPos() int { return arpAddressesPos + a.HardwareAddressLength() }
func (a *ARP) targetHardwarePos() int {
	return arpAddressesPos + a.HardwareAddressLength() + a.ProtocolAddressLength()
}
func (a *ARP) targetProtocolPos() int {
	return arpAddressesPos + 2*a.HardwareAddressLength() + a.ProtocolAddressLength()
}

func (a *ARP) SenderHardwareAddress() net.HardwareAddr {
	return net.HardwareAddr(a.header.CopyField(a.senderHardwarePos(), a.HardwareAddressLength()))
}

func (a *ARP) SetSenderHardwareAddress(mac net.HardwareAddr) error {
	return a.putAddress(a.senderHardwarePos(), a.HardwareAddressLength(), mac)
}

func (a *ARP) TargetHardwareAddress() net.HardwareAddr {
	return net.HardwareAddr(a.header.CopyField(a.targetHardwarePos(), a.HardwareAddressLength()))
}

func (a *ARP) SetTargetHardwareAddress(mac net.HardwareAddr) error {
	return a.putAddress(a.targetHardwarePos(), a.HardwareAddressLength(), mac)
}

// SenderProtocolAddress is invalid when the protocol address is neither 4 nor 16 bytes.
func (a *ARP) SenderProtocolAddress() netip.Addr {
	addr, _ := netip.AddrFromSlice(a.header.Field(a.senderProtocolPos(), a.ProtocolAddressLength()))
	return addr
}

func (a *ARP) SetSenderProtocolAddress(ip netip.Addr) error {
	return a.putAddress(a.senderProtocolPos(), a.ProtocolAddressLength(), ip.AsSlice())
}

func (a *ARP) TargetProtocolAddress() netip.Addr {
	addr, _ := netip.AddrFromSlice(a.header.Field(a.targetProtocolPos(), a.ProtocolAddressLength()))
	return addr
}

func (a *ARP) SetTargetProtocolAddress(ip netip.Addr) error {
	return a.putAddress(a.targetProtocolPos(), a.ProtocolAddressLength(), ip.AsSlice())
}

func (a *ARP) putAddress(pos, n int, b []byte) error {
	if len(b) != n {
		return fmt.Errorf("pktkit: ARP address of %d bytes, header declares %d", len(b), n)
	}
	a.header.PutBytes(pos, b)
	return nil
}

func (a *ARP) Fields(verbose bool) []Field {
	f := []Field{
		{"Operation", a.Operation()},
		{"SenderHardwareAddress", a.SenderHardwareAddress()},
		{"SenderProtocolAddress", a.SenderProtocolAddress()},
		{"TargetHardwareAddress", a.TargetHardwareAddress()},
		{"TargetProtocolAddress", a.TargetProtocolAddress()},
	}
	if verbose {
		f = append([]Field{
			{"HardwareAddressType", a.HardwareAddressType()},
			{"ProtocolAddressType", a.ProtocolAddressType()},
		}, f...)
	}
	return f
}

func (a *ARP) String() string { return formatLayer(a, false) }
