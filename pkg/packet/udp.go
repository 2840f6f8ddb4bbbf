package packet

import (
	"fmt"

	"firestige.xyz/pktkit/pkg/view"
)

const (
	udpSrcPortPos   = 0
	udpDstPortPos   = udpSrcPortPos + 2
	udpLengthPos    = udpDstPortPos + 2
	udpChecksumPos  = udpLengthPos + 2
	UDPHeaderLength = udpChecksumPos + 2
)

// Destination ports whose payload is decoded instead of kept opaque.
const (
	UDPPortEcho    = 7
	UDPPortDiscard = 9
	UDPPortL2TP    = 1701
)

// udpPortDecoders is consulted by destination port only. A decoder that does not
// recognise the payload leaves it opaque.
var udpPortDecoders = map[uint16]decodeFunc{}

// UDP is a UDP header.
type UDP struct {
	Base
}

func NewUDP(srcPort, dstPort uint16) *UDP {
	u := &UDP{}
	u.newHeader(UDPHeaderLength)
	u.SetSourcePort(srcPort)
	u.SetDestinationPort(dstPort)
	u.UpdateLength()
	return u
}

func decodeUDP(d *decoder, data view.View) (Packet, error) {
	if data.Len() < UDPHeaderLength {
		return nil, tooShort(LayerTypeUDP, data.Offset(), data.Len(), UDPHeaderLength)
	}
	u := &UDP{}
	u.header = data.Slice(0, UDPHeaderLength)

	// Length 0 marks a datagram carried in an IPv6 jumbogram (RFC 2675).
	n := int(u.Length()) - UDPHeaderLength
	avail := data.Len() - UDPHeaderLength
	if u.Length() == 0 {
		n = avail
	}
	if n < 0 || n > avail {
		if d.strict && n < 0 {
			return nil, invalid(LayerTypeUDP, data.Offset(), ErrInvalidLength, "length %d", u.Length())
		}
		n = avail
	}
	if err := d.decodePayload(&u.Base, u.header.Encapsulated(n), udpPortDecoders[u.DestinationPort()]); err != nil {
		return nil, err
	}
	return u, nil
}

func (u *UDP) LayerType() LayerType { return LayerTypeUDP }

func (u *UDP) SourcePort() uint16 { return u.header.Uint16(udpSrcPortPos) }

func (u *UDP) SetSourcePort(p uint16) { u.header.PutUint16(udpSrcPortPos, p) }

func (u *UDP) DestinationPort() uint16 { return u.header.Uint16(udpDstPortPos) }

func (u *UDP) SetDestinationPort(p uint16) { u.header.PutUint16(udpDstPortPos, p) }

// Length covers header and payload.
func (u *UDP) Length() uint16 { return u.header.Uint16(udpLengthPos) }

func (u *UDP) SetLength(n uint16) { u.header.PutUint16(udpLengthPos, n) }

func (u *UDP) Checksum() uint16 { return u.header.Uint16(udpChecksumPos) }

func (u *UDP) SetChecksum(c uint16) { u.header.PutUint16(udpChecksumPos, c) }

// SetPayload attaches p and refreshes Length.
func (u *UDP) SetPayload(p Payload) {
	u.Base.SetPayload(p)
	u.UpdateLength()
}

// UpdateLength writes 0 for a datagram longer than 0xffff bytes.
func (u *UDP) UpdateLength() { u.SetLength(lengthField(u.Len())) }

// ComputeChecksum covers the pseudo-header of network and the datagram. A sum of
// zero is returned as 0xffff, zero being reserved for "no checksum".
func (u *UDP) ComputeChecksum(network Network) (uint16, error) {
	if network == nil {
		return 0, ErrNoNetworkLayer
	}
	c := layerChecksum(network.PseudoHeader(IPProtocolUDP, u.Len()), u, udpChecksumPos)
	if c == 0 {
		c = 0xffff
	}
	return c, nil
}

// ValidChecksum accepts a zero checksum over IPv4, where it means none was sent.
func (u *UDP) ValidChecksum(network Network) bool {
	if network == nil {
		return false
	}
	if u.Checksum() == 0 {
		_, v4 := network.(*IPv4)
		return v4
	}
	return layerChecksumValid(network.PseudoHeader(IPProtocolUDP, u.Len()), u)
}

func (u *UDP) UpdateChecksum(network Network) error {
	c, err := u.ComputeChecksum(network)
	if err != nil {
		return err
	}
	u.SetChecksum(c)
	return nil
}

func (u *UDP) updateCalculatedValues(network Network) {
	u.UpdateLength()
	_ = u.UpdateChecksum(network)
}

func (u *UDP) checksumValid(network Network) (valid, applicable bool) {
	if network == nil {
		return false, false
	}
	if _, v4 := network.(*IPv4); v4 && u.Checksum() == 0 {
		return true, false
	}
	return u.ValidChecksum(network), true
}

func (u *UDP) Fields(verbose bool) []Field {
	f := []Field{
		{"SourcePort", u.SourcePort()},
		{"DestinationPort", u.DestinationPort()},
		{"Length", u.Length()},
	}
	if verbose {
		f = append(f, Field{"Checksum", fmt.Sprintf("0x%04x", u.Checksum())})
	}
	return f
}

func (u *UDP) String() string { return formatLayer(u, false) }
