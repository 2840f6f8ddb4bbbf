package packet

import (
	"fmt"
	"net"

	"firestige.xyz/pktkit/pkg/view"
)

const (
	macLength          = 6
	ethernetTypeLength = 2

	ethernetDstPos       = 0
	ethernetSrcPos       = ethernetDstPos + macLength
	ethernetTypePos      = ethernetSrcPos + macLength
	EthernetHeaderLength = ethernetTypePos + ethernetTypeLength
)

// Ethernet is an Ethernet II frame header. Frame padding following the payload
// is kept as the trailer so that Bytes reproduces the captured frame.
type Ethernet struct {
	Base
}

// NewEthernet builds an Ethernet header with no payload.
func NewEthernet(src, dst net.HardwareAddr, t EtherType) (*Ethernet, error) {
	e := &Ethernet{}
	e.newHeader(EthernetHeaderLength)
	if err := e.SetSourceMAC(src); err != nil {
		return nil, err
	}
	if err := e.SetDestinationMAC(dst); err != nil {
		return nil, err
	}
	e.SetEtherType(t)
	return e, nil
}

func decodeEthernet(d *decoder, data view.View) (Packet, error) {
	if data.Len() < EthernetHeaderLength {
		return nil, tooShort(LayerTypeEthernet, data.Offset(), data.Len(), EthernetHeaderLength)
	}
	e := &Ethernet{}
	e.header = data.Slice(0, EthernetHeaderLength)

	t := e.EtherType()
	if t < etherTypeMinimum {
		// 802.3: the field is the length of the LLC data.
		body := e.header.Encapsulated(int(t)).Bounded()
		e.payload = DataPayload(body)
		if rest := e.header.Encapsulated(-1); rest.Len() > body.Len() {
			e.trailer = rest.Slice(body.Len(), rest.Len()-body.Len())
		}
		return e, nil
	}

	if err := d.decodePayload(&e.Base, e.header.Encapsulated(-1), etherTypeDecoders[t]); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Ethernet) LayerType() LayerType { return LayerTypeEthernet }

func (e *Ethernet) DestinationMAC() net.HardwareAddr {
	return net.HardwareAddr(e.header.CopyField(ethernetDstPos, macLength))
}

func (e *Ethernet) SetDestinationMAC(mac net.HardwareAddr) error {
	return putMAC(e.header, ethernetDstPos, mac)
}

func (e *Ethernet) SourceMAC() net.HardwareAddr {
	return net.HardwareAddr(e.header.CopyField(ethernetSrcPos, macLength))
}

func (e *Ethernet) SetSourceMAC(mac net.HardwareAddr) error {
	return putMAC(e.header, ethernetSrcPos, mac)
}

// EtherType is the payload type, or the payload length when below 0x0600.
func (e *Ethernet) EtherType() EtherType { return EtherType(e.header.Uint16(ethernetTypePos)) }

func (e *Ethernet) SetEtherType(t EtherType) { e.header.PutUint16(ethernetTypePos, uint16(t)) }

// IsLengthField reports whether the frame is IEEE 802.3 with a length field.
func (e *Ethernet) IsLengthField() bool { return e.EtherType() < etherTypeMinimum }

func (e *Ethernet) Fields(verbose bool) []Field {
	f := []Field{
		{"DestinationMAC", e.DestinationMAC()},
		{"SourceMAC", e.SourceMAC()},
		{"EtherType", e.EtherType()},
	}
	if verbose && e.trailer.Len() > 0 {
		f = append(f, Field{"Padding", e.trailer.Len()})
	}
	return f
}

func (e *Ethernet) String() string { return formatLayer(e, false) }

func putMAC(v view.View, pos int, mac net.HardwareAddr) error {
	if len(mac) != macLength {
		return fmt.Errorf("pktkit: invalid MAC address length %d", len(mac))
	}
	v.PutBytes(pos, mac)
	return nil
}
