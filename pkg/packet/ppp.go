package packet

import (
	"firestige.xyz/pktkit/pkg/view"
)

const (
	pppAddress          = 0xff
	pppControl          = 0x03
	pppAddrCtlLength    = 2
	PPPMinHeaderLength  = 2
	pppMaxHeaderLength  = pppAddrCtlLength + 2
	pppCompressedMarker = 0x01
)

// PPP is a PPP header: an optional FF 03 address/control prefix and the
// protocol field, one byte when compressed.
type PPP struct {
	Base
}

func NewPPP(proto PPPProtocol, addressControl bool) *PPP {
	p := &PPP{}
	if addressControl {
		p.newHeader(pppMaxHeaderLength)
		p.header.PutUint8(0, pppAddress)
		p.header.PutUint8(1, pppControl)
	} else {
		p.newHeader(PPPMinHeaderLength)
	}
	p.SetProtocol(proto)
	return p
}

func decodePPP(d *decoder, data view.View) (Packet, error) {
	if data.Len() < 1 {
		return nil, tooShort(LayerTypePPP, data.Offset(), 0, PPPMinHeaderLength)
	}
	pos := 0
	if data.Len() >= pppAddrCtlLength && data.Uint8(0) == pppAddress && data.Uint8(1) == pppControl {
		pos = pppAddrCtlLength
	}
	hl := pos + 2
	if data.Len() > pos && data.Uint8(pos)&pppCompressedMarker != 0 {
		hl = pos + 1
	}
	if data.Len() < hl {
		return nil, tooShort(LayerTypePPP, data.Offset(), data.Len(), hl)
	}
	p := &PPP{}
	p.header = data.Slice(0, hl)
	if err := d.decodePayload(&p.Base, p.header.Encapsulated(-1), pppProtocolDecoders[p.Protocol()]); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *PPP) LayerType() LayerType { return LayerTypePPP }

// HasAddressControl reports whether the header starts with FF 03.
func (p *PPP) HasAddressControl() bool {
	return p.header.Len() > pppAddrCtlLength && p.header.Uint8(0) == pppAddress && p.header.Uint8(1) == pppControl
}

func (p *PPP) protocolPos() int {
	if p.HasAddressControl() {
		return pppAddrCtlLength
	}
	return 0
}

func (p *PPP) Protocol() PPPProtocol {
	pos := p.protocolPos()
	if p.header.Len()-pos == 1 {
		return PPPProtocol(p.header.Uint8(pos))
	}
	return PPPProtocol(p.header.Uint16(pos))
}

// SetProtocol writes proto. A compressed one-byte field only accepts values below 0x100.
func (p *PPP) SetProtocol(proto PPPProtocol) {
	pos := p.protocolPos()
	if p.header.Len()-pos == 1 {
		p.header.PutUint8(pos, uint8(proto))
		return
	}
	p.header.PutUint16(pos, uint16(proto))
}

func (p *PPP) Fields(verbose bool) []Field {
	f := []Field{{"Protocol", p.Protocol()}}
	if verbose {
		f = append(f, Field{"AddressControl", p.HasAddressControl()})
	}
	return f
}

func (p *PPP) String() string { return formatLayer(p, false) }
