package packet

import (
	"fmt"

	"firestige.xyz/pktkit/pkg/view"
)

const (
	pppoeVersionTypePos = 0
	pppoeCodePos        = pppoeVersionTypePos + 1
	pppoeSessionPos     = pppoeCodePos + 1
	pppoeLengthPos      = pppoeSessionPos + 2
	PPPoEHeaderLength   = pppoeLengthPos + 2

	pppoeVersionType = 0x11
	pppoeTagHeader   = 4
)

// PPPoETagType is the type of a discovery stage tag.
type PPPoETagType uint16

const (
	PPPoETagEndOfList        PPPoETagType = 0x0000
	PPPoETagServiceName      PPPoETagType = 0x0101
	PPPoETagACName           PPPoETagType = 0x0102
	PPPoETagHostUniq         PPPoETagType = 0x0103
	PPPoETagACCookie         PPPoETagType = 0x0104
	PPPoETagVendorSpecific   PPPoETagType = 0x0105
	PPPoETagRelaySessionID   PPPoETagType = 0x0110
	PPPoETagServiceNameError PPPoETagType = 0x0201
	PPPoETagACSystemError    PPPoETagType = 0x0202
	PPPoETagGenericError     PPPoETagType = 0x0203
)

var pppoeTagNames = map[PPPoETagType]string{
	PPPoETagEndOfList:        "EndOfList",
	PPPoETagServiceName:      "ServiceName",
	PPPoETagACName:           "ACName",
	PPPoETagHostUniq:         "HostUniq",
	PPPoETagACCookie:         "ACCookie",
	PPPoETagVendorSpecific:   "VendorSpecific",
	PPPoETagRelaySessionID:   "RelaySessionID",
	PPPoETagServiceNameError: "ServiceNameError",
	PPPoETagACSystemError:    "ACSystemError",
	PPPoETagGenericError:     "GenericError",
}

func (t PPPoETagType) String() string {
	if s, ok := pppoeTagNames[t]; ok {
		return s
	}
	return fmt.Sprintf("PPPoETagType(0x%04x)", uint16(t))
}

// PPPoETag is one discovery tag, aliasing the frame.
type PPPoETag struct {
	v view.View
}

func NewPPPoETag(t PPPoETagType, value []byte) PPPoETag {
	v := view.Alloc(pppoeTagHeader + len(value))
	v.PutUint16(0, uint16(t))
	v.PutUint16(2, uint16(len(value)))
	v.PutBytes(pppoeTagHeader, value)
	return PPPoETag{v}
}

func (t PPPoETag) Type() PPPoETagType { return PPPoETagType(t.v.Uint16(0)) }

func (t PPPoETag) Len() int { return t.v.Len() }

func (t PPPoETag) Bytes() []byte { return t.v.Bytes() }

// Value is the tag value, clamped to the bytes present.
func (t PPPoETag) Value() []byte {
	if t.v.Len() <= pppoeTagHeader {
		return nil
	}
	return t.v.Field(pppoeTagHeader, t.v.Len()-pppoeTagHeader)
}

func (t PPPoETag) String() string {
	switch t.Type() {
	case PPPoETagServiceName, PPPoETagACName, PPPoETagServiceNameError, PPPoETagACSystemError, PPPoETagGenericError:
		return fmt.Sprintf("%s(%q)", t.Type(), t.Value())
	}
	return fmt.Sprintf("%s(%x)", t.Type(), t.Value())
}

func pppoeTagSize(rest view.View) (int, bool) {
	if rest.Len() < pppoeTagHeader {
		return pppoeTagHeader, true
	}
	return pppoeTagHeader + int(rest.Uint16(2)), PPPoETagType(rest.Uint16(0)) != PPPoETagEndOfList
}

// PPPoE is a PPPoE header (RFC 2516). Session frames carry PPP; discovery
// frames carry tags.
type PPPoE struct {
	Base
}

// NewPPPoESession builds a session stage header.
func NewPPPoESession(sessionID uint16) *PPPoE {
	p := &PPPoE{}
	p.newHeader(PPPoEHeaderLength)
	p.header.PutUint8(pppoeVersionTypePos, pppoeVersionType)
	p.SetCode(PPPoECodeSession)
	p.SetSessionID(sessionID)
	p.UpdateLength()
	return p
}

// NewPPPoEDiscovery builds a discovery stage frame whose payload is tags.
func NewPPPoEDiscovery(code PPPoECode, sessionID uint16, tags ...PPPoETag) *PPPoE {
	p := NewPPPoESession(sessionID)
	p.SetCode(code)
	p.SetTags(tags...)
	return p
}

func decodePPPoE(d *decoder, data view.View) (Packet, error) {
	if data.Len() < PPPoEHeaderLength {
		return nil, tooShort(LayerTypePPPoE, data.Offset(), data.Len(), PPPoEHeaderLength)
	}
	if vt := data.Uint8(pppoeVersionTypePos); vt != pppoeVersionType {
		return nil, invalid(LayerTypePPPoE, data.Offset(), ErrInvalidVersion, "version/type 0x%02x", vt)
	}
	p := &PPPoE{}
	p.header = data.Slice(0, PPPoEHeaderLength)
	n := int(p.Length())
	if avail := data.Len() - PPPoEHeaderLength; n > avail {
		n = avail
	}
	if err := d.decodePayload(&p.Base, p.header.Encapsulated(n), pppoeCodeDecoders[p.Code()]); err != nil {
		return nil, err
	}
	if d.strict && p.IsDiscovery() {
		if _, err := p.parseTags(true); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *PPPoE) LayerType() LayerType { return LayerTypePPPoE }

func (p *PPPoE) Version() uint8 { return p.header.Uint8(pppoeVersionTypePos) >> 4 }

func (p *PPPoE) Type() uint8 { return p.header.Uint8(pppoeVersionTypePos) & 0x0f }

func (p *PPPoE) Code() PPPoECode { return PPPoECode(p.header.Uint8(pppoeCodePos)) }

func (p *PPPoE) SetCode(c PPPoECode) { p.header.PutUint8(pppoeCodePos, uint8(c)) }

func (p *PPPoE) IsDiscovery() bool { return p.Code() != PPPoECodeSession }

func (p *PPPoE) SessionID() uint16 { return p.header.Uint16(pppoeSessionPos) }

func (p *PPPoE) SetSessionID(id uint16) { p.header.PutUint16(pppoeSessionPos, id) }

// Length is the payload length, header excluded.
func (p *PPPoE) Length() uint16 { return p.header.Uint16(pppoeLengthPos) }

func (p *PPPoE) SetLength(n uint16) { p.header.PutUint16(pppoeLengthPos, n) }

// SetPayload attaches pl and refreshes Length.
func (p *PPPoE) SetPayload(pl Payload) {
	p.Base.SetPayload(pl)
	p.UpdateLength()
}

func (p *PPPoE) UpdateLength() { p.SetLength(uint16(p.payload.Len())) }

func (p *PPPoE) updateCalculatedValues(Network) { p.UpdateLength() }

func (p *PPPoE) parseTags(strict bool) ([]PPPoETag, error) {
	if p.payload.Kind() != PayloadData {
		return nil, nil
	}
	views, err := splitOptions(p.payload.Data(), strict, LayerTypePPPoE, pppoeTagSize)
	tags := make([]PPPoETag, 0, len(views))
	for _, v := range views {
		tags = append(tags, PPPoETag{v})
	}
	return tags, err
}

// Tags parses the discovery tags of the payload. Session frames have none.
func (p *PPPoE) Tags() []PPPoETag {
	if !p.IsDiscovery() {
		return nil
	}
	tags, _ := p.parseTags(false)
	return tags
}

// Tag returns the first tag of type t.
func (p *PPPoE) Tag(t PPPoETagType) (PPPoETag, bool) {
	for _, tag := range p.Tags() {
		if tag.Type() == t {
			return tag, true
		}
	}
	return PPPoETag{}, false
}

// SetTags replaces the payload with the encoded tags.
func (p *PPPoE) SetTags(tags ...PPPoETag) {
	raw := make([][]byte, len(tags))
	for i, t := range tags {
		raw[i] = t.Bytes()
	}
	p.SetPayload(DataPayload(joinOptions(nil, raw, 0)))
}

func (p *PPPoE) Fields(verbose bool) []Field {
	f := []Field{
		{"Code", p.Code()},
		{"SessionID", p.SessionID()},
		{"Length", p.Length()},
	}
	if verbose {
		f = append(f, Field{"Version", p.Version()}, Field{"Type", p.Type()})
	}
	for _, t := range p.Tags() {
		f = append(f, Field{"Tag", t})
	}
	return f
}

func (p *PPPoE) String() string { return formatLayer(p, false) }
