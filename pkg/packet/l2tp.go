package packet

import (
	"firestige.xyz/pktkit/pkg/view"
)

const (
	l2tpFlagsVersionPos = 0
	L2TPMinHeaderLength = 6

	l2tpType          = 0x8000
	l2tpLengthPresent = 0x4000
	l2tpSeqPresent    = 0x0800
	l2tpOffsetPresent = 0x0200
	l2tpPriority      = 0x0100
	l2tpVersionMask   = 0x000f

	l2tpVersion = 2
)

type l2tpLayout struct {
	length, tunnel, session, ns, nr, offsetSize, fixed int
}

func layoutL2TP(flags uint16) l2tpLayout {
	l := l2tpLayout{length: -1, ns: -1, nr: -1, offsetSize: -1}
	off := 2
	if flags&l2tpLengthPresent != 0 {
		l.length = off
		off += 2
	}
	l.tunnel = off
	l.session = off + 2
	off += 4
	if flags&l2tpSeqPresent != 0 {
		l.ns = off
		l.nr = off + 2
		off += 4
	}
	if flags&l2tpOffsetPresent != 0 {
		l.offsetSize = off
		off += 2
	}
	l.fixed = off
	return l
}

// L2TP is an L2TPv2 header (RFC 2661). Data messages carry PPP; control
// message bodies stay opaque.
type L2TP struct {
	Base
}

// NewL2TP builds a data message header. With length set the header carries a
// Length field kept in step with the payload.
func NewL2TP(tunnelID, sessionID uint16, length bool) *L2TP {
	flags := uint16(l2tpVersion)
	if length {
		flags |= l2tpLengthPresent
	}
	l := layoutL2TP(flags)
	t := &L2TP{}
	t.newHeader(l.fixed)
	t.header.PutUint16(l2tpFlagsVersionPos, flags)
	t.header.PutUint16(l.tunnel, tunnelID)
	t.header.PutUint16(l.session, sessionID)
	t.UpdateLength()
	return t
}

// decodeL2TP is reached through UDP port sniffing, so malformed input is a
// mismatch rather than a failure.
func decodeL2TP(d *decoder, data view.View) (Packet, error) {
	if data.Len() < L2TPMinHeaderLength {
		return nil, mismatch(LayerTypeL2TP, data.Offset(), ErrPacketTooShort, "have %d bytes, need %d", data.Len(), L2TPMinHeaderLength)
	}
	flags := data.Uint16(l2tpFlagsVersionPos)
	if v := flags & l2tpVersionMask; v != l2tpVersion {
		return nil, mismatch(LayerTypeL2TP, data.Offset(), ErrInvalidVersion, "version %d", v)
	}
	l := layoutL2TP(flags)
	if data.Len() < l.fixed {
		return nil, mismatch(LayerTypeL2TP, data.Offset(), ErrPacketTooShort, "have %d bytes, need %d", data.Len(), l.fixed)
	}
	hl := l.fixed
	if l.offsetSize >= 0 {
		hl += int(data.Uint16(l.offsetSize))
		if data.Len() < hl {
			return nil, mismatch(LayerTypeL2TP, data.Offset(), ErrPacketTooShort, "have %d bytes, need %d", data.Len(), hl)
		}
	}

	t := &L2TP{}
	t.header = data.Slice(0, hl)
	n := -1
	if l.length >= 0 {
		if total := int(t.header.Uint16(l.length)); total >= hl && total <= data.Len() {
			n = total - hl
		}
	}
	var next decodeFunc
	if !t.IsControl() {
		next = decodePPP
	}
	if err := d.decodePayload(&t.Base, t.header.Encapsulated(n), next); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *L2TP) LayerType() LayerType { return LayerTypeL2TP }

func (t *L2TP) flags() uint16 { return t.header.Uint16(l2tpFlagsVersionPos) }

func (t *L2TP) layout() l2tpLayout { return layoutL2TP(t.flags()) }

// IsControl reports the T bit: control message rather than data.
func (t *L2TP) IsControl() bool { return t.flags()&l2tpType != 0 }

func (t *L2TP) LengthPresent() bool   { return t.flags()&l2tpLengthPresent != 0 }
func (t *L2TP) SequencePresent() bool { return t.flags()&l2tpSeqPresent != 0 }
func (t *L2TP) OffsetPresent() bool   { return t.flags()&l2tpOffsetPresent != 0 }
func (t *L2TP) Priority() bool        { return t.flags()&l2tpPriority != 0 }
func (t *L2TP) Version() uint8        { return uint8(t.flags() & l2tpVersionMask) }

// Length returns the Length field, or 0 when absent.
func (t *L2TP) Length() uint16 {
	if l := t.layout(); l.length >= 0 {
		return t.header.Uint16(l.length)
	}
	return 0
}

func (t *L2TP) TunnelID() uint16 { return t.header.Uint16(t.layout().tunnel) }

func (t *L2TP) SetTunnelID(id uint16) { t.header.PutUint16(t.layout().tunnel, id) }

func (t *L2TP) SessionID() uint16 { return t.header.Uint16(t.layout().session) }

func (t *L2TP) SetSessionID(id uint16) { t.header.PutUint16(t.layout().session, id) }

// Ns returns the send sequence number, or 0 when absent.
func (t *L2TP) Ns() uint16 {
	if l := t.layout(); l.ns >= 0 {
		return t.header.Uint16(l.ns)
	}
	return 0
}

// Nr returns the expected receive sequence number, or 0 when absent.
func (t *L2TP) Nr() uint16 {
	if l := t.layout(); l.nr >= 0 {
		return t.header.Uint16(l.nr)
	}
	return 0
}

// OffsetSize is the number of padding bytes before the payload.
func (t *L2TP) OffsetSize() uint16 {
	if l := t.layout(); l.offsetSize >= 0 {
		return t.header.Uint16(l.offsetSize)
	}
	return 0
}

// SetPayload attaches p and refreshes Length when present.
func (t *L2TP) SetPayload(p Payload) {
	t.Base.SetPayload(p)
	t.UpdateLength()
}

// UpdateLength sets the Length field, when present, to the message length.
func (t *L2TP) UpdateLength() {
	if l := t.layout(); l.length >= 0 {
		t.header.PutUint16(l.length, uint16(t.Len()))
	}
}

func (t *L2TP) updateCalculatedValues(Network) { t.UpdateLength() }

func (t *L2TP) Fields(verbose bool) []Field {
	f := []Field{
		{"Control", t.IsControl()},
		{"TunnelID", t.TunnelID()},
		{"SessionID", t.SessionID()},
	}
	if t.LengthPresent() {
		f = append(f, Field{"Length", t.Length()})
	}
	if verbose {
		f = append(f, Field{"Version", t.Version()})
		if t.SequencePresent() {
			f = append(f, Field{"Ns", t.Ns()}, Field{"Nr", t.Nr()})
		}
		if t.OffsetPresent() {
			f = append(f, Field{"OffsetSize", t.OffsetSize()})
		}
		f = append(f, Field{"Priority", t.Priority()})
	}
	return f
}

func (t *L2TP) String() string { return formatLayer(t, false) }
