package packet

import (
	"bytes"
	"fmt"
	"net"

	"firestige.xyz/pktkit/pkg/view"
)

const (
	wolSyncLength    = 6
	wolRepeats       = 16
	wolTargetPos     = wolSyncLength
	WakeOnLanLength  = wolTargetPos + wolRepeats*macLength
	wolPasswordShort = 4
	wolPasswordLong  = 6
)

var wolSync = bytes.Repeat([]byte{0xff}, wolSyncLength)

// WakeOnLan is a magic packet: six 0xff bytes, the target MAC sixteen times and
// an optional 4 or 6 byte SecureOn password.
type WakeOnLan struct {
	Base
}

// NewWakeOnLan builds a magic packet for target. password must be empty, 4 or 6 bytes.
func NewWakeOnLan(target net.HardwareAddr, password []byte) (*WakeOnLan, error) {
	if len(target) != macLength {
		return nil, fmt.Errorf("pktkit: Wake-on-LAN target %s is not a MAC-48 address", target)
	}
	switch len(password) {
	case 0, wolPasswordShort, wolPasswordLong:
	default:
		return nil, fmt.Errorf("pktkit: Wake-on-LAN password of %d bytes", len(password))
	}
	w := &WakeOnLan{}
	w.newHeader(WakeOnLanLength + len(password))
	w.header.PutBytes(0, wolSync)
	w.SetTarget(target)
	w.header.PutBytes(WakeOnLanLength, password)
	return w, nil
}

// decodeWakeOnLan accepts data that starts with the sync stream followed by
// sixteen copies of one address. Anything else is rejected as a mismatch.
func decodeWakeOnLan(_ *decoder, data view.View) (Packet, error) {
	if data.Len() < WakeOnLanLength {
		return nil, mismatch(LayerTypeWakeOnLan, data.Offset(), ErrPacketTooShort, "have %d bytes, need %d", data.Len(), WakeOnLanLength)
	}
	w := &WakeOnLan{}
	n := WakeOnLanLength
	switch rest := data.Len() - WakeOnLanLength; {
	case rest >= wolPasswordLong:
		n += wolPasswordLong
	case rest >= wolPasswordShort:
		n += wolPasswordShort
	}
	w.header = data.Slice(0, n)
	if !w.IsValid() {
		return nil, mismatch(LayerTypeWakeOnLan, data.Offset(), ErrInvalidLength, "no magic sync stream")
	}
	return w, nil
}

func (w *WakeOnLan) LayerType() LayerType { return LayerTypeWakeOnLan }

// IsValid reports whether the sync stream and all sixteen address copies are intact.
func (w *WakeOnLan) IsValid() bool {
	if w.header.Len() < WakeOnLanLength || !bytes.Equal(w.header.Field(0, wolSyncLength), wolSync) {
		return false
	}
	first := w.header.Field(wolTargetPos, macLength)
	for i := 1; i < wolRepeats; i++ {
		if !bytes.Equal(w.header.Field(wolTargetPos+i*macLength, macLength), first) {
			return false
		}
	}
	return true
}

func (w *WakeOnLan) Target() net.HardwareAddr {
	return net.HardwareAddr(w.header.CopyField(wolTargetPos, macLength))
}

// SetTarget writes all sixteen copies of addr.
func (w *WakeOnLan) SetTarget(addr net.HardwareAddr) {
	for i := 0; i < wolRepeats; i++ {
		w.header.PutBytes(wolTargetPos+i*macLength, addr[:macLength])
	}
}

// Password returns the SecureOn password, or nil.
func (w *WakeOnLan) Password() []byte {
	if w.header.Len() <= WakeOnLanLength {
		return nil
	}
	return w.header.Field(WakeOnLanLength, w.header.Len()-WakeOnLanLength)
}

func (w *WakeOnLan) Fields(bool) []Field {
	f := []Field{{"Target", w.Target()}}
	if pw := w.Password(); pw != nil {
		f = append(f, Field{"Password", fmt.Sprintf("%x", pw)})
	}
	return f
}

func (w *WakeOnLan) String() string { return formatLayer(w, false) }
