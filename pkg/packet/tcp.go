package packet

import (
	"fmt"
	"strings"

	"firestige.xyz/pktkit/pkg/view"
)

const (
	tcpSrcPortPos      = 0
	tcpDstPortPos      = tcpSrcPortPos + 2
	tcpSeqPos          = tcpDstPortPos + 2
	tcpAckPos          = tcpSeqPos + 4
	tcpDataOffsetPos   = tcpAckPos + 4
	tcpFlagsPos        = tcpDataOffsetPos
	tcpWindowPos       = tcpFlagsPos + 2
	tcpChecksumPos     = tcpWindowPos + 2
	tcpUrgentPos       = tcpChecksumPos + 2
	TCPMinHeaderLength = tcpUrgentPos + 2
	TCPMaxHeaderLength = 60

	tcpFlagsMask = 0x01ff
)

// TCPFlags are the nine control bits, NS in the highest position.
type TCPFlags uint16

const (
	TCPFlagFIN TCPFlags = 1 << iota
	TCPFlagSYN
	TCPFlagRST
	TCPFlagPSH
	TCPFlagACK
	TCPFlagURG
	TCPFlagECE
	TCPFlagCWR
	TCPFlagNS
)

var tcpFlagNames = [...]string{"FIN", "SYN", "RST", "PSH", "ACK", "URG", "ECE", "CWR", "NS"}

func (f TCPFlags) String() string {
	var names []string
	for i, n := range tcpFlagNames {
		if f&(1<<i) != 0 {
			names = append(names, n)
		}
	}
	if len(names) == 0 {
		return "0"
	}
	return strings.Join(names, "|")
}

// TCPOptionKind is the kind byte of a TCP option.
type TCPOptionKind uint8

const (
	TCPOptionKindEndList       TCPOptionKind = 0
	TCPOptionKindNop           TCPOptionKind = 1
	TCPOptionKindMSS           TCPOptionKind = 2
	TCPOptionKindWindowScale   TCPOptionKind = 3
	TCPOptionKindSACKPermitted TCPOptionKind = 4
	TCPOptionKindSACK          TCPOptionKind = 5
	TCPOptionKindTimestamps    TCPOptionKind = 8
)

var tcpOptionKindNames = map[TCPOptionKind]string{
	TCPOptionKindEndList:       "EndList",
	TCPOptionKindNop:           "NOP",
	TCPOptionKindMSS:           "MSS",
	TCPOptionKindWindowScale:   "WindowScale",
	TCPOptionKindSACKPermitted: "SACKPermitted",
	TCPOptionKindSACK:          "SACK",
	TCPOptionKindTimestamps:    "Timestamps",
}

func (k TCPOptionKind) String() string {
	if s, ok := tcpOptionKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("TCPOptionKind(%d)", uint8(k))
}

// TCPOption is one option of a TCP header, aliasing the header.
type TCPOption struct {
	v view.View
}

// NewTCPOption builds a kind/length/data option. EndList and NOP are one byte.
func NewTCPOption(kind TCPOptionKind, data []byte) TCPOption {
	if kind == TCPOptionKindEndList || kind == TCPOptionKindNop {
		v := view.Alloc(1)
		v.PutUint8(0, uint8(kind))
		return TCPOption{v}
	}
	v := view.Alloc(2 + len(data))
	v.PutUint8(0, uint8(kind))
	v.PutUint8(1, uint8(2+len(data)))
	v.PutBytes(2, data)
	return TCPOption{v}
}

func TCPOptionMSS(mss uint16) TCPOption {
	return NewTCPOption(TCPOptionKindMSS, []byte{byte(mss >> 8), byte(mss)})
}

func TCPOptionWindowScale(shift uint8) TCPOption {
	return NewTCPOption(TCPOptionKindWindowScale, []byte{shift})
}

func TCPOptionTimestamps(value, echo uint32) TCPOption {
	o := NewTCPOption(TCPOptionKindTimestamps, make([]byte, 8))
	o.v.PutUint32(2, value)
	o.v.PutUint32(6, echo)
	return o
}

func (o TCPOption) Kind() TCPOptionKind { return TCPOptionKind(o.v.Uint8(0)) }

// Len is the encoded length including kind and length bytes.
func (o TCPOption) Len() int { return o.v.Len() }

func (o TCPOption) Bytes() []byte { return o.v.Bytes() }

func (o TCPOption) Data() []byte {
	if o.v.Len() <= 2 {
		return nil
	}
	return o.v.Field(2, o.v.Len()-2)
}

func (o TCPOption) String() string {
	d := o.Data()
	switch {
	case o.Kind() == TCPOptionKindMSS && len(d) == 2:
		return fmt.Sprintf("MSS(%d)", uint16(d[0])<<8|uint16(d[1]))
	case o.Kind() == TCPOptionKindWindowScale && len(d) == 1:
		return fmt.Sprintf("WindowScale(%d)", d[0])
	case len(d) == 0:
		return o.Kind().String()
	}
	return fmt.Sprintf("%s(%x)", o.Kind(), d)
}

func tcpOptionSize(rest view.View) (int, bool) {
	switch TCPOptionKind(rest.Uint8(0)) {
	case TCPOptionKindEndList:
		return 1, false
	case TCPOptionKindNop:
		return 1, true
	}
	if rest.Len() < 2 {
		return 2, true
	}
	return int(rest.Uint8(1)), true
}

// TCP is a TCP header including options.
type TCP struct {
	Base
}

func NewTCP(srcPort, dstPort uint16, seq, ack uint32, flags TCPFlags, window uint16) *TCP {
	t := &TCP{}
	t.newHeader(TCPMinHeaderLength)
	t.header.PutUint8(tcpDataOffsetPos, TCPMinHeaderLength/4<<4)
	t.SetSourcePort(srcPort)
	t.SetDestinationPort(dstPort)
	t.SetSequence(seq)
	t.SetAcknowledgment(ack)
	t.SetFlags(flags)
	t.SetWindow(window)
	return t
}

func decodeTCP(d *decoder, data view.View) (Packet, error) {
	if data.Len() < TCPMinHeaderLength {
		return nil, tooShort(LayerTypeTCP, data.Offset(), data.Len(), TCPMinHeaderLength)
	}
	hl := int(data.Uint8(tcpDataOffsetPos)>>4) * 4
	if hl < TCPMinHeaderLength {
		return nil, invalid(LayerTypeTCP, data.Offset(), ErrInvalidLength, "data offset %d", hl)
	}
	if data.Len() < hl {
		return nil, tooShort(LayerTypeTCP, data.Offset(), data.Len(), hl)
	}
	t := &TCP{}
	t.header = data.Slice(0, hl)
	if d.strict {
		if _, err := t.parseOptions(true); err != nil {
			return nil, err
		}
	}
	var next decodeFunc
	if d.drda {
		next = decodeDRDA
	}
	if err := d.decodePayload(&t.Base, t.header.Encapsulated(-1), next); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *TCP) LayerType() LayerType { return LayerTypeTCP }

func (t *TCP) SourcePort() uint16 { return t.header.Uint16(tcpSrcPortPos) }

func (t *TCP) SetSourcePort(p uint16) { t.header.PutUint16(tcpSrcPortPos, p) }

func (t *TCP) DestinationPort() uint16 { return t.header.Uint16(tcpDstPortPos) }

func (t *TCP) SetDestinationPort(p uint16) { t.header.PutUint16(tcpDstPortPos, p) }

func (t *TCP) Sequence() uint32 { return t.header.Uint32(tcpSeqPos) }

func (t *TCP) SetSequence(s uint32) { t.header.PutUint32(tcpSeqPos, s) }

func (t *TCP) Acknowledgment() uint32 { return t.header.Uint32(tcpAckPos) }

func (t *TCP) SetAcknowledgment(a uint32) { t.header.PutUint32(tcpAckPos, a) }

// DataOffset is the header length in 32-bit words.
func (t *TCP) DataOffset() uint8 { return t.header.Uint8(tcpDataOffsetPos) >> 4 }

func (t *TCP) Flags() TCPFlags { return TCPFlags(t.header.Uint16(tcpFlagsPos) & tcpFlagsMask) }

func (t *TCP) SetFlags(f TCPFlags) {
	v := t.header.Uint16(tcpFlagsPos)&^tcpFlagsMask | uint16(f)&tcpFlagsMask
	t.header.PutUint16(tcpFlagsPos, v)
}

// HasFlags reports whether every bit of f is set.
func (t *TCP) HasFlags(f TCPFlags) bool { return t.Flags()&f == f }

func (t *TCP) Window() uint16 { return t.header.Uint16(tcpWindowPos) }

func (t *TCP) SetWindow(w uint16) { t.header.PutUint16(tcpWindowPos, w) }

func (t *TCP) Checksum() uint16 { return t.header.Uint16(tcpChecksumPos) }

func (t *TCP) SetChecksum(c uint16) { t.header.PutUint16(tcpChecksumPos, c) }

func (t *TCP) UrgentPointer() uint16 { return t.header.Uint16(tcpUrgentPos) }

func (t *TCP) SetUrgentPointer(p uint16) { t.header.PutUint16(tcpUrgentPos, p) }

func (t *TCP) parseOptions(strict bool) ([]TCPOption, error) {
	region := t.header.Slice(TCPMinHeaderLength, t.header.Len()-TCPMinHeaderLength)
	views, err := splitOptions(region, strict, LayerTypeTCP, tcpOptionSize)
	opts := make([]TCPOption, 0, len(views))
	for _, v := range views {
		opts = append(opts, TCPOption{v})
	}
	return opts, err
}

// Options parses the option list, stopping after EndList.
func (t *TCP) Options() []TCPOption {
	opts, _ := t.parseOptions(false)
	return opts
}

// SetOptions replaces the options, zero padding to a 32-bit boundary. The
// header moves to a new buffer.
func (t *TCP) SetOptions(opts ...TCPOption) error {
	raw := make([][]byte, len(opts))
	n := 0
	for i, o := range opts {
		raw[i] = o.Bytes()
		n += len(raw[i])
	}
	if TCPMinHeaderLength+n > TCPMaxHeaderLength {
		return fmt.Errorf("pktkit: %d option bytes exceed the TCP header", n)
	}
	hdr := joinOptions(t.header.Field(0, TCPMinHeaderLength), raw, 4)
	flags := t.Flags()
	hdr.PutUint8(tcpDataOffsetPos, uint8(hdr.Len()/4)<<4)
	t.header = hdr
	t.SetFlags(flags)
	return nil
}

// ComputeChecksum covers the pseudo-header of network and the whole segment.
func (t *TCP) ComputeChecksum(network Network) (uint16, error) {
	if network == nil {
		return 0, ErrNoNetworkLayer
	}
	return layerChecksum(network.PseudoHeader(IPProtocolTCP, t.Len()), t, tcpChecksumPos), nil
}

func (t *TCP) ValidChecksum(network Network) bool {
	if network == nil {
		return false
	}
	return layerChecksumValid(network.PseudoHeader(IPProtocolTCP, t.Len()), t)
}

func (t *TCP) UpdateChecksum(network Network) error {
	c, err := t.ComputeChecksum(network)
	if err != nil {
		return err
	}
	t.SetChecksum(c)
	return nil
}

func (t *TCP) updateCalculatedValues(network Network) { _ = t.UpdateChecksum(network) }

func (t *TCP) checksumValid(network Network) (valid, applicable bool) {
	if network == nil {
		return false, false
	}
	return t.ValidChecksum(network), true
}

func (t *TCP) Fields(verbose bool) []Field {
	f := []Field{
		{"SourcePort", t.SourcePort()},
		{"DestinationPort", t.DestinationPort()},
		{"Flags", t.Flags()},
		{"Sequence", t.Sequence()},
	}
	if verbose {
		f = append(f,
			Field{"Acknowledgment", t.Acknowledgment()},
			Field{"DataOffset", t.DataOffset()},
			Field{"Window", t.Window()},
			Field{"Checksum", fmt.Sprintf("0x%04x", t.Checksum())},
			Field{"UrgentPointer", t.UrgentPointer()},
		)
		for _, o := range t.Options() {
			f = append(f, Field{"Option", o})
		}
	}
	return f
}

func (t *TCP) String() string { return formatLayer(t, false) }
