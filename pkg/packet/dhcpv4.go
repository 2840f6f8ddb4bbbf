package packet

import (
	"bytes"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"time"

	"firestige.xyz/pktkit/pkg/view"
)

const (
	dhcpOpPos           = 0
	dhcpHTypePos        = dhcpOpPos + 1
	dhcpHLenPos         = dhcpHTypePos + 1
	dhcpHopsPos         = dhcpHLenPos + 1
	dhcpXIDPos          = dhcpHopsPos + 1
	dhcpSecsPos         = dhcpXIDPos + 4
	dhcpFlagsPos        = dhcpSecsPos + 2
	dhcpCIAddrPos       = dhcpFlagsPos + 2
	dhcpYIAddrPos       = dhcpCIAddrPos + 4
	dhcpSIAddrPos       = dhcpYIAddrPos + 4
	dhcpGIAddrPos       = dhcpSIAddrPos + 4
	dhcpCHAddrPos       = dhcpGIAddrPos + 4
	dhcpSNamePos        = dhcpCHAddrPos + 16
	dhcpFilePos         = dhcpSNamePos + 64
	dhcpMagicPos        = dhcpFilePos + 128
	DHCPv4HeaderLength  = dhcpMagicPos + 4
	dhcpCHAddrLength    = dhcpSNamePos - dhcpCHAddrPos
	dhcpSNameLength     = dhcpFilePos - dhcpSNamePos
	dhcpFileLength      = dhcpMagicPos - dhcpFilePos
	dhcpMagicCookie     = 0x63825363
	dhcpBroadcastFlag   = 0x8000
	dhcpHTypeEthernet   = 1
	DHCPv4ServerPort    = 67
	DHCPv4ClientPort    = 68
	dhcpOptionHeaderLen = 2
)

// DHCPv4Operation is the op field.
type DHCPv4Operation uint8

const (
	DHCPv4Request DHCPv4Operation = 1
	DHCPv4Reply   DHCPv4Operation = 2
)

func (o DHCPv4Operation) String() string {
	switch o {
	case DHCPv4Request:
		return "Request"
	case DHCPv4Reply:
		return "Reply"
	}
	return fmt.Sprintf("DHCPv4Operation(%d)", uint8(o))
}

// DHCPv4MessageType is the value of option 53.
type DHCPv4MessageType uint8

const (
	DHCPv4MsgDiscover DHCPv4MessageType = iota + 1
	DHCPv4MsgOffer
	DHCPv4MsgRequest
	DHCPv4MsgDecline
	DHCPv4MsgAck
	DHCPv4MsgNak
	DHCPv4MsgRelease
	DHCPv4MsgInform
)

var dhcpMessageTypeNames = map[DHCPv4MessageType]string{
	DHCPv4MsgDiscover: "Discover",
	DHCPv4MsgOffer:    "Offer",
	DHCPv4MsgRequest:  "Request",
	DHCPv4MsgDecline:  "Decline",
	DHCPv4MsgAck:      "Ack",
	DHCPv4MsgNak:      "Nak",
	DHCPv4MsgRelease:  "Release",
	DHCPv4MsgInform:   "Inform",
}

func (t DHCPv4MessageType) String() string {
	if s, ok := dhcpMessageTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("DHCPv4MessageType(%d)", uint8(t))
}

// DHCPv4OptionCode is the code byte of a DHCP option (RFC 2132).
type DHCPv4OptionCode uint8

const (
	DHCPv4OptPad                DHCPv4OptionCode = 0
	DHCPv4OptSubnetMask         DHCPv4OptionCode = 1
	DHCPv4OptRouter             DHCPv4OptionCode = 3
	DHCPv4OptDNS                DHCPv4OptionCode = 6
	DHCPv4OptHostName           DHCPv4OptionCode = 12
	DHCPv4OptDomainName         DHCPv4OptionCode = 15
	DHCPv4OptBroadcastAddress   DHCPv4OptionCode = 28
	DHCPv4OptNTPServers         DHCPv4OptionCode = 42
	DHCPv4OptRequestedIP        DHCPv4OptionCode = 50
	DHCPv4OptLeaseTime          DHCPv4OptionCode = 51
	DHCPv4OptMessageType        DHCPv4OptionCode = 53
	DHCPv4OptServerID           DHCPv4OptionCode = 54
	DHCPv4OptParameterRequest   DHCPv4OptionCode = 55
	DHCPv4OptMessage            DHCPv4OptionCode = 56
	DHCPv4OptMaxMessageSize     DHCPv4OptionCode = 57
	DHCPv4OptRenewalTime        DHCPv4OptionCode = 58
	DHCPv4OptRebindingTime      DHCPv4OptionCode = 59
	DHCPv4OptClassID            DHCPv4OptionCode = 60
	DHCPv4OptClientID           DHCPv4OptionCode = 61
	DHCPv4OptRelayAgentInfo     DHCPv4OptionCode = 82
	DHCPv4OptDomainSearch       DHCPv4OptionCode = 119
	DHCPv4OptClasslessStaticRte DHCPv4OptionCode = 121
	DHCPv4OptEnd                DHCPv4OptionCode = 255
)

var dhcpOptionNames = map[DHCPv4OptionCode]string{
	DHCPv4OptPad:                "Pad",
	DHCPv4OptSubnetMask:         "SubnetMask",
	DHCPv4OptRouter:             "Router",
	DHCPv4OptDNS:                "DNS",
	DHCPv4OptHostName:           "HostName",
	DHCPv4OptDomainName:         "DomainName",
	DHCPv4OptBroadcastAddress:   "BroadcastAddress",
	DHCPv4OptNTPServers:         "NTPServers",
	DHCPv4OptRequestedIP:        "RequestedIP",
	DHCPv4OptLeaseTime:          "LeaseTime",
	DHCPv4OptMessageType:        "MessageType",
	DHCPv4OptServerID:           "ServerID",
	DHCPv4OptParameterRequest:   "ParameterRequest",
	DHCPv4OptMessage:            "Message",
	DHCPv4OptMaxMessageSize:     "MaxMessageSize",
	DHCPv4OptRenewalTime:        "RenewalTime",
	DHCPv4OptRebindingTime:      "RebindingTime",
	DHCPv4OptClassID:            "ClassID",
	DHCPv4OptClientID:           "ClientID",
	DHCPv4OptRelayAgentInfo:     "RelayAgentInfo",
	DHCPv4OptDomainSearch:       "DomainSearch",
	DHCPv4OptClasslessStaticRte: "ClasslessStaticRoute",
	DHCPv4OptEnd:                "End",
}

func (c DHCPv4OptionCode) String() string {
	if s, ok := dhcpOptionNames[c]; ok {
		return s
	}
	return fmt.Sprintf("DHCPv4Option(%d)", uint8(c))
}

// DHCPv4Option is one option of a DHCPv4 message, aliasing the message.
type DHCPv4Option interface {
	Code() DHCPv4OptionCode
	// Len is the encoded length, code and length bytes included.
	Len() int
	// Data is the option value; Pad and End have none.
	Data() []byte
	Bytes() []byte
	String() string
}

type dhcpOption struct {
	v view.View
}

func newDHCPOptionView(code DHCPv4OptionCode, data []byte) view.View {
	if code == DHCPv4OptPad || code == DHCPv4OptEnd {
		v := view.Alloc(1)
		v.PutUint8(0, uint8(code))
		return v
	}
	v := view.Alloc(dhcpOptionHeaderLen + len(data))
	v.PutUint8(0, uint8(code))
	v.PutUint8(1, uint8(len(data)))
	v.PutBytes(dhcpOptionHeaderLen, data)
	return v
}

func (o dhcpOption) Code() DHCPv4OptionCode { return DHCPv4OptionCode(o.v.Uint8(0)) }
func (o dhcpOption) Len() int               { return o.v.Len() }
func (o dhcpOption) Bytes() []byte          { return o.v.Bytes() }

func (o dhcpOption) Data() []byte {
	if o.v.Len() <= dhcpOptionHeaderLen {
		return nil
	}
	return o.v.Field(dhcpOptionHeaderLen, o.v.Len()-dhcpOptionHeaderLen)
}

// DHCPv4UnsupportedOption carries an option without a typed decoder.
type DHCPv4UnsupportedOption struct{ dhcpOption }

// NewDHCPv4Option builds an option of any code from its raw value.
func NewDHCPv4Option(code DHCPv4OptionCode, data []byte) DHCPv4UnsupportedOption {
	return DHCPv4UnsupportedOption{dhcpOption{newDHCPOptionView(code, data)}}
}

func (o DHCPv4UnsupportedOption) String() string {
	if o.Len() == 1 {
		return o.Code().String()
	}
	return fmt.Sprintf("%s(%x)", o.Code(), o.Data())
}

// DHCPv4MessageTypeOption is option 53.
type DHCPv4MessageTypeOption struct{ dhcpOption }

func NewDHCPv4MessageTypeOption(t DHCPv4MessageType) DHCPv4MessageTypeOption {
	return DHCPv4MessageTypeOption{dhcpOption{newDHCPOptionView(DHCPv4OptMessageType, []byte{byte(t)})}}
}

func (o DHCPv4MessageTypeOption) MessageType() DHCPv4MessageType {
	return DHCPv4MessageType(o.v.Uint8(dhcpOptionHeaderLen))
}

func (o DHCPv4MessageTypeOption) String() string {
	return fmt.Sprintf("%s(%s)", o.Code(), o.MessageType())
}

// DHCPv4AddressOption holds one or more IPv4 addresses.
type DHCPv4AddressOption struct{ dhcpOption }

func NewDHCPv4AddressOption(code DHCPv4OptionCode, addrs ...netip.Addr) DHCPv4AddressOption {
	data := make([]byte, 0, 4*len(addrs))
	for _, a := range addrs {
		b := a.As4()
		data = append(data, b[:]...)
	}
	return DHCPv4AddressOption{dhcpOption{newDHCPOptionView(code, data)}}
}

// Addresses ignores a trailing partial address.
func (o DHCPv4AddressOption) Addresses() []netip.Addr {
	data := o.Data()
	out := make([]netip.Addr, 0, len(data)/4)
	for i := 0; i+4 <= len(data); i += 4 {
		out = append(out, netip.AddrFrom4([4]byte(data[i:i+4])))
	}
	return out
}

func (o DHCPv4AddressOption) String() string {
	addrs := o.Addresses()
	s := make([]string, len(addrs))
	for i, a := range addrs {
		s[i] = a.String()
	}
	return fmt.Sprintf("%s(%s)", o.Code(), strings.Join(s, ","))
}

// DHCPv4DurationOption holds a time value in seconds.
type DHCPv4DurationOption struct{ dhcpOption }

func NewDHCPv4DurationOption(code DHCPv4OptionCode, d time.Duration) DHCPv4DurationOption {
	s := uint32(d / time.Second)
	return DHCPv4DurationOption{dhcpOption{newDHCPOptionView(code, []byte{byte(s >> 24), byte(s >> 16), byte(s >> 8), byte(s)})}}
}

func (o DHCPv4DurationOption) Duration() time.Duration {
	return time.Duration(o.v.Uint32(dhcpOptionHeaderLen)) * time.Second
}

func (o DHCPv4DurationOption) String() string {
	return fmt.Sprintf("%s(%s)", o.Code(), o.Duration())
}

// DHCPv4TextOption holds an NVT ASCII string.
type DHCPv4TextOption struct{ dhcpOption }

func NewDHCPv4TextOption(code DHCPv4OptionCode, s string) DHCPv4TextOption {
	return DHCPv4TextOption{dhcpOption{newDHCPOptionView(code, []byte(s))}}
}

func (o DHCPv4TextOption) Text() string { return string(bytes.TrimRight(o.Data(), "\x00")) }

func (o DHCPv4TextOption) String() string { return fmt.Sprintf("%s(%q)", o.Code(), o.Text()) }

// DHCPv4ParameterRequestOption is option 55.
type DHCPv4ParameterRequestOption struct{ dhcpOption }

func NewDHCPv4ParameterRequestOption(codes ...DHCPv4OptionCode) DHCPv4ParameterRequestOption {
	data := make([]byte, len(codes))
	for i, c := range codes {
		data[i] = byte(c)
	}
	return DHCPv4ParameterRequestOption{dhcpOption{newDHCPOptionView(DHCPv4OptParameterRequest, data)}}
}

func (o DHCPv4ParameterRequestOption) Parameters() []DHCPv4OptionCode {
	data := o.Data()
	out := make([]DHCPv4OptionCode, len(data))
	for i, b := range data {
		out[i] = DHCPv4OptionCode(b)
	}
	return out
}

func (o DHCPv4ParameterRequestOption) String() string {
	params := o.Parameters()
	s := make([]string, len(params))
	for i, p := range params {
		s[i] = p.String()
	}
	return fmt.Sprintf("%s(%s)", o.Code(), strings.Join(s, ","))
}

// dhcpOptionDecoders maps option codes to typed options. min is the smallest
// encoded length the typed accessors can read.
var dhcpOptionDecoders = map[DHCPv4OptionCode]struct {
	min int
	fn  func(view.View) DHCPv4Option
}{
	DHCPv4OptMessageType:      {3, func(v view.View) DHCPv4Option { return DHCPv4MessageTypeOption{dhcpOption{v}} }},
	DHCPv4OptSubnetMask:       {2, dhcpAddressOption},
	DHCPv4OptRouter:           {2, dhcpAddressOption},
	DHCPv4OptDNS:              {2, dhcpAddressOption},
	DHCPv4OptBroadcastAddress: {2, dhcpAddressOption},
	DHCPv4OptNTPServers:       {2, dhcpAddressOption},
	DHCPv4OptRequestedIP:      {2, dhcpAddressOption},
	DHCPv4OptServerID:         {2, dhcpAddressOption},
	DHCPv4OptLeaseTime:        {6, dhcpDurationOption},
	DHCPv4OptRenewalTime:      {6, dhcpDurationOption},
	DHCPv4OptRebindingTime:    {6, dhcpDurationOption},
	DHCPv4OptHostName:         {2, dhcpTextOption},
	DHCPv4OptDomainName:       {2, dhcpTextOption},
	DHCPv4OptMessage:          {2, dhcpTextOption},
	DHCPv4OptClassID:          {2, dhcpTextOption},
	DHCPv4OptParameterRequest: {2, func(v view.View) DHCPv4Option { return DHCPv4ParameterRequestOption{dhcpOption{v}} }},
}

func dhcpAddressOption(v view.View) DHCPv4Option  { return DHCPv4AddressOption{dhcpOption{v}} }
func dhcpDurationOption(v view.View) DHCPv4Option { return DHCPv4DurationOption{dhcpOption{v}} }
func dhcpTextOption(v view.View) DHCPv4Option     { return DHCPv4TextOption{dhcpOption{v}} }

func newDHCPv4Option(v view.View) DHCPv4Option {
	if dec, ok := dhcpOptionDecoders[DHCPv4OptionCode(v.Uint8(0))]; ok && v.Len() >= dec.min {
		return dec.fn(v)
	}
	return DHCPv4UnsupportedOption{dhcpOption{v}}
}

func dhcpOptionSize(rest view.View) (int, bool) {
	switch DHCPv4OptionCode(rest.Uint8(0)) {
	case DHCPv4OptPad:
		return 1, true
	case DHCPv4OptEnd:
		return 1, false
	}
	if rest.Len() < dhcpOptionHeaderLen {
		return dhcpOptionHeaderLen, true
	}
	return dhcpOptionHeaderLen + int(rest.Uint8(1)), true
}

// DHCPv4 is a BOOTP/DHCP message (RFC 2131). The header holds the fixed fields
// and the options through End; bytes after End are kept as the trailer.
type DHCPv4 struct {
	Base
}

// NewDHCPv4 builds a message for an Ethernet client. An End option is appended
// to opts when missing.
func NewDHCPv4(op DHCPv4Operation, xid uint32, clientMAC net.HardwareAddr, opts ...DHCPv4Option) *DHCPv4 {
	m := &DHCPv4{}
	m.newHeader(DHCPv4HeaderLength)
	m.header.PutUint8(dhcpOpPos, uint8(op))
	m.header.PutUint8(dhcpHTypePos, dhcpHTypeEthernet)
	m.header.PutUint8(dhcpHLenPos, uint8(len(clientMAC)))
	m.header.PutUint32(dhcpXIDPos, xid)
	m.header.PutBytes(dhcpCHAddrPos, clientMAC)
	m.header.PutUint32(dhcpMagicPos, dhcpMagicCookie)
	m.SetOptions(opts...)
	return m
}

func decodeDHCPv4(d *decoder, data view.View) (Packet, error) {
	if data.Len() < DHCPv4HeaderLength {
		return nil, tooShort(LayerTypeDHCPv4, data.Offset(), data.Len(), DHCPv4HeaderLength)
	}
	if c := data.Uint32(dhcpMagicPos); c != dhcpMagicCookie {
		return nil, invalid(LayerTypeDHCPv4, data.Offset(), ErrInvalidVersion, "magic cookie 0x%08x", c)
	}
	region := data.Slice(DHCPv4HeaderLength, data.Len()-DHCPv4HeaderLength)
	views, err := splitOptions(region, d.strict, LayerTypeDHCPv4, dhcpOptionSize)
	if err != nil {
		return nil, err
	}
	hl := DHCPv4HeaderLength
	for _, v := range views {
		hl += v.Len()
	}
	m := &DHCPv4{}
	m.header = data.Slice(0, hl)
	m.payload = NoPayload
	if hl < data.Len() {
		m.trailer = data.Slice(hl, data.Len()-hl)
	}
	return m, nil
}

func (m *DHCPv4) LayerType() LayerType { return LayerTypeDHCPv4 }

func (m *DHCPv4) Operation() DHCPv4Operation { return DHCPv4Operation(m.header.Uint8(dhcpOpPos)) }

func (m *DHCPv4) HardwareType() uint8 { return m.header.Uint8(dhcpHTypePos) }

func (m *DHCPv4) HardwareLength() uint8 { return m.header.Uint8(dhcpHLenPos) }

func (m *DHCPv4) Hops() uint8 { return m.header.Uint8(dhcpHopsPos) }

func (m *DHCPv4) SetHops(h uint8) { m.header.PutUint8(dhcpHopsPos, h) }

func (m *DHCPv4) TransactionID() uint32 { return m.header.Uint32(dhcpXIDPos) }

func (m *DHCPv4) SetTransactionID(xid uint32) { m.header.PutUint32(dhcpXIDPos, xid) }

func (m *DHCPv4) Seconds() uint16 { return m.header.Uint16(dhcpSecsPos) }

func (m *DHCPv4) SetSeconds(s uint16) { m.header.PutUint16(dhcpSecsPos, s) }

func (m *DHCPv4) Broadcast() bool { return m.header.Uint16(dhcpFlagsPos)&dhcpBroadcastFlag != 0 }

func (m *DHCPv4) SetBroadcast(b bool) {
	f := m.header.Uint16(dhcpFlagsPos) &^ dhcpBroadcastFlag
	if b {
		f |= dhcpBroadcastFlag
	}
	m.header.PutUint16(dhcpFlagsPos, f)
}

func (m *DHCPv4) addr(pos int) netip.Addr {
	return netip.AddrFrom4([4]byte(m.header.Field(pos, 4)))
}

func (m *DHCPv4) setAddr(pos int, a netip.Addr) {
	b := a.As4()
	m.header.PutBytes(pos, b[:])
}

func (m *DHCPv4) ClientIP() netip.Addr { return m.addr(dhcpCIAddrPos) }
func (m *DHCPv4) YourIP() netip.Addr   { return m.addr(dhcpYIAddrPos) }
func (m *DHCPv4) ServerIP() netip.Addr { return m.addr(dhcpSIAddrPos) }
func (m *DHCPv4) RelayIP() netip.Addr  { return m.addr(dhcpGIAddrPos) }

func (m *DHCPv4) SetClientIP(a netip.Addr) { m.setAddr(dhcpCIAddrPos, a) }
func (m *DHCPv4) SetYourIP(a netip.Addr)   { m.setAddr(dhcpYIAddrPos, a) }
func (m *DHCPv4) SetServerIP(a netip.Addr) { m.setAddr(dhcpSIAddrPos, a) }
func (m *DHCPv4) SetRelayIP(a netip.Addr)  { m.setAddr(dhcpGIAddrPos, a) }

// ClientHardwareAddress returns the first hlen bytes of chaddr.
func (m *DHCPv4) ClientHardwareAddress() net.HardwareAddr {
	n := int(m.HardwareLength())
	if n > dhcpCHAddrLength {
		n = dhcpCHAddrLength
	}
	return net.HardwareAddr(m.header.CopyField(dhcpCHAddrPos, n))
}

func (m *DHCPv4) ServerName() string {
	return string(bytes.TrimRight(m.header.Field(dhcpSNamePos, dhcpSNameLength), "\x00"))
}

func (m *DHCPv4) File() string {
	return string(bytes.TrimRight(m.header.Field(dhcpFilePos, dhcpFileLength), "\x00"))
}

func (m *DHCPv4) parseOptions(strict bool) ([]DHCPv4Option, error) {
	region := m.header.Slice(DHCPv4HeaderLength, m.header.Len()-DHCPv4HeaderLength)
	views, err := splitOptions(region, strict, LayerTypeDHCPv4, dhcpOptionSize)
	opts := make([]DHCPv4Option, 0, len(views))
	for _, v := range views {
		opts = append(opts, newDHCPv4Option(v))
	}
	return opts, err
}

// Options parses the option list on every call, Pad and End included.
func (m *DHCPv4) Options() []DHCPv4Option {
	opts, _ := m.parseOptions(false)
	return opts
}

// Option returns the first option with the given code.
func (m *DHCPv4) Option(code DHCPv4OptionCode) (DHCPv4Option, bool) {
	for _, o := range m.Options() {
		if o.Code() == code {
			return o, true
		}
	}
	return nil, false
}

// MessageType returns the value of option 53, or 0 when absent.
func (m *DHCPv4) MessageType() DHCPv4MessageType {
	if o, ok := m.Option(DHCPv4OptMessageType); ok {
		if mt, ok := o.(DHCPv4MessageTypeOption); ok {
			return mt.MessageType()
		}
	}
	return 0
}

// SetOptions replaces the options, appending End when the list lacks it. The
// message moves to a new buffer and any trailer is dropped.
func (m *DHCPv4) SetOptions(opts ...DHCPv4Option) {
	raw := make([][]byte, 0, len(opts)+1)
	for _, o := range opts {
		raw = append(raw, o.Bytes())
	}
	if len(opts) == 0 || opts[len(opts)-1].Code() != DHCPv4OptEnd {
		raw = append(raw, []byte{byte(DHCPv4OptEnd)})
	}
	m.header = joinOptions(m.header.Field(0, DHCPv4HeaderLength), raw, 0)
	m.trailer = view.View{}
}

func (m *DHCPv4) Fields(verbose bool) []Field {
	f := []Field{
		{"Operation", m.Operation()},
		{"TransactionID", fmt.Sprintf("0x%08x", m.TransactionID())},
		{"ClientHardwareAddress", m.ClientHardwareAddress()},
	}
	if mt := m.MessageType(); mt != 0 {
		f = append(f, Field{"MessageType", mt})
	}
	if verbose {
		f = append(f,
			Field{"Hops", m.Hops()},
			Field{"Seconds", m.Seconds()},
			Field{"Broadcast", m.Broadcast()},
			Field{"ClientIP", m.ClientIP()},
			Field{"YourIP", m.YourIP()},
			Field{"ServerIP", m.ServerIP()},
			Field{"RelayIP", m.RelayIP()},
		)
		if s := m.ServerName(); s != "" {
			f = append(f, Field{"ServerName", s})
		}
		if s := m.File(); s != "" {
			f = append(f, Field{"File", s})
		}
		for _, o := range m.Options() {
			if c := o.Code(); c != DHCPv4OptPad && c != DHCPv4OptEnd {
				f = append(f, Field{"Option", o})
			}
		}
	}
	return f
}

func (m *DHCPv4) String() string { return formatLayer(m, false) }
