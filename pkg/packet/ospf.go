package packet

import (
	"fmt"
	"net/netip"

	"firestige.xyz/pktkit/pkg/checksum"
	"firestige.xyz/pktkit/pkg/view"
)

const (
	ospfVersionPos     = 0
	ospfTypePos        = ospfVersionPos + 1
	ospfLengthPos      = ospfTypePos + 1
	ospfRouterIDPos    = ospfLengthPos + 2
	ospfAreaIDPos      = ospfRouterIDPos + 4
	ospfChecksumPos    = ospfAreaIDPos + 4
	ospfAuTypePos      = ospfChecksumPos + 2
	ospfAuthPos        = ospfAuTypePos + 2
	OSPFv2HeaderLength = ospfAuthPos + 8

	ospfVersion2 = 2
)

// OSPFType is the OSPF packet type.
type OSPFType uint8

const (
	OSPFTypeHello               OSPFType = 1
	OSPFTypeDatabaseDescription OSPFType = 2
	OSPFTypeLinkStateRequest    OSPFType = 3
	OSPFTypeLinkStateUpdate     OSPFType = 4
	OSPFTypeLinkStateAck        OSPFType = 5
)

func (t OSPFType) String() string {
	switch t {
	case OSPFTypeHello:
		return "Hello"
	case OSPFTypeDatabaseDescription:
		return "DatabaseDescription"
	case OSPFTypeLinkStateRequest:
		return "LinkStateRequest"
	case OSPFTypeLinkStateUpdate:
		return "LinkStateUpdate"
	case OSPFTypeLinkStateAck:
		return "LinkStateAck"
	}
	return fmt.Sprintf("OSPFType(%d)", uint8(t))
}

// OSPFAuType is the authentication type of an OSPF packet.
type OSPFAuType uint16

const (
	OSPFAuthNone          OSPFAuType = 0
	OSPFAuthSimple        OSPFAuType = 1
	OSPFAuthCryptographic OSPFAuType = 2
)

var ospfTypeDecoders = map[OSPFType]decodeFunc{}

var ospfTypeLayers = map[OSPFType]LayerType{
	OSPFTypeHello:               LayerTypeOSPFv2Hello,
	OSPFTypeDatabaseDescription: LayerTypeOSPFv2DatabaseDescription,
	OSPFTypeLinkStateRequest:    LayerTypeOSPFv2LinkStateRequest,
	OSPFTypeLinkStateUpdate:     LayerTypeOSPFv2LinkStateUpdate,
	OSPFTypeLinkStateAck:        LayerTypeOSPFv2LinkStateAck,
}

// decodeOSPFv2 dispatches on the packet type. OSPFv3 and unknown types are
// left opaque.
func decodeOSPFv2(d *decoder, data view.View) (Packet, error) {
	if data.Len() < OSPFv2HeaderLength {
		return nil, tooShort(LayerTypeUnknown, data.Offset(), data.Len(), OSPFv2HeaderLength)
	}
	if v := data.Uint8(ospfVersionPos); v != ospfVersion2 {
		return nil, mismatch(LayerTypeUnknown, data.Offset(), ErrInvalidVersion, "OSPF version %d", v)
	}
	t := OSPFType(data.Uint8(ospfTypePos))
	fn, ok := ospfTypeDecoders[t]
	if !ok {
		return nil, mismatch(LayerTypeUnknown, data.Offset(), ErrUnknownTypeCode, "OSPF type %d", t)
	}
	return fn(d, data)
}

// ospfMessage is the common header of every OSPFv2 packet. The whole packet,
// body included, is held in the header view.
type ospfMessage struct {
	Base
	layer LayerType
	fixed int
}

func (m *ospfMessage) init(t OSPFType, fixed int, routerID, areaID netip.Addr) {
	m.layer = ospfTypeLayers[t]
	m.fixed = fixed
	m.newHeader(fixed)
	m.header.PutUint8(ospfVersionPos, ospfVersion2)
	m.header.PutUint8(ospfTypePos, uint8(t))
	putAddr(m.header, ospfRouterIDPos, routerID)
	putAddr(m.header, ospfAreaIDPos, areaID)
	m.UpdateLength()
}

func decodeOSPFMessage(data view.View, t OSPFType, fixed int) (ospfMessage, error) {
	layer := ospfTypeLayers[t]
	if data.Len() < OSPFv2HeaderLength {
		return ospfMessage{}, tooShort(layer, data.Offset(), data.Len(), OSPFv2HeaderLength)
	}
	if v := data.Uint8(ospfVersionPos); v != ospfVersion2 {
		return ospfMessage{}, invalid(layer, data.Offset(), ErrInvalidVersion, "version %d", v)
	}
	if got := OSPFType(data.Uint8(ospfTypePos)); got != t {
		return ospfMessage{}, invalid(layer, data.Offset(), ErrUnknownTypeCode, "type %s", got)
	}
	n := int(data.Uint16(ospfLengthPos))
	if n < fixed || n > data.Len() {
		n = data.Len()
	}
	if n < fixed {
		return ospfMessage{}, tooShort(layer, data.Offset(), n, fixed)
	}
	m := ospfMessage{layer: layer, fixed: fixed}
	m.header = data.Slice(0, n)
	return m, nil
}

func (m *ospfMessage) LayerType() LayerType { return m.layer }

func (m *ospfMessage) Version() uint8 { return m.header.Uint8(ospfVersionPos) }

func (m *ospfMessage) Type() OSPFType { return OSPFType(m.header.Uint8(ospfTypePos)) }

// PacketLength covers the common header and the body.
func (m *ospfMessage) PacketLength() uint16 { return m.header.Uint16(ospfLengthPos) }

func (m *ospfMessage) RouterID() netip.Addr { return addrAt(m.header, ospfRouterIDPos) }

func (m *ospfMessage) SetRouterID(a netip.Addr) { putAddr(m.header, ospfRouterIDPos, a) }

func (m *ospfMessage) AreaID() netip.Addr { return addrAt(m.header, ospfAreaIDPos) }

func (m *ospfMessage) SetAreaID(a netip.Addr) { putAddr(m.header, ospfAreaIDPos, a) }

func (m *ospfMessage) Checksum() uint16 { return m.header.Uint16(ospfChecksumPos) }

func (m *ospfMessage) AuType() OSPFAuType { return OSPFAuType(m.header.Uint16(ospfAuTypePos)) }

// Authentication returns the 8-byte authentication field, aliasing the packet.
func (m *ospfMessage) Authentication() []byte { return m.header.Field(ospfAuthPos, 8) }

// SetSimplePassword switches to simple password authentication. Longer
// passwords are cut to eight bytes.
func (m *ospfMessage) SetSimplePassword(pw string) {
	m.header.PutUint16(ospfAuTypePos, uint16(OSPFAuthSimple))
	auth := make([]byte, 8)
	copy(auth, pw)
	m.header.PutBytes(ospfAuthPos, auth)
}

func (m *ospfMessage) UpdateLength() { m.header.PutUint16(ospfLengthPos, uint16(m.header.Len())) }

// ComputeChecksum covers the whole packet except the authentication field.
func (m *ospfMessage) ComputeChecksum() uint16 {
	b := m.header.Bytes()
	return checksum.Checksum(b[:ospfChecksumPos], zeroWord, b[ospfAuTypePos:ospfAuthPos], b[OSPFv2HeaderLength:])
}

// ValidChecksum reports whether the checksum verifies. Cryptographic
// authentication leaves the field zero and is not checked.
func (m *ospfMessage) ValidChecksum() bool {
	if m.AuType() == OSPFAuthCryptographic {
		return true
	}
	b := m.header.Bytes()
	return checksum.Valid(b[:ospfAuthPos], b[OSPFv2HeaderLength:])
}

func (m *ospfMessage) UpdateChecksum() {
	if m.AuType() == OSPFAuthCryptographic {
		m.header.PutUint16(ospfChecksumPos, 0)
		return
	}
	m.header.PutUint16(ospfChecksumPos, m.ComputeChecksum())
}

func (m *ospfMessage) updateCalculatedValues(Network) {
	m.UpdateLength()
	m.UpdateChecksum()
}

func (m *ospfMessage) checksumValid(Network) (valid, applicable bool) {
	return m.ValidChecksum(), m.AuType() != OSPFAuthCryptographic
}

// list returns the region after the fixed part.
func (m *ospfMessage) list() view.View {
	return m.header.Slice(m.fixed, m.header.Len()-m.fixed)
}

// setList rebuilds the packet with items after the fixed part.
func (m *ospfMessage) setList(items [][]byte) {
	m.header = joinOptions(m.header.Field(0, m.fixed), items, 0)
	m.UpdateLength()
}

func (m *ospfMessage) headerFields(f []Field, verbose bool) []Field {
	out := []Field{
		{"RouterID", m.RouterID()},
		{"AreaID", m.AreaID()},
	}
	if verbose {
		out = append(out,
			Field{"Version", m.Version()},
			Field{"PacketLength", m.PacketLength()},
			Field{"Checksum", fmt.Sprintf("0x%04x", m.Checksum())},
			Field{"AuType", m.AuType()},
		)
	}
	return append(out, f...)
}

const (
	ospfHelloMaskPos     = OSPFv2HeaderLength
	ospfHelloIntervalPos = ospfHelloMaskPos + 4
	ospfHelloOptionsPos  = ospfHelloIntervalPos + 2
	ospfHelloPriorityPos = ospfHelloOptionsPos + 1
	ospfHelloDeadPos     = ospfHelloPriorityPos + 1
	ospfHelloDRPos       = ospfHelloDeadPos + 4
	ospfHelloBDRPos      = ospfHelloDRPos + 4
	ospfHelloFixedLength = ospfHelloBDRPos + 4
	ospfDBDMTUPos        = OSPFv2HeaderLength
	ospfDBDOptionsPos    = ospfDBDMTUPos + 2
	ospfDBDFlagsPos      = ospfDBDOptionsPos + 1
	ospfDBDSequencePos   = ospfDBDFlagsPos + 1
	ospfDBDFixedLength   = ospfDBDSequencePos + 4
	ospfLSUCountPos      = OSPFv2HeaderLength
	ospfLSUFixedLength   = ospfLSUCountPos + 4
	ospfLSRequestLength  = 12
	ospfDefaultHello     = 10
	ospfDefaultDead      = 40
	ospfOptionExternal   = 0x02
)

// OSPFv2Hello is an OSPF Hello packet.
type OSPFv2Hello struct{ ospfMessage }

func NewOSPFv2Hello(routerID, areaID, mask netip.Addr, priority uint8, neighbors ...netip.Addr) *OSPFv2Hello {
	m := &OSPFv2Hello{}
	m.init(OSPFTypeHello, ospfHelloFixedLength, routerID, areaID)
	putAddr(m.header, ospfHelloMaskPos, mask)
	m.header.PutUint16(ospfHelloIntervalPos, ospfDefaultHello)
	m.header.PutUint8(ospfHelloOptionsPos, ospfOptionExternal)
	m.header.PutUint8(ospfHelloPriorityPos, priority)
	m.header.PutUint32(ospfHelloDeadPos, ospfDefaultDead)
	putAddr(m.header, ospfHelloDRPos, netip.IPv4Unspecified())
	putAddr(m.header, ospfHelloBDRPos, netip.IPv4Unspecified())
	m.SetNeighbors(neighbors...)
	return m
}

func decodeOSPFv2Hello(_ *decoder, data view.View) (Packet, error) {
	m, err := decodeOSPFMessage(data, OSPFTypeHello, ospfHelloFixedLength)
	if err != nil {
		return nil, err
	}
	return &OSPFv2Hello{m}, nil
}

func (m *OSPFv2Hello) NetworkMask() netip.Addr { return addrAt(m.header, ospfHelloMaskPos) }

func (m *OSPFv2Hello) HelloInterval() uint16 { return m.header.Uint16(ospfHelloIntervalPos) }

func (m *OSPFv2Hello) SetHelloInterval(s uint16) { m.header.PutUint16(ospfHelloIntervalPos, s) }

func (m *OSPFv2Hello) Options() uint8 { return m.header.Uint8(ospfHelloOptionsPos) }

func (m *OSPFv2Hello) RouterPriority() uint8 { return m.header.Uint8(ospfHelloPriorityPos) }

func (m *OSPFv2Hello) RouterDeadInterval() uint32 { return m.header.Uint32(ospfHelloDeadPos) }

func (m *OSPFv2Hello) SetRouterDeadInterval(s uint32) { m.header.PutUint32(ospfHelloDeadPos, s) }

func (m *OSPFv2Hello) DesignatedRouter() netip.Addr { return addrAt(m.header, ospfHelloDRPos) }

func (m *OSPFv2Hello) SetDesignatedRouter(a netip.Addr) { putAddr(m.header, ospfHelloDRPos, a) }

func (m *OSPFv2Hello) BackupDesignatedRouter() netip.Addr { return addrAt(m.header, ospfHelloBDRPos) }

func (m *OSPFv2Hello) SetBackupDesignatedRouter(a netip.Addr) { putAddr(m.header, ospfHelloBDRPos, a) }

func (m *OSPFv2Hello) Neighbors() []netip.Addr {
	l := m.list()
	out := make([]netip.Addr, 0, l.Len()/4)
	for off := 0; off+4 <= l.Len(); off += 4 {
		out = append(out, addrAt(l, off))
	}
	return out
}

// SetNeighbors replaces the neighbor list. The packet moves to a new buffer.
func (m *OSPFv2Hello) SetNeighbors(neighbors ...netip.Addr) {
	items := make([][]byte, len(neighbors))
	for i, n := range neighbors {
		b := n.As4()
		items[i] = b[:]
	}
	m.setList(items)
}

func (m *OSPFv2Hello) Fields(verbose bool) []Field {
	f := []Field{
		{"NetworkMask", m.NetworkMask()},
		{"DesignatedRouter", m.DesignatedRouter()},
		{"Neighbors", m.Neighbors()},
	}
	if verbose {
		f = append(f,
			Field{"HelloInterval", m.HelloInterval()},
			Field{"RouterDeadInterval", m.RouterDeadInterval()},
			Field{"RouterPriority", m.RouterPriority()},
			Field{"BackupDesignatedRouter", m.BackupDesignatedRouter()},
			Field{"Options", fmt.Sprintf("0x%02x", m.Options())},
		)
	}
	return m.headerFields(f, verbose)
}

func (m *OSPFv2Hello) String() string { return formatLayer(m, false) }

// OSPF database description flags.
const (
	OSPFDBDMaster = 0x01
	OSPFDBDMore   = 0x02
	OSPFDBDInit   = 0x04
)

// OSPFv2DatabaseDescription is an OSPF database description packet.
type OSPFv2DatabaseDescription struct{ ospfMessage }

func NewOSPFv2DatabaseDescription(routerID, areaID netip.Addr, mtu uint16, flags uint8, seq uint32, headers ...OSPFLSAHeader) *OSPFv2DatabaseDescription {
	m := &OSPFv2DatabaseDescription{}
	m.init(OSPFTypeDatabaseDescription, ospfDBDFixedLength, routerID, areaID)
	m.header.PutUint16(ospfDBDMTUPos, mtu)
	m.header.PutUint8(ospfDBDOptionsPos, ospfOptionExternal)
	m.header.PutUint8(ospfDBDFlagsPos, flags)
	m.header.PutUint32(ospfDBDSequencePos, seq)
	m.setList(lsaHeaderItems(headers))
	return m
}

func decodeOSPFv2DatabaseDescription(d *decoder, data view.View) (Packet, error) {
	m, err := decodeOSPFMessage(data, OSPFTypeDatabaseDescription, ospfDBDFixedLength)
	if err != nil {
		return nil, err
	}
	if d.strict {
		if _, err := parseLSAHeaders(m.list(), true, m.layer); err != nil {
			return nil, err
		}
	}
	return &OSPFv2DatabaseDescription{m}, nil
}

func (m *OSPFv2DatabaseDescription) InterfaceMTU() uint16 { return m.header.Uint16(ospfDBDMTUPos) }

func (m *OSPFv2DatabaseDescription) Options() uint8 { return m.header.Uint8(ospfDBDOptionsPos) }

func (m *OSPFv2DatabaseDescription) Flags() uint8 { return m.header.Uint8(ospfDBDFlagsPos) }

func (m *OSPFv2DatabaseDescription) DDSequence() uint32 { return m.header.Uint32(ospfDBDSequencePos) }

func (m *OSPFv2DatabaseDescription) LSAHeaders() []OSPFLSAHeader {
	hs, _ := parseLSAHeaders(m.list(), false, m.layer)
	return hs
}

func (m *OSPFv2DatabaseDescription) Fields(verbose bool) []Field {
	f := []Field{
		{"DDSequence", m.DDSequence()},
		{"Flags", fmt.Sprintf("0x%02x", m.Flags())},
		{"LSAHeaders", len(m.LSAHeaders())},
	}
	if verbose {
		f = append(f,
			Field{"InterfaceMTU", m.InterfaceMTU()},
			Field{"Options", fmt.Sprintf("0x%02x", m.Options())},
			Field{"Headers", formatLSAHeaders(m.LSAHeaders())},
		)
	}
	return m.headerFields(f, verbose)
}

func (m *OSPFv2DatabaseDescription) String() string { return formatLayer(m, false) }

// OSPFLinkStateRequest names one LSA asked for in a link state request packet.
type OSPFLinkStateRequest struct {
	Type              OSPFLSAType
	LinkStateID       netip.Addr
	AdvertisingRouter netip.Addr
}

func (r OSPFLinkStateRequest) String() string {
	return fmt.Sprintf("%s(id=%s adv=%s)", r.Type, r.LinkStateID, r.AdvertisingRouter)
}

// OSPFv2LinkStateRequest is an OSPF link state request packet.
type OSPFv2LinkStateRequest struct{ ospfMessage }

func NewOSPFv2LinkStateRequest(routerID, areaID netip.Addr, reqs ...OSPFLinkStateRequest) *OSPFv2LinkStateRequest {
	m := &OSPFv2LinkStateRequest{}
	m.init(OSPFTypeLinkStateRequest, OSPFv2HeaderLength, routerID, areaID)
	items := make([][]byte, len(reqs))
	for i, r := range reqs {
		v := view.Alloc(ospfLSRequestLength)
		v.PutUint32(0, uint32(r.Type))
		putAddr(v, 4, r.LinkStateID)
		putAddr(v, 8, r.AdvertisingRouter)
		items[i] = v.Bytes()
	}
	m.setList(items)
	return m
}

func decodeOSPFv2LinkStateRequest(_ *decoder, data view.View) (Packet, error) {
	m, err := decodeOSPFMessage(data, OSPFTypeLinkStateRequest, OSPFv2HeaderLength)
	if err != nil {
		return nil, err
	}
	return &OSPFv2LinkStateRequest{m}, nil
}

// Requests ignores a trailing partial entry.
func (m *OSPFv2LinkStateRequest) Requests() []OSPFLinkStateRequest {
	l := m.list()
	var out []OSPFLinkStateRequest
	for off := 0; off+ospfLSRequestLength <= l.Len(); off += ospfLSRequestLength {
		out = append(out, OSPFLinkStateRequest{
			Type:              OSPFLSAType(l.Uint32(off)),
			LinkStateID:       addrAt(l, off+4),
			AdvertisingRouter: addrAt(l, off+8),
		})
	}
	return out
}

func (m *OSPFv2LinkStateRequest) Fields(bool) []Field {
	return m.headerFields([]Field{{"Requests", m.Requests()}}, false)
}

func (m *OSPFv2LinkStateRequest) String() string { return formatLayer(m, false) }

// OSPFv2LinkStateUpdate is an OSPF link state update packet.
type OSPFv2LinkStateUpdate struct{ ospfMessage }

func NewOSPFv2LinkStateUpdate(routerID, areaID netip.Addr, lsas ...OSPFLSA) *OSPFv2LinkStateUpdate {
	m := &OSPFv2LinkStateUpdate{}
	m.init(OSPFTypeLinkStateUpdate, ospfLSUFixedLength, routerID, areaID)
	m.SetLSAs(lsas...)
	return m
}

func decodeOSPFv2LinkStateUpdate(d *decoder, data view.View) (Packet, error) {
	m, err := decodeOSPFMessage(data, OSPFTypeLinkStateUpdate, ospfLSUFixedLength)
	if err != nil {
		return nil, err
	}
	u := &OSPFv2LinkStateUpdate{m}
	if d.strict {
		if _, err := u.parseLSAs(true); err != nil {
			return nil, err
		}
	}
	return u, nil
}

// LSACount is the count field, which may disagree with the LSAs present.
func (m *OSPFv2LinkStateUpdate) LSACount() uint32 { return m.header.Uint32(ospfLSUCountPos) }

func (m *OSPFv2LinkStateUpdate) parseLSAs(strict bool) ([]OSPFLSA, error) {
	remaining := m.LSACount()
	size := func(rest view.View) (int, bool) {
		remaining--
		n, more := lsaSize(rest)
		return n, more && remaining > 0
	}
	if remaining == 0 {
		return nil, nil
	}
	views, err := splitOptions(m.list(), strict, m.layer, size)
	lsas := make([]OSPFLSA, 0, len(views))
	for _, v := range views {
		lsas = append(lsas, newOSPFLSA(v))
	}
	return lsas, err
}

// LSAs parses at most LSACount advertisements on every call.
func (m *OSPFv2LinkStateUpdate) LSAs() []OSPFLSA {
	lsas, _ := m.parseLSAs(false)
	return lsas
}

// SetLSAs replaces the advertisements and the count. The packet moves to a new buffer.
func (m *OSPFv2LinkStateUpdate) SetLSAs(lsas ...OSPFLSA) {
	items := make([][]byte, len(lsas))
	for i, l := range lsas {
		items[i] = l.Bytes()
	}
	m.header.PutUint32(ospfLSUCountPos, uint32(len(lsas)))
	m.setList(items)
}

func (m *OSPFv2LinkStateUpdate) Fields(verbose bool) []Field {
	f := []Field{{"LSACount", m.LSACount()}}
	for _, l := range m.LSAs() {
		f = append(f, Field{"LSA", l})
	}
	return m.headerFields(f, verbose)
}

func (m *OSPFv2LinkStateUpdate) String() string { return formatLayer(m, false) }

// OSPFv2LinkStateAck is an OSPF link state acknowledgement packet.
type OSPFv2LinkStateAck struct{ ospfMessage }

func NewOSPFv2LinkStateAck(routerID, areaID netip.Addr, headers ...OSPFLSAHeader) *OSPFv2LinkStateAck {
	m := &OSPFv2LinkStateAck{}
	m.init(OSPFTypeLinkStateAck, OSPFv2HeaderLength, routerID, areaID)
	m.setList(lsaHeaderItems(headers))
	return m
}

func decodeOSPFv2LinkStateAck(d *decoder, data view.View) (Packet, error) {
	m, err := decodeOSPFMessage(data, OSPFTypeLinkStateAck, OSPFv2HeaderLength)
	if err != nil {
		return nil, err
	}
	if d.strict {
		if _, err := parseLSAHeaders(m.list(), true, m.layer); err != nil {
			return nil, err
		}
	}
	return &OSPFv2LinkStateAck{m}, nil
}

func (m *OSPFv2LinkStateAck) LSAHeaders() []OSPFLSAHeader {
	hs, _ := parseLSAHeaders(m.list(), false, m.layer)
	return hs
}

func (m *OSPFv2LinkStateAck) Fields(bool) []Field {
	return m.headerFields([]Field{{"LSAHeaders", formatLSAHeaders(m.LSAHeaders())}}, false)
}

func (m *OSPFv2LinkStateAck) String() string { return formatLayer(m, false) }

// parseLSAHeaders splits a list of bare LSA headers. A partial last header is
// dropped, or reported when strict.
func parseLSAHeaders(region view.View, strict bool, layer LayerType) ([]OSPFLSAHeader, error) {
	views, err := splitOptions(region, strict, layer, lsaHeaderSize)
	out := make([]OSPFLSAHeader, 0, len(views))
	for _, v := range views {
		if v.Len() == OSPFLSAHeaderLength {
			out = append(out, OSPFLSAHeader{v})
		}
	}
	return out, err
}

func lsaHeaderItems(headers []OSPFLSAHeader) [][]byte {
	items := make([][]byte, len(headers))
	for i, h := range headers {
		items[i] = h.Bytes()
	}
	return items
}
