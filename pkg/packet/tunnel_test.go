package packet

import (
	"errors"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/pktkit/pkg/checksum"
)

func TestGREKeySequenceMatchesGopacket(t *testing.T) {
	payload := testPayload(24)
	want := serialize(t,
		&layers.GRE{KeyPresent: true, SeqPresent: true, Key: 42, Seq: 7, Protocol: layers.EthernetTypeIPv4},
		gopacket.Payload(payload))

	g := NewGRE(EtherTypeIPv4)
	g.SetKey(42)
	g.SetSequence(7)
	g.SetPayload(BytesPayload(payload))
	assert.Equal(t, want, g.Bytes())
}

func TestGREOverIPv4(t *testing.T) {
	g := NewGRE(EtherTypeIPv4)
	g.SetSequence(7)
	g.SetKey(42)
	g.SetChecksumPresent(true)
	g.SetPayload(PacketPayload(innerUDP(t, 5353, testPayload(16))))
	outer := buildIPv4(t, IPProtocolGRE, g)

	assert.True(t, g.ChecksumPresent())
	assert.Equal(t, GREMinHeaderLength+12, len(g.Header()))
	assert.True(t, checksum.Valid(g.Bytes()))

	root, err := Decode(outer.Bytes(), layers.LinkTypeRaw)
	require.NoError(t, err)
	assert.Equal(t, []LayerType{LayerTypeIPv4, LayerTypeGRE, LayerTypeIPv4, LayerTypeUDP}, layerTypes(root))

	got, _ := Extract[*GRE](root)
	assert.Equal(t, uint32(42), got.Key())
	assert.Equal(t, uint32(7), got.Sequence())
	assert.Equal(t, EtherTypeIPv4, got.Protocol())
	assert.True(t, got.ValidChecksum())
	assert.True(t, ValidChecksums(root))

	ls := Layers(root)
	udp := ls[3]
	assert.Equal(t, ls[2], Packet(NetworkOf(root, udp)))
	first, _ := Extract[*IPv4](root)
	assert.Equal(t, ls[0], Packet(first))

	got.SetChecksumPresent(false)
	assert.False(t, got.ChecksumPresent())
	assert.Equal(t, uint32(42), got.Key(), "relayout keeps the key")
	assert.Equal(t, GREMinHeaderLength+8, len(got.Header()))
	_, err = got.ComputeChecksum()
	assert.Error(t, err)
}

func TestGRERoutingEntries(t *testing.T) {
	hdr := []byte{
		0x40, 0x00, 0x08, 0x00, // routing present, IPv4
		0x00, 0x00, 0x00, 0x00, // checksum, offset
		0x08, 0x00, 0x00, 0x04, // SRE: IPv4 family, offset 0, length 4
		192, 0, 2, 1,
		0x00, 0x00, 0x00, 0x00, // terminating SRE
	}
	ip := innerUDP(t, 5353, testPayload(8))
	UpdateCalculatedValues(ip)
	data := append(hdr, ip.Bytes()...)

	p, err := DecodeLayer(viewOf(data), LayerTypeGRE)
	require.NoError(t, err)
	g := p.(*GRE)
	assert.True(t, g.RoutingPresent())
	assert.Len(t, g.Routing(), 12)
	assert.Equal(t, len(hdr), len(g.Header()))
	assert.Equal(t, []LayerType{LayerTypeGRE, LayerTypeIPv4, LayerTypeUDP}, layerTypes(p))

	_, err = DecodeLayer(viewOf(hdr[:14]), LayerTypeGRE)
	assert.True(t, errors.Is(err, ErrPacketTooShort))
}

func l2tpFrame(t *testing.T) (*IPv4, *L2TP) {
	t.Helper()
	ppp := NewPPP(PPPProtocolIPv4, true)
	ppp.SetPayload(PacketPayload(innerUDP(t, 5353, testPayload(16))))
	l2tp := NewL2TP(11, 22, true)
	l2tp.SetPayload(PacketPayload(ppp))
	udp := NewUDP(UDPPortL2TP, UDPPortL2TP)
	udp.SetPayload(PacketPayload(l2tp))
	return buildIPv4(t, IPProtocolUDP, udp), l2tp
}

func TestL2TPOverUDP(t *testing.T) {
	outer, l2tp := l2tpFrame(t)
	assert.Equal(t, uint16(l2tp.Len()), l2tp.Length())

	root, err := Decode(outer.Bytes(), layers.LinkTypeRaw)
	require.NoError(t, err)
	assert.Equal(t, []LayerType{
		LayerTypeIPv4, LayerTypeUDP, LayerTypeL2TP, LayerTypePPP, LayerTypeIPv4, LayerTypeUDP,
	}, layerTypes(root))

	got, _ := Extract[*L2TP](root)
	assert.False(t, got.IsControl())
	assert.True(t, got.LengthPresent())
	assert.Equal(t, uint8(2), got.Version())
	assert.Equal(t, uint16(11), got.TunnelID())
	assert.Equal(t, uint16(22), got.SessionID())

	ppp, _ := Extract[*PPP](root)
	assert.True(t, ppp.HasAddressControl())
	assert.Equal(t, PPPProtocolIPv4, ppp.Protocol())
	assert.True(t, ValidChecksums(root))

	got.SetSessionID(23)
	UpdateCalculatedValues(root)
	assert.True(t, ValidChecksums(root))
}

func TestL2TPMismatchStaysOpaque(t *testing.T) {
	l2tpOff := IPv4MinHeaderLength + UDPHeaderLength

	tests := []struct {
		name   string
		mutate func(b []byte)
		layers []LayerType
	}{
		{
			name:   "wrong version",
			mutate: func(b []byte) { b[l2tpOff+1] = 0x03 },
			layers: []LayerType{LayerTypeIPv4, LayerTypeUDP},
		},
		{
			name:   "control message",
			mutate: func(b []byte) { b[l2tpOff] |= 0x80 },
			layers: []LayerType{LayerTypeIPv4, LayerTypeUDP, LayerTypeL2TP},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outer, _ := l2tpFrame(t)
			b := outer.Bytes()
			tt.mutate(b)

			root, err := Decode(b, layers.LinkTypeRaw)
			require.NoError(t, err)
			assert.Equal(t, tt.layers, layerTypes(root))
			last := Layers(root)[len(tt.layers)-1]
			assert.Equal(t, PayloadData, last.Payload().Kind())
		})
	}
}

func TestL2TPDecodeLayerReportsMismatch(t *testing.T) {
	_, err := DecodeLayer(viewOf([]byte{0x00, 0x03, 0, 1, 0, 2}), LayerTypeL2TP)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidVersion))
}

func TestPPPCompressedProtocol(t *testing.T) {
	ip := innerUDP(t, 5353, testPayload(4))
	UpdateCalculatedValues(ip)
	data := append([]byte{0x21}, ip.Bytes()...)

	root, err := Decode(data, layers.LinkTypePPP)
	require.NoError(t, err)
	ppp := root.(*PPP)
	assert.False(t, ppp.HasAddressControl())
	assert.Equal(t, 1, len(ppp.Header()))
	assert.Equal(t, PPPProtocolIPv4, ppp.Protocol())
	assert.Equal(t, []LayerType{LayerTypePPP, LayerTypeIPv4, LayerTypeUDP}, layerTypes(root))

	lcp, err := Decode([]byte{0xff, 0x03, 0xc0, 0x21, 1, 1, 0, 4}, layers.LinkTypePPP)
	require.NoError(t, err)
	assert.Equal(t, PPPProtocolLCP, lcp.(*PPP).Protocol())
	assert.Equal(t, PayloadData, lcp.Payload().Kind())
	assert.Equal(t, "LCP", PPPProtocolLCP.String())
}

func TestPPPoESession(t *testing.T) {
	eth, _ := NewEthernet(testSrcMAC, testDstMAC, EtherTypePPPoESession)
	pppoe := NewPPPoESession(0x1234)
	ppp := NewPPP(PPPProtocolIPv4, false)
	ppp.SetPayload(PacketPayload(innerUDP(t, 5353, testPayload(32))))
	pppoe.SetPayload(PacketPayload(ppp))
	eth.SetPayload(PacketPayload(pppoe))
	UpdateCalculatedValues(eth)
	assert.Equal(t, uint16(ppp.Len()), pppoe.Length())

	root, err := Decode(eth.Bytes(), layers.LinkTypeEthernet)
	require.NoError(t, err)
	assert.Equal(t, []LayerType{
		LayerTypeEthernet, LayerTypePPPoE, LayerTypePPP, LayerTypeIPv4, LayerTypeUDP,
	}, layerTypes(root))
	got, _ := Extract[*PPPoE](root)
	assert.Equal(t, uint16(0x1234), got.SessionID())
	assert.False(t, got.IsDiscovery())
	assert.Nil(t, got.Tags())

	p := gopacket.NewPacket(eth.Bytes(), layers.LayerTypeEthernet, gopacket.Default)
	gp, ok := p.Layer(layers.LayerTypePPPoE).(*layers.PPPoE)
	require.True(t, ok)
	assert.Equal(t, uint16(0x1234), gp.SessionId)
	assert.Equal(t, pppoe.Length(), gp.Length)
	assert.NotNil(t, p.Layer(layers.LayerTypeUDP))
}

func TestPPPoEDiscoveryTags(t *testing.T) {
	eth, _ := NewEthernet(testSrcMAC, testDstMAC, EtherTypePPPoEDiscovery)
	padi := NewPPPoEDiscovery(PPPoECodePADI, 0,
		NewPPPoETag(PPPoETagServiceName, nil),
		NewPPPoETag(PPPoETagHostUniq, []byte{1, 2, 3, 4}),
	)
	eth.SetPayload(PacketPayload(padi))
	assert.Equal(t, uint16(12), padi.Length())

	frame := eth.Bytes()
	root, err := Decode(frame, layers.LinkTypeEthernet)
	require.NoError(t, err)
	got, _ := Extract[*PPPoE](root)
	assert.Equal(t, PPPoECodePADI, got.Code())
	assert.True(t, got.IsDiscovery())

	tags := got.Tags()
	require.Len(t, tags, 2)
	assert.Equal(t, `ServiceName("")`, tags[0].String())
	uniq, ok := got.Tag(PPPoETagHostUniq)
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3, 4}, uniq.Value())
	_, ok = got.Tag(PPPoETagACCookie)
	assert.False(t, ok)

	// HostUniq now claims 10 bytes with 4 present.
	frame[EthernetHeaderLength+PPPoEHeaderLength+4+3] = 10
	root, err = Decode(frame, layers.LinkTypeEthernet)
	require.NoError(t, err)
	got, _ = Extract[*PPPoE](root)
	require.Len(t, got.Tags(), 2)
	assert.Len(t, got.Tags()[1].Value(), 4)

	_, err = Decode(frame, layers.LinkTypeEthernet, WithStrict(true))
	assert.True(t, errors.Is(err, ErrTruncatedOption))
}

func TestPPPoEBadVersion(t *testing.T) {
	eth, _ := NewEthernet(testSrcMAC, testDstMAC, EtherTypePPPoESession)
	eth.SetPayload(PacketPayload(NewPPPoESession(1)))
	frame := eth.Bytes()
	frame[EthernetHeaderLength] = 0x21

	_, err := Decode(frame, layers.LinkTypeEthernet)
	assert.True(t, errors.Is(err, ErrInvalidVersion))
}
