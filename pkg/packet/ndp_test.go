package packet

import (
	"errors"
	"net"
	"net/netip"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv6"
)

var ndpTarget = netip.MustParseAddr("fe80::1")

// ndpFrame wraps body in ICMPv6 of type typ over IPv6 with checksums filled in.
func ndpFrame(t *testing.T, typ ICMPv6Type, body Packet) (*IPv6, *ICMPv6) {
	t.Helper()
	m, err := NewICMPv6(typ, 0)
	require.NoError(t, err)
	m.SetPayload(PacketPayload(body))
	return buildIPv6(t, IPProtocolICMPv6, m), m
}

func TestNDPNeighborSolicitationMatchesXNet(t *testing.T) {
	ns := NewNDPNeighborSolicitation(ndpTarget,
		NewNDPLinkLayerAddressOption(NDPOptionSourceLinkLayerAddress, testSrcMAC))
	assert.Equal(t, ndpNSFixedLength+8, ns.Len())
	ip, m := ndpFrame(t, ICMPv6TypeNeighborSolicitation, ns)

	psh := icmp.IPv6PseudoHeader(net.IP(testSrc6.AsSlice()), net.IP(testDst6.AsSlice()))
	want, err := (&icmp.Message{
		Type: ipv6.ICMPTypeNeighborSolicitation,
		Body: &icmp.RawBody{Data: ns.Bytes()},
	}).Marshal(psh)
	require.NoError(t, err)
	assert.Equal(t, want, m.Bytes())

	root, err := Decode(ip.Bytes(), layers.LinkTypeRaw)
	require.NoError(t, err)
	assert.Equal(t, []LayerType{LayerTypeIPv6, LayerTypeICMPv6, LayerTypeNDPNeighborSolicitation}, layerTypes(root))
	assert.True(t, ValidChecksums(root))

	got, _ := Extract[*NDPNeighborSolicitation](root)
	assert.Equal(t, ndpTarget, got.TargetAddress())
	o, ok := got.Option(NDPOptionSourceLinkLayerAddress)
	require.True(t, ok)
	assert.Equal(t, testSrcMAC, o.(NDPLinkLayerAddressOption).LinkLayerAddress())

	gp := gopacket.NewPacket(ip.Bytes(), layers.LayerTypeIPv6, gopacket.Default)
	gns, ok := gp.Layer(layers.LayerTypeICMPv6NeighborSolicitation).(*layers.ICMPv6NeighborSolicitation)
	require.True(t, ok)
	assert.Equal(t, net.IP(ndpTarget.AsSlice()), gns.TargetAddress)
	require.Len(t, gns.Options, 1)
	assert.Equal(t, layers.ICMPv6OptSourceAddress, gns.Options[0].Type)
}

func TestNDPRouterAdvertisement(t *testing.T) {
	prefix := netip.MustParsePrefix("2001:db8:1::/64")
	ra := NewNDPRouterAdvertisement(64, true, false, 1800, 30000, 1000,
		NewNDPLinkLayerAddressOption(NDPOptionSourceLinkLayerAddress, testSrcMAC),
		NewNDPPrefixInformationOption(prefix, true, true, 86400, 14400),
		NewNDPMTUOption(1500),
	)
	assert.Equal(t, ndpRAFixedLength+8+32+8, ra.Len())
	ip, _ := ndpFrame(t, ICMPv6TypeRouterAdvertisement, ra)

	root, err := Decode(ip.Bytes(), layers.LinkTypeRaw)
	require.NoError(t, err)
	assert.True(t, ValidChecksums(root))
	got, ok := Extract[*NDPRouterAdvertisement](root)
	require.True(t, ok)
	assert.Equal(t, uint8(64), got.CurrentHopLimit())
	assert.True(t, got.Managed())
	assert.False(t, got.Other())
	assert.Equal(t, uint16(1800), got.RouterLifetime())
	assert.Equal(t, uint32(30000), got.ReachableTime())
	assert.Equal(t, uint32(1000), got.RetransTimer())

	opts := got.Options()
	require.Len(t, opts, 3)
	pi, ok := opts[1].(NDPPrefixInformationOption)
	require.True(t, ok)
	assert.Equal(t, prefix, pi.Prefix())
	assert.True(t, pi.OnLink())
	assert.True(t, pi.Autonomous())
	assert.Equal(t, uint32(86400), pi.ValidLifetime())
	assert.Equal(t, uint32(14400), pi.PreferredLifetime())
	assert.Equal(t, "PrefixInformation(2001:db8:1::/64 L=true A=true valid=86400 preferred=14400)", pi.String())
	assert.Equal(t, "MTU(1500)", opts[2].String())

	gp := gopacket.NewPacket(ip.Bytes(), layers.LayerTypeIPv6, gopacket.Default)
	gra, ok := gp.Layer(layers.LayerTypeICMPv6RouterAdvertisement).(*layers.ICMPv6RouterAdvertisement)
	require.True(t, ok)
	assert.Equal(t, uint8(64), gra.HopLimit)
	assert.Equal(t, uint16(1800), gra.RouterLifetime)
	assert.Len(t, gra.Options, 3)
}

func TestNDPNeighborAdvertisementAndSolicitation(t *testing.T) {
	na := NewNDPNeighborAdvertisement(ndpTarget, true, true, false,
		NewNDPLinkLayerAddressOption(NDPOptionTargetLinkLayerAddress, testDstMAC))
	ip, _ := ndpFrame(t, ICMPv6TypeNeighborAdvertisement, na)

	root, err := Decode(ip.Bytes(), layers.LinkTypeRaw)
	require.NoError(t, err)
	got, ok := Extract[*NDPNeighborAdvertisement](root)
	require.True(t, ok)
	assert.True(t, got.Router())
	assert.True(t, got.Solicited())
	assert.False(t, got.Override())
	assert.Equal(t, ndpTarget, got.TargetAddress())
	assert.Equal(t, "TargetLinkLayerAddress(66:77:88:99:aa:bb)", got.Options()[0].String())

	rs := NewNDPRouterSolicitation()
	assert.Equal(t, ndpRSFixedLength, rs.Len())
	ip, _ = ndpFrame(t, ICMPv6TypeRouterSolicitation, rs)
	root, err = Decode(ip.Bytes(), layers.LinkTypeRaw)
	require.NoError(t, err)
	got2, ok := Extract[*NDPRouterSolicitation](root)
	require.True(t, ok)
	assert.Empty(t, got2.Options())
	assert.True(t, ValidChecksums(root))
}

func TestNDPRedirectedHeader(t *testing.T) {
	dst := netip.MustParseAddr("2001:db8:5::9")
	redirected := testPayload(8)
	opt := append([]byte{byte(NDPOptionRedirectedHeader), 2, 0, 0, 0, 0, 0, 0}, redirected...)
	data := append(NewNDPRedirect(ndpTarget, dst).Bytes(), opt...)

	p, err := DecodeLayer(viewOf(data), LayerTypeNDPRedirect)
	require.NoError(t, err)
	got := p.(*NDPRedirect)
	assert.Equal(t, ndpTarget, got.TargetAddress())
	assert.Equal(t, dst, got.DestinationAddress())
	o, ok := got.Option(NDPOptionRedirectedHeader)
	require.True(t, ok)
	assert.Equal(t, redirected, o.(NDPRedirectedHeaderOption).RedirectedPacket())
}

func TestNDPMalformedOptions(t *testing.T) {
	ns := NewNDPNeighborSolicitation(ndpTarget,
		NewNDPLinkLayerAddressOption(NDPOptionSourceLinkLayerAddress, testSrcMAC))

	tests := []struct {
		name    string
		length  byte
		lenient int
	}{
		{name: "runs past the message", length: 3, lenient: 1},
		{name: "zero length", length: 0, lenient: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := append([]byte{}, ns.Bytes()...)
			data[ndpNSFixedLength+1] = tt.length

			p, err := DecodeLayer(viewOf(data), LayerTypeNDPNeighborSolicitation)
			require.NoError(t, err)
			assert.Len(t, p.(*NDPNeighborSolicitation).Options(), tt.lenient)

			_, err = DecodeLayer(viewOf(data), LayerTypeNDPNeighborSolicitation, WithStrict(true))
			assert.True(t, errors.Is(err, ErrTruncatedOption))
		})
	}

	_, err := DecodeLayer(viewOf(ns.Bytes()[:10]), LayerTypeNDPNeighborSolicitation)
	assert.True(t, errors.Is(err, ErrPacketTooShort))
}
