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
)

// innerUDP returns IPv4/UDP with a data payload, lengths and checksums left to the caller.
func innerUDP(t *testing.T, dstPort uint16, payload []byte) *IPv4 {
	t.Helper()
	ip, err := NewIPv4(testSrcIP, testDstIP, IPProtocolUDP)
	require.NoError(t, err)
	udp := NewUDP(40000, dstPort)
	udp.SetPayload(BytesPayload(payload))
	ip.SetPayload(PacketPayload(udp))
	return ip
}

func TestDot1QMatchesGopacket(t *testing.T) {
	payload := testPayload(32)
	gip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    testSrcIP.AsSlice(),
		DstIP:    testDstIP.AsSlice(),
	}
	gudp := &layers.UDP{SrcPort: 40000, DstPort: 5353}
	require.NoError(t, gudp.SetNetworkLayerForChecksum(gip))
	want := serialize(t,
		&layers.Ethernet{SrcMAC: testSrcMAC, DstMAC: testDstMAC, EthernetType: layers.EthernetTypeDot1Q},
		&layers.Dot1Q{Priority: 5, DropEligible: true, VLANIdentifier: 100, Type: layers.EthernetTypeIPv4},
		gip, gudp, gopacket.Payload(payload))

	eth, err := NewEthernet(testSrcMAC, testDstMAC, EtherTypeDot1Q)
	require.NoError(t, err)
	q, err := NewDot1Q(5, true, 100, EtherTypeIPv4)
	require.NoError(t, err)
	q.SetPayload(PacketPayload(innerUDP(t, 5353, payload)))
	eth.SetPayload(PacketPayload(q))
	UpdateCalculatedValues(eth)
	assert.Equal(t, want, eth.Bytes())

	root, err := Decode(want, layers.LinkTypeEthernet)
	require.NoError(t, err)
	assert.Equal(t, []LayerType{LayerTypeEthernet, LayerTypeDot1Q, LayerTypeIPv4, LayerTypeUDP}, layerTypes(root))
	got, _ := Extract[*Dot1Q](root)
	assert.Equal(t, uint8(5), got.Priority())
	assert.True(t, got.DropEligible())
	assert.Equal(t, uint16(100), got.VLANIdentifier())
}

func TestDot1QRanges(t *testing.T) {
	_, err := NewDot1Q(8, false, 1, EtherTypeIPv4)
	assert.Error(t, err)
	_, err = NewDot1Q(0, false, 4096, EtherTypeIPv4)
	assert.Error(t, err)

	q, err := NewDot1Q(7, false, 4095, EtherTypeIPv4)
	require.NoError(t, err)
	q.SetPriority(1)
	q.SetDropEligible(true)
	assert.Equal(t, uint8(1), q.Priority())
	assert.Equal(t, uint16(4095), q.VLANIdentifier())
	q.SetDropEligible(false)
	assert.False(t, q.DropEligible())
	assert.Equal(t, uint16(4095), q.VLANIdentifier())
}

func TestQinQ(t *testing.T) {
	eth, _ := NewEthernet(testSrcMAC, testDstMAC, EtherTypeQinQ)
	outer, _ := NewDot1Q(0, false, 10, EtherTypeDot1Q)
	inner, _ := NewDot1Q(0, false, 20, EtherTypeIPv4)
	inner.SetPayload(PacketPayload(innerUDP(t, 5353, testPayload(20))))
	outer.SetPayload(PacketPayload(inner))
	eth.SetPayload(PacketPayload(outer))
	UpdateCalculatedValues(eth)

	root, err := Decode(eth.Bytes(), layers.LinkTypeEthernet)
	require.NoError(t, err)
	assert.Equal(t, []LayerType{LayerTypeEthernet, LayerTypeDot1Q, LayerTypeDot1Q, LayerTypeIPv4, LayerTypeUDP}, layerTypes(root))

	vlans := Layers(root)
	assert.Equal(t, uint16(10), vlans[1].(*Dot1Q).VLANIdentifier())
	assert.Equal(t, uint16(20), vlans[2].(*Dot1Q).VLANIdentifier())

	udp, _ := Extract[*UDP](root)
	q, ok := Ancestor[*Dot1Q](root, udp)
	require.True(t, ok)
	assert.Equal(t, uint16(20), q.VLANIdentifier())
}

func TestLinuxSLL(t *testing.T) {
	sll, err := NewLinuxSLL(LinuxSLLPacketTypeOutgoing, testSrcMAC, EtherTypeIPv4)
	require.NoError(t, err)
	sll.SetPayload(PacketPayload(innerUDP(t, 5353, testPayload(8))))
	UpdateCalculatedValues(sll)

	root, err := Decode(sll.Bytes(), layers.LinkTypeLinuxSLL)
	require.NoError(t, err)
	got := root.(*LinuxSLL)
	assert.Equal(t, LinuxSLLPacketTypeOutgoing, got.PacketType())
	assert.Equal(t, testSrcMAC, got.Address())
	assert.Equal(t, EtherTypeIPv4, got.Protocol())
	assert.Equal(t, []LayerType{LayerTypeLinuxSLL, LayerTypeIPv4, LayerTypeUDP}, layerTypes(root))
	assert.True(t, ValidChecksums(root))

	p := gopacket.NewPacket(sll.Bytes(), layers.LayerTypeLinuxSLL, gopacket.Default)
	gsll, ok := p.Layer(layers.LayerTypeLinuxSLL).(*layers.LinuxSLL)
	require.True(t, ok)
	assert.Equal(t, layers.LinuxSLLPacketTypeOutgoing, gsll.PacketType)
	assert.Equal(t, uint16(6), gsll.AddrLen)
	assert.Equal(t, layers.EthernetTypeIPv4, gsll.EthernetType)
	assert.NotNil(t, p.Layer(layers.LayerTypeUDP))

	_, err = NewLinuxSLL(LinuxSLLPacketTypeHost, make(net.HardwareAddr, 9), EtherTypeIPv4)
	assert.Error(t, err)
}

func TestARPMatchesGopacket(t *testing.T) {
	targetIP := netip.MustParseAddr("192.0.2.254")
	want := serialize(t,
		&layers.Ethernet{SrcMAC: testSrcMAC, DstMAC: layers.EthernetBroadcast, EthernetType: layers.EthernetTypeARP},
		&layers.ARP{
			AddrType:          layers.LinkTypeEthernet,
			Protocol:          layers.EthernetTypeIPv4,
			HwAddressSize:     6,
			ProtAddressSize:   4,
			Operation:         layers.ARPRequest,
			SourceHwAddress:   testSrcMAC,
			SourceProtAddress: testSrcIP.AsSlice(),
			DstHwAddress:      make([]byte, 6),
			DstProtAddress:    targetIP.AsSlice(),
		})

	root, err := Decode(want, layers.LinkTypeEthernet)
	require.NoError(t, err)
	arp, ok := Extract[*ARP](root)
	require.True(t, ok)
	assert.Equal(t, ARPRequest, arp.Operation())
	assert.Equal(t, testSrcMAC, arp.SenderHardwareAddress())
	assert.Equal(t, testSrcIP, arp.SenderProtocolAddress())
	assert.Equal(t, targetIP, arp.TargetProtocolAddress())
	assert.Equal(t, EtherTypeIPv4, arp.ProtocolAddressType())
	assert.Equal(t, len(want)-EthernetHeaderLength-ARPEthernetIPv4Length, root.Trailer().Len())

	eth, _ := NewEthernet(testSrcMAC, net.HardwareAddr(layers.EthernetBroadcast), EtherTypeARP)
	built, err := NewARP(ARPRequest, testSrcMAC, testSrcIP, make(net.HardwareAddr, 6), targetIP)
	require.NoError(t, err)
	eth.SetPayload(PacketPayload(built))
	eth.SetTrailer(make([]byte, root.Trailer().Len()))
	assert.Equal(t, want, eth.Bytes())
}

func TestARPRejectsMismatchedAddresses(t *testing.T) {
	_, err := NewARP(ARPReply, testSrcMAC, testSrc6, testDstMAC, testDstIP)
	assert.Error(t, err)

	a, err := NewARP(ARPReply, testSrcMAC, testSrcIP, testDstMAC, testDstIP)
	require.NoError(t, err)
	assert.Error(t, a.SetSenderHardwareAddress(net.HardwareAddr{1, 2}))
	assert.Equal(t, "Reply", a.Operation().String())

	_, err = Decode(append(make([]byte, EthernetHeaderLength-2), 0x08, 0x06, 0, 1), layers.LinkTypeEthernet)
	assert.True(t, errors.Is(err, ErrPacketTooShort))
}

func TestIPv6ExtensionHeaders(t *testing.T) {
	udp := NewUDP(546, 547)
	udp.SetPayload(BytesPayload(testPayload(12)))
	ip := buildIPv6(t, IPProtocolIPv6HopByHop, udp)
	raw := ip.Bytes()

	// Splice a hop-by-hop header (8 bytes, PadN) in front of UDP.
	hbh := []byte{byte(IPProtocolUDP), 0, 1, 4, 0, 0, 0, 0}
	frame := append(append(append([]byte(nil), raw[:IPv6HeaderLength]...), hbh...), raw[IPv6HeaderLength:]...)
	frame[ipv6PayloadLengthPos+1] += byte(len(hbh))

	root, err := Decode(frame, layers.LinkTypeRaw)
	require.NoError(t, err)
	got := root.(*IPv6)
	assert.Equal(t, IPv6HeaderLength+8, len(got.Header()))
	exts := got.ExtensionHeaders()
	require.Len(t, exts, 1)
	assert.Equal(t, IPProtocolIPv6HopByHop, exts[0].Type)
	assert.Equal(t, IPProtocolUDP, exts[0].NextHeader)
	assert.Equal(t, IPProtocolUDP, got.Protocol())
	assert.Equal(t, IPProtocolIPv6HopByHop, got.NextHeader())

	u, ok := Extract[*UDP](root)
	require.True(t, ok)
	assert.Equal(t, uint16(547), u.DestinationPort())
	assert.True(t, ValidChecksums(root))
}

func TestIPv6FragmentNotDecoded(t *testing.T) {
	ip, err := NewIPv6(testSrc6, testDst6, IPProtocolIPv6Fragment)
	require.NoError(t, err)
	// Fragment header: next UDP, offset 64 (512 bytes), more fragments.
	frag := []byte{byte(IPProtocolUDP), 0, 0x02, 0x01, 0, 0, 0, 1}
	ip.SetPayload(BytesPayload(append(frag, testPayload(16)...)))

	root, err := Decode(ip.Bytes(), layers.LinkTypeRaw)
	require.NoError(t, err)
	got := root.(*IPv6)
	exts := got.ExtensionHeaders()
	require.Len(t, exts, 1)
	assert.Equal(t, uint16(64), exts[0].FragmentOffset())
	assert.True(t, exts[0].MoreFragments())
	assert.Equal(t, PayloadData, got.Payload().Kind())
	assert.Equal(t, 16, got.Payload().Len())
}

func TestIPv6Fields(t *testing.T) {
	ip, err := NewIPv6(testSrc6, testDst6, IPProtocolNoNextHeader)
	require.NoError(t, err)
	ip.SetTrafficClass(0xb8)
	ip.SetFlowLabel(0xabcde)
	assert.Equal(t, uint8(6), ip.Version())
	assert.Equal(t, uint8(0xb8), ip.TrafficClass())
	assert.Equal(t, uint32(0xabcde), ip.FlowLabel())
	assert.Equal(t, testSrc6, ip.SourceAddress())

	_, err = NewIPv6(testSrcIP, testDst6, IPProtocolUDP)
	assert.Error(t, err)
}

func TestTraversal(t *testing.T) {
	frame := gopacketUDPFrame(t, 5353, testPayload(32))
	root, err := Decode(frame, layers.LinkTypeEthernet)
	require.NoError(t, err)

	ls := Layers(root)
	require.Len(t, ls, 3)
	ip, udp := ls[1], ls[2]

	assert.Equal(t, ip, Layer(root, LayerTypeIPv4))
	assert.Nil(t, Layer(root, LayerTypeTCP))
	assert.Equal(t, root, Parent(root, ip))
	assert.Equal(t, ip, Parent(root, udp))
	assert.Nil(t, Parent(root, root))
	assert.Equal(t, ip, Packet(NetworkOf(root, udp)))
	assert.Nil(t, NetworkOf(root, ip))

	_, ok := Extract[*TCP](root)
	assert.False(t, ok)
	eth, ok := Ancestor[*Ethernet](root, udp)
	assert.True(t, ok)
	assert.Equal(t, root, Packet(eth))
	_, ok = Ancestor[*UDP](root, udp)
	assert.False(t, ok)
}
