package packet

import (
	"errors"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var wolTarget = net.HardwareAddr{0x00, 0x1b, 0x21, 0x0a, 0x0b, 0x0c}

func TestWakeOnLanOverEthernet(t *testing.T) {
	wol, err := NewWakeOnLan(wolTarget, nil)
	require.NoError(t, err)
	assert.Equal(t, WakeOnLanLength, wol.Len())
	assert.True(t, wol.IsValid())

	eth, err := NewEthernet(testSrcMAC, net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}, EtherTypeWakeOnLan)
	require.NoError(t, err)
	eth.SetPayload(PacketPayload(wol))

	root, err := Decode(eth.Bytes(), layers.LinkTypeEthernet)
	require.NoError(t, err)
	assert.Equal(t, []LayerType{LayerTypeEthernet, LayerTypeWakeOnLan}, layerTypes(root))
	got, _ := Extract[*WakeOnLan](root)
	assert.Equal(t, wolTarget, got.Target())
	assert.Nil(t, got.Password())
}

func TestWakeOnLanOverUDP(t *testing.T) {
	tests := []struct {
		name     string
		port     uint16
		password []byte
	}{
		{name: "discard port", port: UDPPortDiscard},
		{name: "echo port with short password", port: UDPPortEcho, password: []byte{1, 2, 3, 4}},
		{name: "long password", port: UDPPortDiscard, password: []byte{1, 2, 3, 4, 5, 6}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wol, err := NewWakeOnLan(wolTarget, tt.password)
			require.NoError(t, err)
			eth, _, _ := buildUDPFrame(t, tt.port, PacketPayload(wol))

			root, err := Decode(eth.Bytes(), layers.LinkTypeEthernet)
			require.NoError(t, err)
			got, ok := Extract[*WakeOnLan](root)
			require.True(t, ok)
			assert.Equal(t, wolTarget, got.Target())
			if tt.password == nil {
				assert.Nil(t, got.Password())
			} else {
				assert.Equal(t, tt.password, got.Password())
			}
			assert.True(t, ValidChecksums(root))
		})
	}
}

func TestWakeOnLanJunkStaysOpaque(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{name: "too short", payload: testPayload(40)},
		{name: "no sync stream", payload: testPayload(WakeOnLanLength)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eth, _, _ := buildUDPFrame(t, UDPPortDiscard, BytesPayload(tt.payload))
			root, err := Decode(eth.Bytes(), layers.LinkTypeEthernet)
			require.NoError(t, err)
			udp, _ := Extract[*UDP](root)
			assert.Equal(t, PayloadData, udp.Payload().Kind())
			assert.Equal(t, tt.payload, udp.PayloadData())
		})
	}

	_, err := DecodeLayer(viewOf(testPayload(WakeOnLanLength)), LayerTypeWakeOnLan)
	assert.True(t, errors.Is(err, ErrInvalidLength))
}

func TestWakeOnLanCorruptCopy(t *testing.T) {
	wol, err := NewWakeOnLan(wolTarget, nil)
	require.NoError(t, err)
	wol.HeaderView().PutUint8(wolTargetPos+5*macLength, 0xfe)
	assert.False(t, wol.IsValid())

	_, err = NewWakeOnLan(net.HardwareAddr{1, 2, 3}, nil)
	assert.Error(t, err)
	_, err = NewWakeOnLan(wolTarget, []byte{1, 2, 3})
	assert.Error(t, err)
}

func discoverMessage() *DHCPv4 {
	return NewDHCPv4(DHCPv4Request, 0xdeadbeef, testSrcMAC,
		NewDHCPv4MessageTypeOption(DHCPv4MsgDiscover),
		NewDHCPv4ParameterRequestOption(DHCPv4OptSubnetMask, DHCPv4OptRouter, DHCPv4OptDNS),
		NewDHCPv4TextOption(DHCPv4OptHostName, "host1"),
	)
}

func TestDHCPv4Discover(t *testing.T) {
	msg := discoverMessage()
	assert.Equal(t, DHCPv4HeaderLength+3+5+7+1, msg.Len())

	eth, _, _ := buildUDPFrame(t, DHCPv4ServerPort, PacketPayload(msg))
	root, err := Decode(eth.Bytes(), layers.LinkTypeEthernet)
	require.NoError(t, err)
	udp, _ := Extract[*UDP](root)
	require.Equal(t, PayloadData, udp.Payload().Kind(), "DHCP is not decoded by port")

	p, err := DecodeLayer(udp.Payload().Data(), LayerTypeDHCPv4)
	require.NoError(t, err)
	got := p.(*DHCPv4)
	assert.Equal(t, DHCPv4Request, got.Operation())
	assert.Equal(t, uint32(0xdeadbeef), got.TransactionID())
	assert.Equal(t, testSrcMAC, got.ClientHardwareAddress())
	assert.Equal(t, DHCPv4MsgDiscover, got.MessageType())
	assert.Equal(t, 0, got.Trailer().Len())

	opts := got.Options()
	require.Len(t, opts, 4)
	assert.Equal(t, DHCPv4OptEnd, opts[3].Code())
	prl, ok := opts[1].(DHCPv4ParameterRequestOption)
	require.True(t, ok)
	assert.Equal(t, []DHCPv4OptionCode{DHCPv4OptSubnetMask, DHCPv4OptRouter, DHCPv4OptDNS}, prl.Parameters())
	host, ok := got.Option(DHCPv4OptHostName)
	require.True(t, ok)
	assert.Equal(t, `HostName("host1")`, host.String())

	gp := gopacket.NewPacket(eth.Bytes(), layers.LayerTypeEthernet, gopacket.Default)
	gd, ok := gp.Layer(layers.LayerTypeDHCPv4).(*layers.DHCPv4)
	require.True(t, ok)
	assert.Equal(t, uint32(0xdeadbeef), gd.Xid)
	assert.Equal(t, testSrcMAC, gd.ClientHWAddr)
	var mt []byte
	for _, o := range gd.Options {
		if o.Type == layers.DHCPOptMessageType {
			mt = o.Data
		}
	}
	assert.Equal(t, []byte{byte(DHCPv4MsgDiscover)}, mt)
}

func TestDHCPv4Offer(t *testing.T) {
	server := netip.MustParseAddr("192.0.2.254")
	offered := netip.MustParseAddr("192.0.2.50")
	msg := NewDHCPv4(DHCPv4Reply, 7, testDstMAC,
		NewDHCPv4MessageTypeOption(DHCPv4MsgOffer),
		NewDHCPv4AddressOption(DHCPv4OptServerID, server),
		NewDHCPv4AddressOption(DHCPv4OptDNS, server, netip.MustParseAddr("192.0.2.253")),
		NewDHCPv4DurationOption(DHCPv4OptLeaseTime, time.Hour),
		NewDHCPv4Option(DHCPv4OptEnd, nil),
	)
	msg.SetYourIP(offered)
	msg.SetBroadcast(true)

	p, err := DecodeLayer(viewOf(msg.Bytes()), LayerTypeDHCPv4)
	require.NoError(t, err)
	got := p.(*DHCPv4)
	assert.Equal(t, DHCPv4MsgOffer, got.MessageType())
	assert.Equal(t, offered, got.YourIP())
	assert.True(t, got.Broadcast())
	require.Len(t, got.Options(), 5, "an explicit End is not doubled")

	dns, _ := got.Option(DHCPv4OptDNS)
	assert.Len(t, dns.(DHCPv4AddressOption).Addresses(), 2)
	lease, _ := got.Option(DHCPv4OptLeaseTime)
	assert.Equal(t, time.Hour, lease.(DHCPv4DurationOption).Duration())
	id, _ := got.Option(DHCPv4OptServerID)
	assert.Equal(t, "ServerID(192.0.2.254)", id.String())
}

func TestDHCPv4TrailerAfterEnd(t *testing.T) {
	data := append(discoverMessage().Bytes(), 0, 0, 0, 0)
	p, err := DecodeLayer(viewOf(data), LayerTypeDHCPv4)
	require.NoError(t, err)
	got := p.(*DHCPv4)
	assert.Equal(t, 4, got.Trailer().Len())
	assert.Equal(t, len(data)-4, len(got.Header()))
	assert.Equal(t, data, got.Bytes())

	got.SetOptions(NewDHCPv4MessageTypeOption(DHCPv4MsgRelease))
	assert.Equal(t, 0, got.Trailer().Len())
	assert.Equal(t, DHCPv4MsgRelease, got.MessageType())
	assert.Equal(t, uint32(0xdeadbeef), got.TransactionID())
}

func TestDHCPv4Errors(t *testing.T) {
	base := NewDHCPv4(DHCPv4Request, 1, testSrcMAC).Bytes()
	base = base[:DHCPv4HeaderLength]
	truncated := append(append([]byte{}, base...), 53, 1, 1, 12, 10, 'a', 'b')

	p, err := DecodeLayer(viewOf(truncated), LayerTypeDHCPv4)
	require.NoError(t, err)
	opts := p.(*DHCPv4).Options()
	require.Len(t, opts, 2)
	assert.Equal(t, []byte("ab"), opts[1].Data())

	_, err = DecodeLayer(viewOf(truncated), LayerTypeDHCPv4, WithStrict(true))
	assert.True(t, errors.Is(err, ErrTruncatedOption))

	badMagic := append([]byte{}, truncated...)
	badMagic[dhcpMagicPos] = 0
	_, err = DecodeLayer(viewOf(badMagic), LayerTypeDHCPv4)
	assert.True(t, errors.Is(err, ErrInvalidVersion))

	_, err = DecodeLayer(viewOf(base[:100]), LayerTypeDHCPv4)
	assert.True(t, errors.Is(err, ErrPacketTooShort))
}

// drdaChain returns EXCSAT chained to ACCSEC.
func drdaChain(t *testing.T) (*DRDA, *DRDA) {
	t.Helper()
	srvnam, err := NewDRDATextParameter(DDMSrvNam, "DB2SRV")
	require.NoError(t, err)
	excsat := NewDRDA(DDMExcSat, DRDARequest, 1, srvnam)
	accsec := NewDRDA(DDMAccSec, DRDARequest, 2, NewDRDAParameter(DDMSecMec, []byte{0x00, 0x03}))
	excsat.SetChained(true)
	excsat.SetPayload(PacketPayload(accsec))
	return excsat, accsec
}

func TestDRDAOverTCP(t *testing.T) {
	excsat, _ := drdaChain(t)
	assert.Equal(t, uint16(20), excsat.Length())
	assert.Equal(t, uint16(14), excsat.DDMLength())

	tcp := NewTCP(40000, 50000, 1, 1, TCPFlagPSH|TCPFlagACK, 65535)
	tcp.SetPayload(PacketPayload(excsat))
	ip := buildIPv4(t, IPProtocolTCP, tcp)

	root, err := Decode(ip.Bytes(), layers.LinkTypeRaw)
	require.NoError(t, err)
	assert.Equal(t, []LayerType{LayerTypeIPv4, LayerTypeTCP, LayerTypeDRDA, LayerTypeDRDA}, layerTypes(root))
	assert.True(t, ValidChecksums(root))

	ls := Layers(root)
	first, second := ls[2].(*DRDA), ls[3].(*DRDA)
	assert.Equal(t, DDMExcSat, first.CodePoint())
	assert.True(t, first.Chained())
	assert.Equal(t, DRDARequest, first.DSSType())
	assert.Equal(t, uint16(1), first.CorrelationID())
	assert.Equal(t, uint8(0xd0), first.Magic())

	srvnam, ok := first.Parameter(DDMSrvNam)
	require.True(t, ok)
	assert.Equal(t, "DB2SRV", srvnam.Text())
	assert.Equal(t, []byte{0xc4, 0xc2, 0xf2, 0xe2, 0xd9, 0xe5}, srvnam.Data())
	assert.Equal(t, `SRVNAM("DB2SRV")`, srvnam.String())

	assert.Equal(t, DDMAccSec, second.CodePoint())
	assert.False(t, second.Chained())
	secmec, ok := second.Parameter(DDMSecMec)
	require.True(t, ok)
	assert.Equal(t, "SECMEC(0003)", secmec.String())

	root, err = Decode(ip.Bytes(), layers.LinkTypeRaw, WithDRDASniffing(false))
	require.NoError(t, err)
	assert.Equal(t, []LayerType{LayerTypeIPv4, LayerTypeTCP}, layerTypes(root))
	got, _ := Extract[*TCP](root)
	assert.Equal(t, excsat.Bytes(), got.PayloadData())
}

func TestDRDAOtherTCPPayloadStaysOpaque(t *testing.T) {
	tcp := NewTCP(40000, 80, 1, 1, TCPFlagPSH|TCPFlagACK, 65535)
	tcp.SetPayload(BytesPayload([]byte("GET / HTTP/1.1\r\nHost: example\r\n\r\n")))
	ip := buildIPv4(t, IPProtocolTCP, tcp)

	root, err := Decode(ip.Bytes(), layers.LinkTypeRaw)
	require.NoError(t, err)
	assert.Equal(t, []LayerType{LayerTypeIPv4, LayerTypeTCP}, layerTypes(root))
}

func TestDRDASegmentedAndTruncated(t *testing.T) {
	excsat, _ := drdaChain(t)
	data := excsat.Bytes()

	// The second DSS is cut short and keeps the bytes present.
	p, err := DecodeLayer(viewOf(data[:len(data)-3]), LayerTypeDRDA)
	require.NoError(t, err)
	ls := Layers(p)
	require.Len(t, ls, 2)
	assert.Equal(t, 13, ls[1].Len())

	dss := []byte{
		0x00, 0x0e, 0xd0, 0x01, 0x00, 0x01, // length 14, request, correlation 1
		0x00, 0x08, 0x10, 0x41, // EXCSAT
		0x00, 0x08, 0x11, 0x6d, // SRVNAM claiming 8 bytes
	}
	p, err = DecodeLayer(viewOf(dss), LayerTypeDRDA)
	require.NoError(t, err)
	params := p.(*DRDA).Parameters()
	require.Len(t, params, 1)
	assert.Nil(t, params[0].Data())

	_, err = DecodeLayer(viewOf(dss), LayerTypeDRDA, WithStrict(true))
	assert.True(t, errors.Is(err, ErrTruncatedOption))

	dss[drdaLength2Pos+1] = 0x09
	_, err = DecodeLayer(viewOf(dss), LayerTypeDRDA)
	assert.True(t, errors.Is(err, ErrInvalidLength))
}
