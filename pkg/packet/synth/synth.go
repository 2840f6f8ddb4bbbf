// Package synth builds well-formed synthetic packets for tests, benchmarks and
// the pktkit synth command. Every builder draws addresses, ports and payloads
// from a seeded generator, so a given seed always yields the same frames.
package synth

import (
	"fmt"
	"math/rand/v2"
	"net"
	"net/netip"
	"sort"
	"time"

	"firestige.xyz/pktkit/pkg/packet"
)

// Builder produces packets from a deterministic random source. It is not safe
// for concurrent use.
type Builder struct {
	rng *rand.Rand
	// PayloadSize is the length of random application payloads.
	PayloadSize int
}

func New(seed uint64) *Builder {
	return &Builder{
		rng:         rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		PayloadSize: 32,
	}
}

// MAC returns a locally administered unicast address.
func (b *Builder) MAC() net.HardwareAddr {
	mac := make(net.HardwareAddr, 6)
	for i := range mac {
		mac[i] = byte(b.rng.UintN(256))
	}
	mac[0] = mac[0]&^0x01 | 0x02
	return mac
}

// IPv4Addr returns a host address in 10.0.0.0/8.
func (b *Builder) IPv4Addr() netip.Addr {
	return netip.AddrFrom4([4]byte{10, byte(b.rng.UintN(256)), byte(b.rng.UintN(256)), byte(1 + b.rng.UintN(254))})
}

// IPv6Addr returns an address in 2001:db8::/32.
func (b *Builder) IPv6Addr() netip.Addr {
	var a [16]byte
	a[0], a[1], a[2], a[3] = 0x20, 0x01, 0x0d, 0xb8
	for i := 4; i < 16; i++ {
		a[i] = byte(b.rng.UintN(256))
	}
	return netip.AddrFrom16(a)
}

// Port returns an ephemeral port.
func (b *Builder) Port() uint16 { return uint16(49152 + b.rng.UintN(16384)) }

func (b *Builder) Bytes(n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = byte(b.rng.UintN(256))
	}
	return out
}

func (b *Builder) payload() packet.Payload { return packet.BytesPayload(b.Bytes(b.PayloadSize)) }

func (b *Builder) Ethernet(t packet.EtherType, inner packet.Packet) (*packet.Ethernet, error) {
	eth, err := packet.NewEthernet(b.MAC(), b.MAC(), t)
	if err != nil {
		return nil, err
	}
	eth.SetPayload(packet.PacketPayload(inner))
	return eth, nil
}

func (b *Builder) Dot1Q(t packet.EtherType, inner packet.Packet) (*packet.Dot1Q, error) {
	q, err := packet.NewDot1Q(uint8(b.rng.UintN(8)), false, uint16(1+b.rng.UintN(4094)), t)
	if err != nil {
		return nil, err
	}
	q.SetPayload(packet.PacketPayload(inner))
	return q, nil
}

// ARP returns a request from a random host for a random address.
func (b *Builder) ARP() (*packet.ARP, error) {
	return packet.NewARP(packet.ARPRequest, b.MAC(), b.IPv4Addr(), make(net.HardwareAddr, 6), b.IPv4Addr())
}

func (b *Builder) IPv4(proto packet.IPProtocol, inner packet.Packet) (*packet.IPv4, error) {
	ip, err := packet.NewIPv4(b.IPv4Addr(), b.IPv4Addr(), proto)
	if err != nil {
		return nil, err
	}
	ip.SetID(uint16(b.rng.UintN(1 << 16)))
	ip.SetPayload(packet.PacketPayload(inner))
	return ip, nil
}

func (b *Builder) IPv6(next packet.IPProtocol, inner packet.Packet) (*packet.IPv6, error) {
	ip, err := packet.NewIPv6(b.IPv6Addr(), b.IPv6Addr(), next)
	if err != nil {
		return nil, err
	}
	ip.SetFlowLabel(b.rng.Uint32() & 0xfffff)
	ip.SetPayload(packet.PacketPayload(inner))
	return ip, nil
}

// TCP returns a PSH/ACK segment with MSS and timestamp options.
func (b *Builder) TCP(dstPort uint16, payload packet.Payload) (*packet.TCP, error) {
	t := packet.NewTCP(b.Port(), dstPort, b.rng.Uint32(), b.rng.Uint32(), packet.TCPFlagPSH|packet.TCPFlagACK, 64240)
	if err := t.SetOptions(packet.TCPOptionMSS(1460), packet.TCPOptionTimestamps(b.rng.Uint32(), 0)); err != nil {
		return nil, err
	}
	t.SetPayload(payload)
	return t, nil
}

func (b *Builder) UDP(dstPort uint16, payload packet.Payload) *packet.UDP {
	u := packet.NewUDP(b.Port(), dstPort)
	u.SetPayload(payload)
	return u
}

func (b *Builder) ICMPv4Echo() (*packet.ICMPv4, error) {
	m, err := packet.NewICMPv4(packet.ICMPv4EchoRequest, uint16(b.rng.UintN(1<<16)), uint16(b.rng.UintN(1<<16)))
	if err != nil {
		return nil, err
	}
	m.SetPayload(b.payload())
	return m, nil
}

func (b *Builder) ICMPv6Echo() (*packet.ICMPv6, error) {
	m, err := packet.NewICMPv6(packet.ICMPv6TypeEchoRequest, 0)
	if err != nil {
		return nil, err
	}
	echo := packet.NewICMPv6Echo(uint16(b.rng.UintN(1<<16)), uint16(b.rng.UintN(1<<16)))
	echo.SetPayload(b.payload())
	m.SetPayload(packet.PacketPayload(echo))
	return m, nil
}

// NeighborSolicitation returns the ICMPv6 message and its solicited-node
// multicast destination.
func (b *Builder) NeighborSolicitation(src net.HardwareAddr) (*packet.ICMPv6, netip.Addr, error) {
	target := b.IPv6Addr()
	m, err := packet.NewICMPv6(packet.ICMPv6TypeNeighborSolicitation, 0)
	if err != nil {
		return nil, netip.Addr{}, err
	}
	m.SetPayload(packet.PacketPayload(packet.NewNDPNeighborSolicitation(target,
		packet.NewNDPLinkLayerAddressOption(packet.NDPOptionSourceLinkLayerAddress, src))))
	t := target.As16()
	dst := netip.AddrFrom16([16]byte{0xff, 0x02, 10: 0, 11: 0x01, 12: 0xff, 13: t[13], 14: t[14], 15: t[15]})
	return m, dst, nil
}

// GRE returns a keyed GRE packet carrying IPv4/UDP.
func (b *Builder) GRE() (*packet.GRE, error) {
	inner, err := b.IPv4(packet.IPProtocolUDP, b.UDP(b.Port(), b.payload()))
	if err != nil {
		return nil, err
	}
	g := packet.NewGRE(packet.EtherTypeIPv4)
	g.SetKey(b.rng.Uint32())
	g.SetPayload(packet.PacketPayload(inner))
	return g, nil
}

// L2TP returns a data message carrying PPP/IPv4/UDP.
func (b *Builder) L2TP() (*packet.L2TP, error) {
	inner, err := b.IPv4(packet.IPProtocolUDP, b.UDP(b.Port(), b.payload()))
	if err != nil {
		return nil, err
	}
	ppp := packet.NewPPP(packet.PPPProtocolIPv4, true)
	ppp.SetPayload(packet.PacketPayload(inner))
	l := packet.NewL2TP(uint16(1+b.rng.UintN(0xfffe)), uint16(1+b.rng.UintN(0xfffe)), true)
	l.SetPayload(packet.PacketPayload(ppp))
	return l, nil
}

func (b *Builder) PPPoESession() (*packet.PPPoE, error) {
	inner, err := b.IPv4(packet.IPProtocolUDP, b.UDP(b.Port(), b.payload()))
	if err != nil {
		return nil, err
	}
	ppp := packet.NewPPP(packet.PPPProtocolIPv4, false)
	ppp.SetPayload(packet.PacketPayload(inner))
	p := packet.NewPPPoESession(uint16(1 + b.rng.UintN(0xfffe)))
	p.SetPayload(packet.PacketPayload(ppp))
	return p, nil
}

// PPPoEDiscovery returns a PADI asking for any service.
func (b *Builder) PPPoEDiscovery() *packet.PPPoE {
	return packet.NewPPPoEDiscovery(packet.PPPoECodePADI, 0,
		packet.NewPPPoETag(packet.PPPoETagServiceName, nil),
		packet.NewPPPoETag(packet.PPPoETagHostUniq, b.Bytes(4)),
	)
}

func (b *Builder) WakeOnLan() (*packet.WakeOnLan, error) {
	return packet.NewWakeOnLan(b.MAC(), nil)
}

// DHCPv4 returns a Discover from client.
func (b *Builder) DHCPv4(client net.HardwareAddr) *packet.DHCPv4 {
	m := packet.NewDHCPv4(packet.DHCPv4Request, b.rng.Uint32(), client,
		packet.NewDHCPv4MessageTypeOption(packet.DHCPv4MsgDiscover),
		packet.NewDHCPv4ParameterRequestOption(packet.DHCPv4OptSubnetMask, packet.DHCPv4OptRouter, packet.DHCPv4OptDNS),
		packet.NewDHCPv4DurationOption(packet.DHCPv4OptLeaseTime, time.Hour),
	)
	m.SetBroadcast(true)
	return m
}

var ospfMask = netip.AddrFrom4([4]byte{255, 255, 255, 0})

func (b *Builder) OSPFHello() *packet.OSPFv2Hello {
	return packet.NewOSPFv2Hello(b.IPv4Addr(), netip.IPv4Unspecified(), ospfMask, 1, b.IPv4Addr())
}

// OSPFLinkStateUpdate carries one router LSA and one network LSA.
func (b *Builder) OSPFLinkStateUpdate() *packet.OSPFv2LinkStateUpdate {
	router, peer := b.IPv4Addr(), b.IPv4Addr()
	rlsa := packet.NewOSPFRouterLSA(router, 0, 0,
		packet.OSPFRouterLink{ID: peer, Data: b.IPv4Addr(), Type: packet.OSPFLinkPointToPoint, Metric: 10})
	nlsa := packet.NewOSPFNetworkLSA(b.IPv4Addr(), router, ospfMask, 0, router, peer)
	return packet.NewOSPFv2LinkStateUpdate(router, netip.IPv4Unspecified(), rlsa, nlsa)
}

// DRDA returns an EXCSAT chained to an ACCSEC, as a client opens a session.
func (b *Builder) DRDA() (*packet.DRDA, error) {
	srvnam, err := packet.NewDRDATextParameter(packet.DDMSrvNam, "PKTKIT")
	if err != nil {
		return nil, err
	}
	extnam, err := packet.NewDRDATextParameter(packet.DDMExtNam, fmt.Sprintf("pktkit-%04x", b.rng.UintN(1<<16)))
	if err != nil {
		return nil, err
	}
	excsat := packet.NewDRDA(packet.DDMExcSat, packet.DRDARequest, 1, extnam, srvnam)
	accsec := packet.NewDRDA(packet.DDMAccSec, packet.DRDARequest, 2,
		packet.NewDRDAParameter(packet.DDMSecMec, []byte{0x00, 0x03}))
	excsat.SetChained(true)
	excsat.SetPayload(packet.PacketPayload(accsec))
	return excsat, nil
}

// Kind names a complete frame layout that Frame can build.
type Kind string

const (
	KindUDP            Kind = "udp"
	KindTCP            Kind = "tcp"
	KindICMPv4         Kind = "icmpv4"
	KindICMPv6         Kind = "icmpv6"
	KindNDP            Kind = "ndp"
	KindARP            Kind = "arp"
	KindVLAN           Kind = "vlan"
	KindGRE            Kind = "gre"
	KindL2TP           Kind = "l2tp"
	KindPPPoE          Kind = "pppoe"
	KindPPPoEDiscovery Kind = "pppoe-discovery"
	KindWakeOnLan      Kind = "wol"
	KindDHCPv4         Kind = "dhcpv4"
	KindOSPF           Kind = "ospf"
	KindOSPFUpdate     Kind = "ospf-lsu"
	KindDRDA           Kind = "drda"
)

// drdaPort is the well-known DRDA server port.
const drdaPort = 446

var frameBuilders = map[Kind]func(*Builder) (*packet.Ethernet, error){
	KindUDP: func(b *Builder) (*packet.Ethernet, error) {
		return b.overIPv4(packet.IPProtocolUDP, b.UDP(b.Port(), b.payload()))
	},
	KindTCP: func(b *Builder) (*packet.Ethernet, error) {
		t, err := b.TCP(443, b.payload())
		if err != nil {
			return nil, err
		}
		return b.overIPv4(packet.IPProtocolTCP, t)
	},
	KindICMPv4: func(b *Builder) (*packet.Ethernet, error) {
		m, err := b.ICMPv4Echo()
		if err != nil {
			return nil, err
		}
		return b.overIPv4(packet.IPProtocolICMPv4, m)
	},
	KindICMPv6: func(b *Builder) (*packet.Ethernet, error) {
		m, err := b.ICMPv6Echo()
		if err != nil {
			return nil, err
		}
		ip, err := b.IPv6(packet.IPProtocolICMPv6, m)
		if err != nil {
			return nil, err
		}
		return b.Ethernet(packet.EtherTypeIPv6, ip)
	},
	KindNDP: func(b *Builder) (*packet.Ethernet, error) {
		src := b.MAC()
		m, dst, err := b.NeighborSolicitation(src)
		if err != nil {
			return nil, err
		}
		ip, err := b.IPv6(packet.IPProtocolICMPv6, m)
		if err != nil {
			return nil, err
		}
		ip.SetDestinationAddress(dst)
		ip.SetHopLimit(255)
		d16 := dst.As16()
		eth, err := packet.NewEthernet(src, net.HardwareAddr{0x33, 0x33, d16[12], d16[13], d16[14], d16[15]}, packet.EtherTypeIPv6)
		if err != nil {
			return nil, err
		}
		eth.SetPayload(packet.PacketPayload(ip))
		return eth, nil
	},
	KindARP: func(b *Builder) (*packet.Ethernet, error) {
		a, err := b.ARP()
		if err != nil {
			return nil, err
		}
		eth, err := packet.NewEthernet(a.SenderHardwareAddress(), net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}, packet.EtherTypeARP)
		if err != nil {
			return nil, err
		}
		eth.SetPayload(packet.PacketPayload(a))
		return eth, nil
	},
	KindVLAN: func(b *Builder) (*packet.Ethernet, error) {
		ip, err := b.IPv4(packet.IPProtocolUDP, b.UDP(b.Port(), b.payload()))
		if err != nil {
			return nil, err
		}
		q, err := b.Dot1Q(packet.EtherTypeIPv4, ip)
		if err != nil {
			return nil, err
		}
		return b.Ethernet(packet.EtherTypeDot1Q, q)
	},
	KindGRE: func(b *Builder) (*packet.Ethernet, error) {
		g, err := b.GRE()
		if err != nil {
			return nil, err
		}
		return b.overIPv4(packet.IPProtocolGRE, g)
	},
	KindL2TP: func(b *Builder) (*packet.Ethernet, error) {
		l, err := b.L2TP()
		if err != nil {
			return nil, err
		}
		u := packet.NewUDP(packet.UDPPortL2TP, packet.UDPPortL2TP)
		u.SetPayload(packet.PacketPayload(l))
		return b.overIPv4(packet.IPProtocolUDP, u)
	},
	KindPPPoE: func(b *Builder) (*packet.Ethernet, error) {
		p, err := b.PPPoESession()
		if err != nil {
			return nil, err
		}
		return b.Ethernet(packet.EtherTypePPPoESession, p)
	},
	KindPPPoEDiscovery: func(b *Builder) (*packet.Ethernet, error) {
		return b.Ethernet(packet.EtherTypePPPoEDiscovery, b.PPPoEDiscovery())
	},
	KindWakeOnLan: func(b *Builder) (*packet.Ethernet, error) {
		w, err := b.WakeOnLan()
		if err != nil {
			return nil, err
		}
		return b.Ethernet(packet.EtherTypeWakeOnLan, w)
	},
	KindDHCPv4: func(b *Builder) (*packet.Ethernet, error) {
		client := b.MAC()
		u := packet.NewUDP(packet.DHCPv4ClientPort, packet.DHCPv4ServerPort)
		u.SetPayload(packet.PacketPayload(b.DHCPv4(client)))
		ip, err := packet.NewIPv4(netip.IPv4Unspecified(), netip.AddrFrom4([4]byte{255, 255, 255, 255}), packet.IPProtocolUDP)
		if err != nil {
			return nil, err
		}
		ip.SetPayload(packet.PacketPayload(u))
		eth, err := packet.NewEthernet(client, net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}, packet.EtherTypeIPv4)
		if err != nil {
			return nil, err
		}
		eth.SetPayload(packet.PacketPayload(ip))
		return eth, nil
	},
	KindOSPF: func(b *Builder) (*packet.Ethernet, error) {
		return b.overIPv4(packet.IPProtocolOSPF, b.OSPFHello())
	},
	KindOSPFUpdate: func(b *Builder) (*packet.Ethernet, error) {
		return b.overIPv4(packet.IPProtocolOSPF, b.OSPFLinkStateUpdate())
	},
	KindDRDA: func(b *Builder) (*packet.Ethernet, error) {
		d, err := b.DRDA()
		if err != nil {
			return nil, err
		}
		t, err := b.TCP(drdaPort, packet.PacketPayload(d))
		if err != nil {
			return nil, err
		}
		return b.overIPv4(packet.IPProtocolTCP, t)
	},
}

func (b *Builder) overIPv4(proto packet.IPProtocol, inner packet.Packet) (*packet.Ethernet, error) {
	ip, err := b.IPv4(proto, inner)
	if err != nil {
		return nil, err
	}
	return b.Ethernet(packet.EtherTypeIPv4, ip)
}

// Kinds lists every kind Frame accepts, sorted by name.
func Kinds() []Kind {
	out := make([]Kind, 0, len(frameBuilders))
	for k := range frameBuilders {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if _, ok := frameBuilders[k]; !ok {
		return "", fmt.Errorf("synth: unknown frame kind %q (known: %v)", s, Kinds())
	}
	return k, nil
}

// Frame builds a complete Ethernet frame of the given kind with lengths and
// checksums filled in.
func (b *Builder) Frame(kind Kind) (*packet.Ethernet, error) {
	build, ok := frameBuilders[kind]
	if !ok {
		return nil, fmt.Errorf("synth: unknown frame kind %q", kind)
	}
	eth, err := build(b)
	if err != nil {
		return nil, fmt.Errorf("synth: build %s frame: %w", kind, err)
	}
	packet.UpdateCalculatedValues(eth)
	return eth, nil
}
