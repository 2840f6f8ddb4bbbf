// Package summary flattens a decoded packet tree into the L2-L4 fields most
// consumers index on.
package summary

import (
	"fmt"
	"net"
	"net/netip"
	"strings"

	"firestige.xyz/pktkit/pkg/packet"
)

// Ethernet is the link-layer part of a summary.
type Ethernet struct {
	SrcMAC    net.HardwareAddr
	DstMAC    net.HardwareAddr
	EtherType packet.EtherType // after the last VLAN tag
	VLANs     []uint16         // outermost first; QinQ gives two
}

// IP describes the outer network layer. Inner addresses are set when the
// packet carries a second IP layer (GRE or L2TP tunnels).
type IP struct {
	Version  uint8
	SrcIP    netip.Addr
	DstIP    netip.Addr
	Protocol packet.IPProtocol
	TTL      uint8
	TotalLen uint16

	InnerSrcIP netip.Addr
	InnerDstIP netip.Addr
}

// Transport is the innermost TCP or UDP header. TCP fields are zero for UDP.
type Transport struct {
	SrcPort  uint16
	DstPort  uint16
	Protocol packet.IPProtocol
	TCPFlags packet.TCPFlags
	SeqNum   uint32
	AckNum   uint32
}

type Summary struct {
	Ethernet  Ethernet
	IP        IP
	Transport Transport
	// Payload aliases the bytes after the innermost transport header.
	Payload []byte
	// Application is the innermost decoded layer above transport, if any.
	Application packet.LayerType
	Layers      []packet.LayerType
}

// Summarize walks root once and fills a Summary. Missing layers leave their
// section zero.
func Summarize(root packet.Packet) Summary {
	var s Summary
	var network, transport packet.Packet
	for _, p := range packet.Layers(root) {
		s.Layers = append(s.Layers, p.LayerType())
		switch l := p.(type) {
		case *packet.Ethernet:
			if s.Ethernet.SrcMAC == nil {
				s.Ethernet.SrcMAC, s.Ethernet.DstMAC = l.SourceMAC(), l.DestinationMAC()
				s.Ethernet.EtherType = l.EtherType()
			}
		case *packet.LinuxSLL:
			if s.Ethernet.SrcMAC == nil {
				s.Ethernet.SrcMAC = l.Address()
				s.Ethernet.EtherType = l.Protocol()
			}
		case *packet.Dot1Q:
			s.Ethernet.VLANs = append(s.Ethernet.VLANs, l.VLANIdentifier())
			s.Ethernet.EtherType = l.EtherType()
		case *packet.IPv4:
			if network == nil {
				s.IP = IP{
					Version:  4,
					SrcIP:    l.SourceAddress(),
					DstIP:    l.DestinationAddress(),
					Protocol: l.Protocol(),
					TTL:      l.TTL(),
					TotalLen: l.TotalLength(),
				}
			} else {
				s.IP.InnerSrcIP, s.IP.InnerDstIP = l.SourceAddress(), l.DestinationAddress()
			}
			network = p
		case *packet.IPv6:
			if network == nil {
				s.IP = IP{
					Version:  6,
					SrcIP:    l.SourceAddress(),
					DstIP:    l.DestinationAddress(),
					Protocol: l.Protocol(),
					TTL:      l.HopLimit(),
					TotalLen: uint16(l.Len()),
				}
			} else {
				s.IP.InnerSrcIP, s.IP.InnerDstIP = l.SourceAddress(), l.DestinationAddress()
			}
			network = p
		case *packet.TCP:
			s.Transport = Transport{
				SrcPort:  l.SourcePort(),
				DstPort:  l.DestinationPort(),
				Protocol: packet.IPProtocolTCP,
				TCPFlags: l.Flags(),
				SeqNum:   l.Sequence(),
				AckNum:   l.Acknowledgment(),
			}
			transport = p
			s.Application = packet.LayerTypeUnknown
		case *packet.UDP:
			s.Transport = Transport{
				SrcPort:  l.SourcePort(),
				DstPort:  l.DestinationPort(),
				Protocol: packet.IPProtocolUDP,
			}
			transport = p
			s.Application = packet.LayerTypeUnknown
		default:
			if transport != nil && s.Application == packet.LayerTypeUnknown {
				s.Application = p.LayerType()
			}
		}
	}
	if transport != nil {
		s.Payload = transport.Payload().Bytes()
	}
	return s
}

// String renders the summary on one line, e.g.
// "10.0.0.1:5353 > 10.0.0.2:53 UDP len=32 vlan=[100]".
func (s Summary) String() string {
	var b strings.Builder
	switch {
	case len(s.Layers) == 0:
		return "empty"
	case s.IP.Version == 0:
		fmt.Fprintf(&b, "%s > %s %s", s.Ethernet.SrcMAC, s.Ethernet.DstMAC, s.Layers[len(s.Layers)-1])
	case s.Transport.Protocol == 0:
		fmt.Fprintf(&b, "%s > %s %s", s.IP.SrcIP, s.IP.DstIP, s.IP.Protocol)
	default:
		fmt.Fprintf(&b, "%s > %s %s",
			netip.AddrPortFrom(s.IP.SrcIP, s.Transport.SrcPort),
			netip.AddrPortFrom(s.IP.DstIP, s.Transport.DstPort),
			s.Transport.Protocol)
		if s.Transport.Protocol == packet.IPProtocolTCP {
			fmt.Fprintf(&b, " [%s] seq=%d ack=%d", s.Transport.TCPFlags, s.Transport.SeqNum, s.Transport.AckNum)
		}
		fmt.Fprintf(&b, " len=%d", len(s.Payload))
	}
	if s.IP.InnerSrcIP.IsValid() {
		fmt.Fprintf(&b, " inner=%s>%s", s.IP.InnerSrcIP, s.IP.InnerDstIP)
	}
	if len(s.Ethernet.VLANs) > 0 {
		fmt.Fprintf(&b, " vlan=%v", s.Ethernet.VLANs)
	}
	if s.Application != packet.LayerTypeUnknown {
		fmt.Fprintf(&b, " %s", s.Application)
	}
	return b.String()
}
