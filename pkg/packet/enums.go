package packet

import (
	"fmt"

	"firestige.xyz/pktkit/pkg/view"
)

// EtherType is the protocol discriminator of Ethernet II, 802.1Q, Linux SLL and GRE.
type EtherType uint16

const (
	EtherTypeIPv4                        EtherType = 0x0800
	EtherTypeARP                         EtherType = 0x0806
	EtherTypeWakeOnLan                   EtherType = 0x0842
	EtherTypeTransparentEthernetBridging EtherType = 0x6558
	EtherTypeReverseARP                  EtherType = 0x8035
	EtherTypeDot1Q                       EtherType = 0x8100
	EtherTypeIPv6                        EtherType = 0x86dd
	EtherTypePPP                         EtherType = 0x880b
	EtherTypeMPLSUnicast                 EtherType = 0x8847
	EtherTypePPPoEDiscovery              EtherType = 0x8863
	EtherTypePPPoESession                EtherType = 0x8864
	EtherTypeQinQ                        EtherType = 0x88a8
	EtherTypeLLDP                        EtherType = 0x88cc
)

// etherTypeMinimum separates 802.3 length values from EtherTypes.
const etherTypeMinimum = 0x0600

var etherTypeNames = map[EtherType]string{
	EtherTypeIPv4:                        "IPv4",
	EtherTypeARP:                         "ARP",
	EtherTypeWakeOnLan:                   "WakeOnLan",
	EtherTypeTransparentEthernetBridging: "TransparentEthernetBridging",
	EtherTypeReverseARP:                  "ReverseARP",
	EtherTypeDot1Q:                       "Dot1Q",
	EtherTypeIPv6:                        "IPv6",
	EtherTypePPP:                         "PPP",
	EtherTypeMPLSUnicast:                 "MPLSUnicast",
	EtherTypePPPoEDiscovery:              "PPPoEDiscovery",
	EtherTypePPPoESession:                "PPPoESession",
	EtherTypeQinQ:                        "QinQ",
	EtherTypeLLDP:                        "LLDP",
}

func (t EtherType) String() string {
	if s, ok := etherTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("EtherType(0x%04x)", uint16(t))
}

// IPProtocol is the IPv4 protocol / IPv6 next-header value.
type IPProtocol uint8

const (
	IPProtocolIPv6HopByHop    IPProtocol = 0
	IPProtocolICMPv4          IPProtocol = 1
	IPProtocolIGMP            IPProtocol = 2
	IPProtocolIPv4            IPProtocol = 4
	IPProtocolTCP             IPProtocol = 6
	IPProtocolUDP             IPProtocol = 17
	IPProtocolIPv6            IPProtocol = 41
	IPProtocolIPv6Routing     IPProtocol = 43
	IPProtocolIPv6Fragment    IPProtocol = 44
	IPProtocolGRE             IPProtocol = 47
	IPProtocolESP             IPProtocol = 50
	IPProtocolAH              IPProtocol = 51
	IPProtocolICMPv6          IPProtocol = 58
	IPProtocolNoNextHeader    IPProtocol = 59
	IPProtocolIPv6Destination IPProtocol = 60
	IPProtocolOSPF            IPProtocol = 89
	IPProtocolSCTP            IPProtocol = 132
)

var ipProtocolNames = map[IPProtocol]string{
	IPProtocolIPv6HopByHop:    "IPv6HopByHop",
	IPProtocolICMPv4:          "ICMPv4",
	IPProtocolIGMP:            "IGMP",
	IPProtocolIPv4:            "IPv4",
	IPProtocolTCP:             "TCP",
	IPProtocolUDP:             "UDP",
	IPProtocolIPv6:            "IPv6",
	IPProtocolIPv6Routing:     "IPv6Routing",
	IPProtocolIPv6Fragment:    "IPv6Fragment",
	IPProtocolGRE:             "GRE",
	IPProtocolESP:             "ESP",
	IPProtocolAH:              "AH",
	IPProtocolICMPv6:          "ICMPv6",
	IPProtocolNoNextHeader:    "NoNextHeader",
	IPProtocolIPv6Destination: "IPv6Destination",
	IPProtocolOSPF:            "OSPF",
	IPProtocolSCTP:            "SCTP",
}

func (p IPProtocol) String() string {
	if s, ok := ipProtocolNames[p]; ok {
		return s
	}
	return fmt.Sprintf("IPProtocol(%d)", uint8(p))
}

// PPPProtocol is the PPP protocol field (RFC 1661).
type PPPProtocol uint16

const (
	PPPProtocolIPv4 PPPProtocol = 0x0021
	PPPProtocolIPv6 PPPProtocol = 0x0057
	PPPProtocolIPCP PPPProtocol = 0x8021
	PPPProtocolLCP  PPPProtocol = 0xc021
	PPPProtocolPAP  PPPProtocol = 0xc023
	PPPProtocolCHAP PPPProtocol = 0xc223
)

var pppProtocolNames = map[PPPProtocol]string{
	PPPProtocolIPv4: "IPv4",
	PPPProtocolIPv6: "IPv6",
	PPPProtocolIPCP: "IPCP",
	PPPProtocolLCP:  "LCP",
	PPPProtocolPAP:  "PAP",
	PPPProtocolCHAP: "CHAP",
}

func (p PPPProtocol) String() string {
	if s, ok := pppProtocolNames[p]; ok {
		return s
	}
	return fmt.Sprintf("PPPProtocol(0x%04x)", uint16(p))
}

// PPPoECode is the PPPoE code field (RFC 2516).
type PPPoECode uint8

const (
	PPPoECodeSession PPPoECode = 0x00
	PPPoECodePADO    PPPoECode = 0x07
	PPPoECodePADI    PPPoECode = 0x09
	PPPoECodePADR    PPPoECode = 0x19
	PPPoECodePADS    PPPoECode = 0x65
	PPPoECodePADT    PPPoECode = 0xa7
)

var pppoeCodeNames = map[PPPoECode]string{
	PPPoECodeSession: "Session",
	PPPoECodePADO:    "PADO",
	PPPoECodePADI:    "PADI",
	PPPoECodePADR:    "PADR",
	PPPoECodePADS:    "PADS",
	PPPoECodePADT:    "PADT",
}

func (c PPPoECode) String() string {
	if s, ok := pppoeCodeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("PPPoECode(0x%02x)", uint8(c))
}

// decodeFunc decodes one layer from data, whose limit is the end of the region
// available to that layer.
type decodeFunc func(d *decoder, data view.View) (Packet, error)

var (
	etherTypeDecoders   = map[EtherType]decodeFunc{}
	ipProtocolDecoders  = map[IPProtocol]decodeFunc{}
	pppProtocolDecoders = map[PPPProtocol]decodeFunc{}
	pppoeCodeDecoders   = map[PPPoECode]decodeFunc{}
	layerDecoders       = map[LayerType]decodeFunc{}
)

// The tables reference decoders that in turn consult the tables, so they are
// populated here rather than in their declarations.
func init() {
	etherTypeDecoders[EtherTypeIPv4] = decodeIPv4
	etherTypeDecoders[EtherTypeIPv6] = decodeIPv6
	etherTypeDecoders[EtherTypeARP] = decodeARP
	etherTypeDecoders[EtherTypeReverseARP] = decodeARP
	etherTypeDecoders[EtherTypeDot1Q] = decodeDot1Q
	etherTypeDecoders[EtherTypeQinQ] = decodeDot1Q
	etherTypeDecoders[EtherTypePPPoEDiscovery] = decodePPPoE
	etherTypeDecoders[EtherTypePPPoESession] = decodePPPoE
	etherTypeDecoders[EtherTypePPP] = decodePPP
	etherTypeDecoders[EtherTypeTransparentEthernetBridging] = decodeEthernet
	etherTypeDecoders[EtherTypeWakeOnLan] = decodeWakeOnLan

	ipProtocolDecoders[IPProtocolICMPv4] = decodeICMPv4
	ipProtocolDecoders[IPProtocolTCP] = decodeTCP
	ipProtocolDecoders[IPProtocolUDP] = decodeUDP
	ipProtocolDecoders[IPProtocolGRE] = decodeGRE
	ipProtocolDecoders[IPProtocolICMPv6] = decodeICMPv6
	ipProtocolDecoders[IPProtocolOSPF] = decodeOSPFv2
	ipProtocolDecoders[IPProtocolIPv4] = decodeIPv4
	ipProtocolDecoders[IPProtocolIPv6] = decodeIPv6

	pppProtocolDecoders[PPPProtocolIPv4] = decodeIPv4
	pppProtocolDecoders[PPPProtocolIPv6] = decodeIPv6

	pppoeCodeDecoders[PPPoECodeSession] = decodePPP

	udpPortDecoders[UDPPortEcho] = decodeWakeOnLan
	udpPortDecoders[UDPPortDiscard] = decodeWakeOnLan
	udpPortDecoders[UDPPortL2TP] = decodeL2TP

	icmpv6TypeDecoders[ICMPv6TypeEchoRequest] = decodeICMPv6Echo
	icmpv6TypeDecoders[ICMPv6TypeEchoReply] = decodeICMPv6Echo
	icmpv6TypeDecoders[ICMPv6TypeRouterSolicitation] = decodeNDPRouterSolicitation
	icmpv6TypeDecoders[ICMPv6TypeRouterAdvertisement] = decodeNDPRouterAdvertisement
	icmpv6TypeDecoders[ICMPv6TypeNeighborSolicitation] = decodeNDPNeighborSolicitation
	icmpv6TypeDecoders[ICMPv6TypeNeighborAdvertisement] = decodeNDPNeighborAdvertisement
	icmpv6TypeDecoders[ICMPv6TypeRedirect] = decodeNDPRedirect

	ospfTypeDecoders[OSPFTypeHello] = decodeOSPFv2Hello
	ospfTypeDecoders[OSPFTypeDatabaseDescription] = decodeOSPFv2DatabaseDescription
	ospfTypeDecoders[OSPFTypeLinkStateRequest] = decodeOSPFv2LinkStateRequest
	ospfTypeDecoders[OSPFTypeLinkStateUpdate] = decodeOSPFv2LinkStateUpdate
	ospfTypeDecoders[OSPFTypeLinkStateAck] = decodeOSPFv2LinkStateAck

	layerDecoders[LayerTypeEthernet] = decodeEthernet
	layerDecoders[LayerTypeLinuxSLL] = decodeLinuxSLL
	layerDecoders[LayerTypeDot1Q] = decodeDot1Q
	layerDecoders[LayerTypeARP] = decodeARP
	layerDecoders[LayerTypeIPv4] = decodeIPv4
	layerDecoders[LayerTypeIPv6] = decodeIPv6
	layerDecoders[LayerTypeICMPv4] = decodeICMPv4
	layerDecoders[LayerTypeICMPv6] = decodeICMPv6
	layerDecoders[LayerTypeTCP] = decodeTCP
	layerDecoders[LayerTypeUDP] = decodeUDP
	layerDecoders[LayerTypeGRE] = decodeGRE
	layerDecoders[LayerTypeL2TP] = decodeL2TP
	layerDecoders[LayerTypePPPoE] = decodePPPoE
	layerDecoders[LayerTypePPP] = decodePPP
	layerDecoders[LayerTypeWakeOnLan] = decodeWakeOnLan
	layerDecoders[LayerTypeDHCPv4] = decodeDHCPv4
	layerDecoders[LayerTypeDRDA] = decodeDRDA
	layerDecoders[LayerTypeICMPv6Echo] = decodeICMPv6Echo
	layerDecoders[LayerTypeNDPRouterSolicitation] = decodeNDPRouterSolicitation
	layerDecoders[LayerTypeNDPRouterAdvertisement] = decodeNDPRouterAdvertisement
	layerDecoders[LayerTypeNDPNeighborSolicitation] = decodeNDPNeighborSolicitation
	layerDecoders[LayerTypeNDPNeighborAdvertisement] = decodeNDPNeighborAdvertisement
	layerDecoders[LayerTypeNDPRedirect] = decodeNDPRedirect
	for t, layer := range ospfTypeLayers {
		layerDecoders[layer] = ospfTypeDecoders[t]
	}
}
