package capture

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"firestige.xyz/pktkit/pkg/packet"
)

// Stats counts frames read from a capture file by their outcome. Counters are
// updated atomically so a progress reporter may read them concurrently.
type Stats struct {
	Source    string
	LinkType  string
	StartTime time.Time

	TotalPackets    int64
	FailedPackets   int64
	BadChecksums    int64
	TCPPackets      int64
	UDPPackets      int64
	ICMPPackets     int64
	OtherPackets    int64
	FragmentsHeld   int64
	ReassembledPkts int64
}

func NewStats(source, linkType string) *Stats {
	return &Stats{Source: source, LinkType: linkType, StartTime: time.Now()}
}

// Record classifies a decoded frame by the innermost transport it carries.
func (s *Stats) Record(root packet.Packet) {
	atomic.AddInt64(&s.TotalPackets, 1)
	if !packet.ValidChecksums(root) {
		atomic.AddInt64(&s.BadChecksums, 1)
	}

	var kind packet.LayerType
	for _, p := range packet.Layers(root) {
		switch p.LayerType() {
		case packet.LayerTypeTCP, packet.LayerTypeUDP, packet.LayerTypeICMPv4, packet.LayerTypeICMPv6:
			kind = p.LayerType()
		}
	}
	switch kind {
	case packet.LayerTypeTCP:
		atomic.AddInt64(&s.TCPPackets, 1)
	case packet.LayerTypeUDP:
		atomic.AddInt64(&s.UDPPackets, 1)
	case packet.LayerTypeICMPv4, packet.LayerTypeICMPv6:
		atomic.AddInt64(&s.ICMPPackets, 1)
	default:
		atomic.AddInt64(&s.OtherPackets, 1)
	}
}

// RecordFailure counts a frame that did not decode.
func (s *Stats) RecordFailure() {
	atomic.AddInt64(&s.TotalPackets, 1)
	atomic.AddInt64(&s.FailedPackets, 1)
}

// RecordFragment counts a fragment held for reassembly; complete reports
// whether it finished a datagram.
func (s *Stats) RecordFragment(complete bool) {
	if complete {
		atomic.AddInt64(&s.ReassembledPkts, 1)
		return
	}
	atomic.AddInt64(&s.FragmentsHeld, 1)
}

// FailureRate is the percentage of frames that failed to decode.
func (s *Stats) FailureRate() float64 {
	total := atomic.LoadInt64(&s.TotalPackets)
	if total == 0 {
		return 0
	}
	return float64(atomic.LoadInt64(&s.FailedPackets)) / float64(total) * 100
}

// Print writes the counters to w.
func (s *Stats) Print(w io.Writer) {
	fmt.Fprintln(w, "[DECODE STATS]")
	fmt.Fprintf(w, "  Source:            %s (%s)\n", s.Source, s.LinkType)
	fmt.Fprintf(w, "  Runtime:           %v\n", time.Since(s.StartTime).Truncate(time.Millisecond))
	fmt.Fprintf(w, "  Total Packets:     %d\n", atomic.LoadInt64(&s.TotalPackets))
	fmt.Fprintf(w, "  Failed Packets:    %d\n", atomic.LoadInt64(&s.FailedPackets))
	fmt.Fprintf(w, "  Failure Rate:      %.2f%%\n", s.FailureRate())
	fmt.Fprintf(w, "  Bad Checksums:     %d\n", atomic.LoadInt64(&s.BadChecksums))
	fmt.Fprintf(w, "  TCP Packets:       %d\n", atomic.LoadInt64(&s.TCPPackets))
	fmt.Fprintf(w, "  UDP Packets:       %d\n", atomic.LoadInt64(&s.UDPPackets))
	fmt.Fprintf(w, "  ICMP Packets:      %d\n", atomic.LoadInt64(&s.ICMPPackets))
	fmt.Fprintf(w, "  Other Packets:     %d\n", atomic.LoadInt64(&s.OtherPackets))
	if held, done := atomic.LoadInt64(&s.FragmentsHeld), atomic.LoadInt64(&s.ReassembledPkts); held+done > 0 {
		fmt.Fprintf(w, "  Fragments Held:    %d\n", held)
		fmt.Fprintf(w, "  Reassembled:       %d\n", done)
	}
}
