package packet

import (
	"encoding/hex"
	"fmt"
	"strings"
)

func formatLayer(p Packet, verbose bool) string {
	var sb strings.Builder
	writeLayer(&sb, p, verbose, 0)
	return strings.TrimRight(sb.String(), "\n")
}

func writeLayer(sb *strings.Builder, p Packet, verbose bool, indent int) {
	pad := strings.Repeat("  ", indent)
	fields := p.Fields(verbose)
	if !verbose {
		sb.WriteString(pad)
		sb.WriteString("[")
		sb.WriteString(p.LayerType().String())
		for _, f := range fields {
			sb.WriteString(" ")
			sb.WriteString(f.String())
		}
		sb.WriteString("]\n")
		return
	}
	fmt.Fprintf(sb, "%s%s (%d bytes, header %d)\n", pad, p.LayerType(), p.Len(), p.HeaderView().Len())
	for _, f := range fields {
		fmt.Fprintf(sb, "%s  %-24s %v\n", pad, f.Name, f.Value)
	}
}

// Format renders root and every nested layer, one layer per line. In verbose
// mode every field goes on its own line and opaque payloads are hex dumped.
func Format(root Packet, verbose bool) string {
	var sb strings.Builder
	depth := 0
	var last Packet
	for p := root; p != nil; p = p.Payload().Packet() {
		writeLayer(&sb, p, verbose, depth)
		last = p
		if verbose {
			depth++
		}
	}
	if last != nil {
		if data := last.Payload(); data.Kind() == PayloadData && data.Len() > 0 {
			if verbose {
				fmt.Fprintf(&sb, "%sPayload (%d bytes)\n", strings.Repeat("  ", depth), data.Len())
				for _, line := range strings.Split(strings.TrimRight(hex.Dump(data.Bytes()), "\n"), "\n") {
					fmt.Fprintf(&sb, "%s  %s\n", strings.Repeat("  ", depth), line)
				}
			} else {
				fmt.Fprintf(&sb, "[Payload %d bytes]\n", data.Len())
			}
		}
	}
	return sb.String()
}
