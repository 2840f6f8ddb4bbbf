package cmd

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/gopacket/layers"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"firestige.xyz/pktkit/internal/capture"
	"firestige.xyz/pktkit/internal/config"
	"firestige.xyz/pktkit/internal/metrics"
	"firestige.xyz/pktkit/internal/reassembly"
	"firestige.xyz/pktkit/pkg/log"
	"firestige.xyz/pktkit/pkg/packet"
	"firestige.xyz/pktkit/pkg/packet/summary"
)

// decodeOptions holds the decode command's flags.
type decodeOptions struct {
	hex        string
	linkType   string
	summary    bool
	verbose    bool
	strict     bool
	reassemble bool
	limit      int
}

var decodeFlags decodeOptions

var decodeCmd = &cobra.Command{
	Use:   "decode [FILE]",
	Short: "Decode frames from a capture file or a hex string",
	Long: `Decode every frame of a pcap or pcapng file and print its layers.

The link type comes from the capture file unless --link-type is given; hex
input uses decoder.default_link_type from the configuration.

Examples:
  pktkit decode trace.pcap                       # one block per frame
  pktkit decode trace.pcap --summary             # one line per frame
  pktkit decode trace.pcap --reassemble -v       # rebuild IPv4 fragments, all fields
  pktkit decode --hex 45000054...  --link-type raw`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ""
		if len(args) == 1 {
			path = args[0]
		}
		return runDecode(cmd.Context(), cfg, decodeFlags, path, cmd.OutOrStdout())
	},
}

func init() {
	f := decodeCmd.Flags()
	f.StringVar(&decodeFlags.hex, "hex", "", "decode a single frame given as hex instead of a file")
	f.StringVarP(&decodeFlags.linkType, "link-type", "l", "", "link type of the input (ethernet, raw, linux_sll, ppp or a DLT number)")
	f.BoolVarP(&decodeFlags.summary, "summary", "s", false, "print one summary line per frame")
	f.BoolVarP(&decodeFlags.verbose, "verbose", "v", false, "print every field and hex dump payloads")
	f.BoolVar(&decodeFlags.strict, "strict", false, "fail on truncated option lists (overrides decoder.strict)")
	f.BoolVar(&decodeFlags.reassemble, "reassemble", false, "reassemble IPv4 fragments (overrides reassembly.enabled)")
	f.IntVarP(&decodeFlags.limit, "count", "n", 0, "stop after this many frames (0 = all)")
}

// frameSource yields frames with their capture timestamps.
type frameSource interface {
	next() ([]byte, time.Time, error)
}

type fileSource struct{ r *capture.Reader }

func (s fileSource) next() ([]byte, time.Time, error) {
	data, ci, err := s.r.ReadPacket()
	return data, ci.Timestamp, err
}

type hexSource struct {
	data []byte
	done bool
}

func (s *hexSource) next() ([]byte, time.Time, error) {
	if s.done {
		return nil, time.Time{}, io.EOF
	}
	s.done = true
	return s.data, time.Time{}, nil
}

// decoder carries the per-run state of the decode command.
type decoder struct {
	opts     []packet.Option
	link     layers.LinkType
	flags    decodeOptions
	out      io.Writer
	logger   log.Logger
	stats    *capture.Stats
	metrics  *metrics.Decoder
	reasm    *reassembly.Reassembler
	frameNum int
}

func runDecode(ctx context.Context, c *config.Config, flags decodeOptions, path string, out io.Writer) error {
	if c == nil {
		return errors.New("configuration not loaded")
	}
	if (path == "") == (flags.hex == "") {
		return errors.New("exactly one of FILE or --hex is required")
	}
	logger := log.GetLogger()

	dc := c.Decoder
	if flags.strict {
		dc.Strict = true
	}
	d := &decoder{
		opts:   append(dc.Options(), packet.WithLogger(logger)),
		flags:  flags,
		out:    out,
		logger: logger,
	}

	var src frameSource
	if flags.hex != "" {
		data, err := hex.DecodeString(strings.Join(strings.Fields(flags.hex), ""))
		if err != nil {
			return fmt.Errorf("invalid --hex: %w", err)
		}
		src = &hexSource{data: data}
		d.link = dc.DefaultLinkType
		path = "hex"
	} else {
		r, err := capture.Open(path)
		if err != nil {
			return err
		}
		defer r.Close()
		src = fileSource{r}
		d.link = r.LinkType()
	}
	if flags.linkType != "" {
		lt, err := config.ParseLinkType(flags.linkType)
		if err != nil {
			return err
		}
		d.link = lt
	}
	d.stats = capture.NewStats(path, d.link.String())

	if c.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		d.metrics = metrics.NewDecoder(reg)
		d.opts = append(d.opts, packet.WithObserver(d.metrics))
		if c.Metrics.Listen != "" {
			srv := metrics.NewServer(c.Metrics.Listen, c.Metrics.Path, reg, logger)
			if err := srv.Start(); err != nil {
				return err
			}
			defer srv.Stop(context.Background())
		}
	}

	if c.Reassembly.Enabled || flags.reassemble {
		rc := reassembly.Config{
			MaxFragments:  c.Reassembly.MaxFragments,
			Timeout:       c.Reassembly.Timeout,
			MaxFragsPerIP: c.Reassembly.RateLimit,
		}
		if d.metrics != nil {
			rc.ActiveFlows = d.metrics.ReassemblyPending
		}
		d.reasm = reassembly.New(rc)
	}

	logger.WithFields(map[string]interface{}{"source": path, "link": d.link.String()}).Debug("decoding")
	for flags.limit == 0 || d.frameNum < flags.limit {
		if err := ctx.Err(); err != nil {
			break
		}
		data, ts, err := src.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		d.frameNum++
		d.handle(data, ts)
	}

	fmt.Fprintln(out)
	d.stats.Print(out)
	return nil
}

func (d *decoder) handle(data []byte, ts time.Time) {
	root, err := packet.Decode(data, d.link, d.opts...)
	if err != nil {
		d.stats.RecordFailure()
		d.frame(metrics.FrameFailed)
		d.logger.WithError(err).Debugf("frame %d failed to decode", d.frameNum)
		fmt.Fprintf(d.out, "#%d %s error: %v\n", d.frameNum, formatTime(ts), err)
		return
	}
	d.stats.Record(root)
	if packet.ValidChecksums(root) {
		d.frame(metrics.FrameDecoded)
	} else {
		d.frame(metrics.FrameBadChecksum)
	}
	d.print(fmt.Sprintf("#%d %s", d.frameNum, formatTime(ts)), root)

	if d.reasm != nil {
		d.reassemble(root, ts)
	}
}

func (d *decoder) reassemble(root packet.Packet, ts time.Time) {
	ip, ok := packet.Extract[*packet.IPv4](root)
	if !ok || !ip.IsFragment() {
		return
	}
	dg, err := d.reasm.Process(ip, ts)
	if err != nil {
		d.logger.WithError(err).Warnf("frame %d: fragment dropped", d.frameNum)
		return
	}
	d.stats.RecordFragment(dg != nil)
	if dg == nil {
		return
	}
	if d.metrics != nil {
		d.metrics.ReassembledDatagrams.Inc()
	}
	inner, err := dg.Decode(d.opts...)
	if err != nil {
		fmt.Fprintf(d.out, "  reassembled %s > %s id=%d: %v\n", dg.Src, dg.Dst, dg.ID, err)
		return
	}
	label := fmt.Sprintf("  reassembled %s > %s id=%d (%d bytes)", dg.Src, dg.Dst, dg.ID, len(dg.Payload))
	if inner == nil {
		fmt.Fprintf(d.out, "%s %s\n", label, dg.Protocol)
		return
	}
	d.print(label, inner)
}

func (d *decoder) print(label string, root packet.Packet) {
	if d.flags.summary {
		fmt.Fprintf(d.out, "%s %s\n", label, summary.Summarize(root))
		return
	}
	fmt.Fprintf(d.out, "%s\n%s", label, packet.Format(root, d.flags.verbose))
}

func (d *decoder) frame(result string) {
	if d.metrics != nil {
		d.metrics.Frame(result)
	}
}

func formatTime(ts time.Time) string {
	if ts.IsZero() {
		return "-"
	}
	return ts.UTC().Format("15:04:05.000000")
}
