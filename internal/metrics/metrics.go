// Package metrics exposes decode counters to Prometheus.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"firestige.xyz/pktkit/pkg/packet"
)

// Decoder implements packet.Observer and the frame-level counters of the
// decode command.
type Decoder struct {
	// LayersDecoded counts decoded layers by type
	LayersDecoded *prometheus.CounterVec
	// DecodeFailures counts failures by the layer that failed and the error class
	DecodeFailures *prometheus.CounterVec
	// Frames counts capture frames by result (decoded, failed, bad_checksum)
	Frames *prometheus.CounterVec
	// ReassemblyPending tracks IPv4 datagrams still missing fragments
	ReassemblyPending prometheus.Gauge
	// ReassembledDatagrams counts datagrams completed by reassembly
	ReassembledDatagrams prometheus.Counter
}

var _ packet.Observer = (*Decoder)(nil)

// NewDecoder registers the decode metrics with reg.
func NewDecoder(reg prometheus.Registerer) *Decoder {
	f := promauto.With(reg)
	return &Decoder{
		LayersDecoded: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pktkit_layers_decoded_total",
				Help: "Total number of protocol layers decoded",
			},
			[]string{"layer"},
		),
		DecodeFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pktkit_decode_failures_total",
				Help: "Total number of decode failures",
			},
			[]string{"layer", "error"},
		),
		Frames: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pktkit_frames_total",
				Help: "Total number of capture frames processed",
			},
			[]string{"result"},
		),
		ReassemblyPending: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "pktkit_reassembly_pending_datagrams",
				Help: "Number of IPv4 datagrams waiting for missing fragments",
			},
		),
		ReassembledDatagrams: f.NewCounter(
			prometheus.CounterOpts{
				Name: "pktkit_reassembled_datagrams_total",
				Help: "Total number of IPv4 datagrams completed by reassembly",
			},
		),
	}
}

func (d *Decoder) LayerDecoded(layer packet.LayerType) {
	d.LayersDecoded.WithLabelValues(layer.String()).Inc()
}

func (d *Decoder) DecodeFailed(layer packet.LayerType, err error) {
	d.DecodeFailures.WithLabelValues(layer.String(), errorClass(err)).Inc()
}

// FrameResult values for Frames.
const (
	FrameDecoded     = "decoded"
	FrameFailed      = "failed"
	FrameBadChecksum = "bad_checksum"
)

func (d *Decoder) Frame(result string) { d.Frames.WithLabelValues(result).Inc() }

var errorClasses = []struct {
	err   error
	class string
}{
	{packet.ErrPacketTooShort, "too_short"},
	{packet.ErrInvalidLength, "invalid_length"},
	{packet.ErrInvalidVersion, "invalid_version"},
	{packet.ErrUnknownTypeCode, "unknown_type_code"},
	{packet.ErrTruncatedOption, "truncated_option"},
	{packet.ErrUnsupportedLinkType, "unsupported_link_type"},
	{packet.ErrNoNetworkLayer, "no_network_layer"},
	{packet.ErrNoDecoder, "no_decoder"},
}

// errorClass maps err onto a bounded label value.
func errorClass(err error) string {
	for _, c := range errorClasses {
		if errors.Is(err, c.err) {
			return c.class
		}
	}
	return "other"
}
