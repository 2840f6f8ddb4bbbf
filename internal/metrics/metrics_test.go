package metrics

import (
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/google/gopacket/layers"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/pktkit/pkg/packet"
	"firestige.xyz/pktkit/pkg/packet/synth"
	"firestige.xyz/pktkit/pkg/view"
)

func TestDecoderObservesLayers(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewDecoder(reg)

	eth, err := synth.New(1).Frame(synth.KindGRE)
	require.NoError(t, err)
	_, err = packet.Decode(eth.Bytes(), layers.LinkTypeEthernet, packet.WithObserver(m))
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.LayersDecoded.WithLabelValues("Ethernet")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.LayersDecoded.WithLabelValues("IPv4")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LayersDecoded.WithLabelValues("GRE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LayersDecoded.WithLabelValues("UDP")))
}

func TestDecoderObservesFailures(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewDecoder(reg)

	_, err := packet.Decode([]byte{1, 2, 3}, layers.LinkTypeEthernet, packet.WithObserver(m))
	require.Error(t, err)
	_, err = packet.Decode([]byte{1, 2, 3}, layers.LinkTypeFDDI, packet.WithObserver(m))
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.DecodeFailures.WithLabelValues("Ethernet", "too_short")))
	assert.Equal(t, 0, testutil.CollectAndCount(m.LayersDecoded))
	assert.Equal(t, "other", errorClass(io.EOF))

	_, err = packet.DecodeLayer(view.New([]byte{1, 2, 3}), packet.LayerTypeUnknown, packet.WithObserver(m))
	require.Error(t, err)
	assert.Equal(t, "no_decoder", errorClass(err))
}

func TestFrameCounters(t *testing.T) {
	m := NewDecoder(prometheus.NewRegistry())
	m.Frame(FrameDecoded)
	m.Frame(FrameDecoded)
	m.Frame(FrameFailed)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Frames.WithLabelValues(FrameDecoded)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Frames.WithLabelValues(FrameFailed)))
}

func TestServerServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewDecoder(reg)
	m.Frame(FrameDecoded)

	s := NewServer("127.0.0.1:0", "", reg, nil)
	require.NoError(t, s.Start())
	defer s.Stop(context.Background())

	resp, err := http.Get("http://" + s.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `pktkit_frames_total{result="decoded"} 1`)
}
