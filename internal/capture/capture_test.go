package capture

import (
	"bytes"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/pktkit/pkg/packet"
	"firestige.xyz/pktkit/pkg/packet/synth"
)

func TestWriteThenRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.pcap")
	b := synth.New(1)
	ts := time.Unix(1700000000, 0).UTC()

	w, err := Create(path, layers.LinkTypeEthernet)
	require.NoError(t, err)
	var frames [][]byte
	for _, k := range []synth.Kind{synth.KindUDP, synth.KindTCP, synth.KindARP} {
		eth, err := b.Frame(k)
		require.NoError(t, err)
		frames = append(frames, eth.Bytes())
		require.NoError(t, w.WritePacket(ts, eth.Bytes()))
	}
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, layers.LinkTypeEthernet, r.LinkType())

	for i, want := range frames {
		data, ci, err := r.ReadPacket()
		require.NoError(t, err, "frame %d", i)
		assert.Equal(t, want, data)
		assert.Equal(t, len(want), ci.CaptureLength)
		assert.True(t, ts.Equal(ci.Timestamp))
	}
	_, _, err = r.ReadPacket()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadPcapng(t *testing.T) {
	var buf bytes.Buffer
	ng, err := pcapgo.NewNgWriter(&buf, layers.LinkTypeRaw)
	require.NoError(t, err)
	eth, err := synth.New(2).Frame(synth.KindUDP)
	require.NoError(t, err)
	ip := eth.Payload().Packet().Bytes()
	require.NoError(t, ng.WritePacket(gopacket.CaptureInfo{
		Timestamp: time.Unix(1, 0), CaptureLength: len(ip), Length: len(ip), InterfaceIndex: 0,
	}, ip))
	require.NoError(t, ng.Flush())

	r, err := NewReader(&buf)
	require.NoError(t, err)
	assert.Equal(t, layers.LinkTypeRaw, r.LinkType())
	data, _, err := r.ReadPacket()
	require.NoError(t, err)
	assert.Equal(t, ip, data)
	assert.NoError(t, r.Close())
}

func TestOpenErrors(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.pcap"))
	assert.ErrorContains(t, err, "failed to open capture file")

	_, err = NewReader(strings.NewReader("not a capture file"))
	assert.Error(t, err)

	_, err = NewReader(strings.NewReader("ab"))
	assert.ErrorContains(t, err, "reading file header")
}

func TestStats(t *testing.T) {
	s := NewStats("test.pcap", "Ethernet")
	b := synth.New(3)
	for _, k := range []synth.Kind{synth.KindTCP, synth.KindUDP, synth.KindL2TP, synth.KindICMPv6, synth.KindARP} {
		eth, err := b.Frame(k)
		require.NoError(t, err)
		root, err := packet.Decode(eth.Bytes(), layers.LinkTypeEthernet)
		require.NoError(t, err)
		s.Record(root)
	}
	s.RecordFailure()
	s.RecordFragment(false)
	s.RecordFragment(true)

	assert.Equal(t, int64(6), s.TotalPackets)
	assert.Equal(t, int64(1), s.TCPPackets)
	assert.Equal(t, int64(2), s.UDPPackets)
	assert.Equal(t, int64(1), s.ICMPPackets)
	assert.Equal(t, int64(1), s.OtherPackets)
	assert.Zero(t, s.BadChecksums)
	assert.InDelta(t, 100.0/6, s.FailureRate(), 0.001)

	var out bytes.Buffer
	s.Print(&out)
	assert.Contains(t, out.String(), "Total Packets:     6")
	assert.Contains(t, out.String(), "Reassembled:       1")
}
