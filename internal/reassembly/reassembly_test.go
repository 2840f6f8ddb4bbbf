package reassembly

import (
	"errors"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/pktkit/pkg/packet"
)

var (
	fragSrc = netip.MustParseAddr("192.168.1.1")
	fragDst = netip.MustParseAddr("192.168.1.2")
	epoch   = time.Unix(1700000000, 0)
)

// buildFragment returns an IPv4 packet carrying payload at offset (in 8-byte
// units) of datagram id.
func buildFragment(t *testing.T, src netip.Addr, id, offset uint16, more bool, payload []byte) *packet.IPv4 {
	t.Helper()
	ip, err := packet.NewIPv4(src, fragDst, packet.IPProtocolUDP)
	require.NoError(t, err)
	ip.SetID(id)
	if more {
		ip.SetFlags(packet.IPv4MoreFragments)
	}
	ip.SetFragmentOffset(offset)
	ip.SetPayload(packet.BytesPayload(payload))
	return ip
}

// udpDatagram is a UDP segment of 8+n bytes with a valid length field.
func udpDatagram(n int) []byte {
	u := packet.NewUDP(40000, 53)
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i)
	}
	u.SetPayload(packet.BytesPayload(data))
	return u.Bytes()
}

func TestNonFragment(t *testing.T) {
	r := New(Config{})
	payload := []byte("hello, world")
	d, err := r.Process(buildFragment(t, fragSrc, 0, 0, false, payload), epoch)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.False(t, d.Reassembled)
	assert.Equal(t, payload, d.Payload)
	assert.Zero(t, r.Pending())
}

func TestTwoFragmentsDecode(t *testing.T) {
	gauge := &countingGauge{}
	r := New(Config{ActiveFlows: gauge})
	seg := udpDatagram(40) // 48 bytes

	d, err := r.Process(buildFragment(t, fragSrc, 0x1234, 0, true, seg[:24]), epoch)
	require.NoError(t, err)
	assert.Nil(t, d)
	assert.Equal(t, 1, r.Pending())
	assert.Equal(t, 1.0, gauge.value)

	d, err = r.Process(buildFragment(t, fragSrc, 0x1234, 3, false, seg[24:]), epoch.Add(time.Millisecond))
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.True(t, d.Reassembled)
	assert.Equal(t, seg, d.Payload)
	assert.Equal(t, packet.IPProtocolUDP, d.Protocol)
	assert.Equal(t, uint16(0x1234), d.ID)
	assert.Zero(t, r.Pending())
	assert.Zero(t, gauge.value)

	p, err := d.Decode()
	require.NoError(t, err)
	udp := p.(*packet.UDP)
	assert.Equal(t, uint16(53), udp.DestinationPort())
	assert.Equal(t, 40, udp.Payload().Len())
}

func TestOutOfOrderAndOverlap(t *testing.T) {
	r := New(Config{})
	seg := udpDatagram(56) // 64 bytes

	// last, then a fragment overlapping the first one, then the first one
	_, err := r.Process(buildFragment(t, fragSrc, 7, 4, false, seg[32:]), epoch)
	require.NoError(t, err)

	first := append([]byte{}, seg[:16]...)
	d, err := r.Process(buildFragment(t, fragSrc, 7, 0, true, first), epoch)
	require.NoError(t, err)
	assert.Nil(t, d)

	// bytes 8..31 with garbage in 8..15: the earlier fragment wins there
	overlap := append(make([]byte, 8), seg[16:32]...)
	for i := range 8 {
		overlap[i] = 0xee
	}
	d, err = r.Process(buildFragment(t, fragSrc, 7, 1, true, overlap), epoch)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, seg, d.Payload)
}

func TestFlowsAreIndependent(t *testing.T) {
	r := New(Config{})
	other := netip.MustParseAddr("192.168.1.9")
	_, err := r.Process(buildFragment(t, fragSrc, 1, 0, true, make([]byte, 8)), epoch)
	require.NoError(t, err)
	_, err = r.Process(buildFragment(t, other, 1, 0, true, make([]byte, 8)), epoch)
	require.NoError(t, err)
	_, err = r.Process(buildFragment(t, fragSrc, 2, 0, true, make([]byte, 8)), epoch)
	require.NoError(t, err)
	assert.Equal(t, 3, r.Pending())
}

func TestLimits(t *testing.T) {
	t.Run("fragment count", func(t *testing.T) {
		r := New(Config{MaxFragments: 2})
		for i := range uint16(2) {
			_, err := r.Process(buildFragment(t, fragSrc, 9, i, true, make([]byte, 8)), epoch)
			require.NoError(t, err)
		}
		_, err := r.Process(buildFragment(t, fragSrc, 9, 2, true, make([]byte, 8)), epoch)
		assert.True(t, errors.Is(err, ErrLimitExceeded))
		assert.Zero(t, r.Pending())
	})

	t.Run("reassembled size", func(t *testing.T) {
		r := New(Config{MaxReassembleSize: 16})
		_, err := r.Process(buildFragment(t, fragSrc, 9, 0, true, make([]byte, 16)), epoch)
		require.NoError(t, err)
		_, err = r.Process(buildFragment(t, fragSrc, 9, 2, false, make([]byte, 8)), epoch)
		assert.True(t, errors.Is(err, ErrLimitExceeded))
	})

	t.Run("offset past maximum size", func(t *testing.T) {
		r := New(Config{})
		_, err := r.Process(buildFragment(t, fragSrc, 9, 8180, false, make([]byte, 100)), epoch)
		assert.True(t, errors.Is(err, ErrInvalidFragment))
	})

	t.Run("empty fragment", func(t *testing.T) {
		r := New(Config{})
		_, err := r.Process(buildFragment(t, fragSrc, 9, 1, true, nil), epoch)
		assert.True(t, errors.Is(err, ErrInvalidFragment))
	})

	t.Run("rate limit", func(t *testing.T) {
		r := New(Config{MaxFragsPerIP: 1})
		_, err := r.Process(buildFragment(t, fragSrc, 9, 0, true, make([]byte, 8)), epoch)
		require.NoError(t, err)
		_, err = r.Process(buildFragment(t, fragSrc, 9, 1, true, make([]byte, 8)), epoch)
		assert.True(t, errors.Is(err, ErrRateLimited))
	})
}

func TestTimeoutFollowsCaptureClock(t *testing.T) {
	gauge := &countingGauge{}
	r := New(Config{Timeout: 10 * time.Second, ActiveFlows: gauge})
	_, err := r.Process(buildFragment(t, fragSrc, 1, 0, true, make([]byte, 8)), epoch)
	require.NoError(t, err)

	assert.Zero(t, r.Expire(epoch.Add(5*time.Second)))
	assert.Equal(t, 1, r.Pending())

	// A fragment of another flow 11s later sweeps the stale one.
	_, err = r.Process(buildFragment(t, fragSrc, 2, 0, true, make([]byte, 8)), epoch.Add(11*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 1, r.Pending())
	assert.Equal(t, 1.0, gauge.value)

	assert.Equal(t, 1, r.Expire(epoch.Add(time.Minute)))
	assert.Zero(t, gauge.value)
}

func TestDatagramDecodeUnknownProtocol(t *testing.T) {
	d := &Datagram{Protocol: packet.IPProtocolSCTP, Payload: []byte{1, 2, 3}}
	p, err := d.Decode()
	assert.NoError(t, err)
	assert.Nil(t, p)
}

type countingGauge struct{ value float64 }

func (g *countingGauge) Inc()          { g.value++ }
func (g *countingGauge) Dec()          { g.value-- }
func (g *countingGauge) Sub(v float64) { g.value -= v }
