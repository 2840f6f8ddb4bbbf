// Package reassembly rebuilds fragmented IPv4 datagrams from decoded packets.
package reassembly

import (
	"container/list"
	"errors"
	"fmt"
	"net/netip"
	"sync"
	"time"

	"firestige.xyz/pktkit/pkg/packet"
	"firestige.xyz/pktkit/pkg/view"
)

// Reassembly constants from the BSD-Right algorithm (RFC 791).
const (
	ipv4MinFragSize    = 1     // Minimum valid fragment payload size
	ipv4MaxSize        = 65535 // Maximum IPv4 datagram size
	ipv4MaxFragOffset  = 8183  // Maximum valid fragment offset (in 8-byte units)
	ipv4MaxFragListLen = 8192  // Maximum fragments per flow before eviction
)

var (
	ErrInvalidFragment = errors.New("reassembly: invalid fragment")
	ErrLimitExceeded   = errors.New("reassembly: limit exceeded")
	ErrRateLimited     = errors.New("reassembly: fragment rate limit exceeded")
)

// Gauge is the subset of prometheus.Gauge the reassembler reports to.
type Gauge interface {
	Inc()
	Dec()
	Sub(float64)
}

// Config contains configuration for IPv4 reassembly.
type Config struct {
	MaxFragments      int           // Maximum fragments per flow (default 100)
	MaxReassembleSize int           // Maximum reassembled datagram size (default 65535)
	Timeout           time.Duration // Incomplete flows older than this are dropped (default 60s)
	MaxFragsPerIP     int           // Per-source fragment limit per window (0 = disabled)
	RateLimitWindow   time.Duration // Rate limit window (default 10s)
	ActiveFlows       Gauge         // Optional gauge of flows awaiting fragments
}

// fragmentKey identifies a fragmented IPv4 datagram.
type fragmentKey struct {
	src, dst netip.Addr
	protocol packet.IPProtocol
	id       uint16
}

// fragment is a single fragment's payload and position.
type fragment struct {
	offset  uint16 // byte offset (fragment offset * 8)
	length  uint16
	payload []byte // copy of the fragment data
}

// fragmentList keeps fragments sorted by offset. On overlap the earlier
// arrival wins and the new fragment is trimmed (BSD-Right).
type fragmentList struct {
	list          list.List // of *fragment
	highest       uint16    // max(offset + length)
	current       uint16    // unique bytes accumulated
	finalReceived bool      // last fragment (MF=0) seen
	lastSeen      time.Time
}

// Datagram is a complete IPv4 payload.
type Datagram struct {
	Src, Dst    netip.Addr
	Protocol    packet.IPProtocol
	ID          uint16
	Payload     []byte
	Reassembled bool // false for datagrams that were never fragmented
}

// Reassembler handles IPv4 fragment reassembly. Timeouts follow the capture
// timestamps passed to Process, not the wall clock, so replaying a file gives
// the same result every time.
type Reassembler struct {
	mu        sync.Mutex
	flows     map[fragmentKey]*fragmentList
	config    Config
	limiter   *sourceLimiter // nil when MaxFragsPerIP is 0
	lastSweep time.Time
}

func New(cfg Config) *Reassembler {
	if cfg.MaxFragments <= 0 {
		cfg.MaxFragments = 100
	}
	if cfg.MaxReassembleSize <= 0 {
		cfg.MaxReassembleSize = ipv4MaxSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Reassembler{
		flows:   make(map[fragmentKey]*fragmentList),
		config:  cfg,
		limiter: newSourceLimiter(cfg.MaxFragsPerIP, cfg.RateLimitWindow),
	}
}

// Process feeds one IPv4 packet. It returns:
//   - an unfragmented packet: its payload, with Reassembled false
//   - a fragment of an incomplete datagram: nil, nil
//   - the fragment completing a datagram: the rebuilt payload
//   - a fragment failing a check: an error wrapping one of the sentinels
func (r *Reassembler) Process(ip *packet.IPv4, ts time.Time) (*Datagram, error) {
	flags, fragOffset := ip.Flags(), ip.FragmentOffset()
	moreFragments := flags&packet.IPv4MoreFragments != 0
	payload := ip.Payload().Bytes()

	if !moreFragments && fragOffset == 0 {
		return &Datagram{
			Src: ip.SourceAddress(), Dst: ip.DestinationAddress(),
			Protocol: ip.Protocol(), ID: ip.ID(), Payload: payload,
		}, nil
	}

	if len(payload) > ipv4MaxSize {
		return nil, fmt.Errorf("%w: payload of %d bytes", ErrInvalidFragment, len(payload))
	}
	byteOffset := fragOffset * 8
	fragLen := uint16(len(payload))
	if err := securityChecks(fragLen, fragOffset); err != nil {
		return nil, err
	}

	src := ip.SourceAddress()
	key := fragmentKey{src: src, dst: ip.DestinationAddress(), protocol: ip.Protocol(), id: ip.ID()}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.limiter != nil && !r.limiter.allow(src, ts) {
		return nil, fmt.Errorf("%w for source %s", ErrRateLimited, src)
	}
	r.sweep(ts)

	fl, exists := r.flows[key]
	if !exists {
		fl = &fragmentList{}
		r.flows[key] = fl
		if r.config.ActiveFlows != nil {
			r.config.ActiveFlows.Inc()
		}
	}

	if fl.list.Len() >= ipv4MaxFragListLen {
		r.evictFlow(key)
		return nil, fmt.Errorf("%w: fragment list exceeded max size %d", ErrLimitExceeded, ipv4MaxFragListLen)
	}
	if fl.list.Len() >= r.config.MaxFragments {
		r.evictFlow(key)
		return nil, fmt.Errorf("%w: fragment count exceeded limit %d", ErrLimitExceeded, r.config.MaxFragments)
	}

	fl.lastSeen = ts
	if !moreFragments {
		fl.finalReceived = true
		if end := byteOffset + fragLen; end > fl.highest {
			fl.highest = end
		}
	}

	// The decoded view aliases the capture buffer, which the reader may reuse.
	data := make([]byte, fragLen)
	copy(data, payload)
	fl.insertBSDRight(&fragment{offset: byteOffset, length: fragLen, payload: data})

	if !fl.finalReceived || fl.current < fl.highest {
		return nil, nil
	}
	r.evictFlow(key)
	result, err := r.build(fl)
	if err != nil {
		return nil, err
	}
	return &Datagram{
		Src: key.src, Dst: key.dst, Protocol: key.protocol, ID: key.id,
		Payload: result, Reassembled: true,
	}, nil
}

// securityChecks validates fragment parameters to prevent attacks.
func securityChecks(fragSize, fragOffset uint16) error {
	if fragSize < ipv4MinFragSize {
		return fmt.Errorf("%w: fragment too small: %d bytes", ErrInvalidFragment, fragSize)
	}
	if fragOffset > ipv4MaxFragOffset {
		return fmt.Errorf("%w: fragment offset too large: %d", ErrInvalidFragment, fragOffset)
	}
	if end := uint32(fragOffset)*8 + uint32(fragSize); end > ipv4MaxSize {
		return fmt.Errorf("%w: fragment would exceed max IP size: offset=%d size=%d end=%d",
			ErrInvalidFragment, uint32(fragOffset)*8, fragSize, end)
	}
	return nil
}

// insertBSDRight inserts frag in offset order, keeping existing bytes on overlap.
func (fl *fragmentList) insertBSDRight(frag *fragment) {
	fragEnd := frag.offset + frag.length
	if fragEnd > fl.highest && !fl.finalReceived {
		fl.highest = fragEnd
	}

	// first element with offset >= frag.offset
	var insertBefore *list.Element
	for e := fl.list.Front(); e != nil; e = e.Next() {
		if e.Value.(*fragment).offset >= frag.offset {
			insertBefore = e
			break
		}
	}

	startAt := frag.offset
	var prev *list.Element
	if insertBefore != nil {
		prev = insertBefore.Prev()
	} else {
		prev = fl.list.Back()
	}
	if prev != nil {
		p := prev.Value.(*fragment)
		if end := p.offset + p.length; end > startAt {
			startAt = end
		}
	}

	endAt := fragEnd
	if insertBefore != nil {
		if next := insertBefore.Value.(*fragment); next.offset < endAt {
			endAt = next.offset
		}
	}

	if startAt >= endAt {
		return // fully covered by earlier fragments
	}

	trimmed := &fragment{
		offset:  startAt,
		length:  endAt - startAt,
		payload: frag.payload[startAt-frag.offset : endAt-frag.offset],
	}
	if insertBefore != nil {
		fl.list.InsertBefore(trimmed, insertBefore)
	} else {
		fl.list.PushBack(trimmed)
	}
	fl.current += trimmed.length
}

// build concatenates the fragments of a complete flow.
func (r *Reassembler) build(fl *fragmentList) ([]byte, error) {
	totalSize := int(fl.highest)
	if totalSize > r.config.MaxReassembleSize {
		return nil, fmt.Errorf("%w: reassembled size %d exceeds limit %d", ErrLimitExceeded, totalSize, r.config.MaxReassembleSize)
	}
	result := make([]byte, totalSize)
	for e := fl.list.Front(); e != nil; e = e.Next() {
		frag := e.Value.(*fragment)
		copy(result[frag.offset:frag.offset+frag.length], frag.payload)
	}
	return result, nil
}

// evictFlow removes a flow. Must be called with r.mu held.
func (r *Reassembler) evictFlow(key fragmentKey) {
	if _, exists := r.flows[key]; exists {
		delete(r.flows, key)
		if r.config.ActiveFlows != nil {
			r.config.ActiveFlows.Dec()
		}
	}
}

// sweep drops flows idle for longer than the timeout, at most once per
// timeout/4 of capture time. Must be called with r.mu held.
func (r *Reassembler) sweep(now time.Time) {
	if now.Sub(r.lastSweep) < r.config.Timeout/4 {
		return
	}
	r.lastSweep = now
	r.expire(now)
}

func (r *Reassembler) expire(now time.Time) int {
	expired := 0
	for key, fl := range r.flows {
		if now.Sub(fl.lastSeen) > r.config.Timeout {
			delete(r.flows, key)
			expired++
		}
	}
	if expired > 0 && r.config.ActiveFlows != nil {
		r.config.ActiveFlows.Sub(float64(expired))
	}
	return expired
}

// Expire drops flows idle at now and returns how many were dropped.
func (r *Reassembler) Expire(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.expire(now)
}

// Pending is the number of incomplete datagrams held.
func (r *Reassembler) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.flows)
}

var protocolLayers = map[packet.IPProtocol]packet.LayerType{
	packet.IPProtocolTCP:    packet.LayerTypeTCP,
	packet.IPProtocolUDP:    packet.LayerTypeUDP,
	packet.IPProtocolICMPv4: packet.LayerTypeICMPv4,
	packet.IPProtocolGRE:    packet.LayerTypeGRE,
}

// Decode decodes a datagram's payload from its upper-layer protocol. Payloads
// of protocols without a decoder are returned as (nil, nil).
func (d *Datagram) Decode(opts ...packet.Option) (packet.Packet, error) {
	layer, ok := protocolLayers[d.Protocol]
	if !ok {
		return nil, nil
	}
	return packet.DecodeLayer(view.New(d.Payload), layer, opts...)
}
