package packet

import (
	"errors"
	"fmt"

	"github.com/google/gopacket/layers"

	"firestige.xyz/pktkit/pkg/log"
	"firestige.xyz/pktkit/pkg/view"
)

// DefaultMaxDepth bounds the number of nested layers Decode descends into.
const DefaultMaxDepth = 32

// Observer is notified about every layer Decode produces and every failure.
type Observer interface {
	LayerDecoded(layer LayerType)
	DecodeFailed(layer LayerType, err error)
}

type options struct {
	strict   bool
	maxDepth int
	drda     bool
	logger   log.Logger
	observer Observer
}

// Option configures Decode and DecodeLayer.
type Option func(*options)

// WithStrict makes truncated option lists (DHCPv4, NDP, TCP, PPPoE tags, OSPF
// LSAs, DRDA parameters) fail with ErrTruncatedOption instead of being clamped.
func WithStrict(strict bool) Option {
	return func(o *options) { o.strict = strict }
}

// WithMaxDepth sets how many layers may be nested before the remaining bytes
// are kept as an opaque payload.
func WithMaxDepth(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxDepth = n
		}
	}
}

// WithDRDASniffing enables or disables DRDA detection in TCP payloads.
func WithDRDASniffing(enabled bool) Option {
	return func(o *options) { o.drda = enabled }
}

func WithLogger(l log.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func WithObserver(obs Observer) Option {
	return func(o *options) { o.observer = obs }
}

type decoder struct {
	options
	depth int
}

func newDecoder(opts []Option) *decoder {
	d := &decoder{options: options{
		maxDepth: DefaultMaxDepth,
		drda:     true,
		logger:   log.Nop(),
	}}
	for _, opt := range opts {
		opt(&d.options)
	}
	return d
}

// Decode decodes data as a frame of the given link type.
//
// Header fields of the result read from and write to data. A header shorter than
// its fixed minimum fails with a *DecodeError; an unknown discriminator leaves the
// remainder as opaque payload.
func Decode(data []byte, link layers.LinkType, opts ...Option) (Packet, error) {
	var fn decodeFunc
	switch link {
	case layers.LinkTypeEthernet:
		fn = decodeEthernet
	case layers.LinkTypeLinuxSLL:
		fn = decodeLinuxSLL
	case layers.LinkTypeRaw, layers.LinkTypeIPv4, layers.LinkTypeIPv6:
		fn = decodeRawIP
	case layers.LinkTypePPP:
		fn = decodePPP
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLinkType, link)
	}
	return newDecoder(opts).run(fn, view.New(data))
}

// DecodeLayer decodes v starting at the given layer. It is the way to decode
// payloads that are never recognised automatically, such as DHCPv4 carried in
// UDP: DecodeLayer(udp.Payload().Data(), LayerTypeDHCPv4).
func DecodeLayer(v view.View, first LayerType, opts ...Option) (Packet, error) {
	fn, ok := layerDecoders[first]
	if !ok {
		return nil, fmt.Errorf("%w %s", ErrNoDecoder, first)
	}
	return newDecoder(opts).run(fn, v.Bounded())
}

func (d *decoder) run(fn decodeFunc, v view.View) (Packet, error) {
	p, err := fn(d, v)
	if err != nil {
		if d.observer != nil {
			layer := LayerTypeUnknown
			var de *DecodeError
			if errors.As(err, &de) {
				layer = de.Layer
			}
			d.observer.DecodeFailed(layer, err)
		}
		return nil, err
	}
	if d.observer != nil {
		d.observer.LayerDecoded(p.LayerType())
	}
	return p, nil
}

// decodePayload decodes region with next and stores the result as the payload of
// b. A nil decoder, an empty region, the depth limit or a heuristic mismatch leave
// the region opaque. Bytes of region the child does not cover become b's trailer.
func (d *decoder) decodePayload(b *Base, region view.View, next decodeFunc) error {
	region = region.Bounded()
	if next == nil || region.Len() == 0 {
		b.payload = DataPayload(region)
		return nil
	}
	if d.depth >= d.maxDepth {
		d.logger.Debugf("depth limit %d reached at offset %d, payload kept opaque", d.maxDepth, region.Offset())
		b.payload = DataPayload(region)
		return nil
	}

	d.depth++
	child, err := next(d, region)
	d.depth--
	if err != nil {
		if errors.Is(err, errNotApplicable) {
			if d.logger.IsTraceEnabled() {
				d.logger.Tracef("payload at offset %d kept opaque: %v", region.Offset(), err)
			}
			b.payload = DataPayload(region)
			return nil
		}
		return err
	}

	if d.observer != nil {
		d.observer.LayerDecoded(child.LayerType())
	}
	if d.logger.IsTraceEnabled() {
		d.logger.Tracef("decoded %s at offset %d (%d bytes)", child.LayerType(), region.Offset(), child.Len())
	}
	b.payload = PacketPayload(child)
	if used := child.Len(); used < region.Len() {
		b.trailer = region.Slice(used, region.Len()-used)
	}
	return nil
}

// decodeRawIP picks IPv4 or IPv6 from the version nibble.
func decodeRawIP(d *decoder, data view.View) (Packet, error) {
	if data.Len() < 1 {
		return nil, tooShort(LayerTypeIPv4, data.Offset(), 0, 1)
	}
	switch data.Uint8(0) >> 4 {
	case 4:
		return decodeIPv4(d, data)
	case 6:
		return decodeIPv6(d, data)
	}
	return nil, invalid(LayerTypeIPv4, data.Offset(), ErrInvalidVersion, "version %d", data.Uint8(0)>>4)
}
