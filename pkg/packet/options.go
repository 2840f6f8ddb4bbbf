package packet

import (
	"firestige.xyz/pktkit/pkg/view"
)

// optionSizer returns the declared length of the option at the start of rest,
// header included, and whether options may follow it. The declared length may
// exceed rest; a length of zero or less marks a malformed option.
type optionSizer func(rest view.View) (n int, more bool)

// splitOptions cuts region into consecutive options. An option running past the
// region is clamped to it, or reported as ErrTruncatedOption when strict.
func splitOptions(region view.View, strict bool, layer LayerType, size optionSizer) ([]view.View, error) {
	var out []view.View
	off := 0
	for off < region.Len() {
		rest := region.Slice(off, region.Len()-off)
		n, more := size(rest)
		if n <= 0 {
			if strict {
				return out, invalid(layer, rest.Offset(), ErrTruncatedOption, "malformed option length")
			}
			break
		}
		if n > rest.Len() {
			if strict {
				return out, invalid(layer, rest.Offset(), ErrTruncatedOption, "option declares %d bytes, %d remain", n, rest.Len())
			}
			n = rest.Len()
		}
		out = append(out, rest.Slice(0, n))
		off += n
		if !more {
			break
		}
	}
	return out, nil
}

// joinOptions writes fixed followed by every option into a new buffer.
func joinOptions(fixed []byte, opts [][]byte, pad int) view.View {
	n := len(fixed)
	for _, o := range opts {
		n += len(o)
	}
	if pad > 1 && n%pad != 0 {
		n += pad - n%pad
	}
	v := view.Alloc(n)
	v.PutBytes(0, fixed)
	off := len(fixed)
	for _, o := range opts {
		v.PutBytes(off, o)
		off += len(o)
	}
	return v
}
