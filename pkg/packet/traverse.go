package packet

// Layers returns root and every nested layer below it, outermost first.
func Layers(root Packet) []Packet {
	var out []Packet
	for p := root; p != nil; p = p.Payload().Packet() {
		out = append(out, p)
	}
	return out
}

// Extract returns the outermost layer of type T under root, inclusive.
//
//	tcp, ok := packet.Extract[*packet.TCP](frame)
func Extract[T Packet](root Packet) (T, bool) {
	for p := root; p != nil; p = p.Payload().Packet() {
		if t, ok := p.(T); ok {
			return t, true
		}
	}
	var zero T
	return zero, false
}

// Layer returns the outermost layer of the given type under root, or nil.
func Layer(root Packet, t LayerType) Packet {
	for p := root; p != nil; p = p.Payload().Packet() {
		if p.LayerType() == t {
			return p
		}
	}
	return nil
}

// Parent returns the layer whose payload is p, searching down from root.
func Parent(root, p Packet) Packet {
	for cur := root; cur != nil; cur = cur.Payload().Packet() {
		if cur.Payload().Packet() == p {
			return cur
		}
	}
	return nil
}

// NetworkOf returns the innermost IP layer enclosing p under root, or nil.
func NetworkOf(root, p Packet) Network {
	var network Network
	for cur := root; cur != nil && cur != p; cur = cur.Payload().Packet() {
		if n, ok := cur.(Network); ok {
			network = n
		}
	}
	return network
}

// Ancestor returns the innermost layer of type T enclosing p under root.
func Ancestor[T Packet](root, p Packet) (T, bool) {
	var found T
	ok := false
	for cur := root; cur != nil && cur != p; cur = cur.Payload().Packet() {
		if t, is := cur.(T); is {
			found, ok = t, true
		}
	}
	return found, ok
}
