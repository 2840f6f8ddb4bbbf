package packet

import (
	"fmt"

	"firestige.xyz/pktkit/pkg/view"
)

const (
	dot1qTCIPos       = 0
	dot1qTypePos      = dot1qTCIPos + 2
	Dot1QHeaderLength = dot1qTypePos + 2

	dot1qPriorityShift = 13
	dot1qDEIMask       = 0x1000
	dot1qVLANMask      = 0x0fff
)

// Dot1Q is an IEEE 802.1Q VLAN tag. Stacked tags (802.1ad) nest as Dot1Q payloads.
type Dot1Q struct {
	Base
}

func NewDot1Q(priority uint8, dropEligible bool, vlan uint16, t EtherType) (*Dot1Q, error) {
	if priority > 7 {
		return nil, fmt.Errorf("pktkit: 802.1Q priority %d out of range", priority)
	}
	if vlan > dot1qVLANMask {
		return nil, fmt.Errorf("pktkit: VLAN id %d out of range", vlan)
	}
	q := &Dot1Q{}
	q.newHeader(Dot1QHeaderLength)
	q.SetPriority(priority)
	q.SetDropEligible(dropEligible)
	q.SetVLANIdentifier(vlan)
	q.SetEtherType(t)
	return q, nil
}

func decodeDot1Q(d *decoder, data view.View) (Packet, error) {
	if data.Len() < Dot1QHeaderLength {
		return nil, tooShort(LayerTypeDot1Q, data.Offset(), data.Len(), Dot1QHeaderLength)
	}
	q := &Dot1Q{}
	q.header = data.Slice(0, Dot1QHeaderLength)
	if err := d.decodePayload(&q.Base, q.header.Encapsulated(-1), etherTypeDecoders[q.EtherType()]); err != nil {
		return nil, err
	}
	return q, nil
}

func (q *Dot1Q) LayerType() LayerType { return LayerTypeDot1Q }

func (q *Dot1Q) tci() uint16 { return q.header.Uint16(dot1qTCIPos) }

func (q *Dot1Q) Priority() uint8 { return uint8(q.tci() >> dot1qPriorityShift) }

func (q *Dot1Q) SetPriority(p uint8) {
	q.header.PutUint16(dot1qTCIPos, q.tci()&^(7<<dot1qPriorityShift)|uint16(p&7)<<dot1qPriorityShift)
}

func (q *Dot1Q) DropEligible() bool { return q.tci()&dot1qDEIMask != 0 }

func (q *Dot1Q) SetDropEligible(b bool) {
	tci := q.tci() &^ dot1qDEIMask
	if b {
		tci |= dot1qDEIMask
	}
	q.header.PutUint16(dot1qTCIPos, tci)
}

func (q *Dot1Q) VLANIdentifier() uint16 { return q.tci() & dot1qVLANMask }

func (q *Dot1Q) SetVLANIdentifier(id uint16) {
	q.header.PutUint16(dot1qTCIPos, q.tci()&^dot1qVLANMask|id&dot1qVLANMask)
}

func (q *Dot1Q) EtherType() EtherType { return EtherType(q.header.Uint16(dot1qTypePos)) }

func (q *Dot1Q) SetEtherType(t EtherType) { q.header.PutUint16(dot1qTypePos, uint16(t)) }

func (q *Dot1Q) Fields(bool) []Field {
	return []Field{
		{"Priority", q.Priority()},
		{"DropEligible", q.DropEligible()},
		{"VLANIdentifier", q.VLANIdentifier()},
		{"EtherType", q.EtherType()},
	}
}

func (q *Dot1Q) String() string { return formatLayer(q, false) }
