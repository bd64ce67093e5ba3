package ring

import "fmt"

// A Ring is a view over the coherent memory region that holds the
// descriptor records. Both the DMA engine and the device model hold the
// same Ring; the bytes are accessed with plain loads and stores, and
// cross-context visibility is carried by the register file's atomic index
// registers (see regs). A slot's bytes are only ever touched by the side
// that currently owns the slot.
type Ring struct {
	raw   []byte
	base  uint64
	depth uint32
}

// New creates a ring view of the given depth over freshly allocated
// coherent bytes. base is the device-visible address the region is mapped
// at, published to the device through the ring address registers.
func New(base uint64, depth uint32) *Ring {
	if depth < 2 {
		panic("ring depth must be at least 2")
	}

	return &Ring{
		raw:   make([]byte, uint64(depth)*DescriptorBytes),
		base:  base,
		depth: depth,
	}
}

// Base returns the device-visible address of the ring region.
func (r *Ring) Base() uint64 {
	return r.base
}

// Depth returns the number of slots.
func (r *Ring) Depth() uint32 {
	return r.depth
}

// Slot returns the packed bytes of slot i.
func (r *Ring) Slot(i uint32) []byte {
	r.mustBeValidSlot(i)
	off := uint64(i) * DescriptorBytes
	return r.raw[off : off+DescriptorBytes]
}

// WriteDescriptor packs d into slot i.
func (r *Ring) WriteDescriptor(i uint32, d Descriptor) {
	d.Encode(r.Slot(i))
}

// ReadDescriptor unpacks slot i.
func (r *Ring) ReadDescriptor(i uint32) Descriptor {
	return Decode(r.Slot(i))
}

// CompleteSlot marks slot i processed. The caller must publish the head
// index afterwards so the done flag becomes visible to the driver side.
func (r *Ring) CompleteSlot(i uint32) {
	d := r.ReadDescriptor(i)
	d.Done = DoneComplete
	r.WriteDescriptor(i, d)
}

// Clear zeroes every slot. Only legal while no transfer is in flight.
func (r *Ring) Clear() {
	for i := range r.raw {
		r.raw[i] = 0
	}
}

func (r *Ring) mustBeValidSlot(i uint32) {
	if i >= r.depth {
		panic(fmt.Sprintf("slot %d out of range, ring depth %d", i, r.depth))
	}
}
