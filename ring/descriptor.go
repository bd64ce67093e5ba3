// Package ring defines the hardware-visible descriptor ring format shared
// by the DMA engine and the device model. The layout is fixed: both sides
// read and write the same packed records, so every field has a documented
// offset and width.
package ring

import (
	"encoding/binary"
	"fmt"
)

// DescriptorBytes is the size of one packed descriptor record.
const DescriptorBytes = 32

// Values of the done field. Any other value indicates a broken
// hardware/software contract.
const (
	// DoneComplete is written by the device once a slot has been processed.
	DoneComplete uint32 = 0x0000

	// DonePending is written by the driver when it submits a slot.
	DonePending uint32 = 0xFF00
)

// Packed descriptor layout, little-endian:
//
//	offset 0,  u32: done flag
//	offset 4,  u32: in_len (bits 0..15) | out_len (bits 16..31)
//	offset 8,  u32: reserved
//	offset 12, u32: reserved
//	offset 16, u64: in_addr
//	offset 24, u64: out_addr
const (
	offDone    = 0
	offLen     = 4
	offInAddr  = 16
	offOutAddr = 24
)

// A Descriptor is the unpacked form of one ring slot.
type Descriptor struct {
	Done    uint32
	InLen   uint16
	OutLen  uint16
	InAddr  uint64
	OutAddr uint64
}

// Encode packs the descriptor into a DescriptorBytes-sized slot.
func (d Descriptor) Encode(slot []byte) {
	mustBeSlotSized(slot)

	binary.LittleEndian.PutUint32(slot[offDone:], d.Done)
	binary.LittleEndian.PutUint32(slot[offLen:],
		uint32(d.InLen)|uint32(d.OutLen)<<16)
	binary.LittleEndian.PutUint32(slot[8:], 0)
	binary.LittleEndian.PutUint32(slot[12:], 0)
	binary.LittleEndian.PutUint64(slot[offInAddr:], d.InAddr)
	binary.LittleEndian.PutUint64(slot[offOutAddr:], d.OutAddr)
}

// Decode unpacks a descriptor from a slot.
func Decode(slot []byte) Descriptor {
	mustBeSlotSized(slot)

	lenWord := binary.LittleEndian.Uint32(slot[offLen:])

	return Descriptor{
		Done:    binary.LittleEndian.Uint32(slot[offDone:]),
		InLen:   uint16(lenWord),
		OutLen:  uint16(lenWord >> 16),
		InAddr:  binary.LittleEndian.Uint64(slot[offInAddr:]),
		OutAddr: binary.LittleEndian.Uint64(slot[offOutAddr:]),
	}
}

func mustBeSlotSized(slot []byte) {
	if len(slot) != DescriptorBytes {
		panic(fmt.Sprintf(
			"descriptor slot must be %d bytes, got %d",
			DescriptorBytes, len(slot)))
	}
}
