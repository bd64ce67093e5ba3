// Package regs models the device's BAR0 register block as a typed accessor
// object rather than raw pointer arithmetic. Registers are 32-bit words at
// fixed offsets.
//
// The register file is also where the memory-ordering contract of the whole
// engine lives. Index registers are atomic cells: storing TAIL publishes
// every descriptor byte the driver wrote before the store, and loading HEAD
// makes every byte the device wrote before advancing visible to the driver.
// These are the Go equivalents of the wmb-before-doorbell and
// rmb-after-completion rules; neither side may read shared ring or buffer
// bytes that the atomic index handoff has not yet covered.
package regs

import (
	"fmt"
	"sync/atomic"
)

// Register offsets within BAR0.
const (
	RegDevReset   = 0x00 // reset strobe (W)
	RegIntEnable  = 0x08 // interrupt enable toggle (RW)
	RegRingAddrLo = 0x10 // ring base address, low word (W)
	RegRingAddrHi = 0x18 // ring base address, high word (W)
	RegRingSize   = 0x20 // ring depth in slots (RW, device may reject)
	RegQueueHead  = 0x28 // next slot the device will complete (R for driver)
	RegQueueTail  = 0x30 // next slot the driver will fill (W for driver)
)

const numRegs = 7

// ResetMagic is the value the driver strobes into the reset register.
const ResetMagic uint32 = 0x80000000

// A File is one device's register block.
type File struct {
	cells [numRegs]atomic.Uint32

	doorbell       func()
	resetStrobe    func()
	ringSizeFilter func(uint32) uint32
}

// NewFile creates an all-zero register file.
func NewFile() *File {
	return &File{}
}

// OnDoorbell registers the callback that models the posted TAIL write
// reaching the device. Set once, before any traffic.
func (f *File) OnDoorbell(fn func()) {
	f.doorbell = fn
}

// OnReset registers the callback invoked when the driver strobes the reset
// register. The device treats the completion of the register write as the
// completion of its reset.
func (f *File) OnReset(fn func()) {
	f.resetStrobe = fn
}

// RingSizeFilter registers the device's say over the ring depth. The
// filtered value is what a subsequent read of the ring size register
// returns, so the driver's write-then-read-back check catches depths the
// device does not support.
func (f *File) RingSizeFilter(fn func(uint32) uint32) {
	f.ringSizeFilter = fn
}

func cellIndex(offset uint32) int {
	if offset%8 != 0 || offset/8 >= numRegs {
		panic(fmt.Sprintf("no register at offset 0x%x", offset))
	}
	return int(offset / 8)
}

// Read32 reads the register at the given offset.
func (f *File) Read32(offset uint32) uint32 {
	return f.cells[cellIndex(offset)].Load()
}

// Write32 writes the register at the given offset, triggering any device
// side effect attached to it.
func (f *File) Write32(offset, value uint32) {
	switch offset {
	case RegRingSize:
		if f.ringSizeFilter != nil {
			value = f.ringSizeFilter(value)
		}
		f.cells[cellIndex(offset)].Store(value)
	case RegDevReset:
		f.cells[cellIndex(offset)].Store(value)
		if value == ResetMagic && f.resetStrobe != nil {
			f.resetStrobe()
		}
	case RegQueueTail:
		f.cells[cellIndex(offset)].Store(value)
		if f.doorbell != nil {
			f.doorbell()
		}
	default:
		f.cells[cellIndex(offset)].Store(value)
	}
}

// Head returns the device's completion progress. This is an acquire-load:
// after it returns, every done flag and buffer byte the device wrote before
// publishing this head value is visible to the caller.
func (f *File) Head() uint32 {
	return f.Read32(RegQueueHead)
}

// SetHead is the device-side publish of completion progress. It is a
// release-store: the device must finish writing the done flag and the
// transformed buffer before calling it.
func (f *File) SetHead(v uint32) {
	f.Write32(RegQueueHead, v)
}

// Tail returns the driver's submission progress as seen by the device.
func (f *File) Tail() uint32 {
	return f.Read32(RegQueueTail)
}

// SetTail is the driver-side doorbell. It is a release-store: the driver
// must finish writing the descriptor before calling it, and the attached
// doorbell callback runs after the store so the device observes the new
// tail when it wakes.
func (f *File) SetTail(v uint32) {
	f.Write32(RegQueueTail, v)
}

// ResetIndices zeroes the head and tail registers without running the
// doorbell side effect. Only the device's reset path uses it; the doorbell
// stays a driver-only event.
func (f *File) ResetIndices() {
	f.cells[cellIndex(RegQueueHead)].Store(0)
	f.cells[cellIndex(RegQueueTail)].Store(0)
}

// RingSize returns the depth the device accepted.
func (f *File) RingSize() uint32 {
	return f.Read32(RegRingSize)
}

// WriteRingSize proposes a ring depth to the device.
func (f *File) WriteRingSize(v uint32) {
	f.Write32(RegRingSize, v)
}

// IntEnabled reports whether the interrupt line is armed.
func (f *File) IntEnabled() bool {
	return f.Read32(RegIntEnable) != 0
}

// SetIntEnable arms or disarms the interrupt line.
func (f *File) SetIntEnable(on bool) {
	var v uint32
	if on {
		v = 1
	}
	f.Write32(RegIntEnable, v)
}

// SetRingBase publishes the device-visible address of the descriptor ring
// as two 32-bit words.
func (f *File) SetRingBase(addr uint64) {
	f.Write32(RegRingAddrHi, uint32(addr>>32))
	f.Write32(RegRingAddrLo, uint32(addr))
}

// RingBase returns the published ring base address.
func (f *File) RingBase() uint64 {
	hi := uint64(f.Read32(RegRingAddrHi))
	lo := uint64(f.Read32(RegRingAddrLo))
	return hi<<32 | lo
}

// StrobeReset asks the device to return to its power-on state. The device's
// reset handler runs before this returns.
func (f *File) StrobeReset() {
	f.Write32(RegDevReset, ResetMagic)
}
