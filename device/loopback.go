// Package device models the hardware side of the loopback DMA engine: a
// consumer that walks the descriptor ring, transforms each buffer in
// place, marks the slot complete, and raises a payloadless interrupt.
package device

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ringlab/loopdma/hooking"
	"github.com/ringlab/loopdma/memory"
	"github.com/ringlab/loopdma/regs"
	"github.com/ringlab/loopdma/ring"
)

var (
	// HookPosDoorbell marks the posted tail write reaching the device.
	HookPosDoorbell = &hooking.HookPos{Name: "Device Doorbell"}

	// HookPosSlotComplete marks a descriptor transitioning to complete.
	HookPosSlotComplete = &hooking.HookPos{Name: "Device Slot Complete"}

	// HookPosInterrupt marks the device raising its interrupt line.
	HookPosInterrupt = &hooking.HookPos{Name: "Device Interrupt"}
)

// A Loopback processes descriptors in ring order on its own execution
// context. It never completes slots out of submission order.
type Loopback struct {
	*hooking.HookableBase

	name string
	log  *logrus.Logger

	regs *regs.File
	mem  *memory.Storage
	ring *ring.Ring

	maxDepth  uint32
	procDelay time.Duration

	raiseInterrupt func()

	// procMu covers the device's progress state: the run loop holds it
	// while walking the ring, and the reset strobe holds it while zeroing.
	procMu  sync.Mutex
	head    uint32
	faulted bool

	doorbell chan struct{}
	stop     chan struct{}
	finished chan struct{}
	started  bool
}

// Name returns the device name.
func (d *Loopback) Name() string {
	return d.name
}

// SetInterruptHandler wires the interrupt line. Must be called before
// Start. The handler runs on the device's execution context and must not
// block.
func (d *Loopback) SetInterruptHandler(fn func()) {
	d.raiseInterrupt = fn
}

// Start launches the device's execution context. The driver must have
// published the ring base by now; a mismatch means the two sides would
// silently walk different memory.
func (d *Loopback) Start() error {
	if d.started {
		panic("device already started")
	}
	if d.raiseInterrupt == nil {
		panic("device has no interrupt handler")
	}

	if base := d.regs.RingBase(); base != d.ring.Base() {
		return fmt.Errorf(
			"ring base register 0x%x does not match mapped ring at 0x%x",
			base, d.ring.Base())
	}

	d.started = true
	go d.run()

	d.log.WithFields(logrus.Fields{
		"device": d.name,
		"depth":  d.regs.RingSize(),
	}).Info("loopback device running")

	return nil
}

// Stop tears the device down after the current batch finishes.
func (d *Loopback) Stop() {
	if !d.started {
		return
	}
	close(d.stop)
	<-d.finished
	d.started = false
}

func (d *Loopback) run() {
	defer close(d.finished)

	for {
		select {
		case <-d.stop:
			return
		case <-d.doorbell:
			d.processRing()
		}
	}
}

// onDoorbell runs on the driver's context when the tail register is
// written. It only nudges the run loop; coalescing multiple rings into one
// wakeup is fine because the loop drains up to the live tail.
func (d *Loopback) onDoorbell() {
	d.InvokeHook(hooking.HookCtx{
		Domain: d,
		Pos:    HookPosDoorbell,
	})

	select {
	case d.doorbell <- struct{}{}:
	default:
	}
}

// onReset runs on the driver's context when the reset register is
// strobed. The register write returning is the device's reset ack.
func (d *Loopback) onReset() {
	d.procMu.Lock()
	defer d.procMu.Unlock()

	d.head = 0
	d.faulted = false
	d.regs.ResetIndices()

	d.log.WithField("device", d.name).Info("device reset")
}

// filterRingSize is the device's say over proposed ring depths. Returning
// zero for an unsupported depth makes the driver's read-back check fail.
func (d *Loopback) filterRingSize(v uint32) uint32 {
	if v < 2 || v > d.maxDepth {
		return 0
	}
	return v
}

func (d *Loopback) processRing() {
	d.procMu.Lock()
	defer d.procMu.Unlock()

	if d.faulted {
		return
	}

	depth := d.regs.RingSize()
	if depth == 0 {
		return
	}

	completed := false

	for {
		// Acquire-load of the tail: every descriptor byte the driver wrote
		// before ringing the doorbell is visible past this point.
		tail := d.regs.Tail()
		if d.head == tail {
			break
		}

		for d.head != tail {
			if !d.processSlot(d.head) {
				d.faulted = true
				return
			}

			// The done flag is written before the head publish below, so a
			// driver that observes the new head always sees a completed slot.
			d.head = (d.head + 1) % depth
			d.regs.SetHead(d.head)
			completed = true
		}
	}

	// One notification per completion batch, and only while the driver has
	// the line armed.
	if completed && d.regs.IntEnabled() {
		d.InvokeHook(hooking.HookCtx{
			Domain: d,
			Pos:    HookPosInterrupt,
		})
		d.raiseInterrupt()
	}
}

func (d *Loopback) processSlot(i uint32) bool {
	desc := d.ring.ReadDescriptor(i)

	if desc.Done != ring.DonePending {
		d.log.WithFields(logrus.Fields{
			"device": d.name,
			"slot":   i,
			"done":   fmt.Sprintf("0x%04x", desc.Done),
		}).Error("slot reached device without pending flag, halting")
		return false
	}

	n := desc.InLen
	if desc.OutLen < n {
		n = desc.OutLen
	}

	data, err := d.mem.Read(desc.InAddr, uint64(n))
	if err != nil {
		d.log.WithField("device", d.name).Error("descriptor read fault: ", err)
		return false
	}

	if d.procDelay > 0 {
		time.Sleep(d.procDelay)
	}

	// The loopback transform is the identity; writing through out_addr
	// still exercises the full in-place data path.
	if err := d.mem.Write(desc.OutAddr, data); err != nil {
		d.log.WithField("device", d.name).Error("descriptor write fault: ", err)
		return false
	}

	d.ring.CompleteSlot(i)

	d.InvokeHook(hooking.HookCtx{
		Domain: d,
		Pos:    HookPosSlotComplete,
		Item:   i,
	})

	return true
}
