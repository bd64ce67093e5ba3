// Package dma implements the driver side of the loopback DMA engine: the
// descriptor queue controller, the per-slot context table, the transfer
// buffer lifecycle, and the completion notifier.
package dma

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"

	"github.com/ringlab/loopdma/hooking"
	"github.com/ringlab/loopdma/ring"
	"github.com/ringlab/loopdma/tracing"
)

//go:generate mockgen -destination "mock_registers_test.go" -package $GOPACKAGE -write_package_comment=false github.com/ringlab/loopdma/dma Registers

// Registers is the engine's view of the device register block. The
// full/empty checks depend on Head returning the device's live progress,
// never a software shadow, and SetTail carrying release semantics so the
// device cannot observe a half-written descriptor.
type Registers interface {
	Head() uint32
	Tail() uint32
	SetTail(v uint32)
	RingSize() uint32
	WriteRingSize(v uint32)
	SetRingBase(addr uint64)
	SetIntEnable(on bool)
	StrobeReset()
}

// An Engine owns one descriptor ring and the context table backing it.
//
// Submit and Retire may be invoked by independent concurrent callers; a
// mutex per role guarantees at most one submitter mutates the tail and at
// most one retirer mutates the head at a time. Only Retire may block, and
// only for its bounded wait budget.
type Engine struct {
	*hooking.HookableBase

	name string
	log  *logrus.Logger

	regs      Registers
	ring      *ring.Ring
	contexts  *contextTable
	lifecycle *lifecycleManager
	notifier  *CompletionNotifier

	ringSize        uint32
	maxTransferSize int
	waitBudget      time.Duration

	submitMu sync.Mutex
	retireMu sync.Mutex

	// head is the next slot to retire, tail the next slot to fill. Mutated
	// only under the matching role mutex; stored atomically so State can
	// snapshot them from other goroutines.
	head atomic.Uint32
	tail atomic.Uint32

	submitted atomic.Uint64
	retired   atomic.Uint64
}

// Name returns the engine name.
func (e *Engine) Name() string {
	return e.name
}

// MaxTransferSize returns the largest byte count one Submit accepts.
func (e *Engine) MaxTransferSize() int {
	return e.maxTransferSize
}

// Submit copies data into a fresh device buffer, fills the descriptor at
// the tail slot, and rings the doorbell. It never blocks: it either
// succeeds, returning the number of bytes accepted, or fails immediately.
//
// A zero-length submission is a legal empty operation that consumes no
// ring slot.
func (e *Engine) Submit(data []byte) (int, error) {
	if len(data) == 0 {
		return 0, nil
	}
	if len(data) > e.maxTransferSize {
		return 0, fmt.Errorf("%w: transfer of %d bytes exceeds maximum %d",
			ErrInvalidArgument, len(data), e.maxTransferSize)
	}

	e.submitMu.Lock()
	defer e.submitMu.Unlock()

	slot := e.tail.Load()
	nextTail := (slot + 1) % e.ringSize

	// The device's live progress guards against overrunning slots it has
	// not yet processed. A cached head could report full (or worse, free)
	// slots that no longer are.
	hwHead := e.regs.Head()
	if nextTail == hwHead {
		return 0, fmt.Errorf("%w: tail %d would collide with device head %d",
			ErrQueueFull, nextTail, hwHead)
	}

	// A completed slot keeps its buffer until it is retired; wrapping the
	// tail into it would hand one context to two transfers.
	if swHead := e.head.Load(); nextTail == swHead {
		return 0, fmt.Errorf(
			"%w: slot %d completed but still awaits retirement",
			ErrQueueFull, nextTail)
	}

	buf, err := e.lifecycle.acquire(uint64(len(data)))
	if err != nil {
		return 0, err
	}

	if err := e.lifecycle.commitInbound(buf, data); err != nil {
		e.lifecycle.release(buf)
		return 0, err
	}

	addr, length := e.lifecycle.publish(buf)

	transferID := xid.New().String()
	e.contexts.populate(slot, buf, transferID)

	e.ring.WriteDescriptor(slot, ring.Descriptor{
		Done:    ring.DonePending,
		InLen:   length,
		OutLen:  length,
		InAddr:  addr,
		OutAddr: addr, // in-place transform
	})

	tracing.StartTask(transferID, "", e, "transfer", "loopback", len(data))

	// Release-store of the tail publishes the descriptor, then the doorbell
	// side of the register write notifies the device.
	e.tail.Store(nextTail)
	e.regs.SetTail(nextTail)

	e.submitted.Add(1)
	e.log.WithFields(logrus.Fields{
		"engine": e.name,
		"slot":   slot,
		"bytes":  len(data),
		"addr":   fmt.Sprintf("0x%x", addr),
	}).Debug("submitted in-place transfer")

	return len(data), nil
}

// Retire waits for the slot at head to complete, copies up to len(p)
// bytes of the result into p, releases the slot's buffer, and advances the
// head. Slots retire strictly in ring order.
//
// If nothing has completed, Retire blocks until device progress becomes
// visible, the wait budget elapses (ErrTimeout), or ctx is cancelled
// (ErrInterrupted).
func (e *Engine) Retire(ctx context.Context, p []byte) (int, error) {
	e.retireMu.Lock()
	defer e.retireMu.Unlock()

	head := e.head.Load()

	if e.regs.Head() == head {
		err := e.notifier.Wait(ctx, e.waitBudget, func() bool {
			return e.regs.Head() != head
		})
		if err != nil {
			e.log.WithFields(logrus.Fields{
				"engine": e.name,
				"slot":   head,
			}).Warn("retire wait ended without completion: ", err)
			return 0, err
		}
	}

	// The acquire-load of the head register above ordered this read: the
	// done flag is examined before any buffer content, never after.
	desc := e.ring.ReadDescriptor(head)
	if desc.Done != ring.DoneComplete {
		return 0, fmt.Errorf(
			"%w: woke for slot %d but done flag is 0x%04x",
			ErrProtocolViolation, head, desc.Done)
	}

	slotCtx := e.contexts.at(head)
	n, copyErr := e.lifecycle.observe(slotCtx.buf, p)

	tracing.EndTask(slotCtx.id, e)

	e.lifecycle.release(slotCtx.buf)
	e.contexts.clear(head)
	e.head.Store((head + 1) % e.ringSize)
	e.retired.Add(1)

	if copyErr != nil {
		// The slot is retired either way; the data is simply lost. Keeping
		// the slot would wedge the ring behind an unreadable buffer.
		return 0, copyErr
	}

	e.log.WithFields(logrus.Fields{
		"engine": e.name,
		"slot":   head,
		"bytes":  n,
	}).Debug("retired completed transfer")

	return n, nil
}

// HandleInterrupt is the interrupt service path. It runs on the device's
// execution context and does nothing but wake blocked retirers: no ring
// inspection, no allocation, no blocking.
func (e *Engine) HandleInterrupt() {
	e.notifier.Broadcast()
}

// Reset returns the engine and the device to their power-on state:
// indices to zero, every in-flight buffer released, the ring cleared, and
// interrupts re-armed. Indices are re-read from the registers afterwards
// rather than assumed, so the software view cannot drift from the
// hardware's across a reset.
//
// Reset drains both roles first; a retirer parked in Wait delays it by at
// most one wait budget.
func (e *Engine) Reset() error {
	e.submitMu.Lock()
	defer e.submitMu.Unlock()
	e.retireMu.Lock()
	defer e.retireMu.Unlock()

	e.regs.StrobeReset()

	if e.regs.Head() != 0 || e.regs.Tail() != 0 {
		return fmt.Errorf(
			"%w: device did not zero its indices on reset (head=%d tail=%d)",
			ErrProtocolViolation, e.regs.Head(), e.regs.Tail())
	}

	e.contexts.eachLive(func(i uint32, c *contextSlot) {
		e.lifecycle.release(c.buf)
		e.contexts.clear(i)
	})
	e.ring.Clear()

	e.head.Store(e.regs.Head())
	e.tail.Store(e.regs.Tail())
	e.regs.SetIntEnable(true)

	e.log.WithField("engine", e.name).Info("engine reset")

	return nil
}

// State is a point-in-time snapshot of the queue, served by monitoring.
type State struct {
	Name        string `json:"name"`
	Depth       uint32 `json:"depth"`
	Head        uint32 `json:"head"`
	Tail        uint32 `json:"tail"`
	DeviceHead  uint32 `json:"device_head"`
	Outstanding uint32 `json:"outstanding"`
	Submitted   uint64 `json:"submitted"`
	Retired     uint64 `json:"retired"`
}

// State snapshots the queue without disturbing either role.
func (e *Engine) State() State {
	head := e.head.Load()
	tail := e.tail.Load()

	return State{
		Name:        e.name,
		Depth:       e.ringSize,
		Head:        head,
		Tail:        tail,
		DeviceHead:  e.regs.Head(),
		Outstanding: (tail + e.ringSize - head) % e.ringSize,
		Submitted:   e.submitted.Load(),
		Retired:     e.retired.Load(),
	}
}
