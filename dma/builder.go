package dma

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ringlab/loopdma/hooking"
	"github.com/ringlab/loopdma/memory"
	"github.com/ringlab/loopdma/ring"
)

// A Builder assembles an Engine over an already-wired register block,
// descriptor ring, and device memory.
type Builder struct {
	regs      Registers
	ring      *ring.Ring
	storage   *memory.Storage
	allocator *memory.Allocator
	log       *logrus.Logger

	maxTransferSize int
	waitBudget      time.Duration
}

// MakeBuilder returns a Builder with the default configuration: a
// 5-second wait budget and a maximum transfer of one platform page
// (capped at the 16-bit descriptor length field).
func MakeBuilder() Builder {
	maxTransfer := os.Getpagesize()
	if maxTransfer > 0xFFFF {
		maxTransfer = 0xFFFF
	}

	return Builder{
		maxTransferSize: maxTransfer,
		waitBudget:      5 * time.Second,
	}
}

// WithRegisters sets the register block the engine drives.
func (b Builder) WithRegisters(r Registers) Builder {
	b.regs = r
	return b
}

// WithRing sets the descriptor ring shared with the device.
func (b Builder) WithRing(r *ring.Ring) Builder {
	b.ring = r
	return b
}

// WithStorage sets the device memory that holds transfer buffers.
func (b Builder) WithStorage(s *memory.Storage) Builder {
	b.storage = s
	return b
}

// WithAllocator sets the allocator that carves buffers out of storage.
func (b Builder) WithAllocator(a *memory.Allocator) Builder {
	b.allocator = a
	return b
}

// WithLogger sets the logger. Defaults to a fresh logrus logger.
func (b Builder) WithLogger(l *logrus.Logger) Builder {
	b.log = l
	return b
}

// WithMaxTransferSize overrides the single-transfer size cap.
func (b Builder) WithMaxTransferSize(n int) Builder {
	if n <= 0 || n > 0xFFFF {
		panic("max transfer size must fit the 16-bit descriptor length")
	}
	b.maxTransferSize = n
	return b
}

// WithWaitBudget overrides the bounded wait applied to every blocking
// retirement. An indefinite wait is not acceptable against hardware.
func (b Builder) WithWaitBudget(d time.Duration) Builder {
	if d <= 0 {
		panic("wait budget must be positive")
	}
	b.waitBudget = d
	return b
}

// Build performs the probe sequence against the register block and returns
// a ready engine: the ring depth is written and read back (the device may
// refuse unsupported depths), the ring base is published, and interrupts
// are armed.
func (b Builder) Build(name string) (*Engine, error) {
	b.mustBeComplete()

	if b.log == nil {
		b.log = logrus.New()
	}

	depth := b.ring.Depth()
	b.regs.WriteRingSize(depth)
	if accepted := b.regs.RingSize(); accepted != depth {
		return nil, fmt.Errorf(
			"%w: device rejected ring depth %d (reports %d)",
			ErrInvalidArgument, depth, accepted)
	}

	b.regs.SetRingBase(b.ring.Base())
	b.regs.SetIntEnable(true)

	e := &Engine{
		HookableBase:    hooking.NewHookableBase(),
		name:            name,
		log:             b.log,
		regs:            b.regs,
		ring:            b.ring,
		contexts:        newContextTable(depth),
		lifecycle:       newLifecycleManager(b.storage, b.allocator),
		notifier:        NewCompletionNotifier(),
		ringSize:        depth,
		maxTransferSize: b.maxTransferSize,
		waitBudget:      b.waitBudget,
	}

	e.head.Store(b.regs.Head())
	e.tail.Store(b.regs.Tail())

	b.log.WithFields(logrus.Fields{
		"engine":       name,
		"depth":        depth,
		"max_transfer": b.maxTransferSize,
	}).Info("DMA engine ready")

	return e, nil
}

func (b Builder) mustBeComplete() {
	if b.regs == nil {
		panic("engine builder needs a register block")
	}
	if b.ring == nil {
		panic("engine builder needs a descriptor ring")
	}
	if b.storage == nil || b.allocator == nil {
		panic("engine builder needs device memory and an allocator")
	}
}
