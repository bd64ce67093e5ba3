package device

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ringlab/loopdma/hooking"
	"github.com/ringlab/loopdma/memory"
	"github.com/ringlab/loopdma/regs"
	"github.com/ringlab/loopdma/ring"
)

// A Builder assembles a Loopback device and attaches it to a register
// block. Building the device wires the doorbell, reset, and ring-size
// filter callbacks, so the device must be built before the driver probes
// the registers.
type Builder struct {
	regs      *regs.File
	mem       *memory.Storage
	ring      *ring.Ring
	log       *logrus.Logger
	maxDepth  uint32
	procDelay time.Duration
}

// MakeBuilder returns a Builder with the default configuration.
func MakeBuilder() Builder {
	return Builder{
		maxDepth: 4096,
	}
}

// WithRegisters sets the register block the device is behind.
func (b Builder) WithRegisters(r *regs.File) Builder {
	b.regs = r
	return b
}

// WithMemory sets the device-visible memory buffers live in.
func (b Builder) WithMemory(m *memory.Storage) Builder {
	b.mem = m
	return b
}

// WithRing sets the mapped descriptor ring.
func (b Builder) WithRing(r *ring.Ring) Builder {
	b.ring = r
	return b
}

// WithLogger sets the logger. Defaults to a fresh logrus logger.
func (b Builder) WithLogger(l *logrus.Logger) Builder {
	b.log = l
	return b
}

// WithMaxDepth limits the ring depths the device accepts.
func (b Builder) WithMaxDepth(n uint32) Builder {
	b.maxDepth = n
	return b
}

// WithProcessingDelay makes the device spend a fixed time per descriptor.
// Tests use it to hold completions back.
func (b Builder) WithProcessingDelay(d time.Duration) Builder {
	b.procDelay = d
	return b
}

// Build creates the device and hooks it to the register block.
func (b Builder) Build(name string) *Loopback {
	b.mustBeComplete()

	if b.log == nil {
		b.log = logrus.New()
	}

	d := &Loopback{
		HookableBase: hooking.NewHookableBase(),
		name:         name,
		log:          b.log,
		regs:         b.regs,
		mem:          b.mem,
		ring:         b.ring,
		maxDepth:     b.maxDepth,
		procDelay:    b.procDelay,
		doorbell:     make(chan struct{}, 1),
		stop:         make(chan struct{}),
		finished:     make(chan struct{}),
	}

	b.regs.OnDoorbell(d.onDoorbell)
	b.regs.OnReset(d.onReset)
	b.regs.RingSizeFilter(d.filterRingSize)

	return d
}

func (b Builder) mustBeComplete() {
	if b.regs == nil {
		panic("device builder needs a register block")
	}
	if b.mem == nil {
		panic("device builder needs device memory")
	}
	if b.ring == nil {
		panic("device builder needs a mapped ring")
	}
}
