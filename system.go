// Package loopdma assembles a complete loopback DMA system: device
// memory, register block, descriptor ring, the device model, the driver
// engine, and optional tracing and monitoring around them.
package loopdma

import (
	"time"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"

	"github.com/ringlab/loopdma/device"
	"github.com/ringlab/loopdma/dma"
	"github.com/ringlab/loopdma/memory"
	"github.com/ringlab/loopdma/monitoring"
	"github.com/ringlab/loopdma/regs"
	"github.com/ringlab/loopdma/ring"
	"github.com/ringlab/loopdma/tracing"
)

// A System is one fully wired engine/device pair.
type System struct {
	id  string
	log *logrus.Logger

	storage   *memory.Storage
	allocator *memory.Allocator
	regs      *regs.File
	ring      *ring.Ring
	device    *device.Loopback
	engine    *dma.Engine

	monitor *monitoring.Monitor
	tracer  *tracing.DBTracer
}

// ID returns the system's unique ID.
func (s *System) ID() string { return s.id }

// Engine returns the driver-side engine.
func (s *System) Engine() *dma.Engine { return s.engine }

// Device returns the device model.
func (s *System) Device() *device.Loopback { return s.device }

// Registers returns the register block shared by both sides.
func (s *System) Registers() *regs.File { return s.regs }

// Monitor returns the monitoring server, or nil if monitoring is off.
func (s *System) Monitor() *monitoring.Monitor { return s.monitor }

// Terminate stops the device and tears down tracing and monitoring.
func (s *System) Terminate() {
	s.device.Stop()
	if s.monitor != nil {
		s.monitor.StopServer()
	}
	if s.tracer != nil {
		s.tracer.Flush()
	}
}

// A Builder assembles a System.
type Builder struct {
	log *logrus.Logger

	ringDepth       uint32
	memoryCapacity  uint64
	maxTransferSize int
	waitBudget      time.Duration
	procDelay       time.Duration

	monitorOn   bool
	monitorPort int
	traceOn     bool
	traceDB     string
}

// MakeBuilder returns a Builder with the default configuration: a 128-slot
// ring and a 5-second wait budget.
func MakeBuilder() Builder {
	return Builder{
		ringDepth:  128,
		waitBudget: 5 * time.Second,
	}
}

// WithLogger sets the logger shared by all components.
func (b Builder) WithLogger(l *logrus.Logger) Builder {
	b.log = l
	return b
}

// WithRingDepth sets the descriptor ring depth.
func (b Builder) WithRingDepth(depth uint32) Builder {
	b.ringDepth = depth
	return b
}

// WithMemoryCapacity overrides the size of the device memory arena.
func (b Builder) WithMemoryCapacity(capacity uint64) Builder {
	b.memoryCapacity = capacity
	return b
}

// WithMaxTransferSize overrides the single-transfer size cap.
func (b Builder) WithMaxTransferSize(n int) Builder {
	b.maxTransferSize = n
	return b
}

// WithWaitBudget sets the bounded wait applied to blocking retirements.
func (b Builder) WithWaitBudget(d time.Duration) Builder {
	b.waitBudget = d
	return b
}

// WithProcessingDelay makes the device spend a fixed time per descriptor.
func (b Builder) WithProcessingDelay(d time.Duration) Builder {
	b.procDelay = d
	return b
}

// WithMonitor enables the monitoring server on the given port (0 picks a
// random port).
func (b Builder) WithMonitor(port int) Builder {
	b.monitorOn = true
	b.monitorPort = port
	return b
}

// WithTraceDB enables transfer tracing into the named SQLite database.
// An empty name generates a unique one.
func (b Builder) WithTraceDB(name string) Builder {
	b.traceOn = true
	b.traceDB = name
	return b
}

// Build wires everything together and starts the device.
func (b Builder) Build(name string) (*System, error) {
	if b.log == nil {
		b.log = logrus.New()
	}

	s := &System{
		id:  xid.New().String(),
		log: b.log,
	}

	ringReserve := uint64(b.ringDepth) * ring.DescriptorBytes

	capacity := b.memoryCapacity
	if capacity == 0 {
		// Room for the ring plus one page-sized buffer per slot, doubled so
		// allocator alignment never causes spurious exhaustion.
		capacity = ringReserve + uint64(b.ringDepth)*4096*2
	}

	s.storage = memory.NewStorage(capacity)
	s.allocator = memory.NewAllocator(s.storage, ringReserve)
	s.regs = regs.NewFile()
	s.ring = ring.New(0, b.ringDepth)

	s.device = device.MakeBuilder().
		WithRegisters(s.regs).
		WithMemory(s.storage).
		WithRing(s.ring).
		WithLogger(b.log).
		WithProcessingDelay(b.procDelay).
		Build(name + ".Device")

	engineBuilder := dma.MakeBuilder().
		WithRegisters(s.regs).
		WithRing(s.ring).
		WithStorage(s.storage).
		WithAllocator(s.allocator).
		WithLogger(b.log).
		WithWaitBudget(b.waitBudget)
	if b.maxTransferSize != 0 {
		engineBuilder = engineBuilder.WithMaxTransferSize(b.maxTransferSize)
	}

	engine, err := engineBuilder.Build(name + ".Engine")
	if err != nil {
		return nil, err
	}
	s.engine = engine

	s.device.SetInterruptHandler(engine.HandleInterrupt)

	if b.traceOn {
		writer := tracing.NewSQLiteTraceWriter(b.traceDB)
		s.tracer = tracing.NewDBTracer(tracing.NewWallClock(), writer)
		engine.AcceptHook(s.tracer)
	}

	if b.monitorOn {
		s.monitor = monitoring.NewMonitor().
			WithPortNumber(b.monitorPort).
			WithLogger(b.log)
		s.monitor.RegisterEngine(engine)
		if _, err := s.monitor.StartServer(); err != nil {
			return nil, err
		}
	}

	if err := s.device.Start(); err != nil {
		return nil, err
	}

	return s, nil
}
