package dma

import (
	"fmt"

	"github.com/ringlab/loopdma/memory"
)

// A Buffer is one device-addressable transfer buffer. It is exclusively
// owned by its context slot from submission until retirement.
type Buffer struct {
	addr     uint64
	size     uint64
	released bool
}

// Addr returns the device-visible address of the buffer.
func (b *Buffer) Addr() uint64 {
	return b.addr
}

// Size returns the buffer size in bytes.
func (b *Buffer) Size() uint64 {
	return b.size
}

// lifecycleManager allocates, fills, exposes, and releases transfer
// buffers. It owns the ordering rules around the hardware handoff:
// a buffer published into a descriptor must be fully committed first, and
// may only be observed after the completion flag for its slot has been
// read through the head register.
type lifecycleManager struct {
	mem   *memory.Storage
	alloc *memory.Allocator
}

func newLifecycleManager(
	mem *memory.Storage,
	alloc *memory.Allocator,
) *lifecycleManager {
	return &lifecycleManager{mem: mem, alloc: alloc}
}

// acquire allocates a device buffer of exactly size bytes. On failure the
// submission that asked for it must fail with no descriptor state behind.
func (lm *lifecycleManager) acquire(size uint64) (*Buffer, error) {
	addr, err := lm.alloc.Allocate(size)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOutOfMemory, err)
	}

	return &Buffer{addr: addr, size: size}, nil
}

// commitInbound copies caller bytes into the buffer. A partial copy
// surfaces as ErrFaultyTransfer; the caller releases the buffer.
func (lm *lifecycleManager) commitInbound(buf *Buffer, src []byte) error {
	if uint64(len(src)) != buf.size {
		return fmt.Errorf("%w: committing %d bytes into a %d-byte buffer",
			ErrFaultyTransfer, len(src), buf.size)
	}

	if err := lm.mem.Write(buf.addr, src); err != nil {
		return fmt.Errorf("%w: %v", ErrFaultyTransfer, err)
	}

	return nil
}

// publish returns the fields the descriptor needs. The caller must follow
// the descriptor write with the tail-register doorbell, whose release
// semantics guarantee the device never sees a half-written descriptor.
func (lm *lifecycleManager) publish(buf *Buffer) (addr uint64, length uint16) {
	return buf.addr, uint16(buf.size)
}

// observe copies up to len(dst) bytes of the completed buffer out. Callers
// must have read the slot's done flag after an acquire-load of the head
// register; that pairing is what makes this view fresh.
func (lm *lifecycleManager) observe(buf *Buffer, dst []byte) (int, error) {
	n := buf.size
	if uint64(len(dst)) < n {
		n = uint64(len(dst))
	}

	data, err := lm.mem.Read(buf.addr, n)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrFaultyTransfer, err)
	}
	copy(dst, data)

	return int(n), nil
}

// release frees the buffer. Releasing twice, or releasing a buffer whose
// descriptor is still in flight, is an ownership bug and panics.
func (lm *lifecycleManager) release(buf *Buffer) {
	if buf.released {
		panic(fmt.Sprintf("double release of buffer at 0x%x", buf.addr))
	}
	buf.released = true

	lm.alloc.Free(buf.addr)
}
