package memory

import (
	"errors"
	"fmt"
	"sort"
)

// ErrNoSpace is returned when an allocation cannot be satisfied.
var ErrNoSpace = errors.New("device memory exhausted")

type freeBlock struct {
	addr uint64
	size uint64
}

// An Allocator hands out device-visible address ranges from a Storage arena.
//
// It is a first-fit free-list allocator. Allocations are aligned so a
// single transfer buffer never straddles more alignment units than it has
// to; the DMA engine sizes its arena so the descriptor ring and one buffer
// per ring slot always fit.
type Allocator struct {
	storage   *Storage
	alignment uint64
	freeList  []freeBlock
	allocated map[uint64]uint64
}

// NewAllocator creates an allocator over the whole of the given storage,
// reserving the first `reserved` bytes (typically the descriptor ring) so
// they are never handed out as buffers.
func NewAllocator(storage *Storage, reserved uint64) *Allocator {
	if reserved > storage.Capacity() {
		panic("reserved region larger than storage")
	}

	a := &Allocator{
		storage:   storage,
		alignment: 64,
		allocated: make(map[uint64]uint64),
	}

	start := a.alignUp(reserved)
	a.freeList = []freeBlock{{addr: start, size: storage.Capacity() - start}}

	return a
}

func (a *Allocator) alignUp(v uint64) uint64 {
	return (v + a.alignment - 1) / a.alignment * a.alignment
}

// Allocate returns the device address of a fresh region of at least size
// bytes. It fails with ErrNoSpace when no free block is large enough.
func (a *Allocator) Allocate(size uint64) (uint64, error) {
	if size == 0 {
		panic("allocating zero bytes")
	}

	size = a.alignUp(size)

	for i, block := range a.freeList {
		if block.size < size {
			continue
		}

		addr := block.addr
		if block.size == size {
			a.freeList = append(a.freeList[:i], a.freeList[i+1:]...)
		} else {
			a.freeList[i].addr += size
			a.freeList[i].size -= size
		}

		a.allocated[addr] = size

		return addr, nil
	}

	return 0, fmt.Errorf("%w: no free block of %d bytes", ErrNoSpace, size)
}

// Free returns a region to the free list. Freeing an address that is not
// currently allocated is an ownership bug and panics.
func (a *Allocator) Free(addr uint64) {
	size, ok := a.allocated[addr]
	if !ok {
		panic(fmt.Sprintf("freeing unallocated address 0x%x", addr))
	}
	delete(a.allocated, addr)

	a.freeList = append(a.freeList, freeBlock{addr: addr, size: size})
	a.coalesce()
}

// coalesce merges adjacent free blocks so long-running engines do not
// fragment the arena.
func (a *Allocator) coalesce() {
	sort.Slice(a.freeList, func(i, j int) bool {
		return a.freeList[i].addr < a.freeList[j].addr
	})

	merged := a.freeList[:0]
	for _, block := range a.freeList {
		n := len(merged)
		if n > 0 && merged[n-1].addr+merged[n-1].size == block.addr {
			merged[n-1].size += block.size
			continue
		}
		merged = append(merged, block)
	}
	a.freeList = merged
}

// AllocatedBytes reports the total size of live allocations.
func (a *Allocator) AllocatedBytes() uint64 {
	var total uint64
	for _, size := range a.allocated {
		total += size
	}
	return total
}
