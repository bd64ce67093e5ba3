package dma

import "fmt"

// A contextSlot tracks the software-side state backing one in-flight
// descriptor: which buffer it owns, where the device sees it, and how big
// it is. A slot holds a live buffer if and only if the matching descriptor
// is between tail-advance and head-advance.
type contextSlot struct {
	buf  *Buffer
	addr uint64
	size uint64
	id   string
}

func (c *contextSlot) live() bool {
	return c.buf != nil
}

// contextTable is the software-only array parallel to the descriptor ring.
type contextTable struct {
	slots []contextSlot
}

func newContextTable(depth uint32) *contextTable {
	return &contextTable{slots: make([]contextSlot, depth)}
}

// populate records buffer ownership for slot i at submission time. The id
// tags the transfer for tracing.
func (t *contextTable) populate(i uint32, buf *Buffer, id string) {
	t.mustBeEmpty(i)

	t.slots[i] = contextSlot{
		buf:  buf,
		addr: buf.Addr(),
		size: buf.Size(),
		id:   id,
	}
}

// at returns the live context for slot i.
func (t *contextTable) at(i uint32) *contextSlot {
	t.mustBeLive(i)
	return &t.slots[i]
}

// clear empties slot i at retirement. The buffer must already have been
// released by the caller.
func (t *contextTable) clear(i uint32) {
	t.mustBeLive(i)
	t.slots[i] = contextSlot{}
}

// eachLive visits every populated slot; used during reset teardown.
func (t *contextTable) eachLive(fn func(i uint32, c *contextSlot)) {
	for i := range t.slots {
		if t.slots[i].live() {
			fn(uint32(i), &t.slots[i])
		}
	}
}

func (t *contextTable) mustBeEmpty(i uint32) {
	if t.slots[i].live() {
		panic(fmt.Sprintf("context slot %d already owns a buffer", i))
	}
}

func (t *contextTable) mustBeLive(i uint32) {
	if !t.slots[i].live() {
		panic(fmt.Sprintf("context slot %d has no buffer", i))
	}
}
