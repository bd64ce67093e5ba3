package dma

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("context table", func() {
	var table *contextTable

	BeforeEach(func() {
		table = newContextTable(4)
	})

	It("tracks a buffer from populate to clear", func() {
		buf := &Buffer{addr: 0x100, size: 32}

		table.populate(2, buf, "transfer-1")

		slot := table.at(2)
		Expect(slot.buf).To(BeIdenticalTo(buf))
		Expect(slot.addr).To(Equal(uint64(0x100)))
		Expect(slot.size).To(Equal(uint64(32)))
		Expect(slot.id).To(Equal("transfer-1"))

		table.clear(2)
		Expect(func() { table.at(2) }).To(Panic())
	})

	It("panics when a slot is populated twice", func() {
		table.populate(0, &Buffer{addr: 0x100, size: 32}, "a")

		Expect(func() {
			table.populate(0, &Buffer{addr: 0x200, size: 32}, "b")
		}).To(Panic())
	})

	It("panics when clearing an empty slot", func() {
		Expect(func() { table.clear(1) }).To(Panic())
	})

	It("visits only live slots", func() {
		table.populate(1, &Buffer{addr: 0x100, size: 32}, "a")
		table.populate(3, &Buffer{addr: 0x200, size: 32}, "b")

		var visited []uint32
		table.eachLive(func(i uint32, _ *contextSlot) {
			visited = append(visited, i)
		})

		Expect(visited).To(Equal([]uint32{1, 3}))
	})
})
