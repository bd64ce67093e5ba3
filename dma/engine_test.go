package dma

import (
	"context"
	"io"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"
	gomock "go.uber.org/mock/gomock"

	"github.com/ringlab/loopdma/memory"
	"github.com/ringlab/loopdma/ring"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

var _ = Describe("Engine", func() {
	const depth = uint32(4)

	var (
		mockCtrl *gomock.Controller
		mockRegs *MockRegisters
		hwHead   atomic.Uint32
		hwTail   atomic.Uint32

		storage   *memory.Storage
		allocator *memory.Allocator
		descRing  *ring.Ring
		engine    *Engine
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		mockRegs = NewMockRegisters(mockCtrl)
		hwHead.Store(0)
		hwTail.Store(0)

		mockRegs.EXPECT().Head().
			DoAndReturn(func() uint32 { return hwHead.Load() }).
			AnyTimes()
		mockRegs.EXPECT().Tail().
			DoAndReturn(func() uint32 { return hwTail.Load() }).
			AnyTimes()
		mockRegs.EXPECT().SetTail(gomock.Any()).
			Do(func(v uint32) { hwTail.Store(v) }).
			AnyTimes()
		mockRegs.EXPECT().WriteRingSize(depth)
		mockRegs.EXPECT().RingSize().Return(depth)
		mockRegs.EXPECT().SetRingBase(uint64(0))
		mockRegs.EXPECT().SetIntEnable(true).AnyTimes()

		storage = memory.NewStorage(1 << 20)
		allocator = memory.NewAllocator(
			storage, uint64(depth)*ring.DescriptorBytes)
		descRing = ring.New(0, depth)

		var err error
		engine, err = MakeBuilder().
			WithRegisters(mockRegs).
			WithRing(descRing).
			WithStorage(storage).
			WithAllocator(allocator).
			WithLogger(quietLogger()).
			WithWaitBudget(200 * time.Millisecond).
			Build("Engine")
		Expect(err).ToNot(HaveOccurred())
	})

	Describe("building", func() {
		It("rejects a ring depth the device refuses", func() {
			badRegs := NewMockRegisters(mockCtrl)
			badRegs.EXPECT().WriteRingSize(depth)
			badRegs.EXPECT().RingSize().Return(uint32(0))

			_, err := MakeBuilder().
				WithRegisters(badRegs).
				WithRing(descRing).
				WithStorage(storage).
				WithAllocator(allocator).
				WithLogger(quietLogger()).
				Build("Rejected")

			Expect(err).To(MatchError(ErrInvalidArgument))
		})
	})

	Describe("submitting", func() {
		It("treats a zero-length transfer as an empty operation", func() {
			n, err := engine.Submit(nil)

			Expect(err).ToNot(HaveOccurred())
			Expect(n).To(Equal(0))
			Expect(engine.State().Tail).To(Equal(uint32(0)))
		})

		It("rejects a transfer beyond the size cap", func() {
			data := make([]byte, engine.MaxTransferSize()+1)

			_, err := engine.Submit(data)

			Expect(err).To(MatchError(ErrInvalidArgument))
			Expect(engine.State().Tail).To(Equal(uint32(0)))
		})

		It("writes a pending descriptor and rings the doorbell", func() {
			payload := []byte("hello")

			n, err := engine.Submit(payload)

			Expect(err).ToNot(HaveOccurred())
			Expect(n).To(Equal(len(payload)))
			Expect(hwTail.Load()).To(Equal(uint32(1)))

			desc := descRing.ReadDescriptor(0)
			Expect(desc.Done).To(Equal(ring.DonePending))
			Expect(desc.InLen).To(Equal(uint16(len(payload))))
			Expect(desc.OutLen).To(Equal(uint16(len(payload))))
			Expect(desc.OutAddr).To(Equal(desc.InAddr))
			Expect(desc.InAddr).To(
				BeNumerically(">=", uint64(depth)*ring.DescriptorBytes))

			stored, err := storage.Read(desc.InAddr, uint64(len(payload)))
			Expect(err).ToNot(HaveOccurred())
			Expect(stored).To(Equal(payload))
		})

		It("fails with QueueFull once ring_size-1 slots are outstanding", func() {
			for i := 0; i < int(depth)-1; i++ {
				_, err := engine.Submit([]byte("payload"))
				Expect(err).ToNot(HaveOccurred())
			}
			allocatedBefore := allocator.AllocatedBytes()

			_, err := engine.Submit([]byte("one too many"))

			Expect(err).To(MatchError(ErrQueueFull))
			Expect(allocator.AllocatedBytes()).To(Equal(allocatedBefore))
			Expect(engine.State().Tail).To(Equal(depth - 1))
		})

		It("refuses to wrap into a completed slot awaiting retirement", func() {
			for i := 0; i < int(depth)-1; i++ {
				_, err := engine.Submit([]byte("payload"))
				Expect(err).ToNot(HaveOccurred())
			}

			// The device drains everything, but nothing has been retired:
			// every slot still owns its buffer.
			for i := uint32(0); i < depth-1; i++ {
				descRing.CompleteSlot(i)
			}
			hwHead.Store(depth - 1)

			_, err := engine.Submit([]byte("would clobber slot 0"))

			Expect(err).To(MatchError(ErrQueueFull))
			Expect(hwTail.Load()).To(Equal(depth - 1))
		})

		It("frees capacity only when a slot is retired", func() {
			for i := 0; i < int(depth)-1; i++ {
				_, err := engine.Submit([]byte("payload"))
				Expect(err).ToNot(HaveOccurred())
			}
			for i := uint32(0); i < depth-1; i++ {
				descRing.CompleteSlot(i)
			}
			hwHead.Store(depth - 1)

			_, err := engine.Retire(context.Background(), make([]byte, 8))
			Expect(err).ToNot(HaveOccurred())

			_, err = engine.Submit([]byte("fits now"))

			Expect(err).ToNot(HaveOccurred())
			Expect(hwTail.Load()).To(Equal(uint32(0)))
		})

		Context("with an exhausted buffer arena", func() {
			BeforeEach(func() {
				mockRegs.EXPECT().WriteRingSize(depth)
				mockRegs.EXPECT().RingSize().Return(depth)
				mockRegs.EXPECT().SetRingBase(uint64(0))

				allocator = memory.NewAllocator(storage, storage.Capacity()-64)

				var err error
				engine, err = MakeBuilder().
					WithRegisters(mockRegs).
					WithRing(descRing).
					WithStorage(storage).
					WithAllocator(allocator).
					WithLogger(quietLogger()).
					WithWaitBudget(200 * time.Millisecond).
					Build("Starved")
				Expect(err).ToNot(HaveOccurred())
			})

			It("fails with OutOfMemory and leaves the ring untouched", func() {
				_, err := engine.Submit(make([]byte, 65))

				Expect(err).To(MatchError(ErrOutOfMemory))
				Expect(hwTail.Load()).To(Equal(uint32(0)))
				Expect(descRing.ReadDescriptor(0)).To(Equal(ring.Descriptor{}))
			})
		})
	})

	Describe("retiring", func() {
		completeSlot := func(slot uint32) {
			descRing.CompleteSlot(slot)
			hwHead.Store((slot + 1) % depth)
		}

		It("returns the completed payload", func() {
			payload := []byte("round trip")
			_, err := engine.Submit(payload)
			Expect(err).ToNot(HaveOccurred())
			completeSlot(0)

			out := make([]byte, 64)
			n, err := engine.Retire(context.Background(), out)

			Expect(err).ToNot(HaveOccurred())
			Expect(n).To(Equal(len(payload)))
			Expect(out[:n]).To(Equal(payload))
			Expect(allocator.AllocatedBytes()).To(Equal(uint64(0)))
		})

		It("truncates the result to the destination capacity", func() {
			_, err := engine.Submit([]byte("truncated"))
			Expect(err).ToNot(HaveOccurred())
			completeSlot(0)

			out := make([]byte, 5)
			n, err := engine.Retire(context.Background(), out)

			Expect(err).ToNot(HaveOccurred())
			Expect(n).To(Equal(5))
			Expect(out).To(Equal([]byte("trunc")))
		})

		It("retires slots strictly in ring order", func() {
			_, err := engine.Submit([]byte("first"))
			Expect(err).ToNot(HaveOccurred())
			_, err = engine.Submit([]byte("second"))
			Expect(err).ToNot(HaveOccurred())
			descRing.CompleteSlot(0)
			descRing.CompleteSlot(1)
			hwHead.Store(2)

			out := make([]byte, 64)
			n, err := engine.Retire(context.Background(), out)
			Expect(err).ToNot(HaveOccurred())
			Expect(out[:n]).To(Equal([]byte("first")))

			n, err = engine.Retire(context.Background(), out)
			Expect(err).ToNot(HaveOccurred())
			Expect(out[:n]).To(Equal([]byte("second")))
		})

		It("times out when no completion arrives", func() {
			start := time.Now()

			_, err := engine.Retire(context.Background(), make([]byte, 8))

			Expect(err).To(MatchError(ErrTimeout))
			Expect(time.Since(start)).To(
				BeNumerically(">=", 200*time.Millisecond))
		})

		It("reports Interrupted when the context is cancelled", func() {
			ctx, cancel := context.WithTimeout(
				context.Background(), 30*time.Millisecond)
			defer cancel()

			_, err := engine.Retire(ctx, make([]byte, 8))

			Expect(err).To(MatchError(ErrInterrupted))
		})

		It("wakes on an interrupt instead of burning the budget", func() {
			payload := []byte("ping")
			_, err := engine.Submit(payload)
			Expect(err).ToNot(HaveOccurred())

			go func() {
				defer GinkgoRecover()
				time.Sleep(50 * time.Millisecond)
				completeSlot(0)
				engine.HandleInterrupt()
			}()

			out := make([]byte, 64)
			start := time.Now()
			n, err := engine.Retire(context.Background(), out)

			Expect(err).ToNot(HaveOccurred())
			Expect(out[:n]).To(Equal(payload))
			Expect(time.Since(start)).To(
				BeNumerically("<", 200*time.Millisecond))
		})

		It("flags a completion wake without a done flag", func() {
			_, err := engine.Submit([]byte("never finished"))
			Expect(err).ToNot(HaveOccurred())

			// Head advances but the descriptor stays pending.
			hwHead.Store(1)

			_, err = engine.Retire(context.Background(), make([]byte, 8))

			Expect(err).To(MatchError(ErrProtocolViolation))
		})
	})

	Describe("resetting", func() {
		It("returns the queue to its power-on state", func() {
			_, err := engine.Submit([]byte("in flight one"))
			Expect(err).ToNot(HaveOccurred())
			_, err = engine.Submit([]byte("in flight two"))
			Expect(err).ToNot(HaveOccurred())

			mockRegs.EXPECT().StrobeReset().Do(func() {
				hwHead.Store(0)
				hwTail.Store(0)
			})

			Expect(engine.Reset()).To(Succeed())

			state := engine.State()
			Expect(state.Head).To(Equal(uint32(0)))
			Expect(state.Tail).To(Equal(uint32(0)))
			Expect(state.Outstanding).To(Equal(uint32(0)))
			Expect(allocator.AllocatedBytes()).To(Equal(uint64(0)))
			Expect(descRing.ReadDescriptor(0)).To(Equal(ring.Descriptor{}))
		})

		It("flags a device that ignores the reset strobe", func() {
			_, err := engine.Submit([]byte("in flight"))
			Expect(err).ToNot(HaveOccurred())

			mockRegs.EXPECT().StrobeReset()

			Expect(engine.Reset()).To(MatchError(ErrProtocolViolation))
		})

		It("accepts new transfers after a reset", func() {
			_, err := engine.Submit([]byte("before reset"))
			Expect(err).ToNot(HaveOccurred())

			mockRegs.EXPECT().StrobeReset().Do(func() {
				hwHead.Store(0)
				hwTail.Store(0)
			})
			Expect(engine.Reset()).To(Succeed())

			payload := []byte("after reset")
			_, err = engine.Submit(payload)
			Expect(err).ToNot(HaveOccurred())
			descRing.CompleteSlot(0)
			hwHead.Store(1)

			out := make([]byte, 64)
			n, err := engine.Retire(context.Background(), out)
			Expect(err).ToNot(HaveOccurred())
			Expect(out[:n]).To(Equal(payload))
		})
	})

	Describe("state snapshots", func() {
		It("counts submissions, retirements, and outstanding slots", func() {
			_, err := engine.Submit([]byte("one"))
			Expect(err).ToNot(HaveOccurred())
			_, err = engine.Submit([]byte("two"))
			Expect(err).ToNot(HaveOccurred())
			descRing.CompleteSlot(0)
			hwHead.Store(1)
			_, err = engine.Retire(context.Background(), make([]byte, 8))
			Expect(err).ToNot(HaveOccurred())

			state := engine.State()

			Expect(state.Depth).To(Equal(depth))
			Expect(state.Submitted).To(Equal(uint64(2)))
			Expect(state.Retired).To(Equal(uint64(1)))
			Expect(state.Head).To(Equal(uint32(1)))
			Expect(state.Tail).To(Equal(uint32(2)))
			Expect(state.DeviceHead).To(Equal(uint32(1)))
			Expect(state.Outstanding).To(Equal(uint32(1)))
		})
	})
})
