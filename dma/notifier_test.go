package dma

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("CompletionNotifier", func() {
	var notifier *CompletionNotifier

	BeforeEach(func() {
		notifier = NewCompletionNotifier()
	})

	It("returns immediately when the condition already holds", func() {
		start := time.Now()

		err := notifier.Wait(context.Background(), time.Second,
			func() bool { return true })

		Expect(err).ToNot(HaveOccurred())
		Expect(time.Since(start)).To(BeNumerically("<", 100*time.Millisecond))
	})

	It("times out when no progress is ever signalled", func() {
		start := time.Now()

		err := notifier.Wait(context.Background(), 50*time.Millisecond,
			func() bool { return false })

		Expect(err).To(MatchError(ErrTimeout))
		Expect(time.Since(start)).To(
			BeNumerically(">=", 50*time.Millisecond))
	})

	It("reports Interrupted when the context is cancelled", func() {
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(20 * time.Millisecond)
			cancel()
		}()

		err := notifier.Wait(ctx, time.Second, func() bool { return false })

		Expect(err).To(MatchError(ErrInterrupted))
	})

	It("wakes every waiter on a broadcast", func() {
		var progressed atomic.Bool
		var wg sync.WaitGroup
		errs := make(chan error, 3)

		for i := 0; i < 3; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- notifier.Wait(context.Background(), time.Second,
					progressed.Load)
			}()
		}

		time.Sleep(20 * time.Millisecond)
		progressed.Store(true)
		notifier.Broadcast()
		wg.Wait()

		close(errs)
		for err := range errs {
			Expect(err).ToNot(HaveOccurred())
		}
	})

	It("prefers visible progress over a racing timeout", func() {
		// Progress lands between the park and the timer firing. The
		// condition only reports true from the post-timeout re-check on.
		var calls atomic.Int32
		progressed := func() bool {
			return calls.Add(1) >= 3
		}

		err := notifier.Wait(context.Background(), time.Nanosecond, progressed)

		Expect(err).ToNot(HaveOccurred())
	})

	It("re-parks a waiter woken without progress", func() {
		var progressed atomic.Bool
		done := make(chan error, 1)

		go func() {
			done <- notifier.Wait(context.Background(), time.Second,
				progressed.Load)
		}()

		// A spurious broadcast must not end the wait.
		time.Sleep(20 * time.Millisecond)
		notifier.Broadcast()
		Consistently(done, "50ms").ShouldNot(Receive())

		progressed.Store(true)
		notifier.Broadcast()
		Eventually(done).Should(Receive(BeNil()))
	})
})
