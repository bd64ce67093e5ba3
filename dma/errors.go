package dma

import "errors"

// Admission and resource errors are returned synchronously and leave the
// ring untouched; timing errors are retryable; a protocol violation means
// the hardware/software contract is broken and the request cannot be
// recovered.
var (
	// ErrInvalidArgument rejects a submission larger than the maximum
	// transfer size before any allocation happens.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrQueueFull means the prospective tail would collide with the
	// device's reported head. A later retire frees a slot.
	ErrQueueFull = errors.New("descriptor queue full")

	// ErrOutOfMemory means no device buffer could be allocated. The
	// submission fails atomically; retry after retiring.
	ErrOutOfMemory = errors.New("out of device memory")

	// ErrFaultyTransfer means copying bytes into or out of a device buffer
	// failed partway.
	ErrFaultyTransfer = errors.New("faulty transfer")

	// ErrTimeout means no completion became visible within the wait budget.
	ErrTimeout = errors.New("timed out waiting for completion")

	// ErrInterrupted means a blocked retire was cancelled externally.
	ErrInterrupted = errors.New("completion wait interrupted")

	// ErrProtocolViolation means the device signalled progress but the slot
	// at head is not marked complete. Never downgraded to a timeout.
	ErrProtocolViolation = errors.New("hardware protocol violation")
)
