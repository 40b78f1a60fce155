package engine

import (
	"errors"
	"sync"
	"sync/atomic"
)

var (
	ErrBufferFull = errors.New("buffer is full")
	ErrBufferSize = errors.New("size must be a power of 2")
)

// RingBuffer is a fixed-size circular queue of raw event frames.
// It is safe for one consumer. Producers are serialized in Push, since every
// TCP connection pushes from its own goroutine.
type RingBuffer struct {
	data [][]byte
	head uint64
	tail uint64
	mask uint64
	size uint64

	pushMu sync.Mutex

	dropped uint64
}

// NewRingBuffer creates a ring buffer with the given size, which must be a power of 2.
func NewRingBuffer(size uint64) (*RingBuffer, error) {
	if size == 0 || (size&(size-1)) != 0 {
		return nil, ErrBufferSize
	}
	return &RingBuffer{
		data: make([][]byte, size),
		mask: size - 1,
		size: size,
	}, nil
}

// Push appends a frame. When the buffer is full the frame is dropped and
// ErrBufferFull is returned.
func (rb *RingBuffer) Push(item []byte) error {
	rb.pushMu.Lock()
	defer rb.pushMu.Unlock()

	head := atomic.LoadUint64(&rb.head)
	tail := atomic.LoadUint64(&rb.tail)

	if head-tail >= rb.size {
		atomic.AddUint64(&rb.dropped, 1)
		return ErrBufferFull
	}

	rb.data[head&rb.mask] = item
	atomic.StoreUint64(&rb.head, head+1)
	return nil
}

// Pop removes the oldest frame, or returns nil when empty.
func (rb *RingBuffer) Pop() []byte {
	tail := atomic.LoadUint64(&rb.tail)
	head := atomic.LoadUint64(&rb.head)

	if tail == head {
		return nil
	}

	item := rb.data[tail&rb.mask]
	rb.data[tail&rb.mask] = nil

	atomic.StoreUint64(&rb.tail, tail+1)
	return item
}

// DroppedCount returns how many frames were rejected because the buffer was full.
func (rb *RingBuffer) DroppedCount() uint64 {
	return atomic.LoadUint64(&rb.dropped)
}

func (rb *RingBuffer) Usage() uint64 {
	return atomic.LoadUint64(&rb.head) - atomic.LoadUint64(&rb.tail)
}

func (rb *RingBuffer) Capacity() uint64 {
	return rb.size
}
