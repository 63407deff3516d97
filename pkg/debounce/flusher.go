package debounce

import (
	"sync"
	"time"

	"recuento/internal/core/clock"
)

// DefaultFlushDelay is the coalescing window for local snapshot writes.
const DefaultFlushDelay = 400 * time.Millisecond

// Flusher coalesces bursts of Schedule calls per key into a single trailing
// write of the last value passed. Writes run on the timer goroutine, outside
// the Flusher's lock.
type Flusher[T any] struct {
	mu      sync.Mutex
	delay   time.Duration
	clk     clock.Clock
	write   func(key string, value T)
	pending map[string]*flushEntry[T]
}

type flushEntry[T any] struct {
	timer clock.Timer
	value T
}

// NewFlusher creates a Flusher that calls write once per key after delay.
func NewFlusher[T any](delay time.Duration, clk clock.Clock, write func(key string, value T)) *Flusher[T] {
	if delay <= 0 {
		delay = DefaultFlushDelay
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Flusher[T]{
		delay:   delay,
		clk:     clk,
		write:   write,
		pending: make(map[string]*flushEntry[T]),
	}
}

// Schedule records value as the payload to write for key and restarts the
// key's window. Any value previously pending for the key is discarded.
func (f *Flusher[T]) Schedule(key string, value T) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if e, ok := f.pending[key]; ok {
		e.value = value
		e.timer.Reset(f.delay)
		return
	}

	e := &flushEntry[T]{value: value}
	e.timer = f.clk.AfterFunc(f.delay, func() { f.flush(key) })
	f.pending[key] = e
}

func (f *Flusher[T]) flush(key string) {
	f.mu.Lock()
	e, ok := f.pending[key]
	if ok {
		delete(f.pending, key)
	}
	f.mu.Unlock()

	if ok {
		f.write(key, e.value)
	}
}

// Cancel drops any pending write for key and stops its timer. Used on
// teardown so a write cannot race past an unbind or sign-out.
func (f *Flusher[T]) Cancel(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.pending[key]; ok {
		e.timer.Stop()
		delete(f.pending, key)
	}
}

// CancelAll drops every pending write.
func (f *Flusher[T]) CancelAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for key, e := range f.pending {
		e.timer.Stop()
		delete(f.pending, key)
	}
}
