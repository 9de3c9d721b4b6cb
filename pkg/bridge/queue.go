package bridge

import (
    "context"
    "errors"
    "sync"
)

var (
    // ErrClosed is returned by Send after Close, and by receivers once a
    // closed queue has been drained.
    ErrClosed = errors.New("bridge: queue closed")
    // ErrEmpty is returned by TryRecv when nothing is queued.
    ErrEmpty = errors.New("bridge: queue empty")
    // ErrFull is returned by Send on a bounded queue at capacity; the value is dropped.
    ErrFull = errors.New("bridge: queue full")
)

// Queue is a FIFO with any number of producers and a single consumer.
// Capacity 0 means unbounded.
type Queue[T any] struct {
    mu       sync.Mutex
    items    []T
    head     int
    closed   bool
    capacity int
    // notify holds at most one pending wake-up for the consumer
    notify chan struct{}
}

func NewQueue[T any](capacity int) *Queue[T] {
    return &Queue[T]{capacity: capacity, notify: make(chan struct{}, 1)}
}

// Send appends v. It never blocks.
func (q *Queue[T]) Send(v T) error {
    q.mu.Lock()
    if q.closed {
        q.mu.Unlock()
        return ErrClosed
    }
    if q.capacity > 0 && len(q.items)-q.head >= q.capacity {
        q.mu.Unlock()
        return ErrFull
    }
    q.items = append(q.items, v)
    q.mu.Unlock()
    q.wake()
    return nil
}

// TryRecv pops the oldest item without blocking.
func (q *Queue[T]) TryRecv() (T, error) {
    q.mu.Lock()
    defer q.mu.Unlock()
    var zero T
    if q.head == len(q.items) {
        if q.closed {
            return zero, ErrClosed
        }
        return zero, ErrEmpty
    }
    v := q.items[q.head]
    q.items[q.head] = zero
    q.head++
    switch {
    case q.head == len(q.items):
        q.items, q.head = q.items[:0], 0
    case q.head >= 1024 && q.head*2 >= len(q.items):
        n := copy(q.items, q.items[q.head:])
        clear(q.items[n:])
        q.items, q.head = q.items[:n], 0
    }
    return v, nil
}

// Recv blocks until an item is available, the queue is closed and drained,
// or ctx is done.
func (q *Queue[T]) Recv(ctx context.Context) (T, error) {
    for {
        v, err := q.TryRecv()
        if !errors.Is(err, ErrEmpty) {
            return v, err
        }
        select {
        case <-ctx.Done():
            var zero T
            return zero, ctx.Err()
        case <-q.notify:
        }
    }
}

// Close stops accepting new items. Items already queued stay receivable.
func (q *Queue[T]) Close() {
    q.mu.Lock()
    q.closed = true
    q.mu.Unlock()
    q.wake()
}

// Closed reports whether Close was called.
func (q *Queue[T]) Closed() bool {
    q.mu.Lock()
    defer q.mu.Unlock()
    return q.closed
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
    q.mu.Lock()
    defer q.mu.Unlock()
    return len(q.items) - q.head
}

func (q *Queue[T]) wake() {
    select {
    case q.notify <- struct{}{}:
    default:
    }
}
