package usecase

import (
	"sync"

	"golang.org/x/sync/semaphore"
)

// BoundedQueue runs queued items in FIFO order with at most limit running at once.
type BoundedQueue[T comparable] struct {
	mu      sync.Mutex
	items   []T
	sem     *semaphore.Weighted
	run     func(T)
	active  int
	peak    int
	// idle is signalled on mu whenever the queue may have drained.
	idle *sync.Cond
}

func NewBoundedQueue[T comparable](limit int, run func(T)) *BoundedQueue[T] {
	if limit < 1 {
		limit = 1
	}
	q := &BoundedQueue[T]{sem: semaphore.NewWeighted(int64(limit)), run: run}
	q.idle = sync.NewCond(&q.mu)
	return q
}

// Enqueue appends items and starts as many as the limit allows.
func (q *BoundedQueue[T]) Enqueue(items ...T) {
	q.mu.Lock()
	q.items = append(q.items, items...)
	q.mu.Unlock()
	q.drain()
}

// Retain drops queued items for which keep returns false. Running items are unaffected.
func (q *BoundedQueue[T]) Retain(keep func(T) bool) []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	kept := q.items[:0]
	var dropped []T
	for _, it := range q.items {
		if keep(it) {
			kept = append(kept, it)
		} else {
			dropped = append(dropped, it)
		}
	}
	q.items = kept
	q.idle.Broadcast()
	return dropped
}

func (q *BoundedQueue[T]) drain() {
	for {
		q.mu.Lock()
		if len(q.items) == 0 || !q.sem.TryAcquire(1) {
			q.mu.Unlock()
			return
		}
		item := q.items[0]
		q.items = q.items[1:]
		q.active++
		if q.active > q.peak {
			q.peak = q.active
		}
		q.mu.Unlock()

		go q.exec(item)
	}
}

func (q *BoundedQueue[T]) exec(item T) {
	q.run(item)

	q.mu.Lock()
	q.active--
	q.idle.Broadcast()
	q.mu.Unlock()
	q.sem.Release(1)
	q.drain()
}

func (q *BoundedQueue[T]) Active() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.active
}

// MaxActive is the highest number of items ever running at once.
func (q *BoundedQueue[T]) MaxActive() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.peak
}

func (q *BoundedQueue[T]) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Wait blocks until the queue is empty and nothing is running.
func (q *BoundedQueue[T]) Wait() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) > 0 || q.active > 0 {
		q.idle.Wait()
	}
}
