package watch

import "sync"

// Batcher is a generic size+timeout collector (§4.9): Push appends item and
// returns a full batch (and true) once size items have accumulated;
// otherwise it returns none. Flush returns and clears whatever partial
// batch is pending, for a caller-driven timeout tick.
type Batcher[T any] struct {
	size int

	mu      sync.Mutex
	pending []T
}

// NewBatcher builds a Batcher that fills to size items per batch.
func NewBatcher[T any](size int) *Batcher[T] {
	if size < 1 {
		size = 1
	}
	return &Batcher[T]{size: size}
}

// Push appends item to the pending batch, returning (batch, true) if doing
// so reached the size threshold.
func (b *Batcher[T]) Push(item T) ([]T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pending = append(b.pending, item)
	if len(b.pending) >= b.size {
		batch := b.pending
		b.pending = nil
		return batch, true
	}
	return nil, false
}

// Flush returns and clears whatever is pending, or (nil, false) if empty.
func (b *Batcher[T]) Flush() ([]T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.pending) == 0 {
		return nil, false
	}
	batch := b.pending
	b.pending = nil
	return batch, true
}

// Len reports how many items are currently pending.
func (b *Batcher[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}
