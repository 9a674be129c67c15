// Package ring provides a fixed-capacity FIFO buffer that overwrites its oldest element when full.
package ring

// Buffer holds at most Cap elements in insertion order. It is not safe for concurrent use;
// owners guard it with their own lock.
type Buffer[T any] struct {
	buf  []T
	head int
	size int
}

// New returns an empty buffer holding at most capacity elements. capacity < 1 is treated as 1.
func New[T any](capacity int) *Buffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer[T]{buf: make([]T, capacity)}
}

// Len returns the number of stored elements.
func (b *Buffer[T]) Len() int { return b.size }

// Cap returns the capacity.
func (b *Buffer[T]) Cap() int { return len(b.buf) }

// Push appends v. When the buffer is full the oldest element is overwritten and returned with evicted true.
func (b *Buffer[T]) Push(v T) (old T, evicted bool) {
	if b.size < len(b.buf) {
		b.buf[(b.head+b.size)%len(b.buf)] = v
		b.size++
		return old, false
	}
	old = b.buf[b.head]
	b.buf[b.head] = v
	b.head = (b.head + 1) % len(b.buf)
	return old, true
}

// At returns the i-th element, oldest first. It panics if i is out of range.
func (b *Buffer[T]) At(i int) T {
	if i < 0 || i >= b.size {
		panic("ring: index out of range")
	}
	return b.buf[(b.head+i)%len(b.buf)]
}

// Last returns up to n elements, newest first.
func (b *Buffer[T]) Last(n int) []T {
	if n > b.size {
		n = b.size
	}
	if n <= 0 {
		return nil
	}
	out := make([]T, 0, n)
	for i := b.size - 1; i >= b.size-n; i-- {
		out = append(out, b.At(i))
	}
	return out
}

// Each calls fn on every element, oldest first, until fn returns false.
func (b *Buffer[T]) Each(fn func(v T) bool) {
	for i := 0; i < b.size; i++ {
		if !fn(b.At(i)) {
			return
		}
	}
}

// RemoveFunc drops every element for which drop returns true, keeping the rest in order.
// Returns the removed elements.
func (b *Buffer[T]) RemoveFunc(drop func(v T) bool) []T {
	var removed []T
	kept := make([]T, len(b.buf))
	n := 0
	for i := 0; i < b.size; i++ {
		v := b.At(i)
		if drop(v) {
			removed = append(removed, v)
			continue
		}
		kept[n] = v
		n++
	}
	if len(removed) == 0 {
		return nil
	}
	b.buf = kept
	b.head = 0
	b.size = n
	return removed
}
