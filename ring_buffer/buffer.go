package ring_buffer

// Window is a bounded rolling window. Pushing past capacity evicts the
// oldest element.
type Window[T any] struct {
	buffer []T
	head   int
	filled int
}

func New[T any](size int) *Window[T] {
	return &Window[T]{
		buffer: make([]T, size),
		head:   0,
	}
}

func (w *Window[T]) Push(v T) {
	w.buffer[w.head] = v
	w.head = (w.head + 1) % len(w.buffer)

	if w.filled < len(w.buffer) {
		w.filled++
	}
}

func (w *Window[T]) Len() int {
	return w.filled
}

func (w *Window[T]) Cap() int {
	return len(w.buffer)
}

// Values returns the window contents, oldest first.
func (w *Window[T]) Values() []T {
	values := make([]T, 0, w.filled)

	start := w.head - w.filled
	for i := 0; i < w.filled; i++ {
		values = append(values, w.buffer[(start+i+len(w.buffer))%len(w.buffer)])
	}

	return values
}

func (w *Window[T]) Clear() {
	var zero T
	for i := range w.buffer {
		w.buffer[i] = zero
	}

	w.head = 0
	w.filled = 0
}
