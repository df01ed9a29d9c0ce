package consumer

// Window is a fixed-size FIFO buffer holding the most recently arrived
// prices for one symbol. Arrival order is deliberate: out-of-order
// events are appended as-is rather than re-sorted by timestamp, since
// reordering would need unbounded look-back.
type Window struct {
	size   int
	prices []float64
}

// NewWindow creates a window of the given size. Sizes below one are
// clamped to one.
func NewWindow(size int) *Window {
	if size < 1 {
		size = 1
	}
	return &Window{
		size:   size,
		prices: make([]float64, 0, size),
	}
}

// Append adds a price, evicting the oldest entry once the window is
// over capacity.
func (w *Window) Append(price float64) {
	w.prices = append(w.prices, price)
	if len(w.prices) > w.size {
		w.prices = w.prices[1:]
	}
}

// Len returns the number of buffered prices.
func (w *Window) Len() int { return len(w.prices) }

// Next returns the arithmetic mean the window would produce after
// appending price, without mutating the window. The second return is
// false while fewer than size points would be available, in which case
// no average may be emitted.
func (w *Window) Next(price float64) (float64, bool) {
	n := len(w.prices) + 1
	if n < w.size {
		return 0, false
	}

	sum := price
	// Oldest entry falls out when the append would overflow.
	start := 0
	if n > w.size {
		start = n - w.size
	}
	for _, p := range w.prices[start:] {
		sum += p
	}
	return sum / float64(w.size), true
}
