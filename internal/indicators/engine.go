package indicators

import "sync"

// DefaultWindow is the number of prices kept per symbol.
const DefaultWindow = 50

// Window keeps a bounded price history per symbol. When full, the oldest
// price is evicted first.
type Window struct {
	mu     sync.Mutex
	prices map[string][]float64
	size   int
}

// NewWindow creates a Window holding up to size prices per symbol.
func NewWindow(size int) *Window {
	if size <= 0 {
		size = DefaultWindow
	}
	return &Window{prices: make(map[string][]float64), size: size}
}

// Push appends price to the symbol's history and returns a copy of the
// resulting history, newest last.
func (w *Window) Push(symbol string, price float64) []float64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	arr := append(w.prices[symbol], price)
	if len(arr) > w.size {
		arr = append([]float64(nil), arr[len(arr)-w.size:]...)
	}
	w.prices[symbol] = arr
	return append([]float64(nil), arr...)
}

// History returns a copy of the symbol's history.
func (w *Window) History(symbol string) []float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]float64(nil), w.prices[symbol]...)
}

// Reset drops every history.
func (w *Window) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.prices = make(map[string][]float64)
}

// Size returns the per-symbol capacity.
func (w *Window) Size() int { return w.size }
