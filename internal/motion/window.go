package motion

// Window debounces per-frame motion samples. It holds the most recent
// samples in a fixed-size ring and reports motion only once the ring is
// at least required samples deep and every held sample is positive.
// A single negative sample therefore clears the report immediately.
type Window struct {
	samples  []bool
	capacity int
	required int
	head     int
	count    int
}

// NewWindow returns a window holding capacity samples that requires
// required consecutive positives before reporting motion.
func NewWindow(capacity, required int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	if required < 1 {
		required = 1
	}
	if required > capacity {
		required = capacity
	}
	return &Window{
		samples:  make([]bool, capacity),
		capacity: capacity,
		required: required,
	}
}

// Add records one per-frame sample and returns the debounced verdict.
func (w *Window) Add(sample bool) bool {
	w.samples[w.head] = sample
	w.head = (w.head + 1) % w.capacity
	if w.count < w.capacity {
		w.count++
	}
	return w.Active()
}

// Active reports the current debounced verdict without adding a sample.
func (w *Window) Active() bool {
	if w.count < w.required {
		return false
	}
	for i := 0; i < w.count; i++ {
		if !w.samples[i] {
			return false
		}
	}
	return true
}

// Reset discards all held samples.
func (w *Window) Reset() {
	w.head = 0
	w.count = 0
	for i := range w.samples {
		w.samples[i] = false
	}
}
