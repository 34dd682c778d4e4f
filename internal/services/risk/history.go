package risk

import "sync"

const DefaultHistoryCapacity = 100

// OutcomeHistory is a fixed-capacity ring of prediction correctness flags.
// Appends evict the oldest entry once full. Safe for concurrent use.
type OutcomeHistory struct {
	mu    sync.RWMutex
	buf   []bool
	start int
	size  int
}

func NewOutcomeHistory(capacity int) *OutcomeHistory {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	return &OutcomeHistory{buf: make([]bool, capacity)}
}

func (h *OutcomeHistory) Append(wasCorrect bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.size < len(h.buf) {
		h.buf[(h.start+h.size)%len(h.buf)] = wasCorrect
		h.size++
		return
	}
	h.buf[h.start] = wasCorrect
	h.start = (h.start + 1) % len(h.buf)
}

func (h *OutcomeHistory) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.size
}

func (h *OutcomeHistory) Cap() int {
	return len(h.buf)
}

// Recent returns a copy of the newest n entries, oldest first.
func (h *OutcomeHistory) Recent(n int) []bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if n > h.size {
		n = h.size
	}
	if n < 0 {
		n = 0
	}
	out := make([]bool, n)
	first := h.size - n
	for i := 0; i < n; i++ {
		out[i] = h.buf[(h.start+first+i)%len(h.buf)]
	}
	return out
}

// Accuracy is the share of correct outcomes among the newest n, and how many were counted.
func (h *OutcomeHistory) Accuracy(n int) (float64, int) {
	recent := h.Recent(n)
	if len(recent) == 0 {
		return 0, 0
	}
	correct := 0
	for _, ok := range recent {
		if ok {
			correct++
		}
	}
	return float64(correct) / float64(len(recent)), len(recent)
}
