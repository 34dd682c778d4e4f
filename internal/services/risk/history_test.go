package risk

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOutcomeHistoryEvictsOldest(t *testing.T) {
	h := NewOutcomeHistory(100)
	h.Append(false)
	for i := 0; i < 100; i++ {
		h.Append(true)
	}

	assert.Equal(t, 100, h.Len())
	for _, ok := range h.Recent(100) {
		assert.True(t, ok)
	}
}

func TestOutcomeHistoryRecentOrder(t *testing.T) {
	h := NewOutcomeHistory(3)
	for _, v := range []bool{true, false, true, false} {
		h.Append(v)
	}
	assert.Equal(t, []bool{false, true, false}, h.Recent(10))
	assert.Equal(t, []bool{true, false}, h.Recent(2))

	acc, n := h.Accuracy(3)
	assert.Equal(t, 3, n)
	assert.InDelta(t, 1.0/3, acc, 1e-9)
}

func TestOutcomeHistoryConcurrentAccess(t *testing.T) {
	h := NewOutcomeHistory(100)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				h.Append(i%2 == 0)
			}
		}()
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				r := h.Recent(10)
				assert.LessOrEqual(t, len(r), 10)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 100, h.Len())
}
