package audio

import "sync"

// LevelRing holds the most recent signal levels for waveform display.
// When full, the oldest entry is evicted (FIFO).
type LevelRing struct {
	capacity int
	levels   []float64
	mu       sync.Mutex
}

// NewLevelRing creates a ring holding at most capacity levels.
func NewLevelRing(capacity int) *LevelRing {
	if capacity <= 0 {
		capacity = 1
	}
	return &LevelRing{
		capacity: capacity,
		levels:   make([]float64, 0, capacity),
	}
}

// Push appends a level, evicting the oldest entry when at capacity.
func (r *LevelRing) Push(level float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.levels) == r.capacity {
		copy(r.levels, r.levels[1:])
		r.levels = r.levels[:len(r.levels)-1]
	}
	r.levels = append(r.levels, level)
}

// Snapshot returns a copy of the buffered levels, oldest first.
func (r *LevelRing) Snapshot() []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]float64, len(r.levels))
	copy(out, r.levels)
	return out
}

// Len returns the number of buffered levels.
func (r *LevelRing) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.levels)
}

// Reset clears the ring.
func (r *LevelRing) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.levels = r.levels[:0]
}
