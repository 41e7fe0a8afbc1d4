package lidar

import (
	"fmt"
	"slices"
	"sync"
	"time"
)

// SweepBuffer implements a thread-safe buffer that assembles sweeps from a
// stream of samples. The first sample of each rotation carries a start flag;
// a rotation is complete when the next start flag arrives. Samples received
// before the first start flag belong to a partial rotation and are dropped.
type SweepBuffer struct {
	capacity  int  // Maximum number of samples kept per rotation
	ascending bool // Sort completed sweeps by angle

	mu        sync.Mutex
	samples   []Sample
	startedAt time.Time
	started   bool
	truncated int
}

// NewSweepBuffer creates a new sweep buffer that keeps at most capacity
// samples of a rotation. Extra samples of a longer rotation are discarded.
func NewSweepBuffer(capacity int, ascending bool) (*SweepBuffer, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("invalid buffer capacity: %d", capacity)
	}
	return &SweepBuffer{
		capacity:  capacity,
		ascending: ascending,
		samples:   make([]Sample, 0, capacity),
	}, nil
}

// Insert adds a sample received at ts. When the sample starts a new rotation
// and a previous rotation was in progress, the completed sweep is returned
// and ok is true.
func (b *SweepBuffer) Insert(s Sample, start bool, ts time.Time) (sweep Sweep, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if start {
		if b.started && len(b.samples) > 0 {
			sweep, ok = b.complete(), true
		}

		b.started = true
		b.startedAt = ts
		b.truncated = 0
	}

	if !b.started {
		return // partial rotation before the first start flag
	}

	if len(b.samples) >= b.capacity {
		b.truncated++
		return
	}
	b.samples = append(b.samples, s)
	return
}

// complete hands over the buffered samples as a sweep. Must hold b.mu.
func (b *SweepBuffer) complete() Sweep {
	samples := b.samples
	if b.ascending {
		slices.SortStableFunc(samples, func(a, b Sample) int {
			switch {
			case a.Angle < b.Angle:
				return -1
			case a.Angle > b.Angle:
				return 1
			}
			return 0
		})
	}

	b.samples = make([]Sample, 0, b.capacity)
	return Sweep{Timestamp: b.startedAt, Samples: samples}
}

// Size returns the number of samples of the rotation in progress.
func (b *SweepBuffer) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.samples)
}

// Truncated returns the number of samples discarded from the rotation in
// progress because the buffer was full.
func (b *SweepBuffer) Truncated() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.truncated
}

// Clear drops the rotation in progress. The next sweep starts at the next
// start flag.
func (b *SweepBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.samples = b.samples[:0]
	b.started = false
	b.truncated = 0
}
