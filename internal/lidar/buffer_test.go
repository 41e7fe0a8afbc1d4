package lidar

import (
	"testing"
	"time"
)

func TestSweepBuffer_Assembly(t *testing.T) {
	sb, err := NewSweepBuffer(10, false)
	if err != nil {
		t.Fatalf("Failed to create buffer: %v", err)
	}

	baseTime := time.Now()
	inserts := []struct {
		sample Sample
		start  bool
	}{
		{Sample{Angle: 350, Distance: 100}, false}, // partial rotation, dropped
		{Sample{Angle: 355, Distance: 100}, false}, // partial rotation, dropped
		{Sample{Angle: 1, Distance: 200}, true},    // first rotation starts
		{Sample{Angle: 120, Distance: 300}, false},
		{Sample{Angle: 240, Distance: 400}, false},
		{Sample{Angle: 2, Distance: 500}, true}, // second rotation starts
	}

	var sweeps []Sweep
	for i, in := range inserts {
		if sweep, ok := sb.Insert(in.sample, in.start, baseTime.Add(time.Duration(i)*time.Millisecond)); ok {
			sweeps = append(sweeps, sweep)
		}
	}

	if len(sweeps) != 1 {
		t.Fatalf("Expected 1 completed sweep, got %d", len(sweeps))
	}

	expected := []float64{200, 300, 400}
	if len(sweeps[0].Samples) != len(expected) {
		t.Fatalf("Expected %d samples, got %d", len(expected), len(sweeps[0].Samples))
	}
	for i, distance := range expected {
		if sweeps[0].Samples[i].Distance != distance {
			t.Errorf("Sample %d: expected distance %.0f, got %.0f", i, distance, sweeps[0].Samples[i].Distance)
		}
	}

	if !sweeps[0].Timestamp.Equal(baseTime.Add(2 * time.Millisecond)) {
		t.Errorf("Expected sweep timestamp of the start sample, got %s", sweeps[0].Timestamp)
	}

	if size := sb.Size(); size != 1 {
		t.Errorf("Expected the second rotation to hold 1 sample, got %d", size)
	}
}

func TestSweepBuffer_Ascending(t *testing.T) {
	sb, err := NewSweepBuffer(10, true)
	if err != nil {
		t.Fatalf("Failed to create buffer: %v", err)
	}

	now := time.Now()
	sb.Insert(Sample{Angle: 10, Distance: 1}, true, now)
	sb.Insert(Sample{Angle: 300, Distance: 2}, false, now)
	sb.Insert(Sample{Angle: 5, Distance: 3}, false, now)
	sb.Insert(Sample{Angle: 90, Distance: 4}, false, now)

	sweep, ok := sb.Insert(Sample{Angle: 1}, true, now)
	if !ok {
		t.Fatal("Expected a completed sweep")
	}

	expected := []float64{5, 10, 90, 300}
	for i, angle := range expected {
		if sweep.Samples[i].Angle != angle {
			t.Errorf("Sample %d: expected angle %.0f, got %.0f", i, angle, sweep.Samples[i].Angle)
		}
	}
}

func TestSweepBuffer_Truncation(t *testing.T) {
	sb, err := NewSweepBuffer(3, false)
	if err != nil {
		t.Fatalf("Failed to create buffer: %v", err)
	}

	now := time.Now()
	sb.Insert(Sample{Distance: 1}, true, now)
	for i := 0; i < 4; i++ {
		sb.Insert(Sample{Distance: float64(i + 2)}, false, now)
	}

	if sb.Truncated() != 2 {
		t.Errorf("Expected 2 truncated samples, got %d", sb.Truncated())
	}

	sweep, ok := sb.Insert(Sample{}, true, now)
	if !ok {
		t.Fatal("Expected a completed sweep")
	}
	if len(sweep.Samples) != 3 {
		t.Errorf("Expected sweep truncated to 3 samples, got %d", len(sweep.Samples))
	}
	if sb.Truncated() != 0 {
		t.Errorf("Expected truncation counter reset on a new rotation, got %d", sb.Truncated())
	}
}

func TestSweepBuffer_EdgeCases(t *testing.T) {
	if _, err := NewSweepBuffer(0, false); err == nil {
		t.Error("Expected error for zero capacity")
	}

	sb, err := NewSweepBuffer(5, false)
	if err != nil {
		t.Fatalf("Failed to create buffer: %v", err)
	}

	// Two consecutive start flags with nothing in between must not complete
	// an empty sweep after Clear
	now := time.Now()
	sb.Insert(Sample{Distance: 1}, true, now)
	sb.Clear()
	if sb.Size() != 0 {
		t.Error("Cleared buffer should have size 0")
	}
	if _, ok := sb.Insert(Sample{Distance: 2}, true, now); ok {
		t.Error("Cleared buffer should not complete a sweep")
	}
	if _, ok := sb.Insert(Sample{Distance: 3}, false, now); ok {
		t.Error("Sample without start flag should not complete a sweep")
	}
}
