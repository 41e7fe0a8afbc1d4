package avoidance

import (
	"math"

	"github.com/roman-kulish/lidar-avoidance/internal/lidar"
)

// NoReading is the nearest distance of a sweep without a single valid batch.
// It compares greater than any distance, so it never reads as "near".
var NoReading = math.Inf(1)

// BatchAverage is the filtered mean distance of one batch
type BatchAverage struct {
	Distance float64 // Mean distance in millimeters, meaningful only when Valid
	Samples  int     // Number of samples which passed the quality filter
	Valid    bool    // False when no sample passed the quality filter
}

// Observation is the avoidance view of one sweep
type Observation struct {
	NearestDistance float64 // Closest valid batch distance, NoReading if none
	IsClear         bool    // No valid batch is closer than the blocking distance
}

// HasReading reports whether at least one batch of the sweep was valid
func (o Observation) HasReading() bool {
	return !math.IsInf(o.NearestDistance, 1)
}

// BatchAverages partitions samples into contiguous batches of BatchSize, in
// the given order, and averages the distance of the samples whose quality is
// strictly above QualityThreshold. A trailing batch shorter than BatchSize is
// averaged over the samples it has.
func (c Config) BatchAverages(samples []lidar.Sample) []BatchAverage {
	size := max(c.BatchSize, 1)
	batches := make([]BatchAverage, 0, (len(samples)+size-1)/size)

	for start := 0; start < len(samples); start += size {
		end := min(start+size, len(samples))

		var sum float64
		var count int
		for _, s := range samples[start:end] {
			if s.Quality > c.QualityThreshold {
				sum += s.Distance
				count++
			}
		}

		avg := BatchAverage{Samples: count}
		if count > 0 { // no opinion rather than a division by zero
			avg.Distance = sum / float64(count)
			avg.Valid = true
		}
		batches = append(batches, avg)
	}

	return batches
}

// EvaluateSweep reduces a sweep to the nearest valid batch distance and the
// clear flag. A batch blocks when its distance is strictly below
// BlockingDistance. It has no side effects.
func (c Config) EvaluateSweep(samples []lidar.Sample) Observation {
	obs := Observation{
		NearestDistance: NoReading,
		IsClear:         true,
	}

	for _, batch := range c.BatchAverages(samples) {
		if !batch.Valid {
			continue
		}
		if batch.Distance < obs.NearestDistance {
			obs.NearestDistance = batch.Distance
		}
		if batch.Distance < c.BlockingDistance {
			obs.IsClear = false
		}
	}

	return obs
}
