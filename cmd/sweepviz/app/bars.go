package app

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/roman-kulish/lidar-avoidance/internal/avoidance"
	"github.com/roman-kulish/lidar-avoidance/internal/lidar"
)

const millimetersPerDot = 25

// WriteBars prints one line per batch of the sweep with a bar of one dot per
// 25 mm of the batch distance. Blocking batches are marked with '!' and
// batches without a valid sample print no bar.
func WriteBars(w io.Writer, config avoidance.Config, samples []lidar.Sample) error {
	bw := bufio.NewWriter(w)

	for i, batch := range config.BatchAverages(samples) {
		first := samples[i*config.BatchSize]

		if !batch.Valid {
			_, _ = fmt.Fprintf(bw, "%3d %6.1f°          - no reading\n", i, first.Angle)
			continue
		}

		mark := ' '
		if batch.Distance < config.BlockingDistance {
			mark = '!'
		}

		dots := int(batch.Distance / millimetersPerDot)
		_, _ = fmt.Fprintf(bw, "%3d %6.1f° %7.1f %c %s\n", i, first.Angle, batch.Distance, mark, strings.Repeat(".", dots))
	}

	obs := config.EvaluateSweep(samples)
	if obs.HasReading() {
		_, _ = fmt.Fprintf(bw, "nearest %.1f mm, clear: %t\n", obs.NearestDistance, obs.IsClear)
	} else {
		_, _ = fmt.Fprintf(bw, "no valid batch, clear: %t\n", obs.IsClear)
	}

	return bw.Flush()
}
