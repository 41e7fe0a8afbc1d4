package lidar

import (
	"context"
	"time"
)

// Sample represents a single ranging measurement
type Sample struct {
	Angle    float64 // Heading of the measurement in degrees, [0, 360)
	Distance float64 // Distance in millimeters, 0 when the sensor had no return
	Quality  float64 // Signal quality as reported by the sensor
}

// Sweep represents one full rotation of the sensor. Samples are kept in
// acquisition order unless the source was configured to sort them by angle.
type Sweep struct {
	Timestamp time.Time // When the first sample of the rotation was received
	Samples   []Sample  // Samples of the rotation
}

// Source interface defines a rotating range sensor. Sources are created
// connected (see the concrete packages) and must be disposed by the owner.
type Source interface {
	// StartSpin starts the sensor motor.
	StartSpin() error

	// StartScan puts the sensor into continuous scanning mode.
	StartScan() error

	// AcquireSweep blocks until one full rotation has been received, the
	// source contract times out, or ctx is done. io.EOF means the source has
	// no more data.
	AcquireSweep(ctx context.Context) (Sweep, error)

	// StopScan stops scanning.
	StopScan() error

	// StopSpin stops the sensor motor.
	StopSpin() error

	// Dispose releases the underlying connection. It is safe to call more
	// than once.
	Dispose() error
}
