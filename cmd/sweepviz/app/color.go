package app

import (
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

const (
	hueNear = 0.0   // red
	hueFar  = 236.0 // blue
)

var (
	backgroundColor = color.Black
	ringColor       = color.RGBA{R: 0x40, G: 0x40, B: 0x40, A: 0xff}
	blockingColor   = color.RGBA{R: 0xff, G: 0x20, B: 0x20, A: 0xff}
	rejectedColor   = color.RGBA{R: 0x60, G: 0x60, B: 0x60, A: 0xff}
	vehicleColor    = color.White
)

// distanceColor maps a distance to a hue, red at the sensor and blue at
// maxDistance and beyond.
func distanceColor(distance, maxDistance float64) color.Color {
	ratio := math.Min(math.Max(distance/maxDistance, 0), 1)
	hue := hueNear + ratio*(hueFar-hueNear)

	return colorful.Hsv(hue, 1, 0.95).Clamped()
}
