package app

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/roman-kulish/lidar-avoidance/internal/avoidance"
	"github.com/roman-kulish/lidar-avoidance/internal/lidar"
)

const ringStep = 1000.0 // mm

// SweepView is a recorded sweep with everything needed to draw it
type SweepView struct {
	SessionID   int64
	Index       int
	Sweep       lidar.Sweep
	Observation avoidance.Observation
	Config      avoidance.Config

	Size        int     // image width and height in pixels
	MaxDistance float64 // distance at the edge of the image (mm)
}

func (v *SweepView) center() (int, int) {
	return v.Size / 2, v.Size / 2
}

// scale converts a distance to a radius in pixels
func (v *SweepView) scale(mm float64) int {
	return int(math.Round(mm / v.MaxDistance * float64(v.Size/2)))
}

// point converts a polar sample to image coordinates. 0° points up and
// angles grow clockwise, the way the sensor reports them.
func (v *SweepView) point(angle, distance float64) (int, int) {
	cx, cy := v.center()
	r := float64(v.scale(distance))
	rad := angle * math.Pi / 180

	return cx + int(math.Round(r*math.Sin(rad))), cy - int(math.Round(r*math.Cos(rad)))
}

func (v *SweepView) rings() []float64 {
	var rings []float64
	for r := ringStep; r <= v.MaxDistance; r += ringStep {
		rings = append(rings, r)
	}
	return rings
}

type Renderer struct {
	annotator *Annotator
}

// NewRenderer creates a renderer, annotations are skipped when annotate is false
func NewRenderer(annotate bool) (*Renderer, error) {
	var r Renderer
	if annotate {
		a, err := NewAnnotator()
		if err != nil {
			return nil, fmt.Errorf("creating annotator: %w", err)
		}
		r.annotator = a
	}
	return &r, nil
}

// Render draws the sweep as seen from above: range rings, the blocking
// circle and every sample coloured by distance. Samples rejected by the
// quality filter are drawn in gray.
func (r *Renderer) Render(view *SweepView) (*image.RGBA, error) {
	if view.Size <= 0 || view.MaxDistance <= 0 {
		return nil, fmt.Errorf("invalid view size %d or max distance %.1f", view.Size, view.MaxDistance)
	}

	img := image.NewRGBA(image.Rect(0, 0, view.Size, view.Size))
	draw.Draw(img, img.Bounds(), image.NewUniform(backgroundColor), image.Point{}, draw.Src)

	for _, ring := range view.rings() {
		drawCircle(img, view, ring, ringColor)
	}
	drawCircle(img, view, view.Config.BlockingDistance, blockingColor)

	for _, s := range view.Sweep.Samples {
		if s.Distance <= 0 || s.Distance > view.MaxDistance {
			continue
		}

		var c color.Color = rejectedColor
		if s.Quality > view.Config.QualityThreshold {
			c = distanceColor(s.Distance, view.MaxDistance)
		}

		x, y := view.point(s.Angle, s.Distance)
		drawDot(img, x, y, c)
	}

	cx, cy := view.center()
	drawDot(img, cx, cy, vehicleColor)

	if r.annotator != nil {
		if err := r.annotator.Annotate(img, view); err != nil {
			return nil, fmt.Errorf("annotating: %w", err)
		}
	}

	return img, nil
}

func drawCircle(img *image.RGBA, view *SweepView, mm float64, c color.Color) {
	radius := view.scale(mm)
	if radius <= 0 {
		return
	}

	steps := int(2 * math.Pi * float64(radius))
	for i := range steps {
		angle := float64(i) * 360 / float64(steps)
		x, y := view.point(angle, mm)
		img.Set(x, y, c)
	}
}

func drawDot(img *image.RGBA, x, y int, c color.Color) {
	for dx := -1; dx <= 1; dx++ {
		for dy := -1; dy <= 1; dy++ {
			img.Set(x+dx, y+dy, c)
		}
	}
}
