package app

import (
	"fmt"
	"image"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/golang/freetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

const (
	dpi     float64 = 72
	size    float64 = 14
	spacing float64 = 1.1
)

type Annotator struct {
	context *freetype.Context
}

func NewAnnotator() (*Annotator, error) {
	parsedFont, err := freetype.ParseFont(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	context := freetype.NewContext()
	context.SetDPI(dpi)
	context.SetFont(parsedFont)
	context.SetFontSize(size)
	context.SetSrc(image.White)
	context.SetHinting(font.HintingFull)

	return &Annotator{context: context}, nil
}

func (a *Annotator) Annotate(img *image.RGBA, view *SweepView) error {
	a.context.SetClip(img.Bounds())
	a.context.SetDst(img)

	ops := []struct {
		msg string
		fn  func(*image.RGBA, *SweepView) error
	}{
		{"drawing range labels", a.drawRangeLabels},
		{"drawing info", a.drawInfo},
	}
	for _, op := range ops {
		if err := op.fn(img, view); err != nil {
			return fmt.Errorf("%s: %w", op.msg, err)
		}
	}

	return nil
}

// drawRangeLabels labels each range ring along the forward axis
func (a *Annotator) drawRangeLabels(img *image.RGBA, view *SweepView) error {
	cx, cy := view.center()

	for _, r := range view.rings() {
		px := view.scale(r)
		pt := freetype.Pt(cx+3, cy-px-3)
		if _, err := a.context.DrawString(humanDistance(r), pt); err != nil {
			return err
		}
	}

	return nil
}

func (a *Annotator) drawInfo(img *image.RGBA, view *SweepView) error {
	lines := []string{
		fmt.Sprintf("Session %d, sweep %d", view.SessionID, view.Index),
		"Recorded: " + view.Sweep.Timestamp.Local().Format(time.DateTime+".000"),
		fmt.Sprintf("Samples: %s", humanize.Comma(int64(len(view.Sweep.Samples)))),
		"Blocking: " + humanDistance(view.Config.BlockingDistance),
	}

	if view.Observation.HasReading() {
		lines = append(lines, "Nearest: "+humanDistance(view.Observation.NearestDistance))
	} else {
		lines = append(lines, "Nearest: no reading")
	}
	if view.Observation.IsClear {
		lines = append(lines, "Path clear")
	} else {
		lines = append(lines, "Path blocked")
	}

	pt := freetype.Pt(5, 5+int(size))
	for _, s := range lines {
		if _, err := a.context.DrawString(s, pt); err != nil {
			return err
		}
		pt.Y += a.context.PointToFixed(size * spacing)
	}

	return nil
}

// humanDistance formats millimeters, e.g. "1.5 m" or "800 mm"
func humanDistance(mm float64) string {
	return humanize.SIWithDigits(mm/1000, 1, "m")
}
