package avplay

import (
	"image"
	"math"

	"github.com/hajimehoshi/ebiten/v2"
)

// Draw renders frame into viewport, scaled with [ebiten.FilterLinear] to
// take as much space as possible while preserving the aspect ratio. Extra
// viewport space is left untouched (no explicit black bars), with the frame
// centered in it.
//
// Common usage:
//
//	frame, err := engine.CurrentFrame()
//	if err != nil { /* handle error */ }
//	avplay.Draw(screen, frame)
func Draw(viewport, frame *ebiten.Image) {
	var opts ebiten.DrawImageOptions
	opts.GeoM = fitProjection(viewport.Bounds(), frame.Bounds())
	opts.Filter = ebiten.FilterLinear
	viewport.DrawImage(frame, &opts)
}

// Draw renders the engine's current frame into viewport, scaled and
// centered like the package-level [Draw].
func (e *Engine) Draw(viewport *ebiten.Image) {
	frame, err := e.CurrentFrame()
	if err != nil || frame == nil {
		return
	}
	Draw(viewport, frame)
}

// fitProjection computes the transform that scales frame into view while
// preserving the aspect ratio, centered on whichever axis has slack.
func fitProjection(view, frame image.Rectangle) ebiten.GeoM {
	var geom ebiten.GeoM

	sx := float64(view.Dx()) / float64(frame.Dx())
	sy := float64(view.Dy()) / float64(frame.Dy())
	scale := math.Min(sx, sy)
	if scale != 1.0 {
		geom.Scale(scale, scale)
	}

	w := float64(frame.Dx()) * scale
	h := float64(frame.Dy()) * scale
	geom.Translate(
		float64(view.Min.X)+(float64(view.Dx())-w)/2,
		float64(view.Min.Y)+(float64(view.Dy())-h)/2,
	)
	return geom
}
