package vision

import (
	"fmt"

	"github.com/banshee-data/cone.pilot/internal/units"
)

// BoundingBox is an axis-aligned rectangle in normalised image coordinates.
// Each edge is in [0,1] relative to the frame width (Left/Right) or height
// (Top/Bottom).
type BoundingBox struct {
	Left   float32 `json:"left"`
	Top    float32 `json:"top"`
	Right  float32 `json:"right"`
	Bottom float32 `json:"bottom"`
}

// CenterX returns the horizontal centre of the box in normalised coordinates.
func (b BoundingBox) CenterX() float32 {
	return (b.Left + b.Right) * 0.5
}

// Detection is a single object reported by the detector for one frame.
type Detection struct {
	Box     BoundingBox `json:"box"`
	Score   float32     `json:"score"`
	ClassID int         `json:"class_id"`
}

func (d Detection) String() string {
	return fmt.Sprintf("class=%d score=%.2f box=[%.3f %.3f %.3f %.3f]",
		d.ClassID, d.Score, d.Box.Left, d.Box.Top, d.Box.Right, d.Box.Bottom)
}

// Shifted returns a copy of d with the left and right edges moved by -dx
// (normalised units). Top and bottom are unchanged.
func (d Detection) Shifted(dx float32) Detection {
	d.Box.Left -= dx
	d.Box.Right -= dx
	return d
}

// ShiftAll converts a pixel shift into normalised units and applies it to
// every detection. The input slice is left untouched so the detector's output
// is never modified in place.
func ShiftAll(dets []Detection, pixelShift float64, frameWidthPx int) []Detection {
	out := make([]Detection, len(dets))
	dx := float32(units.PixelsToNormalized(pixelShift, frameWidthPx))
	for i, d := range dets {
		out[i] = d.Shifted(dx)
	}
	return out
}
