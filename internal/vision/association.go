package vision

import "math"

// DefaultGatePx is the largest frame-to-frame horizontal jump, in pixels,
// accepted for a class that was seen on the previous frame.
const DefaultGatePx = 60.0

// Associator gates the current frame's detections against the previous
// accepted set. It is a single-hypothesis, nearest-previous-by-class check:
// no scoring, no multi-frame confirmation.
type Associator struct {
	GatePx float64
}

// NewAssociator returns an Associator using gatePx, or DefaultGatePx when
// gatePx is not positive.
func NewAssociator(gatePx float64) Associator {
	if gatePx <= 0 {
		gatePx = DefaultGatePx
	}
	return Associator{GatePx: gatePx}
}

// Filter returns the detections from shifted that pass the gate, in input
// order. A detection whose class is absent from lastValid always passes.
// Otherwise it is compared against the first lastValid entry of the same
// class and passes only if its centre moved strictly less than GatePx.
//
// The result is meant to replace lastValid wholesale on the next frame.
func (a Associator) Filter(shifted, lastValid []Detection, frameWidthPx int) []Detection {
	out := make([]Detection, 0, len(shifted))
	for _, d := range shifted {
		prev, ok := firstOfClass(lastValid, d.ClassID)
		if !ok {
			out = append(out, d)
			continue
		}
		errPx := math.Abs(float64(d.Box.CenterX()-prev.Box.CenterX())) * float64(frameWidthPx)
		if errPx < a.GatePx {
			out = append(out, d)
		}
	}
	return out
}

func firstOfClass(dets []Detection, classID int) (Detection, bool) {
	for _, d := range dets {
		if d.ClassID == classID {
			return d, true
		}
	}
	return Detection{}, false
}
