package vision

// EstimateBearing returns the bearing in radians from the camera boresight to
// the first detection in dets. Positive means the target is right of centre.
// The second result is false when dets is empty.
//
// Selection is positional, not by score: the first survivor of association
// wins.
func EstimateBearing(dets []Detection, fovRad float64) (float64, bool) {
	if len(dets) == 0 {
		return 0, false
	}
	cx := float64(dets[0].Box.CenterX())
	return (cx - 0.5) * fovRad, true
}
