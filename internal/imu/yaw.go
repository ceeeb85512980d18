// Package imu turns gyroscope readings into the angular corrections used by
// the frame pipeline.
package imu

// Compensate estimates how far, in pixels, the scene moved horizontally
// between two frames because the robot yawed.
//
// prevNs == 0 means there is no previous frame and the shift is zero. The
// returned anchor is always currNs. The estimate is not clamped: a stalled
// frame (large dt) or a large yaw rate yields a proportionally large shift.
func Compensate(prevNs, currNs int64, yawRate, fovRad float64, frameWidthPx int) (pixelShift float64, anchor int64) {
	var deltaYaw float64
	if prevNs != 0 {
		dt := float64(currNs-prevNs) * 1e-9
		deltaYaw = yawRate * dt
	}
	pixelShift = deltaYaw / fovRad * float64(frameWidthPx)
	return pixelShift, currNs
}

// Compensator carries the previous frame timestamp between calls to
// Compensate. The zero value has no previous frame.
type Compensator struct {
	FOVRad float64

	lastNs int64
}

// Shift returns the pixel shift for a frame captured at currNs and advances
// the anchor.
func (c *Compensator) Shift(currNs int64, yawRate float64, frameWidthPx int) float64 {
	shift, anchor := Compensate(c.lastNs, currNs, yawRate, c.FOVRad, frameWidthPx)
	c.lastNs = anchor
	return shift
}

// LastTimestamp returns the anchor, 0 if no frame has been seen.
func (c *Compensator) LastTimestamp() int64 {
	return c.lastNs
}

// Reset forgets the previous frame.
func (c *Compensator) Reset() {
	c.lastNs = 0
}
