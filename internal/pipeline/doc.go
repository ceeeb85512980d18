// Package pipeline runs the per-frame navigation loop.
//
// A frame source offers frames into a LatestFrame slot. A single Worker
// takes the most recent frame, asks the Detector for raw detections, reads
// the yaw rate and hands both to the Controller, which performs
//
//	yaw compensation -> box shift -> association -> bearing ->
//	state transition -> drive law -> command send
//
// and returns a FrameResult that the Worker fans out to its Sinks.
//
// The Controller is not safe for concurrent use; it is owned by the Worker
// goroutine. Frames that arrive while the Worker is busy replace each other
// in the slot, so the loop always works on the freshest image.
package pipeline
