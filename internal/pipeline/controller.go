package pipeline

import (
	"github.com/banshee-data/cone.pilot/internal/imu"
	"github.com/banshee-data/cone.pilot/internal/navigation"
	"github.com/banshee-data/cone.pilot/internal/units"
	"github.com/banshee-data/cone.pilot/internal/vision"
)

// DefaultFOVRad is the horizontal camera field of view (70°).
var DefaultFOVRad = units.DegToRad(70)

// CommandSender delivers a drive command to the robot. It reports whether the
// command was written; failures must not block or panic.
type CommandSender interface {
	Send(steering, throttle float64) bool
}

// FrameContext carries the per-frame inputs that do not come from the
// detector.
type FrameContext struct {
	CaptureTimestampNanos int64
	YawRateRadPerSec      float64
	FrameWidthPx          int
}

// FrameResult is everything the loop decided for one frame. Bearing is 0
// when HasBearing is false.
type FrameResult struct {
	Timestamp  int64                   `json:"ts_ns"`
	RawCount   int                     `json:"raw_count"`
	PixelShift float64                 `json:"pixel_shift"`
	Detections []vision.Detection      `json:"detections"`
	Bearing    float64                 `json:"bearing_rad"`
	HasBearing bool                    `json:"has_bearing"`
	State      navigation.State        `json:"state"`
	Command    navigation.DriveCommand `json:"command"`
	Sent       bool                    `json:"sent"`
}

// ControllerConfig holds the tuning for a Controller. Zero values select the
// defaults.
type ControllerConfig struct {
	FOVRad      float64
	GatePx      float64
	DeadZoneRad float64
	Gains       *navigation.DriveGains
	Commands    CommandSender // Optional: nil runs the loop without a robot
}

// Controller holds the state carried between frames: the accepted
// detections of the previous frame, the timestamp anchor of the yaw
// compensator and the navigation state.
type Controller struct {
	fovRad   float64
	assoc    vision.Associator
	gains    navigation.DriveGains
	commands CommandSender

	comp      imu.Compensator
	machine   *navigation.Machine
	lastValid []vision.Detection
}

// NewController returns a Controller in SEARCH_CONE with no history.
func NewController(cfg ControllerConfig) *Controller {
	fov := cfg.FOVRad
	if fov <= 0 {
		fov = DefaultFOVRad
	}
	gains := navigation.DefaultDriveGains()
	if cfg.Gains != nil {
		gains = *cfg.Gains
	}
	return &Controller{
		fovRad:   fov,
		assoc:    vision.NewAssociator(cfg.GatePx),
		gains:    gains,
		commands: cfg.Commands,
		comp:     imu.Compensator{FOVRad: fov},
		machine:  navigation.NewMachine(cfg.DeadZoneRad),
	}
}

// ProcessFrame runs one frame through the loop. raw is not modified.
func (c *Controller) ProcessFrame(fc FrameContext, raw []vision.Detection) FrameResult {
	shift := c.comp.Shift(fc.CaptureTimestampNanos, fc.YawRateRadPerSec, fc.FrameWidthPx)
	shifted := vision.ShiftAll(raw, shift, fc.FrameWidthPx)

	accepted := c.assoc.Filter(shifted, c.lastValid, fc.FrameWidthPx)
	c.lastValid = accepted

	bearing, ok := vision.EstimateBearing(accepted, c.fovRad)
	state := c.machine.Update(bearing, ok)
	cmd := c.gains.Command(state, bearing, ok)

	sent := false
	if c.commands != nil {
		sent = c.commands.Send(cmd.Steering, cmd.Throttle)
	}

	if !ok {
		bearing = 0
	}
	return FrameResult{
		Timestamp:  fc.CaptureTimestampNanos,
		RawCount:   len(raw),
		PixelShift: shift,
		Detections: accepted,
		Bearing:    bearing,
		HasBearing: ok,
		State:      state,
		Command:    cmd,
		Sent:       sent,
	}
}

// State returns the current navigation state.
func (c *Controller) State() navigation.State {
	return c.machine.State()
}

// LastValid returns a copy of the detections accepted on the previous frame.
func (c *Controller) LastValid() []vision.Detection {
	return append([]vision.Detection(nil), c.lastValid...)
}

// Reset drops all history and returns to SEARCH_CONE.
func (c *Controller) Reset() {
	c.comp.Reset()
	c.lastValid = nil
	c.machine = navigation.NewMachine(c.machine.DeadZoneRad)
}
