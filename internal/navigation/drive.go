package navigation

import "fmt"

// DriveCommand is a normalised actuator request. Both fields are in [-1,1].
type DriveCommand struct {
	Steering float64 `json:"steering"`
	Throttle float64 `json:"throttle"`
}

func (c DriveCommand) String() string {
	return fmt.Sprintf("steering=%.3f throttle=%.3f", c.Steering, c.Throttle)
}

// DriveGains parameterises the per-state control law.
type DriveGains struct {
	Kp               float64 // steering per radian of bearing
	SearchSteering   float64
	SearchThrottle   float64
	AlignThrottle    float64
	ApproachThrottle float64
}

// DefaultDriveGains returns the tuned gains for the cone robot.
func DefaultDriveGains() DriveGains {
	return DriveGains{
		Kp:               1.2,
		SearchSteering:   0.35,
		SearchThrottle:   0.20,
		AlignThrottle:    0.15,
		ApproachThrottle: 0.35,
	}
}

// Command maps a state and bearing to a drive command. Steering is
// proportional with negative feedback and clamped to [-1,1]; an absent
// bearing counts as zero. SearchCone ignores the bearing entirely.
func (g DriveGains) Command(s State, bearing float64, ok bool) DriveCommand {
	if !ok {
		bearing = 0
	}
	switch s {
	case AlignToCone:
		return DriveCommand{Steering: clamp(-g.Kp*bearing, -1, 1), Throttle: g.AlignThrottle}
	case ApproachCone:
		return DriveCommand{Steering: clamp(-g.Kp*bearing, -1, 1), Throttle: g.ApproachThrottle}
	default:
		return DriveCommand{Steering: g.SearchSteering, Throttle: g.SearchThrottle}
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
