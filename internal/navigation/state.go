// Package navigation decides what the robot should do with a bearing: which
// phase it is in and which steering/throttle to command.
package navigation

import (
	"fmt"
	"math"

	"github.com/banshee-data/cone.pilot/internal/units"
)

// State is the navigation phase.
type State int

const (
	SearchCone   State = iota // no target, sweep slowly
	AlignToCone               // target seen, turn towards it
	ApproachCone              // aligned, drive towards it
)

// DefaultDeadZoneRad is the bearing magnitude below which the robot counts as
// aligned (3 degrees).
var DefaultDeadZoneRad = units.DegToRad(3)

var stateNames = [...]string{
	SearchCone:   "SEARCH_CONE",
	AlignToCone:  "ALIGN_TO_CONE",
	ApproachCone: "APPROACH_CONE",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// MarshalText lets states appear by name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText accepts the names produced by MarshalText.
func (s *State) UnmarshalText(b []byte) error {
	st, err := ParseState(string(b))
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// ParseState is the inverse of State.String.
func ParseState(name string) (State, error) {
	for i, n := range stateNames {
		if n == name {
			return State(i), nil
		}
	}
	return SearchCone, fmt.Errorf("unknown navigation state %q", name)
}

// Next returns the state following s given this frame's bearing. ok reports
// whether a bearing exists. Losing the target always returns to SearchCone;
// acquisition from SearchCone ignores the bearing magnitude, while
// AlignToCone only advances once |bearing| < deadZoneRad. ApproachCone never
// re-checks alignment.
func Next(s State, bearing float64, ok bool, deadZoneRad float64) State {
	if !ok {
		return SearchCone
	}
	switch s {
	case SearchCone:
		return AlignToCone
	case AlignToCone:
		if math.Abs(bearing) < deadZoneRad {
			return ApproachCone
		}
		return AlignToCone
	case ApproachCone:
		return ApproachCone
	default:
		return SearchCone
	}
}

// Machine holds the live navigation state. The zero value starts in
// SearchCone with the default dead zone.
type Machine struct {
	DeadZoneRad float64

	state State
}

// NewMachine returns a Machine in SearchCone.
func NewMachine(deadZoneRad float64) *Machine {
	if deadZoneRad <= 0 {
		deadZoneRad = DefaultDeadZoneRad
	}
	return &Machine{DeadZoneRad: deadZoneRad}
}

// State returns the current phase.
func (m *Machine) State() State {
	return m.state
}

// Update advances the machine with this frame's bearing and returns the new
// state.
func (m *Machine) Update(bearing float64, ok bool) State {
	dz := m.DeadZoneRad
	if dz <= 0 {
		dz = DefaultDeadZoneRad
	}
	m.state = Next(m.state, bearing, ok, dz)
	return m.state
}
