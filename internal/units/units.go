// Package units provides shared constants and conversions for angle units
package units

import "math"

// Unit constants
const (
	Radians = "rad"
	Degrees = "deg"
)

// ValidUnits contains all valid angle unit values
var ValidUnits = []string{Radians, Degrees}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return "rad, deg"
}

// DegToRad converts degrees to radians.
func DegToRad(deg float64) float64 {
	return deg * math.Pi / 180
}

// RadToDeg converts radians to degrees.
func RadToDeg(rad float64) float64 {
	return rad * 180 / math.Pi
}

// ConvertAngle converts an angle in radians to the target units
// Bearings are carried in radians internally
func ConvertAngle(rad float64, targetUnits string) float64 {
	switch targetUnits {
	case Degrees:
		return RadToDeg(rad)
	default:
		return rad // default to radians if unknown unit
	}
}

// PixelsToNormalized converts a horizontal pixel distance into a fraction of
// the frame width. A non-positive width yields 0.
func PixelsToNormalized(px float64, frameWidthPx int) float64 {
	if frameWidthPx <= 0 {
		return 0
	}
	return px / float64(frameWidthPx)
}
