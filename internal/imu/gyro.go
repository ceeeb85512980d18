package imu

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync/atomic"
)

// GyroLinePrefix marks gyroscope samples streamed by the robot controller.
const GyroLinePrefix = "G:"

// Gyro holds the most recent yaw rate reported by the motion sensor. It has
// a single writer (the sensor callback) and any number of readers; readers
// never block and always see the latest completed write.
type Gyro struct {
	bits    atomic.Uint64
	samples atomic.Uint64
}

// Set stores a new yaw rate in rad/s.
func (g *Gyro) Set(rate float64) {
	g.bits.Store(math.Float64bits(rate))
	g.samples.Add(1)
}

// YawRate returns the latest yaw rate in rad/s, 0 before the first sample.
func (g *Gyro) YawRate() float64 {
	return math.Float64frombits(g.bits.Load())
}

// Samples returns the number of samples stored so far.
func (g *Gyro) Samples() uint64 {
	return g.samples.Load()
}

// ParseGyroLine decodes a "G:<x>,<y>,<z>" line (rad/s) and returns the z axis,
// which is the yaw rate for a sensor mounted flat.
func ParseGyroLine(line string) (float64, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, GyroLinePrefix) {
		return 0, fmt.Errorf("not a gyro line: %q", line)
	}
	axes := strings.Split(strings.TrimPrefix(line, GyroLinePrefix), ",")
	if len(axes) != 3 {
		return 0, fmt.Errorf("invalid gyro line %q, expected 3 axes", line)
	}
	z, err := strconv.ParseFloat(strings.TrimSpace(axes[2]), 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse yaw rate: %w", err)
	}
	return z, nil
}
