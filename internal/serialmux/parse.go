package serialmux

import (
	"strings"

	"github.com/banshee-data/cone.pilot/internal/imu"
)

const (
	EventTypeGyro    = "gyro"
	EventTypeAck     = "ack"
	EventTypeError   = "error"
	EventTypeStatus  = "status"
	EventTypeUnknown = "unknown"
)

// ClassifyPayload inspects a line sent back by the robot controller and
// returns a simple event type token.
func ClassifyPayload(payload string) string {
	payload = strings.TrimSpace(payload)
	switch {
	case strings.HasPrefix(payload, imu.GyroLinePrefix):
		return EventTypeGyro
	case payload == "OK" || strings.HasPrefix(payload, "ACK"):
		return EventTypeAck
	case strings.HasPrefix(payload, "ERR"):
		return EventTypeError
	case strings.HasPrefix(payload, "{"):
		return EventTypeStatus
	}
	return EventTypeUnknown
}
