package serialmux

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"sync"

	"github.com/banshee-data/cone.pilot/internal/imu"
)

// LineHandler consumes lines sent back by the robot controller: gyroscope
// samples feed the shared Gyro, JSON status lines are merged into a status
// map and error lines are logged.
type LineHandler struct {
	Gyro *imu.Gyro

	mu     sync.Mutex
	status map[string]any
	counts map[string]uint64
}

// NewLineHandler returns a handler that stores yaw rates into gyro.
func NewLineHandler(gyro *imu.Gyro) *LineHandler {
	return &LineHandler{
		Gyro:   gyro,
		status: make(map[string]any),
		counts: make(map[string]uint64),
	}
}

// HandleEvent dispatches a single line.
func (h *LineHandler) HandleEvent(payload string) error {
	kind := ClassifyPayload(payload)

	h.mu.Lock()
	h.counts[kind]++
	h.mu.Unlock()

	switch kind {
	case EventTypeGyro:
		rate, err := imu.ParseGyroLine(payload)
		if err != nil {
			return fmt.Errorf("failed to handle gyro event: %w", err)
		}
		if h.Gyro != nil {
			h.Gyro.Set(rate)
		}
	case EventTypeStatus:
		var values map[string]any
		if err := json.Unmarshal([]byte(payload), &values); err != nil {
			return fmt.Errorf("failed to unmarshal status JSON: %w", err)
		}
		h.mu.Lock()
		maps.Copy(h.status, values)
		h.mu.Unlock()
	case EventTypeError:
		logf("robot reported: %s", payload)
	case EventTypeAck:
	default:
		logf("unknown line: %q", payload)
	}
	return nil
}

// Status returns a copy of the merged status values.
func (h *LineHandler) Status() map[string]any {
	h.mu.Lock()
	defer h.mu.Unlock()
	return maps.Clone(h.status)
}

// Counts returns how many lines of each event type were handled.
func (h *LineHandler) Counts() map[string]uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return maps.Clone(h.counts)
}

// Run subscribes to mux and handles lines until ctx is done or the
// subscription is closed.
func (h *LineHandler) Run(ctx context.Context, mux SerialMuxInterface) {
	id, c := mux.Subscribe()
	defer mux.Unsubscribe(id)
	for {
		select {
		case payload, ok := <-c:
			if !ok {
				return
			}
			if err := h.HandleEvent(payload); err != nil {
				logf("error handling line: %v", err)
			}
		case <-ctx.Done():
			return
		}
	}
}
