package pipeline

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/banshee-data/cone.pilot/internal/monitoring"
	"github.com/banshee-data/cone.pilot/internal/vision"
)

var logf = monitoring.Component("pipeline")

// Detector produces raw detections for a frame. An error is logged and the
// frame is processed as if nothing was detected.
type Detector interface {
	Detect(Frame) ([]vision.Detection, error)
}

// DetectorFunc adapts a function to the Detector interface.
type DetectorFunc func(Frame) ([]vision.Detection, error)

// Detect calls f(frame).
func (f DetectorFunc) Detect(frame Frame) ([]vision.Detection, error) { return f(frame) }

// YawRateSource reports the latest yaw rate in rad/s, 0 when unknown.
type YawRateSource interface {
	YawRate() float64
}

// Sink receives every FrameResult. Publish is called on the Worker
// goroutine and must return quickly.
type Sink interface {
	Publish(FrameResult)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(FrameResult)

// Publish calls f(r).
func (f SinkFunc) Publish(r FrameResult) { f(r) }

// WorkerStats is a snapshot of Worker counters.
type WorkerStats struct {
	Processed    uint64 `json:"processed"`
	DetectErrors uint64 `json:"detect_errors"`
	Offered      uint64 `json:"offered"`
	Dropped      uint64 `json:"dropped"`
}

// Worker consumes frames from a LatestFrame slot one at a time.
type Worker struct {
	Slot       *LatestFrame
	Detector   Detector
	Gyro       YawRateSource // Optional: nil means no yaw compensation
	Controller *Controller
	Sinks      []Sink

	processed    atomic.Uint64
	detectErrors atomic.Uint64
}

// Run processes frames until ctx is cancelled. It returns nil on
// cancellation.
func (w *Worker) Run(ctx context.Context) error {
	if w.Slot == nil || w.Detector == nil || w.Controller == nil {
		return errors.New("pipeline: worker needs a slot, a detector and a controller")
	}
	for {
		frame, err := w.Slot.Take(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		w.Step(frame)
	}
}

// Step runs a single frame through detection, the controller and the sinks.
func (w *Worker) Step(frame Frame) FrameResult {
	raw, err := w.Detector.Detect(frame)
	if err != nil {
		w.detectErrors.Add(1)
		logf("detector failed on frame %d: %v", frame.TimestampNanos, err)
		raw = nil
	}

	var yaw float64
	if w.Gyro != nil {
		yaw = w.Gyro.YawRate()
	}

	result := w.Controller.ProcessFrame(FrameContext{
		CaptureTimestampNanos: frame.TimestampNanos,
		YawRateRadPerSec:      yaw,
		FrameWidthPx:          frame.WidthPx,
	}, raw)
	w.processed.Add(1)

	for _, s := range w.Sinks {
		s.Publish(result)
	}
	return result
}

// Stats returns a snapshot of the worker and slot counters.
func (w *Worker) Stats() WorkerStats {
	st := WorkerStats{
		Processed:    w.processed.Load(),
		DetectErrors: w.detectErrors.Load(),
	}
	if w.Slot != nil {
		st.Offered, st.Dropped = w.Slot.Stats()
	}
	return st
}
