package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/cone.pilot/internal/imu"
	"github.com/banshee-data/cone.pilot/internal/monitoring"
	"github.com/banshee-data/cone.pilot/internal/navigation"
	"github.com/banshee-data/cone.pilot/internal/vision"
)

func TestLatestFrame_KeepsOnlyLatest(t *testing.T) {
	slot := NewLatestFrame()

	assert.False(t, slot.Offer(Frame{TimestampNanos: 1}))
	assert.True(t, slot.Offer(Frame{TimestampNanos: 2}))
	assert.True(t, slot.Offer(Frame{TimestampNanos: 3}))

	f, err := slot.Take(t.Context())
	require.NoError(t, err)
	assert.Equal(t, int64(3), f.TimestampNanos)

	offered, dropped := slot.Stats()
	assert.Equal(t, uint64(3), offered)
	assert.Equal(t, uint64(2), dropped)

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	_, err = slot.Take(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded, "slot is empty after a take")
}

func TestLatestFrame_TakeWakesOnOffer(t *testing.T) {
	slot := NewLatestFrame()
	got := make(chan Frame, 1)
	go func() {
		f, err := slot.Take(context.Background())
		if err == nil {
			got <- f
		}
	}()

	time.Sleep(10 * time.Millisecond)
	slot.Offer(Frame{TimestampNanos: 42})

	select {
	case f := <-got:
		assert.Equal(t, int64(42), f.TimestampNanos)
	case <-time.After(time.Second):
		t.Fatal("Take did not wake up")
	}
}

func TestWorker_Run(t *testing.T) {
	orig := monitoring.Logf
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.SetLogger(orig) })

	slot := NewLatestFrame()
	gyro := &imu.Gyro{}
	detector := DetectorFunc(func(f Frame) ([]vision.Detection, error) {
		if f.TimestampNanos == 2 {
			return nil, errors.New("inference failed")
		}
		return []vision.Detection{cone(0.4375, 0.5625)}, nil
	})

	results := make(chan FrameResult, 4)
	w := &Worker{
		Slot:       slot,
		Detector:   detector,
		Gyro:       gyro,
		Controller: NewController(ControllerConfig{}),
		Sinks:      []Sink{SinkFunc(func(r FrameResult) { results <- r })},
	}

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	next := func() FrameResult {
		select {
		case r := <-results:
			return r
		case <-time.After(time.Second):
			t.Fatal("no result published")
			return FrameResult{}
		}
	}

	slot.Offer(Frame{TimestampNanos: 1, WidthPx: 640})
	r := next()
	assert.Equal(t, navigation.AlignToCone, r.State)

	slot.Offer(Frame{TimestampNanos: 2, WidthPx: 640})
	r = next()
	assert.Equal(t, navigation.SearchCone, r.State, "detector errors count as no detections")

	slot.Offer(Frame{TimestampNanos: 3, WidthPx: 640})
	r = next()
	assert.Equal(t, navigation.AlignToCone, r.State)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}

	st := w.Stats()
	assert.Equal(t, uint64(3), st.Processed)
	assert.Equal(t, uint64(1), st.DetectErrors)
	assert.Equal(t, uint64(3), st.Offered)
}

func TestWorker_StepReadsGyro(t *testing.T) {
	gyro := &imu.Gyro{}
	w := &Worker{
		Detector:   DetectorFunc(func(Frame) ([]vision.Detection, error) { return nil, nil }),
		Gyro:       gyro,
		Controller: NewController(ControllerConfig{FOVRad: 1.0}),
	}

	w.Step(Frame{TimestampNanos: 1_000_000_000, WidthPx: 640})
	gyro.Set(0.5)
	r := w.Step(Frame{TimestampNanos: 1_100_000_000, WidthPx: 640})
	assert.InDelta(t, 32.0, r.PixelShift, 1e-9)
}

func TestWorker_RunRequiresCollaborators(t *testing.T) {
	err := (&Worker{}).Run(t.Context())
	assert.Error(t, err)
}

func TestTensorDetector(t *testing.T) {
	d := TensorDetector{}

	dets, err := d.Detect(Frame{Image: [][]float32{
		{0.4, 0.2, 0.6, 0.8, 0.9, 0},
		{0.1, 0.2, 0.2, 0.3, 0.3, 0},
	}})
	require.NoError(t, err)
	require.Len(t, dets, 1)
	assert.Equal(t, float32(0.9), dets[0].Score)

	dets, err = d.Detect(Frame{})
	assert.NoError(t, err)
	assert.Empty(t, dets)

	_, err = d.Detect(Frame{Image: "jpeg bytes"})
	assert.Error(t, err)

	strict := TensorDetector{MinScore: 0.95}
	dets, _ = strict.Detect(Frame{Image: [][]float32{{0.4, 0.2, 0.6, 0.8, 0.9, 0}}})
	assert.Empty(t, dets)
}
