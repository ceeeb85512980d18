package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/cone.pilot/internal/db"
	"github.com/banshee-data/cone.pilot/internal/navigation"
)

func sampleFrames() []db.FrameRecord {
	return []db.FrameRecord{
		{TimestampNanos: 1_000_000_000, State: navigation.SearchCone, Steering: 0.35, Throttle: 0.2},
		{TimestampNanos: 1_500_000_000, State: navigation.AlignToCone, Bearing: 0.1, HasBearing: true, Steering: -0.12, Throttle: 0.15},
		{TimestampNanos: 2_000_000_000, State: navigation.ApproachCone, Bearing: 0.02, HasBearing: true, Steering: -0.024, Throttle: 0.35},
	}
}

func TestRunSeries(t *testing.T) {
	bearing, steering, throttle := runSeries(sampleFrames())

	require.Len(t, bearing, 2)
	require.Len(t, steering, 3)
	require.Len(t, throttle, 3)

	assert.Equal(t, 0.0, steering[0].X)
	assert.InDelta(t, 0.5, bearing[0].X, 1e-9)
	assert.InDelta(t, 5.7296, bearing[0].Y, 1e-3)
	assert.Equal(t, 0.35, throttle[2].Y)

	b, s, th := runSeries(nil)
	assert.Nil(t, b)
	assert.Nil(t, s)
	assert.Nil(t, th)
}

func TestRenderRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.png")
	require.NoError(t, renderRun("abc", sampleFrames(), path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Greater(t, len(data), 8)
	assert.Equal(t, "\x89PNG", string(data[:4]))
}
