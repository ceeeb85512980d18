package db

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/cone.pilot/internal/monitoring"
	"github.com/banshee-data/cone.pilot/internal/navigation"
	"github.com/banshee-data/cone.pilot/internal/pipeline"
	"github.com/banshee-data/cone.pilot/internal/vision"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	orig := monitoring.Logf
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.SetLogger(orig) })

	db, err := NewDB(filepath.Join(t.TempDir(), "telemetry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func result(ts int64, state navigation.State, bearing float64, ok bool, steering, throttle float64) pipeline.FrameResult {
	r := pipeline.FrameResult{
		Timestamp:  ts,
		State:      state,
		HasBearing: ok,
		Command:    navigation.DriveCommand{Steering: steering, Throttle: throttle},
		Sent:       true,
		RawCount:   2,
	}
	if ok {
		r.Bearing = bearing
		r.Detections = []vision.Detection{{Score: 0.9}}
	}
	return r
}

func TestNewDB_AppliesMigrations(t *testing.T) {
	db := setupTestDB(t)
	fsys, err := MigrationsFS()
	require.NoError(t, err)

	version, dirty, err := db.MigrateVersion(fsys)
	require.NoError(t, err)
	assert.False(t, dirty)

	latest, err := LatestMigrationVersion(fsys)
	require.NoError(t, err)
	assert.Equal(t, latest, version)
	assert.Equal(t, uint(2), latest)
}

func TestMigrateDownAndUp(t *testing.T) {
	db := setupTestDB(t)
	fsys, err := MigrationsFS()
	require.NoError(t, err)

	require.NoError(t, db.MigrateDown(fsys))
	version, _, err := db.MigrateVersion(fsys)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)

	require.NoError(t, db.MigrateUp(fsys))
	require.NoError(t, db.MigrateUp(fsys), "up is idempotent")

	require.NoError(t, db.MigrateTo(fsys, 1))
	require.NoError(t, db.MigrateTo(fsys, 2))

	assert.Error(t, db.MigrateUp(nil))
}

func TestRecordAndQueryFrames(t *testing.T) {
	db := setupTestDB(t)

	run, err := db.StartRun("bench test")
	require.NoError(t, err)
	require.Len(t, run.ID, 36)

	inputs := []pipeline.FrameResult{
		result(100, navigation.SearchCone, 0, false, 0.35, 0.20),
		result(200, navigation.AlignToCone, 0.1, true, -0.12, 0.15),
		result(300, navigation.AlignToCone, 0.3, true, -0.36, 0.15),
		result(400, navigation.ApproachCone, 0.02, true, -0.024, 0.35),
	}
	for _, r := range inputs {
		require.NoError(t, db.RecordFrame(run.ID, r))
	}

	frames, err := db.RecentFrames(run.ID, 2)
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, int64(300), frames[0].TimestampNanos)
	assert.Equal(t, int64(400), frames[1].TimestampNanos)
	assert.Equal(t, navigation.ApproachCone, frames[1].State)
	assert.True(t, frames[1].HasBearing)
	assert.True(t, frames[1].Sent)
	assert.Equal(t, 1, frames[1].DetectionCount)
	assert.Equal(t, 2, frames[1].RawCount)

	all, err := db.RunFrames(run.ID)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.False(t, all[0].HasBearing)
	assert.Equal(t, 0, all[0].DetectionCount)

	other, err := db.StartRun("")
	require.NoError(t, err)
	none, err := db.RecentFrames(other.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, none)

	runs, err := db.Runs(10)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestRunSummary(t *testing.T) {
	db := setupTestDB(t)
	run, err := db.StartRun("")
	require.NoError(t, err)

	for _, r := range []pipeline.FrameResult{
		result(1_000, navigation.SearchCone, 0, false, 0.35, 0.20),
		result(2_000, navigation.AlignToCone, 0.1, true, -0.12, 0.15),
		result(3_000, navigation.ApproachCone, 0.3, true, -0.36, 0.35),
	} {
		require.NoError(t, db.RecordFrame(run.ID, r))
	}

	s, err := db.RunSummary(run.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, s.Frames)
	assert.Equal(t, 3, s.FramesSent)
	assert.Equal(t, 2, s.BearingFrames)
	assert.InDelta(t, 0.2, s.BearingMean, 1e-9)
	assert.InDelta(t, math.Sqrt(0.02), s.BearingStdDev, 1e-9)
	assert.InDelta(t, (0.35-0.12-0.36)/3, s.SteeringMean, 1e-9)
	assert.Equal(t, map[string]int{"SEARCH_CONE": 1, "ALIGN_TO_CONE": 1, "APPROACH_CONE": 1}, s.StateCounts)
	assert.Equal(t, int64(2_000), s.DurationNanos)

	_, err = db.RunSummary("missing")
	assert.True(t, errors.Is(err, ErrRunNotFound))
}

func TestSummarize_EdgeCases(t *testing.T) {
	empty := Summarize("r", nil)
	assert.Zero(t, empty.Frames)
	assert.NotNil(t, empty.StateCounts)

	single := Summarize("r", []FrameRecord{{State: navigation.AlignToCone, Bearing: 0.2, HasBearing: true, Steering: -0.24}})
	assert.Equal(t, 0.2, single.BearingMean)
	assert.Zero(t, single.BearingStdDev)
	assert.Zero(t, single.SteeringStdDev)
}

func TestRecorder(t *testing.T) {
	db := setupTestDB(t)
	run, err := db.StartRun("")
	require.NoError(t, err)

	rec := NewRecorder(db, run.ID)
	assert.Equal(t, run.ID, rec.RunID())

	var sink pipeline.Sink = rec
	for i := 1; i <= 5; i++ {
		sink.Publish(result(int64(i), navigation.SearchCone, 0, false, 0.35, 0.20))
	}

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan struct{})
	go func() {
		rec.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("recorder did not stop")
	}

	written, dropped, failed := rec.Stats()
	assert.Equal(t, uint64(5), written, "queued frames are flushed on shutdown")
	assert.Zero(t, dropped)
	assert.Zero(t, failed)

	frames, err := db.RunFrames(run.ID)
	require.NoError(t, err)
	assert.Len(t, frames, 5)
}

func TestRecorder_DropsWhenFull(t *testing.T) {
	db := setupTestDB(t)
	rec := NewRecorder(db, "r")
	for i := 0; i < recorderBuffer+3; i++ {
		rec.Publish(pipeline.FrameResult{})
	}
	_, dropped, _ := rec.Stats()
	assert.Equal(t, uint64(3), dropped)
}

func TestAttachAdminRoutes(t *testing.T) {
	db := setupTestDB(t)
	_, err := db.StartRun("admin")
	require.NoError(t, err)

	mux := http.NewServeMux()
	require.NoError(t, db.AttachAdminRoutes(mux))

	req := httptest.NewRequest(http.MethodGet, "/debug/runs", nil)
	req.RemoteAddr = "127.0.0.1:1234"
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var runs []Run
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, "admin", runs[0].Note)

	req = httptest.NewRequest(http.MethodGet, "/debug/backup", nil)
	req.RemoteAddr = "127.0.0.1:1234"
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/gzip", w.Header().Get("Content-Type"))
	assert.NotZero(t, w.Body.Len())
}
