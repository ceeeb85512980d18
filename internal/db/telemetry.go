package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/cone.pilot/internal/navigation"
	"github.com/banshee-data/cone.pilot/internal/pipeline"
)

// ErrRunNotFound is returned when a run ID is unknown.
var ErrRunNotFound = errors.New("run not found")

// Run is one session of the navigation loop.
type Run struct {
	ID        string    `json:"run_id"`
	StartedAt time.Time `json:"started_at"`
	Note      string    `json:"note"`
}

// FrameRecord is one stored frame.
type FrameRecord struct {
	RunID          string           `json:"run_id"`
	TimestampNanos int64            `json:"ts_ns"`
	State          navigation.State `json:"state"`
	Bearing        float64          `json:"bearing_rad"`
	HasBearing     bool             `json:"has_bearing"`
	Steering       float64          `json:"steering"`
	Throttle       float64          `json:"throttle"`
	Sent           bool             `json:"sent"`
	DetectionCount int              `json:"detection_count"`
	RawCount       int              `json:"raw_count"`
	PixelShift     float64          `json:"pixel_shift"`
}

// RunSummary aggregates the frames of a run. Bearing statistics only cover
// frames that had a bearing.
type RunSummary struct {
	RunID          string         `json:"run_id"`
	Frames         int            `json:"frames"`
	FramesSent     int            `json:"frames_sent"`
	BearingFrames  int            `json:"bearing_frames"`
	BearingMean    float64        `json:"bearing_mean_rad"`
	BearingStdDev  float64        `json:"bearing_stddev_rad"`
	SteeringMean   float64        `json:"steering_mean"`
	SteeringStdDev float64        `json:"steering_stddev"`
	StateCounts    map[string]int `json:"state_counts"`
	DurationNanos  int64          `json:"duration_ns"`
}

// StartRun creates a new run and returns it.
func (db *DB) StartRun(note string) (Run, error) {
	run := Run{
		ID:        uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Note:      note,
	}
	_, err := db.Exec(`INSERT INTO runs (run_id, started_at, note) VALUES (?, ?, ?)`,
		run.ID, run.StartedAt.UnixNano(), run.Note)
	if err != nil {
		return Run{}, fmt.Errorf("failed to start run: %w", err)
	}
	return run, nil
}

// Runs returns the most recent runs, newest first.
func (db *DB) Runs(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.Query(`SELECT run_id, started_at, note FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r       Run
			started int64
		)
		if err := rows.Scan(&r.ID, &started, &r.Note); err != nil {
			return nil, err
		}
		r.StartedAt = time.Unix(0, started).UTC()
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// RecordFrame stores one FrameResult under runID.
func (db *DB) RecordFrame(runID string, r pipeline.FrameResult) error {
	_, err := db.Exec(
		`INSERT INTO frames (
			run_id, ts_ns, state, bearing_rad, has_bearing, steering, throttle,
			sent, detection_count, raw_count, pixel_shift
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, r.Timestamp, r.State.String(), r.Bearing, r.HasBearing,
		r.Command.Steering, r.Command.Throttle, r.Sent, len(r.Detections),
		r.RawCount, r.PixelShift,
	)
	if err != nil {
		return fmt.Errorf("failed to record frame: %w", err)
	}
	return nil
}

// RecentFrames returns up to limit frames of runID in capture order, ending
// with the newest.
func (db *DB) RecentFrames(runID string, limit int) ([]FrameRecord, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := db.Query(`
		SELECT run_id, ts_ns, state, bearing_rad, has_bearing, steering, throttle,
			sent, detection_count, raw_count, pixel_shift
		FROM (
			SELECT * FROM frames WHERE run_id = ? ORDER BY ts_ns DESC, frame_id DESC LIMIT ?
		) ORDER BY ts_ns ASC, frame_id ASC`, runID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFrames(rows)
}

// RunFrames returns every frame of runID in capture order.
func (db *DB) RunFrames(runID string) ([]FrameRecord, error) {
	rows, err := db.Query(`
		SELECT run_id, ts_ns, state, bearing_rad, has_bearing, steering, throttle,
			sent, detection_count, raw_count, pixel_shift
		FROM frames WHERE run_id = ? ORDER BY ts_ns ASC, frame_id ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFrames(rows)
}

func scanFrames(rows *sql.Rows) ([]FrameRecord, error) {
	var frames []FrameRecord
	for rows.Next() {
		var (
			f     FrameRecord
			state string
		)
		if err := rows.Scan(&f.RunID, &f.TimestampNanos, &state, &f.Bearing, &f.HasBearing,
			&f.Steering, &f.Throttle, &f.Sent, &f.DetectionCount, &f.RawCount, &f.PixelShift); err != nil {
			return nil, err
		}
		st, err := navigation.ParseState(state)
		if err != nil {
			return nil, err
		}
		f.State = st
		frames = append(frames, f)
	}
	return frames, rows.Err()
}

// RunSummary computes aggregate statistics for runID.
func (db *DB) RunSummary(runID string) (RunSummary, error) {
	var exists bool
	if err := db.QueryRow(`SELECT COUNT(*) > 0 FROM runs WHERE run_id = ?`, runID).Scan(&exists); err != nil {
		return RunSummary{}, err
	}
	if !exists {
		return RunSummary{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	frames, err := db.RunFrames(runID)
	if err != nil {
		return RunSummary{}, err
	}
	return Summarize(runID, frames), nil
}

// Summarize aggregates frames. It is exported for tools that already hold
// the frames in memory.
func Summarize(runID string, frames []FrameRecord) RunSummary {
	s := RunSummary{
		RunID:       runID,
		Frames:      len(frames),
		StateCounts: map[string]int{},
	}
	if len(frames) == 0 {
		return s
	}

	bearings := make([]float64, 0, len(frames))
	steering := make([]float64, 0, len(frames))
	for _, f := range frames {
		s.StateCounts[f.State.String()]++
		if f.Sent {
			s.FramesSent++
		}
		if f.HasBearing {
			bearings = append(bearings, f.Bearing)
		}
		steering = append(steering, f.Steering)
	}

	s.BearingFrames = len(bearings)
	if len(bearings) > 0 {
		s.BearingMean, s.BearingStdDev = meanStdDev(bearings)
	}
	s.SteeringMean, s.SteeringStdDev = meanStdDev(steering)
	s.DurationNanos = frames[len(frames)-1].TimestampNanos - frames[0].TimestampNanos
	return s
}

// meanStdDev wraps stat.MeanStdDev, which reports NaN deviation for a single
// sample.
func meanStdDev(x []float64) (mean, std float64) {
	if len(x) == 1 {
		return x[0], 0
	}
	return stat.MeanStdDev(x, nil)
}
