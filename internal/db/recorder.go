package db

import (
	"context"
	"sync/atomic"

	"github.com/banshee-data/cone.pilot/internal/pipeline"
)

// recorderBuffer is how many frames may wait for the database before new
// ones are dropped.
const recorderBuffer = 256

// Recorder is a pipeline.Sink that writes FrameResults to the database on
// its own goroutine. Publish never blocks the frame loop; when the buffer is
// full the frame is dropped and counted.
type Recorder struct {
	db    *DB
	runID string
	ch    chan pipeline.FrameResult

	written atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64
}

// NewRecorder returns a Recorder writing frames under runID.
func NewRecorder(db *DB, runID string) *Recorder {
	return &Recorder{
		db:    db,
		runID: runID,
		ch:    make(chan pipeline.FrameResult, recorderBuffer),
	}
}

// RunID returns the run the recorder writes to.
func (r *Recorder) RunID() string { return r.runID }

// Publish implements pipeline.Sink.
func (r *Recorder) Publish(res pipeline.FrameResult) {
	select {
	case r.ch <- res:
	default:
		r.dropped.Add(1)
	}
}

// Run drains queued frames into the database until ctx is done, then
// flushes whatever is still queued.
func (r *Recorder) Run(ctx context.Context) {
	for {
		select {
		case res := <-r.ch:
			r.write(res)
		case <-ctx.Done():
			for {
				select {
				case res := <-r.ch:
					r.write(res)
				default:
					logf("recorder stopped: %d written, %d dropped, %d failed",
						r.written.Load(), r.dropped.Load(), r.failed.Load())
					return
				}
			}
		}
	}
}

func (r *Recorder) write(res pipeline.FrameResult) {
	if err := r.db.RecordFrame(r.runID, res); err != nil {
		if r.failed.Add(1) == 1 {
			logf("recorder: %v", err)
		}
		return
	}
	r.written.Add(1)
}

// Stats returns written, dropped and failed frame counts.
func (r *Recorder) Stats() (written, dropped, failed uint64) {
	return r.written.Load(), r.dropped.Load(), r.failed.Load()
}
