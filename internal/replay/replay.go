// Package replay feeds recorded detector output through the pipeline so the
// controller can be exercised without a camera or a phone.
//
// A fixture is a JSON-lines file, one frame per line:
//
//	{"ts_ns": 1000000000, "width": 640, "height": 480, "yaw_rate": 0.1,
//	 "rows": [[0.45, 0.30, 0.55, 0.90, 0.87, 0]]}
//
// Blank lines and lines starting with '#' are ignored.
package replay

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/banshee-data/cone.pilot/internal/monitoring"
	"github.com/banshee-data/cone.pilot/internal/pipeline"
	"github.com/banshee-data/cone.pilot/internal/timeutil"
)

var logf = monitoring.Component("replay")

// maxLineSize bounds a single fixture line.
const maxLineSize = 1 << 20

// Record is one recorded frame.
type Record struct {
	TimestampNanos int64       `json:"ts_ns"`
	WidthPx        int         `json:"width"`
	HeightPx       int         `json:"height"`
	YawRate        float64     `json:"yaw_rate"`
	Rows           [][]float32 `json:"rows"`
}

// Decode reads JSON-lines records from r.
func Decode(r io.Reader) ([]Record, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var records []Record
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if rec.WidthPx <= 0 {
			return nil, fmt.Errorf("line %d: width must be positive, got %d", lineNo, rec.WidthPx)
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read fixture: %w", err)
	}
	return records, nil
}

// LoadFile reads a fixture file.
func LoadFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open fixture %s: %w", path, err)
	}
	defer f.Close()

	records, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("fixture %s: %w", path, err)
	}
	return records, nil
}

// YawRateSetter receives the recorded yaw rate ahead of each frame.
type YawRateSetter interface {
	Set(rate float64)
}

// Source paces Records into a LatestFrame slot.
type Source struct {
	Records  []Record
	Clock    timeutil.Clock // defaults to RealClock
	Interval time.Duration  // delay between frames, defaults to 33ms

	// Loop restarts from the first record after the last one. Looped frames
	// are stamped with the clock so timestamps keep increasing.
	Loop bool

	// Restamp always stamps frames with the clock instead of the recorded
	// ts_ns. Records with ts_ns == 0 are always restamped.
	Restamp bool
}

// Run offers one frame per tick until the records are exhausted (returns
// nil) or ctx is cancelled (returns ctx.Err()). gyro may be nil.
func (s *Source) Run(ctx context.Context, gyro YawRateSetter, slot *pipeline.LatestFrame) error {
	if len(s.Records) == 0 {
		return fmt.Errorf("replay: no records")
	}
	clock := s.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	interval := s.Interval
	if interval <= 0 {
		interval = 33 * time.Millisecond
	}

	ticker := clock.NewTicker(interval)
	defer ticker.Stop()

	logf("starting replay of %d frames every %v (loop: %t)", len(s.Records), interval, s.Loop)
	offered := 0
	for i := 0; ; i++ {
		if i == len(s.Records) {
			if !s.Loop {
				logf("replay complete: %d frames offered", offered)
				return nil
			}
			i = 0
		}

		select {
		case <-ctx.Done():
			logf("replay stopping due to context cancellation (offered %d frames)", offered)
			return ctx.Err()
		case <-ticker.C():
		}

		rec := s.Records[i]
		ts := rec.TimestampNanos
		if s.Restamp || s.Loop || ts == 0 {
			ts = timeutil.UnixNanos(clock)
		}
		if gyro != nil {
			gyro.Set(rec.YawRate)
		}
		slot.Offer(pipeline.Frame{
			TimestampNanos: ts,
			WidthPx:        rec.WidthPx,
			HeightPx:       rec.HeightPx,
			Image:          rec.Rows,
		})
		offered++
	}
}
