package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/banshee-data/cone.pilot/internal/pipeline"
	"github.com/banshee-data/cone.pilot/internal/timeutil"
)

// maxIngestBody bounds a posted frame.
const maxIngestBody = 1 << 20

// FrameRequest is the body of POST /api/frames: the detector output for one
// camera frame, produced by an external inference process.
type FrameRequest struct {
	TimestampNanos int64       `json:"ts_ns"`
	WidthPx        int         `json:"width"`
	HeightPx       int         `json:"height"`
	YawRate        *float64    `json:"yaw_rate,omitempty"`
	Rows           [][]float32 `json:"rows"`
}

type ingestResponse struct {
	TimestampNanos int64 `json:"ts_ns"`
	Replaced       bool  `json:"replaced"`
}

func (s *Server) ingestFrame(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.cfg.Slot == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "frame ingest disabled")
		return
	}

	var req FrameRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxIngestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("Invalid frame: %v", err))
		return
	}
	if req.WidthPx <= 0 {
		s.writeJSONError(w, http.StatusBadRequest, "width must be positive")
		return
	}

	ts := req.TimestampNanos
	if ts == 0 {
		ts = timeutil.UnixNanos(s.cfg.Clock)
	}
	if req.YawRate != nil && s.cfg.Gyro != nil {
		s.cfg.Gyro.Set(*req.YawRate)
	}

	replaced := s.cfg.Slot.Offer(pipeline.Frame{
		TimestampNanos: ts,
		WidthPx:        req.WidthPx,
		HeightPx:       req.HeightPx,
		Image:          req.Rows,
	})
	s.writeJSON(w, http.StatusAccepted, ingestResponse{TimestampNanos: ts, Replaced: replaced})
}
