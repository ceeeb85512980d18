package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/banshee-data/cone.pilot/internal/db"
	"github.com/banshee-data/cone.pilot/internal/monitoring"
	"github.com/banshee-data/cone.pilot/internal/pipeline"
	"github.com/banshee-data/cone.pilot/internal/serialmux"
	"github.com/banshee-data/cone.pilot/internal/timeutil"
	"github.com/banshee-data/cone.pilot/internal/units"
)

var logf = monitoring.Component("api")

// defaultHistorySize is how many recent frames are kept in memory for the
// live chart.
const defaultHistorySize = 300

// LinkStatus is the part of the drive link the API reports on.
type LinkStatus interface {
	IsConnected() bool
}

// YawRateSetter receives yaw rates posted along with ingested frames.
type YawRateSetter interface {
	Set(rate float64)
}

// Config wires a Server to the rest of the process. Every field except
// Clock is optional; the matching routes answer 503 when their dependency
// is missing.
type Config struct {
	DB          *db.DB
	RunID       string
	Link        LinkStatus
	Lines       *serialmux.LineHandler
	Commands    *serialmux.CommandChannel
	Slot        *pipeline.LatestFrame
	Gyro        YawRateSetter
	WorkerStats func() pipeline.WorkerStats
	Clock       timeutil.Clock
	HistorySize int
}

type Server struct {
	cfg Config
	hub *Hub

	mu      sync.RWMutex
	latest  *pipeline.FrameResult
	history []pipeline.FrameResult // ring, oldest first after unroll
	next    int
	full    bool
}

func NewServer(cfg Config) *Server {
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = defaultHistorySize
	}
	return &Server{
		cfg:     cfg,
		hub:     NewHub(),
		history: make([]pipeline.FrameResult, cfg.HistorySize),
	}
}

// Run drives the websocket hub until ctx is done.
func (s *Server) Run(ctx context.Context) {
	s.hub.Run(ctx)
}

// Publish implements pipeline.Sink: it keeps the result for the state and
// chart endpoints and pushes it to websocket clients.
func (s *Server) Publish(r pipeline.FrameResult) {
	s.mu.Lock()
	latest := r
	s.latest = &latest
	s.history[s.next] = r
	s.next = (s.next + 1) % len(s.history)
	if s.next == 0 {
		s.full = true
	}
	s.mu.Unlock()

	msg, err := json.Marshal(r)
	if err != nil {
		logf("failed to encode frame result: %v", err)
		return
	}
	s.hub.Broadcast(msg)
}

// History returns the in-memory frame history, oldest first.
func (s *Server) History() []pipeline.FrameResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.full {
		return append([]pipeline.FrameResult(nil), s.history[:s.next]...)
	}
	out := make([]pipeline.FrameResult, 0, len(s.history))
	out = append(out, s.history[s.next:]...)
	return append(out, s.history[:s.next]...)
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/state", s.showState)
	mux.HandleFunc("/api/status", s.showStatus)
	mux.HandleFunc("/api/frames", s.ingestFrame)
	mux.HandleFunc("GET /api/runs", s.listRuns)
	mux.HandleFunc("GET /api/runs/{id}/summary", s.showRunSummary)
	mux.HandleFunc("GET /api/runs/{id}/frames", s.listRunFrames)
	mux.HandleFunc("/ws", s.serveWebsocket)
	mux.HandleFunc("/debug/charts/bearing", s.handleBearingChart)
	return mux
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logf("failed to write response: %v", err)
	}
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

type stateResponse struct {
	RunID     string                `json:"run_id,omitempty"`
	Connected bool                  `json:"connected"`
	Units     string                `json:"units"`
	Bearing   float64               `json:"bearing"` // in Units, 0 when absent
	Frame     *pipeline.FrameResult `json:"frame"`
}

func (s *Server) showState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	angleUnits := units.Radians
	if u := r.URL.Query().Get("units"); u != "" {
		if !units.IsValid(u) {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'units' parameter. Must be one of: "+units.GetValidUnitsString())
			return
		}
		angleUnits = u
	}
	s.mu.RLock()
	resp := stateResponse{RunID: s.cfg.RunID, Units: angleUnits, Frame: s.latest}
	s.mu.RUnlock()
	if resp.Frame != nil && resp.Frame.HasBearing {
		resp.Bearing = units.ConvertAngle(resp.Frame.Bearing, angleUnits)
	}
	if s.cfg.Link != nil {
		resp.Connected = s.cfg.Link.IsConnected()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type statusResponse struct {
	Connected    bool                    `json:"connected"`
	Commands     *serialmux.ChannelStats `json:"commands,omitempty"`
	LineCounts   map[string]uint64       `json:"line_counts,omitempty"`
	DeviceStatus map[string]any          `json:"device_status,omitempty"`
	Worker       *pipeline.WorkerStats   `json:"worker,omitempty"`
	Clients      int                     `json:"ws_clients"`
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	resp := statusResponse{Clients: s.hub.ClientCount()}
	if s.cfg.Link != nil {
		resp.Connected = s.cfg.Link.IsConnected()
	}
	if s.cfg.Commands != nil {
		st := s.cfg.Commands.Stats()
		resp.Commands = &st
	}
	if s.cfg.Lines != nil {
		resp.LineCounts = s.cfg.Lines.Counts()
		resp.DeviceStatus = s.cfg.Lines.Status()
	}
	if s.cfg.WorkerStats != nil {
		st := s.cfg.WorkerStats()
		resp.Worker = &st
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	if s.cfg.DB == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "telemetry disabled")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := s.cfg.DB.Runs(limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve runs: %v", err))
		return
	}
	if runs == nil {
		runs = []db.Run{}
	}
	s.writeJSON(w, http.StatusOK, runs)
}

func (s *Server) showRunSummary(w http.ResponseWriter, r *http.Request) {
	if s.cfg.DB == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "telemetry disabled")
		return
	}
	summary, err := s.cfg.DB.RunSummary(r.PathValue("id"))
	if errors.Is(err, db.ErrRunNotFound) {
		s.writeJSONError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to summarise run: %v", err))
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

func (s *Server) listRunFrames(w http.ResponseWriter, r *http.Request) {
	if s.cfg.DB == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "telemetry disabled")
		return
	}
	limit := 500
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 || parsed > 10000 {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'limit' parameter")
			return
		}
		limit = parsed
	}
	frames, err := s.cfg.DB.RecentFrames(r.PathValue("id"), limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve frames: %v", err))
		return
	}
	if frames == nil {
		frames = []db.FrameRecord{}
	}
	s.writeJSON(w, http.StatusOK, frames)
}
