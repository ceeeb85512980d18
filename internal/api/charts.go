package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/cone.pilot/internal/units"
)

// chartPoint is one sample plotted by the bearing chart.
type chartPoint struct {
	tsNanos    int64
	bearingRad float64
	hasBearing bool
	steering   float64
	throttle   float64
}

// handleBearingChart renders bearing and drive commands over time (HTML).
// Without query params it plots the in-memory history of the live loop.
// Query params:
//   - run_id (optional) plot a stored run instead
//   - limit (optional; default 500) frames to read from the stored run
func (s *Server) handleBearingChart(w http.ResponseWriter, r *http.Request) {
	var (
		points   []chartPoint
		subtitle string
	)

	if runID := r.URL.Query().Get("run_id"); runID != "" {
		if s.cfg.DB == nil {
			s.writeJSONError(w, http.StatusServiceUnavailable, "telemetry disabled")
			return
		}
		limit := 500
		if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 && l <= 10000 {
			limit = l
		}
		frames, err := s.cfg.DB.RecentFrames(runID, limit)
		if err != nil {
			s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve frames: %v", err))
			return
		}
		for _, f := range frames {
			points = append(points, chartPoint{f.TimestampNanos, f.Bearing, f.HasBearing, f.Steering, f.Throttle})
		}
		subtitle = fmt.Sprintf("run=%s frames=%d", runID, len(points))
	} else {
		for _, f := range s.History() {
			points = append(points, chartPoint{f.Timestamp, f.Bearing, f.HasBearing, f.Command.Steering, f.Command.Throttle})
		}
		subtitle = fmt.Sprintf("live frames=%d", len(points))
	}

	if len(points) == 0 {
		s.writeJSONError(w, http.StatusNotFound, "no frames to plot")
		return
	}

	t0 := points[0].tsNanos
	x := make([]string, len(points))
	bearing := make([]opts.LineData, len(points))
	steering := make([]opts.LineData, len(points))
	throttle := make([]opts.LineData, len(points))
	for i, p := range points {
		x[i] = strconv.FormatFloat(float64(p.tsNanos-t0)/1e9, 'f', 2, 64)
		if p.hasBearing {
			bearing[i] = opts.LineData{Value: units.RadToDeg(p.bearingRad)}
		} else {
			bearing[i] = opts.LineData{Value: "-"}
		}
		steering[i] = opts.LineData{Value: p.steering}
		throttle[i] = opts.LineData{Value: p.throttle}
	}

	bearingChart := charts.NewLine()
	bearingChart.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Cone bearing", Width: "100%", Height: "360px"}),
		charts.WithTitleOpts(opts.Title{Title: "Bearing (deg)", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "t (s)"}),
	)
	bearingChart.SetXAxis(x).AddSeries("bearing", bearing)

	driveChart := charts.NewLine()
	driveChart.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "360px"}),
		charts.WithTitleOpts(opts.Title{Title: "Drive command"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "t (s)"}),
		charts.WithYAxisOpts(opts.YAxis{Min: -1, Max: 1}),
	)
	driveChart.SetXAxis(x).
		AddSeries("steering", steering).
		AddSeries("throttle", throttle)

	page := components.NewPage()
	page.AddCharts(bearingChart, driveChart)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("render error: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
