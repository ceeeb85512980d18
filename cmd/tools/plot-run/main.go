// plot-run renders the bearing and drive commands of a recorded run to PNG.
//
// Usage:
//
//	plot-run -db conepilot.db -run <run_id> -out run.png
//
// Without -run the most recent run is plotted.
package main

import (
	"flag"
	"fmt"
	"image/color"
	"log"
	"os"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/banshee-data/cone.pilot/internal/db"
	"github.com/banshee-data/cone.pilot/internal/security"
	"github.com/banshee-data/cone.pilot/internal/units"
)

var (
	dbPath = flag.String("db", "conepilot.db", "Telemetry database path")
	runID  = flag.String("run", "", "Run ID to plot (defaults to the latest run)")
	out    = flag.String("out", "", "Output PNG path (defaults to run_<id>.png)")
)

var (
	bearingColor  = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	steeringColor = color.RGBA{R: 214, G: 39, B: 40, A: 255}
	throttleColor = color.RGBA{R: 44, G: 160, B: 44, A: 255}
)

func main() {
	flag.Parse()

	database, err := db.OpenDB(*dbPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()

	id := *runID
	if id == "" {
		runs, err := database.Runs(1)
		if err != nil {
			log.Fatalf("failed to list runs: %v", err)
		}
		if len(runs) == 0 {
			log.Fatal("no runs recorded")
		}
		id = runs[0].ID
	}

	frames, err := database.RunFrames(id)
	if err != nil {
		log.Fatalf("failed to read run %s: %v", id, err)
	}
	if len(frames) == 0 {
		log.Fatalf("run %s has no frames", id)
	}

	path := *out
	if path == "" {
		path = fmt.Sprintf("run_%s.png", security.SanitizeFilename(id))
	}
	if err := security.ValidateOutputPath(path); err != nil {
		log.Fatalf("refusing to write plot: %v", err)
	}
	if err := renderRun(id, frames, path); err != nil {
		log.Fatalf("failed to render plot: %v", err)
	}
	log.Printf("wrote %d frames of run %s to %s", len(frames), id, path)
}

// runSeries splits frames into plottable series with X in seconds since the
// first frame. Frames without a bearing are left out of the bearing series.
func runSeries(frames []db.FrameRecord) (bearingDeg, steering, throttle plotter.XYs) {
	if len(frames) == 0 {
		return nil, nil, nil
	}
	t0 := frames[0].TimestampNanos
	steering = make(plotter.XYs, 0, len(frames))
	throttle = make(plotter.XYs, 0, len(frames))
	for _, f := range frames {
		x := float64(f.TimestampNanos-t0) * 1e-9
		if f.HasBearing {
			bearingDeg = append(bearingDeg, plotter.XY{X: x, Y: units.RadToDeg(f.Bearing)})
		}
		steering = append(steering, plotter.XY{X: x, Y: f.Steering})
		throttle = append(throttle, plotter.XY{X: x, Y: f.Throttle})
	}
	return bearingDeg, steering, throttle
}

func renderRun(id string, frames []db.FrameRecord, path string) error {
	bearingPts, steeringPts, throttlePts := runSeries(frames)

	pBearing := plot.New()
	pBearing.Title.Text = fmt.Sprintf("Run %s - Bearing", id)
	pBearing.X.Label.Text = "Time (s)"
	pBearing.Y.Label.Text = "Bearing (deg)"
	pBearing.Add(plotter.NewGrid())
	if len(bearingPts) > 0 {
		line, err := plotter.NewLine(bearingPts)
		if err != nil {
			return fmt.Errorf("bearing line: %w", err)
		}
		line.Color = bearingColor
		line.Width = vg.Points(1)
		pBearing.Add(line)
	}

	pDrive := plot.New()
	pDrive.Title.Text = fmt.Sprintf("Run %s - Drive Commands", id)
	pDrive.X.Label.Text = "Time (s)"
	pDrive.Y.Min, pDrive.Y.Max = -1, 1
	pDrive.Add(plotter.NewGrid())
	for _, s := range []struct {
		name  string
		pts   plotter.XYs
		color color.Color
	}{
		{"steering", steeringPts, steeringColor},
		{"throttle", throttlePts, throttleColor},
	} {
		line, err := plotter.NewLine(s.pts)
		if err != nil {
			return fmt.Errorf("%s line: %w", s.name, err)
		}
		line.Color = s.color
		line.Width = vg.Points(1)
		pDrive.Add(line)
		pDrive.Legend.Add(s.name, line)
	}

	// stack the two plots into one image
	const width, height = 14 * vg.Inch, 10 * vg.Inch
	plots := [][]*plot.Plot{{pBearing}, {pDrive}}
	img := vgimg.New(width, height)
	dc := draw.New(img)
	tiles := draw.Tiles{Rows: 2, Cols: 1, PadY: vg.Points(8)}
	canvases := plot.Align(plots, tiles, dc)
	for i := range plots {
		plots[i][0].Draw(canvases[i][0])
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := (vgimg.PngCanvas{Canvas: img}).WriteTo(f); err != nil {
		return fmt.Errorf("write png: %w", err)
	}
	return f.Close()
}
