package pipeline

import (
	"fmt"

	"github.com/banshee-data/cone.pilot/internal/vision"
)

// TensorDetector decodes frames whose Image already holds the detector's
// output tensor ([][]float32 rows of x1,y1,x2,y2,score,class). Replay files
// and the HTTP ingest endpoint both produce such frames.
type TensorDetector struct {
	MinScore float32
}

// Detect implements Detector.
func (d TensorDetector) Detect(f Frame) ([]vision.Detection, error) {
	if f.Image == nil {
		return nil, nil
	}
	rows, ok := f.Image.([][]float32)
	if !ok {
		return nil, fmt.Errorf("unsupported frame payload %T", f.Image)
	}
	minScore := d.MinScore
	if minScore <= 0 {
		minScore = vision.DefaultMinScore
	}
	return vision.ParseYOLOOutput(rows, minScore), nil
}
