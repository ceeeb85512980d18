package vision

// DefaultMinScore is the confidence below which detector rows are discarded.
const DefaultMinScore = 0.5

// yoloRowWidth is the number of values per detector output row:
// x1, y1, x2, y2, score, class.
const yoloRowWidth = 6

// ParseYOLOOutput decodes the detector's output tensor into detections.
// Rows shorter than six values or scoring below minScore are skipped. Box
// coordinates are taken as already normalised.
func ParseYOLOOutput(rows [][]float32, minScore float32) []Detection {
	results := make([]Detection, 0, len(rows))
	for _, row := range rows {
		if len(row) < yoloRowWidth {
			continue
		}
		score := row[4]
		if score < minScore {
			continue
		}
		results = append(results, Detection{
			Box: BoundingBox{
				Left:   row[0],
				Top:    row[1],
				Right:  row[2],
				Bottom: row[3],
			},
			Score:   score,
			ClassID: int(row[5]),
		})
	}
	return results
}
