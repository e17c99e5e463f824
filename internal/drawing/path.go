package drawing

import (
	"encoding/json"
	"fmt"
)

// ParseStroke parses a JSON array of pointer positions into a stroke.
// Input format: "[[x1,y1],[x2,y2],...]"
func ParseStroke(input string) ([]Point, error) {
	var coords [][]float64
	if err := json.Unmarshal([]byte(input), &coords); err != nil {
		return nil, fmt.Errorf("failed to parse stroke JSON: %w", err)
	}

	if len(coords) == 0 {
		return nil, fmt.Errorf("stroke must have at least 1 point")
	}

	stroke := make([]Point, len(coords))
	for i, coord := range coords {
		if len(coord) < 2 {
			return nil, fmt.Errorf("point %d has insufficient values", i)
		}
		stroke[i] = Point{X: coord[0], Y: coord[1]}
	}

	return stroke, nil
}
