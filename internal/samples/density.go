package samples

import (
	"github.com/vytor/gazetest/internal/coords"
	"github.com/vytor/gazetest/internal/models"
)

// ToDensityPoints gives every sample a uniform weight of 1. Radius and blur are
// a rendering concern.
func ToDensityPoints(samples []models.Sample) []models.DensityPoint {
	points := make([]models.DensityPoint, len(samples))
	for i, s := range samples {
		points[i] = models.DensityPoint{X: s.X, Y: s.Y, Value: 1}
	}
	return points
}

// ProjectDensityPoints re-projects fractional samples into rect pixels,
// dropping any that land outside it.
func ProjectDensityPoints(samples []models.Sample, rect coords.Rect) ([]models.DensityPoint, error) {
	points := make([]models.DensityPoint, 0, len(samples))
	for _, s := range samples {
		p, err := coords.ToAbsolute(coords.Point{X: s.X, Y: s.Y}, rect)
		if err != nil {
			return nil, err
		}
		if !rect.Contains(p) {
			continue
		}
		points = append(points, models.DensityPoint{X: p.X - rect.Left, Y: p.Y - rect.Top, Value: 1})
	}
	return points, nil
}

// Grid is a cols x rows count matrix over the unit square.
type Grid struct {
	Cols  int     `json:"cols"`
	Rows  int     `json:"rows"`
	Cells [][]int `json:"cells"`
	Max   int     `json:"max"`
	Total int     `json:"total"`
}

// MaxGridDim caps each axis of a Grid.
const MaxGridDim = 200

// NewGrid bins samples into a cols x rows grid. Each axis is clamped to
// [1, MaxGridDim].
func NewGrid(samples []models.Sample, cols, rows int) *Grid {
	cols = min(max(cols, 1), MaxGridDim)
	rows = min(max(rows, 1), MaxGridDim)
	g := &Grid{Cols: cols, Rows: rows, Cells: make([][]int, rows)}
	for r := range g.Cells {
		g.Cells[r] = make([]int, cols)
	}
	for _, s := range samples {
		if !coords.InUnitSquare(coords.Point{X: s.X, Y: s.Y}) {
			continue
		}
		c := clampIndex(int(s.X*float64(cols)), cols)
		r := clampIndex(int(s.Y*float64(rows)), rows)
		g.Cells[r][c]++
		g.Total++
		if g.Cells[r][c] > g.Max {
			g.Max = g.Cells[r][c]
		}
	}
	return g
}

// x == 1 belongs to the last cell.
func clampIndex(i, n int) int {
	if i >= n {
		return n - 1
	}
	return i
}
