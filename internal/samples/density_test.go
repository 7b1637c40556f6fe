package samples_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vytor/gazetest/internal/coords"
	"github.com/vytor/gazetest/internal/models"
	"github.com/vytor/gazetest/internal/samples"
)

func TestToDensityPoints_UniformWeight(t *testing.T) {
	pts := samples.ToDensityPoints([]models.Sample{
		{X: 0.1, Y: 0.2, T: at(0)},
		{X: 0.7, Y: 0.9, T: at(100)},
	})
	require.Len(t, pts, 2)
	for _, p := range pts {
		assert.Equal(t, 1, p.Value)
	}
	assert.Equal(t, 0.7, pts[1].X)
}

func TestProjectDensityPoints(t *testing.T) {
	rect := coords.Rect{Left: 100, Top: 50, Width: 400, Height: 200}
	pts, err := samples.ProjectDensityPoints([]models.Sample{
		{X: 0.5, Y: 0.5, T: at(0)},
		{X: 1.5, Y: 0.5, T: at(100)},
	}, rect)
	require.NoError(t, err)
	require.Len(t, pts, 1)
	assert.InDelta(t, 200.0, pts[0].X, 1e-9)
	assert.InDelta(t, 100.0, pts[0].Y, 1e-9)

	_, err = samples.ProjectDensityPoints([]models.Sample{{X: 0.5, Y: 0.5}}, coords.Rect{})
	assert.ErrorIs(t, err, coords.ErrEmptyRect)
}

func TestNewGrid(t *testing.T) {
	g := samples.NewGrid([]models.Sample{
		{X: 0, Y: 0},
		{X: 0.1, Y: 0.1},
		{X: 1, Y: 1},
		{X: 0.6, Y: 0.2},
		{X: 2, Y: 2},
	}, 2, 2)

	assert.Equal(t, 2, g.Cells[0][0])
	assert.Equal(t, 1, g.Cells[0][1])
	assert.Equal(t, 1, g.Cells[1][1])
	assert.Equal(t, 2, g.Max)
	assert.Equal(t, 4, g.Total)
}

func TestNewGrid_ClampsDimensions(t *testing.T) {
	g := samples.NewGrid([]models.Sample{{X: 1, Y: 1}}, 1_000_000, 0)

	assert.Equal(t, samples.MaxGridDim, g.Cols)
	assert.Equal(t, 1, g.Rows)
	require.Len(t, g.Cells, 1)
	assert.Len(t, g.Cells[0], samples.MaxGridDim)
	assert.Equal(t, 1, g.Cells[0][samples.MaxGridDim-1])
}

func TestEncodeCSV(t *testing.T) {
	var buf bytes.Buffer
	err := samples.EncodeCSV(&buf, []models.Sample{
		{X: 0.25, Y: 0.5, T: at(0)},
		{X: 0.125, Y: 1, T: at(150)},
	})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "x,y,t", lines[0])
	assert.Equal(t, "0.25,0.5,1741946400000", lines[1])
	assert.Equal(t, "0.125,1,1741946400150", lines[2])
}

func TestEncodeCSV_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, samples.EncodeCSV(&buf, nil))
	assert.Equal(t, "x,y,t\n", buf.String())
}

func TestDecodeCSV(t *testing.T) {
	got, err := samples.DecodeCSV(strings.NewReader("x,y,t\n0.25,0.5,1741946400000\n"))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 0.25, got[0].X)
	assert.True(t, got[0].T.Equal(at(0)))
}

func TestDecodeCSV_Errors(t *testing.T) {
	_, err := samples.DecodeCSV(strings.NewReader("a,b,c\n"))
	assert.Error(t, err)

	_, err = samples.DecodeCSV(strings.NewReader("x,y,t\nfoo,0.5,1\n"))
	assert.Error(t, err)

	got, err := samples.DecodeCSV(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, got)
}
