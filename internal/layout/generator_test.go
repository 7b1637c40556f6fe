package layout_test

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vytor/gazetest/internal/layout"
)

func overlaps(a, b layout.Slot) bool {
	return !(a.Left+a.Width <= b.Left ||
		a.Left >= b.Left+b.Width ||
		a.Top+a.Height <= b.Top ||
		a.Top >= b.Top+b.Height)
}

func TestGenerate_FeasibleLayoutsDoNotOverlap(t *testing.T) {
	cases := []struct {
		name      string
		count     int
		container layout.Size
		item      layout.Dimension
	}{
		{"pixels", 10, layout.Size{W: 1000, H: 1000}, layout.Pixels(100, 100)},
		{"percent tiles", 6, layout.Size{W: 1280, H: 720}, layout.Percent(10, 25)},
		{"single item fills container", 1, layout.Size{W: 50, H: 50}, layout.Pixels(50, 50)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for seed := uint64(1); seed <= 20; seed++ {
				gen := layout.NewGenerator(layout.NewSource(seed))
				slots, err := gen.Generate(tc.count, tc.container, tc.item)
				require.NoError(t, err, "seed %d", seed)
				require.Len(t, slots, tc.count)

				for i, s := range slots {
					assert.GreaterOrEqual(t, s.Left, 0.0)
					assert.GreaterOrEqual(t, s.Top, 0.0)
					assert.LessOrEqual(t, s.Left+s.Width, 1.0+1e-9)
					assert.LessOrEqual(t, s.Top+s.Height, 1.0+1e-9)
					for j := i + 1; j < len(slots); j++ {
						assert.False(t, overlaps(s, slots[j]), "slots %d and %d overlap (seed %d)", i, j, seed)
					}
				}
			}
		})
	}
}

func TestGenerate_PercentSizeIsRelativeToContainer(t *testing.T) {
	gen := layout.NewGenerator(layout.NewSource(3))
	slots, err := gen.Generate(1, layout.Size{W: 800, H: 400}, layout.Percent(10, 25))
	require.NoError(t, err)
	assert.InDelta(t, 0.10, slots[0].Width, 1e-12)
	assert.InDelta(t, 0.25, slots[0].Height, 1e-12)
}

func TestGenerate_UnsatisfiableDensity(t *testing.T) {
	gen := layout.NewGenerator(layout.NewSource(42))

	slots, err := gen.Generate(5, layout.Size{W: 100, H: 100}, layout.Pixels(50, 50))

	require.Error(t, err)
	assert.Nil(t, slots, "no partial layout is returned")
	assert.True(t, errors.Is(err, layout.ErrLayoutUnsatisfiable))

	var uerr *layout.UnsatisfiableError
	require.True(t, errors.As(err, &uerr))
	assert.Equal(t, 5, uerr.Count)
	assert.Equal(t, layout.DefaultMaxAttempts, uerr.Attempts)
}

func TestGenerate_ItemLargerThanContainer(t *testing.T) {
	gen := layout.NewGenerator(layout.NewSource(1))
	_, err := gen.Generate(1, layout.Size{W: 40, H: 40}, layout.Pixels(50, 10))
	assert.ErrorIs(t, err, layout.ErrLayoutUnsatisfiable)
}

func TestGenerate_ZeroCount(t *testing.T) {
	gen := layout.NewGenerator(layout.NewSource(1))
	slots, err := gen.Generate(0, layout.Size{W: 10, H: 10}, layout.Pixels(5, 5))
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestGenerate_InvalidInput(t *testing.T) {
	gen := layout.NewGenerator(layout.NewSource(1))

	_, err := gen.Generate(-1, layout.Size{W: 10, H: 10}, layout.Pixels(5, 5))
	assert.Error(t, err)
	assert.False(t, errors.Is(err, layout.ErrLayoutUnsatisfiable))

	_, err = gen.Generate(1, layout.Size{W: 0, H: 10}, layout.Pixels(5, 5))
	assert.Error(t, err)
}

// countingSource records how many positions were drawn.
type countingSource struct {
	layout.Source
	draws int
}

func (c *countingSource) Float64() float64 {
	c.draws++
	return c.Source.Float64()
}

func TestGenerate_FirstItemAcceptedOnFirstDraw(t *testing.T) {
	src := &countingSource{Source: layout.NewSource(9)}
	gen := layout.NewGenerator(src, layout.WithMaxAttempts(1))

	slots, err := gen.Generate(1, layout.Size{W: 100, H: 100}, layout.Pixels(90, 90))
	require.NoError(t, err)
	assert.Len(t, slots, 1)
	assert.Equal(t, 2, src.draws, "one x and one y draw")
}

func TestGenerate_MinDistancePredicate(t *testing.T) {
	const minDist = 80.0
	container := layout.Size{W: 750, H: 550}
	gen := layout.NewGenerator(layout.NewSource(5), layout.WithPredicate(layout.MinDistance{Distance: minDist}))

	slots, err := gen.Generate(25, container, layout.Pixels(50, 50))
	require.NoError(t, err)
	require.Len(t, slots, 25)

	for i := range slots {
		for j := i + 1; j < len(slots); j++ {
			dx := (slots[i].Left - slots[j].Left) * container.W
			dy := (slots[i].Top - slots[j].Top) * container.H
			assert.Greater(t, math.Hypot(dx, dy), minDist)
		}
	}
}

func TestGenerate_SameSeedSameLayout(t *testing.T) {
	a, err := layout.NewGenerator(layout.NewSource(77)).Generate(8, layout.Size{W: 900, H: 600}, layout.Percent(10, 25))
	require.NoError(t, err)
	b, err := layout.NewGenerator(layout.NewSource(77)).Generate(8, layout.Size{W: 900, H: 600}, layout.Percent(10, 25))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestRectOverlap_TouchingEdges(t *testing.T) {
	p := layout.RectOverlap{}
	a := layout.Box{Left: 0, Top: 0, Width: 10, Height: 10}
	assert.False(t, p.Collides(layout.Box{Left: 10, Top: 0, Width: 10, Height: 10}, a))
	assert.True(t, p.Collides(layout.Box{Left: 9.5, Top: 9.5, Width: 10, Height: 10}, a))
}

func TestMinDistance_Boundary(t *testing.T) {
	p := layout.MinDistance{Distance: 5}
	a := layout.Box{Left: 0, Top: 0, Width: 2, Height: 2}

	assert.True(t, p.Collides(layout.Box{Left: 3, Top: 4, Width: 2, Height: 2}, a), "exactly Distance apart")
	assert.True(t, p.Collides(layout.Box{Left: 1, Top: 1, Width: 2, Height: 2}, a))
	assert.False(t, p.Collides(layout.Box{Left: 3, Top: 4.01, Width: 2, Height: 2}, a))
}

func TestShuffle_IsPermutation(t *testing.T) {
	items := []int{1, 2, 3, 4, 5, 6, 7}
	layout.Shuffle(layout.NewSource(4), len(items), func(i, j int) {
		items[i], items[j] = items[j], items[i]
	})
	assert.ElementsMatch(t, []int{1, 2, 3, 4, 5, 6, 7}, items)
}
