// Package layout produces randomized, non-overlapping stimulus placements inside
// a bounded container.
package layout

import (
	"errors"
	"fmt"
)

const DefaultMaxAttempts = 1000

var ErrLayoutUnsatisfiable = errors.New("layout unsatisfiable")

// UnsatisfiableError names the item whose attempt budget ran out.
type UnsatisfiableError struct {
	Item     int
	Count    int
	Attempts int
}

func (e *UnsatisfiableError) Error() string {
	return fmt.Sprintf("layout unsatisfiable: item %d of %d not placed after %d attempts", e.Item+1, e.Count, e.Attempts)
}

func (e *UnsatisfiableError) Unwrap() error { return ErrLayoutUnsatisfiable }

type Size struct {
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Dimension is an item size, either in pixels or as fractions of the container.
type Dimension struct {
	W          float64 `json:"w"`
	H          float64 `json:"h"`
	Fractional bool    `json:"fractional"`
}

// Pixels builds an absolute item size.
func Pixels(w, h float64) Dimension { return Dimension{W: w, H: h} }

// Percent builds an item size relative to the container, e.g. Percent(10, 25).
func Percent(w, h float64) Dimension {
	return Dimension{W: w / 100, H: h / 100, Fractional: true}
}

func (d Dimension) resolve(container Size) Size {
	if d.Fractional {
		return Size{W: d.W * container.W, H: d.H * container.H}
	}
	return Size{W: d.W, H: d.H}
}

// Slot is one generated rectangle in fractions of the container.
type Slot struct {
	Top    float64 `json:"top"`
	Left   float64 `json:"left"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type Generator struct {
	src         Source
	predicate   CollisionPredicate
	maxAttempts int
}

type Option func(*Generator)

// WithPredicate selects the collision strategy. RectOverlap is the default.
func WithPredicate(p CollisionPredicate) Option {
	return func(g *Generator) {
		g.predicate = p
	}
}

func WithMaxAttempts(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.maxAttempts = n
		}
	}
}

func NewGenerator(src Source, opts ...Option) *Generator {
	g := &Generator{
		src:         src,
		predicate:   RectOverlap{},
		maxAttempts: DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate places count items of size item inside container. Either every item
// is placed or an *UnsatisfiableError is returned; there is no partial result.
func (g *Generator) Generate(count int, container Size, item Dimension) ([]Slot, error) {
	if count < 0 {
		return nil, fmt.Errorf("layout: negative item count %d", count)
	}
	if container.W <= 0 || container.H <= 0 {
		return nil, fmt.Errorf("layout: empty container %.1fx%.1f", container.W, container.H)
	}
	size := item.resolve(container)
	if size.W <= 0 || size.H <= 0 {
		return nil, fmt.Errorf("layout: empty item %.1fx%.1f", size.W, size.H)
	}
	if count == 0 {
		return []Slot{}, nil
	}
	if size.W > container.W || size.H > container.H {
		return nil, &UnsatisfiableError{Item: 0, Count: count, Attempts: 0}
	}

	rangeX := container.W - size.W
	rangeY := container.H - size.H
	placed := make([]Box, 0, count)

	for i := 0; i < count; i++ {
		ok := false
		for attempt := 0; attempt < g.maxAttempts; attempt++ {
			candidate := Box{
				Left:   g.src.Float64() * rangeX,
				Top:    g.src.Float64() * rangeY,
				Width:  size.W,
				Height: size.H,
			}
			if g.fits(candidate, placed) {
				placed = append(placed, candidate)
				ok = true
				break
			}
		}
		if !ok {
			return nil, &UnsatisfiableError{Item: i, Count: count, Attempts: g.maxAttempts}
		}
	}

	slots := make([]Slot, len(placed))
	for i, b := range placed {
		slots[i] = Slot{
			Top:    b.Top / container.H,
			Left:   b.Left / container.W,
			Width:  b.Width / container.W,
			Height: b.Height / container.H,
		}
	}
	return slots, nil
}

func (g *Generator) fits(candidate Box, placed []Box) bool {
	for _, p := range placed {
		if g.predicate.Collides(candidate, p) {
			return false
		}
	}
	return true
}
