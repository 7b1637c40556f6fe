package layout

import "math"

// Box is a candidate or placed rectangle in container pixels.
type Box struct {
	Left, Top, Width, Height float64
}

func (b Box) center() (float64, float64) {
	return b.Left + b.Width/2, b.Top + b.Height/2
}

// CollisionPredicate decides whether a candidate conflicts with one already
// placed box.
type CollisionPredicate interface {
	Collides(candidate, placed Box) bool
}

// RectOverlap rejects axis-aligned intersections. Boxes that only share an edge
// do not overlap.
type RectOverlap struct{}

func (RectOverlap) Collides(c, p Box) bool {
	return !(c.Left+c.Width <= p.Left ||
		c.Left >= p.Left+p.Width ||
		c.Top+c.Height <= p.Top ||
		c.Top >= p.Top+p.Height)
}

// MinDistance rejects candidates whose center lies at or closer than Distance
// pixels to a placed center.
type MinDistance struct {
	Distance float64
}

func (m MinDistance) Collides(c, p Box) bool {
	cx, cy := c.center()
	px, py := p.center()
	return math.Hypot(cx-px, cy-py) <= m.Distance
}
