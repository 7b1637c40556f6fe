// Package coords converts between absolute viewport coordinates and
// container-relative fractions. Anything persisted is fractional; pixels only
// exist at capture and at render time.
package coords

import "errors"

var ErrEmptyRect = errors.New("container rect has no area")

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Rect is a container bounding box in absolute viewport pixels.
type Rect struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Contains reports whether p lies inside r, edges included.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.Left && p.X <= r.Left+r.Width &&
		p.Y >= r.Top && p.Y <= r.Top+r.Height
}

// ToRelative maps an absolute point into r's fractional space. Points outside r
// map outside [0,1]; filtering is the caller's decision.
func ToRelative(p Point, r Rect) (Point, error) {
	if r.Empty() {
		return Point{}, ErrEmptyRect
	}
	return Point{
		X: (p.X - r.Left) / r.Width,
		Y: (p.Y - r.Top) / r.Height,
	}, nil
}

// ToAbsolute maps a fractional point back into r.
func ToAbsolute(p Point, r Rect) (Point, error) {
	if r.Empty() {
		return Point{}, ErrEmptyRect
	}
	return Point{
		X: r.Left + p.X*r.Width,
		Y: r.Top + p.Y*r.Height,
	}, nil
}

func InUnitSquare(p Point) bool {
	return p.X >= 0 && p.X <= 1 && p.Y >= 0 && p.Y <= 1
}
