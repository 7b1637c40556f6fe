package models

import "time"

// Sample is one gaze or pointer observation in container-relative fractions.
type Sample struct {
	X float64   `json:"x"`
	Y float64   `json:"y"`
	T time.Time `json:"t"`
}

type DensityPoint struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Value int     `json:"value"`
}
