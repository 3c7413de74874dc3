/**
 * OCR Types - Shared data structures for OCR operations
 *
 * Common types used by the variant generator, the engine adapters and the
 * candidate aggregator.
 */

package ocr

import (
	"image"
	"math"
)

// Point is a 2D pixel coordinate with the origin in the upper-left corner.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Polygon is an ordered set of points bounding a text region.
type Polygon []Point

// RectPolygon returns the four corners of r, clockwise from the top-left.
func RectPolygon(r image.Rectangle) Polygon {
	return Polygon{
		{X: float64(r.Min.X), Y: float64(r.Min.Y)},
		{X: float64(r.Max.X), Y: float64(r.Min.Y)},
		{X: float64(r.Max.X), Y: float64(r.Max.Y)},
		{X: float64(r.Min.X), Y: float64(r.Max.Y)},
	}
}

// Center returns the mean X and Y of the polygon's points. ok is false for an
// empty polygon or one with non-finite coordinates.
func (p Polygon) Center() (x, y float64, ok bool) {
	if len(p) == 0 {
		return 0, 0, false
	}
	for _, pt := range p {
		if math.IsNaN(pt.X) || math.IsNaN(pt.Y) || math.IsInf(pt.X, 0) || math.IsInf(pt.Y, 0) {
			return 0, 0, false
		}
		x += pt.X
		y += pt.Y
	}
	n := float64(len(p))
	return x / n, y / n, true
}

// Bounds returns the axis-aligned bounding box of the polygon.
func (p Polygon) Bounds() (minX, minY, maxX, maxY float64) {
	if len(p) == 0 {
		return 0, 0, 0, 0
	}
	minX, minY = math.Inf(1), math.Inf(1)
	maxX, maxY = math.Inf(-1), math.Inf(-1)
	for _, pt := range p {
		minX = math.Min(minX, pt.X)
		minY = math.Min(minY, pt.Y)
		maxX = math.Max(maxX, pt.X)
		maxY = math.Max(maxY, pt.Y)
	}
	return minX, minY, maxX, maxY
}

// Candidate is one detected text region as reported by an engine.
type Candidate struct {
	Polygon    Polygon `json:"polygon"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"` // 0..1
	Variant    string  `json:"variant"`
}

// Variant is a named, PNG-encoded preprocessed copy of the source image.
type Variant struct {
	Name  string
	Image []byte
}

// Attempt is the outcome of one engine call: one variant under one profile.
type Attempt struct {
	Variant    string
	Profile    string
	Candidates []Candidate
}

// MeanConfidence returns the mean candidate confidence. ok is false when the
// attempt produced no candidates.
func (a Attempt) MeanConfidence() (float64, bool) {
	if len(a.Candidates) == 0 {
		return 0, false
	}
	var sum float64
	for _, c := range a.Candidates {
		sum += c.Confidence
	}
	return sum / float64(len(a.Candidates)), true
}

// ResultSet is the filtered, deduplicated, reading-ordered output of a run.
type ResultSet struct {
	Candidates []Candidate
	Text       string
	// Confidence is a percentage in [0,100].
	Confidence   float64
	FromFallback bool
}

// Lines returns the number of retained fragments.
func (r ResultSet) Lines() int {
	return len(r.Candidates)
}
