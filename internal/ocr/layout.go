/**
 * Layout helpers
 *
 * Reading order for retained fragments and grouping of word boxes into line
 * fragments using a profile's geometric tolerances.
 */

package ocr

import (
	"math"
	"sort"
	"strings"
)

// SortReadingOrder orders candidates top to bottom, then left to right, by the
// mean coordinates of their polygons. If any polygon is empty or malformed the
// candidates are ordered by descending confidence instead. It reports whether
// spatial ordering was used. The sort is stable.
func SortReadingOrder(cands []Candidate) bool {
	type center struct{ x, y float64 }
	centers := make([]center, len(cands))
	for i, c := range cands {
		x, y, ok := c.Polygon.Center()
		if !ok {
			sort.SliceStable(cands, func(a, b int) bool {
				return cands[a].Confidence > cands[b].Confidence
			})
			return false
		}
		centers[i] = center{x: x, y: y}
	}

	idx := make([]int, len(cands))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ca, cb := centers[idx[a]], centers[idx[b]]
		if ca.y != cb.y {
			return ca.y < cb.y
		}
		return ca.x < cb.x
	})

	ordered := make([]Candidate, len(cands))
	for i, j := range idx {
		ordered[i] = cands[j]
	}
	copy(cands, ordered)
	return true
}

type wordBox struct {
	cand                   Candidate
	minX, minY, maxX, maxY float64
}

func (w wordBox) height() float64  { return w.maxY - w.minY }
func (w wordBox) yCenter() float64 { return (w.minY + w.maxY) / 2 }
func (w wordBox) xCenter() float64 { return (w.minX + w.maxX) / 2 }

// GroupLines merges word-level candidates into line fragments.
//
// Words join a line when their vertical centers differ by less than
// YCenterThs and their heights by less than HeightThs, both relative to the
// line's mean height. Within a line, neighbours are merged into one fragment
// when the horizontal gap is below WidthThs, the slope between their centers
// is below SlopeThs and at least one of the two reaches LinkThreshold.
// A fragment is kept only if one of its words reaches TextThreshold, so weak
// words survive only next to a confident neighbour. Fragment confidence is
// the mean of its words.
func GroupLines(words []Candidate, p Profile) []Candidate {
	boxes := make([]wordBox, 0, len(words))
	for _, w := range words {
		if strings.TrimSpace(w.Text) == "" || len(w.Polygon) == 0 {
			continue
		}
		minX, minY, maxX, maxY := w.Polygon.Bounds()
		boxes = append(boxes, wordBox{cand: w, minX: minX, minY: minY, maxX: maxX, maxY: maxY})
	}
	if len(boxes) == 0 {
		return nil
	}

	sort.SliceStable(boxes, func(a, b int) bool {
		return boxes[a].yCenter() < boxes[b].yCenter()
	})

	var lines [][]wordBox
	var line []wordBox
	var sumHeight, sumCenter float64
	for _, b := range boxes {
		if len(line) > 0 {
			meanHeight := sumHeight / float64(len(line))
			meanCenter := sumCenter / float64(len(line))
			if math.Abs(b.yCenter()-meanCenter) < p.YCenterThs*meanHeight &&
				math.Abs(b.height()-meanHeight) < p.HeightThs*meanHeight {
				line = append(line, b)
				sumHeight += b.height()
				sumCenter += b.yCenter()
				continue
			}
			lines = append(lines, line)
		}
		line = []wordBox{b}
		sumHeight, sumCenter = b.height(), b.yCenter()
	}
	lines = append(lines, line)

	fragments := make([]Candidate, 0, len(lines))
	for _, ln := range lines {
		sort.SliceStable(ln, func(a, b int) bool { return ln[a].minX < ln[b].minX })

		var meanHeight float64
		for _, b := range ln {
			meanHeight += b.height()
		}
		meanHeight /= float64(len(ln))

		group := []wordBox{ln[0]}
		for _, b := range ln[1:] {
			prev := group[len(group)-1]
			gap := b.minX - prev.maxX
			dx := b.xCenter() - prev.xCenter()
			slope := math.Inf(1)
			if dx != 0 {
				slope = math.Abs((b.yCenter() - prev.yCenter()) / dx)
			}
			linked := math.Max(prev.cand.Confidence, b.cand.Confidence) >= p.LinkThreshold
			if gap < p.WidthThs*meanHeight && slope < p.SlopeThs && linked {
				group = append(group, b)
				continue
			}
			fragments = appendFragment(fragments, group, p.TextThreshold)
			group = []wordBox{b}
		}
		fragments = appendFragment(fragments, group, p.TextThreshold)
	}
	return fragments
}

func appendFragment(fragments []Candidate, group []wordBox, textThreshold float64) []Candidate {
	frag, peak := mergeWords(group)
	if peak < textThreshold {
		return fragments
	}
	return append(fragments, frag)
}

// mergeWords joins a run of words into one fragment and returns it with the
// highest word confidence.
func mergeWords(group []wordBox) (Candidate, float64) {
	texts := make([]string, 0, len(group))
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	var conf, peak float64
	for _, b := range group {
		texts = append(texts, strings.TrimSpace(b.cand.Text))
		conf += b.cand.Confidence
		peak = math.Max(peak, b.cand.Confidence)
		minX = math.Min(minX, b.minX)
		minY = math.Min(minY, b.minY)
		maxX = math.Max(maxX, b.maxX)
		maxY = math.Max(maxY, b.maxY)
	}
	return Candidate{
		Polygon: Polygon{
			{X: minX, Y: minY},
			{X: maxX, Y: minY},
			{X: maxX, Y: maxY},
			{X: minX, Y: maxY},
		},
		Text:       strings.Join(texts, " "),
		Confidence: conf / float64(len(group)),
		Variant:    group[0].cand.Variant,
	}, peak
}
