package tesseract

import (
	"image"
	"testing"

	"github.com/otiai10/gosseract/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adverant/nexus/imagetext-tools/internal/ocr"
)

func TestToCandidates(t *testing.T) {
	boxes := []gosseract.BoundingBox{
		{Box: image.Rect(10, 10, 60, 30), Word: "안녕", Confidence: 91},
		{Box: image.Rect(70, 10, 80, 30), Word: ".", Confidence: 4},
		{Box: image.Rect(90, 10, 100, 30), Word: "가", Confidence: 40},
		{Box: image.Rect(0, 0, 5, 5), Word: "  ", Confidence: 99},
	}

	got := toCandidates(boxes, "upscaled", 0.1)

	require.Len(t, got, 2)
	assert.Equal(t, "안녕", got[0].Text)
	assert.InDelta(t, 0.91, got[0].Confidence, 1e-9)
	assert.Equal(t, "upscaled", got[0].Variant)
	assert.Len(t, got[0].Polygon, 4)
	assert.Equal(t, "가", got[1].Text)
}

func TestToCandidates_DropsWordsBelowLowText(t *testing.T) {
	boxes := []gosseract.BoundingBox{
		{Box: image.Rect(0, 0, 40, 20), Word: "faint", Confidence: 2},
		{Box: image.Rect(50, 0, 90, 20), Word: "clear", Confidence: 20},
	}

	got := toCandidates(boxes, "original", 0.1)

	require.Len(t, got, 1)
	assert.Equal(t, "clear", got[0].Text)
}

func TestLineCandidates_EscalatedProfileKeepsFaintWords(t *testing.T) {
	boxes := []gosseract.BoundingBox{
		{Box: image.Rect(10, 10, 50, 30), Word: "희미한", Confidence: 15},
		{Box: image.Rect(10, 80, 50, 100), Word: "글자", Confidence: 8},
	}

	first := lineCandidates(boxes, "upscaled", ocr.CJKProfile())
	assert.Empty(t, first)

	escalated := lineCandidates(boxes, "upscaled", ocr.CJKEscalatedProfile())
	require.Len(t, escalated, 2)
	assert.Equal(t, "희미한", escalated[0].Text)
	assert.Equal(t, "글자", escalated[1].Text)
}

func TestLineCandidates_WeakWordJoinsConfidentNeighbour(t *testing.T) {
	boxes := []gosseract.BoundingBox{
		{Box: image.Rect(10, 10, 50, 30), Word: "서울", Confidence: 90},
		{Box: image.Rect(55, 10, 70, 30), Word: "시", Confidence: 15},
	}

	got := lineCandidates(boxes, "contrast", ocr.CJKProfile())

	require.Len(t, got, 1)
	assert.Equal(t, "서울 시", got[0].Text)
	assert.InDelta(t, 0.525, got[0].Confidence, 1e-9)
}

func TestNew_Defaults(t *testing.T) {
	e := New(nil, nil)
	assert.Equal(t, "tesseract", e.Name())
	assert.Empty(t, e.tessdataPrefix)
	assert.NotNil(t, e.clientFactory)
}
