/**
 * Tesseract OCR engine
 *
 * Recognizes one preprocessed variant with a parameter profile and returns
 * line-level candidates with bounding polygons and 0..1 confidences.
 */

package tesseract

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/adverant/nexus/imagetext-tools/internal/logging"
	"github.com/adverant/nexus/imagetext-tools/internal/ocr"
)

// Engine handles OCR using Tesseract
type Engine struct {
	tessdataPrefix string
	clientFactory  func() *gosseract.Client
	logger         *logging.Logger
}

// Config holds Tesseract configuration
type Config struct {
	// TessdataPrefix is the directory holding *.traineddata. Empty keeps
	// Tesseract's default lookup (TESSDATA_PREFIX or the install path).
	TessdataPrefix string
}

// New creates a new Tesseract engine
func New(cfg *Config, logger *logging.Logger) *Engine {
	if cfg == nil {
		cfg = &Config{}
	}
	if logger == nil {
		logger = logging.NewLogger("tesseract")
	}
	return &Engine{
		tessdataPrefix: cfg.TessdataPrefix,
		clientFactory:  gosseract.NewClient,
		logger:         logger,
	}
}

// Name identifies the engine in logs.
func (e *Engine) Name() string { return "tesseract" }

// Recognize runs Tesseract over one variant.
func (e *Engine) Recognize(ctx context.Context, v ocr.Variant, p ocr.Profile, langs []string) ([]ocr.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	client := e.clientFactory()
	defer client.Close()

	if err := e.configure(client, p, langs); err != nil {
		return nil, err
	}

	if err := client.SetImageFromBytes(v.Image); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("tesseract OCR failed: %w", err)
	}

	candidates := lineCandidates(boxes, v.Name, p)

	e.logger.Debug("Variant recognized",
		"variant", v.Name, "profile", p.Name, "boxes", len(boxes), "candidates", len(candidates))
	return candidates, nil
}

func (e *Engine) configure(client *gosseract.Client, p ocr.Profile, langs []string) error {
	if e.tessdataPrefix != "" {
		if err := client.SetTessdataPrefix(e.tessdataPrefix); err != nil {
			return fmt.Errorf("failed to set tessdata prefix: %w", err)
		}
	}

	if codes := ocr.TesseractLanguages(langs); len(codes) > 0 {
		if err := client.SetLanguage(codes...); err != nil {
			return fmt.Errorf("failed to set languages: %w", err)
		}
	}

	if p.PageSegMode > 0 {
		if err := client.SetPageSegMode(gosseract.PageSegMode(p.PageSegMode)); err != nil {
			return fmt.Errorf("failed to set page segmentation mode: %w", err)
		}
	}

	for k, val := range p.Variables {
		if err := client.SetVariable(gosseract.SettableVariable(k), val); err != nil {
			return fmt.Errorf("failed to set variable %s: %w", k, err)
		}
	}

	if p.Decoder != "" {
		// The LSTM decoder has no beam setting.
		e.logger.Debug("Decoder settings not applicable", "decoder", p.Decoder, "beam_width", p.BeamWidth)
	}
	return nil
}

// lineCandidates turns word boxes into line fragments under the profile's
// thresholds and tolerances.
func lineCandidates(boxes []gosseract.BoundingBox, variant string, p ocr.Profile) []ocr.Candidate {
	return ocr.GroupLines(toCandidates(boxes, variant, p.LowText), p)
}

// toCandidates converts Tesseract boxes to candidates. Confidence is rescaled
// from 0..100 to 0..1 and words below lowText are dropped.
func toCandidates(boxes []gosseract.BoundingBox, variant string, lowText float64) []ocr.Candidate {
	out := make([]ocr.Candidate, 0, len(boxes))
	for _, b := range boxes {
		text := strings.TrimSpace(b.Word)
		if text == "" {
			continue
		}
		conf := b.Confidence / 100.0
		if conf < lowText {
			continue
		}
		out = append(out, ocr.Candidate{
			Polygon:    ocr.RectPolygon(b.Box),
			Text:       text,
			Confidence: conf,
			Variant:    variant,
		})
	}
	return out
}
