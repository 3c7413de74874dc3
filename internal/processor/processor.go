/**
 * OCR Processor
 *
 * Runs the multilingual OCR pipeline for one image:
 * - preprocessing variants tuned for general or CJK text
 * - one engine pass per variant with the script's parameter profile
 * - escalated retry for CJK runs that never reach a usable confidence
 * - pooled candidates filtered, deduplicated and put in reading order
 */

package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"time"

	perrors "github.com/adverant/nexus/imagetext-tools/internal/errors"
	"github.com/adverant/nexus/imagetext-tools/internal/logging"
	"github.com/adverant/nexus/imagetext-tools/internal/ocr"
)

// Engine recognizes text in one encoded variant.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, v ocr.Variant, p ocr.Profile, langs []string) ([]ocr.Candidate, error)
}

// Preparer loads an image and builds its preprocessed variants.
type Preparer interface {
	Prepare(ctx context.Context, path string, script ocr.Script) ([]ocr.Variant, error)
}

// ProcessorConfig holds processor configuration
type ProcessorConfig struct {
	Engine   Engine
	Preparer Preparer
	// DefaultLanguages replaces a blank language list. Nil uses ocr.DefaultLanguages.
	DefaultLanguages []string
	// EarlyExitConfidence stops the first pass once a variant's mean
	// confidence reaches it. Zero runs every variant.
	EarlyExitConfidence float64
	Logger              *logging.Logger
}

// ProcessRequest represents one OCR request
type ProcessRequest struct {
	JobID     string
	ImagePath string
	// Languages is a comma-separated list of script codes.
	Languages string
}

// Output is the JSON record printed by the OCR runner.
type Output struct {
	Text            string   `json:"text"`
	Confidence      float64  `json:"confidence"`
	LanguagesUsed   []string `json:"languages_used"`
	LinesFound      int      `json:"lines_found"`
	KoreanOptimized bool     `json:"korean_optimized"`
	Success         bool     `json:"success"`
	Error           string   `json:"error,omitempty"`
}

// WriteJSON writes the record as a single line of JSON without HTML escaping.
func (o *Output) WriteJSON(w io.Writer) error {
	if o.LanguagesUsed == nil {
		o.LanguagesUsed = []string{}
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc.Encode(o)
}

// ErrorOutput builds the record emitted when a run cannot complete.
func ErrorOutput(err error, langs []string) *Output {
	return &Output{
		LanguagesUsed: langs,
		Error:         err.Error(),
	}
}

// OCRProcessor handles OCR runs
type OCRProcessor struct {
	engine           Engine
	preparer         Preparer
	defaultLanguages []string
	earlyExit        float64
	logger           *logging.Logger
}

// NewOCRProcessor creates a new OCR processor
func NewOCRProcessor(cfg *ProcessorConfig) (*OCRProcessor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	if cfg.Engine == nil {
		return nil, fmt.Errorf("engine is required")
	}

	if cfg.Preparer == nil {
		return nil, fmt.Errorf("preparer is required")
	}

	defaults := cfg.DefaultLanguages
	if len(defaults) == 0 {
		defaults = ocr.DefaultLanguages
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewLogger("ocr")
	}

	return &OCRProcessor{
		engine:           cfg.Engine,
		preparer:         cfg.Preparer,
		defaultLanguages: defaults,
		earlyExit:        cfg.EarlyExitConfidence,
		logger:           logger,
	}, nil
}

// Process runs the pipeline. It always returns a record suitable for output;
// err is non-nil when the run failed (unreadable image, cancellation or a
// recovered panic) and the caller should exit non-zero.
func (p *OCRProcessor) Process(ctx context.Context, req *ProcessRequest) (out *Output, err error) {
	startTime := time.Now()
	langs := ocr.ParseLanguages(req.Languages, p.defaultLanguages)
	script := ocr.Classify(langs)
	logger := p.logger.With("job_id", req.JobID)

	defer func() {
		if r := recover(); r != nil {
			internal := perrors.NewInternalError(req.JobID, r)
			logger.Error("OCR run panicked", "error", internal)
			out, err = ErrorOutput(internal, []string{}), internal
		}
	}()

	logger.Info("OCR languages", "languages", langs, "script", script.String())

	out = &Output{
		LanguagesUsed:   langs,
		KoreanOptimized: script == ocr.ScriptCJK,
	}

	variants, err := p.preparer.Prepare(ctx, req.ImagePath, script)
	if err != nil {
		logger.Error("Failed to prepare image", "path", req.ImagePath, "error", err)
		out.Error = err.Error()
		return out, err
	}

	pool, best, err := p.recognize(ctx, req.JobID, variants, script, langs)
	if err != nil {
		out.Error = err.Error()
		return out, err
	}

	if !best.Found() {
		logger.Warn("No variant produced text", "variants", len(variants))
	}

	rs := ocr.Aggregate(pool, script, best)
	out.Text = rs.Text
	out.Confidence = roundPercent(rs.Confidence)
	out.LinesFound = rs.Lines()
	out.Success = rs.Lines() > 0 || rs.Text != ""

	logger.Info("OCR complete",
		"lines", out.LinesFound,
		"confidence", out.Confidence,
		"fallback", rs.FromFallback,
		"best_variant", best.Variant,
		"duration", time.Since(startTime))
	logger.Debug("Extracted text", "text", out.Text)

	return out, nil
}

// recognize runs the first pass over every variant and, for CJK runs that
// never reached ocr.EscalationConfidence, a second pass over the leading
// variants with the escalated profile.
func (p *OCRProcessor) recognize(ctx context.Context, jobID string, variants []ocr.Variant, script ocr.Script, langs []string) ([]ocr.Candidate, ocr.Best, error) {
	var pool []ocr.Candidate
	var best ocr.Best

	profile := ocr.ProfileFor(script)
	cleared := false

	for _, v := range variants {
		if err := ctx.Err(); err != nil {
			return nil, best, p.cancelled(ctx, jobID, err)
		}

		attempt, ok := p.attempt(ctx, jobID, v, profile, langs)
		if !ok {
			continue
		}
		pool = append(pool, attempt.Candidates...)
		best.Observe(attempt)

		mean, _ := attempt.MeanConfidence()
		if mean >= ocr.EscalationConfidence {
			cleared = true
		}
		if p.earlyExit > 0 && mean >= p.earlyExit {
			p.logger.Info("Early exit", "variant", v.Name, "confidence", mean)
			break
		}
	}

	if script != ocr.ScriptCJK || cleared {
		return pool, best, nil
	}

	escalated := ocr.CJKEscalatedProfile()
	n := ocr.EscalationVariants
	if n > len(variants) {
		n = len(variants)
	}
	p.logger.Info("Low confidence, escalating",
		"best_confidence", best.Confidence, "profile", escalated.Name, "variants", n)

	for _, v := range variants[:n] {
		if err := ctx.Err(); err != nil {
			return nil, best, p.cancelled(ctx, jobID, err)
		}

		attempt, ok := p.attempt(ctx, jobID, v, escalated, langs)
		if !ok {
			continue
		}
		pool = append(pool, attempt.Candidates...)
		if best.Observe(attempt) {
			p.logger.Info("Escalation improved result", "variant", v.Name, "confidence", best.Confidence)
		}
	}

	return pool, best, nil
}

// attempt runs the engine on one variant. Failures are logged and reported
// as ok=false so the remaining variants still run.
func (p *OCRProcessor) attempt(ctx context.Context, jobID string, v ocr.Variant, profile ocr.Profile, langs []string) (attempt ocr.Attempt, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			failed := perrors.NewVariantFailedError(jobID, v.Name, profile.Name, perrors.NewInternalError(jobID, r))
			p.logger.Warn("OCR error on one preprocessing variant", "error", failed)
			ok = false
		}
	}()

	candidates, err := p.engine.Recognize(ctx, v, profile, langs)
	if err != nil {
		failed := perrors.NewVariantFailedError(jobID, v.Name, profile.Name, err)
		p.logger.Warn("OCR error on one preprocessing variant", "error", failed)
		return ocr.Attempt{}, false
	}

	attempt = ocr.Attempt{Variant: v.Name, Profile: profile.Name, Candidates: candidates}
	mean, _ := attempt.MeanConfidence()
	p.logger.Debug("Variant complete",
		"variant", v.Name, "profile", profile.Name, "candidates", len(candidates), "mean_confidence", mean)
	return attempt, true
}

func (p *OCRProcessor) cancelled(ctx context.Context, jobID string, err error) error {
	if ctx.Err() == context.DeadlineExceeded {
		return perrors.NewProcessingTimeoutError(jobID, 0, err)
	}
	return perrors.NewOCRFailedError(jobID, err)
}

// roundPercent rounds to two decimals.
func roundPercent(v float64) float64 {
	return math.Round(v*100) / 100
}
