// Package vision loads images and builds the preprocessed variants that are
// submitted to the OCR engine.
package vision

import (
	"context"
	"fmt"
	"image"

	"gocv.io/x/gocv"

	perrors "github.com/adverant/nexus/imagetext-tools/internal/errors"
	"github.com/adverant/nexus/imagetext-tools/internal/logging"
	"github.com/adverant/nexus/imagetext-tools/internal/ocr"
)

// Variant names.
const (
	VariantOriginal  = "original"
	VariantContrast  = "contrast"
	VariantDenoised  = "denoised"
	VariantBinary    = "binary"
	VariantUpscaled  = "upscaled"
	VariantBilateral = "bilateral"
	VariantClosed    = "closed"
)

const (
	upscaleFactor     = 3.0
	generalClipLimit  = 2.0
	cjkClipLimit      = 1.5
	bilateralDiameter = 9
	bilateralSigma    = 75.0
	closeKernelSize   = 2
	claheTileGridSize = 8
)

// Options controls which variants are generated.
type Options struct {
	// FullGeneralSet adds contrast, denoised and binary variants to the
	// non-CJK path, which otherwise submits the grayscale image only.
	FullGeneralSet bool
}

// Preparer turns an image file into encoded variants.
type Preparer struct {
	opts   Options
	logger *logging.Logger
}

// NewPreparer creates a Preparer.
func NewPreparer(opts Options, logger *logging.Logger) *Preparer {
	if logger == nil {
		logger = logging.NewLogger("vision")
	}
	return &Preparer{opts: opts, logger: logger}
}

// Load reads a color image. An empty result is reported as IMAGE_UNREADABLE.
func Load(path string) (gocv.Mat, error) {
	img := gocv.IMRead(path, gocv.IMReadColor)
	if img.Empty() {
		img.Close()
		return gocv.Mat{}, perrors.NewImageUnreadableError("", path)
	}
	return img, nil
}

// Prepare loads path and returns the ordered variants for the script.
func (p *Preparer) Prepare(ctx context.Context, path string, script ocr.Script) ([]ocr.Variant, error) {
	img, err := Load(path)
	if err != nil {
		return nil, err
	}
	defer img.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)

	var mats []namedMat
	if script == ocr.ScriptCJK {
		mats = cjkVariants(gray)
	} else {
		mats = generalVariants(gray, p.opts.FullGeneralSet)
	}
	defer func() {
		for _, m := range mats {
			m.mat.Close()
		}
	}()

	variants := make([]ocr.Variant, 0, len(mats))
	for _, m := range mats {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := EncodePNG(m.mat)
		if err != nil {
			p.logger.Warn("Skipping variant", "variant", m.name, "error", err)
			continue
		}
		variants = append(variants, ocr.Variant{Name: m.name, Image: data})
	}

	p.logger.Debug("Prepared variants", "script", script.String(), "count", len(variants),
		"width", img.Cols(), "height", img.Rows())
	return variants, nil
}

// EncodePNG encodes a Mat as PNG bytes.
func EncodePNG(m gocv.Mat) ([]byte, error) {
	buf, err := gocv.IMEncode(gocv.PNGFileExt, m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	defer buf.Close()

	data := buf.GetBytes()
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

type namedMat struct {
	name string
	mat  gocv.Mat
}

// generalVariants returns the grayscale image, plus the contrast, denoised
// and Otsu-binarized copies when full is set.
func generalVariants(gray gocv.Mat, full bool) []namedMat {
	mats := []namedMat{{name: VariantOriginal, mat: gray.Clone()}}
	if !full {
		return mats
	}

	return append(mats,
		namedMat{name: VariantContrast, mat: equalize(gray, generalClipLimit)},
		namedMat{name: VariantDenoised, mat: denoise(gray)},
		namedMat{name: VariantBinary, mat: binarize(gray)},
	)
}

// cjkVariants returns, in order: a 3x cubic upscale, a gently equalized copy,
// an edge-preserving smoothed copy, a morphologically closed copy and the
// unmodified grayscale.
func cjkVariants(gray gocv.Mat) []namedMat {
	return []namedMat{
		{name: VariantUpscaled, mat: upscale(gray, upscaleFactor)},
		{name: VariantContrast, mat: equalize(gray, cjkClipLimit)},
		{name: VariantBilateral, mat: smooth(gray)},
		{name: VariantClosed, mat: closeGaps(gray)},
		{name: VariantOriginal, mat: gray.Clone()},
	}
}

func upscale(src gocv.Mat, factor float64) gocv.Mat {
	dst := gocv.NewMat()
	gocv.Resize(src, &dst, image.Point{}, factor, factor, gocv.InterpolationCubic)
	return dst
}

func equalize(src gocv.Mat, clipLimit float64) gocv.Mat {
	clahe := gocv.NewCLAHEWithParams(clipLimit, image.Pt(claheTileGridSize, claheTileGridSize))
	defer clahe.Close()

	dst := gocv.NewMat()
	clahe.Apply(src, &dst)
	return dst
}

func denoise(src gocv.Mat) gocv.Mat {
	dst := gocv.NewMat()
	gocv.FastNlMeansDenoising(src, &dst)
	return dst
}

func binarize(src gocv.Mat) gocv.Mat {
	dst := gocv.NewMat()
	gocv.Threshold(src, &dst, 0, 255, gocv.ThresholdBinary+gocv.ThresholdOtsu)
	return dst
}

func smooth(src gocv.Mat) gocv.Mat {
	dst := gocv.NewMat()
	gocv.BilateralFilter(src, &dst, bilateralDiameter, bilateralSigma, bilateralSigma)
	return dst
}

func closeGaps(src gocv.Mat) gocv.Mat {
	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(closeKernelSize, closeKernelSize))
	defer kernel.Close()

	dst := gocv.NewMat()
	gocv.MorphologyEx(src, &dst, gocv.MorphClose, kernel)
	return dst
}
