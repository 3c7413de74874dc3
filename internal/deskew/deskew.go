// Package deskew estimates and corrects small rotational skew in scanned
// document images.
package deskew

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gocv.io/x/gocv"

	perrors "github.com/adverant/nexus/imagetext-tools/internal/errors"
	"github.com/adverant/nexus/imagetext-tools/internal/logging"
	"github.com/adverant/nexus/imagetext-tools/internal/vision"
)

const (
	cannyLow        = 50
	cannyHigh       = 150
	houghThreshold  = 80
	maxLines        = 30
	maxLineAngle    = 20.0
	minContourArea  = 100.0
	defaultMinAngle = 0.5
)

// Result describes one deskew run.
type Result struct {
	Angle      float64   `json:"angle"`
	Corrected  bool      `json:"corrected"`
	OutputPath string    `json:"output_path"`
	Samples    []float64 `json:"-"`
}

// Corrector estimates skew and writes a straightened copy of the image.
type Corrector struct {
	minAngle float64
	logger   *logging.Logger
}

// NewCorrector creates a Corrector. Images whose estimated tilt is within
// minAngle degrees are passed through unchanged; zero corrects any tilt and a
// negative value selects the default of 0.5.
func NewCorrector(minAngle float64, logger *logging.Logger) *Corrector {
	if minAngle < 0 {
		minAngle = defaultMinAngle
	}
	if logger == nil {
		logger = logging.NewLogger("deskew")
	}
	return &Corrector{minAngle: minAngle, logger: logger}
}

// Deskew reads inputPath, corrects its tilt and writes the result to
// outputPath. Nothing is written when the input cannot be read.
func (c *Corrector) Deskew(ctx context.Context, inputPath, outputPath string) (*Result, error) {
	img, err := vision.Load(inputPath)
	if err != nil {
		return nil, err
	}
	defer img.Close()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	angle, samples := EstimateTilt(img)
	result := &Result{Angle: angle, OutputPath: outputPath, Samples: samples}
	c.logger.Debug("Estimated tilt", "angle", angle, "samples", len(samples))

	if !NeedsCorrection(angle, c.minAngle) {
		if err := passThrough(img, inputPath, outputPath); err != nil {
			return nil, perrors.NewWriteFailedError("", outputPath, err)
		}
		return result, nil
	}

	rotated := Rotate(img, angle)
	defer rotated.Close()

	err = writeAtomic(outputPath, func(tmpPath string) error {
		return encode(tmpPath, rotated)
	})
	if err != nil {
		return nil, perrors.NewWriteFailedError("", outputPath, err)
	}
	result.Corrected = true
	return result, nil
}

// NeedsCorrection reports whether |angle| exceeds the threshold.
func NeedsCorrection(angle, minAngle float64) bool {
	return math.Abs(angle) > minAngle
}

// EstimateTilt returns the skew angle in degrees and the samples it was
// derived from. Rotating the image by the returned angle about its center
// (counter-clockwise positive, as in GetRotationMatrix2D) straightens it.
// The result is 0 when neither line nor contour analysis yields a sample.
func EstimateTilt(img gocv.Mat) (float64, []float64) {
	gray := gocv.NewMat()
	defer gray.Close()
	if img.Channels() == 1 {
		img.CopyTo(&gray)
	} else {
		gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)
	}

	samples := lineSamples(gray)
	if s, ok := contourSample(gray); ok {
		samples = append(samples, s)
	}
	return Median(samples), samples
}

// lineSamples converts the first Hough lines into deviations from horizontal,
// keeping those within ±20 degrees.
func lineSamples(gray gocv.Mat) []float64 {
	edges := gocv.NewMat()
	defer edges.Close()
	gocv.Canny(gray, &edges, cannyLow, cannyHigh)

	lines := gocv.NewMat()
	defer lines.Close()
	gocv.HoughLines(edges, &lines, 1, float32(math.Pi/180), houghThreshold)

	n := lines.Rows()
	if n > maxLines {
		n = maxLines
	}
	thetas := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		v := lines.GetVecfAt(i, 0)
		if len(v) < 2 {
			continue
		}
		thetas = append(thetas, float64(v[1]))
	}
	return LineAngles(thetas)
}

// LineAngles maps Hough theta values (radians) to degrees from horizontal and
// drops anything outside ±20 degrees.
func LineAngles(thetas []float64) []float64 {
	out := make([]float64, 0, len(thetas))
	for _, theta := range thetas {
		angle := theta*180/math.Pi - 90
		if angle >= -maxLineAngle && angle <= maxLineAngle {
			out = append(out, angle)
		}
	}
	return out
}

// contourSample fits a minimum-area rectangle to the largest foreground
// contour of the inverted Otsu threshold.
func contourSample(gray gocv.Mat) (float64, bool) {
	thresh := gocv.NewMat()
	defer thresh.Close()
	gocv.Threshold(gray, &thresh, 0, 255, gocv.ThresholdBinaryInv+gocv.ThresholdOtsu)

	contours := gocv.FindContours(thresh, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	best := -1
	bestArea := 0.0
	for i := 0; i < contours.Size(); i++ {
		area := gocv.ContourArea(contours.At(i))
		if area > minContourArea && area > bestArea {
			best, bestArea = i, area
		}
	}
	if best < 0 {
		return 0, false
	}

	rect := gocv.MinAreaRect(contours.At(best))
	return RectAngle(rect.Angle), true
}

// RectAngle folds a MinAreaRect angle into [-45, 45] and negates it. OpenCV
// releases before 4.5 report angles in [-90, 0), later ones in (0, 90].
func RectAngle(angle float64) float64 {
	switch {
	case angle < -45:
		angle += 90
	case angle > 45:
		angle -= 90
	}
	return -angle
}

// Median returns the median of samples, or 0 for none.
func Median(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// Rotate turns img by angle degrees about its pixel center using cubic
// interpolation, filling exposed borders with white.
func Rotate(img gocv.Mat, angle float64) gocv.Mat {
	w, h := img.Cols(), img.Rows()
	center := image.Pt(w/2, h/2)

	m := gocv.GetRotationMatrix2D(center, angle, 1.0)
	defer m.Close()

	dst := gocv.NewMat()
	gocv.WarpAffineWithParams(img, &dst, m, image.Pt(w, h), gocv.InterpolationCubic,
		gocv.BorderConstant, color.RGBA{R: 255, G: 255, B: 255, A: 255})
	return dst
}

// passThrough writes the unrotated image. Inputs are copied byte for byte
// when the output uses the same extension; otherwise they are re-encoded.
func passThrough(img gocv.Mat, inputPath, outputPath string) error {
	sameExt := strings.EqualFold(filepath.Ext(inputPath), filepath.Ext(outputPath))
	if sameExt && sameFile(inputPath, outputPath) {
		return nil
	}
	return writeAtomic(outputPath, func(tmpPath string) error {
		if sameExt {
			return copyFile(inputPath, tmpPath)
		}
		return encode(tmpPath, img)
	})
}

func encode(path string, img gocv.Mat) error {
	if !gocv.IMWrite(path, img) {
		return fmt.Errorf("encoder rejected image")
	}
	return nil
}

// writeAtomic runs write against a temporary file next to outputPath and
// renames it into place. The temporary file is removed on error or panic, so
// outputPath is either untouched or complete.
func writeAtomic(outputPath string, write func(tmpPath string) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(outputPath), ".deskew-*"+filepath.Ext(outputPath))
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()

	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpPath)
		}
	}()

	if err := write(tmpPath); err != nil {
		return err
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("failed to set output permissions: %w", err)
	}
	if err := os.Rename(tmpPath, outputPath); err != nil {
		return fmt.Errorf("failed to move output into place: %w", err)
	}
	committed = true
	return nil
}

func sameFile(a, b string) bool {
	ia, err := os.Stat(a)
	if err != nil {
		return false
	}
	ib, err := os.Stat(b)
	if err != nil {
		return false
	}
	return os.SameFile(ia, ib)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy image: %w", err)
	}
	return out.Close()
}
