package vision

import (
	"context"
	"errors"
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	perrors "github.com/adverant/nexus/imagetext-tools/internal/errors"
	"github.com/adverant/nexus/imagetext-tools/internal/ocr"
)

func writeSample(t *testing.T) string {
	t.Helper()
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 255, 255, 0), 60, 120, gocv.MatTypeCV8UC3)
	defer img.Close()
	gocv.Rectangle(&img, image.Rect(10, 20, 110, 35), color.RGBA{A: 255}, -1)

	path := filepath.Join(t.TempDir(), "sample.png")
	require.True(t, gocv.IMWrite(path, img))
	return path
}

func names(vs []ocr.Variant) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = v.Name
	}
	return out
}

func TestPrepare_GeneralSingleVariant(t *testing.T) {
	p := NewPreparer(Options{}, nil)

	vs, err := p.Prepare(context.Background(), writeSample(t), ocr.ScriptGeneral)

	require.NoError(t, err)
	assert.Equal(t, []string{VariantOriginal}, names(vs))
	assert.NotEmpty(t, vs[0].Image)
}

func TestPrepare_GeneralFullSet(t *testing.T) {
	p := NewPreparer(Options{FullGeneralSet: true}, nil)

	vs, err := p.Prepare(context.Background(), writeSample(t), ocr.ScriptGeneral)

	require.NoError(t, err)
	assert.Equal(t, []string{VariantOriginal, VariantContrast, VariantDenoised, VariantBinary}, names(vs))
}

func TestPrepare_CJKVariants(t *testing.T) {
	p := NewPreparer(Options{}, nil)

	vs, err := p.Prepare(context.Background(), writeSample(t), ocr.ScriptCJK)

	require.NoError(t, err)
	assert.Equal(t, []string{VariantUpscaled, VariantContrast, VariantBilateral, VariantClosed, VariantOriginal}, names(vs))

	up, err := gocv.IMDecode(vs[0].Image, gocv.IMReadGrayScale)
	require.NoError(t, err)
	defer up.Close()
	assert.Equal(t, 180, up.Rows())
	assert.Equal(t, 360, up.Cols())
}

func TestPrepare_UnreadableImage(t *testing.T) {
	p := NewPreparer(Options{}, nil)

	_, err := p.Prepare(context.Background(), filepath.Join(t.TempDir(), "missing.png"), ocr.ScriptGeneral)

	require.Error(t, err)
	assert.True(t, errors.Is(err, perrors.ErrImageUnreadable))
}
