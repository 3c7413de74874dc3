package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/adverant/nexus/imagetext-tools/internal/errors"
	"github.com/adverant/nexus/imagetext-tools/internal/logging"
	"github.com/adverant/nexus/imagetext-tools/internal/ocr"
)

type fakePreparer struct {
	variants  []string
	err       error
	panicked  interface{}
	gotPath   string
	gotScript ocr.Script
}

func (f *fakePreparer) Prepare(_ context.Context, path string, script ocr.Script) ([]ocr.Variant, error) {
	if f.panicked != nil {
		panic(f.panicked)
	}
	f.gotPath, f.gotScript = path, script
	if f.err != nil {
		return nil, f.err
	}
	out := make([]ocr.Variant, len(f.variants))
	for i, name := range f.variants {
		out[i] = ocr.Variant{Name: name, Image: []byte(name)}
	}
	return out, nil
}

type call struct {
	variant string
	profile string
	langs   []string
}

type fakeEngine struct {
	mu        sync.Mutex
	calls     []call
	recognize func(v ocr.Variant, p ocr.Profile) ([]ocr.Candidate, error)
}

func (f *fakeEngine) Name() string { return "fake" }

func (f *fakeEngine) Recognize(_ context.Context, v ocr.Variant, p ocr.Profile, langs []string) ([]ocr.Candidate, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{variant: v.Name, profile: p.Name, langs: langs})
	f.mu.Unlock()
	return f.recognize(v, p)
}

func (f *fakeEngine) callsFor(profile string) []string {
	var out []string
	for _, c := range f.calls {
		if c.profile == profile {
			out = append(out, c.variant)
		}
	}
	return out
}

func line(text string, conf float64, y int) ocr.Candidate {
	return ocr.Candidate{
		Polygon:    ocr.RectPolygon(image.Rect(10, y, 200, y+20)),
		Text:       text,
		Confidence: conf,
	}
}

func quietLogger() *logging.Logger {
	return logging.NewLoggerWithOptions("test", logging.Options{Output: io.Discard})
}

func newTestProcessor(t *testing.T, prep Preparer, eng Engine, earlyExit float64) *OCRProcessor {
	t.Helper()
	p, err := NewOCRProcessor(&ProcessorConfig{
		Engine:              eng,
		Preparer:            prep,
		EarlyExitConfidence: earlyExit,
		Logger:              quietLogger(),
	})
	require.NoError(t, err)
	return p
}

func TestNewOCRProcessor_Validation(t *testing.T) {
	_, err := NewOCRProcessor(nil)
	assert.Error(t, err)

	_, err = NewOCRProcessor(&ProcessorConfig{Preparer: &fakePreparer{}})
	assert.Error(t, err)

	_, err = NewOCRProcessor(&ProcessorConfig{Engine: &fakeEngine{}})
	assert.Error(t, err)

	p, err := NewOCRProcessor(&ProcessorConfig{Engine: &fakeEngine{}, Preparer: &fakePreparer{}})
	require.NoError(t, err)
	assert.Equal(t, ocr.DefaultLanguages, p.defaultLanguages)
}

func TestProcess_KoreanAndEnglish(t *testing.T) {
	prep := &fakePreparer{variants: []string{"upscaled", "contrast", "bilateral"}}
	eng := &fakeEngine{recognize: func(v ocr.Variant, p ocr.Profile) ([]ocr.Candidate, error) {
		return []ocr.Candidate{
			line("Hello", 0.8, 40),
			line("안녕하세요", 0.9, 10),
		}, nil
	}}

	out, err := newTestProcessor(t, prep, eng, 0).Process(context.Background(), &ProcessRequest{
		ImagePath: "korean.png",
		Languages: "ko,en",
	})

	require.NoError(t, err)
	assert.Equal(t, "korean.png", prep.gotPath)
	assert.Equal(t, ocr.ScriptCJK, prep.gotScript)
	assert.True(t, out.KoreanOptimized)
	assert.True(t, out.Success)
	assert.Equal(t, []string{"ko", "en"}, out.LanguagesUsed)
	assert.Equal(t, 2, out.LinesFound)
	assert.Equal(t, "안녕하세요\nHello", out.Text)
	assert.InDelta(t, 85.0, out.Confidence, 1e-9)
	assert.Empty(t, out.Error)

	// Every variant ran with the CJK profile and nothing escalated.
	assert.Equal(t, []string{"upscaled", "contrast", "bilateral"}, eng.callsFor(ocr.CJKProfile().Name))
	assert.Empty(t, eng.callsFor(ocr.CJKEscalatedProfile().Name))
	assert.Equal(t, []string{"ko", "en"}, eng.calls[0].langs)
}

func TestProcess_GeneralScript(t *testing.T) {
	prep := &fakePreparer{variants: []string{"original"}}
	eng := &fakeEngine{recognize: func(v ocr.Variant, p ocr.Profile) ([]ocr.Candidate, error) {
		return []ocr.Candidate{line("Hello World", 0.87654, 10)}, nil
	}}

	out, err := newTestProcessor(t, prep, eng, 0).Process(context.Background(), &ProcessRequest{
		ImagePath: "english.png",
		Languages: "en",
	})

	require.NoError(t, err)
	assert.False(t, out.KoreanOptimized)
	assert.Equal(t, ocr.ScriptGeneral, prep.gotScript)
	assert.Equal(t, "Hello World", out.Text)
	assert.Equal(t, 87.65, out.Confidence)
	assert.Equal(t, 1, out.LinesFound)
	assert.Equal(t, []string{"original"}, eng.callsFor(ocr.GeneralProfile().Name))
}

func TestProcess_BlankLanguagesUseDefaults(t *testing.T) {
	prep := &fakePreparer{variants: []string{"upscaled"}}
	eng := &fakeEngine{recognize: func(v ocr.Variant, p ocr.Profile) ([]ocr.Candidate, error) {
		return []ocr.Candidate{line("テスト", 0.7, 0)}, nil
	}}

	out, err := newTestProcessor(t, prep, eng, 0).Process(context.Background(), &ProcessRequest{
		ImagePath: "x.png",
		Languages: "  ",
	})

	require.NoError(t, err)
	assert.Equal(t, ocr.DefaultLanguages, out.LanguagesUsed)
	assert.True(t, out.KoreanOptimized)
}

func TestProcess_EscalatesLowConfidenceCJK(t *testing.T) {
	prep := &fakePreparer{variants: []string{"upscaled", "contrast", "bilateral", "closed"}}
	escalated := ocr.CJKEscalatedProfile().Name
	eng := &fakeEngine{recognize: func(v ocr.Variant, p ocr.Profile) ([]ocr.Candidate, error) {
		if p.Name == escalated {
			return []ocr.Candidate{line("서울", 0.45, 10)}, nil
		}
		return []ocr.Candidate{line("서을", 0.12, 10)}, nil
	}}

	out, err := newTestProcessor(t, prep, eng, 0).Process(context.Background(), &ProcessRequest{
		ImagePath: "faint.png",
		Languages: "ko",
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"upscaled", "contrast"}, eng.callsFor(escalated))
	assert.Len(t, eng.callsFor(ocr.CJKProfile().Name), 4)

	// Both readings survive the 0.05 floor; first-seen order is kept for
	// equal positions.
	assert.Equal(t, 2, out.LinesFound)
	assert.Equal(t, "서을\n서울", out.Text)
	assert.InDelta(t, 28.5, out.Confidence, 1e-9)
}

func TestProcess_NoEscalationForGeneralScript(t *testing.T) {
	prep := &fakePreparer{variants: []string{"original"}}
	eng := &fakeEngine{recognize: func(v ocr.Variant, p ocr.Profile) ([]ocr.Candidate, error) {
		return []ocr.Candidate{line("faint", 0.15, 0)}, nil
	}}

	out, err := newTestProcessor(t, prep, eng, 0).Process(context.Background(), &ProcessRequest{Languages: "en"})

	require.NoError(t, err)
	assert.Len(t, eng.calls, 1)
	assert.Equal(t, "faint", out.Text)
}

func TestProcess_EmptyPoolFallsBackToBestVariant(t *testing.T) {
	prep := &fakePreparer{variants: []string{"upscaled", "contrast"}}
	eng := &fakeEngine{recognize: func(v ocr.Variant, p ocr.Profile) ([]ocr.Candidate, error) {
		if v.Name == "contrast" {
			return []ocr.Candidate{line("희미", 0.04, 0), line("한 글", 0.02, 30)}, nil
		}
		return []ocr.Candidate{line("잡음", 0.01, 0)}, nil
	}}

	out, err := newTestProcessor(t, prep, eng, 0).Process(context.Background(), &ProcessRequest{Languages: "ko"})

	require.NoError(t, err)
	assert.Equal(t, 0, out.LinesFound)
	assert.Equal(t, "희미\n한 글", out.Text)
	assert.InDelta(t, 3.0, out.Confidence, 1e-9)
	assert.True(t, out.Success)
}

func TestProcess_NothingRecognized(t *testing.T) {
	prep := &fakePreparer{variants: []string{"original"}}
	eng := &fakeEngine{recognize: func(v ocr.Variant, p ocr.Profile) ([]ocr.Candidate, error) {
		return nil, nil
	}}

	out, err := newTestProcessor(t, prep, eng, 0).Process(context.Background(), &ProcessRequest{Languages: "en"})

	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Empty(t, out.Text)
	assert.Zero(t, out.Confidence)
	assert.Zero(t, out.LinesFound)
}

func TestProcess_NothingRecognizedIsLogged(t *testing.T) {
	var buf bytes.Buffer
	p, err := NewOCRProcessor(&ProcessorConfig{
		Engine: &fakeEngine{recognize: func(v ocr.Variant, p ocr.Profile) ([]ocr.Candidate, error) {
			return nil, nil
		}},
		Preparer: &fakePreparer{variants: []string{"original", "binary"}},
		Logger:   logging.NewLoggerWithOptions("test", logging.Options{Format: "json", Output: &buf}),
	})
	require.NoError(t, err)

	_, err = p.Process(context.Background(), &ProcessRequest{Languages: "en"})

	require.NoError(t, err)
	assert.Contains(t, buf.String(), "No variant produced text")
}

func TestProcess_VariantFailureIsContained(t *testing.T) {
	prep := &fakePreparer{variants: []string{"upscaled", "contrast", "bilateral"}}
	eng := &fakeEngine{recognize: func(v ocr.Variant, p ocr.Profile) ([]ocr.Candidate, error) {
		switch v.Name {
		case "upscaled":
			return nil, fmt.Errorf("engine crashed")
		case "contrast":
			panic("bad image")
		}
		return []ocr.Candidate{line("부산", 0.8, 0)}, nil
	}}

	out, err := newTestProcessor(t, prep, eng, 0).Process(context.Background(), &ProcessRequest{Languages: "ko"})

	require.NoError(t, err)
	assert.Len(t, eng.calls, 3)
	assert.Equal(t, "부산", out.Text)
	assert.True(t, out.Success)
}

func TestProcess_EarlyExit(t *testing.T) {
	prep := &fakePreparer{variants: []string{"upscaled", "contrast", "bilateral", "closed"}}
	eng := &fakeEngine{recognize: func(v ocr.Variant, p ocr.Profile) ([]ocr.Candidate, error) {
		if v.Name == "contrast" {
			return []ocr.Candidate{line("大阪", 0.95, 0)}, nil
		}
		return []ocr.Candidate{line("大坂", 0.5, 0)}, nil
	}}

	out, err := newTestProcessor(t, prep, eng, 0.9).Process(context.Background(), &ProcessRequest{Languages: "ja"})

	require.NoError(t, err)
	assert.Equal(t, []string{"upscaled", "contrast"}, eng.callsFor(ocr.CJKProfile().Name))
	assert.Equal(t, 2, out.LinesFound)
}

func TestProcess_UnreadableImage(t *testing.T) {
	prep := &fakePreparer{err: perrors.NewImageUnreadableError("job-1", "missing.png")}
	eng := &fakeEngine{}

	out, err := newTestProcessor(t, prep, eng, 0).Process(context.Background(), &ProcessRequest{
		JobID:     "job-1",
		ImagePath: "missing.png",
		Languages: "ko,en",
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, perrors.ErrImageUnreadable))
	require.NotNil(t, out)
	assert.False(t, out.Success)
	assert.Empty(t, out.Text)
	assert.Zero(t, out.Confidence)
	assert.Contains(t, out.Error, "missing.png")
	assert.Empty(t, eng.calls)
}

func TestProcess_RecoversPanic(t *testing.T) {
	prep := &fakePreparer{panicked: "decoder exploded"}

	out, err := newTestProcessor(t, prep, &fakeEngine{}, 0).Process(context.Background(), &ProcessRequest{Languages: "en"})

	require.Error(t, err)
	assert.Equal(t, perrors.ErrorInternal, perrors.CodeOf(err))
	require.NotNil(t, out)
	assert.False(t, out.Success)
	assert.Contains(t, out.Error, "decoder exploded")
}

func TestProcess_CancelledContext(t *testing.T) {
	prep := &fakePreparer{variants: []string{"original"}}
	eng := &fakeEngine{recognize: func(v ocr.Variant, p ocr.Profile) ([]ocr.Candidate, error) {
		return []ocr.Candidate{line("x", 1, 0)}, nil
	}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := newTestProcessor(t, prep, eng, 0).Process(ctx, &ProcessRequest{Languages: "en"})

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, out.Success)
	assert.Empty(t, eng.calls)
}

func TestOutput_WriteJSON(t *testing.T) {
	var buf bytes.Buffer
	out := &Output{Text: "a<b>\n한글", Confidence: 12.34, LinesFound: 2, Success: true}

	require.NoError(t, out.WriteJSON(&buf))

	assert.Contains(t, buf.String(), `"text":"a<b>\n한글"`)
	assert.NotContains(t, buf.String(), `"error"`)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, []interface{}{}, decoded["languages_used"])
	assert.Equal(t, 12.34, decoded["confidence"])
	assert.Equal(t, false, decoded["korean_optimized"])
}

func TestErrorOutput(t *testing.T) {
	out := ErrorOutput(fmt.Errorf("boom"), []string{"en"})

	assert.Equal(t, "boom", out.Error)
	assert.False(t, out.Success)
	assert.Equal(t, []string{"en"}, out.LanguagesUsed)
}
