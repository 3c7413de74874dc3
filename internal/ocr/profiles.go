package ocr

// Decoder selects the engine's decoding strategy.
type Decoder string

const (
	DecoderGreedy     Decoder = "greedy"
	DecoderBeamSearch Decoder = "beamsearch"
)

// Page segmentation modes understood by Tesseract.
const (
	SegModeAuto        = 3
	SegModeSingleBlock = 6
	SegModeSparseText  = 11
)

// Profile is a named set of engine parameters.
//
// LowText is the confidence below which a word is discarded outright,
// LinkThreshold the confidence one of two neighbours needs for them to be
// linked, and TextThreshold the confidence at least one word of a fragment
// must reach for the fragment to be kept. SlopeThs, YCenterThs, HeightThs and
// WidthThs are tolerances (relative to glyph height) used when words are
// merged into line fragments. Decoder and BeamWidth apply to engines with a
// beam decoder; Tesseract only logs them.
type Profile struct {
	Name string

	TextThreshold float64
	LowText       float64
	LinkThreshold float64

	SlopeThs   float64
	YCenterThs float64
	HeightThs  float64
	WidthThs   float64

	Decoder   Decoder
	BeamWidth int

	PageSegMode int
	// Variables are passed verbatim to the engine.
	Variables map[string]string
}

// GeneralProfile is tuned for roughly uniform Latin-style glyph blocks.
func GeneralProfile() Profile {
	return Profile{
		Name:          "general",
		TextThreshold: 0.3,
		LowText:       0.2,
		LinkThreshold: 0.3,
		SlopeThs:      0.3,
		YCenterThs:    0.5,
		HeightThs:     0.8,
		WidthThs:      1.2,
		Decoder:       DecoderBeamSearch,
		BeamWidth:     5,
		PageSegMode:   SegModeAuto,
	}
}

// CJKProfile relaxes detection and geometry for dense CJK glyphs.
func CJKProfile() Profile {
	return Profile{
		Name:          "cjk",
		TextThreshold: 0.2,
		LowText:       0.1,
		LinkThreshold: 0.2,
		SlopeThs:      0.5,
		YCenterThs:    0.7,
		HeightThs:     1.0,
		WidthThs:      1.5,
		Decoder:       DecoderBeamSearch,
		BeamWidth:     10,
		PageSegMode:   SegModeSingleBlock,
		Variables: map[string]string{
			"preserve_interword_spaces":      "1",
			"edges_max_children_per_outline": "40",
		},
	}
}

// CJKEscalatedProfile is the retry profile used when no CJK variant reached
// EscalationConfidence.
func CJKEscalatedProfile() Profile {
	return Profile{
		Name:          "cjk-escalated",
		TextThreshold: 0.07,
		LowText:       0.03,
		LinkThreshold: 0.07,
		SlopeThs:      1.0,
		YCenterThs:    1.0,
		HeightThs:     1.5,
		WidthThs:      2.5,
		Decoder:       DecoderBeamSearch,
		BeamWidth:     20,
		PageSegMode:   SegModeSparseText,
		Variables: map[string]string{
			"preserve_interword_spaces":      "1",
			"edges_max_children_per_outline": "60",
			"textord_noise_sizelimit":        "0.2",
		},
	}
}

// ProfileFor returns the first-pass profile for a script.
func ProfileFor(s Script) Profile {
	if s == ScriptCJK {
		return CJKProfile()
	}
	return GeneralProfile()
}

const (
	// EscalationConfidence is the mean confidence a CJK variant must reach
	// to skip the escalated retry.
	EscalationConfidence = 0.3
	// EscalationVariants is how many leading variants the retry covers.
	EscalationVariants = 2
)

// MinConfidence is the per-candidate floor applied before deduplication.
func MinConfidence(s Script) float64 {
	if s == ScriptCJK {
		return 0.05
	}
	return 0.1
}
