package ocr

import "strings"

// Script groups languages that share preprocessing and profile choices.
type Script int

const (
	ScriptGeneral Script = iota
	ScriptCJK
)

func (s Script) String() string {
	if s == ScriptCJK {
		return "cjk"
	}
	return "general"
}

// DefaultLanguages is used when the caller passes a blank language list.
// CJK first, then English.
var DefaultLanguages = []string{"ko", "ja", "ch_sim", "ch_tra", "en"}

// BroadLanguages is the wide multilingual set of the general-purpose runner,
// selected by the "broad" default-language setting.
var BroadLanguages = []string{"en", "ja", "ko", "zh", "bn", "hi", "ar", "ru", "fr", "es", "de"}

// BroadSet names BroadLanguages in configuration.
const BroadSet = "broad"

var cjkCodes = map[string]bool{
	"ko":     true,
	"ja":     true,
	"zh":     true,
	"ch_sim": true,
	"ch_tra": true,
}

// tesseractCodes maps the caller's short script codes to traineddata names.
var tesseractCodes = map[string]string{
	"en":     "eng",
	"ko":     "kor",
	"ja":     "jpn",
	"zh":     "chi_sim",
	"ch_sim": "chi_sim",
	"ch_tra": "chi_tra",
	"ar":     "ara",
	"he":     "heb",
	"hi":     "hin",
	"th":     "tha",
	"bn":     "ben",
	"ru":     "rus",
	"fr":     "fra",
	"es":     "spa",
	"de":     "deu",
}

// ParseLanguages splits a comma-separated list, trimming blanks. An empty
// result is replaced with a copy of defaults.
func ParseLanguages(raw string, defaults []string) []string {
	langs := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		if code := strings.TrimSpace(part); code != "" {
			langs = append(langs, code)
		}
	}
	if len(langs) == 0 {
		return append([]string(nil), defaults...)
	}
	return langs
}

// Classify reports ScriptCJK when any requested language is Korean, Japanese
// or Chinese.
func Classify(langs []string) Script {
	for _, l := range langs {
		if cjkCodes[strings.ToLower(l)] {
			return ScriptCJK
		}
	}
	return ScriptGeneral
}

// TesseractLanguages maps codes to traineddata names, dropping duplicates.
// Unknown codes pass through unchanged so callers may use traineddata names
// directly.
func TesseractLanguages(langs []string) []string {
	out := make([]string, 0, len(langs))
	seen := make(map[string]bool, len(langs))
	for _, l := range langs {
		code, ok := tesseractCodes[strings.ToLower(l)]
		if !ok {
			code = l
		}
		if seen[code] {
			continue
		}
		seen[code] = true
		out = append(out, code)
	}
	return out
}

// ResolveDefaults turns the configured default-language setting into the
// list used for blank requests. "broad" selects BroadLanguages; anything else
// is parsed as a comma-separated list falling back to DefaultLanguages.
func ResolveDefaults(raw string) []string {
	if strings.EqualFold(strings.TrimSpace(raw), BroadSet) {
		return append([]string(nil), BroadLanguages...)
	}
	return ParseLanguages(raw, DefaultLanguages)
}
