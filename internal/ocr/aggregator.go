package ocr

import "strings"

// Best tracks the single attempt with the highest mean confidence. Its joined
// text is the fallback when filtering empties the candidate pool.
type Best struct {
	Variant    string
	Profile    string
	Text       string
	Confidence float64 // 0..1
	found      bool
}

// Found reports whether any attempt with candidates has been observed.
func (b *Best) Found() bool { return b.found }

// Observe records the attempt if its mean confidence beats the current best
// and reports whether it did.
func (b *Best) Observe(a Attempt) bool {
	mean, ok := a.MeanConfidence()
	if !ok {
		return false
	}
	if b.found && mean <= b.Confidence {
		return false
	}
	texts := make([]string, 0, len(a.Candidates))
	for _, c := range a.Candidates {
		if t := strings.TrimSpace(c.Text); t != "" {
			texts = append(texts, t)
		}
	}
	b.Variant = a.Variant
	b.Profile = a.Profile
	b.Text = JoinTexts(texts)
	b.Confidence = mean
	b.found = true
	return true
}

// JoinTexts joins several fragments with newlines; a single fragment stands
// alone unchanged.
func JoinTexts(texts []string) string {
	if len(texts) == 1 {
		return texts[0]
	}
	return strings.Join(texts, "\n")
}

// Aggregate filters, deduplicates and orders the pooled candidates.
//
// Candidates with empty trimmed text or a confidence below the script's floor
// are dropped, then the first candidate seen for each trimmed text wins.
// Survivors are put in reading order. An empty pool yields the fallback text
// with its confidence scaled to a percentage.
func Aggregate(pool []Candidate, script Script, fallback Best) ResultSet {
	floor := MinConfidence(script)
	seen := make(map[string]struct{}, len(pool))
	kept := make([]Candidate, 0, len(pool))
	for _, c := range pool {
		text := strings.TrimSpace(c.Text)
		if text == "" || c.Confidence < floor {
			continue
		}
		if _, dup := seen[text]; dup {
			continue
		}
		seen[text] = struct{}{}
		c.Text = text
		kept = append(kept, c)
	}

	if len(kept) == 0 {
		return ResultSet{
			Text:         fallback.Text,
			Confidence:   fallback.Confidence * 100,
			FromFallback: true,
		}
	}

	SortReadingOrder(kept)

	texts := make([]string, len(kept))
	var sum float64
	for i, c := range kept {
		texts[i] = c.Text
		sum += c.Confidence
	}

	return ResultSet{
		Candidates: kept,
		Text:       JoinTexts(texts),
		Confidence: sum / float64(len(kept)) * 100,
	}
}
