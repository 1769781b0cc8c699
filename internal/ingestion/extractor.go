package ingestion

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"
)

// FactCandidate is one claim proposed by the extraction model, pre-validation.
type FactCandidate struct {
	Text     string   `json:"text"`
	Keywords []string `json:"keywords,omitempty"`
}

// Extractor proposes atomic fact candidates for one chunk. Implementations
// live in platform; the pipeline only needs this surface.
type Extractor interface {
	ExtractFacts(ctx context.Context, chunkText, topic string) ([]FactCandidate, error)
}

const (
	// maxFactRunes caps a single fact. Longer candidates get trimmed back to
	// their last full sentence, or dropped when no sentence fits.
	maxFactRunes = 280

	// maxCandidatesPerChunk bounds how many claims one chunk may contribute.
	maxCandidatesPerChunk = 15
)

// pronounOpeners flag candidates whose subject lives outside the fact text.
// A fact must stand alone, so these are rejected rather than repaired.
var pronounOpeners = []string{
	"it ", "its ", "it's ", "this ", "that ", "these ", "those ",
	"he ", "she ", "they ", "his ", "her ", "their ", "them ",
}

// SanitizeCandidates enforces the extraction contract on a raw model
// response: blank and pronoun-opener candidates drop, overlong ones trim to a
// sentence boundary or drop, duplicates within the batch drop, and the batch
// caps at maxCandidatesPerChunk. A nil or fully rejected batch returns an
// empty slice, never an error; a chunk legitimately may contain nothing worth
// keeping.
func SanitizeCandidates(raw []FactCandidate) []FactCandidate {
	out := make([]FactCandidate, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for _, c := range raw {
		text, ok := sanitizeFactText(c.Text)
		if !ok {
			continue
		}
		key := strings.ToLower(text)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, FactCandidate{Text: text, Keywords: cleanKeywords(c.Keywords)})
		if len(out) == maxCandidatesPerChunk {
			break
		}
	}
	return out
}

func sanitizeFactText(text string) (string, bool) {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return "", false
	}
	if startsWithPronoun(text) {
		return "", false
	}
	if utf8.RuneCountInString(text) > maxFactRunes {
		trimmed, ok := truncateAtSentence(text, maxFactRunes)
		if !ok {
			return "", false
		}
		text = trimmed
	}
	if !endsLikeSentence(text) {
		text += "."
	}
	return text, true
}

func startsWithPronoun(text string) bool {
	lower := strings.ToLower(text)
	for _, p := range pronounOpeners {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}

// truncateAtSentence cuts text back to the last sentence terminator within
// limit runes. Reports false when no terminator lands inside the limit.
func truncateAtSentence(text string, limit int) (string, bool) {
	r := []rune(text)
	if len(r) <= limit {
		return text, true
	}
	for i := limit - 1; i > 0; i-- {
		if !sentenceTerminators[r[i]] {
			continue
		}
		if i+1 < len(r) && !unicode.IsSpace(r[i+1]) {
			continue
		}
		return strings.TrimSpace(string(r[:i+1])), true
	}
	return "", false
}

func endsLikeSentence(text string) bool {
	r, _ := utf8.DecodeLastRuneInString(text)
	return sentenceTerminators[r]
}

func cleanKeywords(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, k := range in {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
