// Package ingestion turns raw submitted content into committed atomic facts:
// chunking, extraction-boundary validation, dedup against the vector index,
// and the per-upload pipeline that drives them.
package ingestion

import (
	"sort"
	"strings"
	"unicode"

	"github.com/dewiapp/dewi-backend/internal/types"
)

// Chunk is one bounded extraction window.
type Chunk struct {
	Index int
	Text  string
}

// ChunkerConfig bounds chunk sizes. Sizes are in runes so multi-byte text
// never splits inside a character.
type ChunkerConfig struct {
	TargetSize int
	MaxSize    int
	MinSize    int
	Overlap    int
}

func DefaultChunkerConfig() ChunkerConfig {
	return ChunkerConfig{TargetSize: 1200, MaxSize: 2000, MinSize: 200, Overlap: 150}
}

func (c ChunkerConfig) sane() ChunkerConfig {
	if c.TargetSize <= 0 {
		c.TargetSize = 1200
	}
	if c.MaxSize < c.TargetSize {
		c.MaxSize = c.TargetSize
	}
	if c.MinSize < 0 {
		c.MinSize = 0
	}
	if c.MinSize > c.TargetSize {
		c.MinSize = c.TargetSize
	}
	if c.Overlap < 0 {
		c.Overlap = 0
	}
	if c.Overlap >= c.TargetSize {
		c.Overlap = c.TargetSize / 4
	}
	return c
}

// SplitChunks produces the extraction windows for one submission. Structural
// hints win over text heuristics: hinted boundaries (paragraph offsets, slide
// breaks, caption marks) segment the text first, blank lines otherwise.
// Segments pack greedily up to the target size; an oversized segment splits
// at sentence boundaries, and only sentence-less runs fall back to a hard
// rune split with a small overlap window. Empty or whitespace-only input
// yields zero chunks and no error. The full slice is returned, so callers
// can restart or re-range freely.
func SplitChunks(text string, hints types.StructuralHints, cfg ChunkerConfig) []Chunk {
	cfg = cfg.sane()
	text = normalizeNewlines(text)
	if strings.TrimSpace(text) == "" {
		return nil
	}

	segments := segmentByHints(text, hints)
	if segments == nil {
		segments = segmentByBlankLines(text)
	}

	var pieces []string
	var buf strings.Builder
	bufLen := 0
	flush := func() {
		if bufLen == 0 {
			return
		}
		pieces = append(pieces, strings.TrimSpace(buf.String()))
		buf.Reset()
		bufLen = 0
	}

	for _, seg := range segments {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		segLen := len([]rune(seg))

		if segLen > cfg.MaxSize {
			flush()
			pieces = append(pieces, splitOversized(seg, cfg)...)
			continue
		}
		if bufLen > 0 && bufLen+segLen+2 > cfg.TargetSize {
			flush()
		}
		if bufLen > 0 {
			buf.WriteString("\n\n")
			bufLen += 2
		}
		buf.WriteString(seg)
		bufLen += segLen
	}
	flush()

	// A trailing fragment below the minimum folds into its neighbor when the
	// result stays within bounds.
	if n := len(pieces); n >= 2 {
		last := []rune(pieces[n-1])
		prev := []rune(pieces[n-2])
		if len(last) < cfg.MinSize && len(prev)+len(last)+2 <= cfg.MaxSize {
			pieces[n-2] = pieces[n-2] + "\n\n" + pieces[n-1]
			pieces = pieces[:n-1]
		}
	}

	chunks := make([]Chunk, 0, len(pieces))
	for i, p := range pieces {
		chunks = append(chunks, Chunk{Index: i, Text: p})
	}
	return chunks
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

// segmentByHints slices text at every hinted rune offset. Returns nil when no
// usable hints exist.
func segmentByHints(text string, hints types.StructuralHints) []string {
	offsets := make([]int, 0, len(hints.ParagraphOffsets)+len(hints.SlideBreaks)+len(hints.CaptionMarks))
	offsets = append(offsets, hints.ParagraphOffsets...)
	offsets = append(offsets, hints.SlideBreaks...)
	offsets = append(offsets, hints.CaptionMarks...)
	if len(offsets) == 0 {
		return nil
	}

	r := []rune(text)
	sort.Ints(offsets)
	cuts := offsets[:0]
	prev := -1
	for _, off := range offsets {
		if off <= 0 || off >= len(r) || off == prev {
			continue
		}
		cuts = append(cuts, off)
		prev = off
	}
	if len(cuts) == 0 {
		return nil
	}

	segments := make([]string, 0, len(cuts)+1)
	start := 0
	for _, cut := range cuts {
		segments = append(segments, string(r[start:cut]))
		start = cut
	}
	segments = append(segments, string(r[start:]))
	return segments
}

func segmentByBlankLines(text string) []string {
	var segments []string
	var cur []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			if len(cur) > 0 {
				segments = append(segments, strings.Join(cur, "\n"))
				cur = nil
			}
			continue
		}
		cur = append(cur, line)
	}
	if len(cur) > 0 {
		segments = append(segments, strings.Join(cur, "\n"))
	}
	return segments
}

// splitOversized breaks one segment that exceeds MaxSize: sentences packed up
// to the target size when boundaries are detectable, hard overlapping rune
// windows otherwise.
func splitOversized(seg string, cfg ChunkerConfig) []string {
	sentences := splitSentences(seg)
	if len(sentences) < 2 {
		return hardSplit(seg, cfg.TargetSize, cfg.Overlap)
	}

	var out []string
	var buf strings.Builder
	bufLen := 0
	for _, sent := range sentences {
		sentLen := len([]rune(sent))
		if sentLen > cfg.MaxSize {
			if bufLen > 0 {
				out = append(out, strings.TrimSpace(buf.String()))
				buf.Reset()
				bufLen = 0
			}
			out = append(out, hardSplit(sent, cfg.TargetSize, cfg.Overlap)...)
			continue
		}
		if bufLen > 0 && bufLen+sentLen+1 > cfg.TargetSize {
			out = append(out, strings.TrimSpace(buf.String()))
			buf.Reset()
			bufLen = 0
		}
		if bufLen > 0 {
			buf.WriteString(" ")
			bufLen++
		}
		buf.WriteString(sent)
		bufLen += sentLen
	}
	if bufLen > 0 {
		out = append(out, strings.TrimSpace(buf.String()))
	}
	return out
}

var sentenceTerminators = map[rune]bool{'.': true, '!': true, '?': true, '…': true, '。': true, '！': true, '？': true}

// splitSentences is deliberately simple: a terminator followed by whitespace
// and an upper-case/digit/quote opener (or end of text) closes a sentence.
func splitSentences(text string) []string {
	r := []rune(text)
	var out []string
	start := 0
	for i := 0; i < len(r); i++ {
		if !sentenceTerminators[r[i]] {
			continue
		}
		j := i + 1
		for j < len(r) && sentenceTerminators[r[j]] {
			j++
		}
		if j >= len(r) {
			break
		}
		if !unicode.IsSpace(r[j]) {
			continue
		}
		k := j
		for k < len(r) && unicode.IsSpace(r[k]) {
			k++
		}
		if k >= len(r) || unicode.IsUpper(r[k]) || unicode.IsDigit(r[k]) || r[k] == '"' || r[k] == '\'' || r[k] == '“' {
			s := strings.TrimSpace(string(r[start:j]))
			if s != "" {
				out = append(out, s)
			}
			start = k
			i = k - 1
		}
	}
	if tail := strings.TrimSpace(string(r[start:])); tail != "" {
		out = append(out, tail)
	}
	return out
}

// hardSplit is the last-resort overlapping rune window split.
func hardSplit(text string, size, overlap int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	r := []rune(text)
	if size <= 0 {
		size = 1200
	}
	step := size - overlap
	if step <= 0 {
		step = size
	}

	out := make([]string, 0, (len(r)/step)+1)
	for start := 0; start < len(r); start += step {
		end := start + size
		if end > len(r) {
			end = len(r)
		}
		p := strings.TrimSpace(string(r[start:end]))
		if p != "" {
			out = append(out, p)
		}
		if end == len(r) {
			break
		}
	}
	return out
}
